// Package ledger serves the admin API request ledger as JSON.
//
//   - GET /api/admin/ledger              - recent failures (?kind=, ?path=, ?minStatus=, ?limit=)
//   - GET /api/admin/ledger/{requestID}  - one entry, by the X-Request-ID a client saw
package ledger

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	errorsfeature "github.com/dalemusser/stratapage/internal/app/features/errors"
	ledgerstore "github.com/dalemusser/stratapage/internal/app/store/ledger"
	"github.com/dalemusser/stratapage/internal/app/system/apperr"
	"github.com/dalemusser/stratapage/internal/app/system/jsonutil"
	"github.com/go-chi/chi/v5"
)

// maxLimit caps ?limit=.
const maxLimit = 500

// Store is the ledger as the handler reads it.
type Store interface {
	Recent(ctx context.Context, f ledgerstore.Filter) ([]ledgerstore.Entry, error)
	GetByRequestID(ctx context.Context, requestID string) (ledgerstore.Entry, error)
}

// Handler serves ledger queries.
type Handler struct {
	store Store
	errs  *errorsfeature.Handler
}

// NewHandler creates a ledger handler.
func NewHandler(store Store, errs *errorsfeature.Handler) *Handler {
	return &Handler{store: store, errs: errs}
}

// Routes returns the ledger router. Authentication is applied by the caller.
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Get("/{requestID}", h.Get)
	return r
}

// List handles GET /.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	f, err := filterFrom(r)
	if err != nil {
		h.errs.Fail(w, r, "list ledger", err)
		return
	}
	entries, err := h.store.Recent(r.Context(), f)
	if err != nil {
		h.errs.Fail(w, r, "list ledger", err)
		return
	}
	jsonutil.OK(w, map[string]any{"entries": entries})
}

// Get handles GET /{requestID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	e, err := h.store.GetByRequestID(r.Context(), chi.URLParam(r, "requestID"))
	if err != nil {
		h.errs.Fail(w, r, "get ledger entry", err)
		return
	}
	jsonutil.OK(w, e)
}

func filterFrom(r *http.Request) (ledgerstore.Filter, error) {
	q := r.URL.Query()
	f := ledgerstore.Filter{
		ErrorKind:  strings.TrimSpace(q.Get("kind")),
		PathPrefix: strings.TrimSpace(q.Get("path")),
	}
	if v := q.Get("minStatus"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 100 || n > 599 {
			return f, apperr.Invalid("minStatus", "must be an HTTP status code")
		}
		f.MinStatus = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 1 {
			return f, apperr.Invalid("limit", "must be a positive integer")
		}
		f.Limit = min(n, maxLimit)
	}
	return f, nil
}
