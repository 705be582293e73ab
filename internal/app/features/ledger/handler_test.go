package ledger

import (
	"encoding/json"
	"net/http"
	"testing"

	errorsfeature "github.com/dalemusser/stratapage/internal/app/features/errors"
	ledgerstore "github.com/dalemusser/stratapage/internal/app/store/ledger"
	"github.com/dalemusser/stratapage/internal/testutil"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const base = "/api/admin/ledger"

func newRouter(t *testing.T) (http.Handler, *ledgerstore.Store) {
	t.Helper()
	store := ledgerstore.New(testutil.SetupTestDB(t))
	errs := errorsfeature.NewHandler(nil, errorsfeature.NewErrorLogger(zap.NewNop()))
	r := chi.NewRouter()
	r.Mount(base, Routes(NewHandler(store, errs)))
	return r, store
}

func TestList(t *testing.T) {
	router, store := newRouter(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	store.Create(ctx, ledgerstore.Entry{RequestID: "a", Path: "/api/admin/pages", Status: 409, ErrorKind: "conflict"})
	store.Create(ctx, ledgerstore.Entry{RequestID: "b", Path: "/api/admin/editor/sessions/x", Status: 404, ErrorKind: "not_found"})

	tests := []struct {
		query  string
		status int
		want   int
	}{
		{"", http.StatusOK, 2},
		{"?kind=conflict", http.StatusOK, 1},
		{"?path=/api/admin/editor", http.StatusOK, 1},
		{"?minStatus=500", http.StatusOK, 0},
		{"?limit=1", http.StatusOK, 1},
		{"?limit=zero", http.StatusBadRequest, 0},
		{"?minStatus=42", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := testutil.Serve(router, testutil.NewJSONRequest(t, http.MethodGet, base+tt.query, nil))
			rec.AssertStatus(t, tt.status)
			if tt.status != http.StatusOK {
				return
			}
			var body struct {
				Entries []ledgerstore.Entry `json:"entries"`
			}
			rec.DecodeJSON(t, &body)
			if len(body.Entries) != tt.want {
				t.Errorf("entries = %d, want %d", len(body.Entries), tt.want)
			}
		})
	}
}

func TestGet(t *testing.T) {
	router, store := newRouter(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	store.Create(ctx, ledgerstore.Entry{RequestID: "req-1", Path: "/api/admin/pages", Status: 400})

	rec := testutil.Serve(router, testutil.NewJSONRequest(t, http.MethodGet, base+"/req-1", nil))
	rec.AssertStatus(t, http.StatusOK)
	var e ledgerstore.Entry
	if err := json.Unmarshal(rec.Body.Bytes(), &e); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if e.RequestID != "req-1" || e.Status != 400 {
		t.Errorf("entry = %+v", e)
	}

	rec = testutil.Serve(router, testutil.NewJSONRequest(t, http.MethodGet, base+"/missing", nil))
	rec.AssertStatus(t, http.StatusNotFound)
}
