// Package editor exposes editing sessions over the admin JSON API. A client
// opens a session, loads a page into it, edits the in-memory section list
// and commits it as a whole. Nothing is persisted before commit.
//
// Endpoints (mounted at /api/admin/editor, API key required):
//   - POST   /sessions                                 - open (optionally loading {"pageId"})
//   - GET    /sessions/{sid}                           - current state
//   - DELETE /sessions/{sid}                           - close, discarding edits
//   - POST   /sessions/{sid}/load                      - load {"pageId"}
//   - POST   /sessions/{sid}/sections                  - insert {"type", "position"?}
//   - PUT    /sessions/{sid}/sections/{secID}          - replace data {"data": {...}}
//   - DELETE /sessions/{sid}/sections/{secID}          - delete
//   - POST   /sessions/{sid}/sections/{secID}/move     - move {"position"}
//   - POST   /sessions/{sid}/sections/{secID}/duplicate
//   - POST   /sessions/{sid}/move-up/{index}
//   - POST   /sessions/{sid}/move-down/{index}
//   - POST   /sessions/{sid}/commit
package editor

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	pageeditor "github.com/dalemusser/stratapage/internal/app/editor"
	errorsfeature "github.com/dalemusser/stratapage/internal/app/features/errors"
	pagestore "github.com/dalemusser/stratapage/internal/app/store/pages"
	"github.com/dalemusser/stratapage/internal/app/system/apperr"
	"github.com/dalemusser/stratapage/internal/app/system/inputval"
	"github.com/dalemusser/stratapage/internal/app/system/htmlsanitize"
	"github.com/dalemusser/stratapage/internal/app/system/jsonutil"
	"github.com/dalemusser/stratapage/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const maxBodyBytes = 4 << 20

// Handler serves editing sessions from a registry.
type Handler struct {
	reg    *pageeditor.Registry
	errs   *errorsfeature.Handler
	logger *zap.Logger
}

// NewHandler creates an editor handler.
func NewHandler(reg *pageeditor.Registry, errs *errorsfeature.Handler, logger *zap.Logger) *Handler {
	return &Handler{reg: reg, errs: errs, logger: logger}
}

// Routes returns the editor router. Authentication is applied by the caller.
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Post("/sessions", h.Open)
	r.Route("/sessions/{sid}", func(r chi.Router) {
		r.Get("/", h.State)
		r.Delete("/", h.Close)
		r.Post("/load", h.Load)
		r.Post("/sections", h.Insert)
		r.Put("/sections/{secID}", h.UpdateData)
		r.Delete("/sections/{secID}", h.DeleteSection)
		r.Post("/sections/{secID}/move", h.Move)
		r.Post("/sections/{secID}/duplicate", h.Duplicate)
		r.Post("/move-up/{index}", h.MoveUp)
		r.Post("/move-down/{index}", h.MoveDown)
		r.Post("/commit", h.Commit)
	})
	return r
}

// State is the client's view of a session.
type State struct {
	SessionID string           `json:"sessionId"`
	PageID    string           `json:"pageId,omitempty"`
	Slug      string           `json:"slug,omitempty"`
	Dirty     bool             `json:"dirty"`
	Sections  []models.Section `json:"sections"`
}

func stateOf(sid string, s *pageeditor.Session) State {
	st := State{
		SessionID: sid,
		Slug:      s.Slug(),
		Dirty:     s.Dirty(),
		Sections:  s.Sections(),
	}
	if id, ok := s.PageID(); ok {
		st.PageID = id.Hex()
	}
	return st
}

type pageRef struct {
	PageID string `json:"pageId" validate:"required,objectid" label:"Page ID"`
}

// Open handles POST /sessions. With a pageId the page is loaded right away;
// if that load fails the session is closed again.
func (h *Handler) Open(w http.ResponseWriter, r *http.Request) {
	var in pageRef
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := jsonutil.Decode(r, &in); err != nil && !errors.Is(err, io.EOF) {
		h.errs.Fail(w, r, "decode request", fmt.Errorf("%w: %v", apperr.Invalid("body", "invalid JSON"), err))
		return
	}

	if in.PageID != "" {
		if err := inputval.Validate(in).Err(); err != nil {
			h.errs.Fail(w, r, "open editor session", err)
			return
		}
	}

	sid, s := h.reg.Open()
	if in.PageID != "" {
		if err := h.load(r, s, in.PageID); err != nil {
			h.reg.Close(sid)
			h.errs.Fail(w, r, "open editor session", err)
			return
		}
	}
	h.logger.Debug("editor session opened", zap.String("editor_session", sid))
	jsonutil.Success(w, http.StatusCreated, "Editing session opened", stateOf(sid, s))
}

// State handles GET /sessions/{sid}.
func (h *Handler) State(w http.ResponseWriter, r *http.Request) {
	sid, s, ok := h.session(w, r)
	if !ok {
		return
	}
	jsonutil.OK(w, stateOf(sid, s))
}

// Close handles DELETE /sessions/{sid}.
func (h *Handler) Close(w http.ResponseWriter, r *http.Request) {
	sid := chi.URLParam(r, "sid")
	if !h.reg.Close(sid) {
		h.errs.Fail(w, r, "close editor session", fmt.Errorf("%w: %s", pageeditor.ErrSessionNotFound, sid))
		return
	}
	jsonutil.Success(w, http.StatusOK, "Editing session closed", nil)
}

// Load handles POST /sessions/{sid}/load. Uncommitted edits are discarded.
func (h *Handler) Load(w http.ResponseWriter, r *http.Request) {
	sid, s, ok := h.session(w, r)
	if !ok {
		return
	}
	var in pageRef
	if !h.decode(w, r, &in) {
		return
	}
	if err := inputval.Validate(in).Err(); err != nil {
		h.errs.Fail(w, r, "load page", err)
		return
	}
	if err := h.load(r, s, in.PageID); err != nil {
		h.errs.Fail(w, r, "load page", err)
		return
	}
	jsonutil.Success(w, http.StatusOK, "Page loaded", stateOf(sid, s))
}

func (h *Handler) load(r *http.Request, s *pageeditor.Session, hex string) error {
	id, err := pagestore.ParseID(hex)
	if err != nil {
		return err
	}
	return s.Load(r.Context(), id)
}

type insertInput struct {
	Type     string `json:"type" validate:"required,sectiontype" label:"Section type"`
	Position *int   `json:"position"`
}

// Insert handles POST /sessions/{sid}/sections.
func (h *Handler) Insert(w http.ResponseWriter, r *http.Request) {
	sid, s, ok := h.session(w, r)
	if !ok {
		return
	}
	var in insertInput
	if !h.decode(w, r, &in) {
		return
	}
	if err := inputval.Validate(in).Err(); err != nil {
		h.errs.Fail(w, r, "insert section", err)
		return
	}
	t, err := models.ParseSectionType(in.Type)
	if err != nil {
		h.errs.Fail(w, r, "insert section", err)
		return
	}
	sec, err := s.Insert(t, in.Position)
	if err != nil {
		h.errs.Fail(w, r, "insert section", err)
		return
	}
	h.mutated(w, sid, s, "Section added", sec)
}

type updateInput struct {
	Data json.RawMessage `json:"data"`
}

// UpdateData handles PUT /sessions/{sid}/sections/{secID}. The payload is
// decoded as the section's own type and sanitized before it is applied.
func (h *Handler) UpdateData(w http.ResponseWriter, r *http.Request) {
	sid, s, ok := h.session(w, r)
	if !ok {
		return
	}
	secID := chi.URLParam(r, "secID")
	cur, err := s.Section(secID)
	if err != nil {
		h.errs.Fail(w, r, "update section", err)
		return
	}
	var in updateInput
	if !h.decode(w, r, &in) {
		return
	}
	data, err := models.DecodeDataJSON(cur.Type, in.Data)
	if err != nil {
		h.errs.Fail(w, r, "update section", err)
		return
	}
	htmlsanitize.Section(data)

	sec, err := s.UpdateData(secID, data)
	if err != nil {
		h.errs.Fail(w, r, "update section", err)
		return
	}
	h.mutated(w, sid, s, "Section updated", sec)
}

// DeleteSection handles DELETE /sessions/{sid}/sections/{secID}.
func (h *Handler) DeleteSection(w http.ResponseWriter, r *http.Request) {
	sid, s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.Delete(chi.URLParam(r, "secID")); err != nil {
		h.errs.Fail(w, r, "delete section", err)
		return
	}
	h.mutated(w, sid, s, "Section removed", nil)
}

type moveInput struct {
	Position *int `json:"position"`
}

// Move handles POST /sessions/{sid}/sections/{secID}/move. Out-of-range
// positions clamp.
func (h *Handler) Move(w http.ResponseWriter, r *http.Request) {
	sid, s, ok := h.session(w, r)
	if !ok {
		return
	}
	var in moveInput
	if !h.decode(w, r, &in) {
		return
	}
	if in.Position == nil {
		h.errs.Fail(w, r, "move section", apperr.Invalid("position", "required"))
		return
	}
	sec, err := s.MoveTo(chi.URLParam(r, "secID"), *in.Position)
	if err != nil {
		h.errs.Fail(w, r, "move section", err)
		return
	}
	h.mutated(w, sid, s, "Section moved", sec)
}

// Duplicate handles POST /sessions/{sid}/sections/{secID}/duplicate.
func (h *Handler) Duplicate(w http.ResponseWriter, r *http.Request) {
	sid, s, ok := h.session(w, r)
	if !ok {
		return
	}
	sec, err := s.Duplicate(chi.URLParam(r, "secID"))
	if err != nil {
		h.errs.Fail(w, r, "duplicate section", err)
		return
	}
	h.mutated(w, sid, s, "Section duplicated", sec)
}

// MoveUp handles POST /sessions/{sid}/move-up/{index}. Moving the first
// section up is a no-op, not an error.
func (h *Handler) MoveUp(w http.ResponseWriter, r *http.Request) {
	h.swap(w, r, (*pageeditor.Session).MoveUp)
}

// MoveDown handles POST /sessions/{sid}/move-down/{index}. Moving the last
// section down is a no-op, not an error.
func (h *Handler) MoveDown(w http.ResponseWriter, r *http.Request) {
	h.swap(w, r, (*pageeditor.Session).MoveDown)
}

func (h *Handler) swap(w http.ResponseWriter, r *http.Request, move func(*pageeditor.Session, int) bool) {
	sid, s, ok := h.session(w, r)
	if !ok {
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		h.errs.Fail(w, r, "move section", apperr.Invalid("index", "must be an integer"))
		return
	}
	msg := "Section moved"
	if !move(s, index) {
		msg = "Nothing to move"
	}
	h.mutated(w, sid, s, msg, nil)
}

// Commit handles POST /sessions/{sid}/commit. A failed commit leaves the
// session's edits in place for a retry.
func (h *Handler) Commit(w http.ResponseWriter, r *http.Request) {
	sid, s, ok := h.session(w, r)
	if !ok {
		return
	}
	page, err := s.Commit(r.Context())
	if err != nil {
		h.errs.Fail(w, r, "commit page", err)
		return
	}
	h.logger.Info("page sections committed",
		zap.String("page_id", page.ID.Hex()),
		zap.String("slug", page.Slug),
		zap.Int("sections", len(page.Sections)))
	jsonutil.Success(w, http.StatusOK, "Page saved", stateOf(sid, s))
}

// mutationResult is the data of an edit response: the touched section, if
// any, and the session state after the edit.
type mutationResult struct {
	Section *models.Section `json:"section,omitempty"`
	State   State           `json:"state"`
}

func (h *Handler) mutated(w http.ResponseWriter, sid string, s *pageeditor.Session, msg string, sec any) {
	res := mutationResult{State: stateOf(sid, s)}
	if v, ok := sec.(models.Section); ok {
		res.Section = &v
	}
	jsonutil.Success(w, http.StatusOK, msg, res)
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (string, *pageeditor.Session, bool) {
	sid := chi.URLParam(r, "sid")
	s, err := h.reg.Get(sid)
	if err != nil {
		h.errs.Fail(w, r, "editor session", err)
		return "", nil, false
	}
	return sid, s, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := jsonutil.Decode(r, v); err != nil {
		h.errs.Fail(w, r, "decode request", fmt.Errorf("%w: %v", apperr.Invalid("body", "invalid JSON"), err))
		return false
	}
	return true
}
