// Package pageadmin provides the admin JSON API over the page catalog:
// create, rename, publish and delete pages, and replace a page's sections
// wholesale.
//
// Endpoints (mounted at /api/admin/pages, API key required):
//   - GET    /                - list page summaries, newest first
//   - POST   /                - create an empty, unpublished page
//   - GET    /{id}            - one page with its sections
//   - PATCH  /{id}            - update title, slug or publish flag
//   - DELETE /{id}            - delete a page and release its media
//   - POST   /{id}/publish    - toggle the publish flag
//   - PUT    /{id}/sections   - replace all sections
package pageadmin

import (
	"context"
	"fmt"
	"net/http"

	errorsfeature "github.com/dalemusser/stratapage/internal/app/features/errors"
	"github.com/dalemusser/stratapage/internal/app/catalog"
	pagestore "github.com/dalemusser/stratapage/internal/app/store/pages"
	"github.com/dalemusser/stratapage/internal/app/system/apperr"
	"github.com/dalemusser/stratapage/internal/app/system/htmlsanitize"
	"github.com/dalemusser/stratapage/internal/app/system/inputval"
	"github.com/dalemusser/stratapage/internal/app/system/invalidate"
	"github.com/dalemusser/stratapage/internal/app/system/jsonutil"
	"github.com/dalemusser/stratapage/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// maxBodyBytes bounds admin request bodies. Rich text makes section lists
// larger than most JSON payloads.
const maxBodyBytes = 4 << 20

// Pages is the part of the page store the handler uses directly.
type Pages interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (models.Page, error)
	ReplaceSections(ctx context.Context, id primitive.ObjectID, sections []models.Section) (models.Page, error)
}

// MediaReleaser deletes the blobs of a deleted page without failing it.
type MediaReleaser interface {
	ReleaseAll(ctx context.Context, files []models.MediaFile) int
}

// Handler serves the page admin API.
type Handler struct {
	catalog *catalog.Catalog
	pages   Pages
	media   MediaReleaser
	inv     invalidate.Invalidator
	errs    *errorsfeature.Handler
	logger  *zap.Logger
}

// NewHandler creates a page admin handler. inv is told about direct section
// replacements; catalog mutations announce themselves.
func NewHandler(cat *catalog.Catalog, pages Pages, media MediaReleaser, inv invalidate.Invalidator, errs *errorsfeature.Handler, logger *zap.Logger) *Handler {
	if inv == nil {
		inv = invalidate.Nop
	}
	return &Handler{
		catalog: cat,
		pages:   pages,
		media:   media,
		inv:     inv,
		errs:    errs,
		logger:  logger,
	}
}

// Routes returns the page admin router. Authentication is applied by the
// caller.
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Patch("/", h.Update)
		r.Delete("/", h.Delete)
		r.Post("/publish", h.TogglePublish)
		r.Put("/sections", h.ReplaceSections)
	})
	return r
}

// List handles GET /.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.catalog.List(r.Context())
	if err != nil {
		h.errs.Fail(w, r, "list pages", err)
		return
	}
	jsonutil.OK(w, map[string]any{"pages": items})
}

type createInput struct {
	Title string `json:"title" validate:"required" label:"Title"`
	Slug  string `json:"slug" validate:"required" label:"Slug"`
}

// Create handles POST /.
//
// Request body: {"title": "About", "slug": "about"}
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var in createInput
	if !h.decode(w, r, &in) {
		return
	}
	if err := inputval.Validate(in).Err(); err != nil {
		h.fail(w, r, "create page", err)
		return
	}
	page, err := h.catalog.Create(r.Context(), in.Title, in.Slug)
	if err != nil {
		h.fail(w, r, "create page", err)
		return
	}
	h.logger.Info("page created", zap.String("page_id", page.ID.Hex()), zap.String("slug", page.Slug))
	jsonutil.Success(w, http.StatusCreated, "Page created", catalog.SummaryOf(page))
}

// Get handles GET /{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pageID(w, r)
	if !ok {
		return
	}
	page, err := h.pages.GetByID(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get page", err)
		return
	}
	jsonutil.OK(w, page)
}

// Update handles PATCH /{id}.
//
// Request body: any of {"title": "...", "slug": "...", "isPublished": true}
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pageID(w, r)
	if !ok {
		return
	}
	var patch models.PageMetadataPatch
	if !h.decode(w, r, &patch) {
		return
	}
	page, err := h.catalog.UpdateMetadata(r.Context(), id, patch)
	if err != nil {
		h.fail(w, r, "update page", err)
		return
	}
	jsonutil.Success(w, http.StatusOK, "Page updated", catalog.SummaryOf(page))
}

// TogglePublish handles POST /{id}/publish.
func (h *Handler) TogglePublish(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pageID(w, r)
	if !ok {
		return
	}
	page, err := h.catalog.TogglePublish(r.Context(), id)
	if err != nil {
		h.fail(w, r, "toggle publish", err)
		return
	}
	msg := "Page unpublished"
	if page.IsPublished {
		msg = "Page published"
	}
	jsonutil.Success(w, http.StatusOK, msg, catalog.SummaryOf(page))
}

// DeleteResult is the data of a delete response.
type DeleteResult struct {
	ID string `json:"id"`
	// MediaPending counts blobs whose deletion failed and was queued.
	MediaPending int `json:"mediaPending"`
}

// Delete handles DELETE /{id}. The page is deleted first; its media is then
// released best-effort, since the store never cascades into the media store.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pageID(w, r)
	if !ok {
		return
	}
	page, err := h.catalog.Delete(r.Context(), id)
	if err != nil {
		h.fail(w, r, "delete page", err)
		return
	}
	res := DeleteResult{ID: page.ID.Hex()}
	if h.media != nil {
		res.MediaPending = h.media.ReleaseAll(r.Context(), page.MediaFiles())
	}
	h.logger.Info("page deleted",
		zap.String("page_id", res.ID),
		zap.String("slug", page.Slug),
		zap.Int("media_pending", res.MediaPending))
	jsonutil.Success(w, http.StatusOK, "Page deleted", res)
}

type sectionsInput struct {
	Sections []models.Section `json:"sections"`
}

// ReplaceSections handles PUT /{id}/sections. The list is sanitized, put in
// order and renumbered 0..N-1, validated, then stored as a whole.
func (h *Handler) ReplaceSections(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pageID(w, r)
	if !ok {
		return
	}
	var in sectionsInput
	if !h.decode(w, r, &in) {
		return
	}
	sections := PrepareSections(in.Sections)
	if err := models.ValidateSections(sections); err != nil {
		h.fail(w, r, "replace sections", err)
		return
	}

	page, err := h.pages.ReplaceSections(r.Context(), id, sections)
	if err != nil {
		h.fail(w, r, "replace sections", err)
		return
	}
	if err := h.inv.Invalidate(r.Context(), invalidate.ForSlugs(page.ID, page.Slug)); err != nil {
		h.logger.Warn("invalidate after section replace failed",
			zap.String("slug", page.Slug), zap.Error(err))
	}
	jsonutil.Success(w, http.StatusOK, "Sections saved", page)
}

// PrepareSections returns the stored form of a client-supplied section
// list: sanitized, sorted by order and renumbered.
func PrepareSections(in []models.Section) []models.Section {
	sections := make([]models.Section, len(in))
	copy(sections, in)
	htmlsanitize.Sections(sections)
	models.SortByOrder(sections)
	models.Renormalize(sections)
	return sections
}

func (h *Handler) pageID(w http.ResponseWriter, r *http.Request) (primitive.ObjectID, bool) {
	id, err := pagestore.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "parse page id", err)
		return primitive.NilObjectID, false
	}
	return id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := jsonutil.Decode(r, v); err != nil {
		h.fail(w, r, "decode request", fmt.Errorf("%w: %v", apperr.Invalid("body", "invalid JSON"), err))
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.errs.Fail(w, r, msg, err)
}
