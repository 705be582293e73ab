// Package pages serves published pages to the public, as HTML documents and
// as JSON for headless clients.
package pages

import (
	"bytes"
	"errors"
	"net/http"
	"time"

	errorsfeature "github.com/dalemusser/stratapage/internal/app/features/errors"
	"github.com/dalemusser/stratapage/internal/app/render"
	"github.com/dalemusser/stratapage/internal/app/system/apperr"
	"github.com/dalemusser/stratapage/internal/app/system/jsonutil"
	"github.com/dalemusser/stratapage/internal/app/system/normalize"
	"github.com/dalemusser/stratapage/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// DefaultHomeSlug is the page served at the site root unless configured.
const DefaultHomeSlug = "home"

// Handler provides the public page handlers.
type Handler struct {
	resolver *Resolver
	renderer *render.Renderer
	errs     *errorsfeature.Handler
	logger   *zap.Logger
	homeSlug string
}

// Option configures a Handler.
type Option func(*Handler)

// WithHomeSlug sets the page served at "/". The slug is normalized; empty
// keeps the default.
func WithHomeSlug(slug string) Option {
	return func(h *Handler) {
		if slug = normalize.Slug(slug); slug != "" {
			h.homeSlug = slug
		}
	}
}

// NewHandler creates a new pages Handler.
func NewHandler(resolver *Resolver, renderer *render.Renderer, errs *errorsfeature.Handler, logger *zap.Logger, opts ...Option) *Handler {
	h := &Handler{
		resolver: resolver,
		renderer: renderer,
		errs:     errs,
		logger:   logger,
		homeSlug: DefaultHomeSlug,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns the HTML routes, mounted at the site root.
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/", h.Home)
	r.Get("/{slug}", h.Show)
	return r
}

// APIRoutes returns the JSON routes, mounted at /api/pages.
func APIRoutes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/{slug}", h.ShowJSON)
	return r
}

// Show renders the published page for the slug in the URL.
func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	page, err := h.resolver.Resolve(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		h.errs.Fail(w, r, "resolve page", err)
		return
	}
	h.writePage(w, r, page)
}

// Home renders the home page. Until one is published a placeholder
// welcome page is shown instead of a 404.
func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	page, err := h.resolver.Resolve(r.Context(), h.homeSlug)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		page = welcomePage()
	case err != nil:
		h.errs.Fail(w, r, "resolve home page", err)
		return
	}
	h.writePage(w, r, page)
}

func welcomePage() models.Page {
	return models.Page{
		Title: "Welcome",
		Sections: []models.Section{{
			ID:   "welcome",
			Type: models.SectionContent,
			Data: &models.ContentBlock{
				Title:   "Welcome",
				Content: "<p>This site has no published home page yet.</p>",
			},
		}},
	}
}

func (h *Handler) writePage(w http.ResponseWriter, r *http.Request, page models.Page) {
	var buf bytes.Buffer
	if err := h.renderer.Page(&buf, page); err != nil {
		h.errs.Fail(w, r, "render page", err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=60")
	_, _ = buf.WriteTo(w)
}

// PublicPage is the JSON form of a published page. Sections are in display
// order and only known section types are included.
type PublicPage struct {
	Title     string           `json:"title"`
	Slug      string           `json:"slug"`
	Sections  []models.Section `json:"sections"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// PublicPageOf builds the public JSON view of page.
func PublicPageOf(page models.Page) PublicPage {
	sections := make([]models.Section, 0, len(page.Sections))
	for _, s := range page.Sections {
		if s.Known() {
			sections = append(sections, s)
		}
	}
	models.SortByOrder(sections)
	return PublicPage{
		Title:     page.Title,
		Slug:      page.Slug,
		Sections:  sections,
		UpdatedAt: page.UpdatedAt,
	}
}

// ShowJSON returns the published page for the slug in the URL as JSON.
func (h *Handler) ShowJSON(w http.ResponseWriter, r *http.Request) {
	page, err := h.resolver.Resolve(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		h.errs.Fail(w, r, "resolve page", err)
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=60")
	jsonutil.OK(w, PublicPageOf(page))
}
