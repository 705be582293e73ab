package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"

	"github.com/dalemusser/stratapage/internal/domain/models"
)

//go:embed templates/*.gohtml
var templateFS embed.FS

// PageVM is the data of the page template.
type PageVM struct {
	Title     string
	Slug      string
	Views     []View
	AssetBase string
}

// Renderer writes pages as HTML documents.
type Renderer struct {
	tmpl      *template.Template
	assetBase string
	onUnknown UnknownFunc
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithAssetBase sets the URL prefix of the stylesheet link.
func WithAssetBase(base string) Option {
	return func(r *Renderer) { r.assetBase = base }
}

// WithUnknownHandler sets the callback for skipped sections.
func WithUnknownHandler(fn UnknownFunc) Option {
	return func(r *Renderer) { r.onUnknown = fn }
}

// New parses the embedded templates.
func New(opts ...Option) (*Renderer, error) {
	tmpl, err := template.New("page").ParseFS(templateFS, "templates/*.gohtml")
	if err != nil {
		return nil, fmt.Errorf("parse page templates: %w", err)
	}
	r := &Renderer{tmpl: tmpl, assetBase: "/assets"}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Page writes page as a complete HTML document. The output is buffered so
// a template failure never leaves a half-written response.
func (r *Renderer) Page(w io.Writer, page models.Page) error {
	vm := PageVM{
		Title:     page.Title,
		Slug:      page.Slug,
		Views:     Views(page, r.onUnknown),
		AssetBase: r.assetBase,
	}
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, "page_document", vm); err != nil {
		return fmt.Errorf("render page %q: %w", page.Slug, err)
	}
	_, err := buf.WriteTo(w)
	return err
}

// Sections writes only the rendered sections, for embedding in another
// layout or for previews.
func (r *Renderer) Sections(w io.Writer, page models.Page) error {
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, "page_sections", Views(page, r.onUnknown)); err != nil {
		return fmt.Errorf("render sections of %q: %w", page.Slug, err)
	}
	_, err := buf.WriteTo(w)
	return err
}

// ErrorVM is the data of the error page template.
type ErrorVM struct {
	Status    int
	Title     string
	Message   string
	AssetBase string
}

// Error writes a standalone error page. It does not set the status code.
func (r *Renderer) Error(w io.Writer, status int, title, message string) error {
	vm := ErrorVM{Status: status, Title: title, Message: message, AssetBase: r.assetBase}
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, "error_document", vm); err != nil {
		return fmt.Errorf("render error page: %w", err)
	}
	_, err := buf.WriteTo(w)
	return err
}
