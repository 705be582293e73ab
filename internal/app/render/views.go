// Package render turns a page into the ordered views the public site shows.
//
// Views is pure and never fails: sections are stably sorted by Order, each
// payload is dispatched through models.SectionVisitor to its view, and a
// section whose type is unknown is skipped and reported to the caller.
package render

import (
	"fmt"
	"html/template"

	"github.com/dalemusser/stratapage/internal/domain/models"
)

// View is the presentation of one section. Exactly one of the variant
// fields is set, matching Type.
type View struct {
	SectionID string
	Type      models.SectionType

	Header    *HeaderView
	Content   *ContentView
	Grid      *GridView
	ImageText *ImageTextView
	Media     *MediaView
}

// HeaderView is a full-width banner with an optional background image.
type HeaderView struct {
	Title    string
	Subtitle string
	ImageURL string
	Alt      string
}

// ContentView is a titled rich-text block.
type ContentView struct {
	Title   string
	Content template.HTML
}

// GridView is a grid of cards.
type GridView struct {
	Title        string
	Columns      int
	ColumnsClass string
	Items        []GridItemView
}

// GridItemView is one card.
type GridItemView struct {
	ID          string
	ImageURL    string
	Alt         string
	Title       string
	Description string
}

// ImageTextView places an image beside rich text.
type ImageTextView struct {
	Title        string
	Content      template.HTML
	ImageURL     string
	Alt          string
	ImageOnRight bool
}

// MediaView is the closing image or video.
type MediaView struct {
	Title       string
	Description string
	URL         string
	Alt         string
	Video       bool
}

// UnknownFunc is told about each section skipped because its type has no
// view.
type UnknownFunc func(models.Section)

// Views maps page's sections to views in display order. Sections with equal
// Order keep their stored relative position. onUnknown may be nil.
func Views(page models.Page, onUnknown UnknownFunc) []View {
	sections := make([]models.Section, len(page.Sections))
	copy(sections, page.Sections)
	models.SortByOrder(sections)

	views := make([]View, 0, len(sections))
	for _, sec := range sections {
		if sec.Data == nil || !sec.Type.IsValid() || sec.Data.Type() != sec.Type {
			if onUnknown != nil {
				onUnknown(sec)
			}
			continue
		}
		b := &viewBuilder{view: View{SectionID: sec.ID, Type: sec.Type}}
		sec.Data.Accept(b)
		views = append(views, b.view)
	}
	return views
}

// viewBuilder is the renderer's SectionVisitor.
type viewBuilder struct {
	view View
}

func (b *viewBuilder) VisitHeaderBanner(d *models.HeaderBanner) {
	b.view.Header = &HeaderView{
		Title:    d.Title,
		Subtitle: d.Subtitle,
		ImageURL: mediaURL(d.Image),
		Alt:      altOr(d.Title, "Header banner"),
	}
}

func (b *viewBuilder) VisitContentBlock(d *models.ContentBlock) {
	b.view.Content = &ContentView{
		Title:   d.Title,
		Content: trusted(d.Content),
	}
}

func (b *viewBuilder) VisitGridLayout(d *models.GridLayout) {
	cols := d.EffectiveColumns()
	g := &GridView{
		Title:        d.Title,
		Columns:      cols,
		ColumnsClass: GridColumnsClass(cols),
		Items:        make([]GridItemView, len(d.Items)),
	}
	for i, it := range d.Items {
		g.Items[i] = GridItemView{
			ID:          it.ID,
			ImageURL:    mediaURL(it.Image),
			Alt:         altOr(it.Title, fmt.Sprintf("Grid item %d", i+1)),
			Title:       it.Title,
			Description: it.Description,
		}
	}
	b.view.Grid = g
}

func (b *viewBuilder) VisitImageText(d *models.ImageText) {
	b.view.ImageText = &ImageTextView{
		Title:        d.Title,
		Content:      trusted(d.Content),
		ImageURL:     mediaURL(d.Image),
		Alt:          altOr(d.Title, "Section image"),
		ImageOnRight: d.ImageOnRight(),
	}
}

func (b *viewBuilder) VisitBottomMedia(d *models.BottomMedia) {
	b.view.Media = &MediaView{
		Title:       d.Title,
		Description: d.Description,
		URL:         mediaURL(d.Media),
		Alt:         altOr(d.Title, "Bottom media"),
		Video:       d.IsVideo(),
	}
}

// GridColumnsClass returns the responsive grid class list for a column
// count. Unknown counts fall back to three columns.
func GridColumnsClass(cols int) string {
	switch cols {
	case 1:
		return "grid-cols-1"
	case 2:
		return "grid-cols-1 md:grid-cols-2"
	case 4:
		return "grid-cols-1 md:grid-cols-2 lg:grid-cols-4"
	default:
		return "grid-cols-1 md:grid-cols-2 lg:grid-cols-3"
	}
}

// mediaURL returns the displayable URL of m; missing media is "".
func mediaURL(m *models.MediaFile) string {
	if !m.HasFile() {
		return ""
	}
	return m.File
}

func altOr(title, fallback string) string {
	if title != "" {
		return title
	}
	return fallback
}

// trusted marks stored rich text as safe. It was sanitized when written.
func trusted(s string) template.HTML {
	return template.HTML(s)
}
