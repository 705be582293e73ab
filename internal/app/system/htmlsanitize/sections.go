package htmlsanitize

import (
	"net/url"
	"strings"

	"github.com/dalemusser/stratapage/internal/domain/models"
)

// Section cleans a payload in place: rich-text fields go through RichText
// and media URLs that are not http(s) or site-relative are dropped.
func Section(data models.SectionData) {
	if data == nil {
		return
	}
	data.Accept(sanitizer{})
}

// Sections cleans every known payload in place.
func Sections(sections []models.Section) {
	for i := range sections {
		Section(sections[i].Data)
	}
}

type sanitizer struct{}

func (sanitizer) VisitHeaderBanner(d *models.HeaderBanner) {
	cleanMedia(d.Image)
}

func (sanitizer) VisitContentBlock(d *models.ContentBlock) {
	d.Content = RichText(d.Content)
}

func (sanitizer) VisitGridLayout(d *models.GridLayout) {
	for i := range d.Items {
		cleanMedia(d.Items[i].Image)
	}
}

func (sanitizer) VisitImageText(d *models.ImageText) {
	d.Content = RichText(d.Content)
	cleanMedia(d.Image)
}

func (sanitizer) VisitBottomMedia(d *models.BottomMedia) {
	cleanMedia(d.Media)
}

func cleanMedia(m *models.MediaFile) {
	if m == nil {
		return
	}
	m.File = SafeURL(m.File)
	m.Thumbnail = SafeURL(m.Thumbnail)
}

// SafeURL returns u if it is an absolute http(s) URL or a site-relative
// path, and "" otherwise.
func SafeURL(u string) string {
	u = strings.TrimSpace(u)
	if u == "" {
		return ""
	}
	parsed, err := url.Parse(u)
	if err != nil {
		return ""
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
		if parsed.Host == "" {
			return ""
		}
		return u
	case "":
		if strings.HasPrefix(u, "/") && !strings.HasPrefix(u, "//") {
			return u
		}
	}
	return ""
}
