// internal/domain/models/variants.go
package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dalemusser/stratapage/internal/app/system/apperr"
)

// SectionData is the type-specific payload of a Section. The set of
// implementations is closed: the unexported clone method keeps other
// packages from adding variants, and SectionVisitor makes every dispatch
// site handle all of them.
type SectionData interface {
	Type() SectionType
	Accept(v SectionVisitor)
	Validate() error
	MediaFiles() []MediaFile

	clone() SectionData
}

// SectionVisitor receives exactly one call per payload, typed by variant.
type SectionVisitor interface {
	VisitHeaderBanner(*HeaderBanner)
	VisitContentBlock(*ContentBlock)
	VisitGridLayout(*GridLayout)
	VisitImageText(*ImageText)
	VisitBottomMedia(*BottomMedia)
}

// Grid column counts.
const (
	DefaultGridColumns = 3
	MinGridColumns     = 2
	MaxGridColumns     = 4
)

// Image positions for image-text sections.
const (
	ImageLeft  = "left"
	ImageRight = "right"
)

// Media kinds for bottom-media sections.
const (
	MediaImage = "image"
	MediaVideo = "video"
)

// DefaultData returns the initial payload for a newly inserted section.
func DefaultData(t SectionType) (SectionData, error) {
	switch t {
	case SectionHeaderBanner:
		return &HeaderBanner{}, nil
	case SectionContent:
		return &ContentBlock{}, nil
	case SectionGridLayout:
		return &GridLayout{Columns: DefaultGridColumns, Items: []GridItem{}}, nil
	case SectionImageText:
		return &ImageText{ImagePosition: ImageLeft}, nil
	case SectionBottomMedia:
		return &BottomMedia{Kind: MediaImage}, nil
	}
	return nil, apperr.Invalid("type", fmt.Sprintf("unknown section type %q", t))
}

// newData returns an empty payload for decoding into.
func newData(t SectionType) SectionData {
	switch t {
	case SectionHeaderBanner:
		return &HeaderBanner{}
	case SectionContent:
		return &ContentBlock{}
	case SectionGridLayout:
		return &GridLayout{}
	case SectionImageText:
		return &ImageText{}
	case SectionBottomMedia:
		return &BottomMedia{}
	}
	return nil
}

/* ---------- header-banner ---------- */

// HeaderBanner is a full-width hero image with a title and subtitle.
type HeaderBanner struct {
	Image    *MediaFile `bson:"image,omitempty" json:"image,omitempty"`
	Title    string     `bson:"title" json:"title"`
	Subtitle string     `bson:"subtitle" json:"subtitle"`
}

func (d *HeaderBanner) Type() SectionType       { return SectionHeaderBanner }
func (d *HeaderBanner) Accept(v SectionVisitor) { v.VisitHeaderBanner(d) }
func (d *HeaderBanner) Validate() error         { return nil }

func (d *HeaderBanner) MediaFiles() []MediaFile {
	return collectMedia(d.Image)
}

func (d *HeaderBanner) clone() SectionData {
	out := *d
	out.Image = cloneMedia(d.Image)
	return &out
}

/* ---------- content-section ---------- */

// ContentBlock is a titled block of rich-text HTML.
type ContentBlock struct {
	Title   string `bson:"title" json:"title"`
	Content string `bson:"content" json:"content"`
}

func (d *ContentBlock) Type() SectionType       { return SectionContent }
func (d *ContentBlock) Accept(v SectionVisitor) { v.VisitContentBlock(d) }
func (d *ContentBlock) Validate() error         { return nil }
func (d *ContentBlock) MediaFiles() []MediaFile { return nil }

func (d *ContentBlock) clone() SectionData {
	out := *d
	return &out
}

/* ---------- grid-layout ---------- */

// GridLayout is a titled grid of cards.
type GridLayout struct {
	Title   string     `bson:"title" json:"title"`
	Columns int        `bson:"columns,omitempty" json:"columns,omitempty"`
	Items   []GridItem `bson:"items" json:"items"`
}

// GridItem is one card of a GridLayout. ID is unique within its section.
type GridItem struct {
	ID          string     `bson:"id" json:"id"`
	Image       *MediaFile `bson:"image,omitempty" json:"image,omitempty"`
	Title       string     `bson:"title" json:"title"`
	Description string     `bson:"description" json:"description"`
}

func (d *GridLayout) Type() SectionType       { return SectionGridLayout }
func (d *GridLayout) Accept(v SectionVisitor) { v.VisitGridLayout(d) }

// EffectiveColumns returns Columns, or the default when unset.
func (d *GridLayout) EffectiveColumns() int {
	if d.Columns == 0 {
		return DefaultGridColumns
	}
	return d.Columns
}

func (d *GridLayout) Validate() error {
	var errs []error
	if d.Columns != 0 && (d.Columns < MinGridColumns || d.Columns > MaxGridColumns) {
		errs = append(errs, apperr.Invalid("columns", fmt.Sprintf("must be between %d and %d", MinGridColumns, MaxGridColumns)))
	}
	seen := make(map[string]bool, len(d.Items))
	for i, it := range d.Items {
		id := strings.TrimSpace(it.ID)
		switch {
		case id == "":
			errs = append(errs, apperr.Invalid(fmt.Sprintf("items[%d].id", i), "item id is required"))
		case seen[id]:
			errs = append(errs, apperr.Invalid(fmt.Sprintf("items[%d].id", i), "duplicate item id "+id))
		}
		seen[id] = true
	}
	return errors.Join(errs...)
}

func (d *GridLayout) MediaFiles() []MediaFile {
	var out []MediaFile
	for i := range d.Items {
		out = append(out, collectMedia(d.Items[i].Image)...)
	}
	return out
}

func (d *GridLayout) clone() SectionData {
	out := *d
	if d.Items != nil {
		out.Items = make([]GridItem, len(d.Items))
		for i, it := range d.Items {
			it.Image = cloneMedia(it.Image)
			out.Items[i] = it
		}
	}
	return &out
}

// RekeyItems gives every grid item a fresh id. Used when a section is
// duplicated so that the copy shares no identity with the original.
func (d *GridLayout) RekeyItems() {
	for i := range d.Items {
		d.Items[i].ID = NewGridItemID()
	}
}

/* ---------- image-text ---------- */

// ImageText places an image beside a block of rich text.
type ImageText struct {
	Image         *MediaFile `bson:"image,omitempty" json:"image,omitempty"`
	Title         string     `bson:"title" json:"title"`
	Content       string     `bson:"content" json:"content"`
	ImagePosition string     `bson:"image_position,omitempty" json:"imagePosition,omitempty"`
}

func (d *ImageText) Type() SectionType       { return SectionImageText }
func (d *ImageText) Accept(v SectionVisitor) { v.VisitImageText(d) }

// ImageOnRight reports whether the image sits right of the text.
func (d *ImageText) ImageOnRight() bool {
	return d.ImagePosition == ImageRight
}

func (d *ImageText) Validate() error {
	switch d.ImagePosition {
	case "", ImageLeft, ImageRight:
		return nil
	}
	return apperr.Invalid("imagePosition", "must be left or right")
}

func (d *ImageText) MediaFiles() []MediaFile {
	return collectMedia(d.Image)
}

func (d *ImageText) clone() SectionData {
	out := *d
	out.Image = cloneMedia(d.Image)
	return &out
}

/* ---------- bottom-media ---------- */

// BottomMedia is a closing image or video with a caption.
type BottomMedia struct {
	Media       *MediaFile `bson:"media,omitempty" json:"media,omitempty"`
	Kind        string     `bson:"type,omitempty" json:"type,omitempty"`
	Title       string     `bson:"title" json:"title"`
	Description string     `bson:"description" json:"description"`
}

func (d *BottomMedia) Type() SectionType       { return SectionBottomMedia }
func (d *BottomMedia) Accept(v SectionVisitor) { v.VisitBottomMedia(d) }

// IsVideo reports whether the media should be presented as a video.
func (d *BottomMedia) IsVideo() bool {
	return d.Kind == MediaVideo
}

func (d *BottomMedia) Validate() error {
	switch d.Kind {
	case "", MediaImage, MediaVideo:
		return nil
	}
	return apperr.Invalid("type", "must be image or video")
}

func (d *BottomMedia) MediaFiles() []MediaFile {
	return collectMedia(d.Media)
}

func (d *BottomMedia) clone() SectionData {
	out := *d
	out.Media = cloneMedia(d.Media)
	return &out
}

/* ---------- helpers ---------- */

func collectMedia(m *MediaFile) []MediaFile {
	if m == nil || (m.File == "" && m.FileID == "") {
		return nil
	}
	return []MediaFile{*m}
}

func cloneMedia(m *MediaFile) *MediaFile {
	if m == nil {
		return nil
	}
	c := *m
	return &c
}
