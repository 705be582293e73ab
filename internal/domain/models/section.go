// internal/domain/models/section.go
package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dalemusser/stratapage/internal/app/system/apperr"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
)

// SectionType is the discriminant of a section's payload.
type SectionType string

// Section types
const (
	SectionHeaderBanner SectionType = "header-banner"
	SectionContent      SectionType = "content-section"
	SectionGridLayout   SectionType = "grid-layout"
	SectionImageText    SectionType = "image-text"
	SectionBottomMedia  SectionType = "bottom-media"
)

// AllSectionTypes returns every known section type in palette order.
func AllSectionTypes() []SectionType {
	return []SectionType{
		SectionHeaderBanner,
		SectionContent,
		SectionGridLayout,
		SectionImageText,
		SectionBottomMedia,
	}
}

// IsValid reports whether t is a known section type.
func (t SectionType) IsValid() bool {
	for _, known := range AllSectionTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// ParseSectionType converts s into a SectionType.
func ParseSectionType(s string) (SectionType, error) {
	t := SectionType(strings.TrimSpace(s))
	if !t.IsValid() {
		return "", apperr.Invalid("type", fmt.Sprintf("unknown section type %q", s))
	}
	return t, nil
}

// Section is one ordered, typed content block within a Page.
//
// ID and Type never change after creation. Order is the section's position
// in its page and is renormalized by the editing session after every
// mutation. Data is nil only when Type is not a known section type (for
// example a document edited by hand); its raw payload is kept so that
// re-encoding does not lose it.
type Section struct {
	ID    string
	Type  SectionType
	Order int
	Data  SectionData

	raw bson.Raw
}

// NewSection builds a section of type t with a fresh id and default payload.
func NewSection(t SectionType, order int) (Section, error) {
	data, err := DefaultData(t)
	if err != nil {
		return Section{}, err
	}
	return Section{
		ID:    NewSectionID(),
		Type:  t,
		Order: order,
		Data:  data,
	}, nil
}

// NewSectionID returns a fresh, never reused section id.
func NewSectionID() string {
	return "section-" + uuid.NewString()
}

// NewGridItemID returns a fresh grid item id.
func NewGridItemID() string {
	return "grid-item-" + uuid.NewString()
}

// Known reports whether the section carries a decodable payload.
func (s Section) Known() bool {
	return s.Data != nil
}

// Clone returns a deep copy of s.
func (s Section) Clone() Section {
	out := s
	if s.Data != nil {
		out.Data = s.Data.clone()
	}
	if s.raw != nil {
		out.raw = append(bson.Raw(nil), s.raw...)
	}
	return out
}

// Validate checks the section's own fields and its payload. A section
// decoded from the store with an unknown type and a preserved payload only
// needs an id.
func (s Section) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return apperr.Invalid("id", "section id is required")
	}
	if s.Data == nil && s.raw != nil {
		// Stored section of a type this build does not know; its payload is
		// written back untouched.
		return nil
	}
	if !s.Type.IsValid() {
		return apperr.Invalid("type", fmt.Sprintf("unknown section type %q", s.Type))
	}
	if s.Data == nil {
		return apperr.Invalid("data", "section data is required")
	}
	if s.Data.Type() != s.Type {
		return apperr.Invalid("data", fmt.Sprintf("payload for %q does not match section type %q", s.Data.Type(), s.Type))
	}
	return s.Data.Validate()
}

// ValidateSections checks every section and that ids are unique.
func ValidateSections(sections []Section) error {
	var errs []error
	seen := make(map[string]bool, len(sections))
	for i, s := range sections {
		if err := s.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("sections[%d]: %w", i, err))
			continue
		}
		if seen[s.ID] {
			errs = append(errs, apperr.Invalid(fmt.Sprintf("sections[%d].id", i), "duplicate section id "+s.ID))
		}
		seen[s.ID] = true
	}
	return errors.Join(errs...)
}

// Renormalize sets each section's Order to its index.
func Renormalize(sections []Section) {
	for i := range sections {
		sections[i].Order = i
	}
}

// SortByOrder sorts sections by Order. Sections with equal Order keep their
// relative position, so a malformed list still sorts deterministically.
func SortByOrder(sections []Section) {
	sort.SliceStable(sections, func(i, j int) bool {
		return sections[i].Order < sections[j].Order
	})
}

// CloneSections deep-copies a section list.
func CloneSections(sections []Section) []Section {
	if sections == nil {
		return nil
	}
	out := make([]Section, len(sections))
	for i, s := range sections {
		out[i] = s.Clone()
	}
	return out
}
