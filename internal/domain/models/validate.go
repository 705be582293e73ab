// internal/domain/models/validate.go
package models

import (
	"errors"
	"regexp"
	"strings"

	"github.com/dalemusser/stratapage/internal/app/system/apperr"
)

// MaxTitleLength and MaxSlugLength bound page metadata.
const (
	MaxTitleLength = 200
	MaxSlugLength  = 120
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// IsValidSlug reports whether s is a URL-safe slug: lowercase letters and
// digits in groups separated by single hyphens.
func IsValidSlug(s string) bool {
	return len(s) <= MaxSlugLength && slugPattern.MatchString(s)
}

// ValidateTitle checks a page title.
func ValidateTitle(title string) error {
	title = strings.TrimSpace(title)
	switch {
	case title == "":
		return apperr.Invalid("title", "title is required")
	case len(title) > MaxTitleLength:
		return apperr.Invalid("title", "title is too long")
	}
	return nil
}

// ValidateSlug checks a page slug.
func ValidateSlug(slug string) error {
	switch {
	case strings.TrimSpace(slug) == "":
		return apperr.Invalid("slug", "slug is required")
	case !IsValidSlug(slug):
		return apperr.Invalid("slug", "slug may contain only lowercase letters, digits and single hyphens")
	}
	return nil
}

// ValidateNewPage checks the metadata of a page about to be created.
func ValidateNewPage(title, slug string) error {
	return errors.Join(ValidateTitle(title), ValidateSlug(slug))
}

// Validate checks the fields the patch sets.
func (p PageMetadataPatch) Validate() error {
	var errs []error
	if p.Title != nil {
		errs = append(errs, ValidateTitle(*p.Title))
	}
	if p.Slug != nil {
		errs = append(errs, ValidateSlug(*p.Slug))
	}
	return errors.Join(errs...)
}
