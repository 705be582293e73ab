// Package normalize provides helper functions for consistent string normalization
// across the application. Use these helpers instead of scattered strings.ToLower
// and strings.TrimSpace calls to ensure consistent behavior.
package normalize

import "strings"

// Title normalizes a page title by trimming whitespace.
func Title(s string) string {
	return strings.TrimSpace(s)
}

// Slug normalizes a page slug by trimming whitespace and surrounding slashes
// and converting to lowercase. The result still has to pass slug validation.
func Slug(s string) string {
	return strings.ToLower(strings.Trim(strings.TrimSpace(s), "/"))
}

// SectionType normalizes a section type tag.
func SectionType(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// QueryParam normalizes a query parameter by trimming whitespace.
func QueryParam(s string) string {
	return strings.TrimSpace(s)
}
