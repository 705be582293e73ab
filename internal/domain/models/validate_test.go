package models

import (
	"errors"
	"strings"
	"testing"

	"github.com/dalemusser/stratapage/internal/app/system/apperr"
)

func TestIsValidSlug(t *testing.T) {
	tests := []struct {
		slug string
		want bool
	}{
		{"about", true},
		{"about-us", true},
		{"2024-report", true},
		{"a", true},

		{"", false},
		{"About", false},
		{"about us", false},
		{"about--us", false},
		{"-about", false},
		{"about-", false},
		{"about/us", false},
		{"über", false},
		{strings.Repeat("a", MaxSlugLength+1), false},
	}

	for _, tt := range tests {
		t.Run(tt.slug, func(t *testing.T) {
			if got := IsValidSlug(tt.slug); got != tt.want {
				t.Errorf("IsValidSlug(%q) = %v, want %v", tt.slug, got, tt.want)
			}
		})
	}
}

func TestValidateNewPage(t *testing.T) {
	tests := []struct {
		name       string
		title      string
		slug       string
		wantFields []string
	}{
		{"valid", "About", "about", nil},
		{"empty title", "  ", "about", []string{"title"}},
		{"empty slug", "About", "", []string{"slug"}},
		{"both empty", "", "", []string{"title", "slug"}},
		{"bad slug", "About", "About Us", []string{"slug"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateNewPage(tt.title, tt.slug)
			if len(tt.wantFields) == 0 {
				if err != nil {
					t.Fatalf("ValidateNewPage() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, apperr.ErrValidation) {
				t.Fatalf("ValidateNewPage() = %v, want ErrValidation", err)
			}
			fields := apperr.Fields(err)
			for _, f := range tt.wantFields {
				if _, ok := fields[f]; !ok {
					t.Errorf("missing field error for %q in %v", f, fields)
				}
			}
		})
	}
}

func TestPageMetadataPatch(t *testing.T) {
	if !(PageMetadataPatch{}).IsEmpty() {
		t.Error("zero patch should be empty")
	}

	pub := true
	p := PageMetadataPatch{IsPublished: &pub}
	if p.IsEmpty() {
		t.Error("publish-only patch reported empty")
	}
	if err := p.Validate(); err != nil {
		t.Errorf("publish-only patch invalid: %v", err)
	}

	empty := ""
	p = PageMetadataPatch{Title: &empty}
	if err := p.Validate(); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("empty title patch = %v, want ErrValidation", err)
	}
}
