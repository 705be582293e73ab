// internal/domain/models/page.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Page is a composed content page: page-level metadata plus an ordered list
// of typed sections. Sections are owned values embedded in the page document;
// they have no identity outside their page.
type Page struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Title       string             `bson:"title" json:"title"`
	Slug        string             `bson:"slug" json:"slug"` // URL slug, unique across all pages
	Sections    []Section          `bson:"sections" json:"sections"`
	IsPublished bool               `bson:"is_published" json:"isPublished"`

	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time `bson:"updated_at" json:"updatedAt"`
}

// PageMetadataPatch is a partial update of page metadata. Nil fields keep
// their stored value.
type PageMetadataPatch struct {
	Title       *string `json:"title,omitempty"`
	Slug        *string `json:"slug,omitempty"`
	IsPublished *bool   `json:"isPublished,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p PageMetadataPatch) IsEmpty() bool {
	return p.Title == nil && p.Slug == nil && p.IsPublished == nil
}

// MediaFiles returns every media reference held by the page's sections,
// in section order.
func (p Page) MediaFiles() []MediaFile {
	var out []MediaFile
	for _, s := range p.Sections {
		if s.Data == nil {
			continue
		}
		out = append(out, s.Data.MediaFiles()...)
	}
	return out
}

// MediaFile references a blob held by the external media store. File is the
// display URL, FileID the handle used to request deletion. Either may be
// empty while an upload is in flight or after the blob was removed.
type MediaFile struct {
	File      string `bson:"file,omitempty" json:"file,omitempty"`
	FileID    string `bson:"file_id,omitempty" json:"fileId,omitempty"`
	Thumbnail string `bson:"thumbnail,omitempty" json:"thumbnail,omitempty"`
}

// HasFile reports whether there is something to display.
func (m *MediaFile) HasFile() bool {
	return m != nil && m.File != ""
}

// Deletable reports whether the blob can be deleted from the media store.
func (m *MediaFile) Deletable() bool {
	return m != nil && m.FileID != ""
}
