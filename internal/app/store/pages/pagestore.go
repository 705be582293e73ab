// internal/app/store/pages/pagestore.go
package pagestore

import (
	"context"
	"fmt"
	"time"

	"github.com/dalemusser/stratapage/internal/app/store/storeutil"
	"github.com/dalemusser/stratapage/internal/app/system/apperr"
	"github.com/dalemusser/stratapage/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store provides access to the pages collection. Every method is a single
// Mongo call; the unique index on slug is the only guard against duplicate
// slugs, so callers handle apperr.ErrConflict instead of pre-checking.
type Store struct {
	c *mongo.Collection
}

// New creates a new page store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("pages")}
}

// ParseID converts a hex page id. Malformed ids cannot match any page, so
// they are reported as apperr.ErrNotFound.
func ParseID(hex string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(hex)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("page %q: %w", hex, apperr.ErrNotFound)
	}
	return id, nil
}

// Create inserts an empty, unpublished page.
// Returns apperr.ErrConflict if the slug is already taken.
func (s *Store) Create(ctx context.Context, title, slug string) (models.Page, error) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	p := models.Page{
		ID:        primitive.NewObjectID(),
		Title:     title,
		Slug:      slug,
		Sections:  []models.Section{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := s.c.InsertOne(ctx, p); err != nil {
		return models.Page{}, storeutil.Classify("create page", err)
	}
	return p, nil
}

// GetByID returns a page by id.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.Page, error) {
	var p models.Page
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&p); err != nil {
		return models.Page{}, storeutil.Classify("get page "+id.Hex(), err)
	}
	return p, nil
}

// GetBySlug returns a page by exact slug, published or not. Publish gating
// belongs to the public read path.
func (s *Store) GetBySlug(ctx context.Context, slug string) (models.Page, error) {
	var p models.Page
	if err := s.c.FindOne(ctx, bson.M{"slug": slug}).Decode(&p); err != nil {
		return models.Page{}, storeutil.Classify("get page by slug "+slug, err)
	}
	return p, nil
}

// List returns all pages, newest created first.
func (s *Store) List(ctx context.Context) ([]models.Page, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "created_at", Value: -1},
		{Key: "_id", Value: -1},
	})
	cur, err := s.c.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, storeutil.Classify("list pages", err)
	}
	defer cur.Close(ctx)

	pages := []models.Page{}
	if err := cur.All(ctx, &pages); err != nil {
		return nil, storeutil.Classify("list pages", err)
	}
	return pages, nil
}

// UpdateResult is the outcome of a metadata update. PreviousSlug differs
// from Page.Slug when the update renamed the page.
type UpdateResult struct {
	Page         models.Page
	PreviousSlug string
}

// SlugChanged reports whether the update renamed the page.
func (r UpdateResult) SlugChanged() bool {
	return r.PreviousSlug != r.Page.Slug
}

// UpdateMetadata applies a partial update of title, slug and publish flag.
// Unset patch fields keep their stored value. A slug already used by another
// page fails with apperr.ErrConflict and leaves both pages untouched.
func (s *Store) UpdateMetadata(ctx context.Context, id primitive.ObjectID, patch models.PageMetadataPatch) (UpdateResult, error) {
	set := bson.M{"updated_at": time.Now().UTC().Truncate(time.Millisecond)}
	if patch.Title != nil {
		set["title"] = *patch.Title
	}
	if patch.Slug != nil {
		set["slug"] = *patch.Slug
	}
	if patch.IsPublished != nil {
		set["is_published"] = *patch.IsPublished
	}

	// The before-image gives us the previous slug in the same atomic call.
	opts := options.FindOneAndUpdate().SetReturnDocument(options.Before)
	var before models.Page
	err := s.c.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&before)
	if err != nil {
		return UpdateResult{}, storeutil.Classify("update page "+id.Hex(), err)
	}

	after := before
	after.UpdatedAt = set["updated_at"].(time.Time)
	if patch.Title != nil {
		after.Title = *patch.Title
	}
	if patch.Slug != nil {
		after.Slug = *patch.Slug
	}
	if patch.IsPublished != nil {
		after.IsPublished = *patch.IsPublished
	}
	return UpdateResult{Page: after, PreviousSlug: before.Slug}, nil
}

// ReplaceSections overwrites the page's whole section list. It never merges
// with what is stored.
func (s *Store) ReplaceSections(ctx context.Context, id primitive.ObjectID, sections []models.Section) (models.Page, error) {
	if sections == nil {
		sections = []models.Section{}
	}
	update := bson.M{"$set": bson.M{
		"sections":   sections,
		"updated_at": time.Now().UTC().Truncate(time.Millisecond),
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var p models.Page
	if err := s.c.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&p); err != nil {
		return models.Page{}, storeutil.Classify("replace sections of page "+id.Hex(), err)
	}
	return p, nil
}

// Delete removes a page with its embedded sections and returns what was
// deleted. Media blobs referenced by the page are left for the caller.
func (s *Store) Delete(ctx context.Context, id primitive.ObjectID) (models.Page, error) {
	var p models.Page
	if err := s.c.FindOneAndDelete(ctx, bson.M{"_id": id}).Decode(&p); err != nil {
		return models.Page{}, storeutil.Classify("delete page "+id.Hex(), err)
	}
	return p, nil
}

// Ping checks that the collection's database answers.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.c.Database().Client().Ping(ctx, nil); err != nil {
		return storeutil.Classify("ping", err)
	}
	return nil
}
