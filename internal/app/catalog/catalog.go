// Package catalog keeps the admin's list of page summaries.
//
// The catalog is a read-through cache over the page repository. Mutations go
// to the repository first and are then applied to the cached list from the
// repository's returned value. When the two disagree (a cached id the store no
// longer knows, or a returned page the cache never saw) the list is reloaded
// wholesale. Every successful mutation is announced to the configured
// invalidator so public copies under the affected slugs are dropped.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	pagestore "github.com/dalemusser/stratapage/internal/app/store/pages"
	"github.com/dalemusser/stratapage/internal/app/system/apperr"
	"github.com/dalemusser/stratapage/internal/app/system/invalidate"
	"github.com/dalemusser/stratapage/internal/app/system/normalize"
	"github.com/dalemusser/stratapage/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Repository is the slice of the page store the catalog uses.
type Repository interface {
	List(ctx context.Context) ([]models.Page, error)
	Create(ctx context.Context, title, slug string) (models.Page, error)
	UpdateMetadata(ctx context.Context, id primitive.ObjectID, patch models.PageMetadataPatch) (pagestore.UpdateResult, error)
	Delete(ctx context.Context, id primitive.ObjectID) (models.Page, error)
}

// Summary is a page without its sections.
type Summary struct {
	ID           primitive.ObjectID `json:"id"`
	Title        string             `json:"title"`
	Slug         string             `json:"slug"`
	IsPublished  bool               `json:"isPublished"`
	SectionCount int                `json:"sectionCount"`
	CreatedAt    time.Time          `json:"createdAt"`
	UpdatedAt    time.Time          `json:"updatedAt"`
}

// SummaryOf builds the summary of p.
func SummaryOf(p models.Page) Summary {
	return Summary{
		ID:           p.ID,
		Title:        p.Title,
		Slug:         p.Slug,
		IsPublished:  p.IsPublished,
		SectionCount: len(p.Sections),
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

// Catalog is safe for concurrent use.
type Catalog struct {
	repo   Repository
	inv    invalidate.Invalidator
	logger *zap.Logger

	mu      sync.Mutex
	items   []Summary // newest created first
	loaded  bool
	stale   bool
	loadSeq uint64
}

// New creates an empty catalog. Nothing is read until first use. inv may be
// nil.
func New(repo Repository, inv invalidate.Invalidator, logger *zap.Logger) *Catalog {
	if inv == nil {
		inv = invalidate.Nop
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Catalog{repo: repo, inv: inv, logger: logger}
}

/* --------------------------------- reads --------------------------------- */

// Load replaces the cached list with the repository's. On failure the
// catalog is left empty and unloaded, and the next read tries again.
func (c *Catalog) Load(ctx context.Context) error {
	c.mu.Lock()
	c.loadSeq++
	seq := c.loadSeq
	c.mu.Unlock()

	pages, err := c.repo.List(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if seq != c.loadSeq {
		// A newer load owns the result.
		return nil
	}
	if err != nil {
		c.items = nil
		c.loaded = false
		return fmt.Errorf("load page catalog: %w", err)
	}
	items := make([]Summary, len(pages))
	for i, p := range pages {
		items[i] = SummaryOf(p)
	}
	c.items = items
	c.loaded = true
	c.stale = false
	return nil
}

// List returns the summaries newest first, loading them if needed.
func (c *Catalog) List(ctx context.Context) ([]Summary, error) {
	if err := c.ensureLoaded(ctx); err != nil {
		return []Summary{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Summary, len(c.items))
	copy(out, c.items)
	return out, nil
}

// Get returns one summary from the catalog.
func (c *Catalog) Get(ctx context.Context, id primitive.ObjectID) (Summary, error) {
	if err := c.ensureLoaded(ctx); err != nil {
		return Summary{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.indexLocked(id); i >= 0 {
		return c.items[i], nil
	}
	return Summary{}, fmt.Errorf("page %s: %w", id.Hex(), apperr.ErrNotFound)
}

func (c *Catalog) ensureLoaded(ctx context.Context) error {
	c.mu.Lock()
	fresh := c.loaded && !c.stale
	c.mu.Unlock()
	if fresh {
		return nil
	}
	return c.Load(ctx)
}

/* ------------------------------- mutations ------------------------------- */

// Create normalizes and validates the metadata, then creates an empty
// unpublished page.
func (c *Catalog) Create(ctx context.Context, title, slug string) (models.Page, error) {
	title, slug = normalize.Title(title), normalize.Slug(slug)
	if err := models.ValidateNewPage(title, slug); err != nil {
		return models.Page{}, err
	}

	page, err := c.repo.Create(ctx, title, slug)
	if err != nil {
		return models.Page{}, err
	}

	c.mu.Lock()
	if c.loaded {
		c.items = append([]Summary{SummaryOf(page)}, c.items...)
	}
	c.mu.Unlock()

	c.announce(ctx, invalidate.ForSlugs(page.ID, page.Slug))
	return page, nil
}

// UpdateMetadata applies a partial update. A rename announces both the old
// and the new slug.
func (c *Catalog) UpdateMetadata(ctx context.Context, id primitive.ObjectID, patch models.PageMetadataPatch) (models.Page, error) {
	patch = normalizePatch(patch)
	if patch.IsEmpty() {
		return models.Page{}, apperr.Invalid("patch", "nothing to update")
	}
	if err := patch.Validate(); err != nil {
		return models.Page{}, err
	}

	res, err := c.repo.UpdateMetadata(ctx, id, patch)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			c.dropOrResync(ctx, id)
		}
		return models.Page{}, err
	}

	c.mu.Lock()
	i := c.indexLocked(res.Page.ID)
	if i >= 0 {
		c.items[i] = SummaryOf(res.Page)
	}
	resync := c.loaded && i < 0
	c.mu.Unlock()
	if resync {
		c.resync(ctx, "updated page missing from catalog")
	}

	c.announce(ctx, invalidate.ForSlugs(res.Page.ID, res.PreviousSlug, res.Page.Slug))
	return res.Page, nil
}

// TogglePublish flips the publish flag of the page as the catalog knows it.
func (c *Catalog) TogglePublish(ctx context.Context, id primitive.ObjectID) (models.Page, error) {
	cur, err := c.Get(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		// The page may have been created since the last load.
		if err = c.Load(ctx); err == nil {
			cur, err = c.Get(ctx, id)
		}
	}
	if err != nil {
		return models.Page{}, err
	}
	next := !cur.IsPublished
	return c.UpdateMetadata(ctx, id, models.PageMetadataPatch{IsPublished: &next})
}

// Delete removes a page and returns what was deleted so the caller can
// release its media.
func (c *Catalog) Delete(ctx context.Context, id primitive.ObjectID) (models.Page, error) {
	page, err := c.repo.Delete(ctx, id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			c.dropOrResync(ctx, id)
		}
		return models.Page{}, err
	}

	c.mu.Lock()
	i := c.indexLocked(id)
	if i >= 0 {
		c.items = append(c.items[:i], c.items[i+1:]...)
	}
	resync := c.loaded && i < 0
	c.mu.Unlock()
	if resync {
		c.resync(ctx, "deleted page missing from catalog")
	}

	c.announce(ctx, invalidate.ForSlugs(page.ID, page.Slug))
	return page, nil
}

// Invalidate marks the catalog stale so the next read reloads it. It lets
// editing sessions refresh section counts and timestamps after a commit.
func (c *Catalog) Invalidate(_ context.Context, _ invalidate.Event) error {
	c.mu.Lock()
	c.stale = true
	c.mu.Unlock()
	return nil
}

/* -------------------------------- helpers -------------------------------- */

// dropOrResync handles the store reporting id as missing: the cached entry
// is stale evidence, so the whole list is reloaded.
func (c *Catalog) dropOrResync(ctx context.Context, id primitive.ObjectID) {
	c.mu.Lock()
	known := c.indexLocked(id) >= 0
	c.mu.Unlock()
	if known {
		c.resync(ctx, "cached page no longer in store")
	}
}

func (c *Catalog) resync(ctx context.Context, reason string) {
	c.logger.Info("reloading page catalog", zap.String("reason", reason))
	if err := c.Load(ctx); err != nil {
		c.logger.Warn("page catalog reload failed", zap.Error(err))
	}
}

func (c *Catalog) announce(ctx context.Context, ev invalidate.Event) {
	if err := c.inv.Invalidate(ctx, ev); err != nil {
		c.logger.Warn("page invalidation failed",
			zap.String("page_id", ev.PageID.Hex()),
			zap.Strings("slugs", ev.Slugs),
			zap.Error(err))
	}
}

func (c *Catalog) indexLocked(id primitive.ObjectID) int {
	for i := range c.items {
		if c.items[i].ID == id {
			return i
		}
	}
	return -1
}

func normalizePatch(p models.PageMetadataPatch) models.PageMetadataPatch {
	if p.Title != nil {
		t := normalize.Title(*p.Title)
		p.Title = &t
	}
	if p.Slug != nil {
		s := normalize.Slug(*p.Slug)
		p.Slug = &s
	}
	return p
}
