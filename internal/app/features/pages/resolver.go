package pages

import (
	"context"
	"fmt"

	"github.com/dalemusser/stratapage/internal/app/system/apperr"
	"github.com/dalemusser/stratapage/internal/app/system/pagecache"
	"github.com/dalemusser/stratapage/internal/domain/models"
	"go.uber.org/zap"
)

// Repository is the read side of the page store used by public resolution.
type Repository interface {
	GetBySlug(ctx context.Context, slug string) (models.Page, error)
}

// Resolver finds the published page for a public slug.
type Resolver struct {
	repo   Repository
	cache  pagecache.Cache
	logger *zap.Logger
}

// NewResolver creates a Resolver. cache may be nil.
func NewResolver(repo Repository, cache pagecache.Cache, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{repo: repo, cache: cache, logger: logger}
}

// Resolve returns the published page for slug. Slugs match exactly, so
// "About" does not find "about". A missing page and an unpublished page both
// yield apperr.ErrNotFound, so the public cannot tell them apart. A cache
// failure degrades to a store read.
func (r *Resolver) Resolve(ctx context.Context, slug string) (models.Page, error) {
	if !models.IsValidSlug(slug) {
		return models.Page{}, fmt.Errorf("page %q: %w", slug, apperr.ErrNotFound)
	}

	if r.cache != nil {
		page, ok, err := r.cache.Get(ctx, slug)
		switch {
		case err != nil:
			r.logger.Warn("page cache read failed", zap.String("slug", slug), zap.Error(err))
		case ok && page.IsPublished:
			return page, nil
		}
	}

	// The version is taken before the store read; an invalidation that lands
	// while the read is in flight makes the fill below a no-op.
	var (
		version    uint64
		versionErr error
	)
	if r.cache != nil {
		version, versionErr = r.cache.Version(ctx, slug)
		if versionErr != nil {
			r.logger.Warn("page cache version read failed", zap.String("slug", slug), zap.Error(versionErr))
		}
	}

	page, err := r.repo.GetBySlug(ctx, slug)
	if err != nil {
		return models.Page{}, err
	}
	if !page.IsPublished {
		return models.Page{}, fmt.Errorf("page %q: %w", slug, apperr.ErrNotFound)
	}

	if r.cache != nil && versionErr == nil {
		stored, err := r.cache.SetAt(ctx, page, version)
		switch {
		case err != nil:
			r.logger.Warn("page cache write failed", zap.String("slug", slug), zap.Error(err))
		case !stored:
			r.logger.Debug("page changed during read; not cached", zap.String("slug", slug))
		}
	}
	return page, nil
}
