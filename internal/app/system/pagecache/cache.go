// Package pagecache holds published pages by slug for the public read path.
//
// Two implementations share the Cache interface: Memory for single-process
// deployments and tests, Redis when several instances serve the site.
// Only published pages are stored; an invalidation event removes every slug
// it names.
//
// Every Delete advances the slug's version. A reader that fills the cache
// after a store read takes the version first and writes with SetAt, so a
// copy read before an invalidation is never stored after it.
package pagecache

import (
	"context"

	"github.com/dalemusser/stratapage/internal/app/system/invalidate"
	"github.com/dalemusser/stratapage/internal/domain/models"
)

// Cache stores pages keyed by slug.
type Cache interface {
	// Get returns the cached page for slug. ok is false on a miss.
	Get(ctx context.Context, slug string) (page models.Page, ok bool, err error)
	// Set stores page under its slug unconditionally.
	Set(ctx context.Context, page models.Page) error
	// Version returns the slug's invalidation version.
	Version(ctx context.Context, slug string) (uint64, error)
	// SetAt stores page only if its slug is still at version. stored is
	// false when an invalidation happened since the version was taken.
	SetAt(ctx context.Context, page models.Page, version uint64) (stored bool, err error)
	// Delete removes the given slugs and advances their versions. Missing
	// slugs are not an error.
	Delete(ctx context.Context, slugs ...string) error
	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error
}

// Invalidator returns an invalidator that deletes an event's slugs from c.
func Invalidator(c Cache) invalidate.Invalidator {
	return invalidate.Func(func(ctx context.Context, ev invalidate.Event) error {
		if len(ev.Slugs) == 0 {
			return nil
		}
		return c.Delete(ctx, ev.Slugs...)
	})
}
