// Package invalidate carries "this page changed" signals from the places
// that mutate pages (catalog, editing sessions) to the places that hold
// copies of them (public page cache, catalog).
package invalidate

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Event names a page whose stored representation changed and every slug
// under which a stale copy may be held. A rename lists both the old and the
// new slug.
type Event struct {
	PageID primitive.ObjectID
	Slugs  []string
}

// ForSlugs builds an event, dropping empty and repeated slugs.
func ForSlugs(id primitive.ObjectID, slugs ...string) Event {
	ev := Event{PageID: id}
	seen := make(map[string]bool, len(slugs))
	for _, s := range slugs {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		ev.Slugs = append(ev.Slugs, s)
	}
	return ev
}

// Invalidator drops cached state for the pages named by an event.
type Invalidator interface {
	Invalidate(ctx context.Context, ev Event) error
}

// Func adapts a function to Invalidator.
type Func func(ctx context.Context, ev Event) error

// Invalidate calls f.
func (f Func) Invalidate(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// Multi fans an event out to every invalidator. All are called even when
// some fail; the failures are joined.
type Multi []Invalidator

// Invalidate notifies each member in order.
func (m Multi) Invalidate(ctx context.Context, ev Event) error {
	var errs []error
	for _, inv := range m {
		if inv == nil {
			continue
		}
		if err := inv.Invalidate(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop ignores every event.
var Nop Invalidator = Func(func(context.Context, Event) error { return nil })
