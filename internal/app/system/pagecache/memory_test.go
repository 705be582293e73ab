package pagecache

import (
	"context"
	"testing"
	"time"

	"github.com/dalemusser/stratapage/internal/app/system/invalidate"
	"github.com/dalemusser/stratapage/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func samplePage(slug string) models.Page {
	return models.Page{
		ID:          primitive.NewObjectID(),
		Title:       "Title " + slug,
		Slug:        slug,
		IsPublished: true,
		Sections: []models.Section{
			{ID: "s1", Type: models.SectionContent, Order: 0, Data: &models.ContentBlock{Title: "Hello"}},
		},
	}
}

func TestMemory_SetGet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Minute)

	if _, ok, err := m.Get(ctx, "about"); ok || err != nil {
		t.Fatalf("Get() on empty cache = ok %v err %v", ok, err)
	}

	p := samplePage("about")
	if err := m.Set(ctx, p); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, ok, err := m.Get(ctx, "about")
	if err != nil || !ok {
		t.Fatalf("Get() = ok %v err %v", ok, err)
	}
	if got.ID != p.ID || got.Title != p.Title {
		t.Errorf("Get() = %+v", got)
	}
}

func TestMemory_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(0)

	p := samplePage("about")
	m.Set(ctx, p)
	p.Sections[0].Data.(*models.ContentBlock).Title = "mutated after Set"

	got, _, _ := m.Get(ctx, "about")
	got.Sections[0].Data.(*models.ContentBlock).Title = "mutated after Get"

	again, _, _ := m.Get(ctx, "about")
	if title := again.Sections[0].Data.(*models.ContentBlock).Title; title != "Hello" {
		t.Errorf("cached title = %q, want Hello", title)
	}
}

func TestMemory_TTL(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Minute)
	now := time.Now()
	m.now = func() time.Time { return now }

	m.Set(ctx, samplePage("about"))

	now = now.Add(2 * time.Minute)
	if _, ok, _ := m.Get(ctx, "about"); ok {
		t.Error("expired entry returned")
	}
	if n := m.Sweep(); n != 1 {
		t.Errorf("Sweep() = %d, want 1", n)
	}
	if m.Len() != 0 {
		t.Errorf("Len() = %d after sweep", m.Len())
	}
}

func TestMemory_Delete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Minute)
	m.Set(ctx, samplePage("about"))
	m.Set(ctx, samplePage("contact"))
	m.Set(ctx, samplePage("terms"))

	if err := m.Delete(ctx, "about", "contact", "missing"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok, _ := m.Get(ctx, "about"); ok {
		t.Error("about still cached")
	}
	if _, ok, _ := m.Get(ctx, "terms"); !ok {
		t.Error("terms evicted")
	}
}

func TestInvalidator(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Minute)
	m.Set(ctx, samplePage("about"))
	m.Set(ctx, samplePage("about-us"))

	inv := Invalidator(m)
	if err := inv.Invalidate(ctx, invalidate.ForSlugs(primitive.NewObjectID(), "about", "about-us")); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}
	if m.Len() != 0 {
		t.Errorf("Len() = %d after invalidation, want 0", m.Len())
	}
	if err := inv.Invalidate(ctx, invalidate.Event{}); err != nil {
		t.Errorf("Invalidate(empty) error = %v", err)
	}
}

func TestMemory_SetAtRefusedAfterDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(0)

	v, err := m.Version(ctx, "about")
	if err != nil {
		t.Fatalf("Version() error = %v", err)
	}
	if err := m.Delete(ctx, "about"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	stored, err := m.SetAt(ctx, samplePage("about"), v)
	if err != nil || stored {
		t.Fatalf("SetAt() with old version = %v, %v, want not stored", stored, err)
	}
	if _, ok, _ := m.Get(ctx, "about"); ok {
		t.Error("stale page cached after Delete")
	}

	v, _ = m.Version(ctx, "about")
	if stored, err := m.SetAt(ctx, samplePage("about"), v); err != nil || !stored {
		t.Fatalf("SetAt() with current version = %v, %v, want stored", stored, err)
	}
	if _, ok, _ := m.Get(ctx, "about"); !ok {
		t.Error("page not cached at current version")
	}
}
