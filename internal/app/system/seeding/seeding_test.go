package seeding

import (
	"testing"

	pagestore "github.com/dalemusser/stratapage/internal/app/store/pages"
	"github.com/dalemusser/stratapage/internal/domain/models"
	"github.com/dalemusser/stratapage/internal/testutil"
	"go.uber.org/zap/zaptest"
)

func TestSeedAll_CreatesUnpublishedHome(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := SeedAll(ctx, db, "home", zaptest.NewLogger(t)); err != nil {
		t.Fatalf("SeedAll() error = %v", err)
	}

	page, err := pagestore.New(db).GetBySlug(ctx, "home")
	if err != nil {
		t.Fatalf("GetBySlug() error = %v", err)
	}
	if page.IsPublished {
		t.Error("seeded home page should be unpublished")
	}
	if len(page.Sections) != 1 || page.Sections[0].Type != models.SectionContent {
		t.Errorf("sections = %+v", page.Sections)
	}
}

func TestSeedAll_LeavesExistingPage(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	store := pagestore.New(db)
	if _, err := store.Create(ctx, "Landing", "home"); err != nil {
		t.Fatal(err)
	}
	for range 2 {
		if err := SeedAll(ctx, db, "home", zaptest.NewLogger(t)); err != nil {
			t.Fatalf("SeedAll() error = %v", err)
		}
	}

	page, err := store.GetBySlug(ctx, "home")
	if err != nil {
		t.Fatal(err)
	}
	if page.Title != "Landing" || len(page.Sections) != 0 {
		t.Errorf("existing page changed: %+v", page)
	}
}

func TestSeedAll_NoSlug(t *testing.T) {
	if err := SeedAll(t.Context(), nil, "", zaptest.NewLogger(t)); err != nil {
		t.Errorf("SeedAll() with empty slug = %v", err)
	}
}
