package validators

import (
	"errors"
	"testing"
	"time"

	"github.com/dalemusser/stratapage/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestEnsureAll(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll() error = %v", err)
	}

	for _, coll := range []string{"pages", "media_deletions"} {
		exists, err := collectionExists(ctx, db, coll)
		if err != nil {
			t.Errorf("collectionExists(%s) error = %v", coll, err)
			continue
		}
		if !exists {
			t.Errorf("collection %s should exist after EnsureAll", coll)
		}
	}
}

func TestEnsureAll_Idempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := EnsureAll(ctx, db); err != nil {
		t.Fatalf("First EnsureAll() error = %v", err)
	}
	if err := EnsureAll(ctx, db); err != nil {
		t.Fatalf("Second EnsureAll() error = %v", err)
	}
}

func TestPagesSchema_RejectsBadDocuments(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll() error = %v", err)
	}
	c := db.Collection("pages")

	good := bson.M{"title": "About", "slug": "about", "sections": bson.A{}, "is_published": false}
	if _, err := c.InsertOne(ctx, good); err != nil {
		t.Fatalf("valid page rejected: %v", err)
	}

	bad := []bson.M{
		{"title": "   ", "slug": "blank-title", "sections": bson.A{}, "is_published": false},
		{"title": "Bad", "slug": "Not A Slug", "sections": bson.A{}, "is_published": false},
		{"title": "No sections", "slug": "no-sections", "is_published": false},
		{"title": "Bad order", "slug": "bad-order", "is_published": false, "sections": bson.A{
			bson.M{"id": "s1", "type": "content-section", "order": -1},
		}},
	}
	for _, doc := range bad {
		if _, err := c.InsertOne(ctx, doc); err == nil {
			t.Errorf("InsertOne(%v) succeeded, want schema rejection", doc["slug"])
		}
	}
}

func TestMediaDeletionsSchema(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll() error = %v", err)
	}
	c := db.Collection("media_deletions")

	if _, err := c.InsertOne(ctx, bson.M{"file_id": "media/a.png", "attempts": 0, "next_attempt_at": time.Now()}); err != nil {
		t.Fatalf("valid record rejected: %v", err)
	}
	if _, err := c.InsertOne(ctx, bson.M{"attempts": 0, "next_attempt_at": time.Now()}); err == nil {
		t.Error("record without file_id accepted")
	}
}

func TestCollectionExists(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	exists, err := collectionExists(ctx, db, "nonexistent_collection")
	if err != nil {
		t.Fatalf("collectionExists() error = %v", err)
	}
	if exists {
		t.Error("collectionExists() should return false for nonexistent collection")
	}

	if err := db.CreateCollection(ctx, "test_collection"); err != nil {
		t.Fatalf("CreateCollection() error = %v", err)
	}

	exists, err = collectionExists(ctx, db, "test_collection")
	if err != nil {
		t.Fatalf("collectionExists() error = %v", err)
	}
	if !exists {
		t.Error("collectionExists() should return true for existing collection")
	}
}

func TestCommandErrorIs(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"code match", mongo.CommandError{Code: 48, Message: "x"}, true},
		{"message match", errors.New("Collection already exists. NS: db.pages"), true},
		{"no match", mongo.CommandError{Code: 2, Message: "bad value"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := commandErrorIs(tt.err, []int32{48}, "already exists"); got != tt.want {
				t.Errorf("commandErrorIs(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}

	if !isUnsupported(mongo.CommandError{Code: 59}) {
		t.Error("isUnsupported(code 59) = false")
	}
}
