// internal/app/system/validators/validators.go
package validators

import (
	"context"
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// SlugPattern is the server-side mirror of the application's slug rule.
const SlugPattern = `^[a-z0-9]+(-[a-z0-9]+)*$`

// EnsureAll creates collections (if missing) and tries to attach JSON-Schema
// validators. On servers that don't support collMod/validators (e.g. some
// DocumentDB versions), we log and skip gracefully.
func EnsureAll(ctx context.Context, db *mongo.Database) error {
	var problems []string

	for _, c := range []struct {
		name   string
		schema bson.M
	}{
		{"pages", pagesSchema()},
		{"media_deletions", mediaDeletionsSchema()},
	} {
		if err := ensure(ctx, db, c.name, c.schema); err != nil {
			problems = append(problems, c.name+": "+err.Error())
		}
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// ensure makes sure the collection exists, then attaches schema if given.
func ensure(ctx context.Context, db *mongo.Database, coll string, schema bson.M) error {
	if _, err := ensureCollection(ctx, db, coll); err != nil {
		return err
	}
	if schema == nil {
		return nil
	}
	if err := setValidator(ctx, db, coll, schema); err != nil {
		if isUnsupported(err) {
			zap.L().Info("validator skipped (unsupported)", zap.String("collection", coll))
			return nil
		}
		return err
	}
	return nil
}

/* ---------------------- collection helpers & logging ---------------------- */

// collectionExists returns true when <name> already exists.
func collectionExists(ctx context.Context, db *mongo.Database, name string) (bool, error) {
	names, err := db.ListCollectionNames(ctx, bson.M{"name": name})
	if err != nil {
		return false, err
	}
	return len(names) > 0, nil
}

// ensureCollection idempotently makes sure <name> exists.
// Returns created==true only if we actually created it.
func ensureCollection(ctx context.Context, db *mongo.Database, name string) (created bool, err error) {
	exists, listErr := collectionExists(ctx, db, name)
	if listErr == nil && exists {
		zap.L().Debug("collection exists", zap.String("collection", name))
		return false, nil
	}
	// If listing failed, fall back to create-and-handle-race.
	if err := db.CreateCollection(ctx, name); err != nil {
		if commandErrorIs(err, []int32{48}, "already exists", "namespace exists") {
			return false, nil
		}
		zap.L().Warn("createCollection failed", zap.String("collection", name), zap.Error(err))
		return false, err
	}
	zap.L().Info("created collection", zap.String("collection", name))
	return true, nil
}

/* ------------------------------ validators ------------------------------- */

func setValidator(ctx context.Context, db *mongo.Database, name string, validator bson.M) error {
	cmd := bson.D{
		{Key: "collMod", Value: name},
		{Key: "validator", Value: validator},
		{Key: "validationLevel", Value: "moderate"},
		{Key: "validationAction", Value: "error"},
	}
	var out bson.M
	if err := db.RunCommand(ctx, cmd).Decode(&out); err != nil {
		return err
	}
	zap.L().Info("validator ensured", zap.String("collection", name))
	return nil
}

/* ------------------------- error helpers ------------------------- */

// isUnsupported matches "no such command" (59) and "not implemented" (115)
// responses from servers without collMod validator support.
func isUnsupported(err error) bool {
	return commandErrorIs(err, []int32{59, 115}, "no such command", "not implemented", "not supported")
}

// commandErrorIs reports whether err is a command error with one of codes,
// or whose message contains one of the fragments.
func commandErrorIs(err error, codes []int32, fragments ...string) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) {
		for _, c := range codes {
			if ce.Code == c {
				return true
			}
		}
	}
	s := strings.ToLower(err.Error())
	for _, f := range fragments {
		if strings.Contains(s, f) {
			return true
		}
	}
	return false
}

/* ------------------------- JSON-Schema docs ---------------------- */

func pagesSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"title", "slug", "sections", "is_published"},
			"properties": bson.M{
				"title":        bson.M{"bsonType": "string", "minLength": 1, "pattern": ".*\\S.*"},
				"slug":         bson.M{"bsonType": "string", "minLength": 1, "pattern": SlugPattern},
				"is_published": bson.M{"bsonType": "bool"},
				"sections": bson.M{
					"bsonType": "array",
					"items": bson.M{
						"bsonType": "object",
						"required": bson.A{"id", "type", "order"},
						"properties": bson.M{
							"id":    bson.M{"bsonType": "string", "minLength": 1},
							"type":  bson.M{"bsonType": "string", "minLength": 1},
							"order": bson.M{"bsonType": bson.A{"int", "long"}, "minimum": 0},
							"data":  bson.M{"bsonType": "object"},
						},
					},
				},
			},
		},
	}
}

func mediaDeletionsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"file_id", "attempts", "next_attempt_at"},
			"properties": bson.M{
				"file_id":         bson.M{"bsonType": "string", "minLength": 1},
				"attempts":        bson.M{"bsonType": bson.A{"int", "long"}, "minimum": 0},
				"next_attempt_at": bson.M{"bsonType": "date"},
				"last_error":      bson.M{"bsonType": "string"},
			},
		},
	}
}
