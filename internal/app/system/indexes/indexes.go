// internal/app/system/indexes/indexes.go
package indexes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

/*
EnsureAll is called at startup. Each ensure* function is idempotent.
We aggregate errors so any problem is visible and startup can fail fast.
*/
func EnsureAll(ctx context.Context, db *mongo.Database) error {
	var problems []string

	if err := ensurePages(ctx, db); err != nil {
		problems = append(problems, "pages: "+err.Error())
	}
	if err := ensureMediaDeletions(ctx, db); err != nil {
		problems = append(problems, "media_deletions: "+err.Error())
	}
	if err := ensureRequestLedger(ctx, db); err != nil {
		problems = append(problems, "request_ledger: "+err.Error())
	}
	if err := ensureUploadRateLimits(ctx, db); err != nil {
		problems = append(problems, "upload_rate_limits: "+err.Error())
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

/* -------------------------------------------------------------------------- */
/* Core helper: reconcile a set of desired indexes for one collection         */
/* -------------------------------------------------------------------------- */

type existingIndex struct {
	Name   string `bson:"name"`
	Key    bson.D `bson:"key"`
	Unique *bool  `bson:"unique,omitempty"`
}

func (ix existingIndex) unique() bool {
	return ix.Unique != nil && *ix.Unique
}

// desiredIndex is the part of an IndexModel the reconciler compares.
type desiredIndex struct {
	name   string
	sig    string
	unique bool
}

func describe(m mongo.IndexModel) desiredIndex {
	d := desiredIndex{sig: keySig(m.Keys.(bson.D))}
	if m.Options != nil {
		if m.Options.Name != nil {
			d.name = *m.Options.Name
		}
		d.unique = m.Options.Unique != nil && *m.Options.Unique
	}
	return d
}

func keySig(keys bson.D) string {
	parts := make([]string, 0, len(keys))
	for _, kv := range keys {
		parts = append(parts, fmt.Sprintf("%s:%v", kv.Key, kv.Value))
	}
	return strings.Join(parts, ", ")
}

// isDuplicateKeyErr works across Mongo-compatible vendors.
func isDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	if mongo.IsDuplicateKeyError(err) {
		return true
	}
	s := err.Error()
	return strings.Contains(s, "E11000") || strings.Contains(strings.ToLower(s), "duplicate key")
}

// listExisting maps key signature to index for coll. A listing failure is
// logged and treated as "no indexes"; CreateOne will then surface any real
// problem.
func listExisting(ctx context.Context, coll *mongo.Collection) map[string]existingIndex {
	existing := map[string]existingIndex{}
	cur, err := coll.Indexes().List(ctx)
	if err != nil {
		zap.L().Warn("list indexes failed",
			zap.String("collection", coll.Name()),
			zap.Error(err))
		return existing
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var idx existingIndex
		if err := cur.Decode(&idx); err != nil {
			zap.L().Warn("failed to decode existing index",
				zap.String("collection", coll.Name()),
				zap.Error(err))
			continue
		}
		existing[keySig(idx.Key)] = idx
	}
	return existing
}

func ensureIndexSet(ctx context.Context, coll *mongo.Collection, models []mongo.IndexModel) error {
	var errs []string
	existing := listExisting(ctx, coll)

	for _, m := range models {
		want := describe(m)
		start := time.Now()
		log := zap.L().With(
			zap.String("collection", coll.Name()),
			zap.String("name", want.name),
			zap.String("keys", want.sig),
			zap.Bool("unique", want.unique))

		if ex, ok := existing[want.sig]; ok {
			if ex.unique() == want.unique {
				log.Debug("reusing existing index", zap.String("existing_name", ex.Name))
				continue
			}
			// Uniqueness changed: the index has to be rebuilt.
			if _, err := coll.Indexes().DropOne(ctx, ex.Name); err != nil {
				log.Warn("drop existing index failed", zap.Error(err))
				errs = append(errs, fmt.Sprintf("%s(%s): drop failed: %v", coll.Name(), want.name, err))
				continue
			}
		}

		created, err := coll.Indexes().CreateOne(ctx, m)
		if err != nil {
			log.Warn("index ensure failed", zap.Duration("took", time.Since(start)), zap.Error(err))
			if want.unique && isDuplicateKeyErr(err) {
				errs = append(errs, fmt.Sprintf("%s(%s): cannot create unique index (duplicates present)", coll.Name(), want.name))
			} else {
				errs = append(errs, fmt.Sprintf("%s(%s): %v", coll.Name(), want.name, err))
			}
			continue
		}
		log.Info("index ensured", zap.String("created_name", created), zap.Duration("took", time.Since(start)))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

/* -------------------------------------------------------------------------- */
/* Collection-specific index sets                                              */
/* -------------------------------------------------------------------------- */

func ensurePages(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("pages")
	return ensureIndexSet(ctx, c, []mongo.IndexModel{
		// Unique slug: the only guard against two pages sharing a public URL
		{
			Keys: bson.D{
				{Key: "slug", Value: 1},
			},
			Options: options.Index().
				SetUnique(true).
				SetName("uniq_pages_slug"),
		},

		// Catalog listing: newest first
		{
			Keys: bson.D{
				{Key: "created_at", Value: -1},
				{Key: "_id", Value: -1},
			},
			Options: options.Index().SetName("idx_pages_createdat_id"),
		},
	})
}

func ensureMediaDeletions(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("media_deletions")
	return ensureIndexSet(ctx, c, []mongo.IndexModel{
		// One pending record per blob
		{
			Keys: bson.D{
				{Key: "file_id", Value: 1},
			},
			Options: options.Index().
				SetUnique(true).
				SetName("uniq_media_deletions_fileid"),
		},

		// Retry sweep: due records first
		{
			Keys: bson.D{
				{Key: "next_attempt_at", Value: 1},
				{Key: "_id", Value: 1},
			},
			Options: options.Index().SetName("idx_media_deletions_next_id"),
		},
	})
}

func ensureRequestLedger(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("request_ledger")
	return ensureIndexSet(ctx, c, []mongo.IndexModel{
		// Expire entries after 30 days
		{
			Keys: bson.D{
				{Key: "created_at", Value: 1},
			},
			Options: options.Index().
				SetExpireAfterSeconds(int32((30 * 24 * time.Hour).Seconds())).
				SetName("ttl_request_ledger_createdat"),
		},

		// Lookup by request id from the X-Request-ID response header
		{
			Keys: bson.D{
				{Key: "request_id", Value: 1},
			},
			Options: options.Index().SetName("idx_request_ledger_requestid"),
		},
	})
}

func ensureUploadRateLimits(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("upload_rate_limits")
	return ensureIndexSet(ctx, c, []mongo.IndexModel{
		// Forget clients a day after their last failure
		{
			Keys: bson.D{
				{Key: "last_attempt", Value: 1},
			},
			Options: options.Index().
				SetExpireAfterSeconds(int32((24 * time.Hour).Seconds())).
				SetName("ttl_upload_rate_limits_lastattempt"),
		},
	})
}
