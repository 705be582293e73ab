// internal/app/store/ratelimit/store.go
package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/stratapage/internal/app/store/storeutil"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection holds one counter per client key.
const Collection = "upload_rate_limits"

// Attempt tracks failed credential checks for one client.
type Attempt struct {
	Key          string     `bson:"_id"`
	AttemptCount int        `bson:"attempt_count"` // Failures in the current window
	WindowStart  time.Time  `bson:"window_start"`  // When the current counting window started
	LockedUntil  *time.Time `bson:"locked_until"`  // Lockout expiry (nil if not locked)
	LastAttempt  time.Time  `bson:"last_attempt"`  // Most recent failure (TTL field)
}

// Config sets the limiter thresholds.
type Config struct {
	MaxFailures int
	Window      time.Duration
	Lockout     time.Duration
}

// DefaultConfig allows ten failures in fifteen minutes.
func DefaultConfig() Config {
	return Config{MaxFailures: 10, Window: 15 * time.Minute, Lockout: 15 * time.Minute}
}

// Decision is the outcome of a check.
type Decision struct {
	Allowed     bool
	Remaining   int        // failures left before lockout
	LockedUntil *time.Time // set while locked
}

// Store counts failed upload credential checks per client key (normally
// the client IP). Keys are opaque.
type Store struct {
	c   *mongo.Collection
	cfg Config
	now func() time.Time
}

// New creates a Store. Zero Config fields take DefaultConfig values.
func New(db *mongo.Database, cfg Config) *Store {
	def := DefaultConfig()
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = def.MaxFailures
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.Lockout <= 0 {
		cfg.Lockout = def.Lockout
	}
	return &Store{c: db.Collection(Collection), cfg: cfg, now: time.Now}
}

// Check reports whether key may try again.
func (s *Store) Check(ctx context.Context, key string) (Decision, error) {
	var a Attempt
	err := s.c.FindOne(ctx, bson.M{"_id": key}).Decode(&a)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Decision{Allowed: true, Remaining: s.cfg.MaxFailures}, nil
	}
	if err != nil {
		return Decision{}, storeutil.Classify("check rate limit", err)
	}
	return s.decide(a), nil
}

func (s *Store) decide(a Attempt) Decision {
	now := s.now()
	if a.LockedUntil != nil && now.Before(*a.LockedUntil) {
		return Decision{Allowed: false, LockedUntil: a.LockedUntil}
	}
	if now.After(a.WindowStart.Add(s.cfg.Window)) {
		return Decision{Allowed: true, Remaining: s.cfg.MaxFailures}
	}
	remaining := s.cfg.MaxFailures - a.AttemptCount
	if remaining <= 0 {
		return Decision{Allowed: false}
	}
	return Decision{Allowed: true, Remaining: remaining}
}

// RecordFailure counts a failure for key and locks it out once the limit
// is reached inside the window.
func (s *Store) RecordFailure(ctx context.Context, key string) (Decision, error) {
	now := s.now()

	// Count inside a live window.
	var a Attempt
	err := s.c.FindOneAndUpdate(ctx,
		bson.M{"_id": key, "window_start": bson.M{"$gt": now.Add(-s.cfg.Window)}},
		bson.M{"$inc": bson.M{"attempt_count": 1}, "$set": bson.M{"last_attempt": now}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&a)

	if errors.Is(err, mongo.ErrNoDocuments) {
		// No record, or its window expired: start a new one.
		a = Attempt{Key: key, AttemptCount: 1, WindowStart: now, LastAttempt: now}
		_, err = s.c.ReplaceOne(ctx, bson.M{"_id": key}, a, options.Replace().SetUpsert(true))
		if wafflemongo.IsDup(err) {
			// A concurrent failure created it first; count on top of it.
			return s.RecordFailure(ctx, key)
		}
	}
	if err != nil {
		return Decision{}, storeutil.Classify("record rate limit failure", err)
	}

	if a.AttemptCount >= s.cfg.MaxFailures && (a.LockedUntil == nil || !now.Before(*a.LockedUntil)) {
		until := now.Add(s.cfg.Lockout)
		if _, err := s.c.UpdateOne(ctx, bson.M{"_id": key}, bson.M{"$set": bson.M{"locked_until": until}}); err != nil {
			return Decision{}, storeutil.Classify("lock rate limit", err)
		}
		a.LockedUntil = &until
	}
	return s.decide(a), nil
}

// Clear forgets key, after a successful upload.
func (s *Store) Clear(ctx context.Context, key string) error {
	_, err := s.c.DeleteOne(ctx, bson.M{"_id": key})
	return storeutil.Classify("clear rate limit", err)
}
