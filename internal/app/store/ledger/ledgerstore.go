// Package ledgerstore persists the admin API request ledger: one entry per
// failed admin call, kept for a limited time so integration problems can be
// traced after the fact.
package ledgerstore

import (
	"context"
	"strings"
	"time"

	"github.com/dalemusser/stratapage/internal/app/store/storeutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection is the ledger's collection name.
const Collection = "request_ledger"

// Retention is how long entries live before the TTL index removes them.
const Retention = 30 * 24 * time.Hour

// Entry is one recorded request.
type Entry struct {
	ID primitive.ObjectID `bson:"_id,omitempty" json:"id"`

	RequestID       string `bson:"request_id" json:"requestId"`
	ClientRequestID string `bson:"client_request_id,omitempty" json:"clientRequestId,omitempty"` // X-Request-ID sent by the caller

	Method   string            `bson:"method" json:"method"`
	Path     string            `bson:"path" json:"path"`
	Query    string            `bson:"query,omitempty" json:"query,omitempty"`
	Headers  map[string]string `bson:"headers,omitempty" json:"headers,omitempty"`
	RemoteIP string            `bson:"remote_ip" json:"remoteIp"`

	BodySize    int64  `bson:"body_size" json:"bodySize"`
	BodyHash    string `bson:"body_hash,omitempty" json:"bodyHash,omitempty"`       // first 8 hex chars of SHA-256
	BodyPreview string `bson:"body_preview,omitempty" json:"bodyPreview,omitempty"` // truncated

	Status       int    `bson:"status" json:"status"`
	ResponseSize int64  `bson:"response_size" json:"responseSize"`
	ErrorKind    string `bson:"error_kind,omitempty" json:"errorKind,omitempty"`

	DurationMs float64   `bson:"duration_ms" json:"durationMs"`
	CreatedAt  time.Time `bson:"created_at" json:"createdAt"`
}

// Store provides ledger persistence.
type Store struct {
	c *mongo.Collection
}

// New creates a new ledger store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection(Collection)}
}

// Create inserts e, assigning an id and timestamp when missing.
func (s *Store) Create(ctx context.Context, e Entry) error {
	if e.ID.IsZero() {
		e.ID = primitive.NewObjectID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.c.InsertOne(ctx, e)
	return storeutil.Classify("record ledger entry", err)
}

// GetByRequestID returns the entry for a request id.
func (s *Store) GetByRequestID(ctx context.Context, requestID string) (Entry, error) {
	var e Entry
	err := s.c.FindOne(ctx, bson.M{"request_id": requestID}).Decode(&e)
	return e, storeutil.Classify("get ledger entry", err)
}

// Filter narrows Recent. Zero fields match everything.
type Filter struct {
	PathPrefix string
	ErrorKind  string
	MinStatus  int
	Limit      int64
}

// DefaultLimit bounds Recent when Filter.Limit is unset.
const DefaultLimit = 50

// Recent returns matching entries, newest first.
func (s *Store) Recent(ctx context.Context, f Filter) ([]Entry, error) {
	q := bson.M{}
	if f.PathPrefix != "" {
		q["path"] = bson.M{"$regex": "^" + regexQuote(f.PathPrefix)}
	}
	if f.ErrorKind != "" {
		q["error_kind"] = f.ErrorKind
	}
	if f.MinStatus > 0 {
		q["status"] = bson.M{"$gte": f.MinStatus}
	}
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(limit)

	cur, err := s.c.Find(ctx, q, opts)
	if err != nil {
		return nil, storeutil.Classify("list ledger entries", err)
	}
	defer cur.Close(ctx)

	out := make([]Entry, 0, limit)
	if err := cur.All(ctx, &out); err != nil {
		return nil, storeutil.Classify("decode ledger entries", err)
	}
	return out, nil
}

// DeleteOlderThan removes entries created before cutoff. The TTL index does
// this on its own; this is for stores without TTL support.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{"created_at": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, storeutil.Classify("prune ledger", err)
	}
	return res.DeletedCount, nil
}

var regexSpecial = strings.NewReplacer(
	`\`, `\\`, `.`, `\.`, `+`, `\+`, `*`, `\*`, `?`, `\?`, `(`, `\(`, `)`, `\)`,
	`[`, `\[`, `]`, `\]`, `{`, `\{`, `}`, `\}`, `^`, `\^`, `$`, `\$`, `|`, `\|`,
)

func regexQuote(s string) string { return regexSpecial.Replace(s) }
