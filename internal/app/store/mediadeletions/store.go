// internal/app/store/mediadeletions/store.go
package mediadeletions

import (
	"context"
	"time"

	"github.com/dalemusser/stratapage/internal/app/store/storeutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Pending is a media blob whose deletion failed and is waiting for a retry.
type Pending struct {
	ID            primitive.ObjectID `bson:"_id,omitempty"`
	FileID        string             `bson:"file_id"`         // Media store handle
	Attempts      int                `bson:"attempts"`        // Retries made so far
	LastError     string             `bson:"last_error"`      // Most recent failure
	NextAttemptAt time.Time          `bson:"next_attempt_at"` // Not retried before this time
	CreatedAt     time.Time          `bson:"created_at"`
	UpdatedAt     time.Time          `bson:"updated_at"`
}

// Store tracks media deletions to retry.
type Store struct {
	c *mongo.Collection
}

// New creates a new media deletion store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("media_deletions")}
}

// Enqueue records that deleting fileID failed with cause. Enqueueing a file
// that is already pending refreshes its error and makes it due now without
// resetting its attempt count.
func (s *Store) Enqueue(ctx context.Context, fileID string, cause error) error {
	now := time.Now().UTC()
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	update := bson.M{
		"$set": bson.M{
			"last_error":      msg,
			"next_attempt_at": now,
			"updated_at":      now,
		},
		"$setOnInsert": bson.M{
			"_id":        primitive.NewObjectID(),
			"file_id":    fileID,
			"attempts":   0,
			"created_at": now,
		},
	}
	_, err := s.c.UpdateOne(ctx, bson.M{"file_id": fileID}, update, options.Update().SetUpsert(true))
	return storeutil.Classify("enqueue media deletion", err)
}

// Due returns up to limit pending deletions whose next attempt is at or
// before now, oldest due first.
func (s *Store) Due(ctx context.Context, now time.Time, limit int64) ([]Pending, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "next_attempt_at", Value: 1}, {Key: "_id", Value: 1}}).
		SetLimit(limit)
	cur, err := s.c.Find(ctx, bson.M{"next_attempt_at": bson.M{"$lte": now}}, opts)
	if err != nil {
		return nil, storeutil.Classify("list due media deletions", err)
	}
	defer cur.Close(ctx)

	var out []Pending
	if err := cur.All(ctx, &out); err != nil {
		return nil, storeutil.Classify("list due media deletions", err)
	}
	return out, nil
}

// MarkFailed counts a failed retry and schedules the next one.
func (s *Store) MarkFailed(ctx context.Context, id primitive.ObjectID, cause error, next time.Time) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	_, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$inc": bson.M{"attempts": 1},
		"$set": bson.M{
			"last_error":      msg,
			"next_attempt_at": next.UTC(),
			"updated_at":      time.Now().UTC(),
		},
	})
	return storeutil.Classify("mark media deletion failed", err)
}

// Remove drops a pending deletion, after it succeeded or was abandoned.
func (s *Store) Remove(ctx context.Context, id primitive.ObjectID) error {
	_, err := s.c.DeleteOne(ctx, bson.M{"_id": id})
	return storeutil.Classify("remove media deletion", err)
}

// Count returns the number of pending deletions.
func (s *Store) Count(ctx context.Context) (int64, error) {
	n, err := s.c.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, storeutil.Classify("count media deletions", err)
	}
	return n, nil
}
