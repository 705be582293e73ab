package media

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/stratapage/internal/app/store/mediadeletions"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Retry policy for queued deletions.
const (
	MaxDeleteAttempts = 8
	retryBatch        = 50
	retryBaseDelay    = time.Minute
	retryMaxDelay     = 6 * time.Hour
)

// PendingQueue is the media deletion queue as the retry pass sees it.
type PendingQueue interface {
	Due(ctx context.Context, now time.Time, limit int64) ([]mediadeletions.Pending, error)
	MarkFailed(ctx context.Context, id primitive.ObjectID, cause error, next time.Time) error
	Remove(ctx context.Context, id primitive.ObjectID) error
}

// RetryStats summarizes one retry pass.
type RetryStats struct {
	Deleted   int
	Failed    int
	Abandoned int
}

// RetryDeletes retries queued deletions that are due. Successes leave the
// queue; failures back off exponentially; a deletion that has failed
// MaxDeleteAttempts times is dropped with an error log so the orphan can be
// cleaned by hand.
func (s *Service) RetryDeletes(ctx context.Context, q PendingQueue) (RetryStats, error) {
	var stats RetryStats
	now := s.now()
	due, err := q.Due(ctx, now, retryBatch)
	if err != nil {
		return stats, err
	}

	var errs []error
	for _, p := range due {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		delErr := s.Delete(ctx, p.FileID)
		switch {
		case delErr == nil:
			stats.Deleted++
			errs = append(errs, q.Remove(ctx, p.ID))
		case p.Attempts+1 >= MaxDeleteAttempts:
			stats.Abandoned++
			s.logger.Error("giving up on media delete; blob is orphaned",
				zap.String("file_id", p.FileID),
				zap.Int("attempts", p.Attempts+1),
				zap.Error(delErr))
			errs = append(errs, q.Remove(ctx, p.ID))
		default:
			stats.Failed++
			errs = append(errs, q.MarkFailed(ctx, p.ID, delErr, now.Add(RetryDelay(p.Attempts+1))))
		}
	}
	return stats, errors.Join(errs...)
}

// RetryDelay is the wait after the given number of failed attempts.
func RetryDelay(attempts int) time.Duration {
	d := retryBaseDelay
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= retryMaxDelay {
			return retryMaxDelay
		}
	}
	return d
}
