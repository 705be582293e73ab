package tasks

import (
	"context"
	"time"

	"github.com/dalemusser/stratapage/internal/app/editor"
	"github.com/dalemusser/stratapage/internal/app/system/media"
	"github.com/dalemusser/stratapage/internal/app/system/pagecache"
	"github.com/dalemusser/stratapage/internal/app/system/timeouts"
	"go.uber.org/zap"
)

// Job names.
const (
	MediaDeleteRetry = "media-delete-retry"
	EditorReap       = "editor-session-reap"
	CacheSweep       = "page-cache-sweep"
)

// MediaDeleteRetryJob retries media deletions that failed when a page was
// deleted or its media replaced.
func MediaDeleteRetryJob(svc *media.Service, queue media.PendingQueue, interval time.Duration, logger *zap.Logger) Job {
	return Job{
		Name:     MediaDeleteRetry,
		Interval: interval,
		Timeout:  timeouts.Job(),
		Run: func(ctx context.Context) error {
			stats, err := svc.RetryDeletes(ctx, queue)
			if stats != (media.RetryStats{}) {
				logger.Info("retried queued media deletions",
					zap.Int("deleted", stats.Deleted),
					zap.Int("failed", stats.Failed),
					zap.Int("abandoned", stats.Abandoned))
			}
			return err
		},
	}
}

// EditorReapJob closes editor sessions idle for longer than idle. Their
// uncommitted edits are discarded.
func EditorReapJob(reg *editor.Registry, idle time.Duration) Job {
	interval := idle / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	return Job{
		Name:     EditorReap,
		Interval: interval,
		Timeout:  timeouts.Job(),
		Run:      reg.ReapJob(idle),
	}
}

// CacheSweepJob drops expired entries from an in-process page cache so
// pages nobody reads again do not pin memory.
func CacheSweepJob(cache *pagecache.Memory, interval time.Duration, logger *zap.Logger) Job {
	return Job{
		Name:     CacheSweep,
		Interval: interval,
		Run: func(context.Context) error {
			if n := cache.Sweep(); n > 0 {
				logger.Debug("swept page cache", zap.Int("expired", n))
			}
			return nil
		},
	}
}
