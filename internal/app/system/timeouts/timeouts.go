// Package timeouts holds the process-wide deadlines for work that runs
// outside a request's own deadline: dependency probes, background writes
// and scheduled jobs.
package timeouts

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Defaults used until Configure is called.
const (
	DefaultProbe      = 3 * time.Second
	DefaultBackground = 5 * time.Second
	DefaultJob        = 2 * time.Minute
)

var (
	mu         sync.RWMutex
	probe      = DefaultProbe
	background = DefaultBackground
	job        = DefaultJob
)

// Config holds timeout values. Zero fields keep the current value.
type Config struct {
	Probe      time.Duration
	Background time.Duration
	Job        time.Duration
}

// Probe bounds health and status checks against Mongo and the page cache.
func Probe() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return probe
}

// Background bounds fire-and-forget writes such as ledger entries.
func Background() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return background
}

// Job bounds a single run of a scheduled job.
func Job() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return job
}

// Configure overrides the positive values in cfg.
func Configure(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	if cfg.Probe > 0 {
		probe = cfg.Probe
	}
	if cfg.Background > 0 {
		background = cfg.Background
	}
	if cfg.Job > 0 {
		job = cfg.Job
	}
}

// Reset restores the defaults.
func Reset() {
	Configure(Config{Probe: DefaultProbe, Background: DefaultBackground, Job: DefaultJob})
}

// Current returns the values in effect.
func Current() Config {
	mu.RLock()
	defer mu.RUnlock()
	return Config{Probe: probe, Background: background, Job: job}
}

// WithTimeout is context.WithTimeout that logs when the deadline, rather
// than the caller, ended the operation.
func WithTimeout(parent context.Context, d time.Duration, logger *zap.Logger, operation string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(parent, d)
	return ctx, func() {
		if ctx.Err() == context.DeadlineExceeded && logger != nil {
			logger.Warn("operation timed out",
				zap.String("operation", operation),
				zap.Duration("timeout", d))
		}
		cancel()
	}
}
