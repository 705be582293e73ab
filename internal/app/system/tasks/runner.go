// Package tasks runs the service's periodic background work: retrying media
// deletions that failed inline and closing idle editor sessions.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ErrUnknownJob is returned by RunOnce for a name that was never registered.
var ErrUnknownJob = errors.New("unknown job")

// Job is a task run once at start and then every Interval.
type Job struct {
	Name     string
	Interval time.Duration
	// Timeout bounds a single run. Zero means the run is bounded only by
	// runner shutdown.
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

// JobStatus summarizes a job's runs so far.
type JobStatus struct {
	Name       string        `json:"name"`
	Interval   time.Duration `json:"interval"`
	Running    bool          `json:"running"`
	Runs       int           `json:"runs"`
	Failures   int           `json:"failures"`
	LastRun    time.Time     `json:"lastRun,omitzero"`
	LastTook   time.Duration `json:"lastTook"`
	LastError  string        `json:"lastError,omitempty"`
	LastFailed time.Time     `json:"lastFailed,omitzero"`
}

// Runner executes registered jobs on their intervals until stopped.
type Runner struct {
	logger  *zap.Logger
	jobs    []Job
	wg      sync.WaitGroup
	cancel  context.CancelFunc
	running atomic.Int32
	active  sync.Map // job name -> struct{}

	mu      sync.Mutex
	history map[string]JobStatus
}

// New creates a runner with no jobs.
func New(logger *zap.Logger) *Runner {
	return &Runner{logger: logger, history: make(map[string]JobStatus)}
}

// Register adds a job. Jobs must be registered before Start. A job with
// no positive interval is skipped with a warning.
func (r *Runner) Register(job Job) {
	if job.Interval <= 0 {
		r.logger.Warn("background job disabled: interval must be positive",
			zap.String("job", job.Name), zap.Duration("interval", job.Interval))
		return
	}
	r.jobs = append(r.jobs, job)
}

// Jobs returns the names of the registered jobs in registration order.
func (r *Runner) Jobs() []string {
	names := make([]string, len(r.jobs))
	for i, j := range r.jobs {
		names[i] = j.Name
	}
	return names
}

// Start launches one goroutine per job.
func (r *Runner) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	for _, job := range r.jobs {
		r.wg.Add(1)
		go r.loop(ctx, job)
	}

	r.logger.Info("background task runner started",
		zap.Strings("jobs", r.Jobs()))
}

// Stop cancels every job and waits for in-flight runs to return. If ctx ends
// first, Stop logs the jobs still running and returns ctx.Err().
func (r *Runner) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("background task runner stopped")
		return nil
	case <-ctx.Done():
		var still []string
		r.active.Range(func(key, _ any) bool {
			still = append(still, key.(string))
			return true
		})
		r.logger.Warn("background task runner shutdown timed out",
			zap.Strings("jobs_still_running", still),
			zap.Int32("running_count", r.running.Load()))
		return ctx.Err()
	}
}

func (r *Runner) loop(ctx context.Context, job Job) {
	defer r.wg.Done()

	r.execute(ctx, job)

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Debug("job stopped", zap.String("job", job.Name))
			return
		case <-ticker.C:
			r.execute(ctx, job)
		}
	}
}

func (r *Runner) execute(ctx context.Context, job Job) {
	r.running.Add(1)
	r.active.Store(job.Name, struct{}{})
	defer func() {
		r.running.Add(-1)
		r.active.Delete(job.Name)
	}()

	start := time.Now()
	err := run(ctx, job)
	r.record(job, start, err)
	switch {
	case err == nil:
		r.logger.Debug("job completed",
			zap.String("job", job.Name),
			zap.Duration("duration", time.Since(start)))
	case ctx.Err() != nil:
		// Shutdown, not a failure.
		r.logger.Debug("job cancelled during shutdown",
			zap.String("job", job.Name),
			zap.Duration("duration", time.Since(start)))
	default:
		r.logger.Error("job failed",
			zap.String("job", job.Name),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
	}
}

func run(ctx context.Context, job Job) error {
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}
	return job.Run(ctx)
}

// RunOnce runs the named job immediately, outside its schedule.
func (r *Runner) RunOnce(ctx context.Context, name string) error {
	for _, job := range r.jobs {
		if job.Name == name {
			start := time.Now()
			err := run(ctx, job)
			r.record(job, start, err)
			return err
		}
	}
	return fmt.Errorf("run %q: %w", name, ErrUnknownJob)
}

func (r *Runner) record(job Job, start time.Time, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.history[job.Name]
	st.Runs++
	st.LastRun = start
	st.LastTook = time.Since(start)
	if err != nil {
		st.Failures++
		st.LastError = err.Error()
		st.LastFailed = start
	}
	r.history[job.Name] = st
}

// Status reports every registered job in registration order.
func (r *Runner) Status() []JobStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]JobStatus, len(r.jobs))
	for i, job := range r.jobs {
		st := r.history[job.Name]
		st.Name = job.Name
		st.Interval = job.Interval
		_, st.Running = r.active.Load(job.Name)
		out[i] = st
	}
	return out
}
