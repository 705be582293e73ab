package editor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dalemusser/stratapage/internal/app/system/apperr"
	"github.com/dalemusser/stratapage/internal/app/system/invalidate"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrSessionNotFound is returned for an unknown or reaped session id.
var ErrSessionNotFound = fmt.Errorf("editor: session %w", apperr.ErrNotFound)

// Registry holds the open editing sessions of the admin API, keyed by an
// opaque id handed to the client.
type Registry struct {
	repo   Repository
	inv    invalidate.Invalidator
	logger *zap.Logger
	now    func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry whose sessions use repo and inv.
func NewRegistry(repo Repository, inv invalidate.Invalidator, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		repo:     repo,
		inv:      inv,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Open creates a session and returns its id.
func (r *Registry) Open() (string, *Session) {
	id := uuid.NewString()
	s := NewSession(r.repo, r.inv, r.logger.With(zap.String("editor_session", id)))
	s.now = r.now
	s.lastUsed = r.now()

	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()
	return id, s
}

// Get returns the session with id.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// Close discards a session and any uncommitted edits. It reports whether
// the session existed.
func (r *Registry) Close(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	return true
}

// Len returns the number of open sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Reap closes sessions unused for longer than idle and returns how many it
// closed. Sessions with uncommitted edits are reaped too; the edits were
// never persisted and are lost.
func (r *Registry) Reap(idle time.Duration) int {
	cutoff := r.now().Add(-idle)

	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for id, s := range r.sessions {
		if !s.LastUsed().Before(cutoff) {
			continue
		}
		if s.Dirty() {
			r.logger.Info("reaping idle editor session with uncommitted edits",
				zap.String("editor_session", id),
				zap.String("slug", s.Slug()))
		}
		delete(r.sessions, id)
		n++
	}
	return n
}

// ReapJob adapts Reap to the background task runner's job signature.
func (r *Registry) ReapJob(idle time.Duration) func(ctx context.Context) error {
	return func(context.Context) error {
		if n := r.Reap(idle); n > 0 {
			r.logger.Info("reaped idle editor sessions", zap.Int("count", n))
		}
		return nil
	}
}
