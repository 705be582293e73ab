package pagecache

import (
	"context"
	"sync"
	"time"

	"github.com/dalemusser/stratapage/internal/domain/models"
)

type memoryEntry struct {
	page   models.Page
	expiry time.Time
}

// Memory is an in-process Cache with a fixed TTL. Expired entries are
// dropped lazily on read and by Sweep.
type Memory struct {
	mu       sync.RWMutex
	ttl      time.Duration
	entries  map[string]memoryEntry
	// versions counts deletes per slug.
	versions map[string]uint64
	now      func() time.Time
}

var _ Cache = (*Memory)(nil)

// NewMemory creates a memory cache. A ttl <= 0 keeps entries until deleted.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		ttl:      ttl,
		entries:  make(map[string]memoryEntry),
		versions: make(map[string]uint64),
		now:      time.Now,
	}
}

func (m *Memory) Get(_ context.Context, slug string) (models.Page, bool, error) {
	m.mu.RLock()
	e, found := m.entries[slug]
	m.mu.RUnlock()

	if !found || m.expired(e) {
		return models.Page{}, false, nil
	}
	return clonePage(e.page), true, nil
}

func (m *Memory) Set(_ context.Context, page models.Page) error {
	e := m.entry(page)
	m.mu.Lock()
	m.entries[page.Slug] = e
	m.mu.Unlock()
	return nil
}

func (m *Memory) Version(_ context.Context, slug string) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.versions[slug], nil
}

func (m *Memory) SetAt(_ context.Context, page models.Page, version uint64) (bool, error) {
	e := m.entry(page)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.versions[page.Slug] != version {
		return false, nil
	}
	m.entries[page.Slug] = e
	return true, nil
}

func (m *Memory) entry(page models.Page) memoryEntry {
	e := memoryEntry{page: clonePage(page)}
	if m.ttl > 0 {
		e.expiry = m.now().Add(m.ttl)
	}
	return e
}

func (m *Memory) Delete(_ context.Context, slugs ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range slugs {
		delete(m.entries, s)
		m.versions[s]++
	}
	return nil
}

// Ping always succeeds.
func (m *Memory) Ping(context.Context) error { return nil }

// Sweep removes expired entries and returns how many it removed.
func (m *Memory) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for slug, e := range m.entries {
		if m.expired(e) {
			delete(m.entries, slug)
			n++
		}
	}
	return n
}

// Len returns the number of stored entries, expired or not.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *Memory) expired(e memoryEntry) bool {
	return !e.expiry.IsZero() && m.now().After(e.expiry)
}

// clonePage keeps callers from mutating cached sections.
func clonePage(p models.Page) models.Page {
	p.Sections = models.CloneSections(p.Sections)
	return p
}
