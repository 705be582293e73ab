// Package editor implements the page editing session: an in-memory working
// copy of one page's sections that is mutated through a fixed set of
// operations and persisted as a whole by Commit.
package editor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dalemusser/stratapage/internal/app/system/apperr"
	"github.com/dalemusser/stratapage/internal/app/system/invalidate"
	"github.com/dalemusser/stratapage/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

var (
	// ErrNoPage is returned by Commit when no page has been loaded.
	ErrNoPage = fmt.Errorf("editor: no page loaded: %w", apperr.ErrValidation)
	// ErrSectionNotFound is returned when a section id is not in the session.
	ErrSectionNotFound = fmt.Errorf("editor: section %w", apperr.ErrNotFound)
	// ErrStaleLoad is returned by a Load that finished after a newer Load
	// started. The session keeps whatever the newer load produces.
	ErrStaleLoad = fmt.Errorf("editor: load superseded: %w", apperr.ErrConflict)
)

// Repository is the slice of the page store a session needs.
type Repository interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (models.Page, error)
	ReplaceSections(ctx context.Context, id primitive.ObjectID, sections []models.Section) (models.Page, error)
}

// Session owns the working copy of one page's sections.
//
// Sections live in an arena keyed by id; order holds the ids in list order.
// Every mutating method leaves Order equal to each section's index, so the
// orders form a dense 0..N-1 permutation whenever a method returns.
// All methods are safe for concurrent use; calls serialize on the session.
type Session struct {
	repo   Repository
	inv    invalidate.Invalidator
	logger *zap.Logger
	now    func() time.Time

	mu       sync.Mutex
	pageID   primitive.ObjectID
	slug     string
	loaded   bool
	arena    map[string]*models.Section
	order    []string
	dirty    bool
	loadSeq  uint64 // bumped when a load starts; last load wins
	editSeq  uint64 // bumped by every mutation
	lastUsed time.Time
}

// NewSession creates an empty session. inv may be nil.
func NewSession(repo Repository, inv invalidate.Invalidator, logger *zap.Logger) *Session {
	if inv == nil {
		inv = invalidate.Nop
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Session{
		repo:   repo,
		inv:    inv,
		logger: logger,
		now:    time.Now,
		arena:  make(map[string]*models.Section),
	}
	s.lastUsed = s.now()
	return s
}

/* ---------------------------- loading & commit ---------------------------- */

// Load fetches the page and replaces the working copy with its sections,
// discarding uncommitted edits. If another Load starts before this one
// finishes, this one returns ErrStaleLoad and changes nothing. On a store
// failure the working copy is left as it was.
func (s *Session) Load(ctx context.Context, id primitive.ObjectID) error {
	s.mu.Lock()
	s.loadSeq++
	seq := s.loadSeq
	s.lastUsed = s.now()
	s.mu.Unlock()

	page, err := s.repo.GetByID(ctx, id)

	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.loadSeq {
		s.logger.Debug("discarding superseded page load",
			zap.String("page_id", id.Hex()),
			zap.Uint64("load_seq", seq),
			zap.Uint64("current_seq", s.loadSeq))
		return ErrStaleLoad
	}
	if err != nil {
		return err
	}
	s.resetLocked(page)
	return nil
}

// Commit persists the whole working list with a single ReplaceSections.
// On success the store's returned sections become the working copy, unless
// the session was edited or reloaded while the store call was in flight, in
// which case those newer edits are kept. On failure nothing changes and the
// caller may retry.
func (s *Session) Commit(ctx context.Context) (models.Page, error) {
	s.mu.Lock()
	if !s.loaded {
		s.mu.Unlock()
		return models.Page{}, ErrNoPage
	}
	id := s.pageID
	editSeq, loadSeq := s.editSeq, s.loadSeq
	snapshot := s.sectionsLocked()
	s.lastUsed = s.now()
	s.mu.Unlock()

	if err := models.ValidateSections(snapshot); err != nil {
		return models.Page{}, err
	}

	page, err := s.repo.ReplaceSections(ctx, id, snapshot)
	if err != nil {
		return models.Page{}, err
	}

	s.mu.Lock()
	if s.pageID == id && s.editSeq == editSeq && s.loadSeq == loadSeq {
		s.resetLocked(page)
	} else if s.pageID == id {
		s.slug = page.Slug
	}
	s.mu.Unlock()

	if err := s.inv.Invalidate(ctx, invalidate.ForSlugs(page.ID, page.Slug)); err != nil {
		s.logger.Warn("invalidate after commit failed",
			zap.String("page_id", page.ID.Hex()),
			zap.String("slug", page.Slug),
			zap.Error(err))
	}
	return page, nil
}

// resetLocked replaces the working copy with page's sections in stored
// order, then renormalizes.
func (s *Session) resetLocked(page models.Page) {
	s.pageID = page.ID
	s.slug = page.Slug
	s.loaded = true
	s.dirty = false

	sorted := models.CloneSections(page.Sections)
	models.SortByOrder(sorted)

	s.arena = make(map[string]*models.Section, len(sorted))
	s.order = make([]string, 0, len(sorted))
	for i := range sorted {
		sec := sorted[i]
		if _, dup := s.arena[sec.ID]; dup || sec.ID == "" {
			// Arena keys must be unique; a missing or colliding id from a
			// hand-edited document gets a fresh one.
			sec.ID = models.NewSectionID()
		}
		s.arena[sec.ID] = &sec
		s.order = append(s.order, sec.ID)
	}
	s.renormalizeLocked()
}

/* -------------------------------- mutations ------------------------------- */

// Insert adds a section of type t with default data. A nil position, or
// one at or past the end, appends; a negative position inserts first.
func (s *Session) Insert(t models.SectionType, position *int) (models.Section, error) {
	sec, err := models.NewSection(t, 0)
	if err != nil {
		return models.Section{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	at := len(s.order)
	if position != nil {
		at = clamp(*position, 0, len(s.order))
	}
	s.arena[sec.ID] = &sec
	s.order = insertAt(s.order, at, sec.ID)
	s.touchLocked()
	return sec.Clone(), nil
}

// UpdateData replaces a section's payload. The payload must be of the
// section's type; id, type and order are unchanged.
func (s *Session) UpdateData(id string, data models.SectionData) (models.Section, error) {
	if data == nil {
		return models.Section{}, apperr.Invalid("data", "section data is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sec, ok := s.arena[id]
	if !ok {
		return models.Section{}, fmt.Errorf("%w: %s", ErrSectionNotFound, id)
	}
	if data.Type() != sec.Type {
		return models.Section{}, apperr.Invalid("data",
			fmt.Sprintf("payload for %q cannot replace a %q section", data.Type(), sec.Type))
	}
	if err := data.Validate(); err != nil {
		return models.Section{}, err
	}

	updated := *sec
	updated.Data = data
	updated = updated.Clone()
	*sec = updated
	s.touchLocked()
	return sec.Clone(), nil
}

// Delete removes a section; the others keep their relative order.
func (s *Session) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrSectionNotFound, id)
	}
	delete(s.arena, id)
	s.order = append(s.order[:i], s.order[i+1:]...)
	s.touchLocked()
	return nil
}

// MoveUp swaps the section at index with the one before it. It reports
// whether anything moved; index 0 and out-of-range indexes are no-ops.
func (s *Session) MoveUp(index int) bool {
	return s.swap(index, index-1)
}

// MoveDown swaps the section at index with the one after it. It reports
// whether anything moved; the last index and out-of-range indexes are no-ops.
func (s *Session) MoveDown(index int) bool {
	return s.swap(index, index+1)
}

func (s *Session) swap(i, j int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.order)
	if i < 0 || i >= n || j < 0 || j >= n {
		return false
	}
	s.order[i], s.order[j] = s.order[j], s.order[i]
	s.touchLocked()
	return true
}

// MoveTo moves a section to position, clamped to the valid index range.
func (s *Session) MoveTo(id string, position int) (models.Section, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	from := s.indexLocked(id)
	if from < 0 {
		return models.Section{}, fmt.Errorf("%w: %s", ErrSectionNotFound, id)
	}
	to := clamp(position, 0, len(s.order)-1)
	if to != from {
		s.order = append(s.order[:from], s.order[from+1:]...)
		s.order = insertAt(s.order, to, id)
		s.touchLocked()
	}
	return s.arena[id].Clone(), nil
}

// Duplicate inserts a copy of a section directly after it. The copy gets a
// fresh section id, and fresh grid item ids for grids.
func (s *Session) Duplicate(id string) (models.Section, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return models.Section{}, fmt.Errorf("%w: %s", ErrSectionNotFound, id)
	}
	cp := s.arena[id].Clone()
	cp.ID = models.NewSectionID()
	if g, ok := cp.Data.(*models.GridLayout); ok {
		g.RekeyItems()
	}
	s.arena[cp.ID] = &cp
	s.order = insertAt(s.order, i+1, cp.ID)
	s.touchLocked()
	return cp.Clone(), nil
}

// touchLocked finishes a mutation: renormalize, mark dirty, count the edit.
func (s *Session) touchLocked() {
	s.renormalizeLocked()
	s.dirty = true
	s.editSeq++
	s.lastUsed = s.now()
}

func (s *Session) renormalizeLocked() {
	for i, id := range s.order {
		s.arena[id].Order = i
	}
}

/* --------------------------------- queries -------------------------------- */

// Sections returns a copy of the working list in order.
func (s *Session) Sections() []models.Section {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUsed = s.now()
	return s.sectionsLocked()
}

func (s *Session) sectionsLocked() []models.Section {
	out := make([]models.Section, len(s.order))
	for i, id := range s.order {
		out[i] = s.arena[id].Clone()
	}
	return out
}

// Section returns a copy of one section.
func (s *Session) Section(id string) (models.Section, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sec, ok := s.arena[id]
	if !ok {
		return models.Section{}, fmt.Errorf("%w: %s", ErrSectionNotFound, id)
	}
	return sec.Clone(), nil
}

// PageID returns the loaded page's id; ok is false before the first load.
func (s *Session) PageID() (id primitive.ObjectID, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pageID, s.loaded
}

// Slug returns the loaded page's slug as of the last load or commit.
func (s *Session) Slug() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slug
}

// Dirty reports whether there are uncommitted edits.
func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// Len returns the number of sections.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// LastUsed returns when the session was last loaded, read or edited.
func (s *Session) LastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

func (s *Session) indexLocked(id string) int {
	if _, ok := s.arena[id]; !ok {
		return -1
	}
	for i, v := range s.order {
		if v == id {
			return i
		}
	}
	return -1
}

/* --------------------------------- helpers -------------------------------- */

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func insertAt(ids []string, i int, id string) []string {
	ids = append(ids, "")
	copy(ids[i+1:], ids[i:])
	ids[i] = id
	return ids
}

// IsStale reports whether err is a superseded load.
func IsStale(err error) bool {
	return errors.Is(err, ErrStaleLoad)
}
