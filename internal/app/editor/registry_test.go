package editor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dalemusser/stratapage/internal/app/system/apperr"
	"github.com/dalemusser/stratapage/internal/domain/models"
)

func TestRegistry_OpenGetClose(t *testing.T) {
	r := NewRegistry(newFakeRepo(), nil, nil)

	id, s := r.Open()
	if id == "" || s == nil {
		t.Fatalf("Open() = %q, %v", id, s)
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}

	got, err := r.Get(id)
	if err != nil || got != s {
		t.Fatalf("Get() = %p, %v; want %p", got, err, s)
	}

	if !r.Close(id) {
		t.Error("Close() = false for an open session")
	}
	if r.Close(id) {
		t.Error("Close() = true for a closed session")
	}
	if _, err := r.Get(id); !errors.Is(err, ErrSessionNotFound) || !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Get() after close error = %v", err)
	}
}

func TestRegistry_SessionsAreIndependent(t *testing.T) {
	r := NewRegistry(newFakeRepo(), nil, nil)
	_, a := r.Open()
	_, b := r.Open()

	a.Insert(models.SectionContent, nil)
	if b.Len() != 0 {
		t.Errorf("edit in one session leaked into another: Len() = %d", b.Len())
	}
}

func TestRegistry_Reap(t *testing.T) {
	r := NewRegistry(newFakeRepo(), nil, nil)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	idleID, _ := r.Open()
	dirtyID, dirty := r.Open()
	dirty.Insert(models.SectionContent, nil)

	now = now.Add(20 * time.Minute)
	activeID, active := r.Open()
	active.Insert(models.SectionHeaderBanner, nil)

	now = now.Add(20 * time.Minute)
	if n := r.Reap(30 * time.Minute); n != 2 {
		t.Fatalf("Reap() = %d, want 2", n)
	}
	for _, id := range []string{idleID, dirtyID} {
		if _, err := r.Get(id); err == nil {
			t.Errorf("session %s survived the reap", id)
		}
	}
	if _, err := r.Get(activeID); err != nil {
		t.Errorf("active session reaped: %v", err)
	}
}

func TestRegistry_ReapJob(t *testing.T) {
	r := NewRegistry(newFakeRepo(), nil, nil)
	now := time.Now()
	r.now = func() time.Time { return now }
	r.Open()

	now = now.Add(time.Hour)
	job := r.ReapJob(time.Minute)
	if err := job(context.Background()); err != nil {
		t.Fatalf("job error = %v", err)
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d after reap job, want 0", r.Len())
	}
}
