package progress

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"streamvio/internal/apperr"
	"streamvio/internal/database"
)

type fakeStore struct {
	mu       sync.Mutex
	rows     map[string]*database.WatchProgress
	upserts  int
	events   []string
	eventErr error
	writeErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[string]*database.WatchProgress)}
}

func (f *fakeStore) UpsertProgress(_ context.Context, p *database.WatchProgress) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.upserts++
	cp := *p
	f.rows[p.UserID+"/"+p.MediaID] = &cp
	return nil
}

func (f *fakeStore) GetProgress(_ context.Context, userID, mediaID string) (*database.WatchProgress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.rows[userID+"/"+mediaID]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) RecordWatchEvent(_ context.Context, userID, mediaID, mode string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.eventErr != nil {
		return f.eventErr
	}
	f.events = append(f.events, userID+"/"+mediaID+"/"+mode)
	return nil
}

func ptr(f float64) *float64 { return &f }

func TestCompleted(t *testing.T) {
	tests := []struct {
		name     string
		position float64
		duration *float64
		expected bool
	}{
		{"95 percent", 95, ptr(100), true},
		{"10 percent", 10, ptr(100), false},
		{"exactly 90 percent", 90, ptr(100), true},
		{"just below", 89.9, ptr(100), false},
		{"past the end", 120, ptr(100), true},
		{"unknown duration", 5000, nil, false},
		{"zero duration", 0, ptr(0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Completed(tt.position, tt.duration); got != tt.expected {
				t.Errorf("Completed(%v, %v) = %v, expected %v", tt.position, tt.duration, got, tt.expected)
			}
		})
	}
}

func TestUpdateDerivesCompletion(t *testing.T) {
	duration := 3600.0
	tests := []struct {
		position float64
		expected bool
	}{
		{duration * 0.95, true},
		{duration * 0.1, false},
	}
	for _, tt := range tests {
		store := newFakeStore()
		tr := NewTracker(store, Config{})
		p, err := tr.Update(context.Background(), Update{UserID: "u", MediaID: "m", Position: tt.position, Duration: &duration})
		if err != nil {
			t.Fatalf("Update: %v", err)
		}
		if p.Completed != tt.expected {
			t.Errorf("position %v: completed = %v, expected %v", tt.position, p.Completed, tt.expected)
		}
		stored, _ := store.GetProgress(context.Background(), "u", "m")
		if stored.Completed != tt.expected {
			t.Errorf("position %v: stored completed = %v", tt.position, stored.Completed)
		}
	}
}

func TestUpdateExplicitCompletedWins(t *testing.T) {
	tr := NewTracker(newFakeStore(), Config{})
	no := false
	p, err := tr.Update(context.Background(), Update{
		UserID: "u", MediaID: "m", Position: 99, Duration: ptr(100), Completed: &no,
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if p.Completed {
		t.Error("Expected explicit completed=false to override derivation")
	}
}

func TestUpdateUsesStoredDuration(t *testing.T) {
	store := newFakeStore()
	store.rows["u/m"] = &database.WatchProgress{UserID: "u", MediaID: "m", Duration: ptr(200)}
	tr := NewTracker(store, Config{})

	p, err := tr.Update(context.Background(), Update{UserID: "u", MediaID: "m", Position: 190})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !p.Completed {
		t.Error("Expected completion derived from the stored duration")
	}
}

func TestUpdateValidation(t *testing.T) {
	tr := NewTracker(newFakeStore(), Config{})
	bad := []Update{
		{UserID: "", MediaID: "m"},
		{UserID: "u", MediaID: ""},
		{UserID: "u", MediaID: "m", Position: -1},
	}
	for _, u := range bad {
		if _, err := tr.Update(context.Background(), u); !errors.Is(err, apperr.ErrInvalidArgument) {
			t.Errorf("Update(%+v): expected INVALID_ARGUMENT, got %v", u, err)
		}
	}
}

func TestUpdateThrottlesHeartbeats(t *testing.T) {
	store := newFakeStore()
	tr := NewTracker(store, Config{Throttle: 10 * time.Second})
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return clock }

	update := func(pos float64, final bool) {
		t.Helper()
		if _, err := tr.Update(context.Background(), Update{UserID: "u", MediaID: "m", Position: pos, Duration: ptr(1000), Final: final}); err != nil {
			t.Fatalf("Update: %v", err)
		}
	}

	update(10, false)
	clock = clock.Add(3 * time.Second)
	update(13, false)
	clock = clock.Add(3 * time.Second)
	update(16, false)
	if store.upserts != 1 {
		t.Fatalf("Expected heartbeats within the throttle to be skipped, got %d writes", store.upserts)
	}

	clock = clock.Add(5 * time.Second)
	update(21, false)
	if store.upserts != 2 {
		t.Errorf("Expected a write after the throttle elapsed, got %d", store.upserts)
	}

	// crossing the completion threshold is never throttled
	clock = clock.Add(time.Second)
	update(950, false)
	if store.upserts != 3 {
		t.Errorf("Expected completion change to be written, got %d", store.upserts)
	}

	// final updates are always written
	update(960, true)
	if store.upserts != 4 {
		t.Errorf("Expected final update to be written, got %d", store.upserts)
	}
	stored, _ := store.GetProgress(context.Background(), "u", "m")
	if stored.Position != 960 || !stored.Completed {
		t.Errorf("Unexpected stored progress %+v", stored)
	}
}

func TestUpdateStorageFailure(t *testing.T) {
	store := newFakeStore()
	store.writeErr = errors.New("disk I/O error")
	tr := NewTracker(store, Config{})

	_, err := tr.Update(context.Background(), Update{UserID: "u", MediaID: "m", Position: 1})
	if !errors.Is(err, apperr.ErrStorageFailed) {
		t.Errorf("Expected STORAGE_FAILED, got %v", err)
	}
}

func TestGetDefaultsToZero(t *testing.T) {
	tr := NewTracker(newFakeStore(), Config{})
	p, err := tr.Get(context.Background(), "u", "never-played")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p.Position != 0 || p.Completed || p.PlayCount != 0 || p.MediaID != "never-played" {
		t.Errorf("Expected zero default, got %+v", p)
	}
}

func TestRecordStartIsDetached(t *testing.T) {
	store := newFakeStore()
	tr := NewTracker(store, Config{})

	tr.RecordStart("u", "m", "direct")
	tr.RecordStart("", "m", "direct")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := tr.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.events) != 1 || store.events[0] != "u/m/direct" {
		t.Errorf("Expected one recorded event, got %v", store.events)
	}
}

func TestRecordStartFailureIsSwallowed(t *testing.T) {
	store := newFakeStore()
	store.eventErr = errors.New("database is locked")
	tr := NewTracker(store, Config{})

	tr.RecordStart("u", "m", "hls")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := tr.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestTrackerWithDatabase(t *testing.T) {
	db, err := database.New(context.Background(), filepath.Join(t.TempDir(), "progress.db"))
	if err != nil {
		t.Fatalf("database.New: %v", err)
	}
	defer db.Close()

	tr := NewTracker(db, Config{})
	tr.RecordStart("alice", "42", "direct")
	if err := tr.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	if _, err := tr.Update(context.Background(), Update{UserID: "alice", MediaID: "42", Position: 95, Duration: ptr(100), Final: true}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	p, err := tr.Get(context.Background(), "alice", "42")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !p.Completed || p.Position != 95 || p.PlayCount != 1 {
		t.Errorf("Unexpected progress %+v", p)
	}
}
