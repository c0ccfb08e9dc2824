package progress

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"time"

	"streamvio/internal/apperr"
	"streamvio/internal/database"
	"streamvio/internal/logging"
	"streamvio/internal/metrics"
)

var log = logging.For("progress")

// CompletionRatio is the share of the duration after which an item counts as watched.
const CompletionRatio = 0.9

const (
	DefaultThrottle     = 10 * time.Second
	DefaultEventTimeout = 5 * time.Second

	// throttle entries are pruned once the map grows past this size
	pruneThreshold = 1024
)

// Store persists positions and watch events.
type Store interface {
	UpsertProgress(ctx context.Context, p *database.WatchProgress) error
	GetProgress(ctx context.Context, userID, mediaID string) (*database.WatchProgress, error)
	RecordWatchEvent(ctx context.Context, userID, mediaID, mode string) error
}

// Config tunes write throttling and event recording.
type Config struct {
	Throttle     time.Duration
	EventTimeout time.Duration
}

// Update is one playback position report.
type Update struct {
	UserID   string
	MediaID  string
	Position float64
	// Duration is the known media duration; nil falls back to the stored one.
	Duration *float64
	// Completed overrides the derived completion flag when set.
	Completed *bool
	// Final marks the last report of a playback session and bypasses throttling.
	Final bool
}

type key struct{ user, media string }

type lastWrite struct {
	at        time.Time
	completed bool
	duration  *float64
}

// Tracker implements the playback-position contract.
type Tracker struct {
	store Store
	cfg   Config
	now   func() time.Time

	mu      sync.Mutex
	written map[key]lastWrite

	events sync.WaitGroup
}

// NewTracker creates a Tracker. A zero Throttle writes every update.
func NewTracker(store Store, cfg Config) *Tracker {
	if cfg.Throttle < 0 {
		cfg.Throttle = 0
	}
	if cfg.EventTimeout <= 0 {
		cfg.EventTimeout = DefaultEventTimeout
	}
	return &Tracker{
		store:   store,
		cfg:     cfg,
		now:     time.Now,
		written: make(map[key]lastWrite),
	}
}

// Completed reports whether position reaches CompletionRatio of duration.
// An unknown or non-positive duration never completes.
func Completed(position float64, duration *float64) bool {
	if duration == nil || *duration <= 0 {
		return false
	}
	return position/(*duration) >= CompletionRatio
}

// Update records a position and returns the resulting state. A throttled
// heartbeat returns the state it would have written.
func (t *Tracker) Update(ctx context.Context, u Update) (*database.WatchProgress, error) {
	u.UserID = strings.TrimSpace(u.UserID)
	if u.UserID == "" {
		return nil, apperr.New(apperr.CodeInvalidArgument, "user id is required")
	}
	if u.MediaID == "" {
		return nil, apperr.New(apperr.CodeInvalidArgument, "media id is required")
	}
	if math.IsNaN(u.Position) || math.IsInf(u.Position, 0) || u.Position < 0 {
		return nil, apperr.New(apperr.CodeInvalidArgument, "position must be a non-negative number of seconds")
	}

	k := key{u.UserID, u.MediaID}
	now := t.now()

	t.mu.Lock()
	prev, seen := t.written[k]
	t.mu.Unlock()

	duration := u.Duration
	if duration == nil && seen {
		duration = prev.duration
	}
	if duration == nil {
		if stored, err := t.store.GetProgress(ctx, u.UserID, u.MediaID); err == nil {
			duration = stored.Duration
		}
	}

	completed := Completed(u.Position, duration)
	if u.Completed != nil {
		completed = *u.Completed
	}

	p := &database.WatchProgress{
		UserID:     u.UserID,
		MediaID:    u.MediaID,
		Position:   u.Position,
		Duration:   duration,
		Completed:  completed,
		LastPlayed: now.UTC(),
	}

	if !u.Final && seen && completed == prev.completed && now.Sub(prev.at) < t.cfg.Throttle {
		metrics.ProgressWritesTotal.WithLabelValues("throttled").Inc()
		return p, nil
	}

	if err := t.store.UpsertProgress(ctx, p); err != nil {
		metrics.ProgressWritesTotal.WithLabelValues("error").Inc()
		return nil, apperr.Wrap(apperr.CodeStorageFailed, err, "save progress for %s", u.MediaID)
	}
	metrics.ProgressWritesTotal.WithLabelValues("written").Inc()

	t.mu.Lock()
	if u.Final {
		delete(t.written, k)
	} else {
		t.written[k] = lastWrite{at: now, completed: completed, duration: duration}
		if len(t.written) > pruneThreshold {
			t.pruneLocked(now)
		}
	}
	t.mu.Unlock()

	return p, nil
}

func (t *Tracker) pruneLocked(now time.Time) {
	for k, w := range t.written {
		if now.Sub(w.at) >= t.cfg.Throttle {
			delete(t.written, k)
		}
	}
}

// Get returns the stored progress, or a zero position when nothing was recorded.
func (t *Tracker) Get(ctx context.Context, userID, mediaID string) (*database.WatchProgress, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apperr.New(apperr.CodeInvalidArgument, "user id is required")
	}
	p, err := t.store.GetProgress(ctx, userID, mediaID)
	if errors.Is(err, database.ErrNotFound) {
		return &database.WatchProgress{UserID: userID, MediaID: mediaID}, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeStorageFailed, err, "load progress for %s", mediaID)
	}
	return p, nil
}

// RecordStart logs a stream start without blocking the caller.
func (t *Tracker) RecordStart(userID, mediaID, mode string) {
	if userID == "" {
		return
	}
	t.events.Add(1)
	go func() {
		defer t.events.Done()

		ctx, cancel := context.WithTimeout(context.Background(), t.cfg.EventTimeout)
		defer cancel()

		if err := t.store.RecordWatchEvent(ctx, userID, mediaID, mode); err != nil {
			metrics.WatchEventsTotal.WithLabelValues("error").Inc()
			log.Warn("failed to record %s stream start of %s for %s: %v", mode, mediaID, userID, err)
			return
		}
		metrics.WatchEventsTotal.WithLabelValues("recorded").Inc()
	}()
}

// Wait blocks until pending watch events are recorded or ctx ends.
func (t *Tracker) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		t.events.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
