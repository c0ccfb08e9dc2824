package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// UpsertProgress writes the playback position for (user, media). The play
// count is owned by RecordWatchEvent and left untouched.
func (d *Database) UpsertProgress(ctx context.Context, p *WatchProgress) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("upsert_progress", start, err) }()

	if p.LastPlayed.IsZero() {
		p.LastPlayed = time.Now().UTC()
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO watch_progress (user_id, media_id, position, duration, completed, play_count, last_played)
		VALUES (?, ?, ?, ?, ?, 0, ?)
		ON CONFLICT(user_id, media_id) DO UPDATE SET
			position = excluded.position,
			duration = COALESCE(excluded.duration, watch_progress.duration),
			completed = excluded.completed,
			last_played = excluded.last_played
	`, p.UserID, p.MediaID, p.Position, nullableFloat(p.Duration), boolToInt(p.Completed), toMillis(p.LastPlayed))
	if err != nil {
		return fmt.Errorf("upsert progress %s/%s: %w", p.UserID, p.MediaID, err)
	}
	return nil
}

// GetProgress returns the stored progress for (user, media).
func (d *Database) GetProgress(ctx context.Context, userID, mediaID string) (*WatchProgress, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_progress", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var (
		p          = WatchProgress{UserID: userID, MediaID: mediaID}
		duration   sql.NullFloat64
		completed  int
		lastPlayed int64
	)
	err = d.db.QueryRowContext(ctx, `
		SELECT position, duration, completed, play_count, last_played
		FROM watch_progress WHERE user_id = ? AND media_id = ?
	`, userID, mediaID).Scan(&p.Position, &duration, &completed, &p.PlayCount, &lastPlayed)
	if errors.Is(err, sql.ErrNoRows) {
		err = fmt.Errorf("progress %s/%s: %w", userID, mediaID, ErrNotFound)
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	p.Duration = floatPtr(duration)
	p.Completed = completed != 0
	p.LastPlayed = fromMillis(lastPlayed)
	return &p, nil
}

// RecordWatchEvent logs a stream start and bumps the play count.
func (d *Database) RecordWatchEvent(ctx context.Context, userID, mediaID, mode string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("record_watch_event", start, err) }()

	now := toMillis(time.Now())

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	err = d.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO watch_events (user_id, media_id, mode, created_at) VALUES (?, ?, ?, ?)
		`, userID, mediaID, mode, now); err != nil {
			return fmt.Errorf("insert watch event: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO watch_progress (user_id, media_id, position, completed, play_count, last_played)
			VALUES (?, ?, 0, 0, 1, ?)
			ON CONFLICT(user_id, media_id) DO UPDATE SET
				play_count = watch_progress.play_count + 1,
				last_played = excluded.last_played
		`, userID, mediaID, now); err != nil {
			return fmt.Errorf("bump play count: %w", err)
		}
		return nil
	})
	return err
}

// ListWatchEvents returns recent stream starts for a media item.
func (d *Database) ListWatchEvents(ctx context.Context, mediaID string, limit int) ([]WatchEvent, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_watch_events", start, err) }()

	if limit <= 0 {
		limit = 50
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, `
		SELECT id, user_id, media_id, mode, created_at FROM watch_events
		WHERE media_id = ? ORDER BY created_at DESC, id DESC LIMIT ?
	`, mediaID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []WatchEvent
	for rows.Next() {
		var (
			e         WatchEvent
			createdAt int64
		)
		if err = rows.Scan(&e.ID, &e.UserID, &e.MediaID, &e.Mode, &createdAt); err != nil {
			return nil, err
		}
		e.CreatedAt = fromMillis(createdAt)
		events = append(events, e)
	}
	err = rows.Err()
	return events, err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
