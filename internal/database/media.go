package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"streamvio/internal/mediatypes"
)

// UpsertMedia registers or refreshes a source media item keyed by id.
func (d *Database) UpsertMedia(ctx context.Context, m *MediaItem) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("upsert_media", start, err) }()

	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO media (id, path, type, duration, size, mod_time, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			path = excluded.path,
			type = excluded.type,
			duration = excluded.duration,
			size = excluded.size,
			mod_time = excluded.mod_time
	`, m.ID, m.Path, string(m.Type), nullableFloat(m.Duration), m.Size, m.ModTime.Unix(), toMillis(m.CreatedAt))
	if err != nil {
		return fmt.Errorf("upsert media %s: %w", m.ID, err)
	}
	return nil
}

// GetMedia loads a registered media item.
func (d *Database) GetMedia(ctx context.Context, id string) (*MediaItem, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_media", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var m *MediaItem
	m, err = scanMedia(d.db.QueryRowContext(ctx, `
		SELECT id, path, type, duration, size, mod_time, created_at FROM media WHERE id = ?
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		err = fmt.Errorf("media %s: %w", id, ErrNotFound)
	}
	return m, err
}

// ListMedia returns registered media ordered by id.
func (d *Database) ListMedia(ctx context.Context) ([]*MediaItem, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_media", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, `
		SELECT id, path, type, duration, size, mod_time, created_at FROM media ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*MediaItem
	for rows.Next() {
		var m *MediaItem
		if m, err = scanMedia(rows); err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	err = rows.Err()
	return items, err
}

func scanMedia(row rowScanner) (*MediaItem, error) {
	var (
		m         MediaItem
		fileType  string
		duration  sql.NullFloat64
		modTime   int64
		createdAt int64
	)
	if err := row.Scan(&m.ID, &m.Path, &fileType, &duration, &m.Size, &modTime, &createdAt); err != nil {
		return nil, err
	}
	m.Type = mediatypes.FileType(fileType)
	m.Duration = floatPtr(duration)
	m.ModTime = time.Unix(modTime, 0)
	m.CreatedAt = fromMillis(createdAt)
	return &m, nil
}
