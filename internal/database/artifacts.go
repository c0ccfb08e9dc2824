package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const artifactColumns = `id, media_id, format_type, variant, file_path, mime_type, size_bytes,
	bitrate, width, height, codec, duration, extra, job_id, created_at, superseded_at`

// PutArtifact records a new current artifact for (media, format, variant).
// Any previous current record is marked superseded in the same transaction,
// so readers always see exactly one current artifact.
func (d *Database) PutArtifact(ctx context.Context, a *Artifact) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("put_artifact", start, err) }()

	extra, err := json.Marshal(a.Extra)
	if err != nil {
		return fmt.Errorf("encode artifact extra: %w", err)
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	err = d.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			UPDATE artifacts SET superseded_at = ?
			WHERE media_id = ? AND format_type = ? AND variant = ? AND superseded_at IS NULL
		`, toMillis(a.CreatedAt), a.MediaID, string(a.FormatType), a.Variant); err != nil {
			return fmt.Errorf("supersede artifact: %w", err)
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO artifacts (media_id, format_type, variant, file_path, mime_type, size_bytes,
				bitrate, width, height, codec, duration, extra, job_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			a.MediaID, string(a.FormatType), a.Variant, a.FilePath, a.MimeType, a.SizeBytes,
			nullableInt64(a.Metadata.Bitrate), nullableInt(a.Metadata.Width), nullableInt(a.Metadata.Height),
			nullableString(a.Metadata.Codec), nullableFloat(a.Metadata.Duration), string(extra),
			nullableString(a.JobID), toMillis(a.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("insert artifact: %w", err)
		}
		a.ID, err = res.LastInsertId()
		return err
	})
	return err
}

// GetArtifact returns the current artifact for (media, format, variant).
func (d *Database) GetArtifact(ctx context.Context, mediaID string, format FormatType, variant string) (*Artifact, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_artifact", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var a *Artifact
	a, err = scanArtifact(d.db.QueryRowContext(ctx, `
		SELECT `+artifactColumns+` FROM artifacts
		WHERE media_id = ? AND format_type = ? AND variant = ? AND superseded_at IS NULL
	`, mediaID, string(format), variant))
	if errors.Is(err, sql.ErrNoRows) {
		err = fmt.Errorf("artifact %s/%s/%q: %w", mediaID, format, variant, ErrNotFound)
	}
	return a, err
}

// ListArtifacts returns every artifact recorded for a media item, current
// ones first, newest first within each group.
func (d *Database) ListArtifacts(ctx context.Context, mediaID string, includeSuperseded bool) ([]*Artifact, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_artifacts", start, err) }()

	query := `SELECT ` + artifactColumns + ` FROM artifacts WHERE media_id = ?`
	if !includeSuperseded {
		query += ` AND superseded_at IS NULL`
	}
	query += ` ORDER BY superseded_at IS NOT NULL, created_at DESC`

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, query, mediaID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*Artifact
	for rows.Next() {
		var a *Artifact
		if a, err = scanArtifact(rows); err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	err = rows.Err()
	return result, err
}

func scanArtifact(row rowScanner) (*Artifact, error) {
	var (
		a                   Artifact
		format              string
		bitrate             sql.NullInt64
		width, height       sql.NullInt64
		codec, extra, jobID sql.NullString
		duration            sql.NullFloat64
		createdAt           int64
		supersededAt        sql.NullInt64
	)
	err := row.Scan(
		&a.ID, &a.MediaID, &format, &a.Variant, &a.FilePath, &a.MimeType, &a.SizeBytes,
		&bitrate, &width, &height, &codec, &duration, &extra, &jobID, &createdAt, &supersededAt,
	)
	if err != nil {
		return nil, err
	}

	a.FormatType = FormatType(format)
	a.Metadata = TechnicalMetadata{
		Bitrate:  int64Ptr(bitrate),
		Width:    intPtr(width),
		Height:   intPtr(height),
		Codec:    codec.String,
		Duration: floatPtr(duration),
	}
	a.JobID = jobID.String
	a.CreatedAt = fromMillis(createdAt)
	a.SupersededAt = timePtr(supersededAt)

	if extra.Valid && extra.String != "" {
		if err := json.Unmarshal([]byte(extra.String), &a.Extra); err != nil {
			return nil, fmt.Errorf("decode artifact extra: %w", err)
		}
	}
	return &a, nil
}

func nullableInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullableInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
