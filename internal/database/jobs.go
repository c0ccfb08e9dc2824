package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"streamvio/internal/apperr"
	"streamvio/internal/jobs"
)

const jobColumns = `id, media_id, kind, state, dedupe_key, input_path, output_path, options,
	error, error_code, notes, progress, created_at, started_at, completed_at`

// CreateJob inserts a new job row.
func (d *Database) CreateJob(ctx context.Context, job *jobs.Job) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("create_job", start, err) }()

	opts, err := jobs.EncodeOptions(job.Options)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		job.ID, job.MediaID, string(job.Kind), string(job.State), job.Key, job.InputPath,
		nullableString(job.OutputPath), opts, nullableString(job.Error),
		nullableString(string(job.ErrorCode)), nullableString(job.Notes), job.Progress,
		toMillis(job.CreatedAt), nullableMillis(job.StartedAt), nullableMillis(job.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("insert job %s: %w", job.ID, err)
	}
	return nil
}

// UpdateJob persists the mutable fields of a job in a single statement.
func (d *Database) UpdateJob(ctx context.Context, job *jobs.Job) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("update_job", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var res sql.Result
	res, err = d.db.ExecContext(ctx, `
		UPDATE jobs SET
			state = ?, output_path = ?, error = ?, error_code = ?, notes = ?,
			progress = ?, started_at = ?, completed_at = ?
		WHERE id = ?
	`,
		string(job.State), nullableString(job.OutputPath), nullableString(job.Error),
		nullableString(string(job.ErrorCode)), nullableString(job.Notes), job.Progress,
		nullableMillis(job.StartedAt), nullableMillis(job.CompletedAt), job.ID,
	)
	if err != nil {
		return fmt.Errorf("update job %s: %w", job.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		err = fmt.Errorf("job %s: %w", job.ID, ErrNotFound)
		return err
	}
	return nil
}

// GetJob loads a job by id.
func (d *Database) GetJob(ctx context.Context, id string) (*jobs.Job, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_job", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var job *jobs.Job
	job, err = scanJob(d.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		err = fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	return job, err
}

// ListJobs returns jobs matching filter, newest first.
func (d *Database) ListJobs(ctx context.Context, filter JobFilter) ([]*jobs.Job, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_jobs", start, err) }()

	var (
		where []string
		args  []interface{}
	)
	if filter.MediaID != "" {
		where = append(where, "media_id = ?")
		args = append(args, filter.MediaID)
	}
	if filter.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, filter.Kind)
	}
	if filter.State != "" {
		where = append(where, "state = ?")
		args = append(args, filter.State)
	}
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `SELECT ` + jobColumns + ` FROM jobs`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*jobs.Job
	for rows.Next() {
		var job *jobs.Job
		job, err = scanJob(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, job)
	}
	err = rows.Err()
	return result, err
}

// FailInterruptedJobs marks jobs left pending or processing by a previous
// process as failed. It returns how many rows changed.
func (d *Database) FailInterruptedJobs(ctx context.Context) (int64, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("fail_interrupted_jobs", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var res sql.Result
	res, err = d.db.ExecContext(ctx, `
		UPDATE jobs SET state = ?, error = ?, error_code = ?, completed_at = ?
		WHERE state IN (?, ?)
	`,
		string(jobs.StateFailed), "interrupted by server restart", string(apperr.CodeInternal),
		toMillis(time.Now()), string(jobs.StatePending), string(jobs.StateProcessing),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountJobsByState returns the number of jobs in each state.
func (d *Database) CountJobsByState(ctx context.Context) (map[jobs.State]int, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("count_jobs_by_state", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, `SELECT state, COUNT(*) FROM jobs GROUP BY state`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[jobs.State]int)
	for rows.Next() {
		var (
			state string
			n     int
		)
		if err = rows.Scan(&state, &n); err != nil {
			return nil, err
		}
		counts[jobs.State(state)] = n
	}
	err = rows.Err()
	return counts, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*jobs.Job, error) {
	var (
		job                      jobs.Job
		kind, state, opts        string
		output, errText, errCode sql.NullString
		notes                    sql.NullString
		createdAt                int64
		startedAt, completedAt   sql.NullInt64
	)
	err := row.Scan(
		&job.ID, &job.MediaID, &kind, &state, &job.Key, &job.InputPath, &output, &opts,
		&errText, &errCode, &notes, &job.Progress, &createdAt, &startedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	job.Kind = jobs.Kind(kind)
	job.State = jobs.State(state)
	job.OutputPath = output.String
	job.Error = errText.String
	job.ErrorCode = apperr.Code(errCode.String)
	job.Notes = notes.String
	job.CreatedAt = fromMillis(createdAt)
	job.StartedAt = timePtr(startedAt)
	job.CompletedAt = timePtr(completedAt)

	job.Options, err = jobs.DecodeOptions(job.Kind, opts)
	if err != nil {
		return nil, err
	}
	return &job, nil
}
