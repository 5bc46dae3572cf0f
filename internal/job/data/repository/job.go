// Package repository persists jobs, their logs, and the archive over
// database/sql.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ncobase/jobstream/internal/job/structs"
)

// ErrNotFound is returned when the requested job does not exist.
var ErrNotFound = errors.New("job not found")

// JobRepo persists job rows.
type JobRepo struct {
	db *sql.DB
}

// NewJobRepo creates a job repository.
func NewJobRepo(db *sql.DB) *JobRepo {
	return &JobRepo{db: db}
}

const jobColumns = `id, owner, type, status, priority, progress, payload, result, error, attempts, created_at, updated_at, started_at, completed_at`

// Create inserts a new job row.
func (r *JobRepo) Create(ctx context.Context, job *structs.Job) error {
	payload, err := marshalMap(job.Payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	result, err := marshalMap(job.Result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO jobs (`+jobColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Owner, job.Type, string(job.Status), job.Priority, job.Progress,
		payload, result, job.Error, job.Attempts,
		formatTime(job.CreatedAt), formatTime(job.UpdatedAt),
		formatTimePtr(job.StartedAt), formatTimePtr(job.CompletedAt),
	)
	return err
}

// FindByID loads a job by its identifier.
func (r *JobRepo) FindByID(ctx context.Context, id string) (*structs.Job, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return job, err
}

// Update overwrites the mutable columns of a job row.
func (r *JobRepo) Update(ctx context.Context, job *structs.Job) error {
	_, err := r.update(ctx, job, nil)
	return err
}

// UpdateIfStatus overwrites the job row only when its current status is one
// of the expected states. It reports whether the row was updated, giving
// single-writer semantics for state transitions.
func (r *JobRepo) UpdateIfStatus(ctx context.Context, job *structs.Job, expect ...structs.Status) (bool, error) {
	return r.update(ctx, job, expect)
}

func (r *JobRepo) update(ctx context.Context, job *structs.Job, expect []structs.Status) (bool, error) {
	payload, err := marshalMap(job.Payload)
	if err != nil {
		return false, fmt.Errorf("encode payload: %w", err)
	}
	result, err := marshalMap(job.Result)
	if err != nil {
		return false, fmt.Errorf("encode result: %w", err)
	}

	query := `UPDATE jobs SET owner = ?, type = ?, status = ?, priority = ?, progress = ?,
		payload = ?, result = ?, error = ?, attempts = ?, updated_at = ?, started_at = ?, completed_at = ?
		WHERE id = ?`
	args := []any{
		job.Owner, job.Type, string(job.Status), job.Priority, job.Progress,
		payload, result, job.Error, job.Attempts,
		formatTime(job.UpdatedAt), formatTimePtr(job.StartedAt), formatTimePtr(job.CompletedAt),
		job.ID,
	}
	if len(expect) > 0 {
		query += ` AND status IN (?` + strings.Repeat(", ?", len(expect)-1) + `)`
		for _, s := range expect {
			args = append(args, string(s))
		}
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// List returns a page of jobs matching the filter, newest and most urgent
// first, along with the unpaged total.
func (r *JobRepo) List(ctx context.Context, params *structs.ListParams) (*structs.ListResult, error) {
	var conds []string
	var args []any
	if params.Owner != "" {
		conds = append(conds, "owner = ?")
		args = append(args, params.Owner)
	}
	if params.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, strings.ToUpper(params.Status))
	}
	if params.Type != "" {
		conds = append(conds, "type = ?")
		args = append(args, params.Type)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs`+where, args...).Scan(&total); err != nil {
		return nil, err
	}

	limit := params.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := params.Offset
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + jobColumns + ` FROM jobs` + where +
		` ORDER BY priority DESC, created_at DESC LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := &structs.ListResult{Items: []*structs.Job{}, Total: total}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		result.Items = append(result.Items, job)
	}
	return result, rows.Err()
}

// CountActive counts an owner's jobs that are pending or processing.
func (r *JobRepo) CountActive(ctx context.Context, owner string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM jobs WHERE owner = ? AND status IN (?, ?)`,
		owner, string(structs.StatusPending), string(structs.StatusProcessing),
	).Scan(&n)
	return n, err
}

// CountByStatus aggregates job counts grouped by status.
func (r *JobRepo) CountByStatus(ctx context.Context) (map[structs.Status]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[structs.Status]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[structs.Status(status)] = n
	}
	return counts, rows.Err()
}

// ListPendingOlderThan returns pending jobs last touched before the cutoff.
// Used by the reconciler to re-enqueue work lost to broker restarts.
func (r *JobRepo) ListPendingOlderThan(ctx context.Context, cutoff time.Time) ([]*structs.Job, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE status = ? AND updated_at < ? ORDER BY priority DESC`,
		string(structs.StatusPending), formatTime(cutoff),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*structs.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// ListCompletedBefore returns terminal jobs completed before the cutoff,
// oldest first.
func (r *JobRepo) ListCompletedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*structs.Job, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE status IN (?, ?, ?) AND completed_at < ?
		 ORDER BY completed_at ASC LIMIT ?`,
		string(structs.StatusCompleted), string(structs.StatusFailed), string(structs.StatusCancelled),
		formatTime(cutoff), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*structs.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*structs.Job, error) {
	var (
		job                    structs.Job
		status                 string
		payload, result        sql.NullString
		createdAt, updatedAt   string
		startedAt, completedAt sql.NullString
	)
	err := row.Scan(
		&job.ID, &job.Owner, &job.Type, &status, &job.Priority, &job.Progress,
		&payload, &result, &job.Error, &job.Attempts,
		&createdAt, &updatedAt, &startedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	job.Status = structs.Status(status)
	if job.Payload, err = unmarshalMap(payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if job.Result, err = unmarshalMap(result); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	if job.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if job.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if job.StartedAt, err = parseTimePtr(startedAt); err != nil {
		return nil, err
	}
	if job.CompletedAt, err = parseTimePtr(completedAt); err != nil {
		return nil, err
	}
	return &job, nil
}

func marshalMap(m map[string]any) (any, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func unmarshalMap(s sql.NullString) (map[string]any, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s.String), &m); err != nil {
		return nil, err
	}
	return m, nil
}
