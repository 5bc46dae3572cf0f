package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ncobase/jobstream/internal/job/structs"
)

// ArchiveRepo moves expired jobs into the archive table and reads it back.
type ArchiveRepo struct {
	db *sql.DB
}

// NewArchiveRepo creates an archive repository.
func NewArchiveRepo(db *sql.DB) *ArchiveRepo {
	return &ArchiveRepo{db: db}
}

// sweepBatch bounds how many jobs a single sweep moves.
const sweepBatch = 500

// ArchiveBefore moves terminal jobs completed before the cutoff into the
// archive, deleting their log entries and live rows. Each job moves in its
// own transaction so a failure mid-sweep leaves no half-archived job.
func (r *ArchiveRepo) ArchiveBefore(ctx context.Context, cutoff time.Time) (int, error) {
	jobs := NewJobRepo(r.db)

	expired, err := jobs.ListCompletedBefore(ctx, cutoff, sweepBatch)
	if err != nil {
		return 0, err
	}

	archived := 0
	for _, job := range expired {
		if err := r.archiveOne(ctx, job); err != nil {
			return archived, fmt.Errorf("archive job %s: %w", job.ID, err)
		}
		archived++
	}
	return archived, nil
}

func (r *ArchiveRepo) archiveOne(ctx context.Context, job *structs.Job) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := marshalMap(job.Result)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO archived_jobs (id, owner, type, status, priority, result, error, created_at, completed_at, archived_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Owner, job.Type, string(job.Status), job.Priority,
		result, job.Error,
		formatTime(job.CreatedAt), formatTimePtr(job.CompletedAt), formatTime(time.Now()),
	)
	if err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM job_logs WHERE job_id = ?`, job.ID); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, job.ID); err != nil {
		return err
	}
	return tx.Commit()
}

// FindArchived loads an archived job by its identifier.
func (r *ArchiveRepo) FindArchived(ctx context.Context, id string) (*structs.ArchivedJob, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, owner, type, status, priority, result, error, created_at, completed_at, archived_at
		 FROM archived_jobs WHERE id = ?`, id)

	var (
		job                   structs.ArchivedJob
		status                string
		result                sql.NullString
		createdAt, archivedAt string
		completedAt           sql.NullString
	)
	err := row.Scan(&job.ID, &job.Owner, &job.Type, &status, &job.Priority,
		&result, &job.Error, &createdAt, &completedAt, &archivedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	job.Status = structs.Status(status)
	if job.Result, err = unmarshalMap(result); err != nil {
		return nil, err
	}
	if job.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if job.CompletedAt, err = parseTimePtr(completedAt); err != nil {
		return nil, err
	}
	if job.ArchivedAt, err = parseTime(archivedAt); err != nil {
		return nil, err
	}
	return &job, nil
}

// CountArchived returns the number of archived jobs.
func (r *ArchiveRepo) CountArchived(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM archived_jobs`).Scan(&n)
	return n, err
}
