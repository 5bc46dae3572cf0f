package repository

import (
	"context"
	"database/sql"

	"github.com/ncobase/jobstream/internal/job/structs"
)

// LogRepo persists job execution log entries.
type LogRepo struct {
	db *sql.DB
}

// NewLogRepo creates a log repository.
func NewLogRepo(db *sql.DB) *LogRepo {
	return &LogRepo{db: db}
}

// Append inserts a log entry for a job.
func (r *LogRepo) Append(ctx context.Context, entry *structs.Log) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO job_logs (job_id, level, message, created_at) VALUES (?, ?, ?, ?)`,
		entry.JobID, entry.Level, entry.Message, formatTime(entry.CreatedAt),
	)
	return err
}

// ListByJob returns the entries of a job oldest first.
func (r *LogRepo) ListByJob(ctx context.Context, jobID string) ([]*structs.Log, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, job_id, level, message, created_at FROM job_logs WHERE job_id = ? ORDER BY id ASC`,
		jobID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*structs.Log
	for rows.Next() {
		var (
			entry     structs.Log
			createdAt string
		)
		if err := rows.Scan(&entry.ID, &entry.JobID, &entry.Level, &entry.Message, &createdAt); err != nil {
			return nil, err
		}
		if entry.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}
