package repository

import (
	"context"
	"database/sql"
	"time"
)

// timeLayout is a fixed-width RFC3339 variant so stored timestamps sort
// lexicographically the same way they sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func parseTimePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func schema(driver string) []string {
	// The log id column is the only dialect-sensitive piece.
	logID := "BIGINT PRIMARY KEY AUTO_INCREMENT"
	if driver == "sqlite3" {
		logID = "INTEGER PRIMARY KEY AUTOINCREMENT"
	}
	return []string{
		`CREATE TABLE IF NOT EXISTS jobs (
			id VARCHAR(32) PRIMARY KEY,
			owner VARCHAR(64) NOT NULL,
			type VARCHAR(64) NOT NULL,
			status VARCHAR(16) NOT NULL,
			priority INT NOT NULL DEFAULT 0,
			progress INT NOT NULL DEFAULT 0,
			payload TEXT,
			result TEXT,
			error TEXT,
			attempts INT NOT NULL DEFAULT 0,
			created_at VARCHAR(40) NOT NULL,
			updated_at VARCHAR(40) NOT NULL,
			started_at VARCHAR(40),
			completed_at VARCHAR(40)
		)`,
		`CREATE TABLE IF NOT EXISTS job_logs (
			id ` + logID + `,
			job_id VARCHAR(32) NOT NULL,
			level VARCHAR(16) NOT NULL,
			message TEXT NOT NULL,
			created_at VARCHAR(40) NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS archived_jobs (
			id VARCHAR(32) PRIMARY KEY,
			owner VARCHAR(64) NOT NULL,
			type VARCHAR(64) NOT NULL,
			status VARCHAR(16) NOT NULL,
			priority INT NOT NULL DEFAULT 0,
			result TEXT,
			error TEXT,
			created_at VARCHAR(40) NOT NULL,
			completed_at VARCHAR(40),
			archived_at VARCHAR(40) NOT NULL
		)`,
	}
}

// InitSchema creates the job tables when they do not exist. The driver name
// selects the dialect for auto-increment columns.
func InitSchema(ctx context.Context, db *sql.DB, driver string) error {
	for _, stmt := range schema(driver) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
