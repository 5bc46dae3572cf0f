package archiver

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ncobase/jobstream/internal/job/data/repository"
	"github.com/ncobase/jobstream/internal/job/structs"
)

func TestRunOnce(t *testing.T) {
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()
	ctx := context.Background()
	if err := repository.InitSchema(ctx, db, "sqlite3"); err != nil {
		t.Fatalf("init schema: %v", err)
	}

	jobs := repository.NewJobRepo(db)
	archive := repository.NewArchiveRepo(db)

	old := time.Now().Add(-100 * 24 * time.Hour)
	for _, spec := range []struct {
		id        string
		status    structs.Status
		updatedAt time.Time
	}{
		{"expired", structs.StatusCompleted, old},
		{"fresh", structs.StatusCompleted, time.Now()},
		{"running", structs.StatusProcessing, old},
	} {
		job := &structs.Job{
			ID:        spec.id,
			Owner:     "alice",
			Type:      structs.TypeFullBackup,
			Status:    spec.status,
			CreatedAt: spec.updatedAt,
			UpdatedAt: spec.updatedAt,
		}
		if spec.status.Terminal() {
			completed := spec.updatedAt
			job.CompletedAt = &completed
		}
		if err := jobs.Create(ctx, job); err != nil {
			t.Fatalf("create %s: %v", spec.id, err)
		}
	}

	a := New(archive, 90*24*time.Hour, time.Hour)
	n, err := a.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 archived job, got %d", n)
	}

	if _, err := jobs.FindByID(ctx, "expired"); err != repository.ErrNotFound {
		t.Errorf("expired job should be gone from live table: %v", err)
	}
	if _, err := archive.FindArchived(ctx, "expired"); err != nil {
		t.Errorf("expired job should be in archive: %v", err)
	}
	if _, err := jobs.FindByID(ctx, "fresh"); err != nil {
		t.Errorf("fresh job should remain: %v", err)
	}
	if _, err := jobs.FindByID(ctx, "running"); err != nil {
		t.Errorf("running job should remain: %v", err)
	}
}
