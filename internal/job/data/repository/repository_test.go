package repository

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ncobase/jobstream/internal/job/structs"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := InitSchema(context.Background(), db, "sqlite3"); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	return db
}

func newTestJob(id, owner string, status structs.Status) *structs.Job {
	now := time.Now()
	return &structs.Job{
		ID:        id,
		Owner:     owner,
		Type:      structs.TypeCatalogImport,
		Status:    status,
		Priority:  0,
		Payload:   map[string]any{"source": "feed.csv"},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestJobCreateAndFind(t *testing.T) {
	db := testDB(t)
	repo := NewJobRepo(db)
	ctx := context.Background()

	job := newTestJob("job1", "alice", structs.StatusPending)
	if err := repo.Create(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := repo.FindByID(ctx, "job1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Owner != "alice" || got.Status != structs.StatusPending {
		t.Errorf("unexpected job: %+v", got)
	}
	if got.Payload["source"] != "feed.csv" {
		t.Errorf("payload not round-tripped: %+v", got.Payload)
	}
	if got.StartedAt != nil {
		t.Errorf("expected nil started_at, got %v", got.StartedAt)
	}

	if _, err := repo.FindByID(ctx, "missing"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateIfStatus(t *testing.T) {
	db := testDB(t)
	repo := NewJobRepo(db)
	ctx := context.Background()

	job := newTestJob("job1", "alice", structs.StatusPending)
	if err := repo.Create(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Pending -> processing succeeds.
	job.Status = structs.StatusProcessing
	job.Progress = 5
	ok, err := repo.UpdateIfStatus(ctx, job, structs.StatusPending)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !ok {
		t.Fatal("expected transition from pending to apply")
	}

	// A second writer expecting pending loses the race.
	ok, err = repo.UpdateIfStatus(ctx, job, structs.StatusPending)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if ok {
		t.Fatal("expected stale transition to be rejected")
	}

	got, err := repo.FindByID(ctx, "job1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Status != structs.StatusProcessing || got.Progress != 5 {
		t.Errorf("unexpected job after transition: %+v", got)
	}
}

func TestListFiltersAndOrder(t *testing.T) {
	db := testDB(t)
	repo := NewJobRepo(db)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i, spec := range []struct {
		id       string
		owner    string
		priority int
		status   structs.Status
	}{
		{"low", "alice", 0, structs.StatusPending},
		{"high", "alice", 10, structs.StatusPending},
		{"other", "bob", 5, structs.StatusCompleted},
	} {
		job := newTestJob(spec.id, spec.owner, spec.status)
		job.Priority = spec.priority
		job.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		job.UpdatedAt = job.CreatedAt
		if err := repo.Create(ctx, job); err != nil {
			t.Fatalf("create %s: %v", spec.id, err)
		}
	}

	res, err := repo.List(ctx, &structs.ListParams{Owner: "alice"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if res.Total != 2 || len(res.Items) != 2 {
		t.Fatalf("expected 2 jobs for alice, got total=%d items=%d", res.Total, len(res.Items))
	}
	if res.Items[0].ID != "high" {
		t.Errorf("expected priority ordering, got first=%s", res.Items[0].ID)
	}

	res, err = repo.List(ctx, &structs.ListParams{Status: "completed"})
	if err != nil {
		t.Fatalf("list by status: %v", err)
	}
	if res.Total != 1 || res.Items[0].ID != "other" {
		t.Errorf("unexpected status filter result: %+v", res)
	}
}

func TestCountActive(t *testing.T) {
	db := testDB(t)
	repo := NewJobRepo(db)
	ctx := context.Background()

	for id, status := range map[string]structs.Status{
		"a": structs.StatusPending,
		"b": structs.StatusProcessing,
		"c": structs.StatusCompleted,
		"d": structs.StatusFailed,
	} {
		if err := repo.Create(ctx, newTestJob(id, "alice", status)); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}

	n, err := repo.CountActive(ctx, "alice")
	if err != nil {
		t.Fatalf("count active: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 active jobs, got %d", n)
	}

	counts, err := repo.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("count by status: %v", err)
	}
	if counts[structs.StatusPending] != 1 || counts[structs.StatusCompleted] != 1 {
		t.Errorf("unexpected counts: %+v", counts)
	}
}

func TestListPendingOlderThan(t *testing.T) {
	db := testDB(t)
	repo := NewJobRepo(db)
	ctx := context.Background()

	stale := newTestJob("stale", "alice", structs.StatusPending)
	stale.UpdatedAt = time.Now().Add(-time.Hour)
	fresh := newTestJob("fresh", "alice", structs.StatusPending)
	for _, job := range []*structs.Job{stale, fresh} {
		if err := repo.Create(ctx, job); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	jobs, err := repo.ListPendingOlderThan(ctx, time.Now().Add(-30*time.Minute))
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != "stale" {
		t.Errorf("expected only the stale job, got %+v", jobs)
	}
}

func TestLogAppendAndList(t *testing.T) {
	db := testDB(t)
	logs := NewLogRepo(db)
	ctx := context.Background()

	for i, msg := range []string{"started", "halfway", "done"} {
		entry := &structs.Log{
			JobID:     "job1",
			Level:     "info",
			Message:   msg,
			CreatedAt: time.Now().Add(time.Duration(i) * time.Second),
		}
		if err := logs.Append(ctx, entry); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	entries, err := logs.ListByJob(ctx, "job1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Message != "started" || entries[2].Message != "done" {
		t.Errorf("unexpected order: %+v", entries)
	}
}

func TestArchiveBefore(t *testing.T) {
	db := testDB(t)
	jobs := NewJobRepo(db)
	logs := NewLogRepo(db)
	archive := NewArchiveRepo(db)
	ctx := context.Background()

	old := newTestJob("old", "alice", structs.StatusCompleted)
	old.UpdatedAt = time.Now().Add(-100 * 24 * time.Hour)
	completed := old.UpdatedAt
	old.CompletedAt = &completed

	recent := newTestJob("recent", "alice", structs.StatusCompleted)
	running := newTestJob("running", "alice", structs.StatusProcessing)
	running.UpdatedAt = old.UpdatedAt

	for _, job := range []*structs.Job{old, recent, running} {
		if err := jobs.Create(ctx, job); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if err := logs.Append(ctx, &structs.Log{JobID: "old", Level: "info", Message: "done", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("append log: %v", err)
	}

	n, err := archive.ArchiveBefore(ctx, time.Now().Add(-90*24*time.Hour))
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 archived job, got %d", n)
	}

	if _, err := jobs.FindByID(ctx, "old"); err != ErrNotFound {
		t.Errorf("expected live row gone, got %v", err)
	}
	got, err := archive.FindArchived(ctx, "old")
	if err != nil {
		t.Fatalf("find archived: %v", err)
	}
	if got.Status != structs.StatusCompleted || got.Owner != "alice" {
		t.Errorf("unexpected archived job: %+v", got)
	}

	entries, err := logs.ListByJob(ctx, "old")
	if err != nil {
		t.Fatalf("list logs: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected logs purged, got %d entries", len(entries))
	}

	// Running and recent jobs stay put.
	if _, err := jobs.FindByID(ctx, "running"); err != nil {
		t.Errorf("running job should remain: %v", err)
	}
	if _, err := jobs.FindByID(ctx, "recent"); err != nil {
		t.Errorf("recent job should remain: %v", err)
	}
}
