package worker

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ncobase/jobstream/internal/config"
	"github.com/ncobase/jobstream/internal/job/data/repository"
	"github.com/ncobase/jobstream/internal/job/structs"
	"github.com/ncobase/jobstream/internal/progress"
	"github.com/ncobase/jobstream/internal/queue"
)

type fakePublisher struct {
	events []*progress.Event
}

func (f *fakePublisher) Publish(_ context.Context, event *progress.Event) error {
	f.events = append(f.events, event)
	return nil
}

func testRuntime(t *testing.T) (*Runtime, *repository.JobRepo, *fakePublisher) {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := repository.InitSchema(context.Background(), db, "sqlite3"); err != nil {
		t.Fatalf("init schema: %v", err)
	}

	jobs := repository.NewJobRepo(db)
	pub := &fakePublisher{}
	rt := NewRuntime(jobs, repository.NewLogRepo(db), pub, &config.Jobs{
		MaxAttempts:    3,
		BackoffInitial: time.Millisecond,
		BackoffMax:     5 * time.Millisecond,
		ErrorLimit:     100,
		Workers:        1,
	})
	return rt, jobs, pub
}

func seedJob(t *testing.T, jobs *repository.JobRepo, id string, status structs.Status) *structs.Job {
	t.Helper()
	now := time.Now()
	job := &structs.Job{
		ID:        id,
		Owner:     "alice",
		Type:      "test_job",
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := jobs.Create(context.Background(), job); err != nil {
		t.Fatalf("seed job: %v", err)
	}
	return job
}

func TestProcessSuccess(t *testing.T) {
	rt, jobs, pub := testRuntime(t)
	ctx := context.Background()

	if err := rt.Register("test_job", func(_ context.Context, _ *structs.Job, report ReportFunc) (map[string]any, error) {
		if err := report(50, "halfway"); err != nil {
			return nil, err
		}
		return map[string]any{"out": "done"}, nil
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	seedJob(t, jobs, "job1", structs.StatusPending)
	if err := rt.Process(ctx, &queue.Message{JobID: "job1", Type: "test_job"}); err != nil {
		t.Fatalf("process: %v", err)
	}

	got, err := jobs.FindByID(ctx, "job1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Status != structs.StatusCompleted || got.Progress != 100 {
		t.Errorf("unexpected terminal state: %+v", got)
	}
	if got.Result["out"] != "done" {
		t.Errorf("result not committed: %+v", got.Result)
	}
	if got.StartedAt == nil || got.CompletedAt == nil {
		t.Error("expected started_at and completed_at set")
	}
	if got.Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", got.Attempts)
	}

	// Events: claim (5), report (50), commit (100).
	if len(pub.events) != 3 {
		t.Fatalf("expected 3 progress events, got %d", len(pub.events))
	}
	if pub.events[0].Progress != 5 || pub.events[1].Progress != 50 || pub.events[2].Progress != 100 {
		t.Errorf("unexpected event progression: %+v", pub.events)
	}
	if pub.events[2].Status != structs.StatusCompleted {
		t.Errorf("terminal event should be completed, got %s", pub.events[2].Status)
	}
}

func TestProcessRetriesThenFails(t *testing.T) {
	rt, jobs, pub := testRuntime(t)
	ctx := context.Background()

	runs := 0
	if err := rt.Register("test_job", func(context.Context, *structs.Job, ReportFunc) (map[string]any, error) {
		runs++
		return nil, errors.New("upstream timeout")
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	seedJob(t, jobs, "job1", structs.StatusPending)
	if err := rt.Process(ctx, &queue.Message{JobID: "job1", Type: "test_job"}); err != nil {
		t.Fatalf("process: %v", err)
	}

	if runs != 3 {
		t.Errorf("expected 3 attempts, got %d", runs)
	}

	got, err := jobs.FindByID(ctx, "job1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Status != structs.StatusFailed {
		t.Errorf("expected failed, got %s", got.Status)
	}
	if !strings.Contains(got.Error, "upstream timeout") {
		t.Errorf("expected failure cause recorded, got %q", got.Error)
	}

	last := pub.events[len(pub.events)-1]
	if last.Status != structs.StatusFailed || last.Error == "" {
		t.Errorf("terminal event should carry the failure: %+v", last)
	}
}

func TestProcessUnknownTypeFailsWithoutRetry(t *testing.T) {
	rt, jobs, _ := testRuntime(t)
	ctx := context.Background()

	seedJob(t, jobs, "job1", structs.StatusPending)
	if err := rt.Process(ctx, &queue.Message{JobID: "job1", Type: "test_job"}); err != nil {
		t.Fatalf("process: %v", err)
	}

	got, err := jobs.FindByID(ctx, "job1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Status != structs.StatusFailed {
		t.Errorf("expected failed, got %s", got.Status)
	}
	if !strings.Contains(got.Error, "no handler registered") {
		t.Errorf("unexpected error: %q", got.Error)
	}
}

func TestProcessDropsTerminalRedelivery(t *testing.T) {
	rt, jobs, pub := testRuntime(t)
	ctx := context.Background()

	ran := false
	if err := rt.Register("test_job", func(context.Context, *structs.Job, ReportFunc) (map[string]any, error) {
		ran = true
		return nil, nil
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	seedJob(t, jobs, "job1", structs.StatusCompleted)
	if err := rt.Process(ctx, &queue.Message{JobID: "job1", Type: "test_job"}); err != nil {
		t.Fatalf("process: %v", err)
	}
	if ran {
		t.Error("terminal job must not run again")
	}
	if len(pub.events) != 0 {
		t.Error("terminal redelivery must not publish events")
	}
}

func TestProcessDropsMissingJob(t *testing.T) {
	rt, _, _ := testRuntime(t)

	if err := rt.Process(context.Background(), &queue.Message{JobID: "ghost", Type: "test_job"}); err != nil {
		t.Fatalf("missing job should ack, got %v", err)
	}
}

func TestReportObservesCancellation(t *testing.T) {
	rt, jobs, _ := testRuntime(t)
	ctx := context.Background()

	if err := rt.Register("test_job", func(_ context.Context, job *structs.Job, report ReportFunc) (map[string]any, error) {
		// Cancel out from under the handler, then report.
		current, err := jobs.FindByID(ctx, job.ID)
		if err != nil {
			return nil, err
		}
		now := time.Now()
		current.Status = structs.StatusCancelled
		current.UpdatedAt = now
		current.CompletedAt = &now
		if _, err := jobs.UpdateIfStatus(ctx, current, structs.StatusProcessing); err != nil {
			return nil, err
		}
		return map[string]any{"out": "done"}, report(50, "")
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	seedJob(t, jobs, "job1", structs.StatusPending)
	if err := rt.Process(ctx, &queue.Message{JobID: "job1", Type: "test_job"}); err != nil {
		t.Fatalf("process: %v", err)
	}

	got, err := jobs.FindByID(ctx, "job1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Status != structs.StatusCancelled {
		t.Errorf("cancel must win over the running handler, got %s", got.Status)
	}
	if got.Result != nil {
		t.Errorf("cancelled job must not keep a result: %+v", got.Result)
	}
}

func TestProcessRecoversPanic(t *testing.T) {
	rt, jobs, _ := testRuntime(t)
	ctx := context.Background()

	if err := rt.Register("test_job", func(context.Context, *structs.Job, ReportFunc) (map[string]any, error) {
		panic("boom")
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	seedJob(t, jobs, "job1", structs.StatusPending)
	if err := rt.Process(ctx, &queue.Message{JobID: "job1", Type: "test_job"}); err != nil {
		t.Fatalf("process: %v", err)
	}

	got, err := jobs.FindByID(ctx, "job1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Status != structs.StatusFailed || !strings.Contains(got.Error, "panic") {
		t.Errorf("panic should fail the job: %+v", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 100); got != "short" {
		t.Errorf("unexpected: %q", got)
	}
	long := strings.Repeat("x", 250)
	if got := truncate(long, 100); len(got) != 100 {
		t.Errorf("expected 100 bytes, got %d", len(got))
	}
	if got := truncate(long, 0); got != long {
		t.Errorf("zero limit disables truncation")
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	rt, _, _ := testRuntime(t)
	h := func(context.Context, *structs.Job, ReportFunc) (map[string]any, error) { return nil, nil }
	if err := rt.Register("test_job", h); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := rt.Register("test_job", h); err == nil {
		t.Error("expected duplicate registration to fail")
	}
}
