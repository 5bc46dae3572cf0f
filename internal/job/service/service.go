// Package service implements the job lifecycle: admission with per-role
// quotas, dispatch, cancellation, restart, and read paths.
package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/sony/gobreaker"

	"github.com/ncobase/jobstream/internal/config"
	"github.com/ncobase/jobstream/internal/job/data/repository"
	"github.com/ncobase/jobstream/internal/job/structs"
	"github.com/ncobase/jobstream/internal/progress"
	"github.com/ncobase/jobstream/internal/queue"
	"github.com/ncobase/jobstream/pkg/logger"
	"github.com/ncobase/jobstream/pkg/nanoid"
)

// Domain errors mapped to HTTP responses by the handler layer.
var (
	ErrNotFound          = repository.ErrNotFound
	ErrForbidden         = errors.New("job belongs to another owner")
	ErrQuotaExceeded     = errors.New("active job quota exceeded")
	ErrUnknownType       = errors.New("unknown job type")
	ErrInvalidTransition = errors.New("job state does not allow this operation")
	ErrTransport         = errors.New("job accepted but dispatch failed")
)

// ProgressStore reads cached snapshots and publishes lifecycle events so
// API-side transitions reach realtime clients the same way worker-side ones
// do.
type ProgressStore interface {
	Snapshot(ctx context.Context, jobID string) (*structs.ProgressSnapshot, error)
	Publish(ctx context.Context, event *progress.Event) error
}

// Service coordinates the repositories, the broker, and the progress cache.
type Service struct {
	jobs     *repository.JobRepo
	logs     *repository.LogRepo
	archive  *repository.ArchiveRepo
	queue    queue.Publisher
	progress ProgressStore
	policy   *config.Jobs
	breaker  *gobreaker.CircuitBreaker

	newID func() string
	now   func() time.Time
}

// New creates the job service.
func New(jobs *repository.JobRepo, logs *repository.LogRepo, archive *repository.ArchiveRepo,
	q queue.Publisher, pr ProgressStore, policy *config.Jobs) *Service {
	return &Service{
		jobs:     jobs,
		logs:     logs,
		archive:  archive,
		queue:    q,
		progress: pr,
		policy:   policy,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "job-dispatch",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
		newID: nanoid.PrimaryKey(),
		now:   time.Now,
	}
}

// Submit admits a new job. The per-role quota counts pending and processing
// jobs; a zero quota means unlimited. The job row is committed before
// dispatch, so a broker outage leaves the job pending for the reconciler to
// pick up rather than losing it.
func (s *Service) Submit(ctx context.Context, owner, role string, body *structs.CreateBody) (*structs.Job, error) {
	if !slices.Contains(structs.Types(), body.Type) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, body.Type)
	}

	if limit := s.policy.Quota(role); limit > 0 {
		active, err := s.jobs.CountActive(ctx, owner)
		if err != nil {
			return nil, err
		}
		if active >= limit {
			return nil, fmt.Errorf("%w: %d of %d active", ErrQuotaExceeded, active, limit)
		}
	}

	priority := s.policy.DefaultPriority(role)
	if body.Priority != nil {
		priority = s.policy.ClampPriority(*body.Priority)
	}

	now := s.now()
	job := &structs.Job{
		ID:        s.newID(),
		Owner:     owner,
		Type:      body.Type,
		Status:    structs.StatusPending,
		Priority:  priority,
		Payload:   body.Payload,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, err
	}

	// The committed pending row is the source of truth; a failed dispatch
	// surfaces as a retryable condition and the reconciler re-dispatches.
	if err := s.enqueue(ctx, job); err != nil {
		return job, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return job, nil
}

// enqueue dispatches a job through the circuit breaker.
func (s *Service) enqueue(ctx context.Context, job *structs.Job) error {
	_, err := s.breaker.Execute(func() (any, error) {
		return nil, s.queue.Publish(ctx, &queue.Message{
			JobID:    job.ID,
			Type:     job.Type,
			Priority: job.Priority,
		})
	})
	if err != nil {
		logger.StdLogger().Warnf(ctx, "dispatch of job %s deferred: %v", job.ID, err)
	}
	return err
}

// Get loads a job visible to the viewer. Non-admins only see their own jobs.
func (s *Service) Get(ctx context.Context, viewer, role, id string) (*structs.Job, error) {
	job, err := s.jobs.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(job, viewer, role); err != nil {
		return nil, err
	}
	return job, nil
}

// GetArchived loads an archived job visible to the viewer.
func (s *Service) GetArchived(ctx context.Context, viewer, role, id string) (*structs.ArchivedJob, error) {
	job, err := s.archive.FindArchived(ctx, id)
	if err != nil {
		return nil, err
	}
	if role != structs.RoleAdmin && job.Owner != viewer {
		return nil, ErrForbidden
	}
	return job, nil
}

// List returns the viewer's jobs; admins may request all owners with the
// all flag.
func (s *Service) List(ctx context.Context, viewer, role string, params *structs.ListParams) (*structs.ListResult, error) {
	if params.All && role == structs.RoleAdmin {
		params.Owner = ""
	} else {
		params.Owner = viewer
	}
	return s.jobs.List(ctx, params)
}

// Cancel requests cooperative cancellation. Pending jobs are cancelled
// outright; processing jobs are marked cancelled and the worker observes the
// row on its next progress report and stops. Terminal jobs cannot be
// cancelled.
func (s *Service) Cancel(ctx context.Context, viewer, role, id string) (*structs.Job, error) {
	job, err := s.Get(ctx, viewer, role, id)
	if err != nil {
		return nil, err
	}
	if job.Status.Terminal() {
		return nil, fmt.Errorf("%w: already %s", ErrInvalidTransition, job.Status)
	}

	now := s.now()
	job.Status = structs.StatusCancelled
	job.Progress = 100
	job.UpdatedAt = now
	job.CompletedAt = &now

	ok, err := s.jobs.UpdateIfStatus(ctx, job, structs.StatusPending, structs.StatusProcessing)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: concurrent transition", ErrInvalidTransition)
	}

	s.publishEvent(ctx, job)
	s.appendLog(ctx, job.ID, "info", "cancelled by "+viewer)
	return job, nil
}

// Restart re-admits a failed or cancelled job at its original priority.
// Admin only; the handler enforces the role, the service enforces the state.
func (s *Service) Restart(ctx context.Context, viewer, role, id string) (*structs.Job, error) {
	job, err := s.Get(ctx, viewer, role, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	job.Status = structs.StatusPending
	job.Progress = 0
	job.Attempts = 0
	job.Result = nil
	job.Error = ""
	job.UpdatedAt = now
	job.StartedAt = nil
	job.CompletedAt = nil

	ok, err := s.jobs.UpdateIfStatus(ctx, job, structs.StatusFailed, structs.StatusCancelled)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: only failed or cancelled jobs can restart", ErrInvalidTransition)
	}

	s.publishEvent(ctx, job)
	s.appendLog(ctx, job.ID, "info", "restarted by "+viewer)
	if err := s.enqueue(ctx, job); err != nil {
		return job, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return job, nil
}

// GetProgress returns the realtime view of a job, preferring the cache and
// falling back to the job row when the snapshot has expired.
func (s *Service) GetProgress(ctx context.Context, viewer, role, id string) (*structs.ProgressSnapshot, error) {
	job, err := s.Get(ctx, viewer, role, id)
	if err != nil {
		return nil, err
	}

	if snap, err := s.progress.Snapshot(ctx, id); err == nil {
		return snap, nil
	} else if !errors.Is(err, progress.ErrNoSnapshot) {
		logger.StdLogger().Warnf(ctx, "progress cache read failed for job %s: %v", id, err)
	}

	return &structs.ProgressSnapshot{
		JobID:    job.ID,
		Status:   job.Status,
		Progress: job.Progress,
		Error:    job.Error,
	}, nil
}

// Logs returns a job's execution history.
func (s *Service) Logs(ctx context.Context, viewer, role, id string) ([]*structs.Log, error) {
	if _, err := s.Get(ctx, viewer, role, id); err != nil {
		return nil, err
	}
	return s.logs.ListByJob(ctx, id)
}

// Stats aggregates live and archived job counts.
func (s *Service) Stats(ctx context.Context) (*structs.Stats, error) {
	counts, err := s.jobs.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	archived, err := s.archive.CountArchived(ctx)
	if err != nil {
		return nil, err
	}

	stats := &structs.Stats{ByStatus: counts, Archived: archived}
	for _, n := range counts {
		stats.Total += n
	}
	return stats, nil
}

// Reconcile re-dispatches pending jobs whose last update predates the grace
// cutoff. Covers messages lost to broker restarts or dispatch outages.
func (s *Service) Reconcile(ctx context.Context, grace time.Duration) (int, error) {
	stale, err := s.jobs.ListPendingOlderThan(ctx, s.now().Add(-grace))
	if err != nil {
		return 0, err
	}
	for _, job := range stale {
		job.UpdatedAt = s.now()
		if ok, err := s.jobs.UpdateIfStatus(ctx, job, structs.StatusPending); err != nil || !ok {
			continue
		}
		_ = s.enqueue(ctx, job)
	}
	return len(stale), nil
}

func (s *Service) publishEvent(ctx context.Context, job *structs.Job) {
	event := &progress.Event{
		JobID:    job.ID,
		Owner:    job.Owner,
		Status:   job.Status,
		Progress: job.Progress,
		Error:    job.Error,
	}
	if err := s.progress.Publish(ctx, event); err != nil {
		logger.StdLogger().Warnf(ctx, "progress publish for job %s failed: %v", job.ID, err)
	}
}

func (s *Service) appendLog(ctx context.Context, jobID, level, message string) {
	entry := &structs.Log{JobID: jobID, Level: level, Message: message, CreatedAt: s.now()}
	if err := s.logs.Append(ctx, entry); err != nil {
		logger.StdLogger().Warnf(ctx, "append log for job %s failed: %v", jobID, err)
	}
}

func authorize(job *structs.Job, viewer, role string) error {
	if role != structs.RoleAdmin && job.Owner != viewer {
		return ErrForbidden
	}
	return nil
}
