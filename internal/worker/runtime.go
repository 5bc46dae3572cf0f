// Package worker executes queued jobs: it claims the row, runs the
// registered handler with retries, streams progress, and commits the
// terminal state.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ncobase/jobstream/internal/config"
	"github.com/ncobase/jobstream/internal/job/data/repository"
	"github.com/ncobase/jobstream/internal/job/structs"
	"github.com/ncobase/jobstream/internal/progress"
	"github.com/ncobase/jobstream/internal/queue"
	"github.com/ncobase/jobstream/pkg/logger"
)

// ErrJobCancelled is returned by the report callback when the job row was
// cancelled while the handler was running. Handlers should return it
// promptly to stop work.
var ErrJobCancelled = errors.New("job cancelled")

// ReportFunc lets a handler publish its progress. Progress is clamped to
// [0, 99] and never moves backwards; the terminal 100 is written by the
// runtime at commit.
type ReportFunc func(progress int, message string) error

// Handler executes one job type. It returns the job result on success.
type Handler func(ctx context.Context, job *structs.Job, report ReportFunc) (map[string]any, error)

// ProgressPublisher fans progress updates out to the cache and the stream.
type ProgressPublisher interface {
	Publish(ctx context.Context, event *progress.Event) error
}

// Consumer delivers queued messages to a processing function.
type Consumer interface {
	Consume(ctx context.Context, handler func(context.Context, *queue.Message) error) error
}

// Runtime processes job messages against the registered handler table.
type Runtime struct {
	jobs      *repository.JobRepo
	logs      *repository.LogRepo
	publisher ProgressPublisher
	policy    *config.Jobs

	mu       sync.RWMutex
	handlers map[string]Handler

	now func() time.Time
}

// NewRuntime creates a worker runtime.
func NewRuntime(jobs *repository.JobRepo, logs *repository.LogRepo, publisher ProgressPublisher, policy *config.Jobs) *Runtime {
	return &Runtime{
		jobs:      jobs,
		logs:      logs,
		publisher: publisher,
		policy:    policy,
		handlers:  make(map[string]Handler),
		now:       time.Now,
	}
}

// Register binds a handler to a job type. Registering the same type twice
// is a programming error.
func (r *Runtime) Register(jobType string, handler Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[jobType]; exists {
		return fmt.Errorf("handler for %q already registered", jobType)
	}
	r.handlers[jobType] = handler
	return nil
}

func (r *Runtime) handler(jobType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[jobType]
	return h, ok
}

// Run consumes the queue with the configured number of workers until the
// context is cancelled.
func (r *Runtime) Run(ctx context.Context, consumer Consumer) {
	workers := r.policy.Workers
	if workers <= 0 {
		workers = 1
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				err := consumer.Consume(ctx, r.Process)
				if ctx.Err() != nil {
					return
				}
				logger.StdLogger().Errorf(ctx, "consumer stopped, restarting: %v", err)
				select {
				case <-time.After(time.Second):
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	wg.Wait()
}

// Process handles one queued message. A nil return acks the message; an
// error requeues it. Terminal job outcomes always ack: the row records the
// result and redelivery would be wasted work.
func (r *Runtime) Process(ctx context.Context, msg *queue.Message) error {
	log := logger.StdLogger()

	job, err := r.jobs.FindByID(ctx, msg.JobID)
	if errors.Is(err, repository.ErrNotFound) {
		// Archived or deleted since enqueue; nothing to run.
		log.Warnf(ctx, "job %s no longer exists, dropping message", msg.JobID)
		return nil
	}
	if err != nil {
		return err
	}

	// Redelivered messages for finished jobs are dropped, so a job never
	// runs twice to completion.
	if job.Status.Terminal() {
		log.Infof(ctx, "job %s already %s, dropping redelivery", job.ID, job.Status)
		return nil
	}

	claimed, err := r.claim(ctx, job)
	if err != nil {
		return err
	}
	if !claimed {
		log.Infof(ctx, "job %s claimed elsewhere, dropping", job.ID)
		return nil
	}

	handler, ok := r.handler(job.Type)
	if !ok {
		// No handler can ever serve this type; retrying is pointless.
		r.commitFailure(ctx, job, fmt.Errorf("no handler registered for type %q", job.Type))
		return nil
	}

	result, err := r.runWithRetry(ctx, job, handler)
	switch {
	case errors.Is(err, ErrJobCancelled):
		// The cancel endpoint already wrote the terminal row.
		r.appendLog(ctx, job.ID, "info", "handler observed cancellation and stopped")
	case err != nil:
		r.commitFailure(ctx, job, err)
	default:
		r.commitSuccess(ctx, job, result)
	}
	return nil
}

// claim transitions the job to processing. Accepts pending rows and, as a
// redelivery backstop, rows already processing whose worker died mid-run.
func (r *Runtime) claim(ctx context.Context, job *structs.Job) (bool, error) {
	now := r.now()
	job.Status = structs.StatusProcessing
	job.Progress = 5
	job.Attempts++
	job.UpdatedAt = now
	if job.StartedAt == nil {
		job.StartedAt = &now
	}

	ok, err := r.jobs.UpdateIfStatus(ctx, job, structs.StatusPending, structs.StatusProcessing)
	if err != nil || !ok {
		return ok, err
	}

	r.publish(ctx, job, "")
	r.appendLog(ctx, job.ID, "info", fmt.Sprintf("started (attempt %d)", job.Attempts))
	return true, nil
}

// runWithRetry executes the handler under the retry budget. Cancellation
// and unknown-type failures are permanent; everything else retries with
// exponential backoff up to the configured attempt limit.
func (r *Runtime) runWithRetry(ctx context.Context, job *structs.Job, handler Handler) (map[string]any, error) {
	report := r.reportFunc(ctx, job)

	attempts := 0
	operation := func() (map[string]any, error) {
		attempts++
		if attempts > 1 {
			job.Attempts++
			r.appendLog(ctx, job.ID, "warn", fmt.Sprintf("retrying (attempt %d)", job.Attempts))
		}

		result, err := r.runHandler(ctx, job, handler, report)
		if errors.Is(err, ErrJobCancelled) {
			return nil, backoff.Permanent(err)
		}
		return result, err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.policy.BackoffInitial
	policy.MaxInterval = r.policy.BackoffMax

	maxRetries := uint64(0)
	if r.policy.MaxAttempts > 1 {
		maxRetries = uint64(r.policy.MaxAttempts - 1)
	}

	return backoff.RetryWithData(operation, backoff.WithContext(backoff.WithMaxRetries(policy, maxRetries), ctx))
}

// runHandler invokes the handler with panic recovery so a buggy handler
// fails its job instead of taking the worker down.
func (r *Runtime) runHandler(ctx context.Context, job *structs.Job, handler Handler, report ReportFunc) (result map[string]any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panic: %v", rec)
		}
	}()
	return handler(ctx, job, report)
}

// reportFunc builds the progress callback for a job. Each report re-reads
// the row so an external cancel is observed; progress is monotonic and
// capped below the terminal value.
func (r *Runtime) reportFunc(ctx context.Context, job *structs.Job) ReportFunc {
	return func(p int, message string) error {
		current, err := r.jobs.FindByID(ctx, job.ID)
		if err != nil {
			return err
		}
		if current.Status == structs.StatusCancelled {
			return ErrJobCancelled
		}

		if p < job.Progress {
			p = job.Progress
		}
		if p > 99 {
			p = 99
		}
		job.Progress = p
		job.UpdatedAt = r.now()

		ok, err := r.jobs.UpdateIfStatus(ctx, job, structs.StatusProcessing)
		if err != nil {
			return err
		}
		if !ok {
			return ErrJobCancelled
		}

		r.publish(ctx, job, "")
		if message != "" {
			r.appendLog(ctx, job.ID, "info", message)
		}
		return nil
	}
}

// commitSuccess writes the completed row. The write is conditional on the
// job still processing so a concurrent cancel wins.
func (r *Runtime) commitSuccess(ctx context.Context, job *structs.Job, result map[string]any) {
	now := r.now()
	job.Status = structs.StatusCompleted
	job.Progress = 100
	job.Result = result
	job.Error = ""
	job.UpdatedAt = now
	job.CompletedAt = &now

	ok, err := r.jobs.UpdateIfStatus(ctx, job, structs.StatusProcessing)
	if err != nil {
		logger.StdLogger().Errorf(ctx, "commit of job %s failed: %v", job.ID, err)
		return
	}
	if !ok {
		logger.StdLogger().Infof(ctx, "job %s cancelled before commit, discarding result", job.ID)
		return
	}

	r.publish(ctx, job, "")
	r.appendLog(ctx, job.ID, "info", "completed")
}

// commitFailure writes the failed row with the error truncated to the
// configured bound.
func (r *Runtime) commitFailure(ctx context.Context, job *structs.Job, cause error) {
	now := r.now()
	job.Status = structs.StatusFailed
	job.Progress = 100
	job.Result = nil
	job.Error = truncate(cause.Error(), r.policy.ErrorLimit)
	job.UpdatedAt = now
	job.CompletedAt = &now

	ok, err := r.jobs.UpdateIfStatus(ctx, job, structs.StatusProcessing)
	if err != nil {
		logger.StdLogger().Errorf(ctx, "failure commit of job %s failed: %v", job.ID, err)
		return
	}
	if !ok {
		return
	}

	r.publish(ctx, job, job.Error)
	r.appendLog(ctx, job.ID, "error", job.Error)
}

func (r *Runtime) publish(ctx context.Context, job *structs.Job, errMsg string) {
	event := &progress.Event{
		JobID:    job.ID,
		Owner:    job.Owner,
		Status:   job.Status,
		Progress: job.Progress,
		Error:    errMsg,
	}
	if err := r.publisher.Publish(ctx, event); err != nil {
		logger.StdLogger().Warnf(ctx, "progress publish for job %s failed: %v", job.ID, err)
	}
}

func (r *Runtime) appendLog(ctx context.Context, jobID, level, message string) {
	entry := &structs.Log{JobID: jobID, Level: level, Message: message, CreatedAt: r.now()}
	if err := r.logs.Append(ctx, entry); err != nil {
		logger.StdLogger().Warnf(ctx, "append log for job %s failed: %v", jobID, err)
	}
}

func truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	return s[:limit]
}
