// Package handler provides the HTTP endpoints for job management.
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/ncobase/jobstream/internal/job/service"
	"github.com/ncobase/jobstream/internal/job/structs"
	"github.com/ncobase/jobstream/pkg/resp"
)

// JobHandler handles job HTTP requests.
type JobHandler struct {
	svc      *service.Service
	validate *validator.Validate
}

// NewJobHandler creates a job handler.
func NewJobHandler(svc *service.Service) *JobHandler {
	return &JobHandler{
		svc:      svc,
		validate: validator.New(),
	}
}

func caller(c *gin.Context) (string, string) {
	return c.GetString("user_id"), c.GetString("user_role")
}

// failFromError maps domain errors onto HTTP responses.
func failFromError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		resp.Fail(c.Writer, resp.NotFound("job not found"))
	case errors.Is(err, service.ErrForbidden):
		resp.Fail(c.Writer, resp.Forbidden("job belongs to another owner"))
	case errors.Is(err, service.ErrQuotaExceeded):
		resp.Fail(c.Writer, resp.TooManyRequests(err.Error()))
	case errors.Is(err, service.ErrUnknownType):
		resp.Fail(c.Writer, resp.BadRequest(err.Error()))
	case errors.Is(err, service.ErrInvalidTransition):
		resp.Fail(c.Writer, resp.Conflict(err.Error()))
	case errors.Is(err, service.ErrTransport):
		resp.Fail(c.Writer, resp.ServiceUnavailable(err.Error()))
	default:
		resp.Fail(c.Writer, resp.InternalServer("internal error"))
	}
}

// CreateJob submits a new job.
func (h *JobHandler) CreateJob(c *gin.Context) {
	var body structs.CreateBody
	if err := c.ShouldBindJSON(&body); err != nil {
		resp.Fail(c.Writer, resp.BadRequest(err.Error()))
		return
	}
	if err := h.validate.Struct(&body); err != nil {
		resp.Fail(c.Writer, resp.BadRequest(err.Error()))
		return
	}

	owner, role := caller(c)
	job, err := h.svc.Submit(c.Request.Context(), owner, role, &body)
	if err != nil {
		failFromError(c, err)
		return
	}

	resp.WithStatusCode(c.Writer, http.StatusAccepted, job)
}

// GetJob retrieves a job by ID.
func (h *JobHandler) GetJob(c *gin.Context) {
	owner, role := caller(c)
	job, err := h.svc.Get(c.Request.Context(), owner, role, c.Param("id"))
	if err != nil {
		failFromError(c, err)
		return
	}
	resp.Success(c.Writer, job)
}

// ListJobs lists the caller's jobs; admins may pass all=true.
func (h *JobHandler) ListJobs(c *gin.Context) {
	var params structs.ListParams
	if err := c.ShouldBindQuery(&params); err != nil {
		resp.Fail(c.Writer, resp.BadRequest(err.Error()))
		return
	}

	owner, role := caller(c)
	result, err := h.svc.List(c.Request.Context(), owner, role, &params)
	if err != nil {
		failFromError(c, err)
		return
	}
	resp.Success(c.Writer, result)
}

// GetProgress returns the realtime progress view of a job.
func (h *JobHandler) GetProgress(c *gin.Context) {
	owner, role := caller(c)
	snap, err := h.svc.GetProgress(c.Request.Context(), owner, role, c.Param("id"))
	if err != nil {
		failFromError(c, err)
		return
	}
	resp.Success(c.Writer, snap)
}

// GetLogs returns a job's execution history.
func (h *JobHandler) GetLogs(c *gin.Context) {
	owner, role := caller(c)
	logs, err := h.svc.Logs(c.Request.Context(), owner, role, c.Param("id"))
	if err != nil {
		failFromError(c, err)
		return
	}
	resp.Success(c.Writer, logs)
}

// CancelJob requests cancellation of a pending or processing job.
func (h *JobHandler) CancelJob(c *gin.Context) {
	owner, role := caller(c)
	job, err := h.svc.Cancel(c.Request.Context(), owner, role, c.Param("id"))
	if err != nil {
		failFromError(c, err)
		return
	}
	resp.Success(c.Writer, job)
}

// RestartJob re-admits a failed or cancelled job. Admin only.
func (h *JobHandler) RestartJob(c *gin.Context) {
	owner, role := caller(c)
	job, err := h.svc.Restart(c.Request.Context(), owner, role, c.Param("id"))
	if err != nil {
		failFromError(c, err)
		return
	}
	resp.WithStatusCode(c.Writer, http.StatusAccepted, job)
}

// GetArchivedJob retrieves a job from the archive.
func (h *JobHandler) GetArchivedJob(c *gin.Context) {
	owner, role := caller(c)
	job, err := h.svc.GetArchived(c.Request.Context(), owner, role, c.Param("id"))
	if err != nil {
		failFromError(c, err)
		return
	}
	resp.Success(c.Writer, job)
}

// GetStats returns aggregate job counts.
func (h *JobHandler) GetStats(c *gin.Context) {
	stats, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		failFromError(c, err)
		return
	}
	resp.Success(c.Writer, stats)
}

// GetTypes lists the job types workers can run.
func (h *JobHandler) GetTypes(c *gin.Context) {
	resp.Success(c.Writer, structs.Types())
}
