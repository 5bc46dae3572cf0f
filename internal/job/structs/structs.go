// Package structs defines the job domain types shared across layers.
package structs

import "time"

// Status represents the lifecycle state of a job.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusCancelled  Status = "CANCELLED"
)

// Terminal reports whether the status is a final state.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Valid reports whether the status is one of the known states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Job type identifiers. Each registered worker handler serves one type.
const (
	TypeMarketplaceScrape = "marketplace_scrape"
	TypeCatalogImport     = "catalog_import"
	TypeProductMatch      = "product_match"
	TypeSpreadsheetExport = "spreadsheet_export"
	TypeFullBackup        = "full_backup"
)

// Types returns the identifiers of all built-in job types.
func Types() []string {
	return []string{
		TypeMarketplaceScrape,
		TypeCatalogImport,
		TypeProductMatch,
		TypeSpreadsheetExport,
		TypeFullBackup,
	}
}

// Caller roles recognized by the admission policy.
const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// Job is the persisted record of a background job.
type Job struct {
	ID          string         `json:"id"`
	Owner       string         `json:"owner"`
	Type        string         `json:"type"`
	Status      Status         `json:"status"`
	Priority    int            `json:"priority"`
	Progress    int            `json:"progress"`
	Payload     map[string]any `json:"payload,omitempty"`
	Result      map[string]any `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
	Attempts    int            `json:"attempts"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// Log is a single timestamped entry of a job's execution history.
type Log struct {
	ID        int64     `json:"id"`
	JobID     string    `json:"job_id"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// ArchivedJob is a job moved out of the live table after retention expiry.
type ArchivedJob struct {
	ID          string         `json:"id"`
	Owner       string         `json:"owner"`
	Type        string         `json:"type"`
	Status      Status         `json:"status"`
	Priority    int            `json:"priority"`
	Result      map[string]any `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	ArchivedAt  time.Time      `json:"archived_at"`
}

// CreateBody is the submission request payload.
type CreateBody struct {
	Type     string         `json:"type" validate:"required"`
	Payload  map[string]any `json:"payload"`
	Priority *int           `json:"priority,omitempty"`
}

// ListParams filters and pages the job listing.
type ListParams struct {
	Owner  string `form:"-" json:"owner,omitempty"`
	Status string `form:"status" json:"status,omitempty"`
	Type   string `form:"type" json:"type,omitempty"`
	All    bool   `form:"all" json:"all,omitempty"`
	Limit  int    `form:"limit" json:"limit,omitempty"`
	Offset int    `form:"offset" json:"offset,omitempty"`
}

// ListResult is a page of jobs plus the unpaged total.
type ListResult struct {
	Items []*Job `json:"items"`
	Total int    `json:"total"`
}

// ProgressSnapshot is the lightweight realtime view of a job.
type ProgressSnapshot struct {
	JobID    string `json:"job_id"`
	Status   Status `json:"status"`
	Progress int    `json:"progress"`
	Error    string `json:"error,omitempty"`
}

// Stats aggregates job counts by status.
type Stats struct {
	Total    int            `json:"total"`
	ByStatus map[Status]int `json:"by_status"`
	Archived int            `json:"archived"`
}
