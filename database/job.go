package database

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// JobStatus represents the status of a job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// JobType represents the type of job
type JobType string

const (
	JobTypeConversion JobType = "conversion"
	JobTypeExport     JobType = "export"
)

// Job represents a conversion or bulk export
type Job struct {
	ID          ulid.ULID  `json:"id"`
	Type        JobType    `json:"type"`
	Status      JobStatus  `json:"status"`
	Progress    int        `json:"progress"`         // 0-100
	CurrentStep string     `json:"currentStep"`      // Human-readable current step
	TotalSteps  int        `json:"totalSteps"`       // Pages to render or files to export
	Message     string     `json:"message"`          // Status message
	Error       string     `json:"error,omitempty"`  // Error message if failed
	Result      string     `json:"result,omitempty"` // JSON result data
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// ConversionResult is stored as the result of a finished conversion job
type ConversionResult struct {
	File  string `json:"file"`
	Pages int    `json:"pages"`
}

// ExportResult is stored as the result of a finished bulk export job
type ExportResult struct {
	Format string   `json:"format"`
	Saved  int      `json:"saved"`
	Failed []string `json:"failed,omitempty"`
}

// Finished reports whether no more work will happen for the job
func (s JobStatus) Finished() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

var finishedStatuses = []JobStatus{JobStatusCompleted, JobStatusFailed, JobStatusCancelled}

// JobQuery filters a job listing; zero values match everything
type JobQuery struct {
	Type     JobType
	Statuses []JobStatus
	Limit    int
	Offset   int
}
