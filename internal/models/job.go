package models

import (
	"time"
)

type JobStatus string

const (
	JobStatusWaiting    JobStatus = "waiting"
	JobStatusUploading  JobStatus = "uploading"
	JobStatusExtracting JobStatus = "extracting"
	JobStatusGrading    JobStatus = "grading"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

func (js JobStatus) String() string {
	return string(js)
}

// IsTerminal reports whether the status can never change again.
func (js JobStatus) IsTerminal() bool {
	return js == JobStatusCompleted || js == JobStatusFailed
}

func IsValidJobStatus(status string) bool {
	switch status {
	case "waiting", "uploading", "extracting", "grading", "completed", "failed":
		return true
	default:
		return false
	}
}

type FailureKind string

const (
	FailureSubmission         FailureKind = "submission_failure"
	FailureRateLimitExhausted FailureKind = "rate_limit_exhausted"
	FailurePolling            FailureKind = "polling_failure"
	FailureCancelled          FailureKind = "cancelled"
	FailureAggregation        FailureKind = "aggregation_error"
)

func (fk FailureKind) String() string {
	return string(fk)
}

type JobError struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
}

func (e *JobError) Error() string {
	return string(e.Kind) + ": " + e.Message
}

func NewJobError(kind FailureKind, message string) *JobError {
	return &JobError{Kind: kind, Message: message}
}

// JobRecord tracks one student document through the evaluation lifecycle.
// The ID is the job's position at creation time and survives retries.
type JobRecord struct {
	ID             int               `json:"id"`
	SourceDocument string            `json:"source_document"`
	ExternalJobID  string            `json:"external_job_id,omitempty"`
	Status         JobStatus         `json:"status"`
	StageDetail    string            `json:"stage_detail,omitempty"`
	Result         *AggregatedResult `json:"result,omitempty"`
	Error          *JobError         `json:"error,omitempty"`
	// RetryDelay is the total wall-clock backoff absorbed by rate-limit
	// retries for this job. Display only.
	RetryDelay time.Duration `json:"retry_delay_ns,omitempty"`
	StartedAt  *time.Time    `json:"started_at,omitempty"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
}
