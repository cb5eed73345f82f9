package models

import "time"

// Data Transfer Objects

type StartBatchRequest struct {
	QuestionPaper    string   `json:"question_paper" validate:"required"`
	AnswerKey        string   `json:"answer_key" validate:"required"`
	StudentDocuments []string `json:"student_documents" validate:"required,min=1"`
	Mode             string   `json:"mode" validate:"omitempty,oneof=strict liberal"`
}

type StartBatchResponse struct {
	BatchID   string    `json:"batch_id"`
	Status    string    `json:"status"`
	JobCount  int       `json:"job_count"`
	Mode      string    `json:"mode"`
	CreatedAt time.Time `json:"created_at"`
}

type JobResponse struct {
	BatchID        string            `json:"batch_id"`
	JobID          int               `json:"job_id"`
	SourceDocument string            `json:"source_document"`
	Status         string            `json:"status"`
	StageDetail    string            `json:"stage_detail,omitempty"`
	Error          *JobError         `json:"error,omitempty"`
	Result         *AggregatedResult `json:"result,omitempty"`
	StartedAt      *time.Time        `json:"started_at,omitempty"`
	FinishedAt     *time.Time        `json:"finished_at,omitempty"`
}

type RetryResponse struct {
	BatchID string `json:"batch_id"`
	JobID   int    `json:"job_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type CancelResponse struct {
	BatchID string `json:"batch_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// BatchStatusResponse is the StatusReporter view of a batch.
type BatchStatusResponse struct {
	BatchID        string         `json:"batch_id"`
	Status         string         `json:"status"`
	TotalJobs      int            `json:"total_jobs"`
	Counts         map[string]int `json:"counts"`
	Completed      int            `json:"completed"`
	Failed         int            `json:"failed"`
	CancelledJobs  int            `json:"cancelled_jobs"`
	PercentDone    float64        `json:"percent_done"`
	CurrentJobID   *int           `json:"current_job_id,omitempty"`
	CurrentStage   string         `json:"current_stage,omitempty"`
	StatusText     string         `json:"status_text"`
	TotalRetryWait time.Duration  `json:"total_retry_wait_ns"`
	CreatedAt      time.Time      `json:"created_at"`
	StartedAt      *time.Time     `json:"started_at,omitempty"`
	FinishedAt     *time.Time     `json:"finished_at,omitempty"`
}

type BatchListResponse struct {
	Batches []BatchStatusResponse `json:"batches"`
	Total   int                   `json:"total"`
}
