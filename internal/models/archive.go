package models

import (
	"time"
)

// ResultRecord is one archived job outcome. The in-memory batch store is
// authoritative while a batch runs; rows here exist so finished evaluations
// survive restarts and can be queried later.
type ResultRecord struct {
	ID             string     `json:"id"`
	BatchID        string     `json:"batch_id"`
	JobID          int        `json:"job_id"`
	SourceDocument string     `json:"source_document"`
	Status         string     `json:"status"`
	FailureKind    *string    `json:"failure_kind,omitempty"`
	FailureMessage *string    `json:"failure_message,omitempty"`
	GrandTotal     float64    `json:"grand_total"`
	MaxMarks       float64    `json:"max_marks"`
	Percentage     float64    `json:"percentage"`
	Grade          string     `json:"grade"`
	Result         string     `json:"result"`
	Payload        []byte     `json:"payload,omitempty"`
	RetryWaitMs    int        `json:"retry_wait_ms"`
	CreatedAt      time.Time  `json:"created_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}
