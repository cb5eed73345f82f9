package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/navaneethakrishnanms/paper-ai-evaluation/internal/models"
)

func reporterBatch() *models.BatchState {
	now := time.Now()
	return &models.BatchState{
		ID:        "b1",
		Mode:      models.ModeLiberal,
		Status:    models.BatchStatusRunning,
		Cursor:    2,
		CreatedAt: now,
		StartedAt: &now,
		Jobs: []models.JobRecord{
			{ID: 0, SourceDocument: "s1.pdf", Status: models.JobStatusCompleted, RetryDelay: 10 * time.Second},
			{ID: 1, SourceDocument: "s2.pdf", Status: models.JobStatusFailed, Error: models.NewJobError(models.FailureSubmission, "boom")},
			{ID: 2, SourceDocument: "s3.pdf", Status: models.JobStatusGrading, StageDetail: "grading_answers", RetryDelay: 5 * time.Second},
			{ID: 3, SourceDocument: "s4.pdf", Status: models.JobStatusWaiting},
		},
	}
}

func TestReportCountsAndProgress(t *testing.T) {
	report := NewStatusReporter().Report(reporterBatch())

	assert.Equal(t, "b1", report.BatchID)
	assert.Equal(t, 4, report.TotalJobs)
	assert.Equal(t, 1, report.Completed)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 0, report.CancelledJobs)
	assert.Equal(t, 50.0, report.PercentDone)
	assert.Equal(t, 15*time.Second, report.TotalRetryWait)

	assert.Equal(t, map[string]int{
		"completed": 1,
		"failed":    1,
		"grading":   1,
		"waiting":   1,
	}, report.Counts)
}

func TestReportCurrentJob(t *testing.T) {
	report := NewStatusReporter().Report(reporterBatch())

	if assert.NotNil(t, report.CurrentJobID) {
		assert.Equal(t, 2, *report.CurrentJobID)
	}
	assert.Equal(t, "grading_answers", report.CurrentStage)
	assert.Equal(t, "Evaluating document 3 of 4 (grading_answers)", report.StatusText)
}

func TestReportCancelledJobsCountedSeparately(t *testing.T) {
	batch := reporterBatch()
	batch.Status = models.BatchStatusCancelled
	batch.Cancelled = true
	batch.Cursor = -1
	// Job 2 was in flight when the cancel landed; job 3 was never
	// dispatched and keeps its waiting status.
	batch.Jobs[2].Status = models.JobStatusFailed
	batch.Jobs[2].Error = models.NewJobError(models.FailureCancelled, "batch cancelled")

	report := NewStatusReporter().Report(batch)

	assert.Equal(t, 1, report.Completed)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 2, report.CancelledJobs, "in-flight plus never-dispatched")
	assert.Equal(t, 100.0, report.PercentDone)
	assert.Equal(t, 1, report.Counts["waiting"])
	assert.Nil(t, report.CurrentJobID)
	assert.Equal(t, "Cancelled: 1 completed, 1 failed, 2 cancelled", report.StatusText)
}

func TestReportFinishedBatch(t *testing.T) {
	now := time.Now()
	batch := reporterBatch()
	batch.Status = models.BatchStatusFinished
	batch.Cursor = -1
	batch.Jobs[2].Status = models.JobStatusCompleted
	batch.Jobs[3].Status = models.JobStatusCompleted
	batch.FinishedAt = &now

	report := NewStatusReporter().Report(batch)

	assert.Equal(t, 100.0, report.PercentDone)
	assert.Equal(t, "Finished: 3 completed, 1 failed", report.StatusText)
}

func TestReportPendingBatch(t *testing.T) {
	batch := &models.BatchState{
		ID:     "b2",
		Status: models.BatchStatusPending,
		Cursor: -1,
		Jobs: []models.JobRecord{
			{ID: 0, Status: models.JobStatusWaiting},
			{ID: 1, Status: models.JobStatusWaiting},
		},
	}

	report := NewStatusReporter().Report(batch)

	assert.Zero(t, report.PercentDone)
	assert.Equal(t, "Waiting to start, 2 documents queued", report.StatusText)
}

func TestReportEmptyBatchDoesNotDivideByZero(t *testing.T) {
	report := NewStatusReporter().Report(&models.BatchState{ID: "b3", Status: models.BatchStatusRunning, Cursor: -1})

	assert.Zero(t, report.PercentDone)
	assert.Equal(t, 0, report.TotalJobs)
}
