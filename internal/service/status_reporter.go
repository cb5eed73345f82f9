package service

import (
	"fmt"
	"time"

	"github.com/navaneethakrishnanms/paper-ai-evaluation/internal/models"
)

// StatusReporter renders a batch snapshot into the progress view the API
// serves. It is a pure transformation; it never touches live state, so a
// report is internally consistent even while the batch keeps running.
type StatusReporter struct{}

func NewStatusReporter() *StatusReporter {
	return &StatusReporter{}
}

func (r *StatusReporter) Report(batch *models.BatchState) *models.BatchStatusResponse {
	resp := &models.BatchStatusResponse{
		BatchID:    batch.ID,
		Status:     batch.Status.String(),
		TotalJobs:  len(batch.Jobs),
		Counts:     make(map[string]int),
		CreatedAt:  batch.CreatedAt,
		StartedAt:  batch.StartedAt,
		FinishedAt: batch.FinishedAt,
	}

	// settled counts jobs with a final outcome. In a cancelled batch the
	// never-dispatched jobs stay at waiting but will not run again, so
	// they settle as cancelled too.
	var settled int
	var totalWait time.Duration
	for i := range batch.Jobs {
		job := &batch.Jobs[i]
		resp.Counts[job.Status.String()]++
		totalWait += job.RetryDelay

		switch {
		case job.Status == models.JobStatusCompleted:
			resp.Completed++
			settled++
		case job.Error != nil && job.Error.Kind == models.FailureCancelled:
			resp.CancelledJobs++
			settled++
		case job.Status == models.JobStatusFailed:
			resp.Failed++
			settled++
		case batch.Status == models.BatchStatusCancelled:
			resp.CancelledJobs++
			settled++
		}
	}
	resp.TotalRetryWait = totalWait

	if len(batch.Jobs) > 0 {
		resp.PercentDone = float64(settled) / float64(len(batch.Jobs)) * 100
	}

	if batch.Cursor >= 0 && batch.Cursor < len(batch.Jobs) {
		current := &batch.Jobs[batch.Cursor]
		if !current.Status.IsTerminal() {
			id := current.ID
			resp.CurrentJobID = &id
			resp.CurrentStage = stageLabel(current)
		}
	}

	resp.StatusText = r.statusText(batch, resp)
	return resp
}

func (r *StatusReporter) statusText(batch *models.BatchState, resp *models.BatchStatusResponse) string {
	switch batch.Status {
	case models.BatchStatusPending:
		return fmt.Sprintf("Waiting to start, %d documents queued", resp.TotalJobs)
	case models.BatchStatusCancelled:
		return fmt.Sprintf("Cancelled: %d completed, %d failed, %d cancelled", resp.Completed, resp.Failed, resp.CancelledJobs)
	case models.BatchStatusFinished:
		return fmt.Sprintf("Finished: %d completed, %d failed", resp.Completed, resp.Failed)
	}

	if batch.Cancelled {
		return "Cancelling, waiting for the current job to stop"
	}
	if resp.CurrentJobID != nil {
		return fmt.Sprintf("Evaluating document %d of %d (%s)", *resp.CurrentJobID+1, resp.TotalJobs, resp.CurrentStage)
	}
	return fmt.Sprintf("Running: %d of %d documents done", resp.Completed+resp.Failed+resp.CancelledJobs, resp.TotalJobs)
}

func stageLabel(job *models.JobRecord) string {
	if job.StageDetail != "" {
		return job.StageDetail
	}
	return job.Status.String()
}
