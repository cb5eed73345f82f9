package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/navaneethakrishnanms/paper-ai-evaluation/internal/aggregator"
	"github.com/navaneethakrishnanms/paper-ai-evaluation/internal/llm"
	"github.com/navaneethakrishnanms/paper-ai-evaluation/internal/models"
	"github.com/navaneethakrishnanms/paper-ai-evaluation/internal/repository"
	"github.com/navaneethakrishnanms/paper-ai-evaluation/internal/service/integration"
	"github.com/navaneethakrishnanms/paper-ai-evaluation/pkg/clock"
)

var (
	ErrBatchRunning    = errors.New("batch is currently running")
	ErrJobNotRetryable = errors.New("job is not in a retryable state")
)

// Orchestrator drives batches through the external grading pipeline. Each
// batch is processed by exactly one goroutine that walks the jobs in
// insertion order; one slow or failing job never corrupts its neighbours
// because nothing else writes the batch while it runs.
type Orchestrator struct {
	store   *BatchStore
	grading integration.GradingClient
	limiter *integration.RateLimitedClient
	aggCfg  aggregator.Config

	// results and events are optional collaborators. A nil repository
	// skips archiving, a nil events client skips publishing.
	results repository.ResultRepository
	events  integration.EventsClient

	clk          clock.Clock
	pollInterval time.Duration
	// maxPolls caps status polls per job, 0 means unlimited.
	maxPolls int
	logger   zerolog.Logger

	baseCtx context.Context

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

func NewOrchestrator(
	store *BatchStore,
	grading integration.GradingClient,
	limiter *integration.RateLimitedClient,
	aggCfg aggregator.Config,
	results repository.ResultRepository,
	events integration.EventsClient,
	clk clock.Clock,
	pollInterval time.Duration,
	maxPolls int,
	logger zerolog.Logger,
) *Orchestrator {
	return &Orchestrator{
		store:        store,
		grading:      grading,
		limiter:      limiter,
		aggCfg:       aggCfg,
		results:      results,
		events:       events,
		clk:          clk,
		pollInterval: pollInterval,
		maxPolls:     maxPolls,
		logger:       logger,
		baseCtx:      context.Background(),
		cancels:      make(map[string]context.CancelFunc),
	}
}

// SetBaseContext replaces the parent context new batch runs derive from.
// Call before starting any batch; shutting the parent down cancels them all.
func (o *Orchestrator) SetBaseContext(ctx context.Context) {
	o.baseCtx = ctx
}

// Start launches the processing goroutine for a batch already registered in
// the store. It refuses to double-start a running batch.
func (o *Orchestrator) Start(batchID string) error {
	o.mu.Lock()
	if _, running := o.cancels[batchID]; running {
		o.mu.Unlock()
		return ErrBatchRunning
	}
	ctx, cancel := context.WithCancel(o.baseCtx)
	o.cancels[batchID] = cancel
	o.mu.Unlock()

	now := time.Now()
	if err := o.store.Update(batchID, func(batch *models.BatchState) {
		batch.Status = models.BatchStatusRunning
		batch.StartedAt = &now
	}); err != nil {
		o.release(batchID)
		return err
	}

	go o.run(ctx, batchID)
	return nil
}

// Cancel flips the batch's cancellation flag and wakes its goroutine out of
// any backoff or poll sleep. Safe to call repeatedly; only the first call
// has an effect. Jobs already terminal keep their outcomes.
func (o *Orchestrator) Cancel(batchID string) (bool, error) {
	newly, err := o.store.RequestCancel(batchID)
	if err != nil {
		return false, err
	}
	if !newly {
		return false, nil
	}

	o.mu.Lock()
	cancel, running := o.cancels[batchID]
	o.mu.Unlock()
	if running {
		cancel()
	} else {
		// No goroutine to observe the flag, finalize in place.
		o.finishBatch(batchID)
	}

	o.logger.Info().Str("batch_id", batchID).Msg("Batch cancellation requested")
	return true, nil
}

// Retry re-runs one failed job of an idle batch. The job keeps its ID and
// source document; status, result, error and timings are reset.
func (o *Orchestrator) Retry(batchID string, jobID int) error {
	o.mu.Lock()
	if _, running := o.cancels[batchID]; running {
		o.mu.Unlock()
		return ErrBatchRunning
	}
	ctx, cancel := context.WithCancel(o.baseCtx)
	o.cancels[batchID] = cancel
	o.mu.Unlock()

	var retryable bool
	err := o.store.Update(batchID, func(batch *models.BatchState) {
		for i := range batch.Jobs {
			if batch.Jobs[i].ID != jobID {
				continue
			}
			if batch.Jobs[i].Status != models.JobStatusFailed {
				return
			}
			retryable = true
			batch.Jobs[i] = models.JobRecord{
				ID:             jobID,
				SourceDocument: batch.Jobs[i].SourceDocument,
				Status:         models.JobStatusWaiting,
			}
			// A retry opens a new processing session; a cancel from the
			// previous session must not stop the retried job.
			batch.Cancelled = false
			batch.Status = models.BatchStatusRunning
			batch.FinishedAt = nil
		}
	})
	if err != nil {
		o.release(batchID)
		return err
	}
	if !retryable {
		o.release(batchID)
		return ErrJobNotRetryable
	}

	go func() {
		defer o.release(batchID)
		o.processJob(ctx, batchID, jobID)
		o.finishBatch(batchID)
	}()
	return nil
}

// Running reports whether the batch currently has a processing goroutine.
func (o *Orchestrator) Running(batchID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, running := o.cancels[batchID]
	return running
}

func (o *Orchestrator) release(batchID string) {
	o.mu.Lock()
	if cancel, ok := o.cancels[batchID]; ok {
		cancel()
		delete(o.cancels, batchID)
	}
	o.mu.Unlock()
}

func (o *Orchestrator) run(ctx context.Context, batchID string) {
	defer o.release(batchID)

	batch, err := o.store.Get(batchID)
	if err != nil {
		o.logger.Error().Err(err).Str("batch_id", batchID).Msg("Batch disappeared before processing")
		return
	}

	o.logger.Info().
		Str("batch_id", batchID).
		Int("jobs", len(batch.Jobs)).
		Str("mode", batch.Mode.String()).
		Msg("Starting batch processing")

	for _, job := range batch.Jobs {
		if job.Status.IsTerminal() {
			continue
		}
		if o.store.IsCancelled(batchID) {
			break
		}

		_ = o.store.Update(batchID, func(b *models.BatchState) {
			for i := range b.Jobs {
				if b.Jobs[i].ID == job.ID {
					b.Cursor = i
				}
			}
		})

		o.processJob(ctx, batchID, job.ID)
	}

	o.finishBatch(batchID)
}

// processJob walks one student document through the pipeline: submit, poll
// until the pipeline settles, fetch and aggregate. Every failure is recorded
// on the job and never propagates to the rest of the batch.
func (o *Orchestrator) processJob(ctx context.Context, batchID string, jobID int) {
	start := time.Now()

	batch, err := o.store.Get(batchID)
	if err != nil {
		return
	}
	var job *models.JobRecord
	for i := range batch.Jobs {
		if batch.Jobs[i].ID == jobID {
			job = &batch.Jobs[i]
		}
	}
	if job == nil {
		return
	}

	logger := o.logger.With().
		Str("batch_id", batchID).
		Int("job_id", jobID).
		Str("document", job.SourceDocument).
		Logger()

	// A cancel that lands before submission leaves the job untouched at
	// waiting; only in-flight jobs record a cancelled failure.
	if o.store.IsCancelled(batchID) {
		return
	}

	_ = o.store.UpdateJob(batchID, jobID, func(j *models.JobRecord) {
		j.Status = models.JobStatusUploading
		j.StartedAt = &start
	})

	logger.Info().Msg("Submitting job to grading pipeline")

	var totalWait time.Duration
	var externalID string
	waited, err := o.limiter.Call(ctx, "submit", func(ctx context.Context) error {
		id, submitErr := o.grading.Submit(ctx, batch.MasterDocuments, job.SourceDocument, batch.Mode)
		if submitErr != nil {
			return submitErr
		}
		externalID = id
		return nil
	})
	totalWait += waited
	if err != nil {
		o.failJob(batchID, jobID, classifyFailure(err, models.FailureSubmission), err.Error(), totalWait, start)
		return
	}

	_ = o.store.UpdateJob(batchID, jobID, func(j *models.JobRecord) {
		j.ExternalJobID = externalID
		j.Status = models.JobStatusExtracting
		j.RetryDelay = totalWait
	})

	status, waited, err := o.pollUntilSettled(ctx, batchID, jobID, externalID, logger)
	totalWait += waited
	if err != nil {
		o.failJob(batchID, jobID, classifyFailure(err, models.FailurePolling), err.Error(), totalWait, start)
		return
	}
	if status.Status == integration.PipelineFailed {
		msg := status.Error
		if msg == "" {
			msg = "grading pipeline reported failure"
		}
		o.failJob(batchID, jobID, models.FailurePolling, msg, totalWait, start)
		return
	}

	payload, waited, err := o.fetchResult(ctx, externalID)
	totalWait += waited
	if err != nil {
		o.failJob(batchID, jobID, classifyFailure(err, models.FailurePolling), err.Error(), totalWait, start)
		return
	}

	raw, err := llm.ParseRawGrade(payload)
	if err != nil {
		o.failJob(batchID, jobID, models.FailureAggregation, err.Error(), totalWait, start)
		return
	}

	result, err := aggregator.Aggregate(*raw, o.aggCfg, batch.Mode)
	if err != nil {
		o.failJob(batchID, jobID, models.FailureAggregation, err.Error(), totalWait, start)
		return
	}

	finished := time.Now()
	_ = o.store.UpdateJob(batchID, jobID, func(j *models.JobRecord) {
		j.Status = models.JobStatusCompleted
		j.StageDetail = ""
		j.Result = &result
		j.RetryDelay = totalWait
		j.FinishedAt = &finished
	})

	logger.Info().
		Float64("grand_total", result.GrandTotal).
		Float64("max_marks", result.MaxPossible).
		Str("result", result.Result).
		Str("grade", result.Grade).
		Dur("retry_wait", totalWait).
		Msg("Job completed")

	o.archiveJob(batchID, jobID)
	o.publishJobCompleted(batchID, jobID)
}

// pollUntilSettled polls the pipeline until it reports completed or failed.
// Each observation updates the job's visible stage. Sleeps go through the
// injected clock so cancellation and tests interrupt them immediately.
func (o *Orchestrator) pollUntilSettled(ctx context.Context, batchID string, jobID int, externalID string, logger zerolog.Logger) (*integration.PipelineStatus, time.Duration, error) {
	var totalWait time.Duration

	for poll := 1; ; poll++ {
		if o.maxPolls > 0 && poll > o.maxPolls {
			return nil, totalWait, fmt.Errorf("no terminal status after %d polls", o.maxPolls)
		}
		if o.store.IsCancelled(batchID) {
			return nil, totalWait, context.Canceled
		}

		var status *integration.PipelineStatus
		waited, err := o.limiter.Call(ctx, "poll_status", func(ctx context.Context) error {
			st, pollErr := o.grading.PollStatus(ctx, externalID)
			if pollErr != nil {
				return pollErr
			}
			status = st
			return nil
		})
		totalWait += waited
		if err != nil {
			return nil, totalWait, err
		}

		if status.Status == integration.PipelineCompleted || status.Status == integration.PipelineFailed {
			return status, totalWait, nil
		}

		jobStatus := stageToStatus(status.Stage)
		_ = o.store.UpdateJob(batchID, jobID, func(j *models.JobRecord) {
			j.Status = jobStatus
			j.StageDetail = status.Stage
		})

		logger.Debug().
			Int("poll", poll).
			Str("stage", status.Stage).
			Msg("Pipeline still processing")

		if err := o.clk.Sleep(ctx, o.pollInterval); err != nil {
			return nil, totalWait, err
		}
	}
}

func (o *Orchestrator) fetchResult(ctx context.Context, externalID string) ([]byte, time.Duration, error) {
	var payload []byte
	waited, err := o.limiter.Call(ctx, "fetch_result", func(ctx context.Context) error {
		body, fetchErr := o.grading.FetchResult(ctx, externalID)
		if fetchErr != nil {
			return fetchErr
		}
		payload = body
		return nil
	})
	return payload, waited, err
}

func (o *Orchestrator) failJob(batchID string, jobID int, kind models.FailureKind, message string, wait time.Duration, start time.Time) {
	finished := time.Now()
	_ = o.store.UpdateJob(batchID, jobID, func(j *models.JobRecord) {
		j.Status = models.JobStatusFailed
		j.StageDetail = ""
		j.Error = models.NewJobError(kind, message)
		j.RetryDelay = wait
		if j.StartedAt == nil {
			j.StartedAt = &start
		}
		j.FinishedAt = &finished
	})

	o.logger.Warn().
		Str("batch_id", batchID).
		Int("job_id", jobID).
		Str("failure_kind", kind.String()).
		Str("reason", message).
		Msg("Job failed")

	o.archiveJob(batchID, jobID)
	o.publishJobCompleted(batchID, jobID)
}

// finishBatch stamps the batch terminal and emits the summary event. Jobs
// never dispatched keep their waiting status even on cancellation; the
// summary counts them as cancelled because they will not run again.
func (o *Orchestrator) finishBatch(batchID string) {
	now := time.Now()
	var completed, failed, cancelledJobs int

	err := o.store.Update(batchID, func(batch *models.BatchState) {
		if batch.Cancelled {
			batch.Status = models.BatchStatusCancelled
		} else {
			batch.Status = models.BatchStatusFinished
		}
		batch.Cursor = -1
		batch.FinishedAt = &now

		for i := range batch.Jobs {
			switch {
			case batch.Jobs[i].Status == models.JobStatusCompleted:
				completed++
			case batch.Jobs[i].Error != nil && batch.Jobs[i].Error.Kind == models.FailureCancelled:
				cancelledJobs++
			case batch.Jobs[i].Status == models.JobStatusFailed:
				failed++
			case batch.Cancelled:
				cancelledJobs++
			}
		}
	})
	if err != nil {
		return
	}

	o.logger.Info().
		Str("batch_id", batchID).
		Int("completed", completed).
		Int("failed", failed).
		Int("cancelled", cancelledJobs).
		Msg("Batch finished")

	if o.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	event := &models.BatchFinishedEvent{
		BatchID:   batchID,
		Completed: completed,
		Failed:    failed,
		Cancelled: cancelledJobs,
		Timestamp: now.Unix(),
	}
	if err := o.events.PublishBatchFinished(ctx, event); err != nil {
		o.logger.Error().Err(err).Str("batch_id", batchID).Msg("Failed to publish batch finished event")
	}
}

// archiveJob persists a terminal job to postgres, best effort.
func (o *Orchestrator) archiveJob(batchID string, jobID int) {
	if o.results == nil {
		return
	}

	job, err := o.store.GetJob(batchID, jobID)
	if err != nil || !job.Status.IsTerminal() {
		return
	}

	record := &models.ResultRecord{
		ID:             uuid.New().String(),
		BatchID:        batchID,
		JobID:          job.ID,
		SourceDocument: job.SourceDocument,
		Status:         job.Status.String(),
		RetryWaitMs:    int(job.RetryDelay.Milliseconds()),
		CreatedAt:      time.Now(),
		StartedAt:      job.StartedAt,
		CompletedAt:    job.FinishedAt,
	}
	if job.Error != nil {
		kind := job.Error.Kind.String()
		msg := job.Error.Message
		record.FailureKind = &kind
		record.FailureMessage = &msg
	}
	if job.Result != nil {
		record.GrandTotal = job.Result.GrandTotal
		record.MaxMarks = job.Result.MaxPossible
		record.Percentage = job.Result.Percentage
		record.Grade = job.Result.Grade
		record.Result = job.Result.Result
		if payload, err := json.Marshal(job.Result); err == nil {
			record.Payload = payload
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := o.results.Create(ctx, record); err != nil {
		o.logger.Error().Err(err).
			Str("batch_id", batchID).
			Int("job_id", jobID).
			Msg("Failed to archive job result")
	}
}

// publishJobCompleted emits the per-job event, best effort.
func (o *Orchestrator) publishJobCompleted(batchID string, jobID int) {
	if o.events == nil {
		return
	}

	job, err := o.store.GetJob(batchID, jobID)
	if err != nil {
		return
	}

	event := &models.JobCompletedEvent{
		BatchID:        batchID,
		JobID:          job.ID,
		SourceDocument: job.SourceDocument,
		Status:         job.Status.String(),
		Timestamp:      time.Now().Unix(),
	}
	if job.Error != nil {
		event.FailureKind = job.Error.Kind.String()
	}
	if job.Result != nil {
		event.GrandTotal = job.Result.GrandTotal
		event.Result = job.Result.Result
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.events.PublishJobCompleted(ctx, event); err != nil {
		o.logger.Error().Err(err).
			Str("batch_id", batchID).
			Int("job_id", jobID).
			Msg("Failed to publish job completed event")
	}
}

// stageToStatus collapses the pipeline's fine-grained stage names into the
// two externally visible processing states. Extraction stages keep their
// own status, everything after that counts as grading.
func stageToStatus(stage string) models.JobStatus {
	if strings.HasPrefix(strings.ToLower(stage), "extract") {
		return models.JobStatusExtracting
	}
	return models.JobStatusGrading
}

// classifyFailure maps transport-level errors onto the failure taxonomy.
// Context cancellation means the batch was cancelled mid-call; an exhausted
// retry budget keeps its own kind so operators can tell it apart from a
// plain upstream failure.
func classifyFailure(err error, fallback models.FailureKind) models.FailureKind {
	switch {
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return models.FailureCancelled
	case errors.Is(err, integration.ErrRateLimitExhausted):
		return models.FailureRateLimitExhausted
	default:
		return fallback
	}
}
