package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/navaneethakrishnanms/paper-ai-evaluation/internal/models"
	"github.com/navaneethakrishnanms/paper-ai-evaluation/internal/repository"
	"github.com/navaneethakrishnanms/paper-ai-evaluation/internal/worker"
)

var (
	ErrBatchNotFound   = worker.ErrBatchNotFound
	ErrJobNotFound     = worker.ErrJobNotFound
	ErrArchiveDisabled = errors.New("result archive is not enabled")
)

const (
	defaultRecentLimit = 50
	maxRecentLimit     = 200
)

type EvaluationService interface {
	StartBatch(ctx context.Context, req *models.StartBatchRequest) (*models.StartBatchResponse, error)
	GetBatch(ctx context.Context, batchID string) (*models.BatchStatusResponse, error)
	ListBatches(ctx context.Context) (*models.BatchListResponse, error)
	GetJob(ctx context.Context, batchID string, jobID int) (*models.JobResponse, error)
	GetJobResult(ctx context.Context, batchID string, jobID int) (*models.JobResponse, error)
	CancelBatch(ctx context.Context, batchID string) (*models.CancelResponse, error)
	RetryJob(ctx context.Context, batchID string, jobID int) (*models.RetryResponse, error)
	DeleteBatch(ctx context.Context, batchID string) error
	ListArchivedResults(ctx context.Context, batchID string) ([]models.ResultRecord, error)
	ListRecentResults(ctx context.Context, limit int) ([]models.ResultRecord, error)
	PingArchive(ctx context.Context) error
}

type evaluationService struct {
	store        *worker.BatchStore
	orchestrator *worker.Orchestrator
	reporter     *StatusReporter
	resultRepo   repository.ResultRepository
	defaultMode  models.GradingMode
	logger       zerolog.Logger
}

func NewEvaluationService(
	store *worker.BatchStore,
	orchestrator *worker.Orchestrator,
	reporter *StatusReporter,
	resultRepo repository.ResultRepository,
	defaultMode models.GradingMode,
	logger zerolog.Logger,
) EvaluationService {
	return &evaluationService{
		store:        store,
		orchestrator: orchestrator,
		reporter:     reporter,
		resultRepo:   resultRepo,
		defaultMode:  defaultMode,
		logger:       logger,
	}
}

func (s *evaluationService) StartBatch(ctx context.Context, req *models.StartBatchRequest) (*models.StartBatchResponse, error) {
	if req.QuestionPaper == "" {
		return nil, errors.New("question_paper is required")
	}
	if req.AnswerKey == "" {
		return nil, errors.New("answer_key is required")
	}
	if len(req.StudentDocuments) == 0 {
		return nil, errors.New("at least one student document is required")
	}

	mode := s.defaultMode
	if req.Mode != "" {
		if !models.IsValidGradingMode(req.Mode) {
			return nil, fmt.Errorf("invalid grading mode: %s", req.Mode)
		}
		mode = models.GradingMode(req.Mode)
	}

	batch := &models.BatchState{
		ID: uuid.New().String(),
		MasterDocuments: models.MasterDocuments{
			QuestionPaper: req.QuestionPaper,
			AnswerKey:     req.AnswerKey,
		},
		Mode:      mode,
		Jobs:      make([]models.JobRecord, 0, len(req.StudentDocuments)),
		Cursor:    -1,
		Status:    models.BatchStatusPending,
		CreatedAt: time.Now(),
	}
	for i, doc := range req.StudentDocuments {
		if doc == "" {
			return nil, fmt.Errorf("student document %d is empty", i)
		}
		batch.Jobs = append(batch.Jobs, models.JobRecord{
			ID:             i,
			SourceDocument: doc,
			Status:         models.JobStatusWaiting,
		})
	}

	s.store.Create(batch)

	if err := s.orchestrator.Start(batch.ID); err != nil {
		s.store.Delete(batch.ID)
		return nil, fmt.Errorf("failed to start batch: %w", err)
	}

	s.logger.Info().
		Str("batch_id", batch.ID).
		Int("jobs", len(batch.Jobs)).
		Str("mode", mode.String()).
		Msg("Batch created")

	return &models.StartBatchResponse{
		BatchID:   batch.ID,
		Status:    models.BatchStatusRunning.String(),
		JobCount:  len(batch.Jobs),
		Mode:      mode.String(),
		CreatedAt: batch.CreatedAt,
	}, nil
}

func (s *evaluationService) GetBatch(ctx context.Context, batchID string) (*models.BatchStatusResponse, error) {
	batch, err := s.store.Get(batchID)
	if err != nil {
		return nil, err
	}
	return s.reporter.Report(batch), nil
}

func (s *evaluationService) ListBatches(ctx context.Context) (*models.BatchListResponse, error) {
	batches := s.store.List()

	resp := &models.BatchListResponse{
		Batches: make([]models.BatchStatusResponse, 0, len(batches)),
		Total:   len(batches),
	}
	for _, batch := range batches {
		resp.Batches = append(resp.Batches, *s.reporter.Report(batch))
	}
	return resp, nil
}

func (s *evaluationService) GetJob(ctx context.Context, batchID string, jobID int) (*models.JobResponse, error) {
	job, err := s.store.GetJob(batchID, jobID)
	if err != nil {
		return nil, err
	}
	return jobResponse(batchID, job), nil
}

// GetJobResult is GetJob restricted to terminal jobs. Callers polling for a
// score use it to tell "not done yet" apart from "done". Batches evicted
// from memory fall back to the archive, so scores survive a restart.
func (s *evaluationService) GetJobResult(ctx context.Context, batchID string, jobID int) (*models.JobResponse, error) {
	job, err := s.store.GetJob(batchID, jobID)
	if err != nil {
		if s.resultRepo == nil {
			return nil, err
		}
		return s.archivedJobResponse(ctx, batchID, jobID, err)
	}
	if !job.Status.IsTerminal() {
		return nil, nil
	}
	return jobResponse(batchID, job), nil
}

func (s *evaluationService) archivedJobResponse(ctx context.Context, batchID string, jobID int, notFound error) (*models.JobResponse, error) {
	record, err := s.resultRepo.GetByJob(ctx, batchID, jobID)
	if err != nil {
		s.logger.Error().Err(err).
			Str("batch_id", batchID).
			Int("job_id", jobID).
			Msg("Archive lookup failed")
		return nil, notFound
	}
	if record == nil {
		return nil, notFound
	}

	resp := &models.JobResponse{
		BatchID:        batchID,
		JobID:          record.JobID,
		SourceDocument: record.SourceDocument,
		Status:         record.Status,
		StartedAt:      record.StartedAt,
		FinishedAt:     record.CompletedAt,
	}
	if record.FailureKind != nil {
		message := ""
		if record.FailureMessage != nil {
			message = *record.FailureMessage
		}
		resp.Error = models.NewJobError(models.FailureKind(*record.FailureKind), message)
	}
	if len(record.Payload) > 0 {
		var result models.AggregatedResult
		if err := json.Unmarshal(record.Payload, &result); err == nil {
			resp.Result = &result
		}
	}
	return resp, nil
}

func (s *evaluationService) CancelBatch(ctx context.Context, batchID string) (*models.CancelResponse, error) {
	newly, err := s.orchestrator.Cancel(batchID)
	if err != nil {
		return nil, err
	}

	message := "cancellation requested"
	if !newly {
		message = "batch already cancelled or finished"
	}

	batch, err := s.store.Get(batchID)
	if err != nil {
		return nil, err
	}
	return &models.CancelResponse{
		BatchID: batchID,
		Status:  batch.Status.String(),
		Message: message,
	}, nil
}

func (s *evaluationService) RetryJob(ctx context.Context, batchID string, jobID int) (*models.RetryResponse, error) {
	if err := s.orchestrator.Retry(batchID, jobID); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("batch_id", batchID).
		Int("job_id", jobID).
		Msg("Job retry started")

	return &models.RetryResponse{
		BatchID: batchID,
		JobID:   jobID,
		Status:  models.JobStatusWaiting.String(),
		Message: "retry started",
	}, nil
}

// DeleteBatch removes a terminal batch from memory together with its
// archived results. Running batches must be cancelled first.
func (s *evaluationService) DeleteBatch(ctx context.Context, batchID string) error {
	if s.orchestrator.Running(batchID) {
		return worker.ErrBatchRunning
	}
	if _, err := s.store.Get(batchID); err != nil {
		return err
	}

	if s.resultRepo != nil {
		if err := s.resultRepo.DeleteByBatch(ctx, batchID); err != nil {
			return fmt.Errorf("failed to delete archived results: %w", err)
		}
	}
	s.store.Delete(batchID)

	s.logger.Info().Str("batch_id", batchID).Msg("Batch deleted")
	return nil
}

func (s *evaluationService) ListArchivedResults(ctx context.Context, batchID string) ([]models.ResultRecord, error) {
	if s.resultRepo == nil {
		return nil, ErrArchiveDisabled
	}
	return s.resultRepo.ListByBatch(ctx, batchID)
}

func (s *evaluationService) ListRecentResults(ctx context.Context, limit int) ([]models.ResultRecord, error) {
	if s.resultRepo == nil {
		return nil, ErrArchiveDisabled
	}
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}
	return s.resultRepo.ListRecent(ctx, limit)
}

func (s *evaluationService) PingArchive(ctx context.Context) error {
	if s.resultRepo == nil {
		return ErrArchiveDisabled
	}
	return s.resultRepo.Ping(ctx)
}

func jobResponse(batchID string, job *models.JobRecord) *models.JobResponse {
	return &models.JobResponse{
		BatchID:        batchID,
		JobID:          job.ID,
		SourceDocument: job.SourceDocument,
		Status:         job.Status.String(),
		StageDetail:    job.StageDetail,
		Error:          job.Error,
		Result:         job.Result,
		StartedAt:      job.StartedAt,
		FinishedAt:     job.FinishedAt,
	}
}
