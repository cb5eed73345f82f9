package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/navaneethakrishnanms/paper-ai-evaluation/internal/aggregator"
	"github.com/navaneethakrishnanms/paper-ai-evaluation/internal/models"
	"github.com/navaneethakrishnanms/paper-ai-evaluation/internal/repository"
	"github.com/navaneethakrishnanms/paper-ai-evaluation/internal/service/integration"
	"github.com/navaneethakrishnanms/paper-ai-evaluation/internal/worker"
	"github.com/navaneethakrishnanms/paper-ai-evaluation/pkg/clock"
)

type noopClock struct{}

func (noopClock) Now() time.Time { return time.Now() }

func (noopClock) Sleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

var _ clock.Clock = noopClock{}

// happyGrading completes every submission after one poll with a fixed grade.
type happyGrading struct{}

func (happyGrading) Submit(ctx context.Context, masters models.MasterDocuments, doc string, mode models.GradingMode) (string, error) {
	return "ext-" + doc, nil
}

func (happyGrading) PollStatus(ctx context.Context, externalJobID string) (*integration.PipelineStatus, error) {
	return &integration.PipelineStatus{Status: integration.PipelineCompleted}, nil
}

func (happyGrading) FetchResult(ctx context.Context, externalJobID string) ([]byte, error) {
	return json.Marshal(models.RawGrade{
		Sections: map[string]models.RawSection{
			"A": {Questions: []models.QuestionGrade{
				{QuestionID: "q1", AwardedMarks: 4, MaxMarks: 5},
				{QuestionID: "q2", AwardedMarks: 5, MaxMarks: 5},
				{QuestionID: "q3", AwardedMarks: 3, MaxMarks: 5},
			}},
		},
	})
}

// fakeArchive keeps archived records in memory, keyed by batch and job.
type fakeArchive struct {
	records map[string]map[int]*models.ResultRecord
	pingErr error
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{records: make(map[string]map[int]*models.ResultRecord)}
}

func (f *fakeArchive) Create(ctx context.Context, record *models.ResultRecord) error {
	if f.records[record.BatchID] == nil {
		f.records[record.BatchID] = make(map[int]*models.ResultRecord)
	}
	f.records[record.BatchID][record.JobID] = record
	return nil
}

func (f *fakeArchive) GetByJob(ctx context.Context, batchID string, jobID int) (*models.ResultRecord, error) {
	return f.records[batchID][jobID], nil
}

func (f *fakeArchive) ListByBatch(ctx context.Context, batchID string) ([]models.ResultRecord, error) {
	var out []models.ResultRecord
	for _, record := range f.records[batchID] {
		out = append(out, *record)
	}
	return out, nil
}

func (f *fakeArchive) ListRecent(ctx context.Context, limit int) ([]models.ResultRecord, error) {
	var out []models.ResultRecord
	for _, batch := range f.records {
		for _, record := range batch {
			if len(out) == limit {
				return out, nil
			}
			out = append(out, *record)
		}
	}
	return out, nil
}

func (f *fakeArchive) DeleteByBatch(ctx context.Context, batchID string) error {
	delete(f.records, batchID)
	return nil
}

func (f *fakeArchive) Ping(ctx context.Context) error { return f.pingErr }

func newTestService(t *testing.T) EvaluationService {
	t.Helper()
	return newTestServiceWithArchive(t, nil)
}

func newTestServiceWithArchive(t *testing.T, archive repository.ResultRepository) EvaluationService {
	t.Helper()

	store := worker.NewBatchStore()
	limiter := integration.NewRateLimitedClient(10, time.Millisecond, 10*time.Millisecond, noopClock{}, zerolog.Nop())
	orch := worker.NewOrchestrator(
		store, happyGrading{}, limiter, aggregator.DefaultConfig(),
		archive, nil,
		noopClock{}, time.Millisecond, 0,
		zerolog.Nop(),
	)

	return NewEvaluationService(store, orch, NewStatusReporter(), archive, models.ModeLiberal, zerolog.Nop())
}

func TestStartBatchRunsToCompletion(t *testing.T) {
	svc := newTestService(t)

	resp, err := svc.StartBatch(context.Background(), &models.StartBatchRequest{
		QuestionPaper:    "qp.pdf",
		AnswerKey:        "key.pdf",
		StudentDocuments: []string{"s1.pdf", "s2.pdf"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.JobCount)
	assert.Equal(t, "liberal", resp.Mode)

	require.Eventually(t, func() bool {
		status, err := svc.GetBatch(context.Background(), resp.BatchID)
		return err == nil && status.Status == models.BatchStatusFinished.String()
	}, 5*time.Second, 5*time.Millisecond)

	status, err := svc.GetBatch(context.Background(), resp.BatchID)
	require.NoError(t, err)
	assert.Equal(t, 2, status.Completed)
	assert.Equal(t, 0, status.Failed)
	assert.Equal(t, 100.0, status.PercentDone)

	job, err := svc.GetJobResult(context.Background(), resp.BatchID, 0)
	require.NoError(t, err)
	require.NotNil(t, job)
	require.NotNil(t, job.Result)
	assert.Equal(t, 9.0, job.Result.GrandTotal)
	assert.Equal(t, "PASS", job.Result.Result)
}

func TestStartBatchValidatesInput(t *testing.T) {
	svc := newTestService(t)

	tests := []struct {
		name string
		req  models.StartBatchRequest
	}{
		{"no question paper", models.StartBatchRequest{AnswerKey: "k", StudentDocuments: []string{"s"}}},
		{"no answer key", models.StartBatchRequest{QuestionPaper: "q", StudentDocuments: []string{"s"}}},
		{"no documents", models.StartBatchRequest{QuestionPaper: "q", AnswerKey: "k"}},
		{"empty document", models.StartBatchRequest{QuestionPaper: "q", AnswerKey: "k", StudentDocuments: []string{""}}},
		{"bad mode", models.StartBatchRequest{QuestionPaper: "q", AnswerKey: "k", StudentDocuments: []string{"s"}, Mode: "fast"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.StartBatch(context.Background(), &tt.req)
			assert.Error(t, err)
		})
	}
}

func TestGetBatchUnknownID(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.GetBatch(context.Background(), "no-such-batch")
	assert.ErrorIs(t, err, ErrBatchNotFound)
}

func TestGetJobResultPendingReturnsNil(t *testing.T) {
	svc := newTestService(t)

	resp, err := svc.StartBatch(context.Background(), &models.StartBatchRequest{
		QuestionPaper:    "qp.pdf",
		AnswerKey:        "key.pdf",
		StudentDocuments: []string{"s1.pdf"},
	})
	require.NoError(t, err)

	// The job may already be terminal by the time we ask; only assert the
	// contract when it is still in flight.
	job, err := svc.GetJob(context.Background(), resp.BatchID, 0)
	require.NoError(t, err)
	if !models.JobStatus(job.Status).IsTerminal() {
		result, err := svc.GetJobResult(context.Background(), resp.BatchID, 0)
		require.NoError(t, err)
		assert.Nil(t, result)
	}
}

func TestGetJobResultFallsBackToArchive(t *testing.T) {
	archive := newFakeArchive()
	svc := newTestServiceWithArchive(t, archive)

	payload, err := json.Marshal(models.AggregatedResult{GrandTotal: 9, MaxPossible: 10, Result: "PASS"})
	require.NoError(t, err)
	require.NoError(t, archive.Create(context.Background(), &models.ResultRecord{
		ID:             "r1",
		BatchID:        "evicted-batch",
		JobID:          0,
		SourceDocument: "s1.pdf",
		Status:         models.JobStatusCompleted.String(),
		Payload:        payload,
	}))

	// The batch is gone from memory, only the archive remembers it.
	job, err := svc.GetJobResult(context.Background(), "evicted-batch", 0)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "completed", job.Status)
	require.NotNil(t, job.Result)
	assert.Equal(t, 9.0, job.Result.GrandTotal)

	_, err = svc.GetJobResult(context.Background(), "never-existed", 0)
	assert.ErrorIs(t, err, ErrBatchNotFound)
}

func TestDeleteBatchRemovesStateAndArchive(t *testing.T) {
	archive := newFakeArchive()
	svc := newTestServiceWithArchive(t, archive)

	resp, err := svc.StartBatch(context.Background(), &models.StartBatchRequest{
		QuestionPaper:    "qp.pdf",
		AnswerKey:        "key.pdf",
		StudentDocuments: []string{"s1.pdf"},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		status, err := svc.GetBatch(context.Background(), resp.BatchID)
		return err == nil && status.Status == models.BatchStatusFinished.String()
	}, 5*time.Second, 5*time.Millisecond)

	// The processing goroutine may not have unregistered yet even though
	// the batch reads finished, so deletion can briefly conflict.
	require.Eventually(t, func() bool {
		return svc.DeleteBatch(context.Background(), resp.BatchID) == nil
	}, 5*time.Second, 5*time.Millisecond)

	_, err = svc.GetBatch(context.Background(), resp.BatchID)
	assert.ErrorIs(t, err, ErrBatchNotFound)

	records, err := archive.ListByBatch(context.Background(), resp.BatchID)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestArchiveDisabledOperations(t *testing.T) {
	svc := newTestService(t)

	assert.ErrorIs(t, svc.PingArchive(context.Background()), ErrArchiveDisabled)

	_, err := svc.ListRecentResults(context.Background(), 10)
	assert.ErrorIs(t, err, ErrArchiveDisabled)

	_, err = svc.ListArchivedResults(context.Background(), "b1")
	assert.ErrorIs(t, err, ErrArchiveDisabled)
}
