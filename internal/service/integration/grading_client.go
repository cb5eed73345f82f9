package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/navaneethakrishnanms/paper-ai-evaluation/internal/models"
)

// Pipeline status values reported by the grading service.
const (
	PipelineProcessing = "processing"
	PipelineCompleted  = "completed"
	PipelineFailed     = "failed"
)

// PipelineStatus is one poll observation of an external evaluation job.
type PipelineStatus struct {
	Status string `json:"status"`
	Stage  string `json:"stage,omitempty"`
	Error  string `json:"error,omitempty"`
}

// GradingClient is the boundary to the external grading pipeline. The
// pipeline is opaque: it extracts text from the documents, grades them with
// an LLM and reports progress; this service only submits, polls and fetches.
type GradingClient interface {
	Submit(ctx context.Context, masters models.MasterDocuments, studentDocument string, mode models.GradingMode) (string, error)
	PollStatus(ctx context.Context, externalJobID string) (*PipelineStatus, error)
	FetchResult(ctx context.Context, externalJobID string) ([]byte, error)
}

// RateLimitError signals an HTTP 429 from the grading pipeline.
// RetryAfter is zero when the server gave no guidance.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("grading pipeline rate limited, retry after %s", e.RetryAfter)
	}
	return "grading pipeline rate limited"
}

type gradingClient struct {
	baseURL        string
	submitEndpoint string
	statusEndpoint string
	resultEndpoint string
	client         *http.Client
	logger         zerolog.Logger
}

func NewGradingClient(baseURL, submitEndpoint, statusEndpoint, resultEndpoint string, timeout time.Duration, logger zerolog.Logger) GradingClient {
	return &gradingClient{
		baseURL:        baseURL,
		submitEndpoint: submitEndpoint,
		statusEndpoint: statusEndpoint,
		resultEndpoint: resultEndpoint,
		client: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

type submitRequest struct {
	QuestionPaper   string `json:"question_paper"`
	AnswerKey       string `json:"answer_key"`
	StudentDocument string `json:"student_document"`
	Mode            string `json:"mode"`
}

type submitResponse struct {
	JobID string `json:"job_id"`
}

func (c *gradingClient) Submit(ctx context.Context, masters models.MasterDocuments, studentDocument string, mode models.GradingMode) (string, error) {
	body, err := json.Marshal(submitRequest{
		QuestionPaper:   masters.QuestionPaper,
		AnswerKey:       masters.AnswerKey,
		StudentDocument: studentDocument,
		Mode:            mode.String(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal submit request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+c.submitEndpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to submit evaluation: %w", err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp); err != nil {
		return "", err
	}

	var sr submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return "", fmt.Errorf("failed to decode submit response: %w", err)
	}
	if sr.JobID == "" {
		return "", fmt.Errorf("grading pipeline returned empty job id")
	}

	c.logger.Info().
		Str("external_job_id", sr.JobID).
		Str("student_document", studentDocument).
		Msg("Evaluation submitted")

	return sr.JobID, nil
}

func (c *gradingClient) PollStatus(ctx context.Context, externalJobID string) (*PipelineStatus, error) {
	url := c.baseURL + fmt.Sprintf(c.statusEndpoint, externalJobID)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to poll status: %w", err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp); err != nil {
		return nil, err
	}

	var status PipelineStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to decode status response: %w", err)
	}

	return &status, nil
}

func (c *gradingClient) FetchResult(ctx context.Context, externalJobID string) ([]byte, error) {
	url := c.baseURL + fmt.Sprintf(c.resultEndpoint, externalJobID)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch result: %w", err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp); err != nil {
		return nil, err
	}

	return io.ReadAll(resp.Body)
}

func classifyStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return &RateLimitError{RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("grading pipeline returned status %d: %s", resp.StatusCode, string(body))
}

// parseRetryAfter accepts both delay-seconds and HTTP-date forms.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
