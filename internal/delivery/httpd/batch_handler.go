package httpd

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/navaneethakrishnanms/paper-ai-evaluation/internal/models"
	"github.com/navaneethakrishnanms/paper-ai-evaluation/internal/service"
	"github.com/navaneethakrishnanms/paper-ai-evaluation/internal/worker"
)

func (h *Handler) StartBatch(w http.ResponseWriter, r *http.Request) {
	var req models.StartBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.QuestionPaper == "" || req.AnswerKey == "" {
		writeError(w, http.StatusBadRequest, "question_paper and answer_key are required")
		return
	}
	if len(req.StudentDocuments) == 0 {
		writeError(w, http.StatusBadRequest, "student_documents must not be empty")
		return
	}
	if req.Mode != "" && !models.IsValidGradingMode(req.Mode) {
		writeError(w, http.StatusBadRequest, "mode must be strict or liberal")
		return
	}

	ctx := r.Context()
	response, err := h.evaluationService.StartBatch(ctx, &req)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, response)
}

func (h *Handler) ListBatches(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	response, err := h.evaluationService.ListBatches(ctx)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeSuccess(w, response)
}

func (h *Handler) GetBatchStatus(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchID")
	if _, err := uuid.Parse(batchID); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid batch ID format")
		return
	}

	ctx := r.Context()
	response, err := h.evaluationService.GetBatch(ctx, batchID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeSuccess(w, response)
}

func (h *Handler) CancelBatch(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchID")
	if _, err := uuid.Parse(batchID); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid batch ID format")
		return
	}

	ctx := r.Context()
	response, err := h.evaluationService.CancelBatch(ctx, batchID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeSuccess(w, response)
}

// DeleteBatch drops a terminal batch and its archived results. Running
// batches report a conflict; cancel them first.
func (h *Handler) DeleteBatch(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchID")
	if _, err := uuid.Parse(batchID); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid batch ID format")
		return
	}

	if err := h.evaluationService.DeleteBatch(r.Context(), batchID); err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeSuccess(w, map[string]interface{}{
		"batch_id": batchID,
		"message":  "batch deleted",
	})
}

func (h *Handler) ListRecentResults(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	records, err := h.evaluationService.ListRecentResults(r.Context(), limit)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeSuccess(w, map[string]interface{}{
		"results": records,
		"total":   len(records),
	})
}

func (h *Handler) ListArchivedResults(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchID")
	if _, err := uuid.Parse(batchID); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid batch ID format")
		return
	}

	ctx := r.Context()
	records, err := h.evaluationService.ListArchivedResults(ctx, batchID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeSuccess(w, map[string]interface{}{
		"batch_id": batchID,
		"results":  records,
		"total":    len(records),
	})
}

func (h *Handler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, worker.ErrBatchNotFound):
		writeError(w, http.StatusNotFound, "batch not found")
	case errors.Is(err, worker.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, worker.ErrBatchRunning):
		writeError(w, http.StatusConflict, "batch is currently running")
	case errors.Is(err, worker.ErrJobNotRetryable):
		writeError(w, http.StatusConflict, "only failed jobs can be retried")
	case errors.Is(err, service.ErrArchiveDisabled):
		writeError(w, http.StatusServiceUnavailable, "result archive is not enabled")
	default:
		h.logger.Error().Err(err).Msg("Service error")
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}
