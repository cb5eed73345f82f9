package httpd

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/navaneethakrishnanms/paper-ai-evaluation/internal/models"
)

func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	batchID, jobID, ok := h.jobParams(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	response, err := h.evaluationService.GetJob(ctx, batchID, jobID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeSuccess(w, response)
}

// GetJobResult serves the final score of one job. A job still in flight
// gets 202 so pollers can tell pending apart from a missing job; a failed
// job gets 500 with the recorded failure attached.
func (h *Handler) GetJobResult(w http.ResponseWriter, r *http.Request) {
	batchID, jobID, ok := h.jobParams(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	response, err := h.evaluationService.GetJobResult(ctx, batchID, jobID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	if response == nil {
		writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"batch_id": batchID,
			"job_id":   jobID,
			"message":  "evaluation still in progress",
		})
		return
	}

	if response.Status == models.JobStatusFailed.String() {
		writeJSON(w, http.StatusInternalServerError, response)
		return
	}

	writeSuccess(w, response)
}

func (h *Handler) RetryJob(w http.ResponseWriter, r *http.Request) {
	batchID, jobID, ok := h.jobParams(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	response, err := h.evaluationService.RetryJob(ctx, batchID, jobID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, response)
}

func (h *Handler) jobParams(w http.ResponseWriter, r *http.Request) (string, int, bool) {
	batchID := chi.URLParam(r, "batchID")
	if _, err := uuid.Parse(batchID); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid batch ID format")
		return "", 0, false
	}

	jobID, err := strconv.Atoi(chi.URLParam(r, "jobID"))
	if err != nil || jobID < 0 {
		writeError(w, http.StatusBadRequest, "Invalid job ID")
		return "", 0, false
	}

	return batchID, jobID, true
}
