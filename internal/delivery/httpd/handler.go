package httpd

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/navaneethakrishnanms/paper-ai-evaluation/internal/service"
)

type Handler struct {
	evaluationService service.EvaluationService
	logger            zerolog.Logger
}

func NewHandler(evaluationService service.EvaluationService, logger zerolog.Logger) *Handler {
	return &Handler{
		evaluationService: evaluationService,
		logger:            logger,
	}
}

func (h *Handler) RegisterRoutes(router chi.Router) {
	router.Get("/health", h.HealthCheck)

	router.Route("/api/v1", func(api chi.Router) {
		api.Get("/results", h.ListRecentResults)

		api.Route("/batches", func(r chi.Router) {
			r.Post("/", h.StartBatch)
			r.Get("/", h.ListBatches)
			r.Get("/{batchID}", h.GetBatchStatus)
			r.Delete("/{batchID}", h.DeleteBatch)
			r.Post("/{batchID}/cancel", h.CancelBatch)
			r.Get("/{batchID}/results", h.ListArchivedResults)

			r.Route("/{batchID}/jobs", func(jobs chi.Router) {
				jobs.Get("/{jobID}", h.GetJob)
				jobs.Get("/{jobID}/result", h.GetJobResult)
				jobs.Post("/{jobID}/retry", h.RetryJob)
			})
		})
	})
}

// HealthCheck reports liveness plus the state of the result archive. A
// disabled archive is healthy; an unreachable one degrades the service.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	archive := "ok"
	switch err := h.evaluationService.PingArchive(r.Context()); {
	case errors.Is(err, service.ErrArchiveDisabled):
		archive = "disabled"
	case err != nil:
		h.logger.Error().Err(err).Msg("Archive health check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":    "degraded",
			"service":   "paper-ai-evaluation",
			"archive":   "unreachable",
			"timestamp": time.Now().UTC(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"service":   "paper-ai-evaluation",
		"archive":   archive,
		"timestamp": time.Now().UTC(),
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error":   http.StatusText(status),
		"message": message,
	})
}

func writeSuccess(w http.ResponseWriter, data interface{}) {
	response := map[string]interface{}{
		"success": true,
		"data":    data,
	}
	writeJSON(w, http.StatusOK, response)
}
