package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/cmlabs-hris/attendance-sync-go/internal/domain/syncjob"
	"github.com/cmlabs-hris/attendance-sync-go/internal/handler/http/response"
)

type SyncJobHandler interface {
	Create(w http.ResponseWriter, r *http.Request)
	Get(w http.ResponseWriter, r *http.Request)
	List(w http.ResponseWriter, r *http.Request)
	Cancel(w http.ResponseWriter, r *http.Request)
	Metrics(w http.ResponseWriter, r *http.Request)
	Health(w http.ResponseWriter, r *http.Request)
}

type syncJobHandlerImpl struct {
	orchestrator syncjob.Orchestrator
}

func NewSyncJobHandler(orchestrator syncjob.Orchestrator) SyncJobHandler {
	return &syncJobHandlerImpl{
		orchestrator: orchestrator,
	}
}

// Create implements SyncJobHandler. The job is created synchronously and
// executed in the background; the caller polls GET /sync-jobs/{id}.
func (h *syncJobHandlerImpl) Create(w http.ResponseWriter, r *http.Request) {
	var req syncjob.CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request format", nil)
		return
	}
	if req.TriggeredBy == "" {
		req.TriggeredBy = "api"
	}

	job, err := h.orchestrator.CreateJob(r.Context(), req)
	if err != nil {
		if errors.Is(err, syncjob.ErrInvalidDateRange) {
			response.BadRequest(w, err.Error(), nil)
			return
		}
		slog.Error("Failed to create sync job", "error", err)
		response.BadRequest(w, err.Error(), nil)
		return
	}

	// Detached from the request context so a closed connection cannot
	// cancel a half-finished sync.
	go func() {
		if _, execErr := h.orchestrator.ExecuteJob(context.Background(), job.ID); execErr != nil {
			slog.Error("Sync job execution failed", "job_id", job.ID, "error", execErr)
		}
	}()

	response.Accepted(w, "Sync job created", job)
}

// Get implements SyncJobHandler.
func (h *syncJobHandlerImpl) Get(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	job, err := h.orchestrator.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, syncjob.ErrJobNotFound) {
			response.NotFound(w, "Sync job not found")
			return
		}
		slog.Error("Failed to get sync job", "job_id", jobID, "error", err)
		response.InternalServerError(w, "Failed to get sync job")
		return
	}

	response.Success(w, job)
}

// List implements SyncJobHandler.
func (h *syncJobHandlerImpl) List(w http.ResponseWriter, r *http.Request) {
	filter := syncjob.JobFilter{
		Status: r.URL.Query().Get("status"),
		Type:   r.URL.Query().Get("type"),
	}
	if page, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil {
		filter.Page = page
	}
	if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil {
		filter.Limit = limit
	}

	result, err := h.orchestrator.ListJobs(r.Context(), filter)
	if err != nil {
		slog.Error("Failed to list sync jobs", "error", err)
		response.InternalServerError(w, "Failed to list sync jobs")
		return
	}

	response.SuccessWithMeta(w, result.Jobs, &response.Meta{
		Page:       filter.Page,
		Limit:      filter.Limit,
		TotalItems: result.Total,
		HasMore:    result.HasMore,
	})
}

// Cancel implements SyncJobHandler.
func (h *syncJobHandlerImpl) Cancel(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	if err := h.orchestrator.CancelJob(r.Context(), jobID); err != nil {
		switch {
		case errors.Is(err, syncjob.ErrJobNotFound):
			response.NotFound(w, "Sync job not found")
		case errors.Is(err, syncjob.ErrJobTerminal):
			response.Conflict(w, "Sync job already reached a terminal state")
		default:
			slog.Error("Failed to cancel sync job", "job_id", jobID, "error", err)
			response.InternalServerError(w, "Failed to cancel sync job")
		}
		return
	}

	response.SuccessWithMessage(w, "Sync job cancelled", nil)
}

// Metrics implements SyncJobHandler.
func (h *syncJobHandlerImpl) Metrics(w http.ResponseWriter, _ *http.Request) {
	response.Success(w, h.orchestrator.GetMetrics())
}

// Health implements SyncJobHandler.
func (h *syncJobHandlerImpl) Health(w http.ResponseWriter, _ *http.Request) {
	response.Success(w, h.orchestrator.GetHealthStatus())
}
