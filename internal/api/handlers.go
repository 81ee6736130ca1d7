package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/maltedev/amazon-search-scraper/internal/jobs"
	"github.com/maltedev/amazon-search-scraper/internal/models"
)

const (
	pendingWarnThreshold    = 1000
	deadLetterFailThreshold = 100
	healthCheckTimeout      = 5 * time.Second

	totalCountHeader = "X-Total-Count"
)

// ProductSource serves stored search results. An empty query means all.
type ProductSource interface {
	Products(ctx context.Context, query string) ([]models.Product, error)
}

// JobService is the job surface the handlers need.
type JobService interface {
	CreateJob(searchQuery string, maxPages int) (*jobs.Job, error)
	GetJob(jobID string) (*jobs.Job, error)
	ListJobs() []*jobs.Job
	GetStats() jobs.Stats
}

// OutboxMonitor reports relay backlog for the health check.
type OutboxMonitor interface {
	GetPendingCount(ctx context.Context) (int64, error)
	GetDeadLetterCount(ctx context.Context) (int64, error)
}

type Handlers struct {
	products ProductSource
	jobs     JobService
	outbox   OutboxMonitor
	logger   *slog.Logger
}

// NewHandlers wires the HTTP handlers. outbox may be nil when no relay runs.
func NewHandlers(products ProductSource, jobService JobService, outbox OutboxMonitor, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		products: products,
		jobs:     jobService,
		outbox:   outbox,
		logger:   logger.With("component", "api"),
	}
}

type CreateJobRequest struct {
	SearchQuery string `json:"search_query"`
	MaxPages    int    `json:"max_pages,omitempty"`
}

type CreateJobResponse struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// CreateJob handles POST /api/jobs
func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	job, err := h.jobs.CreateJob(req.SearchQuery, req.MaxPages)
	if errors.Is(err, jobs.ErrEmptyQuery) {
		h.respondError(w, http.StatusBadRequest, "search_query is required")
		return
	}
	if err != nil {
		h.logger.Error("failed to create job", "error", err, "query", req.SearchQuery)
		h.respondError(w, http.StatusInternalServerError, "Failed to create job")
		return
	}

	h.respondJSON(w, http.StatusCreated, CreateJobResponse{
		JobID:   job.ID,
		Status:  job.Status,
		Message: "Search job created successfully",
	})
}

// GetJob handles GET /api/jobs/{jobID}
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	job, err := h.jobs.GetJob(jobID)
	if errors.Is(err, jobs.ErrJobNotFound) {
		h.respondError(w, http.StatusNotFound, "Job not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to get job", "error", err, "job_id", jobID)
		h.respondError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}

	h.respondJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.jobs.ListJobs())
}

// GetStats handles GET /api/stats
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.jobs.GetStats())
}

// ListProducts handles GET /api/products?query= and responds with a bare
// array of products.
func (h *Handlers) ListProducts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")

	products, err := h.products.Products(r.Context(), query)
	if err != nil {
		h.logger.Error("failed to load products", "error", err, "query", query)
		h.respondError(w, http.StatusInternalServerError, "Failed to load products")
		return
	}
	if products == nil {
		products = make([]models.Product, 0)
	}

	w.Header().Set(totalCountHeader, strconv.Itoa(len(products)))
	h.respondJSON(w, http.StatusOK, products)
}

// Health handles GET /health. Without a relay it only reports liveness.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	health := map[string]any{"status": "ok"}
	if h.outbox == nil {
		h.respondJSON(w, http.StatusOK, health)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	pending, pendingErr := h.outbox.GetPendingCount(ctx)
	dead, deadErr := h.outbox.GetDeadLetterCount(ctx)
	if err := errors.Join(pendingErr, deadErr); err != nil {
		h.logger.Error("outbox health check failed", "error", err)
		h.respondJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":  "error",
			"message": "Outbox unavailable",
		})
		return
	}

	health["outbox"] = map[string]any{
		"pending":     pending,
		"dead_letter": dead,
	}

	status := http.StatusOK
	if pending > pendingWarnThreshold {
		health["status"] = "warning"
		health["message"] = "High number of pending outbox events"
	}
	if dead > deadLetterFailThreshold {
		health["status"] = "error"
		health["message"] = "High number of dead letter events"
		status = http.StatusServiceUnavailable
	}

	h.respondJSON(w, status, health)
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
