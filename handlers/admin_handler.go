package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/llmfallback/llmfallback/audit"
	"github.com/llmfallback/llmfallback/models"
	"github.com/llmfallback/llmfallback/repositories"
	"github.com/llmfallback/llmfallback/repositories/postgres"
	"github.com/llmfallback/llmfallback/routing"
	"github.com/llmfallback/llmfallback/utils"
	"go.uber.org/zap"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// AdminRouter exposes the chain health surface for operators
type AdminRouter interface {
	Chain() []routing.ModelRef
	Health() []routing.ModelHealth
	Tracker() *routing.HealthTracker
}

// RecorderStats reports the ledger pipeline's state
type RecorderStats interface {
	GetStats() audit.Stats
}

// AdminHandler handles the operator endpoints behind JWT auth
type AdminHandler struct {
	router   AdminRouter
	repo     repositories.RequestRepository // nil when no database is configured
	recorder RecorderStats
	logger   *zap.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(router AdminRouter, repo repositories.RequestRepository, recorder RecorderStats, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		router:   router,
		repo:     repo,
		recorder: recorder,
		logger:   logger,
	}
}

// ModelHealthResponse is the body for GET /admin/health/models
type ModelHealthResponse struct {
	FailureWindow string                `json:"failure_window"`
	Models        []routing.ModelHealth `json:"models"`
}

// HandleModelHealth handles GET /admin/health/models.
// Returns the failure tracker snapshot in chain preference order.
func (h *AdminHandler) HandleModelHealth(w http.ResponseWriter, r *http.Request) {
	response := ModelHealthResponse{
		FailureWindow: h.router.Tracker().FailureWindow().String(),
		Models:        h.router.Health(),
	}

	if err := utils.WriteOK(w, response); err != nil {
		h.logger.Error("failed to write model health response", zap.Error(err))
	}
}

// ResetHealthRequest selects which model to reset. An empty body resets
// every chain entry.
type ResetHealthRequest struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// HandleResetHealth handles POST /admin/health/reset.
// Clears recorded failure state so the next request probes the model again.
func (h *AdminHandler) HandleResetHealth(w http.ResponseWriter, r *http.Request) {
	var req ResetHealthRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			_ = utils.WriteBadRequest(w, "Invalid request body", nil)
			return
		}
	}

	tracker := h.router.Tracker()
	reset := make([]string, 0)

	if req.Provider == "" && req.Model == "" {
		for _, ref := range h.router.Chain() {
			tracker.Reset(ref)
			reset = append(reset, ref.Key())
		}
	} else {
		ref := routing.ModelRef{Provider: req.Provider, Model: req.Model}
		if !h.inChain(ref) {
			_ = utils.WriteNotFound(w, "model not in fallback chain")
			return
		}
		tracker.Reset(ref)
		reset = append(reset, ref.Key())
	}

	h.logger.Info("model health reset",
		zap.Strings("models", reset))

	_ = utils.WriteOK(w, map[string]interface{}{"reset": reset})
}

// HandleListRequests handles GET /admin/requests.
// Supports status, limit and offset query parameters.
func (h *AdminHandler) HandleListRequests(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		_ = utils.WriteNotFound(w, "Request ledger is not configured")
		return
	}

	limit := queryInt(r, "limit", defaultListLimit)
	if limit < 1 || limit > maxListLimit {
		limit = defaultListLimit
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	var (
		records []*models.RequestRecord
		err     error
	)
	if status := r.URL.Query().Get("status"); status != "" {
		records, err = h.repo.ListByStatus(r.Context(), models.RequestStatus(status), limit, offset)
	} else {
		records, err = h.repo.List(r.Context(), limit, offset)
	}
	if err != nil {
		h.logger.Error("failed to list request records", zap.Error(err))
		_ = utils.WriteInternalServerError(w, "")
		return
	}

	if records == nil {
		records = []*models.RequestRecord{}
	}
	_ = utils.WriteOK(w, map[string]interface{}{
		"requests": records,
		"limit":    limit,
		"offset":   offset,
	})
}

// HandleGetRequest handles GET /admin/requests/{id}
func (h *AdminHandler) HandleGetRequest(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		_ = utils.WriteNotFound(w, "Request ledger is not configured")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request record ID", nil)
		return
	}

	record, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, postgres.ErrRecordNotFound) {
			_ = utils.WriteNotFound(w, "Request record not found")
			return
		}
		h.logger.Error("failed to get request record",
			zap.String("id", id.String()),
			zap.Error(err))
		_ = utils.WriteInternalServerError(w, "")
		return
	}

	_ = utils.WriteOK(w, record)
}

// StatsResponse is the body for GET /admin/stats
type StatsResponse struct {
	RequestsLastHour *int         `json:"requests_last_hour,omitempty"`
	Recorder         *audit.Stats `json:"recorder,omitempty"`
}

// HandleStats handles GET /admin/stats
func (h *AdminHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	response := StatsResponse{}

	if h.recorder != nil {
		stats := h.recorder.GetStats()
		response.Recorder = &stats
	}

	if h.repo != nil {
		count, err := h.repo.CountSince(r.Context(), time.Now().Add(-time.Hour))
		if err != nil {
			h.logger.Error("failed to count recent requests", zap.Error(err))
		} else {
			response.RequestsLastHour = &count
		}
	}

	_ = utils.WriteOK(w, response)
}

// inChain reports whether ref is a configured chain entry
func (h *AdminHandler) inChain(ref routing.ModelRef) bool {
	for _, entry := range h.router.Chain() {
		if entry == ref {
			return true
		}
	}
	return false
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
