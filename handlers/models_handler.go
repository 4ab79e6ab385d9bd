package handlers

import (
	"net/http"

	"github.com/llmfallback/llmfallback/routing"
	"github.com/llmfallback/llmfallback/utils"
	"go.uber.org/zap"
)

// ModelEntry is one chain entry in the model listing. Available reflects the
// failure tracker, so a cooling-down model shows up as unavailable.
type ModelEntry struct {
	ID        string `json:"id"`
	Object    string `json:"object"`
	OwnedBy   string `json:"owned_by"`
	Available bool   `json:"available"`
}

// ModelList is the OpenAI-compatible list envelope
type ModelList struct {
	Object string       `json:"object"`
	Data   []ModelEntry `json:"data"`
}

// ChainReporter exposes the chain and its current health
type ChainReporter interface {
	Chain() []routing.ModelRef
	Health() []routing.ModelHealth
}

// ModelsHandler handles GET /v1/models
type ModelsHandler struct {
	router ChainReporter
	logger *zap.Logger
}

// NewModelsHandler creates a new ModelsHandler
func NewModelsHandler(router ChainReporter, logger *zap.Logger) *ModelsHandler {
	return &ModelsHandler{
		router: router,
		logger: logger,
	}
}

// HandleListModels handles GET /v1/models.
// Returns the fallback chain in preference order.
func (h *ModelsHandler) HandleListModels(w http.ResponseWriter, r *http.Request) {
	health := h.router.Health()

	list := ModelList{
		Object: "list",
		Data:   make([]ModelEntry, len(health)),
	}
	for i, entry := range health {
		list.Data[i] = ModelEntry{
			ID:        entry.Ref.Model,
			Object:    "model",
			OwnedBy:   entry.Ref.Provider,
			Available: entry.Available,
		}
	}

	if err := utils.WriteOK(w, list); err != nil {
		h.logger.Error("failed to write models response", zap.Error(err))
	}
}
