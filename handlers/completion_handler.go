// Package handlers implements the gateway's HTTP surface: the
// OpenAI-compatible completion endpoint, the model listing, and the
// health and admin endpoints.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/llmfallback/llmfallback/middleware"
	"github.com/llmfallback/llmfallback/models"
	"github.com/llmfallback/llmfallback/providers"
	"github.com/llmfallback/llmfallback/routing"
	"github.com/llmfallback/llmfallback/utils"
	"go.uber.org/zap"
)

// ChatCompletionRequest represents an OpenAI-compatible chat completion request
type ChatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages" validate:"required,min=1,dive"`
	Temperature *float64      `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	MaxTokens   *int          `json:"max_tokens,omitempty" validate:"omitempty,gt=0"`
	TopP        *float64      `json:"top_p,omitempty" validate:"omitempty,gte=0,lte=1"`
	Stream      bool          `json:"stream,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
	User        string        `json:"user,omitempty"`
}

// ChatMessage represents a single chat message
type ChatMessage struct {
	Role    string `json:"role" validate:"required,oneof=system user assistant"`
	Content string `json:"content" validate:"required"`
}

// ChatCompletionResponse represents an OpenAI-compatible chat completion
// response. Provider and Attempts are gateway extensions telling the caller
// which chain entry actually served the request.
type ChatCompletionResponse struct {
	ID       string       `json:"id"`
	Object   string       `json:"object"`
	Created  int64        `json:"created"`
	Model    string       `json:"model"`
	Provider string       `json:"provider"`
	Attempts int          `json:"attempts"`
	Choices  []ChatChoice `json:"choices"`
	Usage    ChatUsage    `json:"usage"`
}

// ChatChoice represents a completion choice
type ChatChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// ChatUsage represents token usage information
type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CompletionRouter routes a completion through the fallback chain
type CompletionRouter interface {
	Completion(ctx context.Context, req *providers.ChatRequest) (*routing.Result, error)
}

// RecordSink accepts ledger records without blocking the request path
type RecordSink interface {
	Record(record *models.RequestRecord) error
}

// CompletionHandler handles POST /v1/chat/completions
type CompletionHandler struct {
	router   CompletionRouter
	recorder RecordSink
	logger   *zap.Logger
}

// NewCompletionHandler creates a new CompletionHandler. The recorder may be
// nil, in which case no ledger records are produced.
func NewCompletionHandler(router CompletionRouter, recorder RecordSink, logger *zap.Logger) *CompletionHandler {
	return &CompletionHandler{
		router:   router,
		recorder: recorder,
		logger:   logger,
	}
}

// HandleChatCompletion handles POST /v1/chat/completions
func (h *CompletionHandler) HandleChatCompletion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	var chatReq ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&chatReq); err != nil {
		h.logger.Warn("failed to parse request body",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	record := models.NewRequestRecord(requestID, chatReq.Model)
	record.IPAddress = getClientIP(r)
	record.UserAgent = r.UserAgent()

	if err := utils.ValidateStruct(&chatReq); err != nil {
		h.logger.Warn("request validation failed",
			zap.String("request_id", requestID),
			zap.Error(err))
		h.reject(record, err)
		HandleValidationError(w, err, h.logger)
		return
	}

	if chatReq.Stream {
		// Replaying a half-streamed request against another backend is not
		// safe, so streaming is refused outright
		h.reject(record, errStreamingUnsupported)
		_ = utils.WriteBadRequest(w, errStreamingUnsupported.Error(), nil)
		return
	}

	routeReq := &providers.ChatRequest{
		Model:    chatReq.Model,
		Messages: make([]providers.Message, len(chatReq.Messages)),
		Stop:     chatReq.Stop,
		User:     chatReq.User,
	}
	for i, msg := range chatReq.Messages {
		routeReq.Messages[i] = providers.Message{Role: msg.Role, Content: msg.Content}
	}
	if chatReq.Temperature != nil {
		routeReq.Temperature = *chatReq.Temperature
	}
	if chatReq.MaxTokens != nil {
		routeReq.MaxTokens = *chatReq.MaxTokens
	}
	if chatReq.TopP != nil {
		routeReq.TopP = *chatReq.TopP
	}

	h.logger.Debug("routing chat completion",
		zap.String("request_id", requestID),
		zap.String("requested_model", chatReq.Model))

	start := time.Now()
	result, err := h.router.Completion(ctx, routeReq)
	latency := time.Since(start)

	if err != nil {
		h.logger.Warn("chat completion failed",
			zap.String("request_id", requestID),
			zap.String("requested_model", chatReq.Model),
			zap.Duration("latency", latency),
			zap.Error(err))
		h.recordFailure(record, latency, err)
		HandleRoutingError(w, err, h.logger)
		return
	}

	resp := result.Response
	record.MarkCompleted(result.Served.Provider, result.Served.Model, len(result.Attempts))
	record.SetUsage(resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Usage.TotalTokens)
	record.LatencyMs = latency.Milliseconds()
	h.record(record)

	response := ChatCompletionResponse{
		ID:       resp.ID,
		Object:   "chat.completion",
		Created:  resp.Created.Unix(),
		Model:    resp.Model,
		Provider: result.Served.Provider,
		Attempts: len(result.Attempts),
		Choices:  make([]ChatChoice, len(resp.Choices)),
		Usage: ChatUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	for i, choice := range resp.Choices {
		response.Choices[i] = ChatChoice{
			Index: choice.Index,
			Message: ChatMessage{
				Role:    choice.Message.Role,
				Content: choice.Message.Content,
			},
			FinishReason: choice.FinishReason,
		}
	}

	h.logger.Info("chat completion served",
		zap.String("request_id", requestID),
		zap.String("requested_model", chatReq.Model),
		zap.String("provider", result.Served.Provider),
		zap.String("model", result.Served.Model),
		zap.Int("attempts", len(result.Attempts)),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
		zap.Duration("latency", latency))

	if err := utils.WriteOK(w, response); err != nil {
		h.logger.Error("failed to write response",
			zap.String("request_id", requestID),
			zap.Error(err))
	}
}

// reject records a request that never reached the chain
func (h *CompletionHandler) reject(record *models.RequestRecord, err error) {
	record.MarkRejected(err)
	h.record(record)
}

// recordFailure records a routed request that exhausted or aborted the chain
func (h *CompletionHandler) recordFailure(record *models.RequestRecord, latency time.Duration, err error) {
	attempts := 0
	var allFailed *routing.AllFailedError
	if errors.As(err, &allFailed) {
		attempts = len(allFailed.Attempts)
	}
	record.MarkFailed(attempts, err)
	record.LatencyMs = latency.Milliseconds()
	h.record(record)
}

func (h *CompletionHandler) record(record *models.RequestRecord) {
	if h.recorder == nil {
		return
	}
	if err := h.recorder.Record(record); err != nil {
		h.logger.Warn("failed to queue request record",
			zap.String("request_id", record.RequestID),
			zap.Error(err))
	}
}

// getClientIP extracts the client IP address from the request
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
