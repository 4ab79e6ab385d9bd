package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/llmfallback/llmfallback/providers"
)

const (
	defaultBaseURL = "https://api.anthropic.com"
	apiVersion     = "2023-06-01"

	// Anthropic requires max_tokens; used when the request leaves it unset
	defaultMaxTokens = 4096
)

// AnthropicAdapter implements the Provider interface for Anthropic
type AnthropicAdapter struct {
	config     providers.ProviderConfig
	httpClient *http.Client
	models     map[string]*providers.ModelInfo
}

// NewAnthropicAdapter creates a new Anthropic adapter
func NewAnthropicAdapter(config providers.ProviderConfig) *AnthropicAdapter {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}

	adapter := &AnthropicAdapter{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
	adapter.initModels()

	return adapter
}

// Name returns the provider name
func (a *AnthropicAdapter) Name() string {
	return "anthropic"
}

// ChatCompletion performs a chat completion request
func (a *AnthropicAdapter) ChatCompletion(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResponse, error) {
	startTime := time.Now()

	if err := a.ValidateModel(req.Model); err != nil {
		return nil, providers.NewProviderError(a.Name(), "INVALID_MODEL", err.Error(), http.StatusBadRequest, false, err)
	}

	reqBody, err := json.Marshal(a.buildRequest(req))
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), "MARSHAL_ERROR", "failed to marshal request", 0, false, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.BaseURL+"/v1/messages", bytes.NewReader(reqBody))
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), "REQUEST_ERROR", "failed to create request", 0, false, err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.config.APIKey)
	httpReq.Header.Set("anthropic-version", apiVersion)
	for k, v := range a.config.Headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), "HTTP_ERROR", "HTTP request failed", 0, true, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), "READ_ERROR", "failed to read response", httpResp.StatusCode, true, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, a.handleErrorResponse(httpResp.StatusCode, respBody)
	}

	var anthropicResp anthropicResponse
	if err := json.Unmarshal(respBody, &anthropicResp); err != nil {
		return nil, providers.NewProviderError(a.Name(), "UNMARSHAL_ERROR", "failed to unmarshal response", httpResp.StatusCode, false, err)
	}

	return a.convertResponse(&anthropicResp, time.Since(startTime)), nil
}

// IsAvailable checks if the provider is currently reachable.
// Anthropic has no cheap health endpoint; a HEAD against the API root
// distinguishes reachability from auth state.
func (a *AnthropicAdapter) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, a.config.BaseURL+"/v1/messages", nil)
	if err != nil {
		return false
	}
	req.Header.Set("x-api-key", a.config.APIKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode < http.StatusInternalServerError
}

// ValidateModel checks if a model is supported
func (a *AnthropicAdapter) ValidateModel(model string) error {
	if _, exists := a.models[model]; !exists {
		return fmt.Errorf("model %s is not supported by Anthropic provider", model)
	}
	return nil
}

// GetModelInfo returns information about a specific model
func (a *AnthropicAdapter) GetModelInfo(model string) (*providers.ModelInfo, error) {
	info, exists := a.models[model]
	if !exists {
		return nil, fmt.Errorf("model %s not found", model)
	}
	return info, nil
}

// ListModels returns all available models
func (a *AnthropicAdapter) ListModels() []string {
	models := make([]string, 0, len(a.models))
	for model := range a.models {
		models = append(models, model)
	}
	return models
}

// initModels initializes the model information map
func (a *AnthropicAdapter) initModels() {
	a.models = map[string]*providers.ModelInfo{
		"claude-sonnet-4-20250514": {
			ID:            "claude-sonnet-4-20250514",
			Name:          "Claude Sonnet 4",
			Provider:      "anthropic",
			MaxTokens:     64000,
			ContextWindow: 200000,
		},
		"claude-opus-4-20250514": {
			ID:            "claude-opus-4-20250514",
			Name:          "Claude Opus 4",
			Provider:      "anthropic",
			MaxTokens:     32000,
			ContextWindow: 200000,
		},
		"claude-3-5-haiku-20241022": {
			ID:            "claude-3-5-haiku-20241022",
			Name:          "Claude 3.5 Haiku",
			Provider:      "anthropic",
			MaxTokens:     8192,
			ContextWindow: 200000,
		},
	}
}

// buildRequest converts a unified request to the Anthropic messages format.
// System messages are lifted into the top-level system field.
func (a *AnthropicAdapter) buildRequest(req *providers.ChatRequest) *anthropicRequest {
	anthReq := &anthropicRequest{
		Model:     req.Model,
		MaxTokens: req.MaxTokens,
	}
	if anthReq.MaxTokens == 0 {
		anthReq.MaxTokens = defaultMaxTokens
	}

	var systemParts []string
	for _, msg := range req.Messages {
		if msg.Role == "system" {
			systemParts = append(systemParts, msg.Content)
			continue
		}
		anthReq.Messages = append(anthReq.Messages, anthropicMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}
	if len(systemParts) > 0 {
		anthReq.System = strings.Join(systemParts, "\n\n")
	}

	if req.Temperature > 0 {
		anthReq.Temperature = &req.Temperature
	}
	if req.TopP > 0 {
		anthReq.TopP = &req.TopP
	}
	if len(req.Stop) > 0 {
		anthReq.StopSequences = req.Stop
	}

	return anthReq
}

// convertResponse converts an Anthropic response to the unified format
func (a *AnthropicAdapter) convertResponse(anthResp *anthropicResponse, latency time.Duration) *providers.ChatResponse {
	var content strings.Builder
	for _, block := range anthResp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}

	return &providers.ChatResponse{
		ID:       anthResp.ID,
		Model:    anthResp.Model,
		Provider: a.Name(),
		Choices: []providers.Choice{
			{
				Index: 0,
				Message: providers.Message{
					Role:    "assistant",
					Content: content.String(),
				},
				FinishReason: convertStopReason(anthResp.StopReason),
			},
		},
		Usage: providers.Usage{
			PromptTokens:     anthResp.Usage.InputTokens,
			CompletionTokens: anthResp.Usage.OutputTokens,
			TotalTokens:      anthResp.Usage.InputTokens + anthResp.Usage.OutputTokens,
		},
		Latency: latency,
		Created: time.Now(),
	}
}

// convertStopReason maps Anthropic stop reasons to the OpenAI-shaped values
func convertStopReason(reason string) string {
	switch reason {
	case "end_turn", "stop_sequence":
		return "stop"
	case "max_tokens":
		return "length"
	default:
		return reason
	}
}

// handleErrorResponse classifies an upstream error response
func (a *AnthropicAdapter) handleErrorResponse(statusCode int, body []byte) error {
	message := fmt.Sprintf("Anthropic API returned status %d", statusCode)

	var errResp anthropicErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
	}

	// Anthropic signals overload with 529 in addition to the standard codes
	retryable := providers.RetryableStatus(statusCode) || statusCode == 529

	return providers.NewProviderError(
		a.Name(),
		providers.StatusErrorCode(statusCode),
		message,
		statusCode,
		retryable,
		nil,
	)
}

// anthropicRequest is the Anthropic messages API wire format
type anthropicRequest struct {
	Model         string             `json:"model"`
	Messages      []anthropicMessage `json:"messages"`
	System        string             `json:"system,omitempty"`
	MaxTokens     int                `json:"max_tokens"`
	Temperature   *float64           `json:"temperature,omitempty"`
	TopP          *float64           `json:"top_p,omitempty"`
	StopSequences []string           `json:"stop_sequences,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// anthropicResponse is the Anthropic messages API response format
type anthropicResponse struct {
	ID         string                  `json:"id"`
	Type       string                  `json:"type"`
	Role       string                  `json:"role"`
	Model      string                  `json:"model"`
	Content    []anthropicContentBlock `json:"content"`
	StopReason string                  `json:"stop_reason"`
	Usage      anthropicUsage          `json:"usage"`
}

type anthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicErrorResponse struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}
