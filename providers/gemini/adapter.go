package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/llmfallback/llmfallback/providers"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiAdapter implements the Provider interface for Google Gemini
type GeminiAdapter struct {
	config     providers.ProviderConfig
	httpClient *http.Client
	models     map[string]*providers.ModelInfo
}

// NewGeminiAdapter creates a new Gemini adapter
func NewGeminiAdapter(config providers.ProviderConfig) *GeminiAdapter {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}

	adapter := &GeminiAdapter{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
	adapter.initModels()

	return adapter
}

// Name returns the provider name
func (a *GeminiAdapter) Name() string {
	return "gemini"
}

// ChatCompletion performs a chat completion request
func (a *GeminiAdapter) ChatCompletion(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResponse, error) {
	startTime := time.Now()

	if err := a.ValidateModel(req.Model); err != nil {
		return nil, providers.NewProviderError(a.Name(), "INVALID_MODEL", err.Error(), http.StatusBadRequest, false, err)
	}

	reqBody, err := json.Marshal(a.buildRequest(req))
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), "MARSHAL_ERROR", "failed to marshal request", 0, false, err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", a.config.BaseURL, req.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), "REQUEST_ERROR", "failed to create request", 0, false, err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", a.config.APIKey)
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

	var geminiResp geminiResponse
	if err := json.Unmarshal(respBody, &geminiResp); err != nil {
		return nil, providers.NewProviderError(a.Name(), "UNMARSHAL_ERROR", "failed to unmarshal response", httpResp.StatusCode, false, err)
	}

	return a.convertResponse(&geminiResp, req.Model, time.Since(startTime)), nil
}

// IsAvailable checks if the provider is currently reachable
func (a *GeminiAdapter) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.config.BaseURL+"/models", nil)
	if err != nil {
		return false
	}
	req.Header.Set("x-goog-api-key", a.config.APIKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

// ValidateModel checks if a model is supported
func (a *GeminiAdapter) ValidateModel(model string) error {
	if _, exists := a.models[model]; !exists {
		return fmt.Errorf("model %s is not supported by Gemini provider", model)
	}
	return nil
}

// GetModelInfo returns information about a specific model
func (a *GeminiAdapter) GetModelInfo(model string) (*providers.ModelInfo, error) {
	info, exists := a.models[model]
	if !exists {
		return nil, fmt.Errorf("model %s not found", model)
	}
	return info, nil
}

// ListModels returns all available models
func (a *GeminiAdapter) ListModels() []string {
	models := make([]string, 0, len(a.models))
	for model := range a.models {
		models = append(models, model)
	}
	return models
}

// initModels initializes the model information map
func (a *GeminiAdapter) initModels() {
	a.models = map[string]*providers.ModelInfo{
		"gemini-2.0-flash": {
			ID:            "gemini-2.0-flash",
			Name:          "Gemini 2.0 Flash",
			Provider:      "gemini",
			MaxTokens:     8192,
			ContextWindow: 1048576,
		},
		"gemini-2.0-flash-lite": {
			ID:            "gemini-2.0-flash-lite",
			Name:          "Gemini 2.0 Flash-Lite",
			Provider:      "gemini",
			MaxTokens:     8192,
			ContextWindow: 1048576,
		},
		"gemini-1.5-pro": {
			ID:            "gemini-1.5-pro",
			Name:          "Gemini 1.5 Pro",
			Provider:      "gemini",
			MaxTokens:     8192,
			ContextWindow: 2097152,
		},
	}
}

// buildRequest converts a unified request to the Gemini generateContent format.
// Gemini uses "model" for the assistant role and carries system messages in
// systemInstruction.
func (a *GeminiAdapter) buildRequest(req *providers.ChatRequest) *geminiRequest {
	geminiReq := &geminiRequest{}

	var systemParts []string
	for _, msg := range req.Messages {
		switch msg.Role {
		case "system":
			systemParts = append(systemParts, msg.Content)
		case "assistant":
			geminiReq.Contents = append(geminiReq.Contents, geminiContent{
				Role:  "model",
				Parts: []geminiPart{{Text: msg.Content}},
			})
		default:
			geminiReq.Contents = append(geminiReq.Contents, geminiContent{
				Role:  "user",
				Parts: []geminiPart{{Text: msg.Content}},
			})
		}
	}
	if len(systemParts) > 0 {
		geminiReq.SystemInstruction = &geminiContent{
			Parts: []geminiPart{{Text: strings.Join(systemParts, "\n\n")}},
		}
	}

	genCfg := &geminiGenerationConfig{}
	hasCfg := false
	if req.MaxTokens > 0 {
		genCfg.MaxOutputTokens = &req.MaxTokens
		hasCfg = true
	}
	if req.Temperature > 0 {
		genCfg.Temperature = &req.Temperature
		hasCfg = true
	}
	if req.TopP > 0 {
		genCfg.TopP = &req.TopP
		hasCfg = true
	}
	if len(req.Stop) > 0 {
		genCfg.StopSequences = req.Stop
		hasCfg = true
	}
	if hasCfg {
		geminiReq.GenerationConfig = genCfg
	}

	return geminiReq
}

// convertResponse converts a Gemini response to the unified format
func (a *GeminiAdapter) convertResponse(geminiResp *geminiResponse, model string, latency time.Duration) *providers.ChatResponse {
	resp := &providers.ChatResponse{
		ID:       "gemini-" + uuid.New().String(),
		Model:    model,
		Provider: a.Name(),
		Usage: providers.Usage{
			PromptTokens:     geminiResp.UsageMetadata.PromptTokenCount,
			CompletionTokens: geminiResp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      geminiResp.UsageMetadata.TotalTokenCount,
		},
		Latency: latency,
		Created: time.Now(),
	}

	for i, candidate := range geminiResp.Candidates {
		var content strings.Builder
		for _, part := range candidate.Content.Parts {
			content.WriteString(part.Text)
		}
		resp.Choices = append(resp.Choices, providers.Choice{
			Index: i,
			Message: providers.Message{
				Role:    "assistant",
				Content: content.String(),
			},
			FinishReason: convertFinishReason(candidate.FinishReason),
		})
	}

	return resp
}

// convertFinishReason maps Gemini finish reasons to the OpenAI-shaped values
func convertFinishReason(reason string) string {
	switch reason {
	case "STOP":
		return "stop"
	case "MAX_TOKENS":
		return "length"
	case "SAFETY", "RECITATION", "BLOCKLIST", "PROHIBITED_CONTENT":
		return "content_filter"
	default:
		return strings.ToLower(reason)
	}
}

// handleErrorResponse classifies an upstream error response
func (a *GeminiAdapter) handleErrorResponse(statusCode int, body []byte) error {
	message := fmt.Sprintf("Gemini API returned status %d", statusCode)

	var errResp geminiErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
	}

	return providers.NewProviderError(
		a.Name(),
		providers.StatusErrorCode(statusCode),
		message,
		statusCode,
		providers.RetryableStatus(statusCode),
		nil,
	)
}

// geminiRequest is the Gemini generateContent wire format
type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
	StopSequences   []string `json:"stopSequences,omitempty"`
}

// geminiResponse is the Gemini generateContent response format
type geminiResponse struct {
	Candidates    []geminiCandidate   `json:"candidates"`
	UsageMetadata geminiUsageMetadata `json:"usageMetadata"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
	Index        int           `json:"index"`
}

type geminiUsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}
