package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/llmfallback/llmfallback/providers"
)

func TestNewOpenAIAdapter(t *testing.T) {
	adapter := NewOpenAIAdapter(providers.ProviderConfig{APIKey: "test-key"})

	if adapter == nil {
		t.Fatal("NewOpenAIAdapter() returned nil")
	}

	if adapter.Name() != "openai" {
		t.Errorf("Name() = %s, want openai", adapter.Name())
	}

	if adapter.config.BaseURL != defaultBaseURL {
		t.Errorf("BaseURL = %s, want %s", adapter.config.BaseURL, defaultBaseURL)
	}

	if len(adapter.models) == 0 {
		t.Error("models not initialized")
	}
}

func TestOpenAIAdapter_ValidateModel(t *testing.T) {
	adapter := NewOpenAIAdapter(providers.ProviderConfig{})

	tests := []struct {
		name        string
		model       string
		expectError bool
	}{
		{name: "valid model gpt-4o", model: "gpt-4o", expectError: false},
		{name: "valid model gpt-4o-mini", model: "gpt-4o-mini", expectError: false},
		{name: "valid model gpt-4", model: "gpt-4", expectError: false},
		{name: "invalid model", model: "claude-sonnet-4-20250514", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := adapter.ValidateModel(tt.model)

			if tt.expectError && err == nil {
				t.Error("expected error but got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestOpenAIAdapter_ChatCompletion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %s, want Bearer test-key", got)
		}

		var req openAIChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if req.Model != "gpt-4o" {
			t.Errorf("model = %s, want gpt-4o", req.Model)
		}

		resp := openAIChatResponse{
			ID:      "chatcmpl-123",
			Object:  "chat.completion",
			Created: time.Now().Unix(),
			Model:   "gpt-4o",
			Choices: []openAIChoice{
				{
					Index:        0,
					Message:      openAIMessage{Role: "assistant", Content: "Hello there"},
					FinishReason: "stop",
				},
			},
			Usage: openAIUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	adapter := NewOpenAIAdapter(providers.ProviderConfig{
		APIKey:  "test-key",
		BaseURL: server.URL,
	})

	resp, err := adapter.ChatCompletion(context.Background(), &providers.ChatRequest{
		Model:    "gpt-4o",
		Messages: []providers.Message{{Role: "user", Content: "Hi"}},
	})
	if err != nil {
		t.Fatalf("ChatCompletion() error = %v", err)
	}

	if resp.ID != "chatcmpl-123" {
		t.Errorf("ID = %s, want chatcmpl-123", resp.ID)
	}
	if resp.Provider != "openai" {
		t.Errorf("Provider = %s, want openai", resp.Provider)
	}
	if len(resp.Choices) != 1 || resp.Choices[0].Message.Content != "Hello there" {
		t.Errorf("unexpected choices: %+v", resp.Choices)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("TotalTokens = %d, want 15", resp.Usage.TotalTokens)
	}
}

func TestOpenAIAdapter_ChatCompletion_UpstreamError(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		wantRetryable bool
		wantCode      string
	}{
		{name: "server error", status: http.StatusInternalServerError, wantRetryable: true, wantCode: "UPSTREAM_ERROR"},
		{name: "rate limited", status: http.StatusTooManyRequests, wantRetryable: true, wantCode: "RATE_LIMITED"},
		{name: "bad auth", status: http.StatusUnauthorized, wantRetryable: false, wantCode: "AUTH_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":{"message":"upstream says no"}}`))
			}))
			defer server.Close()

			adapter := NewOpenAIAdapter(providers.ProviderConfig{BaseURL: server.URL})

			_, err := adapter.ChatCompletion(context.Background(), &providers.ChatRequest{
				Model:    "gpt-4o",
				Messages: []providers.Message{{Role: "user", Content: "Hi"}},
			})
			if err == nil {
				t.Fatal("expected error")
			}

			var provErr *providers.ProviderError
			if !errors.As(err, &provErr) {
				t.Fatalf("expected *ProviderError, got %T", err)
			}
			if provErr.Retryable != tt.wantRetryable {
				t.Errorf("Retryable = %v, want %v", provErr.Retryable, tt.wantRetryable)
			}
			if provErr.Code != tt.wantCode {
				t.Errorf("Code = %s, want %s", provErr.Code, tt.wantCode)
			}
			if provErr.Message != "upstream says no" {
				t.Errorf("Message = %q, want upstream error message", provErr.Message)
			}
		})
	}
}

func TestOpenAIAdapter_ChatCompletion_InvalidModel(t *testing.T) {
	adapter := NewOpenAIAdapter(providers.ProviderConfig{})

	_, err := adapter.ChatCompletion(context.Background(), &providers.ChatRequest{
		Model:    "not-a-model",
		Messages: []providers.Message{{Role: "user", Content: "Hi"}},
	})
	if err == nil {
		t.Fatal("expected error for invalid model")
	}

	if providers.IsRetryable(err) {
		t.Error("invalid model error should not be retryable")
	}
}

func TestOpenAIAdapter_IsAvailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/models" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	adapter := NewOpenAIAdapter(providers.ProviderConfig{BaseURL: server.URL})
	if !adapter.IsAvailable(context.Background()) {
		t.Error("IsAvailable() = false, want true")
	}

	server.Close()
	if adapter.IsAvailable(context.Background()) {
		t.Error("IsAvailable() = true after server closed, want false")
	}
}
