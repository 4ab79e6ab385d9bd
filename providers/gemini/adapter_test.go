package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/llmfallback/llmfallback/providers"
)

func TestNewGeminiAdapter(t *testing.T) {
	adapter := NewGeminiAdapter(providers.ProviderConfig{APIKey: "test-key"})

	if adapter.Name() != "gemini" {
		t.Errorf("Name() = %s, want gemini", adapter.Name())
	}
	if err := adapter.ValidateModel("gemini-2.0-flash"); err != nil {
		t.Errorf("ValidateModel() error = %v", err)
	}
	if err := adapter.ValidateModel("gpt-4o"); err == nil {
		t.Error("expected error for foreign model")
	}
}

func TestGeminiAdapter_ChatCompletion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/models/gemini-2.0-flash:generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("x-goog-api-key"); got != "test-key" {
			t.Errorf("x-goog-api-key = %s, want test-key", got)
		}

		var req geminiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if req.SystemInstruction == nil || req.SystemInstruction.Parts[0].Text != "Be brief" {
			t.Errorf("system instruction missing: %+v", req.SystemInstruction)
		}
		if len(req.Contents) != 2 {
			t.Fatalf("contents = %d entries, want 2", len(req.Contents))
		}
		if req.Contents[1].Role != "model" {
			t.Errorf("assistant role = %s, want model", req.Contents[1].Role)
		}

		resp := geminiResponse{
			Candidates: []geminiCandidate{
				{
					Content: geminiContent{
						Role:  "model",
						Parts: []geminiPart{{Text: "Short answer."}},
					},
					FinishReason: "STOP",
				},
			},
			UsageMetadata: geminiUsageMetadata{
				PromptTokenCount:     8,
				CandidatesTokenCount: 4,
				TotalTokenCount:      12,
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	adapter := NewGeminiAdapter(providers.ProviderConfig{
		APIKey:  "test-key",
		BaseURL: server.URL,
	})

	resp, err := adapter.ChatCompletion(context.Background(), &providers.ChatRequest{
		Model: "gemini-2.0-flash",
		Messages: []providers.Message{
			{Role: "system", Content: "Be brief"},
			{Role: "user", Content: "Hello"},
			{Role: "assistant", Content: "Hi"},
		},
	})
	if err != nil {
		t.Fatalf("ChatCompletion() error = %v", err)
	}

	if resp.Provider != "gemini" {
		t.Errorf("Provider = %s, want gemini", resp.Provider)
	}
	if len(resp.Choices) != 1 || resp.Choices[0].Message.Content != "Short answer." {
		t.Errorf("unexpected choices: %+v", resp.Choices)
	}
	if resp.Choices[0].FinishReason != "stop" {
		t.Errorf("FinishReason = %s, want stop", resp.Choices[0].FinishReason)
	}
	if resp.Usage.TotalTokens != 12 {
		t.Errorf("TotalTokens = %d, want 12", resp.Usage.TotalTokens)
	}
}

func TestGeminiAdapter_ChatCompletion_UpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"code":503,"message":"The model is overloaded","status":"UNAVAILABLE"}}`))
	}))
	defer server.Close()

	adapter := NewGeminiAdapter(providers.ProviderConfig{BaseURL: server.URL})

	_, err := adapter.ChatCompletion(context.Background(), &providers.ChatRequest{
		Model:    "gemini-2.0-flash",
		Messages: []providers.Message{{Role: "user", Content: "Hi"}},
	})
	if err == nil {
		t.Fatal("expected error")
	}

	var provErr *providers.ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("expected *ProviderError, got %T", err)
	}
	if !provErr.Retryable {
		t.Error("503 should be retryable")
	}
	if provErr.Message != "The model is overloaded" {
		t.Errorf("Message = %q, want upstream message", provErr.Message)
	}
}

func TestConvertFinishReason(t *testing.T) {
	tests := []struct {
		reason string
		want   string
	}{
		{"STOP", "stop"},
		{"MAX_TOKENS", "length"},
		{"SAFETY", "content_filter"},
		{"OTHER", "other"},
	}

	for _, tt := range tests {
		if got := convertFinishReason(tt.reason); got != tt.want {
			t.Errorf("convertFinishReason(%s) = %s, want %s", tt.reason, got, tt.want)
		}
	}
}
