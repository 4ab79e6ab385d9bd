package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/llmfallback/llmfallback/models"
	"github.com/llmfallback/llmfallback/providers"
	"github.com/llmfallback/llmfallback/routing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubRouter scripts the router outcome for handler tests
type stubRouter struct {
	result *routing.Result
	err    error
	gotReq *providers.ChatRequest
}

func (s *stubRouter) Completion(_ context.Context, req *providers.ChatRequest) (*routing.Result, error) {
	s.gotReq = req
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

// stubRecorder captures ledger records
type stubRecorder struct {
	records []*models.RequestRecord
}

func (s *stubRecorder) Record(record *models.RequestRecord) error {
	s.records = append(s.records, record)
	return nil
}

func successResult() *routing.Result {
	served := routing.ModelRef{Provider: "anthropic", Model: "claude-sonnet-4-20250514"}
	return &routing.Result{
		Response: &providers.ChatResponse{
			ID:    "msg_123",
			Model: "claude-sonnet-4-20250514",
			Choices: []providers.Choice{
				{
					Index:        0,
					Message:      providers.Message{Role: "assistant", Content: "hello"},
					FinishReason: "stop",
				},
			},
			Usage:    providers.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
			Provider: "anthropic",
			Created:  time.Now(),
		},
		Served: served,
		Attempts: []routing.Attempt{
			{Ref: routing.ModelRef{Provider: "openai", Model: "gpt-4o"}, Error: "upstream error"},
			{Ref: served},
		},
	}
}

func completionBody(t *testing.T, model string) *bytes.Buffer {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"model": model,
		"messages": []map[string]string{
			{"role": "user", "content": "hi"},
		},
	})
	require.NoError(t, err)
	return bytes.NewBuffer(body)
}

func doCompletion(t *testing.T, handler *CompletionHandler, body *bytes.Buffer) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.HandleChatCompletion(rec, req)
	return rec
}

func TestHandleChatCompletion_Success(t *testing.T) {
	router := &stubRouter{result: successResult()}
	recorder := &stubRecorder{}
	handler := NewCompletionHandler(router, recorder, zap.NewNop())

	rec := doCompletion(t, handler, completionBody(t, "auto"))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp ChatCompletionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "msg_123", resp.ID)
	assert.Equal(t, "chat.completion", resp.Object)
	assert.Equal(t, "claude-sonnet-4-20250514", resp.Model)
	assert.Equal(t, "anthropic", resp.Provider)
	assert.Equal(t, 2, resp.Attempts)
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "hello", resp.Choices[0].Message.Content)
	assert.Equal(t, 15, resp.Usage.TotalTokens)

	// Router saw the requested model unchanged
	require.NotNil(t, router.gotReq)
	assert.Equal(t, "auto", router.gotReq.Model)

	// Ledger record marks the served entry
	require.Len(t, recorder.records, 1)
	record := recorder.records[0]
	assert.Equal(t, models.RequestStatusCompleted, record.Status)
	assert.Equal(t, "anthropic", record.Provider)
	assert.Equal(t, 2, record.Attempts)
	assert.Equal(t, 15, record.TotalTokens)
}

func TestHandleChatCompletion_InvalidBody(t *testing.T) {
	handler := NewCompletionHandler(&stubRouter{}, nil, zap.NewNop())

	rec := doCompletion(t, handler, bytes.NewBufferString("{not json"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleChatCompletion_MissingMessages(t *testing.T) {
	router := &stubRouter{}
	recorder := &stubRecorder{}
	handler := NewCompletionHandler(router, recorder, zap.NewNop())

	body, _ := json.Marshal(map[string]interface{}{"model": "gpt-4o"})
	rec := doCompletion(t, handler, bytes.NewBuffer(body))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, router.gotReq)

	// Rejected before routing
	require.Len(t, recorder.records, 1)
	assert.Equal(t, models.RequestStatusRejected, recorder.records[0].Status)
}

func TestHandleChatCompletion_StreamRejected(t *testing.T) {
	router := &stubRouter{}
	handler := NewCompletionHandler(router, nil, zap.NewNop())

	body, _ := json.Marshal(map[string]interface{}{
		"model":    "gpt-4o",
		"messages": []map[string]string{{"role": "user", "content": "hi"}},
		"stream":   true,
	})
	rec := doCompletion(t, handler, bytes.NewBuffer(body))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "streaming")
	assert.Nil(t, router.gotReq)
}

func TestHandleChatCompletion_ModelNotInChain(t *testing.T) {
	router := &stubRouter{err: routing.ErrModelNotInChain}
	handler := NewCompletionHandler(router, nil, zap.NewNop())

	rec := doCompletion(t, handler, completionBody(t, "llama-70b"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleChatCompletion_AllFailed(t *testing.T) {
	allFailed := &routing.AllFailedError{
		Attempts: []routing.Attempt{
			{Ref: routing.ModelRef{Provider: "openai", Model: "gpt-4o"}, Error: "upstream error"},
			{Ref: routing.ModelRef{Provider: "anthropic", Model: "claude-sonnet-4-20250514"}, Skipped: true, SkipReason: routing.SkipCooldown},
		},
	}
	router := &stubRouter{err: allFailed}
	recorder := &stubRecorder{}
	handler := NewCompletionHandler(router, recorder, zap.NewNop())

	rec := doCompletion(t, handler, completionBody(t, "auto"))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "attempts")

	require.Len(t, recorder.records, 1)
	record := recorder.records[0]
	assert.Equal(t, models.RequestStatusFailed, record.Status)
	assert.Equal(t, 2, record.Attempts)
}

func TestHandleChatCompletion_OnlyThrottled(t *testing.T) {
	allFailed := &routing.AllFailedError{
		Attempts: []routing.Attempt{
			{Ref: routing.ModelRef{Provider: "openai", Model: "gpt-4o"}, Skipped: true, SkipReason: routing.SkipThrottled},
		},
	}
	handler := NewCompletionHandler(&stubRouter{err: allFailed}, nil, zap.NewNop())

	rec := doCompletion(t, handler, completionBody(t, "auto"))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleChatCompletion_RequestFault(t *testing.T) {
	provErr := &providers.ProviderError{
		Provider:   "openai",
		Code:       "REQUEST_ERROR",
		Message:    "max_tokens is too large",
		StatusCode: http.StatusBadRequest,
	}
	handler := NewCompletionHandler(&stubRouter{err: provErr}, nil, zap.NewNop())

	rec := doCompletion(t, handler, completionBody(t, "gpt-4o"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "max_tokens is too large")
}

func TestHandleChatCompletion_ParamsForwarded(t *testing.T) {
	router := &stubRouter{result: successResult()}
	handler := NewCompletionHandler(router, nil, zap.NewNop())

	body, _ := json.Marshal(map[string]interface{}{
		"model":       "gpt-4o",
		"messages":    []map[string]string{{"role": "user", "content": "hi"}},
		"temperature": 0.3,
		"max_tokens":  256,
		"top_p":       0.9,
		"stop":        []string{"END"},
	})
	rec := doCompletion(t, handler, bytes.NewBuffer(body))

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, router.gotReq)
	assert.Equal(t, 0.3, router.gotReq.Temperature)
	assert.Equal(t, 256, router.gotReq.MaxTokens)
	assert.Equal(t, 0.9, router.gotReq.TopP)
	assert.Equal(t, []string{"END"}, router.gotReq.Stop)
}
