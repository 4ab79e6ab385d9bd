package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/llmfallback/llmfallback/app"
	"github.com/llmfallback/llmfallback/config"
	"github.com/llmfallback/llmfallback/routing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testDeps(t *testing.T) *app.Dependencies {
	t.Helper()

	cfg := &config.Config{
		Environment: "test",
		Server: config.ServerConfig{
			WriteTimeout: 30 * time.Second,
		},
		Providers: config.ProvidersConfig{
			OpenAI: config.ProviderConfig{APIKey: "sk-test"},
		},
		Router: config.RouterConfig{
			Chain:         []routing.ModelRef{{Provider: "openai", Model: "gpt-4o"}},
			FailureWindow: time.Hour,
		},
		Observability: config.ObservabilityConfig{LogLevel: "info"},
	}

	deps, err := app.NewDependencies(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { deps.Close(context.Background()) })
	return deps
}

func TestSetupRoutes_Health(t *testing.T) {
	handler := SetupRoutes(testDeps(t))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSetupRoutes_Readiness(t *testing.T) {
	handler := SetupRoutes(testDeps(t))

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSetupRoutes_Models(t *testing.T) {
	handler := SetupRoutes(testDeps(t))

	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "gpt-4o")
}

func TestSetupRoutes_AdminRequiresAuth(t *testing.T) {
	handler := SetupRoutes(testDeps(t))

	req := httptest.NewRequest(http.MethodGet, "/admin/health/models", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSetupRoutes_NotFound(t *testing.T) {
	handler := SetupRoutes(testDeps(t))

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "endpoint not found")
}

func TestSetupRoutes_CompletionValidation(t *testing.T) {
	handler := SetupRoutes(testDeps(t))

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	// Empty body never reaches the router
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
