// Package app wires the gateway's dependencies: providers, router,
// recorder, repositories and auth.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/llmfallback/llmfallback/audit"
	"github.com/llmfallback/llmfallback/config"
	"github.com/llmfallback/llmfallback/middleware"
	"github.com/llmfallback/llmfallback/providers"
	"github.com/llmfallback/llmfallback/providers/anthropic"
	"github.com/llmfallback/llmfallback/providers/gemini"
	"github.com/llmfallback/llmfallback/providers/openai"
	"github.com/llmfallback/llmfallback/ratelimit"
	"github.com/llmfallback/llmfallback/repositories"
	"github.com/llmfallback/llmfallback/repositories/postgres"
	"github.com/llmfallback/llmfallback/routing"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	Logger *zap.Logger
	DB     *postgres.DB // nil when no database is configured

	// Request ledger
	Requests repositories.RequestRepository // nil when no database is configured
	Recorder *audit.Recorder

	// Routing
	Registry *providers.Registry
	Router   *routing.Router
	Limiter  *ratelimit.Limiter

	// Auth
	AuthMiddleware *middleware.AuthMiddleware
}

// NewDependencies creates and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initDatabase(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := deps.initRecorder(); err != nil {
		return nil, fmt.Errorf("failed to initialize recorder: %w", err)
	}

	if err := deps.initProviders(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize providers: %w", err)
	}

	if err := deps.initRouter(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize router: %w", err)
	}

	deps.initAuth(cfg)

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initDatabase connects the request ledger database when configured
func (d *Dependencies) initDatabase(cfg *config.Config) error {
	if cfg.Database == nil {
		d.Logger.Info("no database configured, request ledger disabled")
		return nil
	}

	db, err := postgres.NewDB(*cfg.Database, d.Logger)
	if err != nil {
		return err
	}

	d.DB = db
	d.Requests = postgres.NewRequestRepository(db, d.Logger)
	return nil
}

// initRecorder starts the async ledger pipeline
func (d *Dependencies) initRecorder() error {
	d.Recorder = audit.NewRecorder(d.Requests, d.Logger, audit.DefaultConfig())
	return d.Recorder.Start()
}

// initProviders registers every provider that has credentials configured
func (d *Dependencies) initProviders(cfg *config.Config) error {
	registry := providers.NewRegistry()

	if cfg.Providers.OpenAI.Enabled() {
		adapter := openai.NewOpenAIAdapter(providerConfig(cfg.Providers.OpenAI))
		if err := registry.RegisterProvider(adapter); err != nil {
			return err
		}
		d.Logger.Info("registered OpenAI provider")
	}

	if cfg.Providers.Anthropic.Enabled() {
		adapter := anthropic.NewAnthropicAdapter(providerConfig(cfg.Providers.Anthropic))
		if err := registry.RegisterProvider(adapter); err != nil {
			return err
		}
		d.Logger.Info("registered Anthropic provider")
	}

	if cfg.Providers.Gemini.Enabled() {
		adapter := gemini.NewGeminiAdapter(providerConfig(cfg.Providers.Gemini))
		if err := registry.RegisterProvider(adapter); err != nil {
			return err
		}
		d.Logger.Info("registered Gemini provider")
	}

	if registry.ProviderCount() == 0 {
		return fmt.Errorf("no providers configured: set at least one API key")
	}

	d.Registry = registry
	return nil
}

// initRouter builds the fallback router over the configured chain
func (d *Dependencies) initRouter(cfg *config.Config) error {
	router, err := routing.NewRouter(cfg.Router.Chain, d.Registry, routing.Config{
		FailureWindow:  cfg.Router.FailureWindow,
		AttemptTimeout: cfg.Router.AttemptTimeout,
	}, d.Logger)
	if err != nil {
		return err
	}

	if cfg.RateLimit.RequestsPerMinute > 0 {
		d.Limiter = ratelimit.NewLimiter(cfg.RateLimit.RequestsPerMinute, d.Logger)
		router.SetLimiter(d.Limiter)
		d.Logger.Info("provider rate limiting enabled",
			zap.Int("requests_per_minute", cfg.RateLimit.RequestsPerMinute))
	}

	d.Router = router
	d.Logger.Info("fallback router initialized",
		zap.Int("chain_length", len(cfg.Router.Chain)),
		zap.Duration("failure_window", cfg.Router.FailureWindow))
	return nil
}

// initAuth wires the admin token validator
func (d *Dependencies) initAuth(cfg *config.Config) {
	if cfg.Auth.JWTSecret == "" {
		d.Logger.Warn("admin JWT secret not configured, admin endpoints disabled")
		// Reject-all validator so admin routes return 401
		d.AuthMiddleware = middleware.NewAuthMiddleware(&rejectAllValidator{}, d.Logger)
		return
	}
	d.AuthMiddleware = middleware.NewAuthMiddleware(middleware.NewJWTValidator(cfg.Auth.JWTSecret), d.Logger)
}

// rejectAllValidator rejects all tokens (used when no secret is configured)
type rejectAllValidator struct{}

func (*rejectAllValidator) ValidateToken(context.Context, string) (*middleware.Claims, error) {
	return nil, fmt.Errorf("authentication not configured")
}

// providerConfig converts the config-layer settings to the provider layer
func providerConfig(cfg config.ProviderConfig) providers.ProviderConfig {
	pc := providers.DefaultProviderConfig()
	pc.APIKey = cfg.APIKey
	pc.BaseURL = cfg.BaseURL
	if cfg.Timeout > 0 {
		pc.Timeout = cfg.Timeout
	}
	return pc
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.Recorder != nil {
		timeout := 5 * time.Second
		if deadline, ok := ctx.Deadline(); ok {
			if remaining := time.Until(deadline); remaining < timeout {
				timeout = remaining
			}
		}
		if err := d.Recorder.Stop(timeout); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop recorder: %w", err))
		}
	}

	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		}
	}

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
