package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/llmfallback/llmfallback/routing"
	"gopkg.in/yaml.v3"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Database      *DatabaseConfig // Optional: request ledger. When nil, audit logs only.
	Auth          AuthConfig
	Providers     ProvidersConfig
	Router        RouterConfig
	RateLimit     RateLimitConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	ConnectionString string // From DATABASE_URL when set
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// AuthConfig holds admin endpoint authentication configuration
type AuthConfig struct {
	// JWTSecret signs and verifies admin bearer tokens (HS256)
	JWTSecret string
}

// ProvidersConfig holds LLM provider configurations
type ProvidersConfig struct {
	OpenAI    ProviderConfig
	Anthropic ProviderConfig
	Gemini    ProviderConfig
}

// ProviderConfig holds one provider's connection settings
type ProviderConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// Enabled reports whether the provider has credentials configured
func (p ProviderConfig) Enabled() bool {
	return p.APIKey != ""
}

// RouterConfig holds the fallback chain and its tuning
type RouterConfig struct {
	// Chain is the preference-ordered list of provider/model pairs
	Chain []routing.ModelRef

	// FailureWindow is how long a failed model is skipped
	FailureWindow time.Duration

	// AttemptTimeout bounds each individual provider call
	AttemptTimeout time.Duration
}

// RateLimitConfig holds client-side provider throttling
type RateLimitConfig struct {
	// RequestsPerMinute per provider; zero means unlimited
	RequestsPerMinute int
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json or text
}

// chainFile is the YAML layout of the chain configuration file.
// Durations are Go duration strings ("1h", "90s").
type chainFile struct {
	FailureWindow  string             `yaml:"failure_window"`
	AttemptTimeout string             `yaml:"attempt_timeout"`
	Chain          []routing.ModelRef `yaml:"chain"`
}

// New creates a new Config instance by loading environment variables and,
// when CHAIN_CONFIG points at a YAML file, the chain definition from it
func New() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: loadDatabaseConfig(),
		Auth: AuthConfig{
			JWTSecret: getEnv("ADMIN_JWT_SECRET", ""),
		},
		Providers: ProvidersConfig{
			OpenAI: ProviderConfig{
				APIKey:  getEnv("OPENAI_API_KEY", ""),
				BaseURL: getEnv("OPENAI_BASE_URL", ""),
				Timeout: getEnvAsDuration("OPENAI_TIMEOUT", 60*time.Second),
			},
			Anthropic: ProviderConfig{
				APIKey:  getEnv("ANTHROPIC_API_KEY", ""),
				BaseURL: getEnv("ANTHROPIC_BASE_URL", ""),
				Timeout: getEnvAsDuration("ANTHROPIC_TIMEOUT", 60*time.Second),
			},
			Gemini: ProviderConfig{
				APIKey:  getEnv("GEMINI_API_KEY", ""),
				BaseURL: getEnv("GEMINI_BASE_URL", ""),
				Timeout: getEnvAsDuration("GEMINI_TIMEOUT", 60*time.Second),
			},
		},
		Router: RouterConfig{
			FailureWindow:  getEnvAsDuration("FAILURE_WINDOW", routing.DefaultFailureWindow),
			AttemptTimeout: getEnvAsDuration("ATTEMPT_TIMEOUT", 0),
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: getEnvAsInt("PROVIDER_REQUESTS_PER_MINUTE", 0),
		},
		Observability: ObservabilityConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := loadChain(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadChain fills Router.Chain from CHAIN_CONFIG (YAML file) or, failing
// that, the FALLBACK_CHAIN env var ("provider/model,provider/model,...")
func loadChain(cfg *Config) error {
	if path := getEnv("CHAIN_CONFIG", ""); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read chain config %s: %w", path, err)
		}

		var file chainFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return fmt.Errorf("failed to parse chain config %s: %w", path, err)
		}

		cfg.Router.Chain = file.Chain
		if file.FailureWindow != "" {
			window, err := time.ParseDuration(file.FailureWindow)
			if err != nil {
				return fmt.Errorf("invalid failure_window in %s: %w", path, err)
			}
			cfg.Router.FailureWindow = window
		}
		if file.AttemptTimeout != "" {
			timeout, err := time.ParseDuration(file.AttemptTimeout)
			if err != nil {
				return fmt.Errorf("invalid attempt_timeout in %s: %w", path, err)
			}
			cfg.Router.AttemptTimeout = timeout
		}
		return nil
	}

	if raw := getEnv("FALLBACK_CHAIN", ""); raw != "" {
		chain, err := ParseChain(raw)
		if err != nil {
			return err
		}
		cfg.Router.Chain = chain
	}

	return nil
}

// ParseChain parses the "provider/model,provider/model" form used by
// FALLBACK_CHAIN
func ParseChain(raw string) ([]routing.ModelRef, error) {
	var chain []routing.ModelRef

	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		provider, model, ok := strings.Cut(entry, "/")
		if !ok || provider == "" || model == "" {
			return nil, fmt.Errorf("invalid chain entry %q: want provider/model", entry)
		}
		chain = append(chain, routing.ModelRef{Provider: provider, Model: model})
	}

	if len(chain) == 0 {
		return nil, fmt.Errorf("chain is empty")
	}
	return chain, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	if len(c.Router.Chain) == 0 {
		return fmt.Errorf("fallback chain required: set CHAIN_CONFIG or FALLBACK_CHAIN")
	}

	enabled := map[string]bool{
		"openai":    c.Providers.OpenAI.Enabled(),
		"anthropic": c.Providers.Anthropic.Enabled(),
		"gemini":    c.Providers.Gemini.Enabled(),
	}
	for _, ref := range c.Router.Chain {
		configured, known := enabled[ref.Provider]
		if !known {
			return fmt.Errorf("chain entry %s: unknown provider", ref.Key())
		}
		if !configured {
			return fmt.Errorf("chain entry %s: provider has no API key configured", ref.Key())
		}
	}

	if c.IsProduction() && c.Auth.JWTSecret == "" {
		return fmt.Errorf("ADMIN_JWT_SECRET is required in production")
	}

	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password). Parses ConnectionString when set.
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			host := u.Hostname()
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			db := strings.TrimPrefix(u.Path, "/")
			return fmt.Sprintf("host=%s port=%s database=%s", host, port, db)
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// loadDatabaseConfig loads database config from DATABASE_URL or DB_* env vars.
// Returns nil when neither is set (the gateway runs without a request ledger).
func loadDatabaseConfig() *DatabaseConfig {
	dbURL := getEnv("DATABASE_URL", "")
	if dbURL != "" {
		return &DatabaseConfig{
			ConnectionString: dbURL,
			MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		}
	}

	if getEnv("DB_HOST", "") == "" {
		return nil
	}
	return &DatabaseConfig{
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvAsInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "llmfallback"),
		Password:        getEnv("DB_PASSWORD", ""),
		Database:        getEnv("DB_NAME", "llmfallback"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
