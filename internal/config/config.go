// Package config defines configuration parsing and helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/fairyhunter13/code-eval-worker/internal/domain"
)

// Config holds all application configuration parsed from environment variables.
type Config struct {
	AppEnv string `env:"APP_ENV" envDefault:"dev"`
	Port   int    `env:"PORT" envDefault:"8080"`

	// Execution: one language adapter per running instance.
	ExecLanguage string `env:"EXEC_LANGUAGE"`
	SandboxRoot  string `env:"SANDBOX_ROOT" envDefault:"/sandbox"`
	// MaxTimeSec/MaxMemoryMB are hard ceilings clamped onto every
	// per-case limit.
	MaxTimeSec           int `env:"MAX_TIME_SEC" envDefault:"20"`
	MaxMemoryMB          int `env:"MAX_MEMORY_MB" envDefault:"512"`
	MaxConcurrentBatches int `env:"MAX_CONCURRENT_BATCHES" envDefault:"2"`
	// ToolchainConfig optionally points at a YAML file overriding the
	// built-in compile/run invocations (see toolchains.go).
	ToolchainConfig string `env:"TOOLCHAIN_CONFIG" envDefault:""`

	// Orchestrator callback endpoint + shared API-key auth. The same
	// header/key pair also guards the inbound /execute endpoint.
	OrchestratorAddress string        `env:"ORCHESTRATOR_ADDRESS"`
	APIHeaderName       string        `env:"API_HEADER_NAME" envDefault:"X-Api-Key"`
	APIKey              string        `env:"API_KEY"`
	CallbackTimeout     time.Duration `env:"CALLBACK_TIMEOUT" envDefault:"30s"`

	// Azure Blob Storage collaborator (source/input/expected texts).
	AzureStorageConnectionString string        `env:"AZURE_STORAGE_CONNECTION_STRING"`
	AzureStorageContainer        string        `env:"AZURE_STORAGE_CONTAINER" envDefault:"submissions"`
	BlobFetchMaxElapsed          time.Duration `env:"BLOB_FETCH_MAX_ELAPSED" envDefault:"15s"`

	CORSAllowOrigins      string        `env:"CORS_ALLOW_ORIGINS" envDefault:"*"`
	RateLimitPerMin       int           `env:"RATE_LIMIT_PER_MIN" envDefault:"30"`
	ServerShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	HTTPReadTimeout       time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	HTTPWriteTimeout      time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	HTTPIdleTimeout       time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`

	OTLPEndpoint    string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	OTELServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"code-eval-worker"`
}

// Load parses environment variables into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("op=config.Load: %w", err)
	}
	return cfg, nil
}

// Validate enforces the startup invariants. A worker that cannot tell
// which language it serves, where its sandbox lives, or where results
// go must refuse to start.
func (c Config) Validate() error {
	if _, err := domain.ParseLanguage(c.ExecLanguage); err != nil {
		return fmt.Errorf("op=config.Validate: EXEC_LANGUAGE=%q: %w", c.ExecLanguage, err)
	}
	if strings.TrimSpace(c.SandboxRoot) == "" {
		return fmt.Errorf("op=config.Validate: SANDBOX_ROOT empty: %w", domain.ErrInvalidArgument)
	}
	if c.MaxTimeSec <= 0 {
		return fmt.Errorf("op=config.Validate: MAX_TIME_SEC=%d: %w", c.MaxTimeSec, domain.ErrInvalidArgument)
	}
	if c.MaxMemoryMB <= 0 {
		return fmt.Errorf("op=config.Validate: MAX_MEMORY_MB=%d: %w", c.MaxMemoryMB, domain.ErrInvalidArgument)
	}
	if c.MaxConcurrentBatches < 1 {
		return fmt.Errorf("op=config.Validate: MAX_CONCURRENT_BATCHES=%d: %w", c.MaxConcurrentBatches, domain.ErrInvalidArgument)
	}
	if !c.IsDev() {
		if c.OrchestratorAddress == "" {
			return fmt.Errorf("op=config.Validate: ORCHESTRATOR_ADDRESS required outside dev: %w", domain.ErrInvalidArgument)
		}
		if c.APIKey == "" {
			return fmt.Errorf("op=config.Validate: API_KEY required outside dev: %w", domain.ErrInvalidArgument)
		}
		if c.AzureStorageConnectionString == "" {
			return fmt.Errorf("op=config.Validate: AZURE_STORAGE_CONNECTION_STRING required outside dev: %w", domain.ErrInvalidArgument)
		}
	}
	return nil
}

// Language returns the configured language adapter.
func (c Config) Language() domain.Language {
	l, _ := domain.ParseLanguage(c.ExecLanguage)
	return l
}

// GlobalLimits returns the process-wide execution ceilings.
func (c Config) GlobalLimits() domain.GlobalLimits {
	return domain.GlobalLimits{MaxTimeSec: c.MaxTimeSec, MaxMemoryMB: c.MaxMemoryMB}
}

// IsDev reports whether the app is running in development mode.
func (c Config) IsDev() bool { return strings.ToLower(c.AppEnv) == "dev" }

// IsProd reports whether the app is running in production mode.
func (c Config) IsProd() bool { return strings.ToLower(c.AppEnv) == "prod" }

// IsTest reports whether the app is running in test mode.
func (c Config) IsTest() bool { return strings.ToLower(c.AppEnv) == "test" }

// GetBlobBackoffConfig returns blob-fetch retry settings appropriate for the
// current environment. Test environments use much shorter intervals so
// failing fetches do not stall the suite.
func (c Config) GetBlobBackoffConfig() (maxElapsedTime, initialInterval, maxInterval time.Duration, multiplier float64) {
	if c.IsTest() {
		return 2 * time.Second, 50 * time.Millisecond, 500 * time.Millisecond, 2.0
	}
	return c.BlobFetchMaxElapsed, 500 * time.Millisecond, 5 * time.Second, 1.5
}
