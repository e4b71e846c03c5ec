package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/code-eval-worker/internal/domain"
)

func Test_Load_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("EXEC_LANGUAGE", "python")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load err: %v", err)
	}
	if cfg.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Port)
	}
	if cfg.SandboxRoot != "/sandbox" {
		t.Fatalf("expected default sandbox root, got %q", cfg.SandboxRoot)
	}
	if cfg.MaxTimeSec != 20 || cfg.MaxMemoryMB != 512 {
		t.Fatalf("unexpected global limits: %d %d", cfg.MaxTimeSec, cfg.MaxMemoryMB)
	}
	if cfg.MaxConcurrentBatches != 2 {
		t.Fatalf("expected default concurrency 2, got %d", cfg.MaxConcurrentBatches)
	}
	if cfg.APIHeaderName != "X-Api-Key" {
		t.Fatalf("expected default header name, got %q", cfg.APIHeaderName)
	}
	if cfg.AzureStorageContainer != "submissions" {
		t.Fatalf("expected default container, got %q", cfg.AzureStorageContainer)
	}
	if cfg.CallbackTimeout != 30*time.Second {
		t.Fatalf("expected default callback timeout, got %v", cfg.CallbackTimeout)
	}
	if !cfg.IsDev() || cfg.IsProd() {
		t.Fatalf("expected dev mode")
	}
	if cfg.Language() != domain.LangPython {
		t.Fatalf("expected python, got %q", cfg.Language())
	}
	if g := cfg.GlobalLimits(); g.MaxTimeSec != 20 || g.MaxMemoryMB != 512 {
		t.Fatalf("unexpected GlobalLimits: %+v", g)
	}
}

func Test_Validate_DevMinimal(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("EXEC_LANGUAGE", "go")

	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
}

func Test_Validate_RejectsUnknownLanguage(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("EXEC_LANGUAGE", "fortran")

	cfg, err := Load()
	require.NoError(t, err)
	err = cfg.Validate()
	require.Error(t, err)
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func Test_Validate_ProdRequiresCollaborators(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	t.Setenv("EXEC_LANGUAGE", "c")

	cfg, err := Load()
	require.NoError(t, err)
	require.Error(t, cfg.Validate(), "prod without orchestrator/API key must fail")

	t.Setenv("ORCHESTRATOR_ADDRESS", "http://orchestrator:9000")
	t.Setenv("API_KEY", "secret")
	t.Setenv("AZURE_STORAGE_CONNECTION_STRING", "UseDevelopmentStorage=true")
	cfg, err = Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
}

func Test_Validate_RejectsNonPositiveLimits(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("EXEC_LANGUAGE", "rust")
	t.Setenv("MAX_TIME_SEC", "0")

	cfg, err := Load()
	require.NoError(t, err)
	require.ErrorIs(t, cfg.Validate(), domain.ErrInvalidArgument)

	t.Setenv("MAX_TIME_SEC", "20")
	t.Setenv("MAX_CONCURRENT_BATCHES", "0")
	cfg, err = Load()
	require.NoError(t, err)
	require.ErrorIs(t, cfg.Validate(), domain.ErrInvalidArgument)
}

func Test_GetBlobBackoffConfig_TestModeShortens(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("EXEC_LANGUAGE", "python")

	cfg, err := Load()
	require.NoError(t, err)
	maxElapsed, initial, maxIvl, mult := cfg.GetBlobBackoffConfig()
	require.Less(t, maxElapsed, 5*time.Second)
	require.Less(t, initial, maxIvl)
	require.Greater(t, mult, 1.0)
}
