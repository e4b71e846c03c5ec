// Command worker starts the code evaluation worker: an HTTP server
// that accepts batches from the orchestrator, evaluates them in the
// configured language, and reports results via callback.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fairyhunter13/code-eval-worker/internal/adapter/blob/azure"
	httpserver "github.com/fairyhunter13/code-eval-worker/internal/adapter/httpserver"
	"github.com/fairyhunter13/code-eval-worker/internal/adapter/observability"
	"github.com/fairyhunter13/code-eval-worker/internal/adapter/orchestrator"
	"github.com/fairyhunter13/code-eval-worker/internal/app"
	"github.com/fairyhunter13/code-eval-worker/internal/config"
	"github.com/fairyhunter13/code-eval-worker/internal/domain"
	"github.com/fairyhunter13/code-eval-worker/internal/evaluator"
	"github.com/fairyhunter13/code-eval-worker/internal/sandbox"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("config invalid", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	// Register all Prometheus metrics once per process so that /metrics
	// exposes HTTP, batch, and sandbox instrumentation.
	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	slog.Info("starting evaluation worker",
		slog.String("env", cfg.AppEnv),
		slog.String("language", cfg.ExecLanguage))

	// Sandbox root
	workdir, err := sandbox.NewWorkdir(cfg.SandboxRoot)
	if err != nil {
		slog.Error("sandbox init failed", slog.Any("error", err))
		os.Exit(1)
	}

	// Optional toolchain overrides from YAML
	overrides, err := loadOverrides(cfg)
	if err != nil {
		slog.Error("toolchain config failed", slog.Any("error", err))
		os.Exit(1)
	}

	// Evaluation engine for the configured language
	adapter, err := evaluator.NewAdapter(cfg.Language(), sandbox.NewSupervisor(), cfg.GlobalLimits(), overrides)
	if err != nil {
		slog.Error("language adapter init failed", slog.Any("error", err))
		os.Exit(1)
	}
	engine := evaluator.NewBatchEvaluator(adapter, workdir)

	// Collaborators: blob store in, orchestrator callback out
	blobClient, err := azure.New(cfg)
	if err != nil {
		slog.Error("blob store init failed (set AZURE_STORAGE_CONNECTION_STRING; Azurite works for local runs)", slog.Any("error", err))
		os.Exit(1)
	}
	callback := orchestrator.New(cfg)

	service := evaluator.NewService(blobClient, callback, engine, cfg.Language(), cfg.MaxConcurrentBatches)

	// HTTP surface
	sandboxCheck, toolchainCheck, blobCheck := app.BuildReadinessChecks(workdir, adapter.ToolchainBinary(), blobClient)
	srv := httpserver.NewServer(cfg, service, sandboxCheck, toolchainCheck, blobCheck)
	handler := app.BuildRouter(cfg, srv)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)

	// Let in-flight batches deliver their callbacks before exiting.
	if err := service.Drain(shutdownCtx); err != nil {
		slog.Error("shutdown with undelivered batches", slog.Any("error", err))
	} else {
		slog.Info("worker stopped")
	}
}

// loadOverrides reads the optional toolchain YAML and converts it into
// the evaluator's override table.
func loadOverrides(cfg config.Config) (map[domain.Language]evaluator.Override, error) {
	specs, err := config.LoadToolchains(cfg.ToolchainConfig)
	if err != nil {
		return nil, err
	}
	if len(specs) == 0 {
		return nil, nil
	}
	out := make(map[domain.Language]evaluator.Override, len(specs))
	for lang, spec := range specs {
		out[lang] = evaluator.Override{
			CompileArgs:       spec.CompileArgs,
			RunArgs:           spec.RunArgs,
			CompileTimeoutSec: spec.CompileTimeoutSec,
			CompileMemoryMB:   spec.CompileMemoryMB,
		}
	}
	return out, nil
}
