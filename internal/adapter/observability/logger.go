package observability

import (
	"log/slog"
	"os"

	"github.com/fairyhunter13/code-eval-worker/internal/config"
)

// SetupLogger builds the process-wide JSON slog logger. Every record
// carries the service name, environment, and the language this worker
// serves, so logs from a fleet of per-language workers stay sortable.
// Dev lowers the level to debug.
func SetupLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if cfg.IsDev() {
		opts.Level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts)).With(
		slog.String("service", cfg.OTELServiceName),
		slog.String("env", cfg.AppEnv),
		slog.String("language", cfg.ExecLanguage),
	)
}
