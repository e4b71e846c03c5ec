package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/fairyhunter13/code-eval-worker/internal/domain"
	obs "github.com/fairyhunter13/code-eval-worker/internal/observability"
)

// Workdir hands out per-batch working directories under the sandbox
// root. Every batch gets its own uuid-named directory, so concurrent
// batches can never collide on file names.
type Workdir struct {
	root string
}

// NewWorkdir ensures the sandbox root exists and returns a manager for
// batch directories beneath it.
func NewWorkdir(root string) (*Workdir, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("op=sandbox.NewWorkdir: empty root: %w", domain.ErrInvalidArgument)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("op=sandbox.NewWorkdir: create root %s: %w", root, err)
	}
	return &Workdir{root: root}, nil
}

// Root returns the sandbox root path.
func (w *Workdir) Root() string { return w.root }

// CreateBatchDir makes a fresh uniquely named directory for one batch.
func (w *Workdir) CreateBatchDir() (string, error) {
	dir := filepath.Join(w.root, uuid.NewString())
	if err := os.Mkdir(dir, 0o755); err != nil {
		return "", fmt.Errorf("op=sandbox.CreateBatchDir: %w", err)
	}
	return dir, nil
}

// RemoveBatchDir deletes a batch directory recursively. Failures are
// logged and swallowed: a stale directory is an operator concern, not
// a batch failure. Paths outside the root are refused.
func (w *Workdir) RemoveBatchDir(ctx context.Context, dir string) {
	if dir == "" {
		return
	}
	clean := filepath.Clean(dir)
	if clean == w.root || !strings.HasPrefix(clean, w.root+string(os.PathSeparator)) {
		obs.LoggerFromContext(ctx).Warn("refusing to remove path outside sandbox root",
			slog.String("dir", dir))
		return
	}
	if err := os.RemoveAll(clean); err != nil {
		obs.LoggerFromContext(ctx).Warn("batch dir cleanup failed",
			slog.String("dir", clean),
			slog.Any("error", err))
	}
}

// Writable probes that the sandbox root accepts new files. Used by the
// readiness endpoint.
func (w *Workdir) Writable() error {
	f, err := os.CreateTemp(w.root, ".readyz-*")
	if err != nil {
		return fmt.Errorf("op=sandbox.Writable: %w", err)
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	return nil
}
