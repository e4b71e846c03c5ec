package app

import (
	"context"
	"fmt"
	"os/exec"
)

// WritableChecker is the minimal interface of the sandbox workdir
// needed for readiness.
type WritableChecker interface{ Writable() error }

// BlobPinger is the minimal interface of the blob store needed for
// readiness.
type BlobPinger interface {
	Ping(ctx context.Context) error
}

// BuildReadinessChecks returns three readiness checks: the sandbox
// directory, the language toolchain, and the blob store.
func BuildReadinessChecks(wd WritableChecker, toolchainBinary string, blob BlobPinger) (
	func(ctx context.Context) error,
	func(ctx context.Context) error,
	func(ctx context.Context) error,
) {
	sandboxCheck := func(context.Context) error {
		if wd == nil {
			return fmt.Errorf("sandbox not configured")
		}
		return wd.Writable()
	}
	toolchainCheck := func(context.Context) error {
		if toolchainBinary == "" {
			return fmt.Errorf("toolchain not configured")
		}
		if _, err := exec.LookPath(toolchainBinary); err != nil {
			return fmt.Errorf("toolchain %s: %w", toolchainBinary, err)
		}
		return nil
	}
	blobCheck := func(ctx context.Context) error {
		if blob == nil {
			return fmt.Errorf("blob store not configured")
		}
		return blob.Ping(ctx)
	}
	return sandboxCheck, toolchainCheck, blobCheck
}
