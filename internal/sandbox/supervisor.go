// Package sandbox launches and supervises untrusted child processes,
// enforcing wall-clock and memory limits and capturing their output.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/armon/circbuf"

	"github.com/fairyhunter13/code-eval-worker/internal/domain"
	obs "github.com/fairyhunter13/code-eval-worker/internal/observability"
)

const (
	// Per-stream capture cap. The ring keeps the tail, which is where
	// compiler and runtime diagnostics end up.
	outputCapBytes = 1 << 20

	// TruncationMarker is prepended to a captured stream whose ring
	// buffer wrapped.
	TruncationMarker = "[output truncated]\n"

	memWarmup       = 100 * time.Millisecond
	memPollInterval = 250 * time.Millisecond
)

// Command describes one supervised child process.
type Command struct {
	Path string
	Args []string
	Dir  string
	// Stdin is written to the child in full, then closed. An empty
	// payload means the child sees EOF immediately.
	Stdin string
	// TimeLimit is the supervisor deadline. Callers fold their grace
	// period in before calling.
	TimeLimit time.Duration
	// MaxMemoryMB caps the resident set of the whole process tree.
	// Zero disables the memory watchdog.
	MaxMemoryMB int
}

// Supervisor runs children under two concurrent watchdogs: an RSS
// poller and a deadline. Flags are written under a mutex and always
// set before the kill signal goes out, so post-exit attribution never
// guesses from the exit code alone. The memory flag wins any race.
type Supervisor struct {
	warmup   time.Duration
	interval time.Duration
}

// NewSupervisor returns a Supervisor with production polling intervals.
func NewSupervisor() *Supervisor {
	return &Supervisor{warmup: memWarmup, interval: memPollInterval}
}

// Run executes one child to completion and reports what happened. The
// returned error reflects caller misuse or context cancellation only;
// every observable child failure is encoded in the ProcessOutcome.
// The child is confirmed reaped before Run returns.
func (s *Supervisor) Run(ctx context.Context, c Command) (domain.ProcessOutcome, error) {
	if c.Path == "" {
		return domain.ProcessOutcome{}, fmt.Errorf("op=sandbox.Run: empty command path: %w", domain.ErrInvalidArgument)
	}
	if c.TimeLimit <= 0 {
		return domain.ProcessOutcome{}, fmt.Errorf("op=sandbox.Run: non-positive time limit: %w", domain.ErrInvalidArgument)
	}
	lg := obs.LoggerFromContext(ctx)

	outBuf, _ := circbuf.NewBuffer(outputCapBytes)
	errBuf, _ := circbuf.NewBuffer(outputCapBytes)

	cmd := exec.Command(c.Path, c.Args...)
	cmd.Dir = c.Dir
	cmd.Stdin = strings.NewReader(c.Stdin)
	cmd.Stdout = outBuf
	cmd.Stderr = errBuf
	// Own process group so a single signal reaps the whole descendant tree.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	// Bound the post-exit pipe drain in case a detached descendant
	// inherited stdout and survived the group kill.
	cmd.WaitDelay = 2 * time.Second

	start := time.Now()
	if err := cmd.Start(); err != nil {
		lg.Error("spawn failed",
			slog.String("path", c.Path),
			slog.Any("error", err))
		return domain.ProcessOutcome{ExitCode: domain.ExitUnknown}, nil
	}
	pid := cmd.Process.Pid

	var (
		mu             sync.Mutex
		memoryExceeded bool
		timedOut       bool
	)

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	done := make(chan struct{})
	var wg sync.WaitGroup
	if c.MaxMemoryMB > 0 {
		limit := uint64(c.MaxMemoryMB) * 1024 * 1024
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case <-done:
				return
			case <-time.After(s.warmup):
			}
			ticker := time.NewTicker(s.interval)
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return
				case <-ticker.C:
					rss, err := processTreeRSS(pid)
					if err != nil {
						// Tree may be mid-exit; sample again next tick.
						continue
					}
					if rss > limit {
						mu.Lock()
						memoryExceeded = true
						mu.Unlock()
						lg.Info("memory limit breached",
							slog.Int("pid", pid),
							slog.Uint64("rss_bytes", rss),
							slog.Uint64("limit_bytes", limit))
						s.killGroup(lg, pid)
						return
					}
				}
			}
		}()
	}

	timer := time.NewTimer(c.TimeLimit)
	defer timer.Stop()

	var waitErr error
	select {
	case waitErr = <-waitCh:
	case <-timer.C:
		mu.Lock()
		if !memoryExceeded {
			timedOut = true
		}
		mu.Unlock()
		s.killGroup(lg, pid)
		// SIGKILL has been delivered; the reap cannot block indefinitely.
		waitErr = <-waitCh
	case <-ctx.Done():
		s.killGroup(lg, pid)
		<-waitCh
		close(done)
		wg.Wait()
		return domain.ProcessOutcome{
			ExitCode:   domain.ExitUnknown,
			DurationMs: time.Since(start).Milliseconds(),
		}, ctx.Err()
	}
	close(done)
	wg.Wait()
	duration := time.Since(start)

	mu.Lock()
	memKilled, deadlineKilled := memoryExceeded, timedOut
	mu.Unlock()

	out := domain.ProcessOutcome{
		Stdout:     capture(outBuf),
		Stderr:     capture(errBuf),
		DurationMs: duration.Milliseconds(),
	}
	switch {
	case memKilled:
		out.ExitCode = domain.ExitKilledByMemory
		out.MemoryExceeded = true
	case deadlineKilled:
		out.ExitCode = domain.ExitKilledByDeadline
		out.TimedOut = true
	default:
		out.ExitCode = exitCode(cmd, waitErr)
		// The timeout wrapper reports its own kill as 124 or 137; fold
		// those back into the deadline classification.
		if isTimeoutWrapper(c.Path) && (out.ExitCode == 124 || out.ExitCode == 137) {
			out.ExitCode = domain.ExitKilledByDeadline
			out.TimedOut = true
		}
	}
	return out, nil
}

// killGroup SIGKILLs the whole process group. Failures are logged and
// swallowed: the group may already be gone by the time the signal lands.
func (s *Supervisor) killGroup(lg *slog.Logger, pid int) {
	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		lg.Warn("kill process group failed",
			slog.Int("pid", pid),
			slog.Any("error", err))
	}
}

func capture(b *circbuf.Buffer) string {
	s := strings.TrimRight(b.String(), "\r\n")
	if b.TotalWritten() > b.Size() {
		return TruncationMarker + s
	}
	return s
}

func exitCode(cmd *exec.Cmd, waitErr error) int {
	if waitErr == nil {
		return 0
	}
	if errors.Is(waitErr, exec.ErrWaitDelay) {
		// Child exited but a descendant held the pipes past the drain
		// deadline; the process state still carries the real code.
		return cmd.ProcessState.ExitCode()
	}
	var ee *exec.ExitError
	if errors.As(waitErr, &ee) {
		if code := ee.ExitCode(); code >= 0 {
			return code
		}
		// Signal-killed without a watchdog flag (e.g. cgroup OOM out of
		// band). Report the 128+signal convention and let the verdict
		// layer decide.
		if ws, ok := ee.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return 128 + int(ws.Signal())
		}
		return domain.ExitUnknown
	}
	return domain.ExitUnknown
}

func isTimeoutWrapper(path string) bool {
	return filepath.Base(path) == "timeout"
}
