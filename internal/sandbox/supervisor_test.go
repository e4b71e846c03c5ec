package sandbox

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/armon/circbuf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/code-eval-worker/internal/domain"
)

// fastSupervisor polls aggressively so watchdog tests finish quickly.
func fastSupervisor() *Supervisor {
	return &Supervisor{warmup: 10 * time.Millisecond, interval: 25 * time.Millisecond}
}

func TestRun_CapturesStdout(t *testing.T) {
	t.Parallel()
	s := NewSupervisor()
	out, err := s.Run(context.Background(), Command{
		Path:      "sh",
		Args:      []string{"-c", "echo hi"},
		Dir:       t.TempDir(),
		TimeLimit: 5 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, out.ExitCode)
	assert.Equal(t, "hi", out.Stdout)
	assert.Empty(t, out.Stderr)
	assert.False(t, out.TimedOut)
	assert.False(t, out.MemoryExceeded)
}

func TestRun_FeedsStdin(t *testing.T) {
	t.Parallel()
	s := NewSupervisor()
	out, err := s.Run(context.Background(), Command{
		Path:      "sh",
		Args:      []string{"-c", "cat"},
		Dir:       t.TempDir(),
		Stdin:     "ping\npong\n",
		TimeLimit: 5 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, out.ExitCode)
	assert.Equal(t, "ping\npong", out.Stdout)
}

func TestRun_EmptyStdinIsImmediateEOF(t *testing.T) {
	t.Parallel()
	s := NewSupervisor()
	// cat exits as soon as stdin closes; without EOF this would hit the
	// deadline instead.
	out, err := s.Run(context.Background(), Command{
		Path:      "sh",
		Args:      []string{"-c", "cat"},
		Dir:       t.TempDir(),
		TimeLimit: 3 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, out.ExitCode)
	assert.False(t, out.TimedOut)
}

func TestRun_NonZeroExit(t *testing.T) {
	t.Parallel()
	s := NewSupervisor()
	out, err := s.Run(context.Background(), Command{
		Path:      "sh",
		Args:      []string{"-c", "echo oops 1>&2; exit 3"},
		Dir:       t.TempDir(),
		TimeLimit: 5 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, out.ExitCode)
	assert.Contains(t, out.Stderr, "oops")
	assert.False(t, out.TimedOut)
	assert.False(t, out.MemoryExceeded)
}

func TestRun_DeadlineKillsProcessTree(t *testing.T) {
	t.Parallel()
	s := NewSupervisor()
	start := time.Now()
	out, err := s.Run(context.Background(), Command{
		Path:      "sh",
		Args:      []string{"-c", "sleep 30"},
		Dir:       t.TempDir(),
		TimeLimit: 300 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.True(t, out.TimedOut)
	assert.False(t, out.MemoryExceeded)
	assert.Equal(t, domain.ExitKilledByDeadline, out.ExitCode)
	assert.Less(t, time.Since(start), 5*time.Second, "kill must not wait for the child's natural exit")
	assert.GreaterOrEqual(t, out.DurationMs, int64(300))
}

func TestRun_MemoryWatchdogKills(t *testing.T) {
	t.Parallel()
	s := fastSupervisor()
	// Doubling a shell variable exceeds 32 MB RSS within a few dozen
	// iterations.
	out, err := s.Run(context.Background(), Command{
		Path:        "sh",
		Args:        []string{"-c", `x=a; while true; do x="$x$x"; done`},
		Dir:         t.TempDir(),
		TimeLimit:   20 * time.Second,
		MaxMemoryMB: 32,
	})
	require.NoError(t, err)
	assert.True(t, out.MemoryExceeded)
	assert.False(t, out.TimedOut, "memory wins the race, never both flags")
	assert.Equal(t, domain.ExitKilledByMemory, out.ExitCode)
}

func TestRun_TimeoutWrapperExitReclassified(t *testing.T) {
	t.Parallel()
	s := NewSupervisor()
	// The wrapper fires first (1s) while the supervisor deadline (10s)
	// stays quiet; its 137 exit must still classify as a timeout.
	out, err := s.Run(context.Background(), Command{
		Path:      "timeout",
		Args:      []string{"--signal=SIGKILL", "1s", "sleep", "30"},
		Dir:       t.TempDir(),
		TimeLimit: 10 * time.Second,
	})
	require.NoError(t, err)
	assert.True(t, out.TimedOut)
	assert.False(t, out.MemoryExceeded)
	assert.Equal(t, domain.ExitKilledByDeadline, out.ExitCode)
	assert.GreaterOrEqual(t, out.DurationMs, int64(1000))
}

func TestRun_SpawnFailure(t *testing.T) {
	t.Parallel()
	s := NewSupervisor()
	out, err := s.Run(context.Background(), Command{
		Path:      "/definitely/not/a/binary",
		Dir:       t.TempDir(),
		TimeLimit: time.Second,
	})
	require.NoError(t, err, "spawn failure is an outcome, not an error")
	assert.Equal(t, domain.ExitUnknown, out.ExitCode)
	assert.Empty(t, out.Stdout)
	assert.Empty(t, out.Stderr)
	assert.False(t, out.TimedOut)
	assert.False(t, out.MemoryExceeded)
	assert.Zero(t, out.DurationMs)
}

func TestRun_CallerMisuse(t *testing.T) {
	t.Parallel()
	s := NewSupervisor()
	_, err := s.Run(context.Background(), Command{Path: "", TimeLimit: time.Second})
	require.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = s.Run(context.Background(), Command{Path: "sh"})
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestRun_ContextCancel(t *testing.T) {
	t.Parallel()
	s := NewSupervisor()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()
	start := time.Now()
	_, err := s.Run(ctx, Command{
		Path:      "sh",
		Args:      []string{"-c", "sleep 30"},
		Dir:       t.TempDir(),
		TimeLimit: 20 * time.Second,
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestCapture_TruncationMarker(t *testing.T) {
	t.Parallel()
	b, err := circbuf.NewBuffer(8)
	require.NoError(t, err)
	_, err = b.Write([]byte("0123456789ab"))
	require.NoError(t, err)

	got := capture(b)
	assert.True(t, strings.HasPrefix(got, TruncationMarker))
	assert.True(t, strings.HasSuffix(got, "456789ab"), "ring keeps the tail")
}

func TestCapture_NoMarkerWhenWithinCap(t *testing.T) {
	t.Parallel()
	b, err := circbuf.NewBuffer(64)
	require.NoError(t, err)
	_, err = b.Write([]byte("fits\n"))
	require.NoError(t, err)
	assert.Equal(t, "fits", capture(b))
}

func TestIsTimeoutWrapper(t *testing.T) {
	t.Parallel()
	assert.True(t, isTimeoutWrapper("timeout"))
	assert.True(t, isTimeoutWrapper("/usr/bin/timeout"))
	assert.False(t, isTimeoutWrapper("python3"))
	assert.False(t, isTimeoutWrapper("./solution"))
}
