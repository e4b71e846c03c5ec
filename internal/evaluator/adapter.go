package evaluator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fairyhunter13/code-eval-worker/internal/domain"
	"github.com/fairyhunter13/code-eval-worker/internal/sandbox"
	"github.com/fairyhunter13/code-eval-worker/pkg/textx"
)

// Adapter runs the compile/run pipeline for one language.
type Adapter struct {
	lang   domain.Language
	spec   languageSpec
	sup    *sandbox.Supervisor
	limits domain.GlobalLimits
}

// NewAdapter builds the adapter for lang, applying any operator
// toolchain overrides.
func NewAdapter(lang domain.Language, sup *sandbox.Supervisor, limits domain.GlobalLimits, overrides map[domain.Language]Override) (*Adapter, error) {
	spec, err := resolveSpec(lang, overrides)
	if err != nil {
		return nil, err
	}
	return &Adapter{lang: lang, spec: spec, sup: sup, limits: limits}, nil
}

// Language returns the language this adapter serves.
func (a *Adapter) Language() domain.Language { return a.lang }

// ToolchainBinary returns the compiler/interpreter executable the
// adapter invokes first. The readiness probe resolves it on PATH.
func (a *Adapter) ToolchainBinary() string { return a.spec.compileArgs[0] }

// WriteSource materialises the submitted program inside workDir and
// returns its path. BOM and NUL stripping follow the per-language
// table; the file is always written as UTF-8.
func (a *Adapter) WriteSource(workDir, code string) (string, error) {
	if a.spec.stripBOM {
		code = textx.StripBOM(code)
	}
	if a.spec.stripNUL {
		code = strings.ReplaceAll(code, "\x00", "")
	}
	path := filepath.Join(workDir, a.spec.sourceFile)
	if err := os.WriteFile(path, []byte(code), 0o644); err != nil {
		return "", fmt.Errorf("op=evaluator.WriteSource: %w", err)
	}
	return path, nil
}

// CompileOutcome reports one compilation attempt. CompilerOutput holds
// the concatenated stdout and stderr of the compiler.
type CompileOutcome struct {
	OK             bool
	CompilerOutput string
	DurationMs     int64
}

// Compile runs the language's compile step once under the supervisor
// with the per-language compile budget.
func (a *Adapter) Compile(ctx context.Context, workDir string) CompileOutcome {
	out, err := a.sup.Run(ctx, sandbox.Command{
		Path:        a.spec.compileArgs[0],
		Args:        a.spec.compileArgs[1:],
		Dir:         workDir,
		TimeLimit:   a.spec.compileTimeout,
		MaxMemoryMB: a.spec.compileMemoryMB,
	})
	if err != nil {
		return CompileOutcome{CompilerOutput: fmt.Sprintf("compiler run aborted: %v", err)}
	}

	co := CompileOutcome{
		CompilerOutput: textx.SanitizeDiagnostic(joinStreams(out.Stdout, out.Stderr)),
		DurationMs:     out.DurationMs,
	}
	switch {
	case out.MemoryExceeded:
		co.CompilerOutput = appendLine(co.CompilerOutput, "compilation exceeded its memory budget")
	case out.TimedOut:
		co.CompilerOutput = appendLine(co.CompilerOutput, fmt.Sprintf("compilation timed out after %s", a.spec.compileTimeout))
	case out.ExitCode == domain.ExitUnknown:
		co.CompilerOutput = appendLine(co.CompilerOutput, "compiler could not be started")
	case out.ExitCode == 0:
		if a.artifactPresent(workDir) {
			co.OK = true
		} else {
			co.CompilerOutput = appendLine(co.CompilerOutput, "compiler reported success but produced no artifact")
		}
	}
	return co
}

// artifactPresent checks the compiled binary exists for languages that
// must leave one behind. Languages without an artifact entry are
// judged on exit code alone.
func (a *Adapter) artifactPresent(workDir string) bool {
	if a.spec.artifact == "" {
		return true
	}
	_, err := os.Stat(filepath.Join(workDir, a.spec.artifact))
	return err == nil
}

// RunOne executes the compiled program against one test case and
// classifies the outcome. The run command goes through the OS timeout
// helper so the kernel-side kill fires before the supervisor deadline.
func (a *Adapter) RunOne(ctx context.Context, workDir string, tc domain.TestCaseSpec) domain.TestCaseResult {
	timeMs := a.limits.ClampTimeMs(tc.TimeLimitMs)
	memMB := a.limits.ClampMemoryMB(tc.MaxRAMMB)

	seconds := timeMs / 1000
	if seconds < 1 {
		seconds = 1
	}
	argv := append(
		[]string{"timeout", "--signal=SIGKILL", fmt.Sprintf("%ds", seconds)},
		a.spec.runArgs(workDir, memMB)...,
	)

	out, err := a.sup.Run(ctx, sandbox.Command{
		Path:  argv[0],
		Args:  argv[1:],
		Dir:   workDir,
		Stdin: tc.Stdin,
		// The inner helper fires at N seconds; give the watchdog two
		// more so it only acts when the helper itself is stuck.
		TimeLimit:   time.Duration(seconds+2) * time.Second,
		MaxMemoryMB: memMB + a.spec.memHeadroomMB,
	})
	if err != nil {
		return domain.TestCaseResult{
			TestCaseID: tc.TestCaseID,
			Status:     domain.VerdictInternalError,
			ExitCode:   domain.ExitUnknown,
			Message:    fmt.Sprintf("supervisor aborted: %v", err),
		}
	}

	status, msg := classify(a.lang, out, tc.ExpectedStdout)
	return domain.TestCaseResult{
		TestCaseID: tc.TestCaseID,
		Status:     status,
		// stdout is the judged payload and stays byte-faithful; stderr
		// is diagnostic only and gets the control characters stripped.
		Stdout:         out.Stdout,
		Stderr:         textx.SanitizeDiagnostic(out.Stderr),
		ExitCode:       out.ExitCode,
		DurationMs:     out.DurationMs,
		MemoryExceeded: out.MemoryExceeded,
		Message:        msg,
	}
}

func joinStreams(stdout, stderr string) string {
	switch {
	case stdout == "":
		return stderr
	case stderr == "":
		return stdout
	default:
		return stdout + "\n" + stderr
	}
}

func appendLine(s, line string) string {
	if s == "" {
		return line
	}
	return s + "\n" + line
}
