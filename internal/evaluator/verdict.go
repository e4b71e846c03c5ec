package evaluator

import (
	"fmt"
	"strings"

	"github.com/fairyhunter13/code-eval-worker/internal/domain"
	"github.com/fairyhunter13/code-eval-worker/pkg/textx"
)

// javaOOMMarker in stderr means the JVM died of heap exhaustion before
// the RSS poller could see it.
const javaOOMMarker = "java.lang.OutOfMemoryError"

// classify is the single source of truth mapping a process outcome to
// a verdict. Rules apply in order: memory kill, JVM OOM escalation,
// deadline (including the raw 124/137 wrapper codes), unspawnable
// process, non-zero exit, then output comparison.
func classify(lang domain.Language, out domain.ProcessOutcome, expected string) (domain.Verdict, string) {
	if out.MemoryExceeded {
		return domain.VerdictMemoryLimitExceeded, "memory limit exceeded"
	}
	if lang == domain.LangJava && strings.Contains(out.Stderr, javaOOMMarker) {
		return domain.VerdictMemoryLimitExceeded, "memory limit exceeded (JVM OutOfMemoryError)"
	}
	if out.TimedOut || out.ExitCode == 124 || out.ExitCode == 137 {
		return domain.VerdictTimeLimitExceeded, "time limit exceeded"
	}
	if out.ExitCode == domain.ExitUnknown {
		return domain.VerdictInternalError, "process could not be started"
	}
	if out.ExitCode != 0 {
		return domain.VerdictRuntimeError, fmt.Sprintf("process exited with code %d", out.ExitCode)
	}
	if textx.OutputsEqual(out.Stdout, expected) {
		return domain.VerdictAccepted, ""
	}
	return domain.VerdictWrongAnswer, "output differs from expected"
}
