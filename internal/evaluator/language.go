// Package evaluator implements the per-language compile/run pipeline:
// language adapters, verdict classification, the batch evaluator, and
// the evaluation service facade.
package evaluator

import (
	"fmt"
	"time"

	"github.com/fairyhunter13/code-eval-worker/internal/domain"
)

// languageSpec is one row of the toolchain dispatch table. The zero
// artifact means compile success is decided by exit code alone.
type languageSpec struct {
	sourceFile      string
	compileArgs     []string
	compileTimeout  time.Duration
	compileMemoryMB int
	artifact        string
	stripBOM        bool
	stripNUL        bool
	memHeadroomMB   int
	runArgs         func(workDir string, maxRAMMB int) []string
}

// Override adjusts a built-in toolchain invocation. Overridden argv
// slices are used verbatim; zero-valued fields keep the default.
type Override struct {
	CompileArgs       []string
	RunArgs           []string
	CompileTimeoutSec int
	CompileMemoryMB   int
}

func builtinToolchains() map[domain.Language]languageSpec {
	return map[domain.Language]languageSpec{
		domain.LangC: {
			sourceFile:      "solution.c",
			compileArgs:     []string{"gcc", "solution.c", "-o", "solution", "-O2", "-Wall", "-lm"},
			compileTimeout:  30 * time.Second,
			compileMemoryMB: 4096,
			artifact:        "solution",
			runArgs: func(string, int) []string {
				return []string{"./solution"}
			},
		},
		domain.LangPython: {
			sourceFile: "solution.py",
			// Syntax check only; the script itself is the artifact.
			compileArgs:     []string{"python3", "-m", "py_compile", "solution.py"},
			compileTimeout:  10 * time.Second,
			compileMemoryMB: 128,
			runArgs: func(string, int) []string {
				return []string{"python3", "solution.py"}
			},
		},
		domain.LangJava: {
			sourceFile:      "Solution.java",
			compileArgs:     []string{"javac", "-encoding", "UTF-8", "-d", ".", "Solution.java"},
			compileTimeout:  30 * time.Second,
			compileMemoryMB: 2048,
			stripBOM:        true,
			stripNUL:        true,
			memHeadroomMB:   64,
			runArgs: func(workDir string, maxRAMMB int) []string {
				return []string{"java", fmt.Sprintf("-Xmx%dm", maxRAMMB), "-cp", workDir, "Solution"}
			},
		},
		domain.LangRust: {
			sourceFile:      "main.rs",
			compileArgs:     []string{"rustc", "main.rs", "-o", "solution_exec"},
			compileTimeout:  30 * time.Second,
			compileMemoryMB: 256,
			artifact:        "solution_exec",
			stripBOM:        true,
			runArgs: func(string, int) []string {
				return []string{"./solution_exec"}
			},
		},
		domain.LangGo: {
			sourceFile:      "main.go",
			compileArgs:     []string{"go", "build", "-o", "solution_exec", "main.go"},
			compileTimeout:  30 * time.Second,
			compileMemoryMB: 256,
			artifact:        "solution_exec",
			stripBOM:        true,
			runArgs: func(string, int) []string {
				return []string{"./solution_exec"}
			},
		},
	}
}

// resolveSpec returns the dispatch-table row for lang with any
// operator override folded in.
func resolveSpec(lang domain.Language, overrides map[domain.Language]Override) (languageSpec, error) {
	spec, ok := builtinToolchains()[lang]
	if !ok {
		return languageSpec{}, fmt.Errorf("op=evaluator.resolveSpec: language %q: %w", lang, domain.ErrInvalidArgument)
	}
	o, ok := overrides[lang]
	if !ok {
		return spec, nil
	}
	if len(o.CompileArgs) > 0 {
		spec.compileArgs = append([]string(nil), o.CompileArgs...)
	}
	if len(o.RunArgs) > 0 {
		args := append([]string(nil), o.RunArgs...)
		spec.runArgs = func(string, int) []string { return args }
	}
	if o.CompileTimeoutSec > 0 {
		spec.compileTimeout = time.Duration(o.CompileTimeoutSec) * time.Second
	}
	if o.CompileMemoryMB > 0 {
		spec.compileMemoryMB = o.CompileMemoryMB
	}
	return spec, nil
}
