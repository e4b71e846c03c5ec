// Command evalcli runs a local source file against local test cases
// through the same engine the worker uses. It is a diagnostics tool:
// no blob store, no callback, results on stdout.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fairyhunter13/code-eval-worker/internal/config"
	"github.com/fairyhunter13/code-eval-worker/internal/domain"
	"github.com/fairyhunter13/code-eval-worker/internal/evaluator"
	"github.com/fairyhunter13/code-eval-worker/internal/sandbox"
)

var errNotAccepted = errors.New("one or more test cases did not pass")

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		language    string
		sourcePath  string
		casePairs   []string
		timeLimitMs int
		maxRAMMB    int
		sandboxDir  string
		toolchains  string
	)

	cmd := &cobra.Command{
		Use:   "evalcli --language LANG --source FILE --case IN:EXPECTED [--case ...]",
		Short: "Evaluate a local source file against local test cases",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true

			lang, err := domain.ParseLanguage(language)
			if err != nil {
				return err
			}
			job, err := buildJob(lang, sourcePath, casePairs, timeLimitMs, maxRAMMB)
			if err != nil {
				return err
			}

			overrides, err := loadOverrides(lang, toolchains)
			if err != nil {
				return err
			}

			if sandboxDir == "" {
				sandboxDir, err = os.MkdirTemp("", "evalcli-*")
				if err != nil {
					return fmt.Errorf("create sandbox: %w", err)
				}
				defer func() { _ = os.RemoveAll(sandboxDir) }()
			}
			workdir, err := sandbox.NewWorkdir(sandboxDir)
			if err != nil {
				return err
			}

			adapter, err := evaluator.NewAdapter(lang, sandbox.NewSupervisor(), domain.GlobalLimits{}, overrides)
			if err != nil {
				return err
			}
			engine := evaluator.NewBatchEvaluator(adapter, workdir)

			res, err := engine.Evaluate(cmd.Context(), job)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(res); err != nil {
				return err
			}
			if !allAccepted(res) {
				return errNotAccepted
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&language, "language", "l", "", "language to evaluate (c|python|java|rust|go)")
	cmd.Flags().StringVarP(&sourcePath, "source", "s", "", "path to the source file")
	cmd.Flags().StringArrayVarP(&casePairs, "case", "c", nil, "test case as INPUT:EXPECTED file pair (repeatable)")
	cmd.Flags().IntVar(&timeLimitMs, "time-limit-ms", 2000, "per-case wall clock limit")
	cmd.Flags().IntVar(&maxRAMMB, "max-ram-mb", 256, "per-case memory limit")
	cmd.Flags().StringVar(&sandboxDir, "sandbox", "", "sandbox directory (default: a temp dir)")
	cmd.Flags().StringVar(&toolchains, "toolchains", "", "optional toolchain override YAML")
	_ = cmd.MarkFlagRequired("language")
	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("case")
	return cmd
}

func buildJob(lang domain.Language, sourcePath string, casePairs []string, timeLimitMs, maxRAMMB int) (domain.BatchJob, error) {
	source, err := os.ReadFile(sourcePath)
	if err != nil {
		return domain.BatchJob{}, fmt.Errorf("read source: %w", err)
	}

	cases := make([]domain.TestCaseSpec, 0, len(casePairs))
	for i, pair := range casePairs {
		inPath, outPath, ok := strings.Cut(pair, ":")
		if !ok {
			return domain.BatchJob{}, fmt.Errorf("case %q: want INPUT:EXPECTED", pair)
		}
		in, err := os.ReadFile(inPath)
		if err != nil {
			return domain.BatchJob{}, fmt.Errorf("read input: %w", err)
		}
		want, err := os.ReadFile(outPath)
		if err != nil {
			return domain.BatchJob{}, fmt.Errorf("read expected: %w", err)
		}
		cases = append(cases, domain.TestCaseSpec{
			TestCaseID:     fmt.Sprintf("case-%d", i+1),
			Stdin:          string(in),
			ExpectedStdout: string(want),
			TimeLimitMs:    timeLimitMs,
			MaxRAMMB:       maxRAMMB,
		})
	}
	return domain.BatchJob{Language: lang, SourceCode: string(source), TestCases: cases}, nil
}

func loadOverrides(lang domain.Language, path string) (map[domain.Language]evaluator.Override, error) {
	specs, err := config.LoadToolchains(path)
	if err != nil {
		return nil, err
	}
	out := make(map[domain.Language]evaluator.Override, 1)
	if spec, ok := specs[lang]; ok {
		out[lang] = evaluator.Override{
			CompileArgs:       spec.CompileArgs,
			RunArgs:           spec.RunArgs,
			CompileTimeoutSec: spec.CompileTimeoutSec,
			CompileMemoryMB:   spec.CompileMemoryMB,
		}
	}
	return out, nil
}

func allAccepted(res domain.BatchResult) bool {
	if !res.CompilationSuccess {
		return false
	}
	for _, tc := range res.TestCaseResults {
		if tc.Status != domain.VerdictAccepted {
			return false
		}
	}
	return true
}
