package evaluator

import (
	"context"
	"log/slog"
	"time"

	metrics "github.com/fairyhunter13/code-eval-worker/internal/adapter/observability"
	"github.com/fairyhunter13/code-eval-worker/internal/domain"
	"github.com/fairyhunter13/code-eval-worker/internal/sandbox"
	obs "github.com/fairyhunter13/code-eval-worker/internal/observability"
)

// BatchEvaluator owns one submission end to end: create a private
// working directory, write the source, compile once, run every test
// case in order, aggregate, clean up. Cleanup runs on every exit path.
type BatchEvaluator struct {
	adapter *Adapter
	workdir *sandbox.Workdir
}

// NewBatchEvaluator wires the engine for one language.
func NewBatchEvaluator(adapter *Adapter, workdir *sandbox.Workdir) *BatchEvaluator {
	return &BatchEvaluator{adapter: adapter, workdir: workdir}
}

// Evaluate implements domain.Evaluator. Expected failures are encoded
// in the result; the error is reserved for a context already gone.
func (b *BatchEvaluator) Evaluate(ctx context.Context, job domain.BatchJob) (domain.BatchResult, error) {
	lg := obs.LoggerFromContext(ctx)

	dir, err := b.workdir.CreateBatchDir()
	if err != nil {
		lg.Error("batch dir creation failed", slog.Any("error", err))
		return fabricateFailure(job, domain.VerdictInternalError, "setup failed: could not create working directory"), nil
	}
	defer b.workdir.RemoveBatchDir(ctx, dir)

	if _, err := b.adapter.WriteSource(dir, job.SourceCode); err != nil {
		lg.Error("source write failed", slog.Any("error", err))
		return fabricateFailure(job, domain.VerdictInternalError, "setup failed: could not write source"), nil
	}

	co := b.adapter.Compile(ctx, dir)
	metrics.ObserveCompile(string(job.Language), time.Duration(co.DurationMs)*time.Millisecond)
	if !co.OK {
		lg.Info("compilation failed",
			slog.Int64("submission_id", job.SubmissionID),
			slog.Int("test_cases", len(job.TestCases)))
		res := fabricateFailure(job, domain.VerdictCompileError, "compilation failed")
		res.CompilerOutput = co.CompilerOutput
		return res, nil
	}

	results := make([]domain.TestCaseResult, 0, len(job.TestCases))
	for _, tc := range job.TestCases {
		r := b.adapter.RunOne(ctx, dir, tc)
		metrics.ObserveRun(string(job.Language), time.Duration(r.DurationMs)*time.Millisecond)
		results = append(results, r)
	}

	return domain.BatchResult{
		SubmissionID:       job.SubmissionID,
		CompilationSuccess: true,
		CompilerOutput:     co.CompilerOutput,
		TestCaseResults:    results,
	}, nil
}

// fabricateFailure builds a whole-batch failure result carrying one
// uniform verdict and message per submitted test case, order preserved.
func fabricateFailure(job domain.BatchJob, v domain.Verdict, msg string) domain.BatchResult {
	results := make([]domain.TestCaseResult, 0, len(job.TestCases))
	for _, tc := range job.TestCases {
		results = append(results, domain.TestCaseResult{
			TestCaseID: tc.TestCaseID,
			Status:     v,
			Message:    msg,
		})
	}
	return domain.BatchResult{
		SubmissionID:    job.SubmissionID,
		TestCaseResults: results,
	}
}
