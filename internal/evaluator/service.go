package evaluator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	metrics "github.com/fairyhunter13/code-eval-worker/internal/adapter/observability"
	"github.com/fairyhunter13/code-eval-worker/internal/domain"
	obs "github.com/fairyhunter13/code-eval-worker/internal/observability"
)

// Service is the evaluation facade behind POST /execute. It validates
// and acknowledges a submission synchronously, then resolves its blobs,
// evaluates, and delivers the result in a detached goroutine. The
// orchestrator hears back exactly once per accepted submission, also
// when a collaborator fails before evaluation starts.
type Service struct {
	store domain.SourceStore
	sink  domain.ResultSink
	eval  domain.Evaluator
	lang  domain.Language
	// sem bounds concurrent batches; acquisition happens inside the
	// detached task so the acknowledgement path never blocks.
	sem chan struct{}
	wg  sync.WaitGroup
}

// NewService wires the facade for one language.
func NewService(store domain.SourceStore, sink domain.ResultSink, eval domain.Evaluator, lang domain.Language, maxConcurrent int) *Service {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Service{
		store: store,
		sink:  sink,
		eval:  eval,
		lang:  lang,
		sem:   make(chan struct{}, maxConcurrent),
	}
}

// Submit implements domain.EvalService.
func (s *Service) Submit(ctx context.Context, sub domain.Submission) error {
	if sub.Language != s.lang {
		return fmt.Errorf("op=evaluator.Submit: language %q not served by this worker (%q): %w", sub.Language, s.lang, domain.ErrInvalidArgument)
	}
	if len(sub.TestCases) == 0 {
		return fmt.Errorf("op=evaluator.Submit: no test cases: %w", domain.ErrInvalidArgument)
	}

	// Detach from the request lifetime but keep log correlation values.
	bg := obs.ContextWithSubmissionID(context.WithoutCancel(ctx), sub.SubmissionID)
	s.wg.Add(1)
	go s.process(bg, sub)
	return nil
}

func (s *Service) process(ctx context.Context, sub domain.Submission) {
	defer s.wg.Done()
	s.sem <- struct{}{}
	defer func() { <-s.sem }()

	lg := obs.LoggerFromContext(ctx).With(slog.Int64("submission_id", sub.SubmissionID))
	metrics.StartBatch(string(sub.Language))

	res := s.evaluateSubmission(ctx, lg, sub)
	metrics.FinishBatch(string(sub.Language), res.CompilationSuccess)
	for _, tc := range res.TestCaseResults {
		metrics.ObserveVerdict(string(sub.Language), string(tc.Status))
	}

	s.deliver(ctx, lg, res)
}

func (s *Service) evaluateSubmission(ctx context.Context, lg *slog.Logger, sub domain.Submission) domain.BatchResult {
	job, err := s.resolve(ctx, sub)
	if err != nil {
		lg.Error("blob resolution failed", slog.Any("error", err))
		verdict := domain.VerdictInternalError
		if errors.Is(err, domain.ErrNotFound) {
			verdict = domain.VerdictFileError
		}
		return fabricateSubmissionFailure(sub, verdict, "file fetch failed", err.Error())
	}

	res, err := s.eval.Evaluate(ctx, job)
	if err != nil {
		lg.Error("evaluation aborted", slog.Any("error", err))
		return fabricateSubmissionFailure(sub, domain.VerdictInternalError, "evaluation aborted", err.Error())
	}
	return res
}

// resolve fetches the source and every per-case input/expected text.
func (s *Service) resolve(ctx context.Context, sub domain.Submission) (domain.BatchJob, error) {
	code, err := s.store.FetchText(ctx, sub.CodeFilePath)
	if err != nil {
		return domain.BatchJob{}, fmt.Errorf("op=evaluator.resolve: code %s: %w", sub.CodeFilePath, err)
	}
	cases := make([]domain.TestCaseSpec, 0, len(sub.TestCases))
	for _, c := range sub.TestCases {
		in, err := s.store.FetchText(ctx, c.InputFilePath)
		if err != nil {
			return domain.BatchJob{}, fmt.Errorf("op=evaluator.resolve: input %s: %w", c.InputFilePath, err)
		}
		want, err := s.store.FetchText(ctx, c.ExpectedOutputFilePath)
		if err != nil {
			return domain.BatchJob{}, fmt.Errorf("op=evaluator.resolve: expected %s: %w", c.ExpectedOutputFilePath, err)
		}
		cases = append(cases, domain.TestCaseSpec{
			TestCaseID:     c.TestCaseID,
			Stdin:          in,
			ExpectedStdout: want,
			TimeLimitMs:    c.TimeLimitMs,
			MaxRAMMB:       c.MaxRAMMB,
		})
	}
	return domain.BatchJob{
		SubmissionID: sub.SubmissionID,
		Language:     sub.Language,
		SourceCode:   code,
		TestCases:    cases,
	}, nil
}

func (s *Service) deliver(ctx context.Context, lg *slog.Logger, res domain.BatchResult) {
	err := s.sink.Deliver(ctx, res)
	metrics.RecordCallback(err == nil)
	if err != nil {
		// Fire-and-forget: log, never retry.
		lg.Error("result delivery failed", slog.Any("error", err))
		return
	}
	lg.Info("result delivered",
		slog.Bool("compilation_success", res.CompilationSuccess),
		slog.Int("test_cases", len(res.TestCaseResults)))
}

// Drain blocks until all in-flight batches have delivered, or ctx
// expires. Used on graceful shutdown.
func (s *Service) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// fabricateSubmissionFailure mirrors fabricateFailure for submissions
// whose blobs never resolved: same uniform verdict per case, with the
// collaborator diagnostic standing in for compiler output.
func fabricateSubmissionFailure(sub domain.Submission, v domain.Verdict, msg, diagnostic string) domain.BatchResult {
	results := make([]domain.TestCaseResult, 0, len(sub.TestCases))
	for _, tc := range sub.TestCases {
		results = append(results, domain.TestCaseResult{
			TestCaseID: tc.TestCaseID,
			Status:     v,
			Message:    msg,
		})
	}
	return domain.BatchResult{
		SubmissionID:    sub.SubmissionID,
		CompilerOutput:  diagnostic,
		TestCaseResults: results,
	}
}
