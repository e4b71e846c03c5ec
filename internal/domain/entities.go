package domain

import (
	"context"
	"errors"
	"fmt"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrRateLimited     = errors.New("rate limited")
	ErrInternal        = errors.New("internal error")
)

// Language enumerates the supported toolchains. A worker instance is
// built for exactly one of them; jobs for any other language are
// rejected at the door.
type Language string

const (
	LangC      Language = "c"
	LangPython Language = "python"
	LangJava   Language = "java"
	LangRust   Language = "rust"
	LangGo     Language = "go"
)

// ParseLanguage maps a wire value onto a Language.
func ParseLanguage(s string) (Language, error) {
	switch Language(s) {
	case LangC, LangPython, LangJava, LangRust, LangGo:
		return Language(s), nil
	}
	return "", fmt.Errorf("parse language %q: %w", s, ErrInvalidArgument)
}

// Valid reports whether l is one of the supported languages.
func (l Language) Valid() bool {
	_, err := ParseLanguage(string(l))
	return err == nil
}

// Verdict is the terminal classification of one test-case run.
type Verdict string

const (
	VerdictAccepted            Verdict = "ACCEPTED"
	VerdictWrongAnswer         Verdict = "WRONG_ANSWER"
	VerdictCompileError        Verdict = "COMPILE_ERROR"
	VerdictRuntimeError        Verdict = "RUNTIME_ERROR"
	VerdictTimeLimitExceeded   Verdict = "TIME_LIMIT_EXCEEDED"
	VerdictMemoryLimitExceeded Verdict = "MEMORY_LIMIT_EXCEEDED"
	VerdictFileError           Verdict = "FILE_ERROR"
	VerdictInternalError       Verdict = "INTERNAL_ERROR"
)

// Sentinel exit codes used in ProcessOutcome when the child never
// produced a real status of its own.
const (
	ExitKilledByDeadline = -1   // deadline watchdog killed the process tree
	ExitKilledByMemory   = -2   // memory watchdog killed the process tree
	ExitUnknown          = -999 // supervisor could not obtain an exit code
)

// Submission is an accepted /execute payload before blob resolution:
// the source and per-case texts are still storage references.
type Submission struct {
	SubmissionID int64
	Language     Language
	CodeFilePath string
	TestCases    []SubmissionCase
}

// SubmissionCase references the input and expected-output blobs of one
// test case together with its limits.
type SubmissionCase struct {
	TestCaseID             string
	InputFilePath          string
	ExpectedOutputFilePath string
	TimeLimitMs            int
	MaxRAMMB               int
}

// BatchJob is the fully resolved input to the evaluation engine: one
// source program plus the ordered test cases it must pass.
type BatchJob struct {
	SubmissionID int64
	Language     Language
	SourceCode   string
	TestCases    []TestCaseSpec
}

// TestCaseSpec carries the resolved stdin/expected text and the
// per-case limits. Limits are validated at the boundary
// (100..10000 ms, 32..512 MB) and clamped against GlobalLimits before
// a child is launched.
type TestCaseSpec struct {
	TestCaseID     string
	Stdin          string
	ExpectedStdout string
	TimeLimitMs    int
	MaxRAMMB       int
}

// GlobalLimits are process-wide ceilings applied on top of every
// per-case limit. Read-only after startup.
type GlobalLimits struct {
	MaxTimeSec  int
	MaxMemoryMB int
}

// ClampTimeMs returns min(ms, MaxTimeSec in ms). A zero ceiling means
// no ceiling.
func (g GlobalLimits) ClampTimeMs(ms int) int {
	if ceil := g.MaxTimeSec * 1000; ceil > 0 && ms > ceil {
		return ceil
	}
	return ms
}

// ClampMemoryMB returns min(mb, MaxMemoryMB). A zero ceiling means no
// ceiling.
func (g GlobalLimits) ClampMemoryMB(mb int) int {
	if g.MaxMemoryMB > 0 && mb > g.MaxMemoryMB {
		return g.MaxMemoryMB
	}
	return mb
}

// ProcessOutcome is what the process supervisor observed for one child.
// Invariant: TimedOut and MemoryExceeded are never both true; the
// memory flag wins any race.
type ProcessOutcome struct {
	ExitCode       int
	Stdout         string
	Stderr         string
	DurationMs     int64
	TimedOut       bool
	MemoryExceeded bool
}

// TestCaseResult is the terminal outcome of one test case.
type TestCaseResult struct {
	TestCaseID     string
	Status         Verdict
	Stdout         string
	Stderr         string
	ExitCode       int
	DurationMs     int64
	MemoryExceeded bool
	Message        string
}

// BatchResult aggregates one batch. TestCaseResults is ordered 1:1
// with the submitted test cases. CompilationSuccess=false implies every
// result carries a non-ACCEPTED verdict.
type BatchResult struct {
	SubmissionID       int64
	CompilationSuccess bool
	CompilerOutput     string
	TestCaseResults    []TestCaseResult
}

// Ports

// SourceStore fetches UTF-8 text blobs (source code, test inputs,
// expected outputs) by storage key. A missing blob wraps ErrNotFound.
type SourceStore interface {
	FetchText(ctx Context, key string) (string, error)
}

// ResultSink delivers a finished BatchResult to the orchestrator.
// Fire-and-forget: a failed delivery is logged by the caller, never
// retried.
type ResultSink interface {
	Deliver(ctx Context, res BatchResult) error
}

// Evaluator runs one resolved batch to completion.
type Evaluator interface {
	Evaluate(ctx Context, job BatchJob) (BatchResult, error)
}

// EvalService is the inbound port behind POST /execute: validate and
// acknowledge a submission, then evaluate it in the background and
// deliver the result exactly once.
type EvalService interface {
	Submit(ctx Context, sub Submission) error
}

// Context is an alias to allow decoupling from std context in domain
// Adapters and the evaluator should pass context.Context through
// Avoid importing std context here to keep domain pure if desired
// But simplest: use type alias to context.Context; adapters convert where needed.

type Context = context.Context
