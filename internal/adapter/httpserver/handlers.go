// Package httpserver contains HTTP handlers and middleware.
//
// It provides the inbound REST surface of the evaluation worker: the
// /execute endpoint the orchestrator submits batches to, plus health,
// readiness and metrics endpoints. HTTP concerns stay here; evaluation
// logic lives behind domain.EvalService.
package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/code-eval-worker/internal/config"
	"github.com/fairyhunter13/code-eval-worker/internal/domain"
)

// Server aggregates handler dependencies.
type Server struct {
	Cfg            config.Config
	Eval           domain.EvalService
	SandboxCheck   func(ctx context.Context) error
	ToolchainCheck func(ctx context.Context) error
	BlobCheck      func(ctx context.Context) error
}

// NewServer constructs an HTTP server with all handlers and checks wired.
func NewServer(cfg config.Config, eval domain.EvalService, sandboxCheck, toolchainCheck, blobCheck func(context.Context) error) *Server {
	return &Server{Cfg: cfg, Eval: eval, SandboxCheck: sandboxCheck, ToolchainCheck: toolchainCheck, BlobCheck: blobCheck}
}

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

// executeTestCase is the wire shape of one test case in POST /execute.
type executeTestCase struct {
	TestCaseID             string `json:"testCaseId"`
	InputFilePath          string `json:"inputFilePath" validate:"required,max=1024"`
	ExpectedOutputFilePath string `json:"expectedOutputFilePath" validate:"required,max=1024"`
	TimeLimitMs            int    `json:"timeLimitMs" validate:"required,min=100,max=10000"`
	MaxRAMMB               int    `json:"maxRamMB" validate:"required,min=32,max=512"`
}

type executeRequest struct {
	Language     string            `json:"language" validate:"required"`
	SubmissionID json.Number       `json:"submissionId" validate:"required"`
	CodeFilePath string            `json:"codeFilePath" validate:"required,max=1024"`
	TestCases    []executeTestCase `json:"testCases" validate:"required,min=1,max=100,dive"`
}

// ExecuteHandler accepts a batch, acknowledges it, and hands it to the
// evaluation service. The orchestrator gets its result later via the
// callback, never in this response.
func (s *Server) ExecuteHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Accept negotiation: only JSON responses supported
		if a := r.Header.Get("Accept"); a != "" && a != "*/*" && !strings.Contains(a, "application/json") {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusNotAcceptable)
			_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": "INVALID_ARGUMENT", "message": "not acceptable", "details": map[string]any{"accept": a}}})
			return
		}
		// Cap body size to prevent abuse
		r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB

		var req executeRequest
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		if err := dec.Decode(&req); err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid json", domain.ErrInvalidArgument), nil)
			return
		}
		if err := getValidator().Struct(req); err != nil {
			verrs := map[string]string{}
			if ve, ok := err.(validator.ValidationErrors); ok {
				for _, fe := range ve {
					verrs[strings.ToLower(fe.Field())] = fe.Tag()
				}
			}
			writeError(w, r, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument), verrs)
			return
		}

		sub, err := toSubmission(req)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		if err := s.Eval.Submit(r.Context(), sub); err != nil {
			writeError(w, r, fmt.Errorf("submit: %w", err), nil)
			return
		}
		// Acknowledgement only; the result arrives via the callback.
		w.WriteHeader(http.StatusOK)
	}
}

// toSubmission converts the wire request into the domain submission,
// rejecting anything the struct tags cannot express.
func toSubmission(req executeRequest) (domain.Submission, error) {
	lang, err := domain.ParseLanguage(req.Language)
	if err != nil {
		return domain.Submission{}, err
	}
	// Orchestrators disagree on whether the id is a JSON number or a
	// numeric string; accept both.
	id, err := req.SubmissionID.Int64()
	if err != nil {
		return domain.Submission{}, fmt.Errorf("%w: submissionId must be an integer", domain.ErrInvalidArgument)
	}
	if err := ValidateBlobKey("codeFilePath", req.CodeFilePath); err != nil {
		return domain.Submission{}, err
	}

	cases := make([]domain.SubmissionCase, 0, len(req.TestCases))
	for i, tc := range req.TestCases {
		if err := ValidateBlobKey("inputFilePath", tc.InputFilePath); err != nil {
			return domain.Submission{}, err
		}
		if err := ValidateBlobKey("expectedOutputFilePath", tc.ExpectedOutputFilePath); err != nil {
			return domain.Submission{}, err
		}
		caseID := SanitizeTestCaseID(tc.TestCaseID)
		if caseID == "" {
			caseID = fmt.Sprintf("case-%d", i+1)
		}
		cases = append(cases, domain.SubmissionCase{
			TestCaseID:             caseID,
			InputFilePath:          tc.InputFilePath,
			ExpectedOutputFilePath: tc.ExpectedOutputFilePath,
			TimeLimitMs:            tc.TimeLimitMs,
			MaxRAMMB:               tc.MaxRAMMB,
		})
	}
	return domain.Submission{
		SubmissionID: id,
		Language:     lang,
		CodeFilePath: req.CodeFilePath,
		TestCases:    cases,
	}, nil
}

// HealthzHandler reports process liveness.
func HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}
}

// ReadyzHandler probes the sandbox directory, the language toolchain
// and the blob store.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type check struct {
		Name    string `json:"name"`
		OK      bool   `json:"ok"`
		Details string `json:"details"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		checks := make([]check, 0, 3)
		if s.SandboxCheck != nil {
			if err := s.SandboxCheck(ctx); err != nil {
				checks = append(checks, check{Name: "sandbox", OK: false, Details: err.Error()})
			} else {
				checks = append(checks, check{Name: "sandbox", OK: true})
			}
		}
		if s.ToolchainCheck != nil {
			if err := s.ToolchainCheck(ctx); err != nil {
				checks = append(checks, check{Name: "toolchain", OK: false, Details: err.Error()})
			} else {
				checks = append(checks, check{Name: "toolchain", OK: true})
			}
		}
		if s.BlobCheck != nil {
			if err := s.BlobCheck(ctx); err != nil {
				checks = append(checks, check{Name: "blob", OK: false, Details: err.Error()})
			} else {
				checks = append(checks, check{Name: "blob", OK: true})
			}
		}
		ok := true
		for _, c := range checks {
			if !c.OK {
				ok = false
				break
			}
		}
		st := http.StatusOK
		if !ok {
			st = http.StatusServiceUnavailable
		}
		writeJSON(w, st, map[string]any{"checks": checks})
	}
}
