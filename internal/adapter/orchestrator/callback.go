// Package orchestrator delivers finished batch results back to the
// orchestrator over HTTP.
package orchestrator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fairyhunter13/code-eval-worker/internal/config"
	"github.com/fairyhunter13/code-eval-worker/internal/domain"
)

const submitPath = "/api/evaluate/container-submit"

// Client implements domain.ResultSink. Delivery is a single POST with
// no retries; the caller decides what a failed delivery means.
type Client struct {
	baseURL    string
	headerName string
	apiKey     string
	hc         *http.Client
}

// New creates the callback client with OpenTelemetry tracing on the
// outbound transport.
func New(cfg config.Config) *Client {
	transport := otelhttp.NewTransport(http.DefaultTransport,
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return fmt.Sprintf("Callback %s %s", r.Method, r.URL.Host)
		}),
	)
	return &Client{
		baseURL:    strings.TrimRight(cfg.OrchestratorAddress, "/"),
		headerName: cfg.APIHeaderName,
		apiKey:     cfg.APIKey,
		hc: &http.Client{
			Timeout:   cfg.CallbackTimeout,
			Transport: transport,
		},
	}
}

// testCaseResultDTO is the orchestrator's wire shape for one case.
type testCaseResultDTO struct {
	TestCaseID     string `json:"testCaseId"`
	Status         string `json:"status"`
	Stdout         string `json:"stdout"`
	Stderr         string `json:"stderr"`
	ExitCode       int    `json:"exitCode"`
	DurationMs     int64  `json:"durationMs"`
	MemoryExceeded bool   `json:"memoryExceeded"`
	Message        string `json:"message"`
}

type batchResultDTO struct {
	SubmissionID       int64               `json:"submissionId"`
	CompilationSuccess bool                `json:"compilationSuccess"`
	CompilerOutput     string              `json:"compilerOutput"`
	TestCaseResults    []testCaseResultDTO `json:"testCaseResults"`
}

func toDTO(res domain.BatchResult) batchResultDTO {
	cases := make([]testCaseResultDTO, 0, len(res.TestCaseResults))
	for _, tc := range res.TestCaseResults {
		cases = append(cases, testCaseResultDTO{
			TestCaseID:     tc.TestCaseID,
			Status:         string(tc.Status),
			Stdout:         tc.Stdout,
			Stderr:         tc.Stderr,
			ExitCode:       tc.ExitCode,
			DurationMs:     tc.DurationMs,
			MemoryExceeded: tc.MemoryExceeded,
			Message:        tc.Message,
		})
	}
	return batchResultDTO{
		SubmissionID:       res.SubmissionID,
		CompilationSuccess: res.CompilationSuccess,
		CompilerOutput:     res.CompilerOutput,
		TestCaseResults:    cases,
	}
}

// Deliver posts the batch result to the orchestrator's submit endpoint.
func (c *Client) Deliver(ctx domain.Context, res domain.BatchResult) error {
	b, err := json.Marshal(toDTO(res))
	if err != nil {
		return fmt.Errorf("op=orchestrator.Deliver: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+submitPath, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("op=orchestrator.Deliver: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set(c.headerName, c.apiKey)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("op=orchestrator.Deliver: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodySnippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("op=orchestrator.Deliver: callback status %d: %s", resp.StatusCode, strings.TrimSpace(string(bodySnippet)))
	}
	return nil
}
