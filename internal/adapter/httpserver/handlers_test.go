package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/code-eval-worker/internal/config"
	"github.com/fairyhunter13/code-eval-worker/internal/domain"
)

type fakeEvalService struct {
	mu   sync.Mutex
	subs []domain.Submission
	err  error
}

func (f *fakeEvalService) Submit(_ context.Context, sub domain.Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.subs = append(f.subs, sub)
	return nil
}

func validExecuteBody() string {
	return `{
		"language": "python",
		"submissionId": 42,
		"codeFilePath": "sub/42/code",
		"testCases": [
			{"testCaseId": "a", "inputFilePath": "sub/42/in-a", "expectedOutputFilePath": "sub/42/out-a", "timeLimitMs": 2000, "maxRamMB": 128}
		]
	}`
}

func doExecute(t *testing.T, svc domain.EvalService, body string) *httptest.ResponseRecorder {
	t.Helper()
	s := NewServer(config.Config{}, svc, nil, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/execute", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.ExecuteHandler()(rec, req)
	return rec
}

func TestExecuteHandler_AcceptsAndAcks(t *testing.T) {
	t.Parallel()

	svc := &fakeEvalService{}
	rec := doExecute(t, svc, validExecuteBody())

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())

	require.Len(t, svc.subs, 1)
	sub := svc.subs[0]
	assert.Equal(t, int64(42), sub.SubmissionID)
	assert.Equal(t, domain.LangPython, sub.Language)
	assert.Equal(t, "sub/42/code", sub.CodeFilePath)
	require.Len(t, sub.TestCases, 1)
	assert.Equal(t, "a", sub.TestCases[0].TestCaseID)
	assert.Equal(t, 2000, sub.TestCases[0].TimeLimitMs)
	assert.Equal(t, 128, sub.TestCases[0].MaxRAMMB)
}

func TestExecuteHandler_SubmissionIDAsString(t *testing.T) {
	t.Parallel()

	svc := &fakeEvalService{}
	body := strings.Replace(validExecuteBody(), `"submissionId": 42`, `"submissionId": "42"`, 1)
	rec := doExecute(t, svc, body)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, svc.subs, 1)
	assert.Equal(t, int64(42), svc.subs[0].SubmissionID)
}

func TestExecuteHandler_AssignsPositionalCaseIDs(t *testing.T) {
	t.Parallel()

	svc := &fakeEvalService{}
	body := `{
		"language": "python",
		"submissionId": 7,
		"codeFilePath": "sub/7/code",
		"testCases": [
			{"inputFilePath": "sub/7/in-1", "expectedOutputFilePath": "sub/7/out-1", "timeLimitMs": 1000, "maxRamMB": 64},
			{"inputFilePath": "sub/7/in-2", "expectedOutputFilePath": "sub/7/out-2", "timeLimitMs": 1000, "maxRamMB": 64}
		]
	}`
	rec := doExecute(t, svc, body)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, svc.subs, 1)
	assert.Equal(t, "case-1", svc.subs[0].TestCases[0].TestCaseID)
	assert.Equal(t, "case-2", svc.subs[0].TestCases[1].TestCaseID)
}

func TestExecuteHandler_InvalidJSON(t *testing.T) {
	t.Parallel()

	rec := doExecute(t, &fakeEvalService{}, "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var env map[string]map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "INVALID_ARGUMENT", env["error"]["code"])
}

func TestExecuteHandler_ValidationFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{"missing language", `{"submissionId": 1, "codeFilePath": "k", "testCases": [{"inputFilePath": "i", "expectedOutputFilePath": "o", "timeLimitMs": 1000, "maxRamMB": 64}]}`},
		{"unknown language", `{"language": "perl", "submissionId": 1, "codeFilePath": "k", "testCases": [{"inputFilePath": "i", "expectedOutputFilePath": "o", "timeLimitMs": 1000, "maxRamMB": 64}]}`},
		{"no test cases", `{"language": "python", "submissionId": 1, "codeFilePath": "k", "testCases": []}`},
		{"time limit below floor", `{"language": "python", "submissionId": 1, "codeFilePath": "k", "testCases": [{"inputFilePath": "i", "expectedOutputFilePath": "o", "timeLimitMs": 50, "maxRamMB": 64}]}`},
		{"time limit above ceiling", `{"language": "python", "submissionId": 1, "codeFilePath": "k", "testCases": [{"inputFilePath": "i", "expectedOutputFilePath": "o", "timeLimitMs": 20000, "maxRamMB": 64}]}`},
		{"memory below floor", `{"language": "python", "submissionId": 1, "codeFilePath": "k", "testCases": [{"inputFilePath": "i", "expectedOutputFilePath": "o", "timeLimitMs": 1000, "maxRamMB": 16}]}`},
		{"memory above ceiling", `{"language": "python", "submissionId": 1, "codeFilePath": "k", "testCases": [{"inputFilePath": "i", "expectedOutputFilePath": "o", "timeLimitMs": 1000, "maxRamMB": 1024}]}`},
		{"fractional submission id", `{"language": "python", "submissionId": 1.5, "codeFilePath": "k", "testCases": [{"inputFilePath": "i", "expectedOutputFilePath": "o", "timeLimitMs": 1000, "maxRamMB": 64}]}`},
		{"traversal in blob key", `{"language": "python", "submissionId": 1, "codeFilePath": "../etc/passwd", "testCases": [{"inputFilePath": "i", "expectedOutputFilePath": "o", "timeLimitMs": 1000, "maxRamMB": 64}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			svc := &fakeEvalService{}
			rec := doExecute(t, svc, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, svc.subs, "nothing must reach the service")
		})
	}
}

func TestExecuteHandler_NotAcceptable(t *testing.T) {
	t.Parallel()

	s := NewServer(config.Config{}, &fakeEvalService{}, nil, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/execute", strings.NewReader(validExecuteBody()))
	req.Header.Set("Accept", "text/html")
	rec := httptest.NewRecorder()
	s.ExecuteHandler()(rec, req)
	assert.Equal(t, http.StatusNotAcceptable, rec.Code)
}

func TestExecuteHandler_ServiceErrors(t *testing.T) {
	t.Parallel()

	rec := doExecute(t, &fakeEvalService{err: fmt.Errorf("wrong worker: %w", domain.ErrInvalidArgument)}, validExecuteBody())
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doExecute(t, &fakeEvalService{err: errors.New("boom")}, validExecuteBody())
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHealthzHandler(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	HealthzHandler()(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzHandler(t *testing.T) {
	t.Parallel()

	ok := func(context.Context) error { return nil }
	bad := func(context.Context) error { return errors.New("unreachable") }

	s := NewServer(config.Config{}, &fakeEvalService{}, ok, ok, ok)
	rec := httptest.NewRecorder()
	s.ReadyzHandler()(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	s = NewServer(config.Config{}, &fakeEvalService{}, ok, ok, bad)
	rec = httptest.NewRecorder()
	s.ReadyzHandler()(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "unreachable")
}
