package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPMetricsMiddleware_Basic(t *testing.T) {
	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/x", nil)
	mw := HTTPMetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(204) }))
	mw.ServeHTTP(rec, r)
	if rec.Result().StatusCode != 204 {
		t.Fatalf("want 204")
	}
}

func TestBatchMetricsHelpers(t *testing.T) {
	InitMetrics()
	StartBatch("python")
	ObserveCompile("python", 120*time.Millisecond)
	ObserveRun("python", 40*time.Millisecond)
	ObserveVerdict("python", "ACCEPTED")
	ObserveVerdict("python", "WRONG_ANSWER")
	FinishBatch("python", true)
	FinishBatch("python", false)
	RecordCallback(true)
	RecordCallback(false)
	RecordBlobFetch("ok")
	RecordBlobFetch("not_found")
}
