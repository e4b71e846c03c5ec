package observability

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	BatchesReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eval_batches_received_total",
			Help: "Total number of accepted evaluation batches",
		},
		[]string{"language"},
	)
	BatchesActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "eval_batches_active",
			Help: "Number of batches currently being evaluated",
		},
	)
	BatchesCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eval_batches_completed_total",
			Help: "Total number of finished batches by compilation outcome",
		},
		[]string{"language", "compiled"},
	)

	TestCaseVerdictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eval_test_case_verdicts_total",
			Help: "Total number of classified test-case runs by verdict",
		},
		[]string{"language", "verdict"},
	)

	CompileDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eval_compile_duration_seconds",
			Help:    "Compilation duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"language"},
	)
	RunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eval_run_duration_seconds",
			Help:    "Single test-case run duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
		},
		[]string{"language"},
	)

	CallbackDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eval_callback_deliveries_total",
			Help: "Total number of orchestrator callback attempts by outcome",
		},
		[]string{"outcome"},
	)
	BlobFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eval_blob_fetches_total",
			Help: "Total number of blob fetches by outcome",
		},
		[]string{"outcome"},
	)
)

func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(BatchesReceivedTotal)
	prometheus.MustRegister(BatchesActive)
	prometheus.MustRegister(BatchesCompletedTotal)
	prometheus.MustRegister(TestCaseVerdictsTotal)
	prometheus.MustRegister(CompileDuration)
	prometheus.MustRegister(RunDuration)
	prometheus.MustRegister(CallbackDeliveriesTotal)
	prometheus.MustRegister(BlobFetchesTotal)
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		// Route pattern may be unavailable outside chi router; guard nil
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			// fallback when route pattern is unavailable
			route = r.URL.Path
		}
		method := r.Method
		status := ww.Status()
		HTTPRequestsTotal.WithLabelValues(route, method, http.StatusText(status)).Inc()
		HTTPRequestDuration.WithLabelValues(route, method).Observe(dur)
	})
}

// StartBatch records an accepted batch entering evaluation.
func StartBatch(language string) {
	BatchesReceivedTotal.WithLabelValues(language).Inc()
	BatchesActive.Inc()
}

// FinishBatch records a batch leaving evaluation.
func FinishBatch(language string, compiled bool) {
	BatchesActive.Dec()
	c := "false"
	if compiled {
		c = "true"
	}
	BatchesCompletedTotal.WithLabelValues(language, c).Inc()
}

// ObserveVerdict counts one classified test-case run.
func ObserveVerdict(language, verdict string) {
	TestCaseVerdictsTotal.WithLabelValues(language, verdict).Inc()
}

// ObserveCompile records one compilation duration.
func ObserveCompile(language string, d time.Duration) {
	CompileDuration.WithLabelValues(language).Observe(d.Seconds())
}

// ObserveRun records one test-case run duration.
func ObserveRun(language string, d time.Duration) {
	RunDuration.WithLabelValues(language).Observe(d.Seconds())
}

// RecordCallback counts one orchestrator delivery attempt.
func RecordCallback(delivered bool) {
	outcome := "error"
	if delivered {
		outcome = "delivered"
	}
	CallbackDeliveriesTotal.WithLabelValues(outcome).Inc()
}

// RecordBlobFetch counts one blob fetch attempt.
func RecordBlobFetch(outcome string) {
	BlobFetchesTotal.WithLabelValues(outcome).Inc()
}
