// Package telemetry defines the prometheus collectors shared by the SDK and
// the dev stub server. Collectors are package-level so any layer can record
// without plumbing; call Init once in a binary to expose them via a registry.
package telemetry

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	httpDur = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	// Evaluations counts completed evaluation fetches by result kind
	// (success, response-not-ok, invalid-response-body, network-error).
	Evaluations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flagbag_evaluations_total",
			Help: "Completed evaluation fetches by result",
		},
		[]string{"result"},
	)
	// EvaluationDuration observes the wall time of one evaluation fetch.
	EvaluationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "flagbag_evaluation_duration_seconds",
		Help:    "Evaluation fetch duration in seconds",
		Buckets: prometheus.DefBuckets,
	})
	// StaleResponses counts settle actions discarded because their input no
	// longer matched the pending evaluation.
	StaleResponses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flagbag_stale_responses_total",
		Help: "Settle actions discarded as stale",
	})
	// CacheHits and CacheMisses count outcome-cache lookups made when an
	// evaluation or revalidation is dispatched.
	CacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flagbag_cache_hits_total",
		Help: "Outcome cache hits on dispatch",
	})
	CacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flagbag_cache_misses_total",
		Help: "Outcome cache misses on dispatch",
	})
	// Revalidations counts dispatched revalidations by trigger (manual, focus).
	Revalidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flagbag_revalidations_total",
			Help: "Dispatched revalidations by trigger",
		},
		[]string{"trigger"},
	)
	// SnapshotEnvironments tracks how many environments the dev server's
	// current rules snapshot holds.
	SnapshotEnvironments = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "flagbag_snapshot_environments",
		Help: "Number of environments in the dev server rules snapshot",
	})
)

var registerOnce sync.Once

// Init registers all collectors with the default registry. Safe to call more
// than once; only the first call registers.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpReqs, httpDur,
			Evaluations, EvaluationDuration,
			StaleResponses, CacheHits, CacheMisses, Revalidations,
			SnapshotEnvironments,
		)
	})
}

// Middleware records request counts and durations per chi route.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// get route pattern if available
		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}

		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(ww, r)

		httpReqs.WithLabelValues(route, r.Method, http.StatusText(ww.status)).Inc()
		httpDur.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
