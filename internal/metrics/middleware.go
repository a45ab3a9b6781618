package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

// unmatchedRoute labels requests that hit no route, keeping path cardinality bounded.
const unmatchedRoute = "unmatched"

var (
	OpsRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docingest",
			Subsystem: "ops",
			Name:      "request_duration_seconds",
			Help:      "Ops server request duration in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"method", "route", "status"},
	)

	OpsRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docingest",
			Subsystem: "ops",
			Name:      "requests_total",
			Help:      "Total number of ops server requests",
		},
		[]string{"method", "route", "status"},
	)

	opsRegisterOnce sync.Once
)

// RegisterOpsMetrics registers the ops server metrics with the default registry.
// Safe to call more than once.
func RegisterOpsMetrics() {
	opsRegisterOnce.Do(func() {
		prometheus.MustRegister(OpsRequestDuration, OpsRequestsTotal)
	})
}

// Middleware records ops request duration and count by chi route pattern.
func Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			route := routeLabel(r)
			status := strconv.Itoa(rec.status)
			OpsRequestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
			OpsRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
		})
	}
}

func routeLabel(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return unmatchedRoute
	}
	if p := rctx.RoutePattern(); p != "" {
		return p
	}
	return unmatchedRoute
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusRecorder) WriteHeader(status int) {
	if !w.wroteHeader {
		w.status = status
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b) //nolint:wrapcheck // delegating to underlying ResponseWriter
}
