// Package chi serves the ops surface of a running ingestion: health, metrics, version
// and the most recent pipeline runs.
package chi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	dompipeline "github.com/kailas-cloud/docingest/internal/domain/pipeline"
	"github.com/kailas-cloud/docingest/internal/metrics"
	healthuc "github.com/kailas-cloud/docingest/internal/usecase/health"
	"github.com/kailas-cloud/docingest/internal/version"
)

const defaultRunsLimit = 20

// HealthChecker is the consumer interface of the health service (ISP).
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// RunHistory lists recently finished pipeline runs, newest first.
type RunHistory interface {
	Recent(limit int) []*dompipeline.Stats
}

// Server handles the ops endpoints.
type Server struct {
	health  HealthChecker
	runs    RunHistory
	metrics http.Handler
	logger  *zap.Logger
}

// NewServer creates an ops server. runs can be nil.
func NewServer(health HealthChecker, runs RunHistory, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		health:  health,
		runs:    runs,
		metrics: promhttp.Handler(),
		logger:  logger,
	}
}

// Router mounts the endpoints behind the recover, request id, canonical log line and
// metrics middlewares.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(JSONRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(WideEventMiddleware(s.logger))
	r.Use(metrics.Middleware())

	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
	r.Get("/version", s.Version)
	r.Get("/runs", s.Runs)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})
	return r
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	status := http.StatusOK
	if report.Status != healthuc.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	s.metrics.ServeHTTP(w, r)
}

// Version handles GET /version.
func (s *Server) Version(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, version.Get())
}

// Runs handles GET /runs?limit=N.
func (s *Server) Runs(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeJSON(w, http.StatusOK, map[string]any{"items": []*dompipeline.Stats{}})
		return
	}

	limit := defaultRunsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "bad_request", "limit must be a positive integer")
			return
		}
		limit = n
	}

	items := s.runs.Recent(limit)
	if items == nil {
		items = []*dompipeline.Stats{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"code":    code,
		"message": message,
	})
}
