package health

import (
	"context"
	"sort"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Component names reported in Report.Checks.
const (
	CheckIndex     = "index"
	CheckEmbedding = "embedding"
)

// Report aggregates health check results.
type Report struct {
	Status Status                 `json:"status"`
	Checks map[string]CheckResult `json:"checks"`
}

// Service coordinates health checks.
type Service struct {
	index     Pinger
	embedding EmbeddingChecker
	extra     map[string]Pinger
}

// New creates a Service. embedding can be nil: the model is loaded lazily and may not exist yet.
func New(index Pinger, embedding EmbeddingChecker) *Service {
	return &Service{index: index, embedding: embedding, extra: make(map[string]Pinger)}
}

// WithPinger adds a named component check, e.g. the shared embedding cache.
func (s *Service) WithPinger(name string, p Pinger) *Service {
	if p != nil {
		s.extra[name] = p
	}
	return s
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult, 2+len(s.extra))

	checks[CheckIndex] = result(s.index.Ping(ctx))

	if s.embedding != nil {
		checks[CheckEmbedding] = result(s.embedding.HealthCheck(ctx))
	}

	names := make([]string, 0, len(s.extra))
	for name := range s.extra {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		checks[name] = result(s.extra[name].Ping(ctx))
	}

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}

	return Report{Status: status, Checks: checks}
}

func result(err error) CheckResult {
	if err != nil {
		return CheckError
	}
	return CheckOK
}
