package chi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	dompipeline "github.com/kailas-cloud/docingest/internal/domain/pipeline"
	healthuc "github.com/kailas-cloud/docingest/internal/usecase/health"
	"github.com/kailas-cloud/docingest/internal/version"
)

type mockHealth struct {
	report healthuc.Report
}

func (m *mockHealth) Check(context.Context) healthuc.Report { return m.report }

type mockRuns struct {
	items     []*dompipeline.Stats
	lastLimit int
}

func (m *mockRuns) Recent(limit int) []*dompipeline.Stats {
	m.lastLimit = limit
	if limit < len(m.items) {
		return m.items[:limit]
	}
	return m.items
}

func okHealth() *mockHealth {
	return &mockHealth{report: healthuc.Report{
		Status: healthuc.Healthy,
		Checks: map[string]healthuc.CheckResult{healthuc.CheckIndex: healthuc.CheckOK},
	}}
}

func serve(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name   string
		report healthuc.Report
		code   int
	}{
		{"healthy", okHealth().report, http.StatusOK},
		{
			"degraded",
			healthuc.Report{
				Status: healthuc.Degraded,
				Checks: map[string]healthuc.CheckResult{healthuc.CheckIndex: healthuc.CheckError},
			},
			http.StatusServiceUnavailable,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := NewServer(&mockHealth{report: tc.report}, nil, nil)
			rec := serve(t, srv.Router(), http.MethodGet, "/health")

			if rec.Code != tc.code {
				t.Fatalf("status = %d, want %d", rec.Code, tc.code)
			}
			var got healthuc.Report
			if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got.Status != tc.report.Status || got.Checks[healthuc.CheckIndex] != tc.report.Checks[healthuc.CheckIndex] {
				t.Errorf("unexpected body %+v", got)
			}
		})
	}
}

func TestVersion(t *testing.T) {
	rec := serve(t, NewServer(okHealth(), nil, nil).Router(), http.MethodGet, "/version")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["version"] != version.Version || got["commit"] != version.Commit {
		t.Errorf("unexpected body %v", got)
	}
}

func TestMetrics(t *testing.T) {
	rec := serve(t, NewServer(okHealth(), nil, nil).Router(), http.MethodGet, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Error("expected default registry metrics")
	}
}

func TestRuns(t *testing.T) {
	runs := &mockRuns{items: []*dompipeline.Stats{
		{RunID: "r2", Source: "b.pdf", Status: dompipeline.StatusCompleted},
		{RunID: "r1", Source: "a.pdf", Status: dompipeline.StatusError},
	}}
	router := NewServer(okHealth(), runs, nil).Router()

	t.Run("default limit", func(t *testing.T) {
		rec := serve(t, router, http.MethodGet, "/runs")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if runs.lastLimit != defaultRunsLimit {
			t.Errorf("limit = %d, want %d", runs.lastLimit, defaultRunsLimit)
		}
		var body struct {
			Items []dompipeline.Stats `json:"items"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(body.Items) != 2 || body.Items[0].RunID != "r2" {
			t.Errorf("unexpected items %+v", body.Items)
		}
	})

	t.Run("explicit limit", func(t *testing.T) {
		rec := serve(t, router, http.MethodGet, "/runs?limit=1")
		if rec.Code != http.StatusOK || runs.lastLimit != 1 {
			t.Fatalf("status = %d, limit = %d", rec.Code, runs.lastLimit)
		}
	})

	t.Run("invalid limit", func(t *testing.T) {
		for _, q := range []string{"0", "-3", "ten"} {
			rec := serve(t, router, http.MethodGet, "/runs?limit="+q)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("limit=%s: status = %d", q, rec.Code)
			}
		}
	})
}

func TestRuns_NoHistory(t *testing.T) {
	rec := serve(t, NewServer(okHealth(), nil, nil).Router(), http.MethodGet, "/runs")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if strings.TrimSpace(rec.Body.String()) != `{"items":[]}` {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestNotFoundAndMethod(t *testing.T) {
	router := NewServer(okHealth(), nil, nil).Router()

	if rec := serve(t, router, http.MethodGet, "/collections"); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if rec := serve(t, router, http.MethodPost, "/health"); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestWideEventMiddleware(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	router := NewServer(okHealth(), nil, zap.New(core)).Router()

	rec := serve(t, router, http.MethodGet, "/version")
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}

	entries := logs.FilterMessage("http_request").All()
	if len(entries) != 1 {
		t.Fatalf("expected one canonical log line, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["path"] != "/version" || fields["status"] != int64(http.StatusOK) {
		t.Errorf("unexpected fields %v", fields)
	}
	if fields["request_id"] == "" {
		t.Error("request_id missing from log line")
	}
}

func TestJSONRecoverer(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	h := JSONRecoverer(zap.New(core))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := serve(t, h, http.MethodGet, "/health")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if logs.FilterMessage("panic recovered").Len() != 1 {
		t.Error("panic was not logged")
	}
}
