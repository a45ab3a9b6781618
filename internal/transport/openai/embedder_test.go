package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docingest/internal/domain"
	"github.com/kailas-cloud/docingest/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterEmbeddingMetrics()
	os.Exit(m.Run())
}

type embeddingItem struct {
	Object    string    `json:"object"`
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

// embeddingResponse mirrors the OpenAI-compatible API embedding response.
type embeddingResponse struct {
	Object string          `json:"object"`
	Data   []embeddingItem `json:"data"`
	Model  string          `json:"model"`
	Usage  struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

type embeddingRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions"`
}

func newTestEmbedder(t *testing.T, h http.HandlerFunc) *Embedder {
	t.Helper()
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)
	return NewEmbedder(&Config{
		APIKey:     "test-key",
		BaseURL:    server.URL,
		Model:      "BAAI/bge-large-en-v1.5",
		Dimensions: 4,
		Provider:   "test",
		Logger:     zap.NewNop(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestEmbedder_Embed(t *testing.T) {
	expectedVec := []float32{0.1, 0.2, 0.3, 0.4}

	emb := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("unexpected auth header: %s", r.Header.Get("Authorization"))
		}
		var req embeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "BAAI/bge-large-en-v1.5" || req.Dimensions != 4 {
			t.Errorf("unexpected request %+v", req)
		}

		resp := embeddingResponse{Object: "list", Model: req.Model}
		resp.Data = []embeddingItem{{Object: "embedding", Embedding: expectedVec}}
		resp.Usage.PromptTokens = 42
		resp.Usage.TotalTokens = 42
		writeJSON(w, http.StatusOK, resp)
	})

	result, err := emb.Embed(context.Background(), "Late payment penalty of 2% per month")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(result.Embedding) != len(expectedVec) {
		t.Fatalf("expected %d dimensions, got %d", len(expectedVec), len(result.Embedding))
	}
	for i, v := range result.Embedding {
		if v != expectedVec[i] {
			t.Errorf("vec[%d] = %f, expected %f", i, v, expectedVec[i])
		}
	}
	if result.PromptTokens != 42 || result.TotalTokens != 42 {
		t.Errorf("unexpected usage: %+v", result)
	}
}

func TestEmbedder_BatchEmbed_RestoresInputOrder(t *testing.T) {
	emb := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		var req embeddingRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if len(req.Input) != 3 {
			t.Errorf("expected 3 inputs in one request, got %d", len(req.Input))
		}

		resp := embeddingResponse{Object: "list"}
		resp.Data = []embeddingItem{
			{Object: "embedding", Embedding: []float32{0.3}, Index: 2},
			{Object: "embedding", Embedding: []float32{0.1}, Index: 0},
			{Object: "embedding", Embedding: []float32{0.2}, Index: 1},
		}
		resp.Usage.PromptTokens = 30
		resp.Usage.TotalTokens = 30
		writeJSON(w, http.StatusOK, resp)
	})

	result, err := emb.BatchEmbed(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("BatchEmbed failed: %v", err)
	}
	if len(result.Embeddings) != 3 {
		t.Fatalf("expected 3 embeddings, got %d", len(result.Embeddings))
	}
	for i, want := range []float32{0.1, 0.2, 0.3} {
		if result.Embeddings[i][0] != want {
			t.Errorf("embedding %d = %v, want %v", i, result.Embeddings[i][0], want)
		}
	}
	if result.TotalTokens != 30 {
		t.Errorf("expected TotalTokens=30, got %d", result.TotalTokens)
	}
}

func TestEmbedder_BatchEmbed_Empty(t *testing.T) {
	emb := NewEmbedder(&Config{APIKey: "test-key", BaseURL: "http://unused", Model: "m"})

	result, err := emb.BatchEmbed(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Embeddings != nil {
		t.Errorf("expected nil embeddings for empty input, got %v", result.Embeddings)
	}
}

func TestEmbedder_BatchEmbed_CountMismatch(t *testing.T) {
	emb := newTestEmbedder(t, func(w http.ResponseWriter, _ *http.Request) {
		resp := embeddingResponse{Object: "list"}
		resp.Data = []embeddingItem{{Object: "embedding", Embedding: []float32{0.1}}}
		writeJSON(w, http.StatusOK, resp)
	})

	_, err := emb.BatchEmbed(context.Background(), []string{"a", "b"})
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("expected ErrEmbeddingProviderError, got %v", err)
	}
}

func TestEmbedder_BatchEmbed_DuplicateIndex(t *testing.T) {
	emb := newTestEmbedder(t, func(w http.ResponseWriter, _ *http.Request) {
		resp := embeddingResponse{Object: "list"}
		resp.Data = []embeddingItem{
			{Object: "embedding", Embedding: []float32{0.1}, Index: 0},
			{Object: "embedding", Embedding: []float32{0.2}, Index: 0},
		}
		writeJSON(w, http.StatusOK, resp)
	})

	_, err := emb.BatchEmbed(context.Background(), []string{"a", "b"})
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("expected ErrEmbeddingProviderError, got %v", err)
	}
}

func TestEmbedder_APIError(t *testing.T) {
	emb := newTestEmbedder(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"error": map[string]any{
				"message": "rate limit exceeded",
				"type":    "rate_limit_error",
			},
		})
	})

	_, err := emb.Embed(context.Background(), "hello")
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("expected ErrEmbeddingProviderError for 429, got %v", err)
	}
}

func TestExtractDetail(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{`{"detail":"model not loaded"}`, "model not loaded"},
		{`{"error":"Input validation error","error_type":"Validation"}`, "Input validation error"},
		{`not json`, ""},
		{`{}`, ""},
	}
	for _, tc := range tests {
		if got := extractDetail([]byte(tc.body)); got != tc.want {
			t.Errorf("extractDetail(%s) = %q, want %q", tc.body, got, tc.want)
		}
	}
}

func TestEmbedder_HealthCheck(t *testing.T) {
	emb := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		writeJSON(w, http.StatusOK, map[string]any{"object": "list", "data": []any{}})
	})

	if err := emb.HealthCheck(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
