package config

import (
	"strings"
	"testing"
)

func validConfig() Config {
	cfg := Config{
		Ops:      OpsConfig{Port: 9090},
		Database: DatabaseConfig{Addrs: []string{"localhost:6379"}},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.Ops.ReadTimeoutSec != 10 || cfg.Ops.WriteTimeoutSec != 10 || cfg.Ops.ShutdownSec != 10 {
		t.Errorf("unexpected ops timeouts %+v", cfg.Ops)
	}
	if cfg.Database.ReadinessTimeout != 10 {
		t.Errorf("expected ReadinessTimeout=10, got %d", cfg.Database.ReadinessTimeout)
	}
	if cfg.Embedding.Model != "BAAI/bge-large-en-v1.5" || cfg.Embedding.Dimensions != 1024 {
		t.Errorf("unexpected model %q/%d", cfg.Embedding.Model, cfg.Embedding.Dimensions)
	}
	if cfg.Embedding.BatchSize != 32 || cfg.Embedding.Cache != CacheMemory {
		t.Errorf("unexpected embedding defaults %+v", cfg.Embedding)
	}
	if cfg.Pipeline.MaxChunkChars != 2000 || cfg.Pipeline.TopK != 15 || cfg.Pipeline.ParseBatchSize != 5 {
		t.Errorf("unexpected pipeline defaults %+v", cfg.Pipeline)
	}
	if cfg.Pipeline.MaxConcurrentDocuments != 4 {
		t.Errorf("expected MaxConcurrentDocuments=4, got %d", cfg.Pipeline.MaxConcurrentDocuments)
	}
	if cfg.Index.Backend != BackendRedis || cfg.Index.Name != "contract-analysis" || cfg.Index.BatchSize != 100 {
		t.Errorf("unexpected index defaults %+v", cfg.Index)
	}
	if cfg.Index.HNSWM != 16 || cfg.Index.HNSWEFConstruct != 200 {
		t.Errorf("unexpected HNSW defaults %d/%d", cfg.Index.HNSWM, cfg.Index.HNSWEFConstruct)
	}
	if cfg.Postgres.Table != "docingest_chunks" {
		t.Errorf("expected default table, got %q", cfg.Postgres.Table)
	}
}

func TestApplyDefaults_KeepsExplicitValues(t *testing.T) {
	cfg := Config{
		Pipeline: PipelineConfig{MaxChunkChars: 500, TopK: 3},
		Index:    IndexConfig{Backend: BackendChromem, Name: "msa"},
	}
	cfg.ApplyDefaults()

	if cfg.Pipeline.MaxChunkChars != 500 || cfg.Pipeline.TopK != 3 {
		t.Errorf("explicit pipeline values overwritten: %+v", cfg.Pipeline)
	}
	if cfg.Index.Backend != BackendChromem || cfg.Index.Name != "msa" {
		t.Errorf("explicit index values overwritten: %+v", cfg.Index)
	}
}

func TestEmbeddingConcurrency(t *testing.T) {
	cfg := validConfig()
	cfg.Embedding.Concurrency = 8
	if got := cfg.EmbeddingConcurrency(); got != 8 {
		t.Errorf("EmbeddingConcurrency = %d, want 8", got)
	}
	cfg.Embedding.UseGPU = true
	if got := cfg.EmbeddingConcurrency(); got != 1 {
		t.Errorf("EmbeddingConcurrency with GPU = %d, want 1", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"ops disabled", func(c *Config) { c.Ops.Port = 0 }, ""},
		{"invalid port", func(c *Config) { c.Ops.Port = 70000 }, "ops.port"},
		{"unknown backend", func(c *Config) { c.Index.Backend = "pinecone" }, "index.backend"},
		{"pgvector without dsn", func(c *Config) { c.Index.Backend = BackendPGVector }, "postgres.dsn"},
		{
			"pgvector with dsn",
			func(c *Config) {
				c.Index.Backend = BackendPGVector
				c.Postgres.DSN = "postgres://localhost/docingest"
			},
			"",
		},
		{"unknown provider", func(c *Config) { c.Embedding.Provider = "cohere" }, "embedding.provider"},
		{"gemini without key", func(c *Config) { c.Embedding.Provider = ProviderGemini }, "embedding.api_key"},
		{"unknown cache", func(c *Config) { c.Embedding.Cache = "disk" }, "embedding.cache"},
		{"redis without addrs", func(c *Config) { c.Database.Addrs = nil }, "database.addrs"},
		{
			"chromem without addrs",
			func(c *Config) {
				c.Index.Backend = BackendChromem
				c.Database.Addrs = nil
			},
			"",
		},
		{
			"kv cache without addrs",
			func(c *Config) {
				c.Index.Backend = BackendChromem
				c.Embedding.Cache = CacheKV
				c.Database.Addrs = nil
			},
			"database.addrs",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)

			err := cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestParse_ExpandsEnv(t *testing.T) {
	t.Setenv("DOCINGEST_TEST_INDEX", "msa-index")
	t.Setenv("DOCINGEST_TEST_BACKEND", "")

	cfg, err := Parse([]byte(`
index:
  backend: ${DOCINGEST_TEST_BACKEND:-chromem}
  name: ${DOCINGEST_TEST_INDEX}
embedding:
  use_gpu: true
  concurrency: 6
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Index.Backend != BackendChromem || cfg.Index.Name != "msa-index" {
		t.Errorf("unexpected index %+v", cfg.Index)
	}
	if cfg.EmbeddingConcurrency() != 1 {
		t.Errorf("use_gpu must serialize model calls")
	}
}

func TestParse_Invalid(t *testing.T) {
	if _, err := Parse([]byte("index: [")); err == nil {
		t.Error("expected YAML error")
	}
	if _, err := Parse([]byte("index:\n  backend: pinecone\n")); err == nil {
		t.Error("expected validation error")
	}
}

func TestLoad_Local(t *testing.T) {
	t.Setenv("INDEX_BACKEND", "chromem")
	cfg, err := Load("local")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Index.Name != "contract-analysis" || cfg.Ops.Port != 9090 {
		t.Errorf("unexpected config %+v", cfg)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("DOCINGEST_TEST_SET", "value")
	got := string(expandEnvVars([]byte("a: ${DOCINGEST_TEST_SET}\nb: ${DOCINGEST_TEST_UNSET:-fallback}\nc: ${DOCINGEST_TEST_UNSET}")))
	want := "a: value\nb: fallback\nc: "
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestGetEnv(t *testing.T) {
	t.Setenv("ENV", "")
	if GetEnv() != "local" {
		t.Errorf("expected local default")
	}
	t.Setenv("ENV", "prod")
	if GetEnv() != "prod" {
		t.Errorf("expected prod")
	}
}
