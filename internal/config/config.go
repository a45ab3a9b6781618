package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the docingest configuration.
type Config struct {
	Ops       OpsConfig       `yaml:"ops"`
	Database  DatabaseConfig  `yaml:"database"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Index     IndexConfig     `yaml:"index"`
	Source    SourceConfig    `yaml:"source"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// OpsConfig holds the health/metrics server settings. Port 0 disables the server.
type OpsConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
	HistorySize     int `yaml:"history_size"`
}

// DatabaseConfig holds Redis/Valkey connection settings.
// It is required by the redis index backend and the kv embedding cache.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// PostgresConfig holds the pgvector backend settings.
type PostgresConfig struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

// EmbeddingConfig holds the embedding model settings.
type EmbeddingConfig struct {
	Provider            string `yaml:"provider"` // openai (any compatible endpoint), gemini
	APIKey              string `yaml:"api_key"`
	BaseURL             string `yaml:"base_url"`
	Model               string `yaml:"model"`
	Dimensions          int    `yaml:"dimensions"`
	BatchSize           int    `yaml:"batch_size"`
	Concurrency         int    `yaml:"concurrency"`
	UseGPU              bool   `yaml:"use_gpu"`
	DocumentInstruction string `yaml:"document_instruction"`
	Cache               string `yaml:"cache"` // memory, kv
	CachePrefix         string `yaml:"cache_prefix"`
}

// PipelineConfig holds the stage settings.
type PipelineConfig struct {
	MaxChunkChars          int `yaml:"max_chunk_chars"`
	TopK                   int `yaml:"top_k"`
	ParseBatchSize         int `yaml:"parse_batch_size"`
	MaxConcurrentDocuments int `yaml:"max_concurrent_documents"`
}

// IndexConfig holds the vector index settings.
type IndexConfig struct {
	Backend           string `yaml:"backend"` // redis, chromem, pgvector
	Name              string `yaml:"name"`
	BatchSize         int    `yaml:"batch_size"`
	UploadConcurrency int    `yaml:"upload_concurrency"`
	KeyPrefix         string `yaml:"key_prefix"`
	HNSWM             int    `yaml:"hnsw_m"`
	HNSWEFConstruct   int    `yaml:"hnsw_ef_construction"`
	ChromemPath       string `yaml:"chromem_path"` // empty keeps the collection in memory
}

// SourceConfig holds remote document source settings.
type SourceConfig struct {
	S3 S3Config `yaml:"s3"`
}

// S3Config holds the object store settings. Empty credentials use the default AWS chain.
type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UsePathStyle    bool   `yaml:"use_path_style"`
	MaxObjectMB     int    `yaml:"max_object_mb"`
}

// Supported backends and providers.
const (
	BackendRedis    = "redis"
	BackendChromem  = "chromem"
	BackendPGVector = "pgvector"

	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"

	CacheMemory = "memory"
	CacheKV     = "kv"
)

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}
	return Parse(data)
}

// Parse decodes YAML after env substitution, applies defaults and validates.
func Parse(data []byte) (Config, error) {
	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.Ops.ReadTimeoutSec <= 0 {
		c.Ops.ReadTimeoutSec = 10
	}
	if c.Ops.WriteTimeoutSec <= 0 {
		c.Ops.WriteTimeoutSec = 10
	}
	if c.Ops.ShutdownSec <= 0 {
		c.Ops.ShutdownSec = 10
	}
	if c.Ops.HistorySize <= 0 {
		c.Ops.HistorySize = 100
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Postgres.Table == "" {
		c.Postgres.Table = "docingest_chunks"
	}

	if c.Embedding.Provider == "" {
		c.Embedding.Provider = ProviderOpenAI
	}
	// gemini picks its own default model
	if c.Embedding.Model == "" && c.Embedding.Provider == ProviderOpenAI {
		c.Embedding.Model = "BAAI/bge-large-en-v1.5"
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = 1024
	}
	if c.Embedding.BatchSize <= 0 {
		c.Embedding.BatchSize = 32
	}
	if c.Embedding.Concurrency <= 0 {
		c.Embedding.Concurrency = 4
	}
	if c.Embedding.Cache == "" {
		c.Embedding.Cache = CacheMemory
	}
	if c.Embedding.CachePrefix == "" {
		c.Embedding.CachePrefix = "docingest:"
	}

	if c.Pipeline.MaxChunkChars <= 0 {
		c.Pipeline.MaxChunkChars = 2000
	}
	if c.Pipeline.TopK <= 0 {
		c.Pipeline.TopK = 15
	}
	if c.Pipeline.ParseBatchSize <= 0 {
		c.Pipeline.ParseBatchSize = 5
	}
	if c.Pipeline.MaxConcurrentDocuments <= 0 {
		c.Pipeline.MaxConcurrentDocuments = 4
	}

	if c.Index.Backend == "" {
		c.Index.Backend = BackendRedis
	}
	if c.Index.Name == "" {
		c.Index.Name = "contract-analysis"
	}
	if c.Index.BatchSize <= 0 {
		c.Index.BatchSize = 100
	}
	if c.Index.UploadConcurrency <= 0 {
		c.Index.UploadConcurrency = 1
	}
	if c.Index.KeyPrefix == "" {
		c.Index.KeyPrefix = "docingest:"
	}
	if c.Index.HNSWM <= 0 {
		c.Index.HNSWM = 16
	}
	if c.Index.HNSWEFConstruct <= 0 {
		c.Index.HNSWEFConstruct = 200
	}

	if c.Source.S3.MaxObjectMB <= 0 {
		c.Source.S3.MaxObjectMB = 512
	}
}

// EmbeddingConcurrency returns the number of model calls allowed in flight.
// A local GPU model serializes requests.
func (c *Config) EmbeddingConcurrency() int {
	if c.Embedding.UseGPU {
		return 1
	}
	return c.Embedding.Concurrency
}

// NeedsDatabase reports whether a Redis/Valkey connection is required.
func (c *Config) NeedsDatabase() bool {
	return c.Index.Backend == BackendRedis || c.Embedding.Cache == CacheKV
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.Ops.Port < 0 || c.Ops.Port > 65535 {
		return fmt.Errorf("ops.port must be between 0 and 65535, got %d", c.Ops.Port)
	}

	switch c.Index.Backend {
	case BackendRedis, BackendChromem:
	case BackendPGVector:
		if c.Postgres.DSN == "" {
			return errors.New("postgres.dsn is required for the pgvector backend")
		}
	default:
		return fmt.Errorf("index.backend must be one of redis, chromem, pgvector, got %q", c.Index.Backend)
	}

	switch c.Embedding.Provider {
	case ProviderOpenAI:
	case ProviderGemini:
		if c.Embedding.APIKey == "" {
			return errors.New("embedding.api_key is required for the gemini provider")
		}
	default:
		return fmt.Errorf("embedding.provider must be \"openai\" or \"gemini\", got %q", c.Embedding.Provider)
	}

	switch c.Embedding.Cache {
	case CacheMemory, CacheKV:
	default:
		return fmt.Errorf("embedding.cache must be \"memory\" or \"kv\", got %q", c.Embedding.Cache)
	}

	if c.NeedsDatabase() && len(c.Database.Addrs) == 0 {
		return errors.New("database.addrs is required for the redis backend and the kv cache")
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
