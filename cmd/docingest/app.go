package main

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docingest/internal/chunker"
	"github.com/kailas-cloud/docingest/internal/config"
	dbRedis "github.com/kailas-cloud/docingest/internal/db/redis"
	"github.com/kailas-cloud/docingest/internal/domain"
	"github.com/kailas-cloud/docingest/internal/metrics"
	"github.com/kailas-cloud/docingest/internal/parser"
	"github.com/kailas-cloud/docingest/internal/repository/embcache"
	indexrepo "github.com/kailas-cloud/docingest/internal/repository/index"
	"github.com/kailas-cloud/docingest/internal/selector"
	chiTransport "github.com/kailas-cloud/docingest/internal/transport/chi"
	geminiEmb "github.com/kailas-cloud/docingest/internal/transport/gemini"
	openaiEmb "github.com/kailas-cloud/docingest/internal/transport/openai"
	s3Transport "github.com/kailas-cloud/docingest/internal/transport/s3"
	embeddinguc "github.com/kailas-cloud/docingest/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/docingest/internal/usecase/health"
	pipelineuc "github.com/kailas-cloud/docingest/internal/usecase/pipeline"
	uploaduc "github.com/kailas-cloud/docingest/internal/usecase/upload"
)

// vectorIndex is what the composition root needs from any index backend.
type vectorIndex interface {
	Upsert(ctx context.Context, records []domain.Record) error
	Ping(ctx context.Context) error
}

// app is the composition root: it owns every long-lived client.
type app struct {
	runner *pipelineuc.Runner
	ops    *chiTransport.Server

	mu      sync.Mutex
	closers []func()
}

func (a *app) onClose(fn func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closers = append(a.closers, fn)
}

// Close releases clients in reverse order of creation.
func (a *app) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func newApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	a := &app{}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	var store *dbRedis.Store
	if cfg.NeedsDatabase() {
		var err error
		store, err = connectStore(ctx, cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		a.onClose(store.Close)
	}

	index, err := a.buildIndex(ctx, cfg, store, logger)
	if err != nil {
		return nil, err
	}

	var cache embeddinguc.Cache = embcache.NewMemory()
	if cfg.Embedding.Cache == config.CacheKV {
		cache = embcache.NewKV(store, cfg.Embedding.CachePrefix, logger)
	}

	embedder := embeddinguc.New(a.modelLoader(cfg.Embedding, logger), cache, logger,
		embeddinguc.WithBatchSize(cfg.Embedding.BatchSize),
		embeddinguc.WithConcurrency(cfg.EmbeddingConcurrency()),
		embeddinguc.WithDimensions(cfg.Embedding.Dimensions),
		embeddinguc.WithCacheNamespace(
			cfg.Embedding.Provider,
			cfg.Embedding.Model,
			strconv.Itoa(cfg.Embedding.Dimensions),
			cfg.Embedding.DocumentInstruction,
		),
		embeddinguc.WithCacheCounter(metrics.EmbeddingCacheTotal),
		embeddinguc.WithCacheGauges(metrics.EmbeddingCacheEntries, metrics.EmbeddingModelLoadSeconds),
	)

	var parserOpts []parser.Option
	if cfg.Source.S3.Enabled {
		fetcher, err := s3Transport.NewFetcher(ctx, &s3Transport.Config{
			Region:          cfg.Source.S3.Region,
			Endpoint:        cfg.Source.S3.Endpoint,
			AccessKeyID:     cfg.Source.S3.AccessKeyID,
			SecretAccessKey: cfg.Source.S3.SecretAccessKey,
			UsePathStyle:    cfg.Source.S3.UsePathStyle,
			MaxObjectBytes:  int64(cfg.Source.S3.MaxObjectMB) << 20,
			Logger:          logger,
		})
		if err != nil {
			return nil, fmt.Errorf("s3 fetcher: %w", err)
		}
		parserOpts = append(parserOpts, parser.WithFetcher(s3Transport.Scheme, fetcher))
	}

	pipeline := pipelineuc.New(
		parser.New(cfg.Pipeline.ParseBatchSize, parserOpts...),
		chunker.New(cfg.Pipeline.MaxChunkChars),
		selector.New(cfg.Pipeline.TopK),
		embedder,
		uploaduc.New(index, logger,
			uploaduc.WithBatchSize(cfg.Index.BatchSize),
			uploaduc.WithConcurrency(cfg.Index.UploadConcurrency),
		),
		logger,
	)

	history := pipelineuc.NewHistory(cfg.Ops.HistorySize)
	a.runner = pipelineuc.NewRunner(pipeline, cfg.Pipeline.MaxConcurrentDocuments).WithHistory(history)

	health := healthuc.New(index, embedder)
	if cfg.Embedding.Cache == config.CacheKV {
		health.WithPinger("cache", store)
	}
	a.ops = chiTransport.NewServer(health, history, logger)

	ok = true
	return a, nil
}

func connectStore(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*dbRedis.Store, error) {
	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Addrs,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("create database store: %w", err)
	}
	if err := store.WaitForReady(ctx, time.Duration(cfg.ReadinessTimeout)*time.Second); err != nil {
		store.Close()
		return nil, fmt.Errorf("database not ready: %w", err)
	}
	logger.Info("Connected to database", zap.Strings("addrs", cfg.Addrs))
	return store, nil
}

func (a *app) buildIndex(
	ctx context.Context, cfg config.Config, store *dbRedis.Store, logger *zap.Logger,
) (vectorIndex, error) {
	switch cfg.Index.Backend {
	case config.BackendRedis:
		idx := indexrepo.NewRedis(store, cfg.Index.Name, cfg.Index.KeyPrefix, cfg.Embedding.Dimensions).
			WithHNSW(indexrepo.HNSWConfig{M: cfg.Index.HNSWM, EFConstruct: cfg.Index.HNSWEFConstruct})
		if err := idx.EnsureIndex(ctx); err != nil {
			return nil, fmt.Errorf("ensure redis index: %w", err)
		}
		logger.Info("Using redis index", zap.String("name", cfg.Index.Name))
		return idx, nil

	case config.BackendChromem:
		idx, err := indexrepo.NewChromem(cfg.Index.ChromemPath, cfg.Index.Name)
		if err != nil {
			return nil, fmt.Errorf("open chromem collection: %w", err)
		}
		logger.Info("Using chromem index",
			zap.String("name", cfg.Index.Name),
			zap.String("path", cfg.Index.ChromemPath),
			zap.Int("records", idx.Count()),
		)
		return idx, nil

	case config.BackendPGVector:
		idx, err := indexrepo.OpenPGVector(ctx, cfg.Postgres.DSN, cfg.Postgres.Table, cfg.Embedding.Dimensions)
		if err != nil {
			return nil, fmt.Errorf("open pgvector index: %w", err)
		}
		a.onClose(func() { _ = idx.Close() })
		if err := idx.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure pgvector schema: %w", err)
		}
		logger.Info("Using pgvector index", zap.String("table", cfg.Postgres.Table))
		return idx, nil

	default:
		return nil, fmt.Errorf("unknown index backend %q", cfg.Index.Backend)
	}
}

// modelLoader builds the provider chain on the first cache miss:
// provider -> instrumented -> instruction prefix.
func (a *app) modelLoader(cfg config.EmbeddingConfig, logger *zap.Logger) embeddinguc.ModelLoader {
	return func(ctx context.Context) (domain.BatchEmbedder, error) {
		var base domain.Embedder
		switch cfg.Provider {
		case config.ProviderGemini:
			g, err := geminiEmb.NewEmbedder(ctx, &geminiEmb.Config{
				APIKey: cfg.APIKey,
				Model:  cfg.Model,
				Logger: logger,
			})
			if err != nil {
				return nil, err
			}
			a.onClose(func() { _ = g.Close() })
			base = g
		default:
			base = openaiEmb.NewEmbedder(&openaiEmb.Config{
				APIKey:     cfg.APIKey,
				BaseURL:    cfg.BaseURL,
				Model:      cfg.Model,
				Dimensions: cfg.Dimensions,
				Provider:   cfg.Provider,
				Logger:     logger,
			})
		}

		var model domain.Embedder = embeddinguc.NewInstrumentedModel(base, cfg.Provider, cfg.Model, logger)
		if cfg.DocumentInstruction != "" {
			model = domain.NewInstructionEmbedder(model, cfg.DocumentInstruction)
		}

		// both decorators implement BatchEmbedder
		be, ok := model.(domain.BatchEmbedder)
		if !ok {
			return nil, fmt.Errorf("embedding model %T has no batch support", model)
		}
		logger.Info("Embedding model ready",
			zap.String("provider", cfg.Provider),
			zap.String("model", cfg.Model),
			zap.Bool("use_gpu", cfg.UseGPU),
		)
		return be, nil
	}
}
