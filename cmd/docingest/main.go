// docingest ingests large documents into a vector index.
//
// Usage:
//
//	docingest [-query "payment penalty"] [-wait] contract.pdf s3://contracts/msa.pdf ...
//
// Settings come from config/<ENV>.yaml (ENV defaults to local); a .env file in the
// working directory is loaded first. Run statistics are printed to stdout as JSON.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docingest/internal/config"
	dompipeline "github.com/kailas-cloud/docingest/internal/domain/pipeline"
	logpkg "github.com/kailas-cloud/docingest/internal/logger"
	"github.com/kailas-cloud/docingest/internal/metrics"
	"github.com/kailas-cloud/docingest/internal/parser"
	chiTransport "github.com/kailas-cloud/docingest/internal/transport/chi"
	pipelineuc "github.com/kailas-cloud/docingest/internal/usecase/pipeline"
	"github.com/kailas-cloud/docingest/internal/version"
)

type flags struct {
	query   string
	wait    bool
	version bool
	docs    []string
}

func parseFlags() flags {
	var f flags
	flag.StringVar(&f.query, "query", "", "analysis query; empty selects chunks by sampling")
	flag.BoolVar(&f.wait, "wait", false, "keep the ops server running after all documents are processed")
	flag.BoolVar(&f.version, "version", false, "print version and exit")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] <path|s3://bucket/key>...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	f.docs = flag.Args()
	return f
}

func main() {
	f := parseFlags()
	if f.version {
		fmt.Println("docingest", version.Get())
		return
	}
	if len(f.docs) == 0 {
		flag.Usage()
		os.Exit(2)
	}
	os.Exit(execute(f))
}

// execute runs the ingestion and returns the process exit code. Deferred cleanup,
// logger sync included, completes before main exits.
func execute(f flags) int {
	// .env is optional; real environment variables take precedence
	_ = godotenv.Load()

	env := config.GetEnv()
	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	stats, err := run(ctx, cfg, f, logger)
	if err != nil {
		logger.Error("docingest failed", zap.Error(err))
		return 1
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(stats); err != nil {
		logger.Error("write stats", zap.Error(err))
	}
	return exitCode(stats)
}

// exitCode is 1 when any document ended in error. Partial runs still exit 0.
func exitCode(stats []*dompipeline.Stats) int {
	for _, s := range stats {
		if s.Status == dompipeline.StatusError {
			return 1
		}
	}
	return 0
}

func run(ctx context.Context, cfg config.Config, f flags, logger *zap.Logger) ([]*dompipeline.Stats, error) {
	logger.Info("Starting docingest",
		zap.Any("build", version.Get()),
		zap.String("index_backend", cfg.Index.Backend),
		zap.String("index_name", cfg.Index.Name),
		zap.String("embedding_provider", cfg.Embedding.Provider),
		zap.String("embedding_model", cfg.Embedding.Model),
		zap.Int("documents", len(f.docs)),
	)

	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterPipelineMetrics()
	metrics.RegisterOpsMetrics()

	app, err := newApp(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer app.Close()

	if cfg.Ops.Port > 0 {
		srv := serveOps(cfg.Ops, app.ops, logger)
		defer func() {
			shutCtx, shutCancel := context.WithTimeout(
				context.Background(), time.Duration(cfg.Ops.ShutdownSec)*time.Second,
			)
			defer shutCancel()
			if err := srv.Shutdown(shutCtx); err != nil {
				logger.Error("Error during ops server shutdown", zap.Error(err))
			}
		}()
	}

	reqs := make([]pipelineuc.Request, len(f.docs))
	for i, doc := range f.docs {
		reqs[i] = pipelineuc.Request{Source: parser.Resolve(doc), Query: f.query}
	}

	start := time.Now()
	stats := app.runner.RunAll(ctx, reqs)

	failed := 0
	for _, s := range stats {
		if s.Status == dompipeline.StatusError {
			failed++
		}
	}
	logger.Info("All documents processed",
		zap.Int("documents", len(stats)),
		zap.Int("failed", failed),
		zap.Duration("duration", time.Since(start)),
	)

	if f.wait && cfg.Ops.Port > 0 {
		logger.Info("Waiting for shutdown signal")
		<-ctx.Done()
	}
	return stats, nil
}

func serveOps(cfg config.OpsConfig, server *chiTransport.Server, logger *zap.Logger) *http.Server {
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Router(),
		ReadTimeout:  time.Duration(cfg.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeoutSec) * time.Second,
	}

	go func() {
		logger.Info("Starting ops server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Ops server error", zap.Error(err))
		}
	}()
	return srv
}
