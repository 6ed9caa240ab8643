package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/couchcryptid/gfs-grid-etl/internal/adapter/blobstore"
	httpadapter "github.com/couchcryptid/gfs-grid-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/gfs-grid-etl/internal/adapter/kafka"
	"github.com/couchcryptid/gfs-grid-etl/internal/app"
	"github.com/couchcryptid/gfs-grid-etl/internal/config"
	"github.com/couchcryptid/gfs-grid-etl/internal/observability"
	"github.com/couchcryptid/gfs-grid-etl/internal/pipeline"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	converter, err := app.NewConverter(cfg, logger, metrics)
	if err != nil {
		logger.Error("failed to build converter", "error", err)
		os.Exit(1)
	}
	logger.Info("converter configured",
		"selector", cfg.VariableSelector,
		"variable", cfg.VariableName,
		"compression", cfg.OutputCompression,
		"target", blobstore.URLOpener{Query: cfg.TargetBucketQuery}.URL(cfg.TargetBucket),
	)

	reader := kafkaadapter.NewReader(cfg, logger)

	// Completion events are feature-flagged via KAFKA_SINK_TOPIC.
	var loader pipeline.BatchLoader
	var writer *kafkaadapter.Writer
	if cfg.KafkaSinkTopic != "" {
		writer = kafkaadapter.NewWriter(cfg, logger)
		loader = writer
		logger.Info("completion events enabled", "topic", cfg.KafkaSinkTopic)
	} else {
		logger.Info("completion events disabled")
	}

	p := pipeline.New(reader, converter, loader, logger, metrics, cfg.BatchSize)

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, converter, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start consumer pipeline.
	go func() {
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := reader.Close(); err != nil {
		logger.Error("kafka reader close error", "error", err)
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
