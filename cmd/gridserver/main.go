package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/valuemap-grid/internal/adapter/blob"
	httpadapter "github.com/couchcryptid/valuemap-grid/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/valuemap-grid/internal/adapter/kafka"
	"github.com/couchcryptid/valuemap-grid/internal/config"
	"github.com/couchcryptid/valuemap-grid/internal/observability"
	"github.com/couchcryptid/valuemap-grid/internal/pipeline"
	"github.com/couchcryptid/valuemap-grid/internal/snapshot"
	"github.com/joho/godotenv"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := newBlobStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to create blob store", "error", err)
		os.Exit(1)
	}

	snapshots := snapshot.NewService(store, snapshot.Config{
		Prefix:      cfg.BlobPrefix,
		LoadTimeout: cfg.BlobTimeout,
		Preload:     cfg.PreloadGrids,
	}, logger, metrics)

	srv := httpadapter.NewServer(cfg.HTTPAddr, snapshots, logger, metrics)

	// Start HTTP server. Readiness stays false until preloading completes.
	go func() {
		logger.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		if err := snapshots.Preload(ctx); err != nil {
			logger.Error("snapshot preload incomplete", "error", err)
		}
	}()

	// Start snapshot warm pipeline.
	var reader *kafkaadapter.Reader
	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		reader = kafkaadapter.NewReader(cfg, logger)
		writer = kafkaadapter.NewWriter(cfg, logger)
		p := pipeline.New(reader, snapshots, writer, logger, metrics, cfg.BatchSize)
		go func() {
			if err := p.Run(ctx); err != nil {
				logger.Error("pipeline error", "error", err)
			}
		}()
	} else {
		logger.Info("snapshot warm pipeline disabled")
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if reader != nil {
		if err := reader.Close(); err != nil {
			logger.Error("kafka reader close error", "error", err)
		}
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

func newBlobStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (snapshot.BlobStore, error) {
	if cfg.BlobBackend == config.BlobBackendS3 {
		logger.Info("using s3 snapshot store", "bucket", cfg.BlobBucket, "endpoint", cfg.BlobEndpoint)
		store, err := blob.NewS3Store(ctx, blob.S3Config{
			Bucket:          cfg.BlobBucket,
			Endpoint:        cfg.BlobEndpoint,
			Region:          cfg.BlobRegion,
			AccessKeyID:     cfg.BlobAccessKeyID,
			SecretAccessKey: cfg.BlobSecretAccessKey,
		}, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	logger.Info("using filesystem snapshot store", "dir", cfg.BlobDir)
	return blob.NewDirStore(cfg.BlobDir), nil
}
