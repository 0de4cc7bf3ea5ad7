package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/dunamismax/optimg/internal/config"
	"github.com/dunamismax/optimg/internal/domain"
	"github.com/dunamismax/optimg/internal/pipeline"
	"github.com/dunamismax/optimg/internal/storage"
	"github.com/dunamismax/optimg/internal/store"
	"github.com/dunamismax/optimg/internal/telemetry"
	"github.com/dunamismax/optimg/internal/webhook"
	"github.com/dunamismax/optimg/internal/worker"
	"github.com/rs/zerolog"
)

type publisher interface {
	Publish(ctx context.Context, taskID string, result domain.TaskResult) (string, error)
}

func main() {
	if err := config.LoadDotEnv(); err != nil {
		zerolog.New(os.Stderr).Fatal().Err(err).Msg("load .env")
	}
	cfg := config.Load()
	logger := telemetry.NewLogger(os.Stdout, cfg.LogLevel, "worker")
	ctx := context.Background()

	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  cfg.Telemetry.ServiceName + "-worker",
		Exporter:     cfg.Telemetry.Exporter,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure: cfg.Telemetry.OTLPInsecure,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("tracing setup failed")
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.Warn().Err(err).Msg("tracing shutdown failed")
		}
	}()

	processor, err := pipeline.NewProcessor(cfg.Codec.Options(), pipeline.WithLogger(logger))
	if err != nil {
		logger.Fatal().Err(err).Msg("pipeline setup failed")
	}

	taskStore, closeStore, err := store.Open(ctx, cfg.Database.DSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("task store setup failed")
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Warn().Err(err).Msg("task store close failed")
		}
	}()
	if cfg.Database.DSN == "" {
		logger.Warn().Msg("POSTGRES_DSN not set; task status is not shared with the api")
	}

	var outputs publisher
	if cfg.Worker.PublishOutputs {
		outputs, err = newObjectStorePublisher(ctx, cfg.Storage)
		if err != nil {
			logger.Fatal().Err(err).Msg("object storage setup failed")
		}
	}

	webhookClient := webhook.NewClient(webhook.Config{
		SigningSecret:  cfg.Webhook.SigningSecret,
		Timeout:        cfg.Webhook.Timeout,
		MaxAttempts:    cfg.Webhook.MaxAttempts,
		InitialBackoff: cfg.Webhook.InitialBackoff,
		MaxBackoff:     cfg.Webhook.MaxBackoff,
	})

	srv, err := worker.NewServer(logger, cfg.Queue, cfg.Worker, processor, outputs, webhookClient, taskStore)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker setup failed")
	}

	metricsServer := &http.Server{
		Addr:              cfg.Worker.MetricsAddr,
		Handler:           metricsMux(srv.MetricsHandler()),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", cfg.Worker.MetricsAddr).Msg("metrics listening")
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server failed")
		}
	}()

	logger.Info().
		Int("concurrency", cfg.Worker.Concurrency).
		Int("max_active_tasks", cfg.Worker.MaxActiveTasks).
		Str("queue", cfg.Queue.Name).
		Str("target_format", string(cfg.Codec.TargetFormat)).
		Bool("publish_outputs", cfg.Worker.PublishOutputs).
		Msg("starting worker")

	runErr := srv.Run()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("metrics shutdown failed")
	}
	if runErr != nil {
		logger.Error().Err(runErr).Msg("worker stopped")
		os.Exit(1)
	}
}

func newObjectStorePublisher(ctx context.Context, cfg config.StorageConfig) (publisher, error) {
	client, err := storage.NewClient(storage.Config{
		Endpoint: cfg.Endpoint,
		Access:   cfg.AccessKey,
		Secret:   cfg.SecretKey,
		Bucket:   cfg.Bucket,
		UseSSL:   cfg.UseSSL,
	})
	if err != nil {
		return nil, err
	}
	if err := client.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return pipeline.ObjectStorePublisher{Storage: client}, nil
}

func metricsMux(metrics http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metrics)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}
