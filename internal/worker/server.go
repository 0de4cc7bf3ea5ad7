package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dunamismax/optimg/internal/codec"
	"github.com/dunamismax/optimg/internal/config"
	"github.com/dunamismax/optimg/internal/domain"
	"github.com/dunamismax/optimg/internal/queue"
	"github.com/dunamismax/optimg/internal/store"
	"github.com/dunamismax/optimg/internal/webhook"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Server struct {
	log           zerolog.Logger
	server        *asynq.Server
	sem           chan struct{}
	processor     taskProcessor
	publisher     outputPublisher
	webhookClient webhookSender
	taskStore     store.TaskStore
	metrics       *metrics
	tracer        trace.Tracer
}

type taskProcessor interface {
	Process(ctx context.Context, task domain.Task) (domain.TaskResult, error)
}

type outputPublisher interface {
	Publish(ctx context.Context, taskID string, result domain.TaskResult) (string, error)
}

type webhookSender interface {
	Send(ctx context.Context, endpoint, event string, payload any) error
}

// NewServer wires an asynq server around processor. publisher, webhookClient
// and taskStore are optional.
func NewServer(
	logger zerolog.Logger,
	queueCfg config.QueueConfig,
	workerCfg config.WorkerConfig,
	processor taskProcessor,
	publisher outputPublisher,
	webhookClient webhookSender,
	taskStore store.TaskStore,
) (*Server, error) {
	if processor == nil {
		return nil, fmt.Errorf("processor is required")
	}

	log := logger.With().Str("component", "worker").Logger()
	s := &Server{
		log:           log,
		sem:           make(chan struct{}, max(1, workerCfg.MaxActiveTasks)),
		processor:     processor,
		publisher:     publisher,
		webhookClient: webhookClient,
		taskStore:     taskStore,
		metrics:       newMetrics(),
		tracer:        otel.Tracer("optimg/worker"),
	}
	s.server = asynq.NewServer(
		queueCfg.RedisClientOpt(),
		asynq.Config{
			Concurrency: max(1, workerCfg.Concurrency),
			Queues: map[string]int{
				queueCfg.Name: 1,
			},
			LogLevel: asynq.WarnLevel,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				log.Warn().Str("type", task.Type()).Int("retry", retried).Int("max_retry", maxRetry).Err(err).Msg("task failed")
			}),
		},
	)
	return s, nil
}

func (s *Server) Run() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeOptimizeImage, s.handleOptimizeImage)
	return s.server.Run(mux)
}

func (s *Server) MetricsHandler() http.Handler {
	return s.metrics.Handler()
}

func (s *Server) handleOptimizeImage(ctx context.Context, task *asynq.Task) error {
	startedAt := time.Now()
	outcome := domain.TaskStatusFailed

	payload, err := queue.ParseOptimizeImagePayload(task)
	if err != nil {
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}

	ctx, span := s.tracer.Start(ctx, "worker.optimize_image", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(
		attribute.String("task.id", payload.TaskID),
		attribute.String("task.source_path", payload.Task.SourcePath),
	)
	defer span.End()
	defer func() {
		s.metrics.taskDuration.WithLabelValues(outcome).Observe(time.Since(startedAt).Seconds())
		s.metrics.tasksTotal.WithLabelValues(outcome).Inc()
	}()

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.metrics.activeTasks.Inc()
	defer func() {
		<-s.sem
		s.metrics.activeTasks.Dec()
	}()

	log := s.log.With().Str("task_id", payload.TaskID).Str("src", payload.Task.SourcePath).Logger()
	log.Info().Msg("processing")
	s.updateTaskStatus(ctx, payload.TaskID, domain.TaskStatusProcessing)

	result, err := s.processor.Process(ctx, payload.Task)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "pipeline failed")

		permanent := isPermanent(err)
		if !permanent && !finalAttempt(ctx) {
			s.updateTaskStatus(ctx, payload.TaskID, domain.TaskStatusQueued)
			return fmt.Errorf("optimize: %w", err)
		}

		s.saveResult(ctx, payload.TaskID, nil, err.Error())
		s.dispatchWebhook(ctx, payload, webhook.EventTaskFailed, map[string]any{
			"task_id":      payload.TaskID,
			"status":       domain.TaskStatusFailed,
			"source_path":  payload.Task.SourcePath,
			"requested_at": payload.RequestedAt,
			"failed_at":    time.Now().UTC(),
			"error":        err.Error(),
		})
		if permanent {
			return fmt.Errorf("optimize: %v: %w", err, asynq.SkipRetry)
		}
		return fmt.Errorf("optimize: %w", err)
	}

	objectKey := ""
	if s.publisher != nil {
		objectKey, err = s.publisher.Publish(ctx, payload.TaskID, result)
		if err != nil {
			span.RecordError(err)
			log.Warn().Err(err).Str("output", result.OutputPath).Msg("publish failed")
		} else {
			s.metrics.publishedTotal.Inc()
		}
	}

	s.saveResult(ctx, payload.TaskID, &result, "")
	s.metrics.observeResult(result)
	log.Info().
		Bool("optimized", result.WasOptimized).
		Int64("bytes_saved", result.BytesSaved()).
		Str("output", result.OutputPath).
		Msg("processed")

	completed := map[string]any{
		"task_id":      payload.TaskID,
		"status":       domain.TaskStatusSucceeded,
		"source_path":  payload.Task.SourcePath,
		"requested_at": payload.RequestedAt,
		"completed_at": time.Now().UTC(),
		"result":       result,
	}
	if objectKey != "" {
		completed["object_key"] = objectKey
	}
	s.dispatchWebhook(ctx, payload, webhook.EventTaskCompleted, completed)

	outcome = domain.TaskStatusSucceeded
	span.SetStatus(codes.Ok, "processed")
	return nil
}

// isPermanent reports failures that a retry cannot fix.
func isPermanent(err error) bool {
	return errors.Is(err, codec.ErrUnreadableImage) ||
		errors.Is(err, codec.ErrEncodeFailure) ||
		errors.Is(err, domain.ErrInvalidTask)
}

func finalAttempt(ctx context.Context) bool {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return true
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	if !ok {
		return true
	}
	return retried >= maxRetry
}

func (s *Server) updateTaskStatus(ctx context.Context, taskID, status string) {
	if s.taskStore == nil {
		return
	}
	if _, err := s.taskStore.UpdateStatus(ctx, taskID, status); err != nil {
		s.log.Warn().Str("task_id", taskID).Str("status", status).Err(err).Msg("task status update failed")
	}
}

func (s *Server) saveResult(ctx context.Context, taskID string, result *domain.TaskResult, taskErr string) {
	if s.taskStore == nil {
		return
	}
	if _, err := s.taskStore.SaveResult(ctx, taskID, result, taskErr); err != nil {
		s.log.Warn().Str("task_id", taskID).Err(err).Msg("task result write failed")
	}
}

// dispatchWebhook only logs delivery failures; it never fails the task.
func (s *Server) dispatchWebhook(ctx context.Context, payload queue.OptimizeImagePayload, event string, body map[string]any) {
	if payload.WebhookURL == "" || s.webhookClient == nil {
		return
	}
	if err := s.webhookClient.Send(ctx, payload.WebhookURL, event, body); err != nil {
		s.log.Warn().Str("task_id", payload.TaskID).Str("event", event).Err(err).Msg("webhook delivery failed")
	}
}
