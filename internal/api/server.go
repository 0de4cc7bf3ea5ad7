package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dunamismax/optimg/internal/domain"
	"github.com/dunamismax/optimg/internal/queue"
	"github.com/dunamismax/optimg/internal/store"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

type Server struct {
	log          zerolog.Logger
	queueClient  queueEnqueuer
	taskStore    store.TaskStore
	rateLimiter  RateLimiter
	clientHeader string
	metrics      *apiMetrics
	tracer       trace.Tracer
	mux          *http.ServeMux
}

type queueEnqueuer interface {
	EnqueueOptimize(ctx context.Context, payload queue.OptimizeImagePayload) (*asynq.TaskInfo, error)
}

type Option func(*Server)

// WithRateLimiter limits task submissions per client. The client is the
// value of header, or the remote host when the header is absent.
func WithRateLimiter(l RateLimiter, header string) Option {
	return func(s *Server) {
		s.rateLimiter = l
		if strings.TrimSpace(header) != "" {
			s.clientHeader = header
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Server) {
		s.tracer = t
	}
}

func NewServer(logger zerolog.Logger, queueClient queueEnqueuer, taskStore store.TaskStore, opts ...Option) *Server {
	s := &Server{
		log:          logger.With().Str("component", "api").Logger(),
		queueClient:  queueClient,
		taskStore:    taskStore,
		clientHeader: "X-User-ID",
		metrics:      newAPIMetrics(),
		mux:          http.NewServeMux(),
	}
	for _, o := range opts {
		o(s)
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.withTracing(s.mux)
}

func (s *Server) routes() {
	s.handle("GET /healthz", http.HandlerFunc(s.handleHealthz))
	s.handle("GET /metrics", s.metrics.handler())
	s.handle("POST /v1/tasks", s.limitSubmissions(s.handleCreateTask))
	s.handle("GET /v1/tasks/{id}", http.HandlerFunc(s.handleGetTask))
}

// handle registers h under pattern, labelled by the pattern's path.
func (s *Server) handle(pattern string, h http.Handler) {
	_, route, _ := strings.Cut(pattern, " ")
	s.mux.Handle(pattern, s.metrics.instrument(route, h))
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createTaskRequest struct {
	domain.Task
	WebhookURL string `json:"webhook_url,omitempty"`
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		s.metrics.submitted(submitInvalid)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := req.Task.Validate(); err != nil {
		s.metrics.submitted(submitInvalid)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := validateWebhookURL(req.WebhookURL); err != nil {
		s.metrics.submitted(submitInvalid)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := verifySourceExists(req.SourcePath); err != nil {
		s.metrics.submitted(submitMissingSource)
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}

	now := time.Now().UTC()
	task := req.Task
	task.ID = uuid.NewString()

	record := domain.TaskRecord{
		ID:         task.ID,
		Status:     domain.TaskStatusQueued,
		Task:       task,
		WebhookURL: req.WebhookURL,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.taskStore.Create(r.Context(), record); err != nil {
		s.log.Error().Str("task_id", task.ID).Err(err).Msg("create task failed")
		s.metrics.submitted(submitStoreFailed)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create task"})
		return
	}

	info, err := s.queueClient.EnqueueOptimize(r.Context(), queue.OptimizeImagePayload{
		TaskID:      task.ID,
		Task:        task,
		WebhookURL:  req.WebhookURL,
		RequestedAt: now,
	})
	if err != nil {
		s.log.Error().Str("task_id", task.ID).Err(err).Msg("enqueue failed")
		s.metrics.submitted(submitEnqueueFailed)
		if _, saveErr := s.taskStore.SaveResult(r.Context(), task.ID, nil, "enqueue failed"); saveErr != nil {
			s.log.Warn().Str("task_id", task.ID).Err(saveErr).Msg("mark task failed")
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to enqueue task"})
		return
	}
	s.metrics.accepted(task, info.Queue)

	writeJSON(w, http.StatusAccepted, map[string]any{
		"task_id":     task.ID,
		"status":      domain.TaskStatusQueued,
		"queue":       info.Queue,
		"state":       info.State.String(),
		"enqueued_at": info.NextProcessAt,
		"status_url":  fmt.Sprintf("/v1/tasks/%s", task.ID),
	})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "task id is required"})
		return
	}

	record, ok, err := s.taskStore.Get(r.Context(), id)
	if err != nil {
		s.log.Error().Str("task_id", id).Err(err).Msg("fetch task failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load task"})
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "task not found"})
		return
	}

	writeJSON(w, http.StatusOK, record)
}

func verifySourceExists(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("source file is missing: %s", path)
		}
		return fmt.Errorf("source file check failed: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("source path is a directory: %s", path)
	}
	return nil
}

func validateWebhookURL(raw string) error {
	if raw == "" {
		return nil
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		return errors.New("webhook_url must be an http(s) URL")
	}
	return nil
}

func decodeJSON(r *http.Request, into any) error {
	const maxBodyBytes = 1 << 20
	limited := io.LimitReader(r.Body, maxBodyBytes)
	decoder := json.NewDecoder(limited)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(into); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return errors.New("invalid JSON body: multiple JSON values are not allowed")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
