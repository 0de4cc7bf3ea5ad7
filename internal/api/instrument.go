package api

import (
	"net/http"

	"github.com/dunamismax/optimg/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// submitOutcome is the terminal state of one POST /v1/tasks call.
type submitOutcome string

const (
	submitAccepted      submitOutcome = "accepted"
	submitInvalid       submitOutcome = "invalid_request"
	submitMissingSource submitOutcome = "missing_source"
	submitRateLimited   submitOutcome = "rate_limited"
	submitStoreFailed   submitOutcome = "store_failed"
	submitEnqueueFailed submitOutcome = "enqueue_failed"
)

var submitOutcomes = []submitOutcome{
	submitAccepted,
	submitInvalid,
	submitMissingSource,
	submitRateLimited,
	submitStoreFailed,
	submitEnqueueFailed,
}

type apiMetrics struct {
	registry    *prometheus.Registry
	requests    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	submissions *prometheus.CounterVec
	options     *prometheus.CounterVec
	enqueued    *prometheus.CounterVec
}

func newAPIMetrics() *apiMetrics {
	m := &apiMetrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "optimg",
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "HTTP requests by route pattern, method and status code.",
		}, []string{"route", "method", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "optimg",
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1},
		}, []string{"route", "method"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "optimg",
			Subsystem: "api",
			Name:      "task_submissions_total",
			Help:      "Task submissions by outcome.",
		}, []string{"outcome"}),
		options: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "optimg",
			Subsystem: "api",
			Name:      "task_options_total",
			Help:      "Optional transformations requested by accepted tasks.",
		}, []string{"option"}),
		enqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "optimg",
			Subsystem: "queue",
			Name:      "tasks_enqueued_total",
			Help:      "Optimize tasks handed to the queue.",
		}, []string{"queue"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.latency,
		m.submissions,
		m.options,
		m.enqueued,
	)
	// Export every outcome from the first scrape so rate() works on rare ones.
	for _, o := range submitOutcomes {
		m.submissions.WithLabelValues(string(o))
	}
	return m
}

// instrument wraps h with request counting and latency for route.
func (m *apiMetrics) instrument(route string, h http.Handler) http.Handler {
	labels := prometheus.Labels{"route": route}
	return promhttp.InstrumentHandlerCounter(m.requests.MustCurryWith(labels),
		promhttp.InstrumentHandlerDuration(m.latency.MustCurryWith(labels), h))
}

func (m *apiMetrics) submitted(o submitOutcome) {
	m.submissions.WithLabelValues(string(o)).Inc()
}

// accepted records which optional steps an accepted task asked for.
func (m *apiMetrics) accepted(t domain.Task, queue string) {
	m.submitted(submitAccepted)
	m.enqueued.WithLabelValues(queue).Inc()
	for option, on := range map[string]bool{
		"resize":               t.WantsResize(),
		"grayscale":            t.Grayscale,
		"keep_metadata":        t.KeepMetadata,
		"skip_size_comparison": t.SkipSizeCompare,
	} {
		if on {
			m.options.WithLabelValues(option).Inc()
		}
	}
}

func (m *apiMetrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
