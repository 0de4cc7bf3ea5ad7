package worker

import (
	"net/http"

	"github.com/dunamismax/optimg/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry          *prometheus.Registry
	tasksTotal        *prometheus.CounterVec
	taskDuration      *prometheus.HistogramVec
	activeTasks       prometheus.Gauge
	outcomesTotal     *prometheus.CounterVec
	sourceBytesTotal  prometheus.Counter
	bytesSavedTotal   prometheus.Counter
	downsizedTotal    prometheus.Counter
	exifRetainedTotal prometheus.Counter
	publishedTotal    prometheus.Counter
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &metrics{
		registry: registry,
		tasksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "optimg_worker_tasks_total",
			Help: "Total optimize tasks by final status.",
		}, []string{"status"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "optimg_worker_task_duration_seconds",
			Help:    "Processing duration of each optimize task.",
			Buckets: prometheus.DefBuckets,
		}, []string{"status"}),
		activeTasks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "optimg_worker_active_tasks",
			Help: "Optimize tasks currently running in the worker.",
		}),
		outcomesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "optimg_worker_outcomes_total",
			Help: "Successful tasks by gate outcome (optimized or kept_original).",
		}, []string{"outcome"}),
		sourceBytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "optimg_usage_source_bytes_total",
			Help: "Total source bytes read by successful tasks.",
		}),
		bytesSavedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "optimg_usage_bytes_saved_total",
			Help: "Total bytes saved across successful tasks.",
		}),
		downsizedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "optimg_worker_downsized_total",
			Help: "Successful tasks whose image was downsized.",
		}),
		exifRetainedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "optimg_worker_exif_retained_total",
			Help: "Successful tasks whose output carries transplanted EXIF.",
		}),
		publishedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "optimg_worker_outputs_published_total",
			Help: "Outputs copied to object storage.",
		}),
	}

	registry.MustRegister(
		m.tasksTotal,
		m.taskDuration,
		m.activeTasks,
		m.outcomesTotal,
		m.sourceBytesTotal,
		m.bytesSavedTotal,
		m.downsizedTotal,
		m.exifRetainedTotal,
		m.publishedTotal,
	)
	return m
}

func (m *metrics) observeResult(result domain.TaskResult) {
	outcome := "kept_original"
	if result.WasOptimized {
		outcome = "optimized"
	}
	m.outcomesTotal.WithLabelValues(outcome).Inc()
	m.sourceBytesTotal.Add(float64(result.OriginalSize))
	m.bytesSavedTotal.Add(float64(result.BytesSaved()))
	if result.WasDownsized {
		m.downsizedTotal.Inc()
	}
	if result.HasMetadata {
		m.exifRetainedTotal.Inc()
	}
}

func (m *metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
