package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	jobTotal      *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec
	jobInFlight   prometheus.Gauge
	queueLag      *prometheus.HistogramVec
	queueDepth    *prometheus.GaugeVec
	oldestWaiting prometheus.Gauge
	requeuedTotal *prometheus.CounterVec
	retriesTotal  *prometheus.CounterVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	jobTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "analysis_jobs_total",
			Help:      "Total handled analysis jobs by status.",
		},
		[]string{"service", "status"},
	)
	jobDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "analysis_job_duration_seconds",
			Help:      "Analysis job duration in seconds by status.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 3, 5, 10, 30, 60, 120},
		},
		[]string{"service", "status"},
	)
	jobInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "analysis_jobs_in_flight",
			Help:      "Number of analysis jobs currently running in this worker.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between a job becoming runnable and being claimed.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)
	queueDepth := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "jobs",
			Help:      "Analysis jobs in the durable queue by state.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
		[]string{"state"},
	)
	oldestWaiting := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "oldest_ready_seconds",
			Help:      "Age of the oldest runnable job.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	requeuedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "stale_uploads_requeued_total",
			Help:      "Documents re-enqueued by the stale upload sweeper.",
		},
		[]string{"service"},
	)
	retriesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "retries_total",
			Help:      "Retried outbound operations.",
		},
		[]string{"service", "operation"},
	)

	registry.MustRegister(jobTotal, jobDuration, jobInFlight, queueLag, queueDepth, oldestWaiting, requeuedTotal, retriesTotal)

	return &WorkerMetrics{
		registry:      registry,
		jobTotal:      jobTotal,
		jobDuration:   jobDuration,
		jobInFlight:   jobInFlight,
		queueLag:      queueLag,
		queueDepth:    queueDepth,
		oldestWaiting: oldestWaiting,
		requeuedTotal: requeuedTotal,
		retriesTotal:  retriesTotal,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *WorkerMetrics) StartJob() {
	m.jobInFlight.Inc()
}

func (m *WorkerMetrics) FinishJob(service string, duration time.Duration, err error) {
	m.jobInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.jobTotal.WithLabelValues(service, status).Inc()
	m.jobDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveQueueLag(service string, lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(service).Observe(lag.Seconds())
}

func (m *WorkerMetrics) SetQueueDepth(ready, running int, oldest time.Duration) {
	m.queueDepth.WithLabelValues("ready").Set(float64(ready))
	m.queueDepth.WithLabelValues("running").Set(float64(running))
	m.oldestWaiting.Set(oldest.Seconds())
}

func (m *WorkerMetrics) RecordRequeued(service string, n int) {
	if n <= 0 {
		return
	}
	m.requeuedTotal.WithLabelValues(service).Add(float64(n))
}

func (m *WorkerMetrics) RecordRetry(service, operation string) {
	m.retriesTotal.WithLabelValues(service, operation).Inc()
}
