package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vidmill/internal/queue"
)

const namespace = "vidmill"

// Metrics holds every collector the daemon publishes.
type Metrics struct {
	gatherer prometheus.Gatherer

	JobsEnqueued   prometheus.Counter
	JobsRejected   *prometheus.CounterVec
	JobsFinished   *prometheus.CounterVec
	JobsPending    prometheus.Gauge
	JobsProcessing prometheus.Gauge
	JobDuration    prometheus.Histogram
	StaleCallbacks prometheus.Counter

	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
}

// New registers the collectors with reg. A nil reg uses the default
// Prometheus registry.
func New(reg *prometheus.Registry) *Metrics {
	var (
		registerer prometheus.Registerer = prometheus.DefaultRegisterer
		gatherer   prometheus.Gatherer   = prometheus.DefaultGatherer
	)
	if reg != nil {
		registerer, gatherer = reg, reg
	}
	factory := promauto.With(registerer)

	return &Metrics{
		gatherer: gatherer,

		JobsEnqueued: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_enqueued_total",
			Help:      "Total number of jobs accepted into the queue",
		}),
		JobsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_rejected_total",
			Help:      "Total number of batch items rejected at enqueue time",
		}, []string{"reason"}),
		JobsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_finished_total",
			Help:      "Total number of jobs that reached a terminal status",
		}, []string{"status", "reason"}),
		JobsPending: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_pending",
			Help:      "Number of jobs waiting to be processed",
		}),
		JobsProcessing: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_processing",
			Help:      "Number of jobs currently processing (0 or 1)",
		}),
		JobDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Processing wall time of finished jobs",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800, 3600},
		}),
		StaleCallbacks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_callbacks_total",
			Help:      "Executor results dropped because their job was no longer processing",
		}),

		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of API requests",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "API request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		HTTPRequestsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "Number of API requests currently being served",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// JobEnqueued implements queue.Observer.
func (m *Metrics) JobEnqueued(queue.Job) {
	m.JobsEnqueued.Inc()
}

// JobRejected implements queue.Observer.
func (m *Metrics) JobRejected(reason string) {
	m.JobsRejected.WithLabelValues(reason).Inc()
}

// JobStarted implements queue.Observer. Depth gauges are driven by
// QueueDepth.
func (m *Metrics) JobStarted(queue.Job) {}

// JobFinished implements queue.Observer.
func (m *Metrics) JobFinished(job queue.Job) {
	m.JobsFinished.WithLabelValues(string(job.Status), FinishReason(job)).Inc()
	if d := job.Duration(); d > 0 {
		m.JobDuration.Observe(d.Seconds())
	}
}

// StaleCallback implements queue.Observer.
func (m *Metrics) StaleCallback(string) {
	m.StaleCallbacks.Inc()
}

// QueueDepth implements queue.Observer.
func (m *Metrics) QueueDepth(pending, processing int) {
	m.JobsPending.Set(float64(pending))
	m.JobsProcessing.Set(float64(processing))
}

// FinishReason classifies a terminal job for the jobs_finished_total label.
func FinishReason(job queue.Job) string {
	switch {
	case job.Status == queue.StatusCompleted:
		return "completed"
	case job.IsCancelled():
		return "cancelled"
	case job.Error == queue.TimeoutMessage:
		return "timeout"
	case job.Error == queue.StoppedMessage:
		return "stopped"
	default:
		return "error"
	}
}

var _ queue.Observer = (*Metrics)(nil)
