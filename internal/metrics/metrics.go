// Package metrics exposes Prometheus collectors for activations and the job
// queue.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/PortNumber53/tryout-admin/backend/internal/activation"
	"github.com/PortNumber53/tryout-admin/backend/internal/models"
	"github.com/PortNumber53/tryout-admin/backend/internal/worker"
)

const namespace = "tryout_admin"

// Metrics owns a registry and the collectors registered on it.
type Metrics struct {
	registry *prometheus.Registry

	activations      *prometheus.CounterVec
	activationErrors *prometheus.CounterVec
	jobs             *prometheus.CounterVec
	jobDuration      *prometheus.HistogramVec
	expiredSwept     prometheus.Counter
}

// New builds the collectors on a fresh registry, along with the Go runtime
// and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		activations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "activations_total",
			Help:      "Transaction status changes applied, by subscription outcome.",
		}, []string{"outcome"}),
		activationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "activation_errors_total",
			Help:      "Transaction status changes rejected or failed, by error kind.",
		}, []string{"kind"}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Queue jobs by type and result.",
		}, []string{"job_type", "result"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Time spent running queue job handlers.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"job_type"}),
		expiredSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscriptions_expired_total",
			Help:      "Subscriptions flagged inactive by the expiry sweep.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.activations,
		m.activationErrors,
		m.jobs,
		m.jobDuration,
		m.expiredSwept,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry is exposed for tests and for callers registering extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveActivation implements activation.Recorder.
func (m *Metrics) ObserveActivation(outcome activation.Outcome, err error) {
	if err != nil {
		m.activationErrors.WithLabelValues(activation.ErrorKind(err)).Inc()
		return
	}
	m.activations.WithLabelValues(string(outcome)).Inc()
}

// ObserveExpirySweep implements worker.SweepRecorder.
func (m *Metrics) ObserveExpirySweep(expired int64) {
	m.expiredSwept.Add(float64(expired))
}

// JobHooks returns worker instrumentation feeding the job collectors.
func (m *Metrics) JobHooks() *worker.Instrumentation {
	return &worker.Instrumentation{
		OnEnqueue: func(job *models.Job) {
			m.jobs.WithLabelValues(job.JobType, "enqueued").Inc()
		},
		OnComplete: func(job *models.Job, d time.Duration) {
			m.jobs.WithLabelValues(job.JobType, "completed").Inc()
			m.jobDuration.WithLabelValues(job.JobType).Observe(d.Seconds())
		},
		OnFail: func(job *models.Job, err error, d time.Duration) {
			m.jobs.WithLabelValues(job.JobType, "failed").Inc()
			m.jobDuration.WithLabelValues(job.JobType).Observe(d.Seconds())
		},
		OnRetry: func(job *models.Job, after time.Duration) {
			m.jobs.WithLabelValues(job.JobType, "retried").Inc()
		},
	}
}
