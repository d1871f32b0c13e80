// Package jobmetrics instruments the asynq handlers run by the worker.
package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	statusSuccess = "success"
	statusFailure = "failure"
)

// Metrics holds the job collectors. A nil *Metrics records nothing.
type Metrics struct {
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	items       *prometheus.CounterVec
	lastSuccess *prometheus.GaugeVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the collectors on registerer, or once on the default
// Prometheus registerer when it is nil.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer != nil {
		return register(registerer)
	}
	defaultOnce.Do(func() { defaultMetrics = register(prometheus.DefaultRegisterer) })
	return defaultMetrics
}

func register(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voyage_jobs_total",
			Help: "Job executions by task type and status.",
		}, []string{"job", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voyage_job_duration_seconds",
			Help:    "Job execution time in seconds.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		}, []string{"job"}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voyage_job_items_total",
			Help: "Entities handled by jobs, e.g. queued calls or pruned idempotency keys.",
		}, []string{"job", "kind"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "voyage_job_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run per job.",
		}, []string{"job"}),
	}
	registerer.MustRegister(m.runs, m.duration, m.items, m.lastSuccess)
	return m
}

// Run measures one execution of a job.
type Run struct {
	metrics *Metrics
	job     string
	start   time.Time
	now     func() time.Time
}

// Track starts measuring a run of job.
func (m *Metrics) Track(job string) *Run {
	return &Run{metrics: m, job: job, start: time.Now(), now: time.Now}
}

// Items counts n entities of kind for this run. Non-positive counts are ignored.
func (r *Run) Items(kind string, n int) {
	if r == nil || r.metrics == nil || n <= 0 {
		return
	}
	r.metrics.items.WithLabelValues(r.job, kind).Add(float64(n))
}

// End records the outcome and hands err back so it can close a deferred
// assignment.
func (r *Run) End(err error) error {
	if r == nil || r.metrics == nil {
		return err
	}
	finished := r.now()
	status := statusSuccess
	if err != nil {
		status = statusFailure
	} else {
		r.metrics.lastSuccess.WithLabelValues(r.job).Set(float64(finished.Unix()))
	}
	r.metrics.runs.WithLabelValues(r.job, status).Inc()
	r.metrics.duration.WithLabelValues(r.job).Observe(finished.Sub(r.start).Seconds())
	return err
}
