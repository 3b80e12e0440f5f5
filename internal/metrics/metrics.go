package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"reportbatch/internal/batch"
)

// Metrics records batch activity in Prometheus.
type Metrics struct {
	ItemsRead    *prometheus.CounterVec
	ItemsWritten *prometheus.CounterVec
	ItemsSkipped *prometheus.CounterVec
	Retries      *prometheus.CounterVec

	// Job executions by job and final status
	JobRuns     *prometheus.CounterVec
	JobDuration *prometheus.HistogramVec
}

var _ batch.Metrics = (*Metrics)(nil)

// New creates the batch metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ItemsRead: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "reportbatch_items_read_total",
			Help: "Items read by batch steps",
		}, []string{"job"}),

		ItemsWritten: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "reportbatch_items_written_total",
			Help: "Items committed by batch steps",
		}, []string{"job"}),

		ItemsSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "reportbatch_items_skipped_total",
			Help: "Items skipped and moved to the dead-letter store",
		}, []string{"job"}),

		Retries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "reportbatch_retries_total",
			Help: "Operations retried after a transient failure",
		}, []string{"job"}),

		JobRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "reportbatch_job_runs_total",
			Help: "Job executions by final status",
		}, []string{"job", "status"}),

		JobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "reportbatch_job_duration_seconds",
			Help:    "Duration of job executions",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300, 900, 1800},
		}, []string{"job"}),
	}
}

func (m *Metrics) AddRead(job string, count int) {
	if m != nil {
		m.ItemsRead.WithLabelValues(job).Add(float64(count))
	}
}

func (m *Metrics) AddWritten(job string, count int) {
	if m != nil {
		m.ItemsWritten.WithLabelValues(job).Add(float64(count))
	}
}

func (m *Metrics) AddSkipped(job string, count int) {
	if m != nil {
		m.ItemsSkipped.WithLabelValues(job).Add(float64(count))
	}
}

func (m *Metrics) AddRetries(job string, count int) {
	if m != nil {
		m.Retries.WithLabelValues(job).Add(float64(count))
	}
}

// ObserveJob records the outcome and duration of a job execution.
func (m *Metrics) ObserveJob(job string, status batch.Status, d time.Duration) {
	if m != nil {
		m.JobRuns.WithLabelValues(job, string(status)).Inc()
		m.JobDuration.WithLabelValues(job).Observe(d.Seconds())
	}
}
