package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reportbatch/internal/batch"
)

func TestMetricsRecordsItemCounts(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.AddRead("monthly-report", 3)
	m.AddWritten("monthly-report", 2)
	m.AddSkipped("monthly-report", 1)
	m.AddRetries("monthly-report", 2)
	m.AddRead("dead-letter-recovery", 1)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.ItemsRead.WithLabelValues("monthly-report")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ItemsRead.WithLabelValues("dead-letter-recovery")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ItemsWritten.WithLabelValues("monthly-report")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ItemsSkipped.WithLabelValues("monthly-report")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Retries.WithLabelValues("monthly-report")))
}

func TestMetricsObserveJob(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveJob("monthly-report", batch.StatusCompleted, 2*time.Second)
	m.ObserveJob("monthly-report", batch.StatusFailed, time.Second)
	m.ObserveJob("monthly-report", batch.StatusCompleted, time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.JobRuns.WithLabelValues("monthly-report", "COMPLETED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobRuns.WithLabelValues("monthly-report", "FAILED")))

	expected := `
# HELP reportbatch_job_runs_total Job executions by final status
# TYPE reportbatch_job_runs_total counter
reportbatch_job_runs_total{job="monthly-report",status="COMPLETED"} 2
reportbatch_job_runs_total{job="monthly-report",status="FAILED"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "reportbatch_job_runs_total"))
	assert.Equal(t, 1, testutil.CollectAndCount(m.JobDuration))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.AddRead("job", 1)
		m.ObserveJob("job", batch.StatusCompleted, time.Second)
	})
}
