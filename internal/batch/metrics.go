package batch

import "time"

// Metrics captures job-level telemetry.
type Metrics interface {
	// AddRead increments the count of items read.
	AddRead(job string, count int)
	// AddWritten increments the count of items written.
	AddWritten(job string, count int)
	// AddSkipped increments the count of skipped items.
	AddSkipped(job string, count int)
	// AddRetries increments the count of retried operations.
	AddRetries(job string, count int)
	// ObserveJob records the outcome and duration of a job execution.
	ObserveJob(job string, status Status, duration time.Duration)
}

// NopMetrics is a no-op metrics recorder.
type NopMetrics struct{}

// AddRead implements Metrics.
func (NopMetrics) AddRead(string, int) {}

// AddWritten implements Metrics.
func (NopMetrics) AddWritten(string, int) {}

// AddSkipped implements Metrics.
func (NopMetrics) AddSkipped(string, int) {}

// AddRetries implements Metrics.
func (NopMetrics) AddRetries(string, int) {}

// ObserveJob implements Metrics.
func (NopMetrics) ObserveJob(string, Status, time.Duration) {}
