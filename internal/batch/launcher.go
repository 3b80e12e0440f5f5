package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"reportbatch/internal/core"
	applog "reportbatch/internal/log"
)

// Job is a named, ordered list of steps.
type Job struct {
	Name  string
	Steps []Step
}

// LauncherConfig configures a Launcher.
type LauncherConfig struct {
	Repository JobRepository
	Clock      core.Clock
	Metrics    Metrics
	Logger     *slog.Logger
}

func (c LauncherConfig) withDefaults() LauncherConfig {
	if c.Repository == nil {
		c.Repository = NewMemoryJobRepository()
	}
	if c.Clock == nil {
		c.Clock = core.SystemClock{}
	}
	if c.Metrics == nil {
		c.Metrics = NopMetrics{}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Launcher runs jobs synchronously, one execution per job name at a time.
type Launcher struct {
	cfg LauncherConfig

	mu      sync.Mutex
	running map[string]*semaphore.Weighted
}

func NewLauncher(cfg LauncherConfig) *Launcher {
	return &Launcher{
		cfg:     cfg.withDefaults(),
		running: make(map[string]*semaphore.Weighted),
	}
}

func (l *Launcher) slot(job string) *semaphore.Weighted {
	l.mu.Lock()
	defer l.mu.Unlock()
	sem, ok := l.running[job]
	if !ok {
		sem = semaphore.NewWeighted(1)
		l.running[job] = sem
	}
	return sem
}

// Run executes job for key and blocks until it finishes. The returned
// execution is nil when the launch itself was rejected.
func (l *Launcher) Run(ctx context.Context, job Job, key string) (*JobExecution, error) {
	sem := l.slot(job.Name)
	if !sem.TryAcquire(1) {
		return nil, fmt.Errorf("%s: %w", job.Name, ErrJobRunning)
	}
	defer sem.Release(1)

	exec := NewJobExecution(job.Name, key, uuid.NewString())
	if err := exec.Start(l.cfg.Clock.Now()); err != nil {
		return nil, err
	}
	if err := l.cfg.Repository.CreateJobExecution(ctx, exec); err != nil {
		return nil, fmt.Errorf("create job execution: %w", err)
	}

	ctx = applog.WithTraceID(applog.WithJob(ctx, job.Name), exec.TraceID)
	ctx, span := tracer.Start(ctx, "batch.job", trace.WithAttributes(
		attribute.String("batch.job", job.Name),
		attribute.String("batch.job_key", key),
		attribute.String("batch.trace_id", exec.TraceID),
	))
	defer span.End()

	logger := l.cfg.Logger.With(applog.FieldComponent, applog.ComponentBatch)
	logger.InfoContext(ctx, "Job started", "key", key, applog.FieldExecutionID, exec.ID)

	runErr := l.runSteps(ctx, exec, job.Steps)

	finished := l.cfg.Clock.Now()
	if err := exec.Finish(finished, runErr); err != nil {
		runErr = errors.Join(runErr, err)
	}
	// The outcome is recorded even when ctx was cancelled mid-run.
	if err := l.cfg.Repository.UpdateJobExecution(context.WithoutCancel(ctx), exec); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("update job execution: %w", err))
	}
	l.cfg.Metrics.ObserveJob(job.Name, exec.Status, finished.Sub(exec.StartedAt))

	fields := applog.NewFields().
		WithStepCounts(exec.ReadCount(), exec.WriteCount(), exec.SkipCount()).
		WithError(runErr).
		ToSlice()
	fields = append(fields, "status", exec.Status, applog.FieldExecutionID, exec.ID)
	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
		logger.ErrorContext(ctx, "Job failed", fields...)
		return exec, runErr
	}
	logger.InfoContext(ctx, "Job completed", fields...)
	return exec, nil
}

func (l *Launcher) runSteps(ctx context.Context, exec *JobExecution, steps []Step) error {
	for _, step := range steps {
		se := exec.newStep(step.Name())
		if err := step.Execute(ctx, se); err != nil {
			return fmt.Errorf("step %s: %w", step.Name(), err)
		}
	}
	return nil
}
