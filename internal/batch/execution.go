package batch

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a job or step execution.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

var transitions = map[Status][]Status{
	StatusPending: {StatusRunning},
	StatusRunning: {StatusCompleted, StatusFailed},
}

// CanTransition reports whether an execution may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// JobExecution is one run of a job for a key.
type JobExecution struct {
	ID          int64
	JobName     string
	JobKey      string
	TraceID     string
	Status      Status
	ExitMessage string
	StartedAt   time.Time
	FinishedAt  time.Time
	Steps       []*StepExecution
}

func NewJobExecution(jobName, jobKey, traceID string) *JobExecution {
	return &JobExecution{
		JobName: jobName,
		JobKey:  jobKey,
		TraceID: traceID,
		Status:  StatusPending,
	}
}

func (e *JobExecution) transition(to Status) error {
	if !CanTransition(e.Status, to) {
		return fmt.Errorf("%w: job %s %s -> %s", ErrInvalidTransition, e.JobName, e.Status, to)
	}
	e.Status = to
	return nil
}

// Start moves a pending execution to running.
func (e *JobExecution) Start(now time.Time) error {
	if err := e.transition(StatusRunning); err != nil {
		return err
	}
	e.StartedAt = now
	return nil
}

// Finish completes the execution, or fails it when err is non-nil.
func (e *JobExecution) Finish(now time.Time, err error) error {
	to := StatusCompleted
	if err != nil {
		to = StatusFailed
		e.ExitMessage = err.Error()
	}
	if terr := e.transition(to); terr != nil {
		return terr
	}
	e.FinishedAt = now
	return nil
}

func (e *JobExecution) newStep(name string) *StepExecution {
	s := &StepExecution{StepName: name, JobName: e.JobName, Status: StatusPending}
	e.Steps = append(e.Steps, s)
	return s
}

// ReadCount sums the items read by every step.
func (e *JobExecution) ReadCount() int {
	n := 0
	for _, s := range e.Steps {
		n += s.ReadCount
	}
	return n
}

// WriteCount sums the items written by every step.
func (e *JobExecution) WriteCount() int {
	n := 0
	for _, s := range e.Steps {
		n += s.WriteCount
	}
	return n
}

// SkipCount sums the items skipped by every step.
func (e *JobExecution) SkipCount() int {
	n := 0
	for _, s := range e.Steps {
		n += s.SkipCount()
	}
	return n
}

// StepExecution holds the counters of one step within a job execution.
type StepExecution struct {
	StepName         string
	JobName          string
	Status           Status
	ReadCount        int
	WriteCount       int
	ReadSkipCount    int
	ProcessSkipCount int
	WriteSkipCount   int
	CommitCount      int
	RollbackCount    int
	StartedAt        time.Time
	FinishedAt       time.Time
}

// SkipCount is the number of items skipped in any stage.
func (s *StepExecution) SkipCount() int {
	return s.ReadSkipCount + s.ProcessSkipCount + s.WriteSkipCount
}
