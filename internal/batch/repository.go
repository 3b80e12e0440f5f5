package batch

import (
	"context"
	"fmt"
	"sync"
)

// JobRepository persists job executions.
type JobRepository interface {
	// CreateJobExecution stores a running execution and assigns its ID. It
	// returns ErrJobRunning or ErrJobAlreadyComplete when an execution with
	// the same job name and key is running or completed.
	CreateJobExecution(ctx context.Context, exec *JobExecution) error
	UpdateJobExecution(ctx context.Context, exec *JobExecution) error
}

// MemoryJobRepository keeps executions in memory.
type MemoryJobRepository struct {
	mu         sync.Mutex
	nextID     int64
	executions []JobExecution
}

func NewMemoryJobRepository() *MemoryJobRepository {
	return &MemoryJobRepository{}
}

func (r *MemoryJobRepository) CreateJobExecution(_ context.Context, exec *JobExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.executions {
		if e.JobName != exec.JobName || e.JobKey != exec.JobKey {
			continue
		}
		switch e.Status {
		case StatusRunning:
			return fmt.Errorf("%s [%s]: %w", exec.JobName, exec.JobKey, ErrJobRunning)
		case StatusCompleted:
			return fmt.Errorf("%s [%s]: %w", exec.JobName, exec.JobKey, ErrJobAlreadyComplete)
		}
	}

	r.nextID++
	exec.ID = r.nextID
	r.executions = append(r.executions, *exec)
	return nil
}

func (r *MemoryJobRepository) UpdateJobExecution(_ context.Context, exec *JobExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.executions {
		if r.executions[i].ID == exec.ID {
			r.executions[i] = *exec
			return nil
		}
	}
	return fmt.Errorf("job execution %d not found", exec.ID)
}

// Executions returns a snapshot of the stored executions, oldest first.
func (r *MemoryJobRepository) Executions() []JobExecution {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]JobExecution, len(r.executions))
	copy(out, r.executions)
	return out
}
