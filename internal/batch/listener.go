package batch

import "context"

// SkipListener is told about every skipped item. An error returned by the
// listener fails the step.
type SkipListener[I any] interface {
	// OnSkipInRead is called when the reader failed; the item is unknown.
	OnSkipInRead(ctx context.Context, err error) error
	OnSkipInProcess(ctx context.Context, item I, err error) error
	OnSkipInWrite(ctx context.Context, item I, err error) error
}

// NopSkipListener ignores skips.
type NopSkipListener[I any] struct{}

func (NopSkipListener[I]) OnSkipInRead(context.Context, error) error { return nil }

func (NopSkipListener[I]) OnSkipInProcess(context.Context, I, error) error { return nil }

func (NopSkipListener[I]) OnSkipInWrite(context.Context, I, error) error { return nil }

// StepListener wraps a step execution. AfterStep runs whether or not the
// step succeeded; stepErr is the step's error, if any.
type StepListener interface {
	BeforeStep(ctx context.Context, exec *StepExecution) error
	AfterStep(ctx context.Context, exec *StepExecution, stepErr error) error
}
