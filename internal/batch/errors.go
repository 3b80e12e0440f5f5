package batch

import "errors"

var (
	// ErrEndOfInput is returned by a Reader once it has no more items.
	ErrEndOfInput = errors.New("end of input")
	// ErrSkipLimitExceeded fails a step that would skip more items than allowed.
	ErrSkipLimitExceeded = errors.New("skip limit exceeded")
	// ErrJobRunning rejects a launch while the same job is still running.
	ErrJobRunning = errors.New("job execution already running")
	// ErrJobAlreadyComplete rejects a launch of a key that already completed.
	ErrJobAlreadyComplete = errors.New("job instance already complete")
	// ErrInvalidTransition reports an illegal execution status change.
	ErrInvalidTransition = errors.New("invalid execution status transition")
)

type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return e.err.Error() }

func (e *fatalError) Unwrap() error { return e.err }

// Fatal marks err as fatal regardless of how the step's Policy would
// classify the wrapped error.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &fatalError{err: err}
}
