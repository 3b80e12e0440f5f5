package batch

import (
	"context"
	"errors"
	"time"
)

const (
	DefaultChunkSize  = 100
	DefaultRetryLimit = 3
	DefaultSkipLimit  = 100
)

// Action defines how a failed item should be handled.
type Action int

const (
	// ActionFatal fails the step.
	ActionFatal Action = iota
	// ActionRetry re-executes the failed operation while attempts remain.
	ActionRetry
	// ActionSkip drops the item and reports it to the SkipListener.
	ActionSkip
)

func (a Action) String() string {
	switch a {
	case ActionRetry:
		return "retry"
	case ActionSkip:
		return "skip"
	default:
		return "fatal"
	}
}

// Classifier decides how an error is handled.
type Classifier func(err error) Action

// Policy is the fault tolerance configuration of a ChunkStep.
type Policy struct {
	// RetryLimit is the number of attempts, including the first one, made
	// for an operation failing with a retryable error.
	RetryLimit int
	// SkipLimit is the number of items a step execution may skip.
	SkipLimit int
	// Backoff is the pause between attempts.
	Backoff    time.Duration
	Classifier Classifier
}

// FaultTolerant returns the policy used by the report job.
func FaultTolerant(classifier Classifier) Policy {
	return Policy{
		RetryLimit: DefaultRetryLimit,
		SkipLimit:  DefaultSkipLimit,
		Classifier: classifier,
	}
}

// Strict returns a policy where every failure is fatal.
func Strict() Policy {
	return Policy{RetryLimit: 1}
}

func (p Policy) withDefaults() Policy {
	if p.RetryLimit < 1 {
		p.RetryLimit = 1
	}
	if p.SkipLimit < 0 {
		p.SkipLimit = 0
	}
	return p
}

func (p Policy) classify(err error) Action {
	var fatal *fatalError
	if errors.As(err, &fatal) {
		return ActionFatal
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ActionFatal
	}
	if p.Classifier == nil {
		return ActionFatal
	}
	return p.Classifier(err)
}

// onFailure resolves the action for an error that survived retrying: a
// retryable error at this point has exhausted its attempts and is skipped.
func (p Policy) onFailure(err error) Action {
	if a := p.classify(err); a != ActionRetry {
		return a
	}
	return ActionSkip
}
