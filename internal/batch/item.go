package batch

import "context"

// Reader yields one item per call and ErrEndOfInput when exhausted.
type Reader[I any] interface {
	Read(ctx context.Context) (I, error)
}

// RetryableReader is implemented by readers that stay on an item whose read
// failed, so the step can retry the read. SkipFailed moves past that item.
// Reads of other readers are never retried.
type RetryableReader interface {
	SkipFailed()
}

type Processor[I, O any] interface {
	Process(ctx context.Context, item I) (O, error)
}

// Writer persists a chunk. A Writer must be all-or-nothing per call.
type Writer[O any] interface {
	Write(ctx context.Context, items []O) error
}

type ReaderFunc[I any] func(ctx context.Context) (I, error)

func (f ReaderFunc[I]) Read(ctx context.Context) (I, error) { return f(ctx) }

type ProcessorFunc[I, O any] func(ctx context.Context, item I) (O, error)

func (f ProcessorFunc[I, O]) Process(ctx context.Context, item I) (O, error) { return f(ctx, item) }

type WriterFunc[O any] func(ctx context.Context, items []O) error

func (f WriterFunc[O]) Write(ctx context.Context, items []O) error { return f(ctx, items) }

// SliceReader reads the items of a slice in order.
type SliceReader[I any] struct {
	items []I
	pos   int
}

func NewSliceReader[I any](items []I) *SliceReader[I] {
	return &SliceReader[I]{items: items}
}

func (r *SliceReader[I]) Read(context.Context) (I, error) {
	var zero I
	if r.pos >= len(r.items) {
		return zero, ErrEndOfInput
	}
	item := r.items[r.pos]
	r.pos++
	return item, nil
}
