package batch

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	applog "reportbatch/internal/log"
)

var (
	errTransient = errors.New("lock wait timeout")
	errDuplicate = errors.New("duplicate key")
	errBroken    = errors.New("broken invariant")
)

func classify(err error) Action {
	switch {
	case errors.Is(err, errTransient):
		return ActionRetry
	case errors.Is(err, errDuplicate):
		return ActionSkip
	default:
		return ActionFatal
	}
}

func intsUpTo(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i + 1
	}
	return out
}

type recordingWriter struct {
	mu      sync.Mutex
	fail    func(items []int) error
	calls   int
	commits [][]int
}

func (w *recordingWriter) Write(_ context.Context, items []int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if w.fail != nil {
		if err := w.fail(items); err != nil {
			return err
		}
	}
	w.commits = append(w.commits, slices.Clone(items))
	return nil
}

func (w *recordingWriter) written() []int {
	var out []int
	for _, c := range w.commits {
		out = append(out, c...)
	}
	return out
}

type skipRecord struct {
	stage string
	item  int
	err   error
}

type recordingSkipListener struct {
	skips []skipRecord
	err   error
}

func (l *recordingSkipListener) OnSkipInRead(_ context.Context, err error) error {
	l.skips = append(l.skips, skipRecord{stage: "read", err: err})
	return l.err
}

func (l *recordingSkipListener) OnSkipInProcess(_ context.Context, item int, err error) error {
	l.skips = append(l.skips, skipRecord{stage: "process", item: item, err: err})
	return l.err
}

func (l *recordingSkipListener) OnSkipInWrite(_ context.Context, item int, err error) error {
	l.skips = append(l.skips, skipRecord{stage: "write", item: item, err: err})
	return l.err
}

var identity = ProcessorFunc[int, int](func(_ context.Context, item int) (int, error) {
	return item, nil
})

func newStep(reader Reader[int], processor Processor[int, int], writer Writer[int], skips SkipListener[int], mutate ...func(*ChunkStepConfig[int, int])) *ChunkStep[int, int] {
	cfg := ChunkStepConfig[int, int]{
		Name:         "test-step",
		Reader:       reader,
		Processor:    processor,
		Writer:       writer,
		ChunkSize:    100,
		Policy:       FaultTolerant(classify),
		SkipListener: skips,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	return NewChunkStep(cfg)
}

func TestChunkStepCommitsPerChunk(t *testing.T) {
	writer := &recordingWriter{}
	step := newStep(NewSliceReader(intsUpTo(250)), identity, writer, nil)

	exec := &StepExecution{}
	require.NoError(t, step.Execute(context.Background(), exec))

	require.Len(t, writer.commits, 3)
	assert.Len(t, writer.commits[0], 100)
	assert.Len(t, writer.commits[1], 100)
	assert.Len(t, writer.commits[2], 50)
	assert.Equal(t, 250, exec.ReadCount)
	assert.Equal(t, 250, exec.WriteCount)
	assert.Equal(t, 3, exec.CommitCount)
	assert.Equal(t, StatusCompleted, exec.Status)
}

func TestChunkStepEmptyInput(t *testing.T) {
	writer := &recordingWriter{}
	step := newStep(NewSliceReader[int](nil), identity, writer, nil)

	exec := &StepExecution{}
	require.NoError(t, step.Execute(context.Background(), exec))
	assert.Zero(t, writer.calls)
	assert.Zero(t, exec.CommitCount)
}

func TestChunkStepRetriesTransientProcessFailure(t *testing.T) {
	attempts := 0
	processor := ProcessorFunc[int, int](func(_ context.Context, item int) (int, error) {
		if item == 2 {
			attempts++
			if attempts < 3 {
				return 0, errTransient
			}
		}
		return item, nil
	})
	writer := &recordingWriter{}
	skips := &recordingSkipListener{}
	step := newStep(NewSliceReader(intsUpTo(3)), processor, writer, skips)

	exec := &StepExecution{}
	require.NoError(t, step.Execute(context.Background(), exec))
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []int{1, 2, 3}, writer.written())
	assert.Empty(t, skips.skips)
}

func TestChunkStepSkipsAfterRetriesExhausted(t *testing.T) {
	attempts := 0
	processor := ProcessorFunc[int, int](func(_ context.Context, item int) (int, error) {
		if item == 2 {
			attempts++
			return 0, errTransient
		}
		return item, nil
	})
	writer := &recordingWriter{}
	skips := &recordingSkipListener{}
	step := newStep(NewSliceReader(intsUpTo(3)), processor, writer, skips)

	exec := &StepExecution{}
	require.NoError(t, step.Execute(context.Background(), exec))
	assert.Equal(t, DefaultRetryLimit, attempts)
	assert.Equal(t, []int{1, 3}, writer.written())
	require.Len(t, skips.skips, 1)
	assert.Equal(t, "process", skips.skips[0].stage)
	assert.Equal(t, 2, skips.skips[0].item)
	assert.ErrorIs(t, skips.skips[0].err, errTransient)
	assert.Equal(t, 1, exec.ProcessSkipCount)
}

func TestChunkStepIsolatesFailingWrite(t *testing.T) {
	writer := &recordingWriter{fail: func(items []int) error {
		if slices.Contains(items, 3) {
			return errDuplicate
		}
		return nil
	}}
	skips := &recordingSkipListener{}
	step := newStep(NewSliceReader(intsUpTo(5)), identity, writer, skips)

	exec := &StepExecution{}
	require.NoError(t, step.Execute(context.Background(), exec))

	assert.Equal(t, []int{1, 2, 4, 5}, writer.written())
	require.Len(t, skips.skips, 1)
	assert.Equal(t, skipRecord{stage: "write", item: 3, err: errDuplicate}, skips.skips[0])
	assert.Equal(t, 4, exec.WriteCount)
	assert.Equal(t, 1, exec.WriteSkipCount)
	assert.Equal(t, 1, exec.RollbackCount)
	// one failed chunk write plus one write per item
	assert.Equal(t, 6, writer.calls)
}

func TestChunkStepRetriesTransientChunkWrite(t *testing.T) {
	failures := 1
	writer := &recordingWriter{fail: func([]int) error {
		if failures > 0 {
			failures--
			return errTransient
		}
		return nil
	}}
	step := newStep(NewSliceReader(intsUpTo(4)), identity, writer, nil)

	exec := &StepExecution{}
	require.NoError(t, step.Execute(context.Background(), exec))
	require.Len(t, writer.commits, 1)
	assert.Equal(t, []int{1, 2, 3, 4}, writer.commits[0])
	assert.Equal(t, 2, writer.calls)
}

func TestChunkStepSkipsUnreadableItems(t *testing.T) {
	pos := 0
	reader := ReaderFunc[int](func(context.Context) (int, error) {
		pos++
		switch {
		case pos == 2:
			return 0, errDuplicate
		case pos > 3:
			return 0, ErrEndOfInput
		}
		return pos, nil
	})
	writer := &recordingWriter{}
	skips := &recordingSkipListener{}
	step := newStep(reader, identity, writer, skips)

	exec := &StepExecution{}
	require.NoError(t, step.Execute(context.Background(), exec))
	assert.Equal(t, []int{1, 3}, writer.written())
	require.Len(t, skips.skips, 1)
	assert.Equal(t, "read", skips.skips[0].stage)
	assert.Equal(t, 1, exec.ReadSkipCount)
}

func TestChunkStepEnforcesSkipLimit(t *testing.T) {
	processor := ProcessorFunc[int, int](func(_ context.Context, item int) (int, error) {
		return 0, errDuplicate
	})
	writer := &recordingWriter{}
	skips := &recordingSkipListener{}
	step := newStep(NewSliceReader(intsUpTo(5)), processor, writer, skips, func(c *ChunkStepConfig[int, int]) {
		c.Policy.SkipLimit = 2
	})

	exec := &StepExecution{}
	err := step.Execute(context.Background(), exec)
	require.ErrorIs(t, err, ErrSkipLimitExceeded)
	assert.Len(t, skips.skips, 2)
	assert.Equal(t, 2, exec.SkipCount())
	assert.Zero(t, writer.calls)
	assert.Equal(t, StatusFailed, exec.Status)
}

func TestChunkStepSkipLimitStopsLaterChunks(t *testing.T) {
	processor := ProcessorFunc[int, int](func(_ context.Context, item int) (int, error) {
		if item > 2 {
			return 0, errDuplicate
		}
		return item, nil
	})
	writer := &recordingWriter{}
	step := newStep(NewSliceReader(intsUpTo(10)), processor, writer, &recordingSkipListener{}, func(c *ChunkStepConfig[int, int]) {
		c.ChunkSize = 2
		c.Policy.SkipLimit = 3
	})

	err := step.Execute(context.Background(), &StepExecution{})
	require.ErrorIs(t, err, ErrSkipLimitExceeded)
	// first chunk committed, skips 3,4,5 consumed the budget, 6 aborts
	assert.Equal(t, []int{1, 2}, writer.written())
}

func TestChunkStepFatalErrorKeepsCommittedChunks(t *testing.T) {
	processor := ProcessorFunc[int, int](func(_ context.Context, item int) (int, error) {
		if item == 4 {
			return 0, errBroken
		}
		return item, nil
	})
	writer := &recordingWriter{}
	skips := &recordingSkipListener{}
	step := newStep(NewSliceReader(intsUpTo(6)), processor, writer, skips, func(c *ChunkStepConfig[int, int]) {
		c.ChunkSize = 3
	})

	exec := &StepExecution{}
	err := step.Execute(context.Background(), exec)
	require.ErrorIs(t, err, errBroken)
	assert.Equal(t, []int{1, 2, 3}, writer.written())
	assert.Empty(t, skips.skips)
	assert.Equal(t, 1, exec.CommitCount)
}

func TestChunkStepFatalWrapperOverridesClassifier(t *testing.T) {
	reader := ReaderFunc[int](func(context.Context) (int, error) {
		return 0, Fatal(errDuplicate)
	})
	step := newStep(reader, identity, &recordingWriter{}, &recordingSkipListener{})

	err := step.Execute(context.Background(), &StepExecution{})
	require.ErrorIs(t, err, errDuplicate)
}

func TestChunkStepSkipListenerFailureIsFatal(t *testing.T) {
	processor := ProcessorFunc[int, int](func(_ context.Context, item int) (int, error) {
		return 0, errDuplicate
	})
	skips := &recordingSkipListener{err: errors.New("dead letter store down")}
	step := newStep(NewSliceReader(intsUpTo(3)), processor, &recordingWriter{}, skips)

	err := step.Execute(context.Background(), &StepExecution{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dead letter store down")
	assert.Len(t, skips.skips, 1)
}

func TestChunkStepStrictPolicyFailsOnFirstError(t *testing.T) {
	attempts := 0
	writer := &recordingWriter{fail: func([]int) error {
		attempts++
		return errTransient
	}}
	step := newStep(NewSliceReader(intsUpTo(3)), identity, writer, nil, func(c *ChunkStepConfig[int, int]) {
		c.Policy = Strict()
	})

	err := step.Execute(context.Background(), &StepExecution{})
	require.ErrorIs(t, err, errTransient)
	assert.Equal(t, 1, attempts)
}

type recordingStepListener struct {
	before  int
	after   int
	lastErr error
}

func (l *recordingStepListener) BeforeStep(context.Context, *StepExecution) error {
	l.before++
	return nil
}

func (l *recordingStepListener) AfterStep(_ context.Context, _ *StepExecution, stepErr error) error {
	l.after++
	l.lastErr = stepErr
	return nil
}

func TestChunkStepRunsAfterStepOnFailure(t *testing.T) {
	processor := ProcessorFunc[int, int](func(context.Context, int) (int, error) {
		return 0, errBroken
	})
	listener := &recordingStepListener{}
	step := newStep(NewSliceReader(intsUpTo(1)), processor, &recordingWriter{}, nil, func(c *ChunkStepConfig[int, int]) {
		c.Listeners = []StepListener{listener}
	})

	err := step.Execute(context.Background(), &StepExecution{})
	require.ErrorIs(t, err, errBroken)
	assert.Equal(t, 1, listener.before)
	assert.Equal(t, 1, listener.after)
	assert.ErrorIs(t, listener.lastErr, errBroken)
}

func TestChunkStepStopsBetweenChunksWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	writer := &recordingWriter{fail: func([]int) error {
		cancel()
		return nil
	}}
	step := newStep(NewSliceReader(intsUpTo(4)), identity, writer, nil, func(c *ChunkStepConfig[int, int]) {
		c.ChunkSize = 2
	})

	err := step.Execute(ctx, &StepExecution{})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []int{1, 2}, writer.written())
}

func TestChunkStepFinishesStartedChunkWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	reads := 0
	reader := ReaderFunc[int](func(context.Context) (int, error) {
		reads++
		if reads == 1 {
			cancel()
		}
		if reads > 4 {
			return 0, ErrEndOfInput
		}
		return reads, nil
	})
	var writeCtxErr error
	writer := WriterFunc[int](func(ctx context.Context, items []int) error {
		writeCtxErr = ctx.Err()
		return nil
	})
	step := newStep(reader, identity, writer, nil, func(c *ChunkStepConfig[int, int]) {
		c.ChunkSize = 2
	})

	exec := &StepExecution{}
	err := step.Execute(ctx, exec)
	require.ErrorIs(t, err, context.Canceled)
	assert.NoError(t, writeCtxErr)
	assert.Equal(t, 2, exec.WriteCount)
}

// flakyReader stays on an item while its read fails.
type flakyReader struct {
	items    []int
	failures map[int]int
	pos      int
}

func (r *flakyReader) Read(context.Context) (int, error) {
	if r.pos >= len(r.items) {
		return 0, ErrEndOfInput
	}
	item := r.items[r.pos]
	if r.failures[item] > 0 {
		r.failures[item]--
		return 0, errTransient
	}
	r.pos++
	return item, nil
}

func (r *flakyReader) SkipFailed() {
	r.pos++
}

func TestChunkStepRetriesTransientRead(t *testing.T) {
	reader := &flakyReader{items: intsUpTo(3), failures: map[int]int{2: 1}}
	writer := &recordingWriter{}
	skips := &recordingSkipListener{}
	step := newStep(reader, identity, writer, skips)

	exec := &StepExecution{}
	require.NoError(t, step.Execute(context.Background(), exec))
	assert.Equal(t, []int{1, 2, 3}, writer.written())
	assert.Empty(t, skips.skips)
	assert.Equal(t, 3, exec.ReadCount)
	assert.Zero(t, exec.ReadSkipCount)
}

func TestChunkStepSkipsReadAfterRetriesExhausted(t *testing.T) {
	reader := &flakyReader{items: intsUpTo(3), failures: map[int]int{2: 5}}
	writer := &recordingWriter{}
	skips := &recordingSkipListener{}
	step := newStep(reader, identity, writer, skips)

	exec := &StepExecution{}
	require.NoError(t, step.Execute(context.Background(), exec))
	assert.Equal(t, []int{1, 3}, writer.written())
	assert.Equal(t, 5-DefaultRetryLimit, reader.failures[2])
	require.Len(t, skips.skips, 1)
	assert.Equal(t, "read", skips.skips[0].stage)
	assert.ErrorIs(t, skips.skips[0].err, errTransient)
	assert.Equal(t, 1, exec.ReadSkipCount)
}

func TestChunkStepLogsSkipsWithItemContext(t *testing.T) {
	var buf bytes.Buffer
	logger := applog.New(applog.Config{Level: slog.LevelDebug, Writer: &buf})
	processor := ProcessorFunc[int, int](func(_ context.Context, item int) (int, error) {
		if item == 2 {
			return 0, errDuplicate
		}
		return item, nil
	})
	step := newStep(NewSliceReader(intsUpTo(3)), processor, &recordingWriter{}, &recordingSkipListener{}, func(c *ChunkStepConfig[int, int]) {
		c.Logger = logger
		c.ItemContext = func(ctx context.Context, item int) context.Context {
			return applog.WithUserID(ctx, int64(item))
		}
	})

	require.NoError(t, step.Execute(context.Background(), &StepExecution{}))

	var skipped string
	for _, line := range strings.Split(buf.String(), "\n") {
		if strings.Contains(line, "Item skipped") {
			skipped = line
		}
	}
	require.NotEmpty(t, skipped, buf.String())
	assert.Contains(t, skipped, "user_id=2")
	assert.Contains(t, skipped, "step=test-step")
}
