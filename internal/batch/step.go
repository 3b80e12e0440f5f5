package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"reportbatch/internal/core"
	applog "reportbatch/internal/log"
)

var tracer = otel.Tracer("reportbatch/internal/batch")

// Step is one unit of a Job.
type Step interface {
	Name() string
	Execute(ctx context.Context, exec *StepExecution) error
}

// ChunkStepConfig defines a ChunkStep.
type ChunkStepConfig[I, O any] struct {
	Name         string
	Reader       Reader[I]
	Processor    Processor[I, O]
	Writer       Writer[O]
	ChunkSize    int
	Policy       Policy
	SkipListener SkipListener[I]
	Listeners    []StepListener
	// ItemContext derives the context an item is processed, written and
	// skipped under. Optional.
	ItemContext func(ctx context.Context, item I) context.Context
	Metrics     Metrics
	Logger      *slog.Logger
	Clock       core.Clock
}

func (c ChunkStepConfig[I, O]) withDefaults() ChunkStepConfig[I, O] {
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	c.Policy = c.Policy.withDefaults()
	if c.SkipListener == nil {
		c.SkipListener = NopSkipListener[I]{}
	}
	if c.Metrics == nil {
		c.Metrics = NopMetrics{}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Clock == nil {
		c.Clock = core.SystemClock{}
	}
	return c
}

// ChunkStep reads, processes and writes items in chunks under a Policy.
type ChunkStep[I, O any] struct {
	cfg ChunkStepConfig[I, O]
}

func NewChunkStep[I, O any](cfg ChunkStepConfig[I, O]) *ChunkStep[I, O] {
	return &ChunkStep[I, O]{cfg: cfg.withDefaults()}
}

func (s *ChunkStep[I, O]) Name() string {
	return s.cfg.Name
}

type chunkItem[I, O any] struct {
	in  I
	out O
}

// Execute runs chunks until the reader is exhausted or a fatal error occurs.
// Context cancellation is only observed between chunks.
func (s *ChunkStep[I, O]) Execute(ctx context.Context, exec *StepExecution) (err error) {
	ctx = applog.WithStep(ctx, s.cfg.Name)
	ctx, span := tracer.Start(ctx, "batch.step", trace.WithAttributes(
		attribute.String("batch.job", exec.JobName),
		attribute.String("batch.step", s.cfg.Name),
	))
	defer func() {
		span.SetAttributes(
			attribute.Int("batch.read_count", exec.ReadCount),
			attribute.Int("batch.write_count", exec.WriteCount),
			attribute.Int("batch.skip_count", exec.SkipCount()),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	exec.Status = StatusRunning
	exec.StartedAt = s.cfg.Clock.Now()

	for _, l := range s.cfg.Listeners {
		if err = l.BeforeStep(ctx, exec); err != nil {
			err = fmt.Errorf("before step %s: %w", s.cfg.Name, err)
			break
		}
	}
	if err == nil {
		err = s.run(ctx, exec)
	}
	for _, l := range s.cfg.Listeners {
		if lerr := l.AfterStep(context.WithoutCancel(ctx), exec, err); lerr != nil {
			err = errors.Join(err, fmt.Errorf("after step %s: %w", s.cfg.Name, lerr))
		}
	}

	exec.FinishedAt = s.cfg.Clock.Now()
	exec.Status = StatusCompleted
	if err != nil {
		exec.Status = StatusFailed
	}
	return err
}

func (s *ChunkStep[I, O]) run(ctx context.Context, exec *StepExecution) error {
	// A started chunk runs to completion even if ctx is cancelled.
	chunkCtx := context.WithoutCancel(ctx)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		done, err := s.chunk(chunkCtx, exec)
		if err != nil {
			exec.RollbackCount++
			return err
		}
		if done {
			return nil
		}
	}
}

func (s *ChunkStep[I, O]) chunk(ctx context.Context, exec *StepExecution) (done bool, err error) {
	ctx, span := tracer.Start(ctx, "batch.chunk")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	inputs, eof, err := s.readChunk(ctx, exec)
	if err != nil {
		return false, err
	}
	if len(inputs) == 0 {
		return eof, nil
	}

	items, err := s.processChunk(ctx, exec, inputs)
	if err != nil {
		return false, err
	}
	if len(items) > 0 {
		if err := s.writeChunk(ctx, exec, items); err != nil {
			return false, err
		}
	}

	exec.CommitCount++
	span.SetAttributes(attribute.Int("batch.chunk_items", len(items)))
	s.cfg.Logger.DebugContext(ctx, "Chunk committed",
		applog.NewFields().
			WithComponent(applog.ComponentBatch).
			WithStepCounts(exec.ReadCount, exec.WriteCount, exec.SkipCount()).
			ToSlice()...)
	return eof, nil
}

func (s *ChunkStep[I, O]) readChunk(ctx context.Context, exec *StepExecution) ([]I, bool, error) {
	inputs := make([]I, 0, s.cfg.ChunkSize)
	for len(inputs) < s.cfg.ChunkSize {
		in, err := s.read(ctx, exec)
		if errors.Is(err, ErrEndOfInput) {
			return inputs, true, nil
		}
		if err != nil {
			if s.cfg.Policy.onFailure(err) == ActionFatal {
				return nil, false, fmt.Errorf("read: %w", err)
			}
			if err := s.skipRead(ctx, exec, err); err != nil {
				return nil, false, err
			}
			continue
		}
		exec.ReadCount++
		s.cfg.Metrics.AddRead(exec.JobName, 1)
		inputs = append(inputs, in)
	}
	return inputs, false, nil
}

// read retries failed reads of a RetryableReader and moves it past an item
// it gives up on. Other readers are read once.
func (s *ChunkStep[I, O]) read(ctx context.Context, exec *StepExecution) (I, error) {
	rr, ok := s.cfg.Reader.(RetryableReader)
	if !ok {
		return s.cfg.Reader.Read(ctx)
	}
	var in I
	err := s.attempt(ctx, exec, func(ctx context.Context) error {
		var rerr error
		in, rerr = s.cfg.Reader.Read(ctx)
		return rerr
	})
	if err != nil && !errors.Is(err, ErrEndOfInput) {
		rr.SkipFailed()
	}
	return in, err
}

func (s *ChunkStep[I, O]) itemContext(ctx context.Context, item I) context.Context {
	if s.cfg.ItemContext == nil {
		return ctx
	}
	return s.cfg.ItemContext(ctx, item)
}

func (s *ChunkStep[I, O]) processChunk(ctx context.Context, exec *StepExecution, inputs []I) ([]chunkItem[I, O], error) {
	items := make([]chunkItem[I, O], 0, len(inputs))
	for _, in := range inputs {
		ictx := s.itemContext(ctx, in)
		var out O
		err := s.attempt(ictx, exec, func(ctx context.Context) error {
			var perr error
			out, perr = s.cfg.Processor.Process(ctx, in)
			return perr
		})
		if err == nil {
			items = append(items, chunkItem[I, O]{in: in, out: out})
			continue
		}
		if s.cfg.Policy.onFailure(err) == ActionFatal {
			return nil, fmt.Errorf("process: %w", err)
		}
		if err := s.skipItem(ictx, exec, applog.OpProcess, in, err); err != nil {
			return nil, err
		}
	}
	return items, nil
}

// writeChunk writes all items in one call. When that fails with a
// non-fatal error the items are written one per call so that only the
// failing ones are skipped.
func (s *ChunkStep[I, O]) writeChunk(ctx context.Context, exec *StepExecution, items []chunkItem[I, O]) error {
	outs := make([]O, len(items))
	for i, it := range items {
		outs[i] = it.out
	}

	err := s.attempt(ctx, exec, func(ctx context.Context) error {
		return s.cfg.Writer.Write(ctx, outs)
	})
	if err == nil {
		exec.WriteCount += len(outs)
		s.cfg.Metrics.AddWritten(exec.JobName, len(outs))
		return nil
	}
	if s.cfg.Policy.onFailure(err) == ActionFatal {
		return fmt.Errorf("write: %w", err)
	}
	if len(items) == 1 {
		return s.skipItem(s.itemContext(ctx, items[0].in), exec, applog.OpWrite, items[0].in, err)
	}

	exec.RollbackCount++
	s.cfg.Logger.InfoContext(ctx, "Chunk write failed, writing items one at a time",
		"items", len(items), applog.FieldError, err)

	for _, it := range items {
		ictx := s.itemContext(ctx, it.in)
		single := []O{it.out}
		err := s.attempt(ictx, exec, func(ctx context.Context) error {
			return s.cfg.Writer.Write(ctx, single)
		})
		if err == nil {
			exec.WriteCount++
			s.cfg.Metrics.AddWritten(exec.JobName, 1)
			continue
		}
		if s.cfg.Policy.onFailure(err) == ActionFatal {
			return fmt.Errorf("write: %w", err)
		}
		if err := s.skipItem(ictx, exec, applog.OpWrite, it.in, err); err != nil {
			return err
		}
	}
	return nil
}

// attempt runs fn until it succeeds, fails with a non-retryable error, or
// runs out of attempts.
func (s *ChunkStep[I, O]) attempt(ctx context.Context, exec *StepExecution, fn func(context.Context) error) error {
	limit := s.cfg.Policy.RetryLimit
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if s.cfg.Policy.classify(err) != ActionRetry {
			return err
		}
		if attempt >= limit {
			return fmt.Errorf("after %d attempts: %w", attempt, err)
		}

		s.cfg.Metrics.AddRetries(exec.JobName, 1)
		s.cfg.Logger.DebugContext(ctx, "Retrying after transient failure",
			"attempt", attempt, applog.FieldError, err)
		if err := s.wait(ctx); err != nil {
			return err
		}
	}
}

func (s *ChunkStep[I, O]) wait(ctx context.Context) error {
	if s.cfg.Policy.Backoff <= 0 {
		return nil
	}
	timer := time.NewTimer(s.cfg.Policy.Backoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *ChunkStep[I, O]) checkSkipLimit(exec *StepExecution, cause error) error {
	if exec.SkipCount() >= s.cfg.Policy.SkipLimit {
		return fmt.Errorf("%w (limit %d): %w", ErrSkipLimitExceeded, s.cfg.Policy.SkipLimit, cause)
	}
	return nil
}

func (s *ChunkStep[I, O]) skipRead(ctx context.Context, exec *StepExecution, cause error) error {
	if err := s.checkSkipLimit(exec, cause); err != nil {
		return err
	}
	if err := s.cfg.SkipListener.OnSkipInRead(ctx, cause); err != nil {
		return fmt.Errorf("skip listener: %w", err)
	}
	exec.ReadSkipCount++
	s.skipped(ctx, exec, applog.OpRead, cause)
	return nil
}

func (s *ChunkStep[I, O]) skipItem(ctx context.Context, exec *StepExecution, stage string, in I, cause error) error {
	if err := s.checkSkipLimit(exec, cause); err != nil {
		return err
	}

	var err error
	if stage == applog.OpWrite {
		err = s.cfg.SkipListener.OnSkipInWrite(ctx, in, cause)
	} else {
		err = s.cfg.SkipListener.OnSkipInProcess(ctx, in, cause)
	}
	if err != nil {
		return fmt.Errorf("skip listener: %w", err)
	}

	if stage == applog.OpWrite {
		exec.WriteSkipCount++
	} else {
		exec.ProcessSkipCount++
	}
	s.skipped(ctx, exec, stage, cause)
	return nil
}

func (s *ChunkStep[I, O]) skipped(ctx context.Context, exec *StepExecution, stage string, cause error) {
	s.cfg.Metrics.AddSkipped(exec.JobName, 1)
	s.cfg.Logger.WarnContext(ctx, "Item skipped",
		applog.NewFields().
			WithComponent(applog.ComponentBatch).
			WithOperation(stage).
			WithError(cause).
			WithStepCounts(exec.ReadCount, exec.WriteCount, exec.SkipCount()).
			ToSlice()...)
}
