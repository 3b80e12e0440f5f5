package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"reportbatch/internal/batch"
	"reportbatch/internal/core"
	applog "reportbatch/internal/log"
	"reportbatch/internal/report"
	"reportbatch/internal/storage"
)

// DeadLetterStore keeps inputs that the report job could not process.
type DeadLetterStore interface {
	InsertDeadLetter(ctx context.Context, item core.DeadLetterItem) (int64, error)
	ListDeadLetters(ctx context.Context) ([]core.DeadLetterItem, error)
	DeleteDeadLetters(ctx context.Context, ids []int64) error
}

// ErrorClass names the kind of failure stored with a dead letter.
func ErrorClass(err error) string {
	switch {
	case errors.Is(err, storage.ErrDuplicate):
		return "DuplicateKey"
	case errors.Is(err, storage.ErrTransient):
		return "TransientDataAccess"
	case errors.Is(err, storage.ErrNotFound):
		return "NotFound"
	case errors.Is(err, core.ErrMalformedPayload):
		return "MalformedPayload"
	case errors.Is(err, core.ErrMissingPayload):
		return "MissingPayload"
	case errors.Is(err, core.ErrInvalidMonth):
		return "InvalidMonth"
	}
	root := err
	for {
		next := errors.Unwrap(root)
		if next == nil {
			break
		}
		root = next
	}
	return fmt.Sprintf("%T", root)
}

// DeadLetterSkipListener records every skipped input in the dead-letter
// store. A user whose aggregates could not be read is stored as an unread
// payload; other read failures are stored without a payload.
type DeadLetterSkipListener struct {
	store    DeadLetterStore
	stepName string
	logger   *slog.Logger
}

func NewDeadLetterSkipListener(store DeadLetterStore, stepName string, logger *slog.Logger) *DeadLetterSkipListener {
	if logger == nil {
		logger = slog.Default()
	}
	return &DeadLetterSkipListener{store: store, stepName: stepName, logger: logger}
}

func (l *DeadLetterSkipListener) OnSkipInRead(ctx context.Context, err error) error {
	var readErr *UserReadError
	if !errors.As(err, &readErr) {
		return l.record(ctx, nil, 0, err)
	}
	payload, encErr := core.EncodeUnreadPayload(readErr.UserID, readErr.ReportMonth)
	if encErr != nil {
		return fmt.Errorf("encode dead letter for user %d: %w", readErr.UserID, encErr)
	}
	return l.record(applog.WithUserID(ctx, readErr.UserID), payload, readErr.UserID, err)
}

func (l *DeadLetterSkipListener) OnSkipInProcess(ctx context.Context, item core.UserReportInput, err error) error {
	return l.recordInput(ctx, item, err)
}

func (l *DeadLetterSkipListener) OnSkipInWrite(ctx context.Context, item core.UserReportInput, err error) error {
	return l.recordInput(ctx, item, err)
}

func (l *DeadLetterSkipListener) recordInput(ctx context.Context, item core.UserReportInput, cause error) error {
	payload, err := core.EncodeDeadLetterPayload(item)
	if err != nil {
		return fmt.Errorf("encode dead letter for user %d: %w", item.UserID, err)
	}
	return l.record(ctx, payload, item.UserID, cause)
}

func (l *DeadLetterSkipListener) record(ctx context.Context, payload []byte, userID int64, cause error) error {
	id, err := l.store.InsertDeadLetter(ctx, core.DeadLetterItem{
		StepName:         l.stepName,
		InputData:        payload,
		ExceptionClass:   ErrorClass(cause),
		ExceptionMessage: cause.Error(),
	})
	if err != nil {
		return fmt.Errorf("insert dead letter: %w", err)
	}

	fields := applog.NewFields().
		WithComponent(applog.ComponentDeadLetter).
		WithOperation(applog.OpSkip).
		WithError(cause).
		ToSlice()
	fields = append(fields, applog.FieldDeadLetterID, id)
	if userID != 0 {
		fields = append(fields, applog.FieldUserID, userID)
	}
	l.logger.WarnContext(ctx, "Input moved to dead-letter store", fields...)
	return nil
}

// DeadLetterReader yields stored dead letters oldest first. Rows without a
// payload cannot be replayed and are left in place.
type DeadLetterReader struct {
	store  DeadLetterStore
	logger *slog.Logger

	loaded bool
	items  []core.DeadLetterItem
	pos    int
}

func NewDeadLetterReader(store DeadLetterStore, logger *slog.Logger) *DeadLetterReader {
	if logger == nil {
		logger = slog.Default()
	}
	return &DeadLetterReader{store: store, logger: logger}
}

func (r *DeadLetterReader) Read(ctx context.Context) (core.DeadLetterItem, error) {
	if !r.loaded {
		items, err := r.store.ListDeadLetters(ctx)
		if err != nil {
			return core.DeadLetterItem{}, batch.Fatal(fmt.Errorf("list dead letters: %w", err))
		}
		r.items = items
		r.loaded = true
	}
	for r.pos < len(r.items) {
		item := r.items[r.pos]
		r.pos++
		if item.InputData == nil {
			r.logger.WarnContext(ctx, "Dead letter has no payload, leaving it in place",
				applog.FieldComponent, applog.ComponentDeadLetter,
				applog.FieldDeadLetterID, item.ID,
				applog.FieldStep, item.StepName)
			continue
		}
		return item, nil
	}
	return core.DeadLetterItem{}, batch.ErrEndOfInput
}

// DeadLetterProcessor replays a dead letter through the comparison engine,
// for the month stored with it. Unread users are read again first.
type DeadLetterProcessor struct {
	directory UserDirectory
	engine    *report.Engine
}

func NewDeadLetterProcessor(directory UserDirectory, engine *report.Engine) *DeadLetterProcessor {
	return &DeadLetterProcessor{directory: directory, engine: engine}
}

func (p *DeadLetterProcessor) Process(ctx context.Context, item core.DeadLetterItem) (core.DeadLetterResult, error) {
	decoded, err := core.DecodeDeadLetterPayload(item.InputData)
	if err != nil {
		return core.DeadLetterResult{}, fmt.Errorf("dead letter %d: %w", item.ID, err)
	}
	in := decoded.UserReportInput
	if decoded.Unread {
		window := report.WindowFor(in.ReportMonth)
		aggregates, err := p.directory.CategorySums(ctx, in.UserID, window.Start, window.End)
		if err != nil {
			return core.DeadLetterResult{}, fmt.Errorf("dead letter %d: read user %d: %w", item.ID, in.UserID, err)
		}
		in.Transactions = aggregates
	}
	result, err := p.engine.Compare(in)
	if err != nil {
		return core.DeadLetterResult{}, fmt.Errorf("dead letter %d: %w", item.ID, err)
	}
	return core.DeadLetterResult{DeadLetterID: item.ID, Result: result}, nil
}

// DeadLetterRecovery writes recovered reports through the sink and, once
// the step ends, deletes the dead letters whose reports were committed.
// Cleanup runs whether the step succeeded or not.
type DeadLetterRecovery struct {
	sink   *ReportSink
	store  DeadLetterStore
	logger *slog.Logger

	recovered []int64
}

func NewDeadLetterRecovery(sink *ReportSink, store DeadLetterStore, logger *slog.Logger) *DeadLetterRecovery {
	if logger == nil {
		logger = slog.Default()
	}
	return &DeadLetterRecovery{sink: sink, store: store, logger: logger}
}

func (r *DeadLetterRecovery) Write(ctx context.Context, items []core.DeadLetterResult) error {
	results := make([]core.CategoryComparisonResult, len(items))
	for i, it := range items {
		results[i] = it.Result
	}
	if err := r.sink.Write(ctx, results); err != nil {
		return err
	}
	for _, it := range items {
		r.recovered = append(r.recovered, it.DeadLetterID)
	}
	return nil
}

func (r *DeadLetterRecovery) BeforeStep(context.Context, *batch.StepExecution) error {
	r.recovered = nil
	return nil
}

func (r *DeadLetterRecovery) AfterStep(ctx context.Context, _ *batch.StepExecution, _ error) error {
	if len(r.recovered) == 0 {
		return nil
	}
	if err := r.store.DeleteDeadLetters(ctx, r.recovered); err != nil {
		return fmt.Errorf("delete %d recovered dead letters: %w", len(r.recovered), err)
	}
	r.logger.InfoContext(ctx, "Recovered dead letters deleted",
		applog.FieldComponent, applog.ComponentDeadLetter,
		applog.FieldOperation, applog.OpRecover,
		"count", len(r.recovered))
	r.recovered = nil
	return nil
}
