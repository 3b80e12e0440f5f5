package services

import (
	"context"
	"fmt"
	"log/slog"

	"reportbatch/internal/amqp"
	"reportbatch/internal/core"
	applog "reportbatch/internal/log"
)

// ReportStore persists reports.
type ReportStore interface {
	InsertReports(ctx context.Context, reports []core.Report) error
}

// ReportPublisher announces persisted reports.
type ReportPublisher interface {
	PublishReportReady(ctx context.Context, msg *amqp.ReportReadyMessage) error
}

// ReportSink writes a chunk of comparison results in one transaction and
// then announces each of them. Publishing is best effort.
type ReportSink struct {
	store     ReportStore
	publisher ReportPublisher
	logger    *slog.Logger
}

// NewReportSink creates a sink. publisher may be nil.
func NewReportSink(store ReportStore, publisher ReportPublisher, logger *slog.Logger) *ReportSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReportSink{store: store, publisher: publisher, logger: logger}
}

func (s *ReportSink) Write(ctx context.Context, results []core.CategoryComparisonResult) error {
	reports := make([]core.Report, len(results))
	for i, r := range results {
		reports[i] = r.ToReport()
	}
	if err := s.store.InsertReports(ctx, reports); err != nil {
		return fmt.Errorf("insert %d reports: %w", len(reports), err)
	}

	if s.publisher == nil {
		return nil
	}
	for _, r := range results {
		if err := s.publisher.PublishReportReady(ctx, amqp.NewReportReadyMessage(r)); err != nil {
			s.logger.WarnContext(ctx, "Failed to publish report ready message",
				applog.NewFields().
					WithComponent(applog.ComponentAMQP).
					WithOperation(applog.OpPublish).
					WithUserID(r.UserID).
					WithError(err).
					ToSlice()...)
		}
	}
	return nil
}
