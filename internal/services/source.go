package services

import (
	"context"
	"fmt"
	"time"

	"reportbatch/internal/batch"
	"reportbatch/internal/core"
	"reportbatch/internal/report"
)

// UserDirectory lists users and their category spend.
type UserDirectory interface {
	ListUserIDs(ctx context.Context) ([]int64, error)
	CategorySums(ctx context.Context, userID int64, start, end time.Time) ([]core.CategoryAggregate, error)
}

// UserReadError is a failed aggregate query for one user of a window.
type UserReadError struct {
	UserID      int64
	ReportMonth time.Time
	Err         error
}

func (e *UserReadError) Error() string {
	return fmt.Sprintf("read user %d: %v", e.UserID, e.Err)
}

func (e *UserReadError) Unwrap() error {
	return e.Err
}

// UserReportSource yields one UserReportInput per user for a window. The
// user list is loaded on the first Read and aggregates are queried one user
// at a time. A failed query leaves the source on the same user until
// SkipFailed is called. A source is not restartable.
type UserReportSource struct {
	directory UserDirectory
	window    report.Window

	loaded bool
	ids    []int64
	pos    int
}

func NewUserReportSource(directory UserDirectory, window report.Window) *UserReportSource {
	return &UserReportSource{directory: directory, window: window}
}

func (s *UserReportSource) Read(ctx context.Context) (core.UserReportInput, error) {
	if !s.loaded {
		ids, err := s.directory.ListUserIDs(ctx)
		if err != nil {
			return core.UserReportInput{}, batch.Fatal(fmt.Errorf("load user ids: %w", err))
		}
		s.ids = ids
		s.loaded = true
	}
	if s.pos >= len(s.ids) {
		return core.UserReportInput{}, batch.ErrEndOfInput
	}

	userID := s.ids[s.pos]
	aggregates, err := s.directory.CategorySums(ctx, userID, s.window.Start, s.window.End)
	if err != nil {
		return core.UserReportInput{}, &UserReadError{UserID: userID, ReportMonth: s.window.ReportMonth(), Err: err}
	}
	s.pos++
	return core.UserReportInput{
		UserID:       userID,
		ReportMonth:  s.window.ReportMonth(),
		Transactions: aggregates,
	}, nil
}

// SkipFailed implements batch.RetryableReader.
func (s *UserReportSource) SkipFailed() {
	if s.pos < len(s.ids) {
		s.pos++
	}
}
