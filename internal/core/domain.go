package core

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// MonthLayout is the "YYYY-MM" tag carried by every category aggregate.
const MonthLayout = "2006-01"

type (
	// CategoryAggregate is one user's net spend for a category in one month.
	CategoryAggregate struct {
		CategoryName string
		TotalAmount  decimal.Decimal
		Month        string // YYYY-MM
	}

	// UserReportInput is the unit of work of the report job. ReportMonth is
	// the first day of the month being reported on; it is zero on inputs
	// restored from version 1 dead letters.
	UserReportInput struct {
		UserID       int64
		ReportMonth  time.Time
		Transactions []CategoryAggregate
	}

	CategoryComparisonResult struct {
		UserID              int64
		YearMonth           time.Time // first day of the reported month, UTC
		ReportMessage       string
		NotificationMessage string
	}

	Report struct {
		ID                  int64
		UserID              int64
		ReportMonth         time.Time
		ReportMessage       string
		NotificationMessage string
		CreatedAt           time.Time
	}

	// DeadLetterItem is an input that could not be processed. InputData is
	// nil when the input could not be reconstructed (read failures).
	DeadLetterItem struct {
		ID               int64
		StepName         string
		InputData        []byte
		ExceptionClass   string
		ExceptionMessage string
		CreatedAt        time.Time
	}

	// DeadLetterResult pairs a recovered result with the row it came from.
	DeadLetterResult struct {
		DeadLetterID int64
		Result       CategoryComparisonResult
	}
)

var (
	ErrInvalidMonth     = errors.New("invalid month tag")
	ErrMalformedPayload = errors.New("malformed dead-letter payload")
	ErrMissingPayload   = errors.New("dead-letter payload missing")
)

// ParseMonth parses a "YYYY-MM" tag into the first instant of that month, UTC.
func ParseMonth(tag string) (time.Time, error) {
	t, err := time.ParseInLocation(MonthLayout, tag, time.UTC)
	if err != nil {
		return time.Time{}, ErrInvalidMonth
	}
	return t, nil
}

// FirstOfMonth truncates t to the first instant of its month in UTC.
func FirstOfMonth(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// ToReport converts a comparison result into the row persisted by the sink.
func (r CategoryComparisonResult) ToReport() Report {
	return Report{
		UserID:              r.UserID,
		ReportMonth:         r.YearMonth,
		ReportMessage:       r.ReportMessage,
		NotificationMessage: r.NotificationMessage,
	}
}
