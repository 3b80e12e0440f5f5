package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PayloadSchemaVersion is the version written into every dead-letter payload.
// Version 2 added reportMonth and unread.
const PayloadSchemaVersion = 2

type deadLetterPayload struct {
	SchemaVersion int                `json:"schema_version"`
	UserID        int64              `json:"userId"`
	ReportMonth   string             `json:"reportMonth,omitempty"`
	Unread        bool               `json:"unread,omitempty"`
	Transactions  []aggregatePayload `json:"transactions"`
}

type aggregatePayload struct {
	CategoryName string          `json:"categoryName"`
	TotalAmount  decimal.Decimal `json:"totalAmount"`
	Month        string          `json:"month"`
}

// DeadLetterInput is a decoded dead-letter payload.
type DeadLetterInput struct {
	UserReportInput
	// Unread marks a user whose aggregates could not be read. Transactions
	// is empty and must be read again for ReportMonth.
	Unread bool
}

// EncodeDeadLetterPayload serializes an input for the dead-letter store.
func EncodeDeadLetterPayload(in UserReportInput) ([]byte, error) {
	p := deadLetterPayload{
		SchemaVersion: PayloadSchemaVersion,
		UserID:        in.UserID,
		ReportMonth:   monthTag(in.ReportMonth),
		Transactions:  make([]aggregatePayload, 0, len(in.Transactions)),
	}
	for _, tx := range in.Transactions {
		p.Transactions = append(p.Transactions, aggregatePayload(tx))
	}
	return marshalPayload(p)
}

// EncodeUnreadPayload serializes a user whose aggregates for reportMonth
// could not be read, so that a recovery run can read them again.
func EncodeUnreadPayload(userID int64, reportMonth time.Time) ([]byte, error) {
	if reportMonth.IsZero() {
		return nil, fmt.Errorf("encode unread payload for user %d: %w", userID, ErrInvalidMonth)
	}
	return marshalPayload(deadLetterPayload{
		SchemaVersion: PayloadSchemaVersion,
		UserID:        userID,
		ReportMonth:   monthTag(reportMonth),
		Unread:        true,
		Transactions:  []aggregatePayload{},
	})
}

func marshalPayload(p deadLetterPayload) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode dead-letter payload for user %d: %w", p.UserID, err)
	}
	return data, nil
}

func monthTag(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return FirstOfMonth(t).Format(MonthLayout)
}

// DecodeDeadLetterPayload restores the input stored by EncodeDeadLetterPayload
// or EncodeUnreadPayload. A payload without schema_version is read as
// version 1, which carries no report month.
func DecodeDeadLetterPayload(data []byte) (DeadLetterInput, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return DeadLetterInput{}, ErrMissingPayload
	}

	var p deadLetterPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return DeadLetterInput{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if p.SchemaVersion == 0 {
		p.SchemaVersion = 1
	}
	if p.SchemaVersion < 1 || p.SchemaVersion > PayloadSchemaVersion {
		return DeadLetterInput{}, fmt.Errorf("%w: unsupported schema_version %d", ErrMalformedPayload, p.SchemaVersion)
	}
	if p.UserID <= 0 {
		return DeadLetterInput{}, fmt.Errorf("%w: missing userId", ErrMalformedPayload)
	}

	out := DeadLetterInput{
		UserReportInput: UserReportInput{
			UserID:       p.UserID,
			Transactions: make([]CategoryAggregate, 0, len(p.Transactions)),
		},
		Unread: p.Unread,
	}
	if p.ReportMonth != "" {
		month, err := ParseMonth(p.ReportMonth)
		if err != nil {
			return DeadLetterInput{}, fmt.Errorf("%w: reportMonth %q", ErrMalformedPayload, p.ReportMonth)
		}
		out.ReportMonth = month
	}
	if out.Unread && out.ReportMonth.IsZero() {
		return DeadLetterInput{}, fmt.Errorf("%w: unread payload without reportMonth", ErrMalformedPayload)
	}
	for i, tx := range p.Transactions {
		if tx.CategoryName == "" {
			return DeadLetterInput{}, fmt.Errorf("%w: transaction %d has no categoryName", ErrMalformedPayload, i)
		}
		out.Transactions = append(out.Transactions, CategoryAggregate(tx))
	}
	return out, nil
}
