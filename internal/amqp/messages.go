package amqp

import (
	"encoding/json"
	"time"

	"reportbatch/internal/core"
)

// ReportReadyMessage tells downstream consumers that a user's monthly report
// has been persisted. It carries the notification text so consumers need not
// read the report store.
type ReportReadyMessage struct {
	UserID       int64     `json:"user_id"`
	ReportMonth  string    `json:"report_month"`
	Notification string    `json:"notification"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewReportReadyMessage builds a message for a computed comparison result
func NewReportReadyMessage(result core.CategoryComparisonResult) *ReportReadyMessage {
	return &ReportReadyMessage{
		UserID:       result.UserID,
		ReportMonth:  result.YearMonth.Format(core.MonthLayout),
		Notification: result.NotificationMessage,
		Timestamp:    time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ReportReadyMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}
