package amqp

import (
	"encoding/json"
	"testing"
	"time"

	"reportbatch/internal/core"
)

func TestNewReportReadyMessage(t *testing.T) {
	result := core.CategoryComparisonResult{
		UserID:              7,
		YearMonth:           time.Date(2025, time.August, 1, 0, 0, 0, 0, time.UTC),
		ReportMessage:       "ignored",
		NotificationMessage: "Your 2025-08 spending report is ready.",
	}

	msg := NewReportReadyMessage(result)

	if msg.UserID != 7 {
		t.Errorf("UserID = %d, want 7", msg.UserID)
	}
	if msg.ReportMonth != "2025-08" {
		t.Errorf("ReportMonth = %q, want 2025-08", msg.ReportMonth)
	}
	if msg.Notification != result.NotificationMessage {
		t.Errorf("Notification = %q", msg.Notification)
	}
	if time.Since(msg.Timestamp) > time.Second {
		t.Error("Timestamp should be recent")
	}
}

func TestReportReadyMessage_JSON(t *testing.T) {
	msg := &ReportReadyMessage{
		UserID:       12,
		ReportMonth:  "2025-08",
		Notification: "Your 2025-08 spending report is ready.",
		Timestamp:    time.Date(2025, 9, 2, 0, 0, 0, 0, time.UTC),
	}

	data, err := msg.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON() error = %v", err)
	}

	var wire map[string]any
	if err := json.Unmarshal(data, &wire); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	want := map[string]any{
		"user_id":      float64(12),
		"report_month": "2025-08",
		"notification": "Your 2025-08 spending report is ready.",
		"timestamp":    "2025-09-02T00:00:00Z",
	}
	if len(wire) != len(want) {
		t.Errorf("wire = %v, want %v", wire, want)
	}
	for k, v := range want {
		if wire[k] != v {
			t.Errorf("%s = %v, want %v", k, wire[k], v)
		}
	}
}
