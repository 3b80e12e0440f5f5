package core

import (
	"errors"
	"testing"
	"time"
)

func TestParseMonth(t *testing.T) {
	got, err := ParseMonth("2025-08")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2025, time.August, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}

	for _, bad := range []string{"", "2025-8", "2025/08", "2025-13", "Aug 2025", "2025-08-01"} {
		if _, err := ParseMonth(bad); !errors.Is(err, ErrInvalidMonth) {
			t.Fatalf("%q: expected ErrInvalidMonth, got %v", bad, err)
		}
	}
}

func TestFirstOfMonth(t *testing.T) {
	in := time.Date(2025, time.September, 17, 13, 4, 5, 6, time.FixedZone("KST", 9*3600))
	got := FirstOfMonth(in)
	want := time.Date(2025, time.September, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) || got.Location() != time.UTC {
		t.Fatalf("got %v, want %v", got, want)
	}
}
