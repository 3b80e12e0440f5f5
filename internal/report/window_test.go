package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWindowAt(t *testing.T) {
	cases := []struct {
		name  string
		now   time.Time
		start time.Time
		end   time.Time
	}{
		{
			name:  "scheduled run",
			now:   time.Date(2025, time.September, 2, 0, 0, 0, 0, time.UTC),
			start: time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC),
			end:   time.Date(2025, time.August, 31, 23, 59, 59, 999999999, time.UTC),
		},
		{
			name:  "year boundary",
			now:   time.Date(2026, time.January, 2, 0, 0, 0, 0, time.UTC),
			start: time.Date(2025, time.November, 1, 0, 0, 0, 0, time.UTC),
			end:   time.Date(2025, time.December, 31, 23, 59, 59, 999999999, time.UTC),
		},
		{
			name:  "march after leap february",
			now:   time.Date(2024, time.March, 31, 18, 0, 0, 0, time.UTC),
			start: time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
			end:   time.Date(2024, time.February, 29, 23, 59, 59, 999999999, time.UTC),
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := WindowAt(tc.now)
			assert.Equal(t, tc.start, w.Start)
			assert.Equal(t, tc.end, w.End)
		})
	}
}

func TestWindowKeyIsStablePerMonth(t *testing.T) {
	a := WindowAt(time.Date(2025, time.September, 2, 0, 0, 0, 0, time.UTC))
	b := WindowAt(time.Date(2025, time.September, 20, 11, 0, 0, 0, time.UTC))
	c := WindowAt(time.Date(2025, time.October, 2, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), c.Key())
}

func TestWindowForReportMonth(t *testing.T) {
	august := time.Date(2025, time.August, 1, 0, 0, 0, 0, time.UTC)
	w := WindowFor(time.Date(2025, time.August, 14, 9, 30, 0, 0, time.UTC))
	assert.Equal(t, WindowAt(time.Date(2025, time.September, 2, 0, 0, 0, 0, time.UTC)), w)
	assert.Equal(t, august, w.ReportMonth())
	assert.Equal(t, august, WindowAt(time.Date(2025, time.September, 30, 23, 0, 0, 0, time.UTC)).ReportMonth())
}
