package report

import (
	"time"

	"reportbatch/internal/core"
)

// Window is the closed time range a report run aggregates over.
type Window struct {
	Start time.Time
	End   time.Time
}

// Months returns the two months compared by a run at now: the previous
// month and the one before it, both as first-of-month UTC instants.
func Months(now time.Time) (prev, prevPrev time.Time) {
	current := core.FirstOfMonth(now)
	return current.AddDate(0, -1, 0), current.AddDate(0, -2, 0)
}

// WindowAt returns the window for a run at now: from the first instant of
// two months ago to the last instant of last month.
func WindowAt(now time.Time) Window {
	prev, prevPrev := Months(now)
	return Window{
		Start: prevPrev,
		End:   prev.AddDate(0, 1, 0).Add(-time.Nanosecond),
	}
}

// WindowFor returns the window whose reported month is month.
func WindowFor(month time.Time) Window {
	return WindowAt(core.FirstOfMonth(month).AddDate(0, 1, 0))
}

// ReportMonth is the first day of the month a run over w reports on.
func (w Window) ReportMonth() time.Time {
	return core.FirstOfMonth(w.End)
}

// Key identifies the window in the job repository.
func (w Window) Key() string {
	return "start=" + w.Start.Format(time.RFC3339) + ",end=" + w.End.Format(time.RFC3339Nano)
}
