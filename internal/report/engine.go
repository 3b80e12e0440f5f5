// Package report compares a user's spending between the two months before
// the run and renders the report and notification texts.
package report

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"reportbatch/internal/core"
)

const (
	sectionHigher = "[Higher spend]"
	sectionLower  = "[Lower spend]"
	emptySection  = "- none"
)

// Engine is the category comparison step. It holds no state besides the
// clock, so one Engine may be shared by both jobs.
type Engine struct {
	clock core.Clock
}

func NewEngine(clock core.Clock) *Engine {
	if clock == nil {
		clock = core.SystemClock{}
	}
	return &Engine{clock: clock}
}

// Compare compares the input for its ReportMonth, or for the month before
// the engine's clock when the input carries none.
func (e *Engine) Compare(in core.UserReportInput) (core.CategoryComparisonResult, error) {
	if !in.ReportMonth.IsZero() {
		return Compare(in, core.FirstOfMonth(in.ReportMonth).AddDate(0, 1, 0))
	}
	return Compare(in, e.clock.Now())
}

type categoryDiff struct {
	name string
	diff decimal.Decimal
}

// Compare builds the comparison result for a run at now.
//
// diff = amount in the previous month - amount in the month before. A
// positive diff lists the category under higher spend, a negative one under
// lower spend, and an unchanged category is left out.
func Compare(in core.UserReportInput, now time.Time) (core.CategoryComparisonResult, error) {
	prev, prevPrev := Months(now)
	prevTag := prev.Format(core.MonthLayout)
	prevPrevTag := prevPrev.Format(core.MonthLayout)

	prevAmounts := make(map[string]decimal.Decimal)
	prevPrevAmounts := make(map[string]decimal.Decimal)
	for _, tx := range in.Transactions {
		month, err := core.ParseMonth(tx.Month)
		if err != nil {
			return core.CategoryComparisonResult{}, fmt.Errorf("user %d category %q month %q: %w", in.UserID, tx.CategoryName, tx.Month, err)
		}
		switch month.Format(core.MonthLayout) {
		case prevTag:
			prevAmounts[tx.CategoryName] = prevAmounts[tx.CategoryName].Add(tx.TotalAmount)
		case prevPrevTag:
			prevPrevAmounts[tx.CategoryName] = prevPrevAmounts[tx.CategoryName].Add(tx.TotalAmount)
		}
	}

	names := make([]string, 0, len(prevAmounts)+len(prevPrevAmounts))
	for name := range prevAmounts {
		names = append(names, name)
	}
	for name := range prevPrevAmounts {
		if _, ok := prevAmounts[name]; !ok {
			names = append(names, name)
		}
	}
	slices.Sort(names)

	var higher, lower []categoryDiff
	for _, name := range names {
		diff := prevAmounts[name].Sub(prevPrevAmounts[name])
		switch diff.Sign() {
		case 1:
			higher = append(higher, categoryDiff{name: name, diff: diff})
		case -1:
			lower = append(lower, categoryDiff{name: name, diff: diff})
		}
	}

	return core.CategoryComparisonResult{
		UserID:              in.UserID,
		YearMonth:           prev,
		ReportMessage:       renderReport(prevPrevTag, prevTag, higher, lower),
		NotificationMessage: Notification(prevTag),
	}, nil
}

// Notification is the short message announcing the report for month.
func Notification(month string) string {
	return fmt.Sprintf("Your %s spending report is ready.", month)
}

func renderReport(fromTag, toTag string, higher, lower []categoryDiff) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Spending report: %s vs %s\n", fromTag, toTag)
	writeSection(&b, sectionHigher, higher)
	b.WriteByte('\n')
	writeSection(&b, sectionLower, lower)
	return b.String()
}

func writeSection(b *strings.Builder, title string, diffs []categoryDiff) {
	b.WriteString(title)
	b.WriteByte('\n')
	if len(diffs) == 0 {
		b.WriteString(emptySection)
		return
	}
	for i, d := range diffs {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(b, "- %s: %s", d.name, core.FormatSignedAmount(d.diff))
	}
}
