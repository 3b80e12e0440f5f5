package report

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reportbatch/internal/core"
)

var runAt = time.Date(2025, time.September, 2, 0, 0, 0, 0, time.UTC)

func agg(name string, amount int64, month string) core.CategoryAggregate {
	return core.CategoryAggregate{CategoryName: name, TotalAmount: decimal.NewFromInt(amount), Month: month}
}

func TestCompareHigherSpend(t *testing.T) {
	in := core.UserReportInput{
		UserID: 1,
		Transactions: []core.CategoryAggregate{
			agg("CAFE", 8000, "2025-07"),
			agg("CAFE", 80000, "2025-08"),
		},
	}

	got, err := Compare(in, runAt)
	require.NoError(t, err)

	assert.Equal(t, int64(1), got.UserID)
	assert.Equal(t, time.Date(2025, time.August, 1, 0, 0, 0, 0, time.UTC), got.YearMonth)
	assert.Equal(t, "Spending report: 2025-07 vs 2025-08\n[Higher spend]\n- CAFE: +72,000\n[Lower spend]\n- none", got.ReportMessage)
	assert.Equal(t, "Your 2025-08 spending report is ready.", got.NotificationMessage)
}

func TestCompareBuckets(t *testing.T) {
	in := core.UserReportInput{
		UserID: 2,
		Transactions: []core.CategoryAggregate{
			agg("TRANSPORT", 97000, "2025-07"),
			agg("FOOD", 130000, "2025-08"),
			agg("CAFE", 8000, "2025-07"),
			agg("CAFE", 80000, "2025-08"),
			agg("MART", 5000, "2025-07"),
			agg("MART", 5000, "2025-08"),
		},
	}

	got, err := Compare(in, runAt)
	require.NoError(t, err)

	want := "Spending report: 2025-07 vs 2025-08\n" +
		"[Higher spend]\n" +
		"- CAFE: +72,000\n" +
		"- FOOD: +130,000\n" +
		"[Lower spend]\n" +
		"- TRANSPORT: -97,000"
	assert.Equal(t, want, got.ReportMessage)
	assert.NotContains(t, got.ReportMessage, "MART")
}

func TestCompareDiffSign(t *testing.T) {
	cases := []struct {
		name     string
		prev     int64
		prevPrev int64
		section  string
		line     string
	}{
		{"increase", 20000, 5000, sectionHigher, "- X: +15,000"},
		{"decrease", 5000, 20000, sectionLower, "- X: -15,000"},
		{"new category", 1000, 0, sectionHigher, "- X: +1,000"},
		{"dropped category", 0, 1000, sectionLower, "- X: -1,000"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var txs []core.CategoryAggregate
			if tc.prev != 0 {
				txs = append(txs, agg("X", tc.prev, "2025-08"))
			}
			if tc.prevPrev != 0 {
				txs = append(txs, agg("X", tc.prevPrev, "2025-07"))
			}
			got, err := Compare(core.UserReportInput{UserID: 3, Transactions: txs}, runAt)
			require.NoError(t, err)
			assert.Contains(t, got.ReportMessage, tc.section+"\n"+tc.line)
		})
	}
}

func TestCompareSumsDuplicateRowsAndIgnoresOtherMonths(t *testing.T) {
	in := core.UserReportInput{
		UserID: 4,
		Transactions: []core.CategoryAggregate{
			agg("CAFE", 1000, "2025-08"),
			agg("CAFE", 2500, "2025-08"),
			agg("CAFE", 999999, "2025-06"),
		},
	}
	got, err := Compare(in, runAt)
	require.NoError(t, err)
	assert.Contains(t, got.ReportMessage, "- CAFE: +3,500")
}

func TestCompareEmptyInput(t *testing.T) {
	got, err := Compare(core.UserReportInput{UserID: 5}, runAt)
	require.NoError(t, err)
	assert.Equal(t, "Spending report: 2025-07 vs 2025-08\n[Higher spend]\n- none\n[Lower spend]\n- none", got.ReportMessage)
}

func TestCompareRejectsMalformedMonth(t *testing.T) {
	in := core.UserReportInput{
		UserID:       6,
		Transactions: []core.CategoryAggregate{agg("CAFE", 1000, "08/2025")},
	}
	_, err := Compare(in, runAt)
	require.ErrorIs(t, err, core.ErrInvalidMonth)
	assert.Contains(t, err.Error(), "user 6")
}

func TestEngineUsesClock(t *testing.T) {
	engine := NewEngine(core.FixedClock(time.Date(2026, time.January, 2, 0, 0, 0, 0, time.UTC)))
	got, err := engine.Compare(core.UserReportInput{
		UserID:       8,
		Transactions: []core.CategoryAggregate{agg("GIFTS", 40000, "2025-12")},
	})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, time.December, 1, 0, 0, 0, 0, time.UTC), got.YearMonth)
	assert.Contains(t, got.ReportMessage, "Spending report: 2025-11 vs 2025-12")
}

func TestEngineComparesInputForItsReportMonth(t *testing.T) {
	// A clock two months later must not shift the compared months.
	engine := NewEngine(core.FixedClock(time.Date(2025, time.October, 3, 0, 0, 0, 0, time.UTC)))
	got, err := engine.Compare(core.UserReportInput{
		UserID:      7,
		ReportMonth: time.Date(2025, time.August, 1, 0, 0, 0, 0, time.UTC),
		Transactions: []core.CategoryAggregate{
			agg("MART", 18000, "2025-07"),
			agg("MART", 50000, "2025-08"),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, time.August, 1, 0, 0, 0, 0, time.UTC), got.YearMonth)
	assert.Equal(t, "Spending report: 2025-07 vs 2025-08\n[Higher spend]\n- MART: +32,000\n[Lower spend]\n- none", got.ReportMessage)
}
