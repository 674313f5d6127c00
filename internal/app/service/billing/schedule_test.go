package billing

import (
	"testing"
	"time"

	"github.com/pawhaven/sustainer/pkg/types"

	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestCycleID_Deterministic(t *testing.T) {
	a := CycleID("sub-1", date(2026, time.March, 15))
	b := CycleID("sub-1", date(2026, time.March, 15))
	require.Equal(t, a, b)
	require.Equal(t, "sub-1:2026-03-15", a)
}

func TestIdempotencyKey_DistinguishesAttempts(t *testing.T) {
	cycle := CycleID("sub-1", date(2026, time.March, 15))
	k1 := IdempotencyKey("sub-1", cycle, 1)
	k2 := IdempotencyKey("sub-1", cycle, 2)
	require.NotEqual(t, k1, k2)
	require.Equal(t, k1, IdempotencyKey("sub-1", cycle, 1))
	require.Len(t, k1, 64)
}

func TestFirstDueDate(t *testing.T) {
	tests := []struct {
		name       string
		start      time.Time
		freq       types.Frequency
		billingDay int
		want       time.Time
	}{
		{"weekly bills on start date", date(2026, time.March, 10), types.FrequencyWeekly, 15, date(2026, time.March, 10)},
		{"biweekly bills on start date", date(2026, time.March, 10), types.FrequencyBiweekly, 15, date(2026, time.March, 10)},
		{"monthly on billing day after start", date(2026, time.March, 10), types.FrequencyMonthly, 15, date(2026, time.March, 15)},
		{"monthly billing day equals start", date(2026, time.March, 15), types.FrequencyMonthly, 15, date(2026, time.March, 15)},
		{"monthly billing day before start rolls to next month", date(2026, time.March, 20), types.FrequencyMonthly, 15, date(2026, time.April, 15)},
		{"monthly day 31 clamps in April", date(2026, time.April, 1), types.FrequencyMonthly, 31, date(2026, time.April, 30)},
		{"quarterly uses billing day", date(2026, time.January, 5), types.FrequencyQuarterly, 20, date(2026, time.January, 20)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FirstDueDate(tt.start, tt.freq, tt.billingDay)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestAdvanceDueDate_MonthEndClamping(t *testing.T) {
	// Jan 31 -> Feb 28 -> Mar 31: the billing day stays anchored at 31.
	jan := date(2026, time.January, 31)
	feb := AdvanceDueDate(jan, types.FrequencyMonthly, 31)
	require.Equal(t, date(2026, time.February, 28), feb)

	mar := AdvanceDueDate(feb, types.FrequencyMonthly, 31)
	require.Equal(t, date(2026, time.March, 31), mar)
}

func TestAdvanceDueDate_LeapFebruary(t *testing.T) {
	jan := date(2028, time.January, 31)
	feb := AdvanceDueDate(jan, types.FrequencyMonthly, 31)
	require.Equal(t, date(2028, time.February, 29), feb)
}

func TestAdvanceDueDate_WeekBased(t *testing.T) {
	prev := date(2026, time.March, 10)
	require.Equal(t, date(2026, time.March, 17), AdvanceDueDate(prev, types.FrequencyWeekly, 0))
	require.Equal(t, date(2026, time.March, 24), AdvanceDueDate(prev, types.FrequencyBiweekly, 0))
}

func TestAdvanceDueDate_QuarterlyAndAnnually(t *testing.T) {
	prev := date(2026, time.November, 30)
	require.Equal(t, date(2027, time.February, 28), AdvanceDueDate(prev, types.FrequencyQuarterly, 30))
	require.Equal(t, date(2027, time.November, 30), AdvanceDueDate(prev, types.FrequencyAnnually, 30))
}

func TestAdvanceDueDate_YearRollover(t *testing.T) {
	prev := date(2026, time.December, 15)
	require.Equal(t, date(2027, time.January, 15), AdvanceDueDate(prev, types.FrequencyMonthly, 15))
}
