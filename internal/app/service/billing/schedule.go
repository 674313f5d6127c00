package billing

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/pawhaven/sustainer/pkg/types"

	"github.com/shopspring/decimal"
)

// DueCharge is one charge the scheduler asks the gateway to execute.
// Retries of the same due date carry the same CycleID and an incremented
// AttemptNumber.
type DueCharge struct {
	SubscriptionID   string          `json:"subscription_id"`
	CycleID          string          `json:"cycle_id"`
	AttemptNumber    int             `json:"attempt_number"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	PaymentMethodRef string          `json:"payment_method_ref"`
	ScheduledDate    time.Time       `json:"scheduled_date"`
}

// CycleID is deterministic so duplicate scheduler runs emit the same
// cycle and the processor can enforce single-counting.
func CycleID(subscriptionID string, scheduledDate time.Time) string {
	return fmt.Sprintf("%s:%s", subscriptionID, scheduledDate.Format(time.DateOnly))
}

// IdempotencyKey ties one charge attempt to its cycle so replays cannot
// double-apply effects.
func IdempotencyKey(subscriptionID, cycleID string, attempt int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d", subscriptionID, cycleID, attempt)))
	return hex.EncodeToString(sum[:])
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func clampDay(day, year int, month time.Month) int {
	if day < 1 {
		day = 1
	}
	if max := daysInMonth(year, month); day > max {
		return max
	}
	return day
}

// addMonths advances by n calendar months keeping the billing day
// anchored: day 31 clamps to Feb 28/29 and snaps back to 31 in March.
// time.AddDate is unsuitable here because it normalizes Jan 31 + 1 month
// into early March.
func addMonths(t time.Time, n int, billingDay int) time.Time {
	year, month := t.Year(), t.Month()
	month += time.Month(n)
	for month > 12 {
		month -= 12
		year++
	}
	day := clampDay(billingDay, year, month)
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}

// FirstDueDate derives the first billing cycle from the plan. Week-based
// frequencies bill on the start date itself; month-based frequencies bill
// on the first occurrence of the billing day on or after the start date.
func FirstDueDate(start time.Time, freq types.Frequency, billingDay int) time.Time {
	start = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
	switch freq {
	case types.FrequencyWeekly, types.FrequencyBiweekly:
		return start
	default:
		day := clampDay(billingDay, start.Year(), start.Month())
		candidate := time.Date(start.Year(), start.Month(), day, 0, 0, 0, 0, start.Location())
		if candidate.Before(start) {
			return addMonths(candidate, 1, billingDay)
		}
		return candidate
	}
}

// AdvanceDueDate computes the next cycle's scheduled date from the
// previous one.
func AdvanceDueDate(prev time.Time, freq types.Frequency, billingDay int) time.Time {
	switch freq {
	case types.FrequencyWeekly:
		return prev.AddDate(0, 0, 7)
	case types.FrequencyBiweekly:
		return prev.AddDate(0, 0, 14)
	case types.FrequencyMonthly:
		return addMonths(prev, 1, billingDay)
	case types.FrequencyQuarterly:
		return addMonths(prev, 3, billingDay)
	case types.FrequencyAnnually:
		return addMonths(prev, 12, billingDay)
	default:
		return addMonths(prev, 1, billingDay)
	}
}
