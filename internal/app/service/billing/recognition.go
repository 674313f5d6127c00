package billing

import (
	"time"

	models "github.com/pawhaven/sustainer/internal/models"
	"github.com/pawhaven/sustainer/pkg/types"

	"github.com/shopspring/decimal"
)

var (
	recognitionPlatinum = decimal.NewFromInt(36000)
	recognitionGold     = decimal.NewFromInt(18000)
	recognitionSilver   = decimal.NewFromInt(6000)
)

// RecognitionFor derives the donor-facing tier from cumulative giving.
// The score is the current amount times the number of completed cycles.
func RecognitionFor(amount decimal.Decimal, totalCompleted int64) types.RecognitionLevel {
	score := amount.Mul(decimal.NewFromInt(totalCompleted))
	switch {
	case score.GreaterThan(recognitionPlatinum):
		return types.RecognitionLevelPlatinum
	case score.GreaterThan(recognitionGold):
		return types.RecognitionLevelGold
	case score.GreaterThan(recognitionSilver):
		return types.RecognitionLevelSilver
	default:
		return types.RecognitionLevelBasic
	}
}

// AnnualGivingAmount projects a year of giving at the current plan.
func AnnualGivingAmount(amount decimal.Decimal, freq types.Frequency) decimal.Decimal {
	return amount.Mul(decimal.NewFromInt(freq.AnnualMultiplier()))
}

// EnsureNextAnniversary sets the first anniversary window one year after
// activation. Recomputed only while the subscription is active.
func EnsureNextAnniversary(sub *models.Subscription) {
	if !sub.Active() || sub.NextAnniversaryDate != nil {
		return
	}
	next := sub.AnniversaryDate.AddDate(1, 0, 0)
	sub.NextAnniversaryDate = &next
}

// IsAnniversaryMonth reports whether now falls in the pending anniversary
// month and the donor has not been congratulated yet.
func IsAnniversaryMonth(sub *models.Subscription, now time.Time) bool {
	if sub.NextAnniversaryDate == nil || sub.AnniversaryNotified {
		return false
	}
	return now.Month() == sub.NextAnniversaryDate.Month() && now.Year() == sub.NextAnniversaryDate.Year()
}

// MarkAnniversaryNotified records that the congratulation was dispatched.
// The window itself advances when the calendar crosses into the next year.
func MarkAnniversaryNotified(sub *models.Subscription) {
	if sub.NextAnniversaryDate == nil {
		return
	}
	sub.AnniversaryNotified = true
}

// AdvanceAnniversaryIfPassed rolls the window forward once the calendar
// crosses into a year beyond the pending anniversary, resetting the
// one-shot notification flag.
func AdvanceAnniversaryIfPassed(sub *models.Subscription, now time.Time) {
	if sub.NextAnniversaryDate == nil {
		return
	}
	for now.Year() > sub.NextAnniversaryDate.Year() {
		next := sub.NextAnniversaryDate.AddDate(1, 0, 0)
		sub.NextAnniversaryDate = &next
		sub.AnniversaryNotified = false
	}
}
