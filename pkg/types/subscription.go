package types

import "fmt"

type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusPaused    SubscriptionStatus = "paused"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	SubscriptionStatusFailed    SubscriptionStatus = "failed"
)

type SubscriptionChangeReason string

const (
	SubscriptionChangeReasonCreate          SubscriptionChangeReason = "create"
	SubscriptionChangeReasonPause           SubscriptionChangeReason = "pause"
	SubscriptionChangeReasonCancel          SubscriptionChangeReason = "cancel"
	SubscriptionChangeReasonReactivate      SubscriptionChangeReason = "reactivate"
	SubscriptionChangeReasonAmountChange    SubscriptionChangeReason = "amountChange"
	SubscriptionChangeReasonFrequencyChange SubscriptionChangeReason = "frequencyChange"
	SubscriptionChangeReasonPaymentOutcome  SubscriptionChangeReason = "paymentOutcome"
	SubscriptionChangeReasonFailureLimit    SubscriptionChangeReason = "failureLimit"
)

// Frequency is the billing cadence of a recurring donation.
type Frequency string

const (
	FrequencyWeekly    Frequency = "weekly"
	FrequencyBiweekly  Frequency = "biweekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
	FrequencyAnnually  Frequency = "annually"
)

var frequencies = []Frequency{
	FrequencyWeekly,
	FrequencyBiweekly,
	FrequencyMonthly,
	FrequencyQuarterly,
	FrequencyAnnually,
}

func (f Frequency) Validate() error {
	for _, known := range frequencies {
		if f == known {
			return nil
		}
	}
	return fmt.Errorf("unsupported frequency: %s", f)
}

// AnnualMultiplier is the number of charges per calendar year.
func (f Frequency) AnnualMultiplier() int64 {
	switch f {
	case FrequencyWeekly:
		return 52
	case FrequencyBiweekly:
		return 26
	case FrequencyMonthly:
		return 12
	case FrequencyQuarterly:
		return 4
	case FrequencyAnnually:
		return 1
	default:
		return 12
	}
}

// ReceiptFrequency is how often consolidated giving receipts go out to a
// donor, independent of the billing cadence.
type ReceiptFrequency string

const (
	ReceiptFrequencyMonthly   ReceiptFrequency = "monthly"
	ReceiptFrequencyQuarterly ReceiptFrequency = "quarterly"
	ReceiptFrequencyAnnually  ReceiptFrequency = "annually"
)

func (f ReceiptFrequency) Validate() error {
	switch f {
	case ReceiptFrequencyMonthly, ReceiptFrequencyQuarterly, ReceiptFrequencyAnnually:
		return nil
	}
	return fmt.Errorf("unsupported receipt frequency: %s", f)
}

type RecognitionLevel string

const (
	RecognitionLevelBasic    RecognitionLevel = "basic"
	RecognitionLevelSilver   RecognitionLevel = "silver"
	RecognitionLevelGold     RecognitionLevel = "gold"
	RecognitionLevelPlatinum RecognitionLevel = "platinum"
)
