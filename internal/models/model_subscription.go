package models

import (
	"time"

	"github.com/pawhaven/sustainer/pkg/types"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// AmountChange is one append-only entry in a subscription's amount history.
type AmountChange struct {
	Date     time.Time       `json:"date"`
	Previous decimal.Decimal `json:"previous"`
	New      decimal.Decimal `json:"new"`
	Reason   string          `json:"reason"`
}

// FrequencyChange is one append-only entry in a subscription's frequency history.
type FrequencyChange struct {
	Date     time.Time       `json:"date"`
	Previous types.Frequency `json:"previous"`
	New      types.Frequency `json:"new"`
	Reason   string          `json:"reason"`
}

// Subscription is one donor recurring-gift agreement.
// Aggregates (TotalCompleted, TotalAmountDonated, ConsecutiveSuccesses,
// RecognitionLevel) are derived from the payment-event log and must never
// be set independently; a fold over the events reproduces them.
type Subscription struct {
	ID         string  `gorm:"column:id;type:uuid;primary_key" json:"id"`
	DonorID    string  `gorm:"column:donor_id;type:varchar(64);not null;index" json:"donor_id"`
	DonorName  string  `gorm:"column:donor_name;type:varchar(255)" json:"donor_name"`
	DonorEmail string  `gorm:"column:donor_email;type:varchar(255)" json:"donor_email"`
	CampaignID *string `gorm:"column:campaign_id;type:varchar(64)" json:"campaign_id"`

	// Plan
	Amount            decimal.Decimal `gorm:"column:amount;type:numeric(12,2);not null" json:"amount"`
	Currency          string          `gorm:"column:currency;type:varchar(8);not null" json:"currency"`
	Frequency         types.Frequency `gorm:"column:frequency;type:varchar(16);not null" json:"frequency"`
	BillingDayOfMonth int             `gorm:"column:billing_day_of_month;not null" json:"billing_day_of_month"`
	StartDate         time.Time       `gorm:"column:start_date;not null" json:"start_date"`
	EndDate           *time.Time      `gorm:"column:end_date;default:null" json:"end_date"`

	// PaymentMethodRef is an opaque token held by the gateway; never raw card data.
	PaymentMethodRef string `gorm:"column:payment_method_ref;type:varchar(128);not null" json:"payment_method_ref"`

	Status types.SubscriptionStatus `gorm:"column:status;type:varchar(16);not null;index" json:"status"`
	// NextDueDate is the scheduled date of the next billing cycle. Nil until
	// the first cycle is derived from StartDate and BillingDayOfMonth.
	NextDueDate *time.Time `gorm:"column:next_due_date;default:null;index" json:"next_due_date"`

	// Failure tracking. A cycle-level failure increments ConsecutiveFailures
	// by exactly one regardless of how many attempts the cycle burned.
	ConsecutiveFailures    int        `gorm:"column:consecutive_failures;not null;default:0" json:"consecutive_failures"`
	MaxConsecutiveFailures int        `gorm:"column:max_consecutive_failures;not null;default:3" json:"max_consecutive_failures"`
	LastFailureDate        *time.Time `gorm:"column:last_failure_date;default:null" json:"last_failure_date"`
	AlertSent              bool       `gorm:"column:alert_sent;not null;default:false" json:"alert_sent"`

	// Aggregates derived from completed payment events.
	TotalCompleted       int64           `gorm:"column:total_completed;not null;default:0" json:"total_completed"`
	TotalAmountDonated   decimal.Decimal `gorm:"column:total_amount_donated;type:numeric(14,2);not null;default:0" json:"total_amount_donated"`
	ConsecutiveSuccesses int64           `gorm:"column:consecutive_successes;not null;default:0" json:"consecutive_successes"`

	// Anniversary & recognition
	AnniversaryDate     time.Time              `gorm:"column:anniversary_date;not null" json:"anniversary_date"`
	NextAnniversaryDate *time.Time             `gorm:"column:next_anniversary_date;default:null" json:"next_anniversary_date"`
	AnniversaryNotified bool                   `gorm:"column:anniversary_notified;not null;default:false" json:"anniversary_notified"`
	RecognitionLevel    types.RecognitionLevel `gorm:"column:recognition_level;type:varchar(16);not null" json:"recognition_level"`
	SustainerBenefits   datatypes.JSONSlice[string] `gorm:"column:sustainer_benefits;type:jsonb;default:'[]'" json:"sustainer_benefits"`

	// Append-only audit histories for plan changes.
	AmountHistory    datatypes.JSONSlice[AmountChange]    `gorm:"column:amount_history;type:jsonb;default:'[]'" json:"amount_history"`
	FrequencyHistory datatypes.JSONSlice[FrequencyChange] `gorm:"column:frequency_history;type:jsonb;default:'[]'" json:"frequency_history"`

	// Lifecycle timestamps for explicit operator/donor actions.
	PausedAt           *time.Time `gorm:"column:paused_at;default:null" json:"paused_at"`
	CancelledAt        *time.Time `gorm:"column:cancelled_at;default:null" json:"cancelled_at"`
	CancellationReason *string    `gorm:"column:cancellation_reason;type:varchar(255)" json:"cancellation_reason"`

	// Communication preferences
	SendReceipts     bool                   `gorm:"column:send_receipts;not null;default:true" json:"send_receipts"`
	ReceiptFrequency types.ReceiptFrequency `gorm:"column:receipt_frequency;type:varchar(16);not null;default:'monthly'" json:"receipt_frequency"`
	Announcements    bool                   `gorm:"column:announcements;not null;default:true" json:"announcements"`
	ImpactReports    bool                   `gorm:"column:impact_reports;not null;default:true" json:"impact_reports"`
	// TaxReceiptMonth is the calendar month the annual tax receipt is issued.
	TaxReceiptMonth int    `gorm:"column:tax_receipt_month;not null;default:12" json:"tax_receipt_month"`
	DonorNotes      string `gorm:"column:donor_notes;type:text" json:"donor_notes"`
	InternalNotes   string `gorm:"column:internal_notes;type:text" json:"internal_notes"`

	// Version guards optimistic read-modify-write updates.
	Version   int64     `gorm:"column:version;not null;default:0" json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Subscription) TableName() string {
	return "subscription"
}

// Active reports whether the scheduler may emit due charges for this subscription.
func (s *Subscription) Active() bool {
	return s != nil && s.Status == types.SubscriptionStatusActive
}

// FailureLimit returns the effective consecutive-failure limit.
func (s *Subscription) FailureLimit() int {
	if s.MaxConsecutiveFailures > 0 {
		return s.MaxConsecutiveFailures
	}
	return 3
}

// Clone returns a deep-enough copy for before/after audit snapshots and
// pure state transitions. Histories are copied so appends on the clone do
// not alias the original backing arrays.
func (s *Subscription) Clone() *Subscription {
	if s == nil {
		return nil
	}
	cp := *s
	cp.AmountHistory = append(datatypes.JSONSlice[AmountChange]{}, s.AmountHistory...)
	cp.FrequencyHistory = append(datatypes.JSONSlice[FrequencyChange]{}, s.FrequencyHistory...)
	cp.SustainerBenefits = append(datatypes.JSONSlice[string]{}, s.SustainerBenefits...)
	return &cp
}
