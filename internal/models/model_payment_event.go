package models

import (
	"time"

	"github.com/pawhaven/sustainer/pkg/types"

	"github.com/shopspring/decimal"
)

// PaymentEvent is one charge attempt, immutable once its outcome is
// terminal. Retries of the same due charge share a CycleID; at most one
// terminal event per cycle counts toward subscription aggregates.
type PaymentEvent struct {
	ID             string `gorm:"column:id;type:uuid;primary_key" json:"id"`
	SubscriptionID string `gorm:"column:subscription_id;type:uuid;not null;index:idx_subscription_cycle,priority:1" json:"subscription_id"`
	CycleID        string `gorm:"column:cycle_id;type:varchar(128);not null;index:idx_subscription_cycle,priority:2" json:"cycle_id"`
	// IdempotencyKey = hash(subscriptionID, cycleID, attemptNumber); the
	// unique index is the safety net against replayed outcomes.
	IdempotencyKey string `gorm:"column:idempotency_key;type:varchar(64);not null;uniqueIndex" json:"idempotency_key"`
	AttemptNumber  int    `gorm:"column:attempt_number;not null" json:"attempt_number"`

	// ScheduledDate is the cycle's due date; RequestedAt is when the
	// attempt was dispatched to the gateway.
	ScheduledDate time.Time `gorm:"column:scheduled_date;not null" json:"scheduled_date"`
	RequestedAt   time.Time `gorm:"column:requested_at;not null" json:"requested_at"`

	Amount   decimal.Decimal `gorm:"column:amount;type:numeric(12,2);not null" json:"amount"`
	Currency string          `gorm:"column:currency;type:varchar(8);not null" json:"currency"`

	Outcome               types.PaymentOutcome `gorm:"column:outcome;type:varchar(16);not null" json:"outcome"`
	ExternalTransactionID *string              `gorm:"column:external_transaction_id;type:varchar(128)" json:"external_transaction_id"`
	FailureReason         *string              `gorm:"column:failure_reason;type:varchar(255)" json:"failure_reason"`
	// NextRetryAt is set only while the attempt is pending an intra-cycle retry.
	NextRetryAt *time.Time `gorm:"column:next_retry_at;default:null;index" json:"next_retry_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (PaymentEvent) TableName() string {
	return "payment_event"
}

func (e *PaymentEvent) Terminal() bool {
	return e != nil && e.Outcome.Terminal()
}
