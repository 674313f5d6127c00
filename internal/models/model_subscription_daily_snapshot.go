package models

import (
	"time"

	"github.com/pawhaven/sustainer/pkg/types"

	"github.com/shopspring/decimal"
)

// SubscriptionDailySnapshot is a daily sustainer snapshot for analytics.
type SubscriptionDailySnapshot struct {
	ID                 string                   `gorm:"column:id;type:uuid;primary_key" json:"id"`
	SubscriptionID     string                   `gorm:"column:subscription_id;type:uuid;not null;uniqueIndex:idx_subscription_snapshot_date,priority:1" json:"subscription_id"`
	DonorID            string                   `gorm:"column:donor_id;type:varchar(64);not null" json:"donor_id"`
	Status             types.SubscriptionStatus `gorm:"column:status;type:varchar(16);not null" json:"status"`
	Amount             decimal.Decimal          `gorm:"column:amount;type:numeric(12,2);not null" json:"amount"`
	Currency           string                   `gorm:"column:currency;type:varchar(8);not null" json:"currency"`
	Frequency          types.Frequency          `gorm:"column:frequency;type:varchar(16);not null" json:"frequency"`
	TotalCompleted     int64                    `gorm:"column:total_completed;not null" json:"total_completed"`
	TotalAmountDonated decimal.Decimal          `gorm:"column:total_amount_donated;type:numeric(14,2);not null" json:"total_amount_donated"`
	RecognitionLevel   types.RecognitionLevel   `gorm:"column:recognition_level;type:varchar(16);not null" json:"recognition_level"`
	SnapshotDate       string                   `gorm:"column:snapshot_date;uniqueIndex:idx_subscription_snapshot_date,priority:2" json:"snapshot_date"`
	SnapshotCreatedAt  time.Time                `gorm:"column:snapshot_created_at" json:"snapshot_created_at"`
}

func (SubscriptionDailySnapshot) TableName() string {
	return "subscription_daily_snapshot"
}
