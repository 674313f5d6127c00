package models

import (
	"time"

	"gorm.io/datatypes"
)

type NotificationKind string

const (
	NotificationKindPaymentCompleted   NotificationKind = "payment_completed"
	NotificationKindSubscriptionFailed NotificationKind = "subscription_failed"
	NotificationKindAnniversaryReached NotificationKind = "anniversary_reached"
)

type NotificationLogStatus string

const (
	NotificationLogStatusPending    NotificationLogStatus = "pending"
	NotificationLogStatusDispatched NotificationLogStatus = "dispatched"
)

// NotificationLog is the durable record of events emitted for the
// downstream delivery system (email/SMS is out of scope here).
type NotificationLog struct {
	ID             string                `gorm:"column:id;type:uuid;primary_key" json:"id"`
	Kind           NotificationKind      `gorm:"column:kind;type:varchar(64);not null;index" json:"kind"`
	SubscriptionID string                `gorm:"column:subscription_id;type:uuid;not null;index" json:"subscription_id"`
	DonorID        string                `gorm:"column:donor_id;type:varchar(64);not null" json:"donor_id"`
	TraceID        string                `gorm:"column:trace_id;type:varchar(128)" json:"trace_id"`
	Payload        datatypes.JSON        `gorm:"column:payload;type:jsonb" json:"payload"`
	Status         NotificationLogStatus `gorm:"column:status;type:varchar(16);not null" json:"status"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

func (NotificationLog) TableName() string { return "notification_log" }
