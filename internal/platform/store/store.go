package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pawhaven/sustainer/internal/app/service/billing"
	models "github.com/pawhaven/sustainer/internal/models"
	"github.com/pawhaven/sustainer/pkg/types"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// GormStore backs the billing engine with postgres. CompareAndSwap is the
// only write path for established subscriptions; the guarded UPDATE plus
// the unique idempotency-key index give the processor its atomicity.
type GormStore struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func NewGormStore(db *gorm.DB, log *zap.SugaredLogger) *GormStore {
	return &GormStore{db: db, log: log}
}

func (s *GormStore) GetSubscription(ctx context.Context, id string) (*models.Subscription, error) {
	var sub models.Subscription
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, billing.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("failed to load subscription %s: %w", id, err)
	}
	return &sub, nil
}

func (s *GormStore) CreateSubscription(ctx context.Context, sub *models.Subscription, log *models.SubscriptionLog) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(sub).Error; err != nil {
			return fmt.Errorf("failed to create subscription: %w", err)
		}
		if log != nil {
			if err := tx.Create(log).Error; err != nil {
				return fmt.Errorf("failed to write subscription log: %w", err)
			}
		}
		return nil
	})
}

// CompareAndSwap applies one atomic write: the subscription row is updated
// only if its version still matches, and any events and audit log land in
// the same transaction. RowsAffected == 0 on the guarded update means a
// concurrent writer won; callers retry from a fresh read.
func (s *GormStore) CompareAndSwap(ctx context.Context, w *billing.Write) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if w.Subscription != nil {
			w.Subscription.Version = w.ExpectedVersion + 1
			res := tx.Model(&models.Subscription{}).
				Where("id = ? AND version = ?", w.Subscription.ID, w.ExpectedVersion).
				Select("*").
				Omit("id", "created_at").
				Updates(w.Subscription)
			if res.Error != nil {
				return fmt.Errorf("failed to update subscription: %w", res.Error)
			}
			if res.RowsAffected == 0 {
				return billing.ErrVersionConflict
			}
		}

		for _, ev := range w.Events {
			if err := tx.Create(ev).Error; err != nil {
				if isUniqueViolation(err) {
					return billing.ErrDuplicateEvent
				}
				return fmt.Errorf("failed to append payment event: %w", err)
			}
		}

		for _, ev := range w.UpdateEvents {
			res := tx.Model(&models.PaymentEvent{}).
				Where("id = ?", ev.ID).
				Select("outcome", "external_transaction_id", "failure_reason", "next_retry_at").
				Updates(ev)
			if res.Error != nil {
				return fmt.Errorf("failed to update payment event: %w", res.Error)
			}
		}

		if w.Log != nil {
			if err := tx.Create(w.Log).Error; err != nil {
				return fmt.Errorf("failed to write subscription log: %w", err)
			}
		}
		return nil
	})
}

func (s *GormStore) EventsByCycle(ctx context.Context, subscriptionID, cycleID string) ([]*models.PaymentEvent, error) {
	var events []*models.PaymentEvent
	err := s.db.WithContext(ctx).
		Where("subscription_id = ? AND cycle_id = ?", subscriptionID, cycleID).
		Order("attempt_number asc").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load cycle events: %w", err)
	}
	return events, nil
}

func (s *GormStore) EventByIdempotencyKey(ctx context.Context, key string) (*models.PaymentEvent, error) {
	var ev models.PaymentEvent
	err := s.db.WithContext(ctx).Where("idempotency_key = ?", key).First(&ev).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load payment event: %w", err)
	}
	return &ev, nil
}

func (s *GormStore) ListEvents(ctx context.Context, subscriptionID string) ([]*models.PaymentEvent, error) {
	var events []*models.PaymentEvent
	err := s.db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("scheduled_date asc, attempt_number asc").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list payment events: %w", err)
	}
	return events, nil
}

func (s *GormStore) ListActiveDue(ctx context.Context, now time.Time) ([]*models.Subscription, error) {
	var subs []*models.Subscription
	err := s.db.WithContext(ctx).
		Where("status = ?", types.SubscriptionStatusActive).
		Where("next_due_date IS NULL OR next_due_date <= ?", now).
		Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list due subscriptions: %w", err)
	}
	return subs, nil
}

func (s *GormStore) ListActive(ctx context.Context) ([]*models.Subscription, error) {
	var subs []*models.Subscription
	err := s.db.WithContext(ctx).Where("status = ?", types.SubscriptionStatusActive).Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active subscriptions: %w", err)
	}
	return subs, nil
}

func isUniqueViolation(err error) bool {
	// 23505 is postgres unique_violation; matching on the message keeps us
	// off the driver's error types.
	return err != nil && (strings.Contains(err.Error(), "23505") ||
		strings.Contains(err.Error(), "duplicate key value"))
}

var _ billing.Store = (*GormStore)(nil)
