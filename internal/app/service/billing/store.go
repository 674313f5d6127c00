package billing

import (
	"context"
	"errors"
	"time"

	models "github.com/pawhaven/sustainer/internal/models"
)

var (
	// ErrVersionConflict is returned by CompareAndSwap when the expected
	// version no longer matches; the whole apply operation is retried.
	ErrVersionConflict = errors.New("subscription version conflict")

	ErrSubscriptionNotFound = errors.New("subscription not found")

	// ErrDuplicateEvent is returned when an appended event's idempotency
	// key already exists.
	ErrDuplicateEvent = errors.New("duplicate payment event")
)

// Write is one atomic read-modify-write against the store: the
// subscription row is swapped only if its version still matches
// ExpectedVersion, and the events and audit log land in the same
// transaction. No partial update is ever visible.
type Write struct {
	Subscription    *models.Subscription
	ExpectedVersion int64
	Events          []*models.PaymentEvent
	UpdateEvents    []*models.PaymentEvent
	Log             *models.SubscriptionLog
}

// Store is the durable repository for subscriptions and the append-only
// payment-event log. Implementations must guarantee atomic per-subscription
// updates; no correctness property here spans two subscriptions.
type Store interface {
	GetSubscription(ctx context.Context, id string) (*models.Subscription, error)
	CreateSubscription(ctx context.Context, sub *models.Subscription, log *models.SubscriptionLog) error
	CompareAndSwap(ctx context.Context, w *Write) error

	EventsByCycle(ctx context.Context, subscriptionID, cycleID string) ([]*models.PaymentEvent, error)
	EventByIdempotencyKey(ctx context.Context, key string) (*models.PaymentEvent, error)
	ListEvents(ctx context.Context, subscriptionID string) ([]*models.PaymentEvent, error)

	// ListActiveDue returns active subscriptions whose next due date has
	// arrived (or has never been derived yet).
	ListActiveDue(ctx context.Context, now time.Time) ([]*models.Subscription, error)

	// ListActive returns all active subscriptions, for derivations that
	// run on schedule rather than per payment (anniversaries, snapshots).
	ListActive(ctx context.Context) ([]*models.Subscription, error)
}
