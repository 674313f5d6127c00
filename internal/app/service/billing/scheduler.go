package billing

import (
	"context"
	"fmt"

	models "github.com/pawhaven/sustainer/internal/models"
	"github.com/pawhaven/sustainer/pkg/types"

	"go.uber.org/zap"
)

// Scheduler computes the due-charge set for "now". It is a pure
// read+compute step: it never mutates subscription state, so running it
// twice in a row is harmless; the processor enforces single-counting per
// cycle via the CycleID.
type Scheduler struct {
	store Store
	clock Clock
	log   *zap.SugaredLogger
}

func NewScheduler(store Store, clock Clock, log *zap.SugaredLogger) *Scheduler {
	return &Scheduler{store: store, clock: clock, log: log}
}

// DueCharges emits one charge per subscription whose current cycle needs
// an attempt: either the cycle's first attempt, or an intra-cycle retry
// whose backoff has elapsed.
func (s *Scheduler) DueCharges(ctx context.Context) ([]*DueCharge, error) {
	now := s.clock.Now()
	subs, err := s.store.ListActiveDue(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list due subscriptions: %w", err)
	}

	var due []*DueCharge
	for _, sub := range subs {
		charge, err := s.dueChargeFor(ctx, sub)
		if err != nil {
			s.log.Errorw("skipping subscription in due scan", "subscription_id", sub.ID, "err", err)
			continue
		}
		if charge != nil {
			due = append(due, charge)
		}
	}
	return due, nil
}

func (s *Scheduler) dueChargeFor(ctx context.Context, sub *models.Subscription) (*DueCharge, error) {
	now := s.clock.Now()
	if !sub.Active() {
		return nil, nil
	}

	scheduled := FirstDueDate(sub.StartDate, sub.Frequency, sub.BillingDayOfMonth)
	if sub.NextDueDate != nil {
		scheduled = *sub.NextDueDate
	}
	if scheduled.After(now) {
		return nil, nil
	}
	// A plan past its end date quietly leaves the schedule; status is an
	// explicit donor/operator action and is not touched here.
	if sub.EndDate != nil && scheduled.After(*sub.EndDate) {
		return nil, nil
	}

	cycleID := CycleID(sub.ID, scheduled)
	events, err := s.store.EventsByCycle(ctx, sub.ID, cycleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cycle events: %w", err)
	}

	attempt := 1
	for _, ev := range events {
		if ev.Terminal() {
			// Cycle already settled; the processor advances next_due_date
			// on settlement, so this only happens on overlapping runs.
			return nil, nil
		}
		if ev.Outcome == types.PaymentOutcomePending {
			if ev.NextRetryAt == nil || ev.NextRetryAt.After(now) {
				return nil, nil
			}
			if ev.AttemptNumber >= attempt {
				attempt = ev.AttemptNumber + 1
			}
		}
	}

	return &DueCharge{
		SubscriptionID:   sub.ID,
		CycleID:          cycleID,
		AttemptNumber:    attempt,
		Amount:           sub.Amount,
		Currency:         sub.Currency,
		PaymentMethodRef: sub.PaymentMethodRef,
		ScheduledDate:    scheduled,
	}, nil
}
