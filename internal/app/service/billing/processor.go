package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	notification "github.com/pawhaven/sustainer/internal/app/service/notification"
	models "github.com/pawhaven/sustainer/internal/models"
	"github.com/pawhaven/sustainer/pkg/tool"
	"github.com/pawhaven/sustainer/pkg/types"

	"github.com/cenkalti/backoff/v4"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// GatewayResult is the gateway's answer for one charge attempt.
type GatewayResult struct {
	Outcome               types.GatewayOutcome
	ExternalTransactionID string
	FailureReason         string
}

// Processor applies a gateway result to a subscription exactly once per
// cycle. Every state change is built as a pure transition on a copy of
// the subscription and lands in a single compare-and-swap write, so no
// partial aggregate update is ever visible and the whole apply is safe
// to re-run.
type Processor struct {
	store    Store
	policy   *EscalationPolicy
	notifier notification.Publisher
	clock    Clock
	log      *zap.SugaredLogger
}

func NewProcessor(store Store, policy *EscalationPolicy, notifier notification.Publisher, clock Clock, log *zap.SugaredLogger) *Processor {
	return &Processor{store: store, policy: policy, notifier: notifier, clock: clock, log: log}
}

// Apply records the outcome of a due charge. Version conflicts and
// duplicate-key races are retried with exponential backoff; the
// idempotency key guarantees a retried apply is a no-op once the attempt
// has been recorded.
func (p *Processor) Apply(ctx context.Context, due *DueCharge, res *GatewayResult) error {
	operation := func() error {
		err := p.applyOnce(ctx, due, res)
		if errors.Is(err, ErrVersionConflict) || errors.Is(err, ErrDuplicateEvent) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx)
	return backoff.Retry(operation, bo)
}

func (p *Processor) applyOnce(ctx context.Context, due *DueCharge, res *GatewayResult) error {
	now := p.clock.Now()

	sub, err := p.store.GetSubscription(ctx, due.SubscriptionID)
	if err != nil {
		return fmt.Errorf("failed to load subscription: %w", err)
	}

	events, err := p.store.EventsByCycle(ctx, due.SubscriptionID, due.CycleID)
	if err != nil {
		return fmt.Errorf("failed to load cycle events: %w", err)
	}
	for _, ev := range events {
		if ev.Terminal() {
			// The cycle already settled; anything arriving now is a replay.
			return nil
		}
	}

	key := IdempotencyKey(due.SubscriptionID, due.CycleID, due.AttemptNumber)
	existing := lo.FindOrElse(events, nil, func(ev *models.PaymentEvent) bool {
		return ev.IdempotencyKey == key
	})
	if existing != nil && res.Outcome == types.GatewayOutcomeTransient {
		// Attempt already recorded as pending; a repeated transient
		// delivery adds nothing.
		return nil
	}

	w := &Write{ExpectedVersion: sub.Version}
	event := existing
	if event == nil {
		event = &models.PaymentEvent{
			ID:             tool.GenerateUUIDV7(),
			SubscriptionID: due.SubscriptionID,
			CycleID:        due.CycleID,
			IdempotencyKey: key,
			AttemptNumber:  due.AttemptNumber,
			ScheduledDate:  due.ScheduledDate,
			RequestedAt:    now,
			Amount:         due.Amount,
			Currency:       due.Currency,
		}
		w.Events = []*models.PaymentEvent{event}
	} else {
		// A pending attempt resolving asynchronously (gateway webhook).
		w.UpdateEvents = []*models.PaymentEvent{event}
	}

	next := sub.Clone()
	reason := types.SubscriptionChangeReasonPaymentOutcome
	var notes []*notification.Event

	switch res.Outcome {
	case types.GatewayOutcomeCompleted:
		event.Outcome = types.PaymentOutcomeCompleted
		event.NextRetryAt = nil
		if res.ExternalTransactionID != "" {
			event.ExternalTransactionID = lo.ToPtr(res.ExternalTransactionID)
		}
		notes = p.applyCompleted(next, due, now)

	case types.GatewayOutcomeTransient:
		decision := p.policy.Decide(due.AttemptNumber, now)
		if decision.Kind == DecisionRetry {
			event.Outcome = types.PaymentOutcomePending
			event.NextRetryAt = &decision.NextRetryAt
			if res.FailureReason != "" {
				event.FailureReason = lo.ToPtr(res.FailureReason)
			}
			// Aggregates and failure counters are untouched until the
			// cycle itself settles.
			break
		}
		event.Outcome = types.PaymentOutcomeFailed
		event.NextRetryAt = nil
		event.FailureReason = lo.ToPtr(failureReasonOrDefault(res, "retry budget exhausted"))
		if suspended := p.applyCycleFailure(next, due, now); suspended {
			reason = types.SubscriptionChangeReasonFailureLimit
			notes = append(notes, p.failureNote(next))
		}

	case types.GatewayOutcomeFailed:
		event.Outcome = types.PaymentOutcomeFailed
		event.NextRetryAt = nil
		event.FailureReason = lo.ToPtr(failureReasonOrDefault(res, "payment declined"))
		if res.ExternalTransactionID != "" {
			event.ExternalTransactionID = lo.ToPtr(res.ExternalTransactionID)
		}
		if suspended := p.applyCycleFailure(next, due, now); suspended {
			reason = types.SubscriptionChangeReasonFailureLimit
			notes = append(notes, p.failureNote(next))
		}

	default:
		return fmt.Errorf("unknown gateway outcome: %s", res.Outcome)
	}

	w.Subscription = next
	w.Log = &models.SubscriptionLog{
		ID:             tool.GenerateUUIDV7(),
		SubscriptionID: sub.ID,
		DonorID:        sub.DonorID,
		Reason:         reason,
		Before:         datatypes.NewJSONType(sub),
		After:          datatypes.NewJSONType(next),
		Extra:          datatypes.JSONMap{"cycle_id": due.CycleID, "attempt": due.AttemptNumber},
	}

	if err := p.store.CompareAndSwap(ctx, w); err != nil {
		return err
	}

	for _, note := range notes {
		p.notifier.Publish(ctx, note)
	}
	return nil
}

// applyCompleted folds a successful charge into the aggregates and
// re-derives recognition and anniversary state.
func (p *Processor) applyCompleted(next *models.Subscription, due *DueCharge, now time.Time) []*notification.Event {
	next.TotalCompleted++
	next.TotalAmountDonated = next.TotalAmountDonated.Add(due.Amount)
	p.policy.ApplySuccess(next)
	next.RecognitionLevel = RecognitionFor(next.Amount, next.TotalCompleted)
	next.NextDueDate = lo.ToPtr(AdvanceDueDate(due.ScheduledDate, next.Frequency, next.BillingDayOfMonth))

	EnsureNextAnniversary(next)
	AdvanceAnniversaryIfPassed(next, now)

	notes := []*notification.Event{{
		Kind:           models.NotificationKindPaymentCompleted,
		SubscriptionID: next.ID,
		DonorID:        next.DonorID,
		Payload: map[string]any{
			"cycle_id": due.CycleID,
			"amount":   due.Amount,
			"currency": due.Currency,
		},
	}}
	if IsAnniversaryMonth(next, now) {
		MarkAnniversaryNotified(next)
		notes = append(notes, &notification.Event{
			Kind:           models.NotificationKindAnniversaryReached,
			SubscriptionID: next.ID,
			DonorID:        next.DonorID,
			Payload:        map[string]any{"anniversary_date": next.AnniversaryDate},
		})
	}
	return notes
}

func (p *Processor) applyCycleFailure(next *models.Subscription, due *DueCharge, now time.Time) bool {
	suspended := p.policy.ApplyCycleFailure(next, now)
	// The cycle is settled; return to periodic scheduling even when the
	// subscription was suspended, so a later reactivation resumes cleanly.
	next.NextDueDate = lo.ToPtr(AdvanceDueDate(due.ScheduledDate, next.Frequency, next.BillingDayOfMonth))
	return suspended
}

func (p *Processor) failureNote(next *models.Subscription) *notification.Event {
	return &notification.Event{
		Kind:           models.NotificationKindSubscriptionFailed,
		SubscriptionID: next.ID,
		DonorID:        next.DonorID,
		Payload: map[string]any{
			"consecutive_failures": next.ConsecutiveFailures,
			"limit":                next.FailureLimit(),
		},
	}
}

// SweepAnniversaries runs the scheduled half of the recognition engine:
// it arms missing anniversary windows, rolls windows that the calendar
// has passed, and emits one congratulation per anniversary month.
func (p *Processor) SweepAnniversaries(ctx context.Context) error {
	now := p.clock.Now()
	subs, err := p.store.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to list active subscriptions: %w", err)
	}

	for _, sub := range subs {
		next := sub.Clone()
		EnsureNextAnniversary(next)
		AdvanceAnniversaryIfPassed(next, now)

		var note *notification.Event
		if IsAnniversaryMonth(next, now) {
			MarkAnniversaryNotified(next)
			note = &notification.Event{
				Kind:           models.NotificationKindAnniversaryReached,
				SubscriptionID: next.ID,
				DonorID:        next.DonorID,
				Payload:        map[string]any{"anniversary_date": next.AnniversaryDate},
			}
		}
		if !anniversaryChanged(sub, next) {
			continue
		}

		w := &Write{
			Subscription:    next,
			ExpectedVersion: sub.Version,
			Log: &models.SubscriptionLog{
				ID:             tool.GenerateUUIDV7(),
				SubscriptionID: sub.ID,
				DonorID:        sub.DonorID,
				Reason:         types.SubscriptionChangeReasonPaymentOutcome,
				Before:         datatypes.NewJSONType(sub),
				After:          datatypes.NewJSONType(next),
				Extra:          datatypes.JSONMap{"trigger": "anniversary_sweep"},
			},
		}
		if err := p.store.CompareAndSwap(ctx, w); err != nil {
			// A concurrent payment already advanced this subscription;
			// the next sweep will settle it.
			p.log.Warnw("anniversary sweep write skipped", "subscription_id", sub.ID, "err", err)
			continue
		}
		if note != nil {
			p.notifier.Publish(ctx, note)
		}
	}
	return nil
}

func anniversaryChanged(before, after *models.Subscription) bool {
	if before.AnniversaryNotified != after.AnniversaryNotified {
		return true
	}
	switch {
	case before.NextAnniversaryDate == nil && after.NextAnniversaryDate == nil:
		return false
	case before.NextAnniversaryDate == nil || after.NextAnniversaryDate == nil:
		return true
	default:
		return !before.NextAnniversaryDate.Equal(*after.NextAnniversaryDate)
	}
}

func failureReasonOrDefault(res *GatewayResult, def string) string {
	if res.FailureReason != "" {
		return res.FailureReason
	}
	return def
}
