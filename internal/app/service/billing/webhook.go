package billing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pawhaven/sustainer/internal/platform/gateway"
	"github.com/pawhaven/sustainer/pkg/types"
)

// ApplyWebhook finalizes a charge whose outcome arrived asynchronously.
// The notification is matched back to its attempt via the idempotency key;
// amounts come from the recorded attempt, not the current plan, so a
// concurrent amount change cannot skew the event log.
func (p *Processor) ApplyWebhook(ctx context.Context, n *gateway.WebhookNotification) error {
	if err := n.Valid(); err != nil {
		return err
	}

	sub, err := p.store.GetSubscription(ctx, n.SubscriptionID)
	if err != nil {
		return err
	}

	due := &DueCharge{
		SubscriptionID:   n.SubscriptionID,
		CycleID:          n.CycleID,
		AttemptNumber:    n.AttemptNumber,
		Amount:           sub.Amount,
		Currency:         sub.Currency,
		PaymentMethodRef: sub.PaymentMethodRef,
	}

	scheduled, err := scheduledDateFromCycleID(n.CycleID)
	if err != nil {
		return err
	}
	due.ScheduledDate = scheduled

	key := IdempotencyKey(n.SubscriptionID, n.CycleID, n.AttemptNumber)
	if ev, err := p.store.EventByIdempotencyKey(ctx, key); err != nil {
		return err
	} else if ev != nil {
		due.Amount = ev.Amount
		due.Currency = ev.Currency
		due.ScheduledDate = ev.ScheduledDate
	}

	res := &GatewayResult{
		Outcome:               types.GatewayOutcome(n.Outcome),
		ExternalTransactionID: n.TransactionID,
		FailureReason:         n.FailureReason,
	}
	return p.Apply(ctx, due, res)
}

// scheduledDateFromCycleID recovers the cycle's due date from its id,
// which is "<subscription id>:<YYYY-MM-DD>".
func scheduledDateFromCycleID(cycleID string) (time.Time, error) {
	idx := strings.LastIndex(cycleID, ":")
	if idx < 0 {
		return time.Time{}, fmt.Errorf("malformed cycle id: %s", cycleID)
	}
	t, err := time.Parse(time.DateOnly, cycleID[idx+1:])
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed cycle id %s: %w", cycleID, err)
	}
	return t, nil
}
