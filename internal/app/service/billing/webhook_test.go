package billing_test

import (
	"context"
	"testing"
	"time"

	"github.com/pawhaven/sustainer/internal/app/service/billing"
	"github.com/pawhaven/sustainer/internal/platform/gateway"
	"github.com/pawhaven/sustainer/pkg/types"

	"github.com/stretchr/testify/require"
)

func TestApplyWebhook_FinalizesPendingCharge(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, day(2026, time.March, 15))
	seed := e.seedMonthly(t, "sub-1")

	require.NoError(t, e.proc.Apply(ctx, dueChargeFor(seed, 1), &billing.GatewayResult{
		Outcome:       types.GatewayOutcomeTransient,
		FailureReason: "processing",
	}))

	err := e.proc.ApplyWebhook(ctx, &gateway.WebhookNotification{
		SubscriptionID: "sub-1",
		CycleID:        "sub-1:2026-03-15",
		AttemptNumber:  1,
		Outcome:        string(types.GatewayOutcomeCompleted),
		TransactionID:  "txn-async",
	})
	require.NoError(t, err)

	sub, err := e.store.GetSubscription(ctx, "sub-1")
	require.NoError(t, err)
	require.Equal(t, int64(1), sub.TotalCompleted)
	require.Equal(t, day(2026, time.April, 15), *sub.NextDueDate)

	events := e.store.Events()
	require.Len(t, events, 1)
	require.Equal(t, types.PaymentOutcomeCompleted, events[0].Outcome)
	require.Equal(t, "txn-async", *events[0].ExternalTransactionID)
}

func TestApplyWebhook_RejectsMalformedNotification(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, day(2026, time.March, 15))
	e.seedMonthly(t, "sub-1")

	err := e.proc.ApplyWebhook(ctx, &gateway.WebhookNotification{
		SubscriptionID: "sub-1",
		CycleID:        "sub-1:2026-03-15",
		AttemptNumber:  1,
		Outcome:        "refunded",
	})
	require.ErrorIs(t, err, gateway.ErrWebhookInvalid)
}

func TestApplyWebhook_UnknownSubscription(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, day(2026, time.March, 15))

	err := e.proc.ApplyWebhook(ctx, &gateway.WebhookNotification{
		SubscriptionID: "missing",
		CycleID:        "missing:2026-03-15",
		AttemptNumber:  1,
		Outcome:        string(types.GatewayOutcomeCompleted),
	})
	require.ErrorIs(t, err, billing.ErrSubscriptionNotFound)
}
