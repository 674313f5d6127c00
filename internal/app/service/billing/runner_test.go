package billing_test

import (
	"context"
	"testing"
	"time"

	"github.com/pawhaven/sustainer/internal/app/service/billing"
	"github.com/pawhaven/sustainer/internal/platform/gateway"
	"github.com/pawhaven/sustainer/internal/testutil"
	cfgpkg "github.com/pawhaven/sustainer/pkg/config"
	"github.com/pawhaven/sustainer/pkg/types"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig() *cfgpkg.Config {
	return &cfgpkg.Config{
		Billing: cfgpkg.BillingConfig{
			TickInterval:           time.Minute,
			Workers:                4,
			RetryBudgetPerCycle:    2,
			RetryBackoff:           72 * time.Hour,
			MaxConsecutiveFailures: 3,
			GatewayRatePerSecond:   1000,
		},
		Gateway: cfgpkg.GatewayConfig{Timeout: 5 * time.Second},
	}
}

func TestRunner_RunOnceChargesDueSubscriptions(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, day(2026, time.March, 15))
	e.seedMonthly(t, "sub-1")
	e.seedMonthly(t, "sub-2")

	gw := testutil.NewFakeGateway(&gateway.ChargeResult{
		Outcome:       types.GatewayOutcomeCompleted,
		TransactionID: "txn-1",
	})
	runner := billing.NewRunner(e.sched, e.proc, gw, testConfig(), e.clock, zap.NewNop().Sugar())

	n, err := runner.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Len(t, gw.Requests, 2)

	for _, id := range []string{"sub-1", "sub-2"} {
		sub, err := e.store.GetSubscription(ctx, id)
		require.NoError(t, err)
		require.Equal(t, int64(1), sub.TotalCompleted)
		require.Equal(t, day(2026, time.April, 15), *sub.NextDueDate)
	}

	// The next run finds nothing due.
	n, err = runner.RunOnce(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestRunner_SendsIdempotencyKeyToGateway(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, day(2026, time.March, 15))
	e.seedMonthly(t, "sub-1")

	gw := testutil.NewFakeGateway(&gateway.ChargeResult{Outcome: types.GatewayOutcomeCompleted})
	runner := billing.NewRunner(e.sched, e.proc, gw, testConfig(), e.clock, zap.NewNop().Sugar())

	_, err := runner.RunOnce(ctx)
	require.NoError(t, err)
	require.Len(t, gw.Requests, 1)
	want := billing.IdempotencyKey("sub-1", "sub-1:2026-03-15", 1)
	require.Equal(t, want, gw.Requests[0].IdempotencyKey)
}
