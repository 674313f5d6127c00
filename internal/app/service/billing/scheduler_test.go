package billing_test

import (
	"context"
	"testing"
	"time"

	"github.com/pawhaven/sustainer/internal/app/service/billing"
	"github.com/pawhaven/sustainer/pkg/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestScheduler_EmitsDueCharge(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, day(2026, time.March, 15))
	e.seedMonthly(t, "sub-1")

	dues, err := e.sched.DueCharges(ctx)
	require.NoError(t, err)
	require.Len(t, dues, 1)
	require.Equal(t, "sub-1", dues[0].SubscriptionID)
	require.Equal(t, 1, dues[0].AttemptNumber)
	require.Equal(t, "sub-1:2026-03-15", dues[0].CycleID)
	require.True(t, dues[0].Amount.Equal(decimal.NewFromInt(500)))
}

func TestScheduler_SkipsFutureDue(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, day(2026, time.March, 14))
	e.seedMonthly(t, "sub-1")

	dues, err := e.sched.DueCharges(ctx)
	require.NoError(t, err)
	require.Empty(t, dues)
}

func TestScheduler_SkipsNonActive(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, day(2026, time.March, 15))
	sub := e.seedMonthly(t, "sub-1")

	paused, err := e.store.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	next := paused.Clone()
	require.NoError(t, billing.Pause(next, e.clock.Now()))
	require.NoError(t, e.store.CompareAndSwap(ctx, &billing.Write{
		Subscription:    next,
		ExpectedVersion: paused.Version,
	}))

	dues, err := e.sched.DueCharges(ctx)
	require.NoError(t, err)
	require.Empty(t, dues)
}

func TestScheduler_SkipsPastEndDate(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, day(2026, time.March, 15))
	sub := e.seedMonthly(t, "sub-1")

	loaded, err := e.store.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	next := loaded.Clone()
	end := day(2026, time.March, 1)
	next.EndDate = &end
	require.NoError(t, e.store.CompareAndSwap(ctx, &billing.Write{
		Subscription:    next,
		ExpectedVersion: loaded.Version,
	}))

	dues, err := e.sched.DueCharges(ctx)
	require.NoError(t, err)
	// The plan ended before the scheduled date; status stays untouched.
	require.Empty(t, dues)

	got, err := e.store.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	require.Equal(t, types.SubscriptionStatusActive, got.Status)
}

func TestScheduler_RetryWaitsForBackoff(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, day(2026, time.March, 15))
	seed := e.seedMonthly(t, "sub-1")

	require.NoError(t, e.proc.Apply(ctx, dueChargeFor(seed, 1), &billing.GatewayResult{
		Outcome:       types.GatewayOutcomeTransient,
		FailureReason: "timeout",
	}))

	// Backoff has not elapsed: the cycle is quiet.
	e.clock.Advance(24 * time.Hour)
	dues, err := e.sched.DueCharges(ctx)
	require.NoError(t, err)
	require.Empty(t, dues)

	// After 72h the retry becomes due with the next attempt number.
	e.clock.Advance(48 * time.Hour)
	dues, err = e.sched.DueCharges(ctx)
	require.NoError(t, err)
	require.Len(t, dues, 1)
	require.Equal(t, 2, dues[0].AttemptNumber)
	require.Equal(t, "sub-1:2026-03-15", dues[0].CycleID)
}

func TestScheduler_SettledCycleGoesQuietUntilNextDue(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, day(2026, time.March, 15))
	seed := e.seedMonthly(t, "sub-1")

	require.NoError(t, e.proc.Apply(ctx, dueChargeFor(seed, 1),
		&billing.GatewayResult{Outcome: types.GatewayOutcomeCompleted}))

	dues, err := e.sched.DueCharges(ctx)
	require.NoError(t, err)
	require.Empty(t, dues)

	// Next month the new cycle comes due.
	e.clock.Set(day(2026, time.April, 15))
	dues, err = e.sched.DueCharges(ctx)
	require.NoError(t, err)
	require.Len(t, dues, 1)
	require.Equal(t, "sub-1:2026-04-15", dues[0].CycleID)
	require.Equal(t, 1, dues[0].AttemptNumber)
}

func TestScheduler_DerivesFirstDueWhenUnset(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, day(2026, time.March, 20))
	seed := e.seedMonthly(t, "sub-1")

	loaded, err := e.store.GetSubscription(ctx, seed.ID)
	require.NoError(t, err)
	next := loaded.Clone()
	next.NextDueDate = nil
	require.NoError(t, e.store.CompareAndSwap(ctx, &billing.Write{
		Subscription:    next,
		ExpectedVersion: loaded.Version,
	}))

	dues, err := e.sched.DueCharges(ctx)
	require.NoError(t, err)
	require.Len(t, dues, 1)
	// Start date Mar 1, billing day 15: first cycle is Mar 15.
	require.Equal(t, "sub-1:2026-03-15", dues[0].CycleID)
}
