package billing

import (
	"testing"
	"time"

	models "github.com/pawhaven/sustainer/internal/models"
	"github.com/pawhaven/sustainer/pkg/types"

	"github.com/stretchr/testify/require"
)

func TestEscalationPolicy_Decide(t *testing.T) {
	policy := NewEscalationPolicy(2, 72*time.Hour)
	now := date(2026, time.March, 15)

	d1 := policy.Decide(1, now)
	require.Equal(t, DecisionRetry, d1.Kind)
	require.Equal(t, now.Add(72*time.Hour), d1.NextRetryAt)

	d2 := policy.Decide(2, now)
	require.Equal(t, DecisionRetry, d2.Kind)

	// Third attempt exceeds the budget of 2 retries.
	d3 := policy.Decide(3, now)
	require.Equal(t, DecisionFailCycle, d3.Kind)
}

func TestEscalationPolicy_Defaults(t *testing.T) {
	policy := NewEscalationPolicy(-1, 0)
	require.Equal(t, 0, policy.RetryBudgetPerCycle)
	require.Equal(t, 72*time.Hour, policy.RetryBackoff)
}

func TestApplyCycleFailure_CountsOncePerCycle(t *testing.T) {
	policy := NewEscalationPolicy(2, 72*time.Hour)
	now := date(2026, time.March, 15)
	sub := &models.Subscription{
		Status:                 types.SubscriptionStatusActive,
		MaxConsecutiveFailures: 3,
		ConsecutiveSuccesses:   5,
	}

	suspended := policy.ApplyCycleFailure(sub, now)
	require.False(t, suspended)
	require.Equal(t, 1, sub.ConsecutiveFailures)
	require.Equal(t, int64(0), sub.ConsecutiveSuccesses)
	require.Equal(t, types.SubscriptionStatusActive, sub.Status)
	require.NotNil(t, sub.LastFailureDate)
}

func TestApplyCycleFailure_SuspendsAtLimitWithOneShotAlert(t *testing.T) {
	policy := NewEscalationPolicy(2, 72*time.Hour)
	now := date(2026, time.March, 15)
	sub := &models.Subscription{
		Status:                 types.SubscriptionStatusActive,
		MaxConsecutiveFailures: 3,
		ConsecutiveFailures:    2,
	}

	suspended := policy.ApplyCycleFailure(sub, now)
	require.True(t, suspended)
	require.Equal(t, types.SubscriptionStatusFailed, sub.Status)
	require.True(t, sub.AlertSent)

	// A further failure on an already-suspended subscription must not
	// re-arm the alert.
	suspended = policy.ApplyCycleFailure(sub, now)
	require.False(t, suspended)
	require.Equal(t, 4, sub.ConsecutiveFailures)
}

func TestApplyCycleFailure_PauseWinsOverSuspension(t *testing.T) {
	policy := NewEscalationPolicy(2, 72*time.Hour)
	now := date(2026, time.March, 15)
	sub := &models.Subscription{
		Status:                 types.SubscriptionStatusPaused,
		MaxConsecutiveFailures: 3,
		ConsecutiveFailures:    2,
	}

	// An in-flight charge settling as failed after a pause still counts,
	// but never flips the paused subscription to failed or alerts.
	suspended := policy.ApplyCycleFailure(sub, now)
	require.False(t, suspended)
	require.Equal(t, types.SubscriptionStatusPaused, sub.Status)
	require.False(t, sub.AlertSent)
	require.Equal(t, 3, sub.ConsecutiveFailures)

	// Reactivate clears the counter so scheduling resumes clean.
	require.NoError(t, Reactivate(sub, now))
	require.Equal(t, types.SubscriptionStatusActive, sub.Status)
	require.Equal(t, 0, sub.ConsecutiveFailures)
}

func TestApplySuccess_ResetsFailures(t *testing.T) {
	policy := NewEscalationPolicy(2, 72*time.Hour)
	sub := &models.Subscription{ConsecutiveFailures: 2, ConsecutiveSuccesses: 3}
	policy.ApplySuccess(sub)
	require.Equal(t, 0, sub.ConsecutiveFailures)
	require.Equal(t, int64(4), sub.ConsecutiveSuccesses)
}

func TestStatusTransitions(t *testing.T) {
	now := date(2026, time.March, 15)

	t.Run("pause active", func(t *testing.T) {
		sub := &models.Subscription{Status: types.SubscriptionStatusActive}
		require.NoError(t, Pause(sub, now))
		require.Equal(t, types.SubscriptionStatusPaused, sub.Status)
		require.NotNil(t, sub.PausedAt)
	})

	t.Run("pause paused is invalid", func(t *testing.T) {
		sub := &models.Subscription{Status: types.SubscriptionStatusPaused}
		require.ErrorIs(t, Pause(sub, now), ErrInvalidTransition)
	})

	t.Run("cancel is terminal", func(t *testing.T) {
		sub := &models.Subscription{Status: types.SubscriptionStatusActive}
		require.NoError(t, Cancel(sub, "moving away", now))
		require.Equal(t, types.SubscriptionStatusCancelled, sub.Status)
		require.Equal(t, "moving away", *sub.CancellationReason)

		require.ErrorIs(t, Cancel(sub, "", now), ErrCancelledTerminal)
		require.ErrorIs(t, Pause(sub, now), ErrCancelledTerminal)
		require.ErrorIs(t, Reactivate(sub, now), ErrCancelledTerminal)
	})

	t.Run("reactivate paused", func(t *testing.T) {
		paused := now
		sub := &models.Subscription{Status: types.SubscriptionStatusPaused, PausedAt: &paused}
		require.NoError(t, Reactivate(sub, now))
		require.Equal(t, types.SubscriptionStatusActive, sub.Status)
		require.Nil(t, sub.PausedAt)
	})

	t.Run("reactivate suspended clears failure state", func(t *testing.T) {
		sub := &models.Subscription{
			Status:              types.SubscriptionStatusFailed,
			ConsecutiveFailures: 3,
			AlertSent:           true,
		}
		require.NoError(t, Reactivate(sub, now))
		require.Equal(t, types.SubscriptionStatusActive, sub.Status)
		require.Equal(t, 0, sub.ConsecutiveFailures)
		require.False(t, sub.AlertSent)
	})

	t.Run("reactivate active is invalid", func(t *testing.T) {
		sub := &models.Subscription{Status: types.SubscriptionStatusActive}
		require.ErrorIs(t, Reactivate(sub, now), ErrInvalidTransition)
	})
}
