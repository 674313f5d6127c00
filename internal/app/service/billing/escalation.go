package billing

import (
	"errors"
	"fmt"
	"time"

	models "github.com/pawhaven/sustainer/internal/models"
	"github.com/pawhaven/sustainer/pkg/types"
)

var (
	ErrCancelledTerminal  = errors.New("cancelled subscription has no outgoing transitions")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrSubscriptionClosed = errors.New("subscription is not active")
)

// DecisionKind classifies what the escalation policy wants done with a
// non-completed charge attempt.
type DecisionKind int

const (
	// DecisionRetry records the attempt as pending and schedules another
	// attempt within the same cycle.
	DecisionRetry DecisionKind = iota
	// DecisionFailCycle ends the cycle as failed and returns the
	// subscription to periodic scheduling; the consecutive-failure counter
	// moves by exactly one.
	DecisionFailCycle
)

type Decision struct {
	Kind        DecisionKind
	NextRetryAt time.Time
}

// EscalationPolicy decides retry-within-cycle vs cycle failure, and is the
// single authority on failure counting: failures count per cycle, never
// per attempt. The per-attempt interpretation of the legacy system
// over-counted one missed due date as several failures.
type EscalationPolicy struct {
	// RetryBudgetPerCycle is the number of attempts allowed after the
	// first one within a single cycle.
	RetryBudgetPerCycle int
	// RetryBackoff is the fixed delay before an intra-cycle retry.
	RetryBackoff time.Duration
}

func NewEscalationPolicy(retryBudget int, backoff time.Duration) *EscalationPolicy {
	if retryBudget < 0 {
		retryBudget = 0
	}
	if backoff <= 0 {
		backoff = 72 * time.Hour
	}
	return &EscalationPolicy{RetryBudgetPerCycle: retryBudget, RetryBackoff: backoff}
}

// Decide handles a transient gateway outcome for the given attempt.
// Permanent gateway failures never reach here; they fail the cycle
// immediately.
func (p *EscalationPolicy) Decide(attemptNumber int, now time.Time) Decision {
	if attemptNumber <= p.RetryBudgetPerCycle {
		return Decision{Kind: DecisionRetry, NextRetryAt: now.Add(p.RetryBackoff)}
	}
	return Decision{Kind: DecisionFailCycle}
}

// ApplyCycleFailure folds one cycle-level failure into the subscription
// and suspends it once the consecutive-failure limit is reached. The
// alert flag is one-shot: it arms only on the transition into failed.
//
// Suspension preempts active subscriptions only. When a charge was in
// flight at the moment of a pause, its failure still counts here but the
// pause wins: the subscription stays paused, no alert goes out, and
// Reactivate clears the counter before scheduling resumes.
func (p *EscalationPolicy) ApplyCycleFailure(sub *models.Subscription, now time.Time) (suspended bool) {
	sub.ConsecutiveFailures++
	sub.ConsecutiveSuccesses = 0
	sub.LastFailureDate = &now

	if sub.ConsecutiveFailures >= sub.FailureLimit() && sub.Status == types.SubscriptionStatusActive {
		sub.Status = types.SubscriptionStatusFailed
		if !sub.AlertSent {
			sub.AlertSent = true
			suspended = true
		}
	}
	return suspended
}

// ApplySuccess resets failure tracking after any completed payment,
// regardless of prior value.
func (p *EscalationPolicy) ApplySuccess(sub *models.Subscription) {
	sub.ConsecutiveFailures = 0
	sub.ConsecutiveSuccesses++
}

// Pause moves an active subscription out of scheduling. Takes effect for
// future cycles only; in-flight charges still record their outcome.
func Pause(sub *models.Subscription, now time.Time) error {
	switch sub.Status {
	case types.SubscriptionStatusCancelled:
		return ErrCancelledTerminal
	case types.SubscriptionStatusActive:
		sub.Status = types.SubscriptionStatusPaused
		sub.PausedAt = &now
		return nil
	default:
		return fmt.Errorf("%w: %s -> paused", ErrInvalidTransition, sub.Status)
	}
}

// Cancel is terminal; no transition leaves cancelled.
func Cancel(sub *models.Subscription, reason string, now time.Time) error {
	if sub.Status == types.SubscriptionStatusCancelled {
		return ErrCancelledTerminal
	}
	sub.Status = types.SubscriptionStatusCancelled
	sub.CancelledAt = &now
	if reason != "" {
		sub.CancellationReason = &reason
	}
	return nil
}

// Reactivate returns a paused or suspended subscription to scheduling and
// clears the failure state so the next cycle starts clean.
func Reactivate(sub *models.Subscription, now time.Time) error {
	switch sub.Status {
	case types.SubscriptionStatusCancelled:
		return ErrCancelledTerminal
	case types.SubscriptionStatusPaused, types.SubscriptionStatusFailed:
		sub.Status = types.SubscriptionStatusActive
		sub.ConsecutiveFailures = 0
		sub.AlertSent = false
		sub.PausedAt = nil
		return nil
	default:
		return fmt.Errorf("%w: %s -> active", ErrInvalidTransition, sub.Status)
	}
}
