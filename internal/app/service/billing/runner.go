package billing

import (
	"context"
	"time"

	"github.com/pawhaven/sustainer/internal/platform/gateway"
	cfgpkg "github.com/pawhaven/sustainer/pkg/config"
	"github.com/pawhaven/sustainer/pkg/metrics"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Runner drives the periodic billing batch: each tick computes the due
// set and drains it through a bounded worker pool, one gateway call per
// due charge. Gateway dispatch is rate limited; per-subscription locking
// keeps overlapping ticks from racing on the same donor.
type Runner struct {
	sched   *Scheduler
	proc    *Processor
	gw      gateway.Gateway
	cfg     *cfgpkg.Config
	clock   Clock
	log     *zap.SugaredLogger
	limiter *rate.Limiter
	locks   *keyedMutex
}

func NewRunner(sched *Scheduler, proc *Processor, gw gateway.Gateway, cfg *cfgpkg.Config, clock Clock, log *zap.SugaredLogger) *Runner {
	rps := cfg.Billing.GatewayRatePerSecond
	if rps <= 0 {
		rps = 10
	}
	return &Runner{
		sched:   sched,
		proc:    proc,
		gw:      gw,
		cfg:     cfg,
		clock:   clock,
		log:     log,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		locks:   newKeyedMutex(),
	}
}

// RunOnce executes one billing tick and returns how many due charges it
// dispatched.
func (r *Runner) RunOnce(ctx context.Context) (int, error) {
	start := r.clock.Now()

	dues, err := r.sched.DueCharges(ctx)
	if err != nil {
		return 0, err
	}

	workers := r.cfg.Billing.Workers
	if workers <= 0 {
		workers = 1
	}
	p := pool.New().WithMaxGoroutines(workers)
	for _, due := range dues {
		due := due
		p.Go(func() { r.processOne(ctx, due) })
	}
	p.Wait()

	if err := r.proc.SweepAnniversaries(ctx); err != nil {
		r.log.Errorw("anniversary sweep failed", "err", err)
	}

	metrics.ObserveBusinessProcess("billing", "tick", float64(time.Since(start).Milliseconds()))
	if len(dues) > 0 {
		r.log.Infow("billing tick complete", "due_charges", len(dues), "elapsed_ms", time.Since(start).Milliseconds())
	}
	return len(dues), nil
}

func (r *Runner) processOne(ctx context.Context, due *DueCharge) {
	unlock := r.locks.Lock(due.SubscriptionID)
	defer unlock()

	if err := r.limiter.Wait(ctx); err != nil {
		return
	}

	chargeCtx, cancel := context.WithTimeout(ctx, r.cfg.Gateway.Timeout)
	defer cancel()

	res, err := r.gw.Charge(chargeCtx, &gateway.ChargeRequest{
		PaymentMethodRef: due.PaymentMethodRef,
		Amount:           due.Amount,
		Currency:         due.Currency,
		IdempotencyKey:   IdempotencyKey(due.SubscriptionID, due.CycleID, due.AttemptNumber),
	})
	if err != nil {
		r.log.Errorw("gateway charge aborted", "subscription_id", due.SubscriptionID, "cycle_id", due.CycleID, "err", err)
		return
	}
	metrics.IncChargeOutcome(string(res.Outcome))

	result := &GatewayResult{
		Outcome:               res.Outcome,
		ExternalTransactionID: res.TransactionID,
		FailureReason:         res.FailureReason,
	}
	if err := r.proc.Apply(ctx, due, result); err != nil {
		r.log.Errorw("failed to apply charge outcome",
			"subscription_id", due.SubscriptionID,
			"cycle_id", due.CycleID,
			"attempt", due.AttemptNumber,
			"err", err,
		)
	}
}

// registerRunner ticks the billing batch for the lifetime of the app.
func registerRunner(lc fx.Lifecycle, r *Runner, log *zap.SugaredLogger) {
	stop := make(chan struct{})
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			interval := r.cfg.Billing.TickInterval
			if interval <= 0 {
				interval = 5 * time.Minute
			}
			log.Infow("starting billing runner", "tick_interval", interval)
			go func() {
				defer close(done)
				ticker := time.NewTicker(interval)
				defer ticker.Stop()
				for {
					select {
					case <-stop:
						return
					case <-ticker.C:
						if _, err := r.RunOnce(context.Background()); err != nil {
							log.Errorw("billing tick failed", "err", err)
						}
					}
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Infow("stopping billing runner")
			close(stop)
			select {
			case <-done:
			case <-ctx.Done():
			}
			return nil
		},
	})
}
