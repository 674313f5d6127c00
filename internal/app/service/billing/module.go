package billing

import (
	cfgpkg "github.com/pawhaven/sustainer/pkg/config"
	"github.com/pawhaven/sustainer/pkg/metrics"

	"go.uber.org/fx"
)

func newPolicy(cfg *cfgpkg.Config) *EscalationPolicy {
	return NewEscalationPolicy(cfg.Billing.RetryBudgetPerCycle, cfg.Billing.RetryBackoff)
}

// Module wires the billing engine via Fx.
var Module = fx.Options(
	fx.Provide(NewClock),
	fx.Provide(newPolicy),
	fx.Provide(NewScheduler),
	fx.Provide(NewProcessor),
	fx.Provide(NewRunner),
	fx.Invoke(func() { metrics.RegisterChargeOutcome() }),
	fx.Invoke(registerRunner),
)
