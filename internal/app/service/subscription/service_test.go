package subscription_test

import (
	"context"
	"testing"
	"time"

	"github.com/pawhaven/sustainer/internal/app/service/billing"
	subsvc "github.com/pawhaven/sustainer/internal/app/service/subscription"
	"github.com/pawhaven/sustainer/internal/testutil"
	cfgpkg "github.com/pawhaven/sustainer/pkg/config"
	"github.com/pawhaven/sustainer/pkg/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newService(now time.Time) (*subsvc.Service, *testutil.MemoryStore, *testutil.FakeClock) {
	return newServiceWithConfig(now, &cfgpkg.Config{
		Billing: cfgpkg.BillingConfig{MaxConsecutiveFailures: 3},
	})
}

func newServiceWithConfig(now time.Time, cfg *cfgpkg.Config) (*subsvc.Service, *testutil.MemoryStore, *testutil.FakeClock) {
	store := testutil.NewMemoryStore()
	clock := testutil.NewFakeClock(now)
	return subsvc.NewService(nil, store, clock, cfg, zap.NewNop().Sugar()), store, clock
}

func validParams() *subsvc.CreateParams {
	return &subsvc.CreateParams{
		DonorID:           "donor-1",
		DonorName:         "Alex Kim",
		DonorEmail:        "alex@example.org",
		Amount:            decimal.NewFromInt(50),
		Currency:          "USD",
		Frequency:         types.FrequencyMonthly,
		BillingDayOfMonth: 15,
		StartDate:         day(2026, time.March, 1),
		PaymentMethodRef:  "pm_tok_1",
		SendReceipts:      true,
	}
}

func TestCreate_DerivesFirstDueDateAndAnniversary(t *testing.T) {
	svc, store, _ := newService(day(2026, time.March, 1))

	sub, err := svc.Create(context.Background(), validParams())
	require.NoError(t, err)
	require.NotEmpty(t, sub.ID)
	require.Equal(t, types.SubscriptionStatusActive, sub.Status)
	require.Equal(t, day(2026, time.March, 15), *sub.NextDueDate)
	require.NotNil(t, sub.NextAnniversaryDate)
	require.Equal(t, types.RecognitionLevelBasic, sub.RecognitionLevel)

	logs := store.Logs()
	require.Len(t, logs, 1)
	require.Equal(t, types.SubscriptionChangeReasonCreate, logs[0].Reason)
}

func TestCreate_CommunicationPreferenceDefaults(t *testing.T) {
	svc, _, _ := newService(day(2026, time.March, 1))

	sub, err := svc.Create(context.Background(), validParams())
	require.NoError(t, err)
	require.Equal(t, types.ReceiptFrequencyMonthly, sub.ReceiptFrequency)
	require.Equal(t, 12, sub.TaxReceiptMonth)

	p := validParams()
	p.ReceiptFrequency = types.ReceiptFrequencyAnnually
	p.TaxReceiptMonth = 6
	p.Announcements = true
	p.ImpactReports = true
	sub, err = svc.Create(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, types.ReceiptFrequencyAnnually, sub.ReceiptFrequency)
	require.Equal(t, 6, sub.TaxReceiptMonth)
	require.True(t, sub.Announcements)
	require.True(t, sub.ImpactReports)
}

func TestCreate_UsesConfiguredFailureLimit(t *testing.T) {
	svc, _, _ := newServiceWithConfig(day(2026, time.March, 1), &cfgpkg.Config{
		Billing: cfgpkg.BillingConfig{MaxConsecutiveFailures: 5},
	})

	sub, err := svc.Create(context.Background(), validParams())
	require.NoError(t, err)
	require.Equal(t, 5, sub.MaxConsecutiveFailures)

	// A missing limit falls back to the default of 3.
	svc, _, _ = newServiceWithConfig(day(2026, time.March, 1), &cfgpkg.Config{})
	sub, err = svc.Create(context.Background(), validParams())
	require.NoError(t, err)
	require.Equal(t, 3, sub.MaxConsecutiveFailures)
}

func TestCreate_Validation(t *testing.T) {
	svc, _, _ := newService(day(2026, time.March, 1))
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(p *subsvc.CreateParams)
	}{
		{"missing donor", func(p *subsvc.CreateParams) { p.DonorID = "" }},
		{"zero amount", func(p *subsvc.CreateParams) { p.Amount = decimal.Zero }},
		{"negative amount", func(p *subsvc.CreateParams) { p.Amount = decimal.NewFromInt(-5) }},
		{"missing currency", func(p *subsvc.CreateParams) { p.Currency = "" }},
		{"bad frequency", func(p *subsvc.CreateParams) { p.Frequency = "daily" }},
		{"billing day zero", func(p *subsvc.CreateParams) { p.BillingDayOfMonth = 0 }},
		{"billing day 32", func(p *subsvc.CreateParams) { p.BillingDayOfMonth = 32 }},
		{"end before start", func(p *subsvc.CreateParams) {
			end := day(2026, time.February, 1)
			p.EndDate = &end
		}},
		{"missing payment method", func(p *subsvc.CreateParams) { p.PaymentMethodRef = "" }},
		{"bad receipt frequency", func(p *subsvc.CreateParams) { p.ReceiptFrequency = "daily" }},
		{"tax receipt month 13", func(p *subsvc.CreateParams) { p.TaxReceiptMonth = 13 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validParams()
			tt.mutate(p)
			_, err := svc.Create(ctx, p)
			var ve *subsvc.ValidationError
			require.ErrorAs(t, err, &ve)
		})
	}
}

func TestPauseCancelReactivate(t *testing.T) {
	svc, _, _ := newService(day(2026, time.March, 1))
	ctx := context.Background()

	sub, err := svc.Create(ctx, validParams())
	require.NoError(t, err)

	paused, err := svc.Pause(ctx, sub.ID)
	require.NoError(t, err)
	require.Equal(t, types.SubscriptionStatusPaused, paused.Status)

	active, err := svc.Reactivate(ctx, sub.ID)
	require.NoError(t, err)
	require.Equal(t, types.SubscriptionStatusActive, active.Status)

	cancelled, err := svc.Cancel(ctx, sub.ID, "moving away")
	require.NoError(t, err)
	require.Equal(t, types.SubscriptionStatusCancelled, cancelled.Status)
	require.Equal(t, "moving away", *cancelled.CancellationReason)

	// Cancelled is terminal.
	_, err = svc.Reactivate(ctx, sub.ID)
	require.ErrorIs(t, err, billing.ErrCancelledTerminal)
	_, err = svc.Pause(ctx, sub.ID)
	require.ErrorIs(t, err, billing.ErrCancelledTerminal)
}

func TestChangeAmount_AppendsHistory(t *testing.T) {
	svc, _, _ := newService(day(2026, time.March, 1))
	ctx := context.Background()

	sub, err := svc.Create(ctx, validParams())
	require.NoError(t, err)

	updated, err := svc.ChangeAmount(ctx, sub.ID, decimal.NewFromInt(75), "upgrade campaign")
	require.NoError(t, err)
	require.True(t, updated.Amount.Equal(decimal.NewFromInt(75)))
	require.Len(t, updated.AmountHistory, 1)
	require.True(t, updated.AmountHistory[0].Previous.Equal(decimal.NewFromInt(50)))
	require.True(t, updated.AmountHistory[0].New.Equal(decimal.NewFromInt(75)))
	require.Equal(t, "upgrade campaign", updated.AmountHistory[0].Reason)
}

func TestChangeAmount_Rejections(t *testing.T) {
	svc, _, _ := newService(day(2026, time.March, 1))
	ctx := context.Background()

	sub, err := svc.Create(ctx, validParams())
	require.NoError(t, err)

	_, err = svc.ChangeAmount(ctx, sub.ID, decimal.Zero, "")
	var ve *subsvc.ValidationError
	require.ErrorAs(t, err, &ve)

	_, err = svc.ChangeAmount(ctx, sub.ID, decimal.NewFromInt(50), "")
	require.ErrorAs(t, err, &ve)

	_, err = svc.Pause(ctx, sub.ID)
	require.NoError(t, err)
	_, err = svc.ChangeAmount(ctx, sub.ID, decimal.NewFromInt(80), "")
	require.ErrorIs(t, err, billing.ErrSubscriptionClosed)
}

func TestChangeFrequency_RederivesNextDue(t *testing.T) {
	svc, _, clock := newService(day(2026, time.March, 1))
	ctx := context.Background()

	sub, err := svc.Create(ctx, validParams())
	require.NoError(t, err)
	require.Equal(t, day(2026, time.March, 15), *sub.NextDueDate)

	// Future due date is kept; only the cadence changes.
	updated, err := svc.ChangeFrequency(ctx, sub.ID, types.FrequencyQuarterly, "")
	require.NoError(t, err)
	require.Equal(t, types.FrequencyQuarterly, updated.Frequency)
	require.Equal(t, day(2026, time.March, 15), *updated.NextDueDate)
	require.Len(t, updated.FrequencyHistory, 1)
	require.Equal(t, types.FrequencyMonthly, updated.FrequencyHistory[0].Previous)

	// With the due date in the past, the next cycle re-derives from now.
	clock.Set(day(2026, time.March, 20))
	updated, err = svc.ChangeFrequency(ctx, sub.ID, types.FrequencyMonthly, "")
	require.NoError(t, err)
	require.Equal(t, day(2026, time.April, 15), *updated.NextDueDate)
}

func TestChangeFrequency_Unchanged(t *testing.T) {
	svc, _, _ := newService(day(2026, time.March, 1))
	ctx := context.Background()

	sub, err := svc.Create(ctx, validParams())
	require.NoError(t, err)

	_, err = svc.ChangeFrequency(ctx, sub.ID, types.FrequencyMonthly, "")
	var ve *subsvc.ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestTransition_WritesAuditLog(t *testing.T) {
	svc, store, _ := newService(day(2026, time.March, 1))
	ctx := context.Background()

	sub, err := svc.Create(ctx, validParams())
	require.NoError(t, err)
	_, err = svc.Pause(ctx, sub.ID)
	require.NoError(t, err)

	logs := store.Logs()
	require.Len(t, logs, 2)
	require.Equal(t, types.SubscriptionChangeReasonPause, logs[1].Reason)
	require.Equal(t, sub.ID, logs[1].SubscriptionID)
	before := logs[1].Before.Data()
	after := logs[1].After.Data()
	require.Equal(t, types.SubscriptionStatusActive, before.Status)
	require.Equal(t, types.SubscriptionStatusPaused, after.Status)
}
