package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pawhaven/sustainer/internal/app/service/billing"
	models "github.com/pawhaven/sustainer/internal/models"
	cfgpkg "github.com/pawhaven/sustainer/pkg/config"
	"github.com/pawhaven/sustainer/pkg/logctx"
	"github.com/pawhaven/sustainer/pkg/tool"
	"github.com/pawhaven/sustainer/pkg/types"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ValidationError marks a request the caller can fix; handlers map it to a
// 4xx response instead of a server error.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Msg: msg}
}

// Service is the donor and operator entry point for managing recurring
// gifts. All mutations of established subscriptions go through the billing
// store's compare-and-swap so they never race the charge processor.
type Service struct {
	db    *gorm.DB
	store billing.Store
	clock billing.Clock
	cfg   *cfgpkg.Config
	log   *zap.SugaredLogger
}

func NewService(db *gorm.DB, store billing.Store, clock billing.Clock, cfg *cfgpkg.Config, log *zap.SugaredLogger) *Service {
	return &Service{db: db, store: store, clock: clock, cfg: cfg, log: log}
}

// CreateParams carries everything needed to start a recurring gift.
type CreateParams struct {
	DonorID           string
	DonorName         string
	DonorEmail        string
	CampaignID        *string
	Amount            decimal.Decimal
	Currency          string
	Frequency         types.Frequency
	BillingDayOfMonth int
	StartDate         time.Time
	EndDate           *time.Time
	PaymentMethodRef  string
	SendReceipts      bool
	ReceiptFrequency  types.ReceiptFrequency
	Announcements     bool
	ImpactReports     bool
	TaxReceiptMonth   int
	DonorNotes        string
}

func (p *CreateParams) validate() error {
	if p.DonorID == "" {
		return invalid("donor_id", "required")
	}
	if !p.Amount.IsPositive() {
		return invalid("amount", "must be positive")
	}
	if p.Currency == "" {
		return invalid("currency", "required")
	}
	if err := p.Frequency.Validate(); err != nil {
		return invalid("frequency", err.Error())
	}
	if p.BillingDayOfMonth < 1 || p.BillingDayOfMonth > 31 {
		return invalid("billing_day_of_month", "must be between 1 and 31")
	}
	if p.StartDate.IsZero() {
		return invalid("start_date", "required")
	}
	if p.EndDate != nil && !p.EndDate.After(p.StartDate) {
		return invalid("end_date", "must be after start_date")
	}
	if p.PaymentMethodRef == "" {
		return invalid("payment_method_ref", "required")
	}
	if p.ReceiptFrequency != "" {
		if err := p.ReceiptFrequency.Validate(); err != nil {
			return invalid("receipt_frequency", err.Error())
		}
	}
	if p.TaxReceiptMonth < 0 || p.TaxReceiptMonth > 12 {
		return invalid("tax_receipt_month", "must be between 1 and 12")
	}
	return nil
}

// Create activates a new recurring gift and derives its first due date.
func (s *Service) Create(ctx context.Context, p *CreateParams) (*models.Subscription, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	firstDue := billing.FirstDueDate(p.StartDate, p.Frequency, p.BillingDayOfMonth)
	maxFailures := s.cfg.Billing.MaxConsecutiveFailures
	if maxFailures <= 0 {
		maxFailures = 3
	}
	receiptFreq := p.ReceiptFrequency
	if receiptFreq == "" {
		receiptFreq = types.ReceiptFrequencyMonthly
	}
	taxMonth := p.TaxReceiptMonth
	if taxMonth == 0 {
		taxMonth = 12
	}
	sub := &models.Subscription{
		ID:                     tool.GenerateUUIDV7(),
		DonorID:                p.DonorID,
		DonorName:              p.DonorName,
		DonorEmail:             p.DonorEmail,
		CampaignID:             p.CampaignID,
		Amount:                 p.Amount,
		Currency:               p.Currency,
		Frequency:              p.Frequency,
		BillingDayOfMonth:      p.BillingDayOfMonth,
		StartDate:              p.StartDate,
		EndDate:                p.EndDate,
		PaymentMethodRef:       p.PaymentMethodRef,
		Status:                 types.SubscriptionStatusActive,
		NextDueDate:            &firstDue,
		MaxConsecutiveFailures: maxFailures,
		TotalAmountDonated:     decimal.Zero,
		AnniversaryDate:        now,
		RecognitionLevel:       types.RecognitionLevelBasic,
		SendReceipts:           p.SendReceipts,
		ReceiptFrequency:       receiptFreq,
		Announcements:          p.Announcements,
		ImpactReports:          p.ImpactReports,
		TaxReceiptMonth:        taxMonth,
		DonorNotes:             p.DonorNotes,
	}
	billing.EnsureNextAnniversary(sub)

	log := s.changeLog(sub.ID, sub.DonorID, types.SubscriptionChangeReasonCreate, nil, sub, nil)
	if err := s.store.CreateSubscription(ctx, sub, log); err != nil {
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}
	logctx.FromCtx(ctx, s.log).Infow("subscription created",
		"subscription_id", sub.ID, "donor_id", sub.DonorID, "frequency", sub.Frequency, "next_due_date", firstDue)
	return sub, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.Subscription, error) {
	return s.store.GetSubscription(ctx, id)
}

// History returns the full charge-attempt log, oldest first.
func (s *Service) History(ctx context.Context, id string) ([]*models.PaymentEvent, error) {
	if _, err := s.store.GetSubscription(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListEvents(ctx, id)
}

// Pause takes the subscription out of scheduling for future cycles.
func (s *Service) Pause(ctx context.Context, id string) (*models.Subscription, error) {
	return s.transition(ctx, id, types.SubscriptionChangeReasonPause, nil, func(sub *models.Subscription, now time.Time) error {
		return billing.Pause(sub, now)
	})
}

// Cancel terminally ends the subscription. Aggregates and history are kept.
func (s *Service) Cancel(ctx context.Context, id, reason string) (*models.Subscription, error) {
	extra := datatypes.JSONMap{}
	if reason != "" {
		extra["cancellation_reason"] = reason
	}
	return s.transition(ctx, id, types.SubscriptionChangeReasonCancel, extra, func(sub *models.Subscription, now time.Time) error {
		return billing.Cancel(sub, reason, now)
	})
}

// Reactivate resumes a paused or suspended subscription with a clean
// failure slate.
func (s *Service) Reactivate(ctx context.Context, id string) (*models.Subscription, error) {
	return s.transition(ctx, id, types.SubscriptionChangeReasonReactivate, nil, func(sub *models.Subscription, now time.Time) error {
		return billing.Reactivate(sub, now)
	})
}

// ChangeAmount updates the gift amount from the next cycle onward and
// appends the change to the amount history.
func (s *Service) ChangeAmount(ctx context.Context, id string, amount decimal.Decimal, note string) (*models.Subscription, error) {
	if !amount.IsPositive() {
		return nil, invalid("amount", "must be positive")
	}
	return s.transition(ctx, id, types.SubscriptionChangeReasonAmountChange, nil, func(sub *models.Subscription, now time.Time) error {
		if !sub.Active() {
			return billing.ErrSubscriptionClosed
		}
		if sub.Amount.Equal(amount) {
			return invalid("amount", "unchanged")
		}
		sub.AmountHistory = append(sub.AmountHistory, models.AmountChange{
			Date:     now,
			Previous: sub.Amount,
			New:      amount,
			Reason:   note,
		})
		sub.Amount = amount
		// Recognition re-derives immediately; the score uses the current
		// amount, not a weighted history.
		sub.RecognitionLevel = billing.RecognitionFor(sub.Amount, sub.TotalCompleted)
		return nil
	})
}

// ChangeFrequency switches the billing cadence. The next due date is
// re-derived from the current cycle anchor under the new cadence.
func (s *Service) ChangeFrequency(ctx context.Context, id string, freq types.Frequency, note string) (*models.Subscription, error) {
	if err := freq.Validate(); err != nil {
		return nil, invalid("frequency", err.Error())
	}
	return s.transition(ctx, id, types.SubscriptionChangeReasonFrequencyChange, nil, func(sub *models.Subscription, now time.Time) error {
		if !sub.Active() {
			return billing.ErrSubscriptionClosed
		}
		if sub.Frequency == freq {
			return invalid("frequency", "unchanged")
		}
		sub.FrequencyHistory = append(sub.FrequencyHistory, models.FrequencyChange{
			Date:     now,
			Previous: sub.Frequency,
			New:      freq,
			Reason:   note,
		})
		sub.Frequency = freq
		if sub.NextDueDate != nil && sub.NextDueDate.After(now) {
			// Keep an already-scheduled future cycle; the cadence applies
			// from that cycle's settlement onward.
			return nil
		}
		next := billing.FirstDueDate(now, freq, sub.BillingDayOfMonth)
		sub.NextDueDate = &next
		return nil
	})
}

// transition loads, mutates a copy, and swaps, retrying once on a version
// conflict with the billing engine.
func (s *Service) transition(
	ctx context.Context,
	id string,
	reason types.SubscriptionChangeReason,
	extra datatypes.JSONMap,
	mutate func(sub *models.Subscription, now time.Time) error,
) (*models.Subscription, error) {
	var result *models.Subscription
	attempt := func() error {
		sub, err := s.store.GetSubscription(ctx, id)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		next := sub.Clone()
		if err := mutate(next, now); err != nil {
			return err
		}
		w := &billing.Write{
			Subscription:    next,
			ExpectedVersion: sub.Version,
			Log:             s.changeLog(sub.ID, sub.DonorID, reason, sub, next, extra),
		}
		if err := s.store.CompareAndSwap(ctx, w); err != nil {
			return err
		}
		result = next
		return nil
	}

	err := attempt()
	if errors.Is(err, billing.ErrVersionConflict) {
		err = attempt()
	}
	if err != nil {
		return nil, err
	}
	logctx.FromCtx(ctx, s.log).Infow("subscription updated", "subscription_id", id, "reason", reason)
	return result, nil
}

func (s *Service) changeLog(
	subID, donorID string,
	reason types.SubscriptionChangeReason,
	before, after *models.Subscription,
	extra datatypes.JSONMap,
) *models.SubscriptionLog {
	if extra == nil {
		extra = datatypes.JSONMap{}
	}
	return &models.SubscriptionLog{
		ID:             tool.GenerateUUIDV7(),
		SubscriptionID: subID,
		DonorID:        donorID,
		Reason:         reason,
		Before:         datatypes.NewJSONType(before),
		After:          datatypes.NewJSONType(after),
		Extra:          extra,
	}
}

// Scan lists subscriptions for the admin console with CommonFilter
// predicates and keyset pagination on id.
func (s *Service) Scan(ctx context.Context, filters []types.CommonFilter, lastID string, limit int) ([]*models.Subscription, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := s.db.WithContext(ctx).Model(&models.Subscription{})
	for i := range filters {
		q = q.Where(&filters[i])
	}
	if lastID != "" {
		q = q.Where("id > ?", lastID)
	}
	var subs []*models.Subscription
	if err := q.Order("id asc").Limit(limit).Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("failed to scan subscriptions: %w", err)
	}
	return subs, nil
}

// ScanEvents lists payment events for the admin console.
func (s *Service) ScanEvents(ctx context.Context, filters []types.CommonFilter, lastID string, limit int) ([]*models.PaymentEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := s.db.WithContext(ctx).Model(&models.PaymentEvent{})
	for i := range filters {
		q = q.Where(&filters[i])
	}
	if lastID != "" {
		q = q.Where("id > ?", lastID)
	}
	var events []*models.PaymentEvent
	if err := q.Order("id asc").Limit(limit).Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to scan payment events: %w", err)
	}
	return events, nil
}

// ScanLogs lists audit entries for one subscription, newest first.
func (s *Service) ScanLogs(ctx context.Context, subscriptionID string, limit int) ([]*models.SubscriptionLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var logs []*models.SubscriptionLog
	err := s.db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("id desc").Limit(limit).
		Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to scan subscription logs: %w", err)
	}
	return logs, nil
}
