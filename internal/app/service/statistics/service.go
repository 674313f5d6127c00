package statistics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pawhaven/sustainer/internal/models"
	"github.com/pawhaven/sustainer/pkg/tool"
	"github.com/pawhaven/sustainer/pkg/types"

	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type StatisticType string

const (
	// Daily counts and giving volume from the payment-event log
	StatisticTypeDailyDonationCount StatisticType = "daily_donation_count"
	StatisticTypeDailyGivingVolume  StatisticType = "daily_giving_volume"
	StatisticTypeTotalGivingVolume  StatisticType = "total_giving_volume"

	// Sustainer base
	StatisticTypeDailySustainerCount       StatisticType = "daily_sustainer_count"
	StatisticTypeDailyNewSustainerCount    StatisticType = "daily_new_sustainer_count"
	StatisticTypeTotalActiveSustainerCount StatisticType = "total_active_sustainer_count"
	StatisticTypeRecognitionBreakdown      StatisticType = "recognition_breakdown"

	// Retention
	StatisticTypeCycleSuccessRate StatisticType = "cycle_success_rate"
)

// Filter fields with custom SQL handling for certain statistic types.
type SustainerStatisticFilterType string

const (
	SustainerStatisticFilterTypeFrequency  SustainerStatisticFilterType = "frequency"
	SustainerStatisticFilterTypeCampaignID SustainerStatisticFilterType = "campaign_id"
	SustainerStatisticFilterTypeFirstCycle SustainerStatisticFilterType = "first_cycle"
)

var filterTypes = []SustainerStatisticFilterType{
	SustainerStatisticFilterTypeFrequency,
	SustainerStatisticFilterTypeCampaignID,
	SustainerStatisticFilterTypeFirstCycle,
}

var validFilters = map[SustainerStatisticFilterType][]StatisticType{
	SustainerStatisticFilterTypeFrequency:  {StatisticTypeDailyDonationCount, StatisticTypeDailyGivingVolume, StatisticTypeTotalActiveSustainerCount},
	SustainerStatisticFilterTypeCampaignID: {StatisticTypeDailyDonationCount, StatisticTypeDailyGivingVolume},
	SustainerStatisticFilterTypeFirstCycle: {StatisticTypeDailyDonationCount, StatisticTypeDailyGivingVolume},
}

type SustainerStatisticDataItem struct {
	ID StatisticType `json:"id"`
}

type SustainerStatisticRequest struct {
	Filters   []*types.CommonFilter         `json:"filters"`
	DataItems []*SustainerStatisticDataItem `json:"data_items"`

	// table is the table the composed WHERE clause targets. Set by
	// GetFilters, never bound from the request body.
	table string
}

func (f *SustainerStatisticRequest) GetFilters(statisticType StatisticType, table string) *SustainerStatisticRequest {
	result := &SustainerStatisticRequest{table: table}
	if f == nil {
		return result
	}
	for _, filter := range f.Filters {
		if statisticTypes, ok := validFilters[SustainerStatisticFilterType(filter.Field)]; ok {
			if lo.Contains(statisticTypes, statisticType) {
				result.Filters = append(result.Filters, filter)
			}
		} else {
			result.Filters = append(result.Filters, filter)
		}
	}
	return result
}

// Build composes a WHERE clause from the filters. Frequency and campaign
// live on the subscription row: queries over the subscription table filter
// the column directly, everything else goes through a subquery on
// subscription_id.
func (f *SustainerStatisticRequest) Build(builder clause.Builder) {
	if len(f.Filters) == 0 {
		builder.WriteString("1=1")
		return
	}
	for i, filter := range f.Filters {
		if i > 0 {
			builder.WriteString(" AND ")
		}
		switch filter.Field {
		case string(SustainerStatisticFilterTypeFirstCycle):
			if len(filter.Values) > 0 && fmt.Sprint(filter.Values[0]) == "true" {
				builder.WriteString("attempt_number = 1 AND cycle_id LIKE subscription_id || ':%'")
			} else {
				builder.WriteString("1=1")
			}
		case string(SustainerStatisticFilterTypeFrequency),
			string(SustainerStatisticFilterTypeCampaignID):
			if len(filter.Values) == 0 {
				builder.WriteString("1=1")
				continue
			}
			if f.table == (models.Subscription{}).TableName() {
				builder.WriteString(filter.Field + " = ")
				builder.AddVar(builder, filter.Values[0])
			} else {
				builder.WriteString(fmt.Sprintf(
					"subscription_id IN (SELECT id FROM subscription WHERE %s = ",
					filter.Field,
				))
				builder.AddVar(builder, filter.Values[0])
				builder.WriteString(")")
			}
		default:
			filter.Build(builder)
		}
	}
}

type SustainerStatisticResponseDataItem struct {
	Date   string `json:"date"`
	Label  string `json:"label,omitempty"`
	Value  int64  `json:"value"`
	Value2 int64  `json:"value2,omitempty"`
	Value3 int64  `json:"value3,omitempty"`
}

type SustainerStatisticResponse struct {
	DataItems map[StatisticType][]SustainerStatisticResponseDataItem `json:"data_items"`
}

// Service provides statistics operations
type Service struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Service { return &Service{db: db} }

// SaveSubscriptionDailySnapshot persists one day's state of a subscription
// for trend queries.
func (s *Service) SaveSubscriptionDailySnapshot(ctx context.Context, subscription *models.Subscription, snapshotDate time.Time) error {
	if subscription == nil {
		return fmt.Errorf("nil subscription")
	}
	snap := &models.SubscriptionDailySnapshot{
		ID:                 tool.GenerateUUIDV7(),
		SubscriptionID:     subscription.ID,
		DonorID:            subscription.DonorID,
		Status:             subscription.Status,
		Amount:             subscription.Amount,
		Currency:           subscription.Currency,
		Frequency:          subscription.Frequency,
		TotalCompleted:     subscription.TotalCompleted,
		TotalAmountDonated: subscription.TotalAmountDonated,
		RecognitionLevel:   subscription.RecognitionLevel,
		SnapshotDate:       snapshotDate.Format(time.DateOnly),
		SnapshotCreatedAt:  time.Now(),
	}
	return s.db.WithContext(ctx).Create(snap).Error
}

// SnapshotAll writes today's snapshot for every subscription; duplicate
// days are skipped via the unique (subscription_id, snapshot_date) index.
func (s *Service) SnapshotAll(ctx context.Context, snapshotDate time.Time) (int, error) {
	var subs []*models.Subscription
	if err := s.db.WithContext(ctx).Find(&subs).Error; err != nil {
		return 0, fmt.Errorf("failed to list subscriptions for snapshot: %w", err)
	}
	var written int
	for _, sub := range subs {
		if err := s.SaveSubscriptionDailySnapshot(ctx, sub, snapshotDate); err != nil {
			continue
		}
		written++
	}
	return written, nil
}

func (s *Service) getDailyDonationCount(ctx context.Context, request *SustainerStatisticRequest) ([]SustainerStatisticResponseDataItem, error) {
	var results []SustainerStatisticResponseDataItem
	q := s.db.WithContext(ctx).Table((models.PaymentEvent{}).TableName()).
		Select("TO_CHAR(created_at, 'YYYY-MM-DD') as date, count(*) as value").
		Where("outcome = ?", types.PaymentOutcomeCompleted).
		Where(clause.Where{Exprs: []clause.Expression{request.GetFilters(StatisticTypeDailyDonationCount, (models.PaymentEvent{}).TableName())}}).
		Group("TO_CHAR(created_at, 'YYYY-MM-DD')").
		Order("date")
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getDailyGivingVolume(ctx context.Context, request *SustainerStatisticRequest) ([]SustainerStatisticResponseDataItem, error) {
	var results []SustainerStatisticResponseDataItem
	q := s.db.WithContext(ctx).Table((models.PaymentEvent{}).TableName()).
		Select("TO_CHAR(created_at, 'YYYY-MM-DD') as date, currency AS label, sum(amount) as value").
		Where("outcome = ?", types.PaymentOutcomeCompleted).
		Where(clause.Where{Exprs: []clause.Expression{request.GetFilters(StatisticTypeDailyGivingVolume, (models.PaymentEvent{}).TableName())}}).
		Group("TO_CHAR(created_at, 'YYYY-MM-DD')").
		Group("currency").
		Order(clause.OrderByColumn{Column: clause.Column{Name: "date"}, Desc: true})
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getTotalGivingVolume(ctx context.Context, _ *SustainerStatisticRequest) ([]SustainerStatisticResponseDataItem, error) {
	var results []SustainerStatisticResponseDataItem
	err := s.db.WithContext(ctx).Raw(`
WITH min_max_dates AS (
    SELECT MIN(DATE(created_at)) as min_date, MAX(DATE(created_at)) as max_date
    FROM payment_event WHERE outcome = 'completed'
),
distinct_dates AS (
    SELECT generate_series(min_date, max_date, '1 day'::interval) as date FROM min_max_dates
),
dates AS (
    SELECT TO_CHAR(date, 'YYYY-MM-DD') as date FROM distinct_dates
),
currencies AS (
    SELECT DISTINCT currency as label FROM payment_event WHERE outcome = 'completed'
),
date_currency_combinations AS (
    SELECT d.date, c.label FROM dates d CROSS JOIN currencies c
),
volume_date AS (
    SELECT dc.date, dc.label, COALESCE(SUM(e.amount), 0) as value
    FROM date_currency_combinations dc
    LEFT JOIN payment_event e
      ON TO_CHAR(e.created_at, 'YYYY-MM-DD') = dc.date
     AND e.currency = dc.label
     AND e.outcome = 'completed'
    GROUP BY dc.date, dc.label
)
SELECT d.date as date, d.label as label, SUM(s.value) as value
FROM volume_date d
LEFT JOIN volume_date s ON s.date <= d.date AND s.label = d.label
GROUP BY d.date, d.label
ORDER BY d.date DESC, d.label ASC
`).Scan(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getDailySustainerCount(ctx context.Context, request *SustainerStatisticRequest) ([]SustainerStatisticResponseDataItem, error) {
	var results []SustainerStatisticResponseDataItem
	q := s.db.WithContext(ctx).Table((models.SubscriptionDailySnapshot{}).TableName()).
		Select("snapshot_date as date, count(*) as value").
		Where("status = ?", types.SubscriptionStatusActive).
		Where(clause.Where{Exprs: []clause.Expression{request.GetFilters(StatisticTypeDailySustainerCount, (models.SubscriptionDailySnapshot{}).TableName())}}).
		Group("snapshot_date").
		Order("snapshot_date")
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getDailyNewSustainerCount(ctx context.Context, _ *SustainerStatisticRequest) ([]SustainerStatisticResponseDataItem, error) {
	var results []SustainerStatisticResponseDataItem
	err := s.db.WithContext(ctx).Raw(`
WITH distinct_dates AS (
    SELECT DISTINCT DATE(created_at) as date FROM subscription ORDER BY date
),
donor_id_date AS (
    SELECT donor_id, DATE(created_at) as date FROM subscription
)
SELECT d.date, COUNT(DISTINCT s.donor_id) as value
FROM distinct_dates d
JOIN donor_id_date s ON s.date = d.date
GROUP BY d.date
ORDER BY d.date DESC
`).Scan(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getTotalActiveSustainerCount(ctx context.Context, request *SustainerStatisticRequest) ([]SustainerStatisticResponseDataItem, error) {
	var results []SustainerStatisticResponseDataItem
	q := s.db.WithContext(ctx).Table((models.Subscription{}).TableName()).
		Select("count(*) as value").
		Where(clause.Where{Exprs: []clause.Expression{request.GetFilters(StatisticTypeTotalActiveSustainerCount, (models.Subscription{}).TableName())}}).
		Where("status = ?", types.SubscriptionStatusActive)
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getRecognitionBreakdown(ctx context.Context, _ *SustainerStatisticRequest) ([]SustainerStatisticResponseDataItem, error) {
	var results []SustainerStatisticResponseDataItem
	q := s.db.WithContext(ctx).Table((models.Subscription{}).TableName()).
		Select("recognition_level as label, count(*) as value").
		Where("status = ?", types.SubscriptionStatusActive).
		Group("recognition_level").
		Order("label")
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// getCycleSuccessRate reports, per scheduled date, how many cycles settled
// completed out of all settled cycles. value is the rate in basis points.
func (s *Service) getCycleSuccessRate(ctx context.Context, _ *SustainerStatisticRequest) ([]SustainerStatisticResponseDataItem, error) {
	var results []SustainerStatisticResponseDataItem
	sql := `
WITH settled_cycles AS (
  SELECT cycle_id, DATE(scheduled_date) as scheduled_date,
         BOOL_OR(outcome = 'completed') as completed
  FROM payment_event
  WHERE outcome IN ('completed', 'failed')
  GROUP BY cycle_id, DATE(scheduled_date)
),
per_date AS (
  SELECT scheduled_date,
         COUNT(*) as total,
         COUNT(*) FILTER (WHERE completed) as succeeded
  FROM settled_cycles
  GROUP BY scheduled_date
)
SELECT
  TO_CHAR(scheduled_date, 'YYYY-MM-DD') as date,
  CASE WHEN total = 0 THEN 0
       ELSE CAST(ROUND(succeeded * 100.0 / total, 2) * 100 AS INTEGER)
  END as value,
  total as value2,
  succeeded as value3
FROM per_date
ORDER BY date DESC`
	if err := s.db.WithContext(ctx).Raw(sql).Scan(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getSustainerStatistic(ctx context.Context, request *SustainerStatisticRequest, dataItem *SustainerStatisticDataItem) ([]SustainerStatisticResponseDataItem, error) {
	switch dataItem.ID {
	case StatisticTypeDailyDonationCount:
		return s.getDailyDonationCount(ctx, request)
	case StatisticTypeDailyGivingVolume:
		return s.getDailyGivingVolume(ctx, request)
	case StatisticTypeTotalGivingVolume:
		return s.getTotalGivingVolume(ctx, request)
	case StatisticTypeDailySustainerCount:
		return s.getDailySustainerCount(ctx, request)
	case StatisticTypeDailyNewSustainerCount:
		return s.getDailyNewSustainerCount(ctx, request)
	case StatisticTypeTotalActiveSustainerCount:
		return s.getTotalActiveSustainerCount(ctx, request)
	case StatisticTypeRecognitionBreakdown:
		return s.getRecognitionBreakdown(ctx, request)
	case StatisticTypeCycleSuccessRate:
		return s.getCycleSuccessRate(ctx, request)
	default:
		return nil, fmt.Errorf("invalid data item id: %s", dataItem.ID)
	}
}

func (s *Service) GetSustainerStatistic(ctx context.Context, request *SustainerStatisticRequest) (*SustainerStatisticResponse, error) {
	var wg sync.WaitGroup
	errChan := make(chan error, len(request.DataItems))
	resChan := make(chan *lo.Entry[StatisticType, []SustainerStatisticResponseDataItem], len(request.DataItems))

	for _, item := range request.DataItems {
		wg.Add(1)
		go func(di *SustainerStatisticDataItem) {
			defer wg.Done()
			// check filter applicability
			for _, filter := range request.Filters {
				ft := SustainerStatisticFilterType(filter.Field)
				if lo.Contains(filterTypes, ft) && !lo.Contains(validFilters[ft], di.ID) {
					resChan <- &lo.Entry[StatisticType, []SustainerStatisticResponseDataItem]{Key: di.ID, Value: nil}
					return
				}
			}
			res, err := s.getSustainerStatistic(ctx, request, di)
			if err != nil {
				errChan <- err
				return
			}
			resChan <- &lo.Entry[StatisticType, []SustainerStatisticResponseDataItem]{Key: di.ID, Value: res}
		}(item)
	}

	go func() { wg.Wait(); close(errChan); close(resChan) }()

	results := make(map[StatisticType][]SustainerStatisticResponseDataItem)
	for i := 0; i < len(request.DataItems); i++ {
		select {
		case err := <-errChan:
			if err != nil {
				return nil, err
			}
		case entry := <-resChan:
			results[entry.Key] = entry.Value
		}
	}
	return &SustainerStatisticResponse{DataItems: results}, nil
}
