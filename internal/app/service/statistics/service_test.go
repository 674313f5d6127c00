package statistics

import (
	"testing"

	"github.com/pawhaven/sustainer/internal/models"
	"github.com/pawhaven/sustainer/pkg/types"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/utils/tests"
)

func renderWhere(t *testing.T, req *SustainerStatisticRequest) string {
	t.Helper()
	db, err := gorm.Open(tests.DummyDialector{}, &gorm.Config{})
	require.NoError(t, err)
	stmt := &gorm.Statement{DB: db}
	req.Build(stmt)
	return stmt.SQL.String()
}

func frequencyFilter(value string) *types.CommonFilter {
	return &types.CommonFilter{
		Field:    string(SustainerStatisticFilterTypeFrequency),
		Operator: types.CommonFilterOperatorEq,
		Values:   []any{value},
	}
}

func TestBuild_FrequencyFilterOnSubscriptionTable(t *testing.T) {
	req := &SustainerStatisticRequest{Filters: []*types.CommonFilter{frequencyFilter("monthly")}}

	sql := renderWhere(t, req.GetFilters(StatisticTypeTotalActiveSustainerCount, (models.Subscription{}).TableName()))
	require.Equal(t, "frequency = ?", sql)
}

func TestBuild_FrequencyFilterOnEventTable(t *testing.T) {
	req := &SustainerStatisticRequest{Filters: []*types.CommonFilter{frequencyFilter("monthly")}}

	sql := renderWhere(t, req.GetFilters(StatisticTypeDailyDonationCount, (models.PaymentEvent{}).TableName()))
	require.Equal(t, "subscription_id IN (SELECT id FROM subscription WHERE frequency = ?)", sql)
}

func TestBuild_CampaignFilterOnEventTable(t *testing.T) {
	req := &SustainerStatisticRequest{Filters: []*types.CommonFilter{{
		Field:    string(SustainerStatisticFilterTypeCampaignID),
		Operator: types.CommonFilterOperatorEq,
		Values:   []any{"camp-1"},
	}}}

	sql := renderWhere(t, req.GetFilters(StatisticTypeDailyGivingVolume, (models.PaymentEvent{}).TableName()))
	require.Equal(t, "subscription_id IN (SELECT id FROM subscription WHERE campaign_id = ?)", sql)
}

func TestBuild_EmptyFilters(t *testing.T) {
	req := &SustainerStatisticRequest{}
	sql := renderWhere(t, req.GetFilters(StatisticTypeTotalActiveSustainerCount, (models.Subscription{}).TableName()))
	require.Equal(t, "1=1", sql)
}

// Each valid filter/data-item pair must survive GetFilters, every other
// combination of the special filter fields must be dropped.
func TestGetFilters_Matrix(t *testing.T) {
	allTypes := []StatisticType{
		StatisticTypeDailyDonationCount,
		StatisticTypeDailyGivingVolume,
		StatisticTypeTotalGivingVolume,
		StatisticTypeDailySustainerCount,
		StatisticTypeDailyNewSustainerCount,
		StatisticTypeTotalActiveSustainerCount,
		StatisticTypeRecognitionBreakdown,
		StatisticTypeCycleSuccessRate,
	}

	for _, filterType := range filterTypes {
		req := &SustainerStatisticRequest{Filters: []*types.CommonFilter{{
			Field:    string(filterType),
			Operator: types.CommonFilterOperatorEq,
			Values:   []any{"x"},
		}}}
		for _, st := range allTypes {
			kept := req.GetFilters(st, (models.Subscription{}).TableName()).Filters
			if lo.Contains(validFilters[filterType], st) {
				require.Len(t, kept, 1, "%s should apply to %s", filterType, st)
			} else {
				require.Empty(t, kept, "%s should be dropped for %s", filterType, st)
			}
		}
	}
}
