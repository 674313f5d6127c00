package handlers

import (
	"net/http"
	"time"

	"github.com/pawhaven/sustainer/internal/app/service/billing"
	"github.com/pawhaven/sustainer/internal/app/service/statistics"
	subsvc "github.com/pawhaven/sustainer/internal/app/service/subscription"
	models "github.com/pawhaven/sustainer/internal/models"
	"github.com/pawhaven/sustainer/pkg/response"
	"github.com/pawhaven/sustainer/pkg/types"

	"github.com/gin-gonic/gin"
)

type ScanRequest struct {
	Filters []types.CommonFilter `json:"filters"`
	LastID  string               `json:"last_id"`
	Limit   int                  `json:"limit"`
}

type ScanSubscriptionsResponse struct {
	Items  []*models.Subscription `json:"items"`
	LastID string                 `json:"last_id"`
}

type ScanEventsResponse struct {
	Items  []*models.PaymentEvent `json:"items"`
	LastID string                 `json:"last_id"`
}

// @Summary      List Subscriptions (Admin)
// @Description  Retrieves a filterable, keyset-paginated list of subscriptions.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body ScanRequest true "Scan request with filters and pagination"
// @Success      200  {object}  handlers.RespScanSubscriptions
// @Router       /api/v1/admin/list_subscriptions [post]
func ApiListSubscriptions(svc *subsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ScanRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		items, err := svc.Scan(c.Request.Context(), req.Filters, req.LastID, req.Limit)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		resp := &ScanSubscriptionsResponse{Items: items}
		if len(items) > 0 {
			resp.LastID = items[len(items)-1].ID
		}
		c.JSON(http.StatusOK, response.OKT(resp))
	}
}

// @Summary      List Payment Events (Admin)
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body ScanRequest true "Scan request with filters and pagination"
// @Success      200  {object}  handlers.RespScanEvents
// @Router       /api/v1/admin/list_payment_events [post]
func ApiListPaymentEvents(svc *subsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ScanRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		items, err := svc.ScanEvents(c.Request.Context(), req.Filters, req.LastID, req.Limit)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		resp := &ScanEventsResponse{Items: items}
		if len(items) > 0 {
			resp.LastID = items[len(items)-1].ID
		}
		c.JSON(http.StatusOK, response.OKT(resp))
	}
}

// @Summary      Subscription Audit Log (Admin)
// @Tags         Admin
// @Produce      json
// @Param        id path string true "Subscription ID"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/admin/subscriptions/{id}/logs [get]
func ApiSubscriptionLogs(svc *subsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		logs, err := svc.ScanLogs(c.Request.Context(), c.Param("id"), 100)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(logs))
	}
}

// @Summary      Get Sustainer Statistics (Admin)
// @Description  Retrieves daily sustainer statistics.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body statistics.SustainerStatisticRequest true "Statistic request parameters"
// @Success      200  {object}  handlers.RespSustainerStatistic
// @Router       /api/v1/admin/get_sustainer_statistic [post]
func ApiGetSustainerStatistic(svc *statistics.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req statistics.SustainerStatisticRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		res, err := svc.GetSustainerStatistic(c.Request.Context(), &req)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Run Billing Tick (Admin)
// @Description  Triggers one billing batch outside the timer, for backfills and testing.
// @Tags         Admin
// @Produce      json
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/admin/run_billing_tick [post]
func ApiRunBillingTick(runner *billing.Runner) gin.HandlerFunc {
	return func(c *gin.Context) {
		n, err := runner.RunOnce(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(map[string]int{"dispatched": n}))
	}
}

// @Summary      Snapshot Subscriptions (Admin)
// @Description  Writes today's daily snapshot row for every subscription.
// @Tags         Admin
// @Produce      json
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/admin/snapshot_subscriptions [post]
func ApiSnapshotSubscriptions(svc *statistics.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		n, err := svc.SnapshotAll(c.Request.Context(), time.Now())
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(map[string]int{"written": n}))
	}
}

func RegisterAdminRoutes(r gin.IRouter, sub *subsvc.Service, stats *statistics.Service, runner *billing.Runner) {
	r.POST("/list_subscriptions", ApiListSubscriptions(sub))
	r.POST("/list_payment_events", ApiListPaymentEvents(sub))
	r.GET("/subscriptions/:id/logs", ApiSubscriptionLogs(sub))
	r.POST("/get_sustainer_statistic", ApiGetSustainerStatistic(stats))
	r.POST("/run_billing_tick", ApiRunBillingTick(runner))
	r.POST("/snapshot_subscriptions", ApiSnapshotSubscriptions(stats))
}
