package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/pawhaven/sustainer/internal/app/service/billing"
	subsvc "github.com/pawhaven/sustainer/internal/app/service/subscription"
	models "github.com/pawhaven/sustainer/internal/models"
	"github.com/pawhaven/sustainer/pkg/response"
	"github.com/pawhaven/sustainer/pkg/types"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type CreateSubscriptionRequest struct {
	DonorID           string                 `json:"donor_id" binding:"required"`
	DonorName         string                 `json:"donor_name"`
	DonorEmail        string                 `json:"donor_email"`
	CampaignID        *string                `json:"campaign_id"`
	Amount            decimal.Decimal        `json:"amount"`
	Currency          string                 `json:"currency" binding:"required"`
	Frequency         types.Frequency        `json:"frequency" binding:"required"`
	BillingDayOfMonth int                    `json:"billing_day_of_month"`
	StartDate         time.Time              `json:"start_date"`
	EndDate           *time.Time             `json:"end_date"`
	PaymentMethodRef  string                 `json:"payment_method_ref" binding:"required"`
	SendReceipts      *bool                  `json:"send_receipts"`
	ReceiptFrequency  types.ReceiptFrequency `json:"receipt_frequency"`
	Announcements     *bool                  `json:"announcements"`
	ImpactReports     *bool                  `json:"impact_reports"`
	TaxReceiptMonth   int                    `json:"tax_receipt_month"`
	DonorNotes        string                 `json:"donor_notes"`
}

type CancelSubscriptionRequest struct {
	Reason string `json:"reason"`
}

type ChangeAmountRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Note   string          `json:"note"`
}

type ChangeFrequencyRequest struct {
	Frequency types.Frequency `json:"frequency" binding:"required"`
	Note      string          `json:"note"`
}

// writeServiceError maps service failures to the envelope codes; validation
// and invalid-transition errors are caller mistakes, not server faults.
func writeServiceError(c *gin.Context, err error) {
	var ve *subsvc.ValidationError
	switch {
	case errors.As(err, &ve),
		errors.Is(err, billing.ErrInvalidTransition),
		errors.Is(err, billing.ErrCancelledTerminal),
		errors.Is(err, billing.ErrSubscriptionClosed):
		c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
	case errors.Is(err, billing.ErrSubscriptionNotFound):
		c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
	default:
		c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
	}
}

// @Summary      Create Subscription
// @Description  Starts a new recurring donation and schedules its first billing cycle.
// @Tags         Subscription
// @Accept       json
// @Produce      json
// @Param        request body CreateSubscriptionRequest true "New recurring donation"
// @Success      200  {object}  handlers.RespSubscription
// @Router       /api/v1/subscriptions [post]
func ApiCreateSubscription(svc *subsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateSubscriptionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		sendReceipts := true
		if req.SendReceipts != nil {
			sendReceipts = *req.SendReceipts
		}
		announcements := true
		if req.Announcements != nil {
			announcements = *req.Announcements
		}
		impactReports := true
		if req.ImpactReports != nil {
			impactReports = *req.ImpactReports
		}
		startDate := req.StartDate
		if startDate.IsZero() {
			startDate = time.Now()
		}
		sub, err := svc.Create(c.Request.Context(), &subsvc.CreateParams{
			DonorID:           req.DonorID,
			DonorName:         req.DonorName,
			DonorEmail:        req.DonorEmail,
			CampaignID:        req.CampaignID,
			Amount:            req.Amount,
			Currency:          req.Currency,
			Frequency:         req.Frequency,
			BillingDayOfMonth: req.BillingDayOfMonth,
			StartDate:         startDate,
			EndDate:           req.EndDate,
			PaymentMethodRef:  req.PaymentMethodRef,
			SendReceipts:      sendReceipts,
			ReceiptFrequency:  req.ReceiptFrequency,
			Announcements:     announcements,
			ImpactReports:     impactReports,
			TaxReceiptMonth:   req.TaxReceiptMonth,
			DonorNotes:        req.DonorNotes,
		})
		if err != nil {
			writeServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(sub))
	}
}

// @Summary      Get Subscription
// @Tags         Subscription
// @Produce      json
// @Param        id path string true "Subscription ID"
// @Success      200  {object}  handlers.RespSubscription
// @Router       /api/v1/subscriptions/{id} [get]
func ApiGetSubscription(svc *subsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		sub, err := svc.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(sub))
	}
}

// @Summary      Payment History
// @Description  Lists every charge attempt for the subscription, oldest first.
// @Tags         Subscription
// @Produce      json
// @Param        id path string true "Subscription ID"
// @Success      200  {object}  handlers.RespPaymentEvents
// @Router       /api/v1/subscriptions/{id}/history [get]
func ApiSubscriptionHistory(svc *subsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		events, err := svc.History(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(events))
	}
}

// @Summary      Pause Subscription
// @Tags         Subscription
// @Produce      json
// @Param        id path string true "Subscription ID"
// @Success      200  {object}  handlers.RespSubscription
// @Router       /api/v1/subscriptions/{id}/pause [post]
func ApiPauseSubscription(svc *subsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		sub, err := svc.Pause(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(sub))
	}
}

// @Summary      Cancel Subscription
// @Description  Terminal operation; history and aggregates are retained.
// @Tags         Subscription
// @Accept       json
// @Produce      json
// @Param        id path string true "Subscription ID"
// @Param        request body CancelSubscriptionRequest false "Cancellation reason"
// @Success      200  {object}  handlers.RespSubscription
// @Router       /api/v1/subscriptions/{id}/cancel [post]
func ApiCancelSubscription(svc *subsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CancelSubscriptionRequest
		_ = c.ShouldBindJSON(&req)
		sub, err := svc.Cancel(c.Request.Context(), c.Param("id"), req.Reason)
		if err != nil {
			writeServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(sub))
	}
}

// @Summary      Reactivate Subscription
// @Description  Resumes a paused or suspended subscription with failure counters cleared.
// @Tags         Subscription
// @Produce      json
// @Param        id path string true "Subscription ID"
// @Success      200  {object}  handlers.RespSubscription
// @Router       /api/v1/subscriptions/{id}/reactivate [post]
func ApiReactivateSubscription(svc *subsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		sub, err := svc.Reactivate(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(sub))
	}
}

// @Summary      Change Amount
// @Description  Updates the gift amount from the next cycle onward.
// @Tags         Subscription
// @Accept       json
// @Produce      json
// @Param        id path string true "Subscription ID"
// @Param        request body ChangeAmountRequest true "New amount"
// @Success      200  {object}  handlers.RespSubscription
// @Router       /api/v1/subscriptions/{id}/amount [post]
func ApiChangeAmount(svc *subsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ChangeAmountRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		sub, err := svc.ChangeAmount(c.Request.Context(), c.Param("id"), req.Amount, req.Note)
		if err != nil {
			writeServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(sub))
	}
}

// @Summary      Change Frequency
// @Description  Switches the billing cadence; the next due date is re-derived.
// @Tags         Subscription
// @Accept       json
// @Produce      json
// @Param        id path string true "Subscription ID"
// @Param        request body ChangeFrequencyRequest true "New frequency"
// @Success      200  {object}  handlers.RespSubscription
// @Router       /api/v1/subscriptions/{id}/frequency [post]
func ApiChangeFrequency(svc *subsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ChangeFrequencyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		sub, err := svc.ChangeFrequency(c.Request.Context(), c.Param("id"), req.Frequency, req.Note)
		if err != nil {
			writeServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(sub))
	}
}

// Swagger envelope aliases; the handlers return response.APIResponse[T].
type RespSubscription struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    models.Subscription      `json:"data"`
}

type RespPaymentEvents struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    []models.PaymentEvent    `json:"data"`
}

func RegisterSubscriptionRoutes(r gin.IRouter, svc *subsvc.Service) {
	r.POST("/subscriptions", ApiCreateSubscription(svc))
	r.GET("/subscriptions/:id", ApiGetSubscription(svc))
	r.GET("/subscriptions/:id/history", ApiSubscriptionHistory(svc))
	r.POST("/subscriptions/:id/pause", ApiPauseSubscription(svc))
	r.POST("/subscriptions/:id/cancel", ApiCancelSubscription(svc))
	r.POST("/subscriptions/:id/reactivate", ApiReactivateSubscription(svc))
	r.POST("/subscriptions/:id/amount", ApiChangeAmount(svc))
	r.POST("/subscriptions/:id/frequency", ApiChangeFrequency(svc))
}
