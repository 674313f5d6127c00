package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/pawhaven/sustainer/internal/app/service/billing"
	"github.com/pawhaven/sustainer/internal/platform/gateway"
	cfgpkg "github.com/pawhaven/sustainer/pkg/config"
	"github.com/pawhaven/sustainer/pkg/logctx"
	"github.com/pawhaven/sustainer/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type GatewayWebhookRequest struct {
	SignedPayload string `json:"signed_payload"`
}

// @Summary      Gateway Webhook
// @Description  Handles asynchronous charge notifications from the payment gateway. The body carries a JWS-signed payload.
// @Tags         Webhook
// @Accept       json
// @Produce      json
// @Param        request body GatewayWebhookRequest true "Signed gateway notification"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/webhook/gateway [post]
func ApiGatewayWebhook(proc *billing.Processor, cfg *cfgpkg.Config, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		logctx.FromCtx(c, log).Infow("webhook_gateway_received")

		body, err := io.ReadAll(c.Request.Body)
		if err != nil || len(body) == 0 {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "empty payload"))
			return
		}
		// Either a JSON envelope or the raw JWS as the body.
		var req GatewayWebhookRequest
		if jerr := json.Unmarshal(body, &req); jerr != nil || req.SignedPayload == "" {
			req.SignedPayload = string(body)
		}

		n, err := gateway.ParseWebhook(req.SignedPayload, cfg.Gateway.WebhookPublicKey)
		if err != nil {
			logctx.FromCtx(c, log).Errorw("webhook_gateway_parse_error", "error", err.Error())
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}

		if err := proc.ApplyWebhook(c.Request.Context(), n); err != nil {
			logctx.FromCtx(c, log).Errorw("webhook_gateway_handle_error", "error", err.Error())
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		logctx.FromCtx(c, log).Infow("webhook_gateway_handled",
			"subscription_id", n.SubscriptionID, "cycle_id", n.CycleID, "outcome", n.Outcome)
		c.JSON(http.StatusOK, response.OKT[any](nil))
	}
}

func RegisterWebhookRoutes(r gin.IRouter, proc *billing.Processor, cfg *cfgpkg.Config, log *zap.SugaredLogger) {
	r.POST("/gateway", ApiGatewayWebhook(proc, cfg, log))
}
