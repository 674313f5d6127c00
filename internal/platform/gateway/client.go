package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	cfgpkg "github.com/pawhaven/sustainer/pkg/config"
	"github.com/pawhaven/sustainer/pkg/types"

	retryablehttp "github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// Client talks to the payment gateway over HTTP. Charges are idempotent
// on the gateway side (keyed by IdempotencyKey), so transport retries are
// safe; whatever still fails after retries is reported as a transient
// outcome and re-enters the billing retry path.
type Client struct {
	cfg  *cfgpkg.Config
	http *retryablehttp.Client
	log  *zap.SugaredLogger
}

func NewClient(cfg *cfgpkg.Config, log *zap.SugaredLogger) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.HTTPClient.Timeout = cfg.Gateway.Timeout
	rc.Logger = nil
	// Only transport-level failures retry at this layer. HTTP statuses are
	// classified by Charge; a 5xx becomes a transient outcome and re-enters
	// the billing retry path instead of hammering the gateway.
	rc.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return err != nil, nil
	}
	return &Client{cfg: cfg, http: rc, log: log}
}

type chargeResponse struct {
	Outcome       string `json:"outcome"`
	TransactionID string `json:"transaction_id"`
	FailureReason string `json:"failure_reason"`
}

func (c *Client) Charge(ctx context.Context, req *ChargeRequest) (*ChargeResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode charge request: %w", err)
	}

	hreq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Gateway.BaseURL+"/v1/charges", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build charge request: %w", err)
	}
	hreq.Header.Set("Content-Type", "application/json")
	hreq.Header.Set("Authorization", "Bearer "+c.cfg.Gateway.APIKey)
	hreq.Header.Set("Idempotency-Key", req.IdempotencyKey)

	resp, err := c.http.Do(hreq)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		// Timeouts and connection trouble classify as transient: the
		// charge may or may not have landed, and the idempotency key
		// makes the retry safe either way.
		c.log.Warnw("gateway charge transport failure", "idempotency_key", req.IdempotencyKey, "err", err)
		return &ChargeResult{Outcome: types.GatewayOutcomeTransient, FailureReason: "gateway unreachable"}, nil
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return &ChargeResult{Outcome: types.GatewayOutcomeTransient, FailureReason: fmt.Sprintf("gateway status %d", resp.StatusCode)}, nil
	case resp.StatusCode >= 400:
		return &ChargeResult{Outcome: types.GatewayOutcomeFailed, FailureReason: fmt.Sprintf("gateway rejected charge: status %d", resp.StatusCode)}, nil
	}

	var out chargeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return &ChargeResult{Outcome: types.GatewayOutcomeTransient, FailureReason: "malformed gateway response"}, nil
	}
	return classify(&out), nil
}

func classify(resp *chargeResponse) *ChargeResult {
	res := &ChargeResult{TransactionID: resp.TransactionID, FailureReason: resp.FailureReason}
	switch types.GatewayOutcome(resp.Outcome) {
	case types.GatewayOutcomeCompleted:
		res.Outcome = types.GatewayOutcomeCompleted
	case types.GatewayOutcomeFailed:
		res.Outcome = types.GatewayOutcomeFailed
	default:
		res.Outcome = types.GatewayOutcomeTransient
	}
	return res
}

var _ Gateway = (*Client)(nil)
