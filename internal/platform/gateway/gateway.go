package gateway

import (
	"context"

	"github.com/pawhaven/sustainer/pkg/types"

	"github.com/shopspring/decimal"
)

// ChargeRequest asks the gateway to execute one charge against a stored
// payment method. The idempotency key makes re-sent requests safe.
type ChargeRequest struct {
	PaymentMethodRef string          `json:"payment_method_ref"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	IdempotencyKey   string          `json:"idempotency_key"`
}

type ChargeResult struct {
	Outcome       types.GatewayOutcome `json:"outcome"`
	TransactionID string               `json:"transaction_id,omitempty"`
	FailureReason string               `json:"failure_reason,omitempty"`
}

// Gateway is the black-box charge operation. Implementations must map
// transport-level trouble (timeouts, rate limits) to a transient outcome
// rather than an error so the caller feeds one retry path.
type Gateway interface {
	Charge(ctx context.Context, req *ChargeRequest) (*ChargeResult, error)
}
