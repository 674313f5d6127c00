package types

// PaymentOutcome is the recorded state of a single charge attempt.
// A pending attempt is waiting for an intra-cycle retry; completed and
// failed are terminal for the attempt.
type PaymentOutcome string

const (
	PaymentOutcomeCompleted PaymentOutcome = "completed"
	PaymentOutcomePending   PaymentOutcome = "pending"
	PaymentOutcomeFailed    PaymentOutcome = "failed"
)

// Terminal reports whether the outcome ends the attempt.
func (o PaymentOutcome) Terminal() bool {
	return o == PaymentOutcomeCompleted || o == PaymentOutcomeFailed
}

// GatewayOutcome is what the payment gateway reports for a charge call.
// Transient outcomes (timeouts, rate limits) are retried within the
// billing cycle; failed is permanent for the attempt.
type GatewayOutcome string

const (
	GatewayOutcomeCompleted GatewayOutcome = "completed"
	GatewayOutcomeFailed    GatewayOutcome = "failed"
	GatewayOutcomeTransient GatewayOutcome = "transient"
)
