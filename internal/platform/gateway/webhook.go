package gateway

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"time"

	"github.com/pawhaven/sustainer/pkg/types"

	"github.com/golang-jwt/jwt"
)

var (
	ErrWebhookKeyMissing = errors.New("gateway webhook public key not configured")
	ErrWebhookInvalid    = errors.New("invalid gateway webhook payload")
)

// WebhookNotification is the claim set of a JWS-signed asynchronous
// notification from the gateway: the final word on a charge that was
// still pending when the synchronous call returned.
type WebhookNotification struct {
	SubscriptionID string `json:"subscription_id"`
	CycleID        string `json:"cycle_id"`
	AttemptNumber  int    `json:"attempt_number"`
	Outcome        string `json:"outcome"`
	TransactionID  string `json:"transaction_id"`
	FailureReason  string `json:"failure_reason"`
	NotifiedAt     int64  `json:"notified_at"`
}

func (n *WebhookNotification) Valid() error {
	if n.SubscriptionID == "" || n.CycleID == "" || n.AttemptNumber < 1 {
		return ErrWebhookInvalid
	}
	switch types.GatewayOutcome(n.Outcome) {
	case types.GatewayOutcomeCompleted, types.GatewayOutcomeFailed, types.GatewayOutcomeTransient:
		return nil
	default:
		return fmt.Errorf("%w: outcome %q", ErrWebhookInvalid, n.Outcome)
	}
}

func (n *WebhookNotification) NotificationTime() time.Time {
	if n.NotifiedAt == 0 {
		return time.Time{}
	}
	return time.Unix(n.NotifiedAt, 0)
}

func (n *WebhookNotification) Result() *ChargeResult {
	return &ChargeResult{
		Outcome:       types.GatewayOutcome(n.Outcome),
		TransactionID: n.TransactionID,
		FailureReason: n.FailureReason,
	}
}

// ParseWebhook verifies the JWS signature against the gateway's published
// key and returns the notification claims.
func ParseWebhook(signedPayload, publicKeyPEM string) (*WebhookNotification, error) {
	if publicKeyPEM == "" {
		return nil, ErrWebhookKeyMissing
	}
	key, err := parsePublicKey(publicKeyPEM)
	if err != nil {
		return nil, err
	}

	claims := &WebhookNotification{}
	_, err = jwt.ParseWithClaims(signedPayload, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodECDSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWebhookInvalid, err)
	}
	return claims, nil
}

func parsePublicKey(pemStr string) (*ecdsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, fmt.Errorf("%w: not PEM encoded", ErrWebhookKeyMissing)
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse webhook public key: %w", err)
	}
	switch pk := pub.(type) {
	case *ecdsa.PublicKey:
		return pk, nil
	default:
		return nil, errors.New("gateway webhook key must be of type ecdsa.PublicKey")
	}
}
