package gateway

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"testing"

	"github.com/pawhaven/sustainer/pkg/types"

	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/require"
)

func newWebhookKey(t *testing.T) (*ecdsa.PrivateKey, string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
	return key, string(pemBytes)
}

func signNotification(t *testing.T, key *ecdsa.PrivateKey, n *WebhookNotification) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodES256, n)
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func TestParseWebhook_RoundTrip(t *testing.T) {
	key, pub := newWebhookKey(t)
	payload := signNotification(t, key, &WebhookNotification{
		SubscriptionID: "sub-1",
		CycleID:        "sub-1:2026-03-15",
		AttemptNumber:  2,
		Outcome:        string(types.GatewayOutcomeCompleted),
		TransactionID:  "txn-9",
		NotifiedAt:     1780000000,
	})

	got, err := ParseWebhook(payload, pub)
	require.NoError(t, err)
	require.Equal(t, "sub-1", got.SubscriptionID)
	require.Equal(t, 2, got.AttemptNumber)
	require.Equal(t, "txn-9", got.TransactionID)
	require.Equal(t, types.GatewayOutcomeCompleted, got.Result().Outcome)
	require.False(t, got.NotificationTime().IsZero())
}

func TestParseWebhook_WrongKeyRejected(t *testing.T) {
	key, _ := newWebhookKey(t)
	_, otherPub := newWebhookKey(t)
	payload := signNotification(t, key, &WebhookNotification{
		SubscriptionID: "sub-1",
		CycleID:        "sub-1:2026-03-15",
		AttemptNumber:  1,
		Outcome:        string(types.GatewayOutcomeFailed),
	})

	_, err := ParseWebhook(payload, otherPub)
	require.ErrorIs(t, err, ErrWebhookInvalid)
}

func TestParseWebhook_MissingKey(t *testing.T) {
	_, err := ParseWebhook("anything", "")
	require.ErrorIs(t, err, ErrWebhookKeyMissing)
}

func TestParseWebhook_InvalidClaims(t *testing.T) {
	key, pub := newWebhookKey(t)
	payload := signNotification(t, key, &WebhookNotification{
		SubscriptionID: "",
		CycleID:        "sub-1:2026-03-15",
		AttemptNumber:  1,
		Outcome:        string(types.GatewayOutcomeCompleted),
	})

	_, err := ParseWebhook(payload, pub)
	require.ErrorIs(t, err, ErrWebhookInvalid)
}
