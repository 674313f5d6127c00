package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	cfgpkg "github.com/pawhaven/sustainer/pkg/config"
	"github.com/pawhaven/sustainer/pkg/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(baseURL string) *Client {
	cfg := &cfgpkg.Config{
		Gateway: cfgpkg.GatewayConfig{
			BaseURL: baseURL,
			APIKey:  "test-key",
			Timeout: 5 * time.Second,
		},
	}
	return NewClient(cfg, zap.NewNop().Sugar())
}

func chargeRequest() *ChargeRequest {
	return &ChargeRequest{
		PaymentMethodRef: "pm_tok_1",
		Amount:           decimal.NewFromInt(500),
		Currency:         "USD",
		IdempotencyKey:   "key-1",
	}
}

func TestClient_Charge_Completed(t *testing.T) {
	var gotIdemKey, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/charges", r.URL.Path)
		gotIdemKey = r.Header.Get("Idempotency-Key")
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"outcome":        "completed",
			"transaction_id": "txn-1",
		})
	}))
	defer srv.Close()

	res, err := newTestClient(srv.URL).Charge(context.Background(), chargeRequest())
	require.NoError(t, err)
	require.Equal(t, types.GatewayOutcomeCompleted, res.Outcome)
	require.Equal(t, "txn-1", res.TransactionID)
	require.Equal(t, "key-1", gotIdemKey)
	require.Equal(t, "Bearer test-key", gotAuth)
}

func TestClient_Charge_DeclinedIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
	}))
	defer srv.Close()

	res, err := newTestClient(srv.URL).Charge(context.Background(), chargeRequest())
	require.NoError(t, err)
	require.Equal(t, types.GatewayOutcomeFailed, res.Outcome)
}

func TestClient_Charge_ServerErrorIsTransient(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	res, err := newTestClient(srv.URL).Charge(context.Background(), chargeRequest())
	require.NoError(t, err)
	require.Equal(t, types.GatewayOutcomeTransient, res.Outcome)
	// HTTP statuses are not retried at the transport layer.
	require.Equal(t, 1, calls)
}

func TestClient_Charge_UnreachableIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	res, err := newTestClient(srv.URL).Charge(context.Background(), chargeRequest())
	require.NoError(t, err)
	require.Equal(t, types.GatewayOutcomeTransient, res.Outcome)
	require.Equal(t, "gateway unreachable", res.FailureReason)
}

func TestClassify_UnknownOutcomeIsTransient(t *testing.T) {
	res := classify(&chargeResponse{Outcome: "weird", TransactionID: "txn"})
	require.Equal(t, types.GatewayOutcomeTransient, res.Outcome)
	require.Equal(t, "txn", res.TransactionID)
}
