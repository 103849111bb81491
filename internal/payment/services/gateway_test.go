package services

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"nesavent/internal/logger"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"
)

func TestMapStatus(t *testing.T) {
	cases := []struct {
		status, fraud string
		want          Outcome
	}{
		{"capture", "accept", OutcomePaid},
		{"capture", "challenge", OutcomeNone},
		{"settlement", "", OutcomePaid},
		{"cancel", "", OutcomeCancelled},
		{"deny", "", OutcomeCancelled},
		{"expire", "", OutcomeCancelled},
		{"pending", "", OutcomeNone},
		{"refund", "", OutcomeNone},
		{"SETTLEMENT", "", OutcomePaid},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, MapStatus(tc.status, tc.fraud), "%s/%s", tc.status, tc.fraud)
	}
}

func TestReference_RoundTrip(t *testing.T) {
	orderID := "3f0c5a52-8a7e-4d55-9d8c-0e4b3a1e2f10"
	ref := NewReference(orderID, time.Unix(1740819600, 0))
	assert.Equal(t, orderID+"-1740819600", ref)

	got, err := ParseReference(ref)
	require.NoError(t, err)
	assert.Equal(t, orderID, got)
}

func TestParseReference_Invalid(t *testing.T) {
	for _, ref := range []string{"", "nodash", "-123", "order-", "order-abc"} {
		_, err := ParseReference(ref)
		assert.ErrorIs(t, err, ErrInvalidReference, ref)
	}
}

func TestSumItems(t *testing.T) {
	items := []ChargeItem{
		{Price: decimal.NewFromInt(50000), Quantity: 2},
		{Price: decimal.NewFromInt(25000), Quantity: 1},
	}
	assert.True(t, decimal.NewFromInt(125000).Equal(SumItems(items)))
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(5000000), minorUnits(decimal.NewFromInt(50000), "idr"))
	assert.Equal(t, int64(50000), minorUnits(decimal.NewFromInt(50000), "jpy"))
}

func newMidtrans(t *testing.T) *MidtransService {
	s, err := NewMidtransService("SB-Mid-server-test", false, 5*time.Second, logger.NewTestLogger(nil))
	require.NoError(t, err)
	return s
}

func midtransRequest(t *testing.T, body map[string]string) *http.Request {
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	return httptest.NewRequest(http.MethodPost, "/payment/notification", bytes.NewReader(raw))
}

func TestMidtrans_ParseNotification(t *testing.T) {
	s := newMidtrans(t)
	body := map[string]string{
		"order_id":           "order-1-1740819600",
		"status_code":        "200",
		"gross_amount":       "100000.00",
		"transaction_status": "settlement",
		"transaction_id":     "tx-1",
	}
	body["signature_key"] = Signature(body["order_id"], body["status_code"], body["gross_amount"], "SB-Mid-server-test")

	result, err := s.ParseNotification(midtransRequest(t, body))
	require.NoError(t, err)
	assert.Equal(t, "order-1-1740819600", result.Reference)
	assert.Equal(t, "settlement", result.TransactionStatus)
	assert.Equal(t, "tx-1", result.TransactionID)
}

func TestMidtrans_RejectsBadSignature(t *testing.T) {
	s := newMidtrans(t)
	body := map[string]string{
		"order_id":           "order-1-1740819600",
		"status_code":        "200",
		"gross_amount":       "100000.00",
		"transaction_status": "settlement",
		"signature_key":      "deadbeef",
	}

	_, err := s.ParseNotification(midtransRequest(t, body))
	require.Error(t, err)
	var werr *WebhookError
	require.True(t, errors.As(err, &werr))
	assert.Equal(t, http.StatusBadRequest, werr.StatusCode)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestMidtrans_RejectsMalformedBody(t *testing.T) {
	s := newMidtrans(t)
	req := httptest.NewRequest(http.MethodPost, "/payment/notification", bytes.NewReader([]byte("{")))
	_, err := s.ParseNotification(req)
	var werr *WebhookError
	require.True(t, errors.As(err, &werr))
	assert.Equal(t, "validation", werr.Category)
}

func TestNewMidtransService_RequiresKey(t *testing.T) {
	_, err := NewMidtransService("", false, time.Second, logger.NewTestLogger(nil))
	assert.ErrorIs(t, err, ErrGatewayNotReady)
}

func stripeRequest(t *testing.T, secret string, event map[string]interface{}) *http.Request {
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
	})
	req := httptest.NewRequest(http.MethodPost, "/payment/notification", bytes.NewReader(signed.Payload))
	req.Header.Set("Stripe-Signature", signed.Header)
	return req
}

func TestStripe_ParseNotification(t *testing.T) {
	s, err := NewStripeService("sk_test_123", "whsec_test", "idr", time.Second, logger.NewTestLogger(nil))
	require.NoError(t, err)

	req := stripeRequest(t, "whsec_test", map[string]interface{}{
		"id":     "evt_1",
		"object": "event",
		"type":   "payment_intent.succeeded",
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"id":       "pi_1",
				"object":   "payment_intent",
				"amount":   5000000,
				"metadata": map[string]string{"reference": "order-9-1740819600"},
			},
		},
	})

	result, err := s.ParseNotification(req)
	require.NoError(t, err)
	assert.Equal(t, "order-9-1740819600", result.Reference)
	assert.Equal(t, "settlement", result.TransactionStatus)
	assert.Equal(t, "pi_1", result.TransactionID)
	assert.Equal(t, OutcomePaid, MapStatus(result.TransactionStatus, result.FraudStatus))
}

func TestStripe_WrongSecretRejected(t *testing.T) {
	s, err := NewStripeService("sk_test_123", "whsec_test", "idr", time.Second, logger.NewTestLogger(nil))
	require.NoError(t, err)

	req := stripeRequest(t, "whsec_other", map[string]interface{}{"id": "evt_1", "object": "event", "type": "payment_intent.succeeded"})
	_, err = s.ParseNotification(req)
	var werr *WebhookError
	require.True(t, errors.As(err, &werr))
	assert.Equal(t, http.StatusBadRequest, werr.StatusCode)
}

func TestStripe_UnhandledTypeIsNoop(t *testing.T) {
	s, err := NewStripeService("sk_test_123", "whsec_test", "idr", time.Second, logger.NewTestLogger(nil))
	require.NoError(t, err)

	req := stripeRequest(t, "whsec_test", map[string]interface{}{
		"id": "evt_2", "object": "event", "type": "charge.refunded",
		"data": map[string]interface{}{"object": map[string]interface{}{}},
	})
	result, err := s.ParseNotification(req)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNone, MapStatus(result.TransactionStatus, result.FraudStatus))
}
