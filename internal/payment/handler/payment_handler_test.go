package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"nesavent/internal/apperr"
	"nesavent/internal/auth"
	"nesavent/internal/logger"
	"nesavent/internal/models"
	"nesavent/internal/order"
	"nesavent/internal/payment/services"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	serverKey = "SB-Mid-server-test"
	jwtSecret = "jwt-secret"
)

type MockOrderPayments struct {
	mock.Mock
}

func (m *MockOrderPayments) CreatePaymentCharge(ctx context.Context, caller models.Caller, orderID string) (*services.Charge, error) {
	args := m.Called(caller, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.Charge), args.Error(1)
}

func (m *MockOrderPayments) HandlePaymentResult(ctx context.Context, reference string, result services.PaymentResult) (order.SettlementOutcome, error) {
	args := m.Called(reference, result)
	return args.Get(0).(order.SettlementOutcome), args.Error(1)
}

func setupRouter(t *testing.T) (*gin.Engine, *MockOrderPayments) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logger.NewTestLogger(nil)

	gateway, err := services.NewMidtransService(serverKey, false, 5*time.Second, log)
	require.NoError(t, err)

	orders := new(MockOrderPayments)
	verifier := &auth.HMACVerifier{Secret: []byte(jwtSecret)}

	r := gin.New()
	NewPaymentHandler(orders, gateway, log).Register(r, auth.GinMiddleware(verifier))
	return r, orders
}

func notification(t *testing.T, orderID, status, signature string) *http.Request {
	t.Helper()
	if signature == "" {
		signature = services.Signature(orderID, "200", "100000.00", serverKey)
	}
	body, err := json.Marshal(map[string]string{
		"order_id":           orderID,
		"status_code":        "200",
		"gross_amount":       "100000.00",
		"signature_key":      signature,
		"transaction_status": status,
		"transaction_id":     "trx-1",
	})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/payment/notification", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestNotification_Applied(t *testing.T) {
	r, orders := setupRouter(t)
	ref := "0b6c1f3e-2f4a-4a43-9d55-6a8f0e7e1c11-1740819600"

	orders.On("HandlePaymentResult", ref, mock.MatchedBy(func(res services.PaymentResult) bool {
		return res.TransactionStatus == "settlement" && res.TransactionID == "trx-1"
	})).Return(order.SettlementApplied, nil).Once()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, notification(t, ref, "settlement", ""))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"outcome":"applied"`)
	orders.AssertExpectations(t)
}

func TestNotification_NoopIsOK(t *testing.T) {
	r, orders := setupRouter(t)
	orders.On("HandlePaymentResult", "o-1-1", mock.Anything).Return(order.SettlementNoop, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, notification(t, "o-1-1", "pending", ""))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestNotification_BadSignature(t *testing.T) {
	r, orders := setupRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, notification(t, "o-1-1", "settlement", "deadbeef"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	orders.AssertNotCalled(t, "HandlePaymentResult", mock.Anything, mock.Anything)
}

func TestNotification_MalformedBody(t *testing.T) {
	r, _ := setupRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/payment/notification", bytes.NewBufferString("{")))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestNotification_UnknownOrder(t *testing.T) {
	r, orders := setupRouter(t)
	orders.On("HandlePaymentResult", "missing-1", mock.Anything).Return(order.SettlementNoop, order.ErrOrderNotFound)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, notification(t, "missing-1", "settlement", ""))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNotification_StoreFailure(t *testing.T) {
	r, orders := setupRouter(t)
	orders.On("HandlePaymentResult", "o-1-1", mock.Anything).Return(order.SettlementNoop, errors.New("connection reset"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, notification(t, "o-1-1", "settlement", ""))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func bearer(t *testing.T, sub, role string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  sub,
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	raw, err := token.SignedString([]byte(jwtSecret))
	require.NoError(t, err)
	return "Bearer " + raw
}

func TestCreatePayment(t *testing.T) {
	r, orders := setupRouter(t)
	caller := models.Caller{UserID: "budi", Role: models.RoleMahasiswa}
	orders.On("CreatePaymentCharge", caller, "order-1").
		Return(&services.Charge{Gateway: "midtrans", Reference: "order-1-1", Token: "snap-token"}, nil)

	req := httptest.NewRequest(http.MethodPost, "/payment/create", bytes.NewBufferString(`{"orderId":"order-1"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", bearer(t, "budi", "mahasiswa"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "snap-token")
}

func TestCreatePayment_Errors(t *testing.T) {
	r, orders := setupRouter(t)
	orders.On("CreatePaymentCharge", mock.Anything, "gone").Return(nil, order.ErrOrderNotFound)
	orders.On("CreatePaymentCharge", mock.Anything, "down").Return(nil, apperr.Wrap(order.ErrPaymentGateway, errors.New("timeout")))

	cases := []struct {
		name   string
		body   string
		auth   bool
		status int
	}{
		{"no token", `{"orderId":"gone"}`, false, http.StatusUnauthorized},
		{"missing order id", `{}`, true, http.StatusBadRequest},
		{"unknown order", `{"orderId":"gone"}`, true, http.StatusNotFound},
		{"gateway down", `{"orderId":"down"}`, true, http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/payment/create", bytes.NewBufferString(tc.body))
			req.Header.Set("Content-Type", "application/json")
			if tc.auth {
				req.Header.Set("Authorization", bearer(t, "budi", "mahasiswa"))
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
		})
	}
}
