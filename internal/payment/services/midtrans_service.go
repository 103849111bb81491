package services

import (
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"nesavent/internal/logger"

	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/snap"
)

const maxNotificationBytes = 1 << 16

// MidtransService creates Snap transactions and verifies HTTP notifications.
type MidtransService struct {
	client    snap.Client
	serverKey string
	log       *logger.Logger
}

func NewMidtransService(serverKey string, production bool, timeout time.Duration, log *logger.Logger) (*MidtransService, error) {
	if serverKey == "" {
		log.Error("MIDTRANS", "MIDTRANS_SERVER_KEY is not set")
		return nil, ErrGatewayNotReady
	}
	env := midtrans.Sandbox
	if production {
		env = midtrans.Production
	}
	midtrans.DefaultGoHttpClient = &http.Client{Timeout: timeout}

	s := &MidtransService{serverKey: serverKey, log: log}
	s.client.New(serverKey, env)
	log.Info("MIDTRANS", fmt.Sprintf("Snap client initialised (production=%t)", production))
	return s, nil
}

func (s *MidtransService) Name() string { return "midtrans" }

// CreateCharge opens a Snap transaction. Snap only accepts whole rupiah, so
// item prices are sent as integers; callers reconcile items to the total first.
func (s *MidtransService) CreateCharge(_ context.Context, req ChargeRequest) (*Charge, error) {
	items := make([]midtrans.ItemDetails, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, midtrans.ItemDetails{
			ID:    it.ID,
			Name:  truncate(it.Name, 50),
			Price: it.Price.IntPart(),
			Qty:   int32(it.Quantity),
		})
	}

	snapReq := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  req.Reference,
			GrossAmt: req.Amount.IntPart(),
		},
		CustomerDetail: &midtrans.CustomerDetails{
			FName: req.Customer.Name,
			Email: req.Customer.Email,
			Phone: req.Customer.Phone,
		},
		Items: &items,
	}

	resp, merr := s.client.CreateTransaction(snapReq)
	if merr != nil {
		s.log.Error("MIDTRANS", fmt.Sprintf("Snap transaction for %s failed: %s", req.Reference, merr.Message))
		return nil, fmt.Errorf("midtrans: %s", merr.Message)
	}

	s.log.Info("MIDTRANS", fmt.Sprintf("Snap transaction created for %s (Rp %s)", req.Reference, req.Amount.StringFixed(0)))
	return &Charge{
		Gateway:     s.Name(),
		Reference:   req.Reference,
		Token:       resp.Token,
		RedirectURL: resp.RedirectURL,
		Amount:      req.Amount,
		Items:       req.Items,
	}, nil
}

type midtransNotification struct {
	OrderID           string `json:"order_id"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
	TransactionID     string `json:"transaction_id"`
}

// Signature computes sha512(order_id + status_code + gross_amount + server_key).
func Signature(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

func (s *MidtransService) ParseNotification(r *http.Request) (*PaymentResult, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxNotificationBytes))
	if err != nil {
		return nil, validationError("Invalid notification payload", err)
	}

	var n midtransNotification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, validationError("Invalid notification payload", err)
	}
	if n.OrderID == "" || n.TransactionStatus == "" {
		return nil, validationError("Invalid notification payload", errors.New("order_id and transaction_status are required"))
	}

	expected := Signature(n.OrderID, n.StatusCode, n.GrossAmount, s.serverKey)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(n.SignatureKey)) != 1 {
		s.log.LogSecurity("INVALID_SIGNATURE", fmt.Sprintf("Midtrans notification for %s failed signature check", n.OrderID))
		return nil, validationError("Invalid signature", ErrInvalidSignature)
	}

	return &PaymentResult{
		Reference:         n.OrderID,
		TransactionStatus: n.TransactionStatus,
		FraudStatus:       n.FraudStatus,
		TransactionID:     n.TransactionID,
		GrossAmount:       n.GrossAmount,
	}, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
