package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"nesavent/internal/logger"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
)

var zeroDecimalCurrencies = map[string]bool{"jpy": true, "krw": true, "vnd": true}

// StripeService charges through PaymentIntents. The order reference travels
// in metadata and comes back on webhook events.
type StripeService struct {
	client        *client.API
	webhookSecret string
	currency      string
	log           *logger.Logger
}

func NewStripeService(secretKey, webhookSecret, currency string, timeout time.Duration, log *logger.Logger) (*StripeService, error) {
	if secretKey == "" {
		log.Error("STRIPE", "STRIPE_SECRET_KEY is not set")
		return nil, ErrGatewayNotReady
	}

	sc := client.New(secretKey, stripe.NewBackends(&http.Client{Timeout: timeout}))
	log.Info("STRIPE", "Stripe client initialized successfully")
	return &StripeService{
		client:        sc,
		webhookSecret: webhookSecret,
		currency:      strings.ToLower(currency),
		log:           log,
	}, nil
}

func (s *StripeService) Name() string { return "stripe" }

// minorUnits converts an amount to the integer Stripe expects.
func minorUnits(amount decimal.Decimal, currency string) int64 {
	if zeroDecimalCurrencies[strings.ToLower(currency)] {
		return amount.Round(0).IntPart()
	}
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func (s *StripeService) CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error) {
	currency := req.Currency
	if currency == "" {
		currency = s.currency
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(minorUnits(req.Amount, currency)),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.AddMetadata("reference", req.Reference)
	params.AddMetadata("order_id", req.OrderID)
	if req.Customer.Email != "" {
		params.ReceiptEmail = stripe.String(req.Customer.Email)
	}

	intent, err := s.client.PaymentIntents.New(params)
	if err != nil {
		s.log.Error("STRIPE", fmt.Sprintf("Failed to create payment intent for %s: %v", req.Reference, err))
		return nil, err
	}

	s.log.Info("STRIPE", fmt.Sprintf("Created payment intent %s for %s", intent.ID, req.Reference))
	return &Charge{
		Gateway:   s.Name(),
		Reference: req.Reference,
		Token:     intent.ClientSecret,
		Amount:    req.Amount,
		Items:     req.Items,
	}, nil
}

// stripeStatus maps webhook event types to the shared status vocabulary.
var stripeStatus = map[stripe.EventType]string{
	"payment_intent.succeeded":      "settlement",
	"payment_intent.payment_failed": "deny",
	"payment_intent.canceled":       "cancel",
	"payment_intent.processing":     "pending",
}

func (s *StripeService) ParseNotification(r *http.Request) (*PaymentResult, error) {
	if s.webhookSecret == "" {
		return nil, &WebhookError{
			Category:      "configuration",
			StatusCode:    http.StatusInternalServerError,
			PublicError:   "Webhook processing error",
			InternalError: "Stripe webhook secret is not configured",
		}
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxNotificationBytes))
	if err != nil {
		return nil, validationError("Invalid webhook payload", err)
	}

	opts := webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true}
	event, err := webhook.ConstructEventWithOptions(payload, r.Header.Get("Stripe-Signature"), s.webhookSecret, opts)
	if err != nil {
		s.log.LogSecurity("INVALID_SIGNATURE", fmt.Sprintf("Stripe webhook rejected: %v", err))
		return nil, validationError("Webhook signature verification failed", err)
	}

	status, ok := stripeStatus[event.Type]
	if !ok {
		// Unhandled types are acknowledged without effect.
		return &PaymentResult{TransactionStatus: string(event.Type)}, nil
	}

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return nil, validationError("Invalid event data", err)
	}
	reference := intent.Metadata["reference"]
	if reference == "" {
		return nil, validationError("Invalid payment intent data", errors.New("payment intent has no reference in metadata"))
	}

	return &PaymentResult{
		Reference:         reference,
		TransactionStatus: status,
		TransactionID:     intent.ID,
		GrossAmount:       decimal.NewFromInt(intent.Amount).String(),
	}, nil
}
