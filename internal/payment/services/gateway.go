package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidReference = errors.New("invalid payment reference")
	ErrInvalidSignature = errors.New("invalid notification signature")
	ErrGatewayNotReady  = errors.New("payment gateway is not configured")
)

// Gateway is a hosted payment provider.
type Gateway interface {
	Name() string
	CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error)
	ParseNotification(r *http.Request) (*PaymentResult, error)
}

type ChargeItem struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
}

type Customer struct {
	Name  string
	Email string
	Phone string
}

type ChargeRequest struct {
	Reference string
	OrderID   string
	Amount    decimal.Decimal
	Currency  string
	Items     []ChargeItem
	Customer  Customer
}

// Charge is what the buyer's client needs to open the payment page.
type Charge struct {
	Gateway     string          `json:"gateway"`
	Reference   string          `json:"reference"`
	Token       string          `json:"token"`
	RedirectURL string          `json:"redirectUrl,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Items       []ChargeItem    `json:"items"`
}

// PaymentResult is a gateway notification reduced to the fields settlement
// needs. Statuses use the Midtrans vocabulary.
type PaymentResult struct {
	Reference         string
	TransactionStatus string
	FraudStatus       string
	TransactionID     string
	GrossAmount       string
}

type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomePaid
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomePaid:
		return "paid"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "none"
	}
}

// MapStatus maps a gateway transaction status to the order transition it
// implies. A challenged capture waits for a later notification.
func MapStatus(transactionStatus, fraudStatus string) Outcome {
	switch strings.ToLower(transactionStatus) {
	case "capture":
		if strings.EqualFold(fraudStatus, "accept") || fraudStatus == "" {
			return OutcomePaid
		}
		return OutcomeNone
	case "settlement":
		return OutcomePaid
	case "cancel", "deny", "expire":
		return OutcomeCancelled
	default:
		return OutcomeNone
	}
}

// NewReference builds the gateway order reference: orderId-unixSeconds. The
// suffix keeps references unique when a charge is re-created for the same order.
func NewReference(orderID string, now time.Time) string {
	return orderID + "-" + strconv.FormatInt(now.Unix(), 10)
}

// ParseReference splits at the last "-"; order ids are UUIDs and contain dashes.
func ParseReference(ref string) (string, error) {
	i := strings.LastIndex(ref, "-")
	if i <= 0 || i == len(ref)-1 {
		return "", fmt.Errorf("%w: %q", ErrInvalidReference, ref)
	}
	if _, err := strconv.ParseInt(ref[i+1:], 10, 64); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidReference, ref)
	}
	return ref[:i], nil
}

// SumItems returns Σ price × quantity.
func SumItems(items []ChargeItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total
}

// WebhookError carries both the client-facing and the logged view of a
// notification failure.
type WebhookError struct {
	Category      string // "configuration", "validation", "processing"
	StatusCode    int
	PublicError   string
	InternalError string
	OriginalErr   error
}

func (e *WebhookError) Error() string {
	return e.InternalError
}

func (e *WebhookError) Unwrap() error { return e.OriginalErr }

func validationError(public string, err error) *WebhookError {
	return &WebhookError{
		Category:      "validation",
		StatusCode:    http.StatusBadRequest,
		PublicError:   public,
		InternalError: fmt.Sprintf("%s: %v", public, err),
		OriginalErr:   err,
	}
}
