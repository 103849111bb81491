package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderPaid      OrderStatus = "paid"
	OrderCancelled OrderStatus = "cancelled"
	OrderExpired   OrderStatus = "expired"
)

// Terminal states have no outgoing transitions.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderPaid || s == OrderCancelled || s == OrderExpired
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if s != OrderPending {
		return false
	}
	return next == OrderPaid || next == OrderCancelled || next == OrderExpired
}

// ActiveOrderStatuses are the statuses that count against purchase quotas.
var ActiveOrderStatuses = []OrderStatus{OrderPending, OrderPaid}

type Order struct {
	bun.BaseModel `bun:"table:orders,alias:o"`

	ID             string          `bun:"id,pk" json:"id"`
	BuyerID        string          `bun:"buyer_id,notnull" json:"buyerId"`
	EventID        string          `bun:"event_id,notnull" json:"eventId"`
	Status         OrderStatus     `bun:"status,notnull" json:"status"`
	TotalHarga     decimal.Decimal `bun:"total_harga,type:decimal(15,2),notnull" json:"totalHarga"`
	TotalTiket     int             `bun:"total_tiket,notnull" json:"totalTiket"`
	TicketTypeID   *string         `bun:"ticket_type_id" json:"ticketTypeId,omitempty"`
	JumlahTiket    *int            `bun:"jumlah_tiket" json:"jumlahTiket,omitempty"`
	NamaPemesan    string          `bun:"nama_pemesan" json:"namaPemesan"`
	EmailPemesan   string          `bun:"email_pemesan" json:"emailPemesan"`
	TeleponPemesan string          `bun:"telepon_pemesan" json:"teleponPemesan"`

	PaymentReference string     `bun:"payment_reference" json:"paymentReference,omitempty"`
	PaymentToken     string     `bun:"payment_token" json:"-"`
	TransactionID    string     `bun:"transaction_id" json:"transactionId,omitempty"`
	PaidAt           *time.Time `bun:"paid_at" json:"paidAt,omitempty"`
	CancelledAt      *time.Time `bun:"cancelled_at" json:"cancelledAt,omitempty"`
	ExpiredAt        *time.Time `bun:"expired_at" json:"expiredAt,omitempty"`
	CreatedAt        time.Time  `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt        time.Time  `bun:"updated_at,notnull" json:"updatedAt"`

	Items []*OrderItem `bun:"rel:has-many,join:id=order_id" json:"items"`
}

type OrderItem struct {
	bun.BaseModel `bun:"table:order_items,alias:oi"`

	ID           string          `bun:"id,pk" json:"id"`
	OrderID      string          `bun:"order_id,notnull" json:"orderId"`
	TicketTypeID string          `bun:"ticket_type_id,notnull" json:"ticketTypeId"`
	NamaTiket    string          `bun:"nama_tiket" json:"namaTiket"`
	HargaSatuan  decimal.Decimal `bun:"harga_satuan,type:decimal(15,2),notnull" json:"hargaSatuan"`
	Quantity     int             `bun:"quantity,notnull" json:"quantity"`
	Subtotal     decimal.Decimal `bun:"subtotal,type:decimal(15,2),notnull" json:"subtotal"`
}

// Line is the single shape downstream code works with, whatever format the
// order was stored in.
type Line struct {
	TicketTypeID string
	Name         string
	UnitPrice    decimal.Decimal
	Quantity     int
}

// Lines normalises itemised and legacy single-tier orders. A legacy order
// without a quantity yields no lines.
func (o *Order) Lines() []Line {
	if !o.IsLegacy() {
		lines := make([]Line, 0, len(o.Items))
		for _, it := range o.Items {
			lines = append(lines, Line{
				TicketTypeID: it.TicketTypeID,
				Name:         it.NamaTiket,
				UnitPrice:    it.HargaSatuan,
				Quantity:     it.Quantity,
			})
		}
		return lines
	}
	if o.JumlahTiket == nil || *o.JumlahTiket <= 0 {
		return nil
	}
	qty := *o.JumlahTiket
	line := Line{
		Name:      "Tiket",
		UnitPrice: o.TotalHarga.Div(decimal.NewFromInt(int64(qty))),
		Quantity:  qty,
	}
	if o.TicketTypeID != nil {
		line.TicketTypeID = *o.TicketTypeID
	}
	return []Line{line}
}

func (o *Order) IsLegacy() bool {
	return len(o.Items) == 0
}

func (o *Order) SeatCount() int {
	n := 0
	for _, l := range o.Lines() {
		n += l.Quantity
	}
	return n
}

type TicketSelection struct {
	TicketTypeID string `json:"ticketTypeId" validate:"required"`
	Quantity     int    `json:"quantity"`
}

type CreateOrderRequest struct {
	EventID          string            `json:"eventId" validate:"required"`
	TicketSelections []TicketSelection `json:"ticketSelections" validate:"omitempty,dive"`
	TicketTypeID     string            `json:"ticketTypeId"`
	JumlahTiket      int               `json:"jumlahTiket"`
	NamaPemesan      string            `json:"namaPemesan"`
	EmailPemesan     string            `json:"emailPemesan" validate:"omitempty,email"`
	TeleponPemesan   string            `json:"teleponPemesan"`
}

// MaxSeatsPerOrder caps the merged seat count of one order.
const MaxSeatsPerOrder = 100

var (
	errNoSelections = errors.New("pilih minimal satu jenis tiket")
	errBadQuantity  = errors.New("jumlah tiket harus lebih dari 0")
	errTooManySeats = fmt.Errorf("maksimal %d tiket per pesanan", MaxSeatsPerOrder)
)

// Selections turns either request shape into a merged list of selections,
// preserving first-seen order. Every quantity and the running total stay
// within MaxSeatsPerOrder, so merging duplicates cannot overflow.
func (r CreateOrderRequest) Selections() ([]TicketSelection, error) {
	raw := r.TicketSelections
	if len(raw) == 0 && r.TicketTypeID != "" {
		raw = []TicketSelection{{TicketTypeID: r.TicketTypeID, Quantity: r.JumlahTiket}}
	}
	if len(raw) == 0 {
		return nil, errNoSelections
	}

	merged := make([]TicketSelection, 0, len(raw))
	index := make(map[string]int, len(raw))
	seats := 0
	for _, sel := range raw {
		if sel.TicketTypeID == "" {
			return nil, errNoSelections
		}
		if sel.Quantity <= 0 {
			return nil, errBadQuantity
		}
		if sel.Quantity > MaxSeatsPerOrder-seats {
			return nil, errTooManySeats
		}
		seats += sel.Quantity
		if i, ok := index[sel.TicketTypeID]; ok {
			merged[i].Quantity += sel.Quantity
			continue
		}
		index[sel.TicketTypeID] = len(merged)
		merged = append(merged, sel)
	}
	return merged, nil
}

type ContactUpdate struct {
	NamaPemesan    *string `json:"namaPemesan"`
	EmailPemesan   *string `json:"emailPemesan" validate:"omitempty,email"`
	TeleponPemesan *string `json:"teleponPemesan"`
}

type OrderFilter struct {
	EventID string
	Status  OrderStatus
	Page    int
	Limit   int
}
