package models

import (
	"time"

	"github.com/uptrace/bun"
)

type TicketStatus string

const (
	TicketAktif    TicketStatus = "aktif"
	TicketTerpakai TicketStatus = "terpakai"
	TicketExpired  TicketStatus = "expired"
)

type Ticket struct {
	bun.BaseModel `bun:"table:tickets,alias:t"`

	ID           string       `bun:"id,pk" json:"id"`
	Code         string       `bun:"code,unique,notnull" json:"code"`
	OrderID      string       `bun:"order_id,notnull" json:"orderId"`
	EventID      string       `bun:"event_id,notnull" json:"eventId"`
	TicketTypeID string       `bun:"ticket_type_id" json:"ticketTypeId"`
	OwnerID      string       `bun:"owner_id,notnull" json:"ownerId"`
	OwnerName    string       `bun:"owner_name" json:"ownerName"`
	QRPayload    string       `bun:"qr_payload,notnull" json:"qrPayload"`
	Status       TicketStatus `bun:"status,notnull" json:"status"`
	IssuedAt     time.Time    `bun:"issued_at,notnull" json:"issuedAt"`
	UsedAt       *time.Time   `bun:"used_at" json:"usedAt,omitempty"`
}

// TicketCount is the number of tickets issued for an event on one day.
type TicketCount struct {
	bun.BaseModel `bun:"table:ticket_counts,alias:tc"`

	ID      int64     `bun:"id,pk,autoincrement" json:"-"`
	EventID string    `bun:"event_id,notnull,unique:event_day" json:"eventId"`
	Date    time.Time `bun:"date,notnull,unique:event_day" json:"date"`
	Count   int       `bun:"count,notnull" json:"count"`
}
