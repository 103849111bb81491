package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Notification struct {
	bun.BaseModel `bun:"table:notifications,alias:n"`

	ID          string    `bun:"id,pk" json:"id"`
	RecipientID string    `bun:"recipient_id,notnull" json:"recipientId"`
	Type        string    `bun:"type,notnull" json:"type"`
	Title       string    `bun:"title,notnull" json:"title"`
	Message     string    `bun:"message" json:"message"`
	ReferenceID string    `bun:"reference_id" json:"referenceId"`
	IsRead      bool      `bun:"is_read,notnull" json:"isRead"`
	CreatedAt   time.Time `bun:"created_at,notnull" json:"createdAt"`
}
