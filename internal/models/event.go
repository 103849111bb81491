package models

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type EventStatus string

const (
	EventDraft      EventStatus = "draft"
	EventPending    EventStatus = "pending"
	EventAktif      EventStatus = "aktif"
	EventSelesai    EventStatus = "selesai"
	EventDibatalkan EventStatus = "dibatalkan"
	EventDitolak    EventStatus = "ditolak"
)

var eventTransitions = map[EventStatus][]EventStatus{
	EventDraft:   {EventPending, EventAktif},
	EventPending: {EventAktif, EventDitolak},
	EventAktif:   {EventSelesai, EventDibatalkan},
}

// CanTransitionTo reports whether the moderation table allows s -> next.
// Publishing a draft directly is reserved to admins.
func (s EventStatus) CanTransitionTo(next EventStatus, byAdmin bool) bool {
	if s == EventDraft && next == EventAktif && !byAdmin {
		return false
	}
	if s == EventPending && !byAdmin {
		return false
	}
	for _, allowed := range eventTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type Event struct {
	bun.BaseModel `bun:"table:events,alias:e"`

	ID                 string        `bun:"id,pk" json:"id"`
	Slug               string        `bun:"slug,unique,notnull" json:"slug"`
	Name               string        `bun:"name,notnull" json:"name"`
	Description        string        `bun:"description" json:"description"`
	Category           string        `bun:"category" json:"category"`
	Location           string        `bun:"location" json:"location"`
	StartDate          time.Time     `bun:"start_date,notnull" json:"startDate"`
	EndDate            time.Time     `bun:"end_date,notnull" json:"endDate"`
	OrganizerID        string        `bun:"organizer_id,notnull" json:"organizerId"`
	Status             EventStatus   `bun:"status,notnull" json:"status"`
	VerificationStatus string        `bun:"verification_status,notnull" json:"verificationStatus"`
	ViewCount          int64         `bun:"view_count,notnull,default:0" json:"viewCount"`
	CreatedAt          time.Time     `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt          time.Time     `bun:"updated_at,notnull" json:"updatedAt"`
	TicketTypes        []*TicketType `bun:"rel:has-many,join:id=event_id" json:"ticketTypes"`
}

// TicketType finds a tier by id.
func (e *Event) TicketType(id string) *TicketType {
	for _, tt := range e.TicketTypes {
		if tt.ID == id {
			return tt
		}
	}
	return nil
}

// TicketType is one tier of an event. Stock fields are only ever changed
// through conditional UPDATEs in the order and event repositories.
type TicketType struct {
	bun.BaseModel `bun:"table:ticket_types,alias:tt"`

	ID                   string          `bun:"id,pk" json:"id"`
	EventID              string          `bun:"event_id,notnull" json:"eventId"`
	Urutan               int             `bun:"urutan,notnull" json:"urutan"`
	Name                 string          `bun:"name,notnull" json:"name"`
	Description          string          `bun:"description" json:"description"`
	Harga                decimal.Decimal `bun:"harga,type:decimal(15,2),notnull" json:"harga"`
	Stok                 int             `bun:"stok,notnull" json:"stok"`
	StokTersisa          int             `bun:"stok_tersisa,notnull" json:"stokTersisa"`
	StokPending          int             `bun:"stok_pending,notnull" json:"stokPending"`
	MaxPembelianPerOrang *int            `bun:"max_pembelian_per_orang" json:"maxPembelianPerOrang"`
	MulaiJual            *time.Time      `bun:"mulai_jual" json:"mulaiJual"`
	AkhirJual            *time.Time      `bun:"akhir_jual" json:"akhirJual"`
	AllowedRoles         RoleList        `bun:"allowed_roles,type:text" json:"allowedRoles"`
	KhususMahasiswa      bool            `bun:"khusus_mahasiswa,notnull" json:"khususMahasiswa"`
}

// SaleWindowState returns -1 before mulaiJual, 1 after akhirJual, 0 inside.
func (t *TicketType) SaleWindowState(now time.Time) int {
	if t.MulaiJual != nil && now.Before(*t.MulaiJual) {
		return -1
	}
	if t.AkhirJual != nil && now.After(*t.AkhirJual) {
		return 1
	}
	return 0
}

// HasSales reports whether any stock has left the sellable pool.
func (t *TicketType) HasSales() bool {
	return t.StokTersisa != t.Stok || t.StokPending != 0
}

// RoleList is stored as a comma separated string.
type RoleList []Role

func (l RoleList) Contains(r Role) bool {
	for _, role := range l {
		if role == r {
			return true
		}
	}
	return false
}

func (l RoleList) Value() (driver.Value, error) {
	parts := make([]string, len(l))
	for i, r := range l {
		parts[i] = string(r)
	}
	return strings.Join(parts, ","), nil
}

func (l *RoleList) Scan(src interface{}) error {
	var raw string
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("RoleList: unsupported type %T", src)
	}
	*l = nil
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			*l = append(*l, Role(part))
		}
	}
	return nil
}

type TicketTypeInput struct {
	ID                   string          `json:"id"`
	Name                 string          `json:"name" validate:"required"`
	Description          string          `json:"description"`
	Harga                decimal.Decimal `json:"harga"`
	Stok                 int             `json:"stok" validate:"gte=0"`
	MaxPembelianPerOrang *int            `json:"maxPembelianPerOrang" validate:"omitempty,gt=0"`
	MulaiJual            *time.Time      `json:"mulaiJual"`
	AkhirJual            *time.Time      `json:"akhirJual"`
	AllowedRoles         []Role          `json:"allowedRoles"`
	KhususMahasiswa      bool            `json:"khususMahasiswa"`
}

type EventInput struct {
	Name        string            `json:"name" validate:"required"`
	Description string            `json:"description"`
	Category    string            `json:"category"`
	Location    string            `json:"location"`
	StartDate   time.Time         `json:"startDate" validate:"required"`
	EndDate     time.Time         `json:"endDate" validate:"required"`
	TicketTypes []TicketTypeInput `json:"ticketTypes" validate:"required,min=1,dive"`
}

type EventFilter struct {
	Category    string
	Query       string
	Location    string
	DateFrom    *time.Time
	DateTo      *time.Time
	PriceMin    *decimal.Decimal
	PriceMax    *decimal.Decimal
	StudentOnly bool
	Free        bool
	Page        int
	Limit       int
}

type EventPage struct {
	Events []*Event `json:"events"`
	Total  int      `json:"total"`
	Page   int      `json:"page"`
	Limit  int      `json:"limit"`
}
