package analytics

import (
	"context"
	"sort"

	"nesavent/internal/models"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

const dayLayout = "2006-01-02"

// Service aggregates sales figures from settled orders.
type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db: db}
}

// EventAnalytics is the sales summary of one event. Only paid orders count
// towards revenue; pending orders are reported separately as seats on hold.
type EventAnalytics struct {
	EventID          string              `json:"eventId"`
	TotalRevenue     decimal.Decimal     `json:"totalRevenue"`
	TotalTicketsSold int                 `json:"totalTicketsSold"`
	PaidOrders       int                 `json:"paidOrders"`
	PendingOrders    int                 `json:"pendingOrders"`
	SeatsOnHold      int                 `json:"seatsOnHold"`
	DailySales       []DailySalesMetrics `json:"dailySales"`
	SalesByTier      []TierSalesMetrics  `json:"salesByTier"`
}

type DailySalesMetrics struct {
	Date        string          `json:"date"`
	Revenue     decimal.Decimal `json:"revenue"`
	TicketsSold int             `json:"ticketsSold"`
}

type TierSalesMetrics struct {
	TicketTypeID string          `json:"ticketTypeId"`
	Name         string          `json:"name"`
	TicketsSold  int             `json:"ticketsSold"`
	Revenue      decimal.Decimal `json:"revenue"`
	Stok         int             `json:"stok"`
	StokTersisa  int             `json:"stokTersisa"`
}

// EventSummary is one row of the organizer dashboard.
type EventSummary struct {
	EventID          string             `json:"eventId"`
	Slug             string             `json:"slug"`
	Name             string             `json:"name"`
	Status           models.EventStatus `json:"status"`
	TotalRevenue     decimal.Decimal    `json:"totalRevenue"`
	TotalTicketsSold int                `json:"totalTicketsSold"`
}

type OrganizerAnalytics struct {
	OrganizerID      string          `json:"organizerId"`
	TotalRevenue     decimal.Decimal `json:"totalRevenue"`
	TotalTicketsSold int             `json:"totalTicketsSold"`
	Events           []EventSummary  `json:"events"`
}

// GetEventAnalytics returns revenue analytics for a specific event.
func (s *Service) GetEventAnalytics(ctx context.Context, eventID string) (*EventAnalytics, error) {
	var orders []*models.Order
	err := s.db.NewSelect().
		Model(&orders).
		Relation("Items").
		Where("o.event_id = ?", eventID).
		Where("o.status IN (?)", bun.In([]models.OrderStatus{models.OrderPaid, models.OrderPending})).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	var tiers []*models.TicketType
	err = s.db.NewSelect().
		Model(&tiers).
		Where("event_id = ?", eventID).
		Order("urutan ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	return aggregate(eventID, orders, tiers), nil
}

func aggregate(eventID string, orders []*models.Order, tiers []*models.TicketType) *EventAnalytics {
	result := &EventAnalytics{
		EventID:      eventID,
		TotalRevenue: decimal.Zero,
		DailySales:   []DailySalesMetrics{},
		SalesByTier:  make([]TierSalesMetrics, 0, len(tiers)),
	}

	byTier := make(map[string]*TierSalesMetrics, len(tiers))
	for _, tt := range tiers {
		result.SalesByTier = append(result.SalesByTier, TierSalesMetrics{
			TicketTypeID: tt.ID,
			Name:         tt.Name,
			Revenue:      decimal.Zero,
			Stok:         tt.Stok,
			StokTersisa:  tt.StokTersisa,
		})
	}
	for i := range result.SalesByTier {
		byTier[result.SalesByTier[i].TicketTypeID] = &result.SalesByTier[i]
	}

	byDay := map[string]*DailySalesMetrics{}
	for _, o := range orders {
		if o.Status == models.OrderPending {
			result.PendingOrders++
			result.SeatsOnHold += o.SeatCount()
			continue
		}

		seats := o.SeatCount()
		result.PaidOrders++
		result.TotalTicketsSold += seats
		result.TotalRevenue = result.TotalRevenue.Add(o.TotalHarga)

		paidAt := o.CreatedAt
		if o.PaidAt != nil {
			paidAt = *o.PaidAt
		}
		day := paidAt.UTC().Format(dayLayout)
		d, ok := byDay[day]
		if !ok {
			d = &DailySalesMetrics{Date: day, Revenue: decimal.Zero}
			byDay[day] = d
		}
		d.Revenue = d.Revenue.Add(o.TotalHarga)
		d.TicketsSold += seats

		for _, l := range o.Lines() {
			ts, ok := byTier[l.TicketTypeID]
			if !ok {
				continue
			}
			ts.TicketsSold += l.Quantity
			ts.Revenue = ts.Revenue.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
		}
	}

	for _, d := range byDay {
		result.DailySales = append(result.DailySales, *d)
	}
	sort.Slice(result.DailySales, func(i, j int) bool {
		return result.DailySales[i].Date < result.DailySales[j].Date
	})
	return result
}

// GetOrganizerAnalytics summarises every event of an organizer, newest first.
func (s *Service) GetOrganizerAnalytics(ctx context.Context, organizerID string) (*OrganizerAnalytics, error) {
	var events []*models.Event
	err := s.db.NewSelect().
		Model(&events).
		Where("organizer_id = ?", organizerID).
		Order("start_date DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	result := &OrganizerAnalytics{
		OrganizerID:  organizerID,
		TotalRevenue: decimal.Zero,
		Events:       make([]EventSummary, 0, len(events)),
	}
	for _, e := range events {
		ea, err := s.GetEventAnalytics(ctx, e.ID)
		if err != nil {
			return nil, err
		}
		result.Events = append(result.Events, EventSummary{
			EventID:          e.ID,
			Slug:             e.Slug,
			Name:             e.Name,
			Status:           e.Status,
			TotalRevenue:     ea.TotalRevenue,
			TotalTicketsSold: ea.TotalTicketsSold,
		})
		result.TotalRevenue = result.TotalRevenue.Add(ea.TotalRevenue)
		result.TotalTicketsSold += ea.TotalTicketsSold
	}
	return result, nil
}
