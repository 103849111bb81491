package models

// StockUpdate is pushed to SSE subscribers whenever a tier's availability changes.
type StockUpdate struct {
	EventID      string `json:"eventId"`
	TicketTypeID string `json:"ticketTypeId"`
	StokTersisa  int    `json:"stokTersisa"`
	StokPending  int    `json:"stokPending"`
}

// OrderEvent is the Kafka payload for order lifecycle topics.
type OrderEvent struct {
	OrderID    string      `json:"orderId"`
	EventID    string      `json:"eventId"`
	BuyerID    string      `json:"buyerId"`
	Status     OrderStatus `json:"status"`
	TotalHarga string      `json:"totalHarga"`
	TotalTiket int         `json:"totalTiket"`
	OccurredAt string      `json:"occurredAt"`
}
