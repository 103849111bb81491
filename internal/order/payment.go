package order

import (
	"context"
	"fmt"

	"nesavent/internal/apperr"
	"nesavent/internal/models"
	"nesavent/internal/payment/services"

	"github.com/shopspring/decimal"
)

// CreatePaymentCharge opens a gateway payment for a pending order owned by
// the caller and stores the reference it was opened under.
func (s *OrderService) CreatePaymentCharge(ctx context.Context, caller models.Caller, orderID string) (*services.Charge, error) {
	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != caller.UserID {
		return nil, ErrOrderNotOwned
	}
	if order.Status != models.OrderPending {
		return nil, ErrOrderNotPending
	}

	items, err := BuildChargeItems(order)
	if err != nil {
		return nil, err
	}
	if s.Gateway == nil {
		return nil, apperr.Wrap(ErrPaymentGateway, services.ErrGatewayNotReady)
	}

	ref := services.NewReference(order.ID, s.Clock.Now())
	charge, err := s.Gateway.CreateCharge(ctx, services.ChargeRequest{
		Reference: ref,
		OrderID:   order.ID,
		Amount:    order.TotalHarga,
		Currency:  s.Currency,
		Items:     items,
		Customer: services.Customer{
			Name:  order.NamaPemesan,
			Email: order.EmailPemesan,
			Phone: order.TeleponPemesan,
		},
	})
	if err != nil {
		s.Logger.Error("PAYMENT", fmt.Sprintf("Charge for order %s failed: %v", order.ID, err))
		return nil, apperr.Wrap(ErrPaymentGateway, err)
	}

	ok, err := s.DB.SetPaymentReference(ctx, order.ID, ref, charge.Token, s.Clock.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to store payment reference: %w", err)
	}
	if !ok {
		// Settled or expired while the gateway call was in flight.
		return nil, ErrOrderNotPending
	}

	s.Logger.LogOrder("CHARGE", order.ID, fmt.Sprintf("gateway=%s reference=%s amount=%s", s.Gateway.Name(), ref, order.TotalHarga.String()))
	return charge, nil
}

// BuildChargeItems turns an order into gateway line items whose sum equals
// TotalHarga exactly, in whole rupiah. Unit prices are truncated and the
// remainder is pushed onto the first line. A total with a fractional part
// cannot be charged.
func BuildChargeItems(order *models.Order) ([]services.ChargeItem, error) {
	lines := order.Lines()
	if len(lines) == 0 {
		return nil, ErrMalformedOrder
	}
	if !order.TotalHarga.IsInteger() {
		return nil, ErrFractionalAmount
	}

	items := make([]services.ChargeItem, 0, len(lines)+1)
	for i, l := range lines {
		price := l.UnitPrice.Truncate(0)
		id := l.TicketTypeID
		if id == "" {
			id = fmt.Sprintf("%s-%d", order.ID, i)
		}
		items = append(items, services.ChargeItem{
			ID:       id,
			Name:     l.Name,
			Price:    price,
			Quantity: l.Quantity,
		})
	}

	diff := order.TotalHarga.Sub(services.SumItems(items))
	if diff.IsZero() {
		return items, nil
	}

	first := items[0]
	qty := decimal.NewFromInt(int64(first.Quantity))
	if first.Quantity == 1 || diff.Mod(qty).IsZero() {
		items[0].Price = first.Price.Add(diff.Div(qty))
		return items, nil
	}

	// One unit moves to its own line carrying the whole difference.
	items[0].Quantity--
	split := services.ChargeItem{
		ID:       first.ID + "-adj",
		Name:     first.Name,
		Price:    first.Price.Add(diff),
		Quantity: 1,
	}
	items = append(items[:1], append([]services.ChargeItem{split}, items[1:]...)...)
	return items, nil
}
