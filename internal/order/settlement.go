package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"nesavent/internal/metrics"
	"nesavent/internal/models"
	orderdb "nesavent/internal/order/db"
	"nesavent/internal/payment/services"

	"github.com/uptrace/bun"
)

// ErrStockDrift means a terminal transition found stok_pending lower than
// the order's seats. The transaction is rolled back.
var ErrStockDrift = errors.New("stock counters out of sync with order")

type SettlementOutcome string

const (
	SettlementApplied SettlementOutcome = "applied"
	SettlementNoop    SettlementOutcome = "noop"
)

// HandlePaymentResult applies a gateway notification. Redelivered or late
// notifications find the order no longer pending and are no-ops. A reference
// that resolves to no order is not-found whatever the status.
func (s *OrderService) HandlePaymentResult(ctx context.Context, reference string, result services.PaymentResult) (SettlementOutcome, error) {
	orderID, err := services.ParseReference(reference)
	if err != nil {
		return SettlementNoop, ErrOrderNotFound
	}
	if _, err := s.load(ctx, orderID); err != nil {
		return SettlementNoop, err
	}

	outcome := services.MapStatus(result.TransactionStatus, result.FraudStatus)
	if outcome == services.OutcomeNone {
		s.Logger.Info("PAYMENT", fmt.Sprintf("Ignoring status %q for %s", result.TransactionStatus, reference))
		metrics.Settlement("ignored")
		return SettlementNoop, nil
	}

	var applied bool
	switch outcome {
	case services.OutcomePaid:
		applied, err = s.ConfirmOrder(ctx, orderID, result.TransactionID)
	case services.OutcomeCancelled:
		applied, err = s.ReleaseOrder(ctx, orderID, models.OrderCancelled)
	}
	if err != nil {
		metrics.Settlement("error")
		return SettlementNoop, err
	}

	if !applied {
		s.Logger.Info("PAYMENT", fmt.Sprintf("Order %s already settled, %s notification is a no-op", orderID, outcome))
		metrics.Settlement("noop")
		return SettlementNoop, nil
	}
	metrics.Settlement(outcome.String())
	return SettlementApplied, nil
}

// ConfirmOrder marks a pending order paid, retires its pending stock and
// mints its tickets in one transaction. It returns false when the order was
// not pending anymore.
func (s *OrderService) ConfirmOrder(ctx context.Context, orderID, transactionID string) (bool, error) {
	var order *models.Order
	var tierIDs []string
	applied := false

	err := s.DB.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		var err error
		order, err = s.DB.GetOrder(ctx, tx, orderID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrOrderNotFound
		}
		if err != nil {
			return fmt.Errorf("load order: %w", err)
		}
		if order.Status.IsTerminal() {
			return nil
		}

		ok, err := s.DB.TransitionOrder(ctx, tx, orderID, models.OrderPending, models.OrderPaid, s.Clock.Now(), transactionID)
		if err != nil {
			return fmt.Errorf("mark paid: %w", err)
		}
		if !ok {
			return nil
		}

		for _, line := range order.Lines() {
			if line.TicketTypeID == "" {
				continue
			}
			ok, err := s.DB.ConfirmStock(ctx, tx, line.TicketTypeID, line.Quantity)
			if err != nil {
				return fmt.Errorf("confirm stock: %w", err)
			}
			if !ok {
				return fmt.Errorf("%w: tier %s", ErrStockDrift, line.TicketTypeID)
			}
			tierIDs = append(tierIDs, line.TicketTypeID)
		}

		order.Status = models.OrderPaid
		if s.Tickets != nil {
			if _, err := s.Tickets.IssueForOrder(ctx, tx, order, order.NamaPemesan); err != nil {
				return fmt.Errorf("issue tickets: %w", err)
			}
		}
		applied = true
		return nil
	})
	if err != nil {
		s.Logger.Error("ORDER", fmt.Sprintf("Confirming order %s failed: %v", orderID, err))
		return false, err
	}
	if !applied {
		return false, nil
	}

	s.Logger.LogOrder("PAID", orderID, fmt.Sprintf("transaction=%s seats=%d", transactionID, order.SeatCount()))
	s.afterSettle(ctx, order, s.Topics.OrderPaid, tierIDs)
	return true, nil
}

// ReleaseOrder moves a pending order to target (cancelled or expired) and
// returns its reserved seats to stok_tersisa. It is the single release path
// shared by gateway cancellations and expiry.
func (s *OrderService) ReleaseOrder(ctx context.Context, orderID string, target models.OrderStatus) (bool, error) {
	if target == models.OrderPaid || !models.OrderPending.CanTransitionTo(target) {
		return false, fmt.Errorf("%w: release to %s", orderdb.ErrIllegalTransition, target)
	}

	var order *models.Order
	var tierIDs []string
	applied := false

	err := s.DB.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		var err error
		order, err = s.DB.GetOrder(ctx, tx, orderID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrOrderNotFound
		}
		if err != nil {
			return fmt.Errorf("load order: %w", err)
		}
		if order.Status.IsTerminal() {
			return nil
		}

		ok, err := s.DB.TransitionOrder(ctx, tx, orderID, models.OrderPending, target, s.Clock.Now(), "")
		if err != nil {
			return fmt.Errorf("mark %s: %w", target, err)
		}
		if !ok {
			return nil
		}

		for _, line := range order.Lines() {
			if line.TicketTypeID == "" {
				continue
			}
			ok, err := s.DB.ReleaseStock(ctx, tx, line.TicketTypeID, line.Quantity)
			if err != nil {
				return fmt.Errorf("release stock: %w", err)
			}
			if !ok {
				return fmt.Errorf("%w: tier %s", ErrStockDrift, line.TicketTypeID)
			}
			tierIDs = append(tierIDs, line.TicketTypeID)
		}
		order.Status = target
		applied = true
		return nil
	})
	if err != nil {
		s.Logger.Error("ORDER", fmt.Sprintf("Releasing order %s to %s failed: %v", orderID, target, err))
		return false, err
	}
	if !applied {
		return false, nil
	}

	topic := s.Topics.OrderCancelled
	if target == models.OrderExpired {
		topic = s.Topics.OrderExpired
	}
	s.Logger.LogOrder(string(target), orderID, fmt.Sprintf("released %d seats", order.SeatCount()))
	s.afterSettle(ctx, order, topic, tierIDs)
	return true, nil
}

// ExpireOrder releases an abandoned order. trigger labels the metric.
func (s *OrderService) ExpireOrder(ctx context.Context, orderID, trigger string) (bool, error) {
	applied, err := s.ReleaseOrder(ctx, orderID, models.OrderExpired)
	if applied {
		metrics.OrderExpired(trigger)
	}
	return applied, err
}

// PayOrderDirect settles an order without a gateway: free orders by their
// buyer, or any pending order by an admin.
func (s *OrderService) PayOrderDirect(ctx context.Context, caller models.Caller, orderID string) (*models.Order, error) {
	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !caller.IsAdmin() {
		if order.BuyerID != caller.UserID {
			return nil, ErrOrderNotOwned
		}
		if !order.TotalHarga.IsZero() {
			return nil, ErrPaymentNotFree
		}
	}
	if order.Status != models.OrderPending {
		return nil, ErrOrderNotPending
	}

	ok, err := s.ConfirmOrder(ctx, orderID, "direct-"+caller.UserID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrOrderNotPending
	}
	metrics.Settlement("direct")
	return s.load(ctx, orderID)
}

func (s *OrderService) afterSettle(ctx context.Context, order *models.Order, topic string, tierIDs []string) {
	if s.Locks != nil {
		if err := s.Locks.ClearHold(ctx, order.ID); err != nil {
			s.Logger.Warn("ORDER", fmt.Sprintf("Failed to clear hold for %s: %v", order.ID, err))
		}
	}
	s.publish(ctx, topic, order)
	s.broadcast(ctx, tierIDs)

	if s.Notifier != nil {
		event, err := s.DB.GetEventWithTiers(ctx, nil, order.EventID)
		if err != nil {
			s.Logger.Warn("NOTIFY", fmt.Sprintf("Failed to load event %s for notification: %v", order.EventID, err))
			event = nil
		}
		s.Notifier.OrderSettled(ctx, order, event)
	}
}
