package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nesavent/internal/models"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

var (
	// ErrInvalidQuantity rejects a stock move of zero or fewer seats.
	ErrInvalidQuantity = errors.New("stock quantity must be positive")
	// ErrIllegalTransition rejects a status change the order lifecycle does not allow.
	ErrIllegalTransition = errors.New("illegal order status transition")
)

// DB is the order repository. Methods that take a bun.IDB run on the given
// transaction, or on the pool when it is nil; everything that touches stock
// runs inside the caller's transaction.
type DB struct {
	Bun *bun.DB
}

func (d *DB) conn(idb bun.IDB) bun.IDB {
	if idb == nil {
		return d.Bun
	}
	return idb
}

func (d *DB) RunInTx(ctx context.Context, fn func(ctx context.Context, tx bun.Tx) error) error {
	return d.Bun.RunInTx(ctx, nil, fn)
}

// ---------------- EVENTS & STOCK ----------------

func (d *DB) GetEventWithTiers(ctx context.Context, idb bun.IDB, eventID string) (*models.Event, error) {
	idb = d.conn(idb)
	var event models.Event
	if err := idb.NewSelect().Model(&event).Where("e.id = ?", eventID).Limit(1).Scan(ctx); err != nil {
		return nil, err
	}
	var tiers []*models.TicketType
	err := idb.NewSelect().
		Model(&tiers).
		Where("tt.event_id = ?", eventID).
		Order("tt.urutan ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	event.TicketTypes = tiers
	return &event, nil
}

func (d *DB) GetTiers(ctx context.Context, ids []string) ([]*models.TicketType, error) {
	var tiers []*models.TicketType
	if len(ids) == 0 {
		return tiers, nil
	}
	err := d.Bun.NewSelect().Model(&tiers).Where("tt.id IN (?)", bun.In(ids)).Scan(ctx)
	return tiers, err
}

// ReserveStock moves qty from stok_tersisa to stok_pending if enough is left.
// The check and the decrement are one statement.
func (d *DB) ReserveStock(ctx context.Context, idb bun.IDB, tierID string, qty int) (bool, error) {
	if qty <= 0 {
		return false, fmt.Errorf("%w: %d", ErrInvalidQuantity, qty)
	}
	res, err := d.conn(idb).NewUpdate().
		Model((*models.TicketType)(nil)).
		Set("stok_tersisa = stok_tersisa - ?", qty).
		Set("stok_pending = stok_pending + ?", qty).
		Where("id = ?", tierID).
		Where("stok_tersisa >= ?", qty).
		Exec(ctx)
	return affectedOne(res, err)
}

// ConfirmStock retires qty from stok_pending once the order is paid.
func (d *DB) ConfirmStock(ctx context.Context, idb bun.IDB, tierID string, qty int) (bool, error) {
	if qty <= 0 {
		return false, fmt.Errorf("%w: %d", ErrInvalidQuantity, qty)
	}
	res, err := d.conn(idb).NewUpdate().
		Model((*models.TicketType)(nil)).
		Set("stok_pending = stok_pending - ?", qty).
		Where("id = ?", tierID).
		Where("stok_pending >= ?", qty).
		Exec(ctx)
	return affectedOne(res, err)
}

// ReleaseStock returns qty from stok_pending to stok_tersisa.
func (d *DB) ReleaseStock(ctx context.Context, idb bun.IDB, tierID string, qty int) (bool, error) {
	if qty <= 0 {
		return false, fmt.Errorf("%w: %d", ErrInvalidQuantity, qty)
	}
	res, err := d.conn(idb).NewUpdate().
		Model((*models.TicketType)(nil)).
		Set("stok_tersisa = stok_tersisa + ?", qty).
		Set("stok_pending = stok_pending - ?", qty).
		Where("id = ?", tierID).
		Where("stok_pending >= ?", qty).
		Exec(ctx)
	return affectedOne(res, err)
}

// ---------------- QUOTAS ----------------

// LockBuyerQuota serialises a buyer's concurrent orders for one event until
// the transaction ends, so quota sums read after it see every committed
// order. On Postgres this is a transaction-scoped advisory lock; SQLite
// already runs one writer at a time.
func (d *DB) LockBuyerQuota(ctx context.Context, tx bun.Tx, buyerID, eventID string) error {
	if tx.Dialect().Name() != dialect.PG {
		return nil
	}
	_, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext(?))", buyerID+"/"+eventID)
	return err
}

// SumBuyerTierQuantity counts the buyer's pending and paid seats of one tier,
// across itemised and legacy single-tier orders.
func (d *DB) SumBuyerTierQuantity(ctx context.Context, idb bun.IDB, buyerID, tierID string) (int, error) {
	idb = d.conn(idb)

	var itemised int
	err := idb.NewSelect().
		Model((*models.OrderItem)(nil)).
		ColumnExpr("COALESCE(SUM(oi.quantity), 0)").
		Join("JOIN orders AS o ON o.id = oi.order_id").
		Where("o.buyer_id = ?", buyerID).
		Where("o.status IN (?)", bun.In(models.ActiveOrderStatuses)).
		Where("oi.ticket_type_id = ?", tierID).
		Scan(ctx, &itemised)
	if err != nil {
		return 0, err
	}

	var legacy int
	err = idb.NewSelect().
		Model((*models.Order)(nil)).
		ColumnExpr("COALESCE(SUM(o.jumlah_tiket), 0)").
		Where("o.buyer_id = ?", buyerID).
		Where("o.status IN (?)", bun.In(models.ActiveOrderStatuses)).
		Where("o.ticket_type_id = ?", tierID).
		Where("NOT EXISTS (SELECT 1 FROM order_items AS x WHERE x.order_id = o.id)").
		Scan(ctx, &legacy)
	if err != nil {
		return 0, err
	}
	return itemised + legacy, nil
}

// SumBuyerEventQuantity counts the buyer's pending and paid seats across every
// tier of an event.
func (d *DB) SumBuyerEventQuantity(ctx context.Context, idb bun.IDB, buyerID, eventID string) (int, error) {
	var total int
	err := d.conn(idb).NewSelect().
		Model((*models.Order)(nil)).
		ColumnExpr("COALESCE(SUM(CASE WHEN o.total_tiket > 0 THEN o.total_tiket ELSE COALESCE(o.jumlah_tiket, 0) END), 0)").
		Where("o.buyer_id = ?", buyerID).
		Where("o.event_id = ?", eventID).
		Where("o.status IN (?)", bun.In(models.ActiveOrderStatuses)).
		Scan(ctx, &total)
	return total, err
}

// ---------------- ORDERS ----------------

func (d *DB) InsertOrder(ctx context.Context, idb bun.IDB, order *models.Order) error {
	idb = d.conn(idb)
	if _, err := idb.NewInsert().Model(order).Exec(ctx); err != nil {
		return err
	}
	if len(order.Items) == 0 {
		return nil
	}
	_, err := idb.NewInsert().Model(&order.Items).Exec(ctx)
	return err
}

// TransitionOrder moves an order from one status to another and reports
// whether it was still in from. Every status change goes through here.
func (d *DB) TransitionOrder(ctx context.Context, idb bun.IDB, id string, from, to models.OrderStatus, now time.Time, transactionID string) (bool, error) {
	if !from.CanTransitionTo(to) {
		return false, fmt.Errorf("%w: %s to %s", ErrIllegalTransition, from, to)
	}
	q := d.conn(idb).NewUpdate().
		Model((*models.Order)(nil)).
		Set("status = ?", to).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Where("status = ?", from)

	switch to {
	case models.OrderPaid:
		q = q.Set("paid_at = ?", now)
	case models.OrderCancelled:
		q = q.Set("cancelled_at = ?", now)
	case models.OrderExpired:
		q = q.Set("expired_at = ?", now)
	}
	if transactionID != "" {
		q = q.Set("transaction_id = ?", transactionID)
	}

	res, err := q.Exec(ctx)
	return affectedOne(res, err)
}

func (d *DB) GetOrder(ctx context.Context, idb bun.IDB, id string) (*models.Order, error) {
	idb = d.conn(idb)
	var order models.Order
	if err := idb.NewSelect().Model(&order).Where("o.id = ?", id).Limit(1).Scan(ctx); err != nil {
		return nil, err
	}
	orders := []*models.Order{&order}
	if err := loadItems(ctx, idb, orders); err != nil {
		return nil, err
	}
	return &order, nil
}

func (d *DB) ListOrdersByBuyer(ctx context.Context, buyerID string) ([]*models.Order, error) {
	var orders []*models.Order
	err := d.Bun.NewSelect().
		Model(&orders).
		Where("o.buyer_id = ?", buyerID).
		Order("o.created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return orders, loadItems(ctx, d.Bun, orders)
}

// ListOrders pages through orders. A non-empty organizerID restricts the
// result to that organizer's events.
func (d *DB) ListOrders(ctx context.Context, f models.OrderFilter, organizerID string, limit, offset int) ([]*models.Order, int, error) {
	var orders []*models.Order
	q := d.Bun.NewSelect().Model(&orders)
	if organizerID != "" {
		q = q.Where("o.event_id IN (?)", d.Bun.NewSelect().
			Model((*models.Event)(nil)).
			ColumnExpr("e.id").
			Where("e.organizer_id = ?", organizerID))
	}
	if f.EventID != "" {
		q = q.Where("o.event_id = ?", f.EventID)
	}
	if f.Status != "" {
		q = q.Where("o.status = ?", f.Status)
	}

	total, err := q.Order("o.created_at DESC").Limit(limit).Offset(offset).ScanAndCount(ctx)
	if err != nil {
		return nil, 0, err
	}
	return orders, total, loadItems(ctx, d.Bun, orders)
}

func loadItems(ctx context.Context, idb bun.IDB, orders []*models.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, len(orders))
	byID := make(map[string]*models.Order, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		byID[o.ID] = o
		o.Items = []*models.OrderItem{}
	}

	var items []*models.OrderItem
	err := idb.NewSelect().
		Model(&items).
		Where("oi.order_id IN (?)", bun.In(ids)).
		Order("oi.order_id", "oi.id").
		Scan(ctx)
	if err != nil {
		return err
	}
	for _, it := range items {
		byID[it.OrderID].Items = append(byID[it.OrderID].Items, it)
	}
	return nil
}

// UpdateContact edits the buyer contact fields of a pending order.
func (d *DB) UpdateContact(ctx context.Context, id string, c models.ContactUpdate, now time.Time) (bool, error) {
	q := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Where("status = ?", models.OrderPending)
	if c.NamaPemesan != nil {
		q = q.Set("nama_pemesan = ?", *c.NamaPemesan)
	}
	if c.EmailPemesan != nil {
		q = q.Set("email_pemesan = ?", *c.EmailPemesan)
	}
	if c.TeleponPemesan != nil {
		q = q.Set("telepon_pemesan = ?", *c.TeleponPemesan)
	}
	res, err := q.Exec(ctx)
	return affectedOne(res, err)
}

// SetPaymentReference records the gateway reference of a still-pending order.
func (d *DB) SetPaymentReference(ctx context.Context, id, reference, token string, now time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("payment_reference = ?", reference).
		Set("payment_token = ?", token).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Where("status = ?", models.OrderPending).
		Exec(ctx)
	return affectedOne(res, err)
}

// ListStalePending returns ids of pending orders created before cutoff,
// oldest first.
func (d *DB) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	var ids []string
	err := d.Bun.NewSelect().
		Model((*models.Order)(nil)).
		ColumnExpr("o.id").
		Where("o.status = ?", models.OrderPending).
		Where("o.created_at < ?", cutoff).
		Order("o.created_at ASC").
		Limit(limit).
		Scan(ctx, &ids)
	return ids, err
}
