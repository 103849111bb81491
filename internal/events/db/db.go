package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"nesavent/internal/models"

	"github.com/uptrace/bun"
)

var (
	// ErrTierHasSales is returned when a stock edit or removal targets a tier
	// whose stock has already moved.
	ErrTierHasSales = errors.New("ticket type already has sales")
	// ErrEventHasOrders blocks deleting an event with pending or paid orders.
	ErrEventHasOrders = errors.New("event has active orders")
)

type DB struct {
	Bun *bun.DB
}

// ---------------- EVENTS ----------------

func (d *DB) SlugExists(ctx context.Context, slug string) (bool, error) {
	return d.Bun.NewSelect().
		Model((*models.Event)(nil)).
		Where("e.slug = ?", slug).
		Exists(ctx)
}

// CreateEvent inserts the event and its tiers in one transaction.
func (d *DB) CreateEvent(ctx context.Context, event *models.Event) error {
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(event).Exec(ctx); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
		if len(event.TicketTypes) == 0 {
			return nil
		}
		if _, err := tx.NewInsert().Model(&event.TicketTypes).Exec(ctx); err != nil {
			return fmt.Errorf("insert ticket types: %w", err)
		}
		return nil
	})
}

func (d *DB) GetEventBySlug(ctx context.Context, slug string) (*models.Event, error) {
	return d.getEvent(ctx, "e.slug = ?", slug)
}

func (d *DB) GetEventByID(ctx context.Context, id string) (*models.Event, error) {
	return d.getEvent(ctx, "e.id = ?", id)
}

func (d *DB) getEvent(ctx context.Context, where string, arg interface{}) (*models.Event, error) {
	var event models.Event
	err := d.Bun.NewSelect().
		Model(&event).
		Where(where, arg).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	var tiers []*models.TicketType
	err = d.Bun.NewSelect().
		Model(&tiers).
		Where("tt.event_id = ?", event.ID).
		Order("tt.urutan ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	event.TicketTypes = tiers
	return &event, nil
}

// UpdateEvent writes event fields and reconciles tiers. Existing tiers get
// their descriptive fields updated unconditionally; a stock change only goes
// through while the tier has no sales, and stok_tersisa follows stok. Every
// tier statement is scoped to the event so foreign tier ids never match.
func (d *DB) UpdateEvent(ctx context.Context, event *models.Event, upserts []*models.TicketType, stockChanged map[string]bool, removed []string) error {
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewUpdate().
			Model(event).
			Column("name", "description", "category", "location", "start_date", "end_date", "updated_at").
			WherePK().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("update event: %w", err)
		}

		for _, tier := range upserts {
			exists, err := tx.NewSelect().
				Model((*models.TicketType)(nil)).
				Where("tt.id = ?", tier.ID).
				Where("tt.event_id = ?", event.ID).
				Exists(ctx)
			if err != nil {
				return err
			}
			if !exists {
				if _, err := tx.NewInsert().Model(tier).Exec(ctx); err != nil {
					return fmt.Errorf("insert ticket type: %w", err)
				}
				continue
			}

			_, err = tx.NewUpdate().
				Model(tier).
				Column("urutan", "name", "description", "harga", "max_pembelian_per_orang",
					"mulai_jual", "akhir_jual", "allowed_roles", "khusus_mahasiswa").
				WherePK().
				Where("event_id = ?", event.ID).
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("update ticket type %s: %w", tier.ID, err)
			}

			if stockChanged[tier.ID] {
				res, err := tx.NewUpdate().
					Model((*models.TicketType)(nil)).
					Set("stok = ?", tier.Stok).
					Set("stok_tersisa = ?", tier.Stok).
					Where("id = ?", tier.ID).
					Where("event_id = ?", event.ID).
					Where("stok_tersisa = stok").
					Where("stok_pending = 0").
					Exec(ctx)
				if err := expectOneRow(res, err, tier.ID); err != nil {
					return err
				}
			}
		}

		for _, id := range removed {
			res, err := tx.NewDelete().
				Model((*models.TicketType)(nil)).
				Where("id = ?", id).
				Where("event_id = ?", event.ID).
				Where("stok_tersisa = stok").
				Where("stok_pending = 0").
				Exec(ctx)
			if err := expectOneRow(res, err, id); err != nil {
				return err
			}
		}
		return nil
	})
}

func expectOneRow(res sql.Result, err error, tierID string) error {
	if err != nil {
		return fmt.Errorf("ticket type %s: %w", tierID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("ticket type %s: %w", tierID, ErrTierHasSales)
	}
	return nil
}

// DeleteEvent removes the event and its tiers unless it still has pending
// or paid orders. The check and the delete share a transaction.
func (d *DB) DeleteEvent(ctx context.Context, id string) error {
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		active, err := tx.NewSelect().
			Model((*models.Order)(nil)).
			Where("o.event_id = ?", id).
			Where("o.status IN (?)", bun.In(models.ActiveOrderStatuses)).
			Exists(ctx)
		if err != nil {
			return err
		}
		if active {
			return ErrEventHasOrders
		}

		if _, err := tx.NewDelete().Model((*models.TicketType)(nil)).Where("event_id = ?", id).Exec(ctx); err != nil {
			return fmt.Errorf("delete ticket types: %w", err)
		}
		if _, err := tx.NewDelete().Model((*models.Event)(nil)).Where("id = ?", id).Exec(ctx); err != nil {
			return fmt.Errorf("delete event: %w", err)
		}
		return nil
	})
}

// UpdateStatus moves an event from one status to another, returning false
// when the event was no longer in from.
func (d *DB) UpdateStatus(ctx context.Context, id string, from, to models.EventStatus, verification string, now time.Time) (bool, error) {
	q := d.Bun.NewUpdate().
		Model((*models.Event)(nil)).
		Set("status = ?", to).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Where("status = ?", from)
	if verification != "" {
		q = q.Set("verification_status = ?", verification)
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (d *DB) IncrementViewCount(ctx context.Context, id string) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Event)(nil)).
		Set("view_count = view_count + 1").
		Where("id = ?", id).
		Exec(ctx)
	return err
}

// ListEvents returns one page of aktif events matching the filter, with tiers.
func (d *DB) ListEvents(ctx context.Context, f models.EventFilter, limit, offset int) ([]*models.Event, int, error) {
	var events []*models.Event
	q := d.Bun.NewSelect().
		Model(&events).
		Where("e.status = ?", models.EventAktif)

	if f.Category != "" {
		q = q.Where("e.category = ?", f.Category)
	}
	if f.Query != "" {
		like := "%" + strings.ToLower(f.Query) + "%"
		q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("LOWER(e.name) LIKE ?", like).WhereOr("LOWER(e.description) LIKE ?", like)
		})
	}
	if f.Location != "" {
		q = q.Where("LOWER(e.location) LIKE ?", "%"+strings.ToLower(f.Location)+"%")
	}
	if f.DateFrom != nil {
		q = q.Where("e.start_date >= ?", *f.DateFrom)
	}
	if f.DateTo != nil {
		q = q.Where("e.start_date <= ?", *f.DateTo)
	}
	if f.PriceMin != nil || f.PriceMax != nil {
		sub := d.Bun.NewSelect().
			TableExpr("ticket_types AS p").
			ColumnExpr("1").
			Where("p.event_id = e.id")
		if f.PriceMin != nil {
			sub = sub.Where("p.harga >= ?", *f.PriceMin)
		}
		if f.PriceMax != nil {
			sub = sub.Where("p.harga <= ?", *f.PriceMax)
		}
		q = q.Where("EXISTS (?)", sub)
	}
	if f.StudentOnly {
		q = q.Where("EXISTS (?)", d.Bun.NewSelect().
			TableExpr("ticket_types AS s").
			ColumnExpr("1").
			Where("s.event_id = e.id").
			Where("s.khusus_mahasiswa = ?", true).
			Where("s.stok_tersisa > 0"))
	}
	if f.Free {
		q = q.Where("EXISTS (?)", d.Bun.NewSelect().
			TableExpr("ticket_types AS fr").
			ColumnExpr("1").
			Where("fr.event_id = e.id").
			Where("fr.harga = 0"))
	}

	total, err := q.Order("e.start_date ASC", "e.id ASC").
		Limit(limit).
		Offset(offset).
		ScanAndCount(ctx)
	if err != nil {
		return nil, 0, err
	}
	if len(events) == 0 {
		return events, total, nil
	}

	ids := make([]string, len(events))
	byID := make(map[string]*models.Event, len(events))
	for i, e := range events {
		ids[i] = e.ID
		byID[e.ID] = e
		e.TicketTypes = []*models.TicketType{}
	}
	var tiers []*models.TicketType
	err = d.Bun.NewSelect().
		Model(&tiers).
		Where("tt.event_id IN (?)", bun.In(ids)).
		Order("tt.event_id", "tt.urutan ASC").
		Scan(ctx)
	if err != nil {
		return nil, 0, err
	}
	for _, tier := range tiers {
		byID[tier.EventID].TicketTypes = append(byID[tier.EventID].TicketTypes, tier)
	}
	return events, total, nil
}
