package db

import (
	"context"
	"time"

	"nesavent/internal/models"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

func (d *DB) conn(idb bun.IDB) bun.IDB {
	if idb == nil {
		return d.Bun
	}
	return idb
}

// InsertTicket stores t unless its code is taken. A false result means the
// caller should retry with a fresh code.
func (d *DB) InsertTicket(ctx context.Context, idb bun.IDB, t *models.Ticket) (bool, error) {
	res, err := d.conn(idb).NewInsert().
		Model(t).
		On("CONFLICT (code) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (d *DB) GetTicketByID(ctx context.Context, id string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (d *DB) GetTicketByCode(ctx context.Context, code string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("code = ?", code).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (d *DB) GetTicketsByOwner(ctx context.Context, ownerID string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := d.Bun.NewSelect().
		Model(&tickets).
		Where("owner_id = ?", ownerID).
		Order("issued_at DESC").
		Scan(ctx)
	return tickets, err
}

func (d *DB) GetTicketsByOrder(ctx context.Context, orderID string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := d.Bun.NewSelect().
		Model(&tickets).
		Where("order_id = ?", orderID).
		Order("code ASC").
		Scan(ctx)
	return tickets, err
}

// MarkUsed flips an aktif ticket to terpakai. False means it was not aktif.
func (d *DB) MarkUsed(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("status = ?", models.TicketTerpakai).
		Set("used_at = ?", now).
		Where("id = ?", id).
		Where("status = ?", models.TicketAktif).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// ExpireForEndedEvents marks aktif tickets of events that ended before now.
func (d *DB) ExpireForEndedEvents(ctx context.Context, now time.Time) (int, error) {
	ended := d.Bun.NewSelect().
		Model((*models.Event)(nil)).
		ColumnExpr("e.id").
		Where("e.end_date < ?", now)

	res, err := d.Bun.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("status = ?", models.TicketExpired).
		Where("status = ?", models.TicketAktif).
		Where("event_id IN (?)", ended).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// EventOrganizer returns the organizer of an event.
func (d *DB) EventOrganizer(ctx context.Context, eventID string) (string, error) {
	var organizerID string
	err := d.Bun.NewSelect().
		Model((*models.Event)(nil)).
		Column("organizer_id").
		Where("id = ?", eventID).
		Limit(1).
		Scan(ctx, &organizerID)
	return organizerID, err
}
