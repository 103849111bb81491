package db

import (
	"context"
	"time"

	"nesavent/internal/models"

	"github.com/uptrace/bun"
)

// Day truncates t to its UTC calendar day, the granularity of ticket_counts.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// IncrementTicketCount adds n to the event's row for the day of ts.
func (d *DB) IncrementTicketCount(ctx context.Context, idb bun.IDB, eventID string, ts time.Time, n int) error {
	row := &models.TicketCount{EventID: eventID, Date: Day(ts), Count: n}
	_, err := d.conn(idb).NewInsert().
		Model(row).
		ModelTableExpr("ticket_counts").
		On("CONFLICT (event_id, date) DO UPDATE").
		Set("count = ticket_counts.count + EXCLUDED.count").
		Exec(ctx)
	return err
}

// GetTicketCountsForEvent returns the daily counts of an event, oldest first.
func (d *DB) GetTicketCountsForEvent(ctx context.Context, eventID string) ([]models.TicketCount, error) {
	var counts []models.TicketCount
	err := d.Bun.NewSelect().
		Model(&counts).
		Where("event_id = ?", eventID).
		Order("date ASC").
		Scan(ctx)
	return counts, err
}

// GetTotalTicketsCount returns the number of tickets ever issued.
func (d *DB) GetTotalTicketsCount(ctx context.Context) (int, error) {
	return d.Bun.NewSelect().
		Model((*models.Ticket)(nil)).
		Count(ctx)
}
