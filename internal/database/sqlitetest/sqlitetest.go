// Package sqlitetest opens an in-memory SQLite database with the full
// schema, for repository and service tests.
package sqlitetest

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"nesavent/internal/models"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

var tables = []interface{}{
	(*models.User)(nil),
	(*models.Event)(nil),
	(*models.TicketType)(nil),
	(*models.Order)(nil),
	(*models.OrderItem)(nil),
	(*models.Ticket)(nil),
	(*models.TicketCount)(nil),
	(*models.Notification)(nil),
}

// checks mirrors the CHECK constraints of the Postgres migrations, which the
// model-driven CREATE TABLE cannot express.
var checks = []string{
	`CREATE TRIGGER IF NOT EXISTS ticket_types_check_insert BEFORE INSERT ON ticket_types
	WHEN NEW.harga < 0 OR NEW.stok < 0 OR NEW.stok_tersisa < 0 OR NEW.stok_pending < 0 OR NEW.stok_tersisa > NEW.stok
	BEGIN SELECT RAISE(ABORT, 'CHECK constraint failed: ticket_types'); END`,
	`CREATE TRIGGER IF NOT EXISTS ticket_types_check_update BEFORE UPDATE ON ticket_types
	WHEN NEW.harga < 0 OR NEW.stok < 0 OR NEW.stok_tersisa < 0 OR NEW.stok_pending < 0 OR NEW.stok_tersisa > NEW.stok
	BEGIN SELECT RAISE(ABORT, 'CHECK constraint failed: ticket_types'); END`,
	`CREATE TRIGGER IF NOT EXISTS order_items_check_insert BEFORE INSERT ON order_items
	WHEN NEW.quantity <= 0
	BEGIN SELECT RAISE(ABORT, 'CHECK constraint failed: order_items'); END`,
}

// Open returns a fresh database private to the test. A single connection
// keeps concurrent transactions serialised the way SQLite requires.
func Open(t testing.TB) *bun.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		t.Fatalf("Failed to open sqlite: %v", err)
	}
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	ctx := context.Background()
	for _, model := range tables {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			t.Fatalf("Failed to create table for %T: %v", model, err)
		}
	}
	for _, ddl := range checks {
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			t.Fatalf("Failed to create check trigger: %v", err)
		}
	}

	t.Cleanup(func() { db.Close() })
	return db
}
