package main

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"nesavent/internal/config"
	"nesavent/internal/database/migrations"
	"nesavent/internal/logger"
	"nesavent/internal/models"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

// runMigrateCommand handles `nesavent migrate up|down|to <n>|version|seed`.
func runMigrateCommand(cfg *config.Config, log *logger.Logger, args []string) int {
	if len(args) == 0 {
		log.Error("MIGRATE", "usage: nesavent migrate up|down|to <version>|version|seed")
		return 2
	}

	sqldb, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		log.Error("MIGRATE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
		return 1
	}
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	runner := migrations.NewRunner(db, log)
	defer runner.Close()

	switch args[0] {
	case "up":
		err = runner.MigrateUp()
	case "down":
		err = runner.MigrateDown()
	case "to":
		if len(args) < 2 {
			log.Error("MIGRATE", "missing target version")
			return 2
		}
		var v uint64
		v, err = strconv.ParseUint(args[1], 10, 32)
		if err == nil {
			err = runner.MigrateTo(uint(v))
		}
	case "version":
		var (
			v     uint
			dirty bool
		)
		v, dirty, err = runner.Version()
		if err == nil {
			log.Info("MIGRATE", fmt.Sprintf("version=%d dirty=%t", v, dirty))
		}
	case "seed":
		if err = runner.MigrateUp(); err == nil {
			err = seedData(context.Background(), db)
		}
	default:
		log.Error("MIGRATE", fmt.Sprintf("unknown migrate command %q", args[0]))
		return 2
	}

	if err != nil {
		log.Error("MIGRATE", err.Error())
		return 1
	}
	log.Info("MIGRATE", fmt.Sprintf("%s done", args[0]))
	return 0
}

// seedData inserts a demo organizer, buyers and one active event for local
// development. Existing rows are left untouched.
func seedData(ctx context.Context, db *bun.DB) error {
	now := time.Now().UTC()

	users := []models.User{
		{ID: "seed-admin", Name: "Admin Kampus", Email: "admin@nesavent.test", Role: models.RoleAdmin, StudentVerificationStatus: models.VerificationNone, CreatedAt: now},
		{ID: "seed-mitra", Name: "Himpunan Mahasiswa", Email: "mitra@nesavent.test", Role: models.RoleMitra, StudentVerificationStatus: models.VerificationNone, CreatedAt: now},
		{ID: "seed-mahasiswa", Name: "Budi Santoso", Email: "budi@nesavent.test", Role: models.RoleMahasiswa, StudentVerificationStatus: models.VerificationApproved, CreatedAt: now},
		{ID: "seed-user", Name: "Sari Umum", Email: "sari@nesavent.test", Role: models.RoleUser, StudentVerificationStatus: models.VerificationNone, CreatedAt: now},
	}
	if _, err := db.NewInsert().Model(&users).On("CONFLICT (id) DO NOTHING").Exec(ctx); err != nil {
		return fmt.Errorf("seed users: %w", err)
	}

	event := &models.Event{
		ID:                 "seed-event",
		Slug:               "malam-keakraban",
		Name:               "Malam Keakraban",
		Description:        "Acara tahunan penyambutan mahasiswa baru.",
		Category:           "musik",
		Location:           "Aula Kampus",
		StartDate:          now.AddDate(0, 1, 0),
		EndDate:            now.AddDate(0, 1, 0).Add(4 * time.Hour),
		OrganizerID:        "seed-mitra",
		Status:             models.EventAktif,
		VerificationStatus: "approved",
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if _, err := db.NewInsert().Model(event).On("CONFLICT (id) DO NOTHING").Exec(ctx); err != nil {
		return fmt.Errorf("seed event: %w", err)
	}

	maxFour, maxTwo := 4, 2
	tiers := []models.TicketType{
		{ID: "seed-tier-reguler", EventID: event.ID, Urutan: 0, Name: "Reguler", Harga: decimal.NewFromInt(50000), Stok: 200, StokTersisa: 200, MaxPembelianPerOrang: &maxFour},
		{ID: "seed-tier-mahasiswa", EventID: event.ID, Urutan: 1, Name: "Mahasiswa", Harga: decimal.NewFromInt(25000), Stok: 100, StokTersisa: 100, MaxPembelianPerOrang: &maxTwo, KhususMahasiswa: true},
	}
	if _, err := db.NewInsert().Model(&tiers).On("CONFLICT (id) DO NOTHING").Exec(ctx); err != nil {
		return fmt.Errorf("seed ticket types: %w", err)
	}
	return nil
}
