//go:build integration

package order

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"nesavent/internal/clock"
	"nesavent/internal/database/migrations"
	"nesavent/internal/logger"
	"nesavent/internal/models"
	orderdb "nesavent/internal/order/db"
	orderredis "nesavent/internal/order/redis"
	"nesavent/internal/payment/services"
	"nesavent/internal/tickets"
	ticketdb "nesavent/internal/tickets/db"
	"nesavent/internal/users"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

func startContainer(t *testing.T, req testcontainers.ContainerRequest, port string) string {
	t.Helper()
	ctx := context.Background()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start %s container: %v", req.Image, err)
	}
	t.Cleanup(func() { _ = c.Terminate(ctx) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	mapped, err := c.MappedPort(ctx, port)
	require.NoError(t, err)
	return fmt.Sprintf("%s:%s", host, mapped.Port())
}

func setupPostgres(t *testing.T) *fixture {
	t.Helper()
	log := logger.NewTestLogger(nil)

	pgAddr := startContainer(t, testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "nesavent",
			"POSTGRES_PASSWORD": "nesavent",
			"POSTGRES_DB":       "nesavent",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}, "5432")

	redisAddr := startContainer(t, testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}, "6379")

	sqldb, err := sql.Open("postgres", fmt.Sprintf("postgres://nesavent:nesavent@%s/nesavent?sslmode=disable", pgAddr))
	require.NoError(t, err)
	bunDB := bun.NewDB(sqldb, pgdialect.New())
	t.Cleanup(func() { bunDB.Close() })

	require.NoError(t, migrations.NewRunner(bunDB, log).MigrateUp())

	client := redis.NewClient(&redis.Options{Addr: redisAddr})
	t.Cleanup(func() { client.Close() })

	clk := clock.NewFake(t0)
	ticketSvc, err := tickets.NewTicketService(&ticketdb.DB{Bun: bunDB}, "test-secret", clk, log)
	require.NoError(t, err)

	db := &orderdb.DB{Bun: bunDB}
	svc := NewOrderService(Deps{
		DB:       db,
		Locks:    orderredis.NewRedis(client, 5*time.Second, log),
		Tickets:  ticketSvc,
		Buyers:   &users.DB{Bun: bunDB},
		Clock:    clk,
		Logger:   log,
		Currency: "IDR",
	})

	f := &fixture{svc: svc, db: db, bun: bunDB, clock: clk, tickets: ticketSvc, tiers: map[string]*models.TicketType{}}
	f.seedUsers(t)
	f.seedEvent(t)
	return f
}

func TestIntegration_LastUnitUnderContention(t *testing.T) {
	f := setupPostgres(t)
	buyers := []models.Buyer{f.buyer(t, "budi"), f.buyer(t, "umum"), f.buyer(t, "mitra")}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func(buyer models.Buyer) {
			defer wg.Done()
			_, err := f.svc.CreateOrder(context.Background(), buyer, f.request(f.sel("terakhir", 1)))
			if err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}(buyers[i%len(buyers)])
	}
	wg.Wait()

	assert.Equal(t, 1, success)
	left, pending := f.stock(t, "terakhir")
	assert.Zero(t, left)
	assert.Equal(t, 1, pending)
}

func TestIntegration_StudentQuotaWithoutRedisLock(t *testing.T) {
	f := setupPostgres(t)
	// No purchase lock: the per-buyer lock inside the transaction has to hold the cap alone.
	f.svc.Locks = nil
	budi := f.buyer(t, "budi")

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.CreateOrder(context.Background(), budi, f.request(f.sel("mahasiswa", 2)))
			if err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, success)
	held, err := f.db.SumBuyerEventQuantity(context.Background(), nil, budi.ID, f.event.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, held)
	left, pending := f.stock(t, "mahasiswa")
	assert.Equal(t, 3, left)
	assert.Equal(t, 2, pending)
}

func TestIntegration_SettlementLifecycle(t *testing.T) {
	f := setupPostgres(t)
	ctx := context.Background()

	paid := f.create(t, "budi", f.sel("reguler", 2), f.sel("mahasiswa", 1))
	cancelled := f.create(t, "umum", f.sel("reguler", 3))

	settle := services.PaymentResult{TransactionStatus: "settlement", TransactionID: "trx-pg"}
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.HandlePaymentResult(ctx, reference(paid.ID), settle)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	_, err := f.svc.HandlePaymentResult(ctx, reference(cancelled.ID), services.PaymentResult{TransactionStatus: "deny"})
	require.NoError(t, err)

	assert.Equal(t, models.OrderPaid, f.status(t, paid.ID))
	assert.Equal(t, models.OrderCancelled, f.status(t, cancelled.ID))
	assert.Equal(t, 3, f.ticketCount(t, paid.ID))

	left, pending := f.stock(t, "reguler")
	assert.Equal(t, 8, left)
	assert.Zero(t, pending)

	counts, err := f.tickets.EventSales(ctx, f.event.ID)
	require.NoError(t, err)
	require.Len(t, counts, 1)
	assert.Equal(t, 3, counts[0].Count)
}
