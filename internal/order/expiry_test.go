package order

import (
	"context"
	"testing"
	"time"

	"nesavent/internal/models"
	"nesavent/internal/payment/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSweeper(f *fixture) *ExpirySweeper {
	return NewExpirySweeper(f.svc, f.tickets, 10*time.Minute, time.Hour)
}

func TestSweep_ExpiresOnlyStaleOrders(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	sweeper := newSweeper(f)

	old := f.create(t, "budi", f.sel("reguler", 2))
	f.clock.Advance(30 * time.Minute)
	fresh := f.create(t, "umum", f.sel("reguler", 1))

	report, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Scanned)

	f.clock.Advance(60 * time.Minute)
	report, err = sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Scanned)
	assert.Equal(t, 1, report.Expired)
	assert.Zero(t, report.Failed)

	stored, err := f.db.GetOrder(ctx, nil, old.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderExpired, stored.Status)
	require.NotNil(t, stored.ExpiredAt)
	assert.Equal(t, models.OrderPending, f.status(t, fresh.ID))

	left, pending := f.stock(t, "reguler")
	assert.Equal(t, 9, left)
	assert.Equal(t, 1, pending)
}

func TestSweep_LatePaymentAfterExpiryIsNoop(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	order := f.create(t, "budi", f.sel("reguler", 2))

	f.clock.Advance(90 * time.Minute)
	report, err := newSweeper(f).Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Expired)

	outcome, err := f.svc.HandlePaymentResult(ctx, reference(order.ID), services.PaymentResult{TransactionStatus: "settlement"})
	require.NoError(t, err)
	assert.Equal(t, SettlementNoop, outcome)
	assert.Equal(t, models.OrderExpired, f.status(t, order.ID))
	assert.Zero(t, f.ticketCount(t, order.ID))

	left, pending := f.stock(t, "reguler")
	assert.Equal(t, 10, left)
	assert.Zero(t, pending)
}

func TestSweep_PaidOrdersAreLeftAlone(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	order := f.create(t, "budi", f.sel("reguler", 1))
	_, err := f.svc.ConfirmOrder(ctx, order.ID, "trx")
	require.NoError(t, err)

	f.clock.Advance(3 * time.Hour)
	report, err := newSweeper(f).Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Scanned)
	assert.Equal(t, models.OrderPaid, f.status(t, order.ID))
}

func TestSweep_ExpiresTicketsOfEndedEvents(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	order := f.create(t, "budi", f.sel("reguler", 2))
	_, err := f.svc.ConfirmOrder(ctx, order.ID, "trx")
	require.NoError(t, err)

	f.clock.Set(f.event.EndDate.Add(time.Minute))
	report, err := newSweeper(f).Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.TicketsExpired)
}

func TestOnHoldExpired_RespectsThreshold(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	sweeper := newSweeper(f)
	order := f.create(t, "budi", f.sel("reguler", 1))

	f.clock.Advance(20 * time.Minute)
	sweeper.OnHoldExpired(ctx, order.ID)
	assert.Equal(t, models.OrderPending, f.status(t, order.ID))

	f.clock.Advance(time.Hour)
	sweeper.OnHoldExpired(ctx, order.ID)
	assert.Equal(t, models.OrderExpired, f.status(t, order.ID))

	// The ticker sweep finds nothing left to do.
	report, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Scanned)

	sweeper.OnHoldExpired(ctx, "unknown-order")
}

func TestRun_StopsWithContext(t *testing.T) {
	f := setup(t)
	sweeper := newSweeper(f)
	sweeper.Interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
