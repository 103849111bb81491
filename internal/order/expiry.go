package order

import (
	"context"
	"fmt"
	"time"

	"nesavent/internal/clock"
	"nesavent/internal/logger"
	"nesavent/internal/metrics"
	orderdb "nesavent/internal/order/db"
)

const sweepBatch = 500

// TicketExpirer retires tickets of events that are over.
type TicketExpirer interface {
	ExpireEndedEvents(ctx context.Context) (int, error)
}

type SweepReport struct {
	Scanned        int
	Expired        int
	Failed         int
	TicketsExpired int
}

// ExpirySweeper periodically expires pending orders older than Threshold.
// It shares ReleaseOrder with gateway cancellations, so a late payment and
// the sweep cannot both win.
type ExpirySweeper struct {
	Service   *OrderService
	DB        *orderdb.DB
	Tickets   TicketExpirer
	Clock     clock.Clock
	Interval  time.Duration
	Threshold time.Duration
	Logger    *logger.Logger
}

func NewExpirySweeper(svc *OrderService, tickets TicketExpirer, interval, threshold time.Duration) *ExpirySweeper {
	return &ExpirySweeper{
		Service:   svc,
		DB:        svc.DB,
		Tickets:   tickets,
		Clock:     svc.Clock,
		Interval:  interval,
		Threshold: threshold,
		Logger:    svc.Logger,
	}
}

// Run sweeps once immediately and then on every tick until ctx ends.
func (e *ExpirySweeper) Run(ctx context.Context) {
	e.Logger.LogProcess("SWEEPER", fmt.Sprintf("Started (interval=%s threshold=%s)", e.Interval, e.Threshold))
	ticker := time.NewTicker(e.Interval)
	defer ticker.Stop()

	for {
		if _, err := e.Sweep(ctx); err != nil && ctx.Err() == nil {
			e.Logger.Error("SWEEPER", fmt.Sprintf("Sweep failed: %v", err))
		}
		select {
		case <-ctx.Done():
			e.Logger.LogProcess("SWEEPER", "Stopped")
			return
		case <-ticker.C:
		}
	}
}

// Sweep expires every stale pending order. One order failing does not stop
// the others.
func (e *ExpirySweeper) Sweep(ctx context.Context) (SweepReport, error) {
	start := time.Now()
	defer func() { metrics.ObserveSweep(time.Since(start)) }()

	var report SweepReport
	cutoff := e.Clock.Now().Add(-e.Threshold)
	ids, err := e.DB.ListStalePending(ctx, cutoff, sweepBatch)
	if err != nil {
		return report, fmt.Errorf("failed to list stale orders: %w", err)
	}
	report.Scanned = len(ids)

	for _, id := range ids {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		ok, err := e.Service.ExpireOrder(ctx, id, "sweep")
		if err != nil {
			report.Failed++
			e.Logger.Error("SWEEPER", fmt.Sprintf("Failed to expire order %s: %v", id, err))
			continue
		}
		if ok {
			report.Expired++
		}
	}

	if e.Tickets != nil {
		n, err := e.Tickets.ExpireEndedEvents(ctx)
		if err != nil {
			e.Logger.Error("SWEEPER", fmt.Sprintf("Failed to expire tickets: %v", err))
		}
		report.TicketsExpired = n
	}

	if report.Scanned > 0 || report.TicketsExpired > 0 {
		e.Logger.Info("SWEEPER", fmt.Sprintf("scanned=%d expired=%d failed=%d tickets_expired=%d",
			report.Scanned, report.Expired, report.Failed, report.TicketsExpired))
	}
	return report, nil
}

// OnHoldExpired is the Redis keyspace fast path. The hold TTL can be shorter
// than the threshold, so the order's age is checked again here.
func (e *ExpirySweeper) OnHoldExpired(ctx context.Context, orderID string) {
	order, err := e.DB.GetOrder(ctx, nil, orderID)
	if err != nil {
		e.Logger.Debug("SWEEPER", fmt.Sprintf("Hold expired for unknown order %s: %v", orderID, err))
		return
	}
	if order.CreatedAt.After(e.Clock.Now().Add(-e.Threshold)) {
		return
	}
	if _, err := e.Service.ExpireOrder(ctx, orderID, "redis"); err != nil {
		e.Logger.Error("SWEEPER", fmt.Sprintf("Failed to expire order %s on hold expiry: %v", orderID, err))
	}
}
