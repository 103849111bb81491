package tickets_test

import (
	"context"
	"testing"
	"time"

	"nesavent/internal/apperr"
	"nesavent/internal/clock"
	"nesavent/internal/database/sqlitetest"
	"nesavent/internal/logger"
	"nesavent/internal/models"
	tickets "nesavent/internal/tickets"
	ticketdb "nesavent/internal/tickets/db"
	qr "nesavent/internal/tickets/qr_genrator"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

const secret = "test-qr-secret"

var (
	organizer  = models.Caller{UserID: "mitra-1", Role: models.RoleMitra}
	otherMitra = models.Caller{UserID: "mitra-2", Role: models.RoleMitra}
	owner      = models.Caller{UserID: "buyer-1", Role: models.RoleMahasiswa}
	stranger   = models.Caller{UserID: "buyer-2", Role: models.RoleUser}
	admin      = models.Caller{UserID: "admin-1", Role: models.RoleAdmin}
)

type fixture struct {
	svc   *tickets.TicketService
	db    *ticketdb.DB
	bun   *bun.DB
	clock *clock.Fake
	event *models.Event
}

func setup(t *testing.T) *fixture {
	t.Helper()
	bunDB := sqlitetest.Open(t)
	clk := clock.NewFake(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	db := &ticketdb.DB{Bun: bunDB}

	svc, err := tickets.NewTicketService(db, secret, clk, logger.NewTestLogger(nil))
	require.NoError(t, err)

	event := &models.Event{
		ID:                 uuid.NewString(),
		Slug:               "konser",
		Name:               "Konser",
		StartDate:          clk.Now().Add(24 * time.Hour),
		EndDate:            clk.Now().Add(27 * time.Hour),
		OrganizerID:        organizer.UserID,
		Status:             models.EventAktif,
		VerificationStatus: "approved",
		CreatedAt:          clk.Now(),
		UpdatedAt:          clk.Now(),
	}
	_, err = bunDB.NewInsert().Model(event).Exec(context.Background())
	require.NoError(t, err)

	return &fixture{svc: svc, db: db, bun: bunDB, clock: clk, event: event}
}

func (f *fixture) paidOrder(items ...*models.OrderItem) *models.Order {
	o := &models.Order{
		ID:         uuid.NewString(),
		BuyerID:    owner.UserID,
		EventID:    f.event.ID,
		Status:     models.OrderPaid,
		TotalHarga: decimal.NewFromInt(100000),
		Items:      items,
	}
	for _, it := range items {
		o.TotalTiket += it.Quantity
	}
	return o
}

func (f *fixture) issue(t *testing.T, order *models.Order) []models.Ticket {
	t.Helper()
	var issued []models.Ticket
	err := f.bun.RunInTx(context.Background(), nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		issued, err = f.svc.IssueForOrder(ctx, tx, order, "Budi")
		return err
	})
	require.NoError(t, err)
	return issued
}

func TestIssueForOrder_OneTicketPerSeat(t *testing.T) {
	f := setup(t)
	order := f.paidOrder(
		&models.OrderItem{TicketTypeID: "tier-a", Quantity: 2},
		&models.OrderItem{TicketTypeID: "tier-b", Quantity: 1},
	)

	issued := f.issue(t, order)
	require.Len(t, issued, 3)

	codes := map[string]bool{}
	tiers := map[string]int{}
	for _, tk := range issued {
		assert.Regexp(t, `^NSV-\d{12}-[A-Z2-7]{6}$`, tk.Code)
		assert.Equal(t, models.TicketAktif, tk.Status)
		assert.Equal(t, owner.UserID, tk.OwnerID)
		assert.Equal(t, "Budi", tk.OwnerName)
		codes[tk.Code] = true
		tiers[tk.TicketTypeID]++
	}
	assert.Len(t, codes, 3)
	assert.Equal(t, map[string]int{"tier-a": 2, "tier-b": 1}, tiers)

	counts, err := f.svc.EventSales(context.Background(), f.event.ID)
	require.NoError(t, err)
	require.Len(t, counts, 1)
	assert.Equal(t, 3, counts[0].Count)
}

func TestIssueForOrder_LegacyOrder(t *testing.T) {
	f := setup(t)
	tier := "tier-legacy"
	qty := 2
	order := f.paidOrder()
	order.TicketTypeID = &tier
	order.JumlahTiket = &qty

	issued := f.issue(t, order)
	require.Len(t, issued, 2)
	assert.Equal(t, tier, issued[0].TicketTypeID)
}

func TestIssueForOrder_CountsAccumulatePerDay(t *testing.T) {
	f := setup(t)
	f.issue(t, f.paidOrder(&models.OrderItem{TicketTypeID: "a", Quantity: 1}))
	f.issue(t, f.paidOrder(&models.OrderItem{TicketTypeID: "a", Quantity: 2}))
	f.clock.Advance(24 * time.Hour)
	f.issue(t, f.paidOrder(&models.OrderItem{TicketTypeID: "a", Quantity: 1}))

	counts, err := f.svc.EventSales(context.Background(), f.event.ID)
	require.NoError(t, err)
	require.Len(t, counts, 2)
	assert.Equal(t, 3, counts[0].Count)
	assert.Equal(t, 1, counts[1].Count)
}

func TestIssueForOrder_RollsBackWithTransaction(t *testing.T) {
	f := setup(t)
	order := f.paidOrder(&models.OrderItem{TicketTypeID: "a", Quantity: 2})

	_ = f.bun.RunInTx(context.Background(), nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := f.svc.IssueForOrder(ctx, tx, order, "Budi")
		require.NoError(t, err)
		return assert.AnError
	})

	list, err := f.svc.ListMyTickets(context.Background(), owner.UserID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestGetTicket_Visibility(t *testing.T) {
	f := setup(t)
	issued := f.issue(t, f.paidOrder(&models.OrderItem{TicketTypeID: "a", Quantity: 1}))
	id := issued[0].ID
	ctx := context.Background()

	for _, c := range []models.Caller{owner, organizer, admin} {
		got, err := f.svc.GetTicket(ctx, c, id)
		require.NoError(t, err, c.UserID)
		assert.Equal(t, id, got.ID)
	}
	for _, c := range []models.Caller{stranger, otherMitra} {
		_, err := f.svc.GetTicket(ctx, c, id)
		assert.ErrorIs(t, err, tickets.ErrTicketNotFound, c.UserID)
	}
}

func TestTicketQR_RendersPNG(t *testing.T) {
	f := setup(t)
	issued := f.issue(t, f.paidOrder(&models.OrderItem{TicketTypeID: "a", Quantity: 1}))

	png, err := f.svc.TicketQR(context.Background(), owner, issued[0].ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), png[:4])
}

func TestCheckIn(t *testing.T) {
	f := setup(t)
	issued := f.issue(t, f.paidOrder(&models.OrderItem{TicketTypeID: "a", Quantity: 1}))
	payload := issued[0].QRPayload
	ctx := context.Background()

	_, err := f.svc.CheckIn(ctx, owner, payload)
	assert.ErrorIs(t, err, tickets.ErrNotEventStaff)

	_, err = f.svc.CheckIn(ctx, otherMitra, payload)
	assert.ErrorIs(t, err, tickets.ErrNotEventStaff)

	used, err := f.svc.CheckIn(ctx, organizer, payload)
	require.NoError(t, err)
	assert.Equal(t, models.TicketTerpakai, used.Status)
	require.NotNil(t, used.UsedAt)

	_, err = f.svc.CheckIn(ctx, admin, payload)
	assert.ErrorIs(t, err, tickets.ErrTicketUsed)
}

func TestCheckIn_RejectsForgedPayload(t *testing.T) {
	f := setup(t)
	issued := f.issue(t, f.paidOrder(&models.OrderItem{TicketTypeID: "a", Quantity: 1}))
	ctx := context.Background()

	_, err := f.svc.CheckIn(ctx, organizer, "not-a-payload")
	assert.ErrorIs(t, err, tickets.ErrInvalidQR)
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))

	other, err := qr.NewQRGenerator("another-secret")
	require.NoError(t, err)
	forged, err := other.Encrypt(qr.Payload{Code: issued[0].Code, OrderID: issued[0].OrderID, EventID: f.event.ID})
	require.NoError(t, err)
	_, err = f.svc.CheckIn(ctx, organizer, forged)
	assert.ErrorIs(t, err, tickets.ErrInvalidQR)

	mismatched, err := f.svc.QR.Encrypt(qr.Payload{Code: issued[0].Code, OrderID: "other-order", EventID: f.event.ID})
	require.NoError(t, err)
	_, err = f.svc.CheckIn(ctx, organizer, mismatched)
	assert.ErrorIs(t, err, tickets.ErrInvalidQR)
}

func TestExpireEndedEvents(t *testing.T) {
	f := setup(t)
	issued := f.issue(t, f.paidOrder(&models.OrderItem{TicketTypeID: "a", Quantity: 2}))
	ctx := context.Background()

	_, err := f.svc.CheckIn(ctx, organizer, issued[0].QRPayload)
	require.NoError(t, err)

	n, err := f.svc.ExpireEndedEvents(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.clock.Advance(48 * time.Hour)
	n, err = f.svc.ExpireEndedEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = f.svc.CheckIn(ctx, organizer, issued[1].QRPayload)
	assert.ErrorIs(t, err, tickets.ErrTicketExpired)

	first, err := f.svc.GetTicket(ctx, owner, issued[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.TicketTerpakai, first.Status)
}
