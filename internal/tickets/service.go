package tickets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"nesavent/internal/clock"
	"nesavent/internal/logger"
	"nesavent/internal/metrics"
	"nesavent/internal/models"
	qr "nesavent/internal/tickets/qr_genrator"
	"nesavent/internal/utils"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	codeAttempts = 3
	qrSize       = 256
)

type TicketDBLayer interface {
	InsertTicket(ctx context.Context, idb bun.IDB, t *models.Ticket) (bool, error)
	IncrementTicketCount(ctx context.Context, idb bun.IDB, eventID string, ts time.Time, n int) error
	GetTicketByID(ctx context.Context, id string) (*models.Ticket, error)
	GetTicketByCode(ctx context.Context, code string) (*models.Ticket, error)
	GetTicketsByOwner(ctx context.Context, ownerID string) ([]models.Ticket, error)
	GetTicketsByOrder(ctx context.Context, orderID string) ([]models.Ticket, error)
	MarkUsed(ctx context.Context, id string, now time.Time) (bool, error)
	ExpireForEndedEvents(ctx context.Context, now time.Time) (int, error)
	EventOrganizer(ctx context.Context, eventID string) (string, error)
	GetTicketCountsForEvent(ctx context.Context, eventID string) ([]models.TicketCount, error)
}

type TicketService struct {
	DB     TicketDBLayer
	QR     *qr.QRGenerator
	Clock  clock.Clock
	Logger *logger.Logger
}

func NewTicketService(db TicketDBLayer, secret string, clk clock.Clock, log *logger.Logger) (*TicketService, error) {
	gen, err := qr.NewQRGenerator(secret)
	if err != nil {
		return nil, fmt.Errorf("failed to init QR generator: %w", err)
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &TicketService{DB: db, QR: gen, Clock: clk, Logger: log}, nil
}

// IssueForOrder mints one ticket per seat of a paid order. It runs inside the
// settlement transaction passed as tx, so a failure rolls the payment back too.
func (s *TicketService) IssueForOrder(ctx context.Context, tx bun.IDB, order *models.Order, ownerName string) ([]models.Ticket, error) {
	now := s.Clock.Now()
	var issued []models.Ticket

	for _, line := range order.Lines() {
		for i := 0; i < line.Quantity; i++ {
			t, err := s.mint(ctx, tx, order, line.TicketTypeID, ownerName, now)
			if err != nil {
				return nil, err
			}
			issued = append(issued, *t)
		}
	}
	if len(issued) == 0 {
		return nil, nil
	}

	if err := s.DB.IncrementTicketCount(ctx, tx, order.EventID, now, len(issued)); err != nil {
		return nil, fmt.Errorf("failed to update ticket count: %w", err)
	}

	metrics.TicketsIssued(order.EventID, len(issued))
	s.Logger.Info("TICKET", fmt.Sprintf("Issued %d tickets for order %s", len(issued), order.ID))
	return issued, nil
}

func (s *TicketService) mint(ctx context.Context, tx bun.IDB, order *models.Order, tierID, ownerName string, now time.Time) (*models.Ticket, error) {
	for attempt := 0; attempt < codeAttempts; attempt++ {
		code := utils.GenerateTicketCode(now)
		payload, err := s.QR.Encrypt(qr.Payload{Code: code, OrderID: order.ID, EventID: order.EventID})
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt ticket payload: %w", err)
		}

		t := &models.Ticket{
			ID:           uuid.NewString(),
			Code:         code,
			OrderID:      order.ID,
			EventID:      order.EventID,
			TicketTypeID: tierID,
			OwnerID:      order.BuyerID,
			OwnerName:    ownerName,
			QRPayload:    payload,
			Status:       models.TicketAktif,
			IssuedAt:     now,
		}
		ok, err := s.DB.InsertTicket(ctx, tx, t)
		if err != nil {
			return nil, fmt.Errorf("failed to insert ticket: %w", err)
		}
		if ok {
			return t, nil
		}
		s.Logger.Warn("TICKET", fmt.Sprintf("Ticket code %s already taken, retrying", code))
	}
	return nil, ErrCodeUnavailable
}

func (s *TicketService) ListMyTickets(ctx context.Context, ownerID string) ([]models.Ticket, error) {
	tickets, err := s.DB.GetTicketsByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tickets for user %s: %w", ownerID, err)
	}
	if tickets == nil {
		tickets = []models.Ticket{}
	}
	return tickets, nil
}

func (s *TicketService) ListOrderTickets(ctx context.Context, caller models.Caller, orderID string) ([]models.Ticket, error) {
	tickets, err := s.DB.GetTicketsByOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tickets for order %s: %w", orderID, err)
	}
	visible := make([]models.Ticket, 0, len(tickets))
	for _, t := range tickets {
		if s.canView(ctx, caller, &t) {
			visible = append(visible, t)
		}
	}
	return visible, nil
}

// GetTicket returns a ticket to its owner, the event organizer or an admin.
// Anyone else gets not found.
func (s *TicketService) GetTicket(ctx context.Context, caller models.Caller, id string) (*models.Ticket, error) {
	ticket, err := s.DB.GetTicketByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTicketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ticket %s: %w", id, err)
	}
	if !s.canView(ctx, caller, ticket) {
		return nil, ErrTicketNotFound
	}
	return ticket, nil
}

// TicketQR renders the ticket's encrypted payload as a PNG.
func (s *TicketService) TicketQR(ctx context.Context, caller models.Caller, id string) ([]byte, error) {
	ticket, err := s.GetTicket(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	png, err := qr.PNG(ticket.QRPayload, qrSize)
	if err != nil {
		return nil, fmt.Errorf("failed to render QR: %w", err)
	}
	return png, nil
}

// CheckIn validates a scanned payload and marks the ticket used. Only the
// event's organizer or an admin may scan.
func (s *TicketService) CheckIn(ctx context.Context, caller models.Caller, payload string) (*models.Ticket, error) {
	p, err := s.QR.Decrypt(payload)
	if err != nil {
		s.Logger.LogSecurity("QR_REJECTED", fmt.Sprintf("caller=%s: %v", caller.UserID, err))
		return nil, ErrInvalidQR
	}

	ticket, err := s.DB.GetTicketByCode(ctx, p.Code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTicketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ticket %s: %w", p.Code, err)
	}
	if ticket.OrderID != p.OrderID || ticket.EventID != p.EventID {
		s.Logger.LogSecurity("QR_MISMATCH", fmt.Sprintf("code=%s caller=%s", p.Code, caller.UserID))
		return nil, ErrInvalidQR
	}

	if !caller.IsAdmin() {
		organizerID, err := s.DB.EventOrganizer(ctx, ticket.EventID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("event %s: %w", ticket.EventID, err)
		}
		if organizerID == "" || organizerID != caller.UserID {
			return nil, ErrNotEventStaff
		}
	}

	switch ticket.Status {
	case models.TicketTerpakai:
		return nil, ErrTicketUsed
	case models.TicketExpired:
		return nil, ErrTicketExpired
	}

	now := s.Clock.Now()
	ok, err := s.DB.MarkUsed(ctx, ticket.ID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to check in ticket: %w", err)
	}
	if !ok {
		// Lost a race against another scanner or the expiry sweep.
		return nil, ErrTicketUsed
	}

	ticket.Status = models.TicketTerpakai
	ticket.UsedAt = &now
	s.Logger.Info("TICKET", fmt.Sprintf("Ticket %s checked in by %s", ticket.Code, caller.UserID))
	return ticket, nil
}

// EventSales returns the daily issuance counts of an event.
func (s *TicketService) EventSales(ctx context.Context, eventID string) ([]models.TicketCount, error) {
	counts, err := s.DB.GetTicketCountsForEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch ticket counts for event %s: %w", eventID, err)
	}
	if counts == nil {
		counts = []models.TicketCount{}
	}
	return counts, nil
}

// ExpireEndedEvents retires aktif tickets of events that are over.
func (s *TicketService) ExpireEndedEvents(ctx context.Context) (int, error) {
	n, err := s.DB.ExpireForEndedEvents(ctx, s.Clock.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to expire tickets: %w", err)
	}
	if n > 0 {
		s.Logger.Info("TICKET", fmt.Sprintf("Expired %d tickets of ended events", n))
	}
	return n, nil
}

func (s *TicketService) canView(ctx context.Context, caller models.Caller, t *models.Ticket) bool {
	if caller.IsAdmin() || t.OwnerID == caller.UserID {
		return true
	}
	if caller.Role != models.RoleMitra {
		return false
	}
	organizerID, err := s.DB.EventOrganizer(ctx, t.EventID)
	return err == nil && organizerID == caller.UserID
}
