package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"nesavent/internal/apperr"
	"nesavent/internal/clock"
	"nesavent/internal/config"
	"nesavent/internal/kafka"
	"nesavent/internal/logger"
	"nesavent/internal/metrics"
	"nesavent/internal/models"
	orderdb "nesavent/internal/order/db"
	"nesavent/internal/payment/services"
	"nesavent/internal/users"
	"nesavent/internal/utils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Locker holds the advisory Redis state around orders. Correctness never
// depends on it: stock moves are conditional updates and quota sums run
// under the per-buyer lock taken inside the order transaction.
type Locker interface {
	AcquirePurchaseLock(ctx context.Context, eventID, buyerID, token string) (bool, error)
	ReleasePurchaseLock(ctx context.Context, eventID, buyerID, token string) error
	SetHold(ctx context.Context, orderID string, ttl time.Duration) error
	ClearHold(ctx context.Context, orderID string) error
}

type TicketIssuer interface {
	IssueForOrder(ctx context.Context, tx bun.IDB, order *models.Order, ownerName string) ([]models.Ticket, error)
}

type Notifier interface {
	OrderSettled(ctx context.Context, order *models.Order, event *models.Event)
}

type StockBroadcaster interface {
	EmitTiers(tiers []*models.TicketType)
}

type BuyerDirectory interface {
	GetBuyer(ctx context.Context, id string) (models.Buyer, error)
}

// Deps wires an OrderService. Locks, Kafka, Notifier and Stock are optional.
type Deps struct {
	DB       *orderdb.DB
	Locks    Locker
	Kafka    kafka.Publisher
	Topics   config.TopicConfig
	Tickets  TicketIssuer
	Notifier Notifier
	Stock    StockBroadcaster
	Gateway  services.Gateway
	Buyers   BuyerDirectory
	Clock    clock.Clock
	Logger   *logger.Logger
	HoldTTL  time.Duration
	Currency string
}

type OrderService struct {
	Deps
}

func NewOrderService(d Deps) *OrderService {
	if d.Clock == nil {
		d.Clock = clock.Real()
	}
	if d.HoldTTL == 0 {
		d.HoldTTL = time.Hour
	}
	return &OrderService{Deps: d}
}

// ---------------- CREATE ----------------

// Buyer resolves the authenticated caller to the identity record quota
// checks run against.
func (s *OrderService) Buyer(ctx context.Context, caller models.Caller) (models.Buyer, error) {
	buyer, err := s.Buyers.GetBuyer(ctx, caller.UserID)
	if errors.Is(err, users.ErrUserNotFound) {
		return models.Buyer{}, ErrBuyerNotFound
	}
	return buyer, err
}

// CreateOrder validates the selections, reserves stock and stores a pending
// order, all in one transaction. Nothing is written when any selection fails.
func (s *OrderService) CreateOrder(ctx context.Context, buyer models.Buyer, req models.CreateOrderRequest) (*models.Order, error) {
	order, err := s.createOrder(ctx, buyer, req)
	if err != nil {
		metrics.OrderRejected(apperr.CodeOf(err))
		return nil, err
	}
	metrics.OrderCreated(order.EventID)
	return order, nil
}

func (s *OrderService) createOrder(ctx context.Context, buyer models.Buyer, req models.CreateOrderRequest) (*models.Order, error) {
	if err := utils.Validate(req); err != nil {
		return nil, err
	}
	selections, err := req.Selections()
	if err != nil {
		return nil, apperr.Invalid(err.Error())
	}

	if s.Locks != nil {
		token := uuid.NewString()
		ok, err := s.Locks.AcquirePurchaseLock(ctx, req.EventID, buyer.ID, token)
		if err != nil {
			// Fail open: the transaction takes its own per-buyer lock.
			s.Logger.Warn("ORDER", fmt.Sprintf("Purchase lock unavailable for %s: %v", buyer.ID, err))
		} else if !ok {
			return nil, ErrPurchaseInProgress
		} else {
			defer func() {
				if err := s.Locks.ReleasePurchaseLock(context.Background(), req.EventID, buyer.ID, token); err != nil {
					s.Logger.Warn("ORDER", fmt.Sprintf("Failed to release purchase lock for %s: %v", buyer.ID, err))
				}
			}()
		}
	}

	now := s.Clock.Now()
	order := &models.Order{
		ID:             uuid.NewString(),
		BuyerID:        buyer.ID,
		EventID:        req.EventID,
		Status:         models.OrderPending,
		NamaPemesan:    firstNonEmpty(req.NamaPemesan, buyer.Name),
		EmailPemesan:   firstNonEmpty(req.EmailPemesan, buyer.Email),
		TeleponPemesan: firstNonEmpty(req.TeleponPemesan, buyer.Phone),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	var tierIDs []string
	err = s.DB.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		if err := s.DB.LockBuyerQuota(ctx, tx, buyer.ID, req.EventID); err != nil {
			return fmt.Errorf("lock buyer quota: %w", err)
		}
		event, err := s.DB.GetEventWithTiers(ctx, tx, req.EventID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrEventNotFound
		}
		if err != nil {
			return fmt.Errorf("load event: %w", err)
		}
		if event.Status != models.EventAktif {
			return ErrEventNotActive
		}

		chk := &quotaCheck{svc: s, tx: tx, buyer: buyer, event: event, now: now, tierSoFar: map[string]int{}}
		total := decimal.Zero
		for _, sel := range selections {
			tier, err := chk.validate(ctx, sel)
			if err != nil {
				return err
			}

			subtotal := tier.Harga.Mul(decimal.NewFromInt(int64(sel.Quantity)))
			order.Items = append(order.Items, &models.OrderItem{
				ID:           uuid.NewString(),
				OrderID:      order.ID,
				TicketTypeID: tier.ID,
				NamaTiket:    tier.Name,
				HargaSatuan:  tier.Harga,
				Quantity:     sel.Quantity,
				Subtotal:     subtotal,
			})
			total = total.Add(subtotal)
			order.TotalTiket += sel.Quantity
		}

		for _, it := range order.Items {
			ok, err := s.DB.ReserveStock(ctx, tx, it.TicketTypeID, it.Quantity)
			if err != nil {
				return fmt.Errorf("reserve stock: %w", err)
			}
			if !ok {
				return ErrInsufficientStock
			}
			tierIDs = append(tierIDs, it.TicketTypeID)
		}

		order.TotalHarga = total
		if err := s.DB.InsertOrder(ctx, tx, order); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.LogOrder("CREATED", order.ID, fmt.Sprintf("buyer=%s event=%s seats=%d total=%s", buyer.ID, order.EventID, order.TotalTiket, order.TotalHarga.String()))
	s.afterCreate(ctx, order, tierIDs)
	return order, nil
}

func (s *OrderService) afterCreate(ctx context.Context, order *models.Order, tierIDs []string) {
	if s.Locks != nil {
		if err := s.Locks.SetHold(ctx, order.ID, s.HoldTTL); err != nil {
			s.Logger.Warn("ORDER", fmt.Sprintf("Failed to set hold for %s: %v", order.ID, err))
		}
	}
	s.publish(ctx, s.Topics.OrderCreated, order)
	s.broadcast(ctx, tierIDs)
}

// quotaCheck runs the per-selection rules in their fixed order, tracking what
// earlier selections of the same request already claimed.
type quotaCheck struct {
	svc        *OrderService
	tx         bun.IDB
	buyer      models.Buyer
	event      *models.Event
	now        time.Time
	tierSoFar  map[string]int
	eventSoFar int
	eventHeld  *int
}

func (c *quotaCheck) validate(ctx context.Context, sel models.TicketSelection) (*models.TicketType, error) {
	tier := c.event.TicketType(sel.TicketTypeID)
	if tier == nil {
		return nil, ErrTicketTypeNotFound
	}

	switch tier.SaleWindowState(c.now) {
	case -1:
		return nil, ErrSaleNotStarted
	case 1:
		return nil, ErrSaleEnded
	}

	if len(tier.AllowedRoles) > 0 && !tier.AllowedRoles.Contains(c.buyer.Role) {
		return nil, ErrRoleNotAllowed
	}
	if tier.KhususMahasiswa && !c.buyer.Role.IsStudent() {
		return nil, ErrRoleNotAllowed
	}

	if tier.StokTersisa < sel.Quantity {
		return nil, ErrInsufficientStock
	}

	if tier.MaxPembelianPerOrang != nil {
		held, err := c.svc.DB.SumBuyerTierQuantity(ctx, c.tx, c.buyer.ID, tier.ID)
		if err != nil {
			return nil, fmt.Errorf("sum tier quantity: %w", err)
		}
		if held+c.tierSoFar[tier.ID]+sel.Quantity > *tier.MaxPembelianPerOrang {
			return nil, ErrPurchaseLimitExceeded
		}
	}

	if tier.KhususMahasiswa {
		if c.buyer.Verification != models.VerificationApproved {
			return nil, ErrStudentNotVerified
		}
		if tier.MaxPembelianPerOrang == nil {
			return nil, ErrStudentQuotaNotConfigured
		}
		held, err := c.eventTotal(ctx)
		if err != nil {
			return nil, err
		}
		limit := *tier.MaxPembelianPerOrang
		if held >= limit || held+sel.Quantity > limit {
			return nil, ErrStudentQuotaExceeded
		}
	}

	c.tierSoFar[tier.ID] += sel.Quantity
	c.eventSoFar += sel.Quantity
	return tier, nil
}

// eventTotal is the buyer's event-wide seat count including this request so far.
func (c *quotaCheck) eventTotal(ctx context.Context) (int, error) {
	if c.eventHeld == nil {
		held, err := c.svc.DB.SumBuyerEventQuantity(ctx, c.tx, c.buyer.ID, c.event.ID)
		if err != nil {
			return 0, fmt.Errorf("sum event quantity: %w", err)
		}
		c.eventHeld = &held
	}
	return *c.eventHeld + c.eventSoFar, nil
}

// ---------------- READ ----------------

func (s *OrderService) load(ctx context.Context, id string) (*models.Order, error) {
	order, err := s.DB.GetOrder(ctx, nil, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order %s: %w", id, err)
	}
	return order, nil
}

// GetOrder returns an order visible to the caller: buyers see their own,
// organizers the orders of their events, admins everything.
func (s *OrderService) GetOrder(ctx context.Context, caller models.Caller, id string) (*models.Order, error) {
	order, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if caller.IsAdmin() || order.BuyerID == caller.UserID {
		return order, nil
	}
	if caller.Role == models.RoleMitra {
		event, err := s.DB.GetEventWithTiers(ctx, nil, order.EventID)
		if err == nil && event.OrganizerID == caller.UserID {
			return order, nil
		}
	}
	return nil, ErrOrderNotFound
}

func (s *OrderService) ListMyOrders(ctx context.Context, buyerID string) ([]*models.Order, error) {
	orders, err := s.DB.ListOrdersByBuyer(ctx, buyerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	if orders == nil {
		orders = []*models.Order{}
	}
	return orders, nil
}

type OrderPage struct {
	Orders []*models.Order `json:"orders"`
	Total  int             `json:"total"`
	Page   int             `json:"page"`
	Limit  int             `json:"limit"`
}

// ListOrders is the organizer/admin view. Organizers only see their events.
func (s *OrderService) ListOrders(ctx context.Context, caller models.Caller, f models.OrderFilter) (*OrderPage, error) {
	scope := ""
	switch caller.Role {
	case models.RoleAdmin:
	case models.RoleMitra:
		scope = caller.UserID
	default:
		return nil, apperr.New(apperr.Forbidden, "forbidden", "Akses ditolak")
	}

	page, limit, offset := utils.Paginate(f.Page, f.Limit, defaultPageSize, maxPageSize)
	orders, total, err := s.DB.ListOrders(ctx, f, scope, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	if orders == nil {
		orders = []*models.Order{}
	}
	return &OrderPage{Orders: orders, Total: total, Page: page, Limit: limit}, nil
}

// UpdateOrderContact changes buyer contact details on a pending order.
func (s *OrderService) UpdateOrderContact(ctx context.Context, caller models.Caller, id string, c models.ContactUpdate) (*models.Order, error) {
	if err := utils.Validate(c); err != nil {
		return nil, err
	}
	order, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != caller.UserID {
		return nil, ErrOrderNotOwned
	}
	if order.Status != models.OrderPending {
		return nil, ErrOrderNotPending
	}

	ok, err := s.DB.UpdateContact(ctx, id, c, s.Clock.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to update order contact: %w", err)
	}
	if !ok {
		return nil, ErrOrderNotPending
	}
	return s.load(ctx, id)
}

// ---------------- SIDE EFFECTS ----------------

func (s *OrderService) publish(ctx context.Context, topic string, order *models.Order) {
	if s.Kafka == nil || topic == "" {
		return
	}
	evt := models.OrderEvent{
		OrderID:    order.ID,
		EventID:    order.EventID,
		BuyerID:    order.BuyerID,
		Status:     order.Status,
		TotalHarga: order.TotalHarga.String(),
		TotalTiket: order.SeatCount(),
		OccurredAt: s.Clock.Now().UTC().Format(time.RFC3339),
	}
	if err := s.Kafka.Publish(ctx, topic, order.ID, evt); err != nil {
		s.Logger.Warn("KAFKA", fmt.Sprintf("Failed to publish %s for order %s: %v", topic, order.ID, err))
	}
}

func (s *OrderService) broadcast(ctx context.Context, tierIDs []string) {
	if s.Stock == nil || len(tierIDs) == 0 {
		return
	}
	tiers, err := s.DB.GetTiers(ctx, tierIDs)
	if err != nil {
		s.Logger.Warn("SSE", fmt.Sprintf("Failed to load tiers for stock update: %v", err))
		return
	}
	s.Stock.EmitTiers(tiers)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
