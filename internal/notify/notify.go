// Package notify delivers in-app notifications. Delivery is best effort:
// callers never see an error, failures are only logged.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"nesavent/internal/auth"
	"nesavent/internal/clock"
	"nesavent/internal/kafka"
	"nesavent/internal/logger"
	"nesavent/internal/models"
	"nesavent/internal/utils"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/uptrace/bun"
)

const (
	TypeOrderPaid      = "order_paid"
	TypeOrderCancelled = "order_cancelled"
	TypeOrderExpired   = "order_expired"
	TypeTicketSold     = "ticket_sold"
)

// Store persists notifications.
type Store struct {
	Bun *bun.DB
}

func (s *Store) Save(ctx context.Context, n *models.Notification) error {
	_, err := s.Bun.NewInsert().Model(n).On("CONFLICT (id) DO NOTHING").Exec(ctx)
	return err
}

func (s *Store) ListForRecipient(ctx context.Context, recipientID string, limit int) ([]models.Notification, error) {
	var out []models.Notification
	err := s.Bun.NewSelect().
		Model(&out).
		Where("n.recipient_id = ?", recipientID).
		OrderExpr("n.created_at DESC").
		Limit(limit).
		Scan(ctx)
	return out, err
}

type Dispatcher struct {
	Store     *Store
	Publisher kafka.Publisher // nil when Kafka is disabled
	Topic     string
	Clock     clock.Clock
	Logger    *logger.Logger
}

func NewDispatcher(store *Store, publisher kafka.Publisher, topic string, clk clock.Clock, log *logger.Logger) *Dispatcher {
	return &Dispatcher{Store: store, Publisher: publisher, Topic: topic, Clock: clk, Logger: log}
}

// Notify queues a notification on Kafka, or stores it directly when no
// publisher is configured or publishing fails.
func (d *Dispatcher) Notify(ctx context.Context, recipientID, kind, title, message, referenceID string) {
	if recipientID == "" {
		return
	}
	n := &models.Notification{
		ID:          uuid.NewString(),
		RecipientID: recipientID,
		Type:        kind,
		Title:       title,
		Message:     message,
		ReferenceID: referenceID,
		CreatedAt:   d.Clock.Now(),
	}

	if d.Publisher != nil {
		err := d.Publisher.Publish(ctx, d.Topic, recipientID, n)
		if err == nil {
			return
		}
		d.Logger.Warn("NOTIFY", fmt.Sprintf("Publish failed, storing %s for %s directly: %v", kind, recipientID, err))
	}

	if err := d.Store.Save(ctx, n); err != nil {
		d.Logger.Error("NOTIFY", fmt.Sprintf("Failed to store %s notification for %s: %v", kind, recipientID, err))
	}
}

// OrderSettled notifies the buyer, and on payment also the organizer.
func (d *Dispatcher) OrderSettled(ctx context.Context, order *models.Order, event *models.Event) {
	eventName := order.EventID
	organizerID := ""
	if event != nil {
		eventName = event.Name
		organizerID = event.OrganizerID
	}

	switch order.Status {
	case models.OrderPaid:
		d.Notify(ctx, order.BuyerID, TypeOrderPaid, "Pembayaran berhasil",
			fmt.Sprintf("Pembayaran untuk %d tiket %s telah dikonfirmasi.", order.TotalTiket, eventName), order.ID)
		d.Notify(ctx, organizerID, TypeTicketSold, "Tiket terjual",
			fmt.Sprintf("%d tiket %s terjual (Rp %s).", order.TotalTiket, eventName, order.TotalHarga.StringFixed(0)), order.ID)
	case models.OrderCancelled:
		d.Notify(ctx, order.BuyerID, TypeOrderCancelled, "Pesanan dibatalkan",
			fmt.Sprintf("Pesanan tiket %s dibatalkan.", eventName), order.ID)
	case models.OrderExpired:
		d.Notify(ctx, order.BuyerID, TypeOrderExpired, "Pesanan kedaluwarsa",
			fmt.Sprintf("Pesanan tiket %s kedaluwarsa karena belum dibayar.", eventName), order.ID)
	}
}

// HandleMessage stores a notification consumed from Kafka.
func (d *Dispatcher) HandleMessage(ctx context.Context, msg kafkago.Message) error {
	var n models.Notification
	if err := json.Unmarshal(msg.Value, &n); err != nil {
		return fmt.Errorf("decode notification: %w", err)
	}
	if n.ID == "" || n.RecipientID == "" {
		return fmt.Errorf("notification at offset %d is missing id or recipient", msg.Offset)
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	return d.Store.Save(ctx, &n)
}

// ListMine serves the caller's latest notifications. It must be mounted
// behind auth.Middleware.
func (s *Store) ListMine(w http.ResponseWriter, r *http.Request) {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 || limit > 100 {
		limit = 20
	}
	out, err := s.ListForRecipient(r.Context(), auth.UserID(r.Context()), limit)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Notifikasi", out))
}
