package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"nesavent/internal/apperr"
	"nesavent/internal/auth"
	"nesavent/internal/logger"
	"nesavent/internal/models"
	"nesavent/internal/order"
	"nesavent/internal/payment/services"
	"nesavent/internal/utils"

	"github.com/gin-gonic/gin"
)

// OrderPayments is the part of the order service the payment routes drive.
type OrderPayments interface {
	CreatePaymentCharge(ctx context.Context, caller models.Caller, orderID string) (*services.Charge, error)
	HandlePaymentResult(ctx context.Context, reference string, result services.PaymentResult) (order.SettlementOutcome, error)
}

type PaymentHandler struct {
	orders  OrderPayments
	gateway services.Gateway
	logger  *logger.Logger
}

func NewPaymentHandler(orders OrderPayments, gateway services.Gateway, log *logger.Logger) *PaymentHandler {
	return &PaymentHandler{orders: orders, gateway: gateway, logger: log}
}

// Register mounts the payment routes. authMW guards charge creation only;
// notifications authenticate by signature.
func (h *PaymentHandler) Register(r gin.IRouter, authMW gin.HandlerFunc) {
	group := r.Group("/payment")
	group.POST("/create", authMW, h.CreatePayment)
	group.POST("/notification", h.Notification)
}

type createPaymentRequest struct {
	OrderID string `json:"orderId" binding:"required"`
}

// CreatePayment opens a gateway charge for one of the caller's pending orders.
func (h *PaymentHandler) CreatePayment(c *gin.Context) {
	var req createPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid request payload", "validation_failed"))
		return
	}

	caller, ok := auth.CallerFrom(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, utils.ErrorResponse("Silakan login terlebih dahulu", "unauthenticated"))
		return
	}

	charge, err := h.orders.CreatePaymentCharge(c.Request.Context(), caller, req.OrderID)
	if err != nil {
		if apperr.KindOf(err) == apperr.Internal || apperr.KindOf(err) == apperr.Upstream {
			h.logger.Error("PAYMENT", fmt.Sprintf("CreatePayment for %s failed: %v", req.OrderID, err))
		}
		status, body := utils.FromError(err)
		c.JSON(status, body)
		return
	}
	c.JSON(http.StatusOK, utils.SuccessResponse("Pembayaran dibuat", charge))
}

// Notification receives gateway callbacks. Applied transitions and no-ops
// answer 200; only store failures answer 5xx so the gateway retries.
func (h *PaymentHandler) Notification(c *gin.Context) {
	if h.gateway == nil {
		c.JSON(http.StatusServiceUnavailable, utils.ErrorResponse("Payment gateway not configured", "gateway_not_ready"))
		return
	}

	result, err := h.gateway.ParseNotification(c.Request)
	if err != nil {
		var webhookErr *services.WebhookError
		if errors.As(err, &webhookErr) {
			h.logger.Warn("PAYMENT", fmt.Sprintf("Notification rejected category=%s: %s", webhookErr.Category, webhookErr.InternalError))
			c.JSON(webhookErr.StatusCode, utils.ErrorResponse(webhookErr.PublicError, webhookErr.Category))
			return
		}
		h.logger.Warn("PAYMENT", fmt.Sprintf("Notification rejected: %v", err))
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid notification", "validation"))
		return
	}

	outcome, err := h.orders.HandlePaymentResult(c.Request.Context(), result.Reference, *result)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, utils.SuccessResponse("Notification processed", gin.H{
			"reference": result.Reference,
			"outcome":   outcome,
		}))
	case errors.Is(err, order.ErrOrderNotFound):
		h.logger.Warn("PAYMENT", fmt.Sprintf("Notification for unknown reference %s", result.Reference))
		c.JSON(http.StatusNotFound, utils.ErrorResponse("Order not found", apperr.CodeOf(err)))
	default:
		h.logger.Error("PAYMENT", fmt.Sprintf("Settlement for %s failed: %v", result.Reference, err))
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse("Notification processing failed", "internal_error"))
	}
}
