package order_api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"nesavent/internal/apperr"
	"nesavent/internal/auth"
	"nesavent/internal/logger"
	"nesavent/internal/models"
	"nesavent/internal/order"
	"nesavent/internal/utils"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	OrderService *order.OrderService
	Logger       *logger.Logger
}

func NewHandler(orderService *order.OrderService, log *logger.Logger) *Handler {
	return &Handler{OrderService: orderService, Logger: log}
}

// Routes must be mounted behind auth.Middleware.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/orders", h.CreateOrder)
	r.Get("/orders/my-orders", h.GetMyOrders)
	r.With(auth.RequireRole(models.RoleAdmin, models.RoleMitra)).Get("/orders", h.ListOrders)
	r.Get("/orders/{id}", h.GetOrder)
	r.Put("/orders/{id}", h.UpdateOrder)
	r.Put("/orders/{id}/pay", h.PayOrder)
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.CallerFrom(r.Context())

	var req models.CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, apperr.Invalid("Invalid request body: "+err.Error()))
		return
	}

	buyer, err := h.OrderService.Buyer(r.Context(), caller)
	if err != nil {
		h.fail(w, "CreateOrder", err)
		return
	}

	created, err := h.OrderService.CreateOrder(r.Context(), buyer, req)
	if err != nil {
		h.fail(w, "CreateOrder", err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Pesanan berhasil dibuat", created))
}

func (h *Handler) GetMyOrders(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.CallerFrom(r.Context())

	orders, err := h.OrderService.ListMyOrders(r.Context(), caller.UserID)
	if err != nil {
		h.fail(w, "GetMyOrders", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Pesanan saya", orders))
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.CallerFrom(r.Context())

	q := r.URL.Query()
	f := models.OrderFilter{
		EventID: q.Get("eventId"),
		Status:  models.OrderStatus(q.Get("status")),
	}
	f.Page, _ = strconv.Atoi(q.Get("page"))
	f.Limit, _ = strconv.Atoi(q.Get("limit"))

	page, err := h.OrderService.ListOrders(r.Context(), caller, f)
	if err != nil {
		h.fail(w, "ListOrders", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Daftar pesanan", page))
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.CallerFrom(r.Context())

	found, err := h.OrderService.GetOrder(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "GetOrder", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Detail pesanan", found))
}

func (h *Handler) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.CallerFrom(r.Context())

	var body models.ContactUpdate
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.WriteError(w, apperr.Invalid("Invalid request body: "+err.Error()))
		return
	}

	updated, err := h.OrderService.UpdateOrderContact(r.Context(), caller, chi.URLParam(r, "id"), body)
	if err != nil {
		h.fail(w, "UpdateOrder", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Data pemesan diperbarui", updated))
}

// PayOrder settles free orders, or any order when called by an admin.
func (h *Handler) PayOrder(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.CallerFrom(r.Context())

	paid, err := h.OrderService.PayOrderDirect(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "PayOrder", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Pesanan berhasil dibayar", paid))
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if apperr.KindOf(err) == apperr.Internal {
		h.Logger.Error("API", fmt.Sprintf("%s: %v", op, err))
	} else {
		h.Logger.Debug("API", fmt.Sprintf("%s: %v", op, err))
	}
	utils.WriteError(w, err)
}
