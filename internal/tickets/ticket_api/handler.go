package ticket_api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"nesavent/internal/apperr"
	"nesavent/internal/auth"
	"nesavent/internal/logger"
	tickets "nesavent/internal/tickets"
	"nesavent/internal/utils"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	TicketService *tickets.TicketService
	Logger        *logger.Logger
}

func NewHandler(ticketService *tickets.TicketService, log *logger.Logger) *Handler {
	return &Handler{TicketService: ticketService, Logger: log}
}

// Routes must be mounted behind auth.Middleware.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/tickets/my-tickets", h.GetMyTickets)
	r.Get("/tickets/{id}", h.GetTicket)
	r.Get("/tickets/{id}/qr", h.GetTicketQR)
	r.Get("/orders/{id}/tickets", h.GetOrderTickets)
	r.Post("/tickets/check-in", h.CheckinTicket)
}

func (h *Handler) GetMyTickets(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.CallerFrom(r.Context())

	list, err := h.TicketService.ListMyTickets(r.Context(), caller.UserID)
	if err != nil {
		h.fail(w, "GetMyTickets", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Tiket saya", list))
}

func (h *Handler) GetTicket(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.CallerFrom(r.Context())

	ticket, err := h.TicketService.GetTicket(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "GetTicket", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Detail tiket", ticket))
}

func (h *Handler) GetTicketQR(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.CallerFrom(r.Context())

	png, err := h.TicketService.TicketQR(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "GetTicketQR", err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func (h *Handler) GetOrderTickets(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.CallerFrom(r.Context())

	list, err := h.TicketService.ListOrderTickets(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "GetOrderTickets", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Tiket pesanan", list))
}

// CheckinTicket expects {"encrypted_qr": "<payload>"} as scanned from the ticket.
func (h *Handler) CheckinTicket(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.CallerFrom(r.Context())

	var body struct {
		EncryptedQR string `json:"encrypted_qr" validate:"required"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.WriteError(w, apperr.Invalid("Invalid request body: "+err.Error()))
		return
	}
	if err := utils.Validate(body); err != nil {
		utils.WriteError(w, err)
		return
	}

	ticket, err := h.TicketService.CheckIn(r.Context(), caller, body.EncryptedQR)
	if err != nil {
		h.fail(w, "CheckinTicket", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Check-in berhasil", ticket))
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if apperr.KindOf(err) == apperr.Internal {
		h.Logger.Error("API", fmt.Sprintf("%s: %v", op, err))
	} else {
		h.Logger.Debug("API", fmt.Sprintf("%s: %v", op, err))
	}
	utils.WriteError(w, err)
}
