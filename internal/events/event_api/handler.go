package event_api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"nesavent/internal/apperr"
	"nesavent/internal/auth"
	"nesavent/internal/events"
	"nesavent/internal/logger"
	"nesavent/internal/models"
	"nesavent/internal/sse"
	"nesavent/internal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// SalesReader returns the per-day issued ticket counts of an event.
type SalesReader interface {
	EventSales(ctx context.Context, eventID string) ([]models.TicketCount, error)
}

type Handler struct {
	Service *events.EventService
	Sales   SalesReader
	Stock   *sse.StockEmitter
	Logger  *logger.Logger
}

func NewHandler(service *events.EventService, sales SalesReader, stock *sse.StockEmitter, log *logger.Logger) *Handler {
	return &Handler{Service: service, Sales: sales, Stock: stock, Logger: log}
}

// PublicRoutes must be mounted behind auth.Optional so that organizers can
// preview their own unpublished events.
func (h *Handler) PublicRoutes(r chi.Router) {
	r.Get("/events", h.ListEvents)
	r.Get("/events/{slug}", h.GetEvent)
	r.Get("/events/{slug}/stock/stream", h.StreamStock)
}

func (h *Handler) ProtectedRoutes(r chi.Router) {
	r.Post("/events", h.CreateEvent)
	r.Put("/events/{slug}", h.UpdateEvent)
	r.Delete("/events/{slug}", h.DeleteEvent)
	r.Patch("/events/{slug}/status", h.ChangeStatus)
	r.Get("/events/{slug}/sales", h.GetSales)
}

func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		utils.WriteError(w, err)
		return
	}

	page, err := h.Service.List(r.Context(), filter)
	if err != nil {
		h.fail(w, "ListEvents", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Daftar event", page))
}

func parseFilter(r *http.Request) (models.EventFilter, error) {
	q := r.URL.Query()
	f := models.EventFilter{
		Category:    q.Get("category"),
		Query:       q.Get("q"),
		Location:    q.Get("location"),
		StudentOnly: q.Get("studentOnly") == "true",
		Free:        q.Get("free") == "true",
	}
	f.Page, _ = strconv.Atoi(q.Get("page"))
	f.Limit, _ = strconv.Atoi(q.Get("limit"))

	for name, dst := range map[string]**time.Time{"dateFrom": &f.DateFrom, "dateTo": &f.DateTo} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		t, err := parseDate(raw)
		if err != nil {
			return f, apperr.Invalid(fmt.Sprintf("parameter %s tidak valid", name))
		}
		*dst = &t
	}
	for name, dst := range map[string]**decimal.Decimal{"priceMin": &f.PriceMin, "priceMax": &f.PriceMax} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return f, apperr.Invalid(fmt.Sprintf("parameter %s tidak valid", name))
		}
		*dst = &d
	}
	return f, nil
}

func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}

func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	var caller *models.Caller
	viewer := r.RemoteAddr
	if c, ok := auth.CallerFrom(r.Context()); ok {
		caller = &c
		viewer = "user:" + c.UserID
	}

	event, err := h.Service.GetBySlug(r.Context(), caller, slug, viewer)
	if err != nil {
		h.fail(w, "GetEvent", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Detail event", event))
}

func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.CallerFrom(r.Context())

	var input models.EventInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		utils.WriteError(w, apperr.Invalid("Invalid request body: "+err.Error()))
		return
	}

	event, err := h.Service.Create(r.Context(), caller, input)
	if err != nil {
		h.fail(w, "CreateEvent", err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Event berhasil dibuat", event))
}

func (h *Handler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.CallerFrom(r.Context())

	var input models.EventInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		utils.WriteError(w, apperr.Invalid("Invalid request body: "+err.Error()))
		return
	}

	event, err := h.Service.Update(r.Context(), caller, chi.URLParam(r, "slug"), input)
	if err != nil {
		h.fail(w, "UpdateEvent", err)
		return
	}
	h.Stock.EmitTiers(event.TicketTypes)
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Event berhasil diperbarui", event))
}

func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.CallerFrom(r.Context())

	if err := h.Service.Delete(r.Context(), caller, chi.URLParam(r, "slug")); err != nil {
		h.fail(w, "DeleteEvent", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Event berhasil dihapus", nil))
}

func (h *Handler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.CallerFrom(r.Context())

	var body struct {
		Status models.EventStatus `json:"status" validate:"required"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.WriteError(w, apperr.Invalid("Invalid request body: "+err.Error()))
		return
	}
	if err := utils.Validate(body); err != nil {
		utils.WriteError(w, err)
		return
	}

	event, err := h.Service.ChangeStatus(r.Context(), caller, chi.URLParam(r, "slug"), body.Status)
	if err != nil {
		h.fail(w, "ChangeStatus", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Status event diperbarui", event))
}

func (h *Handler) GetSales(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.CallerFrom(r.Context())

	event, err := h.Service.GetBySlug(r.Context(), &caller, chi.URLParam(r, "slug"), "")
	if err != nil {
		h.fail(w, "GetSales", err)
		return
	}
	if !caller.IsAdmin() && event.OrganizerID != caller.UserID {
		utils.WriteError(w, events.ErrNotEventOwner)
		return
	}

	counts, err := h.Sales.EventSales(r.Context(), event.ID)
	if err != nil {
		h.fail(w, "GetSales", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Penjualan tiket harian", counts))
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if apperr.KindOf(err) == apperr.Internal {
		h.Logger.Error("API", fmt.Sprintf("%s: %v", op, err))
	} else {
		h.Logger.Debug("API", fmt.Sprintf("%s: %v", op, err))
	}
	utils.WriteError(w, err)
}
