package analytics_api

import (
	"context"
	"fmt"
	"net/http"

	"nesavent/internal/analytics"
	"nesavent/internal/apperr"
	"nesavent/internal/auth"
	"nesavent/internal/events"
	"nesavent/internal/logger"
	"nesavent/internal/models"
	"nesavent/internal/utils"

	"github.com/go-chi/chi/v5"
)

// EventLookup resolves a slug to an event visible to the caller.
type EventLookup interface {
	GetBySlug(ctx context.Context, caller *models.Caller, slug, viewerKey string) (*models.Event, error)
}

// Handler handles analytics HTTP endpoints
type Handler struct {
	Service *analytics.Service
	Events  EventLookup
	Logger  *logger.Logger
}

func NewHandler(service *analytics.Service, events EventLookup, log *logger.Logger) *Handler {
	return &Handler{Service: service, Events: events, Logger: log}
}

// RegisterRoutes expects the router to already carry auth.Middleware.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/events/{slug}/analytics", h.GetEventAnalytics)
	r.With(auth.RequireRole(models.RoleMitra, models.RoleAdmin)).
		Get("/analytics/organizer", h.GetOrganizerAnalytics)
}

func (h *Handler) GetEventAnalytics(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.CallerFrom(r.Context())

	event, err := h.Events.GetBySlug(r.Context(), &caller, chi.URLParam(r, "slug"), "")
	if err != nil {
		h.fail(w, "GetEventAnalytics", err)
		return
	}
	if !caller.IsAdmin() && event.OrganizerID != caller.UserID {
		utils.WriteError(w, events.ErrNotEventOwner)
		return
	}

	result, err := h.Service.GetEventAnalytics(r.Context(), event.ID)
	if err != nil {
		h.fail(w, "GetEventAnalytics", err)
		return
	}
	h.Logger.Debug("ANALYTICS", fmt.Sprintf("event %s: %d paid orders", event.ID, result.PaidOrders))
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Analitik penjualan event", result))
}

// GetOrganizerAnalytics reports on the caller's own events. Admins may pass
// ?organizerId= to inspect another organizer.
func (h *Handler) GetOrganizerAnalytics(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.CallerFrom(r.Context())

	organizerID := caller.UserID
	if q := r.URL.Query().Get("organizerId"); q != "" && caller.IsAdmin() {
		organizerID = q
	}

	result, err := h.Service.GetOrganizerAnalytics(r.Context(), organizerID)
	if err != nil {
		h.fail(w, "GetOrganizerAnalytics", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Analitik penyelenggara", result))
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if apperr.KindOf(err) == apperr.Internal {
		h.Logger.Error("ANALYTICS", fmt.Sprintf("%s: %v", op, err))
	}
	utils.WriteError(w, err)
}
