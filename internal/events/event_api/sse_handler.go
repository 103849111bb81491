package event_api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"nesavent/internal/models"

	"github.com/go-chi/chi/v5"
)

const keepAliveInterval = 25 * time.Second

// StreamStock sends the current availability of every tier, then pushes
// changes as orders reserve, settle and release stock.
func (h *Handler) StreamStock(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	event, err := h.Service.GetBySlug(r.Context(), nil, chi.URLParam(r, "slug"), "")
	if err != nil {
		h.fail(w, "StreamStock", err)
		return
	}

	setupSSEHeaders(w)
	ctx := r.Context()
	updates := h.Stock.Subscribe(ctx, event.ID)

	fmt.Fprintf(w, "event: connected\ndata: {\"status\":\"connected\",\"eventId\":\"%s\"}\n\n", event.ID)
	for _, tt := range event.TicketTypes {
		writeStock(w, models.StockUpdate{
			EventID:      event.ID,
			TicketTypeID: tt.ID,
			StokTersisa:  tt.StokTersisa,
			StokPending:  tt.StokPending,
		})
	}
	flusher.Flush()

	h.Logger.Debug("SSE", fmt.Sprintf("Client connected to stock stream for event %s", event.ID))

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return
			}
			writeStock(w, update)
			flusher.Flush()
		case <-keepAlive.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case <-ctx.Done():
			h.Logger.Debug("SSE", fmt.Sprintf("Client disconnected from stock stream for event %s", event.ID))
			return
		}
	}
}

func writeStock(w http.ResponseWriter, update models.StockUpdate) {
	data, err := json.Marshal(update)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: stock\ndata: %s\n\n", data)
}

func setupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream;charset=UTF-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, max-age=0, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}
