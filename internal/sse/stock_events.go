package sse

import (
	"context"
	"sync"

	"nesavent/internal/models"
)

// StockEmitter fans tier availability changes out to SSE clients, keyed by event id.
type StockEmitter struct {
	clients map[string][]chan models.StockUpdate
	mu      sync.RWMutex
}

func NewStockEmitter() *StockEmitter {
	return &StockEmitter{
		clients: make(map[string][]chan models.StockUpdate),
	}
}

// Subscribe registers a client for one event. The channel is closed once ctx is done.
func (e *StockEmitter) Subscribe(ctx context.Context, eventID string) <-chan models.StockUpdate {
	clientChan := make(chan models.StockUpdate, 16)

	e.mu.Lock()
	e.clients[eventID] = append(e.clients[eventID], clientChan)
	e.mu.Unlock()

	go func() {
		<-ctx.Done()
		e.remove(eventID, clientChan)
	}()

	return clientChan
}

// Emit broadcasts without blocking; slow clients miss updates rather than
// stalling the order path.
func (e *StockEmitter) Emit(update models.StockUpdate) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, clientChan := range e.clients[update.EventID] {
		select {
		case clientChan <- update:
		default:
		}
	}
}

// EmitTiers emits one update per tier.
func (e *StockEmitter) EmitTiers(tiers []*models.TicketType) {
	for _, tt := range tiers {
		e.Emit(models.StockUpdate{
			EventID:      tt.EventID,
			TicketTypeID: tt.ID,
			StokTersisa:  tt.StokTersisa,
			StokPending:  tt.StokPending,
		})
	}
}

func (e *StockEmitter) remove(eventID string, clientChan chan models.StockUpdate) {
	e.mu.Lock()
	defer e.mu.Unlock()

	clients := e.clients[eventID]
	for i, ch := range clients {
		if ch == clientChan {
			e.clients[eventID] = append(clients[:i], clients[i+1:]...)
			close(clientChan)
			break
		}
	}
	if len(e.clients[eventID]) == 0 {
		delete(e.clients, eventID)
	}
}

// ClientCount returns the number of clients subscribed to an event.
func (e *StockEmitter) ClientCount(eventID string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.clients[eventID])
}
