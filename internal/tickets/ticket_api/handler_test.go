package ticket_api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"nesavent/internal/auth"
	"nesavent/internal/clock"
	"nesavent/internal/database/sqlitetest"
	"nesavent/internal/logger"
	"nesavent/internal/models"
	"nesavent/internal/tickets"
	ticketdb "nesavent/internal/tickets/db"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

func setup(t *testing.T) (http.Handler, []models.Ticket) {
	t.Helper()
	ctx := context.Background()
	db := sqlitetest.Open(t)
	clk := clock.NewFake(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	log := logger.NewTestLogger(nil)

	event := &models.Event{
		ID:                 uuid.NewString(),
		Slug:               "workshop",
		Name:               "Workshop",
		StartDate:          clk.Now().Add(time.Hour),
		EndDate:            clk.Now().Add(3 * time.Hour),
		OrganizerID:        "mitra-1",
		Status:             models.EventAktif,
		VerificationStatus: "approved",
		CreatedAt:          clk.Now(),
		UpdatedAt:          clk.Now(),
	}
	_, err := db.NewInsert().Model(event).Exec(ctx)
	require.NoError(t, err)

	svc, err := tickets.NewTicketService(&ticketdb.DB{Bun: db}, "handler-secret", clk, log)
	require.NoError(t, err)

	order := &models.Order{
		ID:         uuid.NewString(),
		BuyerID:    "buyer-1",
		EventID:    event.ID,
		Status:     models.OrderPaid,
		TotalHarga: decimal.NewFromInt(40000),
		TotalTiket: 2,
		Items:      []*models.OrderItem{{TicketTypeID: "tier-1", Quantity: 2}},
	}
	var issued []models.Ticket
	err = db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		issued, err = svc.IssueForOrder(ctx, tx, order, "Budi")
		return err
	})
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			caller := models.Caller{UserID: req.Header.Get("X-Test-User"), Role: models.Role(req.Header.Get("X-Test-Role"))}
			next.ServeHTTP(w, req.WithContext(auth.WithCaller(req.Context(), caller)))
		})
	})
	NewHandler(svc, log).Routes(r)
	return r, issued
}

func call(r http.Handler, method, path, user, role string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("X-Test-User", user)
	req.Header.Set("X-Test-Role", role)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestGetMyTickets(t *testing.T) {
	r, _ := setup(t)

	w := call(r, http.MethodGet, "/tickets/my-tickets", "buyer-1", "mahasiswa", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data []models.Ticket `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Data, 2)
}

func TestGetTicket_HiddenFromStrangers(t *testing.T) {
	r, issued := setup(t)
	path := "/tickets/" + issued[0].ID

	assert.Equal(t, http.StatusOK, call(r, http.MethodGet, path, "buyer-1", "mahasiswa", nil).Code)
	assert.Equal(t, http.StatusOK, call(r, http.MethodGet, path, "mitra-1", "mitra", nil).Code)
	assert.Equal(t, http.StatusNotFound, call(r, http.MethodGet, path, "buyer-2", "user", nil).Code)
}

func TestGetTicketQR(t *testing.T) {
	r, issued := setup(t)

	w := call(r, http.MethodGet, "/tickets/"+issued[0].ID+"/qr", "buyer-1", "mahasiswa", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")))
}

func TestCheckin(t *testing.T) {
	r, issued := setup(t)
	body, err := json.Marshal(map[string]string{"encrypted_qr": issued[0].QRPayload})
	require.NoError(t, err)

	w := call(r, http.MethodPost, "/tickets/check-in", "buyer-1", "mahasiswa", body)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = call(r, http.MethodPost, "/tickets/check-in", "mitra-1", "mitra", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = call(r, http.MethodPost, "/tickets/check-in", "mitra-1", "mitra", body)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "ticket_used")
}

func TestCheckin_BadRequests(t *testing.T) {
	r, _ := setup(t)

	w := call(r, http.MethodPost, "/tickets/check-in", "mitra-1", "mitra", []byte(`{}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = call(r, http.MethodPost, "/tickets/check-in", "mitra-1", "mitra", []byte(`{"encrypted_qr":"not-a-payload"}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_qr")
}
