package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCountersMove(t *testing.T) {
	before := testutil.ToFloat64(ordersRejected.WithLabelValues("insufficient_stock"))
	OrderRejected("insufficient_stock")
	after := testutil.ToFloat64(ordersRejected.WithLabelValues("insufficient_stock"))
	assert.Equal(t, before+1, after)

	TicketsIssued("evt-1", 3)
	assert.Equal(t, float64(3), testutil.ToFloat64(ticketsIssued.WithLabelValues("evt-1")))
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders/abc", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, 1, testutil.CollectAndCount(httpDuration, "nesavent_http_request_duration_seconds"))
}
