package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ordersCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nesavent_orders_created_total",
			Help: "Orders created in pending state",
		},
		[]string{"event_id"},
	)

	ordersRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nesavent_orders_rejected_total",
			Help: "Order attempts rejected, by reason code",
		},
		[]string{"reason"},
	)

	settlements = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nesavent_settlements_total",
			Help: "Payment results processed, by outcome",
		},
		[]string{"outcome"},
	)

	ordersExpired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nesavent_orders_expired_total",
			Help: "Pending orders expired, by trigger",
		},
		[]string{"trigger"},
	)

	sweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nesavent_expiry_sweep_duration_seconds",
			Help:    "Duration of one expiry sweep",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
		},
	)

	ticketsIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nesavent_tickets_issued_total",
			Help: "Tickets minted for paid orders",
		},
		[]string{"event_id"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nesavent_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

func OrderCreated(eventID string) { ordersCreated.WithLabelValues(eventID).Inc() }

func OrderRejected(reason string) { ordersRejected.WithLabelValues(reason).Inc() }

func Settlement(outcome string) { settlements.WithLabelValues(outcome).Inc() }

func OrderExpired(trigger string) { ordersExpired.WithLabelValues(trigger).Inc() }

func ObserveSweep(d time.Duration) { sweepDuration.Observe(d.Seconds()) }

func TicketsIssued(eventID string, n int) { ticketsIssued.WithLabelValues(eventID).Add(float64(n)) }

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush keeps SSE streams working behind the middleware.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Middleware records request latency labelled by the chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		httpDuration.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Observe(time.Since(start).Seconds())
	})
}
