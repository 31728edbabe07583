// Package metrics provides Prometheus instrumentation for the prediction
// engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// LedgerEntriesTotal counts ledger writes by currency and kind.
	LedgerEntriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "predikt_ledger_entries_total",
		Help: "Total ledger entries written",
	}, []string{"currency", "kind"})

	// PredictionsPlaced counts accepted predictions.
	PredictionsPlaced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "predikt_predictions_placed_total",
		Help: "Total predictions placed",
	})

	// SettlementsTotal counts settlement outcomes per event, partitioned by
	// result (settled, failed, skipped).
	SettlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "predikt_settlements_total",
		Help: "Events processed by the settlement worker",
	}, []string{"result"})

	// SettlementRunDuration tracks the duration of one settlement sweep.
	SettlementRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "predikt_settlement_run_duration_seconds",
		Help:    "Settlement worker sweep duration in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// OddsRefreshTotal counts odds snapshot refreshes by result.
	OddsRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "predikt_odds_refresh_total",
		Help: "Odds snapshot refresh attempts",
	}, []string{"result"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "predikt_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "predikt_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "predikt_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
