// Package metrics provides Prometheus instrumentation for the accounting
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
	// AccountsCreated counts accounts created since startup.
	AccountsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "acct_accounts_created_total",
		Help: "Total number of accounts created",
	})

	// DepositsTotal counts successful deposits.
	DepositsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "acct_deposits_total",
		Help: "Total number of successful deposits",
	})

	// WithdrawalsTotal counts successful withdrawals.
	WithdrawalsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "acct_withdrawals_total",
		Help: "Total number of successful withdrawals",
	})

	// TradesTotal counts executed orders, partitioned by side.
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "acct_trades_total",
		Help: "Total number of orders executed",
	}, []string{"side"})

	// RejectionsTotal counts rejected operations by reason: not_found,
	// invalid_value, insufficient_funds, insufficient_holdings, short_floor.
	RejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "acct_rejections_total",
		Help: "Total number of rejected operations",
	}, []string{"reason"})

	// OrderLatency tracks order execution latency, partitioned by side.
	OrderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "acct_order_latency_seconds",
		Help:    "Order execution latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"side"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "acct_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "acct_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "acct_http_request_duration_seconds",
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
