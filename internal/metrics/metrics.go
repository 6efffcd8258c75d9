// Package metrics provides Prometheus instrumentation for the prism engine.
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
	// SwapsTotal counts total swaps executed, partitioned by side.
	SwapsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prism_swaps_total",
		Help: "Total number of swaps executed",
	}, []string{"side"})

	// SwapLatency tracks swap execution latency, partitioned by side.
	SwapLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "prism_swap_latency_seconds",
		Help:    "Swap execution latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"side"})

	// ActiveMarkets tracks the number of open markets.
	ActiveMarkets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "prism_active_markets",
		Help: "Number of currently open markets",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "prism_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prism_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "prism_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})

	// SwapRejections counts swaps rejected by the proportion cap or
	// rate-floor checks.
	SwapRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "prism_swap_rejections_total",
		Help: "Swaps rejected by market safety checks",
	})

	// SwapVolume tracks cumulative trade volume (in PT) per market.
	SwapVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prism_swap_volume_total",
		Help: "Cumulative swap volume in PT",
	}, []string{"market_id", "side"})

	// FeesCollected tracks fees accrued per market, partitioned into
	// trading and reserve cuts.
	FeesCollected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prism_fees_collected_total",
		Help: "Cumulative fees collected in redemption value",
	}, []string{"market_id", "kind"})
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
