// Package metrics provides Prometheus instrumentation for the guess engine.
package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// GuessesCreated counts guesses created, partitioned by direction.
	GuessesCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "btcguess_guesses_created_total",
		Help: "Total number of guesses created",
	}, []string{"direction"})

	// Settlements counts settled guesses, partitioned by outcome.
	Settlements = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "btcguess_settlements_total",
		Help: "Total number of guesses settled",
	}, []string{"outcome"})

	// SweepDuration tracks how long a full validation sweep takes.
	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "btcguess_sweep_duration_seconds",
		Help:    "Validation sweep duration in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// SweepBatchSize tracks how many overdue guesses each sweep found.
	SweepBatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "btcguess_sweep_batch_size",
		Help:    "Overdue guesses found per sweep",
		Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
	})

	// PriceFetches counts upstream price fetches by result.
	PriceFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "btcguess_price_fetches_total",
		Help: "Upstream price fetch attempts",
	}, []string{"status"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "btcguess_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "btcguess_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "btcguess_http_request_duration_seconds",
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

// Hijack lets the WebSocket upgrade work through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("underlying writer does not support hijacking")
	}
	return hj.Hijack()
}
