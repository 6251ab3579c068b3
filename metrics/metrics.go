// Package metrics holds the Prometheus collectors of the devnet node.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Block production
	BlocksSealed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "devnet_blocks_sealed_total",
			Help: "Total number of sealed blocks",
		},
	)

	TxsIncluded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "devnet_txs_included_total",
			Help: "Total number of transactions included in sealed blocks",
		},
	)

	BuildFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devnet_build_failures_total",
			Help: "Total number of failed block builds by reason",
		},
		[]string{"reason"},
	)

	BuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "devnet_build_duration_seconds",
			Help:    "Block build duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
	)

	ChainHeight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "devnet_chain_height",
			Help: "Number of the current head block",
		},
	)

	// Transaction pool
	PoolPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "devnet_txpool_pending",
			Help: "Transactions executable on top of the current state",
		},
	)

	PoolQueued = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "devnet_txpool_queued",
			Help: "Transactions waiting for a nonce gap to close",
		},
	)

	PoolRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devnet_txpool_rejected_total",
			Help: "Rejected submissions by reason",
		},
		[]string{"reason"},
	)

	PoolEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "devnet_txpool_evicted_total",
			Help: "Transactions dropped by lifetime eviction",
		},
	)

	// RPC
	rpcCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devnet_rpc_calls_total",
			Help: "Total JSON-RPC calls by method and outcome",
		},
		[]string{"method", "outcome"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devnet_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "devnet_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// RPCCall records one JSON-RPC call.
func RPCCall(method string, failed bool) {
	outcome := "ok"
	if failed {
		outcome = "error"
	}
	rpcCallsTotal.WithLabelValues(method, outcome).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request counts and durations per chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}

		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack passes through to the underlying writer for websocket upgrades.
func (w *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}

func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Flush keeps server-sent event streams working behind the middleware.
func (w *responseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
