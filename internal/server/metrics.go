// Package server — metrics.go registers all Prometheus metrics for the HTTP
// server and exposes helpers used by handlers and middleware.
package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/chatdocs/chatdocs/internal/conversation"
	"github.com/chatdocs/chatdocs/internal/quota"
	"github.com/chatdocs/chatdocs/internal/store"
)

// labelHandler is the "handler" label value used to partition metrics by
// the logical endpoint name rather than the raw URL path, which embeds
// per-resource ids.
const labelHandler = "handler"

// serverMetrics holds all Prometheus metrics owned by the HTTP server.
// A single instance is created in New and stored on Server so that tests can
// inject a fresh prometheus.Registry without polluting the default one.
type serverMetrics struct {
	// chatTurnsTotal counts completed chat turns, partitioned by outcome:
	// "ok", "rejected" (authorization, quota, or unusable-chatbot denials),
	// or "error".
	chatTurnsTotal *prometheus.CounterVec

	// chatTurnDurationSeconds records the wall-clock duration of each chat
	// turn, retrieval and generation included.
	chatTurnDurationSeconds prometheus.Histogram

	// httpRequestsTotal counts all HTTP requests handled by the mux,
	// partitioned by method, handler name, and status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec
}

// newServerMetrics registers all server metrics against reg and returns the
// populated serverMetrics. promauto.With(reg) is used so that each call
// registers into the provided registry rather than the global default —
// this keeps unit tests hermetic.
func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		chatTurnsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatdocs",
			Subsystem: "chat",
			Name:      "turns_total",
			Help:      "Total number of chat turns completed, partitioned by outcome.",
		}, []string{"outcome"}),

		chatTurnDurationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "chatdocs",
			Subsystem: "chat",
			Name:      "turn_duration_seconds",
			Help:      "Wall-clock duration of chat turns, retrieval and generation included.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
		}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatdocs",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "chatdocs",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),
	}
}

// observeChat classifies a completed chat turn for the outcome counter and
// records its duration.
func (m *serverMetrics) observeChat(elapsed time.Duration, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, quota.ErrQuotaExceeded),
		errors.Is(err, conversation.ErrNoDocuments),
		errors.Is(err, conversation.ErrNoModelConfig):
		outcome = "rejected"
	default:
		outcome = "error"
	}
	m.chatTurnsTotal.WithLabelValues(outcome).Inc()
	m.chatTurnDurationSeconds.Observe(elapsed.Seconds())
}

// instrument wraps next so every request increments the HTTP counters under
// the given handler name.
func (s *Server) instrument(name string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		start := time.Now()
		next.ServeHTTP(rw, r)
		elapsed := time.Since(start)

		s.metrics.httpRequestsTotal.WithLabelValues(r.Method, name, strconv.Itoa(rw.status)).Inc()
		s.metrics.httpDurationSeconds.WithLabelValues(r.Method, name).Observe(elapsed.Seconds())
	})
}
