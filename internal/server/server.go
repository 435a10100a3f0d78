// Package server implements the HTTP API over chatbots, documents, shares,
// and conversations. It is started by the `chatdocs serve` CLI command and
// expects an upstream gateway to terminate end-user authentication, passing
// the caller's identity in the X-User-ID header.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chatdocs/chatdocs/internal/conversation"
	"github.com/chatdocs/chatdocs/internal/logging"
	"github.com/chatdocs/chatdocs/internal/quota"
	"github.com/chatdocs/chatdocs/internal/store"
)

// New constructs a Server from its dependencies and config.
func New(st *store.Store, idx indexer, conv *conversation.Service, cfg *Config) (*Server, error) {
	if st == nil || idx == nil || conv == nil {
		return nil, fmt.Errorf("server: store, indexer, and conversation service are required")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// WriteTimeout covers a full chat turn including model latency.
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New()
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 10
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = 20
	}
	var reg prometheus.Registerer = prometheus.DefaultRegisterer
	if cfg.Registry != nil {
		reg = cfg.Registry
	}

	s := &Server{
		cfg:           cfg,
		store:         st,
		indexer:       idx,
		conversations: conv,
		admission:     quota.NewMiddleware(st, userID),
		log:           cfg.Logger,
		pingers:       cfg.Pingers,
		metrics:       newServerMetrics(reg),
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, cfg.Logger)
	s.stopRL = stopRL

	mux := http.NewServeMux()

	// Resource creation sits behind the quota admission middleware and the
	// per-IP rate limiter. Handlers re-run the admission check inside their
	// creation transaction; the middleware only rejects early.
	mux.Handle("POST /api/chatbots",
		s.instrument("create_chatbot", rl.middleware(s.admission.Chatbot(http.HandlerFunc(s.handleCreateChatbot)))))
	mux.Handle("POST /api/chatbots/{id}/documents",
		s.instrument("create_document", rl.middleware(s.admission.Document(http.HandlerFunc(s.handleCreateDocument)))))
	mux.Handle("POST /api/chatbots/{id}/shares",
		s.instrument("create_shares", rl.middleware(s.admission.Share(http.HandlerFunc(s.handleCreateShares)))))

	mux.Handle("POST /api/conversations",
		s.instrument("start_conversation", rl.middleware(http.HandlerFunc(s.handleStartConversation))))
	mux.Handle("GET /api/conversations",
		s.instrument("list_conversations", http.HandlerFunc(s.handleListConversations)))
	mux.Handle("POST /api/conversations/{id}/messages",
		s.instrument("chat", rl.middleware(http.HandlerFunc(s.handleChat))))
	mux.Handle("GET /api/conversations/{id}/messages",
		s.instrument("list_messages", http.HandlerFunc(s.handleMessages)))

	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.Handler())

	var handler http.Handler = mux
	handler = authMiddleware(cfg.APIKey, handler)
	handler = requestLogger(cfg.Logger, handler)

	if cfg.APIKey == "" {
		cfg.Logger.Warn("server: API key not set — authentication is disabled")
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server listening", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.stopRL()
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		s.stopRL()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// userID extracts the authenticated user identity injected by the upstream
// gateway.
func userID(r *http.Request) string {
	return r.Header.Get("X-User-ID")
}

// requireUser writes 401 and returns empty when the request carries no
// identity.
func requireUser(w http.ResponseWriter, r *http.Request) string {
	id := userID(r)
	if id == "" {
		writeError(w, http.StatusUnauthorized, "authentication required")
	}
	return id
}

// writeJSON writes v as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error body with the given status.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps service errors onto the HTTP taxonomy: NotFound
// (which deliberately also covers exists-but-unauthorized), Forbidden for
// subscription and quota denials, BadRequest for invalid or unusable input,
// and 500 for everything else.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, quota.ErrEmptyDocument),
		errors.Is(err, conversation.ErrNoDocuments),
		errors.Is(err, conversation.ErrNoModelConfig):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, quota.ErrNoSubscription),
		errors.Is(err, quota.ErrNoQuota),
		errors.Is(err, quota.ErrQuotaExceeded):
		writeError(w, http.StatusForbidden, err.Error())
	default:
		logging.FromContext(r.Context()).Error("internal error", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
