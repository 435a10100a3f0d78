package quota

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/chatdocs/chatdocs/internal/logging"
	"github.com/chatdocs/chatdocs/internal/store"
)

// maxAdmissionBody caps how much request body the middleware will buffer for
// inspection.
const maxAdmissionBody = 10 << 20 // 10 MiB

// UserIDFunc extracts the authenticated user id from a request. Returning
// empty means unauthenticated.
type UserIDFunc func(r *http.Request) string

// Middleware gates resource-creating routes with a transactional admission
// pre-check. The creation handler behind it re-runs the same check inside
// its own creation transaction; this pre-check exists to reject oversized or
// unsubscribed requests before any expensive work.
type Middleware struct {
	store  *store.Store
	userID UserIDFunc
}

// NewMiddleware constructs a Middleware.
func NewMiddleware(st *store.Store, userID UserIDFunc) *Middleware {
	return &Middleware{store: st, userID: userID}
}

// documentBody is the slice of the document-creation payload admission needs.
type documentBody struct {
	Chunks []string `json:"chunks"`
}

// shareBody is the slice of the share payload admission needs.
type shareBody struct {
	Recipients []string `json:"recipients"`
}

// Chatbot gates chatbot creation.
func (m *Middleware) Chatbot(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.admit(w, r, next, func(ctx context.Context, st *store.Store, userID string) error {
			return CheckChatbot(ctx, st, userID)
		})
	})
}

// Document gates document creation. It inspects the request body for chunk
// contents and restores it for the handler downstream.
func (m *Middleware) Document(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := m.bufferBody(w, r)
		if !ok {
			return
		}
		var req documentBody
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		m.admit(w, r, next, func(ctx context.Context, st *store.Store, userID string) error {
			return CheckDocument(ctx, st, userID, req.Chunks)
		})
	})
}

// Share gates chatbot sharing. The chatbot id is taken from the route's
// {id} path value.
func (m *Middleware) Share(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := m.bufferBody(w, r)
		if !ok {
			return
		}
		var req shareBody
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		chatbotID := r.PathValue("id")
		m.admit(w, r, next, func(ctx context.Context, st *store.Store, userID string) error {
			return CheckShare(ctx, st, userID, chatbotID, req.Recipients)
		})
	})
}

// admit runs the check in its own transaction and either forwards to next or
// writes the mapped denial.
func (m *Middleware) admit(w http.ResponseWriter, r *http.Request, next http.Handler,
	check func(ctx context.Context, st *store.Store, userID string) error) {

	userID := m.userID(r)
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	err := m.store.InTx(r.Context(), func(tx *store.Store) error {
		return check(r.Context(), tx, userID)
	})
	if err != nil {
		status, msg := classify(err)
		if status == http.StatusInternalServerError {
			logging.FromContext(r.Context()).Error("quota: admission check failed",
				slog.String("error", err.Error()))
			msg = "internal error"
		}
		writeError(w, status, msg)
		return
	}
	next.ServeHTTP(w, r)
}

// bufferBody reads and restores the request body so the downstream handler
// sees it untouched.
func (m *Middleware) bufferBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxAdmissionBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read request body")
		return nil, false
	}
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, true
}

// classify maps admission errors to HTTP status codes. Denial messages pass
// through verbatim; they name the specific limit and current usage.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrEmptyDocument):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, ErrNoSubscription),
		errors.Is(err, ErrNoQuota),
		errors.Is(err, ErrQuotaExceeded):
		return http.StatusForbidden, err.Error()
	default:
		return http.StatusInternalServerError, err.Error()
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
