package quota

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/chatdocs/chatdocs/internal/store"
)

func userFromHeader(r *http.Request) string { return r.Header.Get("X-User-ID") }

func TestMiddleware_Chatbot_Denial(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()
	subscribe(t, st, "u1", store.UsageQuota{MaxChatbotCount: 1, MaxDocumentCount: 10, MaxWordCountPerDocument: 1000, MaxShareCount: 5})
	if _, err := st.CreateChatbot(ctx, store.Chatbot{UserID: "u1", Name: "existing"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	m := NewMiddleware(st, userFromHeader)
	called := false
	h := m.Chatbot(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	req := httptest.NewRequest(http.MethodPost, "/api/chatbots", strings.NewReader(`{"name":"x"}`))
	req.Header.Set("X-User-ID", "u1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status: got %d, want 403", rec.Code)
	}
	if called {
		t.Error("handler must not run on denial")
	}
	if body := rec.Body.String(); !strings.Contains(body, "1 of 1") {
		t.Errorf("denial must name limit and usage: %s", body)
	}
}

func TestMiddleware_Document_BodyRestored(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	subscribe(t, st, "u1", store.UsageQuota{MaxChatbotCount: 5, MaxDocumentCount: 10, MaxWordCountPerDocument: 1000, MaxShareCount: 5})

	m := NewMiddleware(st, userFromHeader)
	var seen string
	h := m.Document(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		seen = string(b)
	}))

	payload := `{"name":"doc","chunks":["some chunk text"]}`
	req := httptest.NewRequest(http.MethodPost, "/api/chatbots/b1/documents", strings.NewReader(payload))
	req.Header.Set("X-User-ID", "u1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
	}
	if seen != payload {
		t.Errorf("handler must see the untouched body: %q", seen)
	}
}

func TestMiddleware_Document_EmptyChunksIsBadRequest(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	subscribe(t, st, "u1", store.UsageQuota{MaxChatbotCount: 5, MaxDocumentCount: 10, MaxWordCountPerDocument: 1000, MaxShareCount: 5})

	m := NewMiddleware(st, userFromHeader)
	h := m.Document(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodPost, "/api/chatbots/b1/documents", strings.NewReader(`{"name":"doc","chunks":[]}`))
	req.Header.Set("X-User-ID", "u1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty chunks: got %d, want 400", rec.Code)
	}
}

func TestMiddleware_NoSubscriptionIsForbidden(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)

	m := NewMiddleware(st, userFromHeader)
	h := m.Chatbot(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodPost, "/api/chatbots", strings.NewReader(`{}`))
	req.Header.Set("X-User-ID", "nobody")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status: got %d, want 403", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "no active subscription") {
		t.Errorf("body: %s", rec.Body.String())
	}
}

func TestMiddleware_Unauthenticated(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)

	m := NewMiddleware(st, userFromHeader)
	h := m.Chatbot(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodPost, "/api/chatbots", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status: got %d, want 401", rec.Code)
	}
}

func TestMiddleware_Share_PathValue(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()
	subscribe(t, st, "u1", store.UsageQuota{MaxChatbotCount: 5, MaxDocumentCount: 10, MaxWordCountPerDocument: 1000, MaxShareCount: 1})

	b, _ := st.CreateChatbot(ctx, store.Chatbot{UserID: "u1", Name: "a"})

	m := NewMiddleware(st, userFromHeader)
	mux := http.NewServeMux()
	mux.Handle("POST /api/chatbots/{id}/shares", m.Share(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))

	req := httptest.NewRequest(http.MethodPost, "/api/chatbots/"+b.ID+"/shares",
		strings.NewReader(`{"recipients":["alice","bob"]}`))
	req.Header.Set("X-User-ID", "u1")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("two new seats at limit 1: got %d, want 403", rec.Code)
	}
}
