package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/chatdocs/chatdocs/internal/conversation"
	"github.com/chatdocs/chatdocs/internal/quota"
	"github.com/chatdocs/chatdocs/internal/store"
	"github.com/chatdocs/chatdocs/internal/vectorstore"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on mutating
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token the upstream gateway presents on all /api/*
	// routes. If empty, authentication is disabled (development mode).
	APIKey string
	// Registry receives the server's Prometheus metrics. Defaults to the
	// global registry; tests inject a fresh one to stay hermetic.
	Registry prometheus.Registerer
}

// indexer is the slice of the vector store gateway the document handler
// needs. *vectorstore.Gateway satisfies it; tests inject a fake to exercise
// indexing failures.
type indexer interface {
	IndexDocuments(ctx context.Context, texts []string, metadata []vectorstore.ChunkMeta) (vectorstore.IndexResult, error)
}

// Server is the HTTP server exposing chatbots, documents, shares, and
// conversations.
type Server struct {
	// cfg holds the resolved server configuration.
	cfg *Config
	// store is the relational store.
	store *store.Store
	// indexer writes document chunks to the vector store.
	indexer indexer
	// conversations drives chat turns and listing.
	conversations *conversation.Service
	// admission gates resource-creating routes.
	admission *quota.Middleware
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the server's Prometheus instruments.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// createChatbotRequest is the JSON body for POST /api/chatbots.
type createChatbotRequest struct {
	// Name is the chatbot display name.
	Name string `json:"name"`
	// IsPublic opens the chatbot to every authenticated user.
	IsPublic bool `json:"is_public"`
	// SystemPrompt overrides the default answer instructions.
	SystemPrompt string `json:"system_prompt,omitempty"`
	// ModelProvider selects the generation backend.
	ModelProvider string `json:"model_provider"`
	// ModelName selects the generation model.
	ModelName string `json:"model_name"`
	// Temperature overrides generation temperature when > 0.
	Temperature float32 `json:"temperature,omitempty"`
	// MaxTokens overrides the response token cap when > 0.
	MaxTokens int `json:"max_tokens,omitempty"`
}

// chatbotResponse is the JSON response for a created chatbot.
type chatbotResponse struct {
	// ID is the new chatbot id.
	ID string `json:"id"`
	// Name is the chatbot display name.
	Name string `json:"name"`
	// IsPublic reports whether any authenticated user may converse with it.
	IsPublic bool `json:"is_public"`
	// ModelProvider is the configured generation backend.
	ModelProvider string `json:"model_provider"`
	// ModelName is the configured generation model.
	ModelName string `json:"model_name"`
	// CreatedAt is when the chatbot was created.
	CreatedAt time.Time `json:"created_at"`
}

// createDocumentRequest is the JSON body for POST /api/chatbots/{id}/documents.
type createDocumentRequest struct {
	// Name is the document display name.
	Name string `json:"name"`
	// Chunks is the pre-chunked document text, in order.
	Chunks []string `json:"chunks"`
}

// createDocumentResponse is the JSON response for a created document.
type createDocumentResponse struct {
	// ID is the new document id.
	ID string `json:"id"`
	// Status is the document's indexing status.
	Status string `json:"status"`
	// ChunkCount is the number of chunks indexed.
	ChunkCount int `json:"chunk_count"`
}

// createSharesRequest is the JSON body for POST /api/chatbots/{id}/shares.
type createSharesRequest struct {
	// Recipients are the user ids or addresses to share with.
	Recipients []string `json:"recipients"`
}

// startConversationRequest is the JSON body for POST /api/conversations.
type startConversationRequest struct {
	// ChatbotID is the chatbot to converse with.
	ChatbotID string `json:"chatbot_id"`
}

// chatRequest is the JSON body for POST /api/conversations/{id}/messages.
type chatRequest struct {
	// Message is the user's question for this turn.
	Message string `json:"message"`
}

// sourceResponse is one retrieved chunk in a chat or hydration response.
type sourceResponse struct {
	// ChunkID is the chunk's id.
	ChunkID string `json:"chunk_id"`
	// DocumentID is the owning document.
	DocumentID string `json:"document_id"`
	// Text is the chunk content.
	Text string `json:"text"`
	// ChunkIndex is the chunk's position within its document.
	ChunkIndex int `json:"chunk_index"`
	// CharacterCount is the chunk text length in characters.
	CharacterCount int `json:"character_count"`
	// WordCount is the chunk text length in words.
	WordCount int `json:"word_count"`
}

// chatResponse is the JSON response for a completed chat turn.
type chatResponse struct {
	// Answer is the assistant's response, verbatim.
	Answer string `json:"answer"`
	// Sources are the retrieved chunks in retrieval-rank order.
	Sources []sourceResponse `json:"sources"`
}

// messageResponse is one hydrated message in a conversation history.
type messageResponse struct {
	// Role is the message author.
	Role string `json:"role"`
	// Content is the message text.
	Content string `json:"content"`
	// Sources are the resolved chunks an assistant message was grounded on.
	Sources []sourceResponse `json:"sources,omitempty"`
	// CreatedAt is when the message was persisted.
	CreatedAt time.Time `json:"created_at"`
}

// conversationResponse is one conversation in a listing.
type conversationResponse struct {
	// ID is the conversation id.
	ID string `json:"id"`
	// ChatbotID is the chatbot the conversation runs against.
	ChatbotID string `json:"chatbot_id"`
	// Title is the conversation title.
	Title string `json:"title"`
	// LastActiveAt is the newest message timestamp, or the conversation's
	// own update time when empty.
	LastActiveAt time.Time `json:"last_active_at"`
}
