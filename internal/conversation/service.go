// Package conversation owns chat-turn state: authorization, message
// persistence, and driving the answer pipeline within one transaction per
// turn.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/chatdocs/chatdocs/internal/metering"
	"github.com/chatdocs/chatdocs/internal/rag"
	"github.com/chatdocs/chatdocs/internal/store"
	"github.com/chatdocs/chatdocs/internal/vectorstore"
)

// ErrNoDocuments rejects a chat turn against a chatbot with no indexed
// documents. The turn is rejected before any retrieval or generation call.
var ErrNoDocuments = errors.New("conversation: chatbot has no indexed documents — upload a document first")

// ErrNoModelConfig rejects a chat turn against a chatbot whose generation
// model is not configured.
var ErrNoModelConfig = errors.New("conversation: chatbot has no model configuration — set a provider and model")

// defaultPageSize bounds conversation listing.
const defaultPageSize = 20

// Service coordinates conversations, the answer pipeline, and the usage
// ledger.
type Service struct {
	store *store.Store
	rag   *rag.Orchestrator
	meter *metering.Service
	log   *slog.Logger
}

// New constructs a Service.
func New(st *store.Store, orchestrator *rag.Orchestrator, meter *metering.Service, log *slog.Logger) *Service {
	return &Service{store: st, rag: orchestrator, meter: meter, log: log}
}

// Start creates an empty conversation against the chatbot, titled after it.
// The caller must own the chatbot, have it shared with them, or the chatbot
// must be public; anything else reads as not-found so callers cannot probe
// for other tenants' chatbots.
func (s *Service) Start(ctx context.Context, userID, chatbotID string) (store.Conversation, error) {
	b, err := s.store.ChatbotByID(ctx, chatbotID)
	if err != nil {
		return store.Conversation{}, err
	}
	ok, err := s.authorized(ctx, userID, b)
	if err != nil {
		return store.Conversation{}, err
	}
	if !ok {
		return store.Conversation{}, store.ErrNotFound
	}

	return s.store.CreateConversation(ctx, store.Conversation{
		UserID:    userID,
		ChatbotID: chatbotID,
		Title:     b.Name,
	})
}

// authorized reports whether userID may converse with the chatbot.
func (s *Service) authorized(ctx context.Context, userID string, b store.Chatbot) (bool, error) {
	if b.UserID == userID || b.IsPublic {
		return true, nil
	}
	shared, err := s.store.IsSharedWith(ctx, b.ID, userID)
	if err != nil {
		return false, err
	}
	return shared, nil
}

// Chat runs one turn of the conversation inside a single transaction: load
// and authorize, fail fast on an unusable chatbot, answer over the chatbot's
// full document set with the prior messages as history, then append exactly
// two messages — the user's question and the assistant's answer, which
// stores only chunk id references. Any failure aborts the whole turn: no
// partial message, no retained usage event.
func (s *Service) Chat(ctx context.Context, userID, conversationID, message string) (rag.Result, error) {
	if message == "" {
		return rag.Result{}, fmt.Errorf("conversation: message must not be empty")
	}

	var result rag.Result
	err := s.store.InTx(ctx, func(tx *store.Store) error {
		conv, err := tx.ConversationByID(ctx, conversationID)
		if err != nil {
			return err
		}
		if conv.UserID != userID {
			return store.ErrNotFound
		}

		b, err := tx.ChatbotByID(ctx, conv.ChatbotID)
		if err != nil {
			return err
		}
		// Fail fast before any retrieval or generation call: a rejected turn
		// must leave zero usage events.
		if b.ModelProvider == "" || b.ModelName == "" {
			return ErrNoModelConfig
		}
		docIDs, err := tx.IndexedDocumentIDs(ctx, b.ID)
		if err != nil {
			return err
		}
		if len(docIDs) == 0 {
			return ErrNoDocuments
		}

		prior, err := tx.MessagesByConversation(ctx, conversationID)
		if err != nil {
			return err
		}
		history := make([]rag.Turn, 0, len(prior))
		for _, m := range prior {
			history = append(history, rag.Turn{Role: string(m.Role), Content: m.Content})
		}

		result, err = s.rag.Chat(ctx, rag.Request{
			Question:     message,
			History:      history,
			Scope:        vectorstore.Scope{DocumentIDs: docIDs},
			SystemPrompt: b.SystemPrompt,
			Model: rag.ModelConfig{
				Provider:    b.ModelProvider,
				Model:       b.ModelName,
				Temperature: b.Temperature,
				MaxTokens:   b.MaxTokens,
			},
			UserID: userID,
		}, s.meter.WithStore(tx))
		if err != nil {
			return err
		}

		chunkIDs := make([]string, 0, len(result.Sources))
		for _, c := range result.Sources {
			chunkIDs = append(chunkIDs, c.ID)
		}

		if err := tx.AppendMessage(ctx, store.Message{
			ConversationID: conversationID,
			Role:           store.RoleUser,
			Content:        message,
		}); err != nil {
			return err
		}
		return tx.AppendMessage(ctx, store.Message{
			ConversationID: conversationID,
			Role:           store.RoleAssistant,
			Content:        result.Answer,
			ChunkIDs:       chunkIDs,
		})
	})
	if err != nil {
		return rag.Result{}, err
	}
	return result, nil
}

// List returns a page of the user's conversations, most recently active
// first. page is 1-based; pageSize falls back to the default when out of
// range.
func (s *Service) List(ctx context.Context, userID string, page, pageSize int) ([]store.Conversation, error) {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if page < 1 {
		page = 1
	}
	return s.store.ListConversations(ctx, userID, pageSize, (page-1)*pageSize)
}

// Messages returns the conversation's messages with their sources hydrated.
// Only the owner may read them.
func (s *Service) Messages(ctx context.Context, userID, conversationID string) ([]rag.HydratedMessage, error) {
	conv, err := s.store.ConversationByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.UserID != userID {
		return nil, store.ErrNotFound
	}
	msgs, err := s.store.MessagesByConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return s.rag.HydrateMessages(ctx, msgs)
}
