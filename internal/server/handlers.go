package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/chatdocs/chatdocs/internal/quota"
	"github.com/chatdocs/chatdocs/internal/store"
	"github.com/chatdocs/chatdocs/internal/vectorstore"
)

// handleCreateChatbot handles POST /api/chatbots. The quota middleware has
// already pre-checked admission; the check runs again here, inside the
// creation transaction, so concurrent requests at the limit cannot both
// commit.
func (s *Server) handleCreateChatbot(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == "" {
		return
	}

	var req createChatbotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	var b store.Chatbot
	err := s.store.InTx(r.Context(), func(tx *store.Store) error {
		if err := quota.CheckChatbot(r.Context(), tx, user); err != nil {
			return err
		}
		var err error
		b, err = tx.CreateChatbot(r.Context(), store.Chatbot{
			UserID:        user,
			Name:          req.Name,
			IsPublic:      req.IsPublic,
			SystemPrompt:  req.SystemPrompt,
			ModelProvider: req.ModelProvider,
			ModelName:     req.ModelName,
			Temperature:   req.Temperature,
			MaxTokens:     req.MaxTokens,
		})
		return err
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, chatbotResponse{
		ID:            b.ID,
		Name:          b.Name,
		IsPublic:      b.IsPublic,
		ModelProvider: b.ModelProvider,
		ModelName:     b.ModelName,
		CreatedAt:     b.CreatedAt,
	})
}

// handleCreateDocument handles POST /api/chatbots/{id}/documents. The
// document record is created pending inside the admission transaction, then
// indexed outside it; an indexing failure leaves the record marked failed so
// it never enters the retrieval scope.
func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == "" {
		return
	}
	chatbotID := r.PathValue("id")

	b, err := s.store.ChatbotByID(r.Context(), chatbotID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	// Only the owner may upload documents. A shared or public chatbot still
	// reads as not-found here so callers cannot probe ownership.
	if b.UserID != user {
		writeDomainError(w, r, store.ErrNotFound)
		return
	}

	var req createDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	var doc store.Document
	err = s.store.InTx(r.Context(), func(tx *store.Store) error {
		if err := quota.CheckDocument(r.Context(), tx, user, req.Chunks); err != nil {
			return err
		}
		var err error
		doc, err = tx.CreateDocument(r.Context(), store.Document{
			ChatbotID: chatbotID,
			UserID:    user,
			Name:      req.Name,
		})
		return err
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	meta := make([]vectorstore.ChunkMeta, len(req.Chunks))
	for i := range req.Chunks {
		meta[i] = vectorstore.ChunkMeta{DocumentID: doc.ID, UserID: user, ChunkIndex: i}
	}
	res, err := s.indexer.IndexDocuments(r.Context(), req.Chunks, meta)
	if err != nil {
		if serr := s.store.SetDocumentStatus(r.Context(), doc.ID, store.DocumentFailed); serr != nil {
			s.log.Error("mark document failed",
				slog.String("document_id", doc.ID), slog.String("error", serr.Error()))
		}
		writeDomainError(w, r, fmt.Errorf("index document %s: %w", doc.ID, err))
		return
	}
	if err := s.store.SetDocumentStatus(r.Context(), doc.ID, store.DocumentIndexed); err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, createDocumentResponse{
		ID:         doc.ID,
		Status:     store.DocumentIndexed,
		ChunkCount: res.Count,
	})
}

// handleCreateShares handles POST /api/chatbots/{id}/shares.
func (s *Server) handleCreateShares(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == "" {
		return
	}
	chatbotID := r.PathValue("id")

	b, err := s.store.ChatbotByID(r.Context(), chatbotID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if b.UserID != user {
		writeDomainError(w, r, store.ErrNotFound)
		return
	}

	var req createSharesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Recipients) == 0 {
		writeError(w, http.StatusBadRequest, "recipients are required")
		return
	}

	err = s.store.InTx(r.Context(), func(tx *store.Store) error {
		if err := quota.CheckShare(r.Context(), tx, user, chatbotID, req.Recipients); err != nil {
			return err
		}
		return tx.CreateShares(r.Context(), chatbotID, req.Recipients)
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"chatbot_id": chatbotID,
		"recipients": req.Recipients,
	})
}

// handleStartConversation handles POST /api/conversations.
func (s *Server) handleStartConversation(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == "" {
		return
	}

	var req startConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ChatbotID == "" {
		writeError(w, http.StatusBadRequest, "chatbot_id is required")
		return
	}

	conv, err := s.conversations.Start(r.Context(), user, req.ChatbotID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, conversationResponse{
		ID:           conv.ID,
		ChatbotID:    conv.ChatbotID,
		Title:        conv.Title,
		LastActiveAt: conv.UpdatedAt,
	})
}

// handleListConversations handles GET /api/conversations. page and page_size
// query parameters paginate; out-of-range values fall back to defaults.
func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == "" {
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))

	convs, err := s.conversations.List(r.Context(), user, page, pageSize)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	out := make([]conversationResponse, 0, len(convs))
	for _, c := range convs {
		out = append(out, conversationResponse{
			ID:           c.ID,
			ChatbotID:    c.ChatbotID,
			Title:        c.Title,
			LastActiveAt: c.LastActiveAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleChat handles POST /api/conversations/{id}/messages, running one full
// chat turn.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == "" {
		return
	}
	conversationID := r.PathValue("id")

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	start := time.Now()
	result, err := s.conversations.Chat(r.Context(), user, conversationID, req.Message)
	s.metrics.observeChat(time.Since(start), err)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		Answer:  result.Answer,
		Sources: sourcesFromChunks(result.Sources),
	})
}

// handleMessages handles GET /api/conversations/{id}/messages, returning the
// conversation history with each assistant message's sources hydrated.
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == "" {
		return
	}
	conversationID := r.PathValue("id")

	msgs, err := s.conversations.Messages(r.Context(), user, conversationID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	out := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageResponse{
			Role:      string(m.Role),
			Content:   m.Content,
			Sources:   sourcesFromChunks(m.Sources),
			CreatedAt: m.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// sourcesFromChunks maps retrieved chunks to their response shape. Returns
// nil for an empty slice so assistant sources marshal as absent, not [].
func sourcesFromChunks(chunks []vectorstore.Chunk) []sourceResponse {
	if len(chunks) == 0 {
		return nil
	}
	out := make([]sourceResponse, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, sourceResponse{
			ChunkID:        c.ID,
			DocumentID:     c.DocumentID,
			Text:           c.Text,
			ChunkIndex:     c.ChunkIndex,
			CharacterCount: c.CharacterCount,
			WordCount:      c.WordCount,
		})
	}
	return out
}
