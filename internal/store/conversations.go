package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Conversation is a per-user chat thread against one chatbot.
type Conversation struct {
	// ID is the conversation's opaque identifier.
	ID string
	// UserID is the owning user. Only the owner may read or append.
	UserID string
	// ChatbotID is the chatbot this conversation runs against.
	ChatbotID string
	// Title is the display title, set from the chatbot name at creation.
	Title string
	// CreatedAt is when the conversation was created.
	CreatedAt time.Time
	// UpdatedAt is when the conversation row was last touched.
	UpdatedAt time.Time
	// LastActiveAt is the newest message timestamp, or UpdatedAt when the
	// conversation is empty. Populated by ListConversations only.
	LastActiveAt time.Time
}

// Message is one turn in a conversation. The log is append-only: no edits,
// no deletes, non-decreasing timestamps.
type Message struct {
	// ID is the message's monotonically increasing row id.
	ID int64
	// ConversationID is the owning conversation.
	ConversationID string
	// Role is the message author.
	Role Role
	// Content is the message text.
	Content string
	// ChunkIDs are the retrieval sources an assistant message was grounded
	// on. Only references are stored, never the chunk text itself.
	ChunkIDs []string
	// CreatedAt is when the message was persisted.
	CreatedAt time.Time
}

// CreateConversation inserts an empty conversation and returns it with a
// fresh id.
func (s *Store) CreateConversation(ctx context.Context, c Conversation) (Conversation, error) {
	c.ID = uuid.NewString()
	ts := now()
	c.CreatedAt = time.Unix(ts, 0)
	c.UpdatedAt = c.CreatedAt

	const q = `INSERT INTO conversations (id, user_id, chatbot_id, title, created_at, updated_at)
    VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := s.q.ExecContext(ctx, q, c.ID, c.UserID, c.ChatbotID, c.Title, ts, ts); err != nil {
		return Conversation{}, fmt.Errorf("store: create conversation: %w", err)
	}
	return c, nil
}

// ConversationByID returns the conversation with the given id, or ErrNotFound.
func (s *Store) ConversationByID(ctx context.Context, id string) (Conversation, error) {
	const q = `SELECT id, user_id, chatbot_id, title, created_at, updated_at
    FROM conversations WHERE id = ?`

	var c Conversation
	var created, updated int64
	err := s.q.QueryRowContext(ctx, q, id).Scan(&c.ID, &c.UserID, &c.ChatbotID, &c.Title, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Conversation{}, ErrNotFound
	}
	if err != nil {
		return Conversation{}, fmt.Errorf("store: conversation by id: %w", err)
	}
	c.CreatedAt = time.Unix(created, 0)
	c.UpdatedAt = time.Unix(updated, 0)
	return c, nil
}

// AppendMessage persists a single message and touches the conversation's
// update time.
func (s *Store) AppendMessage(ctx context.Context, m Message) error {
	var chunkIDs any // NULL when the message carries no source references
	if len(m.ChunkIDs) > 0 {
		b, err := json.Marshal(m.ChunkIDs)
		if err != nil {
			return fmt.Errorf("store: marshal chunk ids: %w", err)
		}
		chunkIDs = string(b)
	}
	ts := now()

	const q = `INSERT INTO messages (conversation_id, role, content, chunk_ids, created_at)
    VALUES (?, ?, ?, ?, ?)`
	if _, err := s.q.ExecContext(ctx, q, m.ConversationID, string(m.Role), m.Content, chunkIDs, ts); err != nil {
		return fmt.Errorf("store: append message: %w", err)
	}

	const touch = `UPDATE conversations SET updated_at = ? WHERE id = ?`
	if _, err := s.q.ExecContext(ctx, touch, ts, m.ConversationID); err != nil {
		return fmt.Errorf("store: touch conversation: %w", err)
	}
	return nil
}

// MessagesByConversation returns the conversation's messages oldest-first.
func (s *Store) MessagesByConversation(ctx context.Context, conversationID string) ([]Message, error) {
	const q = `SELECT id, conversation_id, role, content, chunk_ids, created_at
    FROM messages WHERE conversation_id = ? ORDER BY created_at ASC, id ASC`

	rows, err := s.q.QueryContext(ctx, q, conversationID)
	if err != nil {
		return nil, fmt.Errorf("store: messages: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		var role string
		var chunkIDs sql.NullString
		var ts int64
		if err := rows.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &chunkIDs, &ts); err != nil {
			return nil, fmt.Errorf("store: messages scan: %w", err)
		}
		m.Role = Role(role)
		m.CreatedAt = time.Unix(ts, 0)
		if chunkIDs.Valid && chunkIDs.String != "" {
			if err := json.Unmarshal([]byte(chunkIDs.String), &m.ChunkIDs); err != nil {
				return nil, fmt.Errorf("store: unmarshal chunk ids: %w", err)
			}
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: messages rows: %w", err)
	}
	return msgs, nil
}

// ListConversations returns a page of the user's conversations sorted by
// most-recent-activity descending. A conversation's last-active time is its
// newest message timestamp, or its own update time when it has no messages.
func (s *Store) ListConversations(ctx context.Context, userID string, limit, offset int) ([]Conversation, error) {
	const q = `
SELECT c.id, c.user_id, c.chatbot_id, c.title, c.created_at, c.updated_at,
       COALESCE((SELECT MAX(m.created_at) FROM messages m WHERE m.conversation_id = c.id), c.updated_at) AS last_active
FROM   conversations c
WHERE  c.user_id = ?
ORDER  BY last_active DESC, c.id DESC
LIMIT  ? OFFSET ?`

	rows, err := s.q.QueryContext(ctx, q, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("store: list conversations: %w", err)
	}
	defer rows.Close()

	var convs []Conversation
	for rows.Next() {
		var c Conversation
		var created, updated, lastActive int64
		if err := rows.Scan(&c.ID, &c.UserID, &c.ChatbotID, &c.Title, &created, &updated, &lastActive); err != nil {
			return nil, fmt.Errorf("store: list conversations scan: %w", err)
		}
		c.CreatedAt = time.Unix(created, 0)
		c.UpdatedAt = time.Unix(updated, 0)
		c.LastActiveAt = time.Unix(lastActive, 0)
		convs = append(convs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list conversations rows: %w", err)
	}
	return convs, nil
}
