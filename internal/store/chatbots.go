package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Chatbot is a user-owned document collection with its generation settings.
type Chatbot struct {
	// ID is the chatbot's opaque identifier.
	ID string
	// UserID is the owning user.
	UserID string
	// Name is the display name, also used to title new conversations.
	Name string
	// IsPublic marks the chatbot as usable by any authenticated user.
	IsPublic bool
	// SystemPrompt overrides the default answer instructions when non-empty.
	SystemPrompt string
	// ModelProvider selects the generation backend (empty inherits the
	// deployment default).
	ModelProvider string
	// ModelName selects the generation model (empty inherits the default).
	ModelName string
	// Temperature overrides generation temperature when > 0.
	Temperature float32
	// MaxTokens overrides the generation token cap when > 0.
	MaxTokens int
	// CreatedAt is when the chatbot was created.
	CreatedAt time.Time
	// UpdatedAt is when the chatbot was last modified.
	UpdatedAt time.Time
}

// Document is the relational record of an uploaded document. Its chunk
// vectors live in the vector store under the same document id.
type Document struct {
	// ID is the document's opaque identifier.
	ID string
	// ChatbotID is the chatbot the document belongs to.
	ChatbotID string
	// UserID is the owning user.
	UserID string
	// Name is the display name.
	Name string
	// Status is one of DocumentPending, DocumentIndexed, DocumentFailed.
	Status string
	// CreatedAt is when the document record was created.
	CreatedAt time.Time
}

// CreateChatbot inserts a new chatbot and returns it with a fresh id.
func (s *Store) CreateChatbot(ctx context.Context, b Chatbot) (Chatbot, error) {
	b.ID = uuid.NewString()
	ts := now()
	b.CreatedAt = time.Unix(ts, 0)
	b.UpdatedAt = b.CreatedAt

	const q = `INSERT INTO chatbots
    (id, user_id, name, is_public, system_prompt, model_provider, model_name, temperature, max_tokens, created_at, updated_at)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.q.ExecContext(ctx, q,
		b.ID, b.UserID, b.Name, boolToInt(b.IsPublic), b.SystemPrompt,
		b.ModelProvider, b.ModelName, b.Temperature, b.MaxTokens, ts, ts)
	if err != nil {
		return Chatbot{}, fmt.Errorf("store: create chatbot: %w", err)
	}
	return b, nil
}

// ChatbotByID returns the chatbot with the given id, or ErrNotFound.
func (s *Store) ChatbotByID(ctx context.Context, id string) (Chatbot, error) {
	const q = `SELECT id, user_id, name, is_public, system_prompt, model_provider, model_name, temperature, max_tokens, created_at, updated_at
    FROM chatbots WHERE id = ?`

	var b Chatbot
	var isPublic int
	var created, updated int64
	err := s.q.QueryRowContext(ctx, q, id).Scan(
		&b.ID, &b.UserID, &b.Name, &isPublic, &b.SystemPrompt,
		&b.ModelProvider, &b.ModelName, &b.Temperature, &b.MaxTokens, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Chatbot{}, ErrNotFound
	}
	if err != nil {
		return Chatbot{}, fmt.Errorf("store: chatbot by id: %w", err)
	}
	b.IsPublic = isPublic != 0
	b.CreatedAt = time.Unix(created, 0)
	b.UpdatedAt = time.Unix(updated, 0)
	return b, nil
}

// CountChatbotsByUser returns the number of chatbots the user owns.
// Counts are always computed live, never cached.
func (s *Store) CountChatbotsByUser(ctx context.Context, userID string) (int, error) {
	const q = `SELECT COUNT(*) FROM chatbots WHERE user_id = ?`
	var n int
	if err := s.q.QueryRowContext(ctx, q, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count chatbots: %w", err)
	}
	return n, nil
}

// CreateDocument inserts a new document record and returns it with a fresh id.
func (s *Store) CreateDocument(ctx context.Context, d Document) (Document, error) {
	d.ID = uuid.NewString()
	if d.Status == "" {
		d.Status = DocumentPending
	}
	ts := now()
	d.CreatedAt = time.Unix(ts, 0)

	const q = `INSERT INTO documents (id, chatbot_id, user_id, name, status, created_at)
    VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := s.q.ExecContext(ctx, q, d.ID, d.ChatbotID, d.UserID, d.Name, d.Status, ts); err != nil {
		return Document{}, fmt.Errorf("store: create document: %w", err)
	}
	return d, nil
}

// SetDocumentStatus updates a document's indexing status.
func (s *Store) SetDocumentStatus(ctx context.Context, id, status string) error {
	const q = `UPDATE documents SET status = ? WHERE id = ?`
	res, err := s.q.ExecContext(ctx, q, status, id)
	if err != nil {
		return fmt.Errorf("store: set document status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DocumentsByChatbot returns the chatbot's documents, newest first.
func (s *Store) DocumentsByChatbot(ctx context.Context, chatbotID string) ([]Document, error) {
	const q = `SELECT id, chatbot_id, user_id, name, status, created_at
    FROM documents WHERE chatbot_id = ? ORDER BY created_at DESC, id DESC`

	rows, err := s.q.QueryContext(ctx, q, chatbotID)
	if err != nil {
		return nil, fmt.Errorf("store: documents by chatbot: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		var ts int64
		if err := rows.Scan(&d.ID, &d.ChatbotID, &d.UserID, &d.Name, &d.Status, &ts); err != nil {
			return nil, fmt.Errorf("store: documents scan: %w", err)
		}
		d.CreatedAt = time.Unix(ts, 0)
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: documents rows: %w", err)
	}
	return docs, nil
}

// IndexedDocumentIDs returns the ids of the chatbot's successfully indexed
// documents. This is the retrieval scope for chat turns.
func (s *Store) IndexedDocumentIDs(ctx context.Context, chatbotID string) ([]string, error) {
	const q = `SELECT id FROM documents WHERE chatbot_id = ? AND status = ? ORDER BY created_at ASC, id ASC`

	rows, err := s.q.QueryContext(ctx, q, chatbotID, DocumentIndexed)
	if err != nil {
		return nil, fmt.Errorf("store: indexed document ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: indexed document ids scan: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: indexed document ids rows: %w", err)
	}
	return ids, nil
}

// CountDocumentsByUser returns the number of documents the user owns.
func (s *Store) CountDocumentsByUser(ctx context.Context, userID string) (int, error) {
	const q = `SELECT COUNT(*) FROM documents WHERE user_id = ?`
	var n int
	if err := s.q.QueryRowContext(ctx, q, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count documents: %w", err)
	}
	return n, nil
}

// CreateShares records the given recipients on a chatbot. Recipients already
// present on the chatbot are skipped silently.
func (s *Store) CreateShares(ctx context.Context, chatbotID string, recipients []string) error {
	const q = `INSERT OR IGNORE INTO chatbot_shares (chatbot_id, recipient, created_at) VALUES (?, ?, ?)`
	ts := now()
	for _, r := range recipients {
		if _, err := s.q.ExecContext(ctx, q, chatbotID, r, ts); err != nil {
			return fmt.Errorf("store: create share: %w", err)
		}
	}
	return nil
}

// IsSharedWith reports whether the chatbot has been shared with recipient.
func (s *Store) IsSharedWith(ctx context.Context, chatbotID, recipient string) (bool, error) {
	const q = `SELECT COUNT(*) FROM chatbot_shares WHERE chatbot_id = ? AND recipient = ?`
	var n int
	if err := s.q.QueryRowContext(ctx, q, chatbotID, recipient).Scan(&n); err != nil {
		return false, fmt.Errorf("store: is shared with: %w", err)
	}
	return n > 0, nil
}

// CountSharesByOwner returns the total shared seats across every chatbot the
// user owns. Share quota is evaluated against this aggregate footprint, not
// per chatbot.
func (s *Store) CountSharesByOwner(ctx context.Context, userID string) (int, error) {
	const q = `SELECT COUNT(*)
    FROM chatbot_shares s
    JOIN chatbots c ON c.id = s.chatbot_id
    WHERE c.user_id = ?`
	var n int
	if err := s.q.QueryRowContext(ctx, q, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count shares: %w", err)
	}
	return n, nil
}

// CountExistingRecipients returns how many of the given recipients are
// already shared on the chatbot, so admission can count only new seats.
func (s *Store) CountExistingRecipients(ctx context.Context, chatbotID string, recipients []string) (int, error) {
	n := 0
	for _, r := range recipients {
		shared, err := s.IsSharedWith(ctx, chatbotID, r)
		if err != nil {
			return 0, err
		}
		if shared {
			n++
		}
	}
	return n, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
