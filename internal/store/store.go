// Package store provides the SQLite-backed relational store for chatbots,
// documents, shares, conversations, messages, subscriptions, quota snapshots,
// and the append-only usage ledger. Vector data lives in qdrant; this store
// holds everything else.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// ErrNotFound is returned when a requested record does not exist or is not
// visible to the caller. Callers deliberately cannot distinguish the two.
var ErrNotFound = errors.New("store: not found")

// Role identifies the author of a conversation message.
type Role string

const (
	// RoleUser is a message sent by the end user.
	RoleUser Role = "user"
	// RoleAssistant is a message produced by the model.
	RoleAssistant Role = "assistant"
	// RoleSystem is an injected instruction message.
	RoleSystem Role = "system"
)

// Document indexing states.
const (
	// DocumentPending is a document whose vectors have not been written yet.
	DocumentPending = "pending"
	// DocumentIndexed is a document whose vectors are durably stored.
	DocumentIndexed = "indexed"
	// DocumentFailed is a document whose vector indexing failed. Failed
	// documents stay visible to their owner rather than silently vanishing.
	DocumentFailed = "failed"
)

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx, so
// every query method works identically inside and outside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the SQLite-backed store. The zero value is not usable; construct
// with Open. Store is safe for concurrent use.
type Store struct {
	// db is the underlying connection pool.
	db *sql.DB
	// q is the active querier: db normally, or a transaction via WithTx.
	q querier
}

// DefaultDBPath returns the default database path, ~/.chatdocs/chatdocs.db,
// creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".chatdocs")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "chatdocs.db"), nil
}

// Open opens (or creates) a Store at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*Store, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent
	// writes. This also serializes admission checks that run inside creation
	// transactions.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, q: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// WithTx returns a shallow copy of s whose queries run on tx. The copy shares
// the schema and connection pool; committing or rolling back tx is the
// caller's responsibility.
func (s *Store) WithTx(tx *sql.Tx) *Store {
	c := *s
	c.q = tx
	return &c
}

// InTx runs fn with a transaction-bound copy of the store, committing on nil
// and rolling back on error or panic. Nested calls are not supported.
func (s *Store) InTx(ctx context.Context, fn func(*Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(s.WithTx(tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// migrate creates the schema if it does not already exist.
func (s *Store) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS chatbots (
    id             TEXT    PRIMARY KEY,
    user_id        TEXT    NOT NULL,
    name           TEXT    NOT NULL,
    is_public      INTEGER NOT NULL DEFAULT 0,
    system_prompt  TEXT    NOT NULL DEFAULT '',
    model_provider TEXT    NOT NULL DEFAULT '',
    model_name     TEXT    NOT NULL DEFAULT '',
    temperature    REAL    NOT NULL DEFAULT 0,
    max_tokens     INTEGER NOT NULL DEFAULT 0,
    created_at     INTEGER NOT NULL,  -- Unix timestamp (seconds)
    updated_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chatbots_user ON chatbots (user_id);

CREATE TABLE IF NOT EXISTS documents (
    id         TEXT    PRIMARY KEY,
    chatbot_id TEXT    NOT NULL REFERENCES chatbots(id),
    user_id    TEXT    NOT NULL,
    name       TEXT    NOT NULL,
    status     TEXT    NOT NULL CHECK(status IN ('pending','indexed','failed')),
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_chatbot ON documents (chatbot_id);
CREATE INDEX IF NOT EXISTS idx_documents_user ON documents (user_id);

CREATE TABLE IF NOT EXISTS chatbot_shares (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    chatbot_id TEXT    NOT NULL REFERENCES chatbots(id),
    recipient  TEXT    NOT NULL,
    created_at INTEGER NOT NULL,
    UNIQUE (chatbot_id, recipient)
);

CREATE TABLE IF NOT EXISTS conversations (
    id         TEXT    PRIMARY KEY,
    user_id    TEXT    NOT NULL,
    chatbot_id TEXT    NOT NULL REFERENCES chatbots(id),
    title      TEXT    NOT NULL,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations (user_id);

CREATE TABLE IF NOT EXISTS messages (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    conversation_id TEXT    NOT NULL REFERENCES conversations(id),
    role            TEXT    NOT NULL CHECK(role IN ('user','assistant','system')),
    content         TEXT    NOT NULL,
    chunk_ids       TEXT,              -- JSON array of chunk ids; NULL when none
    created_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation_created
    ON messages (conversation_id, created_at);

CREATE TABLE IF NOT EXISTS subscriptions (
    id         TEXT    PRIMARY KEY,
    user_id    TEXT    NOT NULL,
    status     TEXT    NOT NULL,       -- 'active' | 'canceled' | 'expired'
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_subscriptions_user ON subscriptions (user_id, status);

CREATE TABLE IF NOT EXISTS usage_quotas (
    subscription_id             TEXT    PRIMARY KEY REFERENCES subscriptions(id),
    max_chatbot_count           INTEGER NOT NULL,
    max_document_count          INTEGER NOT NULL,
    max_word_count_per_document INTEGER NOT NULL,
    max_share_count             INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS usage_events (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id     TEXT    NOT NULL,
    model_name  TEXT    NOT NULL,
    provider    TEXT    NOT NULL,
    token_count INTEGER NOT NULL,
    event_type  TEXT    NOT NULL,
    created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_usage_events_user ON usage_events (user_id, created_at);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Close releases the database connection pool.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}

// Ping verifies the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

// now returns the current Unix timestamp in seconds. Indirect for tests.
var now = func() int64 { return time.Now().Unix() }
