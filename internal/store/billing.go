package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Subscription status values.
const (
	// SubscriptionActive is the one status that grants quota.
	SubscriptionActive = "active"
	// SubscriptionCanceled is a subscription the user ended.
	SubscriptionCanceled = "canceled"
	// SubscriptionExpired is a subscription that lapsed.
	SubscriptionExpired = "expired"
)

// Subscription is a user's billing subscription. A user has at most one
// active subscription at a time.
type Subscription struct {
	// ID is the subscription's opaque identifier.
	ID string
	// UserID is the subscribing user.
	UserID string
	// Status is one of the Subscription* constants.
	Status string
	// CreatedAt is when the subscription was created.
	CreatedAt time.Time
}

// UsageQuota is the limit snapshot copied from a plan onto a subscription at
// creation time. It never changes afterwards, even if the plan does.
type UsageQuota struct {
	// SubscriptionID is the owning subscription; exactly one snapshot each.
	SubscriptionID string
	// MaxChatbotCount is the maximum number of chatbots the user may own.
	MaxChatbotCount int
	// MaxDocumentCount is the maximum number of documents the user may own.
	MaxDocumentCount int
	// MaxWordCountPerDocument caps the word count of a single document's
	// chunk contents (a fixed 5% tolerance is applied at admission time).
	MaxWordCountPerDocument int
	// MaxShareCount caps the aggregate shared seats across all the user's
	// chatbots.
	MaxShareCount int
}

// CreateSubscription inserts a subscription with its quota snapshot in one
// shot. The snapshot is the plan's limits frozen at creation time.
func (s *Store) CreateSubscription(ctx context.Context, sub Subscription, quota UsageQuota) (Subscription, error) {
	sub.ID = uuid.NewString()
	if sub.Status == "" {
		sub.Status = SubscriptionActive
	}
	ts := now()
	sub.CreatedAt = time.Unix(ts, 0)

	const q = `INSERT INTO subscriptions (id, user_id, status, created_at) VALUES (?, ?, ?, ?)`
	if _, err := s.q.ExecContext(ctx, q, sub.ID, sub.UserID, sub.Status, ts); err != nil {
		return Subscription{}, fmt.Errorf("store: create subscription: %w", err)
	}

	const qq = `INSERT INTO usage_quotas
    (subscription_id, max_chatbot_count, max_document_count, max_word_count_per_document, max_share_count)
    VALUES (?, ?, ?, ?, ?)`
	if _, err := s.q.ExecContext(ctx, qq, sub.ID,
		quota.MaxChatbotCount, quota.MaxDocumentCount, quota.MaxWordCountPerDocument, quota.MaxShareCount); err != nil {
		return Subscription{}, fmt.Errorf("store: create quota snapshot: %w", err)
	}
	return sub, nil
}

// ActiveSubscriptionByUser returns the user's single active subscription, or
// ErrNotFound when none exists.
func (s *Store) ActiveSubscriptionByUser(ctx context.Context, userID string) (Subscription, error) {
	const q = `SELECT id, user_id, status, created_at
    FROM subscriptions WHERE user_id = ? AND status = ?
    ORDER BY created_at DESC LIMIT 1`

	var sub Subscription
	var ts int64
	err := s.q.QueryRowContext(ctx, q, userID, SubscriptionActive).Scan(&sub.ID, &sub.UserID, &sub.Status, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return Subscription{}, ErrNotFound
	}
	if err != nil {
		return Subscription{}, fmt.Errorf("store: active subscription: %w", err)
	}
	sub.CreatedAt = time.Unix(ts, 0)
	return sub, nil
}

// QuotaBySubscription returns the subscription's quota snapshot, or
// ErrNotFound when the snapshot is missing.
func (s *Store) QuotaBySubscription(ctx context.Context, subscriptionID string) (UsageQuota, error) {
	const q = `SELECT subscription_id, max_chatbot_count, max_document_count, max_word_count_per_document, max_share_count
    FROM usage_quotas WHERE subscription_id = ?`

	var uq UsageQuota
	err := s.q.QueryRowContext(ctx, q, subscriptionID).Scan(
		&uq.SubscriptionID, &uq.MaxChatbotCount, &uq.MaxDocumentCount,
		&uq.MaxWordCountPerDocument, &uq.MaxShareCount)
	if errors.Is(err, sql.ErrNoRows) {
		return UsageQuota{}, ErrNotFound
	}
	if err != nil {
		return UsageQuota{}, fmt.Errorf("store: quota snapshot: %w", err)
	}
	return uq, nil
}

// UsageEvent is one row of the append-only usage ledger.
type UsageEvent struct {
	// ID is the event's monotonically increasing row id.
	ID int64
	// UserID is the user the usage is attributed to.
	UserID string
	// ModelName is the model that incurred the usage.
	ModelName string
	// Provider is the backend that served the model.
	Provider string
	// TokenCount is the estimated token count of the event.
	TokenCount int
	// EventType classifies the usage (LLM_INPUT, LLM_OUTPUT, ...).
	EventType string
	// CreatedAt is when the event was recorded.
	CreatedAt time.Time
}

// InsertUsageEvent appends one event to the usage ledger. The ledger is
// insert-only; there are no update or delete operations.
func (s *Store) InsertUsageEvent(ctx context.Context, e UsageEvent) error {
	const q = `INSERT INTO usage_events (user_id, model_name, provider, token_count, event_type, created_at)
    VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := s.q.ExecContext(ctx, q, e.UserID, e.ModelName, e.Provider, e.TokenCount, e.EventType, now()); err != nil {
		return fmt.Errorf("store: insert usage event: %w", err)
	}
	return nil
}

// UsageEventsByUser returns the user's usage events oldest-first.
func (s *Store) UsageEventsByUser(ctx context.Context, userID string) ([]UsageEvent, error) {
	const q = `SELECT id, user_id, model_name, provider, token_count, event_type, created_at
    FROM usage_events WHERE user_id = ? ORDER BY id ASC`

	rows, err := s.q.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("store: usage events: %w", err)
	}
	defer rows.Close()

	var events []UsageEvent
	for rows.Next() {
		var e UsageEvent
		var ts int64
		if err := rows.Scan(&e.ID, &e.UserID, &e.ModelName, &e.Provider, &e.TokenCount, &e.EventType, &ts); err != nil {
			return nil, fmt.Errorf("store: usage events scan: %w", err)
		}
		e.CreatedAt = time.Unix(ts, 0)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: usage events rows: %w", err)
	}
	return events, nil
}
