package store

import (
	"context"
	"errors"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func Test_Store_ChatbotRoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	b, err := s.CreateChatbot(ctx, Chatbot{
		UserID:        "u1",
		Name:          "Contracts Bot",
		IsPublic:      true,
		SystemPrompt:  "Answer from the contract text only.",
		ModelProvider: "ollama",
		ModelName:     "llama3",
		Temperature:   0.3,
		MaxTokens:     512,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if b.ID == "" {
		t.Fatal("expected generated id")
	}

	got, err := s.ChatbotByID(ctx, b.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Contracts Bot" || !got.IsPublic || got.ModelName != "llama3" || got.Temperature != 0.3 {
		t.Errorf("round trip mismatch: %+v", got)
	}

	if _, err := s.ChatbotByID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("want ErrNotFound, got %v", err)
	}

	n, err := s.CountChatbotsByUser(ctx, "u1")
	if err != nil || n != 1 {
		t.Errorf("count: n=%d err=%v", n, err)
	}
}

func Test_Store_DocumentLifecycle(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	b, err := s.CreateChatbot(ctx, Chatbot{UserID: "u1", Name: "b"})
	if err != nil {
		t.Fatalf("create chatbot: %v", err)
	}

	d, err := s.CreateDocument(ctx, Document{ChatbotID: b.ID, UserID: "u1", Name: "spec.pdf"})
	if err != nil {
		t.Fatalf("create document: %v", err)
	}
	if d.Status != DocumentPending {
		t.Errorf("status: got %q, want pending", d.Status)
	}

	// Pending documents are not part of the retrieval scope.
	ids, err := s.IndexedDocumentIDs(ctx, b.ID)
	if err != nil {
		t.Fatalf("indexed ids: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("pending document leaked into retrieval scope: %v", ids)
	}

	if err := s.SetDocumentStatus(ctx, d.ID, DocumentIndexed); err != nil {
		t.Fatalf("set status: %v", err)
	}
	ids, err = s.IndexedDocumentIDs(ctx, b.ID)
	if err != nil || len(ids) != 1 || ids[0] != d.ID {
		t.Errorf("indexed ids: got %v err=%v", ids, err)
	}

	// A failed document stays on record, just out of scope.
	if err := s.SetDocumentStatus(ctx, d.ID, DocumentFailed); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	docs, err := s.DocumentsByChatbot(ctx, b.ID)
	if err != nil || len(docs) != 1 || docs[0].Status != DocumentFailed {
		t.Errorf("documents: got %+v err=%v", docs, err)
	}

	if err := s.SetDocumentStatus(ctx, "missing", DocumentIndexed); !errors.Is(err, ErrNotFound) {
		t.Errorf("want ErrNotFound, got %v", err)
	}
}

func Test_Store_Shares(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	b1, _ := s.CreateChatbot(ctx, Chatbot{UserID: "owner", Name: "a"})
	b2, _ := s.CreateChatbot(ctx, Chatbot{UserID: "owner", Name: "b"})

	if err := s.CreateShares(ctx, b1.ID, []string{"alice", "bob"}); err != nil {
		t.Fatalf("shares: %v", err)
	}
	if err := s.CreateShares(ctx, b2.ID, []string{"alice"}); err != nil {
		t.Fatalf("shares: %v", err)
	}
	// Re-sharing the same recipient is a no-op, not an error.
	if err := s.CreateShares(ctx, b1.ID, []string{"alice"}); err != nil {
		t.Fatalf("duplicate share: %v", err)
	}

	n, err := s.CountSharesByOwner(ctx, "owner")
	if err != nil || n != 3 {
		t.Errorf("aggregate seats: n=%d err=%v, want 3", n, err)
	}

	shared, err := s.IsSharedWith(ctx, b1.ID, "alice")
	if err != nil || !shared {
		t.Errorf("IsSharedWith(alice): %v %v", shared, err)
	}
	shared, _ = s.IsSharedWith(ctx, b2.ID, "bob")
	if shared {
		t.Error("bob should not be shared on b2")
	}

	existing, err := s.CountExistingRecipients(ctx, b1.ID, []string{"alice", "carol"})
	if err != nil || existing != 1 {
		t.Errorf("existing recipients: n=%d err=%v, want 1", existing, err)
	}
}

func Test_Store_MessagesAndListing(t *testing.T) {
	// Stubs the clock; must not run in parallel with other tests in this file.
	base := int64(1_700_000_000)
	tick := base
	orig := now
	now = func() int64 { tick++; return tick }
	t.Cleanup(func() { now = orig })

	s := newTestStore(t)
	ctx := context.Background()

	b, _ := s.CreateChatbot(ctx, Chatbot{UserID: "u1", Name: "bot"})
	older, err := s.CreateConversation(ctx, Conversation{UserID: "u1", ChatbotID: b.ID, Title: "bot"})
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	newer, _ := s.CreateConversation(ctx, Conversation{UserID: "u1", ChatbotID: b.ID, Title: "bot"})

	// A message in the older conversation makes it the most recently active.
	if err := s.AppendMessage(ctx, Message{ConversationID: older.ID, Role: RoleUser, Content: "hello"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.AppendMessage(ctx, Message{
		ConversationID: older.ID,
		Role:           RoleAssistant,
		Content:        "hi",
		ChunkIDs:       []string{"c1", "c2"},
	}); err != nil {
		t.Fatalf("append: %v", err)
	}

	msgs, err := s.MessagesByConversation(ctx, older.ID)
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("want 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != RoleUser || msgs[1].Role != RoleAssistant {
		t.Errorf("order: %v then %v", msgs[0].Role, msgs[1].Role)
	}
	if len(msgs[0].ChunkIDs) != 0 {
		t.Errorf("user message should carry no chunk ids: %v", msgs[0].ChunkIDs)
	}
	if len(msgs[1].ChunkIDs) != 2 || msgs[1].ChunkIDs[0] != "c1" {
		t.Errorf("assistant chunk ids: %v", msgs[1].ChunkIDs)
	}
	if msgs[1].CreatedAt.Before(msgs[0].CreatedAt) {
		t.Error("timestamps must be non-decreasing")
	}

	convs, err := s.ListConversations(ctx, "u1", 10, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(convs) != 2 {
		t.Fatalf("want 2 conversations, got %d", len(convs))
	}
	// older has the newest message, so it sorts first; newer (empty) falls
	// back to its own update time.
	if convs[0].ID != older.ID || convs[1].ID != newer.ID {
		t.Errorf("activity order: got [%s %s]", convs[0].ID, convs[1].ID)
	}
	if !convs[0].LastActiveAt.After(convs[1].LastActiveAt) {
		t.Errorf("last active: %v vs %v", convs[0].LastActiveAt, convs[1].LastActiveAt)
	}
}

func Test_Store_SubscriptionAndQuota(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.ActiveSubscriptionByUser(ctx, "u1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("want ErrNotFound, got %v", err)
	}

	sub, err := s.CreateSubscription(ctx, Subscription{UserID: "u1"}, UsageQuota{
		MaxChatbotCount:         3,
		MaxDocumentCount:        10,
		MaxWordCountPerDocument: 1000,
		MaxShareCount:           5,
	})
	if err != nil {
		t.Fatalf("create subscription: %v", err)
	}
	if sub.Status != SubscriptionActive {
		t.Errorf("status: %q", sub.Status)
	}

	got, err := s.ActiveSubscriptionByUser(ctx, "u1")
	if err != nil || got.ID != sub.ID {
		t.Fatalf("active subscription: %+v err=%v", got, err)
	}

	quota, err := s.QuotaBySubscription(ctx, sub.ID)
	if err != nil {
		t.Fatalf("quota: %v", err)
	}
	if quota.MaxChatbotCount != 3 || quota.MaxWordCountPerDocument != 1000 {
		t.Errorf("quota snapshot: %+v", quota)
	}
}

func Test_Store_UsageLedger(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	for _, e := range []UsageEvent{
		{UserID: "u1", ModelName: "llama3", Provider: "ollama", TokenCount: 50, EventType: "LLM_INPUT"},
		{UserID: "u1", ModelName: "llama3", Provider: "ollama", TokenCount: 20, EventType: "LLM_OUTPUT"},
	} {
		if err := s.InsertUsageEvent(ctx, e); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	events, err := s.UsageEventsByUser(ctx, "u1")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 2 || events[0].EventType != "LLM_INPUT" || events[1].TokenCount != 20 {
		t.Errorf("ledger: %+v", events)
	}
}

func Test_Store_InTxRollback(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.InTx(ctx, func(tx *Store) error {
		if _, err := tx.CreateChatbot(ctx, Chatbot{UserID: "u1", Name: "doomed"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("want boom, got %v", err)
	}

	n, err := s.CountChatbotsByUser(ctx, "u1")
	if err != nil || n != 0 {
		t.Errorf("rollback failed: n=%d err=%v", n, err)
	}
}
