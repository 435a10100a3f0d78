package quota

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/chatdocs/chatdocs/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func subscribe(t *testing.T, st *store.Store, userID string, q store.UsageQuota) {
	t.Helper()
	if _, err := st.CreateSubscription(context.Background(), store.Subscription{UserID: userID}, q); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
}

func words(n int) string {
	return strings.TrimSpace(strings.Repeat("word ", n))
}

func Test_CheckChatbot_Limit(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()
	subscribe(t, st, "u1", store.UsageQuota{MaxChatbotCount: 3, MaxDocumentCount: 10, MaxWordCountPerDocument: 1000, MaxShareCount: 5})

	// At 2 owned the 3rd is allowed.
	for i := 0; i < 2; i++ {
		if _, err := st.CreateChatbot(ctx, store.Chatbot{UserID: "u1", Name: "b"}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if err := CheckChatbot(ctx, st, "u1"); err != nil {
		t.Fatalf("3rd chatbot should be admitted: %v", err)
	}

	// At 3 owned the 4th is rejected, naming limit and usage.
	if _, err := st.CreateChatbot(ctx, store.Chatbot{UserID: "u1", Name: "b"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	err := CheckChatbot(ctx, st, "u1")
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("want quota denial, got %v", err)
	}
	var le *LimitError
	if !errors.As(err, &le) || le.Limit != 3 || le.Current != 3 {
		t.Errorf("denial detail: %+v", le)
	}
	if !strings.Contains(err.Error(), "3 of 3") {
		t.Errorf("denial must name limit and usage: %q", err.Error())
	}
}

func Test_CheckChatbot_NoSubscription(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)

	if err := CheckChatbot(context.Background(), st, "u1"); !errors.Is(err, ErrNoSubscription) {
		t.Fatalf("want ErrNoSubscription, got %v", err)
	}
}

func Test_CheckDocument_WordTolerance(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()
	subscribe(t, st, "u1", store.UsageQuota{MaxChatbotCount: 3, MaxDocumentCount: 10, MaxWordCountPerDocument: 1000, MaxShareCount: 5})

	// 1050 words is exactly 5% over the nominal cap — admitted.
	if err := CheckDocument(ctx, st, "u1", []string{words(500), words(550)}); err != nil {
		t.Errorf("1050 words should pass at limit 1000: %v", err)
	}

	// 1060 words is 6% over — rejected.
	err := CheckDocument(ctx, st, "u1", []string{words(1060)})
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("1060 words should fail at limit 1000, got %v", err)
	}
	var le *LimitError
	if !errors.As(err, &le) || le.Current != 1060 || le.Limit != 1000 {
		t.Errorf("denial detail: %+v", le)
	}
}

func Test_CheckDocument_EmptyContentIsBadRequest(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()
	subscribe(t, st, "u1", store.UsageQuota{MaxChatbotCount: 3, MaxDocumentCount: 10, MaxWordCountPerDocument: 1000, MaxShareCount: 5})

	for _, contents := range [][]string{nil, {}, {""}, {"   ", "\n"}} {
		err := CheckDocument(ctx, st, "u1", contents)
		if !errors.Is(err, ErrEmptyDocument) {
			t.Errorf("contents %q: want ErrEmptyDocument, got %v", contents, err)
		}
		if errors.Is(err, ErrQuotaExceeded) {
			t.Errorf("empty content must not classify as a quota denial")
		}
	}
}

func Test_CheckDocument_CountLimit(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()
	subscribe(t, st, "u1", store.UsageQuota{MaxChatbotCount: 3, MaxDocumentCount: 1, MaxWordCountPerDocument: 1000, MaxShareCount: 5})

	b, _ := st.CreateChatbot(ctx, store.Chatbot{UserID: "u1", Name: "b"})
	if _, err := st.CreateDocument(ctx, store.Document{ChatbotID: b.ID, UserID: "u1", Name: "one"}); err != nil {
		t.Fatalf("create document: %v", err)
	}

	if err := CheckDocument(ctx, st, "u1", []string{words(10)}); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("want document count denial, got %v", err)
	}
}

func Test_CheckShare_AggregateFootprint(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()
	subscribe(t, st, "u1", store.UsageQuota{MaxChatbotCount: 5, MaxDocumentCount: 10, MaxWordCountPerDocument: 1000, MaxShareCount: 4})

	b1, _ := st.CreateChatbot(ctx, store.Chatbot{UserID: "u1", Name: "a"})
	b2, _ := st.CreateChatbot(ctx, store.Chatbot{UserID: "u1", Name: "b"})
	if err := st.CreateShares(ctx, b1.ID, []string{"alice", "bob"}); err != nil {
		t.Fatalf("seed shares: %v", err)
	}

	// 2 seats used + 2 new on another chatbot = 4 = limit: allowed.
	if err := CheckShare(ctx, st, "u1", b2.ID, []string{"carol", "dave"}); err != nil {
		t.Errorf("filling the quota exactly should be allowed: %v", err)
	}

	// 2 used + 3 new exceeds the limit even though this chatbot has none.
	err := CheckShare(ctx, st, "u1", b2.ID, []string{"carol", "dave", "erin"})
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("want aggregate share denial, got %v", err)
	}

	// Duplicate and already-shared recipients do not count as new seats.
	if err := CheckShare(ctx, st, "u1", b1.ID, []string{"alice", "alice", "bob", "carol", "dave"}); err != nil {
		t.Errorf("only carol and dave are new seats: %v", err)
	}
}

func Test_ConcurrentAdmissionAtLimitMinusOne(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()
	subscribe(t, st, "u1", store.UsageQuota{MaxChatbotCount: 3, MaxDocumentCount: 10, MaxWordCountPerDocument: 1000, MaxShareCount: 5})

	// Bring the user to limit−1.
	for i := 0; i < 2; i++ {
		if _, err := st.CreateChatbot(ctx, store.Chatbot{UserID: "u1", Name: "b"}); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	// Two concurrent creations each run the admission check inside their own
	// creation transaction. At most one may commit.
	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = st.InTx(ctx, func(tx *store.Store) error {
				if err := CheckChatbot(ctx, tx, "u1"); err != nil {
					return err
				}
				_, err := tx.CreateChatbot(ctx, store.Chatbot{UserID: "u1", Name: "race"})
				return err
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
		} else if !errors.Is(err, ErrQuotaExceeded) {
			t.Errorf("unexpected failure mode: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("exactly one concurrent creation may commit, got %d", succeeded)
	}

	n, err := st.CountChatbotsByUser(ctx, "u1")
	if err != nil || n != 3 {
		t.Errorf("final count: n=%d err=%v, want 3", n, err)
	}
}
