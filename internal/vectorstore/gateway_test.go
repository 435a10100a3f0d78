package vectorstore

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"

	"github.com/chatdocs/chatdocs/internal/metering"
)

// fakeEmbedder produces deterministic two-dimensional vectors.
type fakeEmbedder struct{}

func (fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}
func (fakeEmbedder) CountTokens(text string) int { return len(text)/4 + 1 }
func (fakeEmbedder) ModelName() string           { return "fake-embed" }
func (fakeEmbedder) ProviderName() string        { return "fake" }
func (fakeEmbedder) Dimensions() int             { return 2 }

// captureMeter records events and optionally fails.
type captureMeter struct {
	events []metering.Event
	err    error
}

func (c *captureMeter) CreateEvent(_ context.Context, e metering.Event) error {
	if c.err != nil {
		return c.err
	}
	c.events = append(c.events, e)
	return nil
}

func newTestGateway(meter metering.Recorder) (*Gateway, *MemoryBackend) {
	backend := NewMemoryBackend()
	return NewGateway(backend, fakeEmbedder{}, meter, slog.Default()), backend
}

func Test_Gateway_IndexThenFetchOrdered(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	meter := &captureMeter{}
	g, backend := newTestGateway(meter)

	// Deliberately out of index order; the gateway must sort on read.
	texts := []string{"third chunk", "first", "second chunk text"}
	meta := []ChunkMeta{
		{DocumentID: "d1", UserID: "u1", ChunkIndex: 2},
		{DocumentID: "d1", UserID: "u1", ChunkIndex: 0},
		{DocumentID: "d1", UserID: "u1", ChunkIndex: 1},
	}

	res, err := g.IndexDocuments(ctx, texts, meta)
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	if res.Count != 3 || len(res.IDs) != 3 {
		t.Fatalf("result: %+v", res)
	}
	for _, id := range res.IDs {
		if _, err := uuid.Parse(id); err != nil {
			t.Errorf("id %q is not a fresh uuid: %v", id, err)
		}
	}
	if backend.Dimensions != 2 {
		t.Errorf("collection sized to %d, want embedder dimensionality 2", backend.Dimensions)
	}

	chunks, err := g.ChunksByDocumentID(ctx, "d1")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(chunks) != len(texts) {
		t.Fatalf("want %d chunks, got %d", len(texts), len(chunks))
	}
	for i, c := range chunks {
		if c.ChunkIndex != i {
			t.Errorf("chunk %d out of order: index %d", i, c.ChunkIndex)
		}
	}
	// Counts are computed at read time from content.
	if chunks[0].Text != "first" || chunks[0].CharacterCount != 5 || chunks[0].WordCount != 1 {
		t.Errorf("read-time counts: %+v", chunks[0])
	}
	if chunks[2].WordCount != 2 {
		t.Errorf("word count: got %d, want 2", chunks[2].WordCount)
	}

	// One batch event, summed tokens, attributed to the first entry's user.
	if len(meter.events) != 1 {
		t.Fatalf("want 1 usage event, got %d", len(meter.events))
	}
	e := meter.events[0]
	if e.Type != metering.EventCreateDocumentIndex || e.UserID != "u1" || e.Provider != "fake" {
		t.Errorf("event: %+v", e)
	}
	wantTokens := 0
	for _, txt := range texts {
		wantTokens += len(txt)/4 + 1
	}
	if e.TokenCount != wantTokens {
		t.Errorf("token count: got %d, want %d", e.TokenCount, wantTokens)
	}
}

func Test_Gateway_DeleteIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	g, _ := newTestGateway(nil)

	_, err := g.IndexDocuments(ctx, []string{"a", "b"}, []ChunkMeta{
		{DocumentID: "d1", UserID: "u1", ChunkIndex: 0},
		{DocumentID: "d1", UserID: "u1", ChunkIndex: 1},
	})
	if err != nil {
		t.Fatalf("index: %v", err)
	}

	if err := g.DeleteDocuments(ctx, "d1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	chunks, err := g.ChunksByDocumentID(ctx, "d1")
	if err != nil {
		t.Fatalf("fetch after delete: %v", err)
	}
	if len(chunks) != 0 {
		t.Errorf("want empty after delete, got %d chunks", len(chunks))
	}

	// Deleting an absent match succeeds.
	if err := g.DeleteDocuments(ctx, "d1", "never-existed"); err != nil {
		t.Errorf("repeat delete: %v", err)
	}
}

func Test_Gateway_ChunksByIDs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	g, backend := newTestGateway(nil)

	res, err := g.IndexDocuments(ctx, []string{"x"}, []ChunkMeta{{DocumentID: "d1", UserID: "u1"}})
	if err != nil {
		t.Fatalf("index: %v", err)
	}

	// Empty input returns empty output without a backend round-trip.
	before := backend.FetchCalls
	got, err := g.ChunksByIDs(ctx, nil)
	if err != nil || len(got) != 0 {
		t.Fatalf("empty ids: %v %v", got, err)
	}
	if backend.FetchCalls != before {
		t.Error("empty input must not hit the backend")
	}

	// A mix of live and dangling ids resolves only the live ones.
	got, err = g.ChunksByIDs(ctx, []string{res.IDs[0], "dangling"})
	if err != nil {
		t.Fatalf("by ids: %v", err)
	}
	if len(got) != 1 || got[0].ID != res.IDs[0] {
		t.Errorf("by ids: %+v", got)
	}
}

func Test_Gateway_Search_Scoped(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	g, _ := newTestGateway(nil)

	_, err := g.IndexDocuments(ctx,
		[]string{"tenant one text", "tenant two text"},
		[]ChunkMeta{
			{DocumentID: "d1", UserID: "u1"},
			{DocumentID: "d2", UserID: "u2"},
		})
	if err != nil {
		t.Fatalf("index: %v", err)
	}

	// Unscoped search on the shared collection is refused outright.
	if _, err := g.Search(ctx, []float32{1, 1}, Scope{}, 4); err == nil {
		t.Fatal("expected error for unscoped search")
	}

	got, err := g.Search(ctx, []float32{15, 1}, Scope{DocumentIDs: []string{"d1"}}, 4)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 1 || got[0].DocumentID != "d1" {
		t.Errorf("scope leak: %+v", got)
	}
}

func Test_Gateway_InitFailurePropagates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	backend := NewMemoryBackend()
	backend.InitErr = errors.New("collection bootstrap failed")
	g := NewGateway(backend, fakeEmbedder{}, nil, slog.Default())

	if _, err := g.ChunksByDocumentID(ctx, "d1"); err == nil {
		t.Fatal("expected init error")
	}

	// The failure is memoized: clearing the fault does not help, every
	// subsequent caller sees the original error.
	backend.InitErr = nil
	if _, err := g.IndexDocuments(ctx, []string{"a"}, []ChunkMeta{{DocumentID: "d1", UserID: "u1"}}); err == nil {
		t.Fatal("expected memoized init error")
	}
}

func Test_Gateway_UsageBestEffort(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	// No user id on the batch: event skipped, indexing still succeeds.
	meter := &captureMeter{}
	g, _ := newTestGateway(meter)
	if _, err := g.IndexDocuments(ctx, []string{"a"}, []ChunkMeta{{DocumentID: "d1"}}); err != nil {
		t.Fatalf("index: %v", err)
	}
	if len(meter.events) != 0 {
		t.Errorf("expected no events without a user id, got %d", len(meter.events))
	}

	// Ledger failure: logged, never propagated.
	failing := &captureMeter{err: errors.New("ledger down")}
	g2, _ := newTestGateway(failing)
	if _, err := g2.IndexDocuments(ctx, []string{"a"}, []ChunkMeta{{DocumentID: "d1", UserID: "u1"}}); err != nil {
		t.Errorf("usage failure must not fail indexing: %v", err)
	}
}
