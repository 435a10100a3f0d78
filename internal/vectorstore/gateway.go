package vectorstore

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chatdocs/chatdocs/internal/embedder"
	"github.com/chatdocs/chatdocs/internal/metering"
	"github.com/chatdocs/chatdocs/internal/tokens"
)

// ChunkMeta describes one incoming text for IndexDocuments. Caller-supplied
// ids are never used as point ids; the gateway mints fresh ones.
type ChunkMeta struct {
	// DocumentID is the owning document.
	DocumentID string
	// UserID is the owning user.
	UserID string
	// ChunkIndex is the chunk's position within its document.
	ChunkIndex int
}

// IndexResult reports a completed indexing batch.
type IndexResult struct {
	// Count is the number of chunks written.
	Count int
	// IDs are the freshly minted chunk ids, parallel to the input texts.
	IDs []string
}

// Gateway is the single entry point to the shared vector collection. It
// initializes the collection lazily exactly once; every public operation
// waits on that one initialization and sees its error if it failed.
type Gateway struct {
	backend  Backend
	embedder embedder.Embedder
	meter    metering.Recorder
	log      *slog.Logger

	initOnce sync.Once
	initErr  error
}

// NewGateway constructs a Gateway. meter may be nil when usage accounting is
// not wanted (e.g. administrative backfills).
func NewGateway(backend Backend, emb embedder.Embedder, meter metering.Recorder, log *slog.Logger) *Gateway {
	return &Gateway{backend: backend, embedder: emb, meter: meter, log: log}
}

// init runs collection initialization exactly once. A failure is remembered
// and returned to every subsequent caller; the process must restart to retry.
func (g *Gateway) init(ctx context.Context) error {
	g.initOnce.Do(func() {
		g.initErr = g.backend.Init(ctx, uint64(g.embedder.Dimensions()))
	})
	return g.initErr
}

// IndexDocuments embeds texts in a single batch and durably upserts them.
// texts and metadata must be parallel slices. On success it records one
// best-effort CREATE_DOCUMENT_INDEX usage event covering the whole batch,
// attributed to the first metadata entry's user; accounting failures are
// logged, never propagated.
func (g *Gateway) IndexDocuments(ctx context.Context, texts []string, metadata []ChunkMeta) (IndexResult, error) {
	if err := g.init(ctx); err != nil {
		return IndexResult{}, err
	}
	if len(texts) != len(metadata) {
		return IndexResult{}, fmt.Errorf("vectorstore: %d texts but %d metadata entries", len(texts), len(metadata))
	}
	if len(texts) == 0 {
		return IndexResult{}, nil
	}

	vectors, err := g.embedder.Embed(ctx, texts)
	if err != nil {
		return IndexResult{}, err
	}

	ingestedAt := time.Now()
	points := make([]Point, 0, len(texts))
	ids := make([]string, 0, len(texts))
	for i, text := range texts {
		id := uuid.NewString()
		ids = append(ids, id)
		points = append(points, Point{
			Chunk: Chunk{
				ID:         id,
				DocumentID: metadata[i].DocumentID,
				UserID:     metadata[i].UserID,
				Text:       text,
				ChunkIndex: metadata[i].ChunkIndex,
				CreatedAt:  ingestedAt,
			},
			Vector: vectors[i],
		})
	}

	if err := g.backend.Upsert(ctx, points); err != nil {
		return IndexResult{}, err
	}

	g.recordIndexUsage(ctx, texts, metadata)
	return IndexResult{Count: len(points), IDs: ids}, nil
}

// recordIndexUsage emits the batch's CREATE_DOCUMENT_INDEX event. Emission
// never affects the indexing outcome.
func (g *Gateway) recordIndexUsage(ctx context.Context, texts []string, metadata []ChunkMeta) {
	if g.meter == nil {
		return
	}
	userID := metadata[0].UserID
	if userID == "" {
		g.log.Warn("vectorstore: indexing batch has no user id, skipping usage event",
			slog.String("document_id", metadata[0].DocumentID))
		return
	}
	total := 0
	for _, t := range texts {
		total += g.embedder.CountTokens(t)
	}
	err := g.meter.CreateEvent(ctx, metering.Event{
		UserID:     userID,
		ModelName:  g.embedder.ModelName(),
		Provider:   g.embedder.ProviderName(),
		TokenCount: total,
		Type:       metering.EventCreateDocumentIndex,
	})
	if err != nil {
		g.log.Warn("vectorstore: failed to record indexing usage",
			slog.String("user_id", userID), slog.String("error", err.Error()))
	}
}

// DeleteDocuments durably removes every chunk of the given documents.
// Idempotent: deleting documents with no chunks succeeds.
func (g *Gateway) DeleteDocuments(ctx context.Context, documentIDs ...string) error {
	if err := g.init(ctx); err != nil {
		return err
	}
	if len(documentIDs) == 0 {
		return nil
	}
	return g.backend.Delete(ctx, Scope{DocumentIDs: documentIDs})
}

// ChunksByDocumentID returns all chunks of a document sorted ascending by
// chunk index. The backend's native order is unspecified; ordering is this
// gateway's responsibility. Character and word counts are computed here at
// read time.
func (g *Gateway) ChunksByDocumentID(ctx context.Context, documentID string) ([]Chunk, error) {
	if err := g.init(ctx); err != nil {
		return nil, err
	}
	chunks, err := g.backend.Fetch(ctx, Scope{DocumentIDs: []string{documentID}})
	if err != nil {
		return nil, err
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].ChunkIndex < chunks[j].ChunkIndex })
	for i := range chunks {
		annotateCounts(&chunks[i])
	}
	return chunks, nil
}

// ChunksByIDs batch-resolves chunks by id, in unspecified order. Ids that no
// longer resolve are simply absent from the result. An empty input returns
// an empty result without a backend round-trip.
func (g *Gateway) ChunksByIDs(ctx context.Context, ids []string) ([]Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if err := g.init(ctx); err != nil {
		return nil, err
	}
	chunks, err := g.backend.Fetch(ctx, Scope{ChunkIDs: ids})
	if err != nil {
		return nil, err
	}
	for i := range chunks {
		annotateCounts(&chunks[i])
	}
	return chunks, nil
}

// Search returns the topK most similar chunks within the scope, best first.
// An empty scope is refused: the collection is shared across tenants and an
// unscoped search would cross tenant boundaries.
func (g *Gateway) Search(ctx context.Context, vector []float32, scope Scope, topK int) ([]Chunk, error) {
	if err := g.init(ctx); err != nil {
		return nil, err
	}
	if scope.Empty() {
		return nil, fmt.Errorf("vectorstore: refusing unscoped search on the shared collection")
	}
	chunks, err := g.backend.Search(ctx, vector, scope, topK)
	if err != nil {
		return nil, err
	}
	for i := range chunks {
		annotateCounts(&chunks[i])
	}
	return chunks, nil
}

// Embedder exposes the gateway's embedding adapter so callers can embed
// queries with the exact model the collection was built with.
func (g *Gateway) Embedder() embedder.Embedder { return g.embedder }

func annotateCounts(c *Chunk) {
	c.CharacterCount = tokens.Chars(c.Text)
	c.WordCount = tokens.Words(c.Text)
}
