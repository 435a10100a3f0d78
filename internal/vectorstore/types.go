// Package vectorstore owns the single logical vector collection shared by
// all tenants. Chunks are isolated only by query-time payload filters, never
// by storage partitioning, so every read path must go through the scope
// filter helper.
package vectorstore

import (
	"context"
	"time"
)

// Chunk is a bounded slice of a document's text, the unit of embedding and
// retrieval. Chunks are immutable once indexed.
type Chunk struct {
	// ID is the chunk's opaque identifier, minted fresh at index time.
	ID string
	// DocumentID is the owning document.
	DocumentID string
	// UserID is the owning user.
	UserID string
	// Text is the chunk content.
	Text string
	// ChunkIndex is the chunk's position within its document.
	ChunkIndex int
	// CreatedAt is the ingestion timestamp.
	CreatedAt time.Time
	// CharacterCount is computed from Text at read time, never stored.
	CharacterCount int
	// WordCount is computed from Text at read time, never stored.
	WordCount int
	// Score is the similarity score; set on search results only.
	Score float32
}

// Point is a chunk with its embedding vector, as written to the backend.
type Point struct {
	// Chunk is the payload.
	Chunk Chunk
	// Vector is the chunk's embedding.
	Vector []float32
}

// Backend is the storage engine underneath the gateway. The production
// implementation is qdrant; tests use an in-memory fake.
type Backend interface {
	// Init creates the collection and its payload indexes if absent.
	// Idempotent.
	Init(ctx context.Context, dimensions uint64) error
	// Upsert durably writes a batch of points.
	Upsert(ctx context.Context, points []Point) error
	// Delete durably removes all points matching the scope. Deleting an
	// absent match succeeds.
	Delete(ctx context.Context, scope Scope) error
	// Fetch returns all points matching the scope, in unspecified order and
	// without vectors.
	Fetch(ctx context.Context, scope Scope) ([]Chunk, error)
	// Search returns the topK most similar chunks within the scope.
	Search(ctx context.Context, vector []float32, scope Scope, topK int) ([]Chunk, error)
}
