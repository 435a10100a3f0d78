package server

import (
	"context"
	"fmt"

	"github.com/chatdocs/chatdocs/internal/embedder"
	"github.com/chatdocs/chatdocs/internal/store"
	"github.com/chatdocs/chatdocs/internal/vectorstore"
)

// StorePinger probes the relational store. It satisfies the Pinger interface
// and is used by GET /api/ready.
type StorePinger struct {
	// store is the relational store to probe.
	store *store.Store
}

// NewStorePinger constructs a StorePinger for the given store.
func NewStorePinger(st *store.Store) *StorePinger {
	return &StorePinger{store: st}
}

// Name returns the dependency label used in readiness responses.
func (p *StorePinger) Name() string { return "sqlite" }

// Ping runs a trivial query against the store.
func (p *StorePinger) Ping(ctx context.Context) error {
	if err := p.store.Ping(ctx); err != nil {
		return fmt.Errorf("store unreachable: %w", err)
	}
	return nil
}

// QdrantPinger probes the Qdrant vector store backend. It satisfies the
// Pinger interface and is used by GET /api/ready.
type QdrantPinger struct {
	// backend is the Qdrant backend to probe.
	backend *vectorstore.QdrantBackend
}

// NewQdrantPinger constructs a QdrantPinger for the given backend.
func NewQdrantPinger(b *vectorstore.QdrantBackend) *QdrantPinger {
	return &QdrantPinger{backend: b}
}

// Name returns the dependency label used in readiness responses.
func (p *QdrantPinger) Name() string { return "qdrant" }

// Ping lists collections on the Qdrant instance.
func (p *QdrantPinger) Ping(ctx context.Context) error {
	if err := p.backend.Ping(ctx); err != nil {
		return fmt.Errorf("qdrant unreachable: %w", err)
	}
	return nil
}

// EmbedderPinger probes the embedding backend by embedding a single short
// input. Embedding requests are cheap compared to generation, so readiness
// can afford a real call here.
type EmbedderPinger struct {
	// embedder is the embedding client to probe.
	embedder embedder.Embedder
}

// NewEmbedderPinger constructs an EmbedderPinger for the given embedder.
func NewEmbedderPinger(e embedder.Embedder) *EmbedderPinger {
	return &EmbedderPinger{embedder: e}
}

// Name returns the dependency label used in readiness responses.
func (p *EmbedderPinger) Name() string { return "embedder" }

// Ping embeds a single short input against the backend.
func (p *EmbedderPinger) Ping(ctx context.Context) error {
	if _, err := p.embedder.Embed(ctx, []string{"ping"}); err != nil {
		return fmt.Errorf("embedding probe failed: %w", err)
	}
	return nil
}
