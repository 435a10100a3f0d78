package vectorstore

import (
	"context"
	"fmt"
	"time"

	"github.com/qdrant/go-client/qdrant"
)

// QdrantConfig holds connection parameters for the qdrant backend.
type QdrantConfig struct {
	// Host is the qdrant server hostname (default: localhost).
	Host string

	// Port is the qdrant gRPC port (default: 6334).
	Port int

	// Collection is the collection name (default: chatdocs_chunks).
	Collection string

	// APIKey is the optional API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantBackend implements Backend on a qdrant instance. All writes use
// wait=true so a returned nil error means the change is durable.
type QdrantBackend struct {
	// client is the underlying gRPC client.
	client *qdrant.Client
	// collection is the target collection name.
	collection string
}

// scrollPageLimit caps a single Fetch. Documents are chunked upstream into
// far fewer pieces than this.
const scrollPageLimit = 4096

// NewQdrantBackend connects to qdrant. The collection is not touched here;
// the gateway drives Init once the embedding dimensionality is known.
func NewQdrantBackend(cfg *QdrantConfig) (*QdrantBackend, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		cfg.Collection = "chatdocs_chunks"
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}
	return &QdrantBackend{client: client, collection: cfg.Collection}, nil
}

// Init creates the collection sized to the embedding dimensionality, with
// keyword payload indexes on document_id, chunk_id, and user_id so scope
// filters stay cheap. Idempotent.
func (b *QdrantBackend) Init(ctx context.Context, dimensions uint64) error {
	exists, err := b.client.CollectionExists(ctx, b.collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if !exists {
		err = b.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: b.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     dimensions,
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("qdrant: failed to create collection %q: %w", b.collection, err)
		}
	}

	for _, field := range []string{"document_id", "chunk_id", "user_id"} {
		_, err := b.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: b.collection,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
			Wait:           qdrant.PtrOf(true),
		})
		if err != nil {
			return fmt.Errorf("qdrant: failed to index payload field %q: %w", field, err)
		}
	}
	return nil
}

// Upsert durably writes a batch of points.
func (b *QdrantBackend) Upsert(ctx context.Context, points []Point) error {
	qp := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		qp = append(qp, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(p.Chunk.ID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: qdrant.NewValueMap(map[string]any{
				"chunk_id":    p.Chunk.ID,
				"document_id": p.Chunk.DocumentID,
				"user_id":     p.Chunk.UserID,
				"text":        p.Chunk.Text,
				"chunk_index": int64(p.Chunk.ChunkIndex),
				"created_at":  p.Chunk.CreatedAt.Unix(),
			}),
		})
	}

	_, err := b.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: b.collection,
		Points:         qp,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert failed: %w", err)
	}
	return nil
}

// Delete durably removes all points matching the scope. Deleting an absent
// match succeeds.
func (b *QdrantBackend) Delete(ctx context.Context, scope Scope) error {
	if scope.Empty() {
		return fmt.Errorf("qdrant: refusing to delete with an empty scope")
	}
	_, err := b.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: b.collection,
		Points:         qdrant.NewPointsSelectorFilter(scope.Filter()),
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("qdrant: delete failed: %w", err)
	}
	return nil
}

// Fetch returns all points matching the scope, without vectors, in storage
// order (unspecified).
func (b *QdrantBackend) Fetch(ctx context.Context, scope Scope) ([]Chunk, error) {
	if scope.Empty() {
		return nil, fmt.Errorf("qdrant: refusing to fetch with an empty scope")
	}
	results, err := b.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: b.collection,
		Filter:         scope.Filter(),
		Limit:          qdrant.PtrOf(uint32(scrollPageLimit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: scroll failed: %w", err)
	}

	chunks := make([]Chunk, 0, len(results))
	for _, r := range results {
		chunks = append(chunks, chunkFromPayload(r.Payload, 0))
	}
	return chunks, nil
}

// Search returns the topK most similar chunks within the scope.
func (b *QdrantBackend) Search(ctx context.Context, vector []float32, scope Scope, topK int) ([]Chunk, error) {
	results, err := b.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: b.collection,
		Query:          qdrant.NewQuery(vector...),
		Filter:         scope.Filter(),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}

	chunks := make([]Chunk, 0, len(results))
	for _, r := range results {
		chunks = append(chunks, chunkFromPayload(r.Payload, r.Score))
	}
	return chunks, nil
}

// Close closes the underlying gRPC connection.
func (b *QdrantBackend) Close() error {
	return b.client.Close()
}

// Ping checks connectivity by listing collections.
func (b *QdrantBackend) Ping(ctx context.Context) error {
	if _, err := b.client.ListCollections(ctx); err != nil {
		return fmt.Errorf("qdrant: ping: %w", err)
	}
	return nil
}

// chunkFromPayload rebuilds a Chunk from a stored payload map.
func chunkFromPayload(p map[string]*qdrant.Value, score float32) Chunk {
	c := Chunk{Score: score}
	if p == nil {
		return c
	}
	if v, ok := p["chunk_id"]; ok {
		c.ID = v.GetStringValue()
	}
	if v, ok := p["document_id"]; ok {
		c.DocumentID = v.GetStringValue()
	}
	if v, ok := p["user_id"]; ok {
		c.UserID = v.GetStringValue()
	}
	if v, ok := p["text"]; ok {
		c.Text = v.GetStringValue()
	}
	if v, ok := p["chunk_index"]; ok {
		c.ChunkIndex = int(v.GetIntegerValue())
	}
	if v, ok := p["created_at"]; ok {
		c.CreatedAt = time.Unix(v.GetIntegerValue(), 0)
	}
	return c
}
