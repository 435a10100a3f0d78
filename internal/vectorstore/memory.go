package vectorstore

import (
	"context"
	"math"
	"sort"
	"sync"
)

// MemoryBackend is an in-process Backend for tests and local development.
// It shares the Scope matching rules with the qdrant backend and scores
// searches by cosine similarity.
type MemoryBackend struct {
	mu     sync.Mutex
	points map[string]Point
	// InitErr, when set before first use, is returned by Init to simulate a
	// collection bootstrap failure.
	InitErr error
	// Dimensions records the value passed to Init.
	Dimensions uint64
	// FetchCalls counts Fetch invocations.
	FetchCalls int
}

// NewMemoryBackend returns an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{points: make(map[string]Point)}
}

// Init records the dimensionality, or fails with InitErr when set.
func (m *MemoryBackend) Init(_ context.Context, dimensions uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.InitErr != nil {
		return m.InitErr
	}
	m.Dimensions = dimensions
	return nil
}

// Upsert stores the points keyed by chunk id.
func (m *MemoryBackend) Upsert(_ context.Context, points []Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range points {
		m.points[p.Chunk.ID] = p
	}
	return nil
}

// Delete removes all points matching the scope.
func (m *MemoryBackend) Delete(_ context.Context, scope Scope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, p := range m.points {
		if scope.Matches(p.Chunk) {
			delete(m.points, id)
		}
	}
	return nil
}

// Fetch returns all chunks matching the scope in map order (unspecified).
func (m *MemoryBackend) Fetch(_ context.Context, scope Scope) ([]Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FetchCalls++
	var out []Chunk
	for _, p := range m.points {
		if scope.Matches(p.Chunk) {
			out = append(out, p.Chunk)
		}
	}
	return out, nil
}

// Search returns the topK chunks within the scope by cosine similarity.
func (m *MemoryBackend) Search(_ context.Context, vector []float32, scope Scope, topK int) ([]Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Chunk
	for _, p := range m.points {
		if !scope.Matches(p.Chunk) {
			continue
		}
		c := p.Chunk
		c.Score = cosine(vector, p.Vector)
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
