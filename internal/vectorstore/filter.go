package vectorstore

import (
	"github.com/qdrant/go-client/qdrant"
)

// Scope restricts a read or delete to a slice of the shared collection.
// All tenant isolation happens here: a scope that is too wide is a
// cross-tenant data leak, so every backend operation takes one and the
// gateway rejects empty scopes on read paths.
type Scope struct {
	// DocumentIDs restricts to chunks of these documents.
	DocumentIDs []string
	// ChunkIDs restricts to these exact chunks.
	ChunkIDs []string
	// UserID restricts to chunks owned by this user.
	UserID string
}

// Empty reports whether the scope matches the entire collection.
func (s Scope) Empty() bool {
	return len(s.DocumentIDs) == 0 && len(s.ChunkIDs) == 0 && s.UserID == ""
}

// Filter builds the qdrant payload filter for the scope. All conditions are
// required (must). A nil return means "no restriction" and is only valid for
// callers that have already checked Empty.
func (s Scope) Filter() *qdrant.Filter {
	var must []*qdrant.Condition
	switch len(s.DocumentIDs) {
	case 0:
	case 1:
		must = append(must, qdrant.NewMatch("document_id", s.DocumentIDs[0]))
	default:
		must = append(must, qdrant.NewMatchKeywords("document_id", s.DocumentIDs...))
	}
	switch len(s.ChunkIDs) {
	case 0:
	case 1:
		must = append(must, qdrant.NewMatch("chunk_id", s.ChunkIDs[0]))
	default:
		must = append(must, qdrant.NewMatchKeywords("chunk_id", s.ChunkIDs...))
	}
	if s.UserID != "" {
		must = append(must, qdrant.NewMatch("user_id", s.UserID))
	}
	if len(must) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: must}
}

// Matches reports whether the chunk falls within the scope. This is the
// in-process mirror of Filter, used by the in-memory backend so both
// implementations share one notion of scope.
func (s Scope) Matches(c Chunk) bool {
	if len(s.DocumentIDs) > 0 && !contains(s.DocumentIDs, c.DocumentID) {
		return false
	}
	if len(s.ChunkIDs) > 0 && !contains(s.ChunkIDs, c.ID) {
		return false
	}
	if s.UserID != "" && s.UserID != c.UserID {
		return false
	}
	return true
}

func contains(haystack []string, needle string) bool {
	for _, v := range haystack {
		if v == needle {
			return true
		}
	}
	return false
}
