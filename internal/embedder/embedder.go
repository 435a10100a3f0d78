// Package embedder provides implementations of the Embedder interface for
// converting text into dense vector embeddings. Each implementation talks to a
// different backend (OpenAI, Azure OpenAI, Ollama) via plain HTTP — no
// additional SDK dependencies are required.
//
// Beyond embedding, every implementation exposes its identity (model name,
// provider name, vector dimensionality) and a tokenizer so the usage ledger
// can attribute token consumption to the backend that produced it.
package embedder

import (
	"context"

	"github.com/chatdocs/chatdocs/internal/tokens"
)

// Embedder is the capability interface for embedding backends.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// CountTokens returns the token count of text for usage accounting.
	CountTokens(text string) int

	// ModelName returns the embedding model name (e.g. "text-embedding-3-small").
	ModelName() string

	// ProviderName returns the backend provider name (e.g. "openai", "ollama").
	ProviderName() string

	// Dimensions returns the vector length this backend produces. The vector
	// collection is sized to this value at creation time.
	Dimensions() int
}

// countTokens is the shared tokenizer used by all backends. None of the
// supported embedding APIs expose a tokenizer endpoint, so accounting uses
// the character heuristic from the tokens package.
func countTokens(text string) int {
	return tokens.Estimate(text)
}
