package commands

import (
	"os"
	"strconv"

	"github.com/chatdocs/chatdocs/internal/vectorstore"
)

// qdrantConfigFromEnv builds the qdrant connection config from QDRANT_*
// environment variables. Unset values fall back to the backend defaults
// (localhost:6334, collection "chatdocs_chunks").
func qdrantConfigFromEnv() *vectorstore.QdrantConfig {
	cfg := &vectorstore.QdrantConfig{
		Host:       os.Getenv("QDRANT_HOST"),
		Collection: os.Getenv("QDRANT_COLLECTION"),
		APIKey:     os.Getenv("QDRANT_API_KEY"),
	}
	if v := os.Getenv("QDRANT_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Port = p
		}
	}
	if v := os.Getenv("QDRANT_TLS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.UseTLS = b
		}
	}
	return cfg
}
