package rag

import (
	"context"

	"github.com/chatdocs/chatdocs/internal/store"
	"github.com/chatdocs/chatdocs/internal/vectorstore"
)

// HydratedMessage is a persisted message with its chunk references resolved
// into full sources.
type HydratedMessage struct {
	store.Message
	// Sources are the resolved chunks, in the message's reference order.
	// References whose chunks were deleted are omitted.
	Sources []vectorstore.Chunk
}

// HydrateMessages resolves the union of every message's chunk references in
// one batch lookup and attaches the resulting sources. Messages without
// references pass through unchanged; a reference that no longer resolves
// (its document was deleted) is silently dropped from that message's sources.
func (o *Orchestrator) HydrateMessages(ctx context.Context, msgs []store.Message) ([]HydratedMessage, error) {
	seen := make(map[string]struct{})
	var union []string
	for _, m := range msgs {
		for _, id := range m.ChunkIDs {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			union = append(union, id)
		}
	}

	chunks, err := o.retriever.ChunksByIDs(ctx, union)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]vectorstore.Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}

	out := make([]HydratedMessage, 0, len(msgs))
	for _, m := range msgs {
		h := HydratedMessage{Message: m}
		for _, id := range m.ChunkIDs {
			if c, ok := byID[id]; ok {
				h.Sources = append(h.Sources, c)
			}
		}
		out = append(out, h)
	}
	return out, nil
}
