// Package metering records model and retrieval usage into the append-only
// usage ledger. Events are insert-only; aggregation and billing run
// downstream over the raw ledger.
package metering

import (
	"context"
	"fmt"

	"github.com/chatdocs/chatdocs/internal/store"
)

// Event types recorded in the ledger.
const (
	// EventLLMInput is the token count of a rendered prompt sent to a model.
	EventLLMInput = "LLM_INPUT"
	// EventLLMOutput is the token count of a model's response.
	EventLLMOutput = "LLM_OUTPUT"
	// EventCreateDocumentIndex is the summed token count of a document
	// indexing batch.
	EventCreateDocumentIndex = "CREATE_DOCUMENT_INDEX"
	// EventQueryDocument is the token count of the retrieved context,
	// counted with the embedding tokenizer.
	EventQueryDocument = "QUERY_DOCUMENT"
)

// Event is one usage record to append to the ledger.
type Event struct {
	// UserID is the user the usage is attributed to.
	UserID string
	// ModelName is the model that incurred the usage.
	ModelName string
	// Provider is the backend that served the model.
	Provider string
	// TokenCount is the estimated token count.
	TokenCount int
	// Type is one of the Event* constants.
	Type string
}

// Recorder appends usage events. Satisfied by *Service; fakes implement it
// in tests.
type Recorder interface {
	CreateEvent(ctx context.Context, e Event) error
}

// Service appends usage events through a store. Bind it to a transaction
// with WithStore to make usage writes atomic with the caller's operation.
type Service struct {
	store *store.Store
}

// New constructs a Service writing through st.
func New(st *store.Store) *Service {
	return &Service{store: st}
}

// WithStore returns a copy of s writing through st, typically a
// transaction-bound store.
func (s *Service) WithStore(st *store.Store) *Service {
	return &Service{store: st}
}

// CreateEvent appends one event to the ledger.
func (s *Service) CreateEvent(ctx context.Context, e Event) error {
	if e.Type == "" {
		return fmt.Errorf("metering: event type is required")
	}
	err := s.store.InsertUsageEvent(ctx, store.UsageEvent{
		UserID:     e.UserID,
		ModelName:  e.ModelName,
		Provider:   e.Provider,
		TokenCount: e.TokenCount,
		EventType:  e.Type,
	})
	if err != nil {
		return fmt.Errorf("metering: create event: %w", err)
	}
	return nil
}
