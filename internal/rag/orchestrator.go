// Package rag runs the retrieval-augmented answer pipeline: embed the
// question, retrieve scoped chunks, render the prompt, generate once, and
// meter the usage.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/chatdocs/chatdocs/internal/embedder"
	"github.com/chatdocs/chatdocs/internal/metering"
	"github.com/chatdocs/chatdocs/internal/provider"
	"github.com/chatdocs/chatdocs/internal/vectorstore"
)

// topK is the fixed number of chunks retrieved per question.
const topK = 4

// Retriever is the slice of the vector store gateway the pipeline needs.
type Retriever interface {
	Search(ctx context.Context, vector []float32, scope vectorstore.Scope, topK int) ([]vectorstore.Chunk, error)
	ChunksByIDs(ctx context.Context, ids []string) ([]vectorstore.Chunk, error)
	Embedder() embedder.Embedder
}

// ModelConfig is the per-chatbot generation configuration.
type ModelConfig struct {
	// Provider selects the generation backend.
	Provider string
	// Model is the model name for that backend.
	Model string
	// Temperature overrides generation temperature when > 0.
	Temperature float32
	// MaxTokens overrides the response token cap when > 0.
	MaxTokens int
}

// GeneratorFactory builds a generator for a chatbot's model configuration.
type GeneratorFactory func(ctx context.Context, cfg ModelConfig) (provider.Generator, error)

// EnvGeneratorFactory is the production factory: deployment credentials from
// the environment, backend/model/tuning from the chatbot.
func EnvGeneratorFactory(ctx context.Context, cfg ModelConfig) (provider.Generator, error) {
	pc := provider.ConfigFromEnv().
		WithModel(provider.Backend(cfg.Provider), cfg.Model).
		WithTuning(cfg.MaxTokens, cfg.Temperature)
	return provider.NewGenerator(ctx, pc)
}

// Request is one answer-pipeline invocation.
type Request struct {
	// Question is the user's message for this turn.
	Question string
	// History is the prior turns, oldest first.
	History []Turn
	// Scope restricts retrieval to the chatbot's documents.
	Scope vectorstore.Scope
	// SystemPrompt overrides the default instructions when non-empty.
	SystemPrompt string
	// Model is the chatbot's generation configuration.
	Model ModelConfig
	// UserID is the user the turn's usage is attributed to.
	UserID string
}

// Result is the pipeline's output.
type Result struct {
	// Answer is the model's response, verbatim.
	Answer string
	// Sources are the retrieved chunks in retrieval-rank order.
	Sources []vectorstore.Chunk
}

// Orchestrator wires retrieval, generation, and metering together.
type Orchestrator struct {
	retriever    Retriever
	newGenerator GeneratorFactory
	meter        metering.Recorder
	log          *slog.Logger
}

// New constructs an Orchestrator. meter is the default usage recorder; Chat
// callers can substitute a transaction-bound one per call.
func New(retriever Retriever, factory GeneratorFactory, meter metering.Recorder, log *slog.Logger) *Orchestrator {
	return &Orchestrator{retriever: retriever, newGenerator: factory, meter: meter, log: log}
}

// Chat answers one question. meter, when non-nil, replaces the orchestrator's
// default recorder so usage writes join the caller's transaction.
//
// Retrieval yielding zero chunks is not an error: the prompt is rendered with
// an empty context section and generation still runs. Embedding, retrieval,
// and generation errors propagate unmodified; usage-ledger errors never do.
func (o *Orchestrator) Chat(ctx context.Context, req Request, meter metering.Recorder) (Result, error) {
	if meter == nil {
		meter = o.meter
	}
	emb := o.retriever.Embedder()

	vectors, err := emb.Embed(ctx, []string{req.Question})
	if err != nil {
		return Result{}, err
	}
	if len(vectors) != 1 {
		return Result{}, fmt.Errorf("rag: expected 1 query embedding, got %d", len(vectors))
	}

	sources, err := o.retriever.Search(ctx, vectors[0], req.Scope, topK)
	if err != nil {
		return Result{}, err
	}

	contexts := make([]string, 0, len(sources))
	for _, c := range sources {
		contexts = append(contexts, c.Text)
	}
	prompt := renderPrompt(req.SystemPrompt, contexts, req.History, req.Question)

	gen, err := o.newGenerator(ctx, req.Model)
	if err != nil {
		return Result{}, err
	}
	answer, err := gen.Generate(ctx, prompt)
	if err != nil {
		return Result{}, err
	}

	// Fixed event order: LLM_INPUT, LLM_OUTPUT, QUERY_DOCUMENT. The query
	// event meters the retrieved context with the embedding tokenizer —
	// retrieval cost, not generation cost.
	o.record(ctx, meter, metering.Event{
		UserID: req.UserID, ModelName: gen.ModelName(), Provider: gen.ProviderName(),
		TokenCount: gen.CountTokens(prompt), Type: metering.EventLLMInput,
	})
	o.record(ctx, meter, metering.Event{
		UserID: req.UserID, ModelName: gen.ModelName(), Provider: gen.ProviderName(),
		TokenCount: gen.CountTokens(answer), Type: metering.EventLLMOutput,
	})
	o.record(ctx, meter, metering.Event{
		UserID: req.UserID, ModelName: emb.ModelName(), Provider: emb.ProviderName(),
		TokenCount: emb.CountTokens(strings.Join(contexts, "\n\n")), Type: metering.EventQueryDocument,
	})

	return Result{Answer: answer, Sources: sources}, nil
}

// record appends one usage event, logging failures instead of surfacing them.
func (o *Orchestrator) record(ctx context.Context, meter metering.Recorder, e metering.Event) {
	if meter == nil {
		return
	}
	if err := meter.CreateEvent(ctx, e); err != nil {
		o.log.Warn("rag: failed to record usage event",
			slog.String("type", e.Type),
			slog.String("user_id", e.UserID),
			slog.String("error", err.Error()),
		)
	}
}
