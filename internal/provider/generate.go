package provider

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/chatdocs/chatdocs/internal/tokens"
)

// Generator is the interface the answer pipeline depends on for text
// generation. It narrows the underlying chat model to a single-shot,
// non-streaming call and exposes the identity needed for usage accounting.
type Generator interface {
	// Generate produces a completion for the fully rendered prompt.
	Generate(ctx context.Context, prompt string) (string, error)
	// ModelName returns the effective model name for usage records.
	ModelName() string
	// ProviderName returns the backend name for usage records.
	ProviderName() string
	// CountTokens estimates the token count of text for usage accounting.
	CountTokens(text string) int
}

// ChatGenerator implements Generator on top of an eino ChatModel.
type ChatGenerator struct {
	chatModel model.BaseChatModel
	backend   Backend
	modelName string
}

// NewGenerator constructs a ChatGenerator for the given config.
func NewGenerator(ctx context.Context, cfg *Config) (*ChatGenerator, error) {
	cm, err := New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &ChatGenerator{
		chatModel: cm,
		backend:   cfg.Backend,
		modelName: cfg.Model(),
	}, nil
}

// NewGeneratorFromEnv constructs a ChatGenerator from environment variables.
// See ConfigFromEnv for the variables consulted.
func NewGeneratorFromEnv(ctx context.Context) (*ChatGenerator, error) {
	return NewGenerator(ctx, ConfigFromEnv())
}

// Generate sends the rendered prompt as a single user message and returns the
// model's response content.
func (g *ChatGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	msg, err := g.chatModel.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)})
	if err != nil {
		return "", fmt.Errorf("provider: generate: %w", err)
	}
	return msg.Content, nil
}

// ModelName returns the effective model name.
func (g *ChatGenerator) ModelName() string { return g.modelName }

// ProviderName returns the backend name (e.g. "ollama", "azure").
func (g *ChatGenerator) ProviderName() string { return string(g.backend) }

// CountTokens estimates the token count of text.
func (g *ChatGenerator) CountTokens(text string) int { return tokens.Estimate(text) }
