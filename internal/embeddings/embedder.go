// Package embeddings provides the embedding capability over an
// OpenAI-compatible API.
package embeddings

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/knowledged/internal/config"
	"github.com/fyrsmithlabs/knowledged/internal/kberr"
)

// Embedder turns text into vectors. Deterministic for a given model version,
// used both at index time and at query time.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// OpenAIEmbedder is the production Embedder backed by langchaingo's OpenAI
// client, pointable at any compatible endpoint.
type OpenAIEmbedder struct {
	embedder embeddings.Embedder
	model    string
	log      *zap.Logger
}

// NewOpenAIEmbedder builds an Embedder from config.
func NewOpenAIEmbedder(cfg config.EmbeddingsConfig, logger *zap.Logger) (*OpenAIEmbedder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	llm, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithEmbeddingModel(cfg.Model),
		openai.WithToken(cfg.APIKey),
	)
	if err != nil {
		return nil, fmt.Errorf("creating embedding client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}
	return &OpenAIEmbedder{embedder: embedder, model: cfg.Model, log: logger}, nil
}

// Embed embeds a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %v: %w", err, kberr.ErrUpstreamTransient)
	}
	return vec, nil
}

// EmbedBatch embeds a batch of texts, one vector per input in order.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vecs, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding %d documents: %v: %w", len(texts), err, kberr.ErrUpstreamTransient)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d for %d inputs: %w",
			len(vecs), len(texts), kberr.ErrUpstreamPermanent)
	}
	return vecs, nil
}
