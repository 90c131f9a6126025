package embedding

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hyperjump/kotae/internal/models"
)

// OllamaEmbedder embeds text through an Ollama embedding model. Calls are
// rate limited so bulk ingestion cannot starve interactive queries.
type OllamaEmbedder struct {
	embedder   *embeddings.EmbedderImpl
	dimensions int
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewOllamaEmbedder connects to the Ollama server at serverURL and prepares
// the given embedding model. dimensions must match what the model produces.
func NewOllamaEmbedder(serverURL, model string, dimensions int, rps float64, logger *zap.Logger) (*OllamaEmbedder, error) {
	llm, err := ollama.New(
		ollama.WithServerURL(serverURL),
		ollama.WithModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("initializing ollama embedding client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}
	if rps <= 0 {
		rps = 10
	}
	return &OllamaEmbedder{
		embedder:   embedder,
		dimensions: dimensions,
		limiter:    rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		logger:     logger,
	}, nil
}

// Embed returns the embedding for a single text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	vec, err := e.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, &models.ExternalServiceError{Stage: "embedding", Err: err}
	}
	return vec, nil
}

// EmbedBatch embeds all texts in one round trip to the model server.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	vecs, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, &models.ExternalServiceError{Stage: "embedding", Err: err}
	}
	if len(vecs) != len(texts) {
		return nil, &models.ExternalServiceError{
			Stage: "embedding",
			Err:   fmt.Errorf("got %d embeddings for %d texts", len(vecs), len(texts)),
		}
	}
	return vecs, nil
}

// Dimensions returns the configured embedding dimension.
func (e *OllamaEmbedder) Dimensions() int {
	return e.dimensions
}

// Close releases the client. The Ollama client holds no persistent
// connections, so this is a no-op.
func (e *OllamaEmbedder) Close() error {
	return nil
}
