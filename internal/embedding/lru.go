package embedding

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// Cached wraps an Embedder with an in-memory LRU keyed by the exact text.
// Repeated questions and re-ingested chunks skip the model round trip.
type Cached struct {
	inner  Embedder
	cache  *lru.Cache[string, []float32]
	logger *zap.Logger
}

// WrapLRU wraps inner with an LRU cache of the given size.
func WrapLRU(inner Embedder, size int, logger *zap.Logger) (*Cached, error) {
	if size <= 0 {
		size = 1024
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, err
	}
	return &Cached{inner: inner, cache: cache, logger: logger}, nil
}

// Embed returns a cached embedding when available, otherwise delegates.
func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := c.cache.Get(text); ok {
		return cloneEmbedding(vec), nil
	}
	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(text, cloneEmbedding(vec))
	return vec, nil
}

// EmbedBatch serves what it can from the cache and embeds only the misses.
// The result preserves input order.
func (c *Cached) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int
	for i, text := range texts {
		if vec, ok := c.cache.Get(text); ok {
			results[i] = cloneEmbedding(vec)
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return results, nil
	}
	vecs, err := c.inner.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, err
	}
	for j, vec := range vecs {
		c.cache.Add(missing[j], cloneEmbedding(vec))
		results[missingIdx[j]] = vec
	}
	c.logger.Debug("embedding cache batch",
		zap.Int("texts", len(texts)),
		zap.Int("misses", len(missing)))
	return results, nil
}

// Dimensions reports the wrapped embedder's dimension.
func (c *Cached) Dimensions() int {
	return c.inner.Dimensions()
}

// Close closes the wrapped embedder.
func (c *Cached) Close() error {
	return c.inner.Close()
}

// cloneEmbedding guards cached vectors against caller mutation.
func cloneEmbedding(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
