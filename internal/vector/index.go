// Package vector provides an in-memory flat vector index with stable integer handles.
package vector

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Hit is a single search result: the handle returned by Add and the squared
// Euclidean distance to the query.
type Hit struct {
	Handle   int
	Distance float64
}

// Index is an append-only brute-force index over fixed-dimension vectors.
// Handles are assigned contiguously in Add order and stay valid until Clear.
// A batch added by Add becomes visible atomically: a concurrent Search sees
// either none or all of its rows.
type Index struct {
	dimensions int
	vectors    [][]float32
	mu         sync.RWMutex
}

// NewIndex creates an index. dimensions may be 0, in which case the dimension
// is adopted from the first batch added.
func NewIndex(dimensions int) (*Index, error) {
	if dimensions < 0 {
		return nil, fmt.Errorf("dimensions must be non-negative")
	}
	return &Index{
		dimensions: dimensions,
		vectors:    make([][]float32, 0),
	}, nil
}

// Dimensions returns the vector dimension, or 0 before the first Add.
func (ix *Index) Dimensions() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.dimensions
}

// Add appends vectors and returns their contiguous handles.
func (ix *Index) Add(ctx context.Context, vectors [][]float32) ([]int, error) {
	if len(vectors) == 0 {
		return nil, nil
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.dimensions == 0 {
		ix.dimensions = len(vectors[0])
	}
	for i := range vectors {
		if len(vectors[i]) != ix.dimensions {
			return nil, fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(vectors[i]), ix.dimensions)
		}
	}
	handles := make([]int, len(vectors))
	for i, v := range vectors {
		vec := make([]float32, ix.dimensions)
		copy(vec, v)
		handles[i] = len(ix.vectors)
		ix.vectors = append(ix.vectors, vec)
	}
	return handles, nil
}

// Search returns up to k hits ordered by ascending squared Euclidean distance.
// An empty index returns no hits, not an error.
func (ix *Index) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if k <= 0 || len(ix.vectors) == 0 {
		return nil, nil
	}
	if len(query) != ix.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), ix.dimensions)
	}
	hits := make([]Hit, len(ix.vectors))
	for i, vec := range ix.vectors {
		var dist float64
		for j := 0; j < ix.dimensions; j++ {
			d := float64(query[j] - vec[j])
			dist += d * d
		}
		hits[i] = Hit{Handle: i, Distance: dist}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

// SearchMany runs Search for each query and returns per-query hit lists.
func (ix *Index) SearchMany(ctx context.Context, queries [][]float32, k int) ([][]Hit, error) {
	results := make([][]Hit, len(queries))
	for i, q := range queries {
		hits, err := ix.Search(ctx, q, k)
		if err != nil {
			return nil, err
		}
		results[i] = hits
	}
	return results, nil
}

// Size returns the number of vectors in the index.
func (ix *Index) Size() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.vectors)
}

// Clear discards all vectors and invalidates all handles. The adopted
// dimension is kept; the embedding model does not change within a process.
func (ix *Index) Clear() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.vectors = ix.vectors[:0]
}
