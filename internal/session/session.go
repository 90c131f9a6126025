// Package session tracks everything indexed since the last reset: chunks,
// their embeddings, and which handle range belongs to which file.
package session

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/vector"
)

// Session owns the in-memory corpus. Chunk metadata is addressed by the same
// contiguous handles the vector index assigns, so a search hit maps straight
// to its chunk. Appends are serialized; reads can run concurrently with each
// other.
type Session struct {
	mu     sync.RWMutex
	chunks []models.Chunk
	index  *vector.Index
	files  map[string]models.FileRecord
	logger *zap.Logger
}

// New creates an empty session over a fresh index with the given dimensions.
func New(dimensions int, logger *zap.Logger) *Session {
	if dimensions < 0 {
		dimensions = 0
	}
	index, _ := vector.NewIndex(dimensions)
	return &Session{
		index:  index,
		files:  make(map[string]models.FileRecord),
		logger: logger,
	}
}

// Append registers a processed file: its chunks enter the metadata store and
// their embeddings enter the index as one atomic batch. Searches either see
// all of a file's chunks or none of them.
func (s *Session) Append(ctx context.Context, filename, hash string, chunks []models.Chunk, embeddings [][]float32) error {
	if len(chunks) != len(embeddings) {
		return fmt.Errorf("chunk count %d does not match embedding count %d", len(chunks), len(embeddings))
	}
	if len(chunks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.files[filename]; ok && old.ContentHash != hash {
		// The old range stays searchable until the next reset. Dropping it
		// would invalidate every handle above it.
		s.logger.Warn("re-uploaded file with changed content, previous chunks remain indexed",
			zap.String("filename", filename),
			zap.Int("orphaned_start", old.IndexStart),
			zap.Int("orphaned_end", old.IndexEnd))
	}

	handles, err := s.index.Add(ctx, embeddings)
	if err != nil {
		return fmt.Errorf("indexing %s: %w", filename, err)
	}
	start := handles[0]
	s.chunks = append(s.chunks, chunks...)
	s.files[filename] = models.FileRecord{
		Filename:    filename,
		ContentHash: hash,
		ChunkCount:  len(chunks),
		IndexStart:  start,
		IndexEnd:    start + len(chunks),
	}
	s.logger.Info("file indexed",
		zap.String("filename", filename),
		zap.Int("chunks", len(chunks)),
		zap.Int("start", start))
	return nil
}

// HasFile reports whether filename with exactly this content is already
// indexed. A matching name with different content returns false so the new
// version gets ingested.
func (s *Session) HasFile(filename, hash string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.files[filename]
	return ok && rec.ContentHash == hash
}

// Chunk returns the chunk behind an index handle.
func (s *Session) Chunk(handle int) (models.Chunk, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if handle < 0 || handle >= len(s.chunks) {
		return models.Chunk{}, false
	}
	return s.chunks[handle], true
}

// Search runs a nearest-neighbor query over the session's index.
func (s *Session) Search(ctx context.Context, query []float32, k int) ([]vector.Hit, error) {
	return s.index.Search(ctx, query, k)
}

// SearchMany runs one query per vector.
func (s *Session) SearchMany(ctx context.Context, queries [][]float32, k int) ([][]vector.Hit, error) {
	return s.index.SearchMany(ctx, queries, k)
}

// ChunkCount returns how many chunks the session holds.
func (s *Session) ChunkCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

// IndexSize returns how many vectors are searchable.
func (s *Session) IndexSize() int {
	return s.index.Size()
}

// Files returns the indexed filenames in sorted order.
func (s *Session) Files() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.files))
	for name := range s.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Records returns a copy of every file record.
func (s *Session) Records() []models.FileRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := make([]models.FileRecord, 0, len(s.files))
	for _, rec := range s.files {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].IndexStart < records[j].IndexStart
	})
	return records
}

// Clear drops all chunks, file records, and index contents. Handles restart
// from zero.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = nil
	s.files = make(map[string]models.FileRecord)
	s.index.Clear()
	s.logger.Info("session cleared")
}
