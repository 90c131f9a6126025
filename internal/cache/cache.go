// Package cache implements the content-addressed processing cache: one
// directory per content hash holding the file's chunk list and, optionally,
// its embedding matrix. Entries are immutable once visible except for the
// lazy fill of embeddings.
package cache

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/hyperjump/kotae/internal/models"
	"go.uber.org/zap"
)

const (
	chunksFile     = "chunks.json"
	embeddingsFile = "embeddings.bin"
)

// Store is a content-addressed cache rooted at a directory.
type Store struct {
	dir    string
	logger *zap.Logger
}

// NewStore creates the cache directory if needed and returns a Store.
func NewStore(dir string, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &Store{dir: dir, logger: logger}, nil
}

// Lookup returns the cached entry for hash. Absence is not an error; it
// signals "process from scratch". Read failures are logged and treated as a
// miss so the caller falls back to reprocessing.
func (s *Store) Lookup(hash string) (*models.CacheEntry, bool) {
	entryDir := filepath.Join(s.dir, hash)
	data, err := os.ReadFile(filepath.Join(entryDir, chunksFile))
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("cache read failed, reprocessing", zap.String("hash", hash), zap.Error(err))
		}
		return nil, false
	}
	var chunks []models.Chunk
	if err := json.Unmarshal(data, &chunks); err != nil {
		s.logger.Warn("cache entry corrupt, reprocessing", zap.String("hash", hash), zap.Error(err))
		return nil, false
	}
	entry := &models.CacheEntry{Chunks: chunks}

	// The embedding matrix is optional; its absence triggers re-embedding.
	embeddings, err := readMatrix(filepath.Join(entryDir, embeddingsFile))
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("cached embeddings unreadable, re-embedding", zap.String("hash", hash), zap.Error(err))
		}
	} else if len(embeddings) == len(chunks) {
		entry.Embeddings = embeddings
	}
	return entry, true
}

// Store writes the entry for hash. Re-storing an existing hash overwrites it
// with equivalent content. Files are staged and renamed so a concurrent
// Lookup sees either nothing or a complete file.
func (s *Store) Store(hash string, chunks []models.Chunk, embeddings [][]float32) error {
	entryDir := filepath.Join(s.dir, hash)
	if err := os.MkdirAll(entryDir, 0755); err != nil {
		return &models.CacheIOError{Hash: hash, Err: err}
	}
	data, err := json.Marshal(chunks)
	if err != nil {
		return &models.CacheIOError{Hash: hash, Err: err}
	}
	if err := writeAtomic(filepath.Join(entryDir, chunksFile), data); err != nil {
		return &models.CacheIOError{Hash: hash, Err: err}
	}
	if embeddings != nil {
		if err := s.StoreEmbeddings(hash, embeddings); err != nil {
			return err
		}
	}
	return nil
}

// StoreEmbeddings lazily fills the embedding matrix for an existing entry.
func (s *Store) StoreEmbeddings(hash string, embeddings [][]float32) error {
	entryDir := filepath.Join(s.dir, hash)
	if err := os.MkdirAll(entryDir, 0755); err != nil {
		return &models.CacheIOError{Hash: hash, Err: err}
	}
	data, err := encodeMatrix(embeddings)
	if err != nil {
		return &models.CacheIOError{Hash: hash, Err: err}
	}
	if err := writeAtomic(filepath.Join(entryDir, embeddingsFile), data); err != nil {
		return &models.CacheIOError{Hash: hash, Err: err}
	}
	return nil
}

// Count returns the number of cached content hashes.
func (s *Store) Count() int {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0
	}
	n := 0
	for _, e := range entries {
		if e.IsDir() {
			n++
		}
	}
	return n
}

// writeAtomic writes data to a uniquely named staging file in the target
// directory and renames it into place.
func writeAtomic(path string, data []byte) error {
	tmp := fmt.Sprintf("%s.tmp-%s", path, uuid.New().String()[:8])
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// encodeMatrix serializes a row-major float32 matrix: dimension (4 bytes),
// row count (4 bytes), then rows of dimension*4 bytes, little-endian.
func encodeMatrix(m [][]float32) ([]byte, error) {
	dim := 0
	if len(m) > 0 {
		dim = len(m[0])
	}
	buf := make([]byte, 8, 8+len(m)*dim*4)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(dim))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(m)))
	for _, row := range m {
		if len(row) != dim {
			return nil, fmt.Errorf("ragged embedding matrix: row has %d values, expected %d", len(row), dim)
		}
		for _, v := range row {
			var cell [4]byte
			binary.LittleEndian.PutUint32(cell[:], math.Float32bits(v))
			buf = append(buf, cell[:]...)
		}
	}
	return buf, nil
}

// readMatrix reads a matrix written by encodeMatrix.
func readMatrix(path string) ([][]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) < 8 {
		return nil, fmt.Errorf("embedding matrix truncated: %d bytes", len(data))
	}
	dim := int(binary.LittleEndian.Uint32(data[0:4]))
	n := int(binary.LittleEndian.Uint32(data[4:8]))
	want := 8 + n*dim*4
	if len(data) != want {
		return nil, fmt.Errorf("embedding matrix size mismatch: have %d bytes, want %d", len(data), want)
	}
	m := make([][]float32, n)
	off := 8
	for i := 0; i < n; i++ {
		row := make([]float32, dim)
		for j := 0; j < dim; j++ {
			row[j] = math.Float32frombits(binary.LittleEndian.Uint32(data[off : off+4]))
			off += 4
		}
		m[i] = row
	}
	return m, nil
}
