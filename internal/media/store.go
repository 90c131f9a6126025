// Package media persists extracted images and uploaded audio so the client
// can fetch them alongside answer sources.
package media

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Store writes media files into a flat directory keyed by deterministic
// names, so re-ingesting a document overwrites rather than accumulates.
type Store struct {
	dir    string
	logger *zap.Logger
}

// NewStore creates the media directory if needed.
func NewStore(dir string, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating media directory: %w", err)
	}
	return &Store{dir: dir, logger: logger}, nil
}

// Dir returns the directory files are stored in.
func (s *Store) Dir() string {
	return s.dir
}

// SavePageImage stores an image taken from a page of a paginated document and
// returns the stored filename.
func (s *Store) SavePageImage(sourceFilename string, page, index int, data []byte, ext string) (string, error) {
	name := fmt.Sprintf("%s_p%d_%d.%s", baseName(sourceFilename), page, index, ext)
	return name, s.write(name, data)
}

// SaveFlowedImage stores an image embedded in a flowed document, keyed by its
// position in the document body.
func (s *Store) SaveFlowedImage(sourceFilename string, position int, data []byte, ext string) (string, error) {
	name := fmt.Sprintf("%s_img%d.%s", baseName(sourceFilename), position, ext)
	return name, s.write(name, data)
}

// SaveAudio stores an uploaded audio file under its sanitized original name
// so sources can link back to it for playback.
func (s *Store) SaveAudio(filename string, data []byte) (string, error) {
	name := Sanitize(filename)
	return name, s.write(name, data)
}

func (s *Store) write(name string, data []byte) error {
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing media file %s: %w", name, err)
	}
	s.logger.Debug("stored media file", zap.String("name", name), zap.Int("bytes", len(data)))
	return nil
}

func baseName(filename string) string {
	name := Sanitize(filename)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// Sanitize strips any path components and reduces the name to a safe
// character set, so client-supplied filenames cannot escape the media
// directory.
func Sanitize(filename string) string {
	name := filepath.Base(filepath.Clean(filename))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		out = "file"
	}
	return out
}
