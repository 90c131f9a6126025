package chunker

import (
	"strings"

	"github.com/hyperjump/kotae/internal/models"
)

// ChunkSegments packs time-stamped transcript segments into chunks of at most
// maxSize runes. When a chunk fills up, the next one is seeded with the
// previous chunk's trailing segments, newest-first up to overlap runes, kept
// in chronological order so timestamps stay monotonic.
func ChunkSegments(filename string, segments []models.Segment, maxSize, overlap int) []models.Chunk {
	if maxSize <= 0 {
		maxSize = 1000
	}
	var chunks []models.Chunk
	var current []models.Segment
	currentLen := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		parts := make([]string, 0, len(current))
		for _, seg := range current {
			parts = append(parts, seg.Text)
		}
		start := current[0].Start
		end := current[len(current)-1].End
		chunks = append(chunks, models.Chunk{
			Text:           strings.Join(parts, " "),
			Modality:       models.ModalityAudio,
			SourceFilename: filename,
			Ordinal:        len(chunks) + 1,
			StartTime:      start,
			EndTime:        end,
			Duration:       end - start,
		})
	}

	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		seg.Text = text
		segLen := len([]rune(text))
		if currentLen > 0 && currentLen+1+segLen > maxSize {
			flush()
			current, currentLen = overlapSeed(current, overlap)
		}
		current = append(current, seg)
		if currentLen > 0 {
			currentLen++ // joining space
		}
		currentLen += segLen
	}
	flush()
	return chunks
}

// overlapSeed returns the trailing segments of prev whose combined text fits
// in overlap runes, preserving chronological order, along with their joined
// length.
func overlapSeed(prev []models.Segment, overlap int) ([]models.Segment, int) {
	if overlap <= 0 || len(prev) == 0 {
		return nil, 0
	}
	total := 0
	i := len(prev)
	for i > 0 {
		segLen := len([]rune(prev[i-1].Text))
		add := segLen
		if total > 0 {
			add++
		}
		if total+add > overlap {
			break
		}
		total += add
		i--
	}
	if i == len(prev) {
		return nil, 0
	}
	seed := make([]models.Segment, len(prev)-i)
	copy(seed, prev[i:])
	return seed, total
}
