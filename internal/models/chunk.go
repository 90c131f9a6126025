// Package models defines core data structures for chunks, session files, and sources.
package models

// Modality identifies the kind of content a chunk was derived from.
type Modality string

const (
	ModalityText  Modality = "text"
	ModalityImage Modality = "image"
	ModalityAudio Modality = "audio"
)

// Chunk is the atomic retrieval unit: the text that gets embedded, searched,
// and shown to the generation model, plus provenance and modality metadata.
type Chunk struct {
	Text           string   `json:"text"`
	Modality       Modality `json:"type"`
	SourceFilename string   `json:"source_filename"`
	// Ordinal is a stable per-file position: page number for PDF text,
	// element position for DOCX, chunk sequence for audio.
	Ordinal int `json:"page_num"`

	// Image chunks only.
	MediaPath     string `json:"image_path,omitempty"`
	VisionCaption string `json:"vision_caption,omitempty"`
	OCRText       string `json:"ocr_text,omitempty"`

	// Audio chunks only. Times are seconds from the start of the recording.
	StartTime float64 `json:"start_time,omitempty"`
	EndTime   float64 `json:"end_time,omitempty"`
	Duration  float64 `json:"duration,omitempty"`
}

// Segment is one time-stamped transcript segment from speech-to-text.
type Segment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// FileRecord tracks one uploaded file in the active session: its byte identity
// and the contiguous handle range its chunks occupy in the vector index.
type FileRecord struct {
	Filename    string `json:"filename"`
	ContentHash string `json:"content_hash"`
	ChunkCount  int    `json:"count"`
	IndexStart  int    `json:"start"`
	IndexEnd    int    `json:"end"` // exclusive; IndexEnd-IndexStart == ChunkCount
}

// CacheEntry is the cached result of processing one file identity (content hash).
// Embeddings may be nil when the chunks were cached before embedding; it is
// filled lazily on the next upload of the same bytes.
type CacheEntry struct {
	Chunks     []Chunk
	Embeddings [][]float32
}

// Source is one attribution record emitted after the answer stream, describing
// a chunk that contributed to the assembled context.
type Source struct {
	SourceFilename string   `json:"source_filename"`
	Ordinal        int      `json:"page_num"`
	Content        string   `json:"source_content"`
	Modality       Modality `json:"type"`
	Score          float64  `json:"score"`

	// Image sources only. ShowInline mirrors the visual-keyword heuristic so
	// the front end knows whether to render the image with the answer.
	MediaPath     string `json:"image_path,omitempty"`
	VisionCaption string `json:"vision_description,omitempty"`
	ShowInline    *bool  `json:"show_inline,omitempty"`

	// Audio sources only.
	StartTime        *float64 `json:"start_time,omitempty"`
	EndTime          *float64 `json:"end_time,omitempty"`
	Duration         *float64 `json:"duration,omitempty"`
	TimestampDisplay string   `json:"timestamp_display,omitempty"`
}
