// Package ingest turns uploaded files into indexed, searchable chunks.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/cache"
	"github.com/hyperjump/kotae/internal/chunker"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/media"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/session"
	"github.com/hyperjump/kotae/internal/transcribe"
	"github.com/hyperjump/kotae/internal/vision"
)

// File is one uploaded file held fully in memory.
type File struct {
	Name string
	Data []byte
}

// Result reports the outcome of a batch upload. A file appears in exactly
// one of the three lists.
type Result struct {
	Processed []string
	Skipped   []string
	Errors    []*models.IngestionError
}

// Options wires an Ingestor's collaborators.
type Options struct {
	Extractor   *extract.Extractor
	Embedder    embedding.Embedder
	Cache       *cache.Store
	Media       *media.Store
	Session     *session.Session
	Captioner   vision.Captioner
	OCR         vision.OCR
	Transcriber transcribe.Transcriber
	Chunking    config.ChunkingConfig
	Workers     config.WorkersConfig
	Logger      *zap.Logger
}

// Ingestor processes uploads end to end: extract, caption, chunk, embed,
// cache, and index. One Ingestor serves all requests; its worker limits are
// global, not per upload.
type Ingestor struct {
	extractor   *extract.Extractor
	embedder    embedding.Embedder
	cache       *cache.Store
	media       *media.Store
	session     *session.Session
	captioner   vision.Captioner
	ocr         vision.OCR
	transcriber transcribe.Transcriber
	chunking    config.ChunkingConfig
	pageSem     chan struct{}
	imageSem    chan struct{}
	logger      *zap.Logger
}

// New builds an Ingestor from Options.
func New(opts Options) *Ingestor {
	pages := opts.Workers.Pages
	if pages <= 0 {
		pages = 4
	}
	images := opts.Workers.Images
	if images <= 0 {
		images = 2
	}
	return &Ingestor{
		extractor:   opts.Extractor,
		embedder:    opts.Embedder,
		cache:       opts.Cache,
		media:       opts.Media,
		session:     opts.Session,
		captioner:   opts.Captioner,
		ocr:         opts.OCR,
		transcriber: opts.Transcriber,
		chunking:    opts.Chunking,
		pageSem:     make(chan struct{}, pages),
		imageSem:    make(chan struct{}, images),
		logger:      opts.Logger,
	}
}

// ProcessBatch ingests each file independently. A failing file is recorded
// and never aborts the rest of the batch.
func (in *Ingestor) ProcessBatch(ctx context.Context, files []File) Result {
	var res Result
	for _, f := range files {
		if ctx.Err() != nil {
			res.Errors = append(res.Errors, &models.IngestionError{Filename: f.Name, Err: ctx.Err()})
			continue
		}
		status, err := in.processOne(ctx, f)
		switch {
		case err != nil:
			in.logger.Error("file ingestion failed", zap.String("filename", f.Name), zap.Error(err))
			res.Errors = append(res.Errors, &models.IngestionError{Filename: f.Name, Err: err})
		case status == statusSkipped:
			res.Skipped = append(res.Skipped, f.Name)
		default:
			res.Processed = append(res.Processed, f.Name)
		}
	}
	return res
}

type fileStatus int

const (
	statusProcessed fileStatus = iota
	statusSkipped
)

func (in *Ingestor) processOne(ctx context.Context, f File) (fileStatus, error) {
	sum := sha256.Sum256(f.Data)
	hash := hex.EncodeToString(sum[:])

	if in.session.HasFile(f.Name, hash) {
		in.logger.Info("file already indexed, skipping", zap.String("filename", f.Name))
		return statusSkipped, nil
	}

	chunks, embeddings, err := in.loadOrProcess(ctx, f, hash)
	if err != nil {
		return 0, err
	}
	if len(chunks) == 0 {
		in.logger.Info("file produced no content", zap.String("filename", f.Name))
		return statusSkipped, nil
	}

	if err := in.session.Append(ctx, f.Name, hash, chunks, embeddings); err != nil {
		return 0, err
	}
	return statusProcessed, nil
}

// loadOrProcess resolves a file to chunks and embeddings, from the content
// cache when possible.
func (in *Ingestor) loadOrProcess(ctx context.Context, f File, hash string) ([]models.Chunk, [][]float32, error) {
	if entry, ok := in.cache.Lookup(hash); ok {
		in.logger.Info("cache hit", zap.String("filename", f.Name), zap.String("hash", hash[:12]))
		chunks := relabel(entry.Chunks, f.Name)
		embeddings := entry.Embeddings
		if embeddings == nil {
			var err error
			embeddings, err = in.embedChunks(ctx, chunks)
			if err != nil {
				return nil, nil, err
			}
			if err := in.cache.StoreEmbeddings(hash, embeddings); err != nil {
				in.logger.Warn("caching embeddings failed", zap.String("hash", hash[:12]), zap.Error(err))
			}
		}
		// Cached audio chunks reference a playable file; make sure it exists.
		if isAudio(f.Name) {
			if _, err := in.media.SaveAudio(f.Name, f.Data); err != nil {
				in.logger.Warn("persisting audio failed", zap.String("filename", f.Name), zap.Error(err))
			}
		}
		return chunks, embeddings, nil
	}

	chunks, err := in.processFile(ctx, f)
	if err != nil {
		return nil, nil, err
	}
	if len(chunks) == 0 {
		return nil, nil, nil
	}
	embeddings, err := in.embedChunks(ctx, chunks)
	if err != nil {
		return nil, nil, err
	}
	if err := in.cache.Store(hash, chunks, embeddings); err != nil {
		in.logger.Warn("caching file failed", zap.String("hash", hash[:12]), zap.Error(err))
	}
	return chunks, embeddings, nil
}

func (in *Ingestor) processFile(ctx context.Context, f File) ([]models.Chunk, error) {
	switch {
	case hasExt(f.Name, ".pdf"):
		return in.processPDF(ctx, f.Name, f.Data)
	case hasExt(f.Name, ".docx"):
		return in.processDOCX(ctx, f.Name, f.Data)
	case isAudio(f.Name):
		return in.processAudio(ctx, f.Name, f.Data)
	default:
		return nil, fmt.Errorf("unsupported file type %q", filepath.Ext(f.Name))
	}
}

func (in *Ingestor) embedChunks(ctx context.Context, chunks []models.Chunk) ([][]float32, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	return in.embedder.EmbedBatch(ctx, texts)
}

// relabel points cached chunks at the filename used in this upload. The same
// content can arrive under a different name.
func relabel(chunks []models.Chunk, filename string) []models.Chunk {
	out := make([]models.Chunk, len(chunks))
	copy(out, chunks)
	for i := range out {
		out[i].SourceFilename = filename
	}
	return out
}

func hasExt(name, ext string) bool {
	return strings.EqualFold(filepath.Ext(name), ext)
}

func isAudio(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".mp3", ".wav", ".m4a", ".ogg":
		return true
	}
	return false
}

// processPDF fans pages out to the worker pool and reassembles results in
// page order.
func (in *Ingestor) processPDF(ctx context.Context, name string, data []byte) ([]models.Chunk, error) {
	pages, err := in.extractor.PDF(data)
	if err != nil {
		return nil, fmt.Errorf("extracting pdf: %w", err)
	}

	results := make([][]models.Chunk, len(pages))
	var wg sync.WaitGroup
	for i, page := range pages {
		wg.Add(1)
		go func(i int, page extract.Page) {
			defer wg.Done()
			in.pageSem <- struct{}{}
			defer func() { <-in.pageSem }()
			results[i] = in.processPage(ctx, name, page)
		}(i, page)
	}
	wg.Wait()

	var chunks []models.Chunk
	for _, pageChunks := range results {
		chunks = append(chunks, pageChunks...)
	}
	return chunks, nil
}

func (in *Ingestor) processPage(ctx context.Context, name string, page extract.Page) []models.Chunk {
	var chunks []models.Chunk
	imageIndex := 0
	for _, elem := range page.Elements {
		switch elem.Kind {
		case extract.ElementText:
			if strings.TrimSpace(elem.Text) == "" {
				continue
			}
			for _, text := range chunker.SplitText(elem.Text, in.chunking.ChunkSize, in.chunking.ChunkOverlap) {
				chunks = append(chunks, models.Chunk{
					Text:           text,
					Modality:       models.ModalityText,
					SourceFilename: name,
					Ordinal:        page.Number,
				})
			}
		case extract.ElementImage:
			mediaName, err := in.media.SavePageImage(name, page.Number, imageIndex, elem.Image, elem.ImageExt)
			imageIndex++
			if err != nil {
				in.logger.Warn("storing page image failed",
					zap.String("filename", name), zap.Int("page", page.Number), zap.Error(err))
				continue
			}
			caption, ocrText := in.describeImage(ctx, elem.Image, elem.ImageExt, mediaName)
			chunks = append(chunks, models.Chunk{
				Text:           chunker.PageImageText(name, page.Number, caption, ocrText),
				Modality:       models.ModalityImage,
				SourceFilename: name,
				Ordinal:        page.Number,
				MediaPath:      mediaName,
				VisionCaption:  caption,
				OCRText:        ocrText,
			})
		}
	}
	return chunks
}

// describeImage runs OCR and vision captioning under the image worker limit.
// Both degrade softly: a failed caption becomes a placeholder, failed OCR
// becomes empty text.
func (in *Ingestor) describeImage(ctx context.Context, data []byte, ext, mediaName string) (caption, ocrText string) {
	in.imageSem <- struct{}{}
	defer func() { <-in.imageSem }()

	ocrText, err := in.ocr.Extract(ctx, data, mediaName)
	if err != nil {
		in.logger.Warn("ocr failed", zap.String("image", mediaName), zap.Error(err))
		ocrText = ""
	}
	caption, err = in.captioner.Describe(ctx, data, mimeTypeFor(ext))
	if err != nil {
		in.logger.Warn("captioning failed", zap.String("image", mediaName), zap.Error(err))
		caption = vision.PlaceholderCaption
	}
	return caption, ocrText
}

func mimeTypeFor(ext string) string {
	switch strings.ToLower(ext) {
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	default:
		return "image/jpeg"
	}
}

// processDOCX walks the document's element stream in order, accumulating
// prose until a chunk boundary and flushing it before each embedded image so
// chunk positions follow reading order.
func (in *Ingestor) processDOCX(ctx context.Context, name string, data []byte) ([]models.Chunk, error) {
	elements, err := in.extractor.DOCX(data)
	if err != nil {
		return nil, fmt.Errorf("extracting docx: %w", err)
	}

	var chunks []models.Chunk
	var pending strings.Builder
	position := 0

	flush := func() {
		text := strings.TrimSpace(pending.String())
		pending.Reset()
		if text == "" {
			return
		}
		for _, piece := range chunker.SplitText(text, in.chunking.ChunkSize, in.chunking.DocxChunkOverlap) {
			position++
			chunks = append(chunks, models.Chunk{
				Text:           piece,
				Modality:       models.ModalityText,
				SourceFilename: name,
				Ordinal:        position,
			})
		}
	}

	for idx, elem := range elements {
		switch elem.Kind {
		case extract.ElementText:
			pending.WriteString(elem.Text)
			pending.WriteString("\n")
			if pending.Len() >= in.chunking.ChunkSize {
				flush()
			}
		case extract.ElementImage:
			before := in.contextBefore(pending.String(), chunks)
			flush()
			after := contextAfter(elements, idx, in.chunking.ImageContextChars)

			position++
			mediaName, err := in.media.SaveFlowedImage(name, position, elem.Image, elem.ImageExt)
			if err != nil {
				in.logger.Warn("storing document image failed",
					zap.String("filename", name), zap.Int("position", position), zap.Error(err))
				continue
			}
			caption, ocrText := in.describeImage(ctx, elem.Image, elem.ImageExt, mediaName)
			surrounding := chunker.SurroundingContext(before, after, in.chunking.ImageContextChars)
			chunks = append(chunks, models.Chunk{
				Text:           chunker.FlowedImageText(name, caption, ocrText, surrounding),
				Modality:       models.ModalityImage,
				SourceFilename: name,
				Ordinal:        position,
				MediaPath:      mediaName,
				VisionCaption:  caption,
				OCRText:        ocrText,
			})
		}
	}
	flush()
	return chunks, nil
}

// contextBefore prefers the prose immediately preceding an image; when none
// is pending it falls back to the tail of recently flushed text chunks.
func (in *Ingestor) contextBefore(pending string, chunks []models.Chunk) string {
	if strings.TrimSpace(pending) != "" {
		return chunker.Tail(pending, in.chunking.ImageContextChars)
	}
	var parts []string
	start := len(chunks) - 3
	if start < 0 {
		start = 0
	}
	for _, c := range chunks[start:] {
		if c.Modality == models.ModalityText {
			parts = append(parts, chunker.Head(c.Text, 300))
		}
	}
	return chunker.Tail(strings.Join(parts, " "), in.chunking.ImageContextChars)
}

// contextAfter gathers prose from the next few elements following an image.
func contextAfter(elements []extract.Element, idx, limit int) string {
	var b strings.Builder
	for i := idx + 1; i < len(elements) && i <= idx+3; i++ {
		if elements[i].Kind != extract.ElementText {
			continue
		}
		b.WriteString(elements[i].Text)
		b.WriteString(" ")
		if b.Len() >= limit {
			break
		}
	}
	return chunker.Head(strings.TrimSpace(b.String()), limit)
}

// processAudio transcribes the file, persists it for playback, and chunks
// the transcript along segment boundaries.
func (in *Ingestor) processAudio(ctx context.Context, name string, data []byte) ([]models.Chunk, error) {
	segments, err := in.transcriber.Transcribe(ctx, data, name)
	if err != nil {
		return nil, err
	}
	mediaName, err := in.media.SaveAudio(name, data)
	if err != nil {
		return nil, err
	}
	chunks := chunker.ChunkSegments(name, segments, in.chunking.AudioChunkSize, in.chunking.AudioOverlap)
	for i := range chunks {
		chunks[i].MediaPath = mediaName
	}
	return chunks, nil
}
