// Package retrieve answers questions over the indexed session: query
// expansion, vector search, reranking, and a streamed model answer with
// source attributions.
package retrieve

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/rerank"
	"github.com/hyperjump/kotae/internal/session"
	"github.com/hyperjump/kotae/pkg/utils"
)

// NoInfoMessage is streamed verbatim when retrieval finds nothing relevant.
const NoInfoMessage = "I couldn't find any relevant information in the uploaded documents to answer your question."

// Questions containing these words retrieve more chunks, so a figure the
// user asked about has a better chance of surfacing.
var visualKeywords = []string{"image", "graph", "chart", "diagram", "picture", "show"}

// showKeywords additionally trigger inline display of image sources.
var showKeywords = []string{"show", "display", "image", "graph", "chart", "diagram", "picture"}

// EventType discriminates stream events.
type EventType string

const (
	EventToken   EventType = "token"
	EventSources EventType = "sources"
	EventError   EventType = "error"
)

// Event is one item of an answer stream: a token of model output, the
// trailing source list, or a terminal error.
type Event struct {
	Type    EventType
	Token   string
	Sources []models.Source
	Err     error
}

// Options wires a Retriever's collaborators.
type Options struct {
	Embedder  embedding.Embedder
	Generator llm.Generator
	Reranker  rerank.Reranker
	Session   *session.Session
	Retrieval config.RetrievalConfig
	Logger    *zap.Logger
}

// Retriever executes the question answering flow.
type Retriever struct {
	embedder  embedding.Embedder
	generator llm.Generator
	reranker  rerank.Reranker
	session   *session.Session
	cfg       config.RetrievalConfig
	logger    *zap.Logger
}

// New builds a Retriever from Options.
func New(opts Options) *Retriever {
	return &Retriever{
		embedder:  opts.Embedder,
		generator: opts.Generator,
		reranker:  opts.Reranker,
		session:   opts.Session,
		cfg:       opts.Retrieval,
		logger:    opts.Logger,
	}
}

// Ask validates the question and starts the answer stream. The returned
// channel closes when the stream is done; a canceled ctx stops it early.
func (r *Retriever) Ask(ctx context.Context, question string) (<-chan Event, error) {
	if strings.TrimSpace(question) == "" {
		return nil, &models.ValidationError{Field: "question"}
	}
	if r.session.IndexSize() == 0 {
		return nil, models.ErrNoDocuments
	}
	events := make(chan Event)
	go func() {
		defer close(events)
		r.run(ctx, question, events)
	}()
	return events, nil
}

type candidate struct {
	handle int
	chunk  models.Chunk
	score  float64
}

func (r *Retriever) run(ctx context.Context, question string, events chan<- Event) {
	candidates, err := r.gather(ctx, question)
	if err != nil {
		r.emit(ctx, events, Event{Type: EventError, Err: err})
		return
	}
	if len(candidates) == 0 {
		r.emit(ctx, events, Event{Type: EventToken, Token: NoInfoMessage})
		return
	}

	selected, err := r.rank(ctx, question, candidates)
	if err != nil {
		r.emit(ctx, events, Event{Type: EventError, Err: err})
		return
	}

	contextText := assembleContext(selected)
	streamErr := r.generator.Stream(ctx, contextText, question, func(token string) error {
		if !r.emit(ctx, events, Event{Type: EventToken, Token: token}) {
			return ctx.Err()
		}
		return nil
	})
	if streamErr != nil {
		r.emit(ctx, events, Event{Type: EventError, Err: streamErr})
		return
	}

	r.emit(ctx, events, Event{Type: EventSources, Sources: buildSources(question, selected)})
}

// gather expands the question, searches the index with every phrasing, and
// returns the deduplicated candidates in handle order.
func (r *Retriever) gather(ctx context.Context, question string) ([]candidate, error) {
	queries := []string{question}
	expansions, err := r.generator.Expand(ctx, question, r.cfg.ExpansionCount)
	if err != nil {
		// Retrieval still works with just the original phrasing.
		r.logger.Warn("query expansion failed, using original question only", zap.Error(err))
	} else {
		queries = append(queries, expansions...)
	}
	queries = dedupe(queries)

	vectors, err := r.embedder.EmbedBatch(ctx, queries)
	if err != nil {
		return nil, err
	}
	hitLists, err := r.session.SearchMany(ctx, vectors, r.cfg.KRetrieval)
	if err != nil {
		return nil, err
	}

	seen := make(map[int]bool)
	var handles []int
	for _, hits := range hitLists {
		for _, hit := range hits {
			if !seen[hit.Handle] {
				seen[hit.Handle] = true
				handles = append(handles, hit.Handle)
			}
		}
	}
	sort.Ints(handles)

	candidates := make([]candidate, 0, len(handles))
	for _, h := range handles {
		chunk, ok := r.session.Chunk(h)
		if !ok {
			continue
		}
		candidates = append(candidates, candidate{handle: h, chunk: chunk})
	}
	r.logger.Debug("retrieval candidates",
		zap.String("question", utils.Truncate(question, 120)),
		zap.Int("queries", len(queries)),
		zap.Int("candidates", len(candidates)))
	return candidates, nil
}

// rank reranks candidates against the question and keeps the best few. Image
// oriented questions keep one more so figures survive the cut.
func (r *Retriever) rank(ctx context.Context, question string, candidates []candidate) ([]candidate, error) {
	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.chunk.Text
	}
	scores, err := r.reranker.Score(ctx, question, texts)
	if err != nil {
		return nil, err
	}
	for i := range candidates {
		candidates[i].score = scores[i]
	}
	// Stable over handle order, so equal scores resolve deterministically.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	topK := r.cfg.TopK
	if containsAny(question, visualKeywords) {
		topK = r.cfg.TopKVisual
	}
	if topK > len(candidates) {
		topK = len(candidates)
	}
	return candidates[:topK], nil
}

func (r *Retriever) emit(ctx context.Context, events chan<- Event, ev Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func assembleContext(selected []candidate) string {
	parts := make([]string, len(selected))
	for i, c := range selected {
		parts[i] = fmt.Sprintf("Source from %s, Page/Chunk %d:\n%s",
			c.chunk.SourceFilename, c.chunk.Ordinal, c.chunk.Text)
	}
	return strings.Join(parts, "\n\n")
}

func buildSources(question string, selected []candidate) []models.Source {
	showImages := containsAny(question, showKeywords)
	sources := make([]models.Source, 0, len(selected))
	for _, c := range selected {
		src := models.Source{
			SourceFilename: c.chunk.SourceFilename,
			Ordinal:        c.chunk.Ordinal,
			Content:        c.chunk.Text,
			Modality:       c.chunk.Modality,
			Score:          c.score,
		}
		switch c.chunk.Modality {
		case models.ModalityImage:
			src.MediaPath = c.chunk.MediaPath
			src.VisionCaption = c.chunk.VisionCaption
			show := showImages
			src.ShowInline = &show
		case models.ModalityAudio:
			start, end, dur := c.chunk.StartTime, c.chunk.EndTime, c.chunk.Duration
			src.StartTime = &start
			src.EndTime = &end
			src.Duration = &dur
			src.TimestampDisplay = fmt.Sprintf("%s - %s",
				utils.FormatTimestamp(start), utils.FormatTimestamp(end))
		}
		sources = append(sources, src)
	}
	return sources
}

func containsAny(question string, keywords []string) bool {
	q := strings.ToLower(question)
	for _, kw := range keywords {
		if strings.Contains(q, kw) {
			return true
		}
	}
	return false
}

func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := items[:0]
	for _, s := range items {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
