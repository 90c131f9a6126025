package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/sony/gobreaker"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hyperjump/kotae/internal/models"
)

const expansionTemplate = `Based on the user's question, generate %d additional, different, and more specific queries that are likely to find relevant documents in a vector database.
Focus on rephrasing, using synonyms, and breaking down the question into sub-questions.
Provide ONLY the queries, each on a new line. Do not number them or add any other text.

Original Question: %s

Generated Queries:`

const answerTemplate = `Answer the question based ONLY on the following context.
Context:
%s

Answer in plain prose. If the question asks to show an image, graph, chart, or diagram, give a one line caption for it if one is available. If the context does not contain the answer, say "I couldn't find any relevant information in the uploaded documents to answer your question." Do not make up answers. Be concise.

Question: %s`

// Ollama generates answers and query expansions through two Ollama models.
// A small expansion model keeps retrieval latency low while the chat model
// handles the final answer.
type Ollama struct {
	chat      *ollama.LLM
	expansion *ollama.LLM
	limiter   *rate.Limiter
	breaker   *gobreaker.CircuitBreaker
	logger    *zap.Logger
}

// NewOllama connects both models on the given server.
func NewOllama(serverURL, chatModel, expansionModel string, rps float64, logger *zap.Logger) (*Ollama, error) {
	chat, err := ollama.New(
		ollama.WithServerURL(serverURL),
		ollama.WithModel(chatModel),
	)
	if err != nil {
		return nil, fmt.Errorf("initializing chat model: %w", err)
	}
	expansion, err := ollama.New(
		ollama.WithServerURL(serverURL),
		ollama.WithModel(expansionModel),
	)
	if err != nil {
		return nil, fmt.Errorf("initializing expansion model: %w", err)
	}
	if rps <= 0 {
		rps = 10
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ollama-generate",
		MaxRequests: 3,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return &Ollama{
		chat:      chat,
		expansion: expansion,
		limiter:   rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		breaker:   breaker,
		logger:    logger,
	}, nil
}

// Expand asks the expansion model for up to count alternative phrasings of
// question. The original question is not included in the result.
func (o *Ollama) Expand(ctx context.Context, question string, count int) ([]string, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	prompt := fmt.Sprintf(expansionTemplate, count, question)
	raw, err := o.breaker.Execute(func() (interface{}, error) {
		return llms.GenerateFromSinglePrompt(ctx, o.expansion, prompt)
	})
	if err != nil {
		return nil, &models.ExternalServiceError{Stage: "expansion", Err: err}
	}
	return parseExpansions(raw.(string), count), nil
}

// Stream generates the answer with the chat model, forwarding tokens as the
// model emits them.
func (o *Ollama) Stream(ctx context.Context, contextText, question string, onToken func(string) error) error {
	if err := o.limiter.Wait(ctx); err != nil {
		return err
	}
	prompt := fmt.Sprintf(answerTemplate, contextText, question)
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}
	_, err := o.chat.GenerateContent(ctx, messages,
		llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			return onToken(string(chunk))
		}))
	if err != nil {
		return &models.ExternalServiceError{Stage: "generation", Err: err}
	}
	return nil
}

// parseExpansions extracts up to count non-empty query lines, stripping any
// numbering or bullets the model added anyway.
func parseExpansions(raw string, count int) []string {
	var out []string
	seen := make(map[string]bool)
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "0123456789.)- *")
		line = strings.TrimSpace(line)
		if line == "" || seen[line] {
			continue
		}
		seen[line] = true
		out = append(out, line)
		if len(out) == count {
			break
		}
	}
	return out
}
