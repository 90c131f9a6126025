// Package llm drives the chat and query-expansion language models.
package llm

import "context"

// Generator produces model output for the question answering flow.
type Generator interface {
	// Expand rewrites a question into alternative phrasings for retrieval.
	Expand(ctx context.Context, question string, count int) ([]string, error)
	// Stream generates an answer grounded in contextText, delivering tokens
	// to onToken as they arrive. A non-nil error from onToken stops the
	// stream.
	Stream(ctx context.Context, contextText, question string, onToken func(string) error) error
}
