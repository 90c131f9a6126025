// Package vision describes and reads text out of document images.
package vision

import (
	"context"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/models"
)

// PlaceholderCaption substitutes for a vision model description that could
// not be generated. Image chunks keep their OCR text either way.
const PlaceholderCaption = "Unable to generate detailed image description."

const captionPrompt = "Describe this image in detail. Mention any charts, diagrams, tables, or figures and what they show."

// Captioner produces a prose description of an image.
type Captioner interface {
	Describe(ctx context.Context, imageData []byte, mimeType string) (string, error)
}

// OllamaCaptioner captions images with a multimodal Ollama model. Each call
// is bounded by a timeout so one stubborn image cannot stall a whole upload.
type OllamaCaptioner struct {
	llm     *ollama.LLM
	timeout time.Duration
	logger  *zap.Logger
}

// NewOllamaCaptioner prepares the vision model on the given server.
func NewOllamaCaptioner(serverURL, model string, timeout time.Duration, logger *zap.Logger) (*OllamaCaptioner, error) {
	llm, err := ollama.New(
		ollama.WithServerURL(serverURL),
		ollama.WithModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("initializing vision model: %w", err)
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OllamaCaptioner{llm: llm, timeout: timeout, logger: logger}, nil
}

// Describe sends the image to the vision model and returns its description.
func (c *OllamaCaptioner) Describe(ctx context.Context, imageData []byte, mimeType string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	messages := []llms.MessageContent{
		{
			Role: llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{
				llms.BinaryPart(mimeType, imageData),
				llms.TextPart(captionPrompt),
			},
		},
	}
	resp, err := c.llm.GenerateContent(ctx, messages)
	if err != nil {
		return "", &models.ExternalServiceError{Stage: "caption", Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &models.ExternalServiceError{Stage: "caption", Err: fmt.Errorf("empty response")}
	}
	return resp.Choices[0].Content, nil
}
