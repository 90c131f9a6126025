// Package rerank scores retrieved chunks against the question with a
// cross-encoder service.
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/models"
)

// Reranker assigns a relevance score to each text for the given query.
// Scores are returned in input order; higher is more relevant.
type Reranker interface {
	Score(ctx context.Context, query string, texts []string) ([]float64, error)
}

// HTTPReranker calls a cross-encoder sidecar. A circuit breaker keeps a dead
// service from adding its full timeout to every question.
type HTTPReranker struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *zap.Logger
}

type rerankRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

type rerankResponse struct {
	Scores []float64 `json:"scores"`
	Error  string    `json:"error,omitempty"`
}

// NewHTTPReranker returns a client for the reranking service at baseURL.
func NewHTTPReranker(baseURL string, logger *zap.Logger) *HTTPReranker {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "reranker",
		MaxRequests: 2,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return &HTTPReranker{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		breaker: breaker,
		logger:  logger,
	}
}

// Score sends the query and candidate texts in one request.
func (c *HTTPReranker) Score(ctx context.Context, query string, texts []string) ([]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.score(ctx, query, texts)
	})
	if err != nil {
		return nil, &models.ExternalServiceError{Stage: "rerank", Err: err}
	}
	return result.([]float64), nil
}

func (c *HTTPReranker) score(ctx context.Context, query string, texts []string) ([]float64, error) {
	body, err := json.Marshal(rerankRequest{Query: query, Documents: texts})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(msg))
	}

	var rr rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if rr.Error != "" {
		return nil, fmt.Errorf("%s", rr.Error)
	}
	if len(rr.Scores) != len(texts) {
		return nil, fmt.Errorf("got %d scores for %d documents", len(rr.Scores), len(texts))
	}
	return rr.Scores, nil
}
