package rerank

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/models"
)

func TestScore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rerankRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if req.Query != "what is revenue" {
			t.Errorf("query = %q", req.Query)
		}
		if len(req.Documents) != 2 {
			t.Errorf("documents = %d", len(req.Documents))
		}
		w.Write([]byte(`{"scores": [0.9, 0.1]}`))
	}))
	defer srv.Close()

	client := NewHTTPReranker(srv.URL, zap.NewNop())
	scores, err := client.Score(context.Background(), "what is revenue", []string{"a", "b"})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if len(scores) != 2 || scores[0] != 0.9 || scores[1] != 0.1 {
		t.Errorf("scores = %v", scores)
	}
}

func TestScoreEmptyInput(t *testing.T) {
	client := NewHTTPReranker("http://unused", zap.NewNop())
	scores, err := client.Score(context.Background(), "q", nil)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if scores != nil {
		t.Errorf("expected nil, got %v", scores)
	}
}

func TestScoreCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"scores": [0.5]}`))
	}))
	defer srv.Close()

	client := NewHTTPReranker(srv.URL, zap.NewNop())
	_, err := client.Score(context.Background(), "q", []string{"a", "b"})
	if err == nil {
		t.Fatal("expected error on score count mismatch")
	}
}

func TestScoreBreakerOpens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewHTTPReranker(srv.URL, zap.NewNop())
	for i := 0; i < 3; i++ {
		if _, err := client.Score(context.Background(), "q", []string{"a"}); err == nil {
			t.Fatal("expected error")
		}
	}
	_, err := client.Score(context.Background(), "q", []string{"a"})
	var svcErr *models.ExternalServiceError
	if !errors.As(err, &svcErr) {
		t.Fatalf("expected ExternalServiceError, got %v", err)
	}
	if !errors.Is(svcErr.Err, gobreaker.ErrOpenState) {
		t.Errorf("expected open breaker, got %v", svcErr.Err)
	}
}
