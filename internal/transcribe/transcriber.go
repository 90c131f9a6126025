// Package transcribe turns audio files into time-stamped transcript segments.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/models"
)

// Transcriber converts audio into ordered transcript segments.
type Transcriber interface {
	Transcribe(ctx context.Context, audioData []byte, filename string) ([]models.Segment, error)
}

// HTTPTranscriber talks to a whisper sidecar service over multipart HTTP.
type HTTPTranscriber struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

type transcribeResponse struct {
	Segments []struct {
		Text  string  `json:"text"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
	} `json:"segments"`
	Error string `json:"error,omitempty"`
}

// NewHTTPTranscriber returns a client for the transcription service at
// baseURL. Long audio takes long to transcribe, so the client timeout is
// generous.
func NewHTTPTranscriber(baseURL string, logger *zap.Logger) *HTTPTranscriber {
	return &HTTPTranscriber{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Minute,
		},
		logger: logger,
	}
}

// Transcribe uploads the audio and returns its segments in time order.
func (c *HTTPTranscriber) Transcribe(ctx context.Context, audioData []byte, filename string) ([]models.Segment, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	fileWriter, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("creating form file: %w", err)
	}
	if _, err := fileWriter.Write(audioData); err != nil {
		return nil, fmt.Errorf("writing form file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("closing multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transcribe", &buf)
	if err != nil {
		return nil, fmt.Errorf("creating transcription request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &models.ExternalServiceError{Stage: "transcription", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &models.ExternalServiceError{
			Stage: "transcription",
			Err:   fmt.Errorf("status %d: %s", resp.StatusCode, string(body)),
		}
	}

	var tr transcribeResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, &models.ExternalServiceError{Stage: "transcription", Err: fmt.Errorf("decoding response: %w", err)}
	}
	if tr.Error != "" {
		return nil, &models.ExternalServiceError{Stage: "transcription", Err: fmt.Errorf("%s", tr.Error)}
	}

	segments := make([]models.Segment, 0, len(tr.Segments))
	for _, s := range tr.Segments {
		segments = append(segments, models.Segment{Text: s.Text, Start: s.Start, End: s.End})
	}
	c.logger.Debug("transcription complete",
		zap.String("filename", filename),
		zap.Int("segments", len(segments)))
	return segments, nil
}
