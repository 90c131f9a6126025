package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/models"
)

// Images smaller than this on either axis are decorative: bullets, rules,
// logos. They carry no readable text worth an OCR round trip.
const minOCRDimension = 50

// OCR extracts printed text from an image. An empty result with a nil error
// means the image simply had no readable text.
type OCR interface {
	Extract(ctx context.Context, imageData []byte, filename string) (string, error)
}

// HTTPOCR talks to a sidecar OCR service over multipart HTTP.
type HTTPOCR struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

type ocrResponse struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

// NewHTTPOCR returns a client for the OCR service at baseURL.
func NewHTTPOCR(baseURL string, logger *zap.Logger) *HTTPOCR {
	return &HTTPOCR{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 2 * time.Minute,
		},
		logger: logger,
	}
}

// Extract runs OCR on the image. Images too small to carry readable text are
// skipped without contacting the service.
func (c *HTTPOCR) Extract(ctx context.Context, imageData []byte, filename string) (string, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(imageData))
	if err == nil && (cfg.Width <= minOCRDimension || cfg.Height <= minOCRDimension) {
		return "", nil
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	fileWriter, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("creating form file: %w", err)
	}
	if _, err := fileWriter.Write(imageData); err != nil {
		return "", fmt.Errorf("writing form file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("closing multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/ocr", &buf)
	if err != nil {
		return "", fmt.Errorf("creating OCR request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &models.ExternalServiceError{Stage: "ocr", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &models.ExternalServiceError{
			Stage: "ocr",
			Err:   fmt.Errorf("status %d: %s", resp.StatusCode, string(body)),
		}
	}

	var ocrResp ocrResponse
	if err := json.NewDecoder(resp.Body).Decode(&ocrResp); err != nil {
		return "", &models.ExternalServiceError{Stage: "ocr", Err: fmt.Errorf("decoding response: %w", err)}
	}
	if ocrResp.Error != "" {
		return "", &models.ExternalServiceError{Stage: "ocr", Err: fmt.Errorf("%s", ocrResp.Error)}
	}
	return ocrResp.Text, nil
}
