package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/cache"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/ingest"
	"github.com/hyperjump/kotae/internal/media"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/retrieve"
	"github.com/hyperjump/kotae/internal/session"
)

type fakeCaptioner struct{}

func (fakeCaptioner) Describe(ctx context.Context, imageData []byte, mimeType string) (string, error) {
	return "A test image.", nil
}

type fakeOCR struct{}

func (fakeOCR) Extract(ctx context.Context, imageData []byte, filename string) (string, error) {
	return "", nil
}

type fakeTranscriber struct{}

func (fakeTranscriber) Transcribe(ctx context.Context, audioData []byte, filename string) ([]models.Segment, error) {
	return []models.Segment{
		{Text: "the quarterly revenue was five million", Start: 0, End: 4},
	}, nil
}

type fakeGenerator struct{}

func (fakeGenerator) Expand(ctx context.Context, question string, count int) ([]string, error) {
	return []string{"revenue numbers"}, nil
}

func (fakeGenerator) Stream(ctx context.Context, contextText, question string, onToken func(string) error) error {
	for _, tok := range []string{"Revenue ", "was ", "$5M."} {
		if err := onToken(tok); err != nil {
			return err
		}
	}
	return nil
}

type fakeReranker struct{}

func (fakeReranker) Score(ctx context.Context, query string, texts []string) ([]float64, error) {
	scores := make([]float64, len(texts))
	for i := range scores {
		scores[i] = 1 - float64(i)*0.1
	}
	return scores, nil
}

type testEnv struct {
	srv      *httptest.Server
	session  *session.Session
	mediaDir string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zap.NewNop()
	cacheStore, err := cache.NewStore(t.TempDir(), logger)
	if err != nil {
		t.Fatal(err)
	}
	mediaStore, err := media.NewStore(t.TempDir(), logger)
	if err != nil {
		t.Fatal(err)
	}
	sess := session.New(16, logger)
	embedder := embedding.NewMockEmbedder(16)

	ing := ingest.New(ingest.Options{
		Extractor:   extract.NewExtractor(),
		Embedder:    embedder,
		Cache:       cacheStore,
		Media:       mediaStore,
		Session:     sess,
		Captioner:   fakeCaptioner{},
		OCR:         fakeOCR{},
		Transcriber: fakeTranscriber{},
		Chunking: config.ChunkingConfig{
			ChunkSize: 1000, ChunkOverlap: 150, DocxChunkOverlap: 200,
			AudioChunkSize: 1000, AudioOverlap: 150, ImageContextChars: 500,
		},
		Workers: config.WorkersConfig{Pages: 2, Images: 2},
		Logger:  logger,
	})
	ret := retrieve.New(retrieve.Options{
		Embedder:  embedder,
		Generator: fakeGenerator{},
		Reranker:  fakeReranker{},
		Session:   sess,
		Retrieval: config.RetrievalConfig{KRetrieval: 5, TopK: 2, TopKVisual: 3, ExpansionCount: 3},
		Logger:    logger,
	})
	s := NewServer(ing, ret, fakeTranscriber{}, sess, cacheStore, mediaStore,
		&config.ServerConfig{Host: "127.0.0.1", Port: 0, MaxUploadMB: 10}, logger)

	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, session: sess, mediaDir: mediaStore.Dir()}
}

func multipartBody(t *testing.T, field string, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, data := range files {
		fw, err := w.CreateFormFile(field, name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write(data); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, w.FormDataContentType()
}

func uploadAudio(t *testing.T, env *testEnv, name string) {
	t.Helper()
	body, contentType := multipartBody(t, "files", map[string][]byte{name: []byte("audio-" + name)})
	resp, err := http.Post(env.srv.URL+"/upload", contentType, body)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("upload status %d: %s", resp.StatusCode, b)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	resp, err := http.Get(env.srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestUploadAndFiles(t *testing.T) {
	env := newTestEnv(t)
	uploadAudio(t, env, "talk.mp3")

	resp, err := http.Get(env.srv.URL + "/files")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out struct {
		Files           []string `json:"files"`
		TotalChunks     int      `json:"total_chunks"`
		VectorStoreSize int      `json:"vector_store_size"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.Files) != 1 || out.Files[0] != "talk.mp3" {
		t.Errorf("files = %v", out.Files)
	}
	if out.TotalChunks != 1 || out.VectorStoreSize != 1 {
		t.Errorf("chunks = %d, vectors = %d", out.TotalChunks, out.VectorStoreSize)
	}
}

func TestUploadNoFiles(t *testing.T) {
	env := newTestEnv(t)
	body, contentType := multipartBody(t, "files", nil)
	resp, err := http.Post(env.srv.URL+"/upload", contentType, body)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestUploadReportsPerFileErrors(t *testing.T) {
	env := newTestEnv(t)
	body, contentType := multipartBody(t, "files", map[string][]byte{
		"good.mp3": []byte("audio"),
		"bad.txt":  []byte("unsupported"),
	})
	resp, err := http.Post(env.srv.URL+"/upload", contentType, body)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var out struct {
		Filenames []string `json:"filenames"`
		Errors    []struct {
			Filename string `json:"filename"`
			Error    string `json:"error"`
		} `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.Filenames) != 1 || out.Filenames[0] != "good.mp3" {
		t.Errorf("filenames = %v", out.Filenames)
	}
	if len(out.Errors) != 1 || out.Errors[0].Filename != "bad.txt" {
		t.Errorf("errors = %v", out.Errors)
	}
}

func TestAskNoDocuments(t *testing.T) {
	env := newTestEnv(t)
	resp, err := http.Post(env.srv.URL+"/ask", "application/json",
		strings.NewReader(`{"question": "anything"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestAskStreamsAnswerAndSources(t *testing.T) {
	env := newTestEnv(t)
	uploadAudio(t, env, "talk.mp3")

	resp, err := http.Post(env.srv.URL+"/ask", "application/json",
		strings.NewReader(`{"question": "what was revenue"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	text := string(body)
	if !strings.HasPrefix(text, "Revenue was $5M.") {
		t.Errorf("answer prefix missing: %q", text)
	}
	idx := strings.Index(text, `{"type":"sources"`)
	if idx < 0 {
		t.Fatalf("sources trailer missing: %q", text)
	}
	var trailer struct {
		Type    string          `json:"type"`
		Content []models.Source `json:"content"`
	}
	if err := json.Unmarshal([]byte(text[idx:]), &trailer); err != nil {
		t.Fatalf("decoding trailer: %v", err)
	}
	if len(trailer.Content) != 1 {
		t.Fatalf("sources = %d", len(trailer.Content))
	}
	src := trailer.Content[0]
	if src.SourceFilename != "talk.mp3" || src.Modality != models.ModalityAudio {
		t.Errorf("source = %+v", src)
	}
	if src.TimestampDisplay != "00:00 - 00:04" {
		t.Errorf("timestamp = %q", src.TimestampDisplay)
	}
}

func TestAskMissingQuestion(t *testing.T) {
	env := newTestEnv(t)
	uploadAudio(t, env, "talk.mp3")
	resp, err := http.Post(env.srv.URL+"/ask", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestTranscribe(t *testing.T) {
	env := newTestEnv(t)
	body, contentType := multipartBody(t, "audio", map[string][]byte{"clip.wav": []byte("spoken")})
	resp, err := http.Post(env.srv.URL+"/transcribe", contentType, body)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out struct {
		Transcription string `json:"transcription"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Transcription != "the quarterly revenue was five million" {
		t.Errorf("transcription = %q", out.Transcription)
	}
}

func TestSessionInfoAndClear(t *testing.T) {
	env := newTestEnv(t)
	uploadAudio(t, env, "talk.mp3")

	resp, err := http.Get(env.srv.URL + "/session-info")
	if err != nil {
		t.Fatal(err)
	}
	var info struct {
		UploadedFiles []string                     `json:"uploaded_files"`
		FileIndices   map[string]models.FileRecord `json:"file_indices"`
		CacheStats    map[string]int               `json:"cache_stats"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if len(info.UploadedFiles) != 1 {
		t.Errorf("uploaded files = %v", info.UploadedFiles)
	}
	rec, ok := info.FileIndices["talk.mp3"]
	if !ok || rec.IndexStart != 0 || rec.IndexEnd != 1 {
		t.Errorf("file indices = %+v", info.FileIndices)
	}
	if info.CacheStats["cached_files"] != 1 {
		t.Errorf("cache stats = %v", info.CacheStats)
	}

	clearResp, err := http.Post(env.srv.URL+"/clear-session", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	clearResp.Body.Close()
	if env.session.ChunkCount() != 0 {
		t.Error("session not cleared")
	}
}

func TestMediaServing(t *testing.T) {
	env := newTestEnv(t)
	if err := os.WriteFile(filepath.Join(env.mediaDir, "doc_p1_0.jpeg"), []byte("jpeg-data"), 0o644); err != nil {
		t.Fatal(err)
	}
	resp, err := http.Get(env.srv.URL + "/media/doc_p1_0.jpeg")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	data, _ := io.ReadAll(resp.Body)
	if string(data) != "jpeg-data" {
		t.Errorf("body = %q", data)
	}
}

func TestStartReturnsServerClosedAfterStop(t *testing.T) {
	logger := zap.NewNop()
	cacheStore, err := cache.NewStore(t.TempDir(), logger)
	if err != nil {
		t.Fatal(err)
	}
	mediaStore, err := media.NewStore(t.TempDir(), logger)
	if err != nil {
		t.Fatal(err)
	}
	s := NewServer(nil, nil, nil, session.New(16, logger), cacheStore, mediaStore,
		&config.ServerConfig{Host: "127.0.0.1", Port: 0}, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- s.Start() }()
	// Let Start bind before shutting down.
	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			t.Errorf("Start returned %v, want http.ErrServerClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Stop")
	}
}
