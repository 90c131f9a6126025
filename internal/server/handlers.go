package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/ingest"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/retrieve"
)

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "running",
		"message": "Kotae multimodal document QA backend",
		"endpoints": map[string]string{
			"upload":        "/upload",
			"ask":           "/ask",
			"transcribe":    "/transcribe",
			"files":         "/files",
			"session_info":  "/session-info",
			"clear_session": "/clear-session",
			"media":         "/media/<filename>",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type uploadError struct {
	Filename string `json:"filename"`
	Error    string `json:"error"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	maxBytes := int64(s.config.MaxUploadMB) << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid multipart request")
		return
	}
	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		s.respondError(w, http.StatusBadRequest, "no files provided")
		return
	}

	files := make([]ingest.File, 0, len(headers))
	for _, h := range headers {
		f, err := h.Open()
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "unreadable file part")
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "unreadable file part")
			return
		}
		files = append(files, ingest.File{Name: h.Filename, Data: data})
	}

	result := s.ingestor.ProcessBatch(r.Context(), files)

	errs := make([]uploadError, 0, len(result.Errors))
	for _, e := range result.Errors {
		errs = append(errs, uploadError{Filename: e.Filename, Error: e.Err.Error()})
	}
	status := http.StatusOK
	if len(result.Processed) == 0 && len(result.Skipped) == 0 && len(errs) > 0 {
		status = http.StatusInternalServerError
	}
	s.respondJSON(w, status, map[string]interface{}{
		"message":   "Files processed",
		"filenames": result.Processed,
		"skipped":   result.Skipped,
		"errors":    errs,
	})
}

type askRequest struct {
	Question string `json:"question"`
}

// streamRecord is the JSON trailer appended to the token stream.
type streamRecord struct {
	Type    string      `json:"type"`
	Content interface{} `json:"content"`
}

// handleAsk streams the model answer as plain text tokens, then one JSON
// record carrying the sources (or an error). The client separates prose from
// the trailer by the opening brace of the record.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	events, err := s.retriever.Ask(r.Context(), req.Question)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNoDocuments):
			s.respondError(w, http.StatusBadRequest, "No documents uploaded yet")
		case isValidation(err):
			s.respondError(w, http.StatusBadRequest, "No question provided")
		default:
			s.respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	flusher, _ := w.(http.Flusher)
	flush := func() {
		if flusher != nil {
			flusher.Flush()
		}
	}

	for ev := range events {
		switch ev.Type {
		case retrieve.EventToken:
			if _, err := io.WriteString(w, ev.Token); err != nil {
				return
			}
			flush()
		case retrieve.EventSources:
			trailer, err := json.Marshal(streamRecord{Type: "sources", Content: ev.Sources})
			if err != nil {
				s.logger.Error("encoding sources failed", zap.Error(err))
				return
			}
			w.Write(trailer)
			flush()
		case retrieve.EventError:
			s.logger.Error("answer stream failed", zap.Error(ev.Err))
			trailer, _ := json.Marshal(streamRecord{Type: "error", Content: ev.Err.Error()})
			w.Write(trailer)
			flush()
			return
		}
	}
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	maxBytes := int64(s.config.MaxUploadMB) << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid multipart request")
		return
	}
	file, header, err := r.FormFile("audio")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "no audio file provided")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "unreadable audio file")
		return
	}

	segments, err := s.transcriber.Transcribe(r.Context(), data, header.Filename)
	if err != nil {
		var svcErr *models.ExternalServiceError
		if errors.As(err, &svcErr) {
			s.respondError(w, http.StatusBadGateway, err.Error())
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		parts = append(parts, strings.TrimSpace(seg.Text))
	}
	s.respondJSON(w, http.StatusOK, map[string]string{
		"transcription": strings.TrimSpace(strings.Join(parts, " ")),
	})
}

func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"files":             s.session.Files(),
		"total_chunks":      s.session.ChunkCount(),
		"vector_store_size": s.session.IndexSize(),
	})
}

func (s *Server) handleSessionInfo(w http.ResponseWriter, r *http.Request) {
	records := s.session.Records()
	indices := make(map[string]models.FileRecord, len(records))
	for _, rec := range records {
		indices[rec.Filename] = rec
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"uploaded_files":    s.session.Files(),
		"file_indices":      indices,
		"total_documents":   s.session.ChunkCount(),
		"vector_store_size": s.session.IndexSize(),
		"cache_stats": map[string]int{
			"cached_files": s.cache.Count(),
		},
	})
}

func (s *Server) handleClearSession(w http.ResponseWriter, r *http.Request) {
	s.session.Clear()
	s.respondJSON(w, http.StatusOK, map[string]string{"message": "Session cleared successfully"})
}

func isValidation(err error) bool {
	var vErr *models.ValidationError
	return errors.As(err, &vErr)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
