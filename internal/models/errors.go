package models

import (
	"errors"
	"fmt"
)

// ErrNoDocuments is returned when a question is asked before any file has
// been uploaded in the session.
var ErrNoDocuments = errors.New("no documents uploaded yet")

// IngestionError reports a failure processing one file within an upload batch.
// It never aborts the rest of the batch.
type IngestionError struct {
	Filename string
	Err      error
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("ingest %s: %v", e.Filename, e.Err)
}

func (e *IngestionError) Unwrap() error { return e.Err }

// ExternalServiceError reports a failure of an external model backend
// (embedding, rerank, generation, transcription, caption, ocr). It is fatal
// for the current request; Stage names the failing collaborator.
type ExternalServiceError struct {
	Stage string
	Err   error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s service: %v", e.Stage, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// CacheIOError reports a content-cache read or write failure. Callers recover
// locally by reprocessing; it never surfaces to the API caller.
type CacheIOError struct {
	Hash string
	Err  error
}

func (e *CacheIOError) Error() string {
	return fmt.Sprintf("cache %s: %v", e.Hash, e.Err)
}

func (e *CacheIOError) Unwrap() error { return e.Err }

// ValidationError reports a missing or malformed request field. It is surfaced
// immediately with no partial work performed.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing or invalid field: %s", e.Field)
}
