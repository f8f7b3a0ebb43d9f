package model

import (
	"errors"
	"fmt"
)

var (
	// ErrEmbeddingUnavailable marks a failed or empty embedding-provider
	// response. At ingestion time the chunk stays pending; at query time the
	// caller falls back to the non-grounded answer path.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")

	// ErrIndexBuild marks a failed nearest-neighbor rebuild (for example
	// when no chunk carries an embedding). The pipeline keeps the previous
	// index in that case.
	ErrIndexBuild = errors.New("index build failed")

	// ErrPersistence marks a failed snapshot write; the previous on-disk
	// snapshot remains authoritative.
	ErrPersistence = errors.New("persist snapshot")

	// ErrUserBusy is returned when a user already has an in-flight request.
	ErrUserBusy = errors.New("request already in flight for user")

	ErrNotFound = errors.New("not found")
)

// ExtractionError reports that a document's text could not be read. The
// document is skipped and produces zero chunks; ingestion continues with the
// remaining documents.
type ExtractionError struct {
	Document string
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Document, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// ProviderError surfaces HTTP status and body from a failed provider call
// for diagnostics. Retryable distinguishes transient failures (timeouts,
// rate limits, 5xx) from permanent ones.
type ProviderError struct {
	StatusCode int
	Message    string
	Retryable  bool
	Cause      error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return ""
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider: status %d: %s", e.StatusCode, e.Message)
	}
	return "provider: " + e.Message
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}
