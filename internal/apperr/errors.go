// Package apperr holds the sentinel errors shared across the ingestion and
// answering paths. Callers wrap them with fmt.Errorf("...: %w", ...) and match
// with errors.Is.
package apperr

import "errors"

var (
	// ErrNotFound means a document or its chunk set does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation covers empty documents, empty chunk output and bad input.
	ErrValidation = errors.New("validation error")

	// ErrExtraction means no usable text could be extracted from any page.
	ErrExtraction = errors.New("extraction failure")

	// ErrThrottled is returned by upstream adapters when the service answered
	// with HTTP 429 or an equivalent quota signal.
	ErrThrottled = errors.New("rate limit throttled")

	// ErrUpstream covers every other recognition/generation service error.
	ErrUpstream = errors.New("upstream failure")
)
