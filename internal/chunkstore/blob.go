// Package chunkstore persists per-document chunk sets and caches them in
// memory. Durable copies are JSON arrays stored under doc_<id>.json in a
// pluggable byte store (local directory, Redis or S3).
package chunkstore

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"docqa/internal/apperr"
)

// BlobStore is a flat key/value byte store.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte) error
	// Get returns an error wrapping apperr.ErrNotFound for a missing key.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete is a no-op for a missing key.
	Delete(ctx context.Context, key string) error
	// List returns every key starting with prefix, in no particular order.
	List(ctx context.Context, prefix string) ([]string, error)
}

func notFound(key string) error {
	return fmt.Errorf("blob %q: %w", key, apperr.ErrNotFound)
}

func validateKey(key string) error {
	if key == "" || filepath.Base(key) != key || strings.ContainsAny(key, `/\`) {
		return fmt.Errorf("invalid blob key %q: %w", key, apperr.ErrValidation)
	}
	return nil
}
