package chunkstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"docqa/internal/apperr"
)

const (
	keyPrefix = "doc_"
	keySuffix = ".json"
)

// Key is the durable key for a document's chunk set.
func Key(documentID string) string {
	return keyPrefix + documentID + keySuffix
}

// Store reads and writes chunk sets as JSON arrays in a BlobStore.
type Store struct {
	blobs BlobStore
}

func NewStore(blobs BlobStore) *Store {
	return &Store{blobs: blobs}
}

// Save persists chunks for a document. An empty set is rejected.
func (s *Store) Save(ctx context.Context, documentID string, chunks []string) error {
	if len(chunks) == 0 {
		return fmt.Errorf("document %s: empty chunk set: %w", documentID, apperr.ErrValidation)
	}
	data, err := json.Marshal(chunks)
	if err != nil {
		return fmt.Errorf("marshal chunks: %w", err)
	}
	if err := s.blobs.Put(ctx, Key(documentID), data); err != nil {
		return fmt.Errorf("save chunks for %s: %w", documentID, err)
	}
	slog.DebugContext(ctx, "chunks saved", "document_id", documentID, "chunks", len(chunks))
	return nil
}

// Load returns the stored chunk set. A missing or empty set is an error
// wrapping apperr.ErrNotFound.
func (s *Store) Load(ctx context.Context, documentID string) ([]string, error) {
	data, err := s.blobs.Get(ctx, Key(documentID))
	if err != nil {
		return nil, fmt.Errorf("load chunks for %s: %w", documentID, err)
	}
	var chunks []string
	if err := json.Unmarshal(data, &chunks); err != nil {
		return nil, fmt.Errorf("decode chunks for %s: %w", documentID, err)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("chunks for %s: empty set: %w", documentID, apperr.ErrNotFound)
	}
	return chunks, nil
}

func (s *Store) Delete(ctx context.Context, documentID string) error {
	return s.blobs.Delete(ctx, Key(documentID))
}

// IDs lists every document with a stored chunk set, sorted.
func (s *Store) IDs(ctx context.Context) ([]string, error) {
	keys, err := s.blobs.List(ctx, keyPrefix)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		if !strings.HasSuffix(k, keySuffix) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(strings.TrimPrefix(k, keyPrefix), keySuffix))
	}
	sort.Strings(ids)
	return ids, nil
}

// Clear removes every stored chunk set and reports how many were deleted.
// Deletion continues past individual failures.
func (s *Store) Clear(ctx context.Context) (int, error) {
	ids, err := s.IDs(ctx)
	if err != nil {
		return 0, err
	}
	var errs []error
	removed := 0
	for _, id := range ids {
		if err := s.Delete(ctx, id); err != nil {
			slog.WarnContext(ctx, "failed to delete chunk set", "document_id", id, "error", err)
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}
