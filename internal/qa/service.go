// Package qa answers questions over stored chunk sets: it chunks extracted
// text, keeps chunk sets in a cache backed by durable storage, ranks chunks
// lexically and asks a generation model to answer from the best ones.
package qa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"docqa/internal/apperr"
	"docqa/internal/chunkstore"
	"docqa/internal/extraction"
	"docqa/internal/metrics"
	"docqa/internal/middleware"
	"docqa/internal/ratelimit"
	"docqa/internal/retrieval"
	"docqa/internal/text"
)

const (
	NoResultAnswer = "No relevant information found"

	// confidenceScale turns a retrieved-chunk count into a rough 0..1 signal.
	// It is not calibrated against answer quality.
	confidenceScale = 3.0

	promptTemplate = `Answer the following question using only the context provided. If you cannot answer from the context, say "I cannot answer based on the provided context."

Context:
%s

Question: %s`
)

// Generator produces a completion for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type Answer struct {
	Answer         string  `json:"answer"`
	Confidence     float64 `json:"confidence"`
	SourceDocument string  `json:"source_document"`
}

type Config struct {
	ChunkSize    int
	ChunkOverlap int
	TopK         int
}

type Service struct {
	cfg       Config
	cache     *chunkstore.Cache
	store     *chunkstore.Store
	generator Generator
	limiter   *ratelimit.Limiter
	queryLog  *retrieval.QueryLogger
}

// NewService wires the answering engine. limiter and queryLog may be nil.
func NewService(cfg Config, cache *chunkstore.Cache, store *chunkstore.Store, gen Generator, limiter *ratelimit.Limiter, queryLog *retrieval.QueryLogger) *Service {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = text.DefaultChunkSize
		cfg.ChunkOverlap = text.DefaultChunkOverlap
	}
	if cfg.TopK <= 0 {
		cfg.TopK = retrieval.DefaultTopK
	}
	return &Service{cfg: cfg, cache: cache, store: store, generator: gen, limiter: limiter, queryLog: queryLog}
}

// Index splits text into chunks, persists them and then caches them. It
// returns the number of chunks written.
func (s *Service) Index(ctx context.Context, documentID, content string) (int, error) {
	chunks, err := text.Split(content, s.cfg.ChunkSize, s.cfg.ChunkOverlap)
	if err != nil {
		return 0, fmt.Errorf("chunk document %s: %w", documentID, err)
	}
	if err := s.store.Save(ctx, documentID, chunks); err != nil {
		return 0, err
	}
	s.cache.Put(documentID, chunks)
	slog.InfoContext(ctx, "document indexed", "document_id", documentID, "chunks", len(chunks))
	return len(chunks), nil
}

// Chunks returns a document's chunk set from the cache, loading it from
// durable storage on a miss.
func (s *Service) Chunks(ctx context.Context, documentID string) ([]string, error) {
	if chunks, ok := s.cache.Get(documentID); ok {
		return chunks, nil
	}
	chunks, err := s.store.Load(ctx, documentID)
	if err != nil {
		return nil, err
	}
	s.cache.Put(documentID, chunks)
	return chunks, nil
}

// Ask answers question from one document, or from every known document when
// documentID is empty.
func (s *Service) Ask(ctx context.Context, question, documentID string) (Answer, error) {
	start := time.Now()

	var candidates []string
	var err error
	if documentID != "" {
		candidates, err = s.Chunks(ctx, documentID)
	} else {
		candidates, err = s.pooled(ctx)
	}
	if err != nil {
		return Answer{}, err
	}

	ranked := retrieval.Retrieve(question, candidates, s.cfg.TopK)

	var ans Answer
	if len(ranked) == 0 {
		metrics.Questions.WithLabelValues("no_result").Inc()
		ans = Answer{Answer: NoResultAnswer}
	} else {
		prompt := fmt.Sprintf(promptTemplate, strings.Join(ranked, "\n\n"), question)
		reply, err := s.generate(ctx, prompt)
		if err != nil {
			metrics.Questions.WithLabelValues("error").Inc()
			return Answer{}, err
		}
		metrics.Questions.WithLabelValues("answered").Inc()
		ans = Answer{
			Answer:         strings.TrimSpace(reply),
			Confidence:     float64(len(ranked)) / confidenceScale,
			SourceDocument: fmt.Sprintf("Used %d relevant text chunks", len(ranked)),
		}
	}

	s.queryLog.Log(retrieval.QueryLogEntry{
		Question:      question,
		DocumentID:    documentID,
		Candidates:    len(candidates),
		NumResults:    len(ranked),
		Confidence:    ans.Confidence,
		Duration:      time.Since(start),
		CorrelationID: middleware.GetCorrelationID(ctx),
	})
	return ans, nil
}

// Forget drops a document's chunks from the cache and durable storage.
func (s *Service) Forget(ctx context.Context, documentID string) error {
	s.cache.Delete(documentID)
	return s.store.Delete(ctx, documentID)
}

// Cleanup empties the cache and deletes every stored chunk set.
func (s *Service) Cleanup(ctx context.Context) (int, error) {
	s.cache.Clear()
	removed, err := s.store.Clear(ctx)
	slog.InfoContext(ctx, "chunk storage cleaned up", "removed", removed)
	return removed, err
}

// CachedSets reports how many chunk sets are held in memory.
func (s *Service) CachedSets() int {
	return s.cache.Len()
}

// pooled gathers chunks of every cached or stored document, ordered by
// document ID and then chunk position.
func (s *Service) pooled(ctx context.Context) ([]string, error) {
	stored, err := s.store.IDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list chunk sets: %w", err)
	}
	seen := make(map[string]struct{})
	var ids []string
	for _, id := range append(s.cache.IDs(), stored...) {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var pool []string
	for _, id := range ids {
		chunks, err := s.Chunks(ctx, id)
		if errors.Is(err, apperr.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		pool = append(pool, chunks...)
	}
	return pool, nil
}

func (s *Service) generate(ctx context.Context, prompt string) (string, error) {
	if s.limiter == nil {
		return s.callGenerator(ctx, prompt)
	}
	var reply string
	err := s.limiter.WithSlot(ctx, func(ctx context.Context) error {
		if err := s.limiter.AdmitRequest(ctx); err != nil {
			return err
		}
		var err error
		reply, err = s.callGenerator(ctx, prompt)
		if err != nil {
			return err
		}
		return s.limiter.AdmitTokens(ctx, extraction.EstimateTokens(prompt)+extraction.EstimateTokens(reply))
	})
	return reply, err
}

func (s *Service) callGenerator(ctx context.Context, prompt string) (string, error) {
	reply, err := s.generator.Generate(ctx, prompt)
	if err == nil {
		return reply, nil
	}
	if errors.Is(err, apperr.ErrThrottled) || errors.Is(err, apperr.ErrUpstream) {
		return "", fmt.Errorf("generate answer: %w", err)
	}
	return "", fmt.Errorf("generate answer: %w: %w", apperr.ErrUpstream, err)
}
