package document

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"docqa/internal/apperr"
	"docqa/internal/config"
	"docqa/internal/extraction"
	"docqa/internal/logger"
	"docqa/internal/middleware"
	"docqa/internal/qa"
)

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusReady      = "ready"
	StatusFailed     = "failed"
)

var (
	ErrDuplicate    = errors.New("document with this filename already exists")
	ErrNotProcessed = errors.New("document is still processing")
)

type Document struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	FilePath   string    `json:"-"`
	UploadDate time.Time `json:"upload_date"`
	Processed  bool      `json:"processed"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	PageCount  int       `json:"page_count"`
	ChunkCount int       `json:"chunk_count"`
}

// IngestPayload is the body published on config.TopicIngestDocument.
type IngestPayload struct {
	DocumentID    string `json:"document_id"`
	CorrelationID string `json:"correlation_id"`
}

type Repository interface {
	Save(ctx context.Context, doc *Document) error
	Get(ctx context.Context, id string) (*Document, error)
	List(ctx context.Context) ([]Document, error)
	ExistsByFilename(ctx context.Context, filename string) (bool, error)
	UpdateStatus(ctx context.Context, id, status string) error
	MarkProcessed(ctx context.Context, id string, pages, chunks int) error
	MarkFailed(ctx context.Context, id, reason string) error
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
	CountProcessed(ctx context.Context) (int, error)
}

// Loader opens a stored file as a paginated document.
type Loader interface {
	Open(ctx context.Context, id, path string) (extraction.Document, error)
}

type Extractor interface {
	Extract(ctx context.Context, doc extraction.Document) (string, error)
}

// Answerer owns chunk sets and answers questions over them.
type Answerer interface {
	Index(ctx context.Context, documentID, content string) (int, error)
	Ask(ctx context.Context, question, documentID string) (qa.Answer, error)
	Forget(ctx context.Context, documentID string) error
	Cleanup(ctx context.Context) (int, error)
}

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

type Service struct {
	repo      Repository
	loader    Loader
	extractor Extractor
	answerer  Answerer
	pub       EventPublisher
}

// NewService wires the document feature. When pub is nil uploads are
// processed synchronously inside the request.
func NewService(repo Repository, loader Loader, extractor Extractor, answerer Answerer, pub EventPublisher) *Service {
	return &Service{repo: repo, loader: loader, extractor: extractor, answerer: answerer, pub: pub}
}

// Upload records a stored file and processes it, or queues it when a
// publisher is configured.
func (s *Service) Upload(ctx context.Context, filename, path string) (*Document, error) {
	exists, err := s.repo.ExistsByFilename(ctx, filename)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrDuplicate
	}

	doc := &Document{Filename: filename, FilePath: path, Status: StatusPending}
	if err := s.repo.Save(ctx, doc); err != nil {
		return nil, err
	}

	if s.pub != nil {
		payload, _ := json.Marshal(IngestPayload{DocumentID: doc.ID, CorrelationID: middleware.GetCorrelationID(ctx)})
		if err := s.pub.Publish(config.TopicIngestDocument, payload); err != nil {
			slog.ErrorContext(ctx, "failed to publish ingest event", "document_id", doc.ID, "error", err)
			_ = s.repo.MarkFailed(ctx, doc.ID, "queue unavailable")
			return nil, err
		}
		slog.InfoContext(ctx, "queued document for ingestion", "document_id", doc.ID, "filename", filename)
		return doc, nil
	}

	if err := s.Process(ctx, doc.ID); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, doc.ID)
}

// Process extracts, chunks and indexes a stored document. The row is marked
// processed only after its chunk set is durable.
func (s *Service) Process(ctx context.Context, id string) error {
	ctx = logger.WithDocumentID(ctx, id)

	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.UpdateStatus(ctx, id, StatusProcessing); err != nil {
		return err
	}

	pages, chunks, err := s.ingest(ctx, doc)
	if err != nil {
		slog.ErrorContext(ctx, "document processing failed", "error", err)
		if markErr := s.repo.MarkFailed(ctx, id, err.Error()); markErr != nil {
			slog.ErrorContext(ctx, "failed to mark document failed", "error", markErr)
		}
		return err
	}

	if err := s.repo.MarkProcessed(ctx, id, pages, chunks); err != nil {
		return err
	}
	slog.InfoContext(ctx, "document processed", "pages", pages, "chunks", chunks)
	return nil
}

func (s *Service) ingest(ctx context.Context, doc *Document) (int, int, error) {
	ext, err := s.loader.Open(ctx, doc.ID, doc.FilePath)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %w", apperr.ErrExtraction, err)
	}
	text, err := s.extractor.Extract(ctx, ext)
	if err != nil {
		return 0, 0, err
	}
	chunks, err := s.answerer.Index(ctx, doc.ID, text)
	if err != nil {
		return 0, 0, err
	}
	return len(ext.Pages), chunks, nil
}

// Ask answers a question about one processed document, or about every
// indexed document when documentID is empty.
func (s *Service) Ask(ctx context.Context, question, documentID string) (qa.Answer, error) {
	if strings.TrimSpace(question) == "" {
		return qa.Answer{}, fmt.Errorf("%w: question is required", apperr.ErrValidation)
	}
	if documentID != "" {
		doc, err := s.repo.Get(ctx, documentID)
		if err != nil {
			return qa.Answer{}, err
		}
		if !doc.Processed {
			return qa.Answer{}, ErrNotProcessed
		}
	}
	return s.answerer.Ask(ctx, question, documentID)
}

func (s *Service) Get(ctx context.Context, id string) (*Document, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]Document, error) {
	return s.repo.List(ctx)
}

// Delete removes a document's chunks, its stored file and its row.
func (s *Service) Delete(ctx context.Context, id string) error {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.answerer.Forget(ctx, id); err != nil {
		return err
	}
	if err := os.Remove(filepath.Clean(doc.FilePath)); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.WarnContext(ctx, "failed to remove stored file", "document_id", id, "error", err)
	}
	return s.repo.Delete(ctx, id)
}

// Cleanup drops every cached and stored chunk set.
func (s *Service) Cleanup(ctx context.Context) (int, error) {
	return s.answerer.Cleanup(ctx)
}
