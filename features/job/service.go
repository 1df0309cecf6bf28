package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"docqa/internal/apperr"
	"docqa/internal/config"
)

const (
	HandlerIngestDocument = "ingest_document"

	defaultPublishTimeout = 5 * time.Second
)

var (
	ErrQueueUnavailable = errors.New("ingest queue is not configured")
	ErrPublishTimeout   = errors.New("timeout waiting for NSQ publish")
)

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

type Service struct {
	repo           Repository
	pub            EventPublisher
	publishTimeout time.Duration
}

func NewService(repo Repository, pub EventPublisher) *Service {
	return &Service{repo: repo, pub: pub, publishTimeout: defaultPublishTimeout}
}

// WithPublishTimeout overrides how long Retry waits on the publisher.
func (s *Service) WithPublishTimeout(d time.Duration) *Service {
	s.publishTimeout = d
	return s
}

func (s *Service) List(ctx context.Context) ([]Job, error) {
	return s.repo.List(ctx)
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

// Record stores a failed ingest so it can be retried later.
func (s *Service) Record(ctx context.Context, documentID string, payload []byte, cause error) error {
	j := &Job{
		DocumentID: documentID,
		Handler:    HandlerIngestDocument,
		Payload:    json.RawMessage(payload),
		Error:      cause.Error(),
	}
	if err := s.repo.Save(ctx, j); err != nil {
		return err
	}
	slog.WarnContext(ctx, "recorded failed job", "job_id", j.ID, "document_id", documentID, "error", cause)
	return nil
}

// Retry re-publishes a failed job's payload and removes the job once the
// queue has accepted it.
func (s *Service) Retry(ctx context.Context, id string) error {
	if s.pub == nil {
		return ErrQueueUnavailable
	}

	job, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !json.Valid(job.Payload) {
		return fmt.Errorf("%w: job %s has a malformed payload", apperr.ErrValidation, id)
	}

	done := make(chan error, 1)
	go func() {
		done <- s.pub.Publish(config.TopicIngestDocument, job.Payload)
	}()

	timer := time.NewTimer(s.publishTimeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			return err
		}
	case <-timer.C:
		return ErrPublishTimeout
	case <-ctx.Done():
		return ctx.Err()
	}

	slog.InfoContext(ctx, "job re-queued", "job_id", id, "document_id", job.DocumentID)
	return s.repo.Delete(ctx, id)
}
