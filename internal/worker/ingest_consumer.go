package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nsqio/go-nsq"

	"docqa/features/document"
	"docqa/internal/apperr"
	"docqa/internal/logger"
	"docqa/internal/middleware"
)

const (
	defaultMaxAttempts = 3
	defaultTimeout     = 10 * time.Minute
)

type Processor interface {
	Process(ctx context.Context, id string) error
}

// FailureRecorder keeps failed ingests for manual retry.
type FailureRecorder interface {
	Record(ctx context.Context, documentID string, payload []byte, cause error) error
}

type IngestConsumer struct {
	processor   Processor
	failures    FailureRecorder
	maxAttempts uint16
	timeout     time.Duration
}

func NewIngestConsumer(p Processor, f FailureRecorder, maxAttempts uint16, timeout time.Duration) *IngestConsumer {
	if maxAttempts == 0 {
		maxAttempts = defaultMaxAttempts
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &IngestConsumer{processor: p, failures: f, maxAttempts: maxAttempts, timeout: timeout}
}

// HandleMessage processes one ingest event. Returning an error asks NSQ to
// requeue the message; transient upstream failures are requeued until
// maxAttempts, everything else is recorded as a failed job and acked.
func (h *IngestConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var payload document.IngestPayload
	err := json.Unmarshal(m.Body, &payload)

	correlationID := payload.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	ctx := middleware.WithCorrelationID(context.Background(), correlationID)

	if err != nil {
		slog.ErrorContext(ctx, "poison pill: invalid json", "error", err)
		return nil
	}
	if payload.DocumentID == "" {
		slog.ErrorContext(ctx, "missing document_id, dropping")
		return nil
	}
	ctx = logger.WithDocumentID(ctx, payload.DocumentID)

	procCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	err = h.processor.Process(procCtx, payload.DocumentID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, apperr.ErrNotFound):
		slog.WarnContext(ctx, "document no longer exists, dropping")
		return nil
	case retryable(err) && m.Attempts < h.maxAttempts:
		slog.WarnContext(ctx, "transient ingest failure, requeueing", "attempt", m.Attempts, "error", err)
		return err
	}

	if recErr := h.failures.Record(ctx, payload.DocumentID, m.Body, err); recErr != nil {
		slog.ErrorContext(ctx, "failed to save failed job", "error", recErr)
	}
	return nil
}

func retryable(err error) bool {
	return errors.Is(err, apperr.ErrThrottled) ||
		errors.Is(err, apperr.ErrUpstream) ||
		errors.Is(err, context.DeadlineExceeded)
}
