package extraction

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"docqa/internal/apperr"
	"docqa/internal/metrics"
)

const pageSeparator = "\n\n"

// Pipeline extracts every page of a document concurrently and joins the
// results in page order.
type Pipeline struct {
	extractor *Extractor
}

func NewPipeline(extractor *Extractor) *Pipeline {
	return &Pipeline{extractor: extractor}
}

// Extract returns the document text. Pages that produced only whitespace are
// dropped. A document with no pages, or whose pages all came back empty, is an
// apperr.ErrExtraction.
func (p *Pipeline) Extract(ctx context.Context, doc Document) (string, error) {
	if len(doc.Pages) == 0 {
		return "", fmt.Errorf("document %q has no pages: %w: %w", doc.ID, apperr.ErrExtraction, apperr.ErrValidation)
	}

	start := time.Now()
	defer func() { metrics.ExtractionDuration.Observe(time.Since(start).Seconds()) }()

	results := make([]string, len(doc.Pages))
	g, gctx := errgroup.WithContext(ctx)
	for i, page := range doc.Pages {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = p.extractor.ExtractPage(gctx, page, i)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	parts := make([]string, 0, len(results))
	for _, r := range results {
		if strings.TrimSpace(r) != "" {
			parts = append(parts, r)
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("document %q: could not extract text, PDF may be scanned or image-based: %w", doc.ID, apperr.ErrExtraction)
	}

	text := strings.Join(parts, pageSeparator)
	slog.InfoContext(ctx, "document extracted", "document_id", doc.ID, "pages", len(doc.Pages), "kept", len(parts), "chars", len(text))
	return text, nil
}
