package extraction

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image/jpeg"
	"log/slog"
	"runtime"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/semaphore"

	"docqa/internal/apperr"
	"docqa/internal/metrics"
	"docqa/internal/ratelimit"
)

const (
	DefaultMinTextChars    = 50
	DefaultThrottleBackoff = 60 * time.Second
	DefaultInstruction     = "Extract text from the following image"
	DefaultJPEGQuality     = 85

	// tokensPerWord approximates model tokens from a whitespace word count.
	tokensPerWord = 1.3
)

type Config struct {
	MinTextChars    int
	ThrottleBackoff time.Duration
	RenderWorkers   int
	JPEGQuality     int
	Instruction     string
}

func (c Config) withDefaults() Config {
	if c.MinTextChars <= 0 {
		c.MinTextChars = DefaultMinTextChars
	}
	if c.ThrottleBackoff <= 0 {
		c.ThrottleBackoff = DefaultThrottleBackoff
	}
	if c.RenderWorkers <= 0 {
		c.RenderWorkers = runtime.NumCPU()
	}
	if c.JPEGQuality <= 0 || c.JPEGQuality > 100 {
		c.JPEGQuality = DefaultJPEGQuality
	}
	if c.Instruction == "" {
		c.Instruction = DefaultInstruction
	}
	return c
}

// Extractor produces the text of a single page. It never fails: a page that
// cannot be read yields an empty string and a log line.
type Extractor struct {
	cfg        Config
	limiter    *ratelimit.Limiter
	recognizer Recognizer
	render     *semaphore.Weighted
}

// NewExtractor builds an Extractor. A nil recognizer makes sparse pages keep
// their direct text, or resolve to a placeholder when they have none.
func NewExtractor(cfg Config, limiter *ratelimit.Limiter, recognizer Recognizer) *Extractor {
	cfg = cfg.withDefaults()
	return &Extractor{
		cfg:        cfg,
		limiter:    limiter,
		recognizer: recognizer,
		render:     semaphore.NewWeighted(int64(cfg.RenderWorkers)),
	}
}

// Placeholder is the text returned for a sparse page when no recognizer is
// configured. index is zero-based.
func Placeholder(index int) string {
	return fmt.Sprintf("[Image content on page %d - OCR not available]", index+1)
}

// ExtractPage returns the text for the page at the zero-based index.
func (e *Extractor) ExtractPage(ctx context.Context, page Page, index int) string {
	text, err := page.Text(ctx)
	if err != nil {
		slog.WarnContext(ctx, "direct text extraction failed", "page", index+1, "error", err)
		text = ""
	}

	if utf8.RuneCountInString(strings.TrimSpace(text)) >= e.cfg.MinTextChars {
		metrics.PagesExtracted.WithLabelValues("direct").Inc()
		slog.DebugContext(ctx, "extracted page text", "page", index+1, "chars", len(text))
		return text
	}

	// Short direct text is kept whenever recognition yields nothing better.
	hasText := strings.TrimSpace(text) != ""

	if e.recognizer == nil {
		if hasText {
			metrics.PagesExtracted.WithLabelValues("direct").Inc()
			return text
		}
		metrics.PagesExtracted.WithLabelValues("placeholder").Inc()
		return Placeholder(index)
	}

	recognized, err := e.recognize(ctx, page, index)
	if err != nil {
		if hasText {
			slog.WarnContext(ctx, "page recognition failed, keeping direct text", "page", index+1, "error", err)
			metrics.PagesExtracted.WithLabelValues("direct").Inc()
			return text
		}
		metrics.PagesExtracted.WithLabelValues("failed").Inc()
		slog.ErrorContext(ctx, "page recognition failed", "page", index+1, "error", err)
		return ""
	}
	if strings.TrimSpace(recognized) == "" {
		if hasText {
			metrics.PagesExtracted.WithLabelValues("direct").Inc()
			return text
		}
		slog.WarnContext(ctx, "no text extracted from page", "page", index+1)
	}
	metrics.PagesExtracted.WithLabelValues("recognized").Inc()
	return recognized
}

func (e *Extractor) recognize(ctx context.Context, page Page, index int) (string, error) {
	var result string
	err := e.limiter.WithSlot(ctx, func(ctx context.Context) error {
		img, err := e.rasterize(ctx, page)
		if err != nil {
			return fmt.Errorf("rasterize page %d: %w", index+1, err)
		}

		attempt := func() error {
			if err := e.limiter.AdmitRequest(ctx); err != nil {
				return backoff.Permanent(err)
			}
			text, err := e.recognizer.Recognize(ctx, img, e.cfg.Instruction)
			if err != nil {
				if errors.Is(err, apperr.ErrThrottled) {
					metrics.RecognitionCalls.WithLabelValues("throttled").Inc()
					slog.WarnContext(ctx, "recognizer throttled, backing off", "page", index+1, "backoff", e.cfg.ThrottleBackoff)
					return err
				}
				metrics.RecognitionCalls.WithLabelValues("error").Inc()
				return backoff.Permanent(err)
			}
			metrics.RecognitionCalls.WithLabelValues("ok").Inc()
			result = text
			return nil
		}

		policy := backoff.WithContext(
			backoff.WithMaxRetries(backoff.NewConstantBackOff(e.cfg.ThrottleBackoff), 1),
			ctx,
		)
		if err := backoff.Retry(attempt, policy); err != nil {
			return err
		}

		return e.limiter.AdmitTokens(ctx, EstimateTokens(result))
	})
	return result, err
}

func (e *Extractor) rasterize(ctx context.Context, page Page) (EncodedImage, error) {
	if err := e.render.Acquire(ctx, 1); err != nil {
		return EncodedImage{}, err
	}
	defer e.render.Release(1)

	img, err := page.Render(ctx)
	if err != nil {
		return EncodedImage{}, err
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: e.cfg.JPEGQuality}); err != nil {
		return EncodedImage{}, fmt.Errorf("encode jpeg: %w", err)
	}
	return EncodedImage{
		MIMEType: "image/jpeg",
		Base64:   base64.StdEncoding.EncodeToString(buf.Bytes()),
	}, nil
}

// EstimateTokens approximates the token cost of text as words × 1.3.
func EstimateTokens(text string) int {
	return int(float64(len(strings.Fields(text))) * tokensPerWord)
}
