// Package gemini adapts the Gemini API to the generation and recognition
// interfaces used by the answering and extraction paths.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"

	"docqa/internal/apperr"
	"docqa/internal/extraction"
)

const (
	DefaultTextModel   = "gemini-1.5-pro"
	DefaultVisionModel = "gemini-1.5-flash"
)

var ErrMissingAPIKey = errors.New("gemini api key not configured")

type Config struct {
	APIKey      string
	TextModel   string
	VisionModel string
	Temperature float32
}

type Client struct {
	client      *genai.Client
	textModel   string
	visionModel string
	temperature float32
}

func NewClient(ctx context.Context, cfg Config, opts ...option.ClientOption) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.TextModel == "" {
		cfg.TextModel = DefaultTextModel
	}
	if cfg.VisionModel == "" {
		cfg.VisionModel = DefaultVisionModel
	}

	opts = append(opts, option.WithAPIKey(cfg.APIKey))
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Client{
		client:      client,
		textModel:   cfg.TextModel,
		visionModel: cfg.VisionModel,
		temperature: cfg.Temperature,
	}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// Generate implements qa.Generator.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	slog.DebugContext(ctx, "generating answer", "model", c.textModel, "prompt_length", len(prompt))
	m := c.client.GenerativeModel(c.textModel)
	m.SetTemperature(c.temperature)

	resp, err := m.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", classify(err)
	}
	return responseText(resp)
}

// Recognize implements extraction.Recognizer using a vision-capable model.
func (c *Client) Recognize(ctx context.Context, img extraction.EncodedImage, instruction string) (string, error) {
	data, err := img.Bytes()
	if err != nil {
		return "", fmt.Errorf("decode page image: %w", err)
	}
	format := strings.TrimPrefix(img.MIMEType, "image/")

	slog.DebugContext(ctx, "recognizing page image", "model", c.visionModel, "bytes", len(data))
	m := c.client.GenerativeModel(c.visionModel)
	m.SetTemperature(c.temperature)

	resp, err := m.GenerateContent(ctx, genai.Text(instruction), genai.ImageData(format, data))
	if err != nil {
		return "", classify(err)
	}
	return responseText(resp)
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("%w: empty response from model", apperr.ErrUpstream)
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String(), nil
}

// classify maps API errors onto the shared sentinels. Quota errors become
// apperr.ErrThrottled so callers can back off.
func classify(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %w", apperr.ErrThrottled, err)
	}
	var aerr *apierror.APIError
	if errors.As(err, &aerr) {
		if aerr.HTTPCode() == http.StatusTooManyRequests || aerr.GRPCStatus().Code() == codes.ResourceExhausted {
			return fmt.Errorf("%w: %w", apperr.ErrThrottled, err)
		}
	}
	return fmt.Errorf("%w: %w", apperr.ErrUpstream, err)
}
