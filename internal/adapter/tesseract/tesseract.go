//go:build ocr

// Package tesseract recognizes page images locally with the Tesseract engine.
// Building it requires the ocr tag and a Tesseract installation:
//
//	go build -tags ocr
package tesseract

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"

	"docqa/internal/extraction"
)

// Recognizer serializes access to a single Tesseract client, which is not
// safe for concurrent use.
type Recognizer struct {
	mu     sync.Mutex
	client *gosseract.Client
}

// New creates a Recognizer for the given "+"-separated languages, e.g.
// "eng+deu". An empty value keeps Tesseract's default.
func New(languages string) (*Recognizer, error) {
	client := gosseract.NewClient()
	if languages != "" {
		if err := client.SetLanguage(strings.Split(languages, "+")...); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("set tesseract language: %w", err)
		}
	}
	return &Recognizer{client: client}, nil
}

func (r *Recognizer) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}

// Recognize implements extraction.Recognizer. The instruction is meant for
// model-based recognizers and is ignored here.
func (r *Recognizer) Recognize(ctx context.Context, img extraction.EncodedImage, _ string) (string, error) {
	data, err := img.Bytes()
	if err != nil {
		return "", fmt.Errorf("decode page image: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.client.SetImageFromBytes(data); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	text, err := r.client.Text()
	if err != nil {
		return "", fmt.Errorf("tesseract: %w", err)
	}
	return strings.TrimSpace(text), nil
}
