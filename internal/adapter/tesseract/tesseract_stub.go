//go:build !ocr

// Package tesseract recognizes page images locally with the Tesseract engine.
// This build was compiled without the ocr tag, so New always fails; rebuild
// with -tags ocr to enable it.
package tesseract

import (
	"context"
	"errors"

	"docqa/internal/extraction"
)

var ErrOCRNotEnabled = errors.New("tesseract support not enabled; rebuild with -tags ocr")

type Recognizer struct{}

func New(languages string) (*Recognizer, error) {
	return nil, ErrOCRNotEnabled
}

func (r *Recognizer) Close() error {
	return nil
}

func (r *Recognizer) Recognize(ctx context.Context, img extraction.EncodedImage, instruction string) (string, error) {
	return "", ErrOCRNotEnabled
}
