//go:build !ocr

package tesseract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"docqa/internal/extraction"
)

func TestNewWithoutOCRTag(t *testing.T) {
	r, err := New("eng")
	assert.ErrorIs(t, err, ErrOCRNotEnabled)
	assert.Nil(t, r)
}

func TestStubMethods(t *testing.T) {
	var r *Recognizer
	assert.NoError(t, r.Close())

	_, err := r.Recognize(context.Background(), extraction.EncodedImage{}, "")
	assert.ErrorIs(t, err, ErrOCRNotEnabled)
}
