//go:build !ocr

package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/config"
)

func TestNewRecognizer_TesseractNotBuilt(t *testing.T) {
	rec, closeFn, err := NewRecognizer(&config.Config{Recognizer: config.RecognizerTesseract}, nil)
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.Nil(t, closeFn)
}
