package extraction

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"docqa/internal/apperr"
)

func TestPipeline_Extract(t *testing.T) {
	t.Run("Preserves Page Order", func(t *testing.T) {
		rec := new(MockRecognizer)
		rec.On("Recognize", mock.Anything, mock.Anything, mock.Anything).Return("scanned middle page", nil).Once()
		p := NewPipeline(NewExtractor(testConfig(), testLimiter(), rec))

		first := "first page " + dense
		third := "third page " + dense
		doc := Document{ID: "doc-1", Pages: []Page{
			&fakePage{text: first, delay: 30 * time.Millisecond},
			&fakePage{text: ""},
			&fakePage{text: third},
		}}

		got, err := p.Extract(context.Background(), doc)

		require.NoError(t, err)
		assert.Equal(t, first+"\n\nscanned middle page\n\n"+third, got)
		rec.AssertExpectations(t)
	})

	t.Run("Drops Whitespace Pages", func(t *testing.T) {
		rec := new(MockRecognizer)
		rec.On("Recognize", mock.Anything, mock.Anything, mock.Anything).Return("  \n ", nil)
		p := NewPipeline(NewExtractor(testConfig(), testLimiter(), rec))

		doc := Document{ID: "doc-2", Pages: []Page{&fakePage{}, &fakePage{text: dense}, &fakePage{}}}

		got, err := p.Extract(context.Background(), doc)

		require.NoError(t, err)
		assert.Equal(t, dense, got)
	})

	t.Run("All Pages Empty", func(t *testing.T) {
		rec := new(MockRecognizer)
		rec.On("Recognize", mock.Anything, mock.Anything, mock.Anything).Return("", nil)
		p := NewPipeline(NewExtractor(testConfig(), testLimiter(), rec))

		_, err := p.Extract(context.Background(), Document{ID: "doc-3", Pages: []Page{&fakePage{}, &fakePage{}}})

		assert.ErrorIs(t, err, apperr.ErrExtraction)
	})

	t.Run("No Pages", func(t *testing.T) {
		p := NewPipeline(NewExtractor(testConfig(), testLimiter(), nil))

		_, err := p.Extract(context.Background(), Document{ID: "empty"})

		assert.ErrorIs(t, err, apperr.ErrExtraction)
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})

	t.Run("Cancelled Context", func(t *testing.T) {
		p := NewPipeline(NewExtractor(testConfig(), testLimiter(), nil))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := p.Extract(ctx, Document{ID: "doc-4", Pages: []Page{&fakePage{text: dense}}})

		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("Deadline During Extraction", func(t *testing.T) {
		p := NewPipeline(NewExtractor(testConfig(), testLimiter(), nil))
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
		defer cancel()

		_, err := p.Extract(ctx, Document{ID: "doc-5", Pages: []Page{
			&fakePage{text: dense, delay: 50 * time.Millisecond},
			&fakePage{text: dense},
		}})

		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
