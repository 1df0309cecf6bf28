package extraction

import (
	"context"
	"errors"
	"image"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"docqa/internal/apperr"
	"docqa/internal/ratelimit"
)

type fakePage struct {
	text      string
	textErr   error
	renderErr error
	delay     time.Duration
}

func (p *fakePage) Text(ctx context.Context) (string, error) {
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	return p.text, p.textErr
}

func (p *fakePage) Render(ctx context.Context) (image.Image, error) {
	if p.renderErr != nil {
		return nil, p.renderErr
	}
	return image.NewRGBA(image.Rect(0, 0, 8, 8)), nil
}

type MockRecognizer struct {
	mock.Mock
}

func (m *MockRecognizer) Recognize(ctx context.Context, img EncodedImage, instruction string) (string, error) {
	args := m.Called(ctx, img, instruction)
	return args.String(0), args.Error(1)
}

func testLimiter() *ratelimit.Limiter {
	return ratelimit.New(ratelimit.Config{RequestsPerMinute: 100, TokensPerMinute: 100000, MaxConcurrent: 4})
}

func testConfig() Config {
	return Config{ThrottleBackoff: time.Millisecond, RenderWorkers: 2}
}

var dense = strings.Repeat("dense text ", 10)

func TestExtractPage_DenseTextSkipsRecognition(t *testing.T) {
	rec := new(MockRecognizer)
	e := NewExtractor(testConfig(), testLimiter(), rec)

	got := e.ExtractPage(context.Background(), &fakePage{text: dense}, 0)

	assert.Equal(t, dense, got)
	rec.AssertNotCalled(t, "Recognize", mock.Anything, mock.Anything, mock.Anything)
}

func TestExtractPage_ThresholdBoundary(t *testing.T) {
	rec := new(MockRecognizer)
	rec.On("Recognize", mock.Anything, mock.Anything, DefaultInstruction).Return("recognized", nil)
	e := NewExtractor(testConfig(), testLimiter(), rec)

	exact := "  " + strings.Repeat("a", DefaultMinTextChars) + "\n"
	assert.Equal(t, exact, e.ExtractPage(context.Background(), &fakePage{text: exact}, 0))
	rec.AssertNotCalled(t, "Recognize", mock.Anything, mock.Anything, mock.Anything)

	short := strings.Repeat("a", DefaultMinTextChars-1)
	assert.Equal(t, "recognized", e.ExtractPage(context.Background(), &fakePage{text: short}, 0))
	rec.AssertNumberOfCalls(t, "Recognize", 1)
}

func TestExtractPage_SparseRecognizedOnce(t *testing.T) {
	rec := new(MockRecognizer)
	rec.On("Recognize", mock.Anything, mock.MatchedBy(func(img EncodedImage) bool {
		raw, err := img.Bytes()
		return err == nil && img.MIMEType == "image/jpeg" && len(raw) > 0
	}), DefaultInstruction).Return("scanned words", nil).Once()
	e := NewExtractor(testConfig(), testLimiter(), rec)

	got := e.ExtractPage(context.Background(), &fakePage{text: "tiny"}, 3)

	assert.Equal(t, "scanned words", got)
	rec.AssertExpectations(t)
}

func TestExtractPage_Throttling(t *testing.T) {
	throttled := errors.Join(apperr.ErrThrottled, errors.New("429"))

	tests := []struct {
		name      string
		setup     func(*MockRecognizer)
		want      string
		wantCalls int
	}{
		{
			name: "Retries Once After Throttle",
			setup: func(m *MockRecognizer) {
				m.On("Recognize", mock.Anything, mock.Anything, mock.Anything).Return("", throttled).Once()
				m.On("Recognize", mock.Anything, mock.Anything, mock.Anything).Return("second try", nil).Once()
			},
			want:      "second try",
			wantCalls: 2,
		},
		{
			name: "Gives Up After Second Throttle",
			setup: func(m *MockRecognizer) {
				m.On("Recognize", mock.Anything, mock.Anything, mock.Anything).Return("", throttled)
			},
			want:      "",
			wantCalls: 2,
		},
		{
			name: "Other Errors Are Not Retried",
			setup: func(m *MockRecognizer) {
				m.On("Recognize", mock.Anything, mock.Anything, mock.Anything).Return("", apperr.ErrUpstream)
			},
			want:      "",
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := new(MockRecognizer)
			tt.setup(rec)
			e := NewExtractor(testConfig(), testLimiter(), rec)

			got := e.ExtractPage(context.Background(), &fakePage{}, 0)

			assert.Equal(t, tt.want, got)
			rec.AssertNumberOfCalls(t, "Recognize", tt.wantCalls)
		})
	}
}

func TestExtractPage_NoRecognizer(t *testing.T) {
	e := NewExtractor(testConfig(), testLimiter(), nil)

	assert.Equal(t, "[Image content on page 2 - OCR not available]", e.ExtractPage(context.Background(), &fakePage{}, 1))
	assert.Equal(t, "[Image content on page 1 - OCR not available]",
		e.ExtractPage(context.Background(), &fakePage{textErr: errors.New("corrupt stream")}, 0))
}

func TestExtractPage_RenderFailure(t *testing.T) {
	rec := new(MockRecognizer)
	e := NewExtractor(testConfig(), testLimiter(), rec)

	got := e.ExtractPage(context.Background(), &fakePage{renderErr: errors.New("no image")}, 0)

	assert.Empty(t, got)
	rec.AssertNotCalled(t, "Recognize", mock.Anything, mock.Anything, mock.Anything)
}

func TestExtractPage_ShortTextFallback(t *testing.T) {
	const heading = "Chapter One: Refund Policy"
	throttled := errors.Join(apperr.ErrThrottled, errors.New("429"))

	tests := []struct {
		name      string
		page      *fakePage
		setup     func(*MockRecognizer)
		noRecog   bool
		want      string
		wantCalls int
	}{
		{
			name:    "No Recognizer Keeps Direct Text",
			page:    &fakePage{text: heading},
			noRecog: true,
			want:    heading,
		},
		{
			name:      "Missing Raster Keeps Direct Text",
			page:      &fakePage{text: heading, renderErr: errors.New("page has no embedded images")},
			setup:     func(m *MockRecognizer) {},
			want:      heading,
			wantCalls: 0,
		},
		{
			name: "Recognition Error Keeps Direct Text",
			page: &fakePage{text: heading},
			setup: func(m *MockRecognizer) {
				m.On("Recognize", mock.Anything, mock.Anything, mock.Anything).Return("", apperr.ErrUpstream)
			},
			want:      heading,
			wantCalls: 1,
		},
		{
			name: "Throttled Twice Keeps Direct Text",
			page: &fakePage{text: heading},
			setup: func(m *MockRecognizer) {
				m.On("Recognize", mock.Anything, mock.Anything, mock.Anything).Return("", throttled)
			},
			want:      heading,
			wantCalls: 2,
		},
		{
			name: "Blank Recognition Keeps Direct Text",
			page: &fakePage{text: heading},
			setup: func(m *MockRecognizer) {
				m.On("Recognize", mock.Anything, mock.Anything, mock.Anything).Return(" \n ", nil)
			},
			want:      heading,
			wantCalls: 1,
		},
		{
			name: "Recognized Text Wins",
			page: &fakePage{text: heading},
			setup: func(m *MockRecognizer) {
				m.On("Recognize", mock.Anything, mock.Anything, mock.Anything).Return("Chapter One: Refund Policy\nRefunds within 30 days", nil)
			},
			want:      "Chapter One: Refund Policy\nRefunds within 30 days",
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.noRecog {
				e := NewExtractor(testConfig(), testLimiter(), nil)
				assert.Equal(t, tt.want, e.ExtractPage(context.Background(), tt.page, 0))
				return
			}
			rec := new(MockRecognizer)
			tt.setup(rec)
			e := NewExtractor(testConfig(), testLimiter(), rec)

			got := e.ExtractPage(context.Background(), tt.page, 0)

			assert.Equal(t, tt.want, got)
			rec.AssertNumberOfCalls(t, "Recognize", tt.wantCalls)
		})
	}
}

func TestPipeline_ShortTextPagesKept(t *testing.T) {
	e := NewExtractor(testConfig(), testLimiter(), nil)
	p := NewPipeline(e)

	doc := Document{ID: "deck", Pages: []Page{
		&fakePage{text: "Welcome", renderErr: errors.New("no raster")},
		&fakePage{text: "Thank you", renderErr: errors.New("no raster")},
	}}

	got, err := p.Extract(context.Background(), doc)

	require.NoError(t, err)
	assert.Equal(t, "Welcome\n\nThank you", got)
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("one"))
	assert.Equal(t, 13, EstimateTokens(strings.Repeat("w ", 10)))
}

func TestEncodedImage(t *testing.T) {
	img := EncodedImage{MIMEType: "image/jpeg", Base64: "aGk="}
	raw, err := img.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), raw)
	assert.Equal(t, "data:image/jpeg;base64,aGk=", img.DataURL())
}
