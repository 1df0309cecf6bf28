// Package extraction turns a paginated document into plain text. Pages with
// enough embedded text are read directly; sparse pages are rasterized and
// sent to a recognizer through the shared rate limiter.
package extraction

import (
	"context"
	"encoding/base64"
	"image"
)

// Page is a single page of a document being extracted.
type Page interface {
	// Text returns the page's embedded text, possibly empty.
	Text(ctx context.Context) (string, error)
	// Render rasterizes the page.
	Render(ctx context.Context) (image.Image, error)
}

// Document is an ordered page sequence. It lives for one extraction pass.
type Document struct {
	ID    string
	Pages []Page
}

// EncodedImage is a rasterized page ready to be shipped to a recognizer.
type EncodedImage struct {
	MIMEType string
	// Base64 is the standard base64 encoding of the image bytes.
	Base64 string
}

// Bytes decodes the payload.
func (e EncodedImage) Bytes() ([]byte, error) {
	return base64.StdEncoding.DecodeString(e.Base64)
}

// DataURL renders the payload as a data: URL.
func (e EncodedImage) DataURL() string {
	return "data:" + e.MIMEType + ";base64," + e.Base64
}

// Recognizer extracts text from an image. Implementations must wrap
// apperr.ErrThrottled when the backing service signals a quota breach.
type Recognizer interface {
	Recognize(ctx context.Context, img EncodedImage, instruction string) (string, error)
}
