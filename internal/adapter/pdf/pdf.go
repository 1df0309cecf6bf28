// Package pdf exposes PDF files as extraction documents. Page text comes from
// tabula's content-stream extractor; rasterization composes the page's
// embedded images onto a canvas sized from the page box.
package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"github.com/tsawler/tabula"
	"github.com/tsawler/tabula/reader"
	"golang.org/x/image/draw"

	"docqa/internal/extraction"
)

const (
	DefaultDPI     = 150
	pointsPerInch  = 72.0
	maxCanvasWidth = 2480
)

// ErrNoRaster is returned when a page has no embedded images to rasterize.
var ErrNoRaster = errors.New("page has no raster content")

// Loader opens PDF files. Each page operation opens its own reader, so pages
// of one document may be processed concurrently.
type Loader struct {
	DPI int
}

func NewLoader(dpi int) *Loader {
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	return &Loader{DPI: dpi}
}

// Open reads the page count of the file at path and returns a lazily
// evaluated document.
func (l *Loader) Open(ctx context.Context, id, path string) (extraction.Document, error) {
	r, err := reader.Open(path)
	if err != nil {
		return extraction.Document{}, fmt.Errorf("open pdf: %w", err)
	}
	defer func() { _ = r.Close() }()

	n, err := r.PageCount()
	if err != nil {
		return extraction.Document{}, fmt.Errorf("count pages: %w", err)
	}

	doc := extraction.Document{ID: id, Pages: make([]extraction.Page, n)}
	for i := range doc.Pages {
		doc.Pages[i] = &page{path: path, index: i, dpi: l.DPI}
	}
	return doc, nil
}

type page struct {
	path  string
	index int
	dpi   int
}

func (p *page) Text(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text, _, err := tabula.Open(p.path).Pages(p.index + 1).Text()
	if err != nil {
		return "", fmt.Errorf("extract text from page %d: %w", p.index+1, err)
	}
	return text, nil
}

func (p *page) Render(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r, err := reader.Open(p.path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer func() { _ = r.Close() }()

	pg, err := r.GetPage(p.index)
	if err != nil {
		return nil, fmt.Errorf("get page %d: %w", p.index+1, err)
	}
	widthPt, err := pg.Width()
	if err != nil {
		return nil, fmt.Errorf("page %d width: %w", p.index+1, err)
	}

	embedded, err := r.ExtractPageImages(pg)
	if err != nil {
		return nil, fmt.Errorf("extract images from page %d: %w", p.index+1, err)
	}

	var decoded []image.Image
	for _, img := range embedded {
		raw, err := img.ToPNG()
		if err != nil {
			continue
		}
		im, err := png.Decode(bytes.NewReader(raw))
		if err != nil {
			continue
		}
		decoded = append(decoded, im)
	}
	if len(decoded) == 0 {
		return nil, fmt.Errorf("page %d: %w", p.index+1, ErrNoRaster)
	}

	width := int(widthPt / pointsPerInch * float64(p.dpi))
	return Compose(decoded, width), nil
}

// Compose stacks images top to bottom on a white canvas, scaling each one to
// the canvas width while keeping its aspect ratio.
func Compose(images []image.Image, width int) image.Image {
	if width <= 0 {
		for _, im := range images {
			width = max(width, im.Bounds().Dx())
		}
	}
	width = min(max(width, 1), maxCanvasWidth)

	heights := make([]int, len(images))
	total := 0
	for i, im := range images {
		b := im.Bounds()
		if b.Dx() == 0 {
			continue
		}
		heights[i] = max(1, b.Dy()*width/b.Dx())
		total += heights[i]
	}

	canvas := image.NewRGBA(image.Rect(0, 0, width, max(total, 1)))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	y := 0
	for i, im := range images {
		if heights[i] == 0 {
			continue
		}
		dst := image.Rect(0, y, width, y+heights[i])
		draw.CatmullRom.Scale(canvas, dst, im, im.Bounds(), draw.Over, nil)
		y += heights[i]
	}
	return canvas
}
