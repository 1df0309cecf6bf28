package text

import (
	"errors"
	"fmt"
	"strings"

	"docqa/internal/apperr"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

var (
	// ErrEmptyContent is returned when splitting yields no chunks.
	ErrEmptyContent = fmt.Errorf("%w: no chunks produced from content", apperr.ErrValidation)
	// ErrInvalidWindow is returned for a size/overlap pair that cannot make progress.
	ErrInvalidWindow = fmt.Errorf("%w: chunk size must exceed overlap", apperr.ErrValidation)
)

// separators are tried in order when looking for a place to end a chunk.
var separators = [][]rune{
	[]rune("\n\n"),
	[]rune(". "),
	[]rune(" "),
}

// Split cuts text into chunks of at most size runes. Every chunk after the
// first starts with the last overlap runes of its predecessor, so dropping
// that prefix and concatenating gives back the input exactly. Chunks end on a
// paragraph break where possible, then a sentence end, then a space, and are
// hard-cut otherwise.
func Split(text string, size, overlap int) ([]string, error) {
	if size <= 0 || overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("size=%d overlap=%d: %w", size, overlap, ErrInvalidWindow)
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyContent
	}

	r := []rune(text)
	n := len(r)

	var chunks []string
	start := 0
	for {
		end := start + size
		if end >= n {
			chunks = append(chunks, string(r[start:]))
			break
		}
		cut := breakPoint(r, start+overlap, end)
		chunks = append(chunks, string(r[start:cut]))
		start = cut - overlap
	}
	return chunks, nil
}

// Join reverses Split.
func Join(chunks []string, overlap int) (string, error) {
	var b strings.Builder
	for i, c := range chunks {
		if i == 0 {
			b.WriteString(c)
			continue
		}
		r := []rune(c)
		if len(r) < overlap {
			return "", errors.New("chunk shorter than overlap")
		}
		b.WriteString(string(r[overlap:]))
	}
	return b.String(), nil
}

// breakPoint returns the rune offset in (lo, hi] just past the last
// occurrence of the most preferred separator, or hi if none occurs.
func breakPoint(r []rune, lo, hi int) int {
	for _, sep := range separators {
		for p := hi; p > lo && p-len(sep) >= 0; p-- {
			if hasSuffixAt(r, p, sep) {
				return p
			}
		}
	}
	return hi
}

func hasSuffixAt(r []rune, p int, sep []rune) bool {
	off := p - len(sep)
	for i, c := range sep {
		if r[off+i] != c {
			return false
		}
	}
	return true
}
