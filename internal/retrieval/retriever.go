// Package retrieval ranks stored chunks against a question by lexical overlap.
package retrieval

import (
	"sort"
	"strings"
)

const DefaultTopK = 3

// Retrieve returns the k highest-scoring chunks. A chunk scores one point for
// every distinct lowercased question token that appears as a substring of the
// lowercased chunk. Ties keep their input order. Zero-score chunks still rank,
// so an unrelated question on a non-empty set returns min(k, len) chunks.
func Retrieve(question string, chunks []string, k int) []string {
	if k <= 0 {
		return []string{}
	}
	if len(chunks) == 0 {
		return chunks
	}

	tokens := Tokens(question)

	type scored struct {
		chunk string
		score int
	}
	ranked := make([]scored, len(chunks))
	for i, c := range chunks {
		ranked[i] = scored{chunk: c, score: Score(tokens, c)}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	if k > len(ranked) {
		k = len(ranked)
	}
	out := make([]string, k)
	for i := range out {
		out[i] = ranked[i].chunk
	}
	return out
}

// Tokens splits a question on whitespace, lowercases and de-duplicates it.
func Tokens(question string) []string {
	fields := strings.Fields(strings.ToLower(question))
	seen := make(map[string]struct{}, len(fields))
	tokens := fields[:0]
	for _, f := range fields {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		tokens = append(tokens, f)
	}
	return tokens
}

// Score counts how many tokens occur in chunk, case-insensitively.
func Score(tokens []string, chunk string) int {
	lower := strings.ToLower(chunk)
	n := 0
	for _, t := range tokens {
		if strings.Contains(lower, t) {
			n++
		}
	}
	return n
}
