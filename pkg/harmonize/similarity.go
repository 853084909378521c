package harmonize

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"
)

// tokenize lower-cases a message, strips punctuation, and returns the set
// of tokens longer than one character. Single-character tokens carry no
// discriminating signal and only inflate the union.
func tokenize(s string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	set := make(map[string]struct{}, len(fields))
	for _, tok := range fields {
		if len(tok) > 1 {
			set[tok] = struct{}{}
		}
	}
	return set
}

// jaccard computes token-set similarity between two strings. Two empty
// token sets are considered identical.
func jaccard(a, b string) float64 {
	ta, tb := tokenize(a), tokenize(b)
	if len(ta) == 0 && len(tb) == 0 {
		return 1.0
	}
	if len(ta) == 0 || len(tb) == 0 {
		return 0.0
	}
	inter := 0
	for tok := range ta {
		if _, ok := tb[tok]; ok {
			inter++
		}
	}
	union := len(ta) + len(tb) - inter
	return float64(inter) / float64(union)
}

// contentHash is a stable digest of a message, used as a cache key so that
// repeated pairwise comparisons don't re-tokenize the same strings.
func contentHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:8])
}

// pairKey is the unordered cache key for one message pair.
func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%s|%s", a, b)
}

// simCache memoizes pairwise message similarity within one deduplication
// pass. It is created per call, so no locking is needed and nothing leaks
// across batches.
type simCache struct {
	scores map[string]float64
	hashes map[string]string // message -> content hash
}

func newSimCache() *simCache {
	return &simCache{
		scores: make(map[string]float64),
		hashes: make(map[string]string),
	}
}

func (c *simCache) hashOf(msg string) string {
	if h, ok := c.hashes[msg]; ok {
		return h
	}
	h := contentHash(msg)
	c.hashes[msg] = h
	return h
}

// similarity returns the similarity of two messages. Exact equality short-
// circuits to 1.0. With semantic matching enabled the score is Jaccard
// token-set similarity; otherwise substring containment scores a flat
// containmentSimilarity and anything else scores 0.
func (c *simCache) similarity(a, b string, semantic bool) float64 {
	if a == b {
		return 1.0
	}
	key := pairKey(c.hashOf(a), c.hashOf(b))
	if score, ok := c.scores[key]; ok {
		return score
	}

	var score float64
	if semantic {
		score = jaccard(a, b)
	} else {
		la, lb := strings.ToLower(a), strings.ToLower(b)
		if strings.Contains(la, lb) || strings.Contains(lb, la) {
			score = containmentSimilarity
		}
	}
	c.scores[key] = score
	return score
}

// Clear drops all memoized scores.
func (c *simCache) Clear() {
	c.scores = make(map[string]float64)
	c.hashes = make(map[string]string)
}
