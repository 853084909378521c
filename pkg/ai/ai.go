// Package ai defines the optional generative-text capability used to
// upgrade root-cause analysis and fix generation. The pipeline depends on
// it only through the Client interface; with the Null client the whole
// pipeline runs in pure-heuristic mode with identical control flow.
package ai

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"
)

// ErrUnavailable is returned by clients that have no backing service.
var ErrUnavailable = errors.New("ai capability unavailable")

// DefaultProposeTimeout bounds a single generative call so a slow external
// service can never stall the rest of a batch.
const DefaultProposeTimeout = 20 * time.Second

// Client is the single-method capability boundary: a bounded prompt in,
// free text in the documented line-oriented KEY: value mini-format out.
type Client interface {
	Propose(ctx context.Context, prompt string) (string, error)
}

// Null is the no-op client. Every call fails with ErrUnavailable, which
// callers treat like any other capability failure: fall back to heuristics.
type Null struct{}

func (Null) Propose(context.Context, string) (string, error) {
	return "", ErrUnavailable
}

// Static replays canned responses; intended for tests.
type Static struct {
	Response string
	Err      error
}

func (s Static) Propose(context.Context, string) (string, error) {
	return s.Response, s.Err
}

// ProposeWithTimeout wraps a Propose call with the given timeout (or
// DefaultProposeTimeout when zero). Timeouts surface as ordinary errors.
func ProposeWithTimeout(ctx context.Context, c Client, prompt string, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = DefaultProposeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.Propose(ctx, prompt)
}

// ParseKeyValues parses the line-oriented KEY: value response format.
// Keys are upper-cased; repeated keys keep the first occurrence. Lines
// without a colon are appended to the value of the previous key, which
// tolerates models that wrap long values. Parsing never fails; malformed
// input simply yields fewer keys.
func ParseKeyValues(text string) map[string]string {
	out := make(map[string]string)
	lastKey := ""
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		idx := strings.Index(line, ":")
		if idx <= 0 {
			if lastKey != "" {
				out[lastKey] = strings.TrimSpace(out[lastKey] + " " + line)
			}
			continue
		}
		key := strings.ToUpper(strings.TrimSpace(line[:idx]))
		value := strings.TrimSpace(line[idx+1:])
		if !isKeyToken(key) {
			if lastKey != "" {
				out[lastKey] = strings.TrimSpace(out[lastKey] + " " + line)
			}
			continue
		}
		if _, exists := out[key]; !exists {
			out[key] = value
		}
		lastKey = key
	}
	return out
}

// isKeyToken accepts upper-case identifiers with digits, underscores, and
// spaces (for keys like "FIX 1").
func isKeyToken(s string) bool {
	if s == "" || len(s) > 32 {
		return false
	}
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') && r != '_' && r != ' ' {
			return false
		}
	}
	return true
}

// ParseFloat parses a confidence-style numeric field defensively: percent
// signs are tolerated ("85%" → 0.85), values above 1 are assumed to be
// percentages, and anything unparseable returns the fallback.
func ParseFloat(s string, fallback float64) float64 {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fallback
	}
	if v > 1 {
		v = v / 100
	}
	if v < 0 || v > 1 {
		return fallback
	}
	return v
}

// ParseInt parses an integer field defensively, returning the fallback on
// malformed or negative input.
func ParseInt(s string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || v < 0 {
		return fallback
	}
	return v
}

// SplitList parses a semicolon- or comma-separated list field, trimming
// blanks and capping at max entries.
func SplitList(s string, max int) []string {
	sep := ";"
	if !strings.Contains(s, ";") {
		sep = ","
	}
	var out []string
	for _, part := range strings.Split(s, sep) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
		if len(out) == max {
			break
		}
	}
	return out
}
