// Package ingest loads raw analyzer findings from report files on disk.
// It is the concrete form of the upstream producer interface: one batch of
// findings in, ready for a single harmonization pass.
package ingest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/oklog/ulid/v2"
	"github.com/triagekit/harmonize/pkg/finding"
)

var ingestLog = log.New(os.Stderr, "[harmonize:ingest] ", log.Ltime)

// maxRecordBytes bounds a single NDJSON record.
const maxRecordBytes = 1 << 20

// Batch is the outcome of one ingest pass: the well-formed findings plus
// per-record warnings for everything that was dropped or repaired.
type Batch struct {
	Findings []*finding.Finding
	Warnings []string
	Files    []string // report files read, in glob order
}

// Glob loads findings from every report file matching the given doublestar
// patterns. Matching is deterministic: files are read in sorted order.
// A malformed file or record produces a warning, never an error; only a
// bad pattern fails the call.
func Glob(patterns ...string) (*Batch, error) {
	var files []string
	seen := make(map[string]bool)
	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad report pattern %q: %w", pattern, err)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				files = append(files, m)
			}
		}
	}
	sort.Strings(files)

	batch := &Batch{Files: files}
	for _, path := range files {
		if err := readFile(path, batch); err != nil {
			batch.Warnings = append(batch.Warnings, fmt.Sprintf("%s: %v", path, err))
		}
	}
	ingestLog.Printf("loaded %d findings from %d report files (%d warnings)",
		len(batch.Findings), len(files), len(batch.Warnings))
	return batch, nil
}

// readFile parses one report file. A leading '[' means a JSON array;
// anything else is treated as NDJSON, one finding per line.
func readFile(path string, batch *Batch) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	trimmed := strings.TrimLeftFunc(string(data), func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	if strings.HasPrefix(trimmed, "[") {
		var records []finding.Finding
		if err := json.Unmarshal(data, &records); err != nil {
			return fmt.Errorf("invalid JSON array: %w", err)
		}
		for i := range records {
			admit(&records[i], path, batch)
		}
		return nil
	}

	scanner := bufio.NewScanner(strings.NewReader(trimmed))
	scanner.Buffer(make([]byte, 0, 64*1024), maxRecordBytes)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var f finding.Finding
		if err := json.Unmarshal([]byte(line), &f); err != nil {
			batch.Warnings = append(batch.Warnings,
				fmt.Sprintf("%s:%d: invalid record: %v", path, lineNo, err))
			continue
		}
		admit(&f, path, batch)
	}
	return scanner.Err()
}

// admit repairs what can be repaired (missing id, missing timestamp,
// severity casing) and drops what cannot, with a warning either way for
// anything unusual.
func admit(f *finding.Finding, source string, batch *Batch) {
	if f.ID == "" {
		f.ID = ulid.Make().String()
	}
	if sev, ok := finding.NormalizeSeverity(f.Severity); ok {
		f.Severity = sev
	}
	if f.Timestamp == "" {
		f.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	if err := f.Validate(); err != nil {
		batch.Warnings = append(batch.Warnings, fmt.Sprintf("%s: dropped: %v", source, err))
		return
	}
	batch.Findings = append(batch.Findings, f)
}
