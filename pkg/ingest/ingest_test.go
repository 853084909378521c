package ingest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/triagekit/harmonize/pkg/finding"
)

func writeReport(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestGlob_JSONArray(t *testing.T) {
	dir := t.TempDir()
	writeReport(t, dir, "semgrep.json", `[
		{"id": "f1", "analyzer": "semgrep", "file": "api/auth.go", "line": 10,
		 "severity": "high", "category": "security", "message": "hardcoded secret"},
		{"id": "f2", "analyzer": "semgrep", "file": "api/auth.go", "line": 22,
		 "severity": "HIGH", "category": "security", "message": "weak hash"}
	]`)

	batch, err := Glob(dir+"/*.json")
	if err != nil {
		t.Fatalf("Glob: %v", err)
	}
	if len(batch.Findings) != 2 {
		t.Fatalf("expected 2 findings, got %d", len(batch.Findings))
	}
	if len(batch.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", batch.Warnings)
	}
	if got := batch.Findings[1].Severity; got != finding.SevHigh {
		t.Errorf("severity not normalized, got %q", got)
	}
}

func TestGlob_NDJSON(t *testing.T) {
	dir := t.TempDir()
	writeReport(t, dir, "lint.ndjson",
		`{"id": "n1", "analyzer": "lint", "file": "pkg/util.go", "severity": "low", "category": "quality", "message": "unused var"}
{"id": "n2", "analyzer": "lint", "file": "pkg/util.go", "severity": "low", "category": "quality", "message": "shadowed var"}

{"id": "n3", "analyzer": "lint", "file": "pkg/util.go", "severity": "medium", "category": "quality", "message": "long func"}
`)

	batch, err := Glob(dir+"/*.ndjson")
	if err != nil {
		t.Fatalf("Glob: %v", err)
	}
	if len(batch.Findings) != 3 {
		t.Errorf("expected 3 findings, got %d", len(batch.Findings))
	}
}

func TestGlob_AssignsIDAndTimestamp(t *testing.T) {
	dir := t.TempDir()
	writeReport(t, dir, "r.json",
		`[{"analyzer": "a", "file": "x.go", "severity": "low", "category": "quality", "message": "m"}]`)

	batch, err := Glob(dir+"/*.json")
	if err != nil {
		t.Fatalf("Glob: %v", err)
	}
	if len(batch.Findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(batch.Findings))
	}
	f := batch.Findings[0]
	if len(f.ID) != 26 {
		t.Errorf("expected a generated ULID, got %q", f.ID)
	}
	if f.Timestamp == "" {
		t.Error("expected a backfilled timestamp")
	}
}

func TestGlob_MalformedRecordsWarnNotFail(t *testing.T) {
	dir := t.TempDir()
	writeReport(t, dir, "mixed.ndjson",
		`{"id": "ok1", "analyzer": "a", "file": "x.go", "severity": "low", "category": "q", "message": "m"}
this is not json
{"id": "dropped", "analyzer": "a", "severity": "low", "category": "q", "message": "no file path"}
`)
	writeReport(t, dir, "broken.json", `[{"id": "trunc"`)

	batch, err := Glob(dir+"/*.ndjson", dir+"/*.json")
	if err != nil {
		t.Fatalf("Glob: %v", err)
	}
	if len(batch.Findings) != 1 || batch.Findings[0].ID != "ok1" {
		t.Errorf("expected only the valid finding, got %v", batch.Findings)
	}
	if len(batch.Warnings) != 3 {
		t.Fatalf("expected 3 warnings (bad line, dropped record, bad file), got %v", batch.Warnings)
	}
	for _, w := range batch.Warnings {
		if !strings.Contains(w, dir) {
			t.Errorf("warning should name the source file: %q", w)
		}
	}
}

func TestGlob_DeduplicatesAndSortsFiles(t *testing.T) {
	dir := t.TempDir()
	writeReport(t, dir, "b.json", `[]`)
	writeReport(t, dir, "a.json", `[]`)

	batch, err := Glob(dir+"/*.json", dir+"/a.json")
	if err != nil {
		t.Fatalf("Glob: %v", err)
	}
	if len(batch.Files) != 2 {
		t.Fatalf("expected 2 files, got %v", batch.Files)
	}
	if filepath.Base(batch.Files[0]) != "a.json" || filepath.Base(batch.Files[1]) != "b.json" {
		t.Errorf("files not sorted: %v", batch.Files)
	}
}

func TestGlob_BadPattern(t *testing.T) {
	if _, err := Glob("[!"); err == nil {
		t.Error("expected error for malformed pattern")
	}
}
