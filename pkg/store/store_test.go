package store

import (
	"errors"
	"testing"

	"github.com/triagekit/harmonize/pkg/finding"
	"github.com/triagekit/harmonize/pkg/harmonize"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return s
}

func testResult(ids ...string) *harmonize.Result {
	res := &harmonize.Result{
		Stats: harmonize.Stats{TotalFindings: len(ids), HarmonizedFindings: len(ids)},
	}
	for i, id := range ids {
		sev := finding.SevHigh
		cat := "security"
		if i%2 == 1 {
			sev = finding.SevLow
			cat = "quality"
		}
		res.Findings = append(res.Findings, &harmonize.Harmonized{
			Finding: &finding.Finding{
				ID:       id,
				Analyzer: "semgrep",
				FilePath: "api/handler.go",
				Severity: sev,
				Category: cat,
				Message:  "SQL injection in query builder",
			},
			ImpactLevel: harmonize.ImpactHigh,
		})
	}
	return res
}

func TestStore_SaveAndGetRun(t *testing.T) {
	s := setupStore(t)

	id, err := s.SaveRun(testResult("f1", "f2"))
	if err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if len(id) != 26 {
		t.Errorf("expected ULID run id, got %q", id)
	}

	run, err := s.GetRun(id)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.ID != id {
		t.Errorf("expected run %s, got %s", id, run.ID)
	}
	if len(run.Result.Findings) != 2 {
		t.Errorf("expected 2 findings, got %d", len(run.Result.Findings))
	}
	if run.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
}

func TestStore_GetRun_NotFound(t *testing.T) {
	s := setupStore(t)
	if _, err := s.GetRun("01HZZZZZZZZZZZZZZZZZZZZZZZ"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_LatestRun(t *testing.T) {
	s := setupStore(t)

	if _, err := s.LatestRun(); !errors.Is(err, ErrNotFound) {
		t.Fatalf("empty store should report ErrNotFound, got %v", err)
	}

	if _, err := s.SaveRun(testResult("old")); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	wantID, err := s.SaveRun(testResult("new"))
	if err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	run, err := s.LatestRun()
	if err != nil {
		t.Fatalf("LatestRun: %v", err)
	}
	if run.ID != wantID {
		t.Errorf("expected latest run %s, got %s", wantID, run.ID)
	}
	if run.Result.Findings[0].Finding.ID != "new" {
		t.Errorf("latest run holds stale result: %v", run.Result.Findings[0].Finding.ID)
	}
}

func TestStore_ListRuns_NewestFirst(t *testing.T) {
	s := setupStore(t)

	first, _ := s.SaveRun(testResult("a"))
	second, _ := s.SaveRun(testResult("b", "c"))

	runs, err := s.ListRuns()
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != second || runs[1].ID != first {
		t.Errorf("runs not newest-first: %v", []string{runs[0].ID, runs[1].ID})
	}
	if runs[0].Stats.HarmonizedFindings != 2 {
		t.Errorf("summary stats wrong: %+v", runs[0].Stats)
	}
}

func TestStore_Search(t *testing.T) {
	s := setupStore(t)
	if _, err := s.SaveRun(testResult("f1", "f2")); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	hits, err := s.Search("injection", "", "", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits for text query, got %d", len(hits))
	}

	hits, err = s.Search("", "security", "", 10)
	if err != nil {
		t.Fatalf("Search by category: %v", err)
	}
	if len(hits) != 1 || hits[0].FindingID != "f1" {
		t.Errorf("category filter should match only f1, got %v", hits)
	}

	hits, err = s.Search("injection", "quality", finding.SevLow, 10)
	if err != nil {
		t.Fatalf("combined search: %v", err)
	}
	if len(hits) != 1 || hits[0].FindingID != "f2" {
		t.Errorf("conjunction should match only f2, got %v", hits)
	}
}

func TestStore_Search_ReindexReplacesPreviousRun(t *testing.T) {
	s := setupStore(t)
	if _, err := s.SaveRun(testResult("f1")); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if _, err := s.SaveRun(testResult("f9")); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	hits, err := s.Search("", "", finding.SevHigh, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].FindingID != "f9" {
		t.Errorf("index should hold only the latest run's findings, got %v", hits)
	}
}

func TestStore_ClosedSearchRejected(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}
	if _, err := s.SaveRun(testResult("x")); err == nil {
		t.Error("SaveRun on closed store should fail")
	}
	if _, err := s.Search("q", "", "", 1); err == nil {
		t.Error("Search on closed store should fail")
	}
}
