// Package store persists harmonization runs. BoltDB holds the runs
// themselves; a Bleve index over the latest run's findings provides
// full-text search for downstream consumers.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/oklog/ulid/v2"
	"github.com/triagekit/harmonize/pkg/harmonize"
	bolt "go.etcd.io/bbolt"
)

var storeLog = log.New(os.Stderr, "[harmonize:store] ", log.Ltime)

var (
	bucketRuns = []byte("runs")
	bucketMeta = []byte("meta")

	keyLatestRun  = []byte("latest_run")
	keyIndexedIDs = []byte("indexed_ids")

	// ErrNotFound is returned when a requested run does not exist.
	ErrNotFound = errors.New("not found")

	errSearchClosed = errors.New("search index is closed")
)

// Run wraps one persisted harmonization result with its identity.
type Run struct {
	ID        string            `json:"id"` // ULID, orders runs by creation time
	CreatedAt time.Time         `json:"createdAt"`
	Result    *harmonize.Result `json:"result"`
}

// RunSummary is the listing view of a run: identity plus stats, without
// the full findings payload.
type RunSummary struct {
	ID        string          `json:"id"`
	CreatedAt time.Time       `json:"createdAt"`
	Stats     harmonize.Stats `json:"stats"`
	Errors    int             `json:"errors"`
}

// SearchHit pairs a finding id with its relevance score.
type SearchHit struct {
	FindingID string  `json:"findingId"`
	Score     float64 `json:"score"`
}

// Store is the bbolt + bleve persistence for harmonization runs.
type Store struct {
	db         *bolt.DB
	search     bleve.Index
	searchPath string
}

// Open opens or creates a store in the given directory.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	dbPath := filepath.Join(dir, "harmonize.db")
	searchPath := filepath.Join(dir, "search.bleve")

	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open run db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketRuns, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize buckets: %w", err)
	}

	index, err := openOrCreateSearchIndex(searchPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open search index: %w", err)
	}

	return &Store{db: db, search: index, searchPath: searchPath}, nil
}

func openOrCreateSearchIndex(path string) (bleve.Index, error) {
	if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		return bleve.New(path, buildIndexMapping())
	}

	index, err := bleve.Open(path)
	if err == nil {
		return index, nil
	}

	storeLog.Printf("search index corrupted at %s (%v), rebuilding", path, err)
	if removeErr := os.RemoveAll(path); removeErr != nil {
		return nil, fmt.Errorf("remove corrupted search index: %w (original error: %v)", removeErr, err)
	}
	return bleve.New(path, buildIndexMapping())
}

func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()

	err := indexMapping.AddCustomAnalyzer("standard_lower", map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": unicode.Name,
		"token_filters": []string{
			lowercase.Name,
		},
	})
	if err != nil {
		// Static configuration; a failure here is a programming error.
		panic(err)
	}

	docMapping := bleve.NewDocumentMapping()

	messageField := bleve.NewTextFieldMapping()
	messageField.Analyzer = "standard_lower"
	docMapping.AddFieldMappingsAt("message", messageField)

	causeField := bleve.NewTextFieldMapping()
	causeField.Analyzer = "standard_lower"
	causeField.Store = false
	docMapping.AddFieldMappingsAt("rootCause", causeField)

	// Keyword fields for exact-match filtering.
	for _, name := range []string{"category", "severity", "impact", "file", "analyzer"} {
		f := bleve.NewTextFieldMapping()
		f.Analyzer = keyword.Name
		docMapping.AddFieldMappingsAt(name, f)
	}

	indexMapping.AddDocumentMapping("harmonized", docMapping)
	indexMapping.DefaultMapping = docMapping
	return indexMapping
}

func searchDoc(hf *harmonize.Harmonized) map[string]interface{} {
	doc := map[string]interface{}{
		"message":  hf.Finding.Message,
		"category": hf.Finding.Category,
		"severity": hf.Finding.Severity,
		"impact":   hf.ImpactLevel,
		"file":     hf.Finding.FilePath,
		"analyzer": hf.Finding.Analyzer,
	}
	if hf.RootCause != nil {
		doc["rootCause"] = hf.RootCause.PrimaryCause
	}
	return doc
}

// Close closes the store.
func (s *Store) Close() error {
	var errs []error
	if s.search != nil {
		if err := s.search.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close search index: %w", err))
		}
		s.search = nil
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close run db: %w", err))
		}
		s.db = nil
	}
	return errors.Join(errs...)
}

// SaveRun persists a result as a new run, marks it latest, and reindexes
// the search index with the run's findings. Returns the assigned run id.
func (s *Store) SaveRun(result *harmonize.Result) (string, error) {
	if s.search == nil {
		return "", errSearchClosed
	}
	run := Run{
		ID:        ulid.Make().String(),
		CreatedAt: time.Now().UTC(),
		Result:    result,
	}
	data, err := json.Marshal(run)
	if err != nil {
		return "", fmt.Errorf("marshal run: %w", err)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketRuns).Put([]byte(run.ID), data); err != nil {
			return err
		}
		return tx.Bucket(bucketMeta).Put(keyLatestRun, []byte(run.ID))
	})
	if err != nil {
		return "", err
	}

	// Reindex outside the tx: search serves only the latest run, and a
	// partial index is repaired on the next save.
	if err := s.reindex(result); err != nil {
		storeLog.Printf("warning: reindex after save failed: %v", err)
	}
	return run.ID, nil
}

// reindex replaces the search index contents with the given run's
// findings. Documents from the previously indexed run are deleted so
// search only ever reflects the latest run.
func (s *Store) reindex(result *harmonize.Result) error {
	var stale []string
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketMeta).Get(keyIndexedIDs)
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &stale)
	})
	if err != nil {
		return fmt.Errorf("read indexed ids: %w", err)
	}

	batch := s.search.NewBatch()
	for _, id := range stale {
		batch.Delete(id)
	}
	ids := make([]string, 0, len(result.Findings))
	for _, hf := range result.Findings {
		if err := batch.Index(hf.Finding.ID, searchDoc(hf)); err != nil {
			return err
		}
		ids = append(ids, hf.Finding.ID)
	}
	if err := s.search.Batch(batch); err != nil {
		return err
	}

	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMeta).Put(keyIndexedIDs, data)
	})
}

// GetRun retrieves one run by id.
func (s *Store) GetRun(id string) (*Run, error) {
	var run Run
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketRuns).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &run)
	})
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// LatestRun retrieves the most recently saved run, or ErrNotFound when
// the store is empty.
func (s *Store) LatestRun() (*Run, error) {
	var id string
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketMeta).Get(keyLatestRun)
		if data == nil {
			return ErrNotFound
		}
		id = string(data)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetRun(id)
}

// ListRuns returns summaries of all runs, newest first (ULIDs sort by
// creation time).
func (s *Store) ListRuns() ([]RunSummary, error) {
	var out []RunSummary
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketRuns).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var run Run
			if err := json.Unmarshal(v, &run); err != nil {
				storeLog.Printf("warning: skipping unreadable run %s: %v", k, err)
				continue
			}
			out = append(out, RunSummary{
				ID:        run.ID,
				CreatedAt: run.CreatedAt,
				Stats:     run.Result.Stats,
				Errors:    len(run.Result.Errors),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// Search runs a full-text query over the latest run's findings,
// optionally filtered by exact category and severity.
func (s *Store) Search(queryStr, category, severity string, limit int) ([]SearchHit, error) {
	if s.search == nil {
		return nil, errSearchClosed
	}
	if limit <= 0 {
		limit = 50
	}

	var queries []query.Query
	if queryStr != "" {
		queries = append(queries, bleve.NewQueryStringQuery(queryStr))
	}
	if category != "" {
		q := bleve.NewTermQuery(category)
		q.SetField("category")
		queries = append(queries, q)
	}
	if severity != "" {
		q := bleve.NewTermQuery(severity)
		q.SetField("severity")
		queries = append(queries, q)
	}

	var searchQuery query.Query
	switch len(queries) {
	case 0:
		searchQuery = bleve.NewMatchAllQuery()
	case 1:
		searchQuery = queries[0]
	default:
		searchQuery = bleve.NewConjunctionQuery(queries...)
	}

	req := bleve.NewSearchRequestOptions(searchQuery, limit, 0, false)
	res, err := s.search.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	hits := make([]SearchHit, 0, len(res.Hits))
	for _, hit := range res.Hits {
		hits = append(hits, SearchHit{FindingID: hit.ID, Score: hit.Score})
	}
	return hits, nil
}
