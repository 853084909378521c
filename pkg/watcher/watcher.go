// Package watcher observes analyzer report directories and batches
// report file changes so a new harmonization run can be triggered once
// per burst instead of once per file.
package watcher

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

var watchLog = log.New(os.Stderr, "[harmonize:watcher] ", log.Ltime)

// DefaultDebounceDelay batches the burst of files an analyzer writes at
// the end of its run.
const DefaultDebounceDelay = 2 * time.Second

// skipDirs are directories never descended into when walking report
// roots.
var skipDirs = map[string]bool{
	".git":         true,
	".svn":         true,
	".hg":          true,
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
	".venv":        true,
	"venv":         true,
	".idea":        true,
	".vscode":      true,
	".cache":       true,
}

// IsReportFile reports whether a path looks like an analyzer report.
func IsReportFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".ndjson", ".jsonl":
		return true
	}
	return false
}

type Config struct {
	Paths         []string
	DebounceDelay time.Duration

	// FileFilter overrides IsReportFile when set.
	FileFilter func(path string) bool
}

// ReportHandler receives one debounced batch of changed report files.
type ReportHandler interface {
	OnReports(files map[string]fsnotify.Op)
}

type ReportHandlerFunc func(files map[string]fsnotify.Op)

func (f ReportHandlerFunc) OnReports(files map[string]fsnotify.Op) {
	f(files)
}

type Watcher struct {
	fsnotify  *fsnotify.Watcher
	config    Config
	handlers  []ReportHandler
	stop      chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
	startTime time.Time

	mu           sync.Mutex
	pending      map[string]fsnotify.Op
	debounceOnce sync.Once
	watchPaths   []string
	dirsWatched  int
}

func New(config Config, handlers ...ReportHandler) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if config.DebounceDelay == 0 {
		config.DebounceDelay = DefaultDebounceDelay
	}
	if config.FileFilter == nil {
		config.FileFilter = IsReportFile
	}

	return &Watcher{
		fsnotify: fsWatcher,
		config:   config,
		handlers: handlers,
		stop:     make(chan struct{}),
		pending:  make(map[string]fsnotify.Op),
	}, nil
}

func (w *Watcher) AddHandler(h ReportHandler) {
	w.handlers = append(w.handlers, h)
}

func (w *Watcher) Start() error {
	paths := w.config.Paths
	if len(paths) == 0 {
		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		paths = []string{cwd}
	}

	w.watchPaths = paths

	for _, root := range paths {
		err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return nil
			}
			if info.IsDir() {
				name := info.Name()
				if skipDirs[name] || (len(name) > 1 && name[0] == '.') {
					return filepath.SkipDir
				}
				if err := w.fsnotify.Add(path); err == nil {
					w.dirsWatched++
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	w.startTime = time.Now()
	w.wg.Add(1)
	go w.processEvents()

	watchLog.Printf("watching %d directories in %v (debounce: %v)", w.dirsWatched, paths, w.config.DebounceDelay)
	return nil
}

func (w *Watcher) Stop() error {
	w.stopOnce.Do(func() { close(w.stop) })
	w.wg.Wait()
	return w.fsnotify.Close()
}

type Stats struct {
	Paths        []string
	DirsWatched  int
	Debounce     time.Duration
	PendingFiles int
	Uptime       time.Duration
}

func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	pending := len(w.pending)
	w.mu.Unlock()

	return Stats{
		Paths:        w.watchPaths,
		DirsWatched:  w.dirsWatched,
		Debounce:     w.config.DebounceDelay,
		PendingFiles: pending,
		Uptime:       time.Since(w.startTime),
	}
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.stop:
			return

		case event, ok := <-w.fsnotify.Events:
			if !ok {
				return
			}

			// New report directories appear when analyzers create
			// per-run output folders.
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					name := filepath.Base(event.Name)
					if !skipDirs[name] && !(len(name) > 1 && name[0] == '.') {
						if err := w.fsnotify.Add(event.Name); err == nil {
							w.dirsWatched++
							watchLog.Printf("watching new directory: %s", event.Name)
						}
					}
					continue
				}
			}

			if !w.config.FileFilter(event.Name) {
				continue
			}

			name := filepath.Base(event.Name)
			if strings.HasPrefix(name, ".") || strings.HasSuffix(name, "~") ||
				strings.HasSuffix(name, ".swp") || strings.HasSuffix(name, ".tmp") {
				continue
			}

			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				w.queueChange(event.Name, event.Op)
			}

		case err, ok := <-w.fsnotify.Errors:
			if !ok {
				return
			}
			watchLog.Printf("error: %v", err)
		}
	}
}

func (w *Watcher) queueChange(path string, op fsnotify.Op) {
	w.mu.Lock()
	w.pending[path] = op
	w.debounceOnce.Do(func() {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			select {
			case <-time.After(w.config.DebounceDelay):
				w.flushPending()
			case <-w.stop:
				return
			}
		}()
	})
	w.mu.Unlock()
}

func (w *Watcher) flushPending() {
	w.mu.Lock()
	pending := w.pending
	w.pending = make(map[string]fsnotify.Op)
	w.debounceOnce = sync.Once{}
	w.mu.Unlock()

	if len(pending) == 0 {
		return
	}

	watchLog.Printf("processing %d report changes", len(pending))

	for _, h := range w.handlers {
		h.OnReports(pending)
	}
}

// IsRemove reports whether an op includes a removal.
func IsRemove(op fsnotify.Op) bool {
	return op&fsnotify.Remove != 0
}
