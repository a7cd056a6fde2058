package runner

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"taxray/internal/document"
	"taxray/internal/logging"
)

// Watcher re-ingests corpus documents as they change on disk. Rapid
// successive writes to the same file are debounced into one ingestion.
type Watcher struct {
	dir      string
	ingestor *Ingestor
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer

	// OnIngest, if set, is called after each successful re-ingestion.
	OnIngest func(path string, stats *IngestStats)
}

// NewWatcher creates a watcher over dir.
func NewWatcher(dir string, ingestor *Ingestor, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	return &Watcher{
		dir:      dir,
		ingestor: ingestor,
		debounce: debounce,
		pending:  make(map[string]*time.Timer),
	}
}

// Watch blocks until ctx is canceled, re-ingesting .txt files as they are
// created or modified.
func (w *Watcher) Watch(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	if err := fsw.Add(w.dir); err != nil {
		return err
	}
	logging.Watch("Watching %s for document changes (debounce %v)", w.dir, w.debounce)

	for {
		select {
		case <-ctx.Done():
			w.cancelPending()
			return ctx.Err()
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !strings.EqualFold(filepath.Ext(event.Name), ".txt") {
				continue
			}
			w.schedule(ctx, event.Name)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logging.Get(logging.CategoryWatch).Warn("Watcher error: %v", err)
		}
	}
}

// schedule arms (or re-arms) the debounce timer for a path.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.pending[path]; ok {
		timer.Reset(w.debounce)
		return
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		w.reingest(ctx, path)
	})
}

func (w *Watcher) reingest(ctx context.Context, path string) {
	doc, err := document.LoadFile(path)
	if err != nil {
		logging.Get(logging.CategoryWatch).Error("Failed to load changed file %s: %v", path, err)
		return
	}

	stats, err := w.ingestor.IngestDocument(ctx, doc)
	if err != nil {
		logging.Get(logging.CategoryWatch).Error("Failed to re-ingest %s: %v", path, err)
		return
	}
	logging.Watch("Re-ingested %s: %d passages, %d entities", path, stats.Passages, stats.Entities)

	if w.OnIngest != nil {
		w.OnIngest(path, stats)
	}
}

func (w *Watcher) cancelPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, timer := range w.pending {
		timer.Stop()
		delete(w.pending, path)
	}
}
