package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/49nn/ProveNuance2/internal/model"
)

const batchDebounce = 300 * time.Millisecond

// BatchWatcher ingests extractor batches dropped as .json files into a
// directory. Writes are debounced per file so a batch is only read once the
// extractor has finished writing it.
type BatchWatcher struct {
	engine *Engine
	dir    string
	logger *zap.Logger

	// onReport, when set, observes every ingest verdict. Used by the CLI
	// to print reports as they happen.
	onReport func(*BatchReport)

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
	pending sync.WaitGroup

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewBatchWatcher builds a watcher over a drop directory.
func NewBatchWatcher(e *Engine, dir string, onReport func(*BatchReport)) *BatchWatcher {
	return &BatchWatcher{
		engine:   e,
		dir:      dir,
		logger:   e.logger.Named("batch_watcher"),
		onReport: onReport,
		timers:   make(map[string]*time.Timer),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start watches until Stop is called or the context ends. Files already in
// the directory when Start runs are ingested first.
func (w *BatchWatcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create batch watcher: %w", err)
	}
	if err := watcher.Add(w.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}

	entries, err := os.ReadDir(w.dir)
	if err != nil {
		watcher.Close()
		return fmt.Errorf("failed to list %s: %w", w.dir, err)
	}
	for _, ent := range entries {
		if !ent.IsDir() && strings.HasSuffix(ent.Name(), ".json") {
			w.ingestFile(ctx, filepath.Join(w.dir, ent.Name()))
		}
	}

	go w.loop(ctx, watcher)
	return nil
}

// Stop ends the watch loop, cancels pending debounce timers and waits for any
// in-flight ingest to finish. No ingest runs after Stop returns.
func (w *BatchWatcher) Stop() {
	close(w.stopCh)
	<-w.doneCh

	w.mu.Lock()
	w.stopped = true
	for path, t := range w.timers {
		if t.Stop() {
			w.pending.Done()
		}
		delete(w.timers, path)
	}
	w.mu.Unlock()
	w.pending.Wait()
}

func (w *BatchWatcher) loop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer close(w.doneCh)
	defer watcher.Close()

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, ".json") {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.schedule(ctx, event.Name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", zap.Error(err))
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		}
	}
}

func (w *BatchWatcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	// A drained rearm timer never runs its callback, so its pending slot is
	// released here.
	if t, ok := w.timers[path]; ok && t.Stop() {
		w.pending.Done()
	}
	w.pending.Add(1)
	var t *time.Timer
	t = time.AfterFunc(batchDebounce, func() {
		defer w.pending.Done()
		w.mu.Lock()
		if w.stopped {
			w.mu.Unlock()
			return
		}
		if w.timers[path] == t {
			delete(w.timers, path)
		}
		w.mu.Unlock()
		w.ingestFile(ctx, path)
	})
	w.timers[path] = t
}

func (w *BatchWatcher) ingestFile(ctx context.Context, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		w.logger.Warn("failed to read batch file", zap.String("path", path), zap.Error(err))
		return
	}
	var b model.Batch
	if err := json.Unmarshal(data, &b); err != nil {
		w.logger.Warn("failed to decode batch file", zap.String("path", path), zap.Error(err))
		return
	}
	if b.FragmentID == "" {
		b.FragmentID = strings.TrimSuffix(filepath.Base(path), ".json")
	}

	rep, err := w.engine.Ingest(ctx, b)
	if err != nil {
		w.logger.Error("ingest failed", zap.String("path", path), zap.Error(err))
		return
	}
	w.logger.Info("batch ingested",
		zap.String("fragment_id", rep.FragmentID),
		zap.Int("accepted_rules", len(rep.AcceptedRules)),
		zap.Int("accepted_conditions", len(rep.AcceptedConditions)),
		zap.Int("rejected", len(rep.Rejected)),
		zap.Bool("committed", rep.Committed))
	if w.onReport != nil {
		w.onReport(rep)
	}
}
