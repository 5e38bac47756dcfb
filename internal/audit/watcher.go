package audit

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher re-audits artifacts when they change on disk. It watches the
// artifact directory, debounces rapid saves, and hands a fresh artifact
// set to the callback. The callback decides what to do with the report;
// the watcher never mutates anything.
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	dir         string
	exts        map[string]bool // e.g. ".html", ".md"; empty means all files
	pending     map[string]time.Time
	debounceDur time.Duration
	onChange    func(changed []Artifact)
	logger      *zap.Logger

	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool

	stats WatcherStats
}

// WatcherStats tracks watcher activity for diagnostics.
type WatcherStats struct {
	EventsSeen      int
	AuditsTriggered int
	Errors          int
	LastEventPath   string
	LastEventTime   time.Time
}

// NewWatcher builds a Watcher over dir. Only files whose extension is
// in exts are considered; an empty exts list watches everything.
// onChange receives the re-read artifacts after the debounce interval.
func NewWatcher(dir string, exts []string, debounce time.Duration, onChange func(changed []Artifact), logger *zap.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	extSet := make(map[string]bool, len(exts))
	for _, e := range exts {
		extSet[e] = true
	}
	return &Watcher{
		watcher:     fsw,
		dir:         dir,
		exts:        extSet,
		pending:     make(map[string]time.Time),
		debounceDur: debounce,
		onChange:    onChange,
		logger:      logger,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start begins watching. Non-blocking; the event loop runs in its own
// goroutine until Stop.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.watcher.Add(w.dir); err != nil {
		return err
	}
	w.logger.Info("watching artifacts", zap.String("dir", w.dir))

	go w.run()
	return nil
}

// Stop halts the event loop and waits for it to drain.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	if err := w.watcher.Close(); err != nil {
		w.logger.Error("closing artifact watcher", zap.Error(err))
	}
}

// Stats returns a snapshot of watcher activity.
func (w *Watcher) Stats() WatcherStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Watcher) run() {
	defer close(w.doneCh)

	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("artifact watcher error", zap.Error(err))
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()

		case <-tick.C:
			w.flushPending()
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return
	}
	if len(w.exts) > 0 && !w.exts[filepath.Ext(event.Name)] {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.stats.EventsSeen++
	w.stats.LastEventPath = event.Name
	w.stats.LastEventTime = time.Now()
	w.pending[event.Name] = time.Now()
}

// flushPending fires the callback for paths whose last event is older
// than the debounce interval, batching rapid saves into one audit.
func (w *Watcher) flushPending() {
	w.mu.Lock()
	now := time.Now()
	var ready []string
	for path, at := range w.pending {
		if now.Sub(at) >= w.debounceDur {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}
	if len(ready) > 0 {
		w.stats.AuditsTriggered++
	}
	w.mu.Unlock()

	if len(ready) == 0 {
		return
	}

	var artifacts []Artifact
	for _, path := range ready {
		text, err := os.ReadFile(path)
		if err != nil {
			w.logger.Warn("reading changed artifact", zap.String("path", path), zap.Error(err))
			continue
		}
		artifacts = append(artifacts, Artifact{Name: path, Text: string(text)})
	}
	if len(artifacts) > 0 {
		w.onChange(artifacts)
	}
}

// ReadArtifacts loads every matching file under dir as an artifact set,
// for one-shot audits. Paths are reported relative to dir.
func ReadArtifacts(dir string, exts []string) ([]Artifact, error) {
	extSet := make(map[string]bool, len(exts))
	for _, e := range exts {
		extSet[e] = true
	}
	var artifacts []Artifact
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if len(extSet) > 0 && !extSet[filepath.Ext(path)] {
			return nil
		}
		text, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = path
		}
		artifacts = append(artifacts, Artifact{Name: rel, Text: string(text)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return artifacts, nil
}
