package wikidump

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/teranos/edithist/errors"
	"github.com/teranos/edithist/logger"
)

// DefaultSettlePeriod is how long a new file must stay unchanged before it
// is handed off. Dump downloads write in many small chunks.
const DefaultSettlePeriod = 5 * time.Second

// Watcher reports dump files that appear in a directory once they stop
// changing. Each path is reported at most once.
type Watcher struct {
	dir    string
	exts   []string
	settle time.Duration
	logger *zap.SugaredLogger

	mu     sync.Mutex
	timers map[string]*time.Timer
	seen   map[string]bool
	ready  chan string
	done   chan struct{} // closed when Run returns
	stop   sync.Once
}

// NewWatcher watches dir for files ending in one of exts.
func NewWatcher(dir string, exts []string, settle time.Duration, log *zap.SugaredLogger) *Watcher {
	if settle <= 0 {
		settle = DefaultSettlePeriod
	}
	return &Watcher{
		dir:    dir,
		exts:   exts,
		settle: settle,
		logger: logger.Named(log, "watcher"),
		timers: make(map[string]*time.Timer),
		seen:   make(map[string]bool),
		ready:  make(chan string, 64),
		done:   make(chan struct{}),
	}
}

// MarkSeen excludes paths that were already processed.
func (w *Watcher) MarkSeen(paths ...string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, p := range paths {
		w.seen[filepath.Clean(p)] = true
	}
}

// Run blocks until ctx is done, calling handle for every settled file.
// handle runs on the watch goroutine, one file at a time.
func (w *Watcher) Run(ctx context.Context, handle func(ctx context.Context, path string)) error {
	defer w.stop.Do(func() { close(w.done) })

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create fsnotify watcher")
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return errors.Wrapf(err, "failed to watch %s", w.dir)
	}
	w.logger.Infow("Watching for new dumps", logger.FieldPath, w.dir)

	defer w.stopTimers()
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !HasDumpSuffix(event.Name, w.exts) {
				continue
			}
			w.schedule(filepath.Clean(event.Name))

		case path := <-w.ready:
			w.logger.Infow("New dump settled", logger.FieldFile, path)
			handle(ctx, path)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warnw("Watcher error", logger.FieldError, err)
		}
	}
}

// schedule (re)starts the settle timer for path.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.seen[path] {
		return
	}
	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(w.settle, func() {
		w.mu.Lock()
		if w.seen[path] {
			w.mu.Unlock()
			return
		}
		w.seen[path] = true
		delete(w.timers, path)
		w.mu.Unlock()
		w.deliver(path)
	})
}

// deliver hands a settled path to Run. It reports false when Run has
// already returned.
func (w *Watcher) deliver(path string) bool {
	select {
	case w.ready <- path:
		return true
	case <-w.done:
		return false
	}
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
}
