// Package watcher provides fsnotify-based directory watching with
// event debouncing, feeding changed files into the ingestion pipeline.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Op is a file change kind after coalescing.
type Op int

// File operations.
const (
	OpCreate Op = iota
	OpModify
	OpDelete
)

// String returns the operation name.
func (op Op) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// Event is one debounced file change.
type Event struct {
	Path string
	Op   Op
	At   time.Time
}

// Config configures the watcher.
type Config struct {
	// Extensions filters watched files (".md", ".txt"). Empty watches
	// everything.
	Extensions []string

	// Debounce is the coalescing window for rapid events.
	Debounce time.Duration

	// BufferSize is the event channel buffer.
	BufferSize int
}

// DefaultDebounce is the default coalescing window.
const DefaultDebounce = 400 * time.Millisecond

// Watcher watches a directory tree and emits debounced event batches.
type Watcher struct {
	fsw        *fsnotify.Watcher
	debouncer  *Debouncer
	extensions map[string]struct{}
	logger     *slog.Logger

	mu       sync.Mutex
	started  bool
	stopOnce sync.Once
	done     chan struct{}
}

// New creates a watcher.
func New(cfg Config, logger *slog.Logger) (*Watcher, error) {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 16
	}
	if logger == nil {
		logger = slog.Default()
	}

	extensions := make(map[string]struct{}, len(cfg.Extensions))
	for _, ext := range cfg.Extensions {
		extensions[strings.ToLower(ext)] = struct{}{}
	}

	return &Watcher{
		debouncer:  NewDebouncer(cfg.Debounce, cfg.BufferSize),
		extensions: extensions,
		logger:     logger,
		done:       make(chan struct{}),
	}, nil
}

// Start begins watching root recursively until ctx is cancelled or Stop
// is called. New subdirectories are added to the watch as they appear.
func (w *Watcher) Start(ctx context.Context, root string) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.fsw = fsw
	w.started = true
	w.mu.Unlock()

	if err := w.addTree(root); err != nil {
		_ = fsw.Close()
		return err
	}

	go w.run(ctx)
	return nil
}

// Events returns the channel of debounced event batches.
func (w *Watcher) Events() <-chan []Event {
	return w.debouncer.Output()
}

// Stop stops the watcher and closes the event channel. Safe to call
// multiple times.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.mu.Lock()
		if w.fsw != nil {
			_ = w.fsw.Close()
		}
		w.mu.Unlock()
		w.debouncer.Stop()
	})
}

func (w *Watcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			if err != nil {
				w.logger.Warn("watch_error", slog.String("error", err.Error()))
			}
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	// New directories join the watch; their files arrive as events.
	if ev.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addTree(ev.Name); err != nil {
				w.logger.Warn("watch_add_failed",
					slog.String("path", ev.Name),
					slog.String("error", err.Error()))
			}
			return
		}
	}

	if !w.watched(ev.Name) {
		return
	}

	now := time.Now()
	switch {
	case ev.Op.Has(fsnotify.Create):
		w.debouncer.Add(Event{Path: ev.Name, Op: OpCreate, At: now})
	case ev.Op.Has(fsnotify.Write):
		w.debouncer.Add(Event{Path: ev.Name, Op: OpModify, At: now})
	case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
		w.debouncer.Add(Event{Path: ev.Name, Op: OpDelete, At: now})
	}
}

func (w *Watcher) watched(path string) bool {
	if len(w.extensions) == 0 {
		return true
	}
	_, ok := w.extensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if name := d.Name(); name != "." && strings.HasPrefix(name, ".") {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}
