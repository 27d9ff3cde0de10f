// Package watcher rebuilds the passage index when reference PDFs change.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/umlgen/internal/core/domain"
	"github.com/custodia-labs/umlgen/internal/logger"
)

// DefaultDebounce is how long the dataset must be quiet before a rebuild.
const DefaultDebounce = 2 * time.Second

// Rebuilder rebuilds the index from the dataset.
type Rebuilder interface {
	Build(ctx context.Context) (*domain.IndexInfo, error)
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period before a rebuild.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithOnRebuild registers a callback run after every rebuild attempt.
func WithOnRebuild(fn func(*domain.IndexInfo, error)) Option {
	return func(w *Watcher) {
		w.onRebuild = fn
	}
}

// Watcher watches the dataset folder and debounces bursts of changes
// into a single index rebuild. Rebuilds never overlap.
type Watcher struct {
	dir       string
	index     Rebuilder
	debounce  time.Duration
	onRebuild func(*domain.IndexInfo, error)
	fs        *fsnotify.Watcher

	mu      sync.Mutex
	timer   *time.Timer
	trigger chan struct{}
}

// New creates a watcher on dir, creating the folder when missing.
func New(dir string, index Rebuilder, opts ...Option) (*Watcher, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create dataset dir: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	w := &Watcher{
		dir:      dir,
		index:    index,
		debounce: DefaultDebounce,
		fs:       fsw,
		trigger:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run processes file events until ctx is done. It closes the underlying
// watcher before returning.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.stop()
	logger.Info("Watching %s for dataset changes", w.dir)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fs.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if relevant(event) {
				logger.Debug("Dataset change: %s", event)
				w.schedule()
			}

		case err, ok := <-w.fs.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			logger.Warn("Watcher error: %v", err)

		case <-w.trigger:
			w.rebuild(ctx)
		}
	}
}

// schedule restarts the debounce timer.
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		select {
		case w.trigger <- struct{}{}:
		default:
		}
	})
}

func (w *Watcher) rebuild(ctx context.Context) {
	logger.Info("Dataset changed, rebuilding index")
	info, err := w.index.Build(ctx)
	if err != nil {
		logger.Error("Index rebuild failed: %v", err)
	} else {
		logger.Info("Index rebuilt: %d passages from %d documents", info.PassageCount, info.DocumentCount)
	}
	if w.onRebuild != nil {
		w.onRebuild(info, err)
	}
}

func (w *Watcher) stop() {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	if err := w.fs.Close(); err != nil {
		logger.Warn("Closing watcher: %v", err)
	}
}

// relevant reports whether event changes the set or content of PDFs.
// Hidden files and permission-only changes are ignored.
func relevant(event fsnotify.Event) bool {
	name := filepath.Base(event.Name)
	if strings.HasPrefix(name, ".") || !strings.EqualFold(filepath.Ext(name), ".pdf") {
		return false
	}
	return event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0
}
