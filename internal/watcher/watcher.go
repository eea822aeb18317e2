// Package watcher adds files dropped into an inbox folder to the queue.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/fsnotify/fsnotify"
	"github.com/oziev02/pixelflex/internal/domain"
)

type Adder interface {
	Add(ctx context.Context, files []domain.SourceFile) ([]domain.ConversionItem, error)
}

type Watcher struct {
	dir      string
	debounce time.Duration
	adder    Adder
	logger   *slog.Logger
	fsw      *fsnotify.Watcher

	mu     sync.Mutex
	timers map[string]*time.Timer
	// queued maps a path to the content hash it was last added with.
	queued map[string]uint64
	wg     sync.WaitGroup
}

// New watches dir, creating it if needed. Nothing is added until Run.
func New(dir string, debounce time.Duration, adder Adder, logger *slog.Logger) (*Watcher, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create inbox: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	return &Watcher{
		dir:      dir,
		debounce: debounce,
		adder:    adder,
		logger:   logger,
		fsw:      fsw,
		timers:   make(map[string]*time.Timer),
		queued:   make(map[string]uint64),
	}, nil
}

// Run processes filesystem events until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info("watching inbox", "dir", w.dir)
	defer w.stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				w.forget(event.Name)
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			// Skip temp files
			if strings.HasPrefix(filepath.Base(event.Name), ".") {
				continue
			}
			w.schedule(ctx, event.Name)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("inbox watcher error", "error", err)
		}
	}
}

// schedule waits for writes to settle before reading the file.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[path]; ok && t.Stop() {
		w.wg.Done()
	}
	w.wg.Add(1)
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		defer w.wg.Done()
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		w.addFile(ctx, path)
	})
}

func (w *Watcher) addFile(ctx context.Context, path string) {
	if ctx.Err() != nil {
		return
	}

	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		w.logger.Warn("failed to read inbox file", "path", path, "error", err)
		return
	}

	// Touches and re-saves with identical content are not new files.
	sum := xxhash.Sum64(data)
	w.mu.Lock()
	prev, seen := w.queued[path]
	w.mu.Unlock()
	if seen && prev == sum {
		w.logger.Debug("inbox file unchanged, skipping", "path", path)
		return
	}

	added, err := w.adder.Add(ctx, []domain.SourceFile{{Name: filepath.Base(path), Data: data}})
	if err != nil {
		w.logger.Warn("failed to add inbox file", "path", path, "error", err)
		return
	}
	if len(added) > 0 {
		w.mu.Lock()
		w.queued[path] = sum
		w.mu.Unlock()
		w.logger.Info("inbox file queued", "path", path, "item_id", added[0].ID)
	}
}

func (w *Watcher) forget(path string) {
	w.mu.Lock()
	delete(w.queued, path)
	w.mu.Unlock()
}

func (w *Watcher) stop() {
	w.mu.Lock()
	for path, t := range w.timers {
		if t.Stop() {
			w.wg.Done()
		}
		delete(w.timers, path)
	}
	w.mu.Unlock()

	w.wg.Wait()
	if err := w.fsw.Close(); err != nil {
		w.logger.Warn("failed to close inbox watcher", "error", err)
	}
}
