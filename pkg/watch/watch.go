// Package watch reruns test cases when their stored documents change.
package watch

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/ormasoftchile/qaflow/pkg/testcase"
)

// DefaultDebounce is how long the watcher waits after the last change before
// flushing a batch.
const DefaultDebounce = 300 * time.Millisecond

// Handler receives the sorted names of test cases changed since the last
// batch. Batches are delivered one at a time.
type Handler func(ctx context.Context, names []string)

// Watcher watches a file store directory.
type Watcher struct {
	Dir      string
	Debounce time.Duration
	Handler  Handler
	Logger   *zap.Logger
}

// Run blocks until ctx is canceled.
func (w *Watcher) Run(ctx context.Context) error {
	if w.Handler == nil {
		return fmt.Errorf("watch: handler is required")
	}
	debounce := w.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	log := w.Logger
	if log == nil {
		log = zap.NewNop()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()
	if err := watcher.Add(w.Dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.Dir, err)
	}
	log.Info("watching test cases", zap.String("dir", w.Dir))

	pending := make(map[string]bool)
	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-timer.C:
			batch := make([]string, 0, len(pending))
			for name := range pending {
				batch = append(batch, name)
			}
			sort.Strings(batch)
			pending = make(map[string]bool)
			w.Handler(ctx, batch)

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			name, ok := testcase.NameFromPath(event.Name)
			if !ok {
				continue
			}
			pending[name] = true
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("file watcher error", zap.Error(err))
		}
	}
}
