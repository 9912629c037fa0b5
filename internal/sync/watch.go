package sync

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceDelay batches a burst of ref updates into one reindex.
const debounceDelay = 2 * time.Second

// Watch monitors the object store's ref directory for changes (new
// appends, merges from remote, CAS updates) and triggers an incremental
// Reindex after each quiet period. It blocks until ctx is canceled or the
// watcher fails irrecoverably — gitmem's `sync full --watch` mode.
func (s *Service) Watch(ctx context.Context) error {
	refDir := filepath.Join(append([]string{s.OSA.Root(), ".git"}, strings.Split(s.OSA.RefRoot(), "/")...)...)
	if _, err := os.Stat(refDir); os.IsNotExist(err) {
		if mkErr := os.MkdirAll(refDir, 0o755); mkErr != nil {
			return fmt.Errorf("create ref dir: %w", mkErr)
		}
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(refDir); err != nil {
		return fmt.Errorf("watch %s: %w", refDir, err)
	}

	var (
		mu      sync.Mutex
		pending bool
		timer   *time.Timer
	)

	flush := func() {
		mu.Lock()
		if !pending {
			mu.Unlock()
			return
		}
		pending = false
		mu.Unlock()

		if _, err := s.Reindex(ctx, nil); err != nil {
			fmt.Fprintf(os.Stderr, "gitmem: watch: reindex failed: %v\n", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			mu.Lock()
			pending = true
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounceDelay, flush)
			mu.Unlock()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "gitmem: watch error: %v\n", err)
		}
	}
}
