package permission

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches the policy document for changes and reloads the provider
// and cache when it is rewritten.
type Watcher struct {
	provider *FileProvider
	cache    *Cache
	watcher  *fsnotify.Watcher
	stopCh   chan struct{}
}

// NewWatcher starts watching the provider's backing file. On each change the
// provider is refreshed and the cache repopulated from the new snapshot.
func NewWatcher(provider *FileProvider, cache *Cache) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	if err := w.Add(provider.path); err != nil {
		w.Close()
		return nil, fmt.Errorf("watching permission config: %w", err)
	}

	pw := &Watcher{
		provider: provider,
		cache:    cache,
		watcher:  w,
		stopCh:   make(chan struct{}),
	}

	go pw.run()
	return pw, nil
}

func (pw *Watcher) run() {
	// Debounce timer to avoid rapid reloads
	var debounce *time.Timer
	for {
		select {
		case event, ok := <-pw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(500*time.Millisecond, func() {
					pw.reload()
				})
			}
		case err, ok := <-pw.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("permission watcher error", "err", err)
		case <-pw.stopCh:
			return
		}
	}
}

func (pw *Watcher) reload() {
	if err := pw.provider.Refresh(); err != nil {
		slog.Warn("permission hot-reload failed, keeping previous policies", "err", err)
		return
	}
	pw.cache.Preload(pw.provider.Config())
	slog.Info("permission policies reloaded", "path", pw.provider.path)
}

// Stop stops the watcher.
func (pw *Watcher) Stop() error {
	close(pw.stopCh)
	return pw.watcher.Close()
}
