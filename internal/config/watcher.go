package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

const defaultDebounce = 250 * time.Millisecond

// Watcher reloads the playlist file into a Holder whenever it changes on
// disk. An invalid file is logged and the previous list is kept.
type Watcher struct {
	log      logrus.FieldLogger
	path     string
	holder   *Holder
	debounce time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	watcher *fsnotify.Watcher
}

// NewWatcher creates a watcher for the playlist file at path.
func NewWatcher(log logrus.FieldLogger, path string, holder *Holder) *Watcher {
	return &Watcher{
		log:      log.WithField("component", "config-watcher"),
		path:     filepath.Clean(path),
		holder:   holder,
		debounce: defaultDebounce,
	}
}

// Start begins watching. The parent directory is watched so that editors
// which replace the file by rename are seen too.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel != nil {
		return nil // Already running
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		_ = fsw.Close()

		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.watcher = fsw

	go w.run(watchCtx, fsw, w.done)

	w.log.WithField("path", w.path).Info("Config watcher started")

	return nil
}

// Stop stops watching and waits for the watch loop to exit.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	cancel := w.cancel
	done := w.done
	fsw := w.watcher
	w.cancel = nil
	w.done = nil
	w.watcher = nil
	w.mu.Unlock()

	if cancel == nil {
		return nil
	}

	cancel()
	<-done

	if err := fsw.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}

	w.log.Info("Config watcher stopped")

	return nil
}

// Reload reads the file and swaps the playlist list if it is valid.
func (w *Watcher) Reload() error {
	f, err := LoadFile(w.path)
	if err != nil {
		return err
	}

	if err := ValidatePlaylists(f.Playlists); err != nil {
		return fmt.Errorf("invalid config file: %w", err)
	}

	w.holder.Set(f.Playlists)

	w.log.WithField("playlists", len(f.Playlists)).Info("Config reloaded")

	return nil
}

func (w *Watcher) run(ctx context.Context, fsw *fsnotify.Watcher, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(w.debounce)
	timer.Stop()

	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}

			if filepath.Clean(event.Name) != w.path {
				continue
			}

			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			w.log.WithField("op", event.Op.String()).Debug("Config file changed")

			// Coalesce bursts of events from a single save.
			timer.Reset(w.debounce)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}

			w.log.WithError(err).Warn("Config watcher error")
		case <-timer.C:
			if err := w.Reload(); err != nil {
				w.log.WithError(err).Warn("Ignoring config reload, keeping previous playlists")
			}
		}
	}
}
