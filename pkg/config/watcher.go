package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceWindow coalesces the burst of filesystem events editors and
// atomic-rename writers produce for a single save.
const debounceWindow = 300 * time.Millisecond

// Watcher reloads the configuration file on change and broadcasts the
// new configuration to subscribers. A file that fails to load or
// validate is ignored: the previous configuration stays active.
type Watcher struct {
	path   string
	logger *slog.Logger

	mu          sync.RWMutex
	current     *Config
	subscribers []chan *Config

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewWatcher creates a watcher for the configuration file at path,
// seeded with the given already-loaded configuration.
func NewWatcher(path string, current *Config) *Watcher {
	return &Watcher{
		path:    path,
		current: current,
		logger:  slog.Default().With("component", "config.watcher"),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Current returns the most recently loaded valid configuration.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Subscribe returns a channel that receives each successfully reloaded
// configuration. Slow subscribers miss intermediate versions rather
// than blocking the watcher.
func (w *Watcher) Subscribe() <-chan *Config {
	ch := make(chan *Config, 1)

	w.mu.Lock()
	w.subscribers = append(w.subscribers, ch)
	w.mu.Unlock()

	return ch
}

// Start begins watching the configuration file's directory. Watching
// the directory rather than the file survives atomic-rename saves.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}

	dir := filepath.Dir(w.path)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return fmt.Errorf("watch directory %q: %w", dir, err)
	}

	w.watcher = fsw
	go w.run(ctx)

	w.logger.Info("configuration watcher started", "path", w.path)
	return nil
}

// Stop stops the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() {
	close(w.stopCh)
	<-w.doneCh
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)
	defer w.watcher.Close()

	var debounce *time.Timer
	var debounceCh <-chan time.Time

	target, _ := filepath.Abs(w.path)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Rename) {
				continue
			}
			if abs, err := filepath.Abs(event.Name); err != nil || abs != target {
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(debounceWindow)
			} else {
				debounce.Reset(debounceWindow)
			}
			debounceCh = debounce.C

		case <-debounceCh:
			debounceCh = nil
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", "error", err)
		}
	}
}

// reload loads and validates the file, then broadcasts on success.
func (w *Watcher) reload() {
	cfg, err := LoadConfig(w.path)
	if err != nil {
		w.logger.Error("configuration reload rejected, keeping previous configuration",
			"path", w.path,
			"error", err,
		)
		return
	}

	w.mu.Lock()
	w.current = cfg
	subscribers := append([]chan *Config(nil), w.subscribers...)
	w.mu.Unlock()

	for _, ch := range subscribers {
		select {
		case ch <- cfg:
		default:
			// Drop the stale version the subscriber never drained.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- cfg:
			default:
			}
		}
	}

	w.logger.Info("configuration reloaded", "path", w.path)
}
