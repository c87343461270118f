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

// Watcher debounces filesystem change notifications on the settings file and
// reloads it, feeding the new Config to onReload (SPEC_FULL §3.5: a settings
// edit takes effect at the next Arming cycle, not mid-cycle). Grounded on
// `LeonardoTrapani-hyprvoice/internal/config/manager.go`'s fsnotify
// debounce-timer idiom.
type Watcher struct {
	path     string
	debounce time.Duration
	logger   *slog.Logger
	onReload func(Loaded)

	watcher *fsnotify.Watcher

	mu    sync.Mutex
	timer *time.Timer
}

// WatchDelay is the debounce window named in SPEC_FULL §3.5.
const WatchDelay = 500 * time.Millisecond

// NewWatcher opens an fsnotify watch on path's containing directory (editors
// commonly replace a file via rename-on-save, which a direct file watch
// would miss). Call Run to start the debounced reload-on-write event loop;
// Run closes the underlying inotify handle when it returns.
func NewWatcher(path string, debounce time.Duration, logger *slog.Logger, onReload func(Loaded)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}
	return &Watcher{
		path:     path,
		debounce: debounce,
		logger:   logger,
		onReload: onReload,
		watcher:  fw,
	}, nil
}

// Run drains fsnotify events until ctx is cancelled. It filters to the exact
// settings filename and to Write/Create ops, matching editors that save via
// truncate-write as well as those that save via temp-file-then-rename.
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()
	name := filepath.Base(w.path)

	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			if w.timer != nil {
				w.timer.Stop()
			}
			w.mu.Unlock()
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.debounceReload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logf("config watch error: %v", err)
		}
	}
}

func (w *Watcher) debounceReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	loaded, err := Load(w.path)
	if err != nil {
		w.logf("config reload failed, keeping previous settings: %v", err)
		return
	}
	for _, warning := range loaded.Warnings {
		w.logf("config reload warning: %s", warning.Message)
	}
	if w.onReload != nil {
		w.onReload(loaded)
	}
}

func (w *Watcher) logf(format string, args ...any) {
	if w.logger == nil {
		return
	}
	w.logger.Warn(fmt.Sprintf(format, args...))
}
