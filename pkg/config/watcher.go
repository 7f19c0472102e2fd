package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"metronome/pkg/logx"
)

// ChangeHandler is called with the freshly loaded config after the file on
// disk changes and passes validation.
type ChangeHandler func(cfg Config)

// Watcher watches the config file for changes and reloads the singleton.
// Changes are debounced (300ms) to avoid rapid reloads while an editor is
// still writing.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	handlers []ChangeHandler
	debounce time.Duration
	stopChan chan struct{}
	logger   *logx.Logger
	mu       sync.Mutex
}

// NewWatcher creates a config file watcher for the given path.
func NewWatcher(path string) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	return &Watcher{
		path:     path,
		watcher:  w,
		debounce: 300 * time.Millisecond,
		logger:   logx.NewLogger("config-watcher"),
	}, nil
}

// OnChange registers a handler to be called when config changes.
func (cw *Watcher) OnChange(handler ChangeHandler) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.handlers = append(cw.handlers, handler)
}

// Start begins watching the config file for changes.
func (cw *Watcher) Start() error {
	if err := cw.watcher.Add(cw.path); err != nil {
		return fmt.Errorf("failed to watch %s: %w", cw.path, err)
	}

	cw.stopChan = make(chan struct{})
	go cw.watchLoop()

	cw.logger.Info("👀 Config watcher started: %s", cw.path)
	return nil
}

// Stop halts the file watcher.
func (cw *Watcher) Stop() {
	if cw.stopChan != nil {
		close(cw.stopChan)
	}
	cw.watcher.Close()
	cw.logger.Info("Config watcher stopped")
}

func (cw *Watcher) watchLoop() {
	var debounceTimer *time.Timer

	for {
		select {
		case <-cw.stopChan:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}

			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			// Debounce: reset timer on each change
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(cw.debounce, func() {
				cw.reload()
			})

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.logger.Error("Config watcher error: %v", err)
		}
	}
}

func (cw *Watcher) reload() {
	cw.logger.Info("Config file changed, reloading: %s", cw.path)

	cfg, err := ReloadConfig()
	if err != nil {
		// Keep running on the previous config.
		cw.logger.Error("Config reload failed: %v", err)
		return
	}

	cw.mu.Lock()
	handlers := make([]ChangeHandler, len(cw.handlers))
	copy(handlers, cw.handlers)
	cw.mu.Unlock()

	for _, h := range handlers {
		h(cfg)
	}

	cw.logger.Info("✅ Config reloaded successfully")
}
