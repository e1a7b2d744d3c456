package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

const reloadDebounce = 500 * time.Millisecond

// Watcher reloads the config file when it changes on disk and hands
// each valid reload to a callback. Invalid or unreadable configs are
// logged and skipped, the previous config stays in effect.
type Watcher struct {
	loader   *Loader
	onReload func(*Config)
	watcher  *fsnotify.Watcher
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewWatcher creates a watcher for the given config path.
func NewWatcher(configPath string, onReload func(*Config)) *Watcher {
	return &Watcher{
		loader:   NewLoader(configPath),
		onReload: onReload,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins watching the config file's directory.
func (w *Watcher) Start() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = watcher

	configPath := w.loader.GetConfigPath()
	if err := watcher.Add(filepath.Dir(configPath)); err != nil {
		watcher.Close()
		return err
	}

	go w.run(configPath)
	return nil
}

func (w *Watcher) run(configPath string) {
	defer close(w.doneCh)

	// Editors produce bursts of writes; collapse them into one reload.
	debounce := time.NewTimer(reloadDebounce)
	if !debounce.Stop() {
		<-debounce.C
	}

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(configPath) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				debounce.Reset(reloadDebounce)
			}

		case <-debounce.C:
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("Config watcher error")

		case <-w.stopCh:
			return
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := w.loader.Load()
	if err != nil {
		log.Error().Err(err).Msg("Failed to reload config")
		return
	}
	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("Reloaded config is invalid, keeping current config")
		return
	}

	log.Info().Str("path", w.loader.GetConfigPath()).Msg("Config reloaded")
	w.onReload(cfg)
}

// Stop stops the watcher and waits for its goroutine to exit.
func (w *Watcher) Stop() {
	if w.watcher == nil {
		return
	}
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.watcher.Close()
		<-w.doneCh
	})
}
