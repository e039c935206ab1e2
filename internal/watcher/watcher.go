// Package watcher watches the config file and the credential file for changes and
// triggers hot reloads. It supports cross-platform fsnotify event handling.
package watcher

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/router-for-me/NowPlaying/internal/config"
)

// Watcher reloads the configuration and reports external credential changes.
type Watcher struct {
	configPath     string
	credentialPath string

	mu             sync.RWMutex
	config         *config.Config
	lastConfigHash string
	lastCredHash   string

	timerMu         sync.Mutex
	configTimer     *time.Timer
	credentialTimer *time.Timer

	reloadCallback      func(*config.Config)
	credentialsCallback func()
	watcher             *fsnotify.Watcher
	debounce            time.Duration
}

const configReloadDebounce = 150 * time.Millisecond

// NewWatcher creates a watcher for configPath. credentialPath is optional; when set,
// credentialsChanged runs after another process rewrites the credential file, for
// example a concurrent -login.
func NewWatcher(configPath, credentialPath string, reloadCallback func(*config.Config), credentialsChanged func()) (*Watcher, error) {
	fsw, errNewWatcher := fsnotify.NewWatcher()
	if errNewWatcher != nil {
		return nil, errNewWatcher
	}
	w := &Watcher{
		configPath:          filepath.Clean(configPath),
		reloadCallback:      reloadCallback,
		credentialsCallback: credentialsChanged,
		watcher:             fsw,
		debounce:            configReloadDebounce,
	}
	if credentialPath != "" {
		w.credentialPath = filepath.Clean(credentialPath)
	}
	return w, nil
}

// Start begins watching. Directories are watched rather than files so editors that
// save through rename keep producing events.
func (w *Watcher) Start(ctx context.Context) error {
	return w.start(ctx)
}

// Stop stops the file watcher.
func (w *Watcher) Stop() error {
	w.timerMu.Lock()
	for _, t := range []*time.Timer{w.configTimer, w.credentialTimer} {
		if t != nil {
			t.Stop()
		}
	}
	w.configTimer, w.credentialTimer = nil, nil
	w.timerMu.Unlock()
	return w.watcher.Close()
}

// SetConfig records the configuration in effect and the hash of the file it came
// from, so the first event after startup is not a spurious reload.
func (w *Watcher) SetConfig(cfg *config.Config) {
	hash, _ := fileHash(w.configPath)
	w.mu.Lock()
	defer w.mu.Unlock()
	w.config = cfg
	if hash != "" {
		w.lastConfigHash = hash
	}
}

// Config returns the configuration currently in effect.
func (w *Watcher) Config() *config.Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.config
}
