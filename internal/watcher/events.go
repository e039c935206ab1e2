// events.go implements fsnotify event handling for the config and credential files.
package watcher

import (
	"context"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

func (w *Watcher) start(ctx context.Context) error {
	dirs := []string{filepath.Dir(w.configPath)}
	if w.credentialPath != "" {
		if hash, err := fileHash(w.credentialPath); err == nil {
			w.mu.Lock()
			w.lastCredHash = hash
			w.mu.Unlock()
		}
		if dir := filepath.Dir(w.credentialPath); normalizePath(dir) != normalizePath(dirs[0]) {
			dirs = append(dirs, dir)
		}
	}
	for _, dir := range dirs {
		if errAdd := w.watcher.Add(dir); errAdd != nil {
			log.Errorf("failed to watch directory %s: %v", dir, errAdd)
			return errAdd
		}
		log.Debugf("watching directory: %s", dir)
	}

	go w.processEvents(ctx)
	return nil
}

func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case errWatch, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Errorf("file watcher error: %v", errWatch)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	ops := fsnotify.Write | fsnotify.Create | fsnotify.Rename | fsnotify.Remove
	if event.Op&ops == 0 {
		return
	}
	name := normalizePath(event.Name)
	switch {
	case name == normalizePath(w.configPath):
		if event.Op&fsnotify.Remove != 0 {
			// Atomic saves remove and recreate; the Create that follows reloads.
			return
		}
		log.Debugf("config file event: %s %s", event.Op.String(), event.Name)
		w.scheduleConfigReload()
	case w.credentialPath != "" && name == normalizePath(w.credentialPath):
		log.Debugf("credential file event: %s %s", event.Op.String(), filepath.Base(event.Name))
		w.scheduleCredentialCheck()
	}
}

func normalizePath(path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return ""
	}
	cleaned := filepath.Clean(trimmed)
	if abs, err := filepath.Abs(cleaned); err == nil {
		cleaned = abs
	}
	if runtime.GOOS == "windows" {
		cleaned = strings.TrimPrefix(cleaned, `\\?\`)
		cleaned = strings.ToLower(cleaned)
	}
	return cleaned
}
