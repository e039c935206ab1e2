// config_reload.go implements debounced configuration hot reload.
package watcher

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"time"

	"github.com/router-for-me/NowPlaying/internal/config"
	"github.com/router-for-me/NowPlaying/internal/util"
	"github.com/router-for-me/NowPlaying/internal/watcher/diff"
	log "github.com/sirupsen/logrus"
)

func fileHash(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", nil
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// schedule (re)arms *slot so fn runs once events have been quiet for the debounce window.
func (w *Watcher) schedule(slot **time.Timer, fn func()) {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()
	if *slot != nil {
		(*slot).Stop()
	}
	*slot = time.AfterFunc(w.debounce, func() {
		w.timerMu.Lock()
		*slot = nil
		w.timerMu.Unlock()
		fn()
	})
}

func (w *Watcher) scheduleConfigReload() {
	w.schedule(&w.configTimer, w.reloadConfigIfChanged)
}

func (w *Watcher) scheduleCredentialCheck() {
	w.schedule(&w.credentialTimer, w.credentialsIfChanged)
}

func (w *Watcher) reloadConfigIfChanged() {
	newHash, err := fileHash(w.configPath)
	if err != nil {
		log.Errorf("failed to read config file for hash check: %v", err)
		return
	}
	if newHash == "" {
		log.Debugf("ignoring empty config file write event")
		return
	}

	w.mu.RLock()
	currentHash := w.lastConfigHash
	w.mu.RUnlock()

	if currentHash == newHash {
		log.Debugf("config file content unchanged (hash match), skipping reload")
		return
	}
	log.Infof("config file changed, reloading: %s", w.configPath)
	if w.reloadConfig() {
		w.mu.Lock()
		w.lastConfigHash = newHash
		w.mu.Unlock()
	}
}

func (w *Watcher) reloadConfig() bool {
	log.Debugf("starting config reload from: %s", w.configPath)

	newConfig, errLoadConfig := config.LoadConfig(w.configPath)
	if errLoadConfig != nil {
		log.Errorf("failed to reload config: %v", errLoadConfig)
		return false
	}
	w.mu.RLock()
	oldConfig := w.config
	w.mu.RUnlock()

	// Values that came from the environment at startup are not in the file.
	if oldConfig != nil {
		carryEnvOverrides(oldConfig, newConfig)
	}
	if errValidate := newConfig.Validate(); errValidate != nil {
		log.Errorf("reloaded config rejected: %v", errValidate)
		return false
	}

	w.mu.Lock()
	w.config = newConfig
	w.mu.Unlock()

	util.SetLogLevel(newConfig)

	if oldConfig != nil {
		details := diff.BuildConfigChangeDetails(oldConfig, newConfig)
		if len(details) > 0 {
			log.Debugf("config changes detected:")
			for _, d := range details {
				log.Debugf("  %s", d)
			}
		} else {
			log.Debugf("no material config field changes detected")
		}
		if restart := diff.RestartRequired(oldConfig, newConfig); len(restart) > 0 {
			log.Warnf("config changes to %v take effect after a restart", restart)
		}
	}

	log.Infof("config successfully reloaded")
	if w.reloadCallback != nil {
		w.reloadCallback(newConfig)
	}
	return true
}

// carryEnvOverrides keeps secrets and identifiers supplied through the environment
// when the file leaves them empty.
func carryEnvOverrides(oldCfg, newCfg *config.Config) {
	if newCfg.Spotify.ClientID == "" {
		newCfg.Spotify.ClientID = oldCfg.Spotify.ClientID
	}
	if newCfg.CredentialStore.EncryptionKey == "" {
		newCfg.CredentialStore.EncryptionKey = oldCfg.CredentialStore.EncryptionKey
	}
	if newCfg.CredentialStore.Postgres.DSN == "" {
		newCfg.CredentialStore.Postgres.DSN = oldCfg.CredentialStore.Postgres.DSN
	}
	if newCfg.CredentialStore.Object.AccessKey == "" {
		newCfg.CredentialStore.Object.AccessKey = oldCfg.CredentialStore.Object.AccessKey
	}
	if newCfg.CredentialStore.Object.SecretKey == "" {
		newCfg.CredentialStore.Object.SecretKey = oldCfg.CredentialStore.Object.SecretKey
	}
}

func (w *Watcher) credentialsIfChanged() {
	if w.credentialPath == "" || w.credentialsCallback == nil {
		return
	}
	newHash, err := fileHash(w.credentialPath)
	if err != nil && !os.IsNotExist(err) {
		log.Debugf("failed to hash credential file: %v", err)
		return
	}
	w.mu.Lock()
	if newHash == w.lastCredHash {
		w.mu.Unlock()
		return
	}
	w.lastCredHash = newHash
	w.mu.Unlock()

	log.Debugf("credential file changed: %s", w.credentialPath)
	w.credentialsCallback()
}
