// Package diff describes what changed between two configurations for reload logging.
package diff

import (
	"fmt"
	"strings"

	"github.com/router-for-me/NowPlaying/internal/config"
)

// BuildConfigChangeDetails lists the changed fields as "key: old -> new". Secrets
// are reported as changed without their values.
func BuildConfigChangeDetails(oldCfg, newCfg *config.Config) []string {
	if oldCfg == nil || newCfg == nil {
		return nil
	}
	var details []string
	add := func(key string, oldVal, newVal any) {
		o, n := fmt.Sprint(oldVal), fmt.Sprint(newVal)
		if o != n {
			details = append(details, fmt.Sprintf("%s: %s -> %s", key, o, n))
		}
	}
	secret := func(key, oldVal, newVal string) {
		if oldVal != newVal {
			details = append(details, key+": (updated)")
		}
	}

	add("host", oldCfg.Host, newCfg.Host)
	add("port", oldCfg.Port, newCfg.Port)
	add("allow-remote", oldCfg.AllowRemote, newCfg.AllowRemote)
	add("debug", oldCfg.Debug, newCfg.Debug)
	add("logging-to-file", oldCfg.LoggingToFile, newCfg.LoggingToFile)
	add("logs-max-total-size-mb", oldCfg.LogsMaxTotalSizeMB, newCfg.LogsMaxTotalSizeMB)
	secret("proxy-url", oldCfg.ProxyURL, newCfg.ProxyURL)

	add("spotify.client-id", oldCfg.Spotify.ClientID, newCfg.Spotify.ClientID)
	add("spotify.redirect-uri", oldCfg.Spotify.RedirectURI, newCfg.Spotify.RedirectURI)
	add("spotify.scopes", strings.Join(oldCfg.Spotify.Scopes, " "), strings.Join(newCfg.Spotify.Scopes, " "))
	add("spotify.api-base-url", oldCfg.Spotify.APIBaseURL, newCfg.Spotify.APIBaseURL)
	add("spotify.requests-per-second", oldCfg.Spotify.RequestsPerSecond, newCfg.Spotify.RequestsPerSecond)

	add("poll.interval", oldCfg.Poll.Interval, newCfg.Poll.Interval)
	add("poll.pause-when-hidden", oldCfg.Poll.PauseWhenHidden, newCfg.Poll.PauseWhenHidden)

	add("device.policy", oldCfg.Device.Policy, newCfg.Device.Policy)
	add("device.types", strings.Join(oldCfg.Device.Types, ","), strings.Join(newCfg.Device.Types, ","))
	add("device.name-hint", oldCfg.Device.NameHint, newCfg.Device.NameHint)
	add("device.start-playback", oldCfg.Device.StartPlayback, newCfg.Device.StartPlayback)

	add("render.dedupe-track", oldCfg.Render.DedupeTrack, newCfg.Render.DedupeTrack)

	add("lyrics.enabled", oldCfg.Lyrics.Enabled, newCfg.Lyrics.Enabled)
	add("lyrics.base-url", oldCfg.Lyrics.BaseURL, newCfg.Lyrics.BaseURL)
	add("lyrics.ttl", oldCfg.Lyrics.TTL, newCfg.Lyrics.TTL)

	oldStore, newStore := oldCfg.CredentialStore, newCfg.CredentialStore
	add("credential-store.type", oldStore.Type, newStore.Type)
	if oldStore.Type == newStore.Type && storeLocation(oldStore) != storeLocation(newStore) {
		details = append(details, "credential-store: location changed")
	}
	secret("credential-store.encryption-key", oldStore.EncryptionKey, newStore.EncryptionKey)
	secret("credential-store.postgres.dsn", oldStore.Postgres.DSN, newStore.Postgres.DSN)
	secret("credential-store.object.credentials",
		oldStore.Object.AccessKey+"\x00"+oldStore.Object.SecretKey,
		newStore.Object.AccessKey+"\x00"+newStore.Object.SecretKey)
	return details
}

func storeLocation(s config.CredentialStoreConfig) string {
	return strings.Join([]string{s.Path, s.Postgres.Schema, s.Postgres.Table, s.Object.Endpoint, s.Object.Bucket, s.Object.Prefix}, "|")
}

// RestartRequired returns the changed settings that only take effect on restart.
func RestartRequired(oldCfg, newCfg *config.Config) []string {
	if oldCfg == nil || newCfg == nil {
		return nil
	}
	var keys []string
	if oldCfg.Host != newCfg.Host || oldCfg.Port != newCfg.Port {
		keys = append(keys, "host/port")
	}
	if oldCfg.ProxyURL != newCfg.ProxyURL {
		keys = append(keys, "proxy-url")
	}
	s1, s2 := oldCfg.Spotify, newCfg.Spotify
	if s1.ClientID != s2.ClientID || s1.RedirectURI != s2.RedirectURI || s1.AuthURL != s2.AuthURL ||
		s1.TokenURL != s2.TokenURL || s1.APIBaseURL != s2.APIBaseURL || s1.RequestsPerSecond != s2.RequestsPerSecond ||
		strings.Join(s1.Scopes, " ") != strings.Join(s2.Scopes, " ") {
		keys = append(keys, "spotify")
	}
	if oldCfg.CredentialStore != newCfg.CredentialStore {
		keys = append(keys, "credential-store")
	}
	if oldCfg.Lyrics.BaseURL != newCfg.Lyrics.BaseURL || oldCfg.Lyrics.TTL != newCfg.Lyrics.TTL {
		keys = append(keys, "lyrics.base-url/ttl")
	}
	if oldCfg.LoggingToFile != newCfg.LoggingToFile || oldCfg.LogsMaxTotalSizeMB != newCfg.LogsMaxTotalSizeMB {
		keys = append(keys, "logging-to-file")
	}
	return keys
}
