// Package config provides configuration management for the NowPlaying service.
// It handles loading and parsing the YAML configuration file and provides structured
// access to server, Spotify, polling, device policy, credential store and logging settings.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultAuthURL is Spotify's authorization endpoint.
	DefaultAuthURL = "https://accounts.spotify.com/authorize"
	// DefaultTokenURL is Spotify's token endpoint.
	DefaultTokenURL = "https://accounts.spotify.com/api/token"
	// DefaultAPIBaseURL is the Spotify Web API root.
	DefaultAPIBaseURL = "https://api.spotify.com/v1"
	// DefaultLyricsBaseURL is the lyrics.ovh API root.
	DefaultLyricsBaseURL = "https://api.lyrics.ovh/v1"

	// DefaultPollInterval matches the five second period every page variant used.
	DefaultPollInterval = 5 * time.Second

	DefaultHost = "127.0.0.1"
	DefaultPort = 8888
)

// Device selection policies.
const (
	DevicePolicyType  = "type"
	DevicePolicyName  = "name"
	DevicePolicyFirst = "first"
)

// Credential store backends.
const (
	StoreMemory   = "memory"
	StoreFile     = "file"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreObject   = "object"
)

// DefaultScopes are the scopes needed to read and transfer playback.
var DefaultScopes = []string{
	"user-read-currently-playing",
	"user-read-playback-state",
	"user-modify-playback-state",
}

// DefaultDeviceTypes is the device type preference of the "type" policy.
var DefaultDeviceTypes = []string{"Computer", "Web Player"}

// Config represents the application's configuration, loaded from a YAML file.
type Config struct {
	SDKConfig `yaml:",inline"`

	// Host is the interface the local server binds to.
	Host string `yaml:"host" json:"host"`

	// Port is the local server port.
	Port int `yaml:"port" json:"port"`

	// AllowRemote lets non-loopback clients log out and report visibility.
	AllowRemote bool `yaml:"allow-remote" json:"allow-remote"`

	// Debug enables debug level logging.
	Debug bool `yaml:"debug" json:"debug"`

	// LoggingToFile writes logs to rotating files instead of stdout.
	LoggingToFile bool `yaml:"logging-to-file" json:"logging-to-file"`

	// LogsMaxTotalSizeMB caps the logs directory size. <= 0 disables cleanup.
	LogsMaxTotalSizeMB int `yaml:"logs-max-total-size-mb" json:"logs-max-total-size-mb"`

	Spotify SpotifyConfig `yaml:"spotify" json:"spotify"`

	Poll PollConfig `yaml:"poll" json:"poll"`

	Device DeviceConfig `yaml:"device" json:"device"`

	Render RenderConfig `yaml:"render" json:"render"`

	Lyrics LyricsConfig `yaml:"lyrics" json:"lyrics"`

	CredentialStore CredentialStoreConfig `yaml:"credential-store" json:"credential-store"`
}

// SpotifyConfig holds the OAuth client registration and API endpoints.
type SpotifyConfig struct {
	ClientID string `yaml:"client-id" json:"client-id"`

	// RedirectURI must match the registered value byte for byte.
	RedirectURI string `yaml:"redirect-uri" json:"redirect-uri"`

	Scopes []string `yaml:"scopes" json:"scopes"`

	AuthURL    string `yaml:"auth-url" json:"auth-url"`
	TokenURL   string `yaml:"token-url" json:"token-url"`
	APIBaseURL string `yaml:"api-base-url" json:"api-base-url"`

	// RequestsPerSecond limits outbound Web API calls. <= 0 uses the default.
	RequestsPerSecond int `yaml:"requests-per-second" json:"requests-per-second"`
}

// PollConfig controls the reconciliation loop.
type PollConfig struct {
	Interval time.Duration `yaml:"interval" json:"interval"`

	// PauseWhenHidden stops polling while no page or terminal is visible.
	PauseWhenHidden bool `yaml:"pause-when-hidden" json:"pause-when-hidden"`
}

// DeviceConfig selects the device transfer strategy.
type DeviceConfig struct {
	Policy string `yaml:"policy" json:"policy"`

	// Types is consulted by the "type" policy, in preference order.
	Types []string `yaml:"types" json:"types"`

	// NameHint is consulted by the "name" policy.
	NameHint string `yaml:"name-hint" json:"name-hint"`

	// StartPlayback requests play=true on transfer.
	StartPlayback bool `yaml:"start-playback" json:"start-playback"`
}

// RenderConfig controls view emission.
type RenderConfig struct {
	// DedupeTrack suppresses re-rendering an unchanged track and status.
	DedupeTrack bool `yaml:"dedupe-track" json:"dedupe-track"`
}

// LyricsConfig controls the optional lyrics lookup.
type LyricsConfig struct {
	Enabled bool          `yaml:"enabled" json:"enabled"`
	BaseURL string        `yaml:"base-url" json:"base-url"`
	TTL     time.Duration `yaml:"ttl" json:"ttl"`
}

// CredentialStoreConfig selects where the two credential slots live.
type CredentialStoreConfig struct {
	Type string `yaml:"type" json:"type"`

	// Path is the JSON file for the file store or the database file for sqlite.
	Path string `yaml:"path" json:"path"`

	// EncryptionKey, when set, seals stored values with a key derived from it.
	EncryptionKey string `yaml:"encryption-key" json:"-"`

	Postgres PostgresStoreConfig `yaml:"postgres" json:"postgres"`
	Object   ObjectStoreConfig   `yaml:"object" json:"object"`
}

// PostgresStoreConfig configures the Postgres credential store.
type PostgresStoreConfig struct {
	DSN    string `yaml:"dsn" json:"-"`
	Schema string `yaml:"schema" json:"schema"`
	Table  string `yaml:"table" json:"table"`
}

// ObjectStoreConfig configures the S3-compatible credential store.
type ObjectStoreConfig struct {
	Endpoint  string `yaml:"endpoint" json:"endpoint"`
	Bucket    string `yaml:"bucket" json:"bucket"`
	AccessKey string `yaml:"access-key" json:"-"`
	SecretKey string `yaml:"secret-key" json:"-"`
	Region    string `yaml:"region" json:"region"`
	Prefix    string `yaml:"prefix" json:"prefix"`
	UseSSL    bool   `yaml:"use-ssl" json:"use-ssl"`
	PathStyle bool   `yaml:"path-style" json:"path-style"`
}

// Default returns a configuration populated with defaults only.
func Default() *Config {
	cfg := withBoolDefaults()
	cfg.ApplyDefaults()
	return cfg
}

// withBoolDefaults presets the booleans whose default is true; YAML decoding only
// overwrites keys that are present, so an explicit false still wins.
func withBoolDefaults() *Config {
	cfg := &Config{}
	cfg.Poll.PauseWhenHidden = true
	cfg.Device.StartPlayback = true
	cfg.Render.DedupeTrack = true
	return cfg
}

// ApplyDefaults fills zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Spotify.AuthURL == "" {
		c.Spotify.AuthURL = DefaultAuthURL
	}
	if c.Spotify.TokenURL == "" {
		c.Spotify.TokenURL = DefaultTokenURL
	}
	if c.Spotify.APIBaseURL == "" {
		c.Spotify.APIBaseURL = DefaultAPIBaseURL
	}
	if len(c.Spotify.Scopes) == 0 {
		c.Spotify.Scopes = append([]string(nil), DefaultScopes...)
	}
	if c.Spotify.RedirectURI == "" {
		c.Spotify.RedirectURI = fmt.Sprintf("http://%s:%d/callback", c.Host, c.Port)
	}
	if c.Poll.Interval <= 0 {
		c.Poll.Interval = DefaultPollInterval
	}
	if c.Device.Policy == "" {
		c.Device.Policy = DevicePolicyType
	}
	if len(c.Device.Types) == 0 {
		c.Device.Types = append([]string(nil), DefaultDeviceTypes...)
	}
	if c.Lyrics.BaseURL == "" {
		c.Lyrics.BaseURL = DefaultLyricsBaseURL
	}
	if c.Lyrics.TTL <= 0 {
		c.Lyrics.TTL = 6 * time.Hour
	}
	if c.CredentialStore.Type == "" {
		c.CredentialStore.Type = StoreMemory
	}
	c.CredentialStore.Type = strings.ToLower(strings.TrimSpace(c.CredentialStore.Type))
	c.Device.Policy = strings.ToLower(strings.TrimSpace(c.Device.Policy))
}

// Validate reports configuration errors that would prevent the service from working.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Spotify.ClientID) == "" {
		return errors.New("config: spotify.client-id is required")
	}
	redirect, err := url.Parse(c.Spotify.RedirectURI)
	if err != nil {
		return fmt.Errorf("config: invalid spotify.redirect-uri: %w", err)
	}
	if redirect.Scheme != "http" && redirect.Scheme != "https" {
		return fmt.Errorf("config: spotify.redirect-uri must be http or https, got %q", redirect.Scheme)
	}
	if redirect.Host == "" {
		return errors.New("config: spotify.redirect-uri must include a host")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", c.Port)
	}
	switch c.Device.Policy {
	case DevicePolicyType, DevicePolicyName, DevicePolicyFirst:
	default:
		return fmt.Errorf("config: unknown device.policy %q", c.Device.Policy)
	}
	if c.Device.Policy == DevicePolicyName && strings.TrimSpace(c.Device.NameHint) == "" {
		return errors.New("config: device.name-hint is required for the name policy")
	}
	switch c.CredentialStore.Type {
	case StoreMemory, StoreFile, StoreSQLite:
	case StorePostgres:
		if strings.TrimSpace(c.CredentialStore.Postgres.DSN) == "" {
			return errors.New("config: credential-store.postgres.dsn is required")
		}
	case StoreObject:
		obj := c.CredentialStore.Object
		if obj.Endpoint == "" || obj.Bucket == "" {
			return errors.New("config: credential-store.object endpoint and bucket are required")
		}
	default:
		return fmt.Errorf("config: unknown credential-store.type %q", c.CredentialStore.Type)
	}
	return nil
}

// LoadConfig reads and parses the YAML configuration file.
func LoadConfig(configFile string) (*Config, error) {
	return LoadConfigOptional(configFile, false)
}

// LoadConfigOptional reads the configuration file. When optional is true a missing
// file yields the defaults instead of an error.
func LoadConfigOptional(configFile string, optional bool) (*Config, error) {
	cfg := withBoolDefaults()
	data, err := os.ReadFile(configFile)
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			cfg.ApplyDefaults()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		cfg.ApplyDefaults()
		return cfg, nil
	}
	if err = yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// ApplyEnv overlays environment variables on the loaded configuration.
// lookup mirrors os.LookupEnv and returns trimmed, non-empty values only.
func (c *Config) ApplyEnv(lookup func(keys ...string) (string, bool)) {
	if lookup == nil {
		return
	}
	if v, ok := lookup("SPOTIFY_CLIENT_ID", "spotify_client_id"); ok {
		c.Spotify.ClientID = v
	}
	if v, ok := lookup("SPOTIFY_REDIRECT_URI", "spotify_redirect_uri"); ok {
		c.Spotify.RedirectURI = v
	}
	if v, ok := lookup("CREDENTIAL_KEY", "credential_key"); ok {
		c.CredentialStore.EncryptionKey = v
	}
	if v, ok := lookup("PGSTORE_DSN", "pgstore_dsn"); ok {
		c.CredentialStore.Type = StorePostgres
		c.CredentialStore.Postgres.DSN = v
	}
	if v, ok := lookup("PGSTORE_SCHEMA", "pgstore_schema"); ok {
		c.CredentialStore.Postgres.Schema = v
	}
	if v, ok := lookup("SQLITESTORE_PATH", "sqlitestore_path"); ok {
		c.CredentialStore.Type = StoreSQLite
		c.CredentialStore.Path = v
	}
	if v, ok := lookup("OBJECTSTORE_ENDPOINT", "objectstore_endpoint"); ok {
		c.CredentialStore.Type = StoreObject
		c.CredentialStore.Object.Endpoint = v
	}
	if v, ok := lookup("OBJECTSTORE_BUCKET", "objectstore_bucket"); ok {
		c.CredentialStore.Object.Bucket = v
	}
	if v, ok := lookup("OBJECTSTORE_ACCESS_KEY", "objectstore_access_key"); ok {
		c.CredentialStore.Object.AccessKey = v
	}
	if v, ok := lookup("OBJECTSTORE_SECRET_KEY", "objectstore_secret_key"); ok {
		c.CredentialStore.Object.SecretKey = v
	}
}
