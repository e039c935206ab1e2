package util

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/router-for-me/NowPlaying/internal/config"
	log "github.com/sirupsen/logrus"
)

// LogLevel maps the config to a logrus level.
func LogLevel(cfg *config.Config) log.Level {
	if cfg != nil && cfg.Debug {
		return log.DebugLevel
	}
	return log.InfoLevel
}

// SetLogLevel applies LogLevel(cfg), logging only when the level actually changes.
func SetLogLevel(cfg *config.Config) {
	previous, next := log.GetLevel(), LogLevel(cfg)
	if previous == next {
		return
	}
	log.SetLevel(next)
	log.Infof("log level changed from %s to %s", previous, next)
}

// ResolvePath expands $VARS and a leading "~" and cleans the result. An empty
// path stays empty.
func ResolvePath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", nil
	}
	path = os.ExpandEnv(path)
	if !strings.HasPrefix(path, "~") {
		return filepath.Clean(path), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	rest := strings.TrimLeft(strings.TrimPrefix(path, "~"), `/\`)
	rest = filepath.FromSlash(strings.ReplaceAll(rest, `\`, "/"))
	return filepath.Join(home, rest), nil
}

// WritablePath returns WRITABLE_PATH (either case) cleaned, or "" when unset.
func WritablePath() string {
	value := firstEnv("WRITABLE_PATH", "writable_path")
	if value == "" {
		return ""
	}
	return filepath.Clean(value)
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if value := strings.TrimSpace(os.Getenv(key)); value != "" {
			return value
		}
	}
	return ""
}
