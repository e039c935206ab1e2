package misc

import (
	"fmt"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
)

// CredentialLocation describes where a credential backend keeps the refresh
// token, e.g. "file /home/u/.nowplaying/credentials.json" or "memory".
func CredentialLocation(backend, detail string) string {
	backend = strings.TrimSpace(backend)
	detail = strings.TrimSpace(detail)
	if backend == "file" || backend == "sqlite" {
		detail = filepath.Clean(detail)
	}
	if detail == "" || detail == "." {
		return backend
	}
	return backend + " " + detail
}

// LogSavingCredentials tells the user where the refresh token was persisted.
func LogSavingCredentials(location string) {
	if location == "" {
		return
	}
	fmt.Printf("Spotify credentials saved to %s\n", location)
}

// LogLoginSection brackets the interactive login output in debug logs.
func LogLoginSection(phase string) {
	log.Debugf("---------------- spotify login: %s ----------------", phase)
}
