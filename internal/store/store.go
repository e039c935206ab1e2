// Package store provides remote CredentialStore backends for the two credential slots:
// PostgreSQL, SQLite and S3-compatible object storage. All backends namespace their
// rows or objects by an owner so several installations can share one database.
package store

import (
	"fmt"
	"strings"
)

const defaultOwner = "default"

// validateKey rejects slot names that could escape a prefix or table key space.
func validateKey(key string) error {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return fmt.Errorf("store: key is empty")
	}
	if trimmed != key || strings.ContainsAny(key, "/\\\x00") || strings.Contains(key, "..") {
		return fmt.Errorf("store: invalid key %q", key)
	}
	return nil
}

func ownerOrDefault(owner string) string {
	if owner = strings.TrimSpace(owner); owner == "" {
		return defaultOwner
	}
	return owner
}
