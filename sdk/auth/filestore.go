package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
)

// FileStore persists credential slots as a small JSON object on disk. Writes go to a
// temporary file that is renamed into place, so a crash never leaves partial JSON.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a store backed by path. The file is created on first write.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: strings.TrimSpace(path)}
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// Get returns the value stored under key.
func (s *FileStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slots, err := s.readLocked()
	if err != nil {
		return "", false, err
	}
	value, ok := slots[key]
	return value, ok, nil
}

// Set stores value under key.
func (s *FileStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	slots, err := s.readLocked()
	if err != nil {
		return err
	}
	if existing, ok := slots[key]; ok && existing == value {
		return nil
	}
	slots[key] = value
	if key == KeyRefreshToken {
		log.Debugf("credential file updated: %s", s.path)
	}
	return s.writeLocked(slots)
}

// Delete removes key. Deleting a missing key is not an error.
func (s *FileStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	slots, err := s.readLocked()
	if err != nil {
		return err
	}
	if _, ok := slots[key]; !ok {
		return nil
	}
	delete(slots, key)
	if len(slots) == 0 {
		if errRemove := os.Remove(s.path); errRemove != nil && !os.IsNotExist(errRemove) {
			return fmt.Errorf("credential filestore: remove failed: %w", errRemove)
		}
		return nil
	}
	return s.writeLocked(slots)
}

func (s *FileStore) readLocked() (map[string]string, error) {
	if s.path == "" {
		return nil, fmt.Errorf("credential filestore: path is empty")
	}
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, fmt.Errorf("credential filestore: read failed: %w", err)
	}
	slots := make(map[string]string)
	if len(strings.TrimSpace(string(raw))) == 0 {
		return slots, nil
	}
	if err = json.Unmarshal(raw, &slots); err != nil {
		return nil, fmt.Errorf("credential filestore: decode %s failed: %w", s.path, err)
	}
	return slots, nil
}

func (s *FileStore) writeLocked(slots map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("credential filestore: create dir failed: %w", err)
	}
	raw, err := json.MarshalIndent(slots, "", "  ")
	if err != nil {
		return fmt.Errorf("credential filestore: marshal failed: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".credentials-*.tmp")
	if err != nil {
		return fmt.Errorf("credential filestore: create temp failed: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err = tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("credential filestore: chmod failed: %w", err)
	}
	if _, err = tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("credential filestore: write failed: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("credential filestore: close failed: %w", err)
	}
	if err = os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("credential filestore: rename failed: %w", err)
	}
	return nil
}
