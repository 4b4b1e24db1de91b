package visitor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileStore persists the visitor key in a single file, the CLI's analogue of
// the browser cookie. Reads and writes are best-effort: an unreadable file
// behaves like an absent key.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// DefaultFilePath returns the per-user visitor key file location.
func DefaultFilePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".goflagbag", "visitor"), nil
}

// NewFileStore creates a store backed by the given file path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Get returns the persisted key, or "" when the file is absent or unreadable.
func (s *FileStore) Get() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// Set writes the key, creating the parent directory if needed.
func (s *FileStore) Set(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return
	}
	_ = os.WriteFile(s.path, []byte(key+"\n"), 0600)
}

// Reset removes the persisted key.
func (s *FileStore) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove visitor key file: %w", err)
	}
	return nil
}
