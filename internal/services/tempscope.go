package services

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TempScope owns the temporary files created for one render request. Release removes
// every file the scope created; callers defer it right after creating the scope.
// Names combine a nanosecond timestamp with a random suffix; the directory is shared
// across requests.
type TempScope struct {
	dir   string
	mu    sync.Mutex
	paths []string
}

// NewTempScope creates a scope rooted at dir, creating the directory if needed.
func NewTempScope(dir string) (*TempScope, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create temp dir %s: %w", dir, err)
	}
	return &TempScope{dir: dir}, nil
}

// Path reserves a unique path in the scope without creating the file. The path is
// removed on Release if something creates it.
func (s *TempScope) Path(prefix, ext string) string {
	name := fmt.Sprintf("%s_%d_%s%s", prefix, time.Now().UnixNano(), uuid.NewString()[:8], ext)
	path := filepath.Join(s.dir, name)

	s.mu.Lock()
	s.paths = append(s.paths, path)
	s.mu.Unlock()

	return path
}

// Write persists data to a new uniquely named file and returns its path.
func (s *TempScope) Write(prefix, ext string, data []byte) (string, error) {
	path := s.Path(prefix, ext)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to write temp file %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close temp file %s: %w", path, err)
	}

	return path, nil
}

// Release removes every file created through the scope. Safe to call more than once.
func (s *TempScope) Release() {
	s.mu.Lock()
	paths := s.paths
	s.paths = nil
	s.mu.Unlock()

	for _, path := range paths {
		os.Remove(path)
	}
}
