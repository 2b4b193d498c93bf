package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"MDMWatch/internal/domain"
	"MDMWatch/internal/ports"
)

// FileStore keeps one JSON document per channel in a directory.
type FileStore struct {
	dir string
}

var (
	_ ports.StateStore  = (*FileStore)(nil)
	_ ports.StateEraser = (*FileStore)(nil)
)

// NewFileStore creates dir when missing.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Path returns the file backing key.
func (s *FileStore) Path(key string) string {
	return filepath.Join(s.dir, objectName(key))
}

// Read loads the state document for key.
func (s *FileStore) Read(_ context.Context, key string) (domain.NotificationState, error) {
	data, err := os.ReadFile(s.Path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return domain.NotificationState{}, domain.ErrStateNotFound
	}
	if err != nil {
		return domain.NotificationState{}, fmt.Errorf("read state file: %w", err)
	}
	return decodeState(data)
}

// Write replaces the document atomically via a temp file and rename.
func (s *FileStore) Write(_ context.Context, key string, state domain.NotificationState) error {
	data, err := encodeState(state)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, ".state-*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmpName, s.Path(key)); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

// Delete removes the document; a missing file is not an error.
func (s *FileStore) Delete(_ context.Context, key string) error {
	err := os.Remove(s.Path(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete state file: %w", err)
	}
	return nil
}
