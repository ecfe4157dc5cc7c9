package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"kycflow/pkg/domain"
)

// FileStore keeps the snapshot in a single JSON file. Writes go to a temporary
// file in the same directory and are renamed into place.
type FileStore struct {
	path string
}

// NewFileStore stores the snapshot at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the snapshot file location.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Save(_ context.Context, state domain.WorkflowState) error {
	payload, err := encode(state)
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("save workflow snapshot: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("save workflow snapshot: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after a successful rename

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close() //nolint:errcheck // already failing
		return fmt.Errorf("save workflow snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save workflow snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("save workflow snapshot: %w", err)
	}
	return nil
}

func (s *FileStore) Load(_ context.Context) (domain.WorkflowState, error) {
	payload, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.WorkflowState{}, ErrNotFound
		}
		return domain.WorkflowState{}, fmt.Errorf("load workflow snapshot: %w", err)
	}
	return decode(payload)
}

func (s *FileStore) Clear(_ context.Context) error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("clear workflow snapshot: %w", err)
	}
	return nil
}

var _ SnapshotStore = (*FileStore)(nil)
