// Package tempstore reads and deletes the locally staged files the
// submission path writes before publishing a Pending message. Paths stored
// on media assets are relative to the staging root.
package tempstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotExist reports that the staged file is already gone. Aliased to
// fs.ErrNotExist so callers match with errors.Is without importing this
// package.
var ErrNotExist = fs.ErrNotExist

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

// Read returns the staged bytes for path. A missing file maps to
// ErrNotExist so callers can tell "already cleaned up" from real I/O
// failures.
func (s *Store) Read(path string) ([]byte, error) {
	fp, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(fp)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotExist, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read staged file %q: %w", path, err)
	}
	return data, nil
}

// Delete removes the staged file. Deleting a file that is already gone is
// not an error.
func (s *Store) Delete(path string) error {
	fp, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(fp); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove staged file %q: %w", path, err)
	}
	return nil
}

// resolve joins path under the staging root and rejects traversal outside
// of it.
func (s *Store) resolve(path string) (string, error) {
	fp := filepath.Join(s.baseDir, filepath.Clean("/"+path))
	if !strings.HasPrefix(fp, filepath.Clean(s.baseDir)+string(os.PathSeparator)) {
		return "", fmt.Errorf("staged path escapes staging dir: %q", path)
	}
	return fp, nil
}
