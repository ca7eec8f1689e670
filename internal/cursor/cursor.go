// Package cursor persists the tail loop's high-water mark so an opt-in
// restart can resume without re-emitting rows. The file is written only
// after a batch has been handed to the publisher, never before.
package cursor

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// FileStore keeps the last published row id in a small text file,
// replaced atomically on every update.
type FileStore struct {
	path string
}

// NewFileStore returns a store backed by the given path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the saved row id. The boolean is false when no cursor has
// been saved yet.
func (f *FileStore) Load() (int64, bool, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("read cursor: %w", err)
	}
	value, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse cursor %q: %w", strings.TrimSpace(string(data)), err)
	}
	return value, true, nil
}

// Save writes the row id via a temp file and rename so a crash mid-write
// never leaves a torn cursor.
func (f *FileStore) Save(rowID int64) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cursor directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".cursor-*")
	if err != nil {
		return fmt.Errorf("create cursor temp file: %w", err)
	}
	tmpPath := tmp.Name()
	_, writeErr := tmp.WriteString(strconv.FormatInt(rowID, 10) + "\n")
	closeErr := tmp.Close()
	if writeErr != nil || closeErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write cursor: %w", errors.Join(writeErr, closeErr))
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace cursor file: %w", err)
	}
	return nil
}
