package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// stateFile is the session state file name.
const stateFile = "session-state.json"

// FileStore is a SessionStore backed by one JSON file holding every key.
// It is the fallback when the database cannot be opened.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a FileStore writing dir/session-state.json.
// The directory must already exist.
func NewFileStore(dir string) *FileStore {
	return &FileStore{path: filepath.Join(dir, stateFile)}
}

// Path returns the state file path.
func (f *FileStore) Path() string {
	return f.path
}

// SaveSession implements SessionStore.
func (f *FileStore) SaveSession(_ context.Context, key string, rec SessionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	all, err := f.readLocked()
	if err != nil {
		return err
	}
	all[key] = rec
	return f.writeLocked(all)
}

// LoadSession implements SessionStore.
func (f *FileStore) LoadSession(_ context.Context, key string) (*SessionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	all, err := f.readLocked()
	if err != nil {
		return nil, err
	}
	rec, ok := all[key]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// DeleteSession implements SessionStore.
func (f *FileStore) DeleteSession(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	all, err := f.readLocked()
	if err != nil {
		return err
	}
	if _, ok := all[key]; !ok {
		return nil
	}
	delete(all, key)
	if len(all) == 0 {
		if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing session state: %w", err)
		}
		return nil
	}
	return f.writeLocked(all)
}

// readLocked returns an empty map when the file does not exist.
func (f *FileStore) readLocked() (map[string]SessionRecord, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]SessionRecord), nil
		}
		return nil, fmt.Errorf("reading session state: %w", err)
	}
	all := make(map[string]SessionRecord)
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("unmarshaling session state: %w", err)
	}
	return all, nil
}

// writeLocked writes atomically via temp file + rename.
func (f *FileStore) writeLocked(all map[string]SessionRecord) error {
	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling session state: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("writing session state temp file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming session state file: %w", err)
	}
	return nil
}
