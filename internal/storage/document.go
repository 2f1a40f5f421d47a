package storage

import (
	"encoding/json"
	"errors"
	"io"
	"os"
	"time"
)

const lockTimeout = 5 * time.Second

// Document is a single JSON value persisted in one file. The file is locked
// for the lifetime of the Document so two processes never interleave writes;
// every Save replaces the file atomically.
//
// Document does no in-memory caching and no locking of its own. Owners keep
// the decoded value and serialize access to it.
type Document[T any] struct {
	path   string
	entity string
	perm   os.FileMode
	lock   *FileLock
}

// OpenDocument locks path and returns a Document bound to it. entity names the
// stored value in errors.
func OpenDocument[T any](path, entity string, perm os.FileMode) (*Document[T], error) {
	d := &Document[T]{
		path:   path,
		entity: entity,
		perm:   perm,
		lock:   NewFileLock(path),
	}
	if err := d.lock.Lock(lockTimeout); err != nil {
		return nil, err
	}
	return d, nil
}

// Path returns the file path backing the document.
func (d *Document[T]) Path() string { return d.path }

// Load decodes the file. ok is false when the file does not exist yet.
func (d *Document[T]) Load() (value T, ok bool, err error) {
	if d.lock == nil {
		return value, false, ErrClosed
	}
	data, err := os.ReadFile(d.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return value, false, nil
		}
		return value, false, &StorageError{Op: "read", Entity: d.entity, Err: err}
	}
	if err := json.Unmarshal(data, &value); err != nil {
		return value, false, &StorageError{Op: "read", Entity: d.entity, Err: ErrStorageCorrupt}
	}
	return value, true, nil
}

// Save persists value atomically.
func (d *Document[T]) Save(value T) error {
	if d.lock == nil {
		return ErrClosed
	}
	err := WriteFile(d.path, d.perm, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(value)
	})
	if err != nil {
		return &StorageError{Op: "write", Entity: d.entity, Err: err}
	}
	return nil
}

// Close releases the file lock.
func (d *Document[T]) Close() error {
	if d.lock == nil {
		return nil
	}
	err := d.lock.Unlock()
	d.lock = nil
	return err
}
