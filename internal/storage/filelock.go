package storage

import (
	"os"
	"time"
)

const lockPollInterval = 10 * time.Millisecond

// FileLock is an advisory, cross-process exclusive lock held on a sidecar
// file next to the data it guards (path + ".lock"). The sidecar is left in
// place on Unlock so every process always locks the same inode.
type FileLock struct {
	path string
	file *os.File
}

// NewFileLock returns an unlocked FileLock guarding path.
func NewFileLock(path string) *FileLock {
	return &FileLock{path: path + ".lock"}
}

// Lock acquires the lock, retrying until timeout elapses. It returns
// ErrLockTimeout when another holder keeps it for the whole period.
func (l *FileLock) Lock(timeout time.Duration) error {
	if l.file != nil {
		return nil
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return &StorageError{Op: "lock", Entity: "file", ID: l.path, Err: err}
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(lockPollInterval)
	defer tick.Stop()

	for {
		if tryLock(f) == nil {
			l.file = f
			return nil
		}
		select {
		case <-deadline.C:
			f.Close()
			return ErrLockTimeout
		case <-tick.C:
		}
	}
}

// Unlock releases the lock. Unlocking an unheld lock is a no-op.
func (l *FileLock) Unlock() error {
	if l.file == nil {
		return nil
	}
	f := l.file
	l.file = nil
	if err := unlock(f); err != nil {
		f.Close()
		return &StorageError{Op: "unlock", Entity: "file", ID: l.path, Err: err}
	}
	return f.Close()
}
