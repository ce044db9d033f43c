package utils

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrLocked is returned when another process already holds the run lock.
var ErrLocked = errors.New("run lock held by another process")

// RunLock is an exclusive, non-blocking file lock guarding pipeline runs
// that write to the same store.
type RunLock struct {
	fl *flock.Flock
}

// AcquireRunLock takes the lock at path, creating parent directories as needed.
func AcquireRunLock(path string) (*RunLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("lock: create dir: %w", err)
	}

	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock: %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("lock: %s: %w", path, ErrLocked)
	}
	return &RunLock{fl: fl}, nil
}

// Release unlocks the file. Safe to call on a nil RunLock.
func (l *RunLock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	return l.fl.Unlock()
}
