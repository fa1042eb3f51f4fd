package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// DirLock guards a data directory against concurrent writers from other
// processes. Works on Unix, macOS and Windows.
type DirLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewDirLock creates a lock for the given data directory. The lock file
// lives at <dir>/.quarry.lock.
func NewDirLock(dir string) *DirLock {
	lockPath := filepath.Join(dir, ".quarry.lock")
	return &DirLock{path: lockPath, flock: flock.New(lockPath)}
}

// TryLock attempts a non-blocking exclusive lock. Returns false when
// another process holds it.
func (l *DirLock) TryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("create lock directory: %w", err)
	}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("acquire data directory lock: %w", err)
	}
	if acquired {
		l.locked = true
	}
	return acquired, nil
}

// Unlock releases the lock. Safe to call on an unlocked DirLock.
func (l *DirLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("release data directory lock: %w", err)
	}
	return nil
}
