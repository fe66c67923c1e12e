package driver

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
)

// LockFileName is locked in the project root while a command mutates it.
const LockFileName = ".epic.lock"

// ErrLocked is returned when another process holds the project lock.
var ErrLocked = errors.New("project is locked by another build")

type buildLock struct {
	fl *flock.Flock
}

// acquireLock takes an advisory lock on the lock file without blocking. The
// operating system drops the lock when the holder exits, so a leftover file
// from a crashed build does not block later commands.
func acquireLock(root string) (*buildLock, error) {
	path := filepath.Join(root, LockFileName)
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, path)
	}
	return &buildLock{fl: fl}, nil
}

func (l *buildLock) release() {
	_ = l.fl.Unlock()
}
