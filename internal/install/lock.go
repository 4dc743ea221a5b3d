package install

import (
	"context"
	"errors"
	"os"
	"time"
)

// DirLock guards a single install directory through a lock file (Install
// uses <install_dir>.lock, beside the directory) so two
// concurrent installers for the same (tool, version) don't race writing
// into it, per spec.md §4.10's "concurrent install coordination" contract.
//
// Grounded on spec.md's own wording ("lock the install dir... wait or
// early-exit depending on force") rather than any corpus file: no example
// repo or teacher dependency ships a flock library, so this is a plain
// exclusive-create loop over stdlib os, the idiomatic Go substitute.
type DirLock struct {
	path string
	file *os.File
}

const lockPollInterval = 50 * time.Millisecond

// AcquireDirLock blocks until path can be exclusively created, or ctx is
// cancelled.
func AcquireDirLock(ctx context.Context, path string) (*DirLock, error) {
	for {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			return &DirLock{path: path, file: f}, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockPollInterval):
		}
	}
}

// TryAcquireDirLock makes a single non-blocking attempt, returning ok=false
// if another installer already holds the lock.
func TryAcquireDirLock(path string) (lock *DirLock, ok bool, err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err == nil {
		return &DirLock{path: path, file: f}, true, nil
	}
	if errors.Is(err, os.ErrExist) {
		return nil, false, nil
	}
	return nil, false, err
}

// Release closes and removes the lock file.
func (l *DirLock) Release() error {
	if l == nil {
		return nil
	}
	_ = l.file.Close()
	return os.Remove(l.path)
}
