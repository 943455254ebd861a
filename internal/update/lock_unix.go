//go:build unix

package update

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Lock is the exclusive on-disk lock guarding one updater run at a time.
type Lock struct {
	file *os.File
}

// TryAcquire takes a non-blocking exclusive flock on path, creating the
// file if necessary. ok is false with a nil error if another run already
// holds it, matching the "exit silently if held" requirement.
func TryAcquire(path string) (lock *Lock, ok bool, err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, false, fmt.Errorf("open lock file: %w", err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if err == unix.EWOULDBLOCK {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("flock: %w", err)
	}

	return &Lock{file: f}, true, nil
}

// Release drops the lock and closes the underlying file.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	_ = unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	return l.file.Close()
}
