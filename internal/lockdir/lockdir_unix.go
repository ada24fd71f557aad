//go:build !windows

// Package lockdir advertises the store's exclusive ownership of its
// root directory (spec §5: "the store assumes exclusive directory
// ownership") with a real advisory file lock, so a second process
// pointed at the same root fails fast instead of corrupting JSON files
// through interleaved writes.
package lockdir

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Lock holds an open, flock'd file descriptor for a root directory.
type Lock struct {
	fd int
}

// Acquire takes an exclusive, non-blocking advisory lock on path (a
// lock file inside the store's root directory). It returns an error
// immediately if another process already holds it.
func Acquire(path string) (*Lock, error) {
	fd, err := unix.Open(path, unix.O_CREAT|unix.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("lockdir: open %s: %w", path, err)
	}
	if err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("lockdir: another process holds %s: %w", path, err)
	}
	return &Lock{fd: fd}, nil
}

// Release drops the lock and closes the underlying descriptor.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	if err := unix.Flock(l.fd, unix.LOCK_UN); err != nil {
		return err
	}
	return unix.Close(l.fd)
}
