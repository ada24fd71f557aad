//go:build windows

package lockdir

import (
	"fmt"

	"github.com/gofrs/flock"
)

func errLocked(path string) error {
	return fmt.Errorf("lockdir: another process holds %s", path)
}

// Lock holds a Windows-compatible advisory lock via gofrs/flock, since
// golang.org/x/sys/unix's flock is unavailable on this platform.
type Lock struct {
	fl *flock.Flock
}

// Acquire takes an exclusive, non-blocking lock on path.
func Acquire(path string) (*Lock, error) {
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errLocked(path)
	}
	return &Lock{fl: fl}, nil
}

// Release drops the lock.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	return l.fl.Unlock()
}
