// Package pidfile writes and locks the parent process's PID file, per
// spec.md §6 ("PID log: absolute path /tmp/loolwsd.pid, decimal PID, no
// newline required"). The advisory lock itself is a domain-stack
// addition grounded on gofrs/flock, which the teacher's go.mod carries
// for its own single-instance guard.
package pidfile

import (
	"fmt"
	"os"
	"strconv"

	"github.com/gofrs/flock"
)

// File holds an advisory lock on the PID file for the process's lifetime.
type File struct {
	lock *flock.Flock
	path string
}

// Acquire locks path (creating it if necessary), writes the current
// process's decimal PID with no trailing newline, and returns a File the
// caller must Release at shutdown. It returns an error if another process
// already holds the lock.
func Acquire(path string) (*File, error) {
	lock := flock.New(path)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock pid file %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("pid file %s is already locked by another process", path)
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("write pid file %s: %w", path, err)
	}

	return &File{lock: lock, path: path}, nil
}

// Release unlocks and removes the PID file.
func (f *File) Release() error {
	if err := f.lock.Unlock(); err != nil {
		return err
	}
	return os.Remove(f.path)
}

// Path returns the locked file's path.
func (f *File) Path() string { return f.path }
