package daemon

import (
	"errors"
	"fmt"
	"os"
	"strconv"
)

// ErrLocked is returned when another daemon holds the data directory lock.
var ErrLocked = errors.New("another daemon is already running for this data directory")

// Lock is an exclusive, process-wide lock on a file.
type Lock struct {
	f    *os.File
	path string
}

// AcquireLock takes the lock at path without waiting. The file keeps the
// holder's pid for diagnostics.
func AcquireLock(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}
	if err := lockFile(f); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Truncate(0); err == nil {
		f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)
	}
	return &Lock{f: f, path: path}, nil
}

// Release drops the lock. The lock file is left in place.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	err := unlockFile(l.f)
	if cerr := l.f.Close(); err == nil {
		err = cerr
	}
	l.f = nil
	return err
}
