// Package lock keeps a single ck3watch process writing to a backup
// directory at a time. The lock is a file in that directory held for as
// long as the watcher runs or a one-off backup is in progress.
package lock

import (
	"os"
	"path/filepath"
)

// FileName is the lock file created in the backup directory.
const FileName = ".ck3watch.lock"

// Lock is an acquired directory lock.
type Lock struct {
	file *os.File
	path string
}

// Path returns the location of the lock file guarding dir.
func Path(dir string) string {
	return filepath.Join(dir, FileName)
}

// Acquire takes the lock on dir without waiting. A lock held elsewhere is
// reported as a LOCKED error.
func Acquire(dir string) (*Lock, error) {
	return acquire(Path(dir))
}

// Release gives the lock up. It is safe to call more than once.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	err := release(l)
	l.file = nil
	return err
}
