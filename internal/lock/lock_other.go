//go:build !unix

package lock

import (
	"os"

	"ck3watch/internal/errors"
)

// Without flock the lock is the existence of the file. A process that dies
// while holding it leaves the file behind, and it has to be removed by hand.
func acquire(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0644)
	if os.IsExist(err) {
		return nil, errors.LockedError(path, err)
	}
	if err != nil {
		return nil, errors.IOError("open", path, err)
	}
	return &Lock{file: f, path: path}, nil
}

func release(l *Lock) error {
	l.file.Close()
	if err := os.Remove(l.path); err != nil {
		return errors.IOError("remove", l.path, err)
	}
	return nil
}
