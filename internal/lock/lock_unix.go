//go:build unix

package lock

import (
	"os"
	"syscall"

	"ck3watch/internal/errors"
)

func acquire(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, errors.IOError("open", path, err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		if err == syscall.EWOULDBLOCK || err == syscall.EAGAIN {
			return nil, errors.LockedError(path, err)
		}
		return nil, errors.IOError("lock", path, err)
	}
	return &Lock{file: f, path: path}, nil
}

// The file stays behind; only the flock marks ownership.
func release(l *Lock) error {
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		l.file.Close()
		return errors.IOError("unlock", l.path, err)
	}
	return l.file.Close()
}
