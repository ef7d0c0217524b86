package backup

import (
	"os"
	"path/filepath"

	"ck3watch/internal/errors"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

type OpKind string

const (
	OpMove   OpKind = "move"
	OpDelete OpKind = "delete"
)

// Op is one filesystem mutation performed by a rotation.
type Op struct {
	Kind OpKind `json:"kind"`
	From string `json:"from"`
	To   string `json:"to,omitempty"`
}

// Rotator shifts a backup chain one generation older to vacate a slot.
type Rotator struct {
	fs     afero.Fs
	logger *zap.Logger
}

func NewRotator(fs afero.Fs, logger *zap.Logger) *Rotator {
	return &Rotator{fs: fs, logger: logger}
}

// Rotate vacates backupPath. Starting at its generation it finds the run of
// occupied slots, drops the oldest generation if the run reaches it, then
// moves every slot in the run up by one, oldest first, so each rename lands
// on a vacant slot. Nothing happens when backupPath is not occupied.
//
// The first failing move or delete aborts the rotation. Ops already applied
// are returned along with the error.
func (r *Rotator) Rotate(backupPath string) ([]Op, error) {
	dir := filepath.Dir(backupPath)
	start, err := ParseSlot(filepath.Base(backupPath))
	if err != nil {
		return nil, err
	}

	occupied, err := r.exists(backupPath)
	if err != nil || !occupied {
		return nil, err
	}

	top := start.Generation
	for top < MaxGeneration {
		ok, err := r.exists(start.At(top + 1).Path(dir))
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		top++
	}

	var ops []Op
	if top == MaxGeneration {
		path := start.At(MaxGeneration).Path(dir)
		if err := r.fs.Remove(path); err != nil {
			return ops, errors.IOError("delete", path, err)
		}
		r.logger.Info("deleted backup", zap.String("path", path))
		ops = append(ops, Op{Kind: OpDelete, From: path})
		top--
	}

	for gen := top; gen >= start.Generation; gen-- {
		from := start.At(gen).Path(dir)
		to := start.At(gen + 1).Path(dir)
		if err := r.fs.Rename(from, to); err != nil {
			return ops, errors.IOError("move", from, err)
		}
		r.logger.Info("moved backup", zap.String("from", from), zap.String("to", to))
		ops = append(ops, Op{Kind: OpMove, From: from, To: to})
	}

	return ops, nil
}

func (r *Rotator) exists(path string) (bool, error) {
	_, err := r.fs.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, errors.IOError("stat", path, err)
}
