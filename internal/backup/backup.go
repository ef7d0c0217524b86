package backup

import (
	"crypto/md5"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"ck3watch/internal/errors"
	"ck3watch/internal/logging"
	"ck3watch/shared/utils"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// partialSuffix marks a copy in progress. A random tail follows it, and the
// resulting extension never matches a backup slot, so listing ignores it.
const partialSuffix = ".partial"

type Outcome int

const (
	OutcomeSkipped Outcome = iota
	OutcomeDuplicate
	OutcomeBackedUp
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeBackedUp:
		return "backed up"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Result describes one backup that was taken.
type Result struct {
	SavePath    string    `json:"save_path"`
	BackupPath  string    `json:"backup_path"`
	Stem        string    `json:"stem"`
	Fingerprint string    `json:"fingerprint"`
	Size        int64     `json:"size"`
	Ops         []Op      `json:"ops"`
	CreatedAt   time.Time `json:"created_at"`
}

// Recorder receives every backup taken, e.g. to keep a history.
type Recorder interface {
	Record(Result) error
}

type Options struct {
	// CacheSize bounds the number of backup fingerprints kept in memory.
	CacheSize int
	Recorder  Recorder
}

// Manager runs the detect, rotate and copy pipeline for save files.
type Manager struct {
	fs       afero.Fs
	resolver Resolver
	rotator  *Rotator
	detector *Detector
	recorder Recorder
	logger   *zap.Logger
}

func NewManager(fs afero.Fs, backupDir string, logger *zap.Logger, opts Options) (*Manager, error) {
	if backupDir == "" {
		return nil, fmt.Errorf("backup directory cannot be empty")
	}
	logger = logging.Named(logger, "backup")

	resolver := Resolver{Dir: backupDir}
	detector, err := NewDetector(fs, resolver, opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating detector: %w", err)
	}

	return &Manager{
		fs:       fs,
		resolver: resolver,
		rotator:  NewRotator(fs, logger),
		detector: detector,
		recorder: opts.Recorder,
		logger:   logger,
	}, nil
}

func (m *Manager) Dir() string {
	return m.resolver.Dir
}

// EnsureDir creates the backup directory if it does not exist.
func (m *Manager) EnsureDir() error {
	if err := m.fs.MkdirAll(m.resolver.Dir, 0755); err != nil {
		return errors.IOError("mkdir", m.resolver.Dir, err)
	}
	return nil
}

// Process handles one change notification for savePath. Missing or empty
// files are skipped; saves matching their latest backup are ignored;
// anything else is backed up.
func (m *Manager) Process(savePath string) (Outcome, error) {
	if !m.hasData(savePath) {
		m.logger.Debug("ignoring save without data", zap.String("path", savePath))
		return OutcomeSkipped, nil
	}

	m.logger.Info("change detected", zap.String("file", filepath.Base(savePath)))

	dup, err := m.detector.IsDuplicate(savePath)
	if err != nil {
		return OutcomeSkipped, m.vanished(savePath, fmt.Errorf("comparing with backup: %w", err))
	}
	if dup {
		m.logger.Info("save has already been backed up, ignoring change", zap.String("file", filepath.Base(savePath)))
		return OutcomeDuplicate, nil
	}

	if _, err := m.Backup(savePath); err != nil {
		return OutcomeSkipped, m.vanished(savePath, err)
	}
	return OutcomeBackedUp, nil
}

// vanished reports err as transient when the save disappeared or was
// truncated while it was being handled.
func (m *Manager) vanished(savePath string, err error) error {
	if m.hasData(savePath) {
		return err
	}
	return errors.TransientError(savePath, "save changed while being backed up")
}

// Backup rotates the existing chain for savePath and copies the save into
// the vacated canonical slot. It does not check for duplicates.
func (m *Manager) Backup(savePath string) (*Result, error) {
	slot, err := m.resolver.SlotFor(savePath)
	if err != nil {
		return nil, err
	}
	backupPath := slot.Path(m.resolver.Dir)

	ops, err := m.rotator.Rotate(backupPath)
	m.detector.Forget(ops)
	if err != nil {
		return nil, fmt.Errorf("rotating backups: %w", err)
	}

	hash, size, err := m.copy(savePath, backupPath)
	if err != nil {
		return nil, fmt.Errorf("copying save: %w", err)
	}
	m.detector.Remember(backupPath, hash)
	m.logger.Info("copied save",
		zap.String("from", savePath),
		zap.String("to", backupPath),
		zap.String("fingerprint", hash),
	)

	res := &Result{
		SavePath:    savePath,
		BackupPath:  backupPath,
		Stem:        slot.Stem,
		Fingerprint: hash,
		Size:        size,
		Ops:         ops,
		CreatedAt:   time.Now(),
	}
	if m.recorder != nil {
		if err := m.recorder.Record(*res); err != nil {
			m.logger.Warn("recording backup", zap.Error(err))
		}
	}
	return res, nil
}

// copy writes src to a partial file next to dst and renames it into place,
// so dst only ever holds a complete copy. It returns the fingerprint of the
// bytes actually copied.
func (m *Manager) copy(src, dst string) (string, int64, error) {
	if _, err := m.fs.Stat(dst); err == nil {
		return "", 0, errors.IOError("copy", dst, os.ErrExist)
	}

	in, err := m.fs.Open(src)
	if err != nil {
		return "", 0, errors.IOError("open", src, err)
	}
	defer in.Close()

	out, err := afero.TempFile(m.fs, filepath.Dir(dst), filepath.Base(dst)+partialSuffix+"*")
	if err != nil {
		return "", 0, errors.IOError("create", dst+partialSuffix, err)
	}
	tmp := out.Name()

	h := md5.New()
	n, err := io.Copy(io.MultiWriter(out, h), in)
	if err == nil {
		err = out.Sync()
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = m.fs.Chmod(tmp, 0644)
	}
	if err != nil {
		m.fs.Remove(tmp)
		return "", 0, errors.IOError("write", tmp, err)
	}

	if err := m.fs.Rename(tmp, dst); err != nil {
		m.fs.Remove(tmp)
		return "", 0, errors.IOError("rename", tmp, err)
	}
	return utils.EncodeDigest(h.Sum(nil)), n, nil
}

func (m *Manager) hasData(path string) bool {
	info, err := m.fs.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}
