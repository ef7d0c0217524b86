package backup

import (
	"os"
	"time"

	"ck3watch/internal/errors"
	"ck3watch/shared/utils"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/spf13/afero"
)

// fingerprint is a cached hash of a backup file, valid while the file's
// size and modification time are unchanged.
type fingerprint struct {
	hash    string
	size    int64
	modTime time.Time
}

// Detector decides whether a save file's content already matches its
// canonical backup. Fingerprints of backups are cached; live saves are
// hashed on every call.
type Detector struct {
	fs       afero.Fs
	resolver Resolver
	cache    *lru.Cache[string, fingerprint]
}

func NewDetector(fs afero.Fs, resolver Resolver, cacheSize int) (*Detector, error) {
	if cacheSize <= 0 {
		cacheSize = 128
	}
	cache, err := lru.New[string, fingerprint](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Detector{fs: fs, resolver: resolver, cache: cache}, nil
}

// IsDuplicate reports whether the canonical backup of savePath exists and
// has the same fingerprint. A missing backup is never a duplicate.
func (d *Detector) IsDuplicate(savePath string) (bool, error) {
	backupPath, err := d.resolver.PathFor(savePath)
	if err != nil {
		return false, err
	}

	info, err := d.fs.Stat(backupPath)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.IOError("stat", backupPath, err)
	}

	backupHash, err := d.backupHash(backupPath, info)
	if err != nil {
		return false, err
	}
	saveHash, err := utils.HashFile(d.fs, savePath)
	if err != nil {
		return false, err
	}
	return backupHash == saveHash, nil
}

func (d *Detector) backupHash(path string, info os.FileInfo) (string, error) {
	if fp, ok := d.cache.Get(path); ok && fp.size == info.Size() && fp.modTime.Equal(info.ModTime()) {
		return fp.hash, nil
	}
	hash, err := utils.HashFile(d.fs, path)
	if err != nil {
		return "", err
	}
	d.cache.Add(path, fingerprint{hash: hash, size: info.Size(), modTime: info.ModTime()})
	return hash, nil
}

// Remember caches the fingerprint of a backup that was just written.
func (d *Detector) Remember(path, hash string) {
	info, err := d.fs.Stat(path)
	if err != nil {
		d.cache.Remove(path)
		return
	}
	d.cache.Add(path, fingerprint{hash: hash, size: info.Size(), modTime: info.ModTime()})
}

// Forget drops cached fingerprints for paths touched by a rotation.
func (d *Detector) Forget(ops []Op) {
	for _, op := range ops {
		d.cache.Remove(op.From)
		if op.To != "" {
			d.cache.Remove(op.To)
		}
	}
}
