package utils

import (
	"crypto/md5"
	"encoding/hex"
	"io"
	"strings"

	"ck3watch/internal/errors"

	"github.com/spf13/afero"
)

// HashContent returns the MD5 fingerprint of content as uppercase hex.
// MD5 is only a change-detection signal here, never a security check.
func HashContent(content []byte) string {
	hash := md5.Sum(content)
	return EncodeDigest(hash[:])
}

// EncodeDigest renders a raw digest the way fingerprints are compared.
func EncodeDigest(sum []byte) string {
	return strings.ToUpper(hex.EncodeToString(sum))
}

// HashFile streams the file at path through MD5. Callers are expected to
// have checked that the file exists and is non-empty.
func HashFile(fs afero.Fs, path string) (string, error) {
	f, err := fs.Open(path)
	if err != nil {
		return "", errors.IOError("open", path, err)
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", errors.IOError("read", path, err)
	}
	return EncodeDigest(h.Sum(nil)), nil
}
