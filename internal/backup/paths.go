package backup

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"ck3watch/internal/errors"
)

const (
	// MaxGeneration is the oldest generation kept. A slot at this generation
	// is deleted rather than renamed when the chain rotates.
	MaxGeneration = 3

	// Separator splits a backup stem from its generation suffix.
	Separator = "__"

	// Extension of save files and their backups.
	Extension = ".ck3"
)

// Slot identifies one backup file: a save stem plus a generation.
// Generation 0 is the canonical (newest) backup and carries no suffix.
type Slot struct {
	Stem       string
	Generation int
	Ext        string
}

// ParseSlot parses a backup file name of the form <stem>.ck3 or
// <stem>__N.ck3. Any other shape is a parse error: the backup directory is
// expected to hold only files written by this program.
func ParseSlot(name string) (Slot, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	parts := strings.Split(stem, Separator)

	switch len(parts) {
	case 1:
		if stem == "" {
			return Slot{}, errors.ParseError(name, "empty backup stem", nil)
		}
		return Slot{Stem: stem, Ext: ext}, nil
	case 2:
		if parts[0] == "" {
			return Slot{}, errors.ParseError(name, "empty backup stem", nil)
		}
		gen, err := strconv.Atoi(parts[1])
		if err != nil {
			return Slot{}, errors.ParseError(name, "invalid generation suffix", err)
		}
		if gen < 1 || gen > MaxGeneration {
			return Slot{}, errors.ParseError(name, fmt.Sprintf("generation %d out of range", gen), nil)
		}
		return Slot{Stem: parts[0], Generation: gen, Ext: ext}, nil
	default:
		return Slot{}, errors.ParseError(name, "too many generation separators", nil)
	}
}

// Name renders the slot's file name.
func (s Slot) Name() string {
	if s.Generation == 0 {
		return s.Stem + s.Ext
	}
	return fmt.Sprintf("%s%s%d%s", s.Stem, Separator, s.Generation, s.Ext)
}

func (s Slot) Path(dir string) string {
	return filepath.Join(dir, s.Name())
}

// At returns the slot for the same stem at another generation.
func (s Slot) At(generation int) Slot {
	s.Generation = generation
	return s
}

// Next returns the slot one generation older, or false when s is already
// the oldest retained generation.
func (s Slot) Next() (Slot, bool) {
	if s.Generation >= MaxGeneration {
		return Slot{}, false
	}
	return s.At(s.Generation + 1), true
}

// NextGeneration maps a backup path to the path it should be renamed to
// during rotation. ok is false when the file must be deleted instead.
func NextGeneration(backupPath string) (next string, ok bool, err error) {
	slot, err := ParseSlot(filepath.Base(backupPath))
	if err != nil {
		return "", false, err
	}
	n, ok := slot.Next()
	if !ok {
		return "", false, nil
	}
	return n.Path(filepath.Dir(backupPath)), true, nil
}

// Resolver maps save files to their canonical backup slot.
type Resolver struct {
	Dir string
}

// PathFor returns the canonical backup path of a save file: the backup
// directory joined with the save's base name.
func (r Resolver) PathFor(savePath string) (string, error) {
	name := filepath.Base(savePath)
	if strings.Contains(strings.TrimSuffix(name, filepath.Ext(name)), Separator) {
		return "", errors.ParseError(name, "save name contains the generation separator", nil)
	}
	return filepath.Join(r.Dir, name), nil
}

// SlotFor returns the canonical slot of a save file.
func (r Resolver) SlotFor(savePath string) (Slot, error) {
	path, err := r.PathFor(savePath)
	if err != nil {
		return Slot{}, err
	}
	return ParseSlot(filepath.Base(path))
}
