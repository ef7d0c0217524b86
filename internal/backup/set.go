package backup

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"ck3watch/internal/errors"

	"github.com/spf13/afero"
)

// SlotInfo is an occupied slot as found on disk.
type SlotInfo struct {
	Slot
	File    string
	Size    int64
	ModTime time.Time
}

// Set is the backup chain of one save stem, newest generation first.
type Set struct {
	Stem  string
	Slots []SlotInfo
}

// Latest returns the canonical slot, if present.
func (s Set) Latest() (SlotInfo, bool) {
	if len(s.Slots) > 0 && s.Slots[0].Generation == 0 {
		return s.Slots[0], true
	}
	return SlotInfo{}, false
}

// List reads dir and groups its backup files by stem. Files that do not fit
// the slot grammar are returned by name in unknown instead of failing the
// listing. A missing directory yields no sets.
func List(fs afero.Fs, dir string) (sets []Set, unknown []string, err error) {
	entries, err := afero.ReadDir(fs, dir)
	if os.IsNotExist(err) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, errors.IOError("readdir", dir, err)
	}

	byStem := make(map[string]*Set)
	for _, info := range entries {
		if info.IsDir() || !strings.EqualFold(filepath.Ext(info.Name()), Extension) {
			continue
		}
		slot, err := ParseSlot(info.Name())
		if err != nil {
			unknown = append(unknown, info.Name())
			continue
		}
		set, ok := byStem[slot.Stem]
		if !ok {
			set = &Set{Stem: slot.Stem}
			byStem[slot.Stem] = set
		}
		set.Slots = append(set.Slots, SlotInfo{
			Slot:    slot,
			File:    filepath.Join(dir, info.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	for _, set := range byStem {
		sort.Slice(set.Slots, func(i, j int) bool {
			return set.Slots[i].Generation < set.Slots[j].Generation
		})
		sets = append(sets, *set)
	}
	sort.Slice(sets, func(i, j int) bool { return sets[i].Stem < sets[j].Stem })
	return sets, unknown, nil
}

// Find returns the set for stem.
func Find(fs afero.Fs, dir, stem string) (Set, bool, error) {
	sets, _, err := List(fs, dir)
	if err != nil {
		return Set{}, false, err
	}
	for _, s := range sets {
		if s.Stem == stem {
			return s, true, nil
		}
	}
	return Set{}, false, nil
}
