// Package ledger keeps a history of the backups taken, one record per
// copy into a canonical slot. The backup directory stays the source of
// truth; the ledger only answers "when was this save last backed up and
// what did it look like".
package ledger

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"ck3watch/internal/backup"
	"ck3watch/internal/storage"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

const recordPrefix = "backup"

// Record is one backup as seen by the ledger.
type Record struct {
	ID          string    `json:"id"`
	Stem        string    `json:"stem"`
	SaveName    string    `json:"save_name"`
	BackupPath  string    `json:"backup_path"`
	Fingerprint string    `json:"fingerprint"`
	Size        int64     `json:"size"`
	Rotated     int       `json:"rotated"`
	Evicted     bool      `json:"evicted"`
	CreatedAt   time.Time `json:"created_at"`
}

// GetID orders records by stem, then time.
func (r *Record) GetID() string {
	return fmt.Sprintf("%s/%020d/%s", r.Stem, r.CreatedAt.UnixNano(), r.ID)
}

type Ledger struct {
	db      *badger.DB
	records *storage.BadgerStore
}

// Open opens (or creates) the ledger database in dir.
func Open(dir string) (*Ledger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating ledger directory: %w", err)
	}

	opts := badger.DefaultOptions(dir).
		WithNumVersionsToKeep(1).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}
	return New(db), nil
}

// OpenInMemory returns a ledger that lives only as long as the process.
func OpenInMemory() (*Ledger, error) {
	opts := badger.DefaultOptions("").
		WithInMemory(true).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening in-memory ledger: %w", err)
	}
	return New(db), nil
}

func New(db *badger.DB) *Ledger {
	return &Ledger{
		db:      db,
		records: storage.NewBadgerStore(db, recordPrefix),
	}
}

// Record implements backup.Recorder.
func (l *Ledger) Record(res backup.Result) error {
	r := &Record{
		ID:          uuid.New().String(),
		Stem:        res.Stem,
		SaveName:    filepath.Base(res.SavePath),
		BackupPath:  res.BackupPath,
		Fingerprint: res.Fingerprint,
		Size:        res.Size,
		CreatedAt:   res.CreatedAt,
	}
	for _, op := range res.Ops {
		switch op.Kind {
		case backup.OpMove:
			r.Rotated++
		case backup.OpDelete:
			r.Evicted = true
		}
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}

	if err := l.records.Create(r); err != nil {
		return fmt.Errorf("storing record: %w", err)
	}
	return nil
}

// History returns the records of stem, oldest first. An empty stem
// returns every record ordered by time.
func (l *Ledger) History(stem string) ([]Record, error) {
	prefix := ""
	if stem != "" {
		prefix = stem + "/"
	}

	var records []Record
	if err := l.records.List(prefix, &records); err != nil {
		return nil, err
	}
	if stem == "" {
		sort.SliceStable(records, func(i, j int) bool {
			return records[i].CreatedAt.Before(records[j].CreatedAt)
		})
	}
	return records, nil
}

// Latest returns the most recent record of stem, or nil if there is none.
func (l *Ledger) Latest(stem string) (*Record, error) {
	records, err := l.History(stem)
	if err != nil || len(records) == 0 {
		return nil, err
	}
	return &records[len(records)-1], nil
}

// Forget drops the history of stem.
func (l *Ledger) Forget(stem string) (int, error) {
	if stem == "" {
		return 0, fmt.Errorf("stem cannot be empty")
	}
	return l.records.DeletePrefix(stem + "/")
}

func (l *Ledger) Close() error {
	return l.db.Close()
}
