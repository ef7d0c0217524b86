// internal/archive/archive.go
package archive

import (
	"archive/tar"
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"ck3watch/internal/backup"

	"github.com/klauspost/compress/zstd"
	"github.com/spf13/afero"
)

var ErrNotZstd = errors.New("not a zstd archive")

var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

// Options configures compression behavior
type Options struct {
	// Compression level (1=fastest, 4=best)
	Level int
}

func DefaultOptions() Options {
	return Options{Level: 3}
}

// Entry is one file inside an archive.
type Entry struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// Write streams every slot of set into w as a zstd-compressed tar, newest
// generation first. Entry names are the slot file names.
func Write(fs afero.Fs, set backup.Set, w io.Writer, opts Options) error {
	if opts.Level <= 0 {
		opts = DefaultOptions()
	}

	enc, err := zstd.NewWriter(w,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(opts.Level)),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return fmt.Errorf("creating encoder: %w", err)
	}

	tw := tar.NewWriter(enc)
	for _, slot := range set.Slots {
		if err := addFile(fs, tw, slot); err != nil {
			enc.Close()
			return err
		}
	}

	if err := tw.Close(); err != nil {
		enc.Close()
		return fmt.Errorf("finalizing tar: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalizing compression: %w", err)
	}
	return nil
}

func addFile(fs afero.Fs, tw *tar.Writer, slot backup.SlotInfo) error {
	f, err := fs.Open(slot.File)
	if err != nil {
		return fmt.Errorf("opening %s: %w", slot.File, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", slot.File, err)
	}

	hdr := &tar.Header{
		Name:    slot.Name(),
		Mode:    0644,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("writing header for %s: %w", slot.File, err)
	}
	if _, err := io.CopyN(tw, f, info.Size()); err != nil {
		return fmt.Errorf("archiving %s: %w", slot.File, err)
	}
	return nil
}

// Entries lists the files of an archive produced by Write.
func Entries(r io.Reader) ([]Entry, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(len(zstdMagic))
	if err != nil || !bytes.Equal(magic, zstdMagic) {
		return nil, ErrNotZstd
	}

	dec, err := zstd.NewReader(br, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("creating decoder: %w", err)
	}
	defer dec.Close()

	var entries []Entry
	tr := tar.NewReader(dec)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return entries, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading archive: %w", err)
		}
		entries = append(entries, Entry{Name: hdr.Name, Size: hdr.Size, ModTime: hdr.ModTime})
	}
}
