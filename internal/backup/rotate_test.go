package backup

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"ck3watch/internal/errors"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const backupDir = "/ck3/backups"

func writeFiles(t *testing.T, fs afero.Fs, files map[string]string) {
	t.Helper()
	for name, content := range files {
		require.NoError(t, afero.WriteFile(fs, filepath.Join(backupDir, name), []byte(content), 0644))
	}
}

// dirContents returns file name -> content for every file in dir.
func dirContents(t *testing.T, fs afero.Fs, dir string) map[string]string {
	t.Helper()
	entries, err := afero.ReadDir(fs, dir)
	require.NoError(t, err)

	got := make(map[string]string, len(entries))
	for _, e := range entries {
		data, err := afero.ReadFile(fs, filepath.Join(dir, e.Name()))
		require.NoError(t, err)
		got[e.Name()] = string(data)
	}
	return got
}

func TestRotate(t *testing.T) {
	tests := []struct {
		name    string
		before  map[string]string
		after   map[string]string
		wantOps []OpKind
	}{
		{
			name:    "nothing to rotate",
			before:  map[string]string{"other.ck3": "X"},
			after:   map[string]string{"other.ck3": "X"},
			wantOps: nil,
		},
		{
			name:    "canonical only",
			before:  map[string]string{"game1.ck3": "A"},
			after:   map[string]string{"game1__1.ck3": "A"},
			wantOps: []OpKind{OpMove},
		},
		{
			name:    "two generations",
			before:  map[string]string{"game1.ck3": "B", "game1__1.ck3": "A"},
			after:   map[string]string{"game1__1.ck3": "B", "game1__2.ck3": "A"},
			wantOps: []OpKind{OpMove, OpMove},
		},
		{
			name: "full chain drops the oldest",
			before: map[string]string{
				"game1.ck3":    "D",
				"game1__1.ck3": "C",
				"game1__2.ck3": "B",
				"game1__3.ck3": "A",
			},
			after: map[string]string{
				"game1__1.ck3": "D",
				"game1__2.ck3": "C",
				"game1__3.ck3": "B",
			},
			wantOps: []OpKind{OpDelete, OpMove, OpMove, OpMove},
		},
		{
			name: "gap stops the shift",
			before: map[string]string{
				"game1.ck3":    "C",
				"game1__2.ck3": "A",
				"game1__3.ck3": "Z",
			},
			after: map[string]string{
				"game1__1.ck3": "C",
				"game1__2.ck3": "A",
				"game1__3.ck3": "Z",
			},
			wantOps: []OpKind{OpMove},
		},
		{
			name: "other stems untouched",
			before: map[string]string{
				"game1.ck3":    "B",
				"game2.ck3":    "Q",
				"game2__1.ck3": "P",
			},
			after: map[string]string{
				"game1__1.ck3": "B",
				"game2.ck3":    "Q",
				"game2__1.ck3": "P",
			},
			wantOps: []OpKind{OpMove},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			require.NoError(t, fs.MkdirAll(backupDir, 0755))
			writeFiles(t, fs, tt.before)

			ops, err := NewRotator(fs, zap.NewNop()).Rotate(filepath.Join(backupDir, "game1.ck3"))
			require.NoError(t, err)

			var kinds []OpKind
			for _, op := range ops {
				kinds = append(kinds, op.Kind)
			}
			assert.Equal(t, tt.wantOps, kinds)
			assert.Equal(t, tt.after, dirContents(t, fs, backupDir))
		})
	}
}

func TestRotateMovesOldestFirst(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{"g.ck3": "C", "g__1.ck3": "B", "g__2.ck3": "A"})

	ops, err := NewRotator(fs, zap.NewNop()).Rotate(filepath.Join(backupDir, "g.ck3"))
	require.NoError(t, err)
	require.Len(t, ops, 3)

	assert.Equal(t, Op{Kind: OpMove, From: filepath.Join(backupDir, "g__2.ck3"), To: filepath.Join(backupDir, "g__3.ck3")}, ops[0])
	assert.Equal(t, Op{Kind: OpMove, From: filepath.Join(backupDir, "g__1.ck3"), To: filepath.Join(backupDir, "g__2.ck3")}, ops[1])
	assert.Equal(t, Op{Kind: OpMove, From: filepath.Join(backupDir, "g.ck3"), To: filepath.Join(backupDir, "g__1.ck3")}, ops[2])
}

func TestRotateOldestGenerationIsDeleted(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{"g__3.ck3": "A"})

	ops, err := NewRotator(fs, zap.NewNop()).Rotate(filepath.Join(backupDir, "g__3.ck3"))
	require.NoError(t, err)
	assert.Equal(t, []Op{{Kind: OpDelete, From: filepath.Join(backupDir, "g__3.ck3")}}, ops)

	_, err = fs.Stat(filepath.Join(backupDir, "g__3.ck3"))
	assert.True(t, os.IsNotExist(err))
}

func TestRotateFailure(t *testing.T) {
	base := afero.NewMemMapFs()
	writeFiles(t, base, map[string]string{"g.ck3": "B", "g__1.ck3": "A"})
	fs := afero.NewReadOnlyFs(base)

	ops, err := NewRotator(fs, zap.NewNop()).Rotate(filepath.Join(backupDir, "g.ck3"))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeIO))
	assert.Empty(t, ops)

	// Nothing moved.
	names := make([]string, 0)
	for name := range dirContents(t, base, backupDir) {
		names = append(names, name)
	}
	sort.Strings(names)
	assert.Equal(t, []string{"g.ck3", "g__1.ck3"}, names)
}

func TestRotateRejectsForeignName(t *testing.T) {
	fs := afero.NewMemMapFs()
	_, err := NewRotator(fs, zap.NewNop()).Rotate(filepath.Join(backupDir, "g__latest.ck3"))
	assert.True(t, errors.IsType(err, errors.ErrorTypeParse))
}
