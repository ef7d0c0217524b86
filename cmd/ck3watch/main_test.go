package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	color.NoColor = true

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func setupRoot(t *testing.T) string {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "save games"), 0755))
	t.Setenv("CK3WATCH_CONFIG", "")
	return root
}

func TestBackupStatusArchive(t *testing.T) {
	root := setupRoot(t)
	save := filepath.Join(root, "save games", "ironman.ck3")

	for _, content := range []string{"first", "second"} {
		require.NoError(t, os.WriteFile(save, []byte(content), 0644))
		out, err := runCLI(t, "--root", root, "--log-level", "error", "backup", "ironman")
		require.NoError(t, err)
		assert.Contains(t, out, "✓ ironman.ck3")
	}

	out, err := runCLI(t, "--root", root, "--log-level", "error", "backup", "ironman.ck3")
	require.NoError(t, err)
	assert.Contains(t, out, "already backed up")

	out, err = runCLI(t, "--root", root, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "ironman\n")
	assert.Contains(t, out, "ironman.ck3")
	assert.Contains(t, out, "ironman__1.ck3")
	assert.Contains(t, out, "last backed up")

	out, err = runCLI(t, "--root", root, "history", "ironman")
	require.NoError(t, err)
	assert.Equal(t, 2, bytes.Count([]byte(out), []byte("ironman.ck3")))

	archivePath := filepath.Join(t.TempDir(), "ironman.tar.zst")
	out, err = runCLI(t, "--root", root, "archive", "ironman", "-o", archivePath)
	require.NoError(t, err)
	assert.Contains(t, out, "Archived 2 backups")

	out, err = runCLI(t, "--root", root, "archive", "--list", archivePath)
	require.NoError(t, err)
	assert.Contains(t, out, "ironman__1.ck3")
}

func TestStatusEmpty(t *testing.T) {
	root := setupRoot(t)

	out, err := runCLI(t, "--root", root, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "No backups in")
}

func TestArchiveUnknownSave(t *testing.T) {
	root := setupRoot(t)

	_, err := runCLI(t, "--root", root, "archive", "nobody", "--list=false", "-o", filepath.Join(t.TempDir(), "x.tar.zst"))
	assert.Error(t, err)
}

func TestStemOf(t *testing.T) {
	assert.Equal(t, "ironman", stemOf("ironman"))
	assert.Equal(t, "ironman", stemOf("ironman.ck3"))
	assert.Equal(t, "ironman", stemOf(filepath.Join("saves", "ironman.ck3")))
}
