package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"ck3watch/internal/backup"
	"ck3watch/internal/config"
	"ck3watch/internal/errors"
	"ck3watch/internal/ledger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig(t *testing.T) *config.Config {
	t.Setenv("CK3WATCH_ROOT", t.TempDir())
	cfg, err := config.Default()
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(cfg.SaveDir(), 0755))
	return cfg
}

func TestServiceRun(t *testing.T) {
	cfg := testConfig(t)
	s, err := New(cfg, zap.NewNop())
	require.NoError(t, err)
	defer s.Close()
	require.NotNil(t, s.Ledger)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()

	// Backup directory is created at start.
	require.Eventually(t, func() bool {
		_, err := os.Stat(cfg.BackupDir())
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(cfg.SaveDir(), "ironman.ck3"), []byte("year 867"), 0644))
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(filepath.Join(cfg.BackupDir(), "ironman.ck3"))
		return err == nil && string(data) == "year 867"
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-errc)

	records, err := s.Ledger.History("ironman")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "ironman.ck3", records[0].SaveName)
}

func TestBackupNow(t *testing.T) {
	cfg := testConfig(t)
	cfg.Ledger.Disable = true

	s, err := New(cfg, nil)
	require.NoError(t, err)
	defer s.Close()
	assert.Nil(t, s.Ledger)

	path := filepath.Join(cfg.SaveDir(), "ironman.ck3")
	require.NoError(t, os.WriteFile(path, []byte("year 867"), 0644))

	outcomes, err := s.BackupNow([]string{path})
	require.NoError(t, err)
	assert.Equal(t, backup.OutcomeBackedUp, outcomes[path])

	outcomes, err = s.BackupNow([]string{path})
	require.NoError(t, err)
	assert.Equal(t, backup.OutcomeDuplicate, outcomes[path])
}

func TestRunWithoutSaveDirectory(t *testing.T) {
	t.Setenv("CK3WATCH_ROOT", t.TempDir())
	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.Ledger.Disable = true

	s, err := New(cfg, nil)
	require.NoError(t, err)
	assert.Error(t, s.Run(context.Background()))
}

func TestBackupNowRefusesWhileLedgerHeld(t *testing.T) {
	cfg := testConfig(t)

	held, err := ledger.Open(cfg.LedgerDir())
	require.NoError(t, err)
	defer held.Close()

	s, err := New(cfg, nil)
	require.NoError(t, err)
	defer s.Close()
	assert.Nil(t, s.Ledger)

	path := filepath.Join(cfg.SaveDir(), "ironman.ck3")
	require.NoError(t, os.WriteFile(path, []byte("year 867"), 0644))

	_, err = s.BackupNow([]string{path})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeLocked))

	_, err = os.Stat(filepath.Join(cfg.BackupDir(), "ironman.ck3"))
	assert.True(t, os.IsNotExist(err))
}

func TestBackupNowRefusesWhileWatching(t *testing.T) {
	cfg := testConfig(t)
	cfg.Ledger.Disable = true

	watcher, err := New(cfg, nil)
	require.NoError(t, err)
	defer watcher.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- watcher.Run(ctx) }()

	// Reconciliation backs up the existing save once the watcher holds the
	// backup directory.
	path := filepath.Join(cfg.SaveDir(), "ironman.ck3")
	require.NoError(t, os.WriteFile(path, []byte("year 867"), 0644))
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(filepath.Join(cfg.BackupDir(), "ironman.ck3"))
		return err == nil && string(data) == "year 867"
	}, 5*time.Second, 20*time.Millisecond)

	oneOff, err := New(cfg, nil)
	require.NoError(t, err)
	defer oneOff.Close()

	require.NoError(t, os.WriteFile(path, []byte("year 868"), 0644))
	_, err = oneOff.BackupNow([]string{path})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeLocked))

	cancel()
	require.NoError(t, <-errc)

	_, err = oneOff.BackupNow([]string{path})
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(cfg.BackupDir(), "ironman.ck3"))
	require.NoError(t, err)
	assert.Equal(t, "year 868", string(data))
}
