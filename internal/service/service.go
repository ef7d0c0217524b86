// internal/service/service.go
package service

import (
	"context"
	"fmt"

	"ck3watch/internal/backup"
	"ck3watch/internal/config"
	"ck3watch/internal/errors"
	"ck3watch/internal/ledger"
	"ck3watch/internal/lock"
	"ck3watch/internal/logging"
	"ck3watch/internal/watch"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const Name = "Crusader Kings III Save Watcher"

// Service wires the backup pipeline to the save directory watcher.
type Service struct {
	Config  *config.Config
	Manager *backup.Manager
	Ledger  *ledger.Ledger
	Logger  *zap.Logger

	coordinator *watch.Coordinator
	ledgerErr   error
}

func New(cfg *config.Config, logger *zap.Logger) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	logger = logging.Named(logger, "service")

	s := &Service{Config: cfg, Logger: logger}

	// The ledger is informational; backups go ahead without it.
	opts := backup.Options{}
	if !cfg.Ledger.Disable {
		l, err := ledger.Open(cfg.LedgerDir())
		if err != nil {
			logger.Warn("backup history disabled", zap.String("path", cfg.LedgerDir()), zap.Error(err))
			s.ledgerErr = err
		} else {
			s.Ledger = l
			opts.Recorder = l
		}
	}

	fs := afero.NewOsFs()
	manager, err := backup.NewManager(fs, cfg.BackupDir(), logger, opts)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("creating backup manager: %w", err)
	}
	s.Manager = manager

	s.coordinator = watch.NewCoordinator(cfg.SaveDir(), manager, logger, watch.Options{
		Fs:        fs,
		QueueSize: cfg.QueueSize,
		Reconcile: true,
	})
	return s, nil
}

// Run creates the backup directory and watches the save directory until
// ctx is cancelled. The backup directory stays locked while it runs.
func (s *Service) Run(ctx context.Context) error {
	lk, err := s.lockBackups()
	if err != nil {
		return err
	}
	defer lk.Release()

	return s.coordinator.Run(ctx)
}

// BackupNow runs the pipeline once for each path, stopping at the first
// error. It refuses to run while another process holds the backup
// directory or the ledger.
func (s *Service) BackupNow(paths []string) (map[string]backup.Outcome, error) {
	if s.ledgerErr != nil {
		return nil, errors.LockedError(s.Config.LedgerDir(), s.ledgerErr)
	}
	lk, err := s.lockBackups()
	if err != nil {
		return nil, err
	}
	defer lk.Release()

	outcomes := make(map[string]backup.Outcome, len(paths))
	for _, path := range paths {
		outcome, err := s.Manager.Process(path)
		if err != nil {
			return outcomes, fmt.Errorf("backing up %s: %w", path, err)
		}
		outcomes[path] = outcome
	}
	return outcomes, nil
}

func (s *Service) lockBackups() (*lock.Lock, error) {
	if err := s.Manager.EnsureDir(); err != nil {
		return nil, fmt.Errorf("creating backup directory: %w", err)
	}
	lk, err := lock.Acquire(s.Manager.Dir())
	if err != nil {
		return nil, fmt.Errorf("locking backup directory: %w", err)
	}
	return lk, nil
}

func (s *Service) Close() error {
	if s.Ledger != nil {
		if err := s.Ledger.Close(); err != nil {
			return fmt.Errorf("closing ledger: %w", err)
		}
		s.Ledger = nil
	}
	return nil
}
