// internal/config/config.go
package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"ck3watch/internal/errors"
)

const (
	saveGamesDir = "save games"
	backupsDir   = "backups"
	ledgerDir    = ".ck3watch"
)

type Config struct {
	// RootDir is the game's user directory holding "save games" and "backups".
	RootDir string `json:"root_dir"`

	Ledger struct {
		Path    string `json:"path"`
		Disable bool   `json:"disable"`
	} `json:"ledger"`

	QueueSize   int    `json:"queue_size"`
	Environment string `json:"environment"` // dev, prod
	LogLevel    string `json:"log_level"`   // debug, info, warn, error
}

// DefaultRoot resolves the Crusader Kings III user directory.
// CK3WATCH_ROOT wins over the home-directory default.
func DefaultRoot() (string, error) {
	if root := os.Getenv("CK3WATCH_ROOT"); root != "" {
		return root, nil
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "", errors.ConfigError("cannot determine user home directory", err)
	}
	return filepath.Join(home, "Documents", "Paradox Interactive", "Crusader Kings III"), nil
}

func Default() (*Config, error) {
	root, err := DefaultRoot()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		RootDir:     root,
		QueueSize:   64,
		Environment: "prod",
		LogLevel:    "info",
	}
	return cfg, nil
}

// Load reads a JSON config file. Fields left empty keep their defaults.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.ConfigError("opening config file", err)
	}
	defer file.Close()

	var config Config
	if err := json.NewDecoder(file).Decode(&config); err != nil {
		return nil, errors.ConfigError("decoding config file", err)
	}

	if err := config.applyDefaults(); err != nil {
		return nil, err
	}
	return &config, nil
}

// FromEnv loads the file named by CK3WATCH_CONFIG, or the defaults when
// the variable is unset.
func FromEnv() (*Config, error) {
	if path := os.Getenv("CK3WATCH_CONFIG"); path != "" {
		return Load(path)
	}
	return Default()
}

func (c *Config) applyDefaults() error {
	if c.RootDir == "" {
		root, err := DefaultRoot()
		if err != nil {
			return err
		}
		c.RootDir = root
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.Environment == "" {
		c.Environment = "prod"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	return nil
}

func (c *Config) SaveDir() string {
	return filepath.Join(c.RootDir, saveGamesDir)
}

func (c *Config) BackupDir() string {
	return filepath.Join(c.RootDir, backupsDir)
}

func (c *Config) LedgerDir() string {
	if c.Ledger.Path != "" {
		return c.Ledger.Path
	}
	return filepath.Join(c.RootDir, ledgerDir)
}

func (c *Config) Development() bool {
	return c.Environment == "dev"
}
