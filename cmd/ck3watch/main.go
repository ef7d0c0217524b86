// cmd/ck3watch/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"ck3watch/internal/archive"
	"ck3watch/internal/backup"
	"ck3watch/internal/config"
	"ck3watch/internal/ledger"
	"ck3watch/internal/logging"
	"ck3watch/internal/service"
	"ck3watch/shared/utils"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string
	rootDir    string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "ck3watch",
	Short: "ck3watch keeps rotated backups of Crusader Kings III saves",
	Long: service.Name + ` watches the "save games" directory and copies every
new save state into "backups", keeping the three previous versions of each
save as <name>__1.ck3 .. <name>__3.ck3.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a JSON config file (default $CK3WATCH_CONFIG)")
	rootCmd.PersistentFlags().StringVarP(&rootDir, "root", "r", "", "Crusader Kings III user directory (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	var watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Watch the save directory and back up every new save",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			svc, err := service.New(cfg, logger)
			if err != nil {
				return fmt.Errorf("initializing service: %w", err)
			}
			defer svc.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			fmt.Fprintf(cmd.OutOrStdout(), "Watching %s. Press Ctrl+C to exit.\n", cfg.SaveDir())
			return svc.Run(ctx)
		},
	}

	var backupCmd = &cobra.Command{
		Use:   "backup <save>...",
		Short: "Back up the given saves once",
		Long:  `Runs the same duplicate check and rotation as the watcher for each save. Bare file names are looked up in the save directory.`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			svc, err := service.New(cfg, logger)
			if err != nil {
				return fmt.Errorf("initializing service: %w", err)
			}
			defer svc.Close()

			paths := make([]string, len(args))
			for i, arg := range args {
				paths[i] = resolveSave(cfg, arg)
			}

			outcomes, err := svc.BackupNow(paths)
			green := color.New(color.FgGreen).SprintFunc()
			yellow := color.New(color.FgYellow).SprintFunc()
			for _, path := range paths {
				outcome, ok := outcomes[path]
				if !ok {
					continue
				}
				switch outcome {
				case backup.OutcomeBackedUp:
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", green("✓"), filepath.Base(path))
				case backup.OutcomeDuplicate:
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s (already backed up)\n", yellow("="), filepath.Base(path))
				default:
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s (empty or missing)\n", yellow("-"), filepath.Base(path))
				}
			}
			return err
		},
	}

	var statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show the backup chain of every save",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			withHash, _ := cmd.Flags().GetBool("hash")

			fs := afero.NewOsFs()
			sets, unknown, err := backup.List(fs, cfg.BackupDir())
			if err != nil {
				return fmt.Errorf("listing backups: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(sets) == 0 && len(unknown) == 0 {
				fmt.Fprintf(out, "No backups in %s\n", cfg.BackupDir())
				return nil
			}

			// History is optional here; the watcher holds the ledger while it runs.
			var history *ledger.Ledger
			if !cfg.Ledger.Disable {
				if l, err := ledger.Open(cfg.LedgerDir()); err == nil {
					history = l
					defer l.Close()
				}
			}

			bold := color.New(color.Bold).SprintFunc()
			cyan := color.New(color.FgCyan).SprintFunc()
			red := color.New(color.FgRed).SprintFunc()

			fmt.Fprintf(out, "\nBackups in %s:\n\n", cfg.BackupDir())
			for _, set := range sets {
				fmt.Fprintln(out, bold(set.Stem))
				if history != nil {
					last, err := history.Latest(set.Stem)
					if err != nil {
						return fmt.Errorf("reading history: %w", err)
					}
					if last != nil {
						fmt.Fprintf(out, "\tlast backed up %s from %s\n", humanize.Time(last.CreatedAt), last.SaveName)
					}
				}
				for _, slot := range set.Slots {
					line := fmt.Sprintf("\t%s  %-20s %10s  %s",
						cyan(fmt.Sprintf("%-6s", generationLabel(slot.Generation))),
						slot.Name(),
						humanize.Bytes(uint64(slot.Size)),
						humanize.Time(slot.ModTime),
					)
					if withHash {
						hash, err := utils.HashFile(fs, slot.File)
						if err != nil {
							return err
						}
						line += "  " + hash
					}
					fmt.Fprintln(out, line)
				}
				fmt.Fprintln(out)
			}

			if len(unknown) > 0 {
				fmt.Fprintln(out, "Unrecognized files (not managed by ck3watch):")
				for _, name := range unknown {
					fmt.Fprintf(out, "\t%s %s\n", red("?"), name)
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}

	var historyCmd = &cobra.Command{
		Use:   "history [save]",
		Short: "List recorded backups",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := openLedger()
			if err != nil {
				return err
			}
			defer l.Close()

			stem := ""
			if len(args) == 1 {
				stem = stemOf(args[0])
			}
			records, err := l.History(stem)
			if err != nil {
				return fmt.Errorf("reading history: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "No backups recorded")
				return nil
			}

			yellow := color.New(color.FgYellow).SprintFunc()
			for _, r := range records {
				evicted := ""
				if r.Evicted {
					evicted = yellow(" (oldest dropped)")
				}
				fmt.Fprintf(out, "%s  %s  %s  %s  %s%s\n",
					r.ID[:8],
					r.CreatedAt.Format(time.RFC3339),
					r.SaveName,
					humanize.Bytes(uint64(r.Size)),
					r.Fingerprint,
					evicted,
				)
			}
			return nil
		},
	}

	var forgetCmd = &cobra.Command{
		Use:   "forget <save>",
		Short: "Drop the recorded history of a save (backup files are kept)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := openLedger()
			if err != nil {
				return err
			}
			defer l.Close()

			n, err := l.Forget(stemOf(args[0]))
			if err != nil {
				return fmt.Errorf("forgetting history: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d records\n", n)
			return nil
		},
	}

	var archiveCmd = &cobra.Command{
		Use:   "archive <save>",
		Short: "Export the backup chain of a save as a .tar.zst archive",
		Example: `  ck3watch archive ironman -o ironman.tar.zst
  ck3watch archive --list ironman.tar.zst`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			list, _ := cmd.Flags().GetBool("list")
			if list {
				return listArchive(cmd, args[0])
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			output, _ := cmd.Flags().GetString("output")
			level, _ := cmd.Flags().GetInt("level")

			stem := stemOf(args[0])
			if output == "" {
				output = stem + ".tar.zst"
			}

			fs := afero.NewOsFs()
			set, ok, err := backup.Find(fs, cfg.BackupDir(), stem)
			if err != nil {
				return fmt.Errorf("listing backups: %w", err)
			}
			if !ok {
				return fmt.Errorf("no backups of %s in %s", stem, cfg.BackupDir())
			}

			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating archive: %w", err)
			}
			if err := archive.Write(fs, set, f, archive.Options{Level: level}); err != nil {
				f.Close()
				os.Remove(output)
				return fmt.Errorf("writing archive: %w", err)
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("closing archive: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Archived %d backups of %s to %s\n", len(set.Slots), stem, output)
			return nil
		},
	}

	statusCmd.Flags().Bool("hash", false, "Show the fingerprint of each backup")

	archiveCmd.Flags().StringP("output", "o", "", "Archive path (default <save>.tar.zst)")
	archiveCmd.Flags().Int("level", archive.DefaultOptions().Level, "Compression level (1=fastest, 4=best)")
	archiveCmd.Flags().Bool("list", false, "List the contents of an existing archive instead")

	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(forgetCmd)
	rootCmd.AddCommand(archiveCmd)
}

func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.Load(configPath)
	} else {
		cfg, err = config.FromEnv()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if rootDir != "" {
		cfg.RootDir = rootDir
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg, nil
}

func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.NewLogger(cfg.LogLevel, cfg.Development())
	if err != nil {
		return nil, nil, fmt.Errorf("initializing logger: %w", err)
	}
	return cfg, logger, nil
}

func openLedger() (*ledger.Ledger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	l, err := ledger.Open(cfg.LedgerDir())
	if err != nil {
		return nil, fmt.Errorf("%w (is the watcher running?)", err)
	}
	return l, nil
}

func listArchive(cmd *cobra.Command, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()

	entries, err := archive.Entries(f)
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Fprintf(cmd.OutOrStdout(), "%-20s %10s  %s\n", e.Name, humanize.Bytes(uint64(e.Size)), e.ModTime.Format(time.RFC3339))
	}
	return nil
}

// resolveSave treats a bare file name as living in the save directory.
func resolveSave(cfg *config.Config, arg string) string {
	if filepath.Base(arg) == arg {
		if filepath.Ext(arg) == "" {
			arg += backup.Extension
		}
		return filepath.Join(cfg.SaveDir(), arg)
	}
	return arg
}

// stemOf accepts "ironman", "ironman.ck3" or a path to either.
func stemOf(arg string) string {
	name := filepath.Base(arg)
	if filepath.Ext(name) == backup.Extension {
		name = name[:len(name)-len(backup.Extension)]
	}
	return name
}

func generationLabel(gen int) string {
	if gen == 0 {
		return "latest"
	}
	return fmt.Sprintf("-%d", gen)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
