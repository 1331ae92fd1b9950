// keylens counts global key and mouse presses.
//
//	keylens run              Run the counting daemon in the foreground
//	keylens status           Show daemon status and totals
//	keylens top              Show the most pressed keys
//	keylens export           Write counts as CSV
//	keylens reset            Discard all counts
//	keylens devices          List input devices (Linux)
//
// Query commands read the persisted snapshot, so they work whether or not
// the daemon is running. Control commands signal the running daemon.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"keylens/internal/config"
	"keylens/internal/logging"
	"keylens/internal/stats"
	"keylens/internal/store"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	configPath string
	logLevel   string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "keylens",
		Short:        "Count global key and mouse presses",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: search ., config dir, data dir)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")

	rootCmd.AddCommand(
		newRunCmd(),
		newStatusCmd(),
		newTopCmd(),
		newTotalsCmd(),
		newCategoriesCmd(),
		newDailyCmd(),
		newExportCmd(),
		newResetCmd(),
		newRecoverCmd(),
		newStopCmd(),
		newValidateCmd(),
		newDevicesCmd(),
		newConfigCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

// resolveConfigPath returns the --config flag, an existing config file, or
// the default location, in that order.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if found := config.FindConfigFile(); found != "" {
		return found
	}
	return config.ConfigPath()
}

func loadConfig() (*config.Config, *config.Loader, error) {
	loader := config.NewLoader(resolveConfigPath())
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config %s: %w", loader.Path(), err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, loader, nil
}

func newLogger(cfg *config.Config) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(cfg.Logging.Format)
	if err != nil {
		return nil, err
	}

	lc := logging.DefaultConfig()
	lc.Level = level
	lc.Format = format
	lc.Output = cfg.Logging.Output
	if cfg.Logging.FilePath != "" {
		lc.FilePath = cfg.Logging.FilePath
	}
	lc.MaxSize = int64(cfg.Logging.MaxSizeMB)
	lc.MaxBackups = cfg.Logging.MaxBackups
	lc.MaxAge = cfg.Logging.MaxAgeDays
	lc.Compress = cfg.Logging.Compress
	return logging.New(lc)
}

func storeConfig(cfg *config.Config) store.Config {
	return store.Config{
		Type: cfg.Storage.Type,
		Path: cfg.Storage.Path,
		Dir:  cfg.DataDir(),
	}
}

// openSnapshot loads the persisted snapshot into a read-only engine.
func openSnapshot(cfg *config.Config) (*stats.Engine, error) {
	backend, err := store.Open(storeConfig(cfg))
	if err != nil {
		return nil, err
	}
	defer backend.Close()

	snap, err := backend.Load()
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", backend.Path(), err)
	}
	return stats.New(snap, nil, stats.WithIntervalCap(cfg.IntervalCap())), nil
}

// writeFresh replaces the persisted snapshot with an empty one.
func writeFresh(cfg *config.Config, now time.Time) (string, error) {
	sc := storeConfig(cfg)
	if err := os.MkdirAll(filepath.Dir(sc.ResolvePath()), 0700); err != nil {
		return "", err
	}
	backend, err := store.Open(sc)
	if err != nil {
		return "", err
	}
	defer backend.Close()

	if err := backend.Save(store.NewSnapshot(now)); err != nil {
		return "", fmt.Errorf("save %s: %w", backend.Path(), err)
	}
	return backend.Path(), nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "keylens %s\n", version)
		},
	}
}
