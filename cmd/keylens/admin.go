package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"keylens/internal/config"
	"keylens/internal/daemon"
	"keylens/internal/hook"
	"keylens/internal/report"
	"keylens/internal/store"
)

var (
	resetYes    bool
	configForce bool
)

func newResetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Discard all counts and start over",
		Long: `Reset zeroes every counter and starts a new counting period. A running
daemon resets its in-memory state and saves it; otherwise the persisted
snapshot is replaced directly.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !resetYes {
				return errors.New("reset discards all counts; pass --yes to confirm")
			}
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}

			err = daemon.NewManager(cfg.DataDir()).Send(daemon.CmdReset)
			switch {
			case err == nil:
				fmt.Fprintln(cmd.OutOrStdout(), "Reset requested from the running daemon.")
				return nil
			case !errors.Is(err, daemon.ErrNotRunning):
				return err
			}

			path, err := writeFresh(cfg, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Counts reset in %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "confirm the reset")
	return cmd
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the config file and the persisted snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			path := resolveConfigPath()

			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "config   %s: ok\n", path)
			for _, w := range config.Check(cfg).Warnings() {
				fmt.Fprintf(out, "  warning: %s\n", w.Error())
			}

			sc := storeConfig(cfg)
			snapPath := sc.ResolvePath()
			if sc.Type == store.TypeSQLite {
				backend, err := store.OpenSQLite(snapPath)
				if err != nil {
					return err
				}
				defer backend.Close()
				db := backend.DB()
				if err := store.ValidateSchema(db); err != nil {
					return fmt.Errorf("snapshot %s: %w", snapPath, err)
				}
				if _, err := backend.Load(); err != nil {
					return fmt.Errorf("snapshot %s: %w", snapPath, err)
				}
				status, err := store.GetMigrationStatus(db)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "snapshot %s: ok (schema %d/%d)\n", snapPath, status.CurrentVersion, status.LatestVersion)
				return nil
			}

			data, err := os.ReadFile(snapPath)
			if errors.Is(err, os.ErrNotExist) {
				fmt.Fprintf(out, "snapshot %s: not created yet\n", snapPath)
				return nil
			}
			if err != nil {
				return err
			}
			if err := store.Validate(data); err != nil {
				return fmt.Errorf("snapshot %s: %w", snapPath, err)
			}
			fmt.Fprintf(out, "snapshot %s: ok\n", snapPath)
			return nil
		},
	}
}

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List the input devices the daemon reads from",
		Long: `Devices lists every input device that reports key or button presses,
with its event node. The daemon needs read access to these nodes, usually
through membership of the "input" group. Only available on Linux.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			devices, err := hook.ListDevices()
			if err != nil {
				return fmt.Errorf("list input devices: %w", err)
			}
			report.New(cmd.OutOrStdout()).Devices(devices)
			return nil
		},
	}
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or create the config file",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as TOML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			data, err := config.EncodeTOML(cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := configPath
			if path == "" {
				path = config.ConfigPath()
			}
			if _, err := os.Stat(path); err == nil && !configForce {
				return fmt.Errorf("%s already exists; pass --force to overwrite", path)
			}
			if err := config.SaveConfig(config.DefaultConfig(), path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&configForce, "force", false, "overwrite an existing file")

	path := &cobra.Command{
		Use:   "path",
		Short: "Print the config file in use",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), resolveConfigPath())
		},
	}

	cmd.AddCommand(show, initCmd, path)
	return cmd
}
