package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// MigrationResult contains the result of a configuration migration.
type MigrationResult struct {
	FromVersion int       `json:"from_version"`
	ToVersion   int       `json:"to_version"`
	MigratedAt  time.Time `json:"migrated_at"`
	Backup      string    `json:"backup,omitempty"`
	Changes     []string  `json:"changes,omitempty"`
	Warnings    []string  `json:"warnings,omitempty"`
}

// MigrateConfig migrates a configuration from an older version to the current version.
// When configPath is set, a backup of the file is written first.
func MigrateConfig(cfg *Config, configPath string) (*MigrationResult, error) {
	if cfg.Version >= Version {
		return nil, nil
	}

	result := &MigrationResult{
		FromVersion: cfg.Version,
		ToVersion:   Version,
		MigratedAt:  time.Now().UTC(),
	}

	if configPath != "" {
		backup, err := backupConfig(configPath)
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("could not create backup: %v", err))
		} else {
			result.Backup = backup
		}
	}

	for cfg.Version < Version {
		changes, warnings, err := applyMigration(cfg)
		if err != nil {
			return result, fmt.Errorf("migration from v%d to v%d failed: %w", cfg.Version, cfg.Version+1, err)
		}
		result.Changes = append(result.Changes, changes...)
		result.Warnings = append(result.Warnings, warnings...)
	}

	return result, nil
}

// applyMigration applies a single version upgrade.
func applyMigration(cfg *Config) (changes []string, warnings []string, err error) {
	switch cfg.Version {
	case 1:
		changes, warnings = migrateV1ToV2(cfg)
	default:
		return nil, nil, fmt.Errorf("unknown version %d", cfg.Version)
	}

	cfg.Version++
	return changes, warnings, nil
}

// migrateV1ToV2 introduces the supervisor section. V1 only knew the
// permission retry period, stored under capture.
func migrateV1ToV2(cfg *Config) (changes []string, warnings []string) {
	defaults := DefaultConfig().Supervisor

	if cfg.Capture.RetrySec > 0 {
		cfg.Supervisor.RetrySec = cfg.Capture.RetrySec
		changes = append(changes, "moved capture.retry_sec to supervisor.retry_sec")
	}
	cfg.Capture.RetrySec = 0

	if cfg.Supervisor.RetrySec <= 0 {
		cfg.Supervisor.RetrySec = defaults.RetrySec
		changes = append(changes, "set default supervisor.retry_sec")
	}
	if cfg.Supervisor.HealthSec <= 0 {
		cfg.Supervisor.HealthSec = defaults.HealthSec
		changes = append(changes, "set default supervisor.health_sec")
	}
	if cfg.Supervisor.RestartDelayMs <= 0 {
		cfg.Supervisor.RestartDelayMs = defaults.RestartDelayMs
		changes = append(changes, "set default supervisor.restart_delay_ms")
	}
	if cfg.Supervisor.TickMs <= 0 {
		cfg.Supervisor.TickMs = defaults.TickMs
		changes = append(changes, "set default supervisor.tick_ms")
	}

	return changes, warnings
}

// backupConfig creates a timestamped copy of the config file.
func backupConfig(configPath string) (string, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("read config: %w", err)
	}

	backupPath := configPath + ".backup-" + time.Now().Format("20060102-150405")
	if err := os.WriteFile(backupPath, data, 0600); err != nil {
		return "", fmt.Errorf("write backup: %w", err)
	}
	return backupPath, nil
}

// SaveConfig saves the configuration to a file. The format follows the
// extension; anything other than .json, .yaml or .yml is written as TOML.
func SaveConfig(cfg *Config, path string) error {
	var data []byte
	var err error

	switch filepath.Ext(path) {
	case ".json":
		data, err = json.MarshalIndent(cfg, "", "  ")
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	default:
		data, err = EncodeTOML(cfg)
	}
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// EncodeTOML renders cfg as a commented TOML document.
func EncodeTOML(cfg *Config) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# keylens configuration\n# Version %d\n\n", cfg.Version)
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func historyPath(dir string) string {
	return filepath.Join(dir, "migration_history.json")
}

// GetMigrationHistory returns the migrations recorded in dir.
func GetMigrationHistory(dir string) ([]MigrationResult, error) {
	data, err := os.ReadFile(historyPath(dir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read migration history: %w", err)
	}

	var history []MigrationResult
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("parse migration history: %w", err)
	}
	return history, nil
}

// SaveMigrationHistory appends result to the history file in dir.
func SaveMigrationHistory(dir string, result *MigrationResult) error {
	history, err := GetMigrationHistory(dir)
	if err != nil {
		history = nil
	}
	history = append(history, *result)

	data, err := json.MarshalIndent(history, "", "  ")
	if err != nil {
		return fmt.Errorf("encode migration history: %w", err)
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	if err := os.WriteFile(historyPath(dir), data, 0600); err != nil {
		return fmt.Errorf("write migration history: %w", err)
	}
	return nil
}
