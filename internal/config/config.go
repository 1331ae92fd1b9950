// Package config handles configuration loading, validation, and management for keylens.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Version is the current configuration schema version.
const Version = 2

// Config holds the complete daemon configuration.
type Config struct {
	// Version is the configuration schema version for migrations.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Storage configuration for the counts snapshot.
	Storage StorageConfig `toml:"storage" json:"storage" yaml:"storage"`

	// Capture configuration for the input hook.
	Capture CaptureConfig `toml:"capture" json:"capture" yaml:"capture"`

	// Supervisor periods for keeping the hook attached.
	Supervisor SupervisorConfig `toml:"supervisor" json:"supervisor" yaml:"supervisor"`

	// Stats configuration for the counting engine.
	Stats StatsConfig `toml:"stats" json:"stats" yaml:"stats"`

	// Notify configuration for milestone notifications.
	Notify NotifyConfig `toml:"notify" json:"notify" yaml:"notify"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`
}

// StorageConfig holds persistence configuration.
type StorageConfig struct {
	// Type is the storage backend type: "file" or "sqlite".
	Type string `toml:"type" json:"type" yaml:"type"`

	// Path is the snapshot file. Empty means the default name in the
	// data directory.
	Path string `toml:"path" json:"path" yaml:"path"`

	// DebounceMs is the quiet period before a burst of events is saved.
	DebounceMs int `toml:"debounce_ms" json:"debounce_ms" yaml:"debounce_ms"`
}

// CaptureConfig holds input hook configuration.
type CaptureConfig struct {
	// Simulate replaces the system event tap with events read from stdin.
	Simulate bool `toml:"simulate" json:"simulate" yaml:"simulate"`

	// Mouse enables counting mouse button presses.
	Mouse bool `toml:"mouse" json:"mouse" yaml:"mouse"`

	// RetrySec is the v1 location of supervisor.retry_sec.
	//
	// Deprecated: read only while migrating v1 files.
	RetrySec int `toml:"retry_sec,omitempty" json:"retry_sec,omitempty" yaml:"retry_sec,omitempty"`
}

// SupervisorConfig holds hook supervision periods.
type SupervisorConfig struct {
	RetrySec       int `toml:"retry_sec" json:"retry_sec" yaml:"retry_sec"`
	HealthSec      int `toml:"health_sec" json:"health_sec" yaml:"health_sec"`
	RestartDelayMs int `toml:"restart_delay_ms" json:"restart_delay_ms" yaml:"restart_delay_ms"`
	TickMs         int `toml:"tick_ms" json:"tick_ms" yaml:"tick_ms"`
}

// StatsConfig holds counting engine configuration.
type StatsConfig struct {
	// MilestoneInterval is the per-label count step that raises a
	// milestone notification. Hot-reloadable.
	MilestoneInterval int `toml:"milestone_interval" json:"milestone_interval" yaml:"milestone_interval"`

	// IntervalCapMs is the longest gap between events that still counts
	// toward the mean typing interval.
	IntervalCapMs int `toml:"interval_cap_ms" json:"interval_cap_ms" yaml:"interval_cap_ms"`
}

// NotifyConfig holds milestone notification configuration.
type NotifyConfig struct {
	// Milestones enables milestone notifications.
	Milestones bool `toml:"milestones" json:"milestones" yaml:"milestones"`

	// Backend is "log", "dbus" or "none".
	Backend string `toml:"backend" json:"backend" yaml:"backend"`

	// OverlaySize is how many recent keys the overlay feed keeps.
	OverlaySize int `toml:"overlay_size" json:"overlay_size" yaml:"overlay_size"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is "debug", "info", "warn" or "error".
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is "text" or "json".
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is "stdout", "stderr", "file" or "both".
	Output string `toml:"output" json:"output" yaml:"output"`

	FilePath   string `toml:"file_path" json:"file_path" yaml:"file_path"`
	MaxSizeMB  int    `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" json:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `toml:"compress" json:"compress" yaml:"compress"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: Version,
		Storage: StorageConfig{
			Type:       "file",
			DebounceMs: 2000,
		},
		Capture: CaptureConfig{
			Mouse: true,
		},
		Supervisor: SupervisorConfig{
			RetrySec:       3,
			HealthSec:      5,
			RestartDelayMs: 500,
			TickMs:         1000,
		},
		Stats: StatsConfig{
			MilestoneInterval: 1000,
			IntervalCapMs:     1000,
		},
		Notify: NotifyConfig{
			Milestones:  true,
			Backend:     "log",
			OverlaySize: 32,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   filepath.Join(PlatformLogDir(), "keylens.log"),
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
	}
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(KeylensDir(), "config.toml")
}

// KeylensDir returns the base keylens data directory.
// Uses platform-specific paths or the KEYLENS_DATA_DIR override.
func KeylensDir() string {
	if envDir := os.Getenv("KEYLENS_DATA_DIR"); envDir != "" {
		return envDir
	}
	return PlatformDataDir()
}

// Load reads configuration from path, applies environment overrides,
// migrates old versions, and validates the result. A missing file yields
// the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}
	return NewLoader(path).Load()
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// EnsureDirectories creates the directories the daemon writes into.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.DataDir(),
		filepath.Dir(c.Logging.FilePath),
	}
	if c.Storage.Path != "" {
		dirs = append(dirs, filepath.Dir(c.Storage.Path))
	}

	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// DataDir is the directory holding the snapshot and daemon state.
func (c *Config) DataDir() string {
	if c.Storage.Path != "" {
		return filepath.Dir(c.Storage.Path)
	}
	return KeylensDir()
}

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables are prefixed with KEYLENS_ and use underscores.
// Unparseable numeric or boolean values are ignored.
func (c *Config) ApplyEnvOverrides() {
	// Storage overrides
	if v := os.Getenv("KEYLENS_STORAGE_TYPE"); v != "" {
		c.Storage.Type = v
	}
	if v := os.Getenv("KEYLENS_STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}
	envInt("KEYLENS_STORAGE_DEBOUNCE_MS", &c.Storage.DebounceMs)

	// Capture overrides
	envBool("KEYLENS_SIMULATE", &c.Capture.Simulate)
	envBool("KEYLENS_CAPTURE_MOUSE", &c.Capture.Mouse)

	// Stats overrides
	envInt("KEYLENS_MILESTONE_INTERVAL", &c.Stats.MilestoneInterval)

	// Notify overrides
	if v := os.Getenv("KEYLENS_NOTIFY_BACKEND"); v != "" {
		c.Notify.Backend = v
	}

	// Logging overrides
	if v := os.Getenv("KEYLENS_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("KEYLENS_LOG_OUTPUT"); v != "" {
		c.Logging.Output = v
	}
	if v := os.Getenv("KEYLENS_LOG_PATH"); v != "" {
		c.Logging.FilePath = v
	}
}

func envInt(name string, dst *int) {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*dst = n
		}
	}
}

func envBool(name string, dst *bool) {
	if v := os.Getenv(name); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			*dst = b
		}
	}
}

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// Debounce returns the storage quiet period.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.Storage.DebounceMs) * time.Millisecond
}

// IntervalCap returns the longest gap admitted into the mean interval.
func (c *Config) IntervalCap() time.Duration {
	return time.Duration(c.Stats.IntervalCapMs) * time.Millisecond
}

// RetryPeriod returns the supervisor retry period.
func (s SupervisorConfig) RetryPeriod() time.Duration {
	return time.Duration(s.RetrySec) * time.Second
}

// HealthPeriod returns the supervisor health-check period.
func (s SupervisorConfig) HealthPeriod() time.Duration {
	return time.Duration(s.HealthSec) * time.Second
}

// RestartDelay returns the delay before a process restart.
func (s SupervisorConfig) RestartDelay() time.Duration {
	return time.Duration(s.RestartDelayMs) * time.Millisecond
}

// TickPeriod returns how often the supervisor advances its timers.
func (s SupervisorConfig) TickPeriod() time.Duration {
	return time.Duration(s.TickMs) * time.Millisecond
}
