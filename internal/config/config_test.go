package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Version != Version {
		t.Errorf("expected version %d, got %d", Version, cfg.Version)
	}
	if cfg.Storage.Type != "file" {
		t.Errorf("expected file storage, got %s", cfg.Storage.Type)
	}
	if cfg.Debounce() != 2*time.Second {
		t.Errorf("expected 2s debounce, got %v", cfg.Debounce())
	}
	if cfg.Supervisor.RetryPeriod() != 3*time.Second || cfg.Supervisor.HealthPeriod() != 5*time.Second {
		t.Errorf("unexpected supervisor periods %+v", cfg.Supervisor)
	}
	if cfg.Supervisor.RestartDelay() != 500*time.Millisecond {
		t.Errorf("unexpected restart delay %v", cfg.Supervisor.RestartDelay())
	}
	if cfg.Stats.MilestoneInterval != 1000 {
		t.Errorf("expected milestone interval 1000, got %d", cfg.Stats.MilestoneInterval)
	}
	if len(Check(cfg)) != 0 {
		t.Errorf("default config has issues: %v", Check(cfg))
	}
}

func TestKeylensDirOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("KEYLENS_DATA_DIR", dir)

	if KeylensDir() != dir {
		t.Errorf("expected %s, got %s", dir, KeylensDir())
	}
	if ConfigPath() != filepath.Join(dir, "config.toml") {
		t.Errorf("unexpected config path %s", ConfigPath())
	}
	if DefaultConfig().DataDir() != dir {
		t.Errorf("data dir should follow override")
	}
}

func TestLoadNonexistent(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Stats.MilestoneInterval != 1000 {
		t.Errorf("expected defaults, got %+v", cfg.Stats)
	}
}

func TestLoadFormats(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"config.toml": `
version = 2

[storage]
type = "sqlite"

[stats]
milestone_interval = 50
`,
		"config.json": `{"version": 2, "storage": {"type": "sqlite"}, "stats": {"milestone_interval": 50}}`,
		"config.yaml": `
version: 2
storage:
  type: sqlite
stats:
  milestone_interval: 50
`,
	}

	for name, content := range files {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			writeFile(t, path, content)

			cfg, err := Load(path)
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if cfg.Storage.Type != "sqlite" {
				t.Errorf("expected sqlite, got %s", cfg.Storage.Type)
			}
			if cfg.Stats.MilestoneInterval != 50 {
				t.Errorf("expected 50, got %d", cfg.Stats.MilestoneInterval)
			}
			// Unset fields keep their defaults.
			if cfg.Supervisor.RetrySec != 3 || !cfg.Capture.Mouse {
				t.Errorf("defaults lost: %+v %+v", cfg.Supervisor, cfg.Capture)
			}
		})
	}
}

func TestLoadInvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, "[storage\ntype = ")

	if _, err := Load(path); err == nil {
		t.Error("expected decode error")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, "[stats]\nmilestone_interval = 0\n")

	_, err := Load(path)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	if !strings.Contains(err.Error(), "stats.milestone_interval") {
		t.Errorf("error should name the field: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"storage type", func(c *Config) { c.Storage.Type = "redis" }, "storage.type"},
		{"debounce range", func(c *Config) { c.Storage.DebounceMs = -1 }, "storage.debounce_ms"},
		{"retry", func(c *Config) { c.Supervisor.RetrySec = 0 }, "supervisor.retry_sec"},
		{"tick", func(c *Config) { c.Supervisor.TickMs = 1 }, "supervisor.tick_ms"},
		{"interval cap", func(c *Config) { c.Stats.IntervalCapMs = 0 }, "stats.interval_cap_ms"},
		{"backend", func(c *Config) { c.Notify.Backend = "growl" }, "notify.backend"},
		{"log level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"log file", func(c *Config) { c.Logging.Output = "file"; c.Logging.FilePath = "" }, "logging.file_path"},
		{"version", func(c *Config) { c.Version = 9 }, "version"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			var verrs ValidationErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("expected ValidationErrors, got %v", err)
			}
			if verrs[0].Field != tt.field {
				t.Errorf("expected field %s, got %s", tt.field, verrs[0].Field)
			}
		})
	}
}

func TestCheckWarnings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.DebounceMs = 0
	cfg.Notify.Backend = "none"

	issues := Check(cfg)
	if issues.HasErrors() {
		t.Fatalf("warnings reported as errors: %v", issues)
	}
	if len(issues.Warnings()) != 2 {
		t.Errorf("expected 2 warnings, got %v", issues.Warnings())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("warnings should not fail validation: %v", err)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("KEYLENS_STORAGE_TYPE", "sqlite")
	t.Setenv("KEYLENS_SIMULATE", "true")
	t.Setenv("KEYLENS_MILESTONE_INTERVAL", "25")
	t.Setenv("KEYLENS_LOG_LEVEL", "debug")
	t.Setenv("KEYLENS_CAPTURE_MOUSE", "not-a-bool")

	cfg := DefaultConfig()
	cfg.ApplyEnvOverrides()

	if cfg.Storage.Type != "sqlite" {
		t.Errorf("storage type not overridden")
	}
	if !cfg.Capture.Simulate {
		t.Errorf("simulate not overridden")
	}
	if cfg.Stats.MilestoneInterval != 25 {
		t.Errorf("milestone interval not overridden: %d", cfg.Stats.MilestoneInterval)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level not overridden")
	}
	if !cfg.Capture.Mouse {
		t.Errorf("invalid bool should be ignored")
	}
}

func TestMigrateV1(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	writeFile(t, path, `
version = 1

[capture]
mouse = false
retry_sec = 10
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Version != Version {
		t.Errorf("expected version %d, got %d", Version, cfg.Version)
	}
	if cfg.Supervisor.RetrySec != 10 {
		t.Errorf("retry_sec not moved: %+v", cfg.Supervisor)
	}
	if cfg.Capture.RetrySec != 0 || cfg.Capture.Mouse {
		t.Errorf("unexpected capture section %+v", cfg.Capture)
	}

	backups, _ := filepath.Glob(path + ".backup-*")
	if len(backups) != 1 {
		t.Errorf("expected one backup, got %v", backups)
	}

	history, err := GetMigrationHistory(dir)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].FromVersion != 1 || history[0].ToVersion != 2 {
		t.Errorf("unexpected history %+v", history)
	}
}

func TestMigrateConfigFillsSupervisor(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Version = 1
	cfg.Supervisor = SupervisorConfig{}

	result, err := MigrateConfig(cfg, "")
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if cfg.Supervisor != DefaultConfig().Supervisor {
		t.Errorf("supervisor not defaulted: %+v", cfg.Supervisor)
	}
	if len(result.Changes) != 4 {
		t.Errorf("expected 4 changes, got %v", result.Changes)
	}

	result, err = MigrateConfig(cfg, "")
	if err != nil || result != nil {
		t.Errorf("current config should not migrate: %v %v", result, err)
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"config.toml", "config.json", "config.yaml"} {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Storage.Type = "sqlite"
			cfg.Notify.Backend = "dbus"
			cfg.Stats.MilestoneInterval = 500

			path := filepath.Join(dir, "nested", name)
			if err := SaveConfig(cfg, path); err != nil {
				t.Fatalf("save: %v", err)
			}

			loaded, err := Load(path)
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if *loaded != *cfg {
				t.Errorf("round trip mismatch:\n got %+v\nwant %+v", loaded, cfg)
			}
		})
	}
}

func TestEncodeTOMLOmitsDeprecatedField(t *testing.T) {
	data, err := EncodeTOML(DefaultConfig())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	text := string(data)
	if strings.Contains(text, "retry_sec = 0") {
		t.Errorf("deprecated capture.retry_sec written: %s", text)
	}
	if !strings.HasPrefix(text, "# keylens configuration") {
		t.Errorf("missing header: %s", text)
	}
	if !strings.Contains(text, "[supervisor]") {
		t.Errorf("missing supervisor section: %s", text)
	}
}

func TestLoadOrCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	_, created, err := LoadOrCreate(path)
	if err != nil || !created {
		t.Fatalf("expected creation, got %v %v", created, err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("file not written: %v", err)
	}

	_, created, err = LoadOrCreate(path)
	if err != nil || created {
		t.Errorf("expected existing file to load, got %v %v", created, err)
	}
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Storage.Path = filepath.Join(dir, "data", "counts.json")
	cfg.Logging.FilePath = filepath.Join(dir, "logs", "keylens.log")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	for _, sub := range []string{"data", "logs"} {
		if info, err := os.Stat(filepath.Join(dir, sub)); err != nil || !info.IsDir() {
			t.Errorf("%s not created", sub)
		}
	}
}

func TestFindConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("KEYLENS_DATA_DIR", filepath.Join(dir, "data"))
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	t.Setenv("HOME", dir)

	if got := FindConfigFile(); got != "" {
		t.Fatalf("expected nothing, got %s", got)
	}

	writeFile(t, filepath.Join(dir, "config.yaml"), "version: 2\n")
	if got := FindConfigFile(); got != filepath.Join(".", "config.yaml") {
		t.Errorf("unexpected %s", got)
	}
}

func TestLoaderWatchReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, "[stats]\nmilestone_interval = 100\n")

	l := NewLoader(path)
	l.delay = 10 * time.Millisecond
	if _, err := l.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}

	changed := make(chan *Config, 4)
	l.OnChange(func(c *Config) { changed <- c })
	if err := l.Watch(); err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer l.Close()

	writeFile(t, path, "[stats]\nmilestone_interval = 7\n")

	select {
	case c := <-changed:
		if c.Stats.MilestoneInterval != 7 {
			t.Errorf("expected 7, got %d", c.Stats.MilestoneInterval)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no reload")
	}
	if l.Config().Stats.MilestoneInterval != 7 {
		t.Errorf("loader config not updated")
	}

	// An invalid edit is reported and leaves the config alone.
	writeFile(t, path, "[stats]\nmilestone_interval = -3\n")
	select {
	case err := <-l.Errors():
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("unexpected error %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no error reported")
	}
	if l.Config().Stats.MilestoneInterval != 7 {
		t.Errorf("invalid edit replaced config")
	}
}
