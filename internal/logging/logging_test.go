package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
		hasError bool
	}{
		{"debug", LevelDebug, false},
		{"DEBUG", LevelDebug, false},
		{"info", LevelInfo, false},
		{"", LevelInfo, false},
		{"warn", LevelWarn, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"ERROR", LevelError, false},
		{"invalid", LevelInfo, true},
	}

	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			level, err := ParseLevel(test.input)
			if test.hasError && err == nil {
				t.Error("expected error, got nil")
			}
			if !test.hasError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if level != test.expected {
				t.Errorf("expected %v, got %v", test.expected, level)
			}
		})
	}
}

func TestLevelString(t *testing.T) {
	tests := []struct {
		level    Level
		expected string
	}{
		{LevelDebug, "debug"},
		{LevelInfo, "info"},
		{LevelWarn, "warn"},
		{LevelError, "error"},
	}

	for _, test := range tests {
		t.Run(test.expected, func(t *testing.T) {
			if result := LevelString(test.level); result != test.expected {
				t.Errorf("expected %q, got %q", test.expected, result)
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("JSON"); err != nil || f != FormatJSON {
		t.Errorf("ParseFormat(JSON) = %v, %v", f, err)
	}
	if f, err := ParseFormat(""); err != nil || f != FormatText {
		t.Errorf("ParseFormat(\"\") = %v, %v", f, err)
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("expected error for xml")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != LevelInfo {
		t.Errorf("expected default level Info, got %v", cfg.Level)
	}
	if cfg.Output != "stderr" {
		t.Errorf("expected default output stderr, got %s", cfg.Output)
	}
	if cfg.Component != "keylens" {
		t.Errorf("expected component keylens, got %s", cfg.Component)
	}
	if filepath.Base(cfg.FilePath) != "keylens.log" {
		t.Errorf("unexpected default log file %s", cfg.FilePath)
	}
}

func TestLoggerWritesComponent(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Format = FormatJSON
	cfg.Writer = &buf

	logger, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Close()

	logger.WithComponent("store").Info("saved", "writes", 3)

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("output is not JSON: %v: %s", err, buf.String())
	}
	if record["msg"] != "saved" {
		t.Errorf("unexpected msg %v", record["msg"])
	}
	if record["component"] != "store" {
		t.Errorf("expected component store, got %v", record["component"])
	}
	if logger.FilePath() != "" {
		t.Errorf("stream logger reported a file path")
	}
}

func TestLoggerRedacts(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Writer = &buf

	logger, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	logger.Info("dbus", "token", "abc123", "label", "a")

	out := buf.String()
	if strings.Contains(out, "abc123") {
		t.Errorf("token was not redacted: %s", out)
	}
	if !strings.Contains(out, "label=a") {
		t.Errorf("label should not be redacted: %s", out)
	}
}

func TestShouldRedact(t *testing.T) {
	tests := []struct {
		key      string
		expected bool
	}{
		{"password", true},
		{"PASSWORD", true},
		{"secret", true},
		{"api_key", true},
		{"auth_token", true},
		{"credential", true},
		{"cookie", true},
		{"key", false},
		{"label", false},
		{"count", false},
		{"component", false},
	}

	for _, test := range tests {
		t.Run(test.key, func(t *testing.T) {
			if result := shouldRedact(test.key); result != test.expected {
				t.Errorf("shouldRedact(%q) = %v, expected %v", test.key, result, test.expected)
			}
		})
	}
}

func TestFileLogger(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Output = "file"
	cfg.FilePath = filepath.Join(t.TempDir(), "logs", "keylens.log")

	logger, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	logger.Info("hook attached")
	if err := logger.Sync(); err != nil {
		t.Errorf("sync failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("close failed: %v", err)
	}

	data, err := os.ReadFile(cfg.FilePath)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if !strings.Contains(string(data), "hook attached") {
		t.Errorf("log file missing record: %s", data)
	}
	if logger.FilePath() != cfg.FilePath {
		t.Errorf("FilePath = %q", logger.FilePath())
	}
}

func TestFileRotatorSizeRotation(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")
	cfg := &Config{
		FilePath:   logPath,
		MaxSize:    1,
		MaxBackups: 3,
	}

	rotator, err := NewFileRotator(cfg)
	if err != nil {
		t.Fatalf("failed to create rotator: %v", err)
	}
	defer rotator.Close()

	line := []byte(strings.Repeat("x", 1023) + "\n")
	for i := 0; i < 1100; i++ {
		if _, err := rotator.Write(line); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	files, err := rotator.Files()
	if err != nil {
		t.Fatalf("failed to list log files: %v", err)
	}
	if len(files) != 2 {
		t.Errorf("expected current file plus one rotated file, got %v", files)
	}
}

func TestFileRotatorDayRotation(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")
	cfg := &Config{FilePath: logPath, MaxSize: 10, MaxBackups: 1, Compress: true}

	rotator, err := NewFileRotator(cfg)
	if err != nil {
		t.Fatalf("failed to create rotator: %v", err)
	}
	defer rotator.Close()

	now := time.Date(2026, 3, 1, 23, 59, 0, 0, time.Local)
	rotator.now = func() time.Time { return now }
	rotator.opened = now

	rotator.Write([]byte("before midnight\n"))
	now = now.Add(2 * time.Minute)
	rotator.Write([]byte("after midnight\n"))

	files, err := rotator.Files()
	if err != nil {
		t.Fatalf("failed to list log files: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected two files, got %v", files)
	}
	if !strings.HasSuffix(files[1], ".log.gz") {
		t.Errorf("rotated file not compressed: %s", files[1])
	}

	data, _ := os.ReadFile(logPath)
	if string(data) != "after midnight\n" {
		t.Errorf("current file = %q", data)
	}
}

func TestCrashHandlerRun(t *testing.T) {
	dir := t.TempDir()
	h := NewCrashHandler(dir, "1.0.0", nil)

	err := h.Run("capture", func() error {
		panic("tap callback exploded")
	})
	if !errors.Is(err, ErrPanic) {
		t.Fatalf("expected ErrPanic, got %v", err)
	}
	if !strings.Contains(err.Error(), "capture") {
		t.Errorf("error should name the task: %v", err)
	}

	reports, err := h.Reports()
	if err != nil {
		t.Fatalf("failed to read reports: %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("expected 1 report, got %d", len(reports))
	}
	r := reports[0]
	if r.PanicValue != "tap callback exploded" || r.Task != "capture" || r.Version != "1.0.0" {
		t.Errorf("unexpected report %+v", r)
	}
	if r.StackTrace == "" {
		t.Error("missing stack trace")
	}
}

func TestCrashHandlerPassesErrors(t *testing.T) {
	h := NewCrashHandler(t.TempDir(), "", nil)
	want := errors.New("boom")

	if err := h.Run("save", func() error { return want }); err != want {
		t.Errorf("expected passthrough error, got %v", err)
	}
	if err := h.Run("save", func() error { return nil }); err != nil {
		t.Errorf("unexpected error %v", err)
	}
	reports, _ := h.Reports()
	if len(reports) != 0 {
		t.Errorf("no reports expected, got %d", len(reports))
	}
}

func TestCrashHandlerCleanup(t *testing.T) {
	dir := t.TempDir()
	h := NewCrashHandler(dir, "", nil)
	h.HandlePanic("a", "x")
	h.HandlePanic("b", "y")

	old := time.Now().Add(-48 * time.Hour)
	files, _ := filepath.Glob(filepath.Join(dir, "crash-*.json"))
	if len(files) != 2 {
		t.Fatalf("expected 2 reports, got %d", len(files))
	}
	os.Chtimes(files[0], old, old)

	if err := h.Cleanup(24 * time.Hour); err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	reports, _ := h.Reports()
	if len(reports) != 1 {
		t.Errorf("expected 1 report after cleanup, got %d", len(reports))
	}
}
