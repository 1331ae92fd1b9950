package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keylens/internal/daemon"
	"keylens/internal/hook"
)

type env struct {
	dir    string
	config string
}

func newEnv(t *testing.T) env {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("KEYLENS_DATA_DIR", dir)
	t.Setenv("KEYLENS_LOG_PATH", filepath.Join(dir, "logs", "keylens.log"))
	t.Setenv("KEYLENS_LOG_LEVEL", "error")
	t.Setenv("KEYLENS_STORAGE_TYPE", "")
	t.Setenv("KEYLENS_STORAGE_PATH", "")
	return env{dir: dir, config: filepath.Join(dir, "config.toml")}
}

func (e env) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--config", e.config}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	e := newEnv(t)
	out, err := e.run(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "keylens dev\n", out)
}

func TestSimulatedRunPersistsCounts(t *testing.T) {
	e := newEnv(t)

	_, err := e.run(t, "hello world", "run", "--simulate", "--once")
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(e.dir, "counts.json"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(e.dir, "keylens.pid"))
	assert.True(t, os.IsNotExist(err), "pid file is released on exit")

	out, err := e.run(t, "", "top", "-n", "2")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "l")
	assert.Contains(t, lines[1], "3")
	assert.Contains(t, lines[2], "o")
	assert.Contains(t, lines[2], "2")

	out, err = e.run(t, "", "totals")
	require.NoError(t, err)
	assert.Contains(t, out, "Lifetime")
	assert.Contains(t, out, "11")

	out, err = e.run(t, "", "export")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "rank,label,total\n1,l,3\n2,o,2\n"), out)

	out, err = e.run(t, "", "export", "--scope", "daily")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "date,label,count\n"), out)

	out, err = e.run(t, "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "stopped")

	out, err = e.run(t, "", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "counts.json: ok")
}

func TestSecondRunAccumulates(t *testing.T) {
	e := newEnv(t)
	_, err := e.run(t, "ab", "run", "--simulate", "--once")
	require.NoError(t, err)
	_, err = e.run(t, "a", "run", "--simulate", "--once")
	require.NoError(t, err)

	out, err := e.run(t, "", "export")
	require.NoError(t, err)
	assert.Contains(t, out, "1,a,2\n")
}

func TestRunRefusesSecondDaemon(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(e.dir, "keylens.pid"), []byte(strconv.Itoa(os.Getppid())), 0600))

	_, err := e.run(t, "", "run", "--simulate", "--once")
	assert.ErrorIs(t, err, daemon.ErrAlreadyRunning)
}

func TestResetWithoutDaemon(t *testing.T) {
	e := newEnv(t)
	_, err := e.run(t, "abc", "run", "--simulate", "--once")
	require.NoError(t, err)

	_, err = e.run(t, "", "reset")
	assert.ErrorContains(t, err, "--yes")

	out, err := e.run(t, "", "reset", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "Counts reset")

	out, err = e.run(t, "", "export")
	require.NoError(t, err)
	assert.Equal(t, "rank,label,total\n", out)
}

func TestControlCommandsNeedDaemon(t *testing.T) {
	e := newEnv(t)
	_, err := e.run(t, "", "stop")
	assert.ErrorIs(t, err, daemon.ErrNotRunning)
	_, err = e.run(t, "", "recover")
	assert.ErrorIs(t, err, daemon.ErrNotRunning)
}

func TestQueryFlagErrors(t *testing.T) {
	e := newEnv(t)
	_, err := e.run(t, "", "top", "--scope", "weekly")
	assert.ErrorContains(t, err, "unknown scope")
	_, err = e.run(t, "", "export", "--scope", "xml")
	assert.Error(t, err)
}

func TestConfigCommands(t *testing.T) {
	e := newEnv(t)

	out, err := e.run(t, "", "config", "path")
	require.NoError(t, err)
	assert.Equal(t, e.config+"\n", out)

	out, err = e.run(t, "", "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, e.config)

	_, err = e.run(t, "", "config", "init")
	assert.ErrorContains(t, err, "already exists")
	_, err = e.run(t, "", "config", "init", "--force")
	assert.NoError(t, err)

	out, err = e.run(t, "", "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "# keylens configuration")
	assert.Contains(t, out, "milestone_interval = 1000")
}

func TestInvalidConfigIsReported(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, os.WriteFile(e.config, []byte("[stats]\nmilestone_interval = -5\n"), 0600))

	_, err := e.run(t, "", "validate")
	assert.Error(t, err)
	_, err = e.run(t, "", "totals")
	assert.Error(t, err)
}

func TestDailyReports(t *testing.T) {
	e := newEnv(t)
	_, err := e.run(t, "aab", "run", "--simulate", "--once")
	require.NoError(t, err)

	out, err := e.run(t, "", "daily")
	require.NoError(t, err)
	assert.Contains(t, out, "Daily totals")

	out, err = e.run(t, "", "daily", "--top", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Top keys per day")
	assert.Contains(t, out, "a")

	out, err = e.run(t, "", "categories")
	require.NoError(t, err)
	assert.Contains(t, out, "Letters")
}

func TestStatusMetricsWithoutDaemon(t *testing.T) {
	e := newEnv(t)
	out, err := e.run(t, "", "status", "--metrics")
	require.NoError(t, err)
	assert.Contains(t, out, "stopped")
	assert.Contains(t, out, "no metrics published")
}

func TestSQLiteBackendRun(t *testing.T) {
	e := newEnv(t)
	t.Setenv("KEYLENS_STORAGE_TYPE", "sqlite")

	_, err := e.run(t, "abba", "run", "--simulate", "--once")
	require.NoError(t, err)

	out, err := e.run(t, "", "export")
	require.NoError(t, err)
	assert.Equal(t, "rank,label,total\n1,a,2\n2,b,2\n", out)

	out, err = e.run(t, "", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "counts.db: ok (schema")
}

func TestDevices(t *testing.T) {
	e := newEnv(t)
	out, err := e.run(t, "", "devices")
	if runtime.GOOS != "linux" {
		require.Error(t, err)
		assert.ErrorIs(t, err, hook.ErrNotAvailable)
		return
	}
	if errors.Is(err, hook.ErrNotAvailable) {
		t.Skip("no /proc/bus/input/devices")
	}
	require.NoError(t, err)
	assert.Contains(t, out, "Input devices")
}
