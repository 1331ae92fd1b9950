package daemon

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
)

// RestartCountEnv carries the number of exec restarts into the new image.
const RestartCountEnv = "KEYLENS_RESTART_COUNT"

// DefaultMaxRestarts bounds consecutive exec restarts.
const DefaultMaxRestarts = 5

// ErrRestartLimit is returned once MaxRestarts restarts have happened.
var ErrRestartLimit = errors.New("restart limit reached")

// ExecRestarter replaces the current process image with a fresh copy of
// the same executable, keeping PID, arguments and environment. Counts are
// flushed first so nothing recorded since the last save is lost.
type ExecRestarter struct {
	Flush       func() error
	MaxRestarts int
	Logger      *slog.Logger

	executable func() (string, error)
	exec       func(path string, args, env []string) error
}

// NewExecRestarter returns a restarter that calls flush before exec.
func NewExecRestarter(flush func() error, logger *slog.Logger) *ExecRestarter {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecRestarter{
		Flush:       flush,
		MaxRestarts: DefaultMaxRestarts,
		Logger:      logger,
		executable:  os.Executable,
		exec:        execProcess,
	}
}

// RestartCount returns how many exec restarts led to this process.
func RestartCount() int {
	n, err := strconv.Atoi(os.Getenv(RestartCountEnv))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// Restart flushes and execs. It only returns on failure.
func (r *ExecRestarter) Restart() error {
	count := RestartCount()
	if r.MaxRestarts > 0 && count >= r.MaxRestarts {
		return fmt.Errorf("%w (%d)", ErrRestartLimit, count)
	}

	if r.Flush != nil {
		if err := r.Flush(); err != nil {
			r.Logger.Warn("flush before restart failed", "error", err)
		}
	}

	path, err := r.executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}

	env := withEnv(os.Environ(), RestartCountEnv, strconv.Itoa(count+1))
	r.Logger.Info("exec restart", "path", path, "restart", count+1)
	if err := r.exec(path, os.Args, env); err != nil {
		return fmt.Errorf("exec %s: %w", path, err)
	}
	return nil
}

func withEnv(env []string, key, value string) []string {
	prefix := key + "="
	out := make([]string, 0, len(env)+1)
	for _, kv := range env {
		if len(kv) >= len(prefix) && kv[:len(prefix)] == prefix {
			continue
		}
		out = append(out, kv)
	}
	return append(out, prefix+value)
}
