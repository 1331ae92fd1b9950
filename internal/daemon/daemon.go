// Package daemon manages the keylens background process.
//
// The running daemon owns a PID file and a small JSON state file in the
// data directory. Other keylens invocations find it through those files
// and control it with signals: stop, reload, reset, and recover.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrNotRunning is returned when no live daemon owns the PID file.
	ErrNotRunning = errors.New("daemon is not running")

	// ErrAlreadyRunning is returned by Acquire when another live daemon
	// owns the PID file.
	ErrAlreadyRunning = errors.New("daemon is already running")
)

// State is what the daemon publishes about itself.
type State struct {
	PID        int       `json:"pid"`
	StartedAt  time.Time `json:"started_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	Version    string    `json:"version"`
	Backend    string    `json:"backend"`
	StorePath  string    `json:"store_path"`
	ConfigPath string    `json:"config_path,omitempty"`
	Hook       string    `json:"hook"`
	Simulated  bool      `json:"simulated,omitempty"`
	Restarts   int       `json:"restarts,omitempty"`

	// Health is the aggregated component status; Problems lists the
	// components that are not healthy.
	Health   string             `json:"health,omitempty"`
	Problems []string           `json:"problems,omitempty"`
	Metrics  map[string]float64 `json:"metrics,omitempty"`
}

// Status is the combined view of the PID and state files.
type Status struct {
	Running bool
	PID     int
	Uptime  time.Duration
	State   *State
}

// Manager handles daemon lifecycle files.
type Manager struct {
	pidFile   string
	stateFile string
}

// NewManager creates a manager rooted at the data directory.
func NewManager(dataDir string) *Manager {
	return &Manager{
		pidFile:   filepath.Join(dataDir, "keylens.pid"),
		stateFile: filepath.Join(dataDir, "daemon.json"),
	}
}

// PIDFile returns the PID file path.
func (m *Manager) PIDFile() string {
	return m.pidFile
}

// ReadPID reads the daemon's PID from the PID file.
func (m *Manager) ReadPID() (int, error) {
	data, err := os.ReadFile(m.pidFile)
	if err != nil {
		return 0, err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid PID file %s", m.pidFile)
	}
	return pid, nil
}

// IsRunning reports whether the PID file names a live process.
func (m *Manager) IsRunning() bool {
	_, err := m.livePID()
	return err == nil
}

func (m *Manager) livePID() (int, error) {
	pid, err := m.ReadPID()
	if err != nil {
		return 0, ErrNotRunning
	}
	if !processAlive(pid) {
		return 0, ErrNotRunning
	}
	return pid, nil
}

// Acquire writes the current PID. A stale PID file left by a dead
// process is replaced.
func (m *Manager) Acquire() error {
	if pid, err := m.livePID(); err == nil && pid != os.Getpid() {
		return fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, pid)
	}
	return writeFileAtomic(m.pidFile, []byte(strconv.Itoa(os.Getpid())))
}

// WriteState publishes the daemon state.
func (m *Manager) WriteState(state *State) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	return writeFileAtomic(m.stateFile, data)
}

// ReadState reads the published daemon state.
func (m *Manager) ReadState() (*State, error) {
	data, err := os.ReadFile(m.stateFile)
	if err != nil {
		return nil, err
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	return &state, nil
}

// Release removes the PID and state files if they belong to this process.
func (m *Manager) Release() {
	if pid, err := m.ReadPID(); err == nil && pid != os.Getpid() {
		return
	}
	os.Remove(m.pidFile)
	os.Remove(m.stateFile)
}

// Status returns the current daemon status.
func (m *Manager) Status() *Status {
	status := &Status{}

	if pid, err := m.livePID(); err == nil {
		status.Running = true
		status.PID = pid
	}
	if state, err := m.ReadState(); err == nil {
		status.State = state
		if status.Running {
			status.Uptime = time.Since(state.StartedAt)
		}
	}
	return status
}

// Send delivers cmd to the running daemon.
func (m *Manager) Send(cmd Command) error {
	pid, err := m.livePID()
	if err != nil {
		return err
	}
	sig, ok := cmd.signal()
	if !ok {
		return fmt.Errorf("command %s cannot be signalled on this platform", cmd)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process: %w", err)
	}
	if err := process.Signal(sig); err != nil {
		return fmt.Errorf("signal %s: %w", cmd, err)
	}
	return nil
}

// WaitForStop polls until the daemon has exited or ctx is done.
func (m *Manager) WaitForStop(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if !m.IsRunning() {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("daemon did not stop: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0600); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
