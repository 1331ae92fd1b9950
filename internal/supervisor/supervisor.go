// Package supervisor keeps the input hook attached.
//
// The supervisor is a small state machine advanced by Tick. It retries
// attachment while permission is missing, runs a periodic health check
// that notices a hook that died on its own, performs a one-shot recovery
// when the process is activated, and as a last resort restarts the whole
// process when the hook cannot be created despite permission.
package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"keylens/internal/hook"
)

// State is the supervisor's view of the hook.
type State int

const (
	StateDetached State = iota
	StateAttached
	StateDisabled
	StateRetryPending
	StateRestartPending
)

func (s State) String() string {
	switch s {
	case StateDetached:
		return "detached"
	case StateAttached:
		return "attached"
	case StateDisabled:
		return "disabled"
	case StateRetryPending:
		return "retry-pending"
	case StateRestartPending:
		return "restart-pending"
	default:
		return "unknown"
	}
}

// Hook is the part of hook.Monitor the supervisor drives.
type Hook interface {
	Start() error
	IsRunning() bool
	State() hook.State
	Trusted() bool
	RequestPermission()
	DisableCount() int64
}

// Restarter replaces the running process.
type Restarter interface {
	Restart() error
}

// RestarterFunc adapts a function to Restarter.
type RestarterFunc func() error

func (f RestarterFunc) Restart() error { return f() }

// Config holds the supervisor periods.
type Config struct {
	RetryPeriod  time.Duration
	HealthPeriod time.Duration
	RestartDelay time.Duration
	TickPeriod   time.Duration
}

// DefaultConfig returns the standard periods.
func DefaultConfig() Config {
	return Config{
		RetryPeriod:  3 * time.Second,
		HealthPeriod: 5 * time.Second,
		RestartDelay: 500 * time.Millisecond,
		TickPeriod:   time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.RetryPeriod <= 0 {
		c.RetryPeriod = d.RetryPeriod
	}
	if c.HealthPeriod <= 0 {
		c.HealthPeriod = d.HealthPeriod
	}
	if c.RestartDelay <= 0 {
		c.RestartDelay = d.RestartDelay
	}
	if c.TickPeriod <= 0 {
		c.TickPeriod = d.TickPeriod
	}
	return c
}

// Supervisor keeps a Hook attached.
type Supervisor struct {
	mu        sync.Mutex
	hook      Hook
	restarter Restarter
	cfg       Config
	logger    *slog.Logger

	prompted       bool
	retrying       bool
	nextRetry      time.Time
	nextHealth     time.Time
	restartPending bool
	restartAt      time.Time
	lastDisables   int64
	restarts       int

	activate chan struct{}
}

// New creates a supervisor. A nil restarter only logs restart requests.
func New(h Hook, r Restarter, cfg Config, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		hook:      h,
		restarter: r,
		cfg:       cfg.withDefaults(),
		logger:    logger.With(slog.String("component", "supervisor")),
		activate:  make(chan struct{}, 1),
	}
}

// Boot makes the first attachment attempt. Missing permission triggers
// the OS prompt once and starts the retry cycle. It returns an error only
// when the platform has no event tap at all.
func (s *Supervisor) Boot(now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextHealth = now.Add(s.cfg.HealthPeriod)

	err := s.hook.Start()
	switch {
	case err == nil:
		s.logger.Info("hook attached")
		return nil
	case errors.Is(err, hook.ErrNotAvailable):
		return err
	case s.permissionMissing(err):
		s.logger.Warn("input monitoring permission missing; waiting for grant")
		if !s.prompted {
			s.prompted = true
			s.hook.RequestPermission()
		}
		s.enterRetry(now)
	default:
		s.logger.Error("hook start failed", "error", err)
		s.scheduleRestart(now)
	}
	return nil
}

// Tick advances every timer that is due at now.
func (s *Supervisor) Tick(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.restartPending && !now.Before(s.restartAt) {
		s.restartPending = false
		s.restart(now)
	}
	if s.retrying && !now.Before(s.nextRetry) {
		s.retryTick(now)
	}
	if !now.Before(s.nextHealth) {
		s.healthTick(now)
	}
}

// Activate runs an immediate recovery attempt, as when the user returns
// after granting permission. Success cancels a pending retry cycle.
func (s *Supervisor) Activate(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hook.IsRunning() {
		return
	}
	if !s.hook.Trusted() {
		s.logger.Info("activation recovery skipped; permission still missing")
		return
	}

	if err := s.hook.Start(); err != nil {
		s.logger.Warn("activation recovery failed", "error", err)
		if !s.retrying && !s.restartPending {
			s.enterRetry(now)
		}
		return
	}
	s.retrying = false
	s.logger.Info("hook recovered on activation")
}

// RequestActivate asks Run to call Activate. It never blocks.
func (s *Supervisor) RequestActivate() {
	select {
	case s.activate <- struct{}{}:
	default:
	}
}

// Run boots the hook and drives Tick until ctx is done.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.Boot(time.Now()); err != nil {
		return err
	}

	ticker := time.NewTicker(s.cfg.TickPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			s.Tick(now)
		case <-s.activate:
			s.Activate(time.Now())
		}
	}
}

// State returns the current supervisor state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.restartPending:
		return StateRestartPending
	case s.retrying:
		return StateRetryPending
	}
	switch s.hook.State() {
	case hook.StateAttached:
		return StateAttached
	case hook.StateDisabled:
		return StateDisabled
	default:
		return StateDetached
	}
}

// Restarts returns how many process restarts were attempted.
func (s *Supervisor) Restarts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restarts
}

// permissionMissing reports whether err is a permission failure that the
// OS agrees with. A denial while Trusted is true is an OS inconsistency
// and is handled like any other creation failure.
func (s *Supervisor) permissionMissing(err error) bool {
	return errors.Is(err, hook.ErrPermissionDenied) && !s.hook.Trusted()
}

func (s *Supervisor) enterRetry(now time.Time) {
	s.retrying = true
	s.nextRetry = now.Add(s.cfg.RetryPeriod)
}

func (s *Supervisor) scheduleRestart(now time.Time) {
	s.retrying = false
	s.restartPending = true
	s.restartAt = now.Add(s.cfg.RestartDelay)
	s.logger.Warn("scheduling process restart", "delay", s.cfg.RestartDelay)
}

func (s *Supervisor) retryTick(now time.Time) {
	s.nextRetry = now.Add(s.cfg.RetryPeriod)
	if !s.hook.Trusted() {
		s.logger.Debug("permission still missing")
		return
	}

	s.retrying = false
	err := s.hook.Start()
	switch {
	case err == nil:
		s.logger.Info("hook attached after permission grant")
	case s.permissionMissing(err):
		s.enterRetry(now)
	default:
		// Permission is granted but the tap cannot be created. Looping
		// would not help; a fresh process usually can.
		s.logger.Error("hook start failed despite permission", "error", err)
		s.scheduleRestart(now)
	}
}

func (s *Supervisor) healthTick(now time.Time) {
	s.nextHealth = now.Add(s.cfg.HealthPeriod)

	if n := s.hook.DisableCount(); n != s.lastDisables {
		s.logger.Warn("event tap was disabled by the system and re-enabled",
			"times", n-s.lastDisables)
		s.lastDisables = n
	}

	if s.hook.IsRunning() || s.retrying || s.restartPending {
		return
	}
	s.logger.Warn("hook is not running; starting retry cycle", "state", s.hook.State())
	s.enterRetry(now)
}

func (s *Supervisor) restart(now time.Time) {
	s.restarts++
	if s.restarter == nil {
		s.logger.Error("process restart requested but no restarter configured")
		s.enterRetry(now)
		return
	}

	s.logger.Error("restarting process to recover the hook")
	if err := s.restarter.Restart(); err != nil {
		s.logger.Error("process restart failed", "error", err)
		s.enterRetry(now)
	}
}
