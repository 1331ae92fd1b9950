package hook

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// State is the attachment state of a Monitor.
type State int

const (
	StateDetached State = iota
	StateAttached
	// StateDisabled means a tap exists but the OS has disabled it.
	StateDisabled
)

func (s State) String() string {
	switch s {
	case StateDetached:
		return "detached"
	case StateAttached:
		return "attached"
	case StateDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// Monitor owns the tap handle. All handle mutation goes through its
// mutex; events are delivered to the handler without taking it.
type Monitor struct {
	mu      sync.Mutex
	tap     Tap
	handler Handler
	logger  *slog.Logger

	disables atomic.Int64
	creates  atomic.Int64
}

// NewMonitor creates a monitor delivering events from tap to h.
func NewMonitor(tap Tap, h Handler, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		tap:     tap,
		handler: h,
		logger:  logger.With(slog.String("component", "monitor")),
	}
}

// Start attaches the tap. Without input monitoring permission it returns
// ErrPermissionDenied and changes nothing. An existing tap is re-enabled
// before falling back to recreating it.
func (m *Monitor) Start() error {
	if !m.tap.Trusted() {
		return ErrPermissionDenied
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.tap.Exists() {
		if m.tap.Enabled() {
			return nil
		}
		m.tap.Enable(true)
		if m.tap.Enabled() {
			m.logger.Info("event tap re-enabled")
			return nil
		}
		m.logger.Warn("event tap re-enable failed; recreating")
		m.tap.Remove()
	}

	if err := m.tap.Create(MaskKeyDown|MaskMouseDown, HandlerFunc(m.deliver)); err != nil {
		if errors.Is(err, ErrNotAvailable) || errors.Is(err, ErrPermissionDenied) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrTapCreate, err)
	}
	m.creates.Add(1)

	if !m.tap.Enabled() {
		m.tap.Remove()
		return fmt.Errorf("%w: tap not enabled after create", ErrTapCreate)
	}

	m.logger.Info("event tap attached")
	return nil
}

// Stop disables and removes the tap. It is safe to call repeatedly.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.tap.Exists() {
		return
	}
	m.tap.Enable(false)
	m.tap.Remove()
	m.logger.Info("event tap detached")
}

// IsRunning reports whether a tap exists and is enabled.
func (m *Monitor) IsRunning() bool {
	return m.State() == StateAttached
}

// State returns the current attachment state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case !m.tap.Exists():
		return StateDetached
	case m.tap.Enabled():
		return StateAttached
	default:
		return StateDisabled
	}
}

// Trusted reports whether the process currently has permission.
func (m *Monitor) Trusted() bool {
	return m.tap.Trusted()
}

// RequestPermission triggers the OS permission prompt.
func (m *Monitor) RequestPermission() {
	m.tap.RequestPermission()
}

// DisableCount returns how many times the OS disabled the tap.
func (m *Monitor) DisableCount() int64 {
	return m.disables.Load()
}

// CreateCount returns how many taps this monitor has created.
func (m *Monitor) CreateCount() int64 {
	return m.creates.Load()
}

// deliver runs on the OS delivery thread. A disabled tap is re-enabled
// at once, before the handler sees the notification.
func (m *Monitor) deliver(e Event) bool {
	if e.Kind == TapDisabled {
		m.disables.Add(1)
		m.tap.Enable(true)
	}
	if m.handler == nil {
		return true
	}
	return m.handler.OnEvent(e)
}
