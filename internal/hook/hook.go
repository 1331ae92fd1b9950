// Package hook attaches to the operating system's global input event tap.
//
// The OS boundary is the Tap interface. Monitor drives a Tap through its
// Detached, Attached and Disabled states; Recorder is the Handler that
// turns delivered events into counts. Handlers run on the OS delivery
// thread and must return quickly, so they never perform I/O.
package hook

import (
	"errors"
	"time"

	"keylens/internal/classify"
)

var (
	ErrPermissionDenied = errors.New("hook: input monitoring permission not granted")
	ErrNotAvailable     = errors.New("hook: event tap not available on this platform")
	ErrTapCreate        = errors.New("hook: could not create event tap")
)

// EventKind identifies a delivered event.
type EventKind int

const (
	KeyDown EventKind = iota
	MouseDown
	// TapDisabled is delivered when the OS disabled the tap, usually
	// because a callback exceeded its time budget.
	TapDisabled
)

func (k EventKind) String() string {
	switch k {
	case KeyDown:
		return "key-down"
	case MouseDown:
		return "mouse-down"
	case TapDisabled:
		return "tap-disabled"
	default:
		return "unknown"
	}
}

// Event is one input event delivered by a Tap.
type Event struct {
	Kind      EventKind
	Code      uint16
	Button    int
	Flags     classify.Modifiers
	Timestamp time.Time
}

// Input converts e into classifier input.
func (e Event) Input() classify.Input {
	in := classify.Input{Code: e.Code, Button: e.Button, Modifiers: e.Flags}
	if e.Kind == MouseDown {
		in.Kind = classify.KindMouseDown
	}
	return in
}

// Handler receives delivered events. It returns whether the event should
// pass through; listen-only taps ignore the result.
type Handler interface {
	OnEvent(Event) (passThrough bool)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(Event) bool

func (f HandlerFunc) OnEvent(e Event) bool { return f(e) }

// EventMask selects the event kinds a tap registers for.
type EventMask uint32

const (
	MaskKeyDown EventMask = 1 << iota
	MaskMouseDown
)

// Tap is the operating system event tap.
type Tap interface {
	// Trusted reports whether the process may monitor input.
	Trusted() bool
	// RequestPermission shows the OS permission prompt.
	RequestPermission()
	// Create installs a tap for mask delivering to h and enables it.
	Create(mask EventMask, h Handler) error
	Enable(on bool)
	Enabled() bool
	// Remove disables and releases the tap. It is a no-op without one.
	Remove()
	Exists() bool
}
