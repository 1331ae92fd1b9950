package hook

import (
	"bufio"
	"context"
	"io"
	"sync"
	"time"
	"unicode"

	"keylens/internal/classify"
)

// SimulatedTap is an in-process Tap for tests and --simulate runs.
// Events are injected with Emit.
type SimulatedTap struct {
	mu        sync.Mutex
	trusted   bool
	exists    bool
	enabled   bool
	handler   Handler
	createErr error
	stuck     bool // Enable(true) has no effect

	creates  int
	removes  int
	prompts  int
	grantsOn int // permission is granted after this many prompts
}

// NewSimulatedTap returns a tap that is trusted when trusted is true.
func NewSimulatedTap(trusted bool) *SimulatedTap {
	return &SimulatedTap{trusted: trusted}
}

func (s *SimulatedTap) Trusted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trusted
}

func (s *SimulatedTap) RequestPermission() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts++
	if s.grantsOn > 0 && s.prompts >= s.grantsOn {
		s.trusted = true
	}
}

func (s *SimulatedTap) Create(mask EventMask, h Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	s.creates++
	s.exists = true
	s.enabled = true
	s.stuck = false
	s.handler = h
	return nil
}

func (s *SimulatedTap) Enable(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.exists || (on && s.stuck) {
		return
	}
	s.enabled = on
}

func (s *SimulatedTap) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exists && s.enabled
}

func (s *SimulatedTap) Remove() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.exists {
		return
	}
	s.exists = false
	s.enabled = false
	s.handler = nil
	s.removes++
}

func (s *SimulatedTap) Exists() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exists
}

// SetTrusted grants or revokes permission.
func (s *SimulatedTap) SetTrusted(trusted bool) {
	s.mu.Lock()
	s.trusted = trusted
	s.mu.Unlock()
}

// GrantAfterPrompts makes the n-th permission prompt grant permission.
func (s *SimulatedTap) GrantAfterPrompts(n int) {
	s.mu.Lock()
	s.grantsOn = n
	s.mu.Unlock()
}

// FailCreate makes subsequent Create calls return err. nil clears it.
func (s *SimulatedTap) FailCreate(err error) {
	s.mu.Lock()
	s.createErr = err
	s.mu.Unlock()
}

// Kill disables the tap so that it cannot be re-enabled, as when the OS
// revokes it underneath the process.
func (s *SimulatedTap) Kill() {
	s.mu.Lock()
	s.enabled = false
	s.stuck = true
	s.mu.Unlock()
}

// Timeout disables the tap and delivers a TapDisabled event, as the OS
// does when a callback is too slow.
func (s *SimulatedTap) Timeout() {
	s.mu.Lock()
	s.enabled = false
	h := s.handler
	s.mu.Unlock()
	if h != nil {
		h.OnEvent(Event{Kind: TapDisabled, Timestamp: time.Now()})
	}
}

// Emit delivers e if the tap is attached and enabled. It reports whether
// the event was delivered.
func (s *SimulatedTap) Emit(e Event) bool {
	s.mu.Lock()
	h := s.handler
	live := s.exists && s.enabled
	s.mu.Unlock()

	if !live || h == nil {
		return false
	}
	h.OnEvent(e)
	return true
}

// Creates returns the number of successful Create calls.
func (s *SimulatedTap) Creates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creates
}

// Removes returns the number of Remove calls that released a tap.
func (s *SimulatedTap) Removes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removes
}

// Prompts returns the number of permission prompts shown.
func (s *SimulatedTap) Prompts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prompts
}

// RuneEvent returns the key-down event typing r produces, or false when
// r has no key.
func RuneEvent(r rune, ts time.Time) (Event, bool) {
	var label string
	var flags classify.Modifiers
	switch {
	case r == '\n' || r == '\r':
		label = "Return"
	case r == '\t':
		label = "Tab"
	case r == ' ':
		label = "Space"
	case unicode.IsUpper(r):
		label = string(unicode.ToLower(r))
		flags = classify.ModShift
	default:
		label = string(r)
	}

	code, ok := classify.KeyCode(label)
	if !ok {
		return Event{}, false
	}
	return Event{Kind: KeyDown, Code: code, Flags: flags, Timestamp: ts}, true
}

// Replay types the text read from r into tap, one event per rune, until
// r is exhausted or ctx is done. Runes with no key are skipped.
func Replay(ctx context.Context, tap *SimulatedTap, r io.Reader, now func() time.Time) error {
	br := bufio.NewReader(r)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ch, _, err := br.ReadRune()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if ev, ok := RuneEvent(ch, now()); ok {
			tap.Emit(ev)
		}
	}
}
