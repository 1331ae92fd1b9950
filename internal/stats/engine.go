// Package stats maintains the in-memory input counters.
//
// Engine is the only writer of the count snapshot. Every mutation and
// query takes one mutex for the duration of a few map operations; no I/O
// happens while it is held. Persistence is delegated to a Saver, which
// is triggered after the lock is released.
package stats

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"keylens/internal/store"
)

// DefaultMilestoneInterval is the count step that triggers a milestone.
const DefaultMilestoneInterval = 1000

// DefaultIntervalCap is the longest gap admitted as a typing interval.
// Longer gaps are pauses and do not affect the mean.
const DefaultIntervalCap = 1000 * time.Millisecond

var ErrInvalidInterval = errors.New("stats: milestone interval must be positive")

// Saver persists snapshots on behalf of the engine.
type Saver interface {
	Bind(source func() *store.Snapshot)
	Schedule()
	SaveNow() error
}

type nopSaver struct{}

func (nopSaver) Bind(func() *store.Snapshot) {}
func (nopSaver) Schedule()                   {}
func (nopSaver) SaveNow() error              { return nil }

// Engine owns the count snapshot.
type Engine struct {
	mu                sync.Mutex
	snap              *store.Snapshot
	milestoneInterval int

	now         func() time.Time
	loc         *time.Location
	intervalCap time.Duration
	saver       Saver
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the time source used for "today" and reset.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLocation sets the zone in which calendar days are computed.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) { e.loc = loc }
}

// WithMilestoneInterval sets the initial milestone interval. Invalid
// values are ignored.
func WithMilestoneInterval(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.milestoneInterval = n
		}
	}
}

// WithIntervalCap sets the longest admitted inter-event interval.
func WithIntervalCap(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.intervalCap = d
		}
	}
}

// New creates an engine over snap and binds saver to it. A nil snap
// starts fresh; a nil saver disables persistence.
func New(snap *store.Snapshot, saver Saver, opts ...Option) *Engine {
	e := &Engine{
		milestoneInterval: DefaultMilestoneInterval,
		now:               time.Now,
		loc:               time.Local,
		intervalCap:       DefaultIntervalCap,
		saver:             saver,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.saver == nil {
		e.saver = nopSaver{}
	}
	if snap == nil {
		snap = store.NewSnapshot(e.now())
	}
	e.snap = snap.Clone()
	e.saver.Bind(e.Snapshot)
	return e
}

func (e *Engine) dayKey(t time.Time) string {
	return DayOf(t.In(e.loc)).Format()
}

// Today returns the current calendar day.
func (e *Engine) Today() Day {
	return DayOf(e.now().In(e.loc))
}

// RecordEvent counts one occurrence of label at ts. It returns the new
// lifetime count and whether that count is a multiple of the milestone
// interval.
func (e *Engine) RecordEvent(label string, ts time.Time) (int, bool) {
	e.mu.Lock()
	s := e.snap

	s.LifetimeCounts[label]++
	count := s.LifetimeCounts[label]

	day := e.dayKey(ts)
	if s.DailyCounts[day] == nil {
		s.DailyCounts[day] = make(map[string]int)
	}
	s.DailyCounts[day][label]++

	if s.LastEventTime != nil {
		gap := ts.Sub(*s.LastEventTime)
		if gap >= 0 && gap <= e.intervalCap {
			sample := float64(gap) / float64(time.Millisecond)
			s.IntervalSampleCount++
			s.MeanIntervalMs += (sample - s.MeanIntervalMs) / float64(s.IntervalSampleCount)
		}
	}
	last := ts
	s.LastEventTime = &last

	milestone := count%e.milestoneInterval == 0
	e.mu.Unlock()

	e.saver.Schedule()
	return count, milestone
}

// RecordCombo counts one occurrence of a modifier combo.
func (e *Engine) RecordCombo(label string) {
	e.mu.Lock()
	e.snap.ModifierComboCounts[label]++
	e.mu.Unlock()

	e.saver.Schedule()
}

// Reset discards all counts and starts a new snapshot now. The new
// state is written immediately.
func (e *Engine) Reset() error {
	fresh := store.NewSnapshot(e.now())

	e.mu.Lock()
	e.snap = fresh
	e.mu.Unlock()

	if err := e.saver.SaveNow(); err != nil {
		return fmt.Errorf("save after reset: %w", err)
	}
	return nil
}

// SetMilestoneInterval changes the milestone step.
func (e *Engine) SetMilestoneInterval(n int) error {
	if n <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidInterval, n)
	}
	e.mu.Lock()
	e.milestoneInterval = n
	e.mu.Unlock()
	return nil
}

// MilestoneInterval returns the current milestone step.
func (e *Engine) MilestoneInterval() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.milestoneInterval
}

// Snapshot returns a deep copy of the current state.
func (e *Engine) Snapshot() *store.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snap.Clone()
}
