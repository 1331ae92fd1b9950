package store

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bep/debounce"
)

// DefaultQuietPeriod is how long the saver waits after the last mutation
// before writing.
const DefaultQuietPeriod = 2 * time.Second

var errNotBound = errors.New("store: saver has no snapshot source")

// DebounceFunc builds a debouncer: the returned function schedules f to
// run once after the quiet period, replacing any pending call.
type DebounceFunc func(after time.Duration) func(f func())

// Saver coalesces save requests and writes snapshots to a Backend.
type Saver struct {
	backend Backend
	logger  *slog.Logger
	quiet   time.Duration
	trigger func(f func())
	observe func(time.Duration, error)

	sourceMu sync.RWMutex
	source   func() *Snapshot

	writeMu sync.Mutex // serializes backend writes
	writes  atomic.Int64
	lastErr atomic.Pointer[error]
}

// SaverOption configures a Saver.
type SaverOption func(*saverOptions)

type saverOptions struct {
	debounce DebounceFunc
	logger   *slog.Logger
	observe  func(time.Duration, error)
}

// WithDebounce replaces the debounce primitive, mainly for tests.
func WithDebounce(fn DebounceFunc) SaverOption {
	return func(o *saverOptions) { o.debounce = fn }
}

// WithLogger sets the logger used for write failures.
func WithLogger(l *slog.Logger) SaverOption {
	return func(o *saverOptions) { o.logger = l }
}

// WithObserver registers fn to receive the duration and result of every
// backend write.
func WithObserver(fn func(time.Duration, error)) SaverOption {
	return func(o *saverOptions) { o.observe = fn }
}

// NewSaver creates a saver for backend. A non-positive quiet period uses
// DefaultQuietPeriod.
func NewSaver(backend Backend, quiet time.Duration, opts ...SaverOption) *Saver {
	o := saverOptions{debounce: debounce.New, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if quiet <= 0 {
		quiet = DefaultQuietPeriod
	}

	return &Saver{
		backend: backend,
		logger:  o.logger.With(slog.String("component", "saver")),
		quiet:   quiet,
		trigger: o.debounce(quiet),
		observe: o.observe,
	}
}

// Bind sets the function producing the snapshot to write. The function
// must return a copy the saver may read without locking.
func (s *Saver) Bind(source func() *Snapshot) {
	s.sourceMu.Lock()
	s.source = source
	s.sourceMu.Unlock()
}

// Schedule requests a save after the quiet period. Repeated calls within
// the period collapse into one write. It never blocks on I/O.
func (s *Saver) Schedule() {
	s.trigger(func() {
		_ = s.SaveNow()
	})
}

// SaveNow writes the current snapshot immediately. Failures are logged
// and remembered; the next trigger retries with fresh state.
func (s *Saver) SaveNow() error {
	s.sourceMu.RLock()
	source := s.source
	s.sourceMu.RUnlock()
	if source == nil {
		return errNotBound
	}

	// The snapshot is taken under writeMu so the last write always
	// carries the newest state.
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	snap := source()

	start := time.Now()
	err := s.backend.Save(snap)
	if s.observe != nil {
		s.observe(time.Since(start), err)
	}
	if err != nil {
		s.lastErr.Store(&err)
		s.logger.Warn("snapshot write failed; will retry on next change",
			"path", s.backend.Path(), "error", err)
		return err
	}

	s.lastErr.Store(nil)
	s.writes.Add(1)
	return nil
}

// Writes returns the number of successful writes.
func (s *Saver) Writes() int64 {
	return s.writes.Load()
}

// LastError returns the error of the most recent write, or nil.
func (s *Saver) LastError() error {
	if p := s.lastErr.Load(); p != nil {
		return *p
	}
	return nil
}

// QuietPeriod returns the debounce window.
func (s *Saver) QuietPeriod() time.Duration {
	return s.quiet
}
