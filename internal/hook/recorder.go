package hook

import (
	"time"

	"keylens/internal/classify"
)

// Counter is the part of the statistics engine the recorder writes to.
type Counter interface {
	RecordEvent(label string, ts time.Time) (count int, milestone bool)
	RecordCombo(label string)
}

// Poster queues notifications for delivery off the capture thread.
type Poster interface {
	PostMilestone(label string, count int)
	PostOverlay(display string)
}

// Recorder is the Handler that classifies events and counts them.
type Recorder struct {
	counter Counter
	poster  Poster
	mouse   bool
	now     func() time.Time
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithoutMouse ignores mouse button events.
func WithoutMouse() RecorderOption {
	return func(r *Recorder) { r.mouse = false }
}

// WithRecorderClock sets the clock used for events without a timestamp.
func WithRecorderClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) { r.now = now }
}

// NewRecorder returns a recorder counting into c. poster may be nil.
func NewRecorder(c Counter, poster Poster, opts ...RecorderOption) *Recorder {
	r := &Recorder{counter: c, poster: poster, mouse: true, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OnEvent records e. It always passes the event through.
func (r *Recorder) OnEvent(e Event) bool {
	switch e.Kind {
	case TapDisabled:
		// Re-enabled by the monitor before delivery.
		return true
	case MouseDown:
		if !r.mouse {
			return true
		}
	case KeyDown:
	default:
		return true
	}

	ts := e.Timestamp
	if ts.IsZero() {
		ts = r.now()
	}

	res := classify.Classify(e.Input())
	count, milestone := r.counter.RecordEvent(res.Label, ts)
	if res.HasCombo {
		r.counter.RecordCombo(res.Combo)
	}

	if r.poster != nil {
		if milestone {
			r.poster.PostMilestone(res.Label, count)
		}
		if res.FeedOverlay {
			r.poster.PostOverlay(res.Overlay)
		}
	}
	return true
}
