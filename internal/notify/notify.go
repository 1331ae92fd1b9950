// Package notify delivers milestone notifications and keeps the overlay
// feed of recently pressed keys.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"
)

// Milestone receives per-label milestone crossings.
type Milestone interface {
	Milestone(label string, count int)
}

// Overlay receives display labels for the on-screen key feed.
type Overlay interface {
	Show(display string)
}

// Message is a desktop notification.
type Message struct {
	Title string
	Body  string
}

// Notifier shows a Message to the user.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
	Close() error
}

// Backend names accepted by New.
const (
	BackendLog  = "log"
	BackendDBus = "dbus"
	BackendNone = "none"
)

// New returns the notifier for backend. A D-Bus backend that cannot
// connect falls back to logging.
func New(backend string, logger *slog.Logger) (Notifier, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch backend {
	case "", BackendLog:
		return NewLogNotifier(logger), nil
	case BackendNone:
		return Nop{}, nil
	case BackendDBus:
		n, err := NewDBusNotifier(logger)
		if err != nil {
			logger.Warn("D-Bus notifications unavailable; logging milestones instead", "error", err)
			return NewLogNotifier(logger), nil
		}
		return n, nil
	default:
		return nil, fmt.Errorf("unknown notify backend %q", backend)
	}
}

// MilestoneMessage builds the notification for label reaching count.
func MilestoneMessage(label string, count int) Message {
	return Message{
		Title: "⌨️ keylens",
		Body:  fmt.Sprintf("%q has reached %s presses!", label, FormatCount(count)),
	}
}

// FormatCount renders n with comma thousands separators.
func FormatCount(n int) string {
	s := strconv.Itoa(n)
	neg := n < 0
	if neg {
		s = s[1:]
	}

	out := make([]byte, 0, len(s)+len(s)/3)
	for i := range len(s) {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, s[i])
	}
	if neg {
		return "-" + string(out)
	}
	return string(out)
}

// DefaultTimeout bounds one notification delivery, retries included.
const DefaultTimeout = 5 * time.Second

// MilestoneNotifier adapts a Notifier to Milestone. It is called from
// the dispatcher goroutine, never from the capture callback.
type MilestoneNotifier struct {
	notifier Notifier
	logger   *slog.Logger
	timeout  time.Duration
	enabled  atomic.Bool
	sent     atomic.Int64
}

// NewMilestoneNotifier returns an enabled MilestoneNotifier.
func NewMilestoneNotifier(n Notifier, logger *slog.Logger) *MilestoneNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	m := &MilestoneNotifier{notifier: n, logger: logger, timeout: DefaultTimeout}
	m.enabled.Store(true)
	return m
}

// SetEnabled turns delivery on or off.
func (m *MilestoneNotifier) SetEnabled(on bool) {
	m.enabled.Store(on)
}

// Sent returns how many notifications were delivered.
func (m *MilestoneNotifier) Sent() int64 {
	return m.sent.Load()
}

// Milestone implements Milestone.
func (m *MilestoneNotifier) Milestone(label string, count int) {
	if !m.enabled.Load() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	if err := m.notifier.Notify(ctx, MilestoneMessage(label, count)); err != nil {
		m.logger.Warn("milestone notification failed", "label", label, "count", count, "error", err)
		return
	}
	m.sent.Add(1)
}

// LogNotifier writes notifications to the log.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier returns a notifier that logs at info level.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, msg Message) error {
	n.logger.Info(msg.Body, "notification", msg.Title)
	return nil
}

func (n *LogNotifier) Close() error { return nil }

// Nop discards notifications.
type Nop struct{}

func (Nop) Notify(context.Context, Message) error { return nil }

func (Nop) Close() error { return nil }
