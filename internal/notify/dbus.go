package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/godbus/dbus/v5"
)

const (
	notificationsName   = "org.freedesktop.Notifications"
	notificationsPath   = dbus.ObjectPath("/org/freedesktop/Notifications")
	notificationsNotify = notificationsName + ".Notify"

	appName = "keylens"
)

// caller is the part of dbus.BusObject the notifier uses.
type caller interface {
	CallWithContext(ctx context.Context, method string, flags dbus.Flags, args ...any) *dbus.Call
}

// DBusNotifier posts freedesktop desktop notifications over the session bus.
type DBusNotifier struct {
	conn     *dbus.Conn
	obj      caller
	logger   *slog.Logger
	attempts uint
	delay    time.Duration

	// ExpireMs is the display time requested from the server; -1 lets the
	// server decide.
	ExpireMs int32
}

// NewDBusNotifier connects to the session bus.
func NewDBusNotifier(logger *slog.Logger) (*DBusNotifier, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}
	n := newDBusNotifier(conn.Object(notificationsName, notificationsPath), logger)
	n.conn = conn
	return n, nil
}

func newDBusNotifier(obj caller, logger *slog.Logger) *DBusNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &DBusNotifier{
		obj:      obj,
		logger:   logger,
		attempts: 3,
		delay:    200 * time.Millisecond,
		ExpireMs: -1,
	}
}

// Notify sends msg, retrying transient bus failures until ctx is done.
func (n *DBusNotifier) Notify(ctx context.Context, msg Message) error {
	var id uint32
	r := retry.New(
		retry.Context(ctx),
		retry.Attempts(n.attempts),
		retry.Delay(n.delay),
		retry.DelayType(retry.BackOffDelay),
	)

	err := r.Do(func() error {
		call := n.obj.CallWithContext(ctx, notificationsNotify, 0,
			appName,
			uint32(0),
			"",
			msg.Title,
			msg.Body,
			[]string{},
			map[string]dbus.Variant{"urgency": dbus.MakeVariant(byte(0))},
			n.ExpireMs,
		)
		if call.Err != nil {
			return call.Err
		}
		return call.Store(&id)
	})
	if err != nil {
		return fmt.Errorf("dbus notify: %w", err)
	}

	n.logger.Debug("desktop notification posted", "id", id)
	return nil
}

// Close closes the bus connection.
func (n *DBusNotifier) Close() error {
	if n.conn == nil {
		return nil
	}
	return n.conn.Close()
}
