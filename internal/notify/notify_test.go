package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatCount(t *testing.T) {
	cases := map[int]string{
		0:        "0",
		999:      "999",
		1000:     "1,000",
		12345:    "12,345",
		1000000:  "1,000,000",
		-4200:    "-4,200",
		10000000: "10,000,000",
	}
	for n, want := range cases {
		assert.Equal(t, want, FormatCount(n), "n=%d", n)
	}
}

func TestMilestoneMessage(t *testing.T) {
	msg := MilestoneMessage("⌘C", 2000)
	assert.Equal(t, "⌨️ keylens", msg.Title)
	assert.Equal(t, `"⌘C" has reached 2,000 presses!`, msg.Body)
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []Message
	err  error
}

func (r *recordingNotifier) Notify(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recordingNotifier) Close() error { return nil }

func TestMilestoneNotifier(t *testing.T) {
	rec := &recordingNotifier{}
	m := NewMilestoneNotifier(rec, nil)

	m.Milestone("a", 1000)
	assert.EqualValues(t, 1, m.Sent())
	require.Len(t, rec.msgs, 1)
	assert.Contains(t, rec.msgs[0].Body, "1,000")

	m.SetEnabled(false)
	m.Milestone("a", 2000)
	assert.EqualValues(t, 1, m.Sent())
	assert.Len(t, rec.msgs, 1)

	m.SetEnabled(true)
	rec.err = errors.New("no server")
	m.Milestone("a", 3000)
	assert.EqualValues(t, 1, m.Sent())
}

func TestNewBackends(t *testing.T) {
	n, err := New("", nil)
	require.NoError(t, err)
	assert.IsType(t, &LogNotifier{}, n)

	n, err = New(BackendNone, nil)
	require.NoError(t, err)
	assert.NoError(t, n.Notify(context.Background(), Message{}))
	assert.NoError(t, n.Close())

	_, err = New("carrier-pigeon", nil)
	assert.Error(t, err)
}

func TestNewDBusFallsBack(t *testing.T) {
	t.Setenv("DBUS_SESSION_BUS_ADDRESS", "unix:path=/nonexistent/keylens-test-bus")
	n, err := New(BackendDBus, nil)
	require.NoError(t, err)
	assert.IsType(t, &LogNotifier{}, n)
}

type fakeBus struct {
	mu      sync.Mutex
	calls   int
	failFor int
	method  string
	args    []any
}

func (f *fakeBus) CallWithContext(_ context.Context, method string, _ dbus.Flags, args ...any) *dbus.Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.method, f.args = method, args
	if f.calls <= f.failFor {
		return &dbus.Call{Err: errors.New("org.freedesktop.DBus.Error.ServiceUnknown")}
	}
	return &dbus.Call{Body: []any{uint32(42)}}
}

func TestDBusNotifierRetries(t *testing.T) {
	bus := &fakeBus{failFor: 2}
	n := newDBusNotifier(bus, nil)
	n.delay = time.Millisecond

	err := n.Notify(context.Background(), MilestoneMessage("x", 1000))
	require.NoError(t, err)
	assert.Equal(t, 3, bus.calls)
	assert.Equal(t, "org.freedesktop.Notifications.Notify", bus.method)
	require.Len(t, bus.args, 8)
	assert.Equal(t, "keylens", bus.args[0])
	assert.Equal(t, "⌨️ keylens", bus.args[3])
	assert.Equal(t, int32(-1), bus.args[7])
	assert.NoError(t, n.Close())
}

func TestDBusNotifierGivesUp(t *testing.T) {
	bus := &fakeBus{failFor: 10}
	n := newDBusNotifier(bus, nil)
	n.delay = time.Millisecond

	err := n.Notify(context.Background(), Message{Title: "t", Body: "b"})
	assert.ErrorContains(t, err, "ServiceUnknown")
	assert.Equal(t, 3, bus.calls)
}

func TestRing(t *testing.T) {
	var last []string
	r := NewRing(3, func(keys []string) { last = keys })

	assert.Empty(t, r.Recent())
	for _, k := range []string{"a", "b", "c", "d"} {
		r.Show(k)
	}
	assert.Equal(t, []string{"b", "c", "d"}, r.Recent())
	assert.Equal(t, []string{"b", "c", "d"}, last)

	// Callers get copies.
	last[0] = "z"
	assert.Equal(t, "b", r.Recent()[0])

	r.Clear()
	assert.Empty(t, r.Recent())
}

func TestRingDefaultSize(t *testing.T) {
	r := NewRing(0, nil)
	for range DefaultOverlaySize + 5 {
		r.Show("k")
	}
	assert.Len(t, r.Recent(), DefaultOverlaySize)
}
