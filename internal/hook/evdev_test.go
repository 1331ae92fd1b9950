package hook

import (
	"bytes"
	"encoding/binary"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keylens/internal/classify"
)

const procDevices = `I: Bus=0019 Vendor=0000 Product=0001 Version=0000
N: Name="Power Button"
H: Handlers=kbd event0
B: EV=3
B: KEY=10000000000000 0

I: Bus=0011 Vendor=0001 Product=0001 Version=ab41
N: Name="AT Translated Set 2 keyboard"
H: Handlers=sysrq kbd leds event3
B: EV=120013
B: KEY=402000000 3803078f800d001 feffffdfffefffff fffffffffffffffe

I: Bus=0003 Vendor=046d Product=c077 Version=0111
N: Name="Logitech USB Optical Mouse"
H: Handlers=mouse0 event5
B: EV=17
B: KEY=70000 0 0 0 0

I: Bus=0000 Vendor=0000 Product=0000 Version=0000
N: Name="Accelerometer"
H: Handlers=event7
B: EV=9
B: KEY=0
`

func TestParseInputDevices(t *testing.T) {
	devices, err := parseInputDevices(strings.NewReader(procDevices))
	require.NoError(t, err)
	assert.Equal(t, []InputDevice{
		{Name: "Power Button", Node: "/dev/input/event0"},
		{Name: "AT Translated Set 2 keyboard", Node: "/dev/input/event3"},
		{Name: "Logitech USB Optical Mouse", Node: "/dev/input/event5"},
	}, devices)
}

func vk(t *testing.T, label string) uint16 {
	t.Helper()
	c, ok := classify.KeyCode(label)
	require.True(t, ok, label)
	return c
}

func TestEvdevDecoder(t *testing.T) {
	dec := newEvdevDecoder()
	ts := time.Unix(100, 0)

	ev, ok := dec.decode(evKey, 30, keyPress, ts)
	require.True(t, ok)
	assert.Equal(t, KeyDown, ev.Kind)
	assert.Equal(t, vk(t, "a"), ev.Code)
	assert.Zero(t, ev.Flags)
	assert.Equal(t, ts, ev.Timestamp)

	_, ok = dec.decode(evKey, 30, keyRepeat, ts)
	assert.False(t, ok, "autorepeat")
	_, ok = dec.decode(evKey, 30, keyRelease, ts)
	assert.False(t, ok, "release")
	_, ok = dec.decode(0x02, 0, 5, ts)
	assert.False(t, ok, "relative motion")

	ev, ok = dec.decode(evKey, 29, keyPress, ts)
	require.True(t, ok)
	assert.Equal(t, vk(t, "⌃Ctrl"), ev.Code)
	ev, ok = dec.decode(evKey, 46, keyPress, ts)
	require.True(t, ok)
	assert.Equal(t, vk(t, "c"), ev.Code)
	assert.Equal(t, classify.ModControl, ev.Flags)

	ev, ok = dec.decode(evKey, btnLeft+1, keyPress, ts)
	require.True(t, ok)
	assert.Equal(t, MouseDown, ev.Kind)
	assert.Equal(t, 1, ev.Button)
	assert.Equal(t, classify.ModControl, ev.Flags, "modifiers are shared across devices")

	_, _ = dec.decode(evKey, 29, keyRelease, ts)
	ev, _ = dec.decode(evKey, 46, keyPress, ts)
	assert.Zero(t, ev.Flags)

	_, _ = dec.decode(evKey, evdevCapsLock, keyPress, ts)
	ev, _ = dec.decode(evKey, 30, keyPress, ts)
	assert.Equal(t, classify.ModCapsLock, ev.Flags)
	_, _ = dec.decode(evKey, evdevCapsLock, keyPress, ts)
	ev, _ = dec.decode(evKey, 30, keyPress, ts)
	assert.Zero(t, ev.Flags)
}

func TestEvdevKeyCodeCoversLabels(t *testing.T) {
	for evCode, label := range evdevLabels {
		assert.Equal(t, label, classify.KeyLabel(evdevKeyCode(evCode)), "evdev code %d", evCode)
	}
	assert.Equal(t, "Key(1183)", classify.KeyLabel(evdevKeyCode(183)))
}

func rawEvent(sec, usec int64, typ, code uint16, value int32) []byte {
	buf := make([]byte, evdevEventSize)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(sec))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(usec))
	binary.LittleEndian.PutUint16(buf[16:18], typ)
	binary.LittleEndian.PutUint16(buf[18:20], code)
	binary.LittleEndian.PutUint32(buf[20:24], uint32(value))
	return buf
}

func TestPumpEvdev(t *testing.T) {
	var stream bytes.Buffer
	stream.Write(rawEvent(10, 500, evKey, 35, keyPress))
	stream.Write(rawEvent(10, 600, 0, 0, 0)) // SYN_REPORT
	stream.Write(rawEvent(10, 700, evKey, 35, keyRelease))
	stream.Write(rawEvent(11, 0, evKey, 23, keyPress))
	stream.Write([]byte{1, 2, 3}) // torn trailing record

	var got []Event
	err := pumpEvdev(&stream, newEvdevDecoder(), func(e Event) { got = append(got, e) })
	assert.ErrorIs(t, err, io.EOF)
	require.Len(t, got, 2)
	assert.Equal(t, "h", classify.KeyLabel(got[0].Code))
	assert.Equal(t, time.Unix(10, 500000), got[0].Timestamp)
	assert.Equal(t, "i", classify.KeyLabel(got[1].Code))
}
