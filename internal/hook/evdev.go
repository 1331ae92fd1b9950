package hook

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"keylens/internal/classify"
)

// Linux evdev constants from linux/input-event-codes.h.
const (
	evKey = 0x01

	keyRelease = 0
	keyPress   = 1
	keyRepeat  = 2

	btnLeft  = 0x110
	btnExtra = 0x114

	// evdevEventSize is sizeof(struct input_event) on 64-bit kernels.
	evdevEventSize = 24

	// evdevUnknownBase offsets evdev codes with no label so they land
	// outside the virtual key code range as "Key(<1000+code>)".
	evdevUnknownBase = 1000
)

// evdevLabels maps evdev key codes to classifier labels.
var evdevLabels = map[uint16]string{
	1: "Escape", 2: "1", 3: "2", 4: "3", 5: "4", 6: "5", 7: "6", 8: "7",
	9: "8", 10: "9", 11: "0", 12: "-", 13: "=", 14: "Delete", 15: "Tab",
	16: "q", 17: "w", 18: "e", 19: "r", 20: "t", 21: "y", 22: "u",
	23: "i", 24: "o", 25: "p", 26: "[", 27: "]", 28: "Return",
	29: "⌃Ctrl", 30: "a", 31: "s", 32: "d", 33: "f", 34: "g", 35: "h",
	36: "j", 37: "k", 38: "l", 39: ";", 40: "'", 41: "`", 42: "⇧Shift",
	43: "\\", 44: "z", 45: "x", 46: "c", 47: "v", 48: "b", 49: "n",
	50: "m", 51: ",", 52: ".", 53: "/", 54: "⇧Shift", 56: "⌥Option",
	57: "Space", 58: "CapsLock",
	59: "F1", 60: "F2", 61: "F3", 62: "F4", 63: "F5", 64: "F6",
	65: "F7", 66: "F8", 67: "F9", 68: "F10", 87: "F11", 88: "F12",
	96: "Enter(Num)", 97: "⌃Ctrl", 100: "⌥Option",
	103: "↑", 105: "←", 106: "→", 108: "↓", 111: "⌦FwdDel",
	125: "⌘Cmd", 126: "⌘Cmd",
}

// evdevModifiers maps held modifier keys to their modifier bit.
var evdevModifiers = map[uint16]classify.Modifiers{
	29: classify.ModControl, 97: classify.ModControl,
	42: classify.ModShift, 54: classify.ModShift,
	56: classify.ModOption, 100: classify.ModOption,
	125: classify.ModCommand, 126: classify.ModCommand,
}

const evdevCapsLock = 58

// evdevKeyCode converts an evdev key code to a virtual key code.
func evdevKeyCode(code uint16) uint16 {
	if label, ok := evdevLabels[code]; ok {
		if vk, ok := classify.KeyCode(label); ok {
			return vk
		}
	}
	return evdevUnknownBase + code
}

// evdevDecoder turns raw evdev key events into Events. Modifier state
// is shared by every device, so a held keyboard modifier decorates mouse
// clicks too.
type evdevDecoder struct {
	mu   sync.Mutex
	held map[uint16]bool
	caps bool
}

func newEvdevDecoder() *evdevDecoder {
	return &evdevDecoder{held: make(map[uint16]bool)}
}

// modifiers must be called with d.mu held.
func (d *evdevDecoder) modifiers() classify.Modifiers {
	var mods classify.Modifiers
	for code, down := range d.held {
		if down {
			mods |= evdevModifiers[code]
		}
	}
	if d.caps {
		mods |= classify.ModCapsLock
	}
	return mods
}

// decode returns the Event for one raw input event, or false when it is
// not a press. Autorepeat is not a press.
func (d *evdevDecoder) decode(typ, code uint16, value int32, ts time.Time) (Event, bool) {
	if typ != evKey || value == keyRepeat {
		return Event{}, false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	// A modifier press already carries its own bit.
	if _, ok := evdevModifiers[code]; ok {
		d.held[code] = value == keyPress
	}
	if value != keyPress {
		return Event{}, false
	}
	if code == evdevCapsLock {
		d.caps = !d.caps
	}

	if code >= btnLeft && code <= btnExtra {
		return Event{
			Kind:      MouseDown,
			Button:    int(code - btnLeft),
			Flags:     d.modifiers(),
			Timestamp: ts,
		}, true
	}
	return Event{
		Kind:      KeyDown,
		Code:      evdevKeyCode(code),
		Flags:     d.modifiers(),
		Timestamp: ts,
	}, true
}

// pumpEvdev reads raw input events from r until it fails, passing every
// press to deliver. It returns the read error; io.EOF for a clean end.
func pumpEvdev(r io.Reader, dec *evdevDecoder, deliver func(Event)) error {
	buf := make([]byte, evdevEventSize)
	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return io.EOF
			}
			return err
		}
		sec := int64(binary.LittleEndian.Uint64(buf[0:8]))
		usec := int64(binary.LittleEndian.Uint64(buf[8:16]))
		typ := binary.LittleEndian.Uint16(buf[16:18])
		code := binary.LittleEndian.Uint16(buf[18:20])
		value := int32(binary.LittleEndian.Uint32(buf[20:24]))

		if ev, ok := dec.decode(typ, code, value, time.Unix(sec, usec*1000)); ok {
			deliver(ev)
		}
	}
}

// InputDevice is an input device that reports key or button presses.
type InputDevice struct {
	Name string
	Node string
}

// parseInputDevices returns every device in a /proc/bus/input/devices
// listing that reports key or button capabilities and has an event node.
func parseInputDevices(r io.Reader) ([]InputDevice, error) {
	var (
		devices []InputDevice
		current InputDevice
		hasKeys bool
	)
	flush := func() {
		if hasKeys && current.Node != "" {
			devices = append(devices, current)
		}
		current, hasKeys = InputDevice{}, false
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "N: Name="):
			current.Name = strings.Trim(strings.TrimPrefix(line, "N: Name="), `"`)
		case strings.HasPrefix(line, "H: Handlers="):
			for _, part := range strings.Fields(strings.TrimPrefix(line, "H: Handlers=")) {
				if strings.HasPrefix(part, "event") {
					current.Node = "/dev/input/" + part
				}
			}
		case strings.HasPrefix(line, "B: KEY="):
			bitmap := strings.TrimPrefix(line, "B: KEY=")
			hasKeys = strings.Trim(bitmap, "0 ") != ""
		}
	}
	flush()
	return devices, scanner.Err()
}
