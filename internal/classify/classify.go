// Package classify maps raw input events to stable string labels.
//
// Key events are identified by macOS virtual key code. Mouse button
// events are identified by button ordinal. Every function in this
// package is pure and safe to call from the capture callback.
package classify

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Kind is the kind of raw input event being classified.
type Kind int

const (
	KindKeyDown Kind = iota
	KindMouseDown
)

// Modifiers is the set of modifier keys held when an event fired.
type Modifiers uint8

const (
	ModControl Modifiers = 1 << iota
	ModOption
	ModShift
	ModCommand
	ModCapsLock
)

// comboMask holds the modifiers that turn a press into a combo.
// CapsLock is a latch, not a chord, so it is excluded.
const comboMask = ModControl | ModOption | ModShift | ModCommand

// Has reports whether every modifier in m2 is set in m.
func (m Modifiers) Has(m2 Modifiers) bool {
	return m&m2 == m2
}

// Input is a raw input event as delivered by the hook.
type Input struct {
	Kind      Kind
	Code      uint16
	Button    int
	Modifiers Modifiers
}

// Result is the outcome of classifying one Input.
type Result struct {
	// Label is the base label counted in lifetime and daily counts.
	Label string
	// Combo is the modifier-decorated label, set only when HasCombo.
	Combo    string
	HasCombo bool
	// Overlay is the display string for the keystroke overlay feed.
	Overlay     string
	FeedOverlay bool
}

var keyNames = map[uint16]string{
	0: "a", 1: "s", 2: "d", 3: "f", 4: "h", 5: "g",
	6: "z", 7: "x", 8: "c", 9: "v", 11: "b", 12: "q",
	13: "w", 14: "e", 15: "r", 16: "y", 17: "t",
	18: "1", 19: "2", 20: "3", 21: "4", 22: "6", 23: "5",
	24: "=", 25: "9", 26: "7", 27: "-", 28: "8", 29: "0",
	30: "]", 31: "o", 32: "u", 33: "[", 34: "i", 35: "p",
	36: "Return", 37: "l", 38: "j", 39: "'", 40: "k", 41: ";",
	42: "\\", 43: ",", 44: "/", 45: "n", 46: "m", 47: ".",
	48: "Tab", 49: "Space", 50: "`", 51: "Delete", 53: "Escape",
	54: "⌘Cmd", 55: "⌘Cmd", 56: "⇧Shift", 57: "CapsLock",
	58: "⌥Option", 59: "⌃Ctrl", 60: "⇧Shift", 61: "⌥Option", 62: "⌃Ctrl",
	63: "Fn", 76: "Enter(Num)",
	96: "F5", 97: "F6", 98: "F7", 99: "F3", 100: "F8",
	101: "F9", 103: "F11", 109: "F10", 111: "F12",
	118: "F4", 120: "F2", 122: "F1",
	117: "⌦FwdDel",
	123: "←", 124: "→", 125: "↓", 126: "↑",
}

// Symbols used for special keys inside combo labels.
var comboSymbols = map[string]string{
	"Return":     "↵",
	"Delete":     "⌫",
	"Space":      "⎵",
	"Tab":        "⇥",
	"Escape":     "⎋",
	"Enter(Num)": "↵",
	"⌦FwdDel":    "⌦",
}

// KeyLabel returns the label for a virtual key code. Unknown codes
// produce "Key(<code>)" so no press is dropped.
func KeyLabel(code uint16) string {
	if name, ok := keyNames[code]; ok {
		return name
	}
	return "Key(" + strconv.Itoa(int(code)) + ")"
}

// MouseLabel returns the label for a mouse button ordinal.
func MouseLabel(button int) string {
	switch button {
	case 0:
		return "🖱Left"
	case 1:
		return "🖱Right"
	case 2:
		return "🖱Middle"
	default:
		return "🖱Button" + strconv.Itoa(button)
	}
}

// IsModifierKey reports whether code is one of the modifier keys
// themselves (left and right variants, CapsLock and Fn).
func IsModifierKey(code uint16) bool {
	return code >= 54 && code <= 63
}

// ComboLabel decorates base with the held modifiers in the order ⌃⌥⇧⌘.
// It returns false when no combo modifier is held.
func ComboLabel(mods Modifiers, base string) (string, bool) {
	if mods&comboMask == 0 {
		return "", false
	}

	var b strings.Builder
	if mods.Has(ModControl) {
		b.WriteString("⌃")
	}
	if mods.Has(ModOption) {
		b.WriteString("⌥")
	}
	if mods.Has(ModShift) {
		b.WriteString("⇧")
	}
	if mods.Has(ModCommand) {
		b.WriteString("⌘")
	}

	switch {
	case comboSymbols[base] != "":
		b.WriteString(comboSymbols[base])
	case isSingleLetter(base):
		b.WriteString(strings.ToUpper(base))
	default:
		b.WriteString(base)
	}
	return b.String(), true
}

// Classify runs both classification passes for one event.
func Classify(in Input) Result {
	var res Result
	switch in.Kind {
	case KindMouseDown:
		res.Label = MouseLabel(in.Button)
		return res
	default:
		res.Label = KeyLabel(in.Code)
	}

	if IsModifierKey(in.Code) {
		return res
	}

	res.Combo, res.HasCombo = ComboLabel(in.Modifiers, res.Label)
	// The overlay only receives unmodified presses; combos are shown
	// through the combo statistic instead.
	if !res.HasCombo {
		res.Overlay = res.Label
		res.FeedOverlay = true
	}
	return res
}

func isSingleLetter(s string) bool {
	r, size := utf8.DecodeRuneInString(s)
	return size == len(s) && unicode.IsLetter(r)
}

var keyCodes = func() map[string]uint16 {
	m := make(map[string]uint16, len(keyNames))
	for code, name := range keyNames {
		if prev, ok := m[name]; !ok || code < prev {
			m[name] = code
		}
	}
	return m
}()

// KeyCode returns the virtual key code for a key label. Labels shared by
// left and right modifier keys resolve to the lower code.
func KeyCode(label string) (uint16, bool) {
	code, ok := keyCodes[label]
	return code, ok
}
