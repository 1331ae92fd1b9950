package classify

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// Category groups labels for per-category totals.
type Category string

const (
	CategoryLetter   Category = "letter"
	CategoryNumber   Category = "number"
	CategoryArrow    Category = "arrow"
	CategoryControl  Category = "control"
	CategoryFunction Category = "function"
	CategoryMouse    Category = "mouse"
	CategoryOther    Category = "other"
)

// Categories returns every category in display order.
func Categories() []Category {
	return []Category{
		CategoryLetter,
		CategoryNumber,
		CategoryArrow,
		CategoryControl,
		CategoryFunction,
		CategoryMouse,
		CategoryOther,
	}
}

// Title returns a human-readable plural name.
func (c Category) Title() string {
	switch c {
	case CategoryLetter:
		return "Letters"
	case CategoryNumber:
		return "Numbers"
	case CategoryArrow:
		return "Arrows"
	case CategoryControl:
		return "Control"
	case CategoryFunction:
		return "Function"
	case CategoryMouse:
		return "Mouse"
	default:
		return "Other"
	}
}

var controlLabels = map[string]bool{
	"Return":     true,
	"Tab":        true,
	"Space":      true,
	"Delete":     true,
	"Escape":     true,
	"⌘Cmd":       true,
	"⇧Shift":     true,
	"CapsLock":   true,
	"⌥Option":    true,
	"⌃Ctrl":      true,
	"Fn":         true,
	"Enter(Num)": true,
	"⌦FwdDel":    true,
}

var arrowLabels = map[string]bool{"←": true, "→": true, "↑": true, "↓": true}

// CategoryOf classifies a label produced by KeyLabel or MouseLabel.
func CategoryOf(label string) Category {
	if strings.HasPrefix(label, "🖱") {
		return CategoryMouse
	}

	if utf8.RuneCountInString(label) == 1 {
		r, _ := utf8.DecodeRuneInString(label)
		switch {
		case r >= 'a' && r <= 'z':
			return CategoryLetter
		case r >= '0' && r <= '9':
			return CategoryNumber
		}
	}

	if arrowLabels[label] {
		return CategoryArrow
	}
	if controlLabels[label] {
		return CategoryControl
	}

	if len(label) >= 2 && label[0] == 'F' {
		if _, err := strconv.Atoi(label[1:]); err == nil {
			return CategoryFunction
		}
	}

	return CategoryOther
}
