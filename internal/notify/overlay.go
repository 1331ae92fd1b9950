package notify

import "sync"

// DefaultOverlaySize is how many keys the overlay feed keeps.
const DefaultOverlaySize = 32

// Ring keeps the most recent overlay labels, oldest first.
type Ring struct {
	mu       sync.Mutex
	size     int
	keys     []string
	onChange func([]string)
}

// NewRing returns a ring holding up to size labels. onChange, if set, is
// called with a copy of the contents after every Show.
func NewRing(size int, onChange func([]string)) *Ring {
	if size <= 0 {
		size = DefaultOverlaySize
	}
	return &Ring{size: size, keys: make([]string, 0, size), onChange: onChange}
}

// Show implements Overlay.
func (r *Ring) Show(display string) {
	r.mu.Lock()
	if len(r.keys) == r.size {
		copy(r.keys, r.keys[1:])
		r.keys = r.keys[:r.size-1]
	}
	r.keys = append(r.keys, display)
	snapshot := append([]string(nil), r.keys...)
	r.mu.Unlock()

	if r.onChange != nil {
		r.onChange(snapshot)
	}
}

// Recent returns the stored labels, oldest first.
func (r *Ring) Recent() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.keys...)
}

// Clear empties the ring.
func (r *Ring) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = r.keys[:0]
}
