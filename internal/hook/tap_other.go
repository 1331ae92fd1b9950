//go:build !linux && (!darwin || !cgo)

package hook

// stubTap is used where no global event tap is implemented.
type stubTap struct{}

// NewSystemTap returns the platform event tap. On this platform every
// Create fails with ErrNotAvailable; use a SimulatedTap instead.
func NewSystemTap() Tap {
	return stubTap{}
}

func (stubTap) Trusted() bool { return true }
func (stubTap) RequestPermission() {}
func (stubTap) Create(EventMask, Handler) error { return ErrNotAvailable }
func (stubTap) Enable(bool) {}
func (stubTap) Enabled() bool { return false }
func (stubTap) Remove() {}
func (stubTap) Exists() bool { return false }
