//go:build !linux

package hook

// ListDevices is only implemented on Linux. Other platforms tap a single
// system-wide event stream rather than individual devices.
func ListDevices() ([]InputDevice, error) {
	return nil, ErrNotAvailable
}
