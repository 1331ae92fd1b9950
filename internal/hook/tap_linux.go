//go:build linux

package hook

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sys/unix"
)

const (
	procInputDevices = "/proc/bus/input/devices"
	devInputDir      = "/dev/input"

	// hotplugSettle is how long a new device node gets before it is
	// opened; udev fixes its permissions right after creating it.
	hotplugSettle = 100 * time.Millisecond
)

// evdevTap reads key and button presses straight from /dev/input. It
// needs read access to the event nodes, usually membership of the
// "input" group. New devices are picked up as they appear.
type evdevTap struct {
	mu      sync.Mutex
	devices map[string]*os.File
	watcher *fsnotify.Watcher
	handler Handler
	mask    EventMask
	dec     *evdevDecoder
	wg      sync.WaitGroup

	enabled atomic.Bool
}

// NewSystemTap returns the evdev tap.
func NewSystemTap() Tap {
	return &evdevTap{}
}

// ListDevices returns the input devices the tap reads from.
func ListDevices() ([]InputDevice, error) {
	f, err := os.Open(procInputDevices)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotAvailable, err)
	}
	defer f.Close()
	return parseInputDevices(f)
}

func listInputDevices() ([]string, error) {
	devices, err := ListDevices()
	if err != nil {
		return nil, err
	}
	nodes := make([]string, len(devices))
	for i, dev := range devices {
		nodes[i] = dev.Node
	}
	return nodes, nil
}

// Trusted reports false only when devices exist and none is readable.
func (t *evdevTap) Trusted() bool {
	devices, err := listInputDevices()
	if err != nil || len(devices) == 0 {
		return true
	}
	for _, dev := range devices {
		if unix.Access(dev, unix.R_OK) == nil {
			return true
		}
	}
	return false
}

// RequestPermission is a no-op; access to /dev/input is granted by
// group membership, not by a prompt.
func (t *evdevTap) RequestPermission() {}

func (t *evdevTap) Create(mask EventMask, h Handler) error {
	devices, err := listInputDevices()
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		return fmt.Errorf("%w: no input devices", ErrNotAvailable)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.devices = make(map[string]*os.File)
	t.handler = h
	t.mask = mask
	t.dec = newEvdevDecoder()

	denied := 0
	for _, dev := range devices {
		if err := t.openLocked(dev); errors.Is(err, fs.ErrPermission) {
			denied++
		}
	}
	if len(t.devices) == 0 {
		t.devices = nil
		if denied > 0 {
			return ErrPermissionDenied
		}
		return fmt.Errorf("%w: no readable input devices", ErrNotAvailable)
	}

	if w, err := fsnotify.NewWatcher(); err == nil {
		if err := w.Add(devInputDir); err == nil {
			t.watcher = w
			t.wg.Add(1)
			go t.watch(w)
		} else {
			w.Close()
		}
	}

	t.enabled.Store(true)
	return nil
}

// openLocked opens dev and starts its reader. t.mu must be held.
func (t *evdevTap) openLocked(dev string) error {
	if _, ok := t.devices[dev]; ok {
		return nil
	}
	f, err := os.Open(dev)
	if err != nil {
		return err
	}
	t.devices[dev] = f
	t.wg.Add(1)
	go t.read(dev, f)
	return nil
}

func (t *evdevTap) read(dev string, f *os.File) {
	defer t.wg.Done()
	_ = pumpEvdev(f, t.dec, t.deliver)

	t.mu.Lock()
	if t.devices[dev] == f {
		delete(t.devices, dev)
	}
	t.mu.Unlock()
	f.Close()
}

func (t *evdevTap) deliver(e Event) {
	if !t.enabled.Load() {
		return
	}
	if e.Kind == KeyDown && t.mask&MaskKeyDown == 0 {
		return
	}
	if e.Kind == MouseDown && t.mask&MaskMouseDown == 0 {
		return
	}
	t.handler.OnEvent(e)
}

// watch attaches event nodes created after Create.
func (t *evdevTap) watch(w *fsnotify.Watcher) {
	defer t.wg.Done()
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Create) || !strings.HasPrefix(filepath.Base(ev.Name), "event") {
				continue
			}
			time.Sleep(hotplugSettle)
			t.attach(ev.Name)
		case _, ok := <-w.Errors:
			if !ok {
				return
			}
		}
	}
}

func (t *evdevTap) attach(node string) {
	devices, err := listInputDevices()
	if err != nil {
		return
	}
	for _, dev := range devices {
		if dev != node {
			continue
		}
		t.mu.Lock()
		if t.devices != nil {
			_ = t.openLocked(dev)
		}
		t.mu.Unlock()
		return
	}
}

func (t *evdevTap) Enable(on bool) {
	t.enabled.Store(on)
}

// Enabled reports whether presses are delivered. A tap whose devices
// have all gone away is not enabled.
func (t *evdevTap) Enabled() bool {
	if !t.enabled.Load() {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.devices) > 0
}

func (t *evdevTap) Remove() {
	t.mu.Lock()
	if t.devices == nil {
		t.mu.Unlock()
		return
	}
	t.enabled.Store(false)
	if t.watcher != nil {
		t.watcher.Close()
		t.watcher = nil
	}
	for _, f := range t.devices {
		f.Close()
	}
	t.devices = nil
	t.mu.Unlock()

	t.wg.Wait()
}

func (t *evdevTap) Exists() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.devices != nil
}
