//go:build darwin && cgo

package hook

/*
#cgo LDFLAGS: -framework ApplicationServices -framework CoreFoundation

#include <ApplicationServices/ApplicationServices.h>
#include <stdint.h>

static Boolean axTrusted(Boolean prompt) {
    const void *keys[] = { kAXTrustedCheckOptionPrompt };
    const void *values[] = { prompt ? kCFBooleanTrue : kCFBooleanFalse };
    CFDictionaryRef options = CFDictionaryCreate(kCFAllocatorDefault, keys, values, 1,
                                                 &kCFTypeDictionaryKeyCallBacks,
                                                 &kCFTypeDictionaryValueCallBacks);
    Boolean trusted = AXIsProcessTrustedWithOptions(options);
    CFRelease(options);
    return trusted;
}

extern CGEventRef goTapCallback(CGEventTapProxy proxy, CGEventType type, CGEventRef event, void *userInfo);

// Listen-only and appended after other taps, so a slow callback can never
// hold up delivery to applications.
static CFMachPortRef createTap(uintptr_t handle, CGEventMask mask) {
    return CGEventTapCreate(kCGSessionEventTap,
                            kCGTailAppendEventTap,
                            kCGEventTapOptionListenOnly,
                            mask,
                            goTapCallback,
                            (void *)handle);
}

static CGEventMask maskBit(CGEventType type) {
    return ((CGEventMask)1) << type;
}

static int isDisabledEvent(CGEventType type) {
    return type == kCGEventTapDisabledByTimeout || type == kCGEventTapDisabledByUserInput;
}

static int64_t eventKeycode(CGEventRef event) {
    return CGEventGetIntegerValueField(event, kCGKeyboardEventKeycode);
}

static int64_t eventButton(CGEventRef event) {
    return CGEventGetIntegerValueField(event, kCGMouseEventButtonNumber);
}

static uint64_t eventFlags(CGEventRef event) {
    return (uint64_t)CGEventGetFlags(event);
}
*/
import "C"

import (
	"runtime"
	"runtime/cgo"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"keylens/internal/classify"
)

// darwinTap is a CGEventTap serviced by a CFRunLoop on a dedicated,
// locked OS thread.
type darwinTap struct {
	mu      sync.Mutex
	port    C.CFMachPortRef
	source  C.CFRunLoopSourceRef
	loop    C.CFRunLoopRef
	handle  cgo.Handle
	handler Handler
	done    chan struct{}

	// live mirrors port for Enable, which runs on the callback thread
	// and so cannot take mu while Remove is joining that thread.
	live atomic.Uintptr
}

// NewSystemTap returns the platform event tap.
func NewSystemTap() Tap {
	return &darwinTap{}
}

func (t *darwinTap) Trusted() bool {
	return C.axTrusted(C.Boolean(0)) != C.Boolean(0)
}

func (t *darwinTap) RequestPermission() {
	C.axTrusted(C.Boolean(1))
}

func (t *darwinTap) Create(mask EventMask, h Handler) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port != 0 {
		return nil
	}

	var cmask C.CGEventMask
	if mask&MaskKeyDown != 0 {
		cmask |= C.maskBit(C.kCGEventKeyDown)
	}
	if mask&MaskMouseDown != 0 {
		cmask |= C.maskBit(C.kCGEventLeftMouseDown) |
			C.maskBit(C.kCGEventRightMouseDown) |
			C.maskBit(C.kCGEventOtherMouseDown)
	}

	t.handler = h
	t.handle = cgo.NewHandle(t)
	ready := make(chan error, 1)
	t.done = make(chan struct{})
	go t.runLoop(cmask, ready)

	if err := <-ready; err != nil {
		t.handle.Delete()
		t.handle = 0
		t.handler = nil
		return err
	}
	return nil
}

// runLoop creates the tap on its own thread and services it until the
// run loop is stopped by Remove.
func (t *darwinTap) runLoop(mask C.CGEventMask, ready chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(t.done)

	// Monitor.Start has already checked trust, so a NULL port here is
	// a creation failure, not missing permission.
	port := C.createTap(C.uintptr_t(t.handle), mask)
	if port == 0 {
		ready <- ErrTapCreate
		return
	}
	source := C.CFMachPortCreateRunLoopSource(C.kCFAllocatorDefault, port, 0)
	if source == 0 {
		C.CFRelease(C.CFTypeRef(port))
		ready <- ErrTapCreate
		return
	}

	loop := C.CFRunLoopGetCurrent()
	C.CFRunLoopAddSource(loop, source, C.kCFRunLoopCommonModes)
	C.CGEventTapEnable(port, C.bool(true))

	t.port, t.source, t.loop = port, source, loop
	t.live.Store(uintptr(port))
	ready <- nil

	C.CFRunLoopRun()

	C.CFRunLoopRemoveSource(loop, source, C.kCFRunLoopCommonModes)
	C.CFRelease(C.CFTypeRef(source))
	C.CFRelease(C.CFTypeRef(port))
}

func (t *darwinTap) Enable(on bool) {
	port := t.live.Load()
	if port == 0 {
		return
	}
	C.CGEventTapEnable(C.CFMachPortRef(port), C.bool(on))
}

func (t *darwinTap) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == 0 {
		return false
	}
	return bool(C.CGEventTapIsEnabled(t.port))
}

func (t *darwinTap) Remove() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port == 0 {
		return
	}
	t.live.Store(0)
	C.CGEventTapEnable(t.port, C.bool(false))
	C.CFRunLoopStop(t.loop)
	<-t.done

	t.handle.Delete()
	t.port, t.source, t.loop, t.handle = 0, 0, 0, 0
	t.handler = nil
}

func (t *darwinTap) Exists() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.port != 0
}

func modifiersFromFlags(flags uint64) classify.Modifiers {
	var m classify.Modifiers
	if flags&uint64(C.kCGEventFlagMaskControl) != 0 {
		m |= classify.ModControl
	}
	if flags&uint64(C.kCGEventFlagMaskAlternate) != 0 {
		m |= classify.ModOption
	}
	if flags&uint64(C.kCGEventFlagMaskShift) != 0 {
		m |= classify.ModShift
	}
	if flags&uint64(C.kCGEventFlagMaskCommand) != 0 {
		m |= classify.ModCommand
	}
	if flags&uint64(C.kCGEventFlagMaskAlphaShift) != 0 {
		m |= classify.ModCapsLock
	}
	return m
}

//export goTapCallback
func goTapCallback(_ C.CGEventTapProxy, eventType C.CGEventType, event C.CGEventRef, userInfo unsafe.Pointer) C.CGEventRef {
	t, ok := cgo.Handle(uintptr(userInfo)).Value().(*darwinTap)
	if !ok || t.handler == nil {
		return event
	}

	ev := Event{Timestamp: time.Now()}
	switch {
	case C.isDisabledEvent(eventType) != 0:
		ev.Kind = TapDisabled
	case eventType == C.kCGEventKeyDown:
		ev.Kind = KeyDown
		ev.Code = uint16(C.eventKeycode(event))
		ev.Flags = modifiersFromFlags(uint64(C.eventFlags(event)))
	case eventType == C.kCGEventLeftMouseDown:
		ev.Kind = MouseDown
		ev.Button = 0
	case eventType == C.kCGEventRightMouseDown:
		ev.Kind = MouseDown
		ev.Button = 1
	case eventType == C.kCGEventOtherMouseDown:
		ev.Kind = MouseDown
		ev.Button = int(C.eventButton(event))
	default:
		return event
	}

	t.handler.OnEvent(ev)
	return event
}
