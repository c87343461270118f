// Package hotkey watches kernel keyboard input devices for the toggle/cancel
// bindings (SPEC_FULL §4.3 / C2), grounded on
// AshBuk-speak-to-ai/hotkeys/evdev_provider.go's gvalkov/golang-evdev usage.
package hotkey

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	evdev "github.com/gvalkov/golang-evdev"

	"github.com/vokey/transcribe/internal/core"
)

const evKeyType = 1 // evdev EV_KEY

// Device describes one readable input device under /dev/input.
type Device struct {
	Path string
	Name string
}

// ListKeyboardDevices enumerates /dev/input/event* nodes that expose key
// events, opening and immediately closing each to test readability.
func ListKeyboardDevices() ([]Device, error) {
	paths, err := filepath.Glob("/dev/input/event*")
	if err != nil {
		return nil, fmt.Errorf("list input devices: %w", err)
	}

	var devices []Device
	for _, path := range paths {
		dev, err := evdev.Open(path)
		if err != nil {
			continue
		}
		if hasKeyEvents(dev) {
			devices = append(devices, Device{Path: path, Name: dev.Name})
		}
		dev.File.Close()
	}
	return devices, nil
}

func hasKeyEvents(dev *evdev.InputDevice) bool {
	for evType := range dev.Capabilities {
		if evType.Type == evKeyType {
			return len(dev.Capabilities[evType]) > 0
		}
	}
	return false
}

// modifierBit tracks one of the eight independent modifier keys
// (SPEC_FULL §4.3 "ModifierState with eight independent bits").
type modifierBit uint8

const (
	modLeftCtrl modifierBit = 1 << iota
	modRightCtrl
	modLeftAlt
	modRightAlt
	modLeftShift
	modRightShift
	modLeftMeta
	modRightMeta
)

var modifierKeyBits = map[string]modifierBit{
	"leftctrl":   modLeftCtrl,
	"rightctrl":  modRightCtrl,
	"leftalt":    modLeftAlt,
	"rightalt":   modRightAlt,
	"leftshift":  modLeftShift,
	"rightshift": modRightShift,
	"leftmeta":   modLeftMeta,
	"rightmeta":  modRightMeta,
}

// genericModifierBits expands a symbolic modifier name ("ctrl", "alt", ...)
// into the left+right bits that satisfy it; either side pressed counts.
var genericModifierBits = map[string]modifierBit{
	"ctrl":  modLeftCtrl | modRightCtrl,
	"alt":   modLeftAlt | modRightAlt,
	"shift": modLeftShift | modRightShift,
	"meta":  modLeftMeta | modRightMeta,
	"super": modLeftMeta | modRightMeta,
}

// Binding is a parsed "mod+mod+key" hotkey string, e.g. "ctrl+alt+space".
type Binding struct {
	Key       string
	Modifiers modifierBit
}

// ParseBinding parses a binding string such as "ctrl+alt+space" or "escape".
func ParseBinding(s string) (Binding, error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(s)), "+")
	if len(parts) == 0 || parts[len(parts)-1] == "" {
		return Binding{}, fmt.Errorf("empty hotkey binding")
	}

	b := Binding{Key: parts[len(parts)-1]}
	for _, mod := range parts[:len(parts)-1] {
		bits, ok := genericModifierBits[mod]
		if !ok {
			return Binding{}, fmt.Errorf("unknown modifier %q in binding %q", mod, s)
		}
		b.Modifiers |= bits
	}
	return b, nil
}

// keyNameByCode maps the evdev key codes relevant to default bindings and
// common alphanumeric keys (SPEC_FULL §4.3), as in evdev_provider.go.
var keyNameByCode = map[int]string{
	1: "escape", 57: "space", 28: "enter", 15: "tab",
	16: "q", 17: "w", 18: "e", 19: "r", 20: "t", 21: "y", 22: "u", 23: "i", 24: "o", 25: "p",
	30: "a", 31: "s", 32: "d", 33: "f", 34: "g", 35: "h", 36: "j", 37: "k", 38: "l",
	44: "z", 45: "x", 46: "c", 47: "v", 48: "b", 49: "n", 50: "m",
	29: "leftctrl", 97: "rightctrl",
	56: "leftalt", 100: "rightalt",
	42: "leftshift", 54: "rightshift",
	125: "leftmeta", 126: "rightmeta",
}

// Watcher reads every keyboard device and emits HotkeyToggle/Cancel to the
// interaction core. Debounce state is shared across devices via a single
// compare-and-swap timestamp, so no two devices can double-fire the same
// physical press (SPEC_FULL §4.3).
type Watcher struct {
	toggle   Binding
	cancel   Binding
	debounce time.Duration
	logger   *slog.Logger

	held         atomic.Uint32
	lastAccepted atomic.Int64

	mu       sync.Mutex
	lastErr  error
}

// NewWatcher parses the configured bindings and constructs a Watcher.
func NewWatcher(toggleBinding, cancelBinding string, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	toggle, err := ParseBinding(toggleBinding)
	if err != nil {
		return nil, fmt.Errorf("parse hotkey.toggle: %w", err)
	}
	var cancel Binding
	if strings.TrimSpace(cancelBinding) != "" {
		cancel, err = ParseBinding(cancelBinding)
		if err != nil {
			return nil, fmt.Errorf("parse hotkey.cancel: %w", err)
		}
	}
	return &Watcher{toggle: toggle, cancel: cancel, debounce: debounce, logger: logger}, nil
}

// Status reports the last fatal device-layer error, if any, for exposure via
// status queries; the reducer itself is never informed (SPEC_FULL §4.3).
func (w *Watcher) Status() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastErr
}

func (w *Watcher) setErr(err error) {
	w.mu.Lock()
	w.lastErr = err
	w.mu.Unlock()
}

// Run opens every keyboard device and blocks until ctx is cancelled or all
// device readers have exited.
func (w *Watcher) Run(ctx context.Context, emit core.Emit) {
	devices, err := ListKeyboardDevices()
	if err != nil {
		w.setErr(err)
		return
	}
	if len(devices) == 0 {
		w.setErr(fmt.Errorf("no readable keyboard devices found"))
		return
	}

	var wg sync.WaitGroup
	for _, d := range devices {
		wg.Add(1)
		go func(d Device) {
			defer wg.Done()
			w.readDevice(ctx, d, emit)
		}(d)
	}
	wg.Wait()
}

func (w *Watcher) readDevice(ctx context.Context, d Device, emit core.Emit) {
	dev, err := evdev.Open(d.Path)
	if err != nil {
		w.logf("open device %s: %v", d.Path, err)
		return
	}
	defer dev.File.Close()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		events, err := dev.Read()
		if err != nil {
			w.logf("read device %s failed, terminating this device's task: %v", d.Path, err)
			return
		}
		for _, ev := range events {
			if ev.Type != evKeyType {
				continue
			}
			w.handle(ev, emit)
		}
	}
}

func (w *Watcher) handle(ev evdev.InputEvent, emit core.Emit) {
	name, ok := keyNameByCode[int(ev.Code)]
	if !ok {
		return
	}

	if bit, isModifier := modifierKeyBits[name]; isModifier {
		for {
			cur := w.held.Load()
			var next uint32
			if ev.Value == 1 {
				next = cur | uint32(bit)
			} else if ev.Value == 0 {
				next = cur &^ uint32(bit)
			} else {
				return // repeat event, ignore
			}
			if w.held.CompareAndSwap(cur, next) {
				return
			}
		}
	}

	if ev.Value != 1 { // only key-down, never repeat(2) or release(0)
		return
	}

	held := modifierBit(w.held.Load())
	switch {
	case w.toggle.Key == name && heldSatisfies(w.toggle.Modifiers, held):
		w.emitDebounced(emit, core.EventHotkeyToggle)
	case w.cancel.Key != "" && w.cancel.Key == name && heldSatisfies(w.cancel.Modifiers, held):
		w.emitDebounced(emit, core.EventCancel)
	}
}

// heldSatisfies reports whether every generic modifier group encoded in
// required has at least one of its bits present in held.
func heldSatisfies(required, held modifierBit) bool {
	for _, group := range []modifierBit{
		modLeftCtrl | modRightCtrl,
		modLeftAlt | modRightAlt,
		modLeftShift | modRightShift,
		modLeftMeta | modRightMeta,
	} {
		if required&group == 0 {
			continue
		}
		if held&group == 0 {
			return false
		}
	}
	return true
}

func (w *Watcher) emitDebounced(emit core.Emit, kind core.EventKind) {
	now := time.Now().UnixNano()
	for {
		last := w.lastAccepted.Load()
		if time.Duration(now-last) < w.debounce {
			return
		}
		if w.lastAccepted.CompareAndSwap(last, now) {
			emit(core.Event{Kind: kind, Now: time.Now()})
			return
		}
	}
}

func (w *Watcher) logf(format string, args ...any) {
	if w.logger == nil {
		return
	}
	w.logger.Warn(fmt.Sprintf(format, args...))
}
