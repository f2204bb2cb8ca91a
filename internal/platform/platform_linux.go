//go:build linux

package platform

import (
	"os"
	"sync"
	"syscall"
	"unsafe"

	evdev "github.com/gvalkov/golang-evdev"
	"github.com/sirupsen/logrus"

	"padswitch/internal/device"
	"padswitch/internal/hidenum"
	"padswitch/internal/perrors"
)

var log = logrus.WithField("component", "platform")

// EV_KEY codes a gamepad must expose at least one of, mirroring the
// BTN_GAMEPAD/BTN_SOUTH heuristic original_source/platform/linux.rs documents
// as "every other platform file is a stub; Linux never shipped XInput or
// HidHide, so it returns PlatformNotSupported for anything OS-proprietary."
const (
	btnSouth  = 0x130
	btnThumbl = 0x13d
	btnThumbr = 0x13e
)

// absRange is the kernel-reported [min,max] for one EV_ABS axis, read once
// per grab via EVIOCGABS so applyAxis can normalize to the canonical
// signed-16/unsigned-8 ranges instead of assuming the device already
// reports in those ranges (spec.md §4.5 "evdev variant of Force").
type absRange struct{ min, max int32 }

// grabbedDevice is one exclusively-grabbed evdev node, plus the state a
// background pump goroutine accumulates from it so Read never blocks on
// the blocking evdev.ReadOne call itself.
type grabbedDevice struct {
	dev   *evdev.InputDevice
	done  chan struct{}
	abs   map[uint16]absRange
	mu    sync.Mutex
	state device.GamepadState
}

// inputAbsInfo mirrors struct input_absinfo from <linux/input.h>.
type inputAbsInfo struct {
	value, min, max, fuzz, flat, resolution int32
}

// eviocgabs builds the EVIOCGABS(abs) ioctl request number: _IOR('E', 0x40+abs, struct input_absinfo).
func eviocgabs(axis uint16) uintptr {
	const (
		dirRead   = 2
		typeE     = 'E'
		sizeShift = 16
		typeShift = 8
		dirShift  = 30
	)
	size := uintptr(unsafe.Sizeof(inputAbsInfo{}))
	nr := uintptr(0x40 + axis)
	return uintptr(dirRead<<dirShift) | (size << sizeShift) | (uintptr(typeE) << typeShift) | nr
}

// readAbsRange queries the kernel's reported min/max for one absolute axis
// directly via ioctl, bypassing the evdev library's capability listing
// (which exposes which axes exist but not their calibrated ranges).
func readAbsRange(fd uintptr, axis uint16) (absRange, bool) {
	var info inputAbsInfo
	_, _, errno := syscall.Syscall(syscall.SYS_IOCTL, fd, eviocgabs(axis), uintptr(unsafe.Pointer(&info)))
	if errno != 0 {
		return absRange{}, false
	}
	if info.max == info.min {
		return absRange{}, false
	}
	return absRange{min: info.min, max: info.max}, true
}

func collectAbsRanges(fd uintptr) map[uint16]absRange {
	out := make(map[uint16]absRange, 6)
	for _, axis := range []uint16{absX, absY, absRX, absRY, absZ, absRZ} {
		if r, ok := readAbsRange(fd, axis); ok {
			out[axis] = r
		}
	}
	return out
}

// normalizeSigned16 maps v from [r.min,r.max] to the signed 16-bit range,
// per spec.md §4.5: "(v - min) / (max - min)" scaled to the target width.
func normalizeSigned16(v int32, r absRange) int16 {
	frac := float64(v-r.min) / float64(r.max-r.min)
	scaled := frac*65535.0 - 32768.0
	return int16(clampFloat(scaled, -32768, 32767))
}

// normalizeUnsigned8 maps v from [r.min,r.max] to the unsigned 8-bit range
// used by triggers.
func normalizeUnsigned8(v int32, r absRange) uint8 {
	frac := float64(v-r.min) / float64(r.max-r.min)
	scaled := frac * 255.0
	return uint8(clampFloat(scaled, 0, 255))
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// linuxServices implements Services on top of evdev enumeration/grab and a
// uinput virtual bus. Minimal mode has no Linux counterpart: there is no
// per-node enable/disable primitive independent of udev/systemd-logind, so
// SupportsMinimal reports false and appstate refuses Minimal at preflight
// rather than silently no-op'ing Disable/Enable.
type linuxServices struct {
	VirtualControllerManager

	mu    sync.Mutex
	grabs map[string]*grabbedDevice // instance path -> grabbed fd, while hidden
}

// New returns the Linux platform façade.
func New() Services {
	return &linuxServices{
		VirtualControllerManager: newUinputBus(),
		grabs:                    make(map[string]*grabbedDevice),
	}
}

func (s *linuxServices) SupportsMinimal() bool { return false }

func (s *linuxServices) IsElevated() bool {
	f, err := os.OpenFile("/dev/uinput", os.O_WRONLY, 0)
	if err != nil {
		return false
	}
	f.Close()
	return true
}

// Enumerate walks /dev/input/event* and keeps nodes that expose gamepad-like
// button capabilities, joining in the device's evdev Phys string as a
// reconnection-stable instance path (adapted from hidraw.go's sysfs walk,
// generalized from one fixed VID to any evdev gamepad). Each device is then
// cross-referenced against the OS HID subsystem by vendor/product id via
// internal/hidenum to backfill a human-readable name when evdev's own Name
// field is empty (some gamepad drivers register the evdev node with no
// name string at all).
func (s *linuxServices) Enumerate() ([]device.PhysicalDevice, error) {
	devs, err := evdev.ListInputDevices()
	if err != nil {
		return nil, perrors.IO("listing evdev devices", err)
	}

	hidInfo := hidMetadataByVendorProduct()

	var out []device.PhysicalDevice
	for _, d := range devs {
		if !isGamepad(d) {
			continue
		}
		instancePath := d.Phys
		if instancePath == "" {
			instancePath = d.Fn
		}
		name := d.Name
		if info, ok := hidInfo[hidKey{d.ID.Vendor, d.ID.Product}]; name == "" && ok {
			name = info.Product
		}
		pd := device.New(name, instancePath, device.TypeDirectInputOnly)
		pd.VendorID = d.ID.Vendor
		pd.ProductID = d.ID.Product

		s.mu.Lock()
		_, hidden := s.grabs[instancePath]
		s.mu.Unlock()
		pd.Hidden = hidden

		out = append(out, pd)
	}
	return out, nil
}

// hidKey identifies a HID device by its vendor/product pair, the only join
// key available between golang-evdev's input_id and karalabe/hid's Info.
type hidKey struct{ vendor, product uint16 }

// hidMetadataByVendorProduct indexes every HID device the OS currently
// reports by (vendor, product) so Enumerate can look up a Manufacturer/
// Product string for a bare evdev node. Returns an empty index, rather than
// an error, when hidraw enumeration is unavailable (e.g. inside a container
// with no /dev/hidraw* nodes) — HID metadata enrichment is a nice-to-have,
// not a precondition for Enumerate to succeed.
func hidMetadataByVendorProduct() map[hidKey]hidenum.Info {
	infos, err := hidenum.Enumerate(0, 0)
	if err != nil {
		log.WithError(err).Debug("hidenum enumeration unavailable; evdev names used as-is")
		return nil
	}
	idx := make(map[hidKey]hidenum.Info, len(infos))
	for _, info := range infos {
		idx[hidKey{info.VendorID, info.ProductID}] = info
	}
	return idx
}

func isGamepad(d *evdev.InputDevice) bool {
	keys, ok := d.Capabilities[evdev.EV_KEY]
	if !ok {
		return false
	}
	for _, k := range keys {
		if k.Code == btnSouth || k.Code == btnThumbl || k.Code == btnThumbr {
			return true
		}
	}
	return false
}

func (s *linuxServices) Disable(instancePath string) error {
	return perrors.PlatformNotSupported("disable device (no udev-independent primitive on Linux)")
}

func (s *linuxServices) Enable(instancePath string) error {
	return perrors.PlatformNotSupported("enable device (no udev-independent primitive on Linux)")
}

// SetActive is a no-op on Linux: EVIOCGRAB is per-fd, there is no global
// "hiding driver active" switch the way HidHide's IOCTL_SET_HIDDEN demands.
func (s *linuxServices) SetActive(active bool) error { return nil }

// WhitelistSelf is a no-op on Linux: EVIOCGRAB exclusivity is granted to
// whichever process holds the fd, which is always padswitch itself, so
// there is no separate allow-list to maintain.
func (s *linuxServices) WhitelistSelf() error { return nil }

// Hide opens the evdev node matching instancePath and grabs it exclusively
// (EVIOCGRAB via evdev.Grab), so no other process (including the game) can
// read raw input from the original device while padswitch forwards through
// the virtual one. Mirrors main.go's "exclusive grab to hide it" step.
func (s *linuxServices) Hide(instancePath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, already := s.grabs[instancePath]; already {
		return nil
	}

	dev, err := resolveByPhys(instancePath)
	if err != nil {
		return err
	}
	if err := dev.Grab(); err != nil {
		dev.File.Close()
		return perrors.HidingDriver("grabbing evdev node", err)
	}

	g := &grabbedDevice{dev: dev, done: make(chan struct{}), abs: collectAbsRanges(dev.File.Fd())}
	s.grabs[instancePath] = g
	go pumpEvents(g)
	return nil
}

func (s *linuxServices) Unhide(instancePath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.grabs[instancePath]
	if !ok {
		return nil
	}
	delete(s.grabs, instancePath)
	close(g.done)
	g.dev.Release()
	return g.dev.File.Close()
}

// Read returns the latest state the background pump accumulated for a's
// instance path. Synthetic/unhidden devices, or devices never hidden, have
// no pump running and Read reports DeviceNotFound.
func (s *linuxServices) Read(a device.ResolvedAssignment) (device.GamepadState, error) {
	s.mu.Lock()
	g, ok := s.grabs[a.InstancePath]
	s.mu.Unlock()
	if !ok {
		return device.GamepadState{}, perrors.DeviceNotFound("device not hidden: " + a.InstancePath)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state, nil
}

// pumpEvents drains EV_KEY/EV_ABS/EV_SYN reports from a grabbed node into
// g.state until Unhide closes g.done. Grabbing gives padswitch exclusive
// read access, so blocking on ReadOne here starves no other reader.
func pumpEvents(g *grabbedDevice) {
	for {
		select {
		case <-g.done:
			return
		default:
		}

		ev, err := g.dev.ReadOne()
		if err != nil {
			log.WithError(err).Debug("evdev read ended")
			return
		}

		g.mu.Lock()
		applyEvent(g, *ev)
		g.mu.Unlock()
	}
}

func applyEvent(g *grabbedDevice, ev evdev.InputEvent) {
	switch ev.Type {
	case evdev.EV_KEY:
		setButton(&g.state, uint16(ev.Code), ev.Value != 0)
	case evdev.EV_ABS:
		applyAxis(&g.state, g.abs, uint16(ev.Code), ev.Value)
	}
}

func setButton(st *device.GamepadState, code uint16, pressed bool) {
	bit, ok := keyToButton[code]
	if !ok {
		return
	}
	if pressed {
		st.Buttons |= bit
	} else {
		st.Buttons &^= bit
	}
}

// keyToButton maps Linux input-event-codes BTN_* values to the XInput
// bitmask, the same codes linux_uinput.go writes out, so a Force-mode
// round trip (evdev in, uinput out) preserves button identity.
var keyToButton = map[uint16]uint16{
	btnA:         device.ButtonA,
	btnB:         device.ButtonB,
	btnX:         device.ButtonX,
	btnY:         device.ButtonY,
	btnTL:        device.ButtonLeftShoulder,
	btnTR:        device.ButtonRightShoulder,
	btnSelect:    device.ButtonBack,
	btnStart:     device.ButtonStart,
	btnMode:      device.ButtonGuide,
	btnThumbl:    device.ButtonLeftThumb,
	btnThumbr:    device.ButtonRightThumb,
	btnDpadUp:    device.ButtonDPadUp,
	btnDpadDown:  device.ButtonDPadDown,
	btnDpadLeft:  device.ButtonDPadLeft,
	btnDpadRight: device.ButtonDPadRight,
}

// applyAxis normalizes a raw EV_ABS value to the canonical GamepadState
// range using the device's reported [min,max], inverting Y axes (spec.md
// §4.5: "normalizes each absolute-axis value to the signed 16-bit range
// using (v − min) / (max − min) with Y-axes inverted, and triggers to the
// unsigned 8-bit range"). Axes with no discovered range fall back to a
// verbatim cast, matching a device that never reported calibration data.
func applyAxis(st *device.GamepadState, ranges map[uint16]absRange, code uint16, value int32) {
	r, have := ranges[code]
	switch code {
	case absX:
		if have {
			st.ThumbLX = normalizeSigned16(value, r)
		} else {
			st.ThumbLX = int16(value)
		}
	case absY:
		if have {
			st.ThumbLY = -normalizeSigned16(value, r)
		} else {
			st.ThumbLY = int16(-value)
		}
	case absRX:
		if have {
			st.ThumbRX = normalizeSigned16(value, r)
		} else {
			st.ThumbRX = int16(value)
		}
	case absRY:
		if have {
			st.ThumbRY = -normalizeSigned16(value, r)
		} else {
			st.ThumbRY = int16(-value)
		}
	case absZ:
		if have {
			st.LeftTrigger = normalizeUnsigned8(value, r)
		} else {
			st.LeftTrigger = uint8(value)
		}
	case absRZ:
		if have {
			st.RightTrigger = normalizeUnsigned8(value, r)
		} else {
			st.RightTrigger = uint8(value)
		}
	}
}

func resolveByPhys(instancePath string) (*evdev.InputDevice, error) {
	devs, err := evdev.ListInputDevices()
	if err != nil {
		return nil, perrors.IO("listing evdev devices", err)
	}
	for _, d := range devs {
		path := d.Phys
		if path == "" {
			path = d.Fn
		}
		if path == instancePath {
			return d, nil
		}
	}
	return nil, perrors.DeviceNotFound("instance path " + instancePath + " not found among evdev devices")
}

// DriverStatus reports the Linux equivalents of HidHide/ViGEmBus: the kernel
// always supports EVIOCGRAB, and ViGEmBus's role is played by the uinput
// module, present whenever /dev/uinput exists.
func (s *linuxServices) DriverStatus() (device.DriverStatus, error) {
	_, err := os.Stat("/dev/uinput")
	return device.DriverStatus{
		HidHideInstalled:  true,
		ViGEmBusInstalled: err == nil,
	}, nil
}
