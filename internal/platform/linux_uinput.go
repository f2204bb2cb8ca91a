//go:build linux

package platform

import (
	"fmt"
	"os"
	"sync"
	"syscall"
	"unsafe"

	"padswitch/internal/device"
	"padswitch/internal/perrors"
)

// uinput ioctl numbers and event/button/axis codes, unchanged from the
// kernel uapi headers (adapted verbatim from main.go's NewVirtualGamepad).
const (
	uiSetEvBit  = 0x40045564
	uiSetKeyBit = 0x40045565
	uiSetAbsBit = 0x40045567
	uiDevSetup  = 0x405c5503
	uiDevCreate = 0x5501
	uiDevDestroy = 0x5502
	uiAbsSetup  = 0x401c5504

	evSyn = 0x00
	evKey = 0x01
	evAbs = 0x03

	btnA     = 0x130
	btnB     = 0x131
	btnX     = 0x133
	btnY     = 0x134
	btnTL    = 0x136
	btnTR    = 0x137
	btnTL2   = 0x138
	btnTR2   = 0x139
	btnSelect = 0x13a
	btnStart = 0x13b
	btnMode  = 0x13c
	btnThumbL = 0x13d
	btnThumbR = 0x13e
	btnDpadUp = 0x220
	btnDpadDown = 0x221
	btnDpadLeft = 0x222
	btnDpadRight = 0x223

	absX  = 0x00
	absY  = 0x01
	absRX = 0x03
	absRY = 0x04
	absZ  = 0x02 // left trigger
	absRZ = 0x05 // right trigger
	busUsb = 0x03

	padswitchVendor  = 0x045e // report as a generic Xbox-class pad, matching vigem_client's Xbox360Wired target
	padswitchProduct = 0x028e
)

type inputEvent struct {
	time      syscall.Timeval
	typ, code uint16
	value     int32
}
type inputID struct {
	bustype, vendor, product, version uint16
}
type inputAbsinfo struct {
	value, min, max, fuzz, flat, resolution int32
}
type uinputAbsSetup struct {
	code uint16
	_    [2]byte
	info inputAbsinfo
	_    [4]byte
}
type uinputSetup struct {
	id           inputID
	name         [80]byte
	ffEffectsMax uint32
	absinfo      [0x40]uinputAbsSetup
}

func ioctl(fd, request, arg uintptr) error {
	_, _, errno := syscall.Syscall(syscall.SYS_IOCTL, fd, request, arg)
	if errno != 0 {
		return errno
	}
	return nil
}

func ioctlPtr(fd, request uintptr, arg unsafe.Pointer) error {
	_, _, errno := syscall.Syscall(syscall.SYS_IOCTL, fd, request, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

// uinputBus is the Linux VirtualControllerManager: Connect only checks that
// /dev/uinput exists, Disconnect is a no-op, and the real uinput device is
// created per Plug and owned exclusively
// by the caller until Unplug, mirroring vigem.rs's note that the Client +
// Xbox360Wired targets live inside the input loop thread, not the façade.
type uinputBus struct{}

func newUinputBus() VirtualControllerManager { return &uinputBus{} }

func (b *uinputBus) Connect() error {
	if _, err := os.Stat("/dev/uinput"); err != nil {
		return perrors.VirtualBus("/dev/uinput not available", err)
	}
	return nil
}

func (b *uinputBus) Disconnect() error { return nil }

func (b *uinputBus) Plug(slot int) (VirtualTarget, error) {
	f, err := os.OpenFile("/dev/uinput", os.O_WRONLY|syscall.O_NONBLOCK, 0)
	if err != nil {
		return nil, perrors.VirtualBus("opening /dev/uinput", err)
	}

	ioctl(f.Fd(), uiSetEvBit, evKey)
	ioctl(f.Fd(), uiSetEvBit, evAbs)
	ioctl(f.Fd(), uiSetEvBit, evSyn)

	buttons := []uintptr{
		btnA, btnB, btnX, btnY,
		btnTL, btnTR, btnTL2, btnTR2,
		btnSelect, btnStart, btnMode,
		btnThumbL, btnThumbR,
		btnDpadUp, btnDpadDown, btnDpadLeft, btnDpadRight,
	}
	for _, bt := range buttons {
		ioctl(f.Fd(), uiSetKeyBit, bt)
	}

	axes := []uintptr{absX, absY, absRX, absRY, absZ, absRZ}
	for _, ax := range axes {
		ioctl(f.Fd(), uiSetAbsBit, ax)
	}

	var setup uinputSetup
	name := fmt.Sprintf("padswitch virtual pad %d", slot)
	copy(setup.name[:], name)
	setup.id = inputID{bustype: busUsb, vendor: padswitchVendor, product: padswitchProduct, version: 1}
	if err := ioctlPtr(f.Fd(), uiDevSetup, unsafe.Pointer(&setup)); err != nil {
		f.Close()
		return nil, perrors.VirtualBus("UI_DEV_SETUP", err)
	}

	for _, ax := range []uint16{absX, absY, absRX, absRY} {
		as := uinputAbsSetup{code: ax, info: inputAbsinfo{min: -32768, max: 32767, fuzz: 16, flat: 128}}
		ioctlPtr(f.Fd(), uiAbsSetup, unsafe.Pointer(&as))
	}
	for _, ax := range []uint16{absZ, absRZ} {
		as := uinputAbsSetup{code: ax, info: inputAbsinfo{min: 0, max: 255}}
		ioctlPtr(f.Fd(), uiAbsSetup, unsafe.Pointer(&as))
	}

	if err := ioctl(f.Fd(), uiDevCreate, 0); err != nil {
		f.Close()
		return nil, perrors.VirtualBus("UI_DEV_CREATE", err)
	}

	return &uinputTarget{file: f}, nil
}

type uinputTarget struct {
	mu   sync.Mutex
	file *os.File
}

// Update writes one full report: every button and axis, then a sync event,
// matching the fixed per-tick write order VirtualGamepad.Update used.
func (t *uinputTarget) Update(state device.GamepadState) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.sendButton(btnDpadUp, state.Buttons&device.ButtonDPadUp != 0)
	t.sendButton(btnDpadDown, state.Buttons&device.ButtonDPadDown != 0)
	t.sendButton(btnDpadLeft, state.Buttons&device.ButtonDPadLeft != 0)
	t.sendButton(btnDpadRight, state.Buttons&device.ButtonDPadRight != 0)
	t.sendButton(btnStart, state.Buttons&device.ButtonStart != 0)
	t.sendButton(btnSelect, state.Buttons&device.ButtonBack != 0)
	t.sendButton(btnThumbL, state.Buttons&device.ButtonLeftThumb != 0)
	t.sendButton(btnThumbR, state.Buttons&device.ButtonRightThumb != 0)
	t.sendButton(btnTL, state.Buttons&device.ButtonLeftShoulder != 0)
	t.sendButton(btnTR, state.Buttons&device.ButtonRightShoulder != 0)
	t.sendButton(btnMode, state.Buttons&device.ButtonGuide != 0)
	t.sendButton(btnA, state.Buttons&device.ButtonA != 0)
	t.sendButton(btnB, state.Buttons&device.ButtonB != 0)
	t.sendButton(btnX, state.Buttons&device.ButtonX != 0)
	t.sendButton(btnY, state.Buttons&device.ButtonY != 0)

	t.sendAxis(absX, int32(state.ThumbLX))
	t.sendAxis(absY, int32(-state.ThumbLY))
	t.sendAxis(absRX, int32(state.ThumbRX))
	t.sendAxis(absRY, int32(-state.ThumbRY))
	t.sendAxis(absZ, int32(state.LeftTrigger))
	t.sendAxis(absRZ, int32(state.RightTrigger))

	t.sendSync()
	return nil
}

func (t *uinputTarget) sendButton(code uint16, pressed bool) {
	var v int32
	if pressed {
		v = 1
	}
	t.writeEvent(evKey, code, v)
}

func (t *uinputTarget) sendAxis(code uint16, v int32) { t.writeEvent(evAbs, code, v) }
func (t *uinputTarget) sendSync()                     { t.writeEvent(evSyn, 0, 0) }

func (t *uinputTarget) writeEvent(typ, code uint16, value int32) {
	var tv syscall.Timeval
	syscall.Gettimeofday(&tv)
	ev := inputEvent{time: tv, typ: typ, code: code, value: value}
	syscall.Write(int(t.file.Fd()), (*(*[unsafe.Sizeof(ev)]byte)(unsafe.Pointer(&ev)))[:])
}

func (t *uinputTarget) Unplug() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	ioctl(t.file.Fd(), uiDevDestroy, 0)
	return t.file.Close()
}
