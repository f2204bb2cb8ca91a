//go:build windows

package platform

import (
	"unsafe"

	"golang.org/x/sys/windows"

	"padswitch/internal/device"
	"padswitch/internal/perrors"
)

// ViGEmBus IOCTL wire protocol, ported from the vigem-client crate's wire
// module (vigem.rs: "actual Client + Xbox360Wired targets are created and
// owned inside the input loop thread to avoid self-referencing lifetime
// issues" — the same ownership rule applies here: vigemBus and its targets
// are created fresh per Connect/Plug call and never escape the routing
// worker that owns them).
const (
	vigemBusPath = `\\.\ViGEmBus`

	fileDeviceUnknown = 0x00000022
	methodBuffered    = 0
	fileAnyAccess     = 0

	vigemTargetTypeXbox360 = 0

	// vigemProtocolVersion is the wire version this client speaks,
	// checked against the bus on connect the same way vigem-client's
	// vigem_connect() does before issuing any plugin/report IOCTL.
	vigemProtocolVersion = 0x0001
)

func ctlCode(deviceType, function, method, access uint32) uint32 {
	return (deviceType << 16) | (access << 14) | (function << 2) | method
}

var (
	ioctlVigemPluginTarget    = ctlCode(fileDeviceUnknown, 0x801, methodBuffered, fileAnyAccess)
	ioctlVigemUnplugTarget    = ctlCode(fileDeviceUnknown, 0x802, methodBuffered, fileAnyAccess)
	ioctlVigemCheckVersion    = ctlCode(fileDeviceUnknown, 0x800, methodBuffered, fileAnyAccess)
	ioctlVigemX360SubmitReport = ctlCode(fileDeviceUnknown, 0x804, methodBuffered, fileAnyAccess)
)

type vigemPluginTarget struct {
	size       uint32
	serialNo   uint32
	targetType uint32
	vendorID   uint16
	productID  uint16
}

type vigemX360Report struct {
	size     uint32
	serialNo uint32
	report   xusbReport
}

type vigemCheckVersion struct {
	size    uint32
	version uint32
}

type xusbReport struct {
	buttons      uint16
	leftTrigger  byte
	rightTrigger byte
	thumbLX      int16
	thumbLY      int16
	thumbRX      int16
	thumbRY      int16
}

func vigemBusInstalled() bool {
	h, err := openVigemBus()
	if err != nil {
		return false
	}
	defer windows.CloseHandle(h)
	return checkVigemVersion(h) == nil
}

// checkVigemVersion performs the IOCTL_VIGEM_CHECK_VERSION handshake,
// mirroring vigem_connect()'s version check before any plugin/report IOCTL
// is trusted to succeed.
func checkVigemVersion(h windows.Handle) error {
	req := vigemCheckVersion{
		size:    uint32(unsafe.Sizeof(vigemCheckVersion{})),
		version: vigemProtocolVersion,
	}
	var bytesReturned uint32
	if err := windows.DeviceIoControl(h, ioctlVigemCheckVersion, (*byte)(unsafe.Pointer(&req)), uint32(unsafe.Sizeof(req)), nil, 0, &bytesReturned, nil); err != nil {
		return perrors.VirtualBus("checking ViGEmBus version", err)
	}
	return nil
}

func openVigemBus() (windows.Handle, error) {
	path, err := windows.UTF16PtrFromString(vigemBusPath)
	if err != nil {
		return 0, perrors.VirtualBus("encoding ViGEmBus device path", err)
	}
	h, err := windows.CreateFile(path, windows.GENERIC_READ|windows.GENERIC_WRITE, 0, nil, windows.OPEN_EXISTING, windows.FILE_ATTRIBUTE_NORMAL, 0)
	if err != nil {
		return 0, perrors.VirtualBus("opening ViGEmBus device", err)
	}
	return h, nil
}

// vigemBus is the Windows VirtualControllerManager.
type vigemBus struct {
	handle   windows.Handle
	nextSerial uint32
}

func newVigemBus() VirtualControllerManager { return &vigemBus{} }

func (b *vigemBus) Connect() error {
	h, err := openVigemBus()
	if err != nil {
		return err
	}
	if err := checkVigemVersion(h); err != nil {
		windows.CloseHandle(h)
		return err
	}
	b.handle = h
	return nil
}

func (b *vigemBus) Disconnect() error {
	if b.handle == 0 {
		return nil
	}
	err := windows.CloseHandle(b.handle)
	b.handle = 0
	return err
}

func (b *vigemBus) Plug(slot int) (VirtualTarget, error) {
	b.nextSerial++
	serial := b.nextSerial

	req := vigemPluginTarget{
		size:       uint32(unsafe.Sizeof(vigemPluginTarget{})),
		serialNo:   serial,
		targetType: vigemTargetTypeXbox360,
		vendorID:   0x045e,
		productID:  0x028e,
	}
	var bytesReturned uint32
	if err := windows.DeviceIoControl(b.handle, ioctlVigemPluginTarget, (*byte)(unsafe.Pointer(&req)), uint32(unsafe.Sizeof(req)), nil, 0, &bytesReturned, nil); err != nil {
		return nil, perrors.VirtualBus("plugging in Xbox360Wired target", err)
	}

	return &vigemTarget{bus: b.handle, serial: serial}, nil
}

type vigemTarget struct {
	bus    windows.Handle
	serial uint32
}

func (t *vigemTarget) Update(state device.GamepadState) error {
	report := vigemX360Report{
		size:     uint32(unsafe.Sizeof(vigemX360Report{})),
		serialNo: t.serial,
		report: xusbReport{
			buttons:      state.Buttons,
			leftTrigger:  state.LeftTrigger,
			rightTrigger: state.RightTrigger,
			thumbLX:      state.ThumbLX,
			thumbLY:      state.ThumbLY,
			thumbRX:      state.ThumbRX,
			thumbRY:      state.ThumbRY,
		},
	}
	var bytesReturned uint32
	if err := windows.DeviceIoControl(t.bus, ioctlVigemX360SubmitReport, (*byte)(unsafe.Pointer(&report)), uint32(unsafe.Sizeof(report)), nil, 0, &bytesReturned, nil); err != nil {
		return perrors.Forwarding("submitting Xbox360Wired report", err)
	}
	return nil
}

func (t *vigemTarget) Unplug() error {
	req := vigemPluginTarget{size: uint32(unsafe.Sizeof(vigemPluginTarget{})), serialNo: t.serial}
	var bytesReturned uint32
	return windows.DeviceIoControl(t.bus, ioctlVigemUnplugTarget, (*byte)(unsafe.Pointer(&req)), uint32(unsafe.Sizeof(req)), nil, 0, &bytesReturned, nil)
}
