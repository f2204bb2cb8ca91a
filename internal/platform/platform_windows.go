//go:build windows

package platform

import (
	"golang.org/x/sys/windows"

	"padswitch/internal/device"
	"padswitch/internal/perrors"
)

// windowsServices is the Windows façade, joining SetupAPI enumeration with
// an XInput slot probe the way original_source/platform/windows.rs does,
// and backing Hider with HidHide and VirtualControllerManager with
// ViGEmBus. Unlike Linux, Windows supports both routing modes.
type windowsServices struct {
	hidHide
	VirtualControllerManager
}

// New returns the Windows platform façade.
func New() Services {
	return &windowsServices{VirtualControllerManager: newVigemBus()}
}

func (s *windowsServices) SupportsMinimal() bool { return true }

func (s *windowsServices) IsElevated() bool {
	var token windows.Token
	proc, err := windows.GetCurrentProcess()
	if err != nil {
		return false
	}
	if err := windows.OpenProcessToken(proc, windows.TOKEN_QUERY, &token); err != nil {
		return false
	}
	defer token.Close()
	return token.IsElevated()
}

// Enumerate joins setupdi.rs's real instance-path enumeration with an
// XInput slot probe: any controller whose driver is XInput-compatible
// additionally gets XInputSlot set to whichever of slots 0-3 reports it
// occupied. Devices SetupAPI can't see but XInput reports occupied
// surface as device.FromXInputSlot synthetic placeholders, matching
// commands.rs::get_connected_devices's documented fallback.
func (s *windowsServices) Enumerate() ([]device.PhysicalDevice, error) {
	controllers, err := enumerateGameControllers()
	if err != nil {
		return nil, err
	}

	occupiedByXInputControllers := make(map[int]bool, device.MaxSlots)
	out := make([]device.PhysicalDevice, 0, len(controllers))
	for _, c := range controllers {
		pd := device.New(c.Name, c.InstancePath, device.TypeDirectInputOnly)
		pd.VendorID = c.VendorID
		pd.ProductID = c.ProductID
		if c.IsXInput {
			pd.DeviceType = device.TypeXInputCapable
			for slot := 0; slot < device.MaxSlots; slot++ {
				if occupiedByXInputControllers[slot] {
					continue
				}
				if xinputSlotOccupied(slot) {
					s := slot
					pd.XInputSlot = &s
					occupiedByXInputControllers[slot] = true
					break
				}
			}
		}
		out = append(out, pd)
	}

	for slot := 0; slot < device.MaxSlots; slot++ {
		if !occupiedByXInputControllers[slot] && xinputSlotOccupied(slot) {
			out = append(out, device.FromXInputSlot(slot))
		}
	}
	return out, nil
}

func (s *windowsServices) Disable(instancePath string) error {
	return changeDeviceState(instancePath, dicsDisable)
}

func (s *windowsServices) Enable(instancePath string) error {
	return changeDeviceState(instancePath, dicsEnable)
}

// Read reads a's physical device via XInputGetState. Force mode on Windows
// targets XInput-capable controllers exclusively (DirectInput-only pads
// have no read primitive that survives HidHide's blacklist once hidden),
// so a without an XInputSlot is a configuration error, not a transient one.
func (s *windowsServices) Read(a device.ResolvedAssignment) (device.GamepadState, error) {
	if a.XInputSlot == nil {
		return device.GamepadState{}, perrors.DeviceNotFound("no XInput slot for " + a.InstancePath)
	}
	gp, ok := xinputRead(*a.XInputSlot)
	if !ok {
		return device.GamepadState{}, perrors.DeviceNotFound("XInput slot unavailable: " + a.InstancePath)
	}
	return device.GamepadState{
		Buttons:      gp.buttons,
		LeftTrigger:  gp.leftTrigger,
		RightTrigger: gp.rightTrigger,
		ThumbLX:      gp.thumbLX,
		ThumbLY:      gp.thumbLY,
		ThumbRX:      gp.thumbRX,
		ThumbRY:      gp.thumbRY,
	}, nil
}

func (s *windowsServices) DriverStatus() (device.DriverStatus, error) {
	return device.DriverStatus{
		HidHideInstalled:  hidHideInstalled(),
		ViGEmBusInstalled: vigemBusInstalled(),
	}, nil
}
