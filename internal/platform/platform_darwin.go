//go:build darwin

package platform

import (
	"padswitch/internal/device"
	"padswitch/internal/perrors"
)

// darwinServices satisfies Services so the rest of the module builds on
// macOS, matching original_source/platform/macos.rs, which stubs every
// operation behind PlatformNotSupported: this system was never shipped on
// macOS, there is no XInput/HidHide/ViGEmBus analogue to target.
type darwinServices struct{}

// New returns the macOS placeholder façade.
func New() Services { return &darwinServices{} }

func (darwinServices) SupportsMinimal() bool { return false }
func (darwinServices) IsElevated() bool      { return false }

func (darwinServices) Enumerate() ([]device.PhysicalDevice, error) {
	return nil, perrors.PlatformNotSupported("macos")
}
func (darwinServices) Disable(string) error { return perrors.PlatformNotSupported("macos") }
func (darwinServices) Enable(string) error  { return perrors.PlatformNotSupported("macos") }
func (darwinServices) SetActive(bool) error { return perrors.PlatformNotSupported("macos") }
func (darwinServices) Hide(string) error    { return perrors.PlatformNotSupported("macos") }
func (darwinServices) WhitelistSelf() error { return perrors.PlatformNotSupported("macos") }
func (darwinServices) Read(device.ResolvedAssignment) (device.GamepadState, error) {
	return device.GamepadState{}, perrors.PlatformNotSupported("macos")
}
func (darwinServices) Unhide(string) error  { return perrors.PlatformNotSupported("macos") }
func (darwinServices) Connect() error       { return perrors.PlatformNotSupported("macos") }
func (darwinServices) Disconnect() error    { return nil }
func (darwinServices) Plug(int) (VirtualTarget, error) {
	return nil, perrors.PlatformNotSupported("macos")
}
func (darwinServices) DriverStatus() (device.DriverStatus, error) {
	return device.DriverStatus{}, nil
}
