// Package platform is the OS boundary (spec.md §2 "Platform Abstraction
// Boundary"): one façade per OS, built-tagged apart, so internal/routing and
// internal/appstate never import syscall or cgo directly. Generalizes
// original_source/src-tauri/src/platform/mod.rs's trait-per-concern split.
package platform

import (
	"padswitch/internal/device"
)

// Enumerator lists the controllers the OS currently knows about.
type Enumerator interface {
	// Enumerate returns every physical/XInput-slot device currently visible.
	Enumerate() ([]device.PhysicalDevice, error)
}

// EnableDisabler toggles a device at the OS device-manager level (Minimal
// mode). Platforms that cannot do this (spec §9 open question, resolved for
// Linux: no systemd-independent per-node disable primitive exists) return
// perrors.PlatformNotSupported and report SupportsMinimal() == false so
// appstate can refuse Minimal at preflight instead of partially applying it.
type EnableDisabler interface {
	Disable(instancePath string) error
	Enable(instancePath string) error
}

// Hider toggles OS-level visibility of a device to other applications
// (Force mode). On Windows this is the HidHide filter driver; on Linux,
// an exclusive EVIOCGRAB of the evdev node.
type Hider interface {
	SetActive(active bool) error
	Hide(instancePath string) error
	Unhide(instancePath string) error
	// WhitelistSelf exempts the current process from its own hiding so it
	// can keep reading the devices it just hid. A no-op where hiding is a
	// per-fd exclusive grab rather than a shared filter driver.
	WhitelistSelf() error
}

// Reader reads the current input state of a hidden physical device, the
// read half of Force mode's hide-then-forward pipeline.
type Reader interface {
	Read(a device.ResolvedAssignment) (device.GamepadState, error)
}

// VirtualTarget is one plugged-in virtual controller, owned exclusively by
// the routing worker that created it (spec "Design Notes — Worker-owned
// borrows": never shared back to a PlatformServices caller).
type VirtualTarget interface {
	// Update pushes one input frame to the virtual device.
	Update(state device.GamepadState) error
	// Unplug tears the virtual device down.
	Unplug() error
}

// VirtualControllerManager creates/connects the virtual controller bus used
// by Force mode (ViGEmBus on Windows, uinput on Linux).
type VirtualControllerManager interface {
	Connect() error
	Disconnect() error
	// Plug brings up one virtual target for slot and blocks until the OS
	// reports it ready, mirroring vigem_client's synchronous target_add.
	Plug(slot int) (VirtualTarget, error)
}

// DriverChecker reports whether the external drivers Force mode depends on
// are installed, for commands.rs::check_driver_status's Go equivalent.
type DriverChecker interface {
	DriverStatus() (device.DriverStatus, error)
}

// Services is everything one OS façade must provide. Exactly one
// implementation is compiled in per GOOS via build tags.
type Services interface {
	Enumerator
	EnableDisabler
	Hider
	Reader
	VirtualControllerManager
	DriverChecker

	// SupportsMinimal reports whether EnableDisabler is backed by a real OS
	// primitive on this platform, rather than returning
	// PlatformNotSupported for every call.
	SupportsMinimal() bool
	// IsElevated reports whether the current process is elevated
	// (Administrator on Windows, write access to /dev/uinput on Linux).
	// appstate's preflight requires it for Minimal mode.
	IsElevated() bool
}
