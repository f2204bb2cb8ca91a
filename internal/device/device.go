// Package device holds the stable device identity model (spec §3/§4.4):
// PhysicalDevice, SlotAssignment, ResolvedAssignment, GamepadState, and the
// deterministic id hash that keeps profiles portable across sessions.
package device

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Type classifies how a device is exposed to games.
type Type string

const (
	TypeXInputCapable   Type = "xinput-capable"
	TypeDirectInputOnly Type = "directinput-only"
	TypeUnknown         Type = "unknown"
)

// MaxSlots is the number of virtual/physical controller slots games see.
const MaxSlots = 4

// PhysicalDevice is a controller known to padswitch, joined from OS
// enumeration and (on XInput-capable platforms) slot discovery.
type PhysicalDevice struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	InstancePath string `json:"instance_path"`
	DeviceType   Type   `json:"device_type"`
	Hidden       bool   `json:"hidden"`
	Connected    bool   `json:"connected"`
	VendorID     uint16 `json:"vendor_id"`
	ProductID    uint16 `json:"product_id"`
	// XInputSlot is a discovery result, never user input: nil unless the
	// device is currently known to occupy one of the four OS gamepad slots.
	XInputSlot *int `json:"xinput_slot,omitempty"`
}

// StableID hashes the canonicalized instance path to a fixed-width hex
// string. It is a pure function: id(p) == id(uppercase(p)) for all p, so
// that re-enumerating the same physical connection reproduces the same id
// across process restarts and reboots (spec §8, §9 "Stable device id").
func StableID(instancePath string) string {
	canon := strings.ToUpper(strings.TrimSpace(instancePath))
	sum := sha256.Sum256([]byte(canon))
	return hex.EncodeToString(sum[:])
}

// New builds a PhysicalDevice with an id derived from instancePath.
func New(name, instancePath string, typ Type) PhysicalDevice {
	return PhysicalDevice{
		ID:           StableID(instancePath),
		Name:         name,
		InstancePath: instancePath,
		DeviceType:   typ,
		Connected:    true,
	}
}

// SyntheticInstancePathPrefix marks fallback devices fabricated when an
// XInput slot is occupied but no matching enumerated path was found. These
// must never be passed to hide/disable — they are read-only indicators
// (spec §9, open question "synthetic xinput slot N devices").
const SyntheticInstancePathPrefix = `XINPUT\SLOT`

// FromXInputSlot builds a synthetic fallback PhysicalDevice for an occupied
// slot with no matching enumerated device.
func FromXInputSlot(slot int) PhysicalDevice {
	path := fmt.Sprintf("%s%d", SyntheticInstancePathPrefix, slot)
	s := slot
	return PhysicalDevice{
		ID:           fmt.Sprintf("xinput-%d", slot),
		Name:         fmt.Sprintf("XInput Controller (Slot %d)", slot),
		InstancePath: path,
		DeviceType:   TypeXInputCapable,
		Connected:    true,
		XInputSlot:   &s,
	}
}

// IsSynthetic reports whether p is a fabricated slot placeholder rather than
// a real OS device, per SyntheticInstancePathPrefix.
func (p PhysicalDevice) IsSynthetic() bool {
	return strings.HasPrefix(p.InstancePath, SyntheticInstancePathPrefix)
}

// SlotAssignment is user-declared intent: bind device_id to slot.
type SlotAssignment struct {
	DeviceID string `json:"device_id"`
	Slot     int    `json:"slot"`
	Enabled  bool   `json:"enabled"`
}

// ResolvedAssignment is the runtime-only join of an enabled SlotAssignment
// with the current device table, owned by the routing worker from start to
// stop and never shared back to PlatformServices callers.
type ResolvedAssignment struct {
	InstancePath string
	XInputSlot   *int
	TargetSlot   int
}

// Resolve derives ResolvedAssignments from assignments and the current
// device table: disabled assignments are dropped, and assignments whose
// device_id has no match in devices are dropped (spec §4.6 start_forwarding).
// Synthetic placeholder devices are filtered out — they are not real OS
// paths and must never be handed to the routing worker (spec §9).
func Resolve(assignments []SlotAssignment, devices []PhysicalDevice) []ResolvedAssignment {
	byID := make(map[string]PhysicalDevice, len(devices))
	for _, d := range devices {
		byID[d.ID] = d
	}

	resolved := make([]ResolvedAssignment, 0, len(assignments))
	for _, a := range assignments {
		if !a.Enabled {
			continue
		}
		d, ok := byID[a.DeviceID]
		if !ok || d.IsSynthetic() {
			continue
		}
		resolved = append(resolved, ResolvedAssignment{
			InstancePath: d.InstancePath,
			XInputSlot:   d.XInputSlot,
			TargetSlot:   a.Slot,
		})
	}
	return resolved
}

// DriverStatus reports installation and version of the two external
// drivers Force mode depends on.
type DriverStatus struct {
	HidHideInstalled  bool    `json:"hidhide_installed"`
	ViGEmBusInstalled bool    `json:"vigembus_installed"`
	HidHideVersion    *string `json:"hidhide_version,omitempty"`
	ViGEmBusVersion   *string `json:"vigembus_version,omitempty"`
}

// GamepadState is the canonical wire format used by both hiding-aware reads
// and virtual-bus writes (spec §3, §4.3 to_wire). Buttons uses the XInput
// bitmask layout so one state travels unmodified from a Windows XInput read
// to a vigem_client XGamepad write, and so a Linux evdev read can target the
// same bit positions when forwarding to uinput.
type GamepadState struct {
	Buttons      uint16
	LeftTrigger  uint8
	RightTrigger uint8
	ThumbLX      int16
	ThumbLY      int16
	ThumbRX      int16
	ThumbRY      int16
}

// XInput button bitmask, matching XINPUT_GAMEPAD.wButtons.
const (
	ButtonDPadUp        uint16 = 0x0001
	ButtonDPadDown      uint16 = 0x0002
	ButtonDPadLeft      uint16 = 0x0004
	ButtonDPadRight     uint16 = 0x0008
	ButtonStart         uint16 = 0x0010
	ButtonBack          uint16 = 0x0020
	ButtonLeftThumb     uint16 = 0x0040
	ButtonRightThumb    uint16 = 0x0080
	ButtonLeftShoulder  uint16 = 0x0100
	ButtonRightShoulder uint16 = 0x0200
	ButtonGuide         uint16 = 0x0400
	ButtonA             uint16 = 0x1000
	ButtonB             uint16 = 0x2000
	ButtonX             uint16 = 0x4000
	ButtonY             uint16 = 0x8000
)
