//go:build windows

package platform

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

// xinput1_4 ships with Windows 8+; xinput9_1_0 is the down-level fallback,
// mirroring what rusty_xinput probes for in the original app.
var (
	xinputDLL            = firstAvailable("xinput1_4.dll", "xinput9_1_0.dll")
	procXInputGetState    = xinputDLL.NewProc("XInputGetState")
	procXInputGetCapabilities = xinputDLL.NewProc("XInputGetCapabilities")
)

func firstAvailable(names ...string) *windows.LazyDLL {
	for _, n := range names {
		dll := windows.NewLazySystemDLL(n)
		if dll.Load() == nil {
			return dll
		}
	}
	return windows.NewLazySystemDLL(names[0])
}

type xinputState struct {
	packetNumber uint32
	gamepad      xinputGamepad
}

type xinputGamepad struct {
	buttons      uint16
	leftTrigger  byte
	rightTrigger byte
	thumbLX      int16
	thumbLY      int16
	thumbRX      int16
	thumbRY      int16
}

// xinputSlotOccupied reports whether slot (0-3) currently has a controller.
func xinputSlotOccupied(slot int) bool {
	var caps [20]byte
	ok, _, _ := procXInputGetCapabilities.Call(uintptr(slot), 1, uintptr(unsafe.Pointer(&caps[0])))
	return ok == 0 // ERROR_SUCCESS
}

func xinputRead(slot int) (xinputGamepad, bool) {
	var state xinputState
	ok, _, _ := procXInputGetState.Call(uintptr(slot), uintptr(unsafe.Pointer(&state)))
	if ok != 0 {
		return xinputGamepad{}, false
	}
	return state.gamepad, true
}
