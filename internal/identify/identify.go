// Package identify is the Identification Helper component (spec.md §4.9):
// a button-press probe that asks the user to press any button on a
// physical device and reports which OS-visible slot (0-3) reacted, used to
// let the UI-bridge collaborator resolve "which of these devices is slot
// 2" when enumeration alone leaves it ambiguous. Generalizes
// commands.rs::detect_xinput_slot's baseline-then-poll loop.
package identify

import (
	"time"

	"padswitch/internal/device"
	"padswitch/internal/platform"
)

// pollInterval is roughly 60Hz, matching spec.md §4.9 ("poll all four
// slots at ≈60Hz").
const pollInterval = time.Second / 60

// timeout bounds the whole probe (spec.md §4.9/§5: "identify probe ≤5s").
// A var, not a const, so tests can shrink it instead of waiting out a real
// 5 seconds.
var timeout = 5 * time.Second

// DetectXInputSlot baselines the button bitmask for every occupied slot,
// then polls all four slots until one acquires a bit that was clear in its
// baseline, or timeout elapses. Returns (slot, true) on a detected press,
// (0, false) on timeout — callers ask the user to "press any button" before
// calling this.
func DetectXInputSlot(svc platform.Services) (int, bool) {
	baseline := snapshot(svc)

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		<-ticker.C
		current := snapshot(svc)
		for slot := 0; slot < device.MaxSlots; slot++ {
			if acquiredNewBit(baseline[slot], current[slot]) {
				return slot, true
			}
		}
	}
	return 0, false
}

// acquiredNewBit reports whether current has any button bit set that was
// clear in baseline, i.e. (current &^ baseline) != 0.
func acquiredNewBit(baseline, current uint16) bool {
	return current&^baseline != 0
}

// snapshot reads the current button bitmask of all four slots. Slots that
// fail to read (unoccupied, or XInput unsupported on this platform) report
// a zero bitmask, which never looks like "acquired a new bit".
func snapshot(svc platform.Services) [device.MaxSlots]uint16 {
	var out [device.MaxSlots]uint16
	for slot := 0; slot < device.MaxSlots; slot++ {
		s := slot
		state, err := svc.Read(device.ResolvedAssignment{XInputSlot: &s})
		if err != nil {
			continue
		}
		out[slot] = state.Buttons
	}
	return out
}
