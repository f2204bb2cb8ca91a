package device

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStableIDIsCaseInsensitive(t *testing.T) {
	p := `USB\VID_045E&PID_028E\6&ABC`
	assert.Equal(t, StableID(p), StableID(strings.ToUpper(p)))
	assert.Equal(t, StableID(p), StableID(strings.ToLower(p)))
}

func TestStableIDStableAcrossCalls(t *testing.T) {
	p := `USB\VID_057E&PID_2009\7&XYZ`
	first := StableID(p)
	for i := 0; i < 5; i++ {
		require.Equal(t, first, StableID(p))
	}
}

func TestSyntheticDevicesAreFlagged(t *testing.T) {
	d := FromXInputSlot(2)
	assert.True(t, d.IsSynthetic())
	assert.Equal(t, `XINPUT\SLOT2`, d.InstancePath)
	require.NotNil(t, d.XInputSlot)
	assert.Equal(t, 2, *d.XInputSlot)

	real := New("Pad", `USB\VID_057E&PID_2009\1`, TypeXInputCapable)
	assert.False(t, real.IsSynthetic())
}

func TestResolveDropsDisabledUnknownAndSynthetic(t *testing.T) {
	devices := []PhysicalDevice{
		New("A", "PA", TypeXInputCapable),
		New("B", "PB", TypeXInputCapable),
		FromXInputSlot(3),
	}
	a := devices[0]
	b := devices[1]
	synth := devices[2]

	assignments := []SlotAssignment{
		{DeviceID: a.ID, Slot: 1, Enabled: true},
		{DeviceID: b.ID, Slot: 0, Enabled: false}, // disabled, dropped
		{DeviceID: "unknown", Slot: 2, Enabled: true},
		{DeviceID: synth.ID, Slot: 3, Enabled: true}, // synthetic, dropped
	}

	resolved := Resolve(assignments, devices)
	require.Len(t, resolved, 1)
	assert.Equal(t, "PA", resolved[0].InstancePath)
	assert.Equal(t, 1, resolved[0].TargetSlot)
}
