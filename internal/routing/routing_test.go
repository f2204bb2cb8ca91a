package routing

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"padswitch/internal/config"
	"padswitch/internal/device"
	"padswitch/internal/platform"
)

// fakeServices records every call it receives, in order, so tests can
// assert on sequencing without touching real OS device state.
type fakeServices struct {
	mu          sync.Mutex
	calls       []string
	failConnect bool
}

func (f *fakeServices) record(s string) {
	f.mu.Lock()
	f.calls = append(f.calls, s)
	f.mu.Unlock()
}

func (f *fakeServices) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeServices) Enumerate() ([]device.PhysicalDevice, error) { return nil, nil }
func (f *fakeServices) Disable(p string) error                      { f.record("disable:" + p); return nil }
func (f *fakeServices) Enable(p string) error                       { f.record("enable:" + p); return nil }
func (f *fakeServices) SetActive(active bool) error {
	if active {
		f.record("active:on")
	} else {
		f.record("active:off")
	}
	return nil
}
func (f *fakeServices) WhitelistSelf() error  { f.record("whitelist_self"); return nil }
func (f *fakeServices) Hide(p string) error   { f.record("hide:" + p); return nil }
func (f *fakeServices) Unhide(p string) error { f.record("unhide:" + p); return nil }
func (f *fakeServices) Read(a device.ResolvedAssignment) (device.GamepadState, error) {
	return device.GamepadState{Buttons: device.ButtonA}, nil
}
func (f *fakeServices) Connect() error {
	f.record("connect")
	if f.failConnect {
		return assert.AnError
	}
	return nil
}
func (f *fakeServices) Disconnect() error { f.record("disconnect"); return nil }
func (f *fakeServices) Plug(slot int) (platform.VirtualTarget, error) {
	f.record("plug")
	return &fakeTarget{f: f, slot: slot}, nil
}
func (f *fakeServices) DriverStatus() (device.DriverStatus, error) { return device.DriverStatus{}, nil }
func (f *fakeServices) SupportsMinimal() bool                      { return true }
func (f *fakeServices) IsElevated() bool                           { return true }

type fakeTarget struct {
	f    *fakeServices
	slot int
}

func (t *fakeTarget) Update(device.GamepadState) error { return nil }
func (t *fakeTarget) Unplug() error                    { t.f.record("unplug"); return nil }

func assignments() []device.ResolvedAssignment {
	return []device.ResolvedAssignment{
		{InstancePath: "B", TargetSlot: 1},
		{InstancePath: "A", TargetSlot: 0},
	}
}

func TestMinimalDisablesThenEnablesInSlotOrder(t *testing.T) {
	f := &fakeServices{}
	w := New(f)
	w.Start(config.RoutingMinimal, assignments())

	require.Eventually(t, func() bool {
		return len(f.snapshot()) >= 4
	}, time.Second, time.Millisecond)

	w.Stop()
	calls := f.snapshot()

	// disables happen before any enable, and enables proceed A (slot 0) then B (slot 1).
	var disableIdx, enableAIdx, enableBIdx int = -1, -1, -1
	for i, c := range calls {
		switch c {
		case "enable:A":
			enableAIdx = i
		case "enable:B":
			enableBIdx = i
		case "disable:A", "disable:B":
			if disableIdx == -1 {
				disableIdx = i
			}
		}
	}
	require.NotEqual(t, -1, enableAIdx)
	require.NotEqual(t, -1, enableBIdx)
	assert.Less(t, disableIdx, enableAIdx)
	assert.Less(t, enableAIdx, enableBIdx)
}

func TestForceHidesConnectsPlugsThenCleansUpInReverse(t *testing.T) {
	f := &fakeServices{}
	w := New(f)
	w.Start(config.RoutingForce, assignments())

	require.Eventually(t, func() bool {
		calls := f.snapshot()
		return len(calls) >= 5
	}, time.Second, time.Millisecond)

	w.Stop()
	calls := f.snapshot()

	assert.Contains(t, calls, "active:on")
	assert.Contains(t, calls, "connect")

	// Cleanup unwinds in exact reverse of acquisition: hide, activate,
	// connect, plug acquired in that order, so unplug, disconnect,
	// deactivate, unhide must release in the opposite order.
	lastUnplug := lastIndex(calls, "unplug")
	disconnectIdx := indexOf(calls, "disconnect")
	activeOffIdx := indexOf(calls, "active:off")
	firstUnhide := indexOf(calls, "unhide:A")
	require.NotEqual(t, -1, lastUnplug)
	require.NotEqual(t, -1, disconnectIdx)
	require.NotEqual(t, -1, activeOffIdx)
	require.NotEqual(t, -1, firstUnhide)

	assert.Less(t, lastUnplug, disconnectIdx, "targets unplug before the bus disconnects")
	assert.Less(t, disconnectIdx, activeOffIdx, "bus disconnects before hiding is deactivated")
	assert.Less(t, activeOffIdx, firstUnhide, "hiding deactivates before devices are unhidden")
	assert.Equal(t, len(calls)-1, lastIndex(calls, "unhide:B"), "last unhide is the final cleanup step")
}

// TestForceCleansUpFullyWhenBusConnectFails mirrors spec.md's "Force
// acquire-and-cleanup on failure" scenario: every device gets hidden and
// the hiding driver activated, but the bus connect fails, so Start must
// report the error synchronously and leave nothing acquired behind.
func TestForceCleansUpFullyWhenBusConnectFails(t *testing.T) {
	f := &fakeServices{failConnect: true}
	w := New(f)

	err := w.Start(config.RoutingForce, assignments())
	require.Error(t, err)
	require.False(t, w.IsRunning())

	calls := f.snapshot()
	assert.Contains(t, calls, "hide:A")
	assert.Contains(t, calls, "hide:B")
	assert.Contains(t, calls, "active:on")
	assert.Contains(t, calls, "connect")
	assert.NotContains(t, calls, "plug")
	assert.Equal(t, "unhide:B", calls[len(calls)-1])
}

func indexOf(calls []string, want string) int {
	for i, c := range calls {
		if c == want {
			return i
		}
	}
	return -1
}

func lastIndex(calls []string, want string) int {
	idx := -1
	for i, c := range calls {
		if c == want {
			idx = i
		}
	}
	return idx
}
