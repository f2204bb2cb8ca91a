package identify

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"padswitch/internal/device"
	"padswitch/internal/platform"
)

// fakeSlots is a minimal platform.Services stub that only needs to satisfy
// Read for identify's polling loop; every other method is unused here.
type fakeSlots struct {
	mu    sync.Mutex
	state [device.MaxSlots]uint16
	reads int32
}

func (f *fakeSlots) setButton(slot int, buttons uint16) {
	f.mu.Lock()
	f.state[slot] = buttons
	f.mu.Unlock()
}

func (f *fakeSlots) Enumerate() ([]device.PhysicalDevice, error)          { return nil, nil }
func (f *fakeSlots) Disable(string) error                                 { return nil }
func (f *fakeSlots) Enable(string) error                                  { return nil }
func (f *fakeSlots) SetActive(bool) error                                 { return nil }
func (f *fakeSlots) Hide(string) error                                    { return nil }
func (f *fakeSlots) Unhide(string) error                                  { return nil }
func (f *fakeSlots) WhitelistSelf() error                                 { return nil }
func (f *fakeSlots) Connect() error                                       { return nil }
func (f *fakeSlots) Disconnect() error                                    { return nil }
func (f *fakeSlots) Plug(int) (platform.VirtualTarget, error)             { return nil, nil }
func (f *fakeSlots) DriverStatus() (device.DriverStatus, error)           { return device.DriverStatus{}, nil }
func (f *fakeSlots) SupportsMinimal() bool                                { return true }
func (f *fakeSlots) IsElevated() bool                                     { return true }
func (f *fakeSlots) Read(a device.ResolvedAssignment) (device.GamepadState, error) {
	atomic.AddInt32(&f.reads, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return device.GamepadState{Buttons: f.state[*a.XInputSlot]}, nil
}

func TestDetectXInputSlotReturnsSlotWhoseBitFlips(t *testing.T) {
	f := &fakeSlots{}

	go func() {
		time.Sleep(200 * time.Millisecond)
		f.setButton(2, device.ButtonA)
	}()

	slot, ok := DetectXInputSlot(f)
	assert.True(t, ok)
	assert.Equal(t, 2, slot)
}

func TestDetectXInputSlotTimesOutWithNoPress(t *testing.T) {
	orig := timeout
	timeout = 150 * time.Millisecond
	defer func() { timeout = orig }()

	f := &fakeSlots{}
	_, ok := DetectXInputSlot(f)
	assert.False(t, ok)
}
