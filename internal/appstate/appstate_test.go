package appstate

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"padswitch/internal/config"
	"padswitch/internal/device"
	"padswitch/internal/platform"
)

// fakeServices is a minimal platform.Services stub recording enable/
// unhide calls, used across these tests the same way routing_test.go's
// fakeServices is used for the worker.
type fakeServices struct {
	mu       sync.Mutex
	enabled  []string
	unhidden []string
	elevated bool
	minimal  bool
	driver   device.DriverStatus
}

func (f *fakeServices) Enumerate() ([]device.PhysicalDevice, error) { return nil, nil }
func (f *fakeServices) Disable(string) error                        { return nil }
func (f *fakeServices) Enable(p string) error {
	f.mu.Lock()
	f.enabled = append(f.enabled, p)
	f.mu.Unlock()
	return nil
}
func (f *fakeServices) SetActive(bool) error { return nil }
func (f *fakeServices) Hide(string) error    { return nil }
func (f *fakeServices) Unhide(p string) error {
	f.mu.Lock()
	f.unhidden = append(f.unhidden, p)
	f.mu.Unlock()
	return nil
}
func (f *fakeServices) WhitelistSelf() error                     { return nil }
func (f *fakeServices) Connect() error                           { return nil }
func (f *fakeServices) Disconnect() error                        { return nil }
func (f *fakeServices) Plug(int) (platform.VirtualTarget, error) { return nil, nil }
func (f *fakeServices) DriverStatus() (device.DriverStatus, error) {
	return f.driver, nil
}
func (f *fakeServices) SupportsMinimal() bool { return f.minimal }
func (f *fakeServices) IsElevated() bool      { return f.elevated }
func (f *fakeServices) Read(device.ResolvedAssignment) (device.GamepadState, error) {
	return device.GamepadState{}, nil
}

func newTestConfig(profile config.Profile) *config.AppConfig {
	cfg := &config.AppConfig{Profiles: []config.Profile{profile}}
	id := profile.ID
	cfg.Settings.ActiveProfileID = &id
	// Save is normally backed by the OS config dir; these tests never
	// exercise persistence directly, so each test calls withTempConfigDir
	// to route Save through a temp dir and keep ActivateProfile/ResetAll's
	// cfg.Save() call side-effect-free against the real filesystem.
	return cfg
}

func withTempConfigDir(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("HOME", dir)
}

func minimalProfile(deviceID string) config.Profile {
	return config.Profile{
		ID:   "p1",
		Name: "test",
		Assignments: []device.SlotAssignment{
			{DeviceID: deviceID, Slot: 0, Enabled: true},
		},
		RoutingMode: config.RoutingMinimal,
	}
}

func TestStartForwardingIsNoOpWhenAlreadyActive(t *testing.T) {
	withTempConfigDir(t)

	d := device.New("Pad", "PA", device.TypeXInputCapable)
	profile := minimalProfile(d.ID)
	cfg := newTestConfig(profile)

	svc := &fakeServices{elevated: true, minimal: true}
	app := New(svc, cfg)
	if _, err := app.RefreshDevices(); err != nil {
		t.Fatal(err)
	}
	app.state.devices = []device.PhysicalDevice{d}

	require.NoError(t, app.StartForwarding())
	assert.True(t, app.IsForwarding())

	// Second call while active must be a no-op success, not a restart.
	require.NoError(t, app.StartForwarding())
	assert.True(t, app.IsForwarding())

	app.StopForwarding()
	assert.False(t, app.IsForwarding())
}

func TestStartForwardingRefusesEmptyResolvedAssignments(t *testing.T) {
	withTempConfigDir(t)

	profile := minimalProfile("unknown-device")
	cfg := newTestConfig(profile)
	svc := &fakeServices{elevated: true, minimal: true}
	app := New(svc, cfg)

	err := app.StartForwarding()
	require.Error(t, err)
	assert.False(t, app.IsForwarding())
}

func TestPreflightRefusesMinimalWithoutElevation(t *testing.T) {
	withTempConfigDir(t)

	d := device.New("Pad", "PA", device.TypeXInputCapable)
	profile := minimalProfile(d.ID)
	cfg := newTestConfig(profile)

	svc := &fakeServices{elevated: false, minimal: true}
	app := New(svc, cfg)
	app.state.devices = []device.PhysicalDevice{d}

	err := app.StartForwarding()
	require.Error(t, err)
	assert.False(t, app.IsForwarding())
}

func TestPreflightRefusesForceWithoutDrivers(t *testing.T) {
	withTempConfigDir(t)

	d := device.New("Pad", "PA", device.TypeXInputCapable)
	profile := minimalProfile(d.ID)
	profile.RoutingMode = config.RoutingForce
	cfg := newTestConfig(profile)

	svc := &fakeServices{elevated: true, driver: device.DriverStatus{HidHideInstalled: false}}
	app := New(svc, cfg)
	app.state.devices = []device.PhysicalDevice{d}

	err := app.StartForwarding()
	require.Error(t, err)
	assert.False(t, app.IsForwarding())
}

func TestResetAllEnablesAndUnhidesEveryKnownDeviceAndClearsState(t *testing.T) {
	withTempConfigDir(t)

	a := device.New("A", "PA", device.TypeXInputCapable)
	b := device.New("B", "PB", device.TypeXInputCapable)
	synth := device.FromXInputSlot(2)

	profile := minimalProfile(a.ID)
	cfg := newTestConfig(profile)

	svc := &fakeServices{elevated: true, minimal: true}
	app := New(svc, cfg)
	app.state.devices = []device.PhysicalDevice{a, b, synth}

	require.NoError(t, app.ResetAll())

	assert.ElementsMatch(t, []string{"PA", "PB"}, svc.enabled)
	assert.ElementsMatch(t, []string{"PA", "PB"}, svc.unhidden)
	assert.Nil(t, cfg.Settings.ActiveProfileID)
	assert.Empty(t, app.Assignments())
	assert.False(t, app.IsForwarding())
}

func TestActivateProfileUnknownIDReturnsError(t *testing.T) {
	withTempConfigDir(t)
	cfg := &config.AppConfig{}
	svc := &fakeServices{}
	app := New(svc, cfg)

	err := app.ActivateProfile("does-not-exist")
	require.Error(t, err)
}
