package recovery

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"padswitch/internal/config"
	"padswitch/internal/device"
	"padswitch/internal/platform"
)

// fakeServices records enable/unhide/setActive calls and returns a fixed
// device table, enough to exercise the sweep without touching real OS
// device state.
type fakeServices struct {
	devices      []device.PhysicalDevice
	enabled      []string
	unhidden     []string
	activeCalled *bool
}

func (f *fakeServices) Enumerate() ([]device.PhysicalDevice, error) { return f.devices, nil }
func (f *fakeServices) Disable(string) error                        { return nil }
func (f *fakeServices) Enable(p string) error                       { f.enabled = append(f.enabled, p); return nil }
func (f *fakeServices) SetActive(active bool) error {
	*f.activeCalled = !active
	return nil
}
func (f *fakeServices) Hide(string) error { return nil }
func (f *fakeServices) Unhide(p string) error {
	f.unhidden = append(f.unhidden, p)
	return nil
}
func (f *fakeServices) WhitelistSelf() error                       { return nil }
func (f *fakeServices) Connect() error                             { return nil }
func (f *fakeServices) Disconnect() error                          { return nil }
func (f *fakeServices) Plug(int) (platform.VirtualTarget, error)   { return nil, nil }
func (f *fakeServices) DriverStatus() (device.DriverStatus, error) { return device.DriverStatus{}, nil }
func (f *fakeServices) SupportsMinimal() bool                      { return true }
func (f *fakeServices) IsElevated() bool                           { return true }
func (f *fakeServices) Read(device.ResolvedAssignment) (device.GamepadState, error) {
	return device.GamepadState{}, nil
}

func withTempConfigDir(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("HOME", dir)
	t.Setenv("APPDATA", filepath.Join(dir, "AppData"))
}

func TestRunSweepsStaleLockfileAndClearsActiveProfile(t *testing.T) {
	withTempConfigDir(t)

	lockPath, err := config.LockPath()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(lockPath, []byte("1234"), 0o644))

	deactivated := false
	d := device.New("Pad", `USB\VID_057E&PID_2009\1`, device.TypeDirectInputOnly)
	svc := &fakeServices{devices: []device.PhysicalDevice{d}, activeCalled: &deactivated}

	pid := "p"
	cfg := &config.AppConfig{Settings: config.Settings{ActiveProfileID: &pid}}

	result, err := Run(svc, cfg)
	require.NoError(t, err)
	assert.True(t, result.Recovered)

	assert.Contains(t, svc.enabled, d.InstancePath)
	assert.Contains(t, svc.unhidden, d.InstancePath)
	assert.True(t, deactivated)
	assert.Nil(t, cfg.Settings.ActiveProfileID)

	exists, err := config.LockExists()
	require.NoError(t, err)
	assert.True(t, exists, "a fresh lockfile must be written for this session")
}

func TestRunWithNoStaleLockfileJustWritesOne(t *testing.T) {
	withTempConfigDir(t)

	svc := &fakeServices{activeCalled: new(bool)}
	cfg := &config.AppConfig{}

	result, err := Run(svc, cfg)
	require.NoError(t, err)
	assert.False(t, result.Recovered)
	assert.Empty(t, svc.enabled)

	exists, err := config.LockExists()
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestSweepSkipsSyntheticDevices(t *testing.T) {
	withTempConfigDir(t)

	lockPath, err := config.LockPath()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(lockPath, []byte("1"), 0o644))

	synth := device.FromXInputSlot(1)
	svc := &fakeServices{devices: []device.PhysicalDevice{synth}, activeCalled: new(bool)}
	cfg := &config.AppConfig{}

	_, err = Run(svc, cfg)
	require.NoError(t, err)
	assert.Empty(t, svc.enabled)
	assert.Empty(t, svc.unhidden)
}
