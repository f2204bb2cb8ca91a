// Package appstate is the App State component (spec.md §4.6): the single
// in-memory authoritative record that coordinates profile activation,
// forwarding start/stop/restart, and preflight checks, the way
// original_source/src-tauri/src/state.rs's Mutex<Inner>-wrapped AppState
// does. The lock is acquired only to snapshot or mutate fields; it is never
// held across an OS I/O call, a driver IOCTL, a worker start/stop, or an
// event emission (spec.md §4.6/§9 "Lock discipline").
package appstate

import (
	"sync"

	"github.com/sirupsen/logrus"

	"padswitch/internal/config"
	"padswitch/internal/device"
	"padswitch/internal/perrors"
	"padswitch/internal/platform"
	"padswitch/internal/routing"
)

var log = logrus.WithField("component", "appstate")

// ProfileActivatedEvent is the payload named in spec.md §6 for the
// "profile-activated" event.
type ProfileActivatedEvent struct {
	ProfileID   *string
	Assignments []device.SlotAssignment
	RoutingMode config.RoutingMode
}

// ForwardingStatusEvent is the payload named in spec.md §6 for the
// "forwarding-status" event.
type ForwardingStatusEvent struct {
	Active bool
	Error  string
}

// Watcher is the subset of internal/watcher.Watcher's surface App State
// needs to own a start/stop handle on, kept as an interface here (rather
// than an import) so internal/watcher can depend on appstate to drive
// profile activation without creating an import cycle.
type Watcher interface {
	Start()
	Stop()
	IsRunning() bool
}

// inner is the record spec.md §4.6 describes: "{devices, assignments,
// driver_status, forwarding_active, config, input_loop_handle}".
type inner struct {
	devices          []device.PhysicalDevice
	assignments      []device.SlotAssignment
	driverStatus     device.DriverStatus
	forwardingActive bool
	cfg              *config.AppConfig
}

// AppState is the single authoritative record. svc and worker are set once
// at construction and never change; mu guards inner; watcherMu guards the
// independent process-watcher handle, matching spec.md §5's "two
// independent mutexes inside App State (main record + watcher handle)".
type AppState struct {
	mu    sync.Mutex
	state inner

	svc    platform.Services
	worker *routing.Worker

	watcherMu sync.Mutex
	watcher   Watcher

	// OnProfileActivated and OnForwardingStatus are the Go-native seam
	// standing in for the Tauri AppHandle event bus: nil by default, set by
	// an external UI-bridge collaborator that wants to react to state
	// changes (e.g. rebuilding a tray menu).
	OnProfileActivated func(ProfileActivatedEvent)
	OnForwardingStatus func(ForwardingStatusEvent)
}

// New constructs an AppState bound to svc's OS façade and an initial config
// document (typically the result of config.Load()).
func New(svc platform.Services, cfg *config.AppConfig) *AppState {
	return &AppState{
		svc:    svc,
		worker: routing.New(svc),
		state: inner{
			cfg: cfg,
		},
	}
}

// SetWatcher installs the process-watcher handle App State's reset_all and
// future start/stop_process_watcher entry points operate on. Held under its
// own lock, independent of the main record.
func (s *AppState) SetWatcher(w Watcher) {
	s.watcherMu.Lock()
	defer s.watcherMu.Unlock()
	s.watcher = w
}

func (s *AppState) watcherHandle() Watcher {
	s.watcherMu.Lock()
	defer s.watcherMu.Unlock()
	return s.watcher
}

// Config returns the current persisted document. Callers must not mutate
// the returned pointer's slices without going through a transition method.
func (s *AppState) Config() *config.AppConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.cfg
}

// Devices returns the last enumerated device table.
func (s *AppState) Devices() []device.PhysicalDevice {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]device.PhysicalDevice, len(s.state.devices))
	copy(out, s.state.devices)
	return out
}

// IsForwarding reports whether the forwarding worker is currently active.
func (s *AppState) IsForwarding() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.forwardingActive
}

// RefreshDevices re-enumerates the OS device table (get_connected_devices)
// and stores it as returned by the platform façade, including whatever
// hidden state the façade reports.
func (s *AppState) RefreshDevices() ([]device.PhysicalDevice, error) {
	devices, err := s.svc.Enumerate()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.state.devices = devices
	s.mu.Unlock()

	out := make([]device.PhysicalDevice, len(devices))
	copy(out, devices)
	return out, nil
}

// CheckDriverStatus reports DriverStatus without mutating state
// (check_driver_status; never fails, per spec.md §4.1).
func (s *AppState) CheckDriverStatus() device.DriverStatus {
	status, _ := s.svc.DriverStatus()
	s.mu.Lock()
	s.state.driverStatus = status
	s.mu.Unlock()
	return status
}

// IsElevated reports whether the process is elevated (is_elevated); the
// Minimal-mode preflight requires it.
func (s *AppState) IsElevated() bool { return s.svc.IsElevated() }

// ToggleDevice manually hides or unhides a single device outside of an
// active forwarding session (toggle_device). It is a thin pass-through to
// Platform Services; it does not touch assignments or forwarding state.
func (s *AppState) ToggleDevice(instancePath string, hidden bool) error {
	if hidden {
		return s.svc.Hide(instancePath)
	}
	return s.svc.Unhide(instancePath)
}

// preflight validates mode-specific preconditions before handing off to the
// routing worker (spec.md §4.6: "Preflight by mode: Minimal requires
// elevation; Force requires both drivers reported installed").
func (s *AppState) preflight(mode config.RoutingMode) error {
	switch mode {
	case config.RoutingForce:
		status, err := s.svc.DriverStatus()
		if err != nil {
			return perrors.Forwarding("checking driver status", err)
		}
		if !status.HidHideInstalled || !status.ViGEmBusInstalled {
			return perrors.DriverNotInstalled("Force mode requires HidHide and ViGEmBus to be installed")
		}
		return nil
	default:
		if !s.svc.SupportsMinimal() {
			return perrors.PlatformNotSupported("Minimal mode on this platform")
		}
		if !s.svc.IsElevated() {
			return perrors.Platform("Minimal mode requires an elevated process", nil)
		}
		return nil
	}
}

// emitForwardingStatus calls OnForwardingStatus if set, outside the lock.
func (s *AppState) emitForwardingStatus(ev ForwardingStatusEvent) {
	if s.OnForwardingStatus != nil {
		s.OnForwardingStatus(ev)
	}
}

func (s *AppState) emitProfileActivated(ev ProfileActivatedEvent) {
	if s.OnProfileActivated != nil {
		s.OnProfileActivated(ev)
	}
}

// StartForwarding is a no-op if already active; otherwise it runs
// preflight(mode), resolves assignments against the current device table,
// refuses an empty resolved list, and hands off to the routing worker
// (spec.md §4.6 start_forwarding).
func (s *AppState) StartForwarding() error {
	s.mu.Lock()
	if s.state.forwardingActive {
		s.mu.Unlock()
		return nil
	}
	profile := s.state.cfg.ActiveProfile()
	devices := s.state.devices
	s.mu.Unlock()

	if profile == nil {
		return perrors.Config("no active profile to forward")
	}

	mode := profile.EffectiveRoutingMode()
	if err := s.preflight(mode); err != nil {
		s.emitForwardingStatus(ForwardingStatusEvent{Active: false, Error: err.Error()})
		return err
	}

	s.mu.Lock()
	s.state.assignments = profile.Assignments
	s.mu.Unlock()

	resolved := device.Resolve(profile.Assignments, devices)
	if len(resolved) == 0 {
		err := perrors.Config("resolved assignment list is empty")
		s.emitForwardingStatus(ForwardingStatusEvent{Active: false, Error: err.Error()})
		return err
	}

	if err := s.worker.Start(mode, resolved); err != nil {
		s.emitForwardingStatus(ForwardingStatusEvent{Active: false, Error: err.Error()})
		return err
	}

	s.mu.Lock()
	s.state.forwardingActive = true
	s.mu.Unlock()

	s.emitForwardingStatus(ForwardingStatusEvent{Active: true})
	return nil
}

// StopForwarding is a no-op if inactive; otherwise it drives the worker to
// stop and join, then clears the flag (spec.md §4.6 stop_forwarding).
func (s *AppState) StopForwarding() {
	s.mu.Lock()
	active := s.state.forwardingActive
	s.mu.Unlock()
	if !active {
		return
	}

	s.worker.Stop()

	s.mu.Lock()
	s.state.forwardingActive = false
	s.mu.Unlock()

	s.emitForwardingStatus(ForwardingStatusEvent{Active: false})
}

// RestartForwarding stops then starts, propagating start errors (spec.md
// §4.6 restart_forwarding).
func (s *AppState) RestartForwarding() error {
	s.StopForwarding()
	return s.StartForwarding()
}

// ActivateProfile writes active_profile_id, replaces assignments, persists
// config, and — if forwarding is active — restarts it on the calling
// goroutine (spec.md §4.6 activate_profile; §5 "totally ordered with
// respect to forwarding start/stop by the App State lock").
func (s *AppState) ActivateProfile(profileID string) error {
	s.mu.Lock()
	var target *config.Profile
	for i := range s.state.cfg.Profiles {
		if s.state.cfg.Profiles[i].ID == profileID {
			target = &s.state.cfg.Profiles[i]
			break
		}
	}
	if target == nil {
		s.mu.Unlock()
		return perrors.Config("profile not found: " + profileID)
	}

	id := target.ID
	s.state.cfg.Settings.ActiveProfileID = &id
	s.state.assignments = target.Assignments
	wasActive := s.state.forwardingActive
	cfg := s.state.cfg
	assignments := target.Assignments
	mode := target.EffectiveRoutingMode()
	s.mu.Unlock()

	if err := cfg.Save(); err != nil {
		return err
	}

	s.emitProfileActivated(ProfileActivatedEvent{
		ProfileID:   &id,
		Assignments: assignments,
		RoutingMode: mode,
	})

	if wasActive {
		return s.RestartForwarding()
	}
	return nil
}

// ClearActiveProfile clears active_profile_id and assignments, persists,
// emits profile-activated with a nil ProfileID, and stops forwarding if it
// was active (there is nothing left to forward). Used by the process
// watcher's R -> none transition (spec.md §4.7) when no pre-game profile
// was recorded to restore.
func (s *AppState) ClearActiveProfile() error {
	s.mu.Lock()
	cfg := s.state.cfg
	cfg.Settings.ActiveProfileID = nil
	s.state.assignments = nil
	wasActive := s.state.forwardingActive
	s.mu.Unlock()

	if err := cfg.Save(); err != nil {
		return err
	}

	s.emitProfileActivated(ProfileActivatedEvent{})

	if wasActive {
		s.StopForwarding()
	}
	return nil
}

// ResetAll is the nuclear path: stop the watcher, stop forwarding, iterate
// every known device path calling enable+unhide (swallowing errors),
// deactivate hiding globally, clear the active profile and assignments, and
// persist (spec.md §4.6 reset_all).
func (s *AppState) ResetAll() error {
	if w := s.watcherHandle(); w != nil && w.IsRunning() {
		w.Stop()
	}
	s.StopForwarding()

	s.mu.Lock()
	devices := s.state.devices
	cfg := s.state.cfg
	s.mu.Unlock()

	for _, d := range devices {
		if d.IsSynthetic() {
			continue
		}
		if err := s.svc.Enable(d.InstancePath); err != nil {
			log.WithError(err).WithField("instance_path", d.InstancePath).Warn("reset: enable failed")
		}
		if err := s.svc.Unhide(d.InstancePath); err != nil {
			log.WithError(err).WithField("instance_path", d.InstancePath).Warn("reset: unhide failed")
		}
	}
	if err := s.svc.SetActive(false); err != nil {
		log.WithError(err).Warn("reset: deactivating hiding driver failed")
	}

	s.mu.Lock()
	cfg.Settings.ActiveProfileID = nil
	s.state.assignments = nil
	s.mu.Unlock()

	return cfg.Save()
}

// Assignments returns the currently active resolved-candidate assignment
// list (the App State record's own "assignments" field, distinct from any
// individual Profile's persisted assignments).
func (s *AppState) Assignments() []device.SlotAssignment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]device.SlotAssignment, len(s.state.assignments))
	copy(out, s.state.assignments)
	return out
}
