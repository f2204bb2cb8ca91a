// Package config persists the document spec.md §6 describes
// (padswitch/config.json) and the dirty-shutdown lockfile next to it,
// generalizing original_source/src-tauri/src/config.rs into Go, using
// goccy/go-json in place of serde_json and fsnotify to pick up external
// edits from the GUI-bridge collaborator without a restart.
package config

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"padswitch/internal/device"
	"padswitch/internal/perrors"
)

var log = logrus.WithField("component", "config")

// RoutingMode is the strategy the routing engine (C5) uses to impose a
// slot order. Defaults to Minimal when absent from a persisted Profile
// (spec §6 backwards-compatibility requirement).
type RoutingMode string

const (
	RoutingMinimal RoutingMode = "Minimal"
	RoutingForce   RoutingMode = "Force"
)

// Profile is a named set of assignments plus routing mode.
type Profile struct {
	ID            string                  `json:"id"`
	Name          string                  `json:"name"`
	Assignments   []device.SlotAssignment `json:"assignments"`
	RoutingMode   RoutingMode             `json:"routing_mode,omitempty"`
}

// EffectiveRoutingMode returns p.RoutingMode, defaulting to Minimal when the
// field was absent in a persisted document written by an older version.
func (p Profile) EffectiveRoutingMode() RoutingMode {
	if p.RoutingMode == "" {
		return RoutingMinimal
	}
	return p.RoutingMode
}

// GameRule maps a running executable to a profile to auto-activate.
type GameRule struct {
	ID        string `json:"id"`
	ExeName   string `json:"exe_name"`
	ProfileID string `json:"profile_id"`
	Enabled   *bool  `json:"enabled,omitempty"`
}

// EffectiveEnabled returns r.Enabled, defaulting to true when absent
// (spec §6: "GameRule.enabled defaults to true").
func (r GameRule) EffectiveEnabled() bool {
	if r.Enabled == nil {
		return true
	}
	return *r.Enabled
}

// Settings are the user-configurable daemon-wide toggles.
type Settings struct {
	AutoStart           bool    `json:"auto_start"`
	StartMinimized      bool    `json:"start_minimized"`
	AutoForwardOnLaunch bool    `json:"auto_forward_on_launch"`
	AutoSwitch          bool    `json:"auto_switch,omitempty"`
	ActiveProfileID      *string `json:"active_profile_id,omitempty"`
}

// AppConfig is the full persisted document.
type AppConfig struct {
	Settings   Settings   `json:"settings"`
	Profiles   []Profile  `json:"profiles"`
	GameRules  []GameRule `json:"game_rules,omitempty"`
}

// Dir returns (and creates) the padswitch config directory under the OS
// user config directory. No ecosystem "dirs" crate equivalent appears
// anywhere in the retrieval pack, so this stays on stdlib os.UserConfigDir.
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", perrors.IO("cannot find config directory", err)
	}
	dir := filepath.Join(base, "padswitch")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", perrors.IO("cannot create config directory", err)
	}
	return dir, nil
}

// Path returns the path to config.json.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// LockPath returns the path to the dirty-shutdown lockfile.
func LockPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "padswitch.lock"), nil
}

// Load reads config.json, creating a default document on first run.
// Unknown fields never fail decoding (go-json, like serde(default), simply
// ignores keys with no matching struct field).
func Load() (*AppConfig, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := &AppConfig{}
		if err := cfg.Save(); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, perrors.IO("reading config", err)
	}

	var cfg AppConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, perrors.Serialization("decoding config", err)
	}
	return &cfg, nil
}

// Save atomically persists the config document: write to a temp file in
// the same directory, then rename, so a crash mid-write can never leave a
// half-written config.json for the next Load to choke on.
func (c *AppConfig) Save() error {
	path, err := Path()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return perrors.Serialization("encoding config", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return perrors.IO("writing config", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return perrors.IO("renaming config into place", err)
	}
	return nil
}

// ActiveProfile returns the profile named by Settings.ActiveProfileID, if any.
func (c *AppConfig) ActiveProfile() *Profile {
	if c.Settings.ActiveProfileID == nil {
		return nil
	}
	for i := range c.Profiles {
		if c.Profiles[i].ID == *c.Settings.ActiveProfileID {
			return &c.Profiles[i]
		}
	}
	return nil
}

// NewProfile builds a Profile with a fresh id, mirroring
// commands.rs::save_profile's Uuid::new_v4().
func NewProfile(name string, assignments []device.SlotAssignment, mode RoutingMode) Profile {
	return Profile{
		ID:          uuid.NewString(),
		Name:        name,
		Assignments: assignments,
		RoutingMode: mode,
	}
}

// NewGameRule builds a GameRule with a fresh id, enabled by default.
func NewGameRule(exeName, profileID string) GameRule {
	enabled := true
	return GameRule{
		ID:        uuid.NewString(),
		ExeName:   exeName,
		ProfileID: profileID,
		Enabled:   &enabled,
	}
}

// watchMu serializes concurrent Watch calls; the
// fsnotify.Watcher itself is not otherwise synchronized.
var watchMu sync.Mutex

// Watch starts an fsnotify watch on the config directory and invokes onChange
// whenever config.json is written or created, whether by another process
// (the external GUI-bridge collaborator) or by this process's own Save.
// Returns a stop function. Mirrors the hot-reload
// capability the original Tauri app got for free by sharing one process's
// memory between its UI and core.
func Watch(onChange func()) (stop func(), err error) {
	watchMu.Lock()
	defer watchMu.Unlock()

	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	path, err := Path()
	if err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, perrors.IO("starting config watcher", err)
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, perrors.IO("watching config directory", err)
	}

	const interesting = fsnotify.Write | fsnotify.Create

	done := make(chan struct{})
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Name == path && (ev.Op&interesting != 0) {
					log.WithField("op", ev.Op.String()).Debug("config changed on disk")
					onChange()
				}
			case werr, ok := <-w.Errors:
				if !ok {
					return
				}
				log.WithError(werr).Warn("config watcher error")
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		w.Close()
	}, nil
}
