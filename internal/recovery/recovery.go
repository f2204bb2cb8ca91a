// Package recovery is the Lockfile Recovery component (spec.md §4.8): at
// process start, detect a dirty shutdown (the lockfile from a previous
// session still exists) and run a global unhide/enable/deactivate sweep
// before taking over, then write a fresh lockfile for this session.
// Generalizes original_source/src-tauri/src/lib.rs's startup sequence,
// which the teacher's main.go mirrors with its own "stale PID file" check
// around the driver loop.
package recovery

import (
	"github.com/sirupsen/logrus"

	"padswitch/internal/config"
	"padswitch/internal/device"
	"padswitch/internal/platform"
)

var log = logrus.WithField("component", "recovery")

// Result reports what Run actually did, for the CLI's startup log line and
// the "recover" subcommand's exit status.
type Result struct {
	// Recovered is true when a stale lockfile from a previous,
	// uncleanly-terminated session was found and swept.
	Recovered bool
}

// Run implements spec.md §4.8 end to end: if the lockfile exists, delete
// it, enumerate devices fresh, enable+unhide every real path (swallowing
// per-device errors), deactivate hiding globally, clear the active profile,
// persist, then write a new lockfile with the current process id. If no
// lockfile exists, Run only writes the new one.
func Run(svc platform.Services, cfg *config.AppConfig) (Result, error) {
	exists, err := config.LockExists()
	if err != nil {
		return Result{}, err
	}

	if exists {
		if err := sweep(svc, cfg); err != nil {
			return Result{}, err
		}
	}

	if err := config.WriteLock(); err != nil {
		return Result{}, err
	}

	return Result{Recovered: exists}, nil
}

// sweep performs scenario 5 of spec.md §8 exactly: delete the lockfile,
// re-enumerate, enable+unhide every real device path, deactivate hiding,
// clear active_profile_id, and persist.
func sweep(svc platform.Services, cfg *config.AppConfig) error {
	log.Warn("stale lockfile found: recovering from unclean shutdown")

	if err := config.RemoveLock(); err != nil {
		return err
	}

	devices, err := svc.Enumerate()
	if err != nil {
		log.WithError(err).Warn("recovery: re-enumeration failed, proceeding without a device list")
		devices = nil
	}

	for _, d := range devices {
		enableUnhide(svc, d)
	}

	if err := svc.SetActive(false); err != nil {
		log.WithError(err).Warn("recovery: deactivating hiding driver failed")
	}

	cfg.Settings.ActiveProfileID = nil
	return cfg.Save()
}

func enableUnhide(svc platform.Services, d device.PhysicalDevice) {
	if d.IsSynthetic() {
		return
	}
	if err := svc.Enable(d.InstancePath); err != nil {
		log.WithError(err).WithField("instance_path", d.InstancePath).Warn("recovery: enable failed")
	}
	if err := svc.Unhide(d.InstancePath); err != nil {
		log.WithError(err).WithField("instance_path", d.InstancePath).Warn("recovery: unhide failed")
	}
}
