// Command padswitchd is the daemon entry point: a github.com/alecthomas/kong
// CLI replacing the teacher's bare flag.Bool("daemon", ...) pair with
// subcommands, wiring C1-C9 together the way original_source/src-tauri's
// lib.rs::run() wires Tauri's managed state, minus the GUI/tray bridge
// (spec.md §1 "out of scope").
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/sirupsen/logrus"

	"padswitch/internal/appstate"
	"padswitch/internal/config"
	"padswitch/internal/identify"
	"padswitch/internal/platform"
	"padswitch/internal/recovery"
	"padswitch/internal/watcher"
)

var log = logrus.WithField("component", "cmd")

// CLI is the root kong command set: daemon runs the service, the other
// three force-run individual core operations from a terminal without a
// GUI-bridge collaborator attached.
type CLI struct {
	Daemon   DaemonCmd   `cmd:"" help:"Run the padswitch routing daemon."`
	Identify IdentifyCmd `cmd:"" help:"Press a button on a controller to find which slot it occupies."`
	Recover  RecoverCmd  `cmd:"" help:"Run the dirty-shutdown recovery sweep if a stale lockfile exists."`
	ResetAll ResetAllCmd `cmd:"reset-all" help:"Re-enable and unhide every known device, then clear the active profile."`
}

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("padswitchd"),
		kong.Description("Deterministic controller-slot routing daemon."),
	)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}

// setup loads config and constructs the platform façade + App State shared
// by every subcommand.
func setup() (*appstate.AppState, *config.AppConfig, platform.Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	svc := platform.New()
	return appstate.New(svc, cfg), cfg, svc, nil
}

// DaemonCmd runs the routing daemon until SIGINT/SIGTERM: recovery sweep,
// optional auto-forward-on-launch, the process watcher, and a clean
// shutdown that removes the lockfile (spec.md §6 "exit code 0 on orderly
// shutdown").
type DaemonCmd struct{}

func (c *DaemonCmd) Run() error {
	app, cfg, svc, err := setup()
	if err != nil {
		return err
	}

	result, err := recovery.Run(svc, cfg)
	if err != nil {
		return err
	}
	if result.Recovered {
		log.Warn("recovered from an unclean shutdown")
	}

	if _, err := app.RefreshDevices(); err != nil {
		log.WithError(err).Warn("initial device enumeration failed")
	}

	stopWatch, err := config.Watch(func() {
		log.Info("config.json changed on disk; reloading")
		if reloaded, err := config.Load(); err != nil {
			log.WithError(err).Warn("reloading config failed")
		} else {
			*cfg = *reloaded
		}
	})
	if err != nil {
		log.WithError(err).Warn("config hot-reload disabled")
	} else {
		defer stopWatch()
	}

	w := watcher.New(app)
	app.SetWatcher(w)
	if cfg.Settings.AutoSwitch {
		w.Start()
	}

	if cfg.Settings.AutoForwardOnLaunch && cfg.ActiveProfile() != nil {
		if err := app.StartForwarding(); err != nil {
			log.WithError(err).Error("auto-forward-on-launch failed")
		}
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	log.Info("padswitchd ready")
	<-sig

	log.Info("shutting down")
	w.Stop()
	app.StopForwarding()
	if err := config.RemoveLock(); err != nil {
		log.WithError(err).Warn("removing lockfile on shutdown failed")
	}
	return nil
}

// IdentifyCmd runs the C9 helper from a terminal: it asks the user to
// press a button, then reports the occupied slot.
type IdentifyCmd struct{}

func (c *IdentifyCmd) Run() error {
	_, _, svc, err := setup()
	if err != nil {
		return err
	}

	log.Info("press any button on the controller you want to identify...")
	slot, ok := identify.DetectXInputSlot(svc)
	if !ok {
		log.Warn("no button press detected within the timeout")
		return nil
	}
	log.WithField("slot", slot).Info("detected controller slot")
	return nil
}

// RecoverCmd runs the C8 check outside of daemon startup, useful after a
// crash that left devices hidden/disabled with no daemon running to recover
// them automatically. The sweep runs only when a stale lockfile exists;
// either way a fresh lockfile is written.
type RecoverCmd struct{}

func (c *RecoverCmd) Run() error {
	_, cfg, svc, err := setup()
	if err != nil {
		return err
	}
	result, err := recovery.Run(svc, cfg)
	if err != nil {
		return err
	}
	if result.Recovered {
		log.Info("recovery sweep complete")
	} else {
		log.Info("no stale lockfile found; nothing to recover")
	}
	return nil
}

// ResetAllCmd force-runs App State's nuclear path from a terminal.
type ResetAllCmd struct{}

func (c *ResetAllCmd) Run() error {
	app, _, _, err := setup()
	if err != nil {
		return err
	}
	if _, err := app.RefreshDevices(); err != nil {
		log.WithError(err).Warn("device enumeration before reset failed")
	}
	return app.ResetAll()
}
