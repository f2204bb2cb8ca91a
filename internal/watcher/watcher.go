// Package watcher is the Process Watcher component (spec.md §4.7): a
// background poller matching running executables to game rules, driving
// profile auto-activation through the same App State entry points the
// UI-bridge collaborator uses. Generalizes
// original_source/src-tauri/src/process_watcher.rs's three
// #[cfg(target_os)] process-listing branches into one
// github.com/shirou/gopsutil/v3/process call.
package watcher

import (
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"github.com/sirupsen/logrus"

	"padswitch/internal/config"
)

var log = logrus.WithField("component", "watcher")

// tickInterval is how often the process table is polled.
const tickInterval = 3 * time.Second

// sleepSlice bounds the poller's sleep so Stop latency stays bounded
// (spec.md §4.7 "Sleeps are decomposed into 100ms slices").
const sleepSlice = 100 * time.Millisecond

// Activator is the subset of appstate.AppState the watcher drives:
// exactly the two transitions its state machine needs, kept as an
// interface to avoid an import cycle with internal/appstate.
type Activator interface {
	Config() *config.AppConfig
	ActivateProfile(profileID string) error
	ClearActiveProfile() error
}

// Watcher polls the OS process table and applies spec.md §4.7's
// transition table, recording which game rule (if any) is currently
// driving profile activation and which profile was active before it.
type Watcher struct {
	appstate Activator

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	activeRuleID  string
	preGameProfile *string
}

// New returns a Watcher bound to the App State it will drive.
func New(appstate Activator) *Watcher {
	return &Watcher{appstate: appstate}
}

// IsRunning reports whether the poller goroutine is active.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Start launches the poller goroutine. A second Start while already
// running is a no-op, mirroring start_process_watcher's idempotence.
func (w *Watcher) Start() {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	stopCh := w.stopCh
	doneCh := w.doneCh
	w.mu.Unlock()

	go w.run(stopCh, doneCh)
}

// Stop signals the poller and blocks until it has finished its current
// tick. A Stop while not running is a no-op.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	stopCh := w.stopCh
	doneCh := w.doneCh
	w.running = false
	w.mu.Unlock()

	close(stopCh)
	<-doneCh
}

func (w *Watcher) run(stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	for {
		w.tick()
		if !w.sleep(tickInterval, stopCh) {
			return
		}
	}
}

// sleep pauses for d, sliced to sleepSlice, returning false if stopCh fired
// mid-sleep.
func (w *Watcher) sleep(d time.Duration, stopCh chan struct{}) bool {
	for d > 0 {
		slice := d
		if slice > sleepSlice {
			slice = sleepSlice
		}
		select {
		case <-stopCh:
			return false
		case <-time.After(slice):
		}
		d -= slice
	}
	return true
}

// tick runs one poll cycle: snapshot rules and active profile, enumerate
// running processes, find a match, and apply the transition table.
func (w *Watcher) tick() {
	cfg := w.appstate.Config()
	rules := cfg.GameRules
	currentActiveProfile := cfg.Settings.ActiveProfileID

	running, err := listProcessNames()
	if err != nil {
		log.WithError(err).Warn("listing running processes failed")
		return
	}

	matched := findMatchingRule(rules, running)
	w.applyTransition(matched, currentActiveProfile)
}

func findMatchingRule(rules []config.GameRule, running map[string]bool) *config.GameRule {
	for i := range rules {
		r := rules[i]
		if !r.EffectiveEnabled() {
			continue
		}
		if running[strings.ToLower(r.ExeName)] {
			return &rules[i]
		}
	}
	return nil
}

// applyTransition implements spec.md §4.7's table exactly:
//
//	prior    matched   action
//	none     none      nothing
//	none     R         pre_game = current active; activate R; active_rule_id = R.id
//	R        none      activate pre_game if set, else clear active profile; clear both
//	R        R         nothing
//	R        R'        activate R'; active_rule_id = R'.id
func (w *Watcher) applyTransition(matched *config.GameRule, currentActiveProfile *string) {
	w.mu.Lock()
	priorRuleID := w.activeRuleID
	w.mu.Unlock()

	switch {
	case priorRuleID == "" && matched == nil:
		return

	case priorRuleID == "" && matched != nil:
		w.setState(matched.ID, currentActiveProfile)
		w.activate(matched.ProfileID)

	case priorRuleID != "" && matched == nil:
		w.mu.Lock()
		preGame := w.preGameProfile
		w.mu.Unlock()
		if preGame != nil {
			w.activate(*preGame)
		} else {
			w.clear()
		}
		w.setState("", nil)

	case priorRuleID == matched.ID:
		return

	default:
		w.setState(matched.ID, nil)
		w.activate(matched.ProfileID)
	}
}

func (w *Watcher) setState(ruleID string, preGame *string) {
	w.mu.Lock()
	w.activeRuleID = ruleID
	if ruleID == "" {
		w.preGameProfile = nil
	} else if preGame != nil {
		w.preGameProfile = preGame
	}
	w.mu.Unlock()
}

func (w *Watcher) activate(profileID string) {
	if err := w.appstate.ActivateProfile(profileID); err != nil {
		log.WithError(err).WithField("profile_id", profileID).Warn("auto-switch: activating profile failed")
	}
}

func (w *Watcher) clear() {
	if err := w.appstate.ClearActiveProfile(); err != nil {
		log.WithError(err).Warn("auto-switch: clearing active profile failed")
	}
}

// listProcessNames returns the lowercased set of currently running
// executable base names, replacing process_watcher.rs's Toolhelp32/proc/
// empty-stub trio with gopsutil's single cross-platform call.
func listProcessNames() (map[string]bool, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, err
	}

	out := make(map[string]bool, len(procs))
	for _, p := range procs {
		name, err := p.Name()
		if err != nil || name == "" {
			continue
		}
		out[strings.ToLower(name)] = true
	}
	return out, nil
}
