// Package routing runs the forwarding worker (spec.md §5 "Routing Engine"):
// a single dedicated goroutine per Start/Stop cycle, the same shape main.go's
// Manager.driverLoop uses for its per-controller goroutine. Stop is signalled
// by closing a per-cycle stop channel; the atomic running flag only records
// whether the goroutine is active and is not what ends it. Minimal reorders XInput slot claims by
// disabling and re-enabling devices in sequence; Force hides the physical
// devices and forwards their state to virtual targets at ~1kHz.
package routing

import (
	"sort"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"padswitch/internal/config"
	"padswitch/internal/device"
	"padswitch/internal/platform"
)

var log = logrus.WithField("component", "routing")

// sleepSlice bounds every sleep to this granularity so Stop is always
// observed within one slice instead of blocking for an entire hold period.
const sleepSlice = 500 * time.Millisecond

// tickInterval is Force mode's forwarding rate: roughly 1000Hz.
const tickInterval = time.Millisecond

// Worker owns the forwarding goroutine for one Start/Stop cycle. A Worker
// is reused across cycles; it holds no state once Stop returns.
type Worker struct {
	svc     platform.Services
	running atomic.Bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New returns a Worker bound to svc's OS façade.
func New(svc platform.Services) *Worker {
	return &Worker{svc: svc}
}

// IsRunning reports whether the forwarding goroutine is active.
func (w *Worker) IsRunning() bool { return w.running.Load() }

// Start begins forwarding assignments under mode and blocks until either the
// forwarding loop is up or acquisition has failed and cleanup has finished
// unwinding (spec.md §4.5/§4.6: "a failed start_forwarding must leave
// forwarding_active = false and all resources released"). A second Start
// while already running is a no-op, matching InputLoop::start's early
// return.
func (w *Worker) Start(mode config.RoutingMode, assignments []device.ResolvedAssignment) error {
	if !w.running.CompareAndSwap(false, true) {
		return nil
	}

	sorted := make([]device.ResolvedAssignment, len(assignments))
	copy(sorted, assignments)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].TargetSlot < sorted[j].TargetSlot })

	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	ready := make(chan error, 1)

	go func() {
		defer close(w.doneCh)
		defer w.running.Store(false)

		switch mode {
		case config.RoutingForce:
			w.runForce(sorted, ready)
		default:
			w.runMinimal(sorted, ready)
		}
	}()

	if err := <-ready; err != nil {
		<-w.doneCh
		return err
	}
	return nil
}

// Stop signals the forwarding goroutine and blocks until it has finished
// cleanup. A Stop while not running is a no-op.
func (w *Worker) Stop() {
	if !w.running.Load() {
		return
	}
	close(w.stopCh)
	<-w.doneCh
}

// sleep pauses for d, sliced to sleepSlice, and reports whether it ran to
// completion (false means stop was requested mid-sleep).
func (w *Worker) sleep(d time.Duration) bool {
	for d > 0 {
		slice := d
		if slice > sleepSlice {
			slice = sleepSlice
		}
		select {
		case <-w.stopCh:
			return false
		case <-time.After(slice):
		}
		d -= slice
	}
	return true
}

func (w *Worker) holdUntilStop() {
	<-w.stopCh
}

// runMinimal disables every assigned device, waits briefly for the OS to
// release their XInput slots, then re-enables them in ascending target-slot
// order with a stagger so XInput claims each slot in the intended sequence
// (spec.md §5 "Minimal mode"). Re-enabling on exit is unconditional: Stop
// must always leave every assigned device enabled.
func (w *Worker) runMinimal(sorted []device.ResolvedAssignment, ready chan<- error) {
	ready <- nil

	log.WithField("count", len(sorted)).Info("minimal mode: disabling assigned devices")
	for _, a := range sorted {
		if err := w.svc.Disable(a.InstancePath); err != nil {
			log.WithError(err).WithField("instance_path", a.InstancePath).Warn("disable failed")
		}
	}
	defer w.reenableAll(sorted)

	if !w.sleep(200 * time.Millisecond) {
		return
	}

	for _, a := range sorted {
		if err := w.svc.Enable(a.InstancePath); err != nil {
			log.WithError(err).WithField("instance_path", a.InstancePath).Warn("enable failed")
		}
		if !w.sleep(100 * time.Millisecond) {
			return
		}
	}

	log.Info("minimal mode: reordering complete, holding")
	w.holdUntilStop()
}

func (w *Worker) reenableAll(sorted []device.ResolvedAssignment) {
	for _, a := range sorted {
		if err := w.svc.Enable(a.InstancePath); err != nil {
			log.WithError(err).WithField("instance_path", a.InstancePath).Warn("re-enable on cleanup failed")
		}
	}
}

// runForce whitelists self (Windows only, handled inside svc), hides every
// assigned device, connects the virtual bus, plugs one virtual target per
// slot in order, then forwards state at ~1kHz until stopped. Cleanup
// unwinds in reverse: unplug targets, disconnect the bus, deactivate
// hiding, then unhide devices in the order they were hidden (spec.md §5
// "Force mode").
func (w *Worker) runForce(sorted []device.ResolvedAssignment, ready chan<- error) {
	if err := w.svc.WhitelistSelf(); err != nil {
		log.WithError(err).Warn("whitelisting self failed")
	}

	hidden := make([]string, 0, len(sorted))
	defer func() {
		for _, p := range hidden {
			if err := w.svc.Unhide(p); err != nil {
				log.WithError(err).WithField("instance_path", p).Warn("unhide on cleanup failed")
			}
		}
	}()
	for _, a := range sorted {
		if err := w.svc.Hide(a.InstancePath); err != nil {
			log.WithError(err).WithField("instance_path", a.InstancePath).Warn("hide failed")
			continue
		}
		hidden = append(hidden, a.InstancePath)
	}

	if err := w.svc.SetActive(true); err != nil {
		log.WithError(err).Error("activating hiding driver failed")
		ready <- err
		return
	}
	defer w.svc.SetActive(false)

	if err := w.svc.Connect(); err != nil {
		log.WithError(err).Error("connecting virtual bus failed")
		ready <- err
		return
	}
	defer w.svc.Disconnect()

	targets := make(map[int]platform.VirtualTarget, len(sorted))
	var plugged []int
	defer func() {
		for i := len(plugged) - 1; i >= 0; i-- {
			if err := targets[plugged[i]].Unplug(); err != nil {
				log.WithError(err).Warn("unplug on cleanup failed")
			}
		}
	}()
	for _, a := range sorted {
		t, err := w.svc.Plug(a.TargetSlot)
		if err != nil {
			log.WithError(err).WithField("slot", a.TargetSlot).Error("plugging virtual target failed")
			ready <- err
			return
		}
		targets[a.TargetSlot] = t
		plugged = append(plugged, a.TargetSlot)
	}

	log.WithField("targets", len(targets)).Info("force mode: forwarding started")
	ready <- nil
	w.forward(sorted, targets)
}

func (w *Worker) forward(sorted []device.ResolvedAssignment, targets map[int]platform.VirtualTarget) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			for _, a := range sorted {
				target, ok := targets[a.TargetSlot]
				if !ok {
					continue
				}
				state, err := w.svc.Read(a)
				if err != nil {
					continue
				}
				if err := target.Update(state); err != nil {
					log.WithError(err).WithField("slot", a.TargetSlot).Debug("forwarding write failed")
				}
			}
		}
	}
}
