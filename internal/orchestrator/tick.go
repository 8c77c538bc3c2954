package orchestrator

import (
	"errors"
	"fmt"

	"github.com/icsim/simcore/internal/clock"
	"github.com/icsim/simcore/pkg/kerrors"
	"github.com/icsim/simcore/pkg/model"
)

// Start runs boot steps 8-9: start every listener (a BindFailed
// listener is logged and skipped rather than aborting the whole boot,
// per spec §4.7), then, only in RealTime/Accelerated mode, launch the
// background tick loop. In Stepped/Paused mode no goroutine is
// started; callers drive ticks explicitly through Step, which is what
// makes deterministic replay (spec §8) possible.
func (o *Orchestrator) Start() error {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return nil
	}
	o.started = true
	o.stopCh = make(chan struct{})
	o.mu.Unlock()

	for _, l := range o.listeners {
		if err := l.Start(); err != nil {
			if errors.Is(err, kerrors.ErrBindFailed) {
				o.log.Warn("listener bind failed, continuing without it",
					"device", l.Device(), "protocol", l.Protocol(), "error", err)
				continue
			}
			return fmt.Errorf("start listener %s/%s: %w", l.Device(), l.Protocol(), err)
		}
	}

	mode := o.clk.Mode()
	if mode == clock.RealTime || mode == clock.Accelerated {
		o.wg.Add(1)
		go o.runLoop()
	}
	return nil
}

// runLoop paces itself with clock.SleepSim so a tick fires once per
// tickInterval of simulated time, checking stopCh roughly once per
// interval for a prompt but not instantaneous shutdown.
func (o *Orchestrator) runLoop() {
	defer o.wg.Done()
	for {
		select {
		case <-o.stopCh:
			return
		default:
		}
		o.clk.SleepSim(o.tickInterval)
		select {
		case <-o.stopCh:
			return
		default:
		}
		o.runTick(o.tickInterval)
	}
}

// Step explicitly advances the clock and runs one tick. Only valid in
// Stepped mode (the clock itself enforces this); it is the mechanism
// external callers use to drive the simulation when no background tick
// loop is running (spec §8 S5: "calling step(0.1) 600 times").
func (o *Orchestrator) Step(dt float64) error {
	if err := o.clk.Step(dt); err != nil {
		return err
	}
	o.runTick(dt)
	return nil
}

// runTick executes one tick in the fixed order spec §4.7 requires:
// physics, then due scans, then listener sync. Ordering is not promised
// to clients between ticks, only within one.
func (o *Orchestrator) runTick(dt float64) {
	for _, integ := range o.integrators {
		integ.ReadControls(o.fab)
		integ.Update(dt)
		integ.WriteTelemetry(o.fab)
	}

	if o.grid != nil {
		o.grid.AggregateFromDevices(o.fab)
		o.bus.PublishAll(o.grid.Update(dt))
	}

	if o.powerFlow != nil {
		o.powerFlow.AggregateFromDevices(o.fab)
		if err := o.powerFlow.Solve(); err != nil {
			o.log.Warn("power flow solve failed", "error", err)
		}
	}

	now := o.clk.Now()
	for _, m := range o.scans.DueBefore(now) {
		evs, err := m.Scan(o.fab)
		if err != nil {
			o.log.Warn("scan failed", "device", m.DeviceName(), "error", err)
			faulted, ferr := o.fab.RecordScanFailure(m.DeviceName(), o.failureThreshold)
			if ferr == nil && faulted {
				o.bus.Publish(model.NewEvent(model.EventDeviceFaulted, now, m.DeviceName(),
					map[string]any{"error": err.Error()}))
			}
			continue
		}
		if err := o.fab.RecordScanSuccess(m.DeviceName()); err != nil {
			o.log.Warn("record scan success failed", "device", m.DeviceName(), "error", err)
		}
		o.bus.PublishAll(evs)
	}

	for _, l := range o.listeners {
		pending := l.MirrorPull()
		if err := o.fab.WriteBulk(l.Device(), pending); err != nil {
			o.log.Warn("apply client writes failed", "device", l.Device(), "error", err)
		}
		snap, err := o.fab.ReadBulk(l.Device())
		if err != nil {
			o.log.Warn("read telemetry for mirror push failed", "device", l.Device(), "error", err)
			continue
		}
		l.MirrorPush(snap)
	}

	o.clk.IncrementCycles()
}

// Stop runs the shutdown order of spec §4.7/§2: listeners first (drain
// in-flight sessions), then the tick loop, then release is implicit
// (the orchestrator's references are simply dropped by the caller) and
// the clock needs no explicit stop.
func (o *Orchestrator) Stop() error {
	o.mu.Lock()
	if !o.started {
		o.mu.Unlock()
		return nil
	}
	o.started = false
	stopCh := o.stopCh
	o.mu.Unlock()

	for _, l := range o.listeners {
		if err := l.Stop(); err != nil {
			o.log.Warn("listener stop error", "device", l.Device(), "protocol", l.Protocol(), "error", err)
		}
	}

	close(stopCh)
	o.wg.Wait()
	return nil
}
