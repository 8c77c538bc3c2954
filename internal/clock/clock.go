// Package clock implements the kernel's single authoritative time
// source. It is grounded on the teacher's pkg/utils.SimTime (a plain
// wall-clock wrapper, since removed in favor of this mode-aware
// replacement) and on original_source/components/time/simulation_time.py,
// whose wall-alignment recomputation on resume/set_speed this package
// reproduces exactly so that pausing or re-speeding never causes sim_now
// to jump retroactively.
package clock

import (
	"fmt"
	"sync"
	"time"

	"github.com/icsim/simcore/pkg/kerrors"
)

// Mode is one of the clock's four execution modes.
type Mode int

const (
	RealTime Mode = iota
	Accelerated
	Stepped
	Paused
)

func (m Mode) String() string {
	switch m {
	case RealTime:
		return "realtime"
	case Accelerated:
		return "accelerated"
	case Stepped:
		return "stepped"
	case Paused:
		return "paused"
	default:
		return "unknown"
	}
}

// maxSpeedMultiplier mirrors the Python original's _MAX_SPEED_MULTIPLIER.
const maxSpeedMultiplier = 1000.0

// Clock is the process-wide authoritative time source. It is created
// once by the orchestrator and handed to every component that needs
// time — never looked up through a package-level global.
type Clock struct {
	mu   sync.Mutex
	cond *sync.Cond

	mode  Mode
	speed float64

	// simNow is the frozen sim time while paused/stepped; while running
	// (RealTime/Accelerated) it is recomputed from wallStart on every
	// read instead of being kept current by a background loop.
	simNow    float64
	wallStart time.Time

	startSimTime float64 // simNow at the last reset(), for elapsed()
	cycles       uint64
}

// New creates a Clock in the given mode. speed is only meaningful for
// Accelerated; RealTime behaves as Accelerated(1).
func New(mode Mode, speed float64) (*Clock, error) {
	if speed <= 0 {
		return nil, fmt.Errorf("clock speed %v: %w", speed, kerrors.ErrInvalidConfig)
	}
	c := &Clock{
		mode:      mode,
		speed:     speed,
		wallStart: time.Now(),
	}
	c.cond = sync.NewCond(&c.mu)
	return c, nil
}

// running reports whether sim time auto-advances (RealTime/Accelerated)
// as opposed to being frozen (Stepped/Paused).
func (c *Clock) running() bool {
	return c.mode == RealTime || c.mode == Accelerated
}

// locked computes the current sim_now without acquiring the mutex;
// callers must hold c.mu.
func (c *Clock) locked() float64 {
	if !c.running() {
		return c.simNow
	}
	return time.Since(c.wallStart).Seconds() * c.rate()
}

// rate is the sim-seconds-per-wall-second multiplier: 1 in RealTime,
// the configured speed otherwise.
func (c *Clock) rate() float64 {
	if c.mode == RealTime {
		return 1
	}
	return c.speed
}

// rebase recomputes wallStart so that locked() continues to return the
// current frozen simNow without a retroactive jump, mirroring the
// Python original's wall_time_start = now - sim_time/multiplier.
func (c *Clock) rebase() {
	c.wallStart = time.Now().Add(-time.Duration(c.simNow / c.rate() * float64(time.Second)))
}

// Now returns the current simulation time in seconds, monotonic
// nondecreasing.
func (c *Clock) Now() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.locked()
}

// Elapsed returns sim seconds since the last Reset (or since creation).
func (c *Clock) Elapsed() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.locked() - c.startSimTime
}

// Cycles returns the tick count maintained by the orchestrator via
// IncrementCycles.
func (c *Clock) Cycles() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cycles
}

// IncrementCycles bumps the tick counter; called once per orchestrator
// tick loop iteration.
func (c *Clock) IncrementCycles() {
	c.mu.Lock()
	c.cycles++
	c.mu.Unlock()
}

// Mode returns the clock's current mode.
func (c *Clock) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// SetMode switches modes. Entering Stepped/Paused freezes simNow at its
// current value; leaving them rebases wallStart so running resumes
// without a jump.
func (c *Clock) SetMode(m Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()

	wasRunning := c.running()
	current := c.locked()
	c.mode = m
	nowRunning := c.running()

	switch {
	case wasRunning && !nowRunning:
		c.simNow = current
	case !wasRunning && nowRunning:
		c.simNow = current
		c.rebase()
	}
	c.cond.Broadcast()
}

// SetSpeed changes the Accelerated multiplier, rebasing wallStart so the
// change takes effect without a retroactive jump. Speeds above 1000x
// (the Python original's cap) are rejected.
func (c *Clock) SetSpeed(k float64) error {
	if k <= 0 || k > maxSpeedMultiplier {
		return fmt.Errorf("speed %v out of range (0, %v]: %w", k, maxSpeedMultiplier, kerrors.ErrInvalidConfig)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	current := c.locked()
	c.simNow = current
	c.speed = k
	if c.running() {
		c.rebase()
	}
	return nil
}

// Pause freezes sim_now at its current value.
func (c *Clock) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.simNow = c.locked()
	c.mode = Paused
	c.cond.Broadcast()
}

// Resume leaves Paused, rebasing wallStart so sim_now continues forward
// from where it was frozen rather than jumping to "now".
func (c *Clock) Resume(m Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = m
	if c.running() {
		c.rebase()
	}
	c.cond.Broadcast()
}

// Step advances sim_now by exactly dt. Only valid in Stepped mode.
func (c *Clock) Step(dt float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode != Stepped {
		return fmt.Errorf("step() in mode %s: %w", c.mode, kerrors.ErrInvalidMode)
	}
	if dt < 0 {
		return fmt.Errorf("negative step %v: %w", dt, kerrors.ErrInvalidConfig)
	}
	c.simNow += dt
	c.cond.Broadcast()
	return nil
}

// Reset zeroes sim_now and the cycle counter, rebasing wallStart if
// running.
func (c *Clock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.simNow = 0
	c.startSimTime = 0
	c.cycles = 0
	if c.running() {
		c.rebase()
	}
	c.cond.Broadcast()
}

// SleepSim blocks the calling goroutine until sim_now has advanced by at
// least dt from the moment of the call. In Stepped mode this blocks
// until enough Step calls have occurred; in RealTime/Accelerated it
// wakes itself periodically since sim_now advances continuously.
func (c *Clock) SleepSim(dt float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	target := c.locked() + dt
	for c.locked() < target {
		if c.running() {
			remaining := (target - c.locked()) / c.rate()
			c.mu.Unlock()
			if remaining > 0 {
				time.Sleep(time.Duration(remaining * float64(time.Second)))
			}
			c.mu.Lock()
			continue
		}
		c.cond.Wait()
	}
}
