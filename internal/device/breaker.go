package device

// TripState is one of a Safety PLC's three trip-breaker states,
// generalized from the teacher's CircuitState (closed/open/half-open)
// closed→open→half-open→closed shape (SPEC_FULL §12.5).
type TripState int

const (
	Normal TripState = iota
	Tripped
	Cooldown
)

func (s TripState) String() string {
	switch s {
	case Normal:
		return "normal"
	case Tripped:
		return "tripped"
	case Cooldown:
		return "cooldown"
	default:
		return "unknown"
	}
}

// tripBreaker latches a Safety PLC's trip condition: once tripped, it
// will not silently self-clear the instant the unsafe reading passes —
// it must sit in Cooldown for cooldownS of sim time with the
// condition staying clear, and then only returns to Normal if resetOK
// confirms the reset is safe (mirrors the teacher's half-open timeout
// gate, but resets on an explicit predicate rather than a probe request).
type tripBreaker struct {
	state      TripState
	cooldownS  float64
	cooldownAt float64 // sim time Cooldown was entered
}

func newTripBreaker(cooldownS float64) *tripBreaker {
	return &tripBreaker{state: Normal, cooldownS: cooldownS}
}

// Evaluate advances the breaker given the current unsafe-condition
// reading, the current sim time, and a reset predicate evaluated only
// once the cooldown window has elapsed. It returns true exactly on the
// tick the breaker transitions into Tripped (the caller emits a trip
// event on that transition, not on every tick it stays tripped).
func (b *tripBreaker) Evaluate(now float64, unsafe bool, resetOK func() bool) (justTripped bool) {
	switch b.state {
	case Normal:
		if unsafe {
			b.state = Tripped
			return true
		}
	case Tripped:
		if !unsafe {
			b.state = Cooldown
			b.cooldownAt = now
		}
	case Cooldown:
		if unsafe {
			b.state = Tripped
			return true
		}
		if now-b.cooldownAt >= b.cooldownS && resetOK() {
			b.state = Normal
		}
	}
	return false
}

func (b *tripBreaker) State() TripState { return b.state }
