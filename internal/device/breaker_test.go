package device

import "testing"

func TestTripBreakerLatchesUntilCooldownAndReset(t *testing.T) {
	b := newTripBreaker(5.0)

	if tripped := b.Evaluate(0, false, alwaysOK); tripped {
		t.Fatal("should not trip while condition is safe")
	}
	if b.State() != Normal {
		t.Fatalf("state = %v, want Normal", b.State())
	}

	if tripped := b.Evaluate(1, true, alwaysOK); !tripped {
		t.Fatal("expected trip on unsafe transition")
	}
	if b.State() != Tripped {
		t.Fatalf("state = %v, want Tripped", b.State())
	}

	// Condition still unsafe: should not re-report a trip, stays Tripped.
	if tripped := b.Evaluate(2, true, alwaysOK); tripped {
		t.Fatal("should not report a second trip while condition stays unsafe")
	}

	// Condition clears: enters Cooldown, but reset isn't granted until
	// the cooldown window elapses.
	if tripped := b.Evaluate(3, false, alwaysOK); tripped {
		t.Fatal("clearing the condition should not itself report a trip")
	}
	if b.State() != Cooldown {
		t.Fatalf("state = %v, want Cooldown", b.State())
	}
	if b.Evaluate(4, false, alwaysOK); b.State() != Cooldown {
		t.Fatal("should remain in Cooldown before the timeout elapses")
	}

	if b.Evaluate(9, false, alwaysOK); b.State() != Normal {
		t.Fatal("should return to Normal once cooldown elapses and reset is OK")
	}
}

func TestTripBreakerReassertsDuringCooldown(t *testing.T) {
	b := newTripBreaker(5.0)
	b.Evaluate(0, true, alwaysOK)
	b.Evaluate(1, false, alwaysOK) // -> Cooldown

	if tripped := b.Evaluate(2, true, alwaysOK); !tripped {
		t.Fatal("expected a fresh trip report when condition reasserts during cooldown")
	}
	if b.State() != Tripped {
		t.Fatalf("state = %v, want Tripped", b.State())
	}
}

func TestTripBreakerWithholdsResetWhenNotOK(t *testing.T) {
	b := newTripBreaker(5.0)
	b.Evaluate(0, true, alwaysOK)
	b.Evaluate(1, false, alwaysOK)

	never := func() bool { return false }
	b.Evaluate(100, false, never)
	if b.State() != Cooldown {
		t.Fatalf("state = %v, want Cooldown while resetOK withholds the reset", b.State())
	}
}

func alwaysOK() bool { return true }
