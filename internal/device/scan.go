// Package device implements the scan machines of spec §4.4: the periodic
// control-logic cycle that sits above the physics layer and the
// protocol-facing memory map. Every scan machine snapshots, runs its
// control logic, updates status/alarm fields, and bulk-writes back,
// regardless of what kind of device it is.
package device

import (
	"github.com/icsim/simcore/internal/fabric"
	"github.com/icsim/simcore/pkg/model"
)

// ScanMachine is the common surface the orchestrator drives once per due
// scan interval. Implementations must not panic; any recoverable scan
// error is returned so the orchestrator can count it toward the
// device's consecutive-failure threshold.
type ScanMachine interface {
	DeviceName() string
	Scan(f *fabric.Fabric) ([]model.Event, error)
}

// DefaultFailureThreshold is the default consecutive-scan-failure count
// (spec §4.4) before a device is marked offline and faulted.
const DefaultFailureThreshold = 5
