package fabric

import (
	"errors"
	"testing"

	"github.com/icsim/simcore/internal/clock"
	"github.com/icsim/simcore/pkg/kerrors"
	"github.com/icsim/simcore/pkg/model"
)

func newTestFabric(t *testing.T) *Fabric {
	t.Helper()
	c, err := clock.New(clock.Stepped, 1)
	if err != nil {
		t.Fatal(err)
	}
	return New(c)
}

func TestRegisterDuplicateFails(t *testing.T) {
	f := newTestFabric(t)
	if _, err := f.Register("plc1", model.KindPLC, 1, []string{"modbus"}, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := f.Register("plc1", model.KindPLC, 1, []string{"modbus"}, nil); !errors.Is(err, kerrors.ErrDuplicateDevice) {
		t.Fatalf("expected ErrDuplicateDevice, got %v", err)
	}
}

func TestWriteUnknownDevice(t *testing.T) {
	f := newTestFabric(t)
	key, _ := model.ParseKey("coils[0]")
	if err := f.Write("ghost", key, true); !errors.Is(err, kerrors.ErrUnknownDevice) {
		t.Fatalf("expected ErrUnknownDevice, got %v", err)
	}
}

func TestWriteTypeMismatch(t *testing.T) {
	f := newTestFabric(t)
	f.Register("plc1", model.KindPLC, 1, nil, nil)
	key, _ := model.ParseKey("holding_registers[0]")
	if err := f.Write("plc1", key, true); !errors.Is(err, kerrors.ErrTypeMismatch) {
		t.Fatalf("expected ErrTypeMismatch writing a bool to a register, got %v", err)
	}

	coilKey, _ := model.ParseKey("coils[0]")
	if err := f.Write("plc1", coilKey, uint16(1)); !errors.Is(err, kerrors.ErrTypeMismatch) {
		t.Fatalf("expected ErrTypeMismatch writing a register to a coil, got %v", err)
	}
}

func TestReadWriteRoundTrip(t *testing.T) {
	f := newTestFabric(t)
	f.Register("plc1", model.KindPLC, 1, nil, nil)
	key, _ := model.ParseKey("holding_registers[0]")

	if err := f.Write("plc1", key, uint16(4500)); err != nil {
		t.Fatal(err)
	}
	v, ok, err := f.Read("plc1", key)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected value to be present")
	}
	if v.(uint16) != 4500 {
		t.Fatalf("Read() = %v, want 4500", v)
	}
}

func TestBulkWriteIsAtomicPerDevice(t *testing.T) {
	f := newTestFabric(t)
	f.Register("plc1", model.KindPLC, 1, nil, nil)

	partial := model.NewMemoryMap()
	k0, _ := model.ParseKey("holding_registers[0]")
	k1, _ := model.ParseKey("holding_registers[1]")
	partial.HoldingRegisters[k0.Index] = 100
	partial.HoldingRegisters[k1.Index] = 200

	if err := f.WriteBulk("plc1", partial); err != nil {
		t.Fatal(err)
	}
	snap, err := f.ReadBulk("plc1")
	if err != nil {
		t.Fatal(err)
	}
	if snap.HoldingRegisters[0] != 100 || snap.HoldingRegisters[1] != 200 {
		t.Fatalf("unexpected snapshot contents: %+v", snap.HoldingRegisters)
	}
}

func TestScanFailureThreshold(t *testing.T) {
	f := newTestFabric(t)
	f.Register("plc1", model.KindPLC, 1, nil, nil)

	for i := 0; i < 4; i++ {
		faulted, err := f.RecordScanFailure("plc1", 5)
		if err != nil {
			t.Fatal(err)
		}
		if faulted {
			t.Fatalf("device faulted too early at failure %d", i+1)
		}
	}
	faulted, err := f.RecordScanFailure("plc1", 5)
	if err != nil {
		t.Fatal(err)
	}
	if !faulted {
		t.Fatal("expected device to be faulted on the 5th consecutive failure")
	}
	online, err := f.IsOnline("plc1")
	if err != nil {
		t.Fatal(err)
	}
	if online {
		t.Fatal("expected faulted device to be marked offline")
	}
}

func TestNamesSortedDeterministic(t *testing.T) {
	f := newTestFabric(t)
	f.Register("turbine_plc_2", model.KindPLC, 2, nil, nil)
	f.Register("turbine_plc_1", model.KindPLC, 1, nil, nil)
	names := f.Names()
	if len(names) != 2 || names[0] != "turbine_plc_1" || names[1] != "turbine_plc_2" {
		t.Fatalf("Names() = %v, want sorted order", names)
	}
}
