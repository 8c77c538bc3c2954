package device

import (
	"testing"

	"github.com/icsim/simcore/internal/clock"
	"github.com/icsim/simcore/internal/fabric"
	"github.com/icsim/simcore/pkg/model"
)

func TestHistorianRecordsMonotonicSamples(t *testing.T) {
	c, err := clock.New(clock.Stepped, 1)
	if err != nil {
		t.Fatal(err)
	}
	f := fabric.New(c)
	if _, err := f.Register("turbine_plc_1", model.KindPLC, 1, []string{"modbus", "turbine"}, nil); err != nil {
		t.Fatal(err)
	}
	key, _ := model.ParseKey("input_registers[0]")

	h := NewHistorianDevice("historian_1", []HistorianTag{
		{Tag: "shaft_speed", PeerDevice: "turbine_plc_1", Key: key},
	}, 5)

	for i := 0; i < 5; i++ {
		if err := f.Write("turbine_plc_1", key, uint16(100*(i+1))); err != nil {
			t.Fatal(err)
		}
		if _, err := h.Scan(f); err != nil {
			t.Fatal(err)
		}
		if err := c.Step(1.0); err != nil {
			t.Fatal(err)
		}
	}

	samples := h.History("shaft_speed")
	if len(samples) != 5 {
		t.Fatalf("expected 5 samples, got %d", len(samples))
	}
	for i := 1; i < len(samples); i++ {
		if samples[i].SimTime <= samples[i-1].SimTime {
			t.Fatalf("samples not monotonic: %v then %v", samples[i-1], samples[i])
		}
	}
	if samples[0].Value != 100 || samples[len(samples)-1].Value != 500 {
		t.Fatalf("unexpected sample values: first=%v last=%v", samples[0].Value, samples[len(samples)-1].Value)
	}
}

func TestHistorianRingBufferEvictsOldest(t *testing.T) {
	c, err := clock.New(clock.Stepped, 1)
	if err != nil {
		t.Fatal(err)
	}
	f := fabric.New(c)
	if _, err := f.Register("turbine_plc_1", model.KindPLC, 1, []string{"modbus", "turbine"}, nil); err != nil {
		t.Fatal(err)
	}
	key, _ := model.ParseKey("input_registers[0]")

	h := NewHistorianDevice("historian_2", []HistorianTag{
		{Tag: "shaft_speed", PeerDevice: "turbine_plc_1", Key: key},
	}, 3)

	for i := 0; i < 10; i++ {
		if err := f.Write("turbine_plc_1", key, uint16(i)); err != nil {
			t.Fatal(err)
		}
		if _, err := h.Scan(f); err != nil {
			t.Fatal(err)
		}
		if err := c.Step(1.0); err != nil {
			t.Fatal(err)
		}
	}

	samples := h.History("shaft_speed")
	if len(samples) != 3 {
		t.Fatalf("expected ring capped at 3, got %d", len(samples))
	}
	if samples[0].Value != 7 || samples[2].Value != 9 {
		t.Fatalf("expected only the last 3 values [7,8,9], got %v", samples)
	}
}

func TestHistorianStatsSummarizesBufferedSamples(t *testing.T) {
	c, err := clock.New(clock.Stepped, 1)
	if err != nil {
		t.Fatal(err)
	}
	f := fabric.New(c)
	if _, err := f.Register("turbine_plc_1", model.KindPLC, 1, []string{"modbus", "turbine"}, nil); err != nil {
		t.Fatal(err)
	}
	key, _ := model.ParseKey("input_registers[0]")

	h := NewHistorianDevice("historian_3", []HistorianTag{
		{Tag: "shaft_speed", PeerDevice: "turbine_plc_1", Key: key},
	}, 5)

	for _, v := range []uint16{10, 20, 30, 40, 50} {
		if err := f.Write("turbine_plc_1", key, v); err != nil {
			t.Fatal(err)
		}
		if _, err := h.Scan(f); err != nil {
			t.Fatal(err)
		}
		if err := c.Step(1.0); err != nil {
			t.Fatal(err)
		}
	}

	stats := h.Stats("shaft_speed")
	if stats.Count != 5 {
		t.Fatalf("expected 5 samples, got %d", stats.Count)
	}
	if stats.Mean != 30 {
		t.Fatalf("expected mean 30, got %v", stats.Mean)
	}
	if stats.P50 != 30 {
		t.Fatalf("expected p50 30, got %v", stats.P50)
	}

	if got := h.Stats("unknown_tag"); got.Count != 0 {
		t.Fatalf("expected zero value for unknown tag, got %+v", got)
	}
}
