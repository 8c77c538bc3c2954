package events

import (
	"testing"

	"github.com/icsim/simcore/pkg/model"
)

func TestBusDispatchesToAllSubscribers(t *testing.T) {
	b := NewBus(nil)
	var calls []string

	b.Subscribe(model.EventGridTrip, func(e model.Event) { calls = append(calls, "first:"+e.Device) })
	b.Subscribe(model.EventGridTrip, func(e model.Event) { calls = append(calls, "second:"+e.Device) })
	b.Subscribe(model.EventReactorScram, func(e model.Event) { calls = append(calls, "scram") })

	b.Publish(model.NewEvent(model.EventGridTrip, 1.0, "grid", nil))

	if len(calls) != 2 {
		t.Fatalf("expected 2 handler calls, got %v", calls)
	}
	if calls[0] != "first:grid" || calls[1] != "second:grid" {
		t.Fatalf("unexpected dispatch order: %v", calls)
	}
}

func TestBusPublishAllPreservesOrder(t *testing.T) {
	b := NewBus(nil)
	var seen []model.EventType
	b.Subscribe(model.EventGridTrip, func(e model.Event) { seen = append(seen, e.Type) })
	b.Subscribe(model.EventOverspeedTrip, func(e model.Event) { seen = append(seen, e.Type) })

	b.PublishAll([]model.Event{
		model.NewEvent(model.EventGridTrip, 0, "grid", nil),
		model.NewEvent(model.EventOverspeedTrip, 0, "turbine_plc_1", nil),
	})

	if len(seen) != 2 || seen[0] != model.EventGridTrip || seen[1] != model.EventOverspeedTrip {
		t.Fatalf("unexpected sequence: %v", seen)
	}
}

func TestBusPublishWithNoSubscribersDoesNotPanic(t *testing.T) {
	b := NewBus(nil)
	b.Publish(model.NewEvent(model.EventDeviceFaulted, 0, "x", nil))
}
