package model

import "github.com/google/uuid"

// EventType enumerates the kernel events observable by tests and
// telemetry collaborators (spec §6 "Kernel events").
type EventType string

const (
	EventDeviceRegistered  EventType = "DeviceRegistered"
	EventDeviceFaulted     EventType = "DeviceFaulted"
	EventConnectionAllowed EventType = "ConnectionAllowed"
	EventConnectionDenied  EventType = "ConnectionDenied"
	EventGridTrip          EventType = "GridTrip"
	EventOverspeedTrip     EventType = "OverspeedTrip"
	EventReactorScram      EventType = "ReactorScram"
	EventContainmentBreach EventType = "ContainmentBreach"
)

// Event is one observable kernel occurrence. ID is a real UUID because
// events may be forwarded to external telemetry tooling, unlike the
// process-local sequence keys used for internal bookkeeping.
type Event struct {
	ID      string
	Type    EventType
	SimTime float64
	Device  string
	Detail  map[string]any
}

// NewEvent stamps a new kernel event with a fresh UUID.
func NewEvent(t EventType, simTime float64, device string, detail map[string]any) Event {
	if detail == nil {
		detail = make(map[string]any)
	}
	return Event{
		ID:      uuid.NewString(),
		Type:    t,
		SimTime: simTime,
		Device:  device,
		Detail:  detail,
	}
}
