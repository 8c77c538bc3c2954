// Package events implements kernel event dispatch and the scan
// scheduler that drives device scan machines on their configured
// intervals.
package events

import (
	"log/slog"
	"sync"

	"github.com/icsim/simcore/pkg/model"
)

// Handler receives one published kernel event.
type Handler func(model.Event)

// Bus dispatches kernel events (spec §6) to registered handlers. It
// generalizes the teacher's single EventType -> EventHandler map
// (internal/engine/engine.go) to support multiple subscribers per
// event type, since both the Historian and telemetry tooling want to
// observe the same events independently.
type Bus struct {
	mu       sync.RWMutex
	handlers map[model.EventType][]Handler
	log      *slog.Logger
}

// NewBus creates an empty event bus. log defaults to slog.Default if nil.
func NewBus(log *slog.Logger) *Bus {
	if log == nil {
		log = slog.Default()
	}
	return &Bus{handlers: make(map[model.EventType][]Handler), log: log}
}

// Subscribe registers h to be called on every future Publish of type t.
func (b *Bus) Subscribe(t model.EventType, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[t] = append(b.handlers[t], h)
}

// Publish invokes every handler subscribed to e.Type, in subscription
// order, on the calling goroutine. The orchestrator's tick loop is the
// only publisher, so there is no concurrent-dispatch case to guard.
func (b *Bus) Publish(e model.Event) {
	b.mu.RLock()
	hs := append([]Handler(nil), b.handlers[e.Type]...)
	b.mu.RUnlock()

	b.log.Debug("kernel event", "type", e.Type, "device", e.Device, "sim_time", e.SimTime)
	for _, h := range hs {
		h(e)
	}
}

// PublishAll publishes a batch of events in order, the shape most scan
// machines and physics integrators return.
func (b *Bus) PublishAll(es []model.Event) {
	for _, e := range es {
		b.Publish(e)
	}
}
