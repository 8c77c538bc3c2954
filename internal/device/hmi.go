package device

import (
	"github.com/icsim/simcore/internal/fabric"
	"github.com/icsim/simcore/pkg/model"
)

// HMIDevice polls a SCADA device's tag database at its own (typically
// faster) scan cadence and holds the last-seen snapshot for whatever
// drives the operator screens (spec §4.4: "drives a set of screens
// (logical, not rendered here)").
type HMIDevice struct {
	name  string
	scada *SCADADevice
	view  map[string]TagValue
}

// NewHMIDevice creates an HMI bound to the SCADA device it supervises.
func NewHMIDevice(name string, scada *SCADADevice) *HMIDevice {
	return &HMIDevice{name: name, scada: scada, view: make(map[string]TagValue)}
}

func (h *HMIDevice) DeviceName() string { return h.name }

// Scan refreshes the HMI's local view of every tag in the bound SCADA
// device's tag database. This is a purely in-process read — the tag
// database is not published through the State Fabric.
func (h *HMIDevice) Scan(f *fabric.Fabric) ([]model.Event, error) {
	for _, name := range h.scada.TagNames() {
		if v, ok := h.scada.Tag(name); ok {
			h.view[name] = v
		}
	}
	return nil, nil
}

// View returns the HMI's last-polled value for a tag.
func (h *HMIDevice) View(tag string) (TagValue, bool) {
	v, ok := h.view[tag]
	return v, ok
}
