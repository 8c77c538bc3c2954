package events

import (
	"container/heap"

	"github.com/icsim/simcore/internal/fabric"
	"github.com/icsim/simcore/pkg/model"
)

// Scannable is the minimal surface a scan machine must expose to be
// driven by ScanScheduler; internal/device.ScanMachine satisfies it.
// Declared locally rather than imported so this package doesn't need to
// depend on internal/device for a two-method shape.
type Scannable interface {
	DeviceName() string
	Scan(f *fabric.Fabric) ([]model.Event, error)
}

type scanItem struct {
	machine   Scannable
	intervalS float64
	nextDueS  float64
}

type scanHeap []*scanItem

func (h scanHeap) Len() int            { return len(h) }
func (h scanHeap) Less(i, j int) bool  { return h[i].nextDueS < h[j].nextDueS }
func (h scanHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *scanHeap) Push(x interface{}) { *h = append(*h, x.(*scanItem)) }
func (h *scanHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// ScanScheduler orders scan machines by next_scan_due (spec §4.4, §5;
// SPEC_FULL §12.4) in a container/heap priority queue, adapted from the
// teacher's EventQueue (internal/engine/event.go), so the orchestrator's
// tick loop only pops scans that are actually due instead of walking
// every device's interval on every tick.
type ScanScheduler struct {
	h scanHeap
}

// NewScanScheduler creates an empty scheduler.
func NewScanScheduler() *ScanScheduler {
	s := &ScanScheduler{}
	heap.Init(&s.h)
	return s
}

// Add registers a scan machine with the given interval, first due at
// startAtS.
func (s *ScanScheduler) Add(m Scannable, intervalS, startAtS float64) {
	heap.Push(&s.h, &scanItem{machine: m, intervalS: intervalS, nextDueS: startAtS})
}

// DueBefore pops and returns every scan machine whose next_scan_due is
// at or before now, rescheduling each for nextDue+interval. If the
// simulation has jumped far past a device's due time (a long pause), the
// next due time is pinned to now+interval rather than chaining an
// immediate catch-up burst.
func (s *ScanScheduler) DueBefore(now float64) []Scannable {
	var due []Scannable
	for s.h.Len() > 0 && s.h[0].nextDueS <= now {
		item := heap.Pop(&s.h).(*scanItem)
		due = append(due, item.machine)

		next := item.nextDueS + item.intervalS
		if next < now {
			next = now + item.intervalS
		}
		item.nextDueS = next
		heap.Push(&s.h, item)
	}
	return due
}

// Len returns the number of scheduled scan machines.
func (s *ScanScheduler) Len() int { return s.h.Len() }
