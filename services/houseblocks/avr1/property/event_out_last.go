// services/houseblocks/avr1/property/event_out_last.go
package property

import "sync"

// EventOutLast coalesces user pushes: the device consumes only the most
// recent value. Pending iff userVersion > deviceVersion.
type EventOutLast[V any] struct {
	mu            sync.Mutex
	last          *V
	userVersion   uint64
	deviceVersion uint64
}

func NewEventOutLast[V any]() *EventOutLast[V] {
	return &EventOutLast[V]{}
}

// Sink returns the user-side handle.
func (p *EventOutLast[V]) Sink() *EventOutLastSink[V] {
	return &EventOutLastSink[V]{cell: p}
}

// DevicePending yields the newest value when one is outstanding. Committing
// acknowledges the version the view was created at: a newer push meanwhile
// keeps the cell pending.
func (p *EventOutLast[V]) DevicePending() (*EventPending[V], bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.deviceVersion >= p.userVersion || p.last == nil {
		return nil, false
	}
	return &EventPending[V]{cell: p, value: *p.last, version: p.userVersion}, true
}

// DeviceReset drops any unconsumed value.
func (p *EventOutLast[V]) DeviceReset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deviceVersion = p.userVersion
	p.last = nil
}

// EventOutLastSink is the user-side handle of an EventOutLast cell.
type EventOutLastSink[V any] struct {
	cell *EventOutLast[V]
}

// Push enqueues a value, replacing any unconsumed one. Always reports a
// change; the caller wakes the poll waker.
func (s *EventOutLastSink[V]) Push(value V) bool {
	s.cell.mu.Lock()
	defer s.cell.mu.Unlock()
	s.cell.last = &value
	s.cell.userVersion++
	return true
}

// EventPending is a device-side view of the newest queued value.
type EventPending[V any] struct {
	cell    *EventOutLast[V]
	value   V
	version uint64
}

func (p *EventPending[V]) Value() V { return p.value }

// Commit acknowledges the version observed at creation of this view.
func (p *EventPending[V]) Commit() {
	p.cell.mu.Lock()
	defer p.cell.mu.Unlock()
	p.cell.deviceVersion = p.version
}
