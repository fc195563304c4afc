// async/waker.go
package async

import "sync"

// Waker is an edge-triggered single-slot notification: Wake marks the waker
// pending and unblocks the (single) consumer waiting on C. Multiple Wakes
// before the consumer runs coalesce into one delivery.
type Waker struct {
	ch chan struct{}
}

func NewWaker() *Waker {
	return &Waker{ch: make(chan struct{}, 1)}
}

// Wake marks the waker pending. Never blocks.
func (w *Waker) Wake() {
	select {
	case w.ch <- struct{}{}:
	default:
	}
}

// C is the consumer side. Receiving re-arms the waker.
func (w *Waker) C() <-chan struct{} { return w.ch }

// TakePending consumes a pending wake without blocking, reporting whether one
// was present.
func (w *Waker) TakePending() bool {
	select {
	case <-w.ch:
		return true
	default:
		return false
	}
}

// Broadcast is the multi-consumer flavour: every subscriber holds its own
// edge-triggered slot and Wake marks them all. Used for status summary
// fan-out where any number of observers may be attached.
type Broadcast struct {
	mu   sync.Mutex
	subs map[*Waker]struct{}
}

func NewBroadcast() *Broadcast {
	return &Broadcast{subs: map[*Waker]struct{}{}}
}

// Subscribe registers a new consumer slot. Call the returned cancel when the
// consumer goes away.
func (b *Broadcast) Subscribe() (*Waker, func()) {
	w := NewWaker()
	b.mu.Lock()
	b.subs[w] = struct{}{}
	b.mu.Unlock()
	return w, func() {
		b.mu.Lock()
		delete(b.subs, w)
		b.mu.Unlock()
	}
}

// Wake marks every subscriber pending.
func (b *Broadcast) Wake() {
	b.mu.Lock()
	for w := range b.subs {
		w.Wake()
	}
	b.mu.Unlock()
}
