// Package output implements the bounded, drop-on-full channel that carries
// Handshake events from the packet path to their consumers.
package output

import (
	"context"
	"sync/atomic"
	"time"

	"synwatch/event"
)

// MaxCapacity bounds the ring; larger requests are clamped.
const MaxCapacity = 1 << 22

const (
	minCapacity = 2
	minBackoff  = 50 * time.Microsecond
	maxBackoff  = 5 * time.Millisecond
)

type slot struct {
	seq atomic.Uint64
	ev  event.Handshake
}

// Ring is a lock-free multi-producer, multi-consumer queue of fixed
// capacity. Submit never blocks: when the ring is full or closed the event
// is dropped and counted.
type Ring struct {
	mask  uint64
	slots []slot

	_    [56]byte
	head atomic.Uint64 // next enqueue position
	_    [56]byte
	tail atomic.Uint64 // next dequeue position
	_    [56]byte

	closed    atomic.Bool
	submitted atomic.Uint64
	dropped   atomic.Uint64
}

// Stats is a point-in-time snapshot of ring counters.
type Stats struct {
	Submitted uint64
	Dropped   uint64
	Pending   int
	Capacity  int
}

// NewRing returns a ring holding at least capacity events.
// Capacity is rounded up to a power of two and clamped to MaxCapacity.
func NewRing(capacity int) *Ring {
	n := ringSize(capacity)
	r := &Ring{
		mask:  n - 1,
		slots: make([]slot, n),
	}
	for i := range r.slots {
		r.slots[i].seq.Store(uint64(i))
	}
	return r
}

func ringSize(capacity int) uint64 {
	capacity = max(min(capacity, MaxCapacity), minCapacity)
	n := uint64(minCapacity)
	for n < uint64(capacity) {
		n <<= 1
	}
	return n
}

// Submit enqueues ev. It reports false when the event was dropped.
func (r *Ring) Submit(ev event.Handshake) bool {
	if r.closed.Load() {
		r.dropped.Add(1)
		return false
	}

	pos := r.head.Load()
	for {
		s := &r.slots[pos&r.mask]
		seq := s.seq.Load()
		switch diff := int64(seq - pos); {
		case diff == 0:
			if r.head.CompareAndSwap(pos, pos+1) {
				s.ev = ev
				s.seq.Store(pos + 1)
				r.submitted.Add(1)
				return true
			}
			pos = r.head.Load()
		case diff < 0:
			// slot still holds an unconsumed event from the previous lap
			r.dropped.Add(1)
			return false
		default:
			pos = r.head.Load()
		}
	}
}

// Poll dequeues one event without blocking.
func (r *Ring) Poll() (event.Handshake, bool) {
	pos := r.tail.Load()
	for {
		s := &r.slots[pos&r.mask]
		seq := s.seq.Load()
		switch diff := int64(seq - (pos + 1)); {
		case diff == 0:
			if r.tail.CompareAndSwap(pos, pos+1) {
				ev := s.ev
				s.seq.Store(pos + r.mask + 1)
				return ev, true
			}
			pos = r.tail.Load()
		case diff < 0:
			return event.Handshake{}, false
		default:
			pos = r.tail.Load()
		}
	}
}

// Drain hands every event to fn until ctx is done, backing off while the
// ring is empty. Events still queued at cancellation are flushed first.
func (r *Ring) Drain(ctx context.Context, fn func(event.Handshake)) error {
	backoff := minBackoff
	timer := time.NewTimer(backoff)
	defer timer.Stop()

	for {
		if ev, ok := r.Poll(); ok {
			fn(ev)
			backoff = minBackoff
			continue
		}

		timer.Reset(backoff)
		select {
		case <-ctx.Done():
			r.flush(fn)
			return nil
		case <-timer.C:
		}
		if backoff < maxBackoff {
			backoff *= 2
		}
	}
}

func (r *Ring) flush(fn func(event.Handshake)) {
	for {
		ev, ok := r.Poll()
		if !ok {
			return
		}
		fn(ev)
	}
}

// Close makes every further Submit drop. Queued events remain pollable.
func (r *Ring) Close() {
	r.closed.Store(true)
}

// Len returns the approximate number of queued events.
func (r *Ring) Len() int {
	n := int64(r.head.Load() - r.tail.Load())
	if n < 0 {
		return 0
	}
	return int(n)
}

// Cap returns the ring capacity.
func (r *Ring) Cap() int {
	return len(r.slots)
}

// Stats returns a snapshot of the ring counters.
func (r *Ring) Stats() Stats {
	return Stats{
		Submitted: r.submitted.Load(),
		Dropped:   r.dropped.Load(),
		Pending:   r.Len(),
		Capacity:  r.Cap(),
	}
}
