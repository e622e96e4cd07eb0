package engine

import (
	"sync"
	"sync/atomic"
)

// maxEngineEvents sizes the per-cycle event buffers. They are allocated at
// engine start and never resized.
const maxEngineEvents = 512

// pendingEventCap sizes the control-to-audio event ring.
const pendingEventCap = 64

// EventKind discriminates engine-internal events.
type EventKind uint8

const (
	// EventNull marks an empty slot.
	EventNull EventKind = iota
	// EventControl is a parameter or transport control change.
	EventControl
	// EventMIDI is a raw short MIDI message.
	EventMIDI
)

// Event is one engine-internal event. Control and MIDI payloads share the
// struct, selected by Kind.
type Event struct {
	Kind    EventKind
	Frame   uint32 // offset within the current buffer
	Channel uint8

	// control payload
	Param uint16
	Value float32

	// midi payload
	Size uint8
	Data [4]byte
}

// eventBuffers holds the fixed in/out event arrays for one engine.
// Contents are touched only from the audio thread during a buffer cycle.
type eventBuffers struct {
	in  []Event
	out []Event

	inCount  uint32
	outCount uint32
}

func (b *eventBuffers) alloc() {
	b.in = make([]Event, maxEngineEvents)
	b.out = make([]Event, maxEngineEvents)
	b.inCount = 0
	b.outCount = 0
}

func (b *eventBuffers) clear() {
	b.in = nil
	b.out = nil
	b.inCount = 0
	b.outCount = 0
}

// pushOut appends to the output buffer, dropping when full.
func (b *eventBuffers) pushOut(ev Event) bool {
	if b.out == nil || b.outCount >= maxEngineEvents {
		return false
	}
	b.out[b.outCount] = ev
	b.outCount++
	return true
}

// eventRing hands control-thread events to the audio thread. The producer
// locks; the consumer only try-locks, so a slow producer can never stall a
// buffer cycle - at worst the events arrive one cycle later.
type eventRing struct {
	mu      sync.Mutex
	buf     [pendingEventCap]Event
	count   int
	dropped atomic.Uint32
}

func (r *eventRing) push(ev Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count == len(r.buf) {
		r.dropped.Add(1)
		return false
	}
	r.buf[r.count] = ev
	r.count++
	return true
}

// drainInto moves all pending events into dst, returning how many. Skips
// the cycle entirely when the producer holds the lock.
func (r *eventRing) drainInto(dst []Event) int {
	if !r.mu.TryLock() {
		return 0
	}
	n := r.count
	if n > len(dst) {
		n = len(dst)
	}
	copy(dst, r.buf[:n])
	r.count = 0
	r.mu.Unlock()
	return n
}

func (r *eventRing) reset() {
	r.mu.Lock()
	r.count = 0
	r.mu.Unlock()
}
