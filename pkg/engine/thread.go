package engine

import (
	"sync"
	"sync/atomic"
	"time"
)

// helperThreadPeriod is the housekeeping interval.
const helperThreadPeriod = 50 * time.Millisecond

// helperThread performs non-realtime housekeeping in the background: it
// watches the DSP load for sustained overload and surfaces dropped control
// events. It is paused and resumed around risky reconfiguration via
// Engine.StopHelperScoped.
type helperThread struct {
	e *Engine

	mu      sync.Mutex
	running atomic.Bool
	stop    atomic.Bool
	done    chan struct{}

	overloaded  bool
	lastDropped uint32
	lastXruns   uint32
}

// Start launches the helper goroutine. Starting a running thread is a
// no-op.
func (t *helperThread) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running.Load() {
		return
	}

	t.stop.Store(false)
	t.done = make(chan struct{})
	t.running.Store(true)

	go t.run(t.done)
}

// Stop asks the helper to exit and waits up to timeout. Returns whether
// the thread was seen stopping in time; a late thread still terminates on
// its own.
func (t *helperThread) Stop(timeout time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.running.Load() {
		return true
	}

	t.stop.Store(true)

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-t.done:
		return true
	case <-timer.C:
		t.e.log.Warn("helper thread did not stop within %v", timeout)
		return false
	}
}

// IsRunning reports whether the helper goroutine is alive.
func (t *helperThread) IsRunning() bool {
	return t.running.Load()
}

func (t *helperThread) run(done chan struct{}) {
	defer func() {
		t.running.Store(false)
		close(done)
	}()

	ticker := time.NewTicker(helperThreadPeriod)
	defer ticker.Stop()

	for !t.stop.Load() {
		<-ticker.C
		t.idle()
	}
}

// idle runs one housekeeping pass.
func (t *helperThread) idle() {
	e := t.e

	if !e.IsRunning() {
		return
	}

	// Overload edge detection; log once per episode.
	load := e.CPULoad()
	if load > 97 && !t.overloaded {
		t.overloaded = true
		e.log.Warn("DSP overload: load at %.1f%%", load)
	} else if load < 80 && t.overloaded {
		t.overloaded = false
	}

	if dropped := e.pending.dropped.Load(); dropped != t.lastDropped {
		e.log.Warn("dropped %d control event(s), ring full", dropped-t.lastDropped)
		t.lastDropped = dropped
	}

	if xruns := e.Xruns(); xruns != t.lastXruns {
		e.log.Warn("%d xrun(s) reported by the audio backend", xruns-t.lastXruns)
		t.lastXruns = xruns
	}
}
