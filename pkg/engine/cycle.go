package engine

import (
	"math"
	"time"
)

// CycleScope brackets the processing of one audio buffer. BeginCycle
// advances the transport clock; End applies any pending deferred action
// and folds the cycle's wall time into the DSP load estimate. End must run
// on every exit path:
//
//	cycle := e.BeginCycle(frames, true)
//	defer cycle.End()
type CycleScope struct {
	e     *Engine
	start time.Time
	load  bool
}

// BeginCycle opens the scope for a buffer of frames frames. measureLoad
// enables CPU-load accounting for this cycle.
func (e *Engine) BeginCycle(frames uint32, measureLoad bool) CycleScope {
	cs := CycleScope{e: e, load: measureLoad}
	if measureLoad {
		cs.start = time.Now()
	}
	e.clock.PreProcess(frames)
	return cs
}

// End closes the scope.
func (cs CycleScope) End() {
	e := cs.e

	e.applyPendingAction()

	if !cs.load || cs.start.IsZero() {
		return
	}

	elapsed := time.Since(cs.start).Seconds()
	if elapsed < 0 {
		return
	}
	e.foldDSPLoad(elapsed, float64(e.bufferSize)/e.sampleRate)
}

// foldDSPLoad updates the load estimate from one cycle that took elapsed
// seconds out of a budget of maxTime seconds. Load rises instantly
// (clamped at 100) but decays by (1-maxTime) per quiet cycle, with a tiny
// bias that keeps the stored value out of denormal range.
func (e *Engine) foldDSPLoad(elapsed, maxTime float64) {
	if maxTime <= 0 {
		return
	}

	load := float32(elapsed / maxTime * 100.0)
	cur := e.CPULoad()

	if load > cur {
		e.storeDSPLoad(float32(math.Min(100.0, float64(load))))
	} else {
		e.storeDSPLoad(cur * (float32(1.0-maxTime) + 1e-12))
	}
}

// CPULoad returns the running DSP load estimate in [0, 100].
func (e *Engine) CPULoad() float32 {
	return math.Float32frombits(e.dspLoadBits.Load())
}

func (e *Engine) storeDSPLoad(v float32) {
	e.dspLoadBits.Store(math.Float32bits(v))
}
