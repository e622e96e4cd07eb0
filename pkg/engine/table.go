package engine

import (
	"math"
	"sync/atomic"

	"github.com/google/uuid"
)

// Plugin table capacity per process mode.
const (
	MaxRackPlugins     = 16
	MaxPatchbayPlugins = 255
	MaxDefaultPlugins  = 99
)

// Peak meter indices within a slot.
const (
	peakInLeft = iota
	peakInRight
	peakOutLeft
	peakOutRight
	numPeaks
)

// pluginSlot is one entry of the fixed-capacity plugin table. Occupied
// slots are contiguous from index 0. Peak meters are stored as float32
// bits so control threads can read them without locks.
type pluginSlot struct {
	plugin   Plugin
	instance uuid.UUID
	peaks    [numPeaks]atomic.Uint32
}

func (s *pluginSlot) clearPeaks() {
	for i := range s.peaks {
		s.peaks[i].Store(0)
	}
}

func (s *pluginSlot) setPeak(i int, v float32) {
	s.peaks[i].Store(math.Float32bits(v))
}

func (s *pluginSlot) peak(i int) float32 {
	return math.Float32frombits(s.peaks[i].Load())
}

// removeAt compacts the table after removing the plugin at id: every later
// slot shifts down one position and its plugin is re-indexed. Runs only on
// the thread applying the deferred action; precondition violations log and
// leave the table untouched.
func (e *Engine) removeAt(id uint32) {
	count := e.curPluginCount.Load()
	if !e.log.Assert(count > 0, "curPluginCount > 0") {
		return
	}
	if !e.log.Assert(id < count, "pluginId < curPluginCount") {
		return
	}

	count--
	e.curPluginCount.Store(count)

	for i := id; i < count; i++ {
		next := e.plugins[i+1].plugin
		if !e.log.Assert(next != nil, "moved plugin != nil") {
			break
		}

		next.SetID(i)
		e.plugins[i].plugin = next
		e.plugins[i].instance = e.plugins[i+1].instance
		e.plugins[i].clearPeaks()
	}

	e.plugins[count].plugin = nil
	e.plugins[count].instance = uuid.Nil
	e.plugins[count].clearPeaks()
}

// swapSlots exchanges two occupied slots and re-indexes both plugins.
func (e *Engine) swapSlots(idA, idB uint32) {
	count := e.curPluginCount.Load()
	if !e.log.Assert(count >= 2, "curPluginCount >= 2") {
		return
	}
	if !e.log.Assert(idA < count, "idA < curPluginCount") {
		return
	}
	if !e.log.Assert(idB < count, "idB < curPluginCount") {
		return
	}
	if !e.log.Assert(idA != idB, "idA != idB") {
		return
	}

	pluginA := e.plugins[idA].plugin
	if !e.log.Assert(pluginA != nil, "pluginA != nil") {
		return
	}
	pluginB := e.plugins[idB].plugin
	if !e.log.Assert(pluginB != nil, "pluginB != nil") {
		return
	}

	pluginA.SetID(idB)
	pluginB.SetID(idA)

	e.plugins[idA].plugin = pluginB
	e.plugins[idB].plugin = pluginA
	e.plugins[idA].instance, e.plugins[idB].instance =
		e.plugins[idB].instance, e.plugins[idA].instance
}

// zeroCount drops the occupied count to zero. Per-slot teardown is the
// caller's responsibility; this only makes the table empty for processing.
func (e *Engine) zeroCount() {
	e.curPluginCount.Store(0)
}
