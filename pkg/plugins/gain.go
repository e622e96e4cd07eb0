// Package plugins ships a few built-in plugins that run inside the rack
// without any external plugin format.
package plugins

import (
	"math"
	"sync/atomic"

	"github.com/justyntemme/gorack/pkg/engine"
	"github.com/justyntemme/gorack/pkg/engine/transport"
)

// Gain parameter indices.
const (
	GainParamDB = iota
)

const (
	minGainDB = -60.0
	maxGainDB = 24.0
)

// Gain scales its input by a decibel amount settable over control events.
// Parameter values arrive normalized in [0, 1] and map linearly onto the
// decibel range.
type Gain struct {
	id     uint32
	gainDB atomic.Uint32 // float32 bits
}

// NewGain creates a unity-gain instance.
func NewGain() *Gain {
	g := &Gain{}
	g.setGainDB(0)
	return g
}

func (g *Gain) Name() string { return "Gain" }
func (g *Gain) ID() uint32 { return g.id }
func (g *Gain) SetID(id uint32) { g.id = id }

func (g *Gain) Activate(float64, uint32) {}
func (g *Gain) Deactivate() {}

// GainDB returns the current gain in decibels.
func (g *Gain) GainDB() float64 {
	return float64(math.Float32frombits(g.gainDB.Load()))
}

func (g *Gain) setGainDB(db float64) {
	db = math.Min(maxGainDB, math.Max(minGainDB, db))
	g.gainDB.Store(math.Float32bits(float32(db)))
}

// SetGainDB sets the gain in decibels, clamped to [-60, +24].
func (g *Gain) SetGainDB(db float64) { g.setGainDB(db) }

func (g *Gain) applyEvents(events []engine.Event) {
	for _, ev := range events {
		if ev.Kind != engine.EventControl {
			continue
		}
		switch ev.Param {
		case GainParamDB:
			norm := math.Min(1, math.Max(0, float64(ev.Value)))
			g.setGainDB(minGainDB + norm*(maxGainDB-minGainDB))
		}
	}
}

func (g *Gain) Process(in, out [][]float32, frames uint32, _ *transport.TimeInfo, events []engine.Event) {
	g.applyEvents(events)

	amp := float32(math.Pow(10, g.GainDB()/20))
	for ch := range out {
		src := out[ch]
		if ch < len(in) {
			src = in[ch]
		}
		for i := uint32(0); i < frames; i++ {
			out[ch][i] = src[i] * amp
		}
	}
}
