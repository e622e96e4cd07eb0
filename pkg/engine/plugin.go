package engine

import (
	"github.com/justyntemme/gorack/pkg/engine/transport"
)

// Plugin is a processing unit hosted in the engine's rack.
//
// The engine owns the plugin exclusively once added. ID returns the
// plugin's slot index; the engine keeps it in sync on every table move via
// SetID, so a plugin's stored id always equals its position.
type Plugin interface {
	Name() string

	ID() uint32
	SetID(id uint32)

	// Activate prepares the plugin for processing at the given audio
	// parameters. Deactivate releases processing state. Both run on a
	// control thread, never inside a buffer cycle.
	Activate(sampleRate float64, bufferSize uint32)
	Deactivate()

	// Process renders one buffer. It runs on the audio thread: no
	// allocations, no blocking. events holds the engine input events for
	// this cycle, sorted by frame offset.
	Process(in, out [][]float32, frames uint32, ti *transport.TimeInfo, events []Event)
}

// EventEmitter is implemented by plugins that produce engine events. The
// engine pulls after each Process call and forwards into the cycle's
// output event buffer.
type EventEmitter interface {
	PullEvents(dst []Event) int
}
