// Package transport maintains the musical transport position of the engine:
// bar/beat/tick plus tempo, derived either from elapsed frames or from an
// external sync peer such as an Ableton Link session.
package transport

// TicksPerBeat is the fixed clock resolution. It mirrors the MIDI-file
// convention of 1920 PPQN and is not configurable.
const TicksPerBeat = 1920.0

// Mode governs where the transport frame position comes from.
type Mode int

const (
	// ModeInternal advances the frame counter from processed buffers.
	ModeInternal Mode = iota
	// ModeExternalTransport follows a transport owned by the audio backend
	// (a JACK-style timebase master).
	ModeExternalTransport
	// ModeExternalSync derives tempo and beat from a network sync session.
	ModeExternalSync
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeInternal:
		return "internal"
	case ModeExternalTransport:
		return "external-transport"
	case ModeExternalSync:
		return "external-sync"
	default:
		return "unknown"
	}
}

// BBTInfo is a musical bar/beat/tick position.
//
// Bar and Beat are 1-based. Tick is a continuous value in [0, TicksPerBeat).
// When Valid is true, Tick and BarStartTick are consistent with Bar/Beat
// under the current BeatsPerBar.
type BBTInfo struct {
	Valid          bool
	Bar            int32
	Beat           int32
	Tick           float64
	BarStartTick   float64
	BeatsPerBar    float32
	BeatType       float32
	TicksPerBeat   float64
	BeatsPerMinute float64
}

// TimeInfo is the transport position handed to plugins each buffer cycle.
type TimeInfo struct {
	Playing bool
	Frame   uint64
	Usecs   uint64
	BBT     BBTInfo
}

// Clear resets the time info to a stopped transport at frame zero.
func (t *TimeInfo) Clear() {
	t.Playing = false
	t.Frame = 0
	t.Usecs = 0
	t.BBT = BBTInfo{}
}
