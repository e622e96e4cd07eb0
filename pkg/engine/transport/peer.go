package transport

// PeerTime is the session time captured from a sync peer for one buffer
// cycle. Beat is the absolute session beat; a negative beat means the peer
// has no usable position yet.
type PeerTime struct {
	Beat           float64
	BeatsPerBar    float64
	BeatsPerMinute float64
}

// SyncPeer is an external tempo/transport source the clock can follow.
//
// Implementations must keep Process cheap: it is called once per buffer
// from the audio thread and may not block.
type SyncPeer interface {
	// Active reports whether a real peer session is present. The clock
	// treats an inactive peer as the absence of the capability.
	Active() bool

	// Process captures the session time for a cycle of numFrames frames.
	Process(numFrames uint32) PeerTime

	// Enable toggles participation in the sync session.
	Enable(enable bool)

	// SetTempo proposes a new session tempo in beats per minute.
	SetTempo(bpm float64)

	// SetBeatsPerBar sets the bar length (quantum) used for phase alignment.
	SetBeatsPerBar(beats float64)

	// SetOutputLatency tells the peer how far ahead of the speakers the
	// audio thread runs, in microseconds.
	SetOutputLatency(micros uint32)

	// Close tears the peer session down.
	Close() error
}

type noPeer struct{}

// NoPeer returns the inactive sync peer variant. All operations are no-ops
// and Process reports an unknown position.
func NoPeer() SyncPeer { return noPeer{} }

func (noPeer) Active() bool { return false }
func (noPeer) Process(uint32) PeerTime { return PeerTime{Beat: -1} }
func (noPeer) Enable(bool) {}
func (noPeer) SetTempo(float64) {}
func (noPeer) SetBeatsPerBar(float64) {}
func (noPeer) SetOutputLatency(uint32) {}
func (noPeer) Close() error { return nil }
