// Package linkpeer drives the transport clock from an Ableton Link
// session, so the host follows the tempo and beat grid shared with other
// Link-enabled applications on the network.
package linkpeer

import (
	"math"
	"sync/atomic"

	abletonlink "github.com/DatanoiseTV/abletonlink-go"

	"github.com/justyntemme/gorack/pkg/debug"
	"github.com/justyntemme/gorack/pkg/engine/transport"
)

// Peer adapts a Link instance to transport.SyncPeer. Process runs on the
// audio thread and only touches the audio-safe session state; tempo and
// quantum changes from control threads go through the app session state.
type Peer struct {
	link  *abletonlink.Link
	state *abletonlink.SessionState

	quantumBits atomic.Uint64 // float64 bits, beats per bar
	latency     atomic.Uint32 // microseconds
	enabled     atomic.Bool   // joined the session; gates Process only
	closed      atomic.Bool

	log *debug.Logger
}

var _ transport.SyncPeer = (*Peer)(nil)

// New creates a Link peer announcing bpm as the initial session tempo.
// The peer starts outside the session; call Enable to join it.
func New(bpm, beatsPerBar float64, log *debug.Logger) *Peer {
	p := &Peer{
		link:  abletonlink.NewLink(bpm),
		state: abletonlink.NewSessionState(),
		log:   log,
	}
	p.setQuantum(beatsPerBar)

	p.link.SetNumPeersCallback(func(n uint64) {
		log.Info("link peers: %d", n)
	})

	return p
}

func (p *Peer) setQuantum(beatsPerBar float64) {
	if beatsPerBar < 1 {
		beatsPerBar = 1
	}
	p.quantumBits.Store(math.Float64bits(beatsPerBar))
}

func (p *Peer) quantum() float64 { return math.Float64frombits(p.quantumBits.Load()) }

// Active reports whether the Link capability is available. A constructed
// peer is active until Close; joining the session is Enable's job.
func (p *Peer) Active() bool { return p.link != nil && !p.closed.Load() }

// Enable joins or leaves the Link session.
func (p *Peer) Enable(enable bool) {
	p.link.Enable(enable)
	p.link.EnableStartStopSync(enable)
	p.enabled.Store(enable)
	if enable {
		p.log.Info("joined link session")
	} else {
		p.log.Info("left link session")
	}
}

// Process captures the session state once per buffer and reports where the
// session grid sits at the moment this buffer reaches the speakers.
func (p *Peer) Process(numFrames uint32) transport.PeerTime {
	if !p.enabled.Load() {
		return transport.PeerTime{Beat: -1}
	}

	p.link.CaptureAudioSessionState(p.state)

	quantum := p.quantum()
	at := p.link.ClockMicros() + int64(p.latency.Load())

	return transport.PeerTime{
		Beat:           p.state.BeatAtTime(at, quantum),
		BeatsPerBar:    quantum,
		BeatsPerMinute: p.state.Tempo(),
	}
}

// SetTempo proposes a new session tempo to all peers.
func (p *Peer) SetTempo(bpm float64) {
	if bpm <= 0 {
		return
	}
	state := abletonlink.NewSessionState()
	defer state.Destroy()

	p.link.CaptureAppSessionState(state)
	state.SetTempo(bpm, p.link.ClockMicros())
	p.link.CommitAppSessionState(state)
}

// SetBeatsPerBar changes the quantum used to phase-align with the session.
func (p *Peer) SetBeatsPerBar(beats float64) { p.setQuantum(beats) }

// SetOutputLatency records the audio output latency in microseconds, added
// to the Link clock when sampling the beat grid.
func (p *Peer) SetOutputLatency(micros uint32) { p.latency.Store(micros) }

// Close leaves the session and releases the Link instance. The peer must
// not be used afterwards.
func (p *Peer) Close() error {
	p.Enable(false)
	p.closed.Store(true)
	p.state.Destroy()
	p.link.Destroy()
	return nil
}
