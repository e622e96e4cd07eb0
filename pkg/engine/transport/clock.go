package transport

import (
	"math"
	"sync"

	"github.com/justyntemme/gorack/pkg/debug"
)

// Clock maintains the engine's musical position and tempo.
//
// The audio thread drives it through PreProcess once per buffer; control
// threads mutate tempo, play state and position through the remaining
// methods. A single mutex serializes both sides. Every critical section is
// O(1), so the audio thread never waits on a control thread for longer
// than a metadata update.
type Clock struct {
	mu sync.Mutex

	mode Mode
	info *TimeInfo

	beatsPerBar    float64
	beatsPerMinute float64
	bufferSize     float64
	sampleRate     float64

	// tick accumulates fractional position within the current beat.
	tick float64

	// needsReset forces a full bar/beat/tick recomputation from absolute
	// position instead of incremental advancement. It is set on any tempo,
	// signature, buffer-size, sample-rate, play-state or position change.
	needsReset bool

	// nextFrame is the frame the next internal-mode buffer starts at.
	nextFrame uint64

	peer        SyncPeer
	peerTime    PeerTime
	syncEnabled bool

	log *debug.Logger
}

// NewClock creates a clock writing into info. peer may be NoPeer().
func NewClock(info *TimeInfo, mode Mode, peer SyncPeer, log *debug.Logger) *Clock {
	if peer == nil {
		peer = NoPeer()
	}
	if log == nil {
		log = debug.Default()
	}
	return &Clock{
		mode:           mode,
		info:           info,
		beatsPerBar:    4.0,
		beatsPerMinute: 120.0,
		peer:           peer,
		log:            log,
	}
}

// peerLatency converts a buffer period to the peer output latency in
// microseconds. A zero sample rate yields zero rather than an error.
func peerLatency(bufferSize, sampleRate float64) uint32 {
	if sampleRate <= 0 {
		return 0
	}
	latency := math.Round(1.0e6 * bufferSize / sampleRate)
	if latency < 0 || latency >= math.MaxUint32 {
		return 0
	}
	return uint32(latency)
}

// Init stores the audio parameters at engine start and primes the peer.
func (c *Clock) Init(bufferSize uint32, sampleRate float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.bufferSize = float64(bufferSize)
	c.sampleRate = sampleRate

	if c.peer.Active() {
		c.peer.SetBeatsPerBar(c.beatsPerBar)
		c.peer.SetTempo(c.beatsPerMinute)
		c.peer.SetOutputLatency(peerLatency(c.bufferSize, c.sampleRate))

		if c.syncEnabled {
			c.peer.Enable(true)
		}
	}

	c.needsReset = true
}

// UpdateAudioValues follows a live period-size or sample-rate change.
func (c *Clock) UpdateAudioValues(bufferSize uint32, sampleRate float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.bufferSize = float64(bufferSize)
	c.sampleRate = sampleRate

	if c.peer.Active() {
		c.peer.SetOutputLatency(peerLatency(c.bufferSize, c.sampleRate))
	}

	c.needsReset = true
}

// SetMode switches the transport source.
func (c *Clock) SetMode(mode Mode) {
	c.mu.Lock()
	c.mode = mode
	c.needsReset = true
	c.mu.Unlock()
}

// Mode returns the current transport source.
func (c *Clock) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// SetTempo updates the tempo, propagating it to an active peer.
func (c *Clock) SetTempo(bpm float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.beatsPerMinute = bpm

	if c.peer.Active() {
		c.peer.SetTempo(bpm)
	}
}

// SetBeatsPerBar changes the time signature numerator.
func (c *Clock) SetBeatsPerBar(beats float64) {
	if beats < 1 {
		c.log.Assert(false, "beatsPerBar >= 1")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.beatsPerBar = beats

	if c.peer.Active() {
		c.peer.SetBeatsPerBar(beats)
	}

	c.needsReset = true
}

// EnableSync toggles participation in the external sync session. It is a
// no-op when already in the requested state.
func (c *Clock) EnableSync(enable bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.syncEnabled == enable {
		return
	}

	if c.peer.Active() {
		c.syncEnabled = enable
		c.peer.Enable(enable)
	}

	c.needsReset = true
}

// SyncEnabled reports whether the clock follows the sync peer.
func (c *Clock) SyncEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.syncEnabled
}

// SetNeedsReset forces the next fill to recompute from absolute position.
func (c *Clock) SetNeedsReset() {
	c.mu.Lock()
	c.needsReset = true
	c.mu.Unlock()
}

// Play starts the transport rolling.
func (c *Clock) Play() {
	c.mu.Lock()
	c.info.Playing = true
	c.needsReset = true
	c.mu.Unlock()
}

// Pause stops the transport, freezing the frame counter in place.
func (c *Clock) Pause() {
	c.mu.Lock()
	c.info.Playing = false
	c.nextFrame = c.info.Frame
	c.needsReset = true
	c.mu.Unlock()
}

// Relocate moves the transport to an absolute frame.
func (c *Clock) Relocate(frame uint64) {
	c.mu.Lock()
	c.info.Frame = frame
	c.nextFrame = frame
	c.needsReset = true
	c.mu.Unlock()
}

// TimeInfo returns a snapshot of the current transport position.
func (c *Clock) TimeInfo() TimeInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return *c.info
}

// Tempo returns the current beats per minute.
func (c *Clock) Tempo() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.beatsPerMinute
}

// PreProcess runs once per cycle before plugin processing. With sync
// enabled it captures peer time and adopts tempo or signature changes;
// in internal mode it then fills the time info for this buffer.
func (c *Clock) PreProcess(numFrames uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.syncEnabled {
		c.peerTime = c.peer.Process(numFrames)

		if bpb := c.peerTime.BeatsPerBar; bpb >= 1.0 && bpb != c.beatsPerBar {
			c.beatsPerBar = bpb
			c.needsReset = true
		}
		if bpm := c.peerTime.BeatsPerMinute; bpm > 0.0 && bpm != c.beatsPerMinute {
			c.beatsPerMinute = bpm
			c.needsReset = true
		}
	}

	if c.mode == ModeInternal {
		c.fillTimeInfo(numFrames)
	}
}

// FillTimeInfo computes the position for a buffer of newFrames frames.
// External-transport backends call this from their timebase callback;
// internal mode goes through PreProcess instead.
func (c *Clock) FillTimeInfo(newFrames uint32) {
	c.mu.Lock()
	c.fillTimeInfo(newFrames)
	c.mu.Unlock()
}

func (c *Clock) fillTimeInfo(newFrames uint32) {
	if !c.log.Assert(c.sampleRate > 0, "sampleRate > 0") {
		return
	}
	if !c.log.Assert(newFrames > 0, "newFrames > 0") {
		return
	}

	ti := c.info

	if c.mode == ModeInternal {
		ti.Usecs = 0
		ti.Frame = c.nextFrame
	}

	var tick float64

	switch {
	case c.needsReset:
		ti.BBT.Valid = true
		ti.BBT.BeatType = 4.0
		ti.BBT.TicksPerBeat = TicksPerBeat

		var absBeat, absTick float64

		if c.syncEnabled {
			// The peer path stays in reset mode: session position is
			// re-evaluated every cycle.
			if c.peerTime.Beat >= 0.0 {
				absBeat = c.peerTime.Beat
				absTick = absBeat * TicksPerBeat
			} else {
				ti.Playing = false
			}
		} else {
			min := float64(ti.Frame) / (c.sampleRate * 60.0)
			absBeat = min * c.beatsPerMinute
			absTick = absBeat * TicksPerBeat
			c.needsReset = false
		}

		bar := math.Floor(absBeat / c.beatsPerBar)
		beat := math.Floor(math.Mod(absBeat, c.beatsPerBar))

		ti.BBT.Bar = int32(bar) + 1
		ti.BBT.Beat = int32(beat) + 1
		ti.BBT.BarStartTick = (bar*c.beatsPerBar + beat) * TicksPerBeat

		tick = absTick - ti.BBT.BarStartTick

	case ti.Playing:
		tick = c.tick + float64(newFrames)*TicksPerBeat*c.beatsPerMinute/(c.sampleRate*60.0)

		// Carry propagation, not a single modulo: bar and beat must land
		// on exact integer boundaries under floating accumulation.
		for tick >= TicksPerBeat {
			tick -= TicksPerBeat

			ti.BBT.Beat++
			if float64(ti.BBT.Beat) > c.beatsPerBar {
				ti.BBT.Bar++
				ti.BBT.Beat = 1
				ti.BBT.BarStartTick += c.beatsPerBar * TicksPerBeat
			}
		}

	default:
		tick = c.tick
	}

	ti.BBT.BeatsPerBar = float32(c.beatsPerBar)
	ti.BBT.BeatsPerMinute = c.beatsPerMinute
	ti.BBT.Tick = tick
	c.tick = tick

	if c.mode == ModeInternal && ti.Playing {
		c.nextFrame += uint64(newFrames)
	}
}
