// Package engine implements the control and timing core of the gorack
// plugin host: the transport clock, the fixed-capacity plugin table, and
// the deferred-action mechanism that lets control threads mutate the table
// without ever blocking or allocating inside the audio callback.
//
// Two thread roles meet here. Exactly one audio thread calls Process once
// per buffer period; any number of control threads (CLI, OSC handlers)
// request structural changes through the Request-style methods, which
// rendezvous with the audio thread via the single-slot deferred action
// mailbox. A background helper thread performs non-realtime housekeeping.
package engine

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/justyntemme/gorack/pkg/debug"
	"github.com/justyntemme/gorack/pkg/engine/transport"
)

// ProcessMode selects the processing topology, which in turn fixes the
// plugin table capacity at Init time.
type ProcessMode int

const (
	// ProcessModeRack chains plugins in series on a stereo bus.
	ProcessModeRack ProcessMode = iota
	// ProcessModePatchbay allows free-form routing.
	ProcessModePatchbay
	// ProcessModeBridge hosts a single plugin for an external bridge.
	ProcessModeBridge
	// ProcessModeMulti gives every plugin its own backend client.
	ProcessModeMulti
)

// String returns the mode name.
func (m ProcessMode) String() string {
	switch m {
	case ProcessModeRack:
		return "rack"
	case ProcessModePatchbay:
		return "patchbay"
	case ProcessModeBridge:
		return "bridge"
	case ProcessModeMulti:
		return "multi"
	default:
		return "unknown"
	}
}

func (m ProcessMode) maxPlugins() uint32 {
	switch m {
	case ProcessModeRack:
		return MaxRackPlugins
	case ProcessModePatchbay:
		return MaxPatchbayPlugins
	case ProcessModeBridge:
		return 1
	default:
		return MaxDefaultPlugins
	}
}

// hasInternalEvents reports whether the mode routes events through the
// engine-owned buffers.
func (m ProcessMode) hasInternalEvents() bool {
	switch m {
	case ProcessModeRack, ProcessModePatchbay, ProcessModeBridge:
		return true
	default:
		return false
	}
}

const numRackChannels = 2

// Engine owns the shared state of one host instance.
type Engine struct {
	log *debug.Logger

	name        string
	processMode ProcessMode
	maxPlugins  uint32

	bufferSize uint32
	sampleRate float64

	running      atomic.Bool
	aboutToClose atomic.Bool

	plugins        []pluginSlot
	curPluginCount atomic.Uint32

	events  eventBuffers
	pending eventRing

	timeInfo transport.TimeInfo
	clock    *transport.Clock
	peer     transport.SyncPeer

	nextAction nextAction
	thread     helperThread

	// envMu guards non-realtime environment mutation; see
	// LockEnvironmentScoped.
	envMu sync.Mutex

	dspLoadBits atomic.Uint32
	xruns       atomic.Uint32

	// Audio-thread scratch, sized at Activate.
	work         [2][][]float32
	silence      [][]float32
	eventScratch [16]Event
}

// New creates an engine. peer may be nil for no external sync capability;
// log may be nil for the process default.
func New(log *debug.Logger, peer transport.SyncPeer) *Engine {
	if log == nil {
		log = debug.Default()
	}
	if peer == nil {
		peer = transport.NoPeer()
	}

	e := &Engine{log: log, peer: peer}
	e.clock = transport.NewClock(&e.timeInfo, transport.ModeInternal, peer, log)
	e.nextAction.init()
	e.thread.e = e
	return e
}

// Init allocates the plugin table and event buffers for the given process
// mode and starts the helper thread. It fails on re-initialization or an
// empty client name.
func (e *Engine) Init(name string, mode ProcessMode) error {
	if !e.log.Assert(e.name == "" && e.plugins == nil, "engine not yet initialized") {
		return ErrAlreadyInitialized
	}
	if name == "" {
		return ErrInvalidName
	}

	e.aboutToClose.Store(false)
	e.curPluginCount.Store(0)

	e.processMode = mode
	e.maxPlugins = mode.maxPlugins()

	if mode.hasInternalEvents() {
		e.events.alloc()
	}

	e.plugins = make([]pluginSlot, e.maxPlugins)
	e.name = sanitizeName(name)

	e.timeInfo.Clear()
	e.nextAction.clearAndReset(e)
	e.pending.reset()

	e.thread.Start()

	e.log.Info("engine %q initialized, %s mode, %d slots", e.name, mode, e.maxPlugins)
	return nil
}

// Close tears the engine down: helper thread stopped with a bounded wait,
// deferred-action slot cleared, table and event buffers released.
func (e *Engine) Close() error {
	if !e.log.Assert(e.name != "", "engine initialized") {
		return ErrNotInitialized
	}

	e.aboutToClose.Store(true)

	e.thread.Stop(helperStopTimeout)
	e.nextAction.clearAndReset(e)

	e.running.Store(false)
	e.aboutToClose.Store(false)
	e.curPluginCount.Store(0)
	e.maxPlugins = 0
	e.plugins = nil
	e.events.clear()
	e.name = ""

	return nil
}

// Name returns the sanitized client name, empty before Init.
func (e *Engine) Name() string { return e.name }

// Mode returns the process mode selected at Init.
func (e *Engine) Mode() ProcessMode { return e.processMode }

// IsRunning reports whether an audio backend is actively driving buffer
// cycles.
func (e *Engine) IsRunning() bool { return e.running.Load() }

// Activate is called by the audio backend before it starts the stream.
// It records the audio parameters, primes the transport clock and
// activates the hosted plugins.
func (e *Engine) Activate(bufferSize uint32, sampleRate float64) error {
	if e.name == "" {
		return ErrNotInitialized
	}

	unlock := e.LockEnvironmentScoped()
	defer unlock()

	e.bufferSize = bufferSize
	e.sampleRate = sampleRate
	e.allocWorkBuffers()

	e.clock.Init(bufferSize, sampleRate)

	count := e.curPluginCount.Load()
	for i := uint32(0); i < count; i++ {
		e.plugins[i].plugin.Activate(sampleRate, bufferSize)
	}

	e.running.Store(true)
	e.log.Info("audio active: %d frames at %.0f Hz", bufferSize, sampleRate)
	return nil
}

// Deactivate is called by the audio backend after the stream stops.
func (e *Engine) Deactivate() {
	unlock := e.LockEnvironmentScoped()
	defer unlock()

	if !e.running.Swap(false) {
		return
	}

	count := e.curPluginCount.Load()
	for i := uint32(0); i < count; i++ {
		e.plugins[i].plugin.Deactivate()
	}
}

// Reconfigure follows a live period-size or sample-rate change. The
// helper thread is paused around the swap and plugins are reactivated
// with the new values.
func (e *Engine) Reconfigure(bufferSize uint32, sampleRate float64) {
	unlock := e.LockEnvironmentScoped()
	defer unlock()

	restart := e.StopHelperScoped()
	defer restart()

	e.bufferSize = bufferSize
	e.sampleRate = sampleRate
	e.allocWorkBuffers()

	e.clock.UpdateAudioValues(bufferSize, sampleRate)

	count := e.curPluginCount.Load()
	for i := uint32(0); i < count; i++ {
		p := e.plugins[i].plugin
		p.Deactivate()
		p.Activate(sampleRate, bufferSize)
	}
}

func (e *Engine) allocWorkBuffers() {
	for w := range e.work {
		e.work[w] = make([][]float32, numRackChannels)
		for ch := range e.work[w] {
			e.work[w][ch] = make([]float32, e.bufferSize)
		}
	}
	e.silence = make([][]float32, numRackChannels)
	for ch := range e.silence {
		e.silence[ch] = make([]float32, e.bufferSize)
	}
}

// Process renders one audio buffer through the plugin chain. It is the
// audio thread's entry point and allocates nothing. in may be nil for
// output-only backends.
func (e *Engine) Process(in, out [][]float32, frames uint32) {
	cycle := e.BeginCycle(frames, true)
	defer cycle.End()

	count := e.curPluginCount.Load()
	if count == 0 {
		for ch := range out {
			for i := range out[ch][:frames] {
				out[ch][i] = 0
			}
		}
		return
	}

	if e.events.in != nil {
		e.events.inCount = uint32(e.pending.drainInto(e.events.in))
		e.events.outCount = 0
	}

	src := in
	if src == nil {
		src = e.silence
	}

	for i := uint32(0); i < count; i++ {
		slot := &e.plugins[i]
		p := slot.plugin
		if !e.log.Assert(p != nil, "occupied slot holds a plugin") {
			break
		}

		dst := out
		if i+1 < count {
			dst = e.work[i%2]
		}

		p.Process(src, dst, frames, &e.timeInfo, e.events.in[:e.events.inCount])

		if em, ok := p.(EventEmitter); ok {
			n := em.PullEvents(e.eventScratch[:])
			for j := 0; j < n; j++ {
				e.events.pushOut(e.eventScratch[j])
			}
		}

		updatePeaks(slot, src, dst, frames)
		src = dst
	}
}

func updatePeaks(slot *pluginSlot, in, out [][]float32, frames uint32) {
	slot.setPeak(peakInLeft, bufferPeak(in, 0, frames))
	slot.setPeak(peakInRight, bufferPeak(in, 1, frames))
	slot.setPeak(peakOutLeft, bufferPeak(out, 0, frames))
	slot.setPeak(peakOutRight, bufferPeak(out, 1, frames))
}

func bufferPeak(buf [][]float32, ch int, frames uint32) float32 {
	if ch >= len(buf) {
		return 0
	}
	var peak float32
	for _, s := range buf[ch][:frames] {
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	return peak
}

// AddPlugin appends a plugin to the table and returns its instance id.
// Insertion is safe while audio runs: the slot is fully populated before
// the occupied count is published.
func (e *Engine) AddPlugin(p Plugin) (uuid.UUID, error) {
	if e.name == "" {
		return uuid.Nil, ErrNotInitialized
	}
	if !e.log.Assert(p != nil, "plugin != nil") {
		return uuid.Nil, ErrBadPluginID
	}

	unlock := e.LockEnvironmentScoped()
	defer unlock()

	count := e.curPluginCount.Load()
	if count >= e.maxPlugins {
		return uuid.Nil, ErrRackFull
	}

	if e.IsRunning() {
		p.Activate(e.sampleRate, e.bufferSize)
	}

	instance := uuid.New()
	slot := &e.plugins[count]
	slot.plugin = p
	slot.instance = instance
	slot.clearPeaks()
	p.SetID(count)

	e.curPluginCount.Store(count + 1)

	e.log.Info("added plugin %q at slot %d (%s)", p.Name(), count, instance)
	return instance, nil
}

// RemovePlugin removes the plugin at id. The table mutation happens on
// the audio thread at its next buffer-cycle exit; this call blocks with a
// bounded wait until then. ErrEngineNotProcessing reports that the wait
// expired and the removal was applied on this thread instead.
func (e *Engine) RemovePlugin(id uint32) error {
	if e.name == "" {
		return ErrNotInitialized
	}
	if id >= e.curPluginCount.Load() {
		return ErrBadPluginID
	}

	restart := e.StopHelperScoped()
	defer restart()

	p := e.plugins[id].plugin
	if !e.log.Assert(p != nil, "slot to remove holds a plugin") {
		return ErrBadPluginID
	}

	err := e.deferAction(ActionRemovePlugin, id, 0)
	if err == ErrActionPending {
		return err
	}

	p.Deactivate()

	e.log.Info("removed plugin %q", p.Name())
	return err
}

// SwapPlugins exchanges the plugins at slots idA and idB, deferred to the
// audio thread like RemovePlugin.
func (e *Engine) SwapPlugins(idA, idB uint32) error {
	if e.name == "" {
		return ErrNotInitialized
	}
	count := e.curPluginCount.Load()
	if idA >= count || idB >= count || idA == idB {
		return ErrBadPluginID
	}

	restart := e.StopHelperScoped()
	defer restart()

	return e.deferAction(ActionSwapPlugins, idA, idB)
}

// RemoveAllPlugins empties the table. The occupied count drops to zero on
// the audio thread; per-slot teardown then runs on this thread.
func (e *Engine) RemoveAllPlugins() error {
	if e.name == "" {
		return ErrNotInitialized
	}

	restart := e.StopHelperScoped()
	defer restart()

	count := e.curPluginCount.Load()
	if count == 0 {
		return nil
	}

	err := e.deferAction(ActionZeroCount, 0, 0)
	if err == ErrActionPending {
		return err
	}

	for i := uint32(0); i < count; i++ {
		slot := &e.plugins[i]
		if slot.plugin != nil {
			slot.plugin.Deactivate()
		}
		slot.plugin = nil
		slot.instance = uuid.Nil
		slot.clearPeaks()
	}

	return err
}

// PluginCount returns the number of occupied slots.
func (e *Engine) PluginCount() uint32 { return e.curPluginCount.Load() }

// MaxPlugins returns the table capacity fixed at Init, so callers can
// check before attempting an add.
func (e *Engine) MaxPlugins() uint32 { return e.maxPlugins }

// PluginAt returns the plugin at an occupied slot.
func (e *Engine) PluginAt(id uint32) (Plugin, error) {
	if id >= e.curPluginCount.Load() {
		return nil, ErrBadPluginID
	}
	return e.plugins[id].plugin, nil
}

// PluginInstanceID returns the stable instance id of the plugin at id.
func (e *Engine) PluginInstanceID(id uint32) (uuid.UUID, error) {
	if id >= e.curPluginCount.Load() {
		return uuid.Nil, ErrBadPluginID
	}
	return e.plugins[id].instance, nil
}

// PluginPeaks returns the in L/R and out L/R peak meters of a slot.
func (e *Engine) PluginPeaks(id uint32) [numPeaks]float32 {
	var peaks [numPeaks]float32
	if id >= e.curPluginCount.Load() {
		return peaks
	}
	slot := &e.plugins[id]
	for i := range peaks {
		peaks[i] = slot.peak(i)
	}
	return peaks
}

// SetTempo changes the transport tempo and forces the next fill to
// recompute the musical position under it.
func (e *Engine) SetTempo(bpm float64) {
	e.clock.SetTempo(bpm)
	e.clock.SetNeedsReset()
}

// Tempo returns the current tempo in beats per minute.
func (e *Engine) Tempo() float64 { return e.clock.Tempo() }

// SetBeatsPerBar changes the time signature numerator.
func (e *Engine) SetBeatsPerBar(beats float64) { e.clock.SetBeatsPerBar(beats) }

// TransportPlay starts the transport rolling.
func (e *Engine) TransportPlay() { e.clock.Play() }

// TransportPause stops the transport in place.
func (e *Engine) TransportPause() { e.clock.Pause() }

// Relocate moves the transport to an absolute frame.
func (e *Engine) Relocate(frame uint64) { e.clock.Relocate(frame) }

// EnableSync toggles following the external sync peer.
func (e *Engine) EnableSync(enable bool) { e.clock.EnableSync(enable) }

// TimeInfo returns a snapshot of the current transport position.
func (e *Engine) TimeInfo() transport.TimeInfo { return e.clock.TimeInfo() }

// SetTransportMode switches the transport source.
func (e *Engine) SetTransportMode(mode transport.Mode) { e.clock.SetMode(mode) }

// QueueControlEvent hands a control-thread event to the audio thread. It
// reports false when the ring is full and the event was dropped.
func (e *Engine) QueueControlEvent(ev Event) bool {
	return e.pending.push(ev)
}

// DrainOutputEvents copies the events produced during the last cycle into
// dst and clears the buffer. It runs in the audio backend's context, or
// with audio stopped.
func (e *Engine) DrainOutputEvents(dst []Event) int {
	n := int(e.events.outCount)
	if n > len(dst) {
		n = len(dst)
	}
	copy(dst, e.events.out[:n])
	e.events.outCount = 0
	return n
}

// ReportXrun is called by the audio backend when it misses its deadline.
func (e *Engine) ReportXrun() { e.xruns.Add(1) }

// Xruns returns the number of xruns reported since Init.
func (e *Engine) Xruns() uint32 { return e.xruns.Load() }

// sanitizeName reduces a client name to a safe basic form.
func sanitizeName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == ' ', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, name)
}
