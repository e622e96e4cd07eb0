package engine

import (
	"bytes"
	"sync/atomic"
	"testing"

	"github.com/justyntemme/gorack/pkg/debug"
	"github.com/justyntemme/gorack/pkg/engine/transport"
)

// testPlugin is a minimal gain plugin recording what the engine does to it.
type testPlugin struct {
	name string
	id   uint32
	gain float32

	active     atomic.Bool
	cycles     atomic.Uint32
	eventsSeen atomic.Uint32

	emit bool // emit one event per cycle when set
}

func newTestPlugin(name string) *testPlugin {
	return &testPlugin{name: name, gain: 1}
}

func (p *testPlugin) Name() string { return p.name }
func (p *testPlugin) ID() uint32 { return p.id }
func (p *testPlugin) SetID(id uint32) { p.id = id }
func (p *testPlugin) Activate(float64, uint32) {
	p.active.Store(true)
}
func (p *testPlugin) Deactivate() {
	p.active.Store(false)
}

func (p *testPlugin) Process(in, out [][]float32, frames uint32, _ *transport.TimeInfo, events []Event) {
	p.cycles.Add(1)
	p.eventsSeen.Add(uint32(len(events)))
	for ch := range out {
		src := out[ch]
		if ch < len(in) {
			src = in[ch]
		}
		for i := uint32(0); i < frames; i++ {
			out[ch][i] = src[i] * p.gain
		}
	}
}

func (p *testPlugin) PullEvents(dst []Event) int {
	if !p.emit || len(dst) == 0 {
		return 0
	}
	dst[0] = Event{Kind: EventControl, Channel: 0, Param: 7, Value: 1}
	return 1
}

func quietEngine() *Engine {
	var buf bytes.Buffer
	return New(debug.New(&buf, "test", debug.LevelOff), nil)
}

func makeBuf(channels int, frames uint32) [][]float32 {
	buf := make([][]float32, channels)
	for ch := range buf {
		buf[ch] = make([]float32, frames)
	}
	return buf
}

func TestEngineLifecycle(t *testing.T) {
	t.Run("InitClose", func(t *testing.T) {
		e := quietEngine()
		if err := e.Init("test host", ProcessModeRack); err != nil {
			t.Fatalf("Init: %v", err)
		}
		if e.Name() != "test host" {
			t.Errorf("name = %q", e.Name())
		}
		if e.MaxPlugins() != MaxRackPlugins {
			t.Errorf("rack capacity = %d, want %d", e.MaxPlugins(), MaxRackPlugins)
		}
		if err := e.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
		if e.MaxPlugins() != 0 || e.PluginCount() != 0 {
			t.Error("Close should reset counters")
		}
	})

	t.Run("DoubleInit", func(t *testing.T) {
		e := quietEngine()
		if err := e.Init("host", ProcessModeRack); err != nil {
			t.Fatalf("Init: %v", err)
		}
		if err := e.Init("again", ProcessModeRack); err != ErrAlreadyInitialized {
			t.Errorf("second Init = %v, want ErrAlreadyInitialized", err)
		}
		e.Close()
	})

	t.Run("EmptyName", func(t *testing.T) {
		e := quietEngine()
		if err := e.Init("", ProcessModeRack); err != ErrInvalidName {
			t.Errorf("Init with empty name = %v, want ErrInvalidName", err)
		}
	})

	t.Run("CloseBeforeInit", func(t *testing.T) {
		e := quietEngine()
		if err := e.Close(); err != ErrNotInitialized {
			t.Errorf("Close before Init = %v, want ErrNotInitialized", err)
		}
	})

	t.Run("ReinitAfterClose", func(t *testing.T) {
		e := quietEngine()
		if err := e.Init("first", ProcessModeRack); err != nil {
			t.Fatalf("Init: %v", err)
		}
		e.Close()
		if err := e.Init("second", ProcessModePatchbay); err != nil {
			t.Fatalf("Init after Close: %v", err)
		}
		if e.MaxPlugins() != MaxPatchbayPlugins {
			t.Errorf("patchbay capacity = %d, want %d", e.MaxPlugins(), MaxPatchbayPlugins)
		}
		e.Close()
	})

	t.Run("CapacityByMode", func(t *testing.T) {
		modes := map[ProcessMode]uint32{
			ProcessModeRack:     MaxRackPlugins,
			ProcessModePatchbay: MaxPatchbayPlugins,
			ProcessModeBridge:   1,
			ProcessModeMulti:    MaxDefaultPlugins,
		}
		for mode, want := range modes {
			e := quietEngine()
			if err := e.Init("host", mode); err != nil {
				t.Fatalf("Init(%s): %v", mode, err)
			}
			if e.MaxPlugins() != want {
				t.Errorf("%s capacity = %d, want %d", mode, e.MaxPlugins(), want)
			}
			e.Close()
		}
	})

	t.Run("SanitizedName", func(t *testing.T) {
		e := quietEngine()
		if err := e.Init("host/with:weird*chars", ProcessModeRack); err != nil {
			t.Fatalf("Init: %v", err)
		}
		if e.Name() != "host_with_weird_chars" {
			t.Errorf("sanitized name = %q", e.Name())
		}
		e.Close()
	})
}

func TestEngineAddPlugin(t *testing.T) {
	t.Run("AssignsIDs", func(t *testing.T) {
		e := quietEngine()
		e.Init("host", ProcessModeRack)
		defer e.Close()

		a := newTestPlugin("a")
		b := newTestPlugin("b")

		idA, err := e.AddPlugin(a)
		if err != nil {
			t.Fatalf("AddPlugin: %v", err)
		}
		idB, err := e.AddPlugin(b)
		if err != nil {
			t.Fatalf("AddPlugin: %v", err)
		}

		if a.ID() != 0 || b.ID() != 1 {
			t.Errorf("plugin ids = %d, %d, want 0, 1", a.ID(), b.ID())
		}
		if idA == idB {
			t.Error("instance ids must be distinct")
		}
		got, err := e.PluginInstanceID(1)
		if err != nil || got != idB {
			t.Errorf("PluginInstanceID(1) = %v, %v", got, err)
		}
	})

	t.Run("RackFull", func(t *testing.T) {
		e := quietEngine()
		e.Init("host", ProcessModeBridge) // capacity 1
		defer e.Close()

		if _, err := e.AddPlugin(newTestPlugin("a")); err != nil {
			t.Fatalf("AddPlugin: %v", err)
		}
		if _, err := e.AddPlugin(newTestPlugin("b")); err != ErrRackFull {
			t.Errorf("over-capacity add = %v, want ErrRackFull", err)
		}
	})

	t.Run("BeforeInit", func(t *testing.T) {
		e := quietEngine()
		if _, err := e.AddPlugin(newTestPlugin("a")); err != ErrNotInitialized {
			t.Errorf("AddPlugin before Init = %v, want ErrNotInitialized", err)
		}
	})
}

func TestEngineProcess(t *testing.T) {
	t.Run("ChainAndPeaks", func(t *testing.T) {
		e := quietEngine()
		e.Init("host", ProcessModeRack)
		defer e.Close()

		a := newTestPlugin("a")
		a.gain = 0.5
		b := newTestPlugin("b")
		b.gain = 0.5
		e.AddPlugin(a)
		e.AddPlugin(b)

		e.Activate(64, 48000)
		defer e.Deactivate()

		in := makeBuf(2, 64)
		out := makeBuf(2, 64)
		for ch := range in {
			for i := range in[ch] {
				in[ch][i] = 1
			}
		}

		e.Process(in, out, 64)

		if out[0][0] != 0.25 {
			t.Errorf("chained gain output = %v, want 0.25", out[0][0])
		}
		if a.cycles.Load() != 1 || b.cycles.Load() != 1 {
			t.Error("both plugins should have processed once")
		}

		peaksA := e.PluginPeaks(0)
		if peaksA[peakInLeft] != 1 || peaksA[peakOutLeft] != 0.5 {
			t.Errorf("slot 0 peaks = %v", peaksA)
		}
		peaksB := e.PluginPeaks(1)
		if peaksB[peakInLeft] != 0.5 || peaksB[peakOutLeft] != 0.25 {
			t.Errorf("slot 1 peaks = %v", peaksB)
		}
	})

	t.Run("EmptyTableOutputsSilence", func(t *testing.T) {
		e := quietEngine()
		e.Init("host", ProcessModeRack)
		defer e.Close()
		e.Activate(64, 48000)
		defer e.Deactivate()

		out := makeBuf(2, 64)
		out[0][10] = 0.7
		e.Process(nil, out, 64)
		if out[0][10] != 0 {
			t.Error("empty table should output silence")
		}
	})

	t.Run("ControlEventsReachPlugins", func(t *testing.T) {
		e := quietEngine()
		e.Init("host", ProcessModeRack)
		defer e.Close()

		p := newTestPlugin("p")
		e.AddPlugin(p)
		e.Activate(64, 48000)
		defer e.Deactivate()

		if !e.QueueControlEvent(Event{Kind: EventControl, Param: 7, Value: 0.5}) {
			t.Fatal("queue should accept the event")
		}
		if !e.QueueControlEvent(Event{Kind: EventControl, Param: 10, Value: 0.1}) {
			t.Fatal("queue should accept the event")
		}

		out := makeBuf(2, 64)
		e.Process(nil, out, 64)

		if p.eventsSeen.Load() != 2 {
			t.Errorf("plugin saw %d events, want 2", p.eventsSeen.Load())
		}

		// Drained: next cycle sees none.
		e.Process(nil, out, 64)
		if p.eventsSeen.Load() != 2 {
			t.Errorf("plugin saw %d events total, want 2", p.eventsSeen.Load())
		}
	})

	t.Run("OutputEvents", func(t *testing.T) {
		e := quietEngine()
		e.Init("host", ProcessModeRack)
		defer e.Close()

		p := newTestPlugin("p")
		p.emit = true
		e.AddPlugin(p)
		e.Activate(64, 48000)
		defer e.Deactivate()

		out := makeBuf(2, 64)
		e.Process(nil, out, 64)

		var drained [8]Event
		n := e.DrainOutputEvents(drained[:])
		if n != 1 {
			t.Fatalf("drained %d events, want 1", n)
		}
		if drained[0].Kind != EventControl || drained[0].Param != 7 {
			t.Errorf("drained event = %+v", drained[0])
		}
		if e.DrainOutputEvents(drained[:]) != 0 {
			t.Error("second drain should be empty")
		}
	})

	t.Run("RingOverflowDrops", func(t *testing.T) {
		e := quietEngine()
		e.Init("host", ProcessModeRack)
		defer e.Close()

		for i := 0; i < pendingEventCap; i++ {
			if !e.QueueControlEvent(Event{Kind: EventControl}) {
				t.Fatalf("event %d rejected before capacity", i)
			}
		}
		if e.QueueControlEvent(Event{Kind: EventControl}) {
			t.Error("event beyond capacity should be dropped")
		}
		if e.pending.dropped.Load() != 1 {
			t.Errorf("dropped = %d, want 1", e.pending.dropped.Load())
		}
	})
}

func TestEngineXruns(t *testing.T) {
	e := quietEngine()
	e.Init("host", ProcessModeRack)
	defer e.Close()

	e.ReportXrun()
	e.ReportXrun()
	if e.Xruns() != 2 {
		t.Errorf("xruns = %d, want 2", e.Xruns())
	}
}
