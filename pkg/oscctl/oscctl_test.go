package oscctl

import (
	"bytes"
	"sync/atomic"
	"testing"

	"github.com/scgolang/osc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justyntemme/gorack/pkg/debug"
	"github.com/justyntemme/gorack/pkg/engine"
	"github.com/justyntemme/gorack/pkg/engine/transport"
)

func newTestServer(t *testing.T) (*Server, *engine.Engine) {
	t.Helper()
	var buf bytes.Buffer
	log := debug.New(&buf, "test", debug.LevelOff)
	e := engine.New(log, nil)
	require.NoError(t, e.Init("osc test", engine.ProcessModeRack))
	t.Cleanup(func() { e.Close() })
	return NewServer(e, log), e
}

func msg(addr string, args ...osc.Argument) osc.Message {
	return osc.Message{Address: addr, Arguments: osc.Arguments(args)}
}

func TestTransportMessages(t *testing.T) {
	s, e := newTestServer(t)

	t.Run("Tempo", func(t *testing.T) {
		require.NoError(t, s.tempo(msg(AddressTempo, osc.Float(140))))
		assert.Equal(t, float64(140), e.Tempo())

		assert.Error(t, s.tempo(msg(AddressTempo, osc.Float(-1))))
		assert.Error(t, s.tempo(msg(AddressTempo)))
		assert.Equal(t, float64(140), e.Tempo())
	})

	t.Run("PlayPause", func(t *testing.T) {
		require.NoError(t, s.play(msg(AddressPlay)))
		assert.True(t, e.TimeInfo().Playing)

		require.NoError(t, s.pause(msg(AddressPause)))
		assert.False(t, e.TimeInfo().Playing)
	})

	t.Run("Relocate", func(t *testing.T) {
		require.NoError(t, s.relocate(msg(AddressRelocate, osc.Int(96000))))
		assert.Equal(t, uint64(96000), e.TimeInfo().Frame)

		assert.Error(t, s.relocate(msg(AddressRelocate, osc.Int(-5))))
		assert.Error(t, s.relocate(msg(AddressRelocate)))
	})

	t.Run("BeatsPerBar", func(t *testing.T) {
		require.NoError(t, s.beatsPerBar(msg(AddressBeatsPerBar, osc.Float(3))))
		assert.Error(t, s.beatsPerBar(msg(AddressBeatsPerBar)))
	})

	t.Run("SyncWithoutPeer", func(t *testing.T) {
		// No peer configured: the request parses fine and the engine
		// simply stays unsynced.
		require.NoError(t, s.sync(msg(AddressSync, osc.Int(1))))
		assert.Error(t, s.sync(msg(AddressSync)))
	})
}

func TestRackMessages(t *testing.T) {
	t.Run("RemoveAndClear", func(t *testing.T) {
		s, e := newTestServer(t)
		for _, name := range []string{"a", "b", "c"} {
			_, err := e.AddPlugin(newStubPlugin(name))
			require.NoError(t, err)
		}

		require.NoError(t, s.remove(msg(AddressRemove, osc.Int(1))))
		assert.Equal(t, uint32(2), e.PluginCount())

		assert.Error(t, s.remove(msg(AddressRemove, osc.Int(9))))
		assert.Error(t, s.remove(msg(AddressRemove, osc.Int(-1))))

		require.NoError(t, s.rackClear(msg(AddressRackClear)))
		assert.Equal(t, uint32(0), e.PluginCount())
	})

	t.Run("Swap", func(t *testing.T) {
		s, e := newTestServer(t)
		a := newStubPlugin("a")
		b := newStubPlugin("b")
		_, err := e.AddPlugin(a)
		require.NoError(t, err)
		_, err = e.AddPlugin(b)
		require.NoError(t, err)

		require.NoError(t, s.swap(msg(AddressSwap, osc.Int(0), osc.Int(1))))
		assert.Equal(t, uint32(1), a.ID())
		assert.Equal(t, uint32(0), b.ID())

		assert.Error(t, s.swap(msg(AddressSwap, osc.Int(0))))
		assert.Error(t, s.swap(msg(AddressSwap, osc.Int(0), osc.Int(0))))
	})
}

func TestControlEventFromMessage(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		ev, err := controlEventFromMessage(msg(AddressParam, osc.Int(2), osc.Int(74), osc.Float(0.5)))
		require.NoError(t, err)

		assert.Equal(t, engine.EventControl, ev.Kind)
		assert.Equal(t, uint8(2), ev.Channel)
		assert.Equal(t, uint16(74), ev.Param)
		assert.Equal(t, float32(0.5), ev.Value)
	})

	t.Run("Invalid", func(t *testing.T) {
		cases := []osc.Message{
			msg(AddressParam),
			msg(AddressParam, osc.Int(0), osc.Int(1)),
			msg(AddressParam, osc.Int(16), osc.Int(1), osc.Float(0)),
			msg(AddressParam, osc.Int(-1), osc.Int(1), osc.Float(0)),
			msg(AddressParam, osc.Int(0), osc.Int(70000), osc.Float(0)),
		}
		for _, m := range cases {
			_, err := controlEventFromMessage(m)
			assert.Error(t, err)
		}
	})

	t.Run("QueuedForAudioThread", func(t *testing.T) {
		s, e := newTestServer(t)
		require.NoError(t, s.param(msg(AddressParam, osc.Int(0), osc.Int(7), osc.Float(1))))

		require.NoError(t, e.Activate(64, 48000))
		defer e.Deactivate()

		p := newStubPlugin("a")
		_, err := e.AddPlugin(p)
		require.NoError(t, err)

		out := [][]float32{make([]float32, 64), make([]float32, 64)}
		e.Process(nil, out, 64)
		assert.Equal(t, uint32(1), p.events.Load())
	})
}

type stubPlugin struct {
	name   string
	id     uint32
	events atomic.Uint32
}

func newStubPlugin(name string) *stubPlugin { return &stubPlugin{name: name} }

func (p *stubPlugin) Name() string { return p.name }
func (p *stubPlugin) ID() uint32 { return p.id }
func (p *stubPlugin) SetID(id uint32) { p.id = id }
func (p *stubPlugin) Activate(float64, uint32) {}
func (p *stubPlugin) Deactivate() {}

func (p *stubPlugin) Process(_, _ [][]float32, _ uint32, _ *transport.TimeInfo, events []engine.Event) {
	p.events.Add(uint32(len(events)))
}

func TestListenClose(t *testing.T) {
	s, _ := newTestServer(t)
	require.NoError(t, s.Listen(0))
	require.NoError(t, s.Close())

	// Close with no socket is a no-op.
	s2, _ := newTestServer(t)
	require.NoError(t, s2.Close())
}
