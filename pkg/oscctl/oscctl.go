// Package oscctl exposes engine control over OSC, so sequencers and
// touch surfaces can drive the transport and the plugin rack remotely.
package oscctl

import (
	"net"
	"strconv"

	"github.com/pkg/errors"
	"github.com/scgolang/osc"

	"github.com/justyntemme/gorack/pkg/debug"
	"github.com/justyntemme/gorack/pkg/engine"
)

// OSC addresses.
const (
	AddressTempo       = "/gorack/tempo"
	AddressBeatsPerBar = "/gorack/beats_per_bar"
	AddressPlay        = "/gorack/play"
	AddressPause       = "/gorack/pause"
	AddressRelocate    = "/gorack/relocate"
	AddressSync        = "/gorack/sync"
	AddressRackClear   = "/gorack/rack/clear"
	AddressRemove      = "/gorack/plugin/remove"
	AddressSwap        = "/gorack/plugin/swap"
	AddressParam       = "/gorack/plugin/param"
)

// Server listens for control messages and forwards them to the engine.
type Server struct {
	e    *engine.Engine
	log  *debug.Logger
	conn osc.Conn
}

// NewServer creates an OSC control server for e. Call Listen to start it.
func NewServer(e *engine.Engine, log *debug.Logger) *Server {
	return &Server{e: e, log: log}
}

// Listen binds a UDP socket on port and serves messages until Close.
// It returns once the socket is bound; dispatch runs in the background.
func (s *Server) Listen(port int) error {
	laddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort("", strconv.Itoa(port)))
	if err != nil {
		return errors.Wrap(err, "resolving listen address")
	}
	conn, err := osc.ListenUDP("udp", laddr)
	if err != nil {
		return errors.Wrap(err, "binding osc socket")
	}
	s.conn = conn

	go func() {
		if err := conn.Serve(1, s.dispatcher()); err != nil {
			s.log.Debug("osc server exited: %v", err)
		}
	}()

	s.log.Info("osc control listening on udp port %d", port)
	return nil
}

// Close shuts the socket down, ending dispatch.
func (s *Server) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *Server) dispatcher() osc.Dispatcher {
	return osc.Dispatcher{
		AddressTempo:       s.handle(s.tempo),
		AddressBeatsPerBar: s.handle(s.beatsPerBar),
		AddressPlay:        s.handle(s.play),
		AddressPause:       s.handle(s.pause),
		AddressRelocate:    s.handle(s.relocate),
		AddressSync:        s.handle(s.sync),
		AddressRackClear:   s.handle(s.rackClear),
		AddressRemove:      s.handle(s.remove),
		AddressSwap:        s.handle(s.swap),
		AddressParam:       s.handle(s.param),
	}
}

// handle wraps a handler so a malformed message is logged instead of
// tearing down the serve loop.
func (s *Server) handle(fn func(osc.Message) error) osc.Method {
	return osc.Method(func(m osc.Message) error {
		if err := fn(m); err != nil {
			s.log.Warn("osc %s: %v", m.Address, err)
		}
		return nil
	})
}

func (s *Server) tempo(m osc.Message) error {
	bpm, err := readFloat(m, 0)
	if err != nil {
		return err
	}
	if bpm <= 0 {
		return errors.Errorf("tempo must be positive, got %v", bpm)
	}
	s.e.SetTempo(bpm)
	return nil
}

func (s *Server) beatsPerBar(m osc.Message) error {
	beats, err := readFloat(m, 0)
	if err != nil {
		return err
	}
	s.e.SetBeatsPerBar(beats)
	return nil
}

func (s *Server) play(osc.Message) error {
	s.e.TransportPlay()
	return nil
}

func (s *Server) pause(osc.Message) error {
	s.e.TransportPause()
	return nil
}

func (s *Server) relocate(m osc.Message) error {
	frame, err := readInt(m, 0)
	if err != nil {
		return err
	}
	if frame < 0 {
		return errors.Errorf("frame must not be negative, got %d", frame)
	}
	s.e.Relocate(uint64(frame))
	return nil
}

func (s *Server) sync(m osc.Message) error {
	on, err := readInt(m, 0)
	if err != nil {
		return err
	}
	s.e.EnableSync(on != 0)
	return nil
}

func (s *Server) rackClear(osc.Message) error {
	return s.e.RemoveAllPlugins()
}

func (s *Server) remove(m osc.Message) error {
	id, err := readInt(m, 0)
	if err != nil {
		return err
	}
	if id < 0 {
		return errors.Errorf("plugin id must not be negative, got %d", id)
	}
	return s.e.RemovePlugin(uint32(id))
}

func (s *Server) swap(m osc.Message) error {
	idA, err := readInt(m, 0)
	if err != nil {
		return err
	}
	idB, err := readInt(m, 1)
	if err != nil {
		return err
	}
	if idA < 0 || idB < 0 {
		return errors.New("plugin ids must not be negative")
	}
	return s.e.SwapPlugins(uint32(idA), uint32(idB))
}

// param queues a control event: plugin channel, parameter index, value.
func (s *Server) param(m osc.Message) error {
	ev, err := controlEventFromMessage(m)
	if err != nil {
		return err
	}
	if !s.e.QueueControlEvent(ev) {
		return errors.New("control event dropped, queue full")
	}
	return nil
}

// controlEventFromMessage parses (int channel, int param, float value).
func controlEventFromMessage(m osc.Message) (engine.Event, error) {
	channel, err := readInt(m, 0)
	if err != nil {
		return engine.Event{}, err
	}
	param, err := readInt(m, 1)
	if err != nil {
		return engine.Event{}, err
	}
	value, err := readFloat(m, 2)
	if err != nil {
		return engine.Event{}, err
	}

	if channel < 0 || channel > 15 {
		return engine.Event{}, errors.Errorf("channel out of range: %d", channel)
	}
	if param < 0 || param > 0xffff {
		return engine.Event{}, errors.Errorf("param out of range: %d", param)
	}

	return engine.Event{
		Kind:    engine.EventControl,
		Channel: uint8(channel),
		Param:   uint16(param),
		Value:   float32(value),
	}, nil
}

func readFloat(m osc.Message, i int) (float64, error) {
	if i >= len(m.Arguments) {
		return 0, errors.Errorf("expected at least %d arguments, got %d", i+1, len(m.Arguments))
	}
	f, err := m.Arguments[i].ReadFloat32()
	if err != nil {
		return 0, errors.Wrapf(err, "reading argument %d", i)
	}
	return float64(f), nil
}

func readInt(m osc.Message, i int) (int32, error) {
	if i >= len(m.Arguments) {
		return 0, errors.Errorf("expected at least %d arguments, got %d", i+1, len(m.Arguments))
	}
	n, err := m.Arguments[i].ReadInt32()
	if err != nil {
		return 0, errors.Wrapf(err, "reading argument %d", i)
	}
	return n, nil
}
