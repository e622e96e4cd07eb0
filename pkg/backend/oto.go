package backend

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/ebitengine/oto/v3"

	"github.com/justyntemme/gorack/pkg/debug"
	"github.com/justyntemme/gorack/pkg/engine"
)

const otoChannels = 2

// Oto renders the engine through an ebitengine/oto playback context. The
// device pulls interleaved float32 frames from an io.Reader; we render
// whole engine buffers and carve them up into whatever read sizes the
// device asks for.
type Oto struct {
	e          *engine.Engine
	log        *debug.Logger
	bufferSize uint32
	sampleRate float64

	mu      sync.Mutex
	ctx     *oto.Context
	player  *oto.Player
	running bool
}

var _ Driver = (*Oto)(nil)

// NewOto creates an oto driver. The device context is opened lazily in
// Start so a headless host can construct one without audio hardware.
func NewOto(e *engine.Engine, bufferSize uint32, sampleRate float64, log *debug.Logger) *Oto {
	return &Oto{e: e, log: log, bufferSize: bufferSize, sampleRate: sampleRate}
}

func (o *Oto) Name() string { return "oto" }

func (o *Oto) Start() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.running {
		return fmt.Errorf("oto driver already started")
	}

	if o.ctx == nil {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   int(o.sampleRate),
			ChannelCount: otoChannels,
			Format:       oto.FormatFloat32LE,
		})
		if err != nil {
			return fmt.Errorf("opening audio device: %w", err)
		}
		<-ready
		o.ctx = ctx
	}

	if err := o.e.Activate(o.bufferSize, o.sampleRate); err != nil {
		return err
	}

	o.player = o.ctx.NewPlayer(&otoRenderer{e: o.e, bufferSize: o.bufferSize})
	o.player.Play()
	o.running = true

	o.log.Info("oto driver started: %d frames @ %.0f Hz", o.bufferSize, o.sampleRate)
	return nil
}

func (o *Oto) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.running {
		return nil
	}

	if err := o.player.Close(); err != nil {
		o.log.Warn("closing player: %v", err)
	}
	o.player = nil
	o.running = false

	o.e.Deactivate()
	o.log.Info("oto driver stopped")
	return nil
}

// otoRenderer adapts the engine's planar buffer cycle to the byte stream
// the device pulls. Read runs on oto's playback goroutine, which is the
// engine's audio thread for the lifetime of the player.
type otoRenderer struct {
	e          *engine.Engine
	bufferSize uint32

	out  [][]float32
	rem  []byte // rendered bytes not yet consumed
	used int
}

const bytesPerFrame = otoChannels * 4

func (r *otoRenderer) Read(p []byte) (int, error) {
	if r.out == nil {
		r.out = make([][]float32, otoChannels)
		for ch := range r.out {
			r.out[ch] = make([]float32, r.bufferSize)
		}
		r.rem = make([]byte, int(r.bufferSize)*bytesPerFrame)
		r.used = len(r.rem)
	}

	n := 0
	for n < len(p) {
		if r.used == len(r.rem) {
			r.e.Process(nil, r.out, r.bufferSize)
			r.interleave()
			r.used = 0
		}
		c := copy(p[n:], r.rem[r.used:])
		n += c
		r.used += c
	}
	return n, nil
}

func (r *otoRenderer) interleave() {
	for i := uint32(0); i < r.bufferSize; i++ {
		off := int(i) * bytesPerFrame
		for ch := 0; ch < otoChannels; ch++ {
			bits := math.Float32bits(r.out[ch][i])
			binary.LittleEndian.PutUint32(r.rem[off+ch*4:], bits)
		}
	}
}
