package plugins

import (
	"math"
	"sync/atomic"

	"github.com/justyntemme/gorack/pkg/engine"
	"github.com/justyntemme/gorack/pkg/engine/transport"
)

// Sine parameter indices.
const (
	SineParamFrequency = iota
	SineParamAmplitude
)

const (
	minSineHz = 20.0
	maxSineHz = 20000.0
)

// Sine is a test oscillator. It ignores its input and writes the same
// sine wave to every output channel, so it usually sits first in a rack.
type Sine struct {
	id         uint32
	freqBits   atomic.Uint32
	ampBits    atomic.Uint32
	sampleRate float64
	phase      float64
}

// NewSine creates an oscillator at freq Hz with amplitude amp in [0, 1].
func NewSine(freq, amp float64) *Sine {
	s := &Sine{}
	s.SetFrequency(freq)
	s.SetAmplitude(amp)
	return s
}

func (s *Sine) Name() string { return "Sine" }
func (s *Sine) ID() uint32 { return s.id }
func (s *Sine) SetID(id uint32) { s.id = id }

func (s *Sine) Activate(sampleRate float64, _ uint32) {
	s.sampleRate = sampleRate
	s.phase = 0
}

func (s *Sine) Deactivate() {}

// Frequency returns the oscillator frequency in Hz.
func (s *Sine) Frequency() float64 {
	return float64(math.Float32frombits(s.freqBits.Load()))
}

// SetFrequency sets the frequency, clamped to the audible range.
func (s *Sine) SetFrequency(hz float64) {
	hz = math.Min(maxSineHz, math.Max(minSineHz, hz))
	s.freqBits.Store(math.Float32bits(float32(hz)))
}

// Amplitude returns the output amplitude in [0, 1].
func (s *Sine) Amplitude() float64 {
	return float64(math.Float32frombits(s.ampBits.Load()))
}

// SetAmplitude sets the amplitude, clamped to [0, 1].
func (s *Sine) SetAmplitude(amp float64) {
	amp = math.Min(1, math.Max(0, amp))
	s.ampBits.Store(math.Float32bits(float32(amp)))
}

func (s *Sine) applyEvents(events []engine.Event) {
	for _, ev := range events {
		if ev.Kind != engine.EventControl {
			continue
		}
		norm := math.Min(1, math.Max(0, float64(ev.Value)))
		switch ev.Param {
		case SineParamFrequency:
			// Normalized value maps onto a log scale, keeping low
			// frequencies usable.
			s.SetFrequency(minSineHz * math.Pow(maxSineHz/minSineHz, norm))
		case SineParamAmplitude:
			s.SetAmplitude(norm)
		}
	}
}

func (s *Sine) Process(_, out [][]float32, frames uint32, _ *transport.TimeInfo, events []engine.Event) {
	s.applyEvents(events)

	if s.sampleRate <= 0 {
		for ch := range out {
			for i := uint32(0); i < frames; i++ {
				out[ch][i] = 0
			}
		}
		return
	}

	inc := 2 * math.Pi * s.Frequency() / s.sampleRate
	amp := float32(s.Amplitude())

	phase := s.phase
	for i := uint32(0); i < frames; i++ {
		v := amp * float32(math.Sin(phase))
		for ch := range out {
			out[ch][i] = v
		}
		phase += inc
		if phase >= 2*math.Pi {
			phase -= 2 * math.Pi
		}
	}
	s.phase = phase
}
