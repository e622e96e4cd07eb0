package backend

import (
	"fmt"
	"sync"
	"time"

	"github.com/justyntemme/gorack/pkg/debug"
	"github.com/justyntemme/gorack/pkg/engine"
)

// Dummy paces buffer cycles from a wall-clock timer and discards the
// rendered audio. It gives the engine a realistic cadence without any
// audio hardware, which is what tests and headless setups want.
type Dummy struct {
	e          *engine.Engine
	log        *debug.Logger
	bufferSize uint32
	sampleRate float64

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	running bool
}

var _ Driver = (*Dummy)(nil)

// NewDummy creates a dummy driver cycling bufferSize frames at sampleRate.
func NewDummy(e *engine.Engine, bufferSize uint32, sampleRate float64, log *debug.Logger) *Dummy {
	return &Dummy{e: e, log: log, bufferSize: bufferSize, sampleRate: sampleRate}
}

func (d *Dummy) Name() string { return "dummy" }

func (d *Dummy) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return fmt.Errorf("dummy driver already started")
	}
	if err := d.e.Activate(d.bufferSize, d.sampleRate); err != nil {
		return err
	}

	d.stop = make(chan struct{})
	d.done = make(chan struct{})
	d.running = true

	go d.run(d.stop, d.done)

	d.log.Info("dummy driver started: %d frames @ %.0f Hz", d.bufferSize, d.sampleRate)
	return nil
}

func (d *Dummy) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return nil
	}
	close(d.stop)
	<-d.done
	d.running = false

	d.e.Deactivate()
	d.log.Info("dummy driver stopped")
	return nil
}

func (d *Dummy) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	period := time.Duration(float64(d.bufferSize) / d.sampleRate * float64(time.Second))
	budget := period

	out := make([][]float32, 2)
	for ch := range out {
		out[ch] = make([]float32, d.bufferSize)
	}

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			start := time.Now()
			d.e.Process(nil, out, d.bufferSize)
			if time.Since(start) > budget {
				d.e.ReportXrun()
			}
		}
	}
}
