// Package backend connects the engine's buffer cycle to an audio device.
// A driver owns the cadence: it activates the engine, calls Process once
// per buffer and reports xruns when it falls behind.
package backend

// Driver runs the engine's processing loop against some audio sink.
type Driver interface {
	// Start activates the engine and begins delivering buffer cycles.
	Start() error

	// Stop ends the cycle loop and deactivates the engine. Safe to call
	// more than once.
	Stop() error

	// Name identifies the driver in logs.
	Name() string
}
