package engine

import "errors"

var (
	// ErrAlreadyInitialized is returned when Init is called twice.
	ErrAlreadyInitialized = errors.New("engine already initialized")

	// ErrNotInitialized is returned for operations requiring a live engine.
	ErrNotInitialized = errors.New("engine not initialized")

	// ErrInvalidName is returned when Init is given an empty client name.
	ErrInvalidName = errors.New("invalid client name")

	// ErrActionPending is returned when a structural change is requested
	// while another one is still waiting for the audio thread. The new
	// request is rejected, not queued; retry after the first completes.
	ErrActionPending = errors.New("another action is pending")

	// ErrEngineNotProcessing reports a degraded completion: the bounded
	// wait for the audio thread expired and the action was applied on the
	// calling thread instead. The change itself has taken effect.
	ErrEngineNotProcessing = errors.New("engine does not appear to be processing audio")

	// ErrRackFull is returned when the fixed-capacity plugin table has no
	// free slot.
	ErrRackFull = errors.New("plugin table is full")

	// ErrBadPluginID is returned when an index does not address an
	// occupied slot.
	ErrBadPluginID = errors.New("invalid plugin id")
)
