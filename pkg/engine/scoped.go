package engine

import "time"

// helperStopTimeout bounds how long reconfiguration waits for the helper
// thread to pause.
const helperStopTimeout = 500 * time.Millisecond

// StopHelperScoped pauses the background helper thread around a risky
// reconfiguration. The returned restart function must be deferred; it
// restarts the helper only if the engine is still initialized and not
// mid-teardown:
//
//	restart := e.StopHelperScoped()
//	defer restart()
func (e *Engine) StopHelperScoped() (restart func()) {
	e.thread.Stop(helperStopTimeout)

	return func() {
		if e.name != "" && !e.aboutToClose.Load() {
			e.thread.Start()
		}
	}
}

// LockEnvironmentScoped serializes non-realtime environment mutation, such
// as re-initializing the audio backend. It is never acquired from the
// audio thread. The returned unlock must be deferred.
func (e *Engine) LockEnvironmentScoped() (unlock func()) {
	e.envMu.Lock()
	return e.envMu.Unlock
}
