package engine

import (
	"sync"
	"sync/atomic"
	"time"
)

// ActionOpcode selects the structural mutation carried by the deferred
// action slot.
type ActionOpcode uint32

const (
	// ActionNull means no action is pending.
	ActionNull ActionOpcode = iota
	// ActionZeroCount resets the occupied plugin count to zero.
	ActionZeroCount
	// ActionRemovePlugin compacts the table around one removed slot.
	ActionRemovePlugin
	// ActionSwapPlugins exchanges two slots.
	ActionSwapPlugins
)

// Bounded wait for the audio thread to consume a deferred action: polled
// in short slices so a stopped audio thread is noticed instead of hanging.
const (
	actionWaitSlice  = 200 * time.Millisecond
	actionWaitSlices = 10
)

// nextAction is the single-slot mailbox between control threads and the
// audio thread. At most one non-null action is pending at any time; a new
// request while one is outstanding is rejected, not queued.
//
// The mutex guards only the metadata fields and is held for O(1) copies,
// never across the table mutation or the wait. ackDone is atomic because
// the audio thread sets it after the control thread's wait may have timed
// out.
type nextAction struct {
	mu sync.Mutex

	opcode   ActionOpcode
	pluginID uint32
	value    uint32

	needsAck bool
	ackDone  atomic.Bool

	sem chan struct{}
}

func (a *nextAction) init() {
	a.sem = make(chan struct{}, 1)
}

// post signals the waiting control thread. Posting without a waiter is
// harmless; the token is consumed by the next wait.
func (a *nextAction) post() {
	select {
	case a.sem <- struct{}{}:
	default:
	}
}

// timedWait waits for one post, up to d.
func (a *nextAction) timedWait(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-a.sem:
		return true
	case <-t.C:
		return false
	}
}

// clearAndReset empties the slot. Used at engine start and teardown; a
// pending action at teardown indicates a lifecycle bug and is logged.
func (a *nextAction) clearAndReset(e *Engine) {
	a.mu.Lock()
	e.log.Assert(a.opcode == ActionNull, "nextAction.opcode == ActionNull")

	a.opcode = ActionNull
	a.pluginID = 0
	a.value = 0
	a.needsAck = false
	a.ackDone.Store(false)
	a.mu.Unlock()

	// Discard a stale token so the next wait starts clean.
	select {
	case <-a.sem:
	default:
	}
}

// deferAction queues one structural mutation and waits for the audio
// thread to apply it at its next buffer-cycle exit.
//
// If the audio thread is not running the action is applied immediately on
// the calling thread. If it is believed running but never acknowledges
// within the bounded wait, the caller applies the action itself and
// ErrEngineNotProcessing reports the degraded completion; the mutation has
// still taken effect.
func (e *Engine) deferAction(opcode ActionOpcode, pluginID, value uint32) error {
	if !e.log.Assert(opcode != ActionNull, "opcode != ActionNull") {
		return nil
	}

	a := &e.nextAction

	a.mu.Lock()
	if a.opcode != ActionNull {
		a.mu.Unlock()
		return ErrActionPending
	}
	a.opcode = opcode
	a.pluginID = pluginID
	a.value = value
	a.needsAck = e.IsRunning()
	a.ackDone.Store(false)
	needsAck := a.needsAck
	a.mu.Unlock()

	if !needsAck {
		// No audio thread to rendezvous with; safe to apply here.
		e.applyPendingAction()
		return nil
	}

	stoppedWhileWaiting := false

	if !a.ackDone.Load() {
		for i := 0; i < actionWaitSlices; i++ {
			if a.timedWait(actionWaitSlice) {
				break
			}
			if !e.IsRunning() {
				stoppedWhileWaiting = true
				break
			}
		}
	}

	if a.ackDone.Load() {
		return nil
	}

	// The audio thread evidently did not run. Take back the slot and apply
	// the action ourselves.
	needsCorrection := false

	a.mu.Lock()
	if a.opcode != ActionNull {
		needsCorrection = true
		a.needsAck = false
	}
	a.mu.Unlock()

	if needsCorrection {
		e.applyPendingAction()

		if !stoppedWhileWaiting {
			e.log.Warn("timed out waiting for the audio thread, is audio running?")
		}
		return ErrEngineNotProcessing
	}

	return nil
}

// applyPendingAction is the consumer side, invoked by the audio thread at
// every buffer-cycle exit. It never blocks: when the producer holds the
// lock the cycle is skipped and the action is picked up next time. The
// slot is snapshot and cleared under the lock, the mutation applied
// outside it, and the waiter signaled only after the mutation is complete.
func (e *Engine) applyPendingAction() {
	a := &e.nextAction

	if !a.mu.TryLock() {
		return
	}

	opcode := a.opcode
	pluginID := a.pluginID
	value := a.value
	needsAck := a.needsAck

	a.opcode = ActionNull
	a.pluginID = 0
	a.value = 0
	a.needsAck = false

	a.mu.Unlock()

	switch opcode {
	case ActionNull:
	case ActionZeroCount:
		e.zeroCount()
	case ActionRemovePlugin:
		e.removeAt(pluginID)
	case ActionSwapPlugins:
		e.swapSlots(pluginID, value)
	}

	if needsAck {
		a.post()
		a.ackDone.Store(true)
	}
}
