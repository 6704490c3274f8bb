// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package mainloop

import (
	"sync/atomic"
)

// TriggerEvent delivers a callback to the loop goroutine, in response to
// Trigger calls made from any goroutine.
//
// Triggers coalesce: while a delivery is pending, further Trigger calls are
// no-ops. The pending flag is cleared immediately before the callback runs,
// so a Trigger made during the callback schedules another delivery.
type TriggerEvent struct {
	loop      *Loop
	callback  func()
	pending   atomic.Bool
	discarded atomic.Bool
}

// NewTrigger creates a TriggerEvent that runs callback on the loop goroutine.
func (l *Loop) NewTrigger(callback func()) *TriggerEvent {
	return &TriggerEvent{loop: l, callback: callback}
}

// Trigger schedules a delivery of the callback. Safe for concurrent use.
func (t *TriggerEvent) Trigger() {
	if t.discarded.Load() || !t.pending.CompareAndSwap(false, true) {
		return
	}
	l := t.loop
	if l.state.Load() == StateTerminated {
		t.pending.Store(false)
		return
	}
	l.mu.Lock()
	l.triggered = append(l.triggered, t)
	l.mu.Unlock()
	_ = l.submitWakeup()
}

// Discard permanently disables the trigger. A delivery that is already
// pending is dropped.
func (t *TriggerEvent) Discard() {
	t.discarded.Store(true)
}

// fire runs on the loop goroutine.
func (t *TriggerEvent) fire() {
	t.pending.Store(false)
	if t.discarded.Load() {
		return
	}
	t.loop.safeExecute(t.callback)
}
