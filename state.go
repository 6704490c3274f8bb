// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package renderloop

import (
	"sync/atomic"
)

// SchedulerState is the externally visible lifecycle of a Scheduler.
//
//	StateReady → StateRunning         [Start()]
//	StateRunning → StateSuspended     [Pause()]
//	StateSuspended → StateRunning     [Resume()]
//	any → StateStopped                [Stop()]
//
// RequestUpdate and RequestUpdateOnce may run frames while suspended, without
// changing the state.
type SchedulerState uint32

const (
	// StateReady indicates the scheduler has not been started.
	StateReady SchedulerState = iota
	// StateRunning indicates the scheduler is producing frames on demand.
	StateRunning
	// StateSuspended indicates the scheduler has been paused.
	StateSuspended
	// StateStopped indicates the render goroutine has exited, terminally.
	StateStopped
)

// String returns a human-readable representation of the state.
func (s SchedulerState) String() string {
	switch s {
	case StateReady:
		return "Ready"
	case StateRunning:
		return "Running"
	case StateSuspended:
		return "Suspended"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

type schedulerState struct {
	v atomic.Uint32
}

func (s *schedulerState) Load() SchedulerState { return SchedulerState(s.v.Load()) }

// Store is only valid for StateStopped, or from the event thread.
func (s *schedulerState) Store(state SchedulerState) { s.v.Store(uint32(state)) }

func (s *schedulerState) TryTransition(from, to SchedulerState) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}
