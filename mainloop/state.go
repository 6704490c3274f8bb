// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package mainloop

import (
	"sync/atomic"
)

// LoopState represents the current state of the event loop.
//
//	StateAwake → StateRunning            [Run()]
//	StateRunning → StateSleeping         [poll() via CAS]
//	StateSleeping → StateRunning         [poll() wake via CAS]
//	StateRunning → StateTerminating      [Shutdown()]
//	StateSleeping → StateTerminating     [Shutdown()]
//	StateTerminating → StateTerminated   [shutdown complete]
//
// Temporary states (Running, Sleeping) must only be entered via CAS.
type LoopState uint32

const (
	// StateAwake indicates the loop has been created but not started.
	StateAwake LoopState = iota
	// StateRunning indicates the loop is actively processing work.
	StateRunning
	// StateSleeping indicates the loop is blocked in poll waiting for work.
	StateSleeping
	// StateTerminating indicates shutdown has been requested but not completed.
	StateTerminating
	// StateTerminated indicates the loop has been stopped and is fully shut down.
	StateTerminated
)

// String returns a human-readable representation of the state.
func (s LoopState) String() string {
	switch s {
	case StateAwake:
		return "Awake"
	case StateRunning:
		return "Running"
	case StateSleeping:
		return "Sleeping"
	case StateTerminating:
		return "Terminating"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// fastState is a lock-free state machine with cache-line padding.
type fastState struct { // betteralign:ignore
	_ [64]byte //nolint:unused
	v atomic.Uint32
	_ [60]byte //nolint:unused
}

func (s *fastState) Load() LoopState { return LoopState(s.v.Load()) }

// Store is only valid for irreversible states (Terminated).
func (s *fastState) Store(state LoopState) { s.v.Store(uint32(state)) }

func (s *fastState) TryTransition(from, to LoopState) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}
