// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package renderloop

import (
	"errors"
)

// Standard errors.
var (
	// ErrNilEngine is returned by New when the scene engine is nil.
	ErrNilEngine = errors.New("renderloop: nil scene engine")

	// ErrNilDevice is returned by New when the graphics device is nil.
	ErrNilDevice = errors.New("renderloop: nil graphics device")

	// ErrAlreadyInitialized is the panic value of a second Initialize call.
	ErrAlreadyInitialized = errors.New("renderloop: scheduler already initialized")

	// ErrNotInitialized is the panic value of Start before a successful Initialize.
	ErrNotInitialized = errors.New("renderloop: scheduler not initialized")

	// ErrAlreadyStarted is the panic value of a second Start call.
	ErrAlreadyStarted = errors.New("renderloop: scheduler already started")

	// ErrStopped is the panic value of Initialize after Stop, and the error
	// reported by WaitForGraphicsInitialization if Stop came first.
	ErrStopped = errors.New("renderloop: scheduler stopped")

	// ErrSurfaceRequestPending is the panic value of ReplaceSurface or
	// DeleteSurface while a request of the same kind is unacknowledged.
	ErrSurfaceRequestPending = errors.New("renderloop: surface request already pending")

	// ErrNilSurface is the panic value of ReplaceSurface or DeleteSurface
	// with a nil surface.
	ErrNilSurface = errors.New("renderloop: nil surface")

	// ErrInvalidRefreshRate is returned for a refresh rate divisor of zero.
	ErrInvalidRefreshRate = errors.New("renderloop: invalid refresh rate")
)
