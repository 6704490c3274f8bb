// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package frameclock derives the per-frame timing constants used by the
// update/render scheduler from a refresh-rate divisor.
//
// A divisor of N means "one frame every N vsync periods", where the vsync
// period is fixed at 1/60th of a second. A divisor of 2 therefore targets
// 30 frames per second.
package frameclock

import (
	"math"
	"sync/atomic"
	"time"
)

const (
	// DefaultFrameDelta is the animation delta, in seconds, of one vsync period.
	DefaultFrameDelta float32 = 1.0 / 60.0

	// DefaultFrameDurationMs is the truncated millisecond duration of one vsync period.
	DefaultFrameDurationMs uint64 = 1000 / 60

	// DefaultFrameDurationNs is the truncated nanosecond duration of one vsync period.
	DefaultFrameDurationNs uint64 = 1_000_000_000 / 60
)

// Clock holds the derived frame timing for the current refresh-rate divisor.
//
// Readers on the render thread never lock. Configure may be called from
// another goroutine, in which case a frame in flight may observe a mix of old
// and new values; each individual value is always whole.
type Clock struct {
	divisor     atomic.Uint32
	frameDelta  atomic.Uint32 // math.Float32bits
	durationMs  atomic.Uint64
	durationNs  atomic.Uint64
	halfFrameNs atomic.Uint64
}

// New returns a Clock configured with a divisor of 1.
func New() *Clock {
	c := new(Clock)
	c.Configure(1)
	return c
}

// Configure recomputes every derived value for the given divisor. A divisor
// of zero is ignored.
func (c *Clock) Configure(divisor uint32) {
	if divisor == 0 {
		return
	}
	n := uint64(divisor)
	c.divisor.Store(divisor)
	c.frameDelta.Store(math.Float32bits(float32(divisor) * DefaultFrameDelta))
	c.durationMs.Store(n * DefaultFrameDurationMs)
	ns := n * DefaultFrameDurationNs
	c.durationNs.Store(ns)
	c.halfFrameNs.Store(ns / 2)
}

// Divisor returns the configured refresh-rate divisor.
func (c *Clock) Divisor() uint32 { return c.divisor.Load() }

// FrameDelta returns the animation delta of one frame, in seconds.
func (c *Clock) FrameDelta() float32 { return math.Float32frombits(c.frameDelta.Load()) }

// FrameDurationMs returns the duration of one frame in milliseconds.
func (c *Clock) FrameDurationMs() uint64 { return c.durationMs.Load() }

// FrameDurationNs returns the duration of one frame in nanoseconds.
func (c *Clock) FrameDurationNs() uint64 { return c.durationNs.Load() }

// HalfFrameNs returns half of FrameDurationNs.
func (c *Clock) HalfFrameNs() uint64 { return c.halfFrameNs.Load() }

// FrameDuration returns FrameDurationNs as a time.Duration.
func (c *Clock) FrameDuration() time.Duration { return time.Duration(c.durationNs.Load()) }

// SecondsToNanoseconds converts fractional seconds to whole nanoseconds.
func SecondsToNanoseconds(s float64) uint64 { return uint64(s * 1e9) }

// NanosecondsToSeconds converts nanoseconds to fractional seconds.
func NanosecondsToSeconds(ns uint64) float64 { return float64(ns) / 1e9 }

// NanosecondsToMilliseconds converts nanoseconds to whole milliseconds, truncating.
func NanosecondsToMilliseconds(ns uint64) uint64 { return ns / uint64(time.Millisecond) }

// MillisecondsToNanoseconds converts milliseconds to nanoseconds.
func MillisecondsToNanoseconds(ms uint64) uint64 { return ms * uint64(time.Millisecond) }
