// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package renderloop implements the combined update/render scheduler of a
// scene-graph UI toolkit.
//
// A [Scheduler] owns one goroutine, locked to an OS thread, which alternates
// the Update and Render phases of a [SceneEngine] against a [GraphicsDevice]
// and one or more [RenderSurface] values. The event thread (the goroutine
// running the host's main loop, see the mainloop package) drives it:
//
//   - [Scheduler.Start], [Scheduler.Pause], [Scheduler.Resume] and
//     [Scheduler.Stop] move it through [StateReady], [StateRunning],
//     [StateSuspended] and [StateStopped].
//   - [Scheduler.RequestUpdate] and [Scheduler.RequestUpdateOnce] wake it when
//     the scene changes. It goes back to sleep on its own once the engine
//     reports no further work and every outstanding request has been
//     accounted for.
//   - [Scheduler.ReplaceSurface] and [Scheduler.DeleteSurface] block until the
//     render goroutine has swapped or destroyed the surface.
//
// Frames are paced against a [frameclock.Clock]. When a frame overruns by more
// than one frame duration, the following frames are dropped and the next
// animation delta grows to catch up.
//
// Surfaces coordinate asynchronous presentation with the render goroutine
// through the [ThreadSynchronization] barrier the scheduler hands them.
package renderloop
