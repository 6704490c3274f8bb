// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package mainloop provides the event thread: a single goroutine, locked to
// an OS thread, that runs submitted callbacks, coalesced trigger callbacks,
// timers, and per-iteration processor hooks.
//
// Other goroutines hand work to the event thread through [Loop.Submit] or a
// [TriggerEvent]. Triggers are the cross-thread notification primitive used by
// the render thread (sleep requests, core event notification) and by the
// async task manager (completed work). Any number of Trigger calls made before
// the event thread gets around to a trigger result in a single callback.
//
// # Lifecycle
//
//	loop, err := mainloop.New(mainloop.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	go loop.Run(ctx)
//	defer loop.Shutdown(context.Background())
//
// The loop sleeps in poll(2) on an eventfd (linux) or self-pipe (darwin)
// whenever it has nothing to do, bounded by the next timer.
package mainloop
