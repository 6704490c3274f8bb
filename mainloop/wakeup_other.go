// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build !linux && !darwin

package mainloop

import (
	"time"
)

// waker falls back to a buffered channel on platforms without the
// eventfd/self-pipe implementations.
type waker struct {
	ch chan struct{}
}

func newWaker() (*waker, error) {
	return &waker{ch: make(chan struct{}, 1)}, nil
}

func (w *waker) wait(timeoutMs int) error {
	if timeoutMs < 0 {
		<-w.ch
		return nil
	}
	t := time.NewTimer(time.Duration(timeoutMs) * time.Millisecond)
	defer t.Stop()
	select {
	case <-w.ch:
	case <-t.C:
	}
	return nil
}

func (w *waker) signal() error {
	select {
	case w.ch <- struct{}{}:
	default:
	}
	return nil
}

func (w *waker) drain() {
	select {
	case <-w.ch:
	default:
	}
}

func (w *waker) close() {}
