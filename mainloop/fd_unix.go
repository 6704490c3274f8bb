// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build linux || darwin

package mainloop

import (
	"errors"
	"unsafe"

	"golang.org/x/sys/unix"
)

// waker is the fd pair the loop blocks on while sleeping.
type waker struct {
	readFd  int
	writeFd int
	buf     [8]byte
}

// wait blocks until the read end is readable or timeoutMs elapses.
// A negative timeout blocks indefinitely.
func (w *waker) wait(timeoutMs int) error {
	fds := [1]unix.PollFd{{Fd: int32(w.readFd), Events: unix.POLLIN}}
	_, err := unix.Poll(fds[:], timeoutMs)
	if errors.Is(err, unix.EINTR) {
		return nil
	}
	return err
}

// signal makes the read end readable.
func (w *waker) signal() error {
	// native endianness, the value is only ever compared against zero
	var one uint64 = 1
	buf := (*[8]byte)(unsafe.Pointer(&one))[:]
	_, err := unix.Write(w.writeFd, buf)
	if errors.Is(err, unix.EAGAIN) {
		// counter or pipe already full, the reader is guaranteed to wake
		return nil
	}
	return err
}

// drain consumes any pending wake-ups.
func (w *waker) drain() {
	for {
		if _, err := unix.Read(w.readFd, w.buf[:]); err != nil {
			return
		}
	}
}

func (w *waker) close() {
	_ = unix.Close(w.readFd)
	if w.writeFd != w.readFd {
		_ = unix.Close(w.writeFd)
	}
}
