// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build linux

package mainloop

import (
	"golang.org/x/sys/unix"
)

// newWaker creates an eventfd for wake-up notifications (Linux).
// The single eventfd serves as both read and write end.
func newWaker() (*waker, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, err
	}
	return &waker{readFd: fd, writeFd: fd}, nil
}
