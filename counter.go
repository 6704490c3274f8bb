// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package renderloop

import (
	"sync/atomic"
)

// maxUpdateRequests bounds updateRequestCount.
const maxUpdateRequests = 2

// saturatingCounter is an atomic counter clamped to [0, limit].
type saturatingCounter struct {
	v     atomic.Int32
	limit int32
}

// inc increments unless already at the limit.
func (c *saturatingCounter) inc() {
	for {
		v := c.v.Load()
		if v >= c.limit || c.v.CompareAndSwap(v, v+1) {
			return
		}
	}
}

// dec decrements unless already zero, returning the new value.
func (c *saturatingCounter) dec() int32 {
	for {
		v := c.v.Load()
		if v <= 0 {
			return 0
		}
		if c.v.CompareAndSwap(v, v-1) {
			return v - 1
		}
	}
}

func (c *saturatingCounter) load() int32 { return c.v.Load() }
