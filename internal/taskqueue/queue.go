// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package taskqueue implements an insertion-ordered queue backed by a
// generational slot arena.
//
// Every pushed entry is addressed by a Handle that stays valid until the entry
// is removed, at which point the slot's generation is bumped so stale handles
// are rejected. The queue also tracks which handles belong to each key, making
// "remove every occurrence of X" and "how many X are queued" cheap without any
// structure outside the queue that could drift out of sync.
//
// A Queue is not safe for concurrent use.
package taskqueue

// Handle addresses a single entry of a Queue.
// The zero value is never valid.
type Handle struct {
	index      uint32
	generation uint32
}

// Valid reports whether h was produced by a Queue (it may still be stale).
func (h Handle) Valid() bool { return h.generation != 0 }

const nilIndex = -1

type slot[K comparable, V any] struct {
	key        K
	value      V
	prev       int32
	next       int32
	generation uint32
	used       bool
}

// Queue is an ordered multiset of key/value entries.
type Queue[K comparable, V any] struct {
	slots []slot[K, V]
	free  []int32
	byKey map[K][]Handle
	head  int32
	tail  int32
	len   int
}

// New allocates an empty Queue.
func New[K comparable, V any]() *Queue[K, V] {
	return &Queue[K, V]{
		byKey: make(map[K][]Handle),
		head:  nilIndex,
		tail:  nilIndex,
	}
}

// Len returns the number of entries.
func (q *Queue[K, V]) Len() int { return q.len }

// Count returns the number of entries with the given key.
func (q *Queue[K, V]) Count(key K) int { return len(q.byKey[key]) }

// Handles returns the handles of every entry with the given key, oldest
// first. The returned slice is a copy.
func (q *Queue[K, V]) Handles(key K) []Handle {
	hs := q.byKey[key]
	if len(hs) == 0 {
		return nil
	}
	return append([]Handle(nil), hs...)
}

// PushBack appends an entry and returns its handle.
func (q *Queue[K, V]) PushBack(key K, value V) Handle {
	var idx int32
	if n := len(q.free); n != 0 {
		idx = q.free[n-1]
		q.free = q.free[:n-1]
	} else {
		q.slots = append(q.slots, slot[K, V]{})
		idx = int32(len(q.slots) - 1)
	}

	s := &q.slots[idx]
	s.generation++
	if s.generation == 0 {
		// skip the invalid generation on wraparound
		s.generation = 1
	}
	s.key = key
	s.value = value
	s.used = true
	s.next = nilIndex
	s.prev = q.tail

	if q.tail != nilIndex {
		q.slots[q.tail].next = idx
	} else {
		q.head = idx
	}
	q.tail = idx
	q.len++

	h := Handle{index: uint32(idx), generation: s.generation}
	q.byKey[key] = append(q.byKey[key], h)
	return h
}

func (q *Queue[K, V]) lookup(h Handle) *slot[K, V] {
	if !h.Valid() || int(h.index) >= len(q.slots) {
		return nil
	}
	s := &q.slots[h.index]
	if !s.used || s.generation != h.generation {
		return nil
	}
	return s
}

// Get returns the entry addressed by h.
func (q *Queue[K, V]) Get(h Handle) (key K, value V, ok bool) {
	if s := q.lookup(h); s != nil {
		return s.key, s.value, true
	}
	return
}

// Set replaces the value of the entry addressed by h, returning false if h
// is stale.
func (q *Queue[K, V]) Set(h Handle, value V) bool {
	s := q.lookup(h)
	if s == nil {
		return false
	}
	s.value = value
	return true
}

// Remove unlinks the entry addressed by h in constant time (plus the number
// of entries sharing its key).
func (q *Queue[K, V]) Remove(h Handle) (key K, value V, ok bool) {
	s := q.lookup(h)
	if s == nil {
		return
	}
	key, value, ok = s.key, s.value, true

	if s.prev != nilIndex {
		q.slots[s.prev].next = s.next
	} else {
		q.head = s.next
	}
	if s.next != nilIndex {
		q.slots[s.next].prev = s.prev
	} else {
		q.tail = s.prev
	}

	var zeroK K
	var zeroV V
	s.key = zeroK
	s.value = zeroV
	s.used = false
	s.prev = nilIndex
	s.next = nilIndex
	q.free = append(q.free, int32(h.index))
	q.len--

	hs := q.byKey[key]
	for i, other := range hs {
		if other == h {
			hs = append(hs[:i], hs[i+1:]...)
			break
		}
	}
	if len(hs) == 0 {
		delete(q.byKey, key)
	} else {
		q.byKey[key] = hs
	}
	return
}

// RemoveKey removes every entry with the given key, returning their values
// in queue order.
func (q *Queue[K, V]) RemoveKey(key K) []V {
	hs := q.Handles(key)
	if len(hs) == 0 {
		return nil
	}
	values := make([]V, 0, len(hs))
	for _, h := range hs {
		if _, v, ok := q.Remove(h); ok {
			values = append(values, v)
		}
	}
	return values
}

// Front returns the handle of the oldest entry.
func (q *Queue[K, V]) Front() (Handle, bool) {
	if q.head == nilIndex {
		return Handle{}, false
	}
	return Handle{index: uint32(q.head), generation: q.slots[q.head].generation}, true
}

// PopFront removes and returns the oldest entry.
func (q *Queue[K, V]) PopFront() (key K, value V, ok bool) {
	h, exists := q.Front()
	if !exists {
		return
	}
	return q.Remove(h)
}

// Next returns the handle following h, in queue order.
func (q *Queue[K, V]) Next(h Handle) (Handle, bool) {
	s := q.lookup(h)
	if s == nil || s.next == nilIndex {
		return Handle{}, false
	}
	return Handle{index: uint32(s.next), generation: q.slots[s.next].generation}, true
}

// Each calls fn for every entry in queue order until fn returns false.
// fn must not mutate the queue, except to call Set on the handle it was given.
func (q *Queue[K, V]) Each(fn func(h Handle, key K, value V) bool) {
	for i := q.head; i != nilIndex; {
		s := &q.slots[i]
		next := s.next
		if !fn(Handle{index: uint32(i), generation: s.generation}, s.key, s.value) {
			return
		}
		i = next
	}
}
