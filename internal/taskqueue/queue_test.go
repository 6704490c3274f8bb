// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package taskqueue

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keys[K comparable, V any](q *Queue[K, V]) []K {
	var out []K
	q.Each(func(_ Handle, k K, _ V) bool {
		out = append(out, k)
		return true
	})
	return out
}

func TestQueue_orderAndRemove(t *testing.T) {
	q := New[string, int]()
	a := q.PushBack(`a`, 1)
	b := q.PushBack(`b`, 2)
	c := q.PushBack(`c`, 3)
	require.Equal(t, 3, q.Len())

	if diff := cmp.Diff([]string{`a`, `b`, `c`}, keys(q)); diff != `` {
		t.Fatalf("unexpected order (-want +got):\n%s", diff)
	}

	k, v, ok := q.Remove(b)
	require.True(t, ok)
	assert.Equal(t, `b`, k)
	assert.Equal(t, 2, v)

	_, _, ok = q.Remove(b)
	assert.False(t, ok, `stale handle must be rejected`)

	if diff := cmp.Diff([]string{`a`, `c`}, keys(q)); diff != `` {
		t.Fatalf("unexpected order (-want +got):\n%s", diff)
	}

	_, _, ok = q.Remove(a)
	require.True(t, ok)
	_, _, ok = q.Remove(c)
	require.True(t, ok)
	assert.Equal(t, 0, q.Len())
	_, ok = q.Front()
	assert.False(t, ok)
}

func TestQueue_slotReuseBumpsGeneration(t *testing.T) {
	q := New[int, struct{}]()
	h1 := q.PushBack(1, struct{}{})
	_, _, ok := q.Remove(h1)
	require.True(t, ok)

	h2 := q.PushBack(2, struct{}{})
	assert.Equal(t, h1.index, h2.index)
	assert.NotEqual(t, h1.generation, h2.generation)

	_, _, ok = q.Get(h1)
	assert.False(t, ok)
	k, _, ok := q.Get(h2)
	require.True(t, ok)
	assert.Equal(t, 2, k)
}

func TestQueue_multiplicity(t *testing.T) {
	q := New[string, int]()
	q.PushBack(`x`, 1)
	q.PushBack(`y`, 2)
	q.PushBack(`x`, 3)
	q.PushBack(`x`, 4)

	assert.Equal(t, 3, q.Count(`x`))
	assert.Equal(t, 1, q.Count(`y`))
	assert.Equal(t, 0, q.Count(`z`))

	values := q.RemoveKey(`x`)
	assert.Equal(t, []int{1, 3, 4}, values)
	assert.Equal(t, 0, q.Count(`x`))
	assert.Equal(t, 1, q.Len())
	assert.Nil(t, q.RemoveKey(`x`))
}

func TestQueue_setAndPopFront(t *testing.T) {
	q := New[string, int]()
	h := q.PushBack(`a`, 1)
	q.PushBack(`b`, 2)
	require.True(t, q.Set(h, 10))

	k, v, ok := q.PopFront()
	require.True(t, ok)
	assert.Equal(t, `a`, k)
	assert.Equal(t, 10, v)
	assert.False(t, q.Set(h, 11))

	k, v, ok = q.PopFront()
	require.True(t, ok)
	assert.Equal(t, `b`, k)
	assert.Equal(t, 2, v)

	_, _, ok = q.PopFront()
	assert.False(t, ok)
}

func TestQueue_next(t *testing.T) {
	q := New[int, int]()
	for i := range 5 {
		q.PushBack(i, i*i)
	}
	var got []int
	for h, ok := q.Front(); ok; h, ok = q.Next(h) {
		_, v, _ := q.Get(h)
		got = append(got, v)
	}
	assert.Equal(t, []int{0, 1, 4, 9, 16}, got)
}

func TestQueue_zeroHandle(t *testing.T) {
	q := New[int, int]()
	q.PushBack(1, 1)
	var h Handle
	assert.False(t, h.Valid())
	_, _, ok := q.Get(h)
	assert.False(t, ok)
}
