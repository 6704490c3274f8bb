// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package asynctask_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/joeycumines/go-renderloop/asynctask"
	"github.com/joeycumines/go-renderloop/mainloop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnv(string) (string, bool) { return ``, false }

func TestManager_withLoop(t *testing.T) {
	loop, err := mainloop.New()
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = loop.Run(ctx) }()
	defer loop.Shutdown(context.Background())

	m, err := asynctask.New(
		asynctask.WithLookupEnv(noEnv),
		asynctask.WithLoop(loop),
		asynctask.WithThreadPoolSize(4),
		asynctask.WithLowPriorityThreadPoolSize(2),
	)
	require.NoError(t, err)
	defer m.Close()

	const n = 64
	var (
		mainCalls   atomic.Int32
		workerCalls atomic.Int32
		offLoop     atomic.Int32
		concurrent  atomic.Int32
		maxLow      atomic.Int32
		wg          sync.WaitGroup
	)
	wg.Add(n)
	for i := range n {
		priority := asynctask.PriorityHigh
		if i%2 == 0 {
			priority = asynctask.PriorityLow
		}
		thread := asynctask.ThreadMain
		if i%3 == 0 {
			thread = asynctask.ThreadWorker
		}
		task := asynctask.NewFuncTask(
			func() {
				if priority != asynctask.PriorityLow {
					time.Sleep(time.Millisecond)
					return
				}
				c := concurrent.Add(1)
				for {
					old := maxLow.Load()
					if c <= old || maxLow.CompareAndSwap(old, c) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				concurrent.Add(-1)
			},
			func(asynctask.Task) {
				defer wg.Done()
				if thread == asynctask.ThreadWorker {
					workerCalls.Add(1)
					return
				}
				mainCalls.Add(1)
				if !loop.IsLoopThread() {
					offLoop.Add(1)
				}
			},
			asynctask.WithPriority(priority),
			asynctask.WithCallbackThread(thread),
		)
		m.AddTask(task)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatalf("timed out: main=%d worker=%d stats=%+v", mainCalls.Load(), workerCalls.Load(), m.Stats())
	}

	assert.Equal(t, int32(n), mainCalls.Load()+workerCalls.Load())
	assert.Zero(t, offLoop.Load(), `main thread callbacks must run on the loop`)
	assert.LessOrEqual(t, maxLow.Load(), int32(2))

	// the manager unregisters once everything has been drained
	deadline := time.Now().Add(5 * time.Second)
	for {
		if pre, _ := loop.ProcessorCount(); pre == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("processor still registered: %+v", m.Stats())
		}
		require.NoError(t, loop.Wake())
		time.Sleep(time.Millisecond)
	}
}

func TestManager_completedCallbackWithLoop(t *testing.T) {
	loop, err := mainloop.New()
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = loop.Run(ctx) }()
	defer loop.Shutdown(context.Background())

	m, err := asynctask.New(asynctask.WithLookupEnv(noEnv), asynctask.WithLoop(loop))
	require.NoError(t, err)
	defer m.Close()

	release := make(chan struct{})
	fired := make(chan asynctask.TasksCompletedID, 1)
	ids := make(chan asynctask.TasksCompletedID, 1)

	require.NoError(t, loop.Submit(func() {
		for range 5 {
			m.AddTask(asynctask.NewFuncTask(func() { <-release }, nil, asynctask.WithCallbackThread(asynctask.ThreadWorker)))
		}
		ids <- m.SetCompletedCallback(func(id asynctask.TasksCompletedID) {
			assert.True(t, loop.IsLoopThread())
			fired <- id
		}, asynctask.MaskAll)
	}))

	id := <-ids
	select {
	case <-fired:
		t.Fatal("fired early")
	case <-time.After(20 * time.Millisecond):
	}
	close(release)

	select {
	case got := <-fired:
		assert.Equal(t, id, got)
	case <-time.After(5 * time.Second):
		t.Fatal("aggregate callback never fired")
	}
}

func TestManager_panickingTaskDoesNotKillWorker(t *testing.T) {
	m, err := asynctask.New(asynctask.WithLookupEnv(noEnv), asynctask.WithThreadPoolSize(1))
	require.NoError(t, err)
	defer m.Close()

	done := make(chan struct{})
	m.AddTask(asynctask.NewFuncTask(func() { panic(`boom`) }, nil))
	m.AddTask(asynctask.NewFuncTask(nil, func(asynctask.Task) { close(done) }, asynctask.WithCallbackThread(asynctask.ThreadWorker)))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("second task never completed")
	}
}

type dispatchTask struct {
	asynctask.BaseTask
	inFlight  atomic.Int32
	overlaps  atomic.Int32
	processed atomic.Int32
	callbacks atomic.Int32
}

func (x *dispatchTask) Process() {
	if x.inFlight.Add(1) != 1 {
		x.overlaps.Add(1)
	}
	x.processed.Add(1)
	time.Sleep(50 * time.Microsecond)
	x.inFlight.Add(-1)
}

func TestManager_noDuplicateDispatch(t *testing.T) {
	m, err := asynctask.New(
		asynctask.WithLookupEnv(noEnv),
		asynctask.WithThreadPoolSize(8),
		asynctask.WithLowPriorityThreadPoolSize(4),
	)
	require.NoError(t, err)
	defer m.Close()

	const (
		taskCount = 200
		adders    = 4
	)
	tasks := make([]*dispatchTask, taskCount)
	for i := range tasks {
		x := new(dispatchTask)
		priority := asynctask.PriorityHigh
		if i%3 == 0 {
			priority = asynctask.PriorityLow
		}
		x.Init(func(asynctask.Task) { x.callbacks.Add(1) },
			asynctask.WithPriority(priority),
			asynctask.WithCallbackThread(asynctask.ThreadWorker))
		tasks[i] = x
	}

	var wg sync.WaitGroup
	for a := range adders {
		wg.Go(func() {
			for i, x := range tasks {
				m.AddTask(x)
				if (i+a)%7 == 0 {
					m.RemoveTask(x)
				}
			}
		})
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		m.TasksCompleted()
		stats := m.Stats()
		return stats.Waiting == 0 && stats.Running == 0 && stats.Completed == 0
	}, 10*time.Second, time.Millisecond)

	var processed int32
	for i, x := range tasks {
		assert.Zero(t, x.overlaps.Load(), i)
		assert.Zero(t, x.inFlight.Load(), i)
		assert.LessOrEqual(t, x.callbacks.Load(), x.processed.Load(), i)
		assert.LessOrEqual(t, x.processed.Load(), int32(adders), i)
		processed += x.processed.Load()
	}
	assert.NotZero(t, processed)
}
