// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package mainloop

import (
	"container/heap"
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/logiface"
)

// Loop is the event thread.
type Loop struct { // betteralign:ignore
	// Prevent copying
	_ [0]func()

	logger *logiface.Logger[logiface.Event]

	state *fastState
	waker *waker

	// guards tasks, triggered, processors, postProcessors
	mu             sync.Mutex
	tasks          []func()
	tasksBuf       []func()
	triggered      []*TriggerEvent
	triggeredBuf   []*TriggerEvent
	processors     []Processor
	postProcessors []Processor

	// loop goroutine only
	timers    timerHeap
	tickCount uint64

	wakePending     atomic.Uint32
	loopGoroutineID atomic.Uint64

	stopOnce sync.Once
	loopDone chan struct{}
}

// New creates a new event loop.
func New(opts ...LoopOption) (*Loop, error) {
	cfg, err := resolveLoopOptions(opts)
	if err != nil {
		return nil, err
	}

	w, err := newWaker()
	if err != nil {
		return nil, err
	}

	return &Loop{
		logger:   cfg.logger,
		state:    new(fastState),
		waker:    w,
		loopDone: make(chan struct{}),
	}, nil
}

// Run runs the event loop on the calling goroutine and blocks until it is
// fully stopped, via Shutdown, Close, or ctx cancellation.
func (l *Loop) Run(ctx context.Context) error {
	if l.isLoopThread() {
		return ErrReentrantRun
	}

	if !l.state.TryTransition(StateAwake, StateRunning) {
		if l.state.Load() == StateTerminated {
			return ErrLoopTerminated
		}
		return ErrLoopAlreadyRunning
	}

	defer close(l.loopDone)

	return l.run(ctx)
}

// Shutdown gracefully shuts down the event loop, running any already
// submitted work, and blocks until termination completes or ctx expires.
func (l *Loop) Shutdown(ctx context.Context) error {
	var result error
	l.stopOnce.Do(func() {
		result = l.shutdownImpl(ctx)
	})
	if result == nil && l.state.Load() != StateTerminated {
		return ErrLoopTerminated
	}
	return result
}

func (l *Loop) shutdownImpl(ctx context.Context) error {
	for {
		currentState := l.state.Load()
		if currentState == StateTerminated || currentState == StateTerminating {
			return ErrLoopTerminated
		}

		if l.state.TryTransition(currentState, StateTerminating) {
			if currentState == StateAwake {
				l.state.Store(StateTerminated)
				l.waker.close()
				return nil
			}
			if currentState == StateSleeping {
				_ = l.submitWakeup()
			}
			break
		}
	}

	select {
	case <-l.loopDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close terminates the event loop without waiting for it to stop.
func (l *Loop) Close() error {
	for {
		currentState := l.state.Load()
		if currentState == StateTerminated {
			return ErrLoopTerminated
		}
		if l.state.TryTransition(currentState, StateTerminating) {
			if currentState == StateAwake {
				l.state.Store(StateTerminated)
				l.waker.close()
				return nil
			}
			if currentState == StateSleeping {
				_ = l.submitWakeup()
			}
			return nil
		}
	}
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} { return l.loopDone }

// State returns the current state of the loop.
func (l *Loop) State() LoopState { return l.state.Load() }

// run is the main loop goroutine.
func (l *Loop) run(ctx context.Context) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	l.loopGoroutineID.Store(getGoroutineID())
	defer l.loopGoroutineID.Store(0)

	ctxDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = l.submitWakeup()
		case <-ctxDone:
		}
	}()
	defer close(ctxDone)

	for {
		select {
		case <-ctx.Done():
			for {
				current := l.state.Load()
				if current == StateTerminating || current == StateTerminated {
					break
				}
				if l.state.TryTransition(current, StateTerminating) {
					break
				}
			}
			l.shutdown()
			return ctx.Err()
		default:
		}

		if s := l.state.Load(); s == StateTerminating || s == StateTerminated {
			l.shutdown()
			return nil
		}

		l.tick()
	}
}

// shutdown drains submitted work, then releases the wake fds.
func (l *Loop) shutdown() {
	for l.processQueues() {
	}
	l.state.Store(StateTerminated)
	// catch anything that raced the state change
	l.processQueues()
	l.waker.close()
	l.logger.Debug().Uint64(`ticks`, l.tickCount).Log(`mainloop: terminated`)
}

// tick is a single iteration of the event loop.
func (l *Loop) tick() {
	l.tickCount++
	l.runTimers()
	l.processQueues()
	l.runProcessors(false)
	l.runProcessors(true)
	l.poll()
}

// processQueues runs every submitted task and fired trigger, returning true
// if anything ran.
func (l *Loop) processQueues() bool {
	l.mu.Lock()
	tasks := l.tasks
	l.tasks = l.tasksBuf[:0]
	l.tasksBuf = nil
	triggered := l.triggered
	l.triggered = l.triggeredBuf[:0]
	l.triggeredBuf = nil
	l.mu.Unlock()

	for i, fn := range tasks {
		l.safeExecute(fn)
		tasks[i] = nil
	}
	for i, t := range triggered {
		t.fire()
		triggered[i] = nil
	}

	l.mu.Lock()
	if l.tasksBuf == nil {
		l.tasksBuf = tasks[:0]
	}
	if l.triggeredBuf == nil {
		l.triggeredBuf = triggered[:0]
	}
	l.mu.Unlock()

	return len(tasks) != 0 || len(triggered) != 0
}

func (l *Loop) hasPendingWork() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.tasks) != 0 || len(l.triggered) != 0
}

// poll performs the blocking wait for more work.
func (l *Loop) poll() {
	if l.state.Load() != StateRunning {
		return
	}

	if !l.state.TryTransition(StateRunning, StateSleeping) {
		return
	}

	if l.hasPendingWork() {
		l.state.TryTransition(StateSleeping, StateRunning)
		return
	}

	if err := l.waker.wait(l.calculateTimeout()); err != nil {
		l.logCritical(`mainloop: poll failed, terminating loop`, err)
		l.state.TryTransition(StateSleeping, StateTerminating)
		return
	}
	l.waker.drain()
	l.wakePending.Store(0)

	l.state.TryTransition(StateSleeping, StateRunning)
}

// calculateTimeout determines how long to block in poll, in milliseconds.
func (l *Loop) calculateTimeout() int {
	maxDelay := 10 * time.Second

	if len(l.timers) != 0 {
		delay := time.Until(l.timers[0].when)
		if delay < 0 {
			delay = 0
		}
		if delay < maxDelay {
			maxDelay = delay
		}
	}

	// ceiling rounding, so timers never fire early
	if maxDelay > 0 && maxDelay < time.Millisecond {
		return 1
	}
	return int((maxDelay + time.Millisecond - 1) / time.Millisecond)
}

// submitWakeup wakes the loop if it is, or is about to be, sleeping.
// Concurrent callers are deduplicated until the loop drains the wake fd.
func (l *Loop) submitWakeup() error {
	if l.state.Load() == StateTerminated {
		return ErrLoopTerminated
	}
	if !l.wakePending.CompareAndSwap(0, 1) {
		return nil
	}
	return l.waker.signal()
}

// Wake forces the loop to run an iteration, which runs every registered
// processor.
func (l *Loop) Wake() error {
	return l.submitWakeup()
}

// Submit queues fn to run on the loop goroutine.
// Work may still be submitted while the loop is terminating.
func (l *Loop) Submit(fn func()) error {
	if fn == nil {
		return nil
	}
	if l.state.Load() == StateTerminated {
		return ErrLoopTerminated
	}
	l.mu.Lock()
	l.tasks = append(l.tasks, fn)
	l.mu.Unlock()
	_ = l.submitWakeup()
	return nil
}

// ScheduleTimer runs fn on the loop goroutine after delay.
func (l *Loop) ScheduleTimer(delay time.Duration, fn func()) error {
	when := time.Now().Add(delay)
	return l.Submit(func() {
		heap.Push(&l.timers, timer{when: when, fn: fn})
	})
}

// runTimers executes all expired timers.
func (l *Loop) runTimers() {
	now := time.Now()
	for len(l.timers) != 0 {
		if l.timers[0].when.After(now) {
			break
		}
		t := heap.Pop(&l.timers).(timer)
		l.safeExecute(t.fn)
	}
}

// safeExecute executes fn with panic recovery.
func (l *Loop) safeExecute(fn func()) {
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			l.logPanic(`mainloop: callback panicked`, r)
		}
	}()
	fn()
}

// IsLoopThread reports whether the caller is running on the loop goroutine.
func (l *Loop) IsLoopThread() bool { return l.isLoopThread() }

func (l *Loop) isLoopThread() bool {
	loopID := l.loopGoroutineID.Load()
	if loopID == 0 {
		return false
	}
	return getGoroutineID() == loopID
}

// getGoroutineID returns the current goroutine's ID.
func getGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}
