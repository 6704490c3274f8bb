// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package asynctask

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/go-renderloop/internal/taskqueue"
	"github.com/joeycumines/logiface"
	"golang.org/x/sync/errgroup"
)

// forceTriggerThreshold is the completed queue length at which the event
// thread is woken even if no callback is owed, so skipped tasks get released.
const forceTriggerThreshold = 128

type runningState uint8

const (
	taskRunning runningState = iota
	taskCanceled
	// worker thread callback already invoked
	taskCallbackDone
)

type completedState uint8

const (
	callbackRequired completedState = iota
	callbackSkipped
)

// Manager schedules tasks onto the worker pool.
//
// AddTask, NotifyToTaskReady and RemoveTask may be called from any
// goroutine. TasksCompleted, Process, SetCompletedCallback and
// RemoveCompletedCallback must be called from the event thread.
type Manager struct {
	// Prevent copying
	_ [0]func()

	logger   *logiface.Logger[logiface.Event]
	limiter  *catrate.Limiter
	trigger  Trigger
	registry ProcessorRegistry
	traces   *completedTraces

	workers     []*worker
	workerGroup errgroup.Group
	nextWorker  atomic.Uint32

	// guards waiting, notReady, waitingHighCount
	waitingMu        sync.Mutex
	waiting          *taskqueue.Queue[Task, struct{}]
	notReady         *taskqueue.Queue[Task, struct{}]
	waitingHighCount int

	// guards running, availableLowCount
	runningMu         sync.Mutex
	running           *taskqueue.Queue[Task, runningState]
	availableLowCount int

	completedMu sync.Mutex
	completed   *taskqueue.Queue[Task, completedState]

	processorMu         sync.Mutex
	processorRegistered bool

	closeOnce sync.Once
	closed    atomic.Bool
}

// New creates a Manager. The pool size is read from the environment unless
// set by option. Worker goroutines start lazily.
func New(opts ...Option) (*Manager, error) {
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		logger:            cfg.logger,
		limiter:           catrate.NewLimiter(map[time.Duration]int{time.Second: 1, time.Minute: 10}),
		registry:          cfg.registry,
		traces:            newCompletedTraces(),
		waiting:           taskqueue.New[Task, struct{}](),
		notReady:          taskqueue.New[Task, struct{}](),
		running:           taskqueue.New[Task, runningState](),
		completed:         taskqueue.New[Task, completedState](),
		availableLowCount: cfg.lowThreads,
	}

	if cfg.triggerFactory != nil {
		m.trigger = cfg.triggerFactory(m.TasksCompleted)
	}
	if m.trigger == nil {
		m.trigger = noopTrigger{}
	}

	m.workers = make([]*worker, cfg.threads)
	for i := range m.workers {
		m.workers[i] = newWorker(m)
	}

	m.logger.Debug().
		Int(`threads`, cfg.threads).
		Int(`low_priority_threads`, cfg.lowThreads).
		Log(`asynctask: manager created`)

	return m, nil
}

type noopTrigger struct{}

func (noopTrigger) Trigger() {}

// ThreadPoolSize returns the number of workers.
func (m *Manager) ThreadPoolSize() int { return len(m.workers) }

// AddTask queues a task. Ready tasks join the waiting queue and wake a
// worker, unless every worker is already busy; tasks that are not ready are
// parked until NotifyToTaskReady.
func (m *Manager) AddTask(task Task) {
	if task == nil {
		return
	}
	if m.closed.Load() {
		m.logger.Warning().Log(`asynctask: task added after close, dropped`)
		return
	}

	ready := task.IsReady()

	m.waitingMu.Lock()
	if ready {
		m.waiting.PushBack(task, struct{}{})
		if task.Priority() == PriorityHigh {
			m.waitingHighCount++
		}
	} else {
		m.notReady.PushBack(task, struct{}{})
	}
	m.runningMu.Lock()
	allBusy := m.running.Len() >= len(m.workers)
	m.runningMu.Unlock()
	m.waitingMu.Unlock()

	// after the push, see unregisterProcessorIfIdle
	m.registerProcessor()

	if ready && !allBusy {
		m.requestWorker()
	}
}

// NotifyToTaskReady moves every parked occurrence of task to the waiting
// queue and wakes a worker. Call it after the task's IsReady turns true.
func (m *Manager) NotifyToTaskReady(task Task) {
	if task == nil {
		return
	}

	m.waitingMu.Lock()
	var moved int
	for _, h := range m.notReady.Handles(task) {
		if _, _, ok := m.notReady.Remove(h); ok {
			m.waiting.PushBack(task, struct{}{})
			if task.Priority() == PriorityHigh {
				m.waitingHighCount++
			}
			moved++
		}
	}
	m.runningMu.Lock()
	allBusy := m.running.Len() >= len(m.workers)
	m.runningMu.Unlock()
	m.waitingMu.Unlock()

	if moved != 0 && !allBusy {
		m.requestWorker()
	}
}

// RemoveTask cancels every occurrence of task. Waiting and parked
// occurrences are dropped, running occurrences are marked canceled so their
// callbacks never run, and completed occurrences no longer owe a callback.
// Any aggregate trace referencing the task no longer waits on it.
func (m *Manager) RemoveTask(task Task) {
	if task == nil {
		return
	}

	m.waitingMu.Lock()
	if removed := len(m.waiting.RemoveKey(task)); removed != 0 && task.Priority() == PriorityHigh {
		m.waitingHighCount -= removed
	}
	m.notReady.RemoveKey(task)

	m.runningMu.Lock()
	for _, h := range m.running.Handles(task) {
		m.running.Set(h, taskCanceled)
	}

	m.completedMu.Lock()
	for _, h := range m.completed.Handles(task) {
		m.completed.Set(h, callbackSkipped)
	}
	m.completedMu.Unlock()
	m.runningMu.Unlock()
	m.waitingMu.Unlock()

	if m.traces.removeTaskTrace(task, true) {
		m.trigger.Trigger()
	}

	m.unregisterProcessorIfIdle()
}

// requestWorker wakes one idle worker, round robin.
func (m *Manager) requestWorker() {
	n := uint32(len(m.workers))
	start := m.nextWorker.Add(1)
	for i := range n {
		if m.workers[(start+i)%n].request() {
			return
		}
	}
}

// popNextTaskToProcess is called by workers. It returns the oldest waiting
// task the caller may run, moving it to the running queue, or nil.
func (m *Manager) popNextTaskToProcess() Task {
	m.waitingMu.Lock()
	defer m.waitingMu.Unlock()

	if m.waiting.Len() == 0 {
		return nil
	}

	m.runningMu.Lock()
	defer m.runningMu.Unlock()

	if m.waitingHighCount == 0 && m.availableLowCount == 0 {
		// only low priority work is waiting, and every low slot is taken
		return nil
	}

	var (
		picked taskqueue.Handle
		found  bool
	)
	m.waiting.Each(func(h taskqueue.Handle, task Task, _ struct{}) bool {
		if !task.IsReady() {
			return true
		}
		if task.Priority() == PriorityLow && m.availableLowCount == 0 {
			return true
		}
		if m.running.Count(task) != 0 {
			// never run the same task on two workers at once
			return true
		}
		picked, found = h, true
		return false
	})
	if !found {
		return nil
	}

	task, _, _ := m.waiting.Remove(picked)
	m.running.PushBack(task, taskRunning)
	if task.Priority() == PriorityHigh {
		m.waitingHighCount--
	} else {
		m.availableLowCount--
	}
	return task
}

// process runs task.Process, containing any panic to the task.
func (m *Manager) process(task Task) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Err().
				Str(`panic`, fmt.Sprint(r)).
				Str(`priority`, task.Priority().String()).
				Log(`asynctask: task panicked`)
		}
	}()
	task.Process()
}

func (m *Manager) invokeCallback(task Task) {
	callback := task.CompletedCallback()
	if callback == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			m.logger.Err().
				Str(`panic`, fmt.Sprint(r)).
				Log(`asynctask: completed callback panicked`)
		}
	}()
	callback(task)
}

// completeTask is called by workers after processing. It runs worker
// thread callbacks, then moves the task from running to completed.
func (m *Manager) completeTask(task Task) {
	var needTrigger bool

	if task.CallbackInvocationThread() == ThreadWorker {
		// marked done before the callback, so SetCompletedCallback stops
		// tracing it while it is still in the running queue
		var stillRunning bool
		m.runningMu.Lock()
		for _, h := range m.running.Handles(task) {
			if _, state, ok := m.running.Get(h); ok && state == taskRunning {
				m.running.Set(h, taskCallbackDone)
				stillRunning = true
				break
			}
		}
		m.runningMu.Unlock()

		if stillRunning {
			m.invokeCallback(task)
			if m.traces.hasTraces() && m.traces.removeTaskTrace(task, false) {
				needTrigger = true
			}
		}
	}

	var forced bool
	m.runningMu.Lock()
	if hs := m.running.Handles(task); len(hs) != 0 {
		_, state, _ := m.running.Remove(hs[0])
		if task.Priority() == PriorityLow {
			m.availableLowCount++
		}

		completed := callbackSkipped
		if state == taskRunning && task.CallbackInvocationThread() == ThreadMain {
			completed = callbackRequired
			needTrigger = true
		}

		m.completedMu.Lock()
		m.completed.PushBack(task, completed)
		if m.completed.Len() >= forceTriggerThreshold {
			needTrigger, forced = true, true
		}
		m.completedMu.Unlock()
	}
	m.runningMu.Unlock()

	if forced {
		if _, ok := m.limiter.Allow(`force_trigger`); ok {
			m.logger.Warning().
				Int(`threshold`, forceTriggerThreshold).
				Log(`asynctask: completed queue backlog, forcing event thread wake`)
		}
	}

	if needTrigger {
		m.trigger.Trigger()
	}
}

// TasksCompleted drains the completed queue, running callbacks owed to the
// event thread, then fires any aggregate callbacks that became due. Must be
// called on the event thread.
func (m *Manager) TasksCompleted() {
	for {
		m.completedMu.Lock()
		task, state, ok := m.completed.PopFront()
		m.completedMu.Unlock()
		if !ok {
			break
		}
		if state == callbackRequired {
			m.invokeCallback(task)
			if m.traces.hasTraces() {
				m.traces.removeTaskTrace(task, false)
			}
		}
	}

	m.emitCompletedCallbacks()
	m.unregisterProcessorIfIdle()
}

// Process implements mainloop.Processor.
func (m *Manager) Process(bool) {
	m.TasksCompleted()
}

func (m *Manager) emitCompletedCallbacks() {
	if !m.traces.hasOwed() {
		return
	}
	for _, p := range m.traces.takeOwed() {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Err().
						Str(`panic`, fmt.Sprint(r)).
						Int64(`id`, int64(p.id)).
						Log(`asynctask: tasks completed callback panicked`)
				}
			}()
			p.callback(p.id)
		}()
	}
}

// SetCompletedCallback registers callback to fire once every task that is
// currently queued, parked, running, or completed but still owed a
// callback, and matches mask, has finished or been removed. If nothing
// matches, callback fires before SetCompletedCallback returns.
func (m *Manager) SetCompletedCallback(callback TasksCompletedCallback, mask CompletedCallbackTraceMask) TasksCompletedID {
	if callback == nil {
		return 0
	}

	id := m.traces.begin(callback)

	m.waitingMu.Lock()
	m.runningMu.Lock()
	m.completedMu.Lock()
	addMatching := func(task Task) {
		if mask.Matches(task) {
			m.traces.add(id, task)
		}
	}
	m.waiting.Each(func(_ taskqueue.Handle, task Task, _ struct{}) bool {
		addMatching(task)
		return true
	})
	m.notReady.Each(func(_ taskqueue.Handle, task Task, _ struct{}) bool {
		addMatching(task)
		return true
	})
	m.running.Each(func(_ taskqueue.Handle, task Task, state runningState) bool {
		if state == taskRunning {
			addMatching(task)
		}
		return true
	})
	m.completed.Each(func(_ taskqueue.Handle, task Task, state completedState) bool {
		if state == callbackRequired {
			addMatching(task)
		}
		return true
	})
	m.completedMu.Unlock()
	m.runningMu.Unlock()
	m.waitingMu.Unlock()

	if m.traces.finish(id) {
		m.emitCompletedCallbacks()
	}
	return id
}

// RemoveCompletedCallback cancels a callback registered via
// SetCompletedCallback, returning false if it already fired or was removed.
func (m *Manager) RemoveCompletedCallback(id TasksCompletedID) bool {
	return m.traces.remove(id)
}

func (m *Manager) registerProcessor() {
	if m.registry == nil {
		return
	}
	m.processorMu.Lock()
	defer m.processorMu.Unlock()
	if !m.processorRegistered {
		m.registry.RegisterProcessor(m)
		m.processorRegistered = true
	}
}

// unregisterProcessorIfIdle unregisters once no queue holds any task.
func (m *Manager) unregisterProcessorIfIdle() {
	if m.registry == nil {
		return
	}
	m.processorMu.Lock()
	defer m.processorMu.Unlock()
	if !m.processorRegistered || !m.isIdle() {
		return
	}
	m.registry.UnregisterProcessor(m)
	m.processorRegistered = false
}

func (m *Manager) isIdle() bool {
	m.waitingMu.Lock()
	defer m.waitingMu.Unlock()
	m.runningMu.Lock()
	defer m.runningMu.Unlock()
	m.completedMu.Lock()
	defer m.completedMu.Unlock()
	return m.waiting.Len() == 0 &&
		m.notReady.Len() == 0 &&
		m.running.Len() == 0 &&
		m.completed.Len() == 0
}

// Stats is a snapshot of the queue lengths.
type Stats struct {
	Waiting              int
	NotReady             int
	Running              int
	Completed            int
	WaitingHighPriority  int
	AvailableLowPriority int
}

// Stats returns a snapshot of the queue lengths.
func (m *Manager) Stats() Stats {
	m.waitingMu.Lock()
	defer m.waitingMu.Unlock()
	m.runningMu.Lock()
	defer m.runningMu.Unlock()
	m.completedMu.Lock()
	defer m.completedMu.Unlock()
	return Stats{
		Waiting:              m.waiting.Len(),
		NotReady:             m.notReady.Len(),
		Running:              m.running.Len(),
		Completed:            m.completed.Len(),
		WaitingHighPriority:  m.waitingHighCount,
		AvailableLowPriority: m.availableLowCount,
	}
}

// Close stops every worker after its current task and waits for them to
// exit. Queued tasks are dropped without callbacks.
func (m *Manager) Close() error {
	var err error
	m.closeOnce.Do(func() {
		m.closed.Store(true)
		for _, w := range m.workers {
			w.stop()
		}
		err = m.workerGroup.Wait()

		if m.registry != nil {
			m.processorMu.Lock()
			if m.processorRegistered {
				m.registry.UnregisterProcessor(m)
				m.processorRegistered = false
			}
			m.processorMu.Unlock()
		}

		m.logger.Debug().Log(`asynctask: manager closed`)
	})
	return err
}
