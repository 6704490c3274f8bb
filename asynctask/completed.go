// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package asynctask

import (
	"sync"
)

// TasksCompletedID identifies a callback registered via SetCompletedCallback.
// Zero is never issued.
type TasksCompletedID uint32

// TasksCompletedCallback is invoked on the event thread once every traced
// task has completed or been removed.
type TasksCompletedCallback func(id TasksCompletedID)

// CompletedCallbackTraceMask selects which tasks SetCompletedCallback
// traces. A task matches if both its callback thread bit and its priority
// bit are set.
type CompletedCallbackTraceMask uint8

const (
	// ThreadMaskMain selects tasks whose callback runs on the event thread.
	ThreadMaskMain CompletedCallbackTraceMask = 1 << 0
	// ThreadMaskWorker selects tasks whose callback runs on the worker.
	ThreadMaskWorker CompletedCallbackTraceMask = 1 << 1
	// PriorityMaskHigh selects PriorityHigh tasks.
	PriorityMaskHigh CompletedCallbackTraceMask = 1 << 2
	// PriorityMaskLow selects PriorityLow tasks.
	PriorityMaskLow CompletedCallbackTraceMask = 1 << 3

	// ThreadMaskAll selects tasks regardless of callback thread.
	ThreadMaskAll = ThreadMaskMain | ThreadMaskWorker
	// PriorityMaskAll selects tasks regardless of priority.
	PriorityMaskAll = PriorityMaskHigh | PriorityMaskLow
	// MaskAll selects every task.
	MaskAll = ThreadMaskAll | PriorityMaskAll
)

// Matches reports whether task is selected by the mask.
func (m CompletedCallbackTraceMask) Matches(task Task) bool {
	thread := ThreadMaskMain
	if task.CallbackInvocationThread() == ThreadWorker {
		thread = ThreadMaskWorker
	}
	priority := PriorityMaskHigh
	if task.Priority() == PriorityLow {
		priority = PriorityMaskLow
	}
	return m&thread != 0 && m&priority != 0
}

type trace struct {
	callback TasksCompletedCallback
	// number of outstanding occurrences per task
	tasks map[Task]int
}

type pendingCallback struct {
	callback TasksCompletedCallback
	id       TasksCompletedID
}

// completedTraces tracks the aggregate callbacks. mu and executeMu may be
// taken while holding any of the queue locks, never the reverse.
type completedTraces struct {
	traces  map[TasksCompletedID]*trace
	byTask  map[Task]map[TasksCompletedID]struct{}
	execute []pendingCallback
	mu      sync.Mutex
	// guards execute
	executeMu sync.Mutex
	lastID    TasksCompletedID
}

func newCompletedTraces() *completedTraces {
	return &completedTraces{
		traces: make(map[TasksCompletedID]*trace),
		byTask: make(map[Task]map[TasksCompletedID]struct{}),
	}
}

// begin allocates an id and an empty trace.
func (x *completedTraces) begin(callback TasksCompletedCallback) TasksCompletedID {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.lastID++
	if x.lastID == 0 {
		x.lastID++
	}
	id := x.lastID
	x.traces[id] = &trace{callback: callback, tasks: make(map[Task]int)}
	return id
}

// add records one more occurrence of task against id.
func (x *completedTraces) add(id TasksCompletedID, task Task) {
	x.mu.Lock()
	defer x.mu.Unlock()
	t := x.traces[id]
	if t == nil {
		return
	}
	t.tasks[task]++
	ids := x.byTask[task]
	if ids == nil {
		ids = make(map[TasksCompletedID]struct{})
		x.byTask[task] = ids
	}
	ids[id] = struct{}{}
}

// finish queues the callback for execution if the trace is already empty.
func (x *completedTraces) finish(id TasksCompletedID) (owed bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	t := x.traces[id]
	if t == nil || len(t.tasks) != 0 {
		return false
	}
	x.retireLocked(id, t)
	return true
}

func (x *completedTraces) retireLocked(id TasksCompletedID, t *trace) {
	delete(x.traces, id)
	x.executeMu.Lock()
	x.execute = append(x.execute, pendingCallback{callback: t.callback, id: id})
	x.executeMu.Unlock()
}

// hasTraces is a cheap pre-check for the completion paths.
func (x *completedTraces) hasTraces() bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.byTask) != 0
}

// removeTaskTrace removes one occurrence of task from every trace, or all
// occurrences if all is set. It returns true if any callback became owed.
func (x *completedTraces) removeTaskTrace(task Task, all bool) (owed bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	ids := x.byTask[task]
	for id := range ids {
		t := x.traces[id]
		if t == nil {
			delete(ids, id)
			continue
		}
		if n := t.tasks[task] - 1; n > 0 && !all {
			t.tasks[task] = n
			continue
		}
		delete(t.tasks, task)
		delete(ids, id)
		if len(t.tasks) == 0 {
			x.retireLocked(id, t)
			owed = true
		}
	}
	if len(ids) == 0 {
		delete(x.byTask, task)
	}
	return owed
}

// remove cancels an active or owed callback.
func (x *completedTraces) remove(id TasksCompletedID) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	if t := x.traces[id]; t != nil {
		delete(x.traces, id)
		for task := range t.tasks {
			if ids := x.byTask[task]; ids != nil {
				delete(ids, id)
				if len(ids) == 0 {
					delete(x.byTask, task)
				}
			}
		}
		return true
	}
	x.executeMu.Lock()
	defer x.executeMu.Unlock()
	for i, p := range x.execute {
		if p.id == id {
			x.execute = append(x.execute[:i], x.execute[i+1:]...)
			return true
		}
	}
	return false
}

// hasOwed reports whether any callback is waiting to be emitted.
func (x *completedTraces) hasOwed() bool {
	x.executeMu.Lock()
	defer x.executeMu.Unlock()
	return len(x.execute) != 0
}

// takeOwed swaps out the callbacks waiting to be emitted, oldest first.
func (x *completedTraces) takeOwed() []pendingCallback {
	x.executeMu.Lock()
	defer x.executeMu.Unlock()
	owed := x.execute
	x.execute = nil
	return owed
}
