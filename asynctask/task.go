// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package asynctask

import (
	"sync/atomic"
)

// PriorityType decides which workers may run a task.
type PriorityType uint8

const (
	// PriorityHigh tasks may run on any worker.
	PriorityHigh PriorityType = iota
	// PriorityLow tasks only run while a low priority slot is free.
	PriorityLow
)

// String implements fmt.Stringer.
func (p PriorityType) String() string {
	switch p {
	case PriorityHigh:
		return "High"
	case PriorityLow:
		return "Low"
	default:
		return "Unknown"
	}
}

// ThreadType is where a task's completion callback runs.
type ThreadType uint8

const (
	// ThreadMain runs the callback on the event thread, from TasksCompleted.
	ThreadMain ThreadType = iota
	// ThreadWorker runs the callback on the worker, straight after Process.
	ThreadWorker
)

// String implements fmt.Stringer.
func (t ThreadType) String() string {
	switch t {
	case ThreadMain:
		return "Main"
	case ThreadWorker:
		return "Worker"
	default:
		return "Unknown"
	}
}

// CompletedCallback is invoked with the task that completed.
type CompletedCallback func(task Task)

// Task is a unit of background work.
//
// Tasks are identified by identity and are used as map keys, so
// implementations must be comparable, in practice pointer types. The same
// task may be added more than once.
type Task interface {
	// Process performs the work, on a worker goroutine.
	Process()
	// IsReady reports whether Process may be called yet. Tasks added while
	// not ready are parked until NotifyToTaskReady.
	IsReady() bool
	Priority() PriorityType
	CallbackInvocationThread() ThreadType
	// CompletedCallback may return nil.
	CompletedCallback() CompletedCallback
}

// BaseTask implements every Task method except Process, for embedding.
type BaseTask struct {
	callback CompletedCallback
	notReady atomic.Bool
	priority PriorityType
	thread   ThreadType
}

// TaskOption configures a BaseTask.
type TaskOption interface {
	applyTask(*BaseTask)
}

type taskOptionImpl func(*BaseTask)

func (f taskOptionImpl) applyTask(t *BaseTask) { f(t) }

// WithPriority sets the task priority, PriorityHigh by default.
func WithPriority(p PriorityType) TaskOption {
	return taskOptionImpl(func(t *BaseTask) { t.priority = p })
}

// WithCallbackThread sets where the completion callback runs, ThreadMain by default.
func WithCallbackThread(thread ThreadType) TaskOption {
	return taskOptionImpl(func(t *BaseTask) { t.thread = thread })
}

// WithNotReady creates the task in the not ready state, see SetReady.
func WithNotReady() TaskOption {
	return taskOptionImpl(func(t *BaseTask) { t.notReady.Store(true) })
}

// Init sets the callback and applies options. It must be called before the
// task is added to a Manager.
func (t *BaseTask) Init(callback CompletedCallback, opts ...TaskOption) {
	t.callback = callback
	for _, opt := range opts {
		if opt != nil {
			opt.applyTask(t)
		}
	}
}

// IsReady implements Task.
func (t *BaseTask) IsReady() bool { return !t.notReady.Load() }

// SetReady updates the readiness flag. After marking a parked task ready,
// call Manager.NotifyToTaskReady.
func (t *BaseTask) SetReady(ready bool) { t.notReady.Store(!ready) }

// Priority implements Task.
func (t *BaseTask) Priority() PriorityType { return t.priority }

// CallbackInvocationThread implements Task.
func (t *BaseTask) CallbackInvocationThread() ThreadType { return t.thread }

// CompletedCallback implements Task.
func (t *BaseTask) CompletedCallback() CompletedCallback { return t.callback }

// FuncTask adapts a function to the Task interface.
type FuncTask struct {
	BaseTask
	fn func()
}

// NewFuncTask returns a Task that calls fn.
func NewFuncTask(fn func(), callback CompletedCallback, opts ...TaskOption) *FuncTask {
	t := &FuncTask{fn: fn}
	t.Init(callback, opts...)
	return t
}

// Process implements Task.
func (t *FuncTask) Process() {
	if t.fn != nil {
		t.fn()
	}
}
