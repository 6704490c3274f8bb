// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package asynctask

import (
	"sync"
)

// worker is one goroutine of the pool, started on its first request.
type worker struct {
	manager *Manager
	cond    *sync.Cond
	mu      sync.Mutex
	started bool
	idle    bool
	// set when a request arrives while busy, forces one more pull before idling
	wakeRequested bool
	destroy       bool
}

func newWorker(m *Manager) *worker {
	w := &worker{manager: m}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// request asks the worker to pull work, returning true if the worker was
// idle (or not yet started) and has been woken.
func (w *worker) request() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.destroy {
		return false
	}
	if !w.started {
		w.started = true
		w.manager.workerGroup.Go(w.run)
		return true
	}
	if w.idle {
		w.idle = false
		w.cond.Signal()
		return true
	}
	w.wakeRequested = true
	return false
}

// stop asks the worker to exit once its current task finishes.
func (w *worker) stop() {
	w.mu.Lock()
	w.destroy = true
	w.cond.Broadcast()
	w.mu.Unlock()
}

func (w *worker) run() error {
	m := w.manager
	for {
		w.mu.Lock()
		destroy := w.destroy
		w.mu.Unlock()
		if destroy {
			return nil
		}

		if task := m.popNextTaskToProcess(); task != nil {
			m.process(task)
			m.completeTask(task)
			continue
		}

		w.mu.Lock()
		if !w.wakeRequested && !w.destroy {
			w.idle = true
			for w.idle && !w.destroy {
				w.cond.Wait()
			}
		}
		w.idle = false
		w.wakeRequested = false
		w.mu.Unlock()
	}
}
