// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package mainloop

import (
	"slices"
)

// Processor is a hook run once per loop iteration while registered.
// postProcessor is false for processors registered via RegisterProcessor,
// and true for those registered via RegisterPostProcessor.
type Processor interface {
	Process(postProcessor bool)
}

// RegisterProcessor adds p to the set of processors run each iteration.
// Registering the same processor twice has no effect. Safe for concurrent use.
func (l *Loop) RegisterProcessor(p Processor) {
	l.register(&l.processors, p)
}

// UnregisterProcessor removes p, if registered. Safe for concurrent use,
// including from within p.Process.
func (l *Loop) UnregisterProcessor(p Processor) {
	l.unregister(&l.processors, p)
}

// RegisterPostProcessor adds p to the set of processors run each iteration,
// after the regular processors.
func (l *Loop) RegisterPostProcessor(p Processor) {
	l.register(&l.postProcessors, p)
}

// UnregisterPostProcessor removes p, if registered.
func (l *Loop) UnregisterPostProcessor(p Processor) {
	l.unregister(&l.postProcessors, p)
}

func (l *Loop) register(list *[]Processor, p Processor) {
	if p == nil {
		return
	}
	l.mu.Lock()
	if !slices.Contains(*list, p) {
		*list = append(*list, p)
	}
	l.mu.Unlock()
	// the new processor runs on the next iteration
	_ = l.submitWakeup()
}

func (l *Loop) unregister(list *[]Processor, p Processor) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i := slices.Index(*list, p); i >= 0 {
		// copy on write, runProcessors iterates a snapshot
		*list = slices.Delete(slices.Clone(*list), i, i+1)
	}
}

func (l *Loop) runProcessors(post bool) {
	l.mu.Lock()
	var list []Processor
	if post {
		list = l.postProcessors
	} else {
		list = l.processors
	}
	l.mu.Unlock()

	for _, p := range list {
		l.safeExecute(func() { p.Process(post) })
	}
}

// ProcessorCount returns the number of registered processors and post
// processors.
func (l *Loop) ProcessorCount() (processors, postProcessors int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.processors), len(l.postProcessors)
}
