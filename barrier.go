// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package renderloop

var _ ThreadSynchronization = (*Scheduler)(nil)

// PostRenderStarted implements ThreadSynchronization.
func (s *Scheduler) PostRenderStarted() {
	s.mu.Lock()
	s.postRendering = true
	s.mu.Unlock()
}

// PostRenderWaitForCompletion implements ThreadSynchronization. It returns
// early if a surface is being replaced, deleted or resized, or Stop was
// called, as the present may then never complete.
func (s *Scheduler) PostRenderWaitForCompletion() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.postRendering &&
		s.newSurface == nil &&
		s.deletedSurface == nil &&
		s.surfaceResizedCount == 0 &&
		!s.destroy {
		s.cond.Wait()
	}
}

// PostRenderComplete implements ThreadSynchronization.
func (s *Scheduler) PostRenderComplete() {
	s.mu.Lock()
	s.postRendering = false
	s.cond.Broadcast()
	s.mu.Unlock()
}
