// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package renderlooptest provides recording fakes of the renderloop
// collaborators, for tests and headless runs.
package renderlooptest

import (
	"slices"
	"sync"
	"time"

	"github.com/joeycumines/go-renderloop"
)

// Recorder records method calls by name, safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	calls   []string
	changed chan struct{}
}

func (r *Recorder) record(name string) {
	r.mu.Lock()
	r.calls = append(r.calls, name)
	if r.changed != nil {
		close(r.changed)
		r.changed = nil
	}
	r.mu.Unlock()
}

// Calls returns a copy of every recorded call, oldest first.
func (r *Recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.calls)
}

// Count returns how many times name was recorded.
func (r *Recorder) Count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int
	for _, c := range r.calls {
		if c == name {
			n++
		}
	}
	return n
}

// Reset forgets every recorded call.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.calls = nil
	r.mu.Unlock()
}

// WaitFor blocks until name has been recorded at least n times, returning
// false on timeout.
func (r *Recorder) WaitFor(name string, n int, timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		r.mu.Lock()
		var count int
		for _, c := range r.calls {
			if c == name {
				count++
			}
		}
		if count >= n {
			r.mu.Unlock()
			return true
		}
		if r.changed == nil {
			r.changed = make(chan struct{})
		}
		ch := r.changed
		r.mu.Unlock()

		select {
		case <-ch:
		case <-deadline.C:
			return false
		}
	}
}

// Scene is a fake renderloop.Scene.
type Scene struct {
	mu         sync.Mutex
	surface    renderloop.RenderSurface
	damaged    []renderloop.Rect
	skipped    bool
	willRender bool
}

var _ renderloop.Scene = (*Scene)(nil)

// NewScene returns a scene that renders to surface, with content.
func NewScene(surface renderloop.RenderSurface) *Scene {
	return &Scene{surface: surface, willRender: true}
}

// Surface implements renderloop.Scene.
func (s *Scene) Surface() renderloop.RenderSurface {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.surface
}

// SetSurface changes the scene's surface.
func (s *Scene) SetSurface(surface renderloop.RenderSurface) {
	s.mu.Lock()
	s.surface = surface
	s.mu.Unlock()
}

// IsRenderingSkipped implements renderloop.Scene.
func (s *Scene) IsRenderingSkipped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.skipped
}

// SetRenderingSkipped hides or shows the scene.
func (s *Scene) SetRenderingSkipped(skipped bool) {
	s.mu.Lock()
	s.skipped = skipped
	s.mu.Unlock()
}

// SetWillRender sets whether the scene has content to draw.
func (s *Scene) SetWillRender(willRender bool) {
	s.mu.Lock()
	s.willRender = willRender
	s.mu.Unlock()
}

// SetDamaged sets the damaged regions reported each frame.
func (s *Scene) SetDamaged(damaged ...renderloop.Rect) {
	s.mu.Lock()
	s.damaged = slices.Clone(damaged)
	s.mu.Unlock()
}

func (s *Scene) status() (bool, []renderloop.Rect) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.willRender, s.damaged
}

// Engine is a fake renderloop.SceneEngine. By default it requests no further
// updates, so the scheduler goes to sleep after each request.
type Engine struct {
	Recorder

	mu                sync.Mutex
	scenes            []renderloop.Scene
	frames            []renderloop.UpdateFrame
	clips             []renderloop.Rect
	keepUpdatingFor   int
	needsNotification bool
	onUpdate          func(frame renderloop.UpdateFrame)
}

var _ renderloop.SceneEngine = (*Engine)(nil)

// NewEngine returns an engine rendering scenes.
func NewEngine(scenes ...renderloop.Scene) *Engine {
	return &Engine{scenes: scenes}
}

// KeepUpdatingFor makes the next n updates report running animations.
func (e *Engine) KeepUpdatingFor(n int) {
	e.mu.Lock()
	e.keepUpdatingFor = n
	e.mu.Unlock()
}

// SetNeedsNotification sets UpdateStatus.NeedsNotification for every update.
func (e *Engine) SetNeedsNotification(needs bool) {
	e.mu.Lock()
	e.needsNotification = needs
	e.mu.Unlock()
}

// OnUpdate sets a hook run on the render goroutine during each Update.
func (e *Engine) OnUpdate(fn func(frame renderloop.UpdateFrame)) {
	e.mu.Lock()
	e.onUpdate = fn
	e.mu.Unlock()
}

// SetScenes replaces the rendered scenes.
func (e *Engine) SetScenes(scenes ...renderloop.Scene) {
	e.mu.Lock()
	e.scenes = scenes
	e.mu.Unlock()
}

// Frames returns a copy of every UpdateFrame seen, oldest first.
func (e *Engine) Frames() []renderloop.UpdateFrame {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.frames)
}

// Clips returns the clip of every surface RenderScene call, oldest first.
func (e *Engine) Clips() []renderloop.Rect {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.clips)
}

// ContextCreated implements renderloop.SceneEngine.
func (e *Engine) ContextCreated() { e.record(`ContextCreated`) }

// ContextDestroyed implements renderloop.SceneEngine.
func (e *Engine) ContextDestroyed() { e.record(`ContextDestroyed`) }

// Update implements renderloop.SceneEngine.
func (e *Engine) Update(frame renderloop.UpdateFrame, status *renderloop.UpdateStatus) {
	e.mu.Lock()
	e.frames = append(e.frames, frame)
	if e.keepUpdatingFor > 0 {
		e.keepUpdatingFor--
		status.KeepUpdating |= renderloop.KeepUpdatingAnimationsRunning
	}
	status.NeedsNotification = e.needsNotification
	onUpdate := e.onUpdate
	e.mu.Unlock()

	if onUpdate != nil {
		onUpdate(frame)
	}

	e.record(`Update`)
}

// PreRender implements renderloop.SceneEngine.
func (e *Engine) PreRender(status *renderloop.RenderStatus, forceClear bool) {
	if forceClear {
		e.record(`PreRender(forceClear)`)
	} else {
		e.record(`PreRender`)
	}
}

// Scenes implements renderloop.SceneEngine.
func (e *Engine) Scenes() []renderloop.Scene {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.scenes)
}

// PreRenderScene implements renderloop.SceneEngine.
func (e *Engine) PreRenderScene(scene renderloop.Scene, status *renderloop.SceneStatus, damaged []renderloop.Rect) []renderloop.Rect {
	if s, ok := scene.(*Scene); ok {
		var rects []renderloop.Rect
		status.WillRender, rects = s.status()
		damaged = append(damaged, rects...)
	}
	e.record(`PreRenderScene`)
	return damaged
}

// RenderScene implements renderloop.SceneEngine.
func (e *Engine) RenderScene(scene renderloop.Scene, status *renderloop.RenderStatus, offscreen bool, clip renderloop.Rect) {
	if offscreen {
		e.record(`RenderScene(offscreen)`)
		return
	}
	status.NeedsPostRender = true
	e.mu.Lock()
	e.clips = append(e.clips, clip)
	e.mu.Unlock()
	e.record(`RenderScene`)
}

// ClearScene implements renderloop.SceneEngine.
func (e *Engine) ClearScene(scene renderloop.Scene) { e.record(`ClearScene`) }

// PostRender implements renderloop.SceneEngine.
func (e *Engine) PostRender() { e.record(`PostRender`) }

// Device is a fake renderloop.GraphicsDevice that always presents.
type Device struct {
	Recorder

	mu           sync.Mutex
	initErr      error
	acquireFails bool
	notPresented bool
	forcePresent bool
	partial      renderloop.PartialUpdateMode
	configured   []renderloop.RenderSurface
}

var _ renderloop.GraphicsDevice = (*Device)(nil)

// NewDevice returns a Device.
func NewDevice() *Device { return &Device{} }

// SetInitializeError makes Initialize fail with err.
func (d *Device) SetInitializeError(err error) {
	d.mu.Lock()
	d.initErr = err
	d.mu.Unlock()
}

// SetAcquireFails makes AcquireNextImage fail.
func (d *Device) SetAcquireFails(fails bool) {
	d.mu.Lock()
	d.acquireFails = fails
	d.mu.Unlock()
}

// SetNotPresented makes DidPresent report false.
func (d *Device) SetNotPresented(notPresented bool) {
	d.mu.Lock()
	d.notPresented = notPresented
	d.mu.Unlock()
}

// SetForcePresentRequired sets ForcePresentRequired.
func (d *Device) SetForcePresentRequired(force bool) {
	d.mu.Lock()
	d.forcePresent = force
	d.mu.Unlock()
}

// SetPartialUpdateMode sets PartialUpdateMode.
func (d *Device) SetPartialUpdateMode(mode renderloop.PartialUpdateMode) {
	d.mu.Lock()
	d.partial = mode
	d.mu.Unlock()
}

// Configured returns every surface passed to ConfigureSurface, oldest first.
func (d *Device) Configured() []renderloop.RenderSurface {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.configured)
}

// Initialize implements renderloop.GraphicsDevice.
func (d *Device) Initialize() error {
	d.record(`Initialize`)
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.initErr
}

// ConfigureSurface implements renderloop.GraphicsDevice.
func (d *Device) ConfigureSurface(surface renderloop.RenderSurface) {
	d.mu.Lock()
	d.configured = append(d.configured, surface)
	d.mu.Unlock()
	d.record(`ConfigureSurface`)
}

// ActivateResourceContext implements renderloop.GraphicsDevice.
func (d *Device) ActivateResourceContext() { d.record(`ActivateResourceContext`) }

// ActivateSurfaceContext implements renderloop.GraphicsDevice.
func (d *Device) ActivateSurfaceContext(renderloop.RenderSurface) {
	d.record(`ActivateSurfaceContext`)
}

// FrameStart implements renderloop.GraphicsDevice.
func (d *Device) FrameStart() { d.record(`FrameStart`) }

// AcquireNextImage implements renderloop.GraphicsDevice.
func (d *Device) AcquireNextImage(renderloop.RenderSurface) bool {
	d.record(`AcquireNextImage`)
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.acquireFails
}

// DidPresent implements renderloop.GraphicsDevice.
func (d *Device) DidPresent() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.notPresented
}

// ForcePresentRequired implements renderloop.GraphicsDevice.
func (d *Device) ForcePresentRequired() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.forcePresent
}

// PartialUpdateMode implements renderloop.GraphicsDevice.
func (d *Device) PartialUpdateMode() renderloop.PartialUpdateMode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.partial
}

// PostRender implements renderloop.GraphicsDevice.
func (d *Device) PostRender() { d.record(`PostRender`) }

// Resume implements renderloop.GraphicsDevice.
func (d *Device) Resume() { d.record(`Resume`) }

// Shutdown implements renderloop.GraphicsDevice.
func (d *Device) Shutdown() { d.record(`Shutdown`) }

// Surface is a fake renderloop.RenderSurface. With AsyncPresent, PostRender
// blocks in the scheduler's barrier until Present is called.
type Surface struct {
	Recorder

	Name string

	mu           sync.Mutex
	barrier      renderloop.ThreadSynchronization
	asyncPresent bool
	fullSwap     bool
	unavailable  bool
	resized      int
	damaged      [][]renderloop.Rect
}

var _ renderloop.RenderSurface = (*Surface)(nil)

// NewSurface returns a Surface.
func NewSurface(name string) *Surface { return &Surface{Name: name} }

// SetAsyncPresent makes PostRender wait for Present.
func (s *Surface) SetAsyncPresent(async bool) {
	s.mu.Lock()
	s.asyncPresent = async
	s.mu.Unlock()
}

// SetFullSwapNextFrame sets FullSwapNextFrame.
func (s *Surface) SetFullSwapNextFrame(fullSwap bool) {
	s.mu.Lock()
	s.fullSwap = fullSwap
	s.mu.Unlock()
}

// SetUnavailable makes PreRender return false.
func (s *Surface) SetUnavailable(unavailable bool) {
	s.mu.Lock()
	s.unavailable = unavailable
	s.mu.Unlock()
}

// ThreadSynchronization returns the barrier set by the scheduler.
func (s *Surface) ThreadSynchronization() renderloop.ThreadSynchronization {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.barrier
}

// Resized returns how many PreRender calls reported a resize.
func (s *Surface) Resized() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resized
}

// Damaged returns the damaged regions of every PreRender call, oldest first.
func (s *Surface) Damaged() [][]renderloop.Rect {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.damaged)
}

// Present completes an asynchronous present.
func (s *Surface) Present() {
	if barrier := s.ThreadSynchronization(); barrier != nil {
		barrier.PostRenderComplete()
	}
}

// SetThreadSynchronization implements renderloop.RenderSurface.
func (s *Surface) SetThreadSynchronization(barrier renderloop.ThreadSynchronization) {
	s.mu.Lock()
	s.barrier = barrier
	s.mu.Unlock()
	s.record(`SetThreadSynchronization`)
}

// StartRender implements renderloop.RenderSurface.
func (s *Surface) StartRender() { s.record(`StartRender`) }

// StopRender implements renderloop.RenderSurface.
func (s *Surface) StopRender() { s.record(`StopRender`) }

// PreRender implements renderloop.RenderSurface. The clip is the union of
// the damaged regions.
func (s *Surface) PreRender(resized bool, damaged []renderloop.Rect, clip *renderloop.Rect) bool {
	s.mu.Lock()
	if resized {
		s.resized++
	}
	s.damaged = append(s.damaged, slices.Clone(damaged))
	unavailable := s.unavailable
	s.mu.Unlock()

	for _, r := range damaged {
		*clip = clip.Union(r)
	}

	s.record(`PreRender`)
	return !unavailable
}

// PostRender implements renderloop.RenderSurface.
func (s *Surface) PostRender() {
	s.mu.Lock()
	barrier, async := s.barrier, s.asyncPresent
	s.mu.Unlock()

	if async && barrier != nil {
		barrier.PostRenderStarted()
		s.record(`PostRender`)
		barrier.PostRenderWaitForCompletion()
		return
	}
	s.record(`PostRender`)
}

// FullSwapNextFrame implements renderloop.RenderSurface.
func (s *Surface) FullSwapNextFrame() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fullSwap
}

// DestroySurface implements renderloop.RenderSurface.
func (s *Surface) DestroySurface() { s.record(`DestroySurface`) }

// Trigger counts Trigger calls, optionally running a callback inline.
type Trigger struct {
	Recorder

	callback func()
}

var _ renderloop.Trigger = (*Trigger)(nil)

// NewTrigger returns a Trigger that runs callback, which may be nil.
func NewTrigger(callback func()) *Trigger { return &Trigger{callback: callback} }

// Trigger implements renderloop.Trigger.
func (t *Trigger) Trigger() {
	if t.callback != nil {
		t.callback()
	}
	t.record(`Trigger`)
}

// PerformanceMonitor records markers.
type PerformanceMonitor struct {
	Recorder
}

var _ renderloop.PerformanceMonitor = (*PerformanceMonitor)(nil)

// AddMarker implements renderloop.PerformanceMonitor.
func (p *PerformanceMonitor) AddMarker(marker renderloop.Marker) { p.record(marker.String()) }
