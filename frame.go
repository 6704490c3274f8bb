// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package renderloop

import (
	"runtime"
	"slices"
	"time"

	"github.com/joeycumines/go-renderloop/frameclock"
)

// frameState is carried between iterations of the render goroutine.
type frameState struct {
	lastFrameTime      uint64
	timeToSleepUntil   uint64
	extraFramesDropped uint64
	frameCount         uint32
	useElapsedTime     bool
	updateRequired     bool
	primed             bool
}

// framePolicy is the per-frame input to the present decision.
type framePolicy struct {
	resized          bool
	forcePresent     bool
	partialUpdate    bool
	isRenderingToFbo bool
}

func (s *Scheduler) now() uint64 { return uint64(time.Since(s.epoch)) }

// run is the render goroutine.
func (s *Scheduler) run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(s.loopDone)

	s.logger.Debug().Log(`renderloop: update/render goroutine created`)

	if err := s.device.Initialize(); err != nil {
		s.logger.Crit().
			Err(err).
			Log(`renderloop: graphics initialization failed`)
		s.mu.Lock()
		s.exited = true
		s.mu.Unlock()
		s.initErr = err
		close(s.initialized)
		return
	}

	if surface := s.currentSurface(); surface != nil {
		s.device.ConfigureSurface(surface)
	}
	s.engine.ContextCreated()

	close(s.initialized)

	s.logger.Debug().Log(`renderloop: update/render goroutine initialized`)

	f := frameState{
		lastFrameTime:  s.now(),
		useElapsedTime: true,
		updateRequired: true,
	}
	for s.updateRenderReady(&f) {
		s.frame(&f)
	}

	s.drainSurfaceRequests()

	s.engine.ContextDestroyed()
	s.device.Shutdown()

	s.logger.Debug().Log(`renderloop: update/render goroutine destroyed`)
}

// updateRenderReady blocks until there is a frame to run, returning false
// once Stop was called.
func (s *Scheduler) updateRenderReady(f *frameState) bool {
	f.useElapsedTime = true

	s.mu.Lock()
	defer s.mu.Unlock()

	// the first frame counts as woken from a wait, even if Start won the race
	waited := !f.primed
	f.primed = true

	for s.shouldWait(f.updateRequired) {
		// pacing restarts from the actual wake time
		f.timeToSleepUntil = 0
		s.cond.Wait()
		waited = true
	}

	if waited && !s.useElapsedTimeAfterWait {
		f.useElapsedTime = false
	}

	s.useElapsedTimeAfterWait = false
	s.canSleep = false
	s.pendingUpdateRequest = false

	if s.runCount > 0 {
		s.runCount--
	}

	return !s.destroy
}

func (s *Scheduler) shouldWait(updateRequired bool) bool {
	idle := s.runCount == 0 || (s.canSleep && !updateRequired && !s.pendingUpdateRequest)
	return idle &&
		!s.destroy &&
		s.newSurface == nil &&
		s.deletedSurface == nil &&
		s.surfaceResizedCount == 0
}

// frame runs one update/render cycle.
func (s *Scheduler) frame(f *frameState) {
	// frame statistics are reported on vsync
	s.addMarker(MarkerVSync)

	frameStart := s.now()
	sinceLast := frameStart - f.lastFrameTime
	f.lastFrameTime = frameStart

	if f.useElapsedTime && s.fps.enabled() {
		s.fps.track(frameclock.NanosecondsToSeconds(sinceLast))
	}

	s.mu.Lock()
	uploadOnly := s.uploadOnly
	s.uploadOnly = false
	resizedCount := s.surfaceResizedCount
	deleted := s.deletedSurface
	s.deletedSurface = nil
	forceClear := s.forceClear
	s.forceClear = false
	firstFrameAfterResume := s.firstFrameAfterResume
	s.firstFrameAfterResume = false
	s.mu.Unlock()

	if req := s.takeNewSurface(); req != nil {
		s.logger.Debug().Log(`renderloop: replacing surface`)
		s.replaceSurface(req.surface)
		req.ack()
	}

	if firstFrameAfterResume {
		s.device.Resume()
		f.timeToSleepUntil = 0
	}

	isRenderingToFbo := s.renderToFboInterval != 0 &&
		(f.frameCount == 0 || f.frameCount%s.renderToFboInterval != 0)
	f.frameCount++

	s.resourceUpload()

	frameStartMs := frameclock.NanosecondsToMilliseconds(frameStart)
	var delta float32
	if f.useElapsedTime {
		framesSinceLastUpdate := 1 + f.extraFramesDropped
		delta = s.clock.FrameDelta() * float32(framesSinceLastUpdate)
	}

	s.logger.Trace().
		Uint64(`since_last_frame_ns`, sinceLast).
		Float32(`frame_delta`, delta).
		Log(`renderloop: frame`)

	s.device.FrameStart()

	var updateStatus UpdateStatus
	s.addMarker(MarkerUpdateStart)
	s.engine.Update(UpdateFrame{
		Delta:            delta,
		LastVSyncMs:      frameStartMs,
		NextVSyncMs:      frameStartMs + s.clock.FrameDurationMs(),
		RenderToFbo:      s.renderToFboInterval != 0,
		IsRenderingToFbo: isRenderingToFbo,
		UploadOnly:       uploadOnly,
	}, &updateStatus)
	s.addMarker(MarkerUpdateEnd)

	keepUpdating := updateStatus.KeepUpdating

	if updateStatus.NeedsNotification {
		s.notificationTrigger.Trigger()
	}

	s.statusLog.log(keepUpdating)

	// uploads requested during Update, uploadOnly stays as decided above
	s.resourceUpload()

	var renderStatus RenderStatus
	if !uploadOnly || resizedCount != 0 {
		s.render(&renderStatus, forceClear, framePolicy{
			resized:          resizedCount != 0,
			forcePresent:     s.device.ForcePresentRequired(),
			partialUpdate:    s.device.PartialUpdateMode() == PartialUpdateDamaged,
			isRenderingToFbo: isRenderingToFbo,
		})
	}

	if deleted != nil {
		s.logger.Debug().Log(`renderloop: deleting surface`)
		s.destroySurface(deleted.surface)
		deleted.ack()
	}

	if resizedCount != 0 {
		s.surfaceResized(resizedCount)
	}

	if keepUpdating == KeepUpdatingNotRequested && !renderStatus.NeedsUpdate {
		s.sleepTrigger.Trigger()
		f.updateRequired = false
	} else {
		f.updateRequired = true
	}

	var dropped uint64
	f.timeToSleepUntil, dropped = nextSleepTarget(f.timeToSleepUntil, frameStart, s.now(), s.clock.FrameDurationNs())
	f.extraFramesDropped = dropped
	if dropped != 0 {
		if _, ok := s.limiter.Allow(`frames_dropped`); ok {
			s.logger.Warning().
				Uint64(`dropped`, dropped).
				Log(`renderloop: frames dropped to catch up`)
		}
	}

	// render-to-FBO measures rates above the refresh rate, so never sleeps
	if s.vsync && s.renderToFboInterval == 0 {
		if now := s.now(); f.timeToSleepUntil > now {
			time.Sleep(time.Duration(f.timeToSleepUntil - now))
		}
	}
}

// nextSleepTarget returns the time the next frame should start, given the
// previous target (zero after a wait), and how many frames were dropped
// because the current frame ended more than one frame late.
func nextSleepTarget(target, frameStart, frameEnd, duration uint64) (next, dropped uint64) {
	if target == 0 {
		return frameStart + duration, 0
	}
	target += duration
	// stepped rather than divided, each step is one dropped frame
	for frameEnd > target+duration {
		target += duration
		dropped++
	}
	return target, dropped
}

func (s *Scheduler) render(status *RenderStatus, forceClear bool, policy framePolicy) {
	s.addMarker(MarkerRenderStart)

	s.engine.PreRender(status, forceClear)

	scenes := s.engine.Scenes()
	for _, scene := range scenes {
		s.renderScene(scene, status, policy)
	}
	if len(s.prevRendered) > len(scenes) {
		for scene := range s.prevRendered {
			if !slices.Contains(scenes, scene) {
				delete(s.prevRendered, scene)
			}
		}
	}

	if status.NeedsPostRender {
		s.device.PostRender()
	}
	s.engine.PostRender()

	s.addMarker(MarkerRenderEnd)
}

func (s *Scheduler) renderScene(scene Scene, status *RenderStatus, policy framePolicy) {
	surface := scene.Surface()
	if surface == nil {
		return
	}

	var sceneStatus SceneStatus
	s.damaged = s.engine.PreRenderScene(scene, &sceneStatus, s.damaged[:0])

	skipped := scene.IsRenderingSkipped()
	previouslyRendered := s.prevRendered[scene]
	s.prevRendered[scene] = sceneStatus.WillRender && !skipped
	if skipped {
		return
	}

	fullSwap := surface.FullSwapNextFrame()

	// anything acquired below is either presented or cleared
	presentRequired := sceneStatus.WillRender || fullSwap || policy.resized || policy.forcePresent
	// a scene that stops drawing still presents once, leaving the window blank
	legacyBlankSwap := s.legacyBlankSwap && previouslyRendered && !sceneStatus.WillRender

	if !presentRequired && !legacyBlankSwap {
		return
	}

	s.device.ActivateSurfaceContext(surface)

	if !s.device.AcquireNextImage(surface) {
		s.logger.Debug().Log(`renderloop: image acquisition failed, frame dropped`)
		return
	}

	s.engine.RenderScene(scene, status, true, Rect{})

	var presented bool
	if !policy.isRenderingToFbo {
		damaged := s.damaged
		if !policy.partialUpdate || fullSwap || policy.resized {
			damaged = nil
		}
		var clip Rect
		if surface.PreRender(policy.resized, damaged, &clip) {
			s.engine.RenderScene(scene, status, false, clip)
			surface.PostRender()
			presented = s.device.DidPresent()
		}
	}

	if !presented {
		s.engine.ClearScene(scene)
	}
}

func (s *Scheduler) resourceUpload() {
	if s.uploader != nil {
		s.uploader.ResourceUpload()
	}
}

func (s *Scheduler) takeNewSurface() *surfaceRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	req := s.newSurface
	s.newSurface = nil
	return req
}

// replaceSurface is called on the render goroutine.
func (s *Scheduler) replaceSurface(surface RenderSurface) {
	s.device.ConfigureSurface(surface)
	s.device.ActivateSurfaceContext(surface)

	s.mu.Lock()
	s.surface = surface
	s.mu.Unlock()
}

// destroySurface is called on the render goroutine.
func (s *Scheduler) destroySurface(surface RenderSurface) {
	s.device.ActivateResourceContext()
	surface.DestroySurface()

	s.mu.Lock()
	if s.surface == surface {
		s.surface = nil
	}
	s.mu.Unlock()
}

// surfaceResized consumes the resize requests observed by one frame.
func (s *Scheduler) surfaceResized(observed int) {
	s.mu.Lock()
	s.surfaceResizedCount -= min(observed, s.surfaceResizedCount)
	s.mu.Unlock()
}

// drainSurfaceRequests completes any surface request left after the last
// frame. Afterwards, requests are handled on the caller's goroutine.
func (s *Scheduler) drainSurfaceRequests() {
	s.mu.Lock()
	s.exited = true
	replaced := s.newSurface
	deleted := s.deletedSurface
	s.newSurface = nil
	s.deletedSurface = nil
	s.mu.Unlock()

	if replaced != nil {
		s.replaceSurface(replaced.surface)
		replaced.ack()
	}
	if deleted != nil {
		s.destroySurface(deleted.surface)
		deleted.ack()
	}
}
