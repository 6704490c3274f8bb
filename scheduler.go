// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package renderloop

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/go-renderloop/frameclock"
	"github.com/joeycumines/logiface"
)

const (
	// continuousRun keeps the render goroutine cycling until it may sleep.
	continuousRun = -1
	// onceRun runs exactly one more cycle.
	onceRun = 1
)

// surfaceRequest is a single slot mailbox, acknowledged by closing done.
type surfaceRequest struct {
	surface RenderSurface
	done    chan struct{}
}

func newSurfaceRequest(surface RenderSurface) *surfaceRequest {
	return &surfaceRequest{surface: surface, done: make(chan struct{})}
}

func (r *surfaceRequest) ack() { close(r.done) }

type funcTrigger func()

func (f funcTrigger) Trigger() { f() }

type noopTrigger struct{}

func (noopTrigger) Trigger() {}

// Scheduler runs the update/render goroutine.
//
// Every method except the ThreadSynchronization ones must be called from the
// event thread. Scenes and surfaces are compared by identity, so they must
// be comparable, in practice pointer types.
type Scheduler struct {
	// Prevent copying
	_ [0]func()

	logger              *logiface.Logger[logiface.Event]
	limiter             *catrate.Limiter
	engine              SceneEngine
	device              GraphicsDevice
	clock               *frameclock.Clock
	sleepTrigger        Trigger
	notificationTrigger Trigger
	uploader            ResourceUploader
	precompiler         ShaderPrecompiler
	performance         PerformanceMonitor
	fps                 *fpsTracker
	statusLog           *updateStatusLogger

	initialized chan struct{}
	initErr     error
	loopDone    chan struct{}
	epoch       time.Time

	updateRequestCount saturatingCounter
	state              schedulerState
	running            atomic.Bool

	// guards every field below, and the wait in updateRenderReady
	mu   sync.Mutex
	cond *sync.Cond

	surface                 RenderSurface
	newSurface              *surfaceRequest
	deletedSurface          *surfaceRequest
	surfaceResizedCount     int
	runCount                int
	canSleep                bool
	pendingUpdateRequest    bool
	useElapsedTimeAfterWait bool
	uploadOnly              bool
	forceClear              bool
	firstFrameAfterResume   bool
	postRendering           bool
	destroy                 bool
	started                 bool
	exited                  bool

	stopOnce sync.Once

	// render goroutine only
	prevRendered        map[Scene]bool
	damaged             []Rect
	renderToFboInterval uint32
	vsync               bool
	legacyBlankSwap     bool
}

// New creates a Scheduler. The surface may be nil, and supplied later via
// ReplaceSurface. The render goroutine starts with Initialize.
func New(engine SceneEngine, device GraphicsDevice, surface RenderSurface, opts ...Option) (*Scheduler, error) {
	if engine == nil {
		return nil, ErrNilEngine
	}
	if device == nil {
		return nil, ErrNilDevice
	}
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}

	s := &Scheduler{
		logger:              cfg.logger,
		limiter:             catrate.NewLimiter(map[time.Duration]int{time.Second: 1, time.Minute: 10}),
		engine:              engine,
		device:              device,
		clock:               frameclock.New(),
		notificationTrigger: cfg.notificationTrigger,
		uploader:            cfg.uploader,
		precompiler:         cfg.precompiler,
		performance:         cfg.performance,
		initialized:         make(chan struct{}),
		loopDone:            make(chan struct{}),
		epoch:               time.Now(),
		surface:             surface,
		prevRendered:        make(map[Scene]bool),
		renderToFboInterval: cfg.renderToFboInterval,
		vsync:               cfg.vsync,
		legacyBlankSwap:     cfg.legacyBlankSwap,
	}
	s.cond = sync.NewCond(&s.mu)
	s.updateRequestCount.limit = maxUpdateRequests
	s.clock.Configure(cfg.refreshRate)

	if cfg.triggerFactory != nil {
		s.sleepTrigger = cfg.triggerFactory(s.processSleepRequest)
	}
	if s.sleepTrigger == nil {
		s.sleepTrigger = funcTrigger(s.processSleepRequest)
	}
	if s.notificationTrigger == nil {
		s.notificationTrigger = noopTrigger{}
	}
	if cfg.fpsTracking > 0 {
		s.fps = newFPSTracker(cfg.logger, cfg.fpsTracking, cfg.fpsOutputPath)
	}
	if cfg.updateStatusInterval > 0 {
		s.statusLog = &updateStatusLogger{logger: cfg.logger, interval: cfg.updateStatusInterval}
	}

	s.logger.Debug().
		Int64(`refresh_rate`, int64(cfg.refreshRate)).
		Bool(`vsync`, cfg.vsync).
		Int64(`render_to_fbo_interval`, int64(cfg.renderToFboInterval)).
		Log(`renderloop: scheduler created`)

	return s, nil
}

// Initialize spawns the render goroutine, then blocks until it has
// initialized the graphics device, returning the device's error if any.
// It panics if called twice, or after Stop.
func (s *Scheduler) Initialize() error {
	s.mu.Lock()
	if s.destroy {
		s.mu.Unlock()
		panic(ErrStopped)
	}
	if s.started {
		s.mu.Unlock()
		panic(ErrAlreadyInitialized)
	}
	s.started = true
	surface := s.surface
	s.mu.Unlock()

	if surface != nil {
		surface.SetThreadSynchronization(s)
	}

	go s.run()

	return s.WaitForGraphicsInitialization()
}

// WaitForGraphicsInitialization blocks until the render goroutine has
// initialized the graphics device, or Stop was called before Initialize.
// It must not be called before either.
func (s *Scheduler) WaitForGraphicsInitialization() error {
	<-s.initialized
	return s.initErr
}

// Start begins producing frames, panicking if Initialize did not succeed or
// Start was already called.
func (s *Scheduler) Start() {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started {
		panic(ErrNotInitialized)
	}

	// one render goroutine
	if err := s.WaitForGraphicsInitialization(); err != nil {
		panic(fmt.Errorf("%w: %w", ErrNotInitialized, err))
	}

	if !s.state.TryTransition(StateReady, StateRunning) {
		panic(ErrAlreadyStarted)
	}

	if s.precompiler != nil {
		s.precompiler.Cancel()
	}

	if surface := s.currentSurface(); surface != nil {
		surface.StartRender()
	}

	s.running.Store(true)

	s.logger.Debug().Log(`renderloop: startup complete, starting update/render goroutine`)

	s.runUpdateRenderThread(continuousRun, false, UpdateModeNormal)
}

// Pause stops producing frames once the current frame completes.
func (s *Scheduler) Pause() {
	s.running.Store(false)
	s.state.TryTransition(StateRunning, StateSuspended)

	s.mu.Lock()
	s.runCount = 0
	s.mu.Unlock()

	s.addMarker(MarkerPaused)

	s.logger.Debug().Log(`renderloop: paused`)
}

// Resume restarts a paused scheduler. The first frame's animation delta
// covers the time spent paused, and the frame is cleared in full.
func (s *Scheduler) Resume() {
	if s.running.Load() || !s.isUpdateRenderThreadPaused() {
		return
	}
	if !s.state.TryTransition(StateSuspended, StateRunning) {
		return
	}

	s.logger.Debug().Log(`renderloop: resuming`)

	s.mu.Lock()
	s.forceClear = true
	s.firstFrameAfterResume = true
	s.mu.Unlock()

	s.runUpdateRenderThread(continuousRun, true, UpdateModeNormal)

	s.addMarker(MarkerResumed)

	s.running.Store(true)
}

// Stop stops presenting, then terminates and joins the render goroutine.
// Stop is terminal and idempotent.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		if surface := s.currentSurface(); surface != nil {
			surface.StopRender()
		}

		s.mu.Lock()
		s.destroy = true
		spawned := s.started
		if !spawned {
			s.started = true
			s.exited = true
		}
		s.cond.Broadcast()
		s.mu.Unlock()

		if spawned {
			s.logger.Debug().Log(`renderloop: destroying update/render goroutine`)
			<-s.loopDone
		} else {
			s.initErr = ErrStopped
			close(s.initialized)
		}

		s.running.Store(false)
		s.state.Store(StateStopped)

		s.logger.Debug().Log(`renderloop: stopped`)
	})
}

// RequestUpdate asks for frames to be produced until the scene engine
// reports no further work. It has no effect while paused, beyond keeping
// the scheduler awake once resumed.
func (s *Scheduler) RequestUpdate() {
	s.updateRequestCount.inc()

	if s.running.Load() && s.isUpdateRenderThreadPaused() {
		s.logger.Trace().Log(`renderloop: update requested, waking`)
		s.runUpdateRenderThread(continuousRun, false, UpdateModeNormal)
	}

	// a request landing between the sleep decision and the wait must not be lost
	s.mu.Lock()
	s.pendingUpdateRequest = true
	s.mu.Unlock()
}

// RequestUpdateOnce asks for exactly one more frame if the scheduler is
// paused, or regardless when mode is UpdateModeForceRender.
func (s *Scheduler) RequestUpdateOnce(mode UpdateMode) {
	s.updateRequestCount.inc()

	if s.isUpdateRenderThreadPaused() || mode == UpdateModeForceRender {
		s.logger.Trace().
			Str(`mode`, mode.String()).
			Log(`renderloop: update once requested`)
		s.runUpdateRenderThread(onceRun, false, mode)
	}
}

// ReplaceSurface blocks until the render goroutine has switched to surface.
// It panics if another replacement is still pending.
func (s *Scheduler) ReplaceSurface(surface RenderSurface) {
	if surface == nil {
		panic(ErrNilSurface)
	}

	surface.SetThreadSynchronization(s)

	s.mu.Lock()
	if !s.started || s.exited {
		// the render goroutine configures it on start, if ever
		s.surface = surface
		s.mu.Unlock()
		return
	}
	if s.newSurface != nil {
		s.mu.Unlock()
		panic(ErrSurfaceRequestPending)
	}
	req := newSurfaceRequest(surface)
	// the render goroutine will not complete the in-flight present
	s.postRendering = false
	s.newSurface = req
	s.cond.Broadcast()
	s.mu.Unlock()

	s.logger.Debug().Log(`renderloop: replacing surface, event thread blocked`)

	<-req.done

	s.logger.Debug().Log(`renderloop: surface replaced, event thread continuing`)
}

// DeleteSurface blocks until the render goroutine has destroyed surface.
// It panics if another deletion is still pending.
func (s *Scheduler) DeleteSurface(surface RenderSurface) {
	if surface == nil {
		panic(ErrNilSurface)
	}

	s.mu.Lock()
	if !s.started || s.exited {
		if s.surface == surface {
			s.surface = nil
		}
		s.mu.Unlock()
		surface.DestroySurface()
		return
	}
	if s.deletedSurface != nil {
		s.mu.Unlock()
		panic(ErrSurfaceRequestPending)
	}
	req := newSurfaceRequest(surface)
	s.postRendering = false
	s.deletedSurface = req
	s.cond.Broadcast()
	s.mu.Unlock()

	s.logger.Debug().Log(`renderloop: deleting surface, event thread blocked`)

	<-req.done

	s.logger.Debug().Log(`renderloop: surface deleted, event thread continuing`)
}

// ResizeSurface tells the render goroutine the surface size changed.
func (s *Scheduler) ResizeSurface() {
	s.mu.Lock()
	s.postRendering = false
	s.surfaceResizedCount++
	s.cond.Broadcast()
	s.mu.Unlock()

	s.logger.Debug().Log(`renderloop: resize surface requested`)
}

// SetRenderRefreshRate renders one frame every divisor vsync periods. It
// takes effect from the next computed sleep target. Zero is ignored.
func (s *Scheduler) SetRenderRefreshRate(divisor uint32) {
	if divisor == 0 {
		s.logger.Warning().
			Err(ErrInvalidRefreshRate).
			Log(`renderloop: ignoring refresh rate`)
		return
	}
	s.clock.Configure(divisor)

	s.logger.Debug().
		Float32(`frame_delta`, s.clock.FrameDelta()).
		Uint64(`frame_duration_ms`, s.clock.FrameDurationMs()).
		Uint64(`frame_duration_ns`, s.clock.FrameDurationNs()).
		Log(`renderloop: refresh rate changed`)
}

// RenderRefreshRate returns the refresh rate divisor.
func (s *Scheduler) RenderRefreshRate() uint32 { return s.clock.Divisor() }

// State returns the current lifecycle state.
func (s *Scheduler) State() SchedulerState { return s.state.Load() }

// Running reports whether the scheduler has been started and not paused or
// stopped.
func (s *Scheduler) Running() bool { return s.running.Load() }

// Surface returns the surface the render goroutine renders to by default,
// which may lag a ReplaceSurface still in progress.
func (s *Scheduler) Surface() RenderSurface { return s.currentSurface() }

func (s *Scheduler) currentSurface() RenderSurface {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.surface
}

func (s *Scheduler) runUpdateRenderThread(cycles int, useElapsedTime bool, mode UpdateMode) {
	s.mu.Lock()
	s.runCount = cycles
	s.canSleep = false
	s.useElapsedTimeAfterWait = useElapsedTime
	s.uploadOnly = mode == UpdateModeSkipRender
	s.cond.Broadcast()
	s.mu.Unlock()
}

func (s *Scheduler) isUpdateRenderThreadPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	// not running continuously, or about to sleep
	return s.runCount != continuousRun || s.canSleep
}

// processSleepRequest is the sleep trigger's callback, on the event thread.
func (s *Scheduler) processSleepRequest() {
	if s.updateRequestCount.dec() != 0 {
		return
	}

	s.logger.Trace().Log(`renderloop: going to sleep`)

	s.mu.Lock()
	s.canSleep = true
	s.mu.Unlock()
}

func (s *Scheduler) addMarker(marker Marker) {
	if s.performance != nil {
		s.performance.AddMarker(marker)
	}
}
