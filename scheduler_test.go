// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package renderloop_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/joeycumines/go-renderloop"
	"github.com/joeycumines/go-renderloop/mainloop"
	"github.com/joeycumines/go-renderloop/renderlooptest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 5 * time.Second

type harness struct {
	engine  *renderlooptest.Engine
	device  *renderlooptest.Device
	surface *renderlooptest.Surface
	scene   *renderlooptest.Scene
	sched   *renderloop.Scheduler
}

func newHarness(t *testing.T, opts ...renderloop.Option) *harness {
	t.Helper()
	h := &harness{
		device:  renderlooptest.NewDevice(),
		surface: renderlooptest.NewSurface(`main`),
	}
	h.scene = renderlooptest.NewScene(h.surface)
	h.engine = renderlooptest.NewEngine(h.scene)
	sched, err := renderloop.New(h.engine, h.device, h.surface, append([]renderloop.Option{renderloop.WithVSync(false)}, opts...)...)
	require.NoError(t, err)
	h.sched = sched
	t.Cleanup(sched.Stop)
	return h
}

// start initializes and starts the scheduler, then waits for it to go idle
// after the first frame, and pauses it so frames can be stepped.
func (h *harness) startPaused(t *testing.T) {
	t.Helper()
	require.NoError(t, h.sched.Initialize())
	h.sched.Start()
	require.True(t, h.engine.WaitFor(`PostRender`, 1, waitTimeout))
	h.sched.Pause()
}

// step runs exactly one frame, waiting until it has rendered.
func (h *harness) step(t *testing.T) {
	t.Helper()
	n := h.engine.Count(`PostRender`)
	h.sched.RequestUpdateOnce(renderloop.UpdateModeNormal)
	require.True(t, h.engine.WaitFor(`PostRender`, n+1, waitTimeout))
}

// waitIdle waits until no frame has run for a while.
func waitIdle(t *testing.T, engine *renderlooptest.Engine) {
	t.Helper()
	require.Eventually(t, func() bool {
		before := engine.Count(`Update`)
		time.Sleep(50 * time.Millisecond)
		return before == engine.Count(`Update`)
	}, waitTimeout, time.Millisecond, `expected the render goroutine to go to sleep`)
}

func returnsWithin(t *testing.T, timeout time.Duration, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatal(`timed out waiting for call to return`)
	}
}

func TestNew_nilCollaborators(t *testing.T) {
	_, err := renderloop.New(nil, renderlooptest.NewDevice(), nil)
	assert.ErrorIs(t, err, renderloop.ErrNilEngine)

	_, err = renderloop.New(renderlooptest.NewEngine(), nil, nil)
	assert.ErrorIs(t, err, renderloop.ErrNilDevice)

	_, err = renderloop.New(renderlooptest.NewEngine(), renderlooptest.NewDevice(), nil, renderloop.WithRefreshRate(0))
	assert.ErrorIs(t, err, renderloop.ErrInvalidRefreshRate)
}

func TestScheduler_lifecycle(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, renderloop.StateReady, h.sched.State())

	require.NoError(t, h.sched.Initialize())
	assert.Equal(t, 1, h.device.Count(`Initialize`))
	assert.Equal(t, 1, h.engine.Count(`ContextCreated`))
	assert.Equal(t, []renderloop.RenderSurface{h.surface}, h.device.Configured())
	assert.Equal(t, renderloop.ThreadSynchronization(h.sched), h.surface.ThreadSynchronization())
	assert.Equal(t, 0, h.engine.Count(`Update`), `no frames before Start`)

	h.sched.Start()
	assert.Equal(t, renderloop.StateRunning, h.sched.State())
	assert.True(t, h.sched.Running())
	assert.Equal(t, 1, h.surface.Count(`StartRender`))
	require.True(t, h.engine.WaitFor(`PostRender`, 1, waitTimeout))

	h.sched.Pause()
	assert.Equal(t, renderloop.StateSuspended, h.sched.State())
	assert.False(t, h.sched.Running())

	h.sched.Resume()
	assert.Equal(t, renderloop.StateRunning, h.sched.State())
	require.True(t, h.device.WaitFor(`Resume`, 1, waitTimeout))
	require.True(t, h.engine.WaitFor(`PreRender(forceClear)`, 1, waitTimeout))

	// no-op while running
	h.sched.Resume()

	h.sched.Stop()
	assert.Equal(t, renderloop.StateStopped, h.sched.State())
	assert.False(t, h.sched.Running())
	assert.Equal(t, 1, h.surface.Count(`StopRender`))
	assert.Equal(t, 1, h.engine.Count(`ContextDestroyed`))
	assert.Equal(t, 1, h.device.Count(`Shutdown`))

	h.sched.Stop()
	assert.Equal(t, 1, h.device.Count(`Shutdown`))
}

func TestScheduler_contractViolationsPanic(t *testing.T) {
	h := newHarness(t)
	require.PanicsWithValue(t, renderloop.ErrNotInitialized, h.sched.Start)
	require.NoError(t, h.sched.Initialize())
	require.PanicsWithValue(t, renderloop.ErrAlreadyInitialized, func() { _ = h.sched.Initialize() })
	h.sched.Start()
	require.PanicsWithValue(t, renderloop.ErrAlreadyStarted, h.sched.Start)
	require.PanicsWithValue(t, renderloop.ErrNilSurface, func() { h.sched.ReplaceSurface(nil) })
	require.PanicsWithValue(t, renderloop.ErrNilSurface, func() { h.sched.DeleteSurface(nil) })

	h2 := newHarness(t)
	h2.sched.Stop()
	require.PanicsWithValue(t, renderloop.ErrStopped, func() { _ = h2.sched.Initialize() })
	assert.ErrorIs(t, h2.sched.WaitForGraphicsInitialization(), renderloop.ErrStopped)
}

func TestScheduler_initializeError(t *testing.T) {
	h := newHarness(t)
	initErr := errors.New(`no display`)
	h.device.SetInitializeError(initErr)

	err := h.sched.Initialize()
	require.ErrorIs(t, err, initErr)
	assert.ErrorIs(t, h.sched.WaitForGraphicsInitialization(), initErr)
	assert.Equal(t, 0, h.engine.Count(`ContextCreated`))

	require.Panics(t, h.sched.Start)

	returnsWithin(t, waitTimeout, h.sched.Stop)
	assert.Equal(t, renderloop.StateStopped, h.sched.State())
}

func TestScheduler_sleepConvergence(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.sched.Initialize())
	h.sched.Start()
	require.True(t, h.engine.WaitFor(`PostRender`, 1, waitTimeout))
	waitIdle(t, h.engine)

	before := h.engine.Count(`Update`)
	for range 5 {
		h.sched.RequestUpdate()
	}
	require.True(t, h.engine.WaitFor(`Update`, before+1, waitTimeout))
	waitIdle(t, h.engine)
	assert.LessOrEqual(t, h.engine.Count(`Update`)-before, 5)
}

func TestScheduler_requestBurstWhileSuspended(t *testing.T) {
	h := newHarness(t)
	h.startPaused(t)
	waitIdle(t, h.engine)

	before := h.engine.Count(`Update`)
	for range 10 {
		h.sched.RequestUpdate()
	}
	h.sched.Resume()
	require.True(t, h.engine.WaitFor(`Update`, before+1, waitTimeout))
	waitIdle(t, h.engine)

	// the request count saturates at two, one frame per request
	assert.Equal(t, before+2, h.engine.Count(`Update`))
}

func TestScheduler_requestUpdateWhileAsleepUsesBaselineDelta(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.sched.Initialize())
	h.sched.Start()
	require.True(t, h.engine.WaitFor(`PostRender`, 1, waitTimeout))
	waitIdle(t, h.engine)

	frames := h.engine.Frames()
	require.NotEmpty(t, frames)
	assert.Zero(t, frames[0].Delta, `first frame after Start has no animation progression`)

	before := len(h.engine.Frames())
	h.engine.KeepUpdatingFor(3)
	h.sched.RequestUpdate()
	require.True(t, h.engine.WaitFor(`Update`, before+4, waitTimeout))
	waitIdle(t, h.engine)

	frames = h.engine.Frames()[before:]
	require.GreaterOrEqual(t, len(frames), 4)
	assert.Zero(t, frames[0].Delta, `woken without elapsed time`)
	for _, f := range frames[1:] {
		assert.Greater(t, f.Delta, float32(0))
	}
	for _, f := range frames {
		assert.Greater(t, f.NextVSyncMs, f.LastVSyncMs)
	}
}

func TestScheduler_resumeUsesElapsedTime(t *testing.T) {
	h := newHarness(t)
	h.startPaused(t)

	before := len(h.engine.Frames())
	h.sched.Resume()
	require.True(t, h.engine.WaitFor(`Update`, before+1, waitTimeout))

	frames := h.engine.Frames()
	assert.Greater(t, frames[before].Delta, float32(0))
}

func TestScheduler_requestUpdateOnce(t *testing.T) {
	h := newHarness(t)
	h.startPaused(t)

	before := h.engine.Count(`Update`)
	h.sched.RequestUpdateOnce(renderloop.UpdateModeNormal)
	require.True(t, h.engine.WaitFor(`Update`, before+1, waitTimeout))
	waitIdle(t, h.engine)
	assert.Equal(t, before+1, h.engine.Count(`Update`))

	// a paused scheduler ignores RequestUpdate
	h.sched.RequestUpdate()
	waitIdle(t, h.engine)
	assert.Equal(t, before+1, h.engine.Count(`Update`))

	preRenders := h.engine.Count(`PreRender`)
	h.sched.RequestUpdateOnce(renderloop.UpdateModeSkipRender)
	require.True(t, h.engine.WaitFor(`Update`, before+2, waitTimeout))
	frames := h.engine.Frames()
	assert.True(t, frames[len(frames)-1].UploadOnly)

	h.step(t)
	assert.Equal(t, preRenders+1, h.engine.Count(`PreRender`), `upload only frames do not render`)
	frames = h.engine.Frames()
	assert.False(t, frames[len(frames)-1].UploadOnly)
}

func TestScheduler_forceRenderWhileRunning(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.sched.Initialize())
	h.engine.KeepUpdatingFor(1 << 30)
	h.sched.Start()
	require.True(t, h.engine.WaitFor(`Update`, 3, waitTimeout))

	h.sched.RequestUpdateOnce(renderloop.UpdateModeForceRender)
	// a single forced cycle replaces continuous running, until the next request
	waitIdle(t, h.engine)

	before := h.engine.Count(`Update`)
	h.sched.RequestUpdate()
	require.True(t, h.engine.WaitFor(`Update`, before+3, waitTimeout))
}

func TestScheduler_replaceSurface(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.sched.Initialize())
	h.sched.Start()
	require.True(t, h.engine.WaitFor(`PostRender`, 1, waitTimeout))
	waitIdle(t, h.engine)

	replacement := renderlooptest.NewSurface(`replacement`)
	returnsWithin(t, waitTimeout, func() { h.sched.ReplaceSurface(replacement) })

	assert.Equal(t, renderloop.RenderSurface(replacement), h.sched.Surface())
	assert.Equal(t, []renderloop.RenderSurface{h.surface, replacement}, h.device.Configured())
	assert.Equal(t, renderloop.ThreadSynchronization(h.sched), replacement.ThreadSynchronization())
}

func TestScheduler_deleteSurface(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.sched.Initialize())
	h.sched.Start()
	require.True(t, h.engine.WaitFor(`PostRender`, 1, waitTimeout))

	h.engine.SetScenes()
	returnsWithin(t, waitTimeout, func() { h.sched.DeleteSurface(h.surface) })

	assert.Equal(t, 1, h.surface.Count(`DestroySurface`))
	assert.Nil(t, h.sched.Surface())
}

func TestScheduler_surfaceRequestsWithoutRenderGoroutine(t *testing.T) {
	h := newHarness(t)

	replacement := renderlooptest.NewSurface(`replacement`)
	returnsWithin(t, waitTimeout, func() { h.sched.ReplaceSurface(replacement) })
	assert.Equal(t, renderloop.RenderSurface(replacement), h.sched.Surface())

	require.NoError(t, h.sched.Initialize())
	assert.Equal(t, []renderloop.RenderSurface{replacement}, h.device.Configured())

	h.sched.Stop()

	returnsWithin(t, waitTimeout, func() { h.sched.DeleteSurface(replacement) })
	assert.Equal(t, 1, replacement.Count(`DestroySurface`))
	assert.Nil(t, h.sched.Surface())
}

func TestScheduler_postRenderBarrier(t *testing.T) {
	h := newHarness(t)
	h.surface.SetAsyncPresent(true)
	h.engine.KeepUpdatingFor(1 << 30)
	require.NoError(t, h.sched.Initialize())
	h.sched.Start()

	require.True(t, h.surface.WaitFor(`PostRender`, 1, waitTimeout))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, h.engine.Count(`PostRender`), `render goroutine waits for the present`)

	h.surface.Present()
	require.True(t, h.engine.WaitFor(`PostRender`, 1, waitTimeout))

	// a resize abandons the wait
	require.True(t, h.surface.WaitFor(`PostRender`, 2, waitTimeout))
	h.sched.ResizeSurface()
	require.True(t, h.engine.WaitFor(`PostRender`, 2, waitTimeout))
	require.Eventually(t, func() bool { return h.surface.Resized() >= 1 }, waitTimeout, time.Millisecond)

	// as does Stop
	n := h.surface.Count(`PostRender`)
	require.True(t, h.surface.WaitFor(`PostRender`, n+1, waitTimeout))
	returnsWithin(t, waitTimeout, h.sched.Stop)
}

func TestScheduler_replaceSurfaceDuringPresent(t *testing.T) {
	h := newHarness(t)
	h.surface.SetAsyncPresent(true)
	h.engine.KeepUpdatingFor(1 << 30)
	require.NoError(t, h.sched.Initialize())
	h.sched.Start()
	require.True(t, h.surface.WaitFor(`PostRender`, 1, waitTimeout))

	replacement := renderlooptest.NewSurface(`replacement`)
	h.scene.SetSurface(replacement)
	returnsWithin(t, waitTimeout, func() { h.sched.ReplaceSurface(replacement) })
	require.True(t, replacement.WaitFor(`PostRender`, 1, waitTimeout))
}

func TestScheduler_presentPolicy(t *testing.T) {
	t.Run(`content`, func(t *testing.T) {
		h := newHarness(t)
		h.startPaused(t)
		h.device.Reset()
		h.engine.Reset()

		h.step(t)
		assert.Equal(t, 1, h.device.Count(`AcquireNextImage`))
		if diff := cmp.Diff([]string{
			`Update`,
			`PreRender`,
			`PreRenderScene`,
			`RenderScene(offscreen)`,
			`RenderScene`,
			`PostRender`,
		}, h.engine.Calls()); diff != `` {
			t.Errorf("unexpected engine calls (-want +got):\n%s", diff)
		}
		assert.Equal(t, 1, h.device.Count(`PostRender`))
	})

	t.Run(`legacy blank swap`, func(t *testing.T) {
		h := newHarness(t)
		h.startPaused(t)

		h.scene.SetWillRender(false)
		h.device.Reset()
		h.step(t)
		assert.Equal(t, 1, h.device.Count(`AcquireNextImage`), `previous frame rendered, swap once more`)

		h.device.Reset()
		h.step(t)
		assert.Equal(t, 0, h.device.Count(`AcquireNextImage`))
	})

	t.Run(`legacy blank swap disabled`, func(t *testing.T) {
		h := newHarness(t, renderloop.WithLegacyBlankSwap(false))
		h.startPaused(t)

		h.scene.SetWillRender(false)
		h.device.Reset()
		h.step(t)
		assert.Equal(t, 0, h.device.Count(`AcquireNextImage`))
	})

	t.Run(`full swap and forced present`, func(t *testing.T) {
		h := newHarness(t, renderloop.WithLegacyBlankSwap(false))
		h.startPaused(t)
		h.scene.SetWillRender(false)

		h.surface.SetFullSwapNextFrame(true)
		h.device.Reset()
		h.step(t)
		assert.Equal(t, 1, h.device.Count(`AcquireNextImage`))

		h.surface.SetFullSwapNextFrame(false)
		h.device.SetForcePresentRequired(true)
		h.device.Reset()
		h.step(t)
		assert.Equal(t, 1, h.device.Count(`AcquireNextImage`))
	})

	t.Run(`skipped scene`, func(t *testing.T) {
		h := newHarness(t)
		h.startPaused(t)

		h.scene.SetRenderingSkipped(true)
		h.device.Reset()
		h.step(t)
		assert.Equal(t, 0, h.device.Count(`AcquireNextImage`))
	})

	t.Run(`acquire failure`, func(t *testing.T) {
		h := newHarness(t)
		h.startPaused(t)

		h.device.SetAcquireFails(true)
		h.engine.Reset()
		h.step(t)
		assert.Equal(t, 0, h.engine.Count(`RenderScene`))
		assert.Equal(t, 0, h.engine.Count(`ClearScene`))
	})

	t.Run(`not presented`, func(t *testing.T) {
		h := newHarness(t)
		h.startPaused(t)

		h.device.SetNotPresented(true)
		h.engine.Reset()
		h.step(t)
		assert.Equal(t, 1, h.engine.Count(`RenderScene`))
		assert.Equal(t, 1, h.engine.Count(`ClearScene`))
	})

	t.Run(`surface unavailable`, func(t *testing.T) {
		h := newHarness(t)
		h.startPaused(t)

		h.surface.SetUnavailable(true)
		h.engine.Reset()
		h.step(t)
		assert.Equal(t, 0, h.engine.Count(`RenderScene`))
		assert.Equal(t, 1, h.engine.Count(`ClearScene`))
	})
}

func TestScheduler_damagedRegions(t *testing.T) {
	damage := []renderloop.Rect{{X: 0, Y: 0, Width: 10, Height: 10}, {X: 20, Y: 20, Width: 5, Height: 5}}

	t.Run(`partial update`, func(t *testing.T) {
		h := newHarness(t)
		h.device.SetPartialUpdateMode(renderloop.PartialUpdateDamaged)
		h.scene.SetDamaged(damage...)
		h.startPaused(t)
		h.step(t)

		all := h.surface.Damaged()
		assert.Equal(t, damage, all[len(all)-1])
		clips := h.engine.Clips()
		assert.Equal(t, renderloop.Rect{X: 0, Y: 0, Width: 25, Height: 25}, clips[len(clips)-1])
	})

	t.Run(`full update`, func(t *testing.T) {
		h := newHarness(t)
		h.scene.SetDamaged(damage...)
		h.startPaused(t)
		h.step(t)

		all := h.surface.Damaged()
		assert.Empty(t, all[len(all)-1])
		clips := h.engine.Clips()
		assert.True(t, clips[len(clips)-1].Empty())
	})
}

func TestScheduler_renderToFbo(t *testing.T) {
	h := newHarness(t, renderloop.WithRenderToFboInterval(3))
	h.engine.KeepUpdatingFor(6)
	require.NoError(t, h.sched.Initialize())
	h.sched.Start()
	require.True(t, h.engine.WaitFor(`Update`, 7, waitTimeout))
	waitIdle(t, h.engine)

	var got []bool
	for _, f := range h.engine.Frames() {
		assert.True(t, f.RenderToFbo)
		got = append(got, f.IsRenderingToFbo)
	}
	if diff := cmp.Diff([]bool{true, true, true, false, true, true, false}, got); diff != `` {
		t.Errorf("unexpected fbo frames (-want +got):\n%s", diff)
	}
	assert.Equal(t, 2, h.engine.Count(`RenderScene`))
}

func TestScheduler_triggersAndHooks(t *testing.T) {
	var (
		sleepTrigger *renderlooptest.Trigger
		uploads      atomic.Int32
		cancels      atomic.Int32
	)
	notification := renderlooptest.NewTrigger(nil)
	monitor := new(renderlooptest.PerformanceMonitor)

	h := newHarness(t,
		renderloop.WithTriggerFactory(func(callback func()) renderloop.Trigger {
			sleepTrigger = renderlooptest.NewTrigger(callback)
			return sleepTrigger
		}),
		renderloop.WithNotificationTrigger(notification),
		renderloop.WithPerformanceMonitor(monitor),
		renderloop.WithResourceUploader(uploaderFunc(func() bool {
			uploads.Add(1)
			return false
		})),
		renderloop.WithShaderPrecompiler(precompilerFunc(func() { cancels.Add(1) })),
	)
	require.NotNil(t, sleepTrigger)
	h.engine.SetNeedsNotification(true)

	h.startPaused(t)
	h.sched.Resume()
	require.True(t, monitor.WaitFor(`Resumed`, 1, waitTimeout))
	require.True(t, h.engine.WaitFor(`PostRender`, 2, waitTimeout))
	waitIdle(t, h.engine)

	assert.Equal(t, int32(1), cancels.Load())
	assert.GreaterOrEqual(t, sleepTrigger.Count(`Trigger`), 2)
	assert.GreaterOrEqual(t, notification.Count(`Trigger`), 2)
	assert.Equal(t, int32(2*h.engine.Count(`Update`)), uploads.Load())

	for _, marker := range []string{`VSync`, `UpdateStart`, `UpdateEnd`, `RenderStart`, `RenderEnd`, `Paused`, `Resumed`} {
		assert.NotZero(t, monitor.Count(marker), marker)
	}
}

func TestScheduler_withLoop(t *testing.T) {
	loop, err := mainloop.New()
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = loop.Run(ctx) }()
	defer loop.Close()

	h := newHarness(t, renderloop.WithLoop(loop))
	require.NoError(t, h.sched.Initialize())
	h.sched.Start()
	require.True(t, h.engine.WaitFor(`PostRender`, 1, waitTimeout))

	// the sleep request round trips through the event loop
	waitIdle(t, h.engine)

	before := h.engine.Count(`Update`)
	require.NoError(t, loop.Submit(h.sched.RequestUpdate))
	require.True(t, h.engine.WaitFor(`Update`, before+1, waitTimeout))
}

func TestScheduler_setRenderRefreshRate(t *testing.T) {
	h := newHarness(t, renderloop.WithRefreshRate(2))
	assert.Equal(t, uint32(2), h.sched.RenderRefreshRate())
	h.sched.SetRenderRefreshRate(0)
	assert.Equal(t, uint32(2), h.sched.RenderRefreshRate())
	h.sched.SetRenderRefreshRate(3)
	assert.Equal(t, uint32(3), h.sched.RenderRefreshRate())
}

type uploaderFunc func() bool

func (f uploaderFunc) ResourceUpload() bool { return f() }

type precompilerFunc func()

func (f precompilerFunc) Cancel() { f() }
