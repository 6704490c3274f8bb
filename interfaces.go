// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package renderloop

import (
	"strings"
)

// Rect is an axis aligned rectangle in surface pixels.
type Rect struct {
	X, Y, Width, Height int
}

// Empty reports whether r covers no pixels.
func (r Rect) Empty() bool { return r.Width <= 0 || r.Height <= 0 }

// Union returns the smallest Rect containing both r and o. Empty rects are
// ignored.
func (r Rect) Union(o Rect) Rect {
	if r.Empty() {
		return o
	}
	if o.Empty() {
		return r
	}
	x0, y0 := min(r.X, o.X), min(r.Y, o.Y)
	x1, y1 := max(r.X+r.Width, o.X+o.Width), max(r.Y+r.Height, o.Y+o.Height)
	return Rect{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// KeepUpdating is a set of reasons the scene engine gives for wanting another
// update. The zero value means no further update is requested.
type KeepUpdating uint32

const (
	// KeepUpdatingNotRequested means the scene is idle.
	KeepUpdatingNotRequested KeepUpdating = 0
	// KeepUpdatingStageKeepRendering is set while the stage has been told to
	// keep rendering for a period.
	KeepUpdatingStageKeepRendering KeepUpdating = 1 << 1
	// KeepUpdatingAnimationsRunning is set while any animation is playing.
	KeepUpdatingAnimationsRunning KeepUpdating = 1 << 2
	// KeepUpdatingMonitoringPerformance is set while performance is sampled.
	KeepUpdatingMonitoringPerformance KeepUpdating = 1 << 3
	// KeepUpdatingRenderTaskSync is set while a render task awaits a sync.
	KeepUpdatingRenderTaskSync KeepUpdating = 1 << 4
	// KeepUpdatingLoadingResources is set while resources are still loading.
	KeepUpdatingLoadingResources KeepUpdating = 1 << 5
)

var keepUpdatingNames = [...]struct {
	flag KeepUpdating
	name string
}{
	{KeepUpdatingStageKeepRendering, `StageKeepRendering`},
	{KeepUpdatingAnimationsRunning, `AnimationsRunning`},
	{KeepUpdatingMonitoringPerformance, `MonitoringPerformance`},
	{KeepUpdatingRenderTaskSync, `RenderTaskSync`},
	{KeepUpdatingLoadingResources, `LoadingResources`},
}

// String implements fmt.Stringer, joining the set reasons with "|".
func (k KeepUpdating) String() string {
	if k == KeepUpdatingNotRequested {
		return `NotRequested`
	}
	var b strings.Builder
	rest := k
	for _, n := range keepUpdatingNames {
		if k&n.flag == 0 {
			continue
		}
		rest &^= n.flag
		if b.Len() != 0 {
			b.WriteByte('|')
		}
		b.WriteString(n.name)
	}
	if rest != 0 {
		if b.Len() != 0 {
			b.WriteByte('|')
		}
		b.WriteString(`Unknown`)
	}
	return b.String()
}

// UpdateFrame describes one Update phase.
type UpdateFrame struct {
	// Delta is the animation time step in seconds. It is zero for the first
	// frame after a wake that did not request elapsed time.
	Delta float32
	// LastVSyncMs is the frame start, in milliseconds.
	LastVSyncMs uint64
	// NextVSyncMs is the predicted start of the next frame, in milliseconds.
	NextVSyncMs uint64
	// RenderToFbo is set when render-to-FBO measurement is configured.
	RenderToFbo bool
	// IsRenderingToFbo is set for the frames that render to the FBO only.
	IsRenderingToFbo bool
	// UploadOnly is set when the frame was requested with UpdateModeSkipRender.
	UploadOnly bool
}

// UpdateStatus is filled in by SceneEngine.Update.
type UpdateStatus struct {
	KeepUpdating KeepUpdating
	// NeedsNotification asks the event thread to process core events.
	NeedsNotification bool
	// SurfaceRectChanged reports a viewport change.
	SurfaceRectChanged bool
}

// RenderStatus is filled in by SceneEngine.PreRender and RenderScene.
type RenderStatus struct {
	NeedsUpdate     bool
	NeedsPostRender bool
}

// SceneStatus is filled in by SceneEngine.PreRenderScene.
type SceneStatus struct {
	// WillRender reports whether the scene has anything to draw this frame.
	WillRender bool
}

// UpdateMode selects the behavior of RequestUpdateOnce.
type UpdateMode uint8

const (
	// UpdateModeNormal runs one more frame if the scheduler is paused.
	UpdateModeNormal UpdateMode = iota
	// UpdateModeForceRender runs one more frame even while running.
	UpdateModeForceRender
	// UpdateModeSkipRender runs one more frame, uploading resources without
	// rendering.
	UpdateModeSkipRender
)

// String implements fmt.Stringer.
func (m UpdateMode) String() string {
	switch m {
	case UpdateModeNormal:
		return `Normal`
	case UpdateModeForceRender:
		return `ForceRender`
	case UpdateModeSkipRender:
		return `SkipRender`
	default:
		return `Unknown`
	}
}

// PartialUpdateMode is how much of the damaged area the graphics device
// can present.
type PartialUpdateMode uint8

const (
	// PartialUpdateNone presents the whole surface each frame, damaged
	// regions are not collected.
	PartialUpdateNone PartialUpdateMode = iota
	// PartialUpdateDamaged presents only the union of damaged regions.
	PartialUpdateDamaged
)

// Scene is one window's worth of scene graph.
type Scene interface {
	// Surface may return nil, in which case the scene is not rendered.
	Surface() RenderSurface
	// IsRenderingSkipped reports the scene is hidden and must not present.
	IsRenderingSkipped() bool
}

// SceneEngine is the scene graph, driven once per frame from the render
// goroutine. Every method is called on the render goroutine.
type SceneEngine interface {
	ContextCreated()
	ContextDestroyed()
	Update(frame UpdateFrame, status *UpdateStatus)
	PreRender(status *RenderStatus, forceClear bool)
	Scenes() []Scene
	// PreRenderScene appends the damaged regions of scene to damaged, and
	// returns the result.
	PreRenderScene(scene Scene, status *SceneStatus, damaged []Rect) []Rect
	// RenderScene renders either the offscreen targets or the surface of
	// scene, the latter clipped to clip unless it is empty.
	RenderScene(scene Scene, status *RenderStatus, offscreen bool, clip Rect)
	// ClearScene releases an acquired image that was not presented.
	ClearScene(scene Scene)
	PostRender()
}

// GraphicsDevice abstracts the graphics backend. Every method is called on
// the render goroutine.
type GraphicsDevice interface {
	Initialize() error
	ConfigureSurface(surface RenderSurface)
	ActivateResourceContext()
	ActivateSurfaceContext(surface RenderSurface)
	FrameStart()
	// AcquireNextImage returns false if no image could be acquired, in which
	// case the surface is not rendered this frame.
	AcquireNextImage(surface RenderSurface) bool
	// DidPresent reports whether the last render presented an image.
	DidPresent() bool
	// ForcePresentRequired reports the backend needs a present every frame.
	ForcePresentRequired() bool
	PartialUpdateMode() PartialUpdateMode
	PostRender()
	Resume()
	Shutdown()
}

// RenderSurface is a presentable target, typically a window.
type RenderSurface interface {
	// SetThreadSynchronization is called on the event thread, before the
	// surface is first used by the render goroutine.
	SetThreadSynchronization(sync ThreadSynchronization)
	StartRender()
	StopRender()
	// PreRender switches to the surface, merging damaged regions into clip.
	// It returns false if the surface cannot be rendered this frame.
	PreRender(resized bool, damaged []Rect, clip *Rect) bool
	PostRender()
	// FullSwapNextFrame reports the whole surface must be presented, for
	// example after a background color change.
	FullSwapNextFrame() bool
	DestroySurface()
}

// ThreadSynchronization is the barrier surfaces use to coordinate
// asynchronous presentation with the render goroutine.
type ThreadSynchronization interface {
	// PostRenderStarted is called on the render goroutine before an
	// asynchronous present.
	PostRenderStarted()
	// PostRenderWaitForCompletion is called on the render goroutine, and
	// blocks until PostRenderComplete, or until a surface change or Stop
	// makes waiting pointless.
	PostRenderWaitForCompletion()
	// PostRenderComplete may be called from any goroutine.
	PostRenderComplete()
}

// Trigger wakes the event thread, which then runs the callback the trigger
// was created with. It must coalesce, and be safe for concurrent use.
type Trigger interface {
	Trigger()
}

// ResourceUploader uploads pending textures on the render goroutine,
// returning true if anything was uploaded.
type ResourceUploader interface {
	ResourceUpload() bool
}

// ShaderPrecompiler is cancelled once rendering starts.
type ShaderPrecompiler interface {
	Cancel()
}

// Marker identifies a point in the frame for a PerformanceMonitor.
type Marker uint8

const (
	MarkerVSync Marker = iota
	MarkerUpdateStart
	MarkerUpdateEnd
	MarkerRenderStart
	MarkerRenderEnd
	MarkerPaused
	MarkerResumed
)

// String implements fmt.Stringer.
func (m Marker) String() string {
	switch m {
	case MarkerVSync:
		return `VSync`
	case MarkerUpdateStart:
		return `UpdateStart`
	case MarkerUpdateEnd:
		return `UpdateEnd`
	case MarkerRenderStart:
		return `RenderStart`
	case MarkerRenderEnd:
		return `RenderEnd`
	case MarkerPaused:
		return `Paused`
	case MarkerResumed:
		return `Resumed`
	default:
		return `Unknown`
	}
}

// PerformanceMonitor receives frame markers. AddMarker is called from both
// the render goroutine and the event thread.
type PerformanceMonitor interface {
	AddMarker(marker Marker)
}
