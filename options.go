// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package renderloop

import (
	"fmt"
	"time"

	"github.com/joeycumines/go-renderloop/mainloop"
	"github.com/joeycumines/logiface"
)

// DefaultFPSOutputPath is where the FPS tracker writes its record, unless
// configured otherwise.
const DefaultFPSOutputPath = `renderloop-fps.txt`

type schedulerOptions struct {
	logger               *logiface.Logger[logiface.Event]
	triggerFactory       func(callback func()) Trigger
	notificationTrigger  Trigger
	uploader             ResourceUploader
	precompiler          ShaderPrecompiler
	performance          PerformanceMonitor
	fpsOutputPath        string
	fpsTracking          time.Duration
	refreshRate          uint32
	renderToFboInterval  uint32
	updateStatusInterval uint32
	vsync                bool
	legacyBlankSwap      bool
}

// Option configures a Scheduler.
type Option interface {
	applyScheduler(*schedulerOptions) error
}

type optionImpl struct {
	applySchedulerFunc func(*schedulerOptions) error
}

func (o *optionImpl) applyScheduler(opts *schedulerOptions) error {
	return o.applySchedulerFunc(opts)
}

// WithLogger sets the structured logger. A nil logger disables logging.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionImpl{func(opts *schedulerOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithTriggerFactory sets how the sleep trigger is created. The callback
// passed to the factory must be run on the event thread. Without a factory,
// sleep requests are processed directly on the render goroutine.
func WithTriggerFactory(factory func(callback func()) Trigger) Option {
	return &optionImpl{func(opts *schedulerOptions) error {
		opts.triggerFactory = factory
		return nil
	}}
}

// WithLoop is shorthand for WithTriggerFactory, using loop as the event
// thread.
func WithLoop(loop *mainloop.Loop) Option {
	return &optionImpl{func(opts *schedulerOptions) error {
		opts.triggerFactory = func(callback func()) Trigger { return loop.NewTrigger(callback) }
		return nil
	}}
}

// WithNotificationTrigger sets the trigger fired when an Update reports
// UpdateStatus.NeedsNotification.
func WithNotificationTrigger(trigger Trigger) Option {
	return &optionImpl{func(opts *schedulerOptions) error {
		opts.notificationTrigger = trigger
		return nil
	}}
}

// WithRefreshRate sets the initial refresh rate divisor, 1 (60Hz) by default.
func WithRefreshRate(divisor uint32) Option {
	return &optionImpl{func(opts *schedulerOptions) error {
		if divisor == 0 {
			return fmt.Errorf("%w: %d", ErrInvalidRefreshRate, divisor)
		}
		opts.refreshRate = divisor
		return nil
	}}
}

// WithVSync enables or disables sleeping between frames, enabled by default.
func WithVSync(enabled bool) Option {
	return &optionImpl{func(opts *schedulerOptions) error {
		opts.vsync = enabled
		return nil
	}}
}

// WithRenderToFboInterval enables render-to-FBO measurement: only every
// interval'th frame is presented, and frames are never paced. Zero disables.
func WithRenderToFboInterval(interval uint32) Option {
	return &optionImpl{func(opts *schedulerOptions) error {
		opts.renderToFboInterval = interval
		return nil
	}}
}

// WithFPSTracking averages the frame rate over the first tracking duration
// of continuous rendering, then logs it and writes it to path. An empty path
// means DefaultFPSOutputPath. A zero duration disables tracking.
func WithFPSTracking(tracking time.Duration, path string) Option {
	return &optionImpl{func(opts *schedulerOptions) error {
		opts.fpsTracking = tracking
		opts.fpsOutputPath = path
		return nil
	}}
}

// WithUpdateStatusLogging logs the keep-updating status every interval
// frames. Zero disables.
func WithUpdateStatusLogging(interval uint32) Option {
	return &optionImpl{func(opts *schedulerOptions) error {
		opts.updateStatusInterval = interval
		return nil
	}}
}

// WithResourceUploader sets the uploader called before and after each Update.
func WithResourceUploader(uploader ResourceUploader) Option {
	return &optionImpl{func(opts *schedulerOptions) error {
		opts.uploader = uploader
		return nil
	}}
}

// WithShaderPrecompiler sets the precompiler cancelled by Start.
func WithShaderPrecompiler(precompiler ShaderPrecompiler) Option {
	return &optionImpl{func(opts *schedulerOptions) error {
		opts.precompiler = precompiler
		return nil
	}}
}

// WithPerformanceMonitor sets the receiver of frame markers.
func WithPerformanceMonitor(monitor PerformanceMonitor) Option {
	return &optionImpl{func(opts *schedulerOptions) error {
		opts.performance = monitor
		return nil
	}}
}

// WithLegacyBlankSwap controls whether a scene that stops drawing still
// presents one blank frame, enabled by default. Disable it on platforms that
// keep the last presented image when nothing is swapped.
func WithLegacyBlankSwap(enabled bool) Option {
	return &optionImpl{func(opts *schedulerOptions) error {
		opts.legacyBlankSwap = enabled
		return nil
	}}
}

func resolveOptions(opts []Option) (*schedulerOptions, error) {
	cfg := &schedulerOptions{
		refreshRate:     1,
		vsync:           true,
		legacyBlankSwap: true,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyScheduler(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.fpsTracking > 0 && cfg.fpsOutputPath == `` {
		cfg.fpsOutputPath = DefaultFPSOutputPath
	}
	return cfg, nil
}
