// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package asynctask

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joeycumines/go-renderloop/mainloop"
	"github.com/joeycumines/logiface"
)

const (
	// DefaultThreadPoolSize is the number of workers when not configured.
	DefaultThreadPoolSize = 8
	// MaxThreadPoolSize caps the number of workers.
	MaxThreadPoolSize = 16
	// DefaultLowPriorityThreadPoolSize is the number of workers that may run
	// low priority tasks, when not configured.
	DefaultLowPriorityThreadPoolSize = 6

	// EnvThreadPoolSize overrides DefaultThreadPoolSize.
	EnvThreadPoolSize = `RENDERLOOP_ASYNC_THREAD_POOL_SIZE`
	// EnvLowPriorityThreadPoolSize overrides DefaultLowPriorityThreadPoolSize.
	EnvLowPriorityThreadPoolSize = `RENDERLOOP_ASYNC_LOW_PRIORITY_THREAD_POOL_SIZE`
)

// Trigger wakes the event thread, which must then call Manager.TasksCompleted.
// Implementations must coalesce and be safe for concurrent use, see
// mainloop.TriggerEvent.
type Trigger interface {
	Trigger()
}

// ProcessorRegistry is the event thread's per-iteration hook registry, see
// mainloop.Loop.
type ProcessorRegistry interface {
	RegisterProcessor(p mainloop.Processor)
	UnregisterProcessor(p mainloop.Processor)
}

type managerOptions struct {
	logger         *logiface.Logger[logiface.Event]
	triggerFactory func(callback func()) Trigger
	registry       ProcessorRegistry
	lookupEnv      func(string) (string, bool)
	threads        int
	lowThreads     int
}

// Option configures a Manager.
type Option interface {
	applyManager(*managerOptions) error
}

type optionImpl struct {
	applyManagerFunc func(*managerOptions) error
}

func (o *optionImpl) applyManager(opts *managerOptions) error {
	return o.applyManagerFunc(opts)
}

// WithLogger sets the structured logger. A nil logger disables logging.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionImpl{func(opts *managerOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithTriggerFactory sets how the completion trigger is created. The
// callback passed to the factory must be run on the event thread.
// Without a factory, completions are only drained by Process or explicit
// TasksCompleted calls.
func WithTriggerFactory(factory func(callback func()) Trigger) Option {
	return &optionImpl{func(opts *managerOptions) error {
		opts.triggerFactory = factory
		return nil
	}}
}

// WithProcessorRegistry sets the registry the manager registers itself
// with, while it has outstanding work.
func WithProcessorRegistry(registry ProcessorRegistry) Option {
	return &optionImpl{func(opts *managerOptions) error {
		opts.registry = registry
		return nil
	}}
}

// WithLoop is shorthand for WithTriggerFactory and WithProcessorRegistry,
// using loop as the event thread.
func WithLoop(loop *mainloop.Loop) Option {
	return &optionImpl{func(opts *managerOptions) error {
		opts.triggerFactory = func(callback func()) Trigger { return loop.NewTrigger(callback) }
		opts.registry = loop
		return nil
	}}
}

// WithThreadPoolSize sets the number of workers, overriding the environment.
func WithThreadPoolSize(n int) Option {
	return &optionImpl{func(opts *managerOptions) error {
		if n < 1 || n > MaxThreadPoolSize {
			return fmt.Errorf("%w: %d", ErrInvalidThreadPoolSize, n)
		}
		opts.threads = n
		return nil
	}}
}

// WithLowPriorityThreadPoolSize sets the number of low priority slots,
// overriding the environment. Values above the pool size are clamped.
func WithLowPriorityThreadPoolSize(n int) Option {
	return &optionImpl{func(opts *managerOptions) error {
		if n < 1 {
			return fmt.Errorf("%w: low priority %d", ErrInvalidThreadPoolSize, n)
		}
		opts.lowThreads = n
		return nil
	}}
}

// WithLookupEnv replaces os.LookupEnv, for reading the pool sizes.
func WithLookupEnv(lookup func(key string) (string, bool)) Option {
	return &optionImpl{func(opts *managerOptions) error {
		opts.lookupEnv = lookup
		return nil
	}}
}

func resolveOptions(opts []Option) (*managerOptions, error) {
	cfg := &managerOptions{lookupEnv: os.LookupEnv}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyManager(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.threads == 0 {
		cfg.threads = envInt(cfg, EnvThreadPoolSize, DefaultThreadPoolSize)
		cfg.threads = min(max(cfg.threads, 1), MaxThreadPoolSize)
	}
	if cfg.lowThreads == 0 {
		cfg.lowThreads = envInt(cfg, EnvLowPriorityThreadPoolSize, DefaultLowPriorityThreadPoolSize)
		cfg.lowThreads = max(cfg.lowThreads, 1)
	}
	cfg.lowThreads = min(cfg.lowThreads, cfg.threads)

	return cfg, nil
}

// envInt reads a positive integer, falling back to def if unset or invalid.
func envInt(cfg *managerOptions, key string, def int) int {
	s, ok := cfg.lookupEnv(key)
	if !ok || s == `` {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		cfg.logger.Warning().
			Str(`key`, key).
			Str(`value`, s).
			Int(`default`, def).
			Log(`asynctask: ignoring invalid environment value`)
		return def
	}
	return v
}
