// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package config loads scheduler, async task and logging settings from a
// TOML file, overridden by RENDERLOOP_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joeycumines/go-renderloop"
	"github.com/joeycumines/go-renderloop/asynctask"
	"github.com/joeycumines/logiface"
)

const (
	EnvRefreshRate          = `RENDERLOOP_REFRESH_RATE`
	EnvDisableVSync         = `RENDERLOOP_DISABLE_VSYNC`
	EnvRenderToFbo          = `RENDERLOOP_RENDER_TO_FBO`
	EnvFPSTracking          = `RENDERLOOP_FPS_TRACKING`
	EnvFPSOutput            = `RENDERLOOP_FPS_OUTPUT`
	EnvUpdateStatusInterval = `RENDERLOOP_UPDATE_STATUS_INTERVAL`
	EnvLogLevel             = `RENDERLOOP_LOG_LEVEL`
)

var (
	ErrUnknownKeys  = errors.New("config: unknown keys")
	ErrInvalidValue = errors.New("config: invalid value")
)

// Config is the root of the TOML document.
type Config struct {
	Scheduler  Scheduler  `toml:"scheduler"`
	AsyncTasks AsyncTasks `toml:"async_tasks"`
	Logging    Logging    `toml:"logging"`
}

// Scheduler configures renderloop.New. Zero values keep the defaults.
type Scheduler struct {
	VSync                *bool  `toml:"vsync"`
	LegacyBlankSwap      *bool  `toml:"legacy_blank_swap"`
	FPSOutput            string `toml:"fps_output"`
	RefreshRate          uint32 `toml:"refresh_rate"`
	RenderToFboInterval  uint32 `toml:"render_to_fbo_interval"`
	FPSTrackingSeconds   uint32 `toml:"fps_tracking_seconds"`
	UpdateStatusInterval uint32 `toml:"update_status_interval"`
}

// AsyncTasks configures asynctask.New. Zero values defer to the
// environment variables asynctask reads itself. ThreadPoolSize is clamped to
// asynctask.MaxThreadPoolSize.
type AsyncTasks struct {
	ThreadPoolSize            int `toml:"thread_pool_size"`
	LowPriorityThreadPoolSize int `toml:"low_priority_thread_pool_size"`
}

// Logging configures the demo's logger.
type Logging struct {
	// Level is a logiface.Level keyword, e.g. "info" or "debug".
	Level string `toml:"level"`
}

// Load reads path, which may be empty to skip the file, then applies
// overrides from lookupEnv, os.LookupEnv if nil.
func Load(path string, lookupEnv func(string) (string, bool)) (*Config, error) {
	var c Config
	if path != `` {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		if err := c.decode(string(b)); err != nil {
			return nil, fmt.Errorf("%w (%s)", err, path)
		}
	}
	if lookupEnv == nil {
		lookupEnv = os.LookupEnv
	}
	if err := c.ApplyEnv(lookupEnv); err != nil {
		return nil, err
	}
	return &c, nil
}

// Parse decodes a TOML document, without environment overrides.
func Parse(data string) (*Config, error) {
	var c Config
	if err := c.decode(data); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) decode(data string) error {
	md, err := toml.Decode(data, c)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) != 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("%w: %s", ErrUnknownKeys, strings.Join(keys, `, `))
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	return nil
}

// ApplyEnv overrides c from the RENDERLOOP_* variables.
func (c *Config) ApplyEnv(lookupEnv func(string) (string, bool)) error {
	for _, v := range [...]struct {
		key string
		dst *uint32
	}{
		{EnvRefreshRate, &c.Scheduler.RefreshRate},
		{EnvRenderToFbo, &c.Scheduler.RenderToFboInterval},
		{EnvFPSTracking, &c.Scheduler.FPSTrackingSeconds},
		{EnvUpdateStatusInterval, &c.Scheduler.UpdateStatusInterval},
	} {
		s, ok := lookupEnv(v.key)
		if !ok || s == `` {
			continue
		}
		n, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrInvalidValue, v.key, s)
		}
		*v.dst = uint32(n)
	}

	if s, ok := lookupEnv(EnvDisableVSync); ok && s != `` {
		disabled, err := strconv.ParseBool(s)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrInvalidValue, EnvDisableVSync, s)
		}
		vsync := !disabled
		c.Scheduler.VSync = &vsync
	}

	if s, ok := lookupEnv(EnvFPSOutput); ok && s != `` {
		c.Scheduler.FPSOutput = s
	}

	// invalid pool sizes are left to asynctask, which warns and falls back
	// to its defaults
	for _, v := range [...]struct {
		key string
		dst *int
	}{
		{asynctask.EnvThreadPoolSize, &c.AsyncTasks.ThreadPoolSize},
		{asynctask.EnvLowPriorityThreadPoolSize, &c.AsyncTasks.LowPriorityThreadPoolSize},
	} {
		s, ok := lookupEnv(v.key)
		if !ok || s == `` {
			continue
		}
		if n, err := strconv.Atoi(s); err == nil && n >= 1 {
			*v.dst = n
		}
	}
	c.AsyncTasks.ThreadPoolSize = min(c.AsyncTasks.ThreadPoolSize, asynctask.MaxThreadPoolSize)

	if s, ok := lookupEnv(EnvLogLevel); ok && s != `` {
		c.Logging.Level = s
		if _, err := c.LogLevel(); err != nil {
			return err
		}
	}

	return nil
}

// long forms of the logiface.Level keywords
var levelAliases = map[string]logiface.Level{
	`emergency`:     logiface.LevelEmergency,
	`critical`:      logiface.LevelCritical,
	`error`:         logiface.LevelError,
	`warn`:          logiface.LevelWarning,
	`informational`: logiface.LevelInformational,
}

// LogLevel parses Logging.Level, LevelInformational if unset.
func (c *Config) LogLevel() (logiface.Level, error) {
	if c.Logging.Level == `` {
		return logiface.LevelInformational, nil
	}
	name := strings.ToLower(c.Logging.Level)
	if level, ok := levelAliases[name]; ok {
		return level, nil
	}
	for level := logiface.LevelDisabled; level <= logiface.LevelTrace; level++ {
		if name == level.String() {
			return level, nil
		}
	}
	return logiface.LevelDisabled, fmt.Errorf("%w: log level %q", ErrInvalidValue, c.Logging.Level)
}

// SchedulerOptions converts the scheduler settings, appending logger.
func (c *Config) SchedulerOptions(logger *logiface.Logger[logiface.Event]) []renderloop.Option {
	s := c.Scheduler
	opts := []renderloop.Option{renderloop.WithLogger(logger)}
	if s.RefreshRate != 0 {
		opts = append(opts, renderloop.WithRefreshRate(s.RefreshRate))
	}
	if s.VSync != nil {
		opts = append(opts, renderloop.WithVSync(*s.VSync))
	}
	if s.LegacyBlankSwap != nil {
		opts = append(opts, renderloop.WithLegacyBlankSwap(*s.LegacyBlankSwap))
	}
	if s.RenderToFboInterval != 0 {
		opts = append(opts, renderloop.WithRenderToFboInterval(s.RenderToFboInterval))
	}
	if s.FPSTrackingSeconds != 0 {
		opts = append(opts, renderloop.WithFPSTracking(time.Duration(s.FPSTrackingSeconds)*time.Second, s.FPSOutput))
	}
	if s.UpdateStatusInterval != 0 {
		opts = append(opts, renderloop.WithUpdateStatusLogging(s.UpdateStatusInterval))
	}
	return opts
}

// AsyncTaskOptions converts the async task settings, appending logger.
func (c *Config) AsyncTaskOptions(logger *logiface.Logger[logiface.Event]) []asynctask.Option {
	a := c.AsyncTasks
	opts := []asynctask.Option{asynctask.WithLogger(logger)}
	if a.ThreadPoolSize > 0 {
		opts = append(opts, asynctask.WithThreadPoolSize(min(a.ThreadPoolSize, asynctask.MaxThreadPoolSize)))
	}
	if a.LowPriorityThreadPoolSize > 0 {
		opts = append(opts, asynctask.WithLowPriorityThreadPoolSize(a.LowPriorityThreadPoolSize))
	}
	return opts
}
