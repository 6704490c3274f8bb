// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package renderloop

import (
	"fmt"
	"time"

	"github.com/google/renameio/v2"
	"github.com/joeycumines/logiface"
)

// fpsTracker averages the frame rate over a fixed window of continuous
// rendering, reporting it once. Render goroutine only.
type fpsTracker struct {
	logger  *logiface.Logger[logiface.Event]
	path    string
	window  float64
	elapsed float64
	frames  uint64
	done    bool
}

func newFPSTracker(logger *logiface.Logger[logiface.Event], window time.Duration, path string) *fpsTracker {
	return &fpsTracker{logger: logger, path: path, window: window.Seconds()}
}

func (t *fpsTracker) enabled() bool { return t != nil && !t.done }

// track records one frame that took seconds since the previous one. The
// first frame past the window triggers the report.
func (t *fpsTracker) track(seconds float64) {
	if t.elapsed < t.window {
		t.elapsed += seconds
		t.frames++
		return
	}
	t.done = true
	t.output()
}

func (t *fpsTracker) fps() float64 {
	if t.elapsed <= 0 {
		return 0
	}
	return float64(t.frames) / t.elapsed
}

func (t *fpsTracker) output() {
	fps := t.fps()

	t.logger.Info().
		Float64(`fps`, fps).
		Uint64(`frames`, t.frames).
		Float64(`seconds`, t.elapsed).
		Log(`renderloop: average frame rate`)

	if t.path == `` {
		return
	}
	if err := renameio.WriteFile(t.path, fmt.Appendf(nil, "fps = %.2f\n", fps), 0o644); err != nil {
		t.logger.Err().
			Err(err).
			Str(`path`, t.path).
			Log(`renderloop: failed to write fps record`)
	}
}
