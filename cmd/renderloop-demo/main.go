// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Command renderloop-demo drives the scheduler headlessly, against the
// recording fakes from renderlooptest, while decoding images and loading a
// font on the async task pool.
//
// Run with: go run ./cmd/renderloop-demo -duration=3s
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/KimMachineGun/automemlimit/memlimit"
	"github.com/joeycumines/go-renderloop"
	"github.com/joeycumines/go-renderloop/asynctask"
	"github.com/joeycumines/go-renderloop/config"
	"github.com/joeycumines/go-renderloop/loader"
	"github.com/joeycumines/go-renderloop/mainloop"
	"github.com/joeycumines/go-renderloop/renderlooptest"
	"github.com/joeycumines/go-renderloop/textureupload"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"go.uber.org/automaxprocs/maxprocs"
	"golang.org/x/image/font/gofont/goregular"
)

func main() {
	configPath := flag.String(`config`, ``, `TOML configuration file`)
	duration := flag.Duration(`duration`, 2*time.Second, `how long to run before stopping`)
	images := flag.Int(`images`, 4, `number of images to decode`)
	flag.Parse()

	if err := run(*configPath, *duration, *images); err != nil {
		fmt.Fprintf(os.Stderr, "renderloop-demo: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, duration time.Duration, images int) error {
	cfg, err := config.Load(configPath, nil)
	if err != nil {
		return err
	}
	level, err := cfg.LogLevel()
	if err != nil {
		return err
	}

	logger := stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(os.Stderr)),
		stumpy.L.WithLevel(level),
	).Logger()

	tuneRuntime(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	loop, err := mainloop.New(mainloop.WithLogger(logger))
	if err != nil {
		return err
	}
	loopErr := make(chan error, 1)
	go func() { loopErr <- loop.Run(context.Background()) }()

	surface := renderlooptest.NewSurface(`window`)
	engine := renderlooptest.NewEngine(renderlooptest.NewScene(surface))
	device := renderlooptest.NewDevice()

	var sched *renderloop.Scheduler

	// uploads wake the render goroutine from the event thread
	uploads := textureupload.New(
		loop.NewTrigger(func() { sched.RequestUpdate() }),
		textureupload.WithLogger(logger),
		textureupload.WithUploader(textureupload.UploaderFunc(func(id textureupload.ResourceID, pixels *image.RGBA) {
			logger.Info().
				Uint64(`resource_id`, uint64(id)).
				Int(`width`, pixels.Rect.Dx()).
				Int(`height`, pixels.Rect.Dy()).
				Log(`demo: texture uploaded`)
		})),
	)

	sched, err = renderloop.New(engine, device, surface, append(cfg.SchedulerOptions(logger),
		renderloop.WithLoop(loop),
		renderloop.WithResourceUploader(uploads),
	)...)
	if err != nil {
		return err
	}

	tasks, err := asynctask.New(append(cfg.AsyncTaskOptions(logger), asynctask.WithLoop(loop))...)
	if err != nil {
		return err
	}

	if err := sched.Initialize(); err != nil {
		return err
	}
	sched.Start()

	engine.KeepUpdatingFor(30)

	if err := loop.Submit(func() { submitWork(logger, tasks, uploads, images) }); err != nil {
		return err
	}

	// a burst of animation every half second, while the rest of the time the
	// render goroutine sleeps
	var tick func()
	tick = func() {
		engine.KeepUpdatingFor(10)
		sched.RequestUpdate()
		_ = loop.ScheduleTimer(500*time.Millisecond, tick)
	}
	if err := loop.ScheduleTimer(500*time.Millisecond, tick); err != nil {
		return err
	}

	<-ctx.Done()

	sched.Stop()
	if err := tasks.Close(); err != nil {
		logger.Err().Err(err).Log(`demo: async task manager close failed`)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := loop.Shutdown(shutdownCtx); err != nil && !errors.Is(err, mainloop.ErrLoopTerminated) {
		return err
	}
	if err := <-loopErr; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info().
		Int(`frames`, engine.Count(`Update`)).
		Int(`presents`, device.Count(`AcquireNextImage`)).
		Log(`demo: finished`)

	return nil
}

func submitWork(logger *logiface.Logger[logiface.Event], tasks *asynctask.Manager, uploads *textureupload.Manager, images int) {
	for i := range images {
		task := loader.NewImageDecodeTask(gradientPNG(64<<(i%3), 64), func(task asynctask.Task) {
			pixels, format, err := task.(*loader.ImageDecodeTask).Result()
			if err != nil {
				logger.Err().Err(err).Log(`demo: image decode failed`)
				return
			}
			logger.Info().
				Str(`format`, format).
				Int(`width`, pixels.Rect.Dx()).
				Log(`demo: image decoded`)
		},
			loader.WithImageLogger(logger),
			loader.WithTextureUpload(uploads),
			loader.WithDesiredSize(32, 0),
		)
		tasks.AddTask(task)
	}

	tasks.AddTask(loader.NewFontLoadTask(goregular.TTF, func(task asynctask.Task) {
		info, err := task.(*loader.FontLoadTask).Result()
		if err != nil {
			logger.Err().Err(err).Log(`demo: font load failed`)
			return
		}
		logger.Info().
			Str(`family`, info.Family).
			Int(`glyphs`, info.NumGlyphs).
			Log(`demo: font loaded`)
	}, loader.WithFontLogger(logger)))
}

func gradientPNG(width, height int) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := range height {
		for x := range width {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 255 / width), G: uint8(y * 255 / height), B: 0x80, A: 0xff})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func tuneRuntime(logger *logiface.Logger[logiface.Event]) {
	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		logger.Debug().Log(fmt.Sprintf(format, args...))
	})); err != nil {
		logger.Warning().Err(err).Log(`demo: failed to set GOMAXPROCS`)
	}

	limit, err := memlimit.SetGoMemLimitWithOpts(
		memlimit.WithRatio(0.9),
		memlimit.WithProvider(memlimit.ApplyFallback(memlimit.FromCgroup, memlimit.FromSystem)),
	)
	if err != nil {
		logger.Debug().Err(err).Log(`demo: memory limit unchanged`)
		return
	}
	logger.Debug().Int64(`limit`, limit).Log(`demo: memory limit set`)
}
