// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package loader implements asynctask tasks that produce resources for the
// render goroutine: decoded images and parsed fonts.
package loader

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"sync"

	"github.com/joeycumines/go-renderloop/asynctask"
	"github.com/joeycumines/go-renderloop/textureupload"
	"github.com/joeycumines/logiface"
	_ "golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var (
	ErrNoData = errors.New("loader: no data")
	ErrDecode = errors.New("loader: decode failed")
)

// ImageOption configures an ImageDecodeTask.
type ImageOption interface {
	applyImage(*ImageDecodeTask)
}

type imageOptionImpl func(*ImageDecodeTask)

func (f imageOptionImpl) applyImage(t *ImageDecodeTask) { f(t) }

// WithDesiredSize scales the decoded image. A zero dimension is derived
// from the other, keeping the aspect ratio. Both zero keeps the decoded size.
func WithDesiredSize(width, height int) ImageOption {
	return imageOptionImpl(func(t *ImageDecodeTask) { t.desired = image.Pt(max(width, 0), max(height, 0)) })
}

// WithTextureUpload queues the decoded pixels on uploads, from the worker.
func WithTextureUpload(uploads *textureupload.Manager) ImageOption {
	return imageOptionImpl(func(t *ImageDecodeTask) { t.uploads = uploads })
}

// WithImageLogger sets the structured logger.
func WithImageLogger(logger *logiface.Logger[logiface.Event]) ImageOption {
	return imageOptionImpl(func(t *ImageDecodeTask) { t.logger = logger })
}

// WithImageTaskOptions passes options to the embedded asynctask.BaseTask.
func WithImageTaskOptions(opts ...asynctask.TaskOption) ImageOption {
	return imageOptionImpl(func(t *ImageDecodeTask) { t.taskOpts = append(t.taskOpts, opts...) })
}

// ImageDecodeTask decodes PNG, JPEG, GIF, BMP, TIFF or WebP data to RGBA.
type ImageDecodeTask struct {
	asynctask.BaseTask

	logger   *logiface.Logger[logiface.Event]
	uploads  *textureupload.Manager
	taskOpts []asynctask.TaskOption
	desired  image.Point

	mu         sync.Mutex
	data       []byte
	pixels     *image.RGBA
	format     string
	resourceID textureupload.ResourceID
	err        error
}

var _ asynctask.Task = (*ImageDecodeTask)(nil)

// NewImageDecodeTask returns a task decoding data. With nil data the task
// starts not ready, see SetData.
func NewImageDecodeTask(data []byte, callback asynctask.CompletedCallback, opts ...ImageOption) *ImageDecodeTask {
	t := &ImageDecodeTask{data: data}
	for _, opt := range opts {
		if opt != nil {
			opt.applyImage(t)
		}
	}
	taskOpts := t.taskOpts
	if data == nil {
		taskOpts = append(taskOpts[:len(taskOpts):len(taskOpts)], asynctask.WithNotReady())
	}
	t.Init(callback, taskOpts...)
	return t
}

// SetData supplies the encoded image and marks the task ready. If the task
// was already added, call Manager.NotifyToTaskReady afterwards.
func (t *ImageDecodeTask) SetData(data []byte) {
	t.mu.Lock()
	t.data = data
	t.mu.Unlock()
	t.SetReady(true)
}

// Process implements asynctask.Task.
func (t *ImageDecodeTask) Process() {
	t.mu.Lock()
	data := t.data
	t.mu.Unlock()

	pixels, format, err := decodeRGBA(data, t.desired)

	var id textureupload.ResourceID
	if err == nil && t.uploads != nil {
		id = t.uploads.GenerateResourceID()
		if err = t.uploads.RequestUpload(id, pixels); err != nil {
			id = textureupload.InvalidResourceID
		}
	}

	if err != nil {
		t.logger.Warning().
			Err(err).
			Int(`bytes`, len(data)).
			Log(`loader: image decode failed`)
	} else {
		t.logger.Debug().
			Str(`format`, format).
			Int(`width`, pixels.Rect.Dx()).
			Int(`height`, pixels.Rect.Dy()).
			Uint64(`resource_id`, uint64(id)).
			Log(`loader: image decoded`)
	}

	t.mu.Lock()
	t.pixels, t.format, t.resourceID, t.err = pixels, format, id, err
	t.mu.Unlock()
}

// Result returns the decoded pixels and format name, valid once the task
// has completed.
func (t *ImageDecodeTask) Result() (*image.RGBA, string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pixels, t.format, t.err
}

// ResourceID returns the id the pixels were queued for upload under, or
// textureupload.InvalidResourceID.
func (t *ImageDecodeTask) ResourceID() textureupload.ResourceID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.resourceID
}

func decodeRGBA(data []byte, desired image.Point) (*image.RGBA, string, error) {
	if len(data) == 0 {
		return nil, ``, ErrNoData
	}

	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, ``, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	bounds := src.Bounds()
	size := scaledSize(bounds.Size(), desired)
	dst := image.NewRGBA(image.Rectangle{Max: size})

	if size == bounds.Size() {
		xdraw.Draw(dst, dst.Rect, src, bounds.Min, xdraw.Src)
	} else {
		xdraw.CatmullRom.Scale(dst, dst.Rect, src, bounds, xdraw.Src, nil)
	}

	return dst, format, nil
}

func scaledSize(actual, desired image.Point) image.Point {
	switch {
	case desired.X == 0 && desired.Y == 0, actual.X == 0 || actual.Y == 0:
		return actual
	case desired.X == 0:
		return image.Pt(max(1, actual.X*desired.Y/actual.Y), desired.Y)
	case desired.Y == 0:
		return image.Pt(desired.X, max(1, actual.Y*desired.X/actual.X))
	default:
		return desired
	}
}
