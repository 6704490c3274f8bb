// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package loader

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/joeycumines/go-renderloop/asynctask"
	"github.com/joeycumines/go-renderloop/textureupload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/tiff"
)

func testImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.NRGBA{R: uint8(x * 40), G: uint8(y * 40), B: 0x80, A: 0xff})
		}
	}
	return img
}

func encode(t *testing.T, fn func(*bytes.Buffer, image.Image) error, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, fn(&buf, img))
	return buf.Bytes()
}

func TestDecodeRGBA_formats(t *testing.T) {
	src := testImage(4, 2)
	for _, tc := range [...]struct {
		format string
		encode func(*bytes.Buffer, image.Image) error
	}{
		{`png`, func(b *bytes.Buffer, m image.Image) error { return png.Encode(b, m) }},
		{`bmp`, func(b *bytes.Buffer, m image.Image) error { return bmp.Encode(b, m) }},
		{`tiff`, func(b *bytes.Buffer, m image.Image) error { return tiff.Encode(b, m, nil) }},
	} {
		t.Run(tc.format, func(t *testing.T) {
			pixels, format, err := decodeRGBA(encode(t, tc.encode, src), image.Point{})
			require.NoError(t, err)
			assert.Equal(t, tc.format, format)
			assert.Equal(t, image.Rect(0, 0, 4, 2), pixels.Rect)
			assert.Equal(t, color.RGBA{R: 40, G: 40, B: 0x80, A: 0xff}, pixels.RGBAAt(1, 1))
		})
	}
}

func TestDecodeRGBA_errors(t *testing.T) {
	_, _, err := decodeRGBA(nil, image.Point{})
	assert.ErrorIs(t, err, ErrNoData)

	_, _, err = decodeRGBA([]byte(`not an image`), image.Point{})
	assert.ErrorIs(t, err, ErrDecode)
	assert.ErrorIs(t, err, image.ErrFormat)
}

func TestScaledSize(t *testing.T) {
	actual := image.Pt(400, 200)
	assert.Equal(t, actual, scaledSize(actual, image.Point{}))
	assert.Equal(t, image.Pt(100, 50), scaledSize(actual, image.Pt(100, 0)))
	assert.Equal(t, image.Pt(200, 100), scaledSize(actual, image.Pt(0, 100)))
	assert.Equal(t, image.Pt(10, 10), scaledSize(actual, image.Pt(10, 10)))
	assert.Equal(t, image.Pt(1, 10), scaledSize(image.Pt(1, 1000), image.Pt(0, 10)))
}

func TestImageDecodeTask_scaledUpload(t *testing.T) {
	uploads := textureupload.New(nil)
	task := NewImageDecodeTask(
		encode(t, func(b *bytes.Buffer, m image.Image) error { return png.Encode(b, m) }, testImage(4, 2)),
		nil,
		WithDesiredSize(8, 0),
		WithTextureUpload(uploads),
	)
	assert.True(t, task.IsReady())

	task.Process()

	pixels, format, err := task.Result()
	require.NoError(t, err)
	assert.Equal(t, `png`, format)
	assert.Equal(t, image.Rect(0, 0, 8, 4), pixels.Rect)
	assert.NotEqual(t, textureupload.InvalidResourceID, task.ResourceID())
	assert.Equal(t, 1, uploads.Pending())
}

func TestImageDecodeTask_failure(t *testing.T) {
	uploads := textureupload.New(nil)
	task := NewImageDecodeTask([]byte{1, 2, 3}, nil, WithTextureUpload(uploads))
	task.Process()

	_, _, err := task.Result()
	assert.ErrorIs(t, err, ErrDecode)
	assert.Equal(t, textureupload.InvalidResourceID, task.ResourceID())
	assert.Zero(t, uploads.Pending())
}

func TestImageDecodeTask_notReadyUntilData(t *testing.T) {
	m, err := asynctask.New(asynctask.WithThreadPoolSize(2))
	require.NoError(t, err)
	defer m.Close()

	done := make(chan asynctask.Task, 1)
	task := NewImageDecodeTask(nil, func(task asynctask.Task) { done <- task },
		WithImageTaskOptions(asynctask.WithCallbackThread(asynctask.ThreadWorker)))
	require.False(t, task.IsReady())

	m.AddTask(task)
	select {
	case <-done:
		t.Fatal(`task ran before it was ready`)
	case <-time.After(20 * time.Millisecond):
	}

	task.SetData(encode(t, func(b *bytes.Buffer, m image.Image) error { return png.Encode(b, m) }, testImage(2, 2)))
	m.NotifyToTaskReady(task)

	select {
	case got := <-done:
		assert.Same(t, task, got)
	case <-time.After(5 * time.Second):
		t.Fatal(`timed out waiting for the task`)
	}
	pixels, _, err := task.Result()
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 2, 2), pixels.Rect)
}

func TestFontLoadTask(t *testing.T) {
	task := NewFontLoadTask(goregular.TTF, nil)
	assert.Equal(t, asynctask.PriorityLow, task.Priority())

	task.Process()

	info, err := task.Result()
	require.NoError(t, err)
	assert.Equal(t, `Go`, info.Family)
	assert.Positive(t, info.NumGlyphs)
	assert.Equal(t, 2048, info.UnitsPerEm)
	require.NotNil(t, info.Face)
	assert.Equal(t, uint16(info.UnitsPerEm), info.Face.Upem())
}

func TestFontLoadTask_invalid(t *testing.T) {
	task := NewFontLoadTask([]byte(`not a font`), nil, WithFontTaskOptions(asynctask.WithPriority(asynctask.PriorityHigh)))
	assert.Equal(t, asynctask.PriorityHigh, task.Priority())
	task.Process()
	_, err := task.Result()
	assert.ErrorIs(t, err, ErrDecode)

	_, err = parseFont(nil)
	assert.ErrorIs(t, err, ErrNoData)
}
