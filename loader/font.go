// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package loader

import (
	"bytes"
	"fmt"
	"sync"

	gotext "github.com/go-text/typesetting/font"
	"github.com/joeycumines/go-renderloop/asynctask"
	"github.com/joeycumines/logiface"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/font/sfnt"
)

// FontInfo describes a parsed font.
type FontInfo struct {
	// Face is ready for shaping. It is not safe for concurrent use, but
	// Face.Font is.
	Face       *gotext.Face
	Family     string
	NumGlyphs  int
	UnitsPerEm int
}

// FontOption configures a FontLoadTask.
type FontOption interface {
	applyFont(*FontLoadTask)
}

type fontOptionImpl func(*FontLoadTask)

func (f fontOptionImpl) applyFont(t *FontLoadTask) { f(t) }

// WithFontLogger sets the structured logger.
func WithFontLogger(logger *logiface.Logger[logiface.Event]) FontOption {
	return fontOptionImpl(func(t *FontLoadTask) { t.logger = logger })
}

// WithFontTaskOptions passes options to the embedded asynctask.BaseTask.
func WithFontTaskOptions(opts ...asynctask.TaskOption) FontOption {
	return fontOptionImpl(func(t *FontLoadTask) { t.taskOpts = append(t.taskOpts, opts...) })
}

// FontLoadTask parses TrueType or OpenType data. Font loading is never
// urgent, so it defaults to asynctask.PriorityLow.
type FontLoadTask struct {
	asynctask.BaseTask

	logger   *logiface.Logger[logiface.Event]
	taskOpts []asynctask.TaskOption
	data     []byte

	mu   sync.Mutex
	info *FontInfo
	err  error
}

var _ asynctask.Task = (*FontLoadTask)(nil)

// NewFontLoadTask returns a task parsing data.
func NewFontLoadTask(data []byte, callback asynctask.CompletedCallback, opts ...FontOption) *FontLoadTask {
	t := &FontLoadTask{
		data:     data,
		taskOpts: []asynctask.TaskOption{asynctask.WithPriority(asynctask.PriorityLow)},
	}
	for _, opt := range opts {
		if opt != nil {
			opt.applyFont(t)
		}
	}
	t.Init(callback, t.taskOpts...)
	return t
}

// Process implements asynctask.Task.
func (t *FontLoadTask) Process() {
	info, err := parseFont(t.data)
	if err != nil {
		t.logger.Warning().
			Err(err).
			Int(`bytes`, len(t.data)).
			Log(`loader: font load failed`)
	} else {
		t.logger.Debug().
			Str(`family`, info.Family).
			Int(`glyphs`, info.NumGlyphs).
			Log(`loader: font loaded`)
	}

	t.mu.Lock()
	t.info, t.err = info, err
	t.mu.Unlock()
}

// Result returns the parsed font, valid once the task has completed.
func (t *FontLoadTask) Result() (*FontInfo, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.info, t.err
}

func parseFont(data []byte) (*FontInfo, error) {
	if len(data) == 0 {
		return nil, ErrNoData
	}

	f, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	info := FontInfo{
		NumGlyphs:  f.NumGlyphs(),
		UnitsPerEm: int(f.UnitsPerEm()),
	}
	var buf sfnt.Buffer
	if family, err := f.Name(&buf, sfnt.NameIDFamily); err == nil {
		info.Family = family
	}

	info.Face, err = gotext.ParseTTF(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	return &info, nil
}
