// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package textureupload queues decoded pixel data from any goroutine, for
// upload by the render goroutine at the start and end of each update.
package textureupload

import (
	"errors"
	"image"
	"sync"
	"sync/atomic"

	"github.com/joeycumines/go-renderloop"
	"github.com/joeycumines/logiface"
)

var (
	ErrInvalidResourceID = errors.New("textureupload: invalid resource id")
	ErrNilPixels         = errors.New("textureupload: nil pixels")
)

// ResourceID identifies an uploaded texture. The zero value is never issued.
type ResourceID uint32

// InvalidResourceID is never returned by GenerateResourceID.
const InvalidResourceID ResourceID = 0

// Uploader performs the actual upload, on the render goroutine, with the
// resource context current.
type Uploader interface {
	Upload(id ResourceID, pixels *image.RGBA)
}

// UploaderFunc adapts a function to the Uploader interface.
type UploaderFunc func(id ResourceID, pixels *image.RGBA)

// Upload implements Uploader.
func (f UploaderFunc) Upload(id ResourceID, pixels *image.RGBA) { f(id, pixels) }

type request struct {
	pixels *image.RGBA
	id     ResourceID
}

// Option configures a Manager.
type Option interface {
	applyManager(*Manager)
}

// optionImpl implements Option.
type optionImpl func(*Manager)

func (f optionImpl) applyManager(m *Manager) { f(m) }

// WithLogger sets the structured logger.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return optionImpl(func(m *Manager) { m.logger = logger })
}

// WithUploader sets the initial Uploader, see SetUploader.
func WithUploader(uploader Uploader) Option {
	return optionImpl(func(m *Manager) { m.uploader = uploader })
}

// Manager implements renderloop.ResourceUploader.
type Manager struct {
	// Prevent copying
	_ [0]func()

	logger        *logiface.Logger[logiface.Event]
	requestUpdate renderloop.Trigger
	nextID        atomic.Uint32

	mu       sync.Mutex
	queue    []request
	uploader Uploader

	// render goroutine only, recycled between calls
	batch []request
}

var _ renderloop.ResourceUploader = (*Manager)(nil)

// New returns a Manager that fires requestUpdate, which may be nil, after
// each RequestUpload, so a sleeping render goroutine wakes to upload.
func New(requestUpdate renderloop.Trigger, opts ...Option) *Manager {
	m := &Manager{requestUpdate: requestUpdate}
	for _, opt := range opts {
		if opt != nil {
			opt.applyManager(m)
		}
	}
	return m
}

// GenerateResourceID returns a new id, safe to call from any goroutine.
func (m *Manager) GenerateResourceID() ResourceID {
	for {
		if id := ResourceID(m.nextID.Add(1)); id != InvalidResourceID {
			return id
		}
	}
}

// SetUploader replaces the Uploader. Requests queued while there is none are
// kept until one is set.
func (m *Manager) SetUploader(uploader Uploader) {
	m.mu.Lock()
	m.uploader = uploader
	m.mu.Unlock()
}

// RequestUpload queues pixels for upload as id. It may be called from any
// goroutine, including asynctask workers.
func (m *Manager) RequestUpload(id ResourceID, pixels *image.RGBA) error {
	if id == InvalidResourceID {
		return ErrInvalidResourceID
	}
	if pixels == nil {
		return ErrNilPixels
	}

	m.mu.Lock()
	m.queue = append(m.queue, request{id: id, pixels: pixels})
	m.mu.Unlock()

	m.logger.Trace().
		Uint64(`resource_id`, uint64(id)).
		Int(`width`, pixels.Rect.Dx()).
		Int(`height`, pixels.Rect.Dy()).
		Log(`textureupload: upload requested`)

	if m.requestUpdate != nil {
		m.requestUpdate.Trigger()
	}
	return nil
}

// Pending returns the number of queued requests.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// ResourceUpload uploads everything queued so far, reporting whether
// anything was uploaded. Render goroutine only.
func (m *Manager) ResourceUpload() bool {
	m.mu.Lock()
	uploader := m.uploader
	if uploader == nil || len(m.queue) == 0 {
		m.mu.Unlock()
		return false
	}
	m.batch, m.queue = m.queue, m.batch[:0]
	m.mu.Unlock()

	for i, req := range m.batch {
		uploader.Upload(req.id, req.pixels)
		m.batch[i] = request{}
	}

	m.logger.Trace().
		Int(`count`, len(m.batch)).
		Log(`textureupload: uploaded`)

	return true
}
