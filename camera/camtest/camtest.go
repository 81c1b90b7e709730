// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package camtest provides a canned camera.Backend for tests elsewhere in
// the tree, the way leptontest provides a fake lepton.Lepton.
package camtest

import (
	"sync"

	"github.com/rehmi-lab/openfinch/camera"
	"github.com/rehmi-lab/openfinch/controls"
)

// Backend is a deterministic camera.Backend: Take never blocks and returns
// a fixed, tiny payload stamped with an incrementing frame number, so
// callers can assert on frame identity without decoding JPEG.
type Backend struct {
	mu       sync.Mutex
	opened   bool
	frameNum uint32
	mode     camera.Mode
	vals     map[string]float64
	closeErr error
}

// New returns a ready Backend seeded with the same default control values
// as camera.FakeBackend.
func New() *Backend {
	return &Backend{
		mode: camera.Preview,
		vals: map[string]float64{
			"exposure_absolute": 100,
			"gain":              1,
			"colour_gain_red":   1.5,
			"colour_gain_blue":  1.8,
		},
	}
}

func (b *Backend) Open() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.opened = true
	return nil
}

func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.opened = false
	err := b.closeErr
	b.closeErr = nil
	return err
}

// SetCloseErr makes the next Close (and only the next one) return err.
func (b *Backend) SetCloseErr(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closeErr = err
}

func (b *Backend) Take(blocking bool) (*camera.Frame, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frameNum++
	return &camera.Frame{
		Payload: []byte{0xff, 0xd8, byte(b.frameNum), 0xff, 0xd9},
		Metadata: map[string]interface{}{
			"frame_number": b.frameNum,
		},
	}, nil
}

func (b *Backend) SetControl(name string, value float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.vals[name]; !ok {
		return &controls.ErrUnknownControl{Name: name}
	}
	b.vals[name] = value
	return nil
}

func (b *Backend) GetControl(name string) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.vals[name]
	if !ok {
		return 0, &controls.ErrUnknownControl{Name: name}
	}
	return v, nil
}

func (b *Backend) ListControls() []controls.Descriptor {
	b.mu.Lock()
	defer b.mu.Unlock()
	return []controls.Descriptor{
		controls.NewInteger("exposure_absolute", "exposure_absolute", controls.Range{Min: 1, Max: 10000}, 100, b.vals["exposure_absolute"], nil),
		controls.NewFloat("gain", "gain", controls.Range{Min: 1, Max: 16}, 1, b.vals["gain"], nil),
	}
}

func (b *Backend) SetMode(mode camera.Mode) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mode = mode
	return nil
}

// Mode returns the last mode applied via SetMode, for test assertions.
func (b *Backend) Mode() camera.Mode {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mode
}

// Opened reports whether Open has been called more recently than Close.
func (b *Backend) Opened() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opened
}

var _ camera.Backend = (*Backend)(nil)
