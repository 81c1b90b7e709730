// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package camera

import (
	"log"

	"github.com/rehmi-lab/openfinch/controls"
)

// Controller provides a non-blocking Take over a Reader's mailbox plus
// control pass-through to the underlying Backend.
type Controller struct {
	reader *Reader
	fps    *fpsMonitor
}

// NewController wraps a Reader.
func NewController(reader *Reader) *Controller {
	return &Controller{reader: reader, fps: newFPSMonitor()}
}

// Open starts the Reader.
func (c *Controller) Open() error {
	return c.reader.Start()
}

// Close stops the Reader.
func (c *Controller) Close() error {
	return c.reader.Stop()
}

// Take returns the latest frame, or nil if none is pending. It never
// blocks — the Coordinator's tick loop must never stall on the camera.
func (c *Controller) Take() *Frame {
	f := c.reader.take()
	if f != nil {
		c.fps.tick()
	}
	return f
}

// ReaderFPS returns the smoothed capture-side (sensor-native) frame rate.
func (c *Controller) ReaderFPS() float64 {
	return c.reader.FPS()
}

// ConsumedFPS returns the smoothed rate at which Take actually yielded a
// frame to a caller.
func (c *Controller) ConsumedFPS() float64 {
	return c.fps.value()
}

// SetControl applies a named control, logging and dropping unknown
// controls or out-of-range values rather than failing the caller.
func (c *Controller) SetControl(name string, value float64) {
	if err := c.reader.backend.SetControl(name, value); err != nil {
		log.Printf("camera: set_control %s=%v rejected: %s", name, value, err)
	}
}

// GetControl reads a named control's current value.
func (c *Controller) GetControl(name string) (float64, error) {
	return c.reader.backend.GetControl(name)
}

// ListControls returns the active backend's control descriptors.
func (c *Controller) ListControls() []controls.Descriptor {
	return c.reader.backend.ListControls()
}

// SetMode switches capture mode. Transitions are executed synchronously on
// the caller's goroutine (the Coordinator's tick).
func (c *Controller) SetMode(mode Mode) error {
	return c.reader.backend.SetMode(mode)
}
