// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package camera implements the capture-and-distribution pipeline's camera
// side: a capability interface shared by every sensor backend, a
// single-slot latest-wins mailbox fed by a dedicated reader goroutine, and
// a non-blocking Controller on top of it.
package camera

import (
	"fmt"

	"github.com/rehmi-lab/openfinch/controls"
)

// Mode is one of the three capture modes a Backend may be placed in.
type Mode string

// Valid Mode values. "triggered" and "freerunning", the capture_mode
// command's other accepted values, are mapped onto Video by the session
// Coordinator before reaching a Backend; the Mode type itself only names
// these three underlying modes.
const (
	Preview Mode = "preview"
	Still   Mode = "still"
	Video   Mode = "video"
)

// Frame is one captured image: an encoded payload plus metadata.
type Frame struct {
	Payload  []byte
	Metadata map[string]interface{}
}

// BackendControlError reports a control get or set that the device itself
// rejected (V4L2Backend wraps its ioctl failures in it). Unknown control
// names are reported as controls.ErrUnknownControl instead. Either is
// logged and dropped by the Controller, never fatal to the session.
type BackendControlError struct {
	Name string
	Err  error
}

func (e *BackendControlError) Error() string {
	return fmt.Sprintf("camera: control %q rejected: %s", e.Name, e.Err)
}

func (e *BackendControlError) Unwrap() error { return e.Err }

// Backend is the capability interface shared by every sensor implementation.
// Per-backend native-control-name translation lives in the implementation,
// never in callers.
type Backend interface {
	Open() error
	Close() error
	// Take blocks until a frame is available when blocking is true; it may
	// return promptly with (nil, nil) when blocking is false and none is
	// ready yet.
	Take(blocking bool) (*Frame, error)
	SetControl(name string, value float64) error
	GetControl(name string) (float64, error)
	ListControls() []controls.Descriptor
	SetMode(mode Mode) error
}
