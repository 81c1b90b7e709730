// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build linux

package camera

import (
	"fmt"
	"os"
	"sync"
	"syscall"
	"time"
	"unsafe"

	"github.com/rehmi-lab/openfinch/controls"
)

// V4L2 ioctl request codes used by this backend. Only the handful needed
// for control get/set and triggered still capture are implemented; a full
// V4L2 driver additionally needs VIDIOC_REQBUFS/QBUF/DQBUF with mmap'd
// buffers, which is out of scope for this minimal generic backend.
const (
	vidiocQueryCtrl = 0xc0445624
	vidiocGCtrl     = 0xc008561b
	vidiocSCtrl     = 0xc008561c
	vidiocStreamon  = 0x40045612
	vidiocStreamoff = 0x40045613
)

// v4l2Control mirrors struct v4l2_control { __u32 id; __s32 value; }.
type v4l2Control struct {
	ID    uint32
	Value int32
}

// nativeControlIDs maps the normalized control vocabulary to V4L2 control
// ids, the same kind of per-backend translation table
// controls.py's convert_v4l2py_controls performs on the Python side.
var nativeControlIDs = map[string]uint32{
	"exposure_absolute": 0x009a0902,
	"gain":               0x00980913,
	"colour_gain_red":    0x009a0920,
	"colour_gain_blue":   0x009a0921,
}

// V4L2Backend drives a generic Video4Linux2 device node.
type V4L2Backend struct {
	path string

	mu      sync.Mutex
	f       *os.File
	mode    Mode
	streamOn bool
}

// NewV4L2Backend targets the given device node (e.g. "/dev/video0").
func NewV4L2Backend(path string) *V4L2Backend {
	if path == "" {
		path = "/dev/video0"
	}
	return &V4L2Backend{path: path, mode: Preview}
}

func (b *V4L2Backend) Open() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	f, err := os.OpenFile(b.path, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	b.f = f
	return nil
}

func (b *V4L2Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.f == nil {
		return nil
	}
	err := b.f.Close()
	b.f = nil
	return err
}

func (b *V4L2Backend) ioctl(op uintptr, arg unsafe.Pointer) error {
	if _, _, errno := syscall.Syscall(syscall.SYS_IOCTL, b.f.Fd(), op, uintptr(arg)); errno != 0 {
		return errno
	}
	return nil
}

// Take performs a blocking (or best-effort non-blocking) read of one raw
// frame. Real V4L2 streaming uses mmap'd buffer queues; this backend issues
// a plain read(2), which is sufficient for devices that support it (most
// UVC webcams in MJPEG mode do).
func (b *V4L2Backend) Take(blocking bool) (*Frame, error) {
	b.mu.Lock()
	f := b.f
	b.mu.Unlock()
	if f == nil {
		return nil, fmt.Errorf("camera: v4l2 device not open")
	}
	buf := make([]byte, 4<<20)
	n, err := f.Read(buf)
	if err != nil {
		if !blocking {
			return nil, nil
		}
		return nil, err
	}
	return &Frame{
		Payload: buf[:n],
		Metadata: map[string]interface{}{
			"timestamp": time.Now().UTC(),
		},
	}, nil
}

func (b *V4L2Backend) SetControl(name string, value float64) error {
	id, ok := nativeControlIDs[name]
	if !ok {
		return &controls.ErrUnknownControl{Name: name}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.f == nil {
		return fmt.Errorf("camera: v4l2 device not open")
	}
	c := v4l2Control{ID: id, Value: int32(value)}
	if err := b.ioctl(vidiocSCtrl, unsafe.Pointer(&c)); err != nil {
		return &BackendControlError{Name: name, Err: err}
	}
	return nil
}

func (b *V4L2Backend) GetControl(name string) (float64, error) {
	id, ok := nativeControlIDs[name]
	if !ok {
		return 0, &controls.ErrUnknownControl{Name: name}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.f == nil {
		return 0, fmt.Errorf("camera: v4l2 device not open")
	}
	c := v4l2Control{ID: id}
	if err := b.ioctl(vidiocGCtrl, unsafe.Pointer(&c)); err != nil {
		return 0, &BackendControlError{Name: name, Err: err}
	}
	return float64(c.Value), nil
}

// ListControls walks VIDIOC_QUERYCTRL in a real implementation; this generic
// backend exposes the fixed normalized set it knows how to translate.
// colour_gain_red/colour_gain_blue are reported as a single native
// ColourGains 2-tuple — splitting them into scalar siblings happens at the
// session Coordinator boundary, not here.
func (b *V4L2Backend) ListControls() []controls.Descriptor {
	var out []controls.Descriptor
	for name := range nativeControlIDs {
		if name == "colour_gain_red" || name == "colour_gain_blue" {
			continue
		}
		value, err := b.GetControl(name)
		if err != nil {
			value = 0
		}
		out = append(out, controls.NewInteger(name, name, controls.Range{Min: 0, Max: 4095}, 0, value, nil))
	}
	red, err := b.GetControl("colour_gain_red")
	if err != nil {
		red = 0
	}
	blue, err := b.GetControl("colour_gain_blue")
	if err != nil {
		blue = 0
	}
	out = append(out, controls.NewColourGains("colour_gains", "colour_gains",
		controls.Range{Min: 0, Max: 4095}, controls.Range{Min: 0, Max: 4095}, 0, 0, red, blue))
	return out
}

func (b *V4L2Backend) SetMode(mode Mode) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch mode {
	case Preview, Still, Video:
	default:
		return fmt.Errorf("camera: unsupported mode %q", mode)
	}
	if b.f == nil {
		b.mode = mode
		return nil
	}
	wantStream := mode == Video
	if wantStream != b.streamOn {
		op := uintptr(vidiocStreamoff)
		if wantStream {
			op = vidiocStreamon
		}
		var typ int32 = 1 // V4L2_BUF_TYPE_VIDEO_CAPTURE
		if err := b.ioctl(op, unsafe.Pointer(&typ)); err != nil {
			return err
		}
		b.streamOn = wantStream
	}
	b.mode = mode
	return nil
}
