// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build linux

package camera

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/rehmi-lab/openfinch/controls"
)

// jpegSOI/jpegEOI bound one MJPEG frame in the helper process's output
// stream.
var jpegSOI = []byte{0xff, 0xd8}
var jpegEOI = []byte{0xff, 0xd9}

// commonToPicam mirrors _picamera2.py's common_to_imx296 translation table:
// the normalized control vocabulary on one side, the Raspberry Pi camera
// stack's native control names on the other.
var commonToPicam = map[string]string{
	"exposure_absolute": "ExposureTime",
	"gain":              "AnalogueGain",
	"colour_gain_red":   "ColourGainRed",
	"colour_gain_blue":  "ColourGainBlue",
}

// PicamBackend drives the Raspberry-Pi-specific camera stack by shelling
// out to rpicam-vid (the libcamera/picamera2 userspace stack has no stable
// cgo-free Go binding), streaming MJPEG over stdout. Control changes are
// recorded per common name and reported back by GetControl/ListControls;
// they are not sent to the running rpicam-vid process. This mirrors the
// process boundary _picamera2.py's Picamera2Controller hides behind a Python
// binding: callers of Backend never see the native names or transport.
type PicamBackend struct {
	binary string
	width  int
	height int

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdout  io.ReadCloser
	reader  *bufio.Reader
	mode    Mode
	shadow  map[string]float64 // last applied value per common name
}

// NewPicamBackend targets the given resolution using the system rpicam-vid
// binary.
func NewPicamBackend(width, height int) *PicamBackend {
	return &PicamBackend{
		binary: "rpicam-vid",
		width:  width, height: height,
		mode:   Preview,
		shadow: map[string]float64{"exposure_absolute": 10000, "gain": 1, "colour_gain_red": 1.5, "colour_gain_blue": 1.8},
	}
}

func (b *PicamBackend) Open() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	cmd := exec.Command(b.binary,
		"--codec", "mjpeg",
		"--width", fmt.Sprint(b.width),
		"--height", fmt.Sprint(b.height),
		"--timeout", "0",
		"-o", "-",
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	b.cmd = cmd
	b.stdout = stdout
	b.reader = bufio.NewReaderSize(stdout, 1<<20)
	return nil
}

func (b *PicamBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cmd == nil {
		return nil
	}
	err := b.cmd.Process.Kill()
	b.cmd.Wait()
	b.cmd = nil
	return err
}

// Take reads the next complete MJPEG frame from the helper process's
// stdout stream.
func (b *PicamBackend) Take(blocking bool) (*Frame, error) {
	b.mu.Lock()
	r := b.reader
	b.mu.Unlock()
	if r == nil {
		return nil, fmt.Errorf("camera: picam backend not open")
	}
	if _, err := r.ReadBytes(jpegSOI[1]); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.Write(jpegSOI)
	for {
		chunk, err := r.ReadBytes(jpegEOI[1])
		if err != nil {
			return nil, err
		}
		buf.Write(chunk)
		if bytes.HasSuffix(buf.Bytes(), jpegEOI) {
			break
		}
	}
	return &Frame{
		Payload: buf.Bytes(),
		Metadata: map[string]interface{}{
			"timestamp": time.Now().UTC(),
		},
	}, nil
}

func (b *PicamBackend) SetControl(name string, value float64) error {
	if _, ok := commonToPicam[name]; !ok {
		return &controls.ErrUnknownControl{Name: name}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	// The value is only stored in the shadow map; the running rpicam-vid
	// process is not told about it.
	b.shadow[name] = value
	return nil
}

func (b *PicamBackend) GetControl(name string) (float64, error) {
	if _, ok := commonToPicam[name]; !ok {
		return 0, &controls.ErrUnknownControl{Name: name}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.shadow[name], nil
}

// ListControls reports colour gains the way libcamera's own ColourGains
// control does: one native id carrying the (red, blue) pair as a 2-tuple.
// Splitting it into colour_gain_red/colour_gain_blue happens at the session
// Coordinator boundary, not here.
func (b *PicamBackend) ListControls() []controls.Descriptor {
	b.mu.Lock()
	defer b.mu.Unlock()
	return []controls.Descriptor{
		controls.NewInteger("exposure_absolute", "exposure_absolute", controls.Range{Min: 100, Max: 100000}, 10000, b.shadow["exposure_absolute"], nil),
		controls.NewFloat("gain", "gain", controls.Range{Min: 1, Max: 16}, 1, b.shadow["gain"], nil),
		controls.NewColourGains("colour_gains", "colour_gains",
			controls.Range{Min: 0, Max: 8}, controls.Range{Min: 0, Max: 8},
			1.5, 1.8, b.shadow["colour_gain_red"], b.shadow["colour_gain_blue"]),
	}
}

// SetMode records the requested mode and, if the helper process is
// running, restarts it synchronously. The helper's command line does not
// depend on the mode, so every mode streams the same MJPEG pipeline.
func (b *PicamBackend) SetMode(mode Mode) error {
	switch mode {
	case Preview, Still, Video:
	default:
		return fmt.Errorf("camera: unsupported mode %q", mode)
	}
	b.mu.Lock()
	running := b.cmd != nil
	b.mode = mode
	b.mu.Unlock()
	if !running {
		return nil
	}
	if err := b.Close(); err != nil {
		return err
	}
	return b.Open()
}
