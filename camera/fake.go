// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package camera

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math/rand"
	"sync"
	"time"

	"github.com/rehmi-lab/openfinch/controls"
)

// vector is one moving Gaussian blob in the synthetic scene.
type vector struct {
	intensity float64
	x, y      float64
}

// noise is cheezy but gets us going for testing without a device, per
// lepton/fake_lepton.go.
type noise struct {
	rand    *rand.Rand
	vectors []vector
}

func makeNoise() *noise {
	n := &noise{rand: rand.New(rand.NewSource(1))}
	n.vectors = make([]vector, 6)
	for i := range n.vectors {
		n.vectors[i].intensity = n.rand.NormFloat64()*40 + 120
		n.vectors[i].x = n.rand.NormFloat64()*30 + 160
		n.vectors[i].y = n.rand.NormFloat64()*20 + 120
	}
	return n
}

func (n *noise) update() {
	for i := range n.vectors {
		n.vectors[i].intensity += n.rand.NormFloat64()
		n.vectors[i].x += n.rand.NormFloat64() * 0.5
		n.vectors[i].y += n.rand.NormFloat64() * 0.5
	}
}

func (n *noise) render(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		fy := float64(y)
		for x := 0; x < w; x++ {
			fx := float64(x)
			value := 16.0
			for _, v := range n.vectors {
				d := (v.x-fx)*(v.x-fx) + (v.y-fy)*(v.y-fy) + 1
				value += v.intensity / d
			}
			if value > 255 {
				value = 255
			}
			img.SetGray(x, y, color.Gray{Y: uint8(value)})
		}
	}
	return img
}

// FakeBackend is a synthetic Backend producing noise-pattern frames at a
// fixed rate, used for development and tests without hardware attached.
type FakeBackend struct {
	width, height int
	frameInterval time.Duration
	quality       int

	mu       sync.Mutex
	noise    *noise
	frameNum uint32
	mode     Mode
	vals     map[string]float64
}

// NewFakeBackend creates a FakeBackend at the given resolution, emitting a
// frame roughly every interval.
func NewFakeBackend(width, height int, interval time.Duration) *FakeBackend {
	return &FakeBackend{
		width: width, height: height,
		frameInterval: interval,
		quality:       75,
		noise:         makeNoise(),
		mode:          Preview,
		vals: map[string]float64{
			"exposure_absolute":  100,
			"gain":               1,
			"colour_gain_red":    1.5,
			"colour_gain_blue":   1.8,
		},
	}
}

func (b *FakeBackend) Open() error  { return nil }
func (b *FakeBackend) Close() error { return nil }

// Take produces a new synthetic frame, sleeping frameInterval to emulate a
// blocking sensor read when blocking is true.
func (b *FakeBackend) Take(blocking bool) (*Frame, error) {
	if blocking {
		time.Sleep(b.frameInterval)
	}
	b.mu.Lock()
	b.noise.update()
	img := b.noise.render(b.width, b.height)
	b.frameNum++
	num := b.frameNum
	b.mu.Unlock()

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: b.quality}); err != nil {
		return nil, err
	}
	return &Frame{
		Payload: buf.Bytes(),
		Metadata: map[string]interface{}{
			"frame_number": num,
			"timestamp":    time.Now().UTC(),
		},
	}, nil
}

func (b *FakeBackend) SetControl(name string, value float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.vals[name]; !ok {
		return &controls.ErrUnknownControl{Name: name}
	}
	b.vals[name] = value
	return nil
}

func (b *FakeBackend) GetControl(name string) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.vals[name]
	if !ok {
		return 0, &controls.ErrUnknownControl{Name: name}
	}
	return v, nil
}

// ListControls reports colour gains as a single native ColourGains 2-tuple,
// the way the real camera stack's AWB control surface does; splitting it
// into colour_gain_red/colour_gain_blue happens at the session Coordinator
// boundary, not here.
func (b *FakeBackend) ListControls() []controls.Descriptor {
	b.mu.Lock()
	defer b.mu.Unlock()
	return []controls.Descriptor{
		controls.NewInteger("exposure_absolute", "exposure_absolute", controls.Range{Min: 1, Max: 10000}, 100, b.vals["exposure_absolute"], nil),
		controls.NewFloat("gain", "gain", controls.Range{Min: 1, Max: 16}, 1, b.vals["gain"], nil),
		controls.NewColourGains("colour_gains", "colour_gains",
			controls.Range{Min: 0, Max: 8}, controls.Range{Min: 0, Max: 8},
			1.5, 1.8, b.vals["colour_gain_red"], b.vals["colour_gain_blue"]),
	}
}

func (b *FakeBackend) SetMode(mode Mode) error {
	switch mode {
	case Preview, Still, Video:
	default:
		return fmt.Errorf("camera: unsupported mode %q", mode)
	}
	b.mu.Lock()
	b.mode = mode
	b.mu.Unlock()
	return nil
}
