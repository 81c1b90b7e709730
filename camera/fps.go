// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package camera

import (
	"sync"
	"time"
)

// fpsAlpha is the exponential smoothing factor:
// fps[n+1] = alpha*fps[n] + (1-alpha)*measured.
const fpsAlpha = 0.8

// fpsWindow is how often the smoothed rate is resampled.
const fpsWindow = time.Second

// fpsMonitor tracks an exponentially smoothed frames-per-second figure.
// Grounded on the 1Hz sampling loop of frame_rate_monitor.py.
type fpsMonitor struct {
	mu      sync.Mutex
	count   int
	fps     float64
	last    time.Time
	started bool
}

func newFPSMonitor() *fpsMonitor {
	return &fpsMonitor{}
}

// tick records one observed event (e.g. one frame).
func (m *fpsMonitor) tick() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	if !m.started {
		m.started = true
		m.last = now
		return
	}
	m.count++
	if elapsed := now.Sub(m.last); elapsed >= fpsWindow {
		measured := float64(m.count) / elapsed.Seconds()
		m.fps = fpsAlpha*m.fps + (1-fpsAlpha)*measured
		m.count = 0
		m.last = now
	}
}

// value returns the current smoothed rate.
func (m *fpsMonitor) value() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fps
}
