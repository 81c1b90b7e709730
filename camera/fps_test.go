// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package camera

import "testing"

func TestFPSMonitorZeroBeforeFirstWindow(t *testing.T) {
	m := newFPSMonitor()
	m.tick()
	if v := m.value(); v != 0 {
		t.Fatalf("expected 0 before a full window elapses, got %v", v)
	}
}

func TestFPSMonitorSmoothsTowardMeasured(t *testing.T) {
	m := newFPSMonitor()
	m.started = true
	m.last = m.last.Add(-fpsWindow)
	m.count = 30
	m.tick()
	if m.fps <= 0 {
		t.Fatalf("expected a positive smoothed fps after a window, got %v", m.fps)
	}
}
