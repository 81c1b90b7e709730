// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package waveform

import (
	"testing"
	"time"
)

func sumDelay(steps []PulseStep) time.Duration {
	var total time.Duration
	for _, s := range steps {
		total += s.Delay
	}
	return total
}

func TestCompileSimpleCycle(t *testing.T) {
	events := []BitEvent{
		{Pin: 5, Level: High, Time: 0},
		{Pin: 5, Level: Low, Time: 10 * time.Microsecond},
		{Pin: 17, Level: High, Time: 400 * time.Microsecond},
		{Pin: 17, Level: Low, Time: 404 * time.Microsecond},
		{Pin: 23, Level: High, Time: 8000 * time.Microsecond},
	}
	steps, err := Compile(events)
	if err != nil {
		t.Fatal(err)
	}
	if len(steps) != 5 {
		t.Fatalf("got %d steps, want 5: %+v", len(steps), steps)
	}
	if got, want := sumDelay(steps), 8000*time.Microsecond; got != want {
		t.Fatalf("cumulative delay = %s, want %s", got, want)
	}
	for _, s := range steps {
		if s.SetMask&s.ClearMask != 0 {
			t.Fatalf("step has overlapping set/clear masks: %+v", s)
		}
	}
}

func TestCompileOutOfOrder(t *testing.T) {
	shuffled := []BitEvent{
		{Pin: 3, Level: High, Time: 40 * time.Microsecond},
		{Pin: 0, Level: High, Time: 10 * time.Microsecond},
		{Pin: 2, Level: High, Time: 30 * time.Microsecond},
		{Pin: 1, Level: High, Time: 5 * time.Microsecond},
		{Pin: 3, Level: Low, Time: 35 * time.Microsecond},
		{Pin: 1, Level: Low, Time: 20 * time.Microsecond},
	}
	sorted := []BitEvent{
		{Pin: 1, Level: High, Time: 5 * time.Microsecond},
		{Pin: 0, Level: High, Time: 10 * time.Microsecond},
		{Pin: 1, Level: Low, Time: 20 * time.Microsecond},
		{Pin: 2, Level: High, Time: 30 * time.Microsecond},
		{Pin: 3, Level: Low, Time: 35 * time.Microsecond},
		{Pin: 3, Level: High, Time: 40 * time.Microsecond},
	}
	got, err := Compile(shuffled)
	if err != nil {
		t.Fatal(err)
	}
	want, err := Compile(sorted)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(want) {
		t.Fatalf("len(got)=%d len(want)=%d", len(got), len(want))
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("step %d: got %+v want %+v", i, got[i], want[i])
		}
	}
	if sumDelay(got) != 40*time.Microsecond {
		t.Fatalf("cumulative delay = %s, want 40us", sumDelay(got))
	}
}

func TestCompileSortsUnorderedInput(t *testing.T) {
	// Compile always sorts first, so arrival order never by itself causes a
	// failure.
	_, err := Compile([]BitEvent{
		{Pin: 1, Level: High, Time: 10 * time.Microsecond},
		{Pin: 1, Level: Low, Time: 5 * time.Microsecond},
	})
	if err != nil {
		t.Fatalf("sorted input should never fail monotonicity: %v", err)
	}
}

func TestCompileMonotonicityError(t *testing.T) {
	// A negative Time violates the BitEvent invariant (time >= 0); since the
	// cycle origin (prev) starts at 0, sorting it first still yields a
	// negative delay against the origin.
	_, err := Compile([]BitEvent{
		{Pin: 1, Level: High, Time: -5 * time.Microsecond},
	})
	if _, ok := err.(*MonotonicityError); !ok {
		t.Fatalf("got %v, want *MonotonicityError", err)
	}
}

func TestCompileCollision(t *testing.T) {
	_, err := Compile([]BitEvent{
		{Pin: 4, Level: High, Time: 100 * time.Microsecond},
		{Pin: 4, Level: Low, Time: 100 * time.Microsecond},
	})
	if _, ok := err.(*CollisionError); !ok {
		t.Fatalf("got %v, want *CollisionError", err)
	}
}

func TestCompileCompleteness(t *testing.T) {
	events := []BitEvent{
		{Pin: 1, Level: High, Time: 0},
		{Pin: 1, Level: Low, Time: 100 * time.Microsecond},
		{Pin: 2, Level: High, Time: 50 * time.Microsecond},
		{Pin: 2, Level: Low, Time: 150 * time.Microsecond},
	}
	steps, err := Compile(events)
	if err != nil {
		t.Fatal(err)
	}
	// Replay: track live bits and the time each step's edges take effect.
	var now time.Duration
	live := map[int]bool{}
	intervals := map[int][2]time.Duration{}
	starts := map[int]time.Duration{}
	for _, s := range steps {
		now += s.Delay
		for pin := 0; pin < 32; pin++ {
			bit := uint32(1) << uint(pin)
			if s.SetMask&bit != 0 {
				live[pin] = true
				starts[pin] = now
			}
			if s.ClearMask&bit != 0 {
				if live[pin] {
					intervals[pin] = [2]time.Duration{starts[pin], now}
				}
				live[pin] = false
			}
		}
	}
	if got := intervals[1]; got != ([2]time.Duration{0, 100 * time.Microsecond}) {
		t.Fatalf("pin1 interval = %v", got)
	}
	if got := intervals[2]; got != ([2]time.Duration{50 * time.Microsecond, 150 * time.Microsecond}) {
		t.Fatalf("pin2 interval = %v", got)
	}
}

func TestCompileEmpty(t *testing.T) {
	steps, err := Compile(nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(steps) != 0 {
		t.Fatalf("got %d steps, want 0", len(steps))
	}
}
