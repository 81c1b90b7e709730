// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package camera_test

import (
	"testing"
	"time"

	"github.com/rehmi-lab/openfinch/camera"
	"github.com/rehmi-lab/openfinch/camera/camtest"
)

func TestReaderLatestWins(t *testing.T) {
	backend := camtest.New()
	r := camera.NewReader(backend)
	if err := r.Start(); err != nil {
		t.Fatal(err)
	}
	defer r.Stop()

	// Let several frames pile up in the mailbox without being consumed.
	time.Sleep(20 * time.Millisecond)
	f := consumeReader(t, r)
	if f == nil {
		t.Fatal("expected a frame")
	}
	firstNum := f.Metadata["frame_number"]

	time.Sleep(20 * time.Millisecond)
	f2 := consumeReader(t, r)
	if f2 == nil {
		t.Fatal("expected a second frame")
	}
	if f2.Metadata["frame_number"] == firstNum {
		t.Fatalf("expected a newer frame, got the same one: %v", firstNum)
	}
}

func TestReaderStopIsIdempotentWithoutStart(t *testing.T) {
	r := camera.NewReader(camtest.New())
	if err := r.Stop(); err != nil {
		t.Fatalf("Stop on unstarted Reader: %v", err)
	}
}

func TestControllerNonBlockingTake(t *testing.T) {
	backend := camtest.New()
	r := camera.NewReader(backend)
	c := camera.NewController(r)
	if err := c.Open(); err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	time.Sleep(10 * time.Millisecond)
	if f := c.Take(); f == nil {
		t.Fatal("expected a frame once the reader has run")
	}
}

func TestControllerSetControlDropsUnknown(t *testing.T) {
	backend := camtest.New()
	r := camera.NewReader(backend)
	c := camera.NewController(r)
	// SetControl never surfaces an error to the caller: this must not
	// panic even for an unknown control.
	c.SetControl("not_a_real_control", 1)
}

func TestControllerListControls(t *testing.T) {
	backend := camtest.New()
	r := camera.NewReader(backend)
	c := camera.NewController(r)
	descs := c.ListControls()
	if len(descs) == 0 {
		t.Fatal("expected at least one control descriptor")
	}
}

// consumeReader wraps r in a Controller to reach the unexported mailbox
// through the exported, non-blocking Take, polling until a frame arrives or
// a second has passed.
func consumeReader(t *testing.T, r *camera.Reader) *camera.Frame {
	t.Helper()
	c := camera.NewController(r)
	var f *camera.Frame
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if f = c.Take(); f != nil {
			return f
		}
		time.Sleep(time.Millisecond)
	}
	return f
}
