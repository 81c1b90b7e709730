// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package camera

import (
	"bytes"
	"testing"
	"time"
)

func TestFakeBackendTakeProducesValidJPEG(t *testing.T) {
	b := NewFakeBackend(32, 24, time.Millisecond)
	f, err := b.Take(true)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(f.Payload, []byte{0xff, 0xd8}) {
		t.Fatal("payload missing JPEG SOI marker")
	}
	if _, ok := f.Metadata["frame_number"]; !ok {
		t.Fatal("expected frame_number metadata")
	}
}

func TestFakeBackendFrameNumberIncrements(t *testing.T) {
	b := NewFakeBackend(16, 16, 0)
	f1, _ := b.Take(false)
	f2, _ := b.Take(false)
	n1 := f1.Metadata["frame_number"]
	n2 := f2.Metadata["frame_number"]
	if n1 == n2 {
		t.Fatalf("expected distinct frame numbers, got %v twice", n1)
	}
}

func TestFakeBackendControlRoundTrip(t *testing.T) {
	b := NewFakeBackend(16, 16, 0)
	if err := b.SetControl("gain", 4.5); err != nil {
		t.Fatal(err)
	}
	v, err := b.GetControl("gain")
	if err != nil {
		t.Fatal(err)
	}
	if v != 4.5 {
		t.Fatalf("got %v, want 4.5", v)
	}
}

func TestFakeBackendUnknownControl(t *testing.T) {
	b := NewFakeBackend(16, 16, 0)
	if err := b.SetControl("bogus", 1); err == nil {
		t.Fatal("expected an error for an unknown control")
	}
	if _, err := b.GetControl("bogus"); err == nil {
		t.Fatal("expected an error for an unknown control")
	}
}

func TestFakeBackendSetModeRejectsUnknown(t *testing.T) {
	b := NewFakeBackend(16, 16, 0)
	if err := b.SetMode(Mode("bogus")); err == nil {
		t.Fatal("expected an error for an unsupported mode")
	}
	if err := b.SetMode(Still); err != nil {
		t.Fatal(err)
	}
}
