// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package session_test

import (
	"testing"
	"time"

	"github.com/rehmi-lab/openfinch/camera"
	"github.com/rehmi-lab/openfinch/gpioprog"
	"github.com/rehmi-lab/openfinch/hub"
	"github.com/rehmi-lab/openfinch/illum"
	"github.com/rehmi-lab/openfinch/sequencer"
	"github.com/rehmi-lab/openfinch/session"
)

func testConfig() *illum.TriggerConfig {
	return &illum.TriggerConfig{
		RedIn: 2, GrnIn: 3, BluIn: 4,
		RedOut: 17, GrnOut: 27, BluOut: 22,
		TrigOut: 23, TrigIn: 4, StrobeIn: 24,
		GrnStart: 50 * time.Microsecond, BluStart: 100 * time.Microsecond,
		LEDTime:      10 * time.Microsecond,
		LEDWidth:     20 * time.Microsecond,
		TrigTime:     2 * time.Microsecond,
		TrigWidth:    5 * time.Microsecond,
		HasTrigPulse: true,
		WaveDuration: 200 * time.Microsecond,
	}
}

func newCoordinator(t *testing.T) (*session.Coordinator, *camera.FakeBackend) {
	t.Helper()
	store, _ := gpioprog.NewSimulated()
	seq, err := sequencer.New(store, sequencer.Config{RepeatN: 2, GraceWaves: 0})
	if err != nil {
		t.Fatal(err)
	}
	config := testConfig()
	if err := seq.Start(config); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { seq.Stop() })

	backend := camera.NewFakeBackend(16, 16, time.Millisecond)
	cam := camera.NewController(camera.NewReader(backend))
	return session.New(hub.New(), cam, seq, nil, config), backend
}

func TestHandleInboundSetControl(t *testing.T) {
	c, backend := newCoordinator(t)
	h := hub.New()
	sub := h.Join(nil)
	defer h.Leave(sub)

	if err := c.HandleInbound(sub, []byte(`{"set_control": {"gain": 4.0}}`)); err != nil {
		t.Fatal(err)
	}
	v, err := backend.GetControl("gain")
	if err != nil {
		t.Fatal(err)
	}
	if v != 4.0 {
		t.Fatalf("got %v, want 4.0", v)
	}
}

func TestHandleInboundStreamPrefsToggle(t *testing.T) {
	c, _ := newCoordinator(t)
	h := hub.New()
	sub := h.Join(nil)
	defer h.Leave(sub)

	if err := c.HandleInbound(sub, []byte(`{"stream_frames": {"value": false}, "use_base64_encoding": {"value": true}}`)); err != nil {
		t.Fatal(err)
	}
	prefs := sub.Prefs()
	if prefs.Stream || !prefs.Base64 {
		t.Fatalf("got %+v", prefs)
	}
}

func TestListControlsSplitsColourGains(t *testing.T) {
	c, _ := newCoordinator(t)
	descs := c.ListControls()
	foundRed, foundBlue := false, false
	for _, d := range descs {
		if d.ID == "colour_gain_red" {
			foundRed = true
		}
		if d.ID == "colour_gain_blue" {
			foundBlue = true
		}
	}
	if !foundRed || !foundBlue {
		t.Fatalf("expected split colour_gain_red/blue descriptors, got %+v", descs)
	}
}

func TestHandleInboundLEDTimeMutatesAndApplies(t *testing.T) {
	c, _ := newCoordinator(t)
	h := hub.New()
	sub := h.Join(nil)
	defer h.Leave(sub)

	if err := c.HandleInbound(sub, []byte(`{"LED_TIME": {"value": 15}}`)); err != nil {
		t.Fatal(err)
	}
}

func TestHandleInboundImageRequestIsNoop(t *testing.T) {
	c, _ := newCoordinator(t)
	h := hub.New()
	sub := h.Join(nil)
	defer h.Leave(sub)
	if err := c.HandleInbound(sub, []byte(`{"image_request": {}}`)); err != nil {
		t.Fatal(err)
	}
}
