// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package session

import (
	"testing"
	"time"

	"github.com/rehmi-lab/openfinch/camera"
	"github.com/rehmi-lab/openfinch/camera/camtest"
	"github.com/rehmi-lab/openfinch/gpioprog"
	"github.com/rehmi-lab/openfinch/hub"
	"github.com/rehmi-lab/openfinch/illum"
	"github.com/rehmi-lab/openfinch/sequencer"
)

func testTriggerConfig() *illum.TriggerConfig {
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

func newTestCoordinator(t *testing.T) *Coordinator {
	t.Helper()
	store, _ := gpioprog.NewSimulated()
	seq, err := sequencer.New(store, sequencer.Config{RepeatN: 2, GraceWaves: 0})
	if err != nil {
		t.Fatal(err)
	}
	config := testTriggerConfig()
	if err := seq.Start(config); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { seq.Stop() })

	backend := camtest.New()
	cam := camera.NewController(camera.NewReader(backend))

	return New(hub.New(), cam, seq, nil, config)
}

func TestAdvanceSweepWrapsAndUpdatesConfig(t *testing.T) {
	c := newTestCoordinator(t)
	c.EnableSweep(true)
	c.sweep.tMin = 0
	c.sweep.tMax = 30 * time.Microsecond
	c.sweep.dt = 10 * time.Microsecond

	start := c.config.LEDTime
	for i := 0; i < 4; i++ {
		c.advanceSweepIfEnabled()
	}
	if c.config.LEDTime == start {
		t.Fatal("expected LEDTime to have advanced")
	}
}

func TestAdvanceSweepNoopWhenDisabled(t *testing.T) {
	c := newTestCoordinator(t)
	start := c.config.LEDTime
	c.advanceSweepIfEnabled()
	if c.config.LEDTime != start {
		t.Fatal("expected no change while sweep is disabled")
	}
}

func TestMutateConfigRejectsInvalid(t *testing.T) {
	c := newTestCoordinator(t)
	before := c.config.WaveDuration
	c.mutateConfig(func(cfg *illum.TriggerConfig) { cfg.WaveDuration = time.Microsecond })
	if c.config.WaveDuration != before {
		t.Fatal("expected invalid mutation to be rejected and config left unchanged")
	}
}
