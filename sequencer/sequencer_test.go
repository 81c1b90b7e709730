// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package sequencer

import (
	"testing"
	"time"

	"periph.io/x/conn/v3/gpio"

	"github.com/rehmi-lab/openfinch/gpioprog"
	"github.com/rehmi-lab/openfinch/illum"
)

func testTriggerConfig() *illum.TriggerConfig {
	return &illum.TriggerConfig{
		RedIn: 2, GrnIn: 3, BluIn: 4,
		RedOut: 17, GrnOut: 27, BluOut: 22,
		TrigOut: 23, TrigIn: 4, StrobeIn: 24,
		RedStart: 0, GrnStart: 20 * time.Microsecond, BluStart: 40 * time.Microsecond,
		LEDTime:      0,
		LEDWidth:     10 * time.Microsecond,
		TrigTime:     5 * time.Microsecond,
		TrigWidth:    10 * time.Microsecond,
		HasTrigPulse: true,
		WaveDuration: 200 * time.Microsecond,
	}
}

func toggleTrigger(pins *gpioprog.SimulatedPins, count int, period time.Duration) {
	for i := 0; i < count; i++ {
		pins.Set("GPIO4", gpio.High)
		time.Sleep(period / 2)
		pins.Set("GPIO4", gpio.Low)
		time.Sleep(period / 2)
	}
}

func TestCadenceNto1(t *testing.T) {
	store, pins := gpioprog.NewSimulated()
	seq, err := New(store, Config{RepeatN: 3, GraceWaves: 1})
	if err != nil {
		t.Fatal(err)
	}
	if err := seq.Start(testTriggerConfig()); err != nil {
		t.Fatal(err)
	}
	if got, want := seq.State(), Running; got != want {
		t.Fatalf("state = %s, want %s", got, want)
	}

	toggleTrigger(pins, 16, 3*time.Millisecond)

	if err := seq.Stop(); err != nil {
		t.Fatal(err)
	}
	if got := seq.State(); got != Stopped {
		t.Fatalf("state after Stop = %s, want Stopped", got)
	}

	stats := seq.Stats()
	if stats.CyclesFired < 8 {
		t.Fatalf("too few cycles observed: %+v", stats)
	}
	wantTriggers := stats.CyclesFired / (seq.cfg.RepeatN + 1)
	diff := stats.CameraTriggers - wantTriggers
	if diff < -1 || diff > 1 {
		t.Fatalf("cadence off: %+v, want ~1 trigger per %d cycles", stats, seq.cfg.RepeatN+1)
	}
}

func TestUpdateWaveAtomicSwap(t *testing.T) {
	store, pins := gpioprog.NewSimulated()
	seq, err := New(store, Config{RepeatN: 3, GraceWaves: 0})
	if err != nil {
		t.Fatal(err)
	}
	cfg := testTriggerConfig()
	if err := seq.Start(cfg); err != nil {
		t.Fatal(err)
	}

	go toggleTrigger(pins, 40, 2*time.Millisecond)

	prevRGB, prevRGBTrig := seq.rgbID, seq.rgbTrigID

	updated := *cfg
	updated.GrnStart = 60 * time.Microsecond
	if err := seq.UpdateWave(&updated); err != nil {
		t.Fatal(err)
	}

	// UpdateWave returns as soon as the new params are live; the previous
	// pair is reclaimed on a background goroutine after the grace period,
	// so poll for it instead of asserting synchronously.
	deadline := time.Now().Add(time.Second)
	for {
		errRGB := store.Fire(prevRGB)
		errRGBTrig := store.Fire(prevRGBTrig)
		if errRGB != nil && errRGBTrig != nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("previous waveforms were never reclaimed")
		}
		time.Sleep(time.Millisecond)
	}

	if err := seq.Stop(); err != nil {
		t.Fatal(err)
	}
}

func TestRepeatNValidated(t *testing.T) {
	store, _ := gpioprog.NewSimulated()
	if _, err := New(store, Config{RepeatN: 0}); err == nil {
		t.Fatal("expected error for RepeatN < 1")
	}
}
