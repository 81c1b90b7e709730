// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package illum

import (
	"testing"
	"time"

	"github.com/rehmi-lab/openfinch/waveform"
)

func testConfig() *TriggerConfig {
	return &TriggerConfig{
		RedIn: 2, GrnIn: 3, BluIn: 4,
		RedOut: 17, GrnOut: 27, BluOut: 22,
		TrigOut: 23, TrigIn: 4, StrobeIn: 24,
		RedStart: 0, GrnStart: 100 * time.Microsecond, BluStart: 200 * time.Microsecond,
		LEDTime:      10 * time.Microsecond,
		LEDWidth:     50 * time.Microsecond,
		TrigTime:     5 * time.Microsecond,
		TrigWidth:    20 * time.Microsecond,
		HasTrigPulse: true,
		WaveDuration: 1000 * time.Microsecond,
	}
}

func TestScheduleWithinDuration(t *testing.T) {
	c := testConfig()
	events, err := Schedule(c, true)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range events {
		if e.Time > c.WaveDuration {
			t.Fatalf("event %v exceeds wave_duration %s", e, c.WaveDuration)
		}
	}
	if _, err := waveform.Compile(events); err != nil {
		t.Fatalf("generated schedule failed to compile: %v", err)
	}
}

func TestScheduleWithoutTrigger(t *testing.T) {
	c := testConfig()
	events, err := Schedule(c, false)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range events {
		if e.Pin == c.TrigOut {
			t.Fatalf("trig_out event present when triggerCamera=false: %v", e)
		}
	}
}

func TestValidateRejectsOverlap(t *testing.T) {
	c := testConfig()
	c.GrnOut = c.RedOut
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for duplicate pin assignment")
	}
}

func TestValidateRejectsOverrun(t *testing.T) {
	c := testConfig()
	c.WaveDuration = 10 * time.Microsecond
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for phase exceeding wave_duration")
	}
}

func TestScheduleHonorsDisabledColors(t *testing.T) {
	c := testConfig()
	c.DisableGrn = true
	events, err := Schedule(c, false)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range events {
		if e.Pin == c.GrnOut {
			t.Fatalf("GrnOut event present despite DisableGrn: %v", e)
		}
	}
}

func TestParseIlluminationMode(t *testing.T) {
	red, grn, blu, err := ParseIlluminationMode("421")
	if err != nil {
		t.Fatal(err)
	}
	if !red || !grn || !blu {
		t.Fatalf("expected all three colors enabled across digits 4,2,1; got red=%v grn=%v blu=%v", red, grn, blu)
	}
	red, grn, blu, err = ParseIlluminationMode("000")
	if err != nil {
		t.Fatal(err)
	}
	if red || grn || blu {
		t.Fatal("expected all colors disabled for mode 000")
	}
}

func TestParseIlluminationModeRejectsBadInput(t *testing.T) {
	if _, _, _, err := ParseIlluminationMode("88"); err == nil {
		t.Fatal("expected error for wrong length")
	}
	if _, _, _, err := ParseIlluminationMode("89a"); err == nil {
		t.Fatal("expected error for non-octal digit")
	}
}
