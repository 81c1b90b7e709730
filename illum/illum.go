// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package illum derives waveform.BitEvent schedules from a TriggerConfig for
// one illumination cycle.
package illum

import (
	"fmt"
	"time"

	"github.com/rehmi-lab/openfinch/waveform"
)

// Polarity selects whether TRIG_OUT idles high (pulsing low, "inverted")
// or idles low (pulsing high, "normal"). Either way, the two emitted edges
// bound the active interval; callers decide which phase is "active"
// electrically.
type Polarity int

// Valid values for Polarity.
const (
	ActiveHigh Polarity = iota
	ActiveLow
)

// TriggerConfig is the immutable-by-swap configuration for one illumination
// cycle.
type TriggerConfig struct {
	RedIn, GrnIn, BluIn          int
	RedOut, GrnOut, BluOut       int
	TrigOut                      int
	TrigIn                       int // conventionally == BluIn
	StrobeIn                     int
	RedStart, GrnStart, BluStart time.Duration
	LEDTime                      time.Duration
	LEDWidth                     time.Duration
	TrigTime, TrigWidth          time.Duration
	HasTrigPulse                 bool
	WaveDuration                 time.Duration
	TrigPolarity                 Polarity

	// DisableRed/Grn/Blu implement the ILLUMINATION_MODE control: a
	// disabled color's pulse is omitted from the schedule entirely. Zero
	// value (false) means enabled, so configs built without touching these
	// fields keep all three colors firing as before.
	DisableRed, DisableGrn, DisableBlu bool
}

// Validate checks the TriggerConfig invariants.
func (c *TriggerConfig) Validate() error {
	pins := []int{c.RedIn, c.GrnIn, c.BluIn, c.RedOut, c.GrnOut, c.BluOut, c.TrigOut, c.StrobeIn}
	seen := map[int]bool{}
	for _, p := range pins {
		if p < 0 || p > 31 {
			return fmt.Errorf("illum: pin %d out of range 0..31", p)
		}
		if seen[p] {
			return fmt.Errorf("illum: pin %d used more than once", p)
		}
		seen[p] = true
	}
	for _, phase := range []time.Duration{c.RedStart, c.GrnStart, c.BluStart} {
		if phase+c.LEDTime+c.LEDWidth > c.WaveDuration {
			return fmt.Errorf("illum: phase %s + led_time %s + led_width %s exceeds wave_duration %s", phase, c.LEDTime, c.LEDWidth, c.WaveDuration)
		}
	}
	if c.HasTrigPulse && c.TrigTime+c.TrigWidth > c.WaveDuration {
		return fmt.Errorf("illum: trig_time %s + trig_width %s exceeds wave_duration %s", c.TrigTime, c.TrigWidth, c.WaveDuration)
	}
	return nil
}

// Schedule produces the waveform.BitEvent list for one cycle, optionally
// including the camera-trigger pulse.
func Schedule(c *TriggerConfig, triggerCamera bool) ([]waveform.BitEvent, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	var events []waveform.BitEvent

	if triggerCamera && c.HasTrigPulse {
		active, idle := waveform.High, waveform.Low
		if c.TrigPolarity == ActiveLow {
			active, idle = waveform.Low, waveform.High
		}
		events = append(events,
			waveform.BitEvent{Pin: c.TrigOut, Level: active, Time: c.TrigTime},
			waveform.BitEvent{Pin: c.TrigOut, Level: idle, Time: c.TrigTime + c.TrigWidth},
		)
	}

	type color struct {
		pin      int
		start    time.Duration
		disabled bool
	}
	for _, col := range []color{
		{c.RedOut, c.RedStart, c.DisableRed},
		{c.GrnOut, c.GrnStart, c.DisableGrn},
		{c.BluOut, c.BluStart, c.DisableBlu},
	} {
		if col.disabled {
			continue
		}
		onAt := c.LEDTime + col.start
		events = append(events,
			waveform.BitEvent{Pin: col.pin, Level: waveform.High, Time: onAt},
			waveform.BitEvent{Pin: col.pin, Level: waveform.Low, Time: onAt + c.LEDWidth},
		)
	}

	// Terminator: pads the cycle to its full length. StrobeIn is an input in
	// the real system so this edge is never driven electrically, but the
	// pulse engine still enforces the cumulative delay it implies.
	events = append(events, waveform.BitEvent{Pin: c.StrobeIn, Level: waveform.High, Time: c.WaveDuration})

	return events, nil
}

// ParseIlluminationMode decodes the "NNN" wire value (three octal digits,
// one per sub-field) into a flattened enable mask for each of the three
// output colors: a color is enabled if any digit sets its bit (bit 0 = red,
// bit 1 = green, bit 2 = blue).
func ParseIlluminationMode(s string) (enableRed, enableGrn, enableBlu bool, err error) {
	if len(s) != 3 {
		return false, false, false, fmt.Errorf("illum: illumination mode %q must be exactly 3 octal digits", s)
	}
	for _, ch := range s {
		if ch < '0' || ch > '7' {
			return false, false, false, fmt.Errorf("illum: illumination mode %q contains a non-octal digit", s)
		}
		d := int(ch - '0')
		enableRed = enableRed || d&1 != 0
		enableGrn = enableGrn || d&2 != 0
		enableBlu = enableBlu || d&4 != 0
	}
	return enableRed, enableGrn, enableBlu, nil
}
