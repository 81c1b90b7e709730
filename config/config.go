// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package config loads and persists finchd's on-disk configuration,
// following the same load-normalize-rewrite pattern as cmd/lepton/seed.go's
// LoadSeeder.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"github.com/rehmi-lab/openfinch/illum"
)

// Config is finchd's persisted configuration: network/server settings plus
// the TriggerConfig defaults loaded at startup.
type Config struct {
	Port         int    `json:"port"`
	StaticDir    string `json:"static_dir"`
	CameraDevice string `json:"camera_device"` // V4L2 device path, or "fake"
	SLMEndpoint  string `json:"slm_endpoint"`

	Trigger TriggerDefaults `json:"trigger"`
}

// TriggerDefaults mirrors illum.TriggerConfig with JSON-friendly integer
// microsecond durations, since time.Duration marshals as an opaque int64
// of nanoseconds which is awkward to hand-edit.
type TriggerDefaults struct {
	RedIn, GrnIn, BluIn          int
	RedOut, GrnOut, BluOut       int
	TrigOut, TrigIn, StrobeIn    int
	RedStartUS, GrnStartUS, BluStartUS int
	LEDTimeUS, LEDWidthUS               int
	TrigTimeUS, TrigWidthUS             int
	HasTrigPulse                        bool
	WaveDurationUS                      int
	TrigPolarityInverted                bool
}

// Default returns the built-in defaults, matching the pinout convention
// used throughout the test suites (TrigIn == BluIn).
func Default() Config {
	return Config{
		Port:         8000,
		StaticDir:    "web/static",
		CameraDevice: "fake",
		Trigger: TriggerDefaults{
			RedIn: 2, GrnIn: 3, BluIn: 4,
			RedOut: 17, GrnOut: 27, BluOut: 22,
			TrigOut: 23, TrigIn: 4, StrobeIn: 24,
			GrnStartUS: 100, BluStartUS: 200,
			LEDTimeUS: 10, LEDWidthUS: 50,
			TrigTimeUS: 5, TrigWidthUS: 20,
			HasTrigPulse:   true,
			WaveDurationUS: 1000,
		},
	}
}

// TriggerConfig converts the persisted microsecond fields into an
// illum.TriggerConfig.
func (d TriggerDefaults) TriggerConfig() *illum.TriggerConfig {
	polarity := illum.ActiveHigh
	if d.TrigPolarityInverted {
		polarity = illum.ActiveLow
	}
	us := time.Microsecond
	return &illum.TriggerConfig{
		RedIn: d.RedIn, GrnIn: d.GrnIn, BluIn: d.BluIn,
		RedOut: d.RedOut, GrnOut: d.GrnOut, BluOut: d.BluOut,
		TrigOut: d.TrigOut, TrigIn: d.TrigIn, StrobeIn: d.StrobeIn,
		RedStart: time.Duration(d.RedStartUS) * us,
		GrnStart: time.Duration(d.GrnStartUS) * us,
		BluStart: time.Duration(d.BluStartUS) * us,
		LEDTime:  time.Duration(d.LEDTimeUS) * us,
		LEDWidth: time.Duration(d.LEDWidthUS) * us,
		TrigTime: time.Duration(d.TrigTimeUS) * us,
		TrigWidth: time.Duration(d.TrigWidthUS) * us,
		HasTrigPulse: d.HasTrigPulse,
		WaveDuration: time.Duration(d.WaveDurationUS) * us,
		TrigPolarity: polarity,
	}
}

// Path returns ~/.config/finch/finch.json.
func Path() (string, error) {
	usr, err := user.Current()
	if err != nil {
		return "", fmt.Errorf("config: resolve home directory: %w", err)
	}
	return filepath.Join(usr.HomeDir, ".config", "finch", "finch.json"), nil
}

// Load reads the config file at Path, creating it (normalized to Default)
// if it doesn't exist yet, exactly as LoadSeeder does for lepton.json.
func Load() (Config, error) {
	path, err := Path()
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	var srcData []byte
	if f, err := os.Open(path); err == nil {
		srcData, _ = readAll(f)
		f.Close()
		if len(srcData) > 0 {
			if err := json.Unmarshal(srcData, &cfg); err != nil {
				log.Printf("config: %s is invalid json: %s", path, err)
			}
		}
	}

	data, err := json.MarshalIndent(&cfg, "", "  ")
	if err != nil {
		return Config{}, fmt.Errorf("config: marshal: %w", err)
	}
	data = append(data, '\n')
	if !bytes.Equal(srcData, data) {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			log.Printf("config: failed to create %s: %s", filepath.Dir(path), err)
			return cfg, nil
		}
		if err := os.WriteFile(path, data, 0600); err != nil {
			log.Printf("config: failed to write %s: %s", path, err)
		}
	}
	return cfg, nil
}

func readAll(f *os.File) ([]byte, error) {
	var buf bytes.Buffer
	_, err := buf.ReadFrom(f)
	return buf.Bytes(), err
}
