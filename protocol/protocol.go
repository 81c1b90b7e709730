// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package protocol implements the WebSocket wire format: inbound JSON
// commands and outbound JSON/binary messages exchanged between the
// Coordinator and a dashboard or CLI client.
package protocol

import (
	"encoding/json"
	"fmt"
	"log"
)

// Known inbound top-level keys. A single JSON object may carry more than
// one of these at once; unrecognized keys are logged and ignored rather
// than rejecting the whole message.
const (
	KeySetControl         = "set_control"
	KeySweepEnable        = "sweep_enable"
	KeyUpdateControls     = "update_controls"
	KeyCaptureMode        = "capture_mode"
	KeyLEDTime             = "LED_TIME"
	KeyLEDWidth            = "LED_WIDTH"
	KeyWaveDuration        = "WAVE_DURATION"
	KeyIlluminationMode    = "ILLUMINATION_MODE"
	KeyStreamFrames        = "stream_frames"
	KeyUseBase64Encoding   = "use_base64_encoding"
	KeySendFPSUpdates      = "send_fps_updates"
	KeySLMImageURL         = "slm_image_url"
	KeySLMImage            = "slm_image"
	KeyImageRequest        = "image_request"
)

// CaptureMode enumerates the camera mode names accepted by capture_mode.
type CaptureMode string

const (
	ModePreview     CaptureMode = "preview"
	ModeStill       CaptureMode = "still"
	ModeVideo       CaptureMode = "video"
	ModeTriggered   CaptureMode = "triggered"
	ModeFreerunning CaptureMode = "freerunning"
)

// valueBool/valueInt/valueString unwrap the common `{"value": ...}`
// envelope the inbound keys use.
type valueBool struct {
	Value bool `json:"value"`
}

type valueInt struct {
	Value int `json:"value"`
}

type valueString struct {
	Value string `json:"value"`
}

// Inbound is a fully decoded client→server message: at most one field per
// recognized key is populated, mirroring which top-level keys were present
// in the raw JSON object.
type Inbound struct {
	SetControl      map[string]float64
	SweepEnable     *bool
	UpdateControls  bool
	CaptureMode     CaptureMode
	LEDTime         *int
	LEDWidth        *int
	WaveDuration    *int
	IlluminationMode string
	StreamFrames    *bool
	UseBase64       *bool
	SendFPSUpdates  *bool
	SLMImageURL     string
	SLMImageNext    bool
	SLMImageBase64  string
	ImageRequest    bool

	Unknown []string
}

// Decode parses one inbound WebSocket text frame. Recognized keys are
// distributed into the returned Inbound's fields; unrecognized keys are
// recorded in Unknown for the caller to log.
func Decode(data []byte) (*Inbound, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("protocol: decode: %w", err)
	}
	in := &Inbound{}
	for key, v := range raw {
		switch key {
		case KeySetControl:
			var m map[string]float64
			if err := json.Unmarshal(v, &m); err != nil {
				return nil, fmt.Errorf("protocol: %s: %w", key, err)
			}
			in.SetControl = m
		case KeySweepEnable:
			var b valueBool
			if err := json.Unmarshal(v, &b); err != nil {
				return nil, fmt.Errorf("protocol: %s: %w", key, err)
			}
			in.SweepEnable = &b.Value
		case KeyUpdateControls:
			in.UpdateControls = true
		case KeyCaptureMode:
			var s valueString
			if err := json.Unmarshal(v, &s); err != nil {
				return nil, fmt.Errorf("protocol: %s: %w", key, err)
			}
			in.CaptureMode = CaptureMode(s.Value)
		case KeyLEDTime:
			var n valueInt
			if err := json.Unmarshal(v, &n); err != nil {
				return nil, fmt.Errorf("protocol: %s: %w", key, err)
			}
			in.LEDTime = &n.Value
		case KeyLEDWidth:
			var n valueInt
			if err := json.Unmarshal(v, &n); err != nil {
				return nil, fmt.Errorf("protocol: %s: %w", key, err)
			}
			in.LEDWidth = &n.Value
		case KeyWaveDuration:
			var n valueInt
			if err := json.Unmarshal(v, &n); err != nil {
				return nil, fmt.Errorf("protocol: %s: %w", key, err)
			}
			in.WaveDuration = &n.Value
		case KeyIlluminationMode:
			var s valueString
			if err := json.Unmarshal(v, &s); err != nil {
				return nil, fmt.Errorf("protocol: %s: %w", key, err)
			}
			in.IlluminationMode = s.Value
		case KeyStreamFrames:
			var b valueBool
			if err := json.Unmarshal(v, &b); err != nil {
				return nil, fmt.Errorf("protocol: %s: %w", key, err)
			}
			in.StreamFrames = &b.Value
		case KeyUseBase64Encoding:
			var b valueBool
			if err := json.Unmarshal(v, &b); err != nil {
				return nil, fmt.Errorf("protocol: %s: %w", key, err)
			}
			in.UseBase64 = &b.Value
		case KeySendFPSUpdates:
			var b valueBool
			if err := json.Unmarshal(v, &b); err != nil {
				return nil, fmt.Errorf("protocol: %s: %w", key, err)
			}
			in.SendFPSUpdates = &b.Value
		case KeySLMImageURL:
			var s string
			if err := json.Unmarshal(v, &s); err != nil {
				return nil, fmt.Errorf("protocol: %s: %w", key, err)
			}
			in.SLMImageURL = s
		case KeySLMImage:
			var s string
			if err := json.Unmarshal(v, &s); err != nil {
				return nil, fmt.Errorf("protocol: %s: %w", key, err)
			}
			if s == "next" {
				in.SLMImageNext = true
			} else {
				in.SLMImageBase64 = s
			}
		case KeyImageRequest:
			in.ImageRequest = true
		default:
			in.Unknown = append(in.Unknown, key)
		}
	}
	return in, nil
}

// LogUnknown logs any unrecognized top-level keys found while decoding.
func (in *Inbound) LogUnknown() {
	for _, k := range in.Unknown {
		log.Printf("protocol: ignoring unrecognized key %q", k)
	}
}

// ImageResponseNext announces a binary frame that follows immediately, the
// {"image_response": {"image": "next", ...}} form.
func ImageResponseNext(metadata map[string]interface{}) []byte {
	return mustMarshal(map[string]interface{}{
		"image_response": map[string]interface{}{
			"image":    "next",
			"metadata": metadata,
		},
	})
}

// ImageResponseHere embeds the base64-encoded image inline, the
// {"image_response": {"image": "here", ...}} form.
func ImageResponseHere(metadata map[string]interface{}, base64Image string) []byte {
	return mustMarshal(map[string]interface{}{
		"image_response": map[string]interface{}{
			"image":         "here",
			"metadata":      metadata,
			"image_base64":  base64Image,
		},
	})
}

// FPSUpdate builds the fps_update telemetry message.
func FPSUpdate(readerFPS, captureFPS, controllerFPS float64) []byte {
	return mustMarshal(map[string]interface{}{
		"fps_update": map[string]interface{}{
			"image_capture_reader_fps":  readerFPS,
			"image_capture_capture_fps": captureFPS,
			"system_controller_fps":     controllerFPS,
		},
	})
}

// UpdateControls reports the current value of every known control.
func UpdateControls(values map[string]float64) []byte {
	return mustMarshal(map[string]interface{}{"update_controls": values})
}

// Echo announces a server-initiated change to a single named value, e.g.
// sweep adjusting LED_TIME: {"LED_TIME": {"value": int}}.
func Echo(key string, value int) []byte {
	return mustMarshal(map[string]interface{}{key: map[string]int{"value": value}})
}

func mustMarshal(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		// Every value passed to these builders is a closed set of JSON-safe
		// types constructed by this package; a marshal failure means a bug
		// here, not bad input.
		panic(fmt.Sprintf("protocol: marshal: %s", err))
	}
	return data
}
