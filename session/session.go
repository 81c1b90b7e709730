// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package session implements the Session Coordinator: the single
// cooperative tick loop that owns the TriggerConfig, drives sweep mode,
// fans frames and telemetry out through the Hub, and dispatches the
// inbound JSON control protocol.
package session

import (
	"encoding/base64"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/net/websocket"

	"github.com/rehmi-lab/openfinch/camera"
	"github.com/rehmi-lab/openfinch/controls"
	"github.com/rehmi-lab/openfinch/display"
	"github.com/rehmi-lab/openfinch/hub"
	"github.com/rehmi-lab/openfinch/illum"
	"github.com/rehmi-lab/openfinch/protocol"
	"github.com/rehmi-lab/openfinch/sequencer"
)

// TickPeriod is the Coordinator's cooperative tick period.
const TickPeriod = time.Millisecond

// telemetryPeriod is the minimum interval between fps_update sends.
const telemetryPeriod = time.Second

// sweepState is the internal led_time walk state.
type sweepState struct {
	enabled bool
	dt      time.Duration
	tMin    time.Duration
	tMax    time.Duration
}

// Coordinator is the Session Coordinator.
type Coordinator struct {
	hub *hub.Hub
	cam *camera.Controller
	seq *sequencer.Sequencer
	slm *display.Client

	mu        sync.Mutex
	config    *illum.TriggerConfig
	sweep     sweepState
	lastFrame *camera.Frame

	lastTelemetry time.Time
	tickFPS       tickFPSMonitor

	stop chan struct{}
	done chan struct{}
}

// tickFPSMonitor is the same exponential-smoothing shape as camera's
// internal fps monitor, applied here to the Coordinator's own serve rate
// (system_controller_fps).
type tickFPSMonitor struct {
	count int
	fps   float64
	last  time.Time
}

func (m *tickFPSMonitor) tick() {
	now := time.Now()
	if m.last.IsZero() {
		m.last = now
		return
	}
	m.count++
	if elapsed := now.Sub(m.last); elapsed >= time.Second {
		measured := float64(m.count) / elapsed.Seconds()
		m.fps = 0.8*m.fps + 0.2*measured
		m.count = 0
		m.last = now
	}
}

// New creates a Coordinator. Start must be called to begin the tick loop.
func New(h *hub.Hub, cam *camera.Controller, seq *sequencer.Sequencer, slm *display.Client, config *illum.TriggerConfig) *Coordinator {
	return &Coordinator{hub: h, cam: cam, seq: seq, slm: slm, config: config}
}

// Start opens the camera and sequencer, then begins the tick loop.
func (c *Coordinator) Start() error {
	if err := c.cam.Open(); err != nil {
		return err
	}
	c.mu.Lock()
	config := c.config
	c.mu.Unlock()
	if err := c.seq.Start(config); err != nil {
		c.cam.Close()
		return err
	}
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	go c.loop(c.stop, c.done)
	return nil
}

// Stop halts the tick loop, closes every subscriber's writer, then tears
// down the camera reader and the sequencer, in that order, tolerating a
// prior step's failure.
func (c *Coordinator) Stop() error {
	if c.stop != nil {
		close(c.stop)
		<-c.done
	}
	c.hub.CloseAll()
	var firstErr error
	if err := c.cam.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := c.seq.Stop(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (c *Coordinator) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(TickPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.tick()
		}
	}
}

func (c *Coordinator) tick() {
	frame := c.cam.Take()
	if frame != nil {
		c.advanceSweepIfEnabled()
		c.publishFrame(frame)
	}
	c.mu.Lock()
	due := time.Since(c.lastTelemetry) >= telemetryPeriod
	if due {
		c.lastTelemetry = time.Now()
	}
	c.mu.Unlock()
	if due {
		c.publishTelemetry()
	}
	c.tickFPS.tick()
}

// advanceSweepIfEnabled implements the sweep walk and echoes the change to
// every subscriber.
func (c *Coordinator) advanceSweepIfEnabled() {
	c.mu.Lock()
	if !c.sweep.enabled {
		c.mu.Unlock()
		return
	}
	next := c.config.LEDTime + c.sweep.dt
	if next >= c.sweep.tMax {
		next = c.sweep.tMin
	}
	changed := next != c.config.LEDTime
	newConfig := *c.config
	newConfig.LEDTime = next
	c.config = &newConfig
	config := c.config
	c.mu.Unlock()

	if !changed {
		return
	}
	// update_wave is idempotent, but skipped here when nothing changed to
	// avoid a redundant recompile-and-swap on every frame.
	if err := c.seq.UpdateWave(config); err != nil {
		log.Printf("session: sweep update_wave failed: %s", err)
		return
	}
	echo := protocol.Echo("LED_TIME", int(next/time.Microsecond))
	c.hub.Broadcast(hub.Message{Send: func(conn *websocket.Conn) error {
		return websocket.Message.Send(conn, string(echo))
	}})
}

// publishFrame fans frame out to every subscriber with Stream enabled,
// honoring each subscriber's own base64 preference independently.
func (c *Coordinator) publishFrame(frame *camera.Frame) {
	c.mu.Lock()
	c.lastFrame = frame
	c.mu.Unlock()
	for _, sub := range c.hub.All() {
		prefs := sub.Prefs()
		if !prefs.Stream {
			continue
		}
		payload, metadata, base64Mode := frame.Payload, frame.Metadata, prefs.Base64
		sub.Enqueue(hub.Message{Send: func(conn *websocket.Conn) error {
			if base64Mode {
				msg := protocol.ImageResponseHere(metadata, base64.StdEncoding.EncodeToString(payload))
				return websocket.Message.Send(conn, string(msg))
			}
			msg := protocol.ImageResponseNext(metadata)
			if err := websocket.Message.Send(conn, string(msg)); err != nil {
				return err
			}
			return websocket.Message.Send(conn, payload)
		}})
	}
}

// publishTelemetry sends fps_update to every subscriber with FPSUpdates
// enabled.
func (c *Coordinator) publishTelemetry() {
	readerFPS := c.cam.ReaderFPS()
	consumedFPS := c.cam.ConsumedFPS()
	c.mu.Lock()
	controllerFPS := c.tickFPS.fps
	c.mu.Unlock()
	msg := protocol.FPSUpdate(readerFPS, consumedFPS, controllerFPS)
	for _, sub := range c.hub.All() {
		if !sub.Prefs().FPSUpdates {
			continue
		}
		sub.Enqueue(hub.Message{Send: func(conn *websocket.Conn) error {
			return websocket.Message.Send(conn, string(msg))
		}})
	}
}

// EnableSweep turns sweep mode on or off. dt/tMin/tMax fall back to a
// full-range 256-step walk when zero.
func (c *Coordinator) EnableSweep(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweep.enabled = enabled
	if enabled && c.sweep.dt == 0 {
		c.sweep.tMin = 0
		c.sweep.tMax = 2730 * time.Microsecond
		c.sweep.dt = (c.sweep.tMax - c.sweep.tMin) / 256
	}
}

// HandleInbound decodes and dispatches one client→server message for sub.
func (c *Coordinator) HandleInbound(sub *hub.Subscriber, data []byte) error {
	in, err := protocol.Decode(data)
	if err != nil {
		return err
	}
	in.LogUnknown()

	if in.SetControl != nil {
		for name, value := range in.SetControl {
			c.cam.SetControl(name, value)
		}
	}
	if in.SweepEnable != nil {
		c.EnableSweep(*in.SweepEnable)
	}
	if in.UpdateControls {
		c.replyUpdateControls(sub)
	}
	if in.CaptureMode != "" {
		if err := c.applyCaptureMode(in.CaptureMode); err != nil {
			log.Printf("session: capture_mode %q rejected: %s", in.CaptureMode, err)
		}
	}
	if in.LEDTime != nil {
		c.mutateConfig(func(cfg *illum.TriggerConfig) { cfg.LEDTime = time.Duration(*in.LEDTime) * time.Microsecond })
	}
	if in.LEDWidth != nil {
		c.mutateConfig(func(cfg *illum.TriggerConfig) { cfg.LEDWidth = time.Duration(*in.LEDWidth) * time.Microsecond })
	}
	if in.WaveDuration != nil {
		c.mutateConfig(func(cfg *illum.TriggerConfig) { cfg.WaveDuration = time.Duration(*in.WaveDuration) * time.Microsecond })
	}
	if in.IlluminationMode != "" {
		red, grn, blu, err := illum.ParseIlluminationMode(in.IlluminationMode)
		if err != nil {
			log.Printf("session: illumination_mode %q rejected: %s", in.IlluminationMode, err)
		} else {
			c.mutateConfig(func(cfg *illum.TriggerConfig) {
				cfg.DisableRed, cfg.DisableGrn, cfg.DisableBlu = !red, !grn, !blu
			})
		}
	}
	if in.StreamFrames != nil {
		p := sub.Prefs()
		p.Stream = *in.StreamFrames
		sub.SetPrefs(p)
	}
	if in.UseBase64 != nil {
		p := sub.Prefs()
		p.Base64 = *in.UseBase64
		sub.SetPrefs(p)
	}
	if in.SendFPSUpdates != nil {
		p := sub.Prefs()
		p.FPSUpdates = *in.SendFPSUpdates
		sub.SetPrefs(p)
	}
	if in.SLMImageURL != "" && c.slm != nil {
		if err := c.slm.PushURL(in.SLMImageURL); err != nil {
			log.Printf("session: slm_image_url failed: %s", err)
		}
	}
	if in.SLMImageBase64 != "" && c.slm != nil {
		raw, err := base64.StdEncoding.DecodeString(in.SLMImageBase64)
		if err != nil {
			log.Printf("session: slm_image base64 decode failed: %s", err)
		} else if err := c.slm.Push(raw); err != nil {
			log.Printf("session: slm_image push failed: %s", err)
		}
	}
	// in.SLMImageNext and in.ImageRequest have no effect here. A binary
	// frame a client sends after slm_image="next" reaches HandleInbound as a
	// message of its own and is rejected as invalid JSON, so binary SLM
	// images are not displayed; image_request has no server-side effect.
	return nil
}

func (c *Coordinator) applyCaptureMode(mode protocol.CaptureMode) error {
	var m camera.Mode
	switch mode {
	case protocol.ModePreview:
		m = camera.Preview
	case protocol.ModeStill:
		m = camera.Still
	case protocol.ModeVideo, protocol.ModeTriggered, protocol.ModeFreerunning:
		m = camera.Video
	default:
		return fmt.Errorf("session: unknown capture_mode %q", mode)
	}
	return c.cam.SetMode(m)
}

// mutateConfig applies fn to a copy of the current TriggerConfig and, if it
// validates, installs it via update_wave's atomic swap.
func (c *Coordinator) mutateConfig(fn func(*illum.TriggerConfig)) {
	c.mu.Lock()
	oldConfig := *c.config
	c.mu.Unlock()
	newConfig := oldConfig
	fn(&newConfig)
	if newConfig == oldConfig {
		return
	}
	if err := newConfig.Validate(); err != nil {
		log.Printf("session: rejected control mutation: %s", err)
		return
	}
	if err := c.seq.UpdateWave(&newConfig); err != nil {
		log.Printf("session: update_wave failed: %s", err)
		return
	}
	c.mu.Lock()
	c.config = &newConfig
	c.mu.Unlock()
}

func (c *Coordinator) replyUpdateControls(sub *hub.Subscriber) {
	descs := c.ListControls()
	values := make(map[string]float64, len(descs))
	for _, d := range descs {
		values[d.ID] = d.Value
	}
	msg := protocol.UpdateControls(values)
	sub.Enqueue(hub.Message{Send: func(conn *websocket.Conn) error {
		return websocket.Message.Send(conn, string(msg))
	}})
}

// LastFrame returns the most recently captured frame, or nil if none has
// been taken yet, for debug endpoints that want a still image on demand.
func (c *Coordinator) LastFrame() *camera.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastFrame
}

// ListControls returns the active backend's descriptors. The backend
// reports colour gains as a single native Vector2 ColourGains control;
// splitting it into the colour_gain_red/colour_gain_blue scalars clients
// actually set and see happens here, at the Coordinator's boundary, never
// inside the backend.
func (c *Coordinator) ListControls() []controls.Descriptor {
	raw := c.cam.ListControls()
	out := make([]controls.Descriptor, 0, len(raw))
	for _, d := range raw {
		if d.Type != controls.Vector2 {
			out = append(out, d)
			continue
		}
		split, err := controls.SplitColourGains(d)
		if err != nil {
			log.Printf("session: %s", err)
			continue
		}
		out = append(out, split...)
	}
	return out
}
