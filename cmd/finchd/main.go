// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// finchd is the microscope control server: it drives the GPIO
// illumination/trigger sequencer, the camera capture pipeline, and serves
// the dashboard and WebSocket control protocol over HTTP.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/maruel/interrupt"

	"github.com/rehmi-lab/openfinch/camera"
	"github.com/rehmi-lab/openfinch/config"
	"github.com/rehmi-lab/openfinch/display"
	"github.com/rehmi-lab/openfinch/gpioprog"
	"github.com/rehmi-lab/openfinch/hub"
	"github.com/rehmi-lab/openfinch/sequencer"
	"github.com/rehmi-lab/openfinch/session"
)

func openBackend(device string) camera.Backend {
	switch {
	case device == "" || device == "fake":
		return camera.NewFakeBackend(640, 480, 33*time.Millisecond)
	case device == "picam":
		return camera.NewPicamBackend(1280, 720)
	default:
		return camera.NewV4L2Backend(device)
	}
}

func mainImpl() error {
	port := flag.Int("port", 0, "http port to listen on, overrides the config file")
	devMode := flag.Bool("dev", false, "also exit when the binary changes on disk, not only on Ctrl-C")
	flag.Parse()
	if len(flag.Args()) != 0 {
		return fmt.Errorf("unexpected argument: %s", flag.Args())
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if *port != 0 {
		cfg.Port = *port
	}

	interrupt.HandleCtrlC()

	store, err := gpioprog.Open()
	if err != nil {
		return fmt.Errorf("finchd: open gpio store: %w", err)
	}
	defer store.Close()

	seq, err := sequencer.New(store, sequencer.DefaultConfig())
	if err != nil {
		return fmt.Errorf("finchd: create sequencer: %w", err)
	}
	trig := cfg.Trigger.TriggerConfig()

	backend := openBackend(cfg.CameraDevice)
	cam := camera.NewController(camera.NewReader(backend))

	var slm *display.Client
	if cfg.SLMEndpoint != "" {
		slm = display.New(cfg.SLMEndpoint)
	}

	h := hub.New()
	coord := session.New(h, cam, seq, slm, trig)
	if err := coord.Start(); err != nil {
		return fmt.Errorf("finchd: start coordinator: %w", err)
	}
	defer coord.Stop()

	startServer(cfg.Port, cfg.StaticDir, h, coord)
	fmt.Printf("Listening on %d\n", cfg.Port)

	if *devMode {
		return watchFile()
	}
	<-interrupt.Channel
	return nil
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "finchd: %s.\n", err)
		os.Exit(1)
	}
}
