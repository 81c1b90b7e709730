// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package sequencer runs the GPIO control program: it responds to external
// trigger edges, selects and dispatches one of two precompiled waveforms,
// and implements the N:1 RGB-vs-RGB+trigger cadence.
package sequencer

import (
	"fmt"
	"log"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"

	"github.com/rehmi-lab/openfinch/gpioprog"
	"github.com/rehmi-lab/openfinch/illum"
	"github.com/rehmi-lab/openfinch/waveform"
)

// DefaultRepeatN is the default N of the N:1 cadence (N illumination-only
// cycles for every one illumination+camera-trigger cycle); Config.RepeatN
// sets the value a Sequencer actually uses.
const DefaultRepeatN = 3

// PollInterval is how often WAIT_RISE/WAIT_FALL re-check the trigger pin,
// matching the ~100us polling cadence of the original control program.
const PollInterval = 100 * time.Microsecond

// State is one of the Sequencer process states.
type State int

// Valid State values.
const (
	Stopped State = iota
	Armed
	Running
	Updating
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "Stopped"
	case Armed:
		return "Armed"
	case Running:
		return "Running"
	case Updating:
		return "Updating"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Config parameterizes one Sequencer.
type Config struct {
	// RepeatN is the N of the N:1 cadence. Must be >= 1.
	RepeatN int
	// GraceWaves bounds how many completed cycles update_wave waits before
	// deleting the previous pair of waveforms, guaranteeing any in-flight
	// cycle using them has finished.
	GraceWaves int
}

// DefaultConfig returns the standard N:1 cadence defaults.
func DefaultConfig() Config {
	return Config{RepeatN: DefaultRepeatN, GraceWaves: 2}
}

// Stats exposes counters useful for testing the N:1 cadence and atomic
// update invariants.
type Stats struct {
	CyclesFired    int
	CameraTriggers int
}

// Sequencer drives the control program against a gpioprog.Store.
type Sequencer struct {
	store  *gpioprog.Store
	cfg    Config
	config *illum.TriggerConfig

	mu    sync.Mutex
	state State
	stats Stats

	prog     *gpioprog.ControlProgram
	rgbID    int
	rgbTrigID int

	stop chan struct{}
	done chan struct{}

	onFire func(waveID int, isTrigger bool) // test hook
}

// New creates a Sequencer. It does not start running until Start is called.
func New(store *gpioprog.Store, cfg Config) (*Sequencer, error) {
	if cfg.RepeatN < 1 {
		return nil, fmt.Errorf("sequencer: RepeatN must be >= 1, got %d", cfg.RepeatN)
	}
	return &Sequencer{
		store:     store,
		cfg:       cfg,
		rgbID:     gpioprog.Deleted,
		rgbTrigID: gpioprog.Deleted,
		state:     Stopped,
	}, nil
}

// State returns the Sequencer's current lifecycle state.
func (s *Sequencer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stats returns a snapshot of the cadence counters.
func (s *Sequencer) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Start compiles the initial waveforms from config, loads the control
// script, and begins running the trigger loop on a dedicated goroutine.
func (s *Sequencer) Start(config *illum.TriggerConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Stopped {
		return fmt.Errorf("sequencer: Start called in state %s", s.state)
	}
	rgbID, rgbTrigID, err := s.compileWaves(config)
	if err != nil {
		return err
	}
	prog, err := s.store.LoadScript(config.TrigIn)
	if err != nil {
		return err
	}
	if err := s.store.RunScript(prog, rgbID, rgbTrigID); err != nil {
		return err
	}
	s.config = config
	s.prog = prog
	s.rgbID, s.rgbTrigID = rgbID, rgbTrigID
	s.state = Armed
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.state = Running
	go s.loop(s.stop, s.done)
	return nil
}

// compileWaves compiles both the RGB-only and RGB+trigger waveforms for a
// config and loads them into the store, returning their ids.
func (s *Sequencer) compileWaves(config *illum.TriggerConfig) (rgbID, rgbTrigID int, err error) {
	rgbEvents, err := illum.Schedule(config, false)
	if err != nil {
		return gpioprog.Deleted, gpioprog.Deleted, err
	}
	rgbSteps, err := waveform.Compile(rgbEvents)
	if err != nil {
		return gpioprog.Deleted, gpioprog.Deleted, err
	}
	rgbID, err = s.store.LoadWave(rgbSteps)
	if err != nil {
		return gpioprog.Deleted, gpioprog.Deleted, err
	}
	rgbTrigEvents, err := illum.Schedule(config, true)
	if err != nil {
		s.store.DeleteWave(rgbID)
		return gpioprog.Deleted, gpioprog.Deleted, err
	}
	rgbTrigSteps, err := waveform.Compile(rgbTrigEvents)
	if err != nil {
		s.store.DeleteWave(rgbID)
		return gpioprog.Deleted, gpioprog.Deleted, err
	}
	rgbTrigID, err = s.store.LoadWave(rgbTrigSteps)
	if err != nil {
		s.store.DeleteWave(rgbID)
		return gpioprog.Deleted, gpioprog.Deleted, err
	}
	return rgbID, rgbTrigID, nil
}

// loop is the control program: WAIT_VALID / WAIT_RISE / WAIT_FALL / FIRE /
// WAIT_DONE, run until stop is closed.
func (s *Sequencer) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	repeat := 0
	trigIn := s.config.TrigIn
	for {
		select {
		case <-stop:
			return
		default:
		}

		state, params := s.store.ScriptStatus(s.prog)
		if state == gpioprog.Failed {
			return
		}
		p0, p1 := params[0], params[1]
		var waveID int
		isTrigger := false
		if repeat == 0 {
			waveID = p1
			isTrigger = true
			repeat = s.cfg.RepeatN
		} else {
			waveID = p0
			repeat--
		}

		s.store.SetWaiting(s.prog)
		if err := s.store.WaitTriggerLevel(trigIn, gpio.High, PollInterval); err != nil {
			s.store.SetFailed(s.prog)
			return
		}
		if err := s.store.WaitTriggerLevel(trigIn, gpio.Low, PollInterval); err != nil {
			s.store.SetFailed(s.prog)
			return
		}

		s.store.SetRunning(s.prog)
		if err := s.store.Fire(waveID); err != nil {
			s.store.SetFailed(s.prog)
			return
		}

		s.mu.Lock()
		s.stats.CyclesFired++
		if isTrigger {
			s.stats.CameraTriggers++
		}
		s.mu.Unlock()

		if s.onFire != nil {
			s.onFire(waveID, isTrigger)
		}
	}
}

// UpdateWave atomically swaps in newly compiled waveforms for both the
// RGB-only and RGB+trigger phases:
//  1. compile and load both new waveforms
//  2. poke the new ids into the running control program (applied only
//     between WAIT_DONE and the next WAIT_VALID by the loop above)
//  3. after a grace period, delete the previous pair
//
// Steps 1-2 run synchronously and return in well under a millisecond; step
// 3's grace-period wait runs on its own goroutine (retireWaves) so callers
// on the Coordinator's tick loop or a websocket handler never block on
// anything but the synchronous compile/update_params work.
func (s *Sequencer) UpdateWave(config *illum.TriggerConfig) error {
	s.mu.Lock()
	if s.state != Running {
		s.mu.Unlock()
		return fmt.Errorf("sequencer: UpdateWave called in state %s", s.state)
	}
	s.state = Updating
	prevRGB, prevRGBTrig := s.rgbID, s.rgbTrigID
	s.mu.Unlock()

	newRGB, newRGBTrig, err := s.compileWaves(config)
	if err != nil {
		s.mu.Lock()
		s.state = Running
		s.mu.Unlock()
		return err
	}

	if err := s.store.UpdateParams(s.prog, newRGB, newRGBTrig); err != nil {
		s.store.DeleteWave(newRGB)
		s.store.DeleteWave(newRGBTrig)
		s.mu.Lock()
		s.state = Running
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.config = config
	s.rgbID, s.rgbTrigID = newRGB, newRGBTrig
	s.mu.Unlock()

	go s.retireWaves(prevRGB, prevRGBTrig, config.WaveDuration)
	return nil
}

// retireWaves waits long enough that any cycle in flight when UpdateWave
// swapped params has finished, then deletes the waveforms it superseded.
// Runs on its own goroutine; UpdateWave does not wait for it.
func (s *Sequencer) retireWaves(prevRGB, prevRGBTrig int, waveDuration time.Duration) {
	grace := s.cfg.GraceWaves
	deadline := time.Now().Add(time.Duration(grace+1) * waveDuration)
	for time.Now().Before(deadline) {
		time.Sleep(waveDuration)
	}
	if err := s.store.DeleteWave(prevRGB); err != nil {
		log.Printf("sequencer: retire waveform %d: %s", prevRGB, err)
	}
	if err := s.store.DeleteWave(prevRGBTrig); err != nil {
		log.Printf("sequencer: retire waveform %d: %s", prevRGBTrig, err)
	}
	s.mu.Lock()
	if s.state == Updating {
		s.state = Running
	}
	s.mu.Unlock()
}

// Stop halts the trigger loop, stops the control program, and deletes all
// waveforms. Each step tolerates the prior one having already failed.
func (s *Sequencer) Stop() error {
	s.mu.Lock()
	if s.state == Stopped {
		s.mu.Unlock()
		return nil
	}
	stop, done := s.stop, s.done
	prog := s.prog
	rgbID, rgbTrigID := s.rgbID, s.rgbTrigID
	s.state = Stopped
	s.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
	var firstErr error
	if prog != nil {
		if err := s.store.StopScript(prog); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := s.store.DeleteWave(rgbID); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.store.DeleteWave(rgbTrigID); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
