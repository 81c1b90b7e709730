// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package gpioprog owns the lifecycle of compiled waveforms and the
// microcoded control program resident on the GPIO coprocessor.
//
// There being no literal second CPU available on a Raspberry Pi GPIO header,
// "the coprocessor" is modeled here as direct periph.io/x/conn/v3/gpio pin
// access: Store.Fire bit-bangs a compiled PulseStep sequence with the same
// state contract (waveform ids, ResourceExhausted, HardwareUnavailable) the
// original hardware interface exposes. The sequencer (package sequencer)
// drives the WAIT_VALID/WAIT_RISE/WAIT_FALL/FIRE/WAIT_DONE loop against this
// store's operations.
package gpioprog

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/rehmi-lab/openfinch/waveform"
)

// MaxWaveforms bounds the number of simultaneously live compiled waveforms,
// mirroring the bounded waveform table of the real coprocessor.
const MaxWaveforms = 8

// Deleted is the sentinel id carried by a Waveform after Delete.
const Deleted = -1

// ErrHardwareUnavailable is returned when the GPIO coprocessor connection is
// lost. It is fatal for the Sequencer.
var ErrHardwareUnavailable = errors.New("gpioprog: hardware unavailable")

// ErrResourceExhausted is returned by LoadWave when the waveform table is
// full.
var ErrResourceExhausted = errors.New("gpioprog: resource exhausted")

// pin is the narrow subset of periph.io/x/conn/v3/gpio.PinIO that Store
// needs. Any gpio.PinIO satisfies it structurally, and tests can supply a
// lightweight fake without implementing the full hardware interface.
type pin interface {
	In(pull gpio.Pull, edge gpio.Edge) error
	Out(l gpio.Level) error
	Read() gpio.Level
}

// ProgramState is one of the ControlProgram lifecycle states.
type ProgramState int

// Valid ProgramState values.
const (
	Initing ProgramState = iota
	Halted
	Running
	Waiting
	Failed
)

func (s ProgramState) String() string {
	switch s {
	case Initing:
		return "INITING"
	case Halted:
		return "HALTED"
	case Running:
		return "RUNNING"
	case Waiting:
		return "WAITING"
	case Failed:
		return "FAILED"
	default:
		return fmt.Sprintf("ProgramState(%d)", int(s))
	}
}

// ControlProgram is a handle to the microcoded sequencer program. p0/p1 are
// the RGB-only and RGB+trigger waveform ids it was last told to use.
type ControlProgram struct {
	p0    int
	p1    int
	state ProgramState
}

// State returns the program's current lifecycle state and its params.
func (c *ControlProgram) State() (ProgramState, [2]int) {
	return c.state, [2]int{c.p0, c.p1}
}

// Store owns compiled waveforms and the control program descriptor, and
// provides the pin-level primitives the sequencer uses to fire them.
type Store struct {
	mu        sync.Mutex
	available bool
	waveforms map[int][]waveform.PulseStep
	nextID    int
	pins      map[int]pin
	resolve   func(name string) pin
	prog      *ControlProgram
}

// Open initializes the periph.io host drivers and returns a ready Store
// backed by real GPIO pins.
func Open() (*Store, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrHardwareUnavailable, err)
	}
	return newStore(func(name string) pin {
		p := gpioreg.ByName(name)
		if p == nil {
			return nil
		}
		return p
	}), nil
}

// newStoreWithResolver is exposed to tests via an internal constructor so
// hardware access can be substituted with a fake.
func newStoreWithResolver(resolve func(name string) pin) *Store {
	return newStore(resolve)
}

func newStore(resolve func(name string) pin) *Store {
	return &Store{
		available: true,
		waveforms: map[int][]waveform.PulseStep{},
		pins:      map[int]pin{},
		resolve:   resolve,
	}
}

func (s *Store) getPin(n int) (pin, error) {
	if p, ok := s.pins[n]; ok {
		return p, nil
	}
	p := s.resolve(fmt.Sprintf("GPIO%d", n))
	if p == nil {
		return nil, fmt.Errorf("%w: no such pin GPIO%d", ErrHardwareUnavailable, n)
	}
	s.pins[n] = p
	return p, nil
}

// LoadWave pushes a compiled step sequence and returns its handle.
func (s *Store) LoadWave(steps []waveform.PulseStep) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.available {
		return Deleted, ErrHardwareUnavailable
	}
	if len(s.waveforms) >= MaxWaveforms {
		return Deleted, ErrResourceExhausted
	}
	id := s.nextID
	s.nextID++
	cp := make([]waveform.PulseStep, len(steps))
	copy(cp, steps)
	s.waveforms[id] = cp
	return id, nil
}

// DeleteWave removes a waveform. Idempotent: deleting twice is a no-op.
func (s *Store) DeleteWave(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.available {
		return ErrHardwareUnavailable
	}
	delete(s.waveforms, id)
	return nil
}

// LoadScript registers the control program descriptor. Setup is
// synchronous, so the program is returned already in state Halted and the
// Initing state is never observed.
func (s *Store) LoadScript(trigIn int) (*ControlProgram, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.available {
		return nil, ErrHardwareUnavailable
	}
	if _, err := s.getPin(trigIn); err != nil {
		return nil, err
	}
	cp := &ControlProgram{state: Halted, p0: Deleted, p1: Deleted}
	s.prog = cp
	return cp, nil
}

// RunScript transitions the program to Running with initial params.
func (s *Store) RunScript(cp *ControlProgram, rgb, rgbTrig int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.available {
		return ErrHardwareUnavailable
	}
	cp.p0, cp.p1 = rgb, rgbTrig
	cp.state = Running
	return nil
}

// UpdateParams atomically pokes new waveform ids into a running program.
// It may be called at any time; the sequencer's loop reads the params once
// per cycle, at WAIT_VALID, so new ids take effect only from the next cycle.
func (s *Store) UpdateParams(cp *ControlProgram, rgb, rgbTrig int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.available {
		return ErrHardwareUnavailable
	}
	cp.p0, cp.p1 = rgb, rgbTrig
	return nil
}

// StopScript halts the program.
func (s *Store) StopScript(cp *ControlProgram) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.available {
		return ErrHardwareUnavailable
	}
	cp.state = Halted
	return nil
}

// ScriptStatus reports the program's state and params.
func (s *Store) ScriptStatus(cp *ControlProgram) (ProgramState, [2]int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cp.State()
}

// SetWaiting/SetFailed/SetRunning let the sequencer reflect poll/fire state
// back onto the program descriptor for ScriptStatus observers.
func (s *Store) SetWaiting(cp *ControlProgram) {
	s.mu.Lock()
	cp.state = Waiting
	s.mu.Unlock()
}

func (s *Store) SetFailed(cp *ControlProgram) {
	s.mu.Lock()
	cp.state = Failed
	s.mu.Unlock()
}

func (s *Store) SetRunning(cp *ControlProgram) {
	s.mu.Lock()
	cp.state = Running
	s.mu.Unlock()
}

// ReadTrigger returns the current level of the trigger input pin.
func (s *Store) ReadTrigger(trigIn int) (gpio.Level, error) {
	p, err := s.getPin(trigIn)
	if err != nil {
		return gpio.Low, err
	}
	return p.Read(), nil
}

// WaitTriggerLevel blocks, polling at the given interval, until the trigger
// input reaches level. It mirrors the control program's "poll TRIG_IN, sleep
// ~100us between polls" behavior without requiring edge-interrupt support
// from every backend.
func (s *Store) WaitTriggerLevel(trigIn int, level gpio.Level, poll time.Duration) error {
	p, err := s.getPin(trigIn)
	if err != nil {
		return err
	}
	if err := p.In(gpio.PullNoChange, gpio.NoEdge); err != nil {
		return fmt.Errorf("%w: %s", ErrHardwareUnavailable, err)
	}
	for p.Read() != level {
		time.Sleep(poll)
	}
	return nil
}

// Fire transmits the named waveform: it plays the compiled PulseSteps by
// setting/clearing the configured output pins in order, honoring each
// step's delay.
func (s *Store) Fire(id int) error {
	s.mu.Lock()
	steps, ok := s.waveforms[id]
	available := s.available
	s.mu.Unlock()
	if !available {
		return ErrHardwareUnavailable
	}
	if !ok {
		return fmt.Errorf("gpioprog: fire of unknown/deleted waveform %d", id)
	}
	for _, step := range steps {
		if step.Delay > 0 {
			time.Sleep(step.Delay)
		}
		if err := s.applyMasks(step.SetMask, step.ClearMask); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) applyMasks(set, clear uint32) error {
	for n := 0; n < 32; n++ {
		bit := uint32(1) << uint(n)
		if set&bit == 0 && clear&bit == 0 {
			continue
		}
		p, err := s.getPin(n)
		if err != nil {
			return err
		}
		level := gpio.Low
		if set&bit != 0 {
			level = gpio.High
		}
		if err := p.Out(level); err != nil {
			return fmt.Errorf("%w: %s", ErrHardwareUnavailable, err)
		}
	}
	return nil
}

// Close marks the store unavailable; subsequent operations fail with
// ErrHardwareUnavailable. Waveforms and the program descriptor are dropped.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.available = false
	s.waveforms = map[int][]waveform.PulseStep{}
	s.prog = nil
}
