// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package gpioprog

import (
	"sync"

	"periph.io/x/conn/v3/gpio"
)

// simPin is a cheap in-memory stand-in for a periph.io GPIO pin, letting
// Store's logic be exercised without hardware attached.
type simPin struct {
	mu    sync.Mutex
	level gpio.Level
}

func (p *simPin) In(gpio.Pull, gpio.Edge) error { return nil }

func (p *simPin) Out(l gpio.Level) error {
	p.mu.Lock()
	p.level = l
	p.mu.Unlock()
	return nil
}

func (p *simPin) Read() gpio.Level {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.level
}

// SimulatedPins exposes the backing pins of a store created with
// NewSimulated, keyed by name (e.g. "GPIO5"), so tests and a hardware-free
// demo mode can drive input pins and observe output pins directly.
type SimulatedPins struct {
	mu   sync.Mutex
	pins map[string]*simPin
}

// Set drives a simulated input pin to level, creating it if needed.
func (s *SimulatedPins) Set(name string, level gpio.Level) {
	s.mu.Lock()
	p, ok := s.pins[name]
	if !ok {
		p = &simPin{}
		s.pins[name] = p
	}
	s.mu.Unlock()
	p.Out(level)
}

// Get reads a simulated pin's current level.
func (s *SimulatedPins) Get(name string) gpio.Level {
	s.mu.Lock()
	p, ok := s.pins[name]
	s.mu.Unlock()
	if !ok {
		return gpio.Low
	}
	return p.Read()
}

// NewSimulated returns a Store backed entirely by in-memory pins, for use
// in tests and in a no-hardware development mode.
func NewSimulated() (*Store, *SimulatedPins) {
	sp := &SimulatedPins{pins: map[string]*simPin{}}
	resolve := func(name string) pin {
		sp.mu.Lock()
		defer sp.mu.Unlock()
		p, ok := sp.pins[name]
		if !ok {
			p = &simPin{}
			sp.pins[name] = p
		}
		return p
	}
	return newStore(resolve), sp
}
