// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package camera

import (
	"sync"
)

// Reader runs on a dedicated goroutine blocking on the sensor backend,
// publishing each arrived frame into a single-slot mailbox. If the mailbox
// already holds an unclaimed frame, it is overwritten and dropped: slow
// consumers never backpressure the sensor.
//
// This is the one genuinely blocking boundary in the system: rather than
// bridging the sensor's blocking API through non-blocking I/O, it gets its
// own thread and talks to the cooperative scheduler only through this
// mailbox.
type Reader struct {
	backend Backend

	mu      sync.Mutex
	cond    *sync.Cond
	mailbox *Frame

	fps *fpsMonitor

	stop    chan struct{}
	done    chan struct{}
	running bool
}

// NewReader creates a Reader over backend. Call Start to begin pulling
// frames.
func NewReader(backend Backend) *Reader {
	r := &Reader{backend: backend, fps: newFPSMonitor()}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Start opens the backend and begins the blocking read loop on a dedicated
// goroutine.
func (r *Reader) Start() error {
	if err := r.backend.Open(); err != nil {
		return err
	}
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = true
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	r.mu.Unlock()
	go r.loop(r.stop, r.done)
	return nil
}

func (r *Reader) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		default:
		}
		frame, err := r.backend.Take(true)
		if err != nil || frame == nil {
			continue
		}
		r.fps.tick()
		r.mu.Lock()
		r.mailbox = frame // overwrites and drops any unclaimed prior frame.
		r.cond.Broadcast()
		r.mu.Unlock()
	}
}

// take returns and clears the mailbox's contents, or nil if empty.
func (r *Reader) take() *Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	f := r.mailbox
	r.mailbox = nil
	return f
}

// FPS returns the smoothed reader frame rate.
func (r *Reader) FPS() float64 {
	return r.fps.value()
}

// Stop halts the read loop and closes the backend. Tolerant of being called
// after Start failed or was never called.
func (r *Reader) Stop() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return r.backend.Close()
	}
	r.running = false
	stop, done := r.stop, r.done
	r.mu.Unlock()
	close(stop)
	<-done
	return r.backend.Close()
}
