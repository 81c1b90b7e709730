// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package hub implements the broadcast hub: it fans outbound messages out
// to every connected WebSocket subscriber without letting a slow
// subscriber stall the others or the sender, generalizing the
// single-stream cond.Broadcast loop in cmd/lepton/server.go's
// WebServer.stream to N independently-paced subscribers.
package hub

import (
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"golang.org/x/net/websocket"
)

// QueueDepth is the number of outbound messages buffered per subscriber
// before the oldest queued message is dropped to make room for the newest.
const QueueDepth = 3

// SendTimeout bounds how long a single subscriber send may take before the
// subscriber is treated as dead and disconnected.
const SendTimeout = 10 * time.Second

// TransportError reports a failure delivering to a subscriber's underlying
// connection (socket send/recv, HTTP). It is always recovered locally by
// closing that one subscriber; it never propagates to other subscribers or
// to the Coordinator's tick loop.
type TransportError struct {
	ID  uint64
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("hub: subscriber %d: transport error: %s", e.ID, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// TimeoutError is a TransportError raised when a subscriber's send exceeds
// SendTimeout; it is treated exactly like any other TransportError.
type TimeoutError struct {
	TransportError
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("hub: subscriber %d: send timeout: %s", e.ID, e.Err)
}

// Message is one outbound unit of work handed to a subscriber's writer
// goroutine. Send performs the actual conn.Write (or websocket.JSON.Send);
// the hub never inspects the payload.
type Message struct {
	Send func(*websocket.Conn) error
}

// Prefs holds the per-subscriber toggles: whether frames stream at all,
// whether they're base64-inlined rather than binary-split, and whether
// fps_update telemetry is sent.
type Prefs struct {
	Stream      bool
	Base64      bool
	FPSUpdates  bool
}

// Subscriber is one connected WebSocket client with its own bounded,
// drop-oldest outbound queue and dedicated writer goroutine, so one slow
// client never blocks delivery to any other.
type Subscriber struct {
	id   uint64
	conn *websocket.Conn

	mu      sync.Mutex
	queue   []Message
	closed  bool
	wake    chan struct{}
	done    chan struct{}
	dropped uint64
	prefs   Prefs
}

func newSubscriber(id uint64, conn *websocket.Conn) *Subscriber {
	s := &Subscriber{
		id:   id,
		conn: conn,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
		prefs: Prefs{Stream: true},
	}
	go s.writeLoop()
	return s
}

// ID returns the subscriber's stable identity within its Hub.
func (s *Subscriber) ID() uint64 {
	return s.id
}

// Prefs returns a snapshot of the subscriber's current preferences.
func (s *Subscriber) Prefs() Prefs {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prefs
}

// SetPrefs replaces the subscriber's preferences, e.g. in response to a
// stream_frames or use_base64_encoding inbound command.
func (s *Subscriber) SetPrefs(p Prefs) {
	s.mu.Lock()
	s.prefs = p
	s.mu.Unlock()
}

// Enqueue places msg on this subscriber's queue, for callers that need to
// target one subscriber individually (e.g. a per-subscriber-preference
// frame encoding) rather than broadcasting identically to all of them.
func (s *Subscriber) Enqueue(msg Message) {
	s.enqueue(msg)
}

// enqueue appends msg to the subscriber's queue, dropping the oldest
// queued message first if the queue is already at QueueDepth.
func (s *Subscriber) enqueue(msg Message) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if len(s.queue) >= QueueDepth {
		s.queue = s.queue[1:]
		s.dropped++
		if s.dropped == 1 || s.dropped%100 == 0 {
			logOverflow("hub: subscriber %d overflow, dropped %d messages total", s.id, s.dropped)
		}
	}
	s.queue = append(s.queue, msg)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// writeLoop drains the queue in FIFO order on its own goroutine, so a
// blocked conn.Write never holds up Broadcast or other subscribers. Every
// send is bounded by SendTimeout so one slow client is disconnected rather
// than left to stall its own queue forever.
func (s *Subscriber) writeLoop() {
	defer close(s.done)
	for {
		msg, ok := s.dequeue()
		if !ok {
			_, open := <-s.wake
			if !open {
				return
			}
			continue
		}
		if s.conn != nil {
			if err := s.conn.SetWriteDeadline(time.Now().Add(SendTimeout)); err != nil {
				log.Printf("hub: subscriber %d: set write deadline: %s", s.id, err)
			}
		}
		if err := msg.Send(s.conn); err != nil {
			var reported error = &TransportError{ID: s.id, Err: err}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				reported = &TimeoutError{TransportError{ID: s.id, Err: err}}
			}
			log.Printf("hub: %s", reported)
			s.mu.Lock()
			s.closed = true
			s.mu.Unlock()
			return
		}
	}
}

func (s *Subscriber) dequeue() (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return Message{}, false
	}
	msg := s.queue[0]
	s.queue = s.queue[1:]
	return msg, true
}

// Dropped returns the number of messages dropped for overflow on this
// subscriber so far.
func (s *Subscriber) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

func (s *Subscriber) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	close(s.wake)
	<-s.done
	if s.conn != nil {
		s.conn.Close()
	}
}

// Hub tracks every connected Subscriber and fans messages out to each of
// them independently.
type Hub struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]*Subscriber
}

// New creates an empty Hub.
func New() *Hub {
	return &Hub{subs: make(map[uint64]*Subscriber)}
}

// Join registers a new connection and returns its Subscriber handle. The
// caller is responsible for calling Leave (typically via defer) once the
// connection's websocket.Handler returns.
func (h *Hub) Join(conn *websocket.Conn) *Subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	s := newSubscriber(h.nextID, conn)
	h.subs[s.id] = s
	return s
}

// Leave unregisters sub, stopping its writer goroutine and closing its
// connection.
func (h *Hub) Leave(sub *Subscriber) {
	h.mu.Lock()
	delete(h.subs, sub.id)
	h.mu.Unlock()
	sub.close()
}

// All returns a snapshot of currently-joined subscribers, for callers (the
// Session Coordinator) that need to apply per-subscriber logic such as
// honoring each one's Prefs rather than sending an identical Message.
func (h *Hub) All() []*Subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*Subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		out = append(out, s)
	}
	return out
}

// Broadcast enqueues msg on every currently-joined subscriber. It takes a
// snapshot of the subscriber set under lock and then enqueues outside the
// lock, so a subscriber joining or leaving mid-broadcast can never
// deadlock against Join/Leave.
func (h *Hub) Broadcast(msg Message) {
	h.mu.Lock()
	targets := make([]*Subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		targets = append(targets, s)
	}
	h.mu.Unlock()
	for _, s := range targets {
		s.enqueue(msg)
	}
}

// Count returns the number of currently-joined subscribers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// CloseAll disconnects every subscriber, e.g. on server shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	targets := make([]*Subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		targets = append(targets, s)
	}
	h.subs = make(map[uint64]*Subscriber)
	h.mu.Unlock()
	for _, s := range targets {
		s.close()
	}
}

var logOverflow = log.Printf
