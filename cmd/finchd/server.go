// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"bufio"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	servedir "github.com/maruel/serve-dir"
	"golang.org/x/net/websocket"

	"github.com/rehmi-lab/openfinch/hub"
	"github.com/rehmi-lab/openfinch/session"
)

// startServer wires the HTTP mux and starts listening in the background.
// Routes:
//
//	/              static dashboard assets, served from staticDir
//	/controls      GET: current control descriptors as JSON
//	/ws            WebSocket upgrade, one Hub subscriber per connection
//	/still.jpg     GET: debug snapshot of the most recently captured frame
func startServer(port int, staticDir string, h *hub.Hub, coord *session.Coordinator) {
	mux := http.NewServeMux()
	mux.Handle("/", servedir.New(staticDir))
	mux.HandleFunc("/controls", controlsHandler(coord))
	mux.Handle("/ws", websocket.Handler(wsHandler(h, coord)))
	mux.HandleFunc("/still.jpg", stillHandler(coord))
	addr := ":" + strconv.Itoa(port)
	go http.ListenAndServe(addr, loggingHandler{mux})
}

func controlsHandler(coord *session.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(coord.ListControls()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

func stillHandler(coord *session.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		frame := coord.LastFrame()
		if frame == nil {
			http.Error(w, "no frame captured yet", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
		w.Write(frame.Payload)
	}
}

func wsHandler(h *hub.Hub, coord *session.Coordinator) func(*websocket.Conn) {
	return func(conn *websocket.Conn) {
		sub := h.Join(conn)
		defer h.Leave(sub)
		var buf [8192]byte
		for {
			n, err := conn.Read(buf[:])
			if err != nil {
				return
			}
			if err := coord.HandleInbound(sub, buf[:n]); err != nil {
				log.Printf("finchd: websocket %s: %s", conn.Request().RemoteAddr, err)
			}
		}
	}
}

// Private details, adapted from cmd/lepton/server.go's request logging
// wrapper.

type loggingHandler struct {
	handler http.Handler
}

type loggingResponseWriter struct {
	http.ResponseWriter
	length int
	status int
}

func (l *loggingResponseWriter) Write(data []byte) (int, error) {
	size, err := l.ResponseWriter.Write(data)
	l.length += size
	return size, err
}

func (l *loggingResponseWriter) WriteHeader(status int) {
	l.ResponseWriter.WriteHeader(status)
	l.status = status
}

// Hijack is needed for websocket.
func (l *loggingResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h := l.ResponseWriter.(http.Hijacker)
	return h.Hijack()
}

func (l loggingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	lrw := &loggingResponseWriter{ResponseWriter: w, status: http.StatusOK}
	start := time.Now()
	l.handler.ServeHTTP(lrw, r)
	log.Printf("%s - %3d %6db %4s %s %s", r.RemoteAddr, lrw.status, lrw.length, r.Method, r.RequestURI, time.Since(start))
}
