// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package display implements the SLM (spatial light modulator) display
// collaborator: an external process, reachable over HTTP, that the
// Coordinator pushes images to in response to slm_image_url and slm_image
// commands. The wire shape is adapted from appengine/seeall/api.PushRequest.
package display

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// PushItem is one image handed to the SLM collaborator.
type PushItem struct {
	Timestamp time.Time `json:"timestamp"`
	Image     []byte    `json:"image"`
}

// PushRequest is the wire body POSTed to the SLM collaborator's endpoint.
type PushRequest struct {
	Items []PushItem `json:"items"`
}

// Client talks to an external SLM display collaborator over HTTP. It is a
// thin, swappable boundary: the real SLM hardware/window-system integration
// lives in that external process, not here.
type Client struct {
	endpoint string
	http     *http.Client
}

// New creates a Client posting to endpoint (e.g. "http://localhost:9001/push").
func New(endpoint string) *Client {
	return &Client{endpoint: endpoint, http: &http.Client{Timeout: 5 * time.Second}}
}

// Push sends one image to the SLM collaborator.
func (c *Client) Push(image []byte) error {
	req := PushRequest{Items: []PushItem{{Timestamp: time.Now().UTC(), Image: image}}}
	body, err := json.Marshal(&req)
	if err != nil {
		return fmt.Errorf("display: encode push request: %w", err)
	}
	resp, err := c.http.Post(c.endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("display: push: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("display: push: collaborator returned %s", resp.Status)
	}
	return nil
}

// PushURL fetches the image at url and forwards it to the SLM collaborator,
// implementing slm_image_url.
func (c *Client) PushURL(url string) error {
	resp, err := c.http.Get(url)
	if err != nil {
		return fmt.Errorf("display: fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("display: fetch %s: collaborator returned %s", url, resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("display: read %s: %w", url, err)
	}
	return c.Push(data)
}
