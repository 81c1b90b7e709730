// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package display

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestPushSendsImageBytes(t *testing.T) {
	var got PushRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Error(err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL)
	if err := c.Push([]byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	if len(got.Items) != 1 || len(got.Items[0].Image) != 3 {
		t.Fatalf("got %+v", got)
	}
}

func TestPushURLFetchesThenPushes(t *testing.T) {
	imageSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("fake-image-bytes"))
	}))
	defer imageSrv.Close()

	var got PushRequest
	pushSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer pushSrv.Close()

	c := New(pushSrv.URL)
	if err := c.PushURL(imageSrv.URL); err != nil {
		t.Fatal(err)
	}
	if string(got.Items[0].Image) != "fake-image-bytes" {
		t.Fatalf("got %q", got.Items[0].Image)
	}
}

func TestPushFailsOnNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL)
	if err := c.Push([]byte{1}); err == nil {
		t.Fatal("expected an error for a non-200 response")
	}
}
