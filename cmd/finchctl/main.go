// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// finchctl is a thin CLI collaborator for finchd: it parses key=value
// control assignments off the command line and sends them as set_control
// over the WebSocket control protocol, or base64-encodes an image file and
// sends it as slm_image.
//
// Exit codes: 0 success, 1 usage error, 2 transport error.
package main

import (
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"io/ioutil"
	"os"
	"strconv"
	"strings"

	"golang.org/x/net/websocket"
)

func usageError(format string, args ...interface{}) int {
	fmt.Fprintf(os.Stderr, "finchctl: "+format+"\n", args...)
	return 1
}

func transportError(format string, args ...interface{}) int {
	fmt.Fprintf(os.Stderr, "finchctl: "+format+"\n", args...)
	return 2
}

func mainImpl() int {
	addr := flag.String("addr", "ws://localhost:8000/ws", "finchd WebSocket endpoint")
	image := flag.String("image", "", "path to an image file to send as slm_image")
	flag.Parse()

	assignments := flag.Args()
	if len(assignments) == 0 && *image == "" {
		return usageError("nothing to send: pass key=value pairs or -image")
	}

	setControl := map[string]float64{}
	for _, a := range assignments {
		k, v, ok := strings.Cut(a, "=")
		if !ok {
			return usageError("invalid assignment %q, want key=value", a)
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return usageError("invalid value in %q: %s", a, err)
		}
		setControl[k] = f
	}

	conn, err := websocket.Dial(*addr, "", "http://localhost/")
	if err != nil {
		return transportError("dial %s: %s", *addr, err)
	}
	defer conn.Close()

	if len(setControl) > 0 {
		msg, err := json.Marshal(map[string]interface{}{"set_control": setControl})
		if err != nil {
			return usageError("encode set_control: %s", err)
		}
		if err := websocket.Message.Send(conn, string(msg)); err != nil {
			return transportError("send set_control: %s", err)
		}
	}

	if *image != "" {
		data, err := ioutil.ReadFile(*image)
		if err != nil {
			return usageError("read %s: %s", *image, err)
		}
		msg, err := json.Marshal(map[string]interface{}{
			"slm_image": base64.StdEncoding.EncodeToString(data),
		})
		if err != nil {
			return usageError("encode slm_image: %s", err)
		}
		if err := websocket.Message.Send(conn, string(msg)); err != nil {
			return transportError("send slm_image: %s", err)
		}
	}

	return 0
}

func main() {
	os.Exit(mainImpl())
}
