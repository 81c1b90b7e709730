// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package config

import "testing"

func TestDefaultTriggerConfigValidates(t *testing.T) {
	d := Default()
	tc := d.Trigger.TriggerConfig()
	if err := tc.Validate(); err != nil {
		t.Fatalf("default trigger config does not validate: %v", err)
	}
}

func TestDefaultPortIsSet(t *testing.T) {
	if Default().Port != 8000 {
		t.Fatalf("expected default port 8000, got %d", Default().Port)
	}
}
