// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package controls defines the tagged-union control descriptor exposed by
// GET /controls, and the normalized control-name vocabulary shared by every
// camera.Backend.
package controls

import "fmt"

// Kind distinguishes the control descriptor variants.
type Kind string

// Valid Kind values. Vector2 is a backend-native 2-tuple control (e.g. the
// camera stack's combined colour-gains pair); it never reaches a client —
// the Coordinator always splits it into two scalar descriptors first.
const (
	Integer Kind = "integer"
	Float   Kind = "float"
	Boolean Kind = "boolean"
	Menu    Kind = "menu"
	Vector2 Kind = "vector2"
)

// Range is an inclusive [Min, Max] bound, meaningful for Integer and Float
// descriptors.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Descriptor is a machine-readable description of one tunable camera
// control: id, type, range, default, and current value. The scalar control
// kinds (integer, float, boolean, menu) are variants of this single sum
// type; Step and Options are only populated for the kinds that use them.
// Vector2 descriptors instead populate Values/Ranges and leave
// Range/Default/Value unused.
type Descriptor struct {
	ID      string   `json:"id"`
	Type    Kind     `json:"type"`
	Name    string   `json:"name"`
	Range   *Range   `json:"range,omitempty"`
	Default float64  `json:"default"`
	Value   float64  `json:"value"`
	Step    *float64 `json:"step,omitempty"`
	Options []string `json:"options,omitempty"`
	Values   []float64 `json:"values,omitempty"`
	Ranges   []Range   `json:"ranges,omitempty"`
	Defaults []float64 `json:"defaults,omitempty"`
}

// DefaultFloatStep is used for Float descriptors that don't carry a
// backend-provided step.
const DefaultFloatStep = 0.1

// NewFloat builds a Float descriptor, defaulting Step when the backend
// didn't supply one.
func NewFloat(id, name string, r Range, def, value float64, step *float64) Descriptor {
	if step == nil {
		s := DefaultFloatStep
		step = &s
	}
	return Descriptor{ID: id, Type: Float, Name: name, Range: &r, Default: def, Value: value, Step: step}
}

// NewInteger builds an Integer descriptor.
func NewInteger(id, name string, r Range, def, value float64, step *float64) Descriptor {
	return Descriptor{ID: id, Type: Integer, Name: name, Range: &r, Default: def, Value: value, Step: step}
}

// NewBoolean builds a Boolean descriptor.
func NewBoolean(id, name string, def, value bool) Descriptor {
	return Descriptor{ID: id, Type: Boolean, Name: name, Range: &Range{Min: 0, Max: 1}, Default: boolToFloat(def), Value: boolToFloat(value)}
}

// NewMenu builds a Menu descriptor.
func NewMenu(id, name string, options []string, def, value float64) Descriptor {
	return Descriptor{ID: id, Type: Menu, Name: name, Default: def, Value: value, Options: options}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// NewColourGains builds the Vector2 descriptor a camera.Backend reports for
// its combined colour-gains control: one native id carrying both the red
// and blue analogue gain channels as a 2-tuple, the way the Raspberry Pi
// camera stack's ColourGains control does.
func NewColourGains(id, name string, red, blue Range, redDefault, blueDefault, redValue, blueValue float64) Descriptor {
	return Descriptor{
		ID:       id,
		Type:     Vector2,
		Name:     name,
		Ranges:   []Range{red, blue},
		Values:   []float64{redValue, blueValue},
		Defaults: []float64{redDefault, blueDefault},
	}
}

// SplitColourGains splits a Vector2 ColourGains descriptor into its two
// scalar siblings, colour_gain_red and colour_gain_blue, as the
// Coordinator's boundary requires: the backend only ever models the
// combined pair, never the split scalars.
func SplitColourGains(d Descriptor) ([]Descriptor, error) {
	if d.Type != Vector2 || len(d.Values) != 2 || len(d.Ranges) != 2 || len(d.Defaults) != 2 {
		return nil, fmt.Errorf("controls: %q is not a valid Vector2 colour-gains descriptor", d.ID)
	}
	return []Descriptor{
		NewFloat("colour_gain_red", "colour_gain_red", d.Ranges[0], d.Defaults[0], d.Values[0], nil),
		NewFloat("colour_gain_blue", "colour_gain_blue", d.Ranges[1], d.Defaults[1], d.Values[1], nil),
	}, nil
}

// ErrUnknownControl reports a control name not present in a backend's
// descriptor set. It is always logged and dropped — it must never fail
// the session.
type ErrUnknownControl struct {
	Name string
}

func (e *ErrUnknownControl) Error() string {
	return fmt.Sprintf("controls: unknown control %q", e.Name)
}

// ErrOutOfRange reports a value outside a control's declared Range.
type ErrOutOfRange struct {
	Name  string
	Value float64
	Range Range
}

func (e *ErrOutOfRange) Error() string {
	return fmt.Sprintf("controls: value %v for %q out of range [%v, %v]", e.Value, e.Name, e.Range.Min, e.Range.Max)
}
