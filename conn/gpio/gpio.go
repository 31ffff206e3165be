// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package gpio defines digital pins.
//
// The GPIO pins are described in their logical functionality, not in their
// physical position.
package gpio

import (
	"fmt"
	"time"

	"github.com/keybuk/SignalBox-sub002/conn/pin"
)

// Level is the level of the pin: Low or High.
type Level bool

const (
	// Low represents 0v.
	Low Level = false
	// High represents Vin, generally 3.3v or 5v.
	High Level = true
)

func (l Level) String() string {
	if l == Low {
		return "Low"
	}
	return "High"
}

// Pull specifies the internal pull-up or pull-down for a pin set as input.
type Pull uint8

// Acceptable pull values.
const (
	Float        Pull = 0 // Let the input float
	Down         Pull = 1 // Apply pull-down
	Up           Pull = 2 // Apply pull-up
	PullNoChange Pull = 3 // Do not change the previous pull resistor setting or an unknown value
)

const pullName = "FloatDownUpPullNoChange"

var pullIndex = [...]uint8{0, 5, 9, 11, 23}

func (i Pull) String() string {
	if i >= Pull(len(pullIndex)-1) {
		return fmt.Sprintf("Pull(%d)", i)
	}
	return pullName[pullIndex[i]:pullIndex[i+1]]
}

// Edge specifies if an input pin should have edge detection enabled.
//
// Only enable it when needed, since this causes system interrupts.
type Edge uint8

// Acceptable edge detection values.
const (
	None    Edge = 0
	Rising  Edge = 1
	Falling Edge = 2
	Both    Edge = 3
)

const edgeName = "NoneRisingFallingBoth"

var edgeIndex = [...]uint8{0, 4, 10, 17, 21}

func (i Edge) String() string {
	if i >= Edge(len(edgeIndex)-1) {
		return fmt.Sprintf("Edge(%d)", i)
	}
	return edgeName[edgeIndex[i]:edgeIndex[i+1]]
}

// PinIn is an input GPIO pin.
//
// It may optionally support internal pull resistor and edge based triggering.
type PinIn interface {
	pin.Pin
	// In setups a pin as an input.
	In(pull Pull, edge Edge) error
	// Read return the current pin level.
	Read() Level
	// WaitForEdge waits for the next edge or immediately return if an edge
	// occurred since the last call.
	WaitForEdge(timeout time.Duration) bool
	// Pull returns the internal pull resistor if the pin is set as input pin.
	Pull() Pull
}

// PinOut is an output GPIO pin.
type PinOut interface {
	pin.Pin
	// Out sets a pin as output if it wasn't already and sets the initial value.
	Out(l Level) error
}

// PinIO is a GPIO pin that supports both input and output.
type PinIO interface {
	pin.Pin
	In(pull Pull, edge Edge) error
	Read() Level
	WaitForEdge(timeout time.Duration) bool
	Pull() Pull
	Out(l Level) error
}

// INVALID implements PinIO and fails on all access.
var INVALID PinIO = invalidPin{}

// BasicPin implements Pin as a non-functional pin.
type BasicPin struct {
	N string
}

// String implements pin.Pin.
func (b *BasicPin) String() string {
	return b.N
}

// Name implements pin.Pin.
func (b *BasicPin) Name() string {
	return b.N
}

// Number implements pin.Pin.
func (b *BasicPin) Number() int {
	return -1
}

// Function implements pin.Pin.
func (b *BasicPin) Function() string {
	return ""
}

// In implements gpio.PinIn.
func (b *BasicPin) In(Pull, Edge) error {
	return fmt.Errorf("%s cannot be used as input", b.N)
}

// Read implements gpio.PinIn.
func (b *BasicPin) Read() Level {
	return Low
}

// WaitForEdge implements gpio.PinIn.
func (b *BasicPin) WaitForEdge(timeout time.Duration) bool {
	return false
}

// Pull implements gpio.PinIn.
func (b *BasicPin) Pull() Pull {
	return PullNoChange
}

// Out implements gpio.PinOut.
func (b *BasicPin) Out(Level) error {
	return fmt.Errorf("%s cannot be used as output", b.N)
}

//

var errInvalidPin = fmt.Errorf("invalid pin")

// invalidPin implements PinIO for compatibility but fails on all access.
type invalidPin struct{}

func (invalidPin) Number() int      { return -1 }
func (invalidPin) Name() string     { return "INVALID" }
func (invalidPin) String() string   { return "INVALID" }
func (invalidPin) Function() string { return "" }

func (invalidPin) In(Pull, Edge) error { return errInvalidPin }
func (invalidPin) Read() Level         { return Low }

func (invalidPin) WaitForEdge(timeout time.Duration) bool { return false }
func (invalidPin) Pull() Pull                             { return PullNoChange }
func (invalidPin) Out(Level) error                        { return errInvalidPin }

var _ PinIn = INVALID
var _ PinOut = INVALID
var _ PinIO = INVALID
