// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package host defines the host itself.
//
// Importing this package registers the drivers for the CPUs and boards this
// library supports.
package host

import (
	"github.com/keybuk/SignalBox-sub002"

	// Make sure CPU drivers are registered.
	_ "github.com/keybuk/SignalBox-sub002/host/bcm283x"
)

// Init calls periph.Init() and returns it as-is.
//
// The only difference is that by calling host.Init(), you are guaranteed to
// have all the drivers implemented in this library to be implicitly loaded.
func Init() (*periph.State, error) {
	return periph.Init()
}
