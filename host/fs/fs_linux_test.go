// Copyright 2018 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package fs

import (
	"os"
	"testing"
)

func TestEvent(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	defer w.Close()
	var ev Event
	if err := ev.MakeEvent(r.Fd()); err != nil {
		t.Fatal(err)
	}
	// The event is edge triggered on exceptional conditions; a quiet pipe
	// returns zero events once the timeout expires.
	if n, err := ev.Wait(0); n != 0 || err != nil {
		t.Fatal(n, err)
	}
}

func TestIoctl_Bad(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	defer w.Close()
	f := File{r}
	// Pipes do not implement any ioctl; ENOTTY is expected.
	if f.Ioctl(0, 0) == nil {
		t.Fatal("ioctl on a pipe must fail")
	}
}
