// Copyright 2018 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package physic

import (
	"testing"
	"time"
)

func TestFrequency_String(t *testing.T) {
	data := []struct {
		f Frequency
		s string
	}{
		{0, "0Hz"},
		{NanoHertz, "0.000000001Hz"},
		{MilliHertz, "0.001Hz"},
		{Hertz, "1Hz"},
		{1500 * MilliHertz, "1.5Hz"},
		{100 * Hertz, "100Hz"},
		{19200 * KiloHertz, "19200000Hz"},
		{-2 * Hertz, "-2Hz"},
	}
	for _, line := range data {
		if s := line.f.String(); s != line.s {
			t.Fatalf("%d: %s != %s", int64(line.f), s, line.s)
		}
	}
}

func TestFrequency_Period(t *testing.T) {
	data := []struct {
		f Frequency
		d time.Duration
	}{
		{0, 0},
		{-Hertz, 0},
		{Hertz, time.Second},
		{100 * Hertz, 10 * time.Millisecond},
		{MegaHertz, time.Microsecond},
	}
	for _, line := range data {
		if d := line.f.Period(); d != line.d {
			t.Fatalf("%s: %s != %s", line.f, d, line.d)
		}
	}
}

func TestPeriodToFrequency(t *testing.T) {
	data := []struct {
		d time.Duration
		f Frequency
	}{
		{0, 0},
		{-time.Second, 0},
		{time.Second, Hertz},
		{time.Millisecond, KiloHertz},
		{10 * time.Microsecond, 100 * KiloHertz},
	}
	for _, line := range data {
		if f := PeriodToFrequency(line.d); f != line.f {
			t.Fatalf("%s: %s != %s", line.d, f, line.f)
		}
	}
}
