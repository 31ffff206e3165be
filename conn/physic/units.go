// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package physic declares physical units used to describe clock and signal
// timing.
package physic

import "time"

// Frequency is a measurement of cycles per second, stored as an int64 nano
// Hertz.
//
// The highest representable value is a bit over 9.2GHz.
type Frequency int64

// Frequency units.
const (
	NanoHertz  Frequency = 1
	MicroHertz Frequency = 1000 * NanoHertz
	MilliHertz Frequency = 1000 * MicroHertz
	Hertz      Frequency = 1000 * MilliHertz
	KiloHertz  Frequency = 1000 * Hertz
	MegaHertz  Frequency = 1000 * KiloHertz
	GigaHertz  Frequency = 1000 * MegaHertz
)

func (f Frequency) String() string {
	return ratioString(int64(f), int64(Hertz)) + "Hz"
}

// Period returns the duration of one cycle at this frequency.
func (f Frequency) Period() time.Duration {
	if f <= 0 {
		return 0
	}
	return time.Second * time.Duration(Hertz) / time.Duration(f)
}

// PeriodToFrequency returns the frequency whose period is d.
func PeriodToFrequency(d time.Duration) Frequency {
	if d <= 0 {
		return 0
	}
	return Frequency(time.Second) * Hertz / Frequency(d)
}

// ratioString formats v, expressed in units of 1e-9*unit, as a decimal
// string scaled to unit.
func ratioString(v, unit int64) string {
	whole := v / unit
	frac := v % unit
	if frac == 0 {
		return itoa(whole)
	}
	if frac < 0 {
		frac = -frac
	}
	s := itoa(frac)
	for len(s) < 9 {
		s = "0" + s
	}
	for len(s) > 1 && s[len(s)-1] == '0' {
		s = s[:len(s)-1]
	}
	return itoa(whole) + "." + s
}

func itoa(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
