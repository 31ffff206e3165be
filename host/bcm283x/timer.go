// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bcm283x

import "time"

const (
	// 31:4 reserved
	timerM3 = 1 << 3 // M3
	timerM2 = 1 << 2 // M2
	timerM1 = 1 << 1 // M1
	timerM0 = 1 << 0 // M0
)

// Page 173
type timerCtl uint32

var timerMemory *timerMap

// timerMap is the memory mapped system timer registers.
//
// Page 173.
type timerMap struct {
	cs   timerCtl // 0x00 CS
	low  uint32   // 0x04 CLO
	high uint32   // 0x08 CHI
	c0   uint32   // 0x0C C0
	c1   uint32   // 0x10 C1
	c2   uint32   // 0x14 C2
	c3   uint32   // 0x18 C3
}

// ReadTime returns the time on the free running 1MHz system timer.
//
// Returns 0 if the timer is not available.
func ReadTime() time.Duration {
	if timerMemory == nil {
		return 0
	}
	return (time.Duration(timerMemory.high)<<32 | time.Duration(timerMemory.low)) * time.Microsecond
}
