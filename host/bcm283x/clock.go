// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bcm283x

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/keybuk/SignalBox-sub002/conn/physic"
	"github.com/keybuk/SignalBox-sub002/host/cpu"
)

var clockMemory *clockMap

// errClockRegister is returned when the clock divisor register read back a
// different value than what was written. It is replaced in unit tests since
// fake register memory keeps the password bits.
var errClockRegister = errors.New("can't write to clock divisor CPU register")

const (
	clk19dot2MHz = 19200000
	clk500MHz    = 500000000
)

const (
	// 31:24 password
	clockPasswdCtl clockCtl = 0x5A << 24 // PASSWD
	// 23:11 reserved
	clockMashMask clockCtl = 3 << 9 // MASH
	clockMash0    clockCtl = 0 << 9 // src_freq / divI  (ignores divF)
	clockMash1    clockCtl = 1 << 9
	clockMash2    clockCtl = 2 << 9
	clockMash3    clockCtl = 3 << 9 // will cause higher spread
	clockFlip     clockCtl = 1 << 8 // FLIP
	clockBusy     clockCtl = 1 << 7 // BUSY
	// 6 reserved
	clockKill          clockCtl = 1 << 5   // KILL
	clockEnable        clockCtl = 1 << 4   // ENAB
	clockSrcMask       clockCtl = 0xF << 0 // SRC
	clockSrcGND        clockCtl = 0        // 0Hz
	clockSrc19dot2MHz  clockCtl = 1        // 19.2MHz
	clockSrcTestDebug0 clockCtl = 2        // 0Hz
	clockSrcTestDebug1 clockCtl = 3        // 0Hz
	clockSrcPLLA       clockCtl = 4        // 0Hz
	clockSrcPLLC       clockCtl = 5        // 1000MHz (changes with overclock settings)
	clockSrcPLLD       clockCtl = 6        // 500MHz
	clockSrcHDMI       clockCtl = 7        // 216MHz; may be disabled
	// 8-15 == GND.
)

// clockCtl controls the clock properties.
//
// It must not be changed while busy is set or a glitch may occur.
//
// Page 107
type clockCtl uint32

func (c clockCtl) String() string {
	var out []string
	if c&0xFF000000 == clockPasswdCtl {
		c &^= 0xFF000000
		out = append(out, "PWD")
	}
	switch c & clockMashMask {
	case clockMash1:
		out = append(out, "Mash1")
	case clockMash2:
		out = append(out, "Mash2")
	case clockMash3:
		out = append(out, "Mash3")
	default:
	}
	c &^= clockMashMask
	if c&clockFlip != 0 {
		out = append(out, "Flip")
		c &^= clockFlip
	}
	if c&clockBusy != 0 {
		out = append(out, "Busy")
		c &^= clockBusy
	}
	if c&clockKill != 0 {
		out = append(out, "Kill")
		c &^= clockKill
	}
	if c&clockEnable != 0 {
		out = append(out, "Enable")
		c &^= clockEnable
	}
	switch x := c & clockSrcMask; x {
	case clockSrcGND:
		out = append(out, "GND(0Hz)")
	case clockSrc19dot2MHz:
		out = append(out, "19.2MHz")
	case clockSrcTestDebug0:
		out = append(out, "Debug0(0Hz)")
	case clockSrcTestDebug1:
		out = append(out, "Debug1(0Hz)")
	case clockSrcPLLA:
		out = append(out, "PLLA(0Hz)")
	case clockSrcPLLC:
		out = append(out, "PLLC(1000MHz)")
	case clockSrcPLLD:
		out = append(out, "PLLD(500MHz)")
	case clockSrcHDMI:
		out = append(out, "HDMI(216MHz)")
	default:
		out = append(out, fmt.Sprintf("GND(%d)", x))
	}
	c &^= clockSrcMask
	if c != 0 {
		out = append(out, fmt.Sprintf("clockCtl(0x%x)", uint32(c)))
	}
	return strings.Join(out, "|")
}

const (
	// 31:24 password
	clockPasswdDiv clockDiv = 0x5A << 24 // PASSWD
	// Integer part of the divisor
	clockDiviShift = 12
	clockDiviMax   = (1 << 12) - 1
	clockDiviMask  clockDiv = clockDiviMax << clockDiviShift // DIVI
	// Fractional part of the divisor
	clockDivfMask clockDiv = (1 << 12) - 1 // DIVF
)

// clockDiv is a 12.12 fixed point value.
//
// The fractional part generates a significant amount of noise so it is
// preferable to not use it.
//
// Page 108
type clockDiv uint32

func (c clockDiv) String() string {
	i := (c & clockDiviMask) >> clockDiviShift
	c &^= clockDiviMask
	if c == 0 {
		return fmt.Sprintf("%d.0", i)
	}
	return fmt.Sprintf("%d.(%d/%d)", i, c, clockDiviMax)
}

// clock is a pair of clockCtl / clockDiv.
//
// It can be set to one of the sources: clockSrc19dot2MHz(19.2MHz) and
// clockSrcPLLD(500Mhz), then divided to a value to get the resulting clock.
// Per spec the resulting frequency should be under 25Mhz.
type clock struct {
	ctl clockCtl
	div clockDiv
}

func (c *clock) String() string {
	return fmt.Sprintf("%s / %s", c.ctl, c.div)
}

// findDivisorExact finds the clock divisor and wait cycles that reduce src to
// desired.
//
// Returns clock divisor, wait cycles. Returns 0, 0 if no exact match is
// found. Favorizes high clock divisor value over high clock wait cycles. This
// means that the function is slower than it could be, but results in more
// stable clock.
func findDivisorExact(srcHz, desiredHz physic.Frequency, maxWaitCycles uint32) (uint32, uint32) {
	if desiredHz == 0 || srcHz%desiredHz != 0 {
		return 0, 0
	}
	factor := srcHz / desiredHz
	for waitCycles := physic.Frequency(1); waitCycles <= physic.Frequency(maxWaitCycles); waitCycles++ {
		if factor%waitCycles != 0 {
			continue
		}
		clkDiv := factor / waitCycles
		if clkDiv == 0 {
			break
		}
		if clkDiv <= clockDiviMax {
			return uint32(clkDiv), uint32(waitCycles)
		}
	}
	return 0, 0
}

// calcSource chooses the best source to get the exact desired clock.
//
// It calculates the clock source, the clock divisor and the wait cycles, if
// applicable. When no exact match at the desired frequency is possible, it
// tries increasing multiples of the desired frequency so the caller can
// oversample; inexact frequencies are not generated.
func calcSource(f physic.Frequency, maxWaitCycles uint32) (clockCtl, uint32, uint32, physic.Frequency, error) {
	if f < 1*physic.Hertz {
		return 0, 0, 0, 0, fmt.Errorf("bcm283x-clock: desired frequency must be at least 1Hz; got %s", f)
	}
	if f > 25*physic.MegaHertz {
		return 0, 0, 0, 0, fmt.Errorf("bcm283x-clock: desired frequency %s is too high", f)
	}
	// http://elinux.org/BCM2835_datasheet_errata states that clockSrc19dot2MHz
	// is the cleanest clock source so try it first.
	if clkDiv, waitCycles := findDivisorExact(clk19dot2MHz*physic.Hertz, f, maxWaitCycles); clkDiv != 0 {
		return clockSrc19dot2MHz, clkDiv, waitCycles, f, nil
	}
	if clkDiv, waitCycles := findDivisorExact(clk500MHz*physic.Hertz, f, maxWaitCycles); clkDiv != 0 {
		return clockSrcPLLD, clkDiv, waitCycles, f, nil
	}
	// Allowed oversampling depends on the desired frequency. Cap oversampling
	// because oversampling at 10x in the 1MHz range becomes unreasonable in
	// term of memory usage.
	for i := physic.Frequency(2); ; i++ {
		d := i * f
		if d > 100*physic.KiloHertz && i > 10 {
			break
		}
		if clkDiv, waitCycles := findDivisorExact(clk19dot2MHz*physic.Hertz, d, maxWaitCycles); clkDiv != 0 {
			return clockSrc19dot2MHz, clkDiv, waitCycles, d, nil
		}
		if clkDiv, waitCycles := findDivisorExact(clk500MHz*physic.Hertz, d, maxWaitCycles); clkDiv != 0 {
			return clockSrcPLLD, clkDiv, waitCycles, d, nil
		}
	}
	return 0, 0, 0, 0, fmt.Errorf("bcm283x-clock: no exact match for frequency %s", f)
}

// set changes the clock frequency to the desired value or the closest
// oversampled multiple otherwise.
//
// f == 0 means disabled.
//
// maxWaitCycles is the maximum oversampling via DMA wait cycles the caller
// can tolerate; use 1 when the caller cannot slow down its transfers.
//
// Returns the actual clock used and wait cycles.
func (c *clock) set(f physic.Frequency, maxWaitCycles uint32) (physic.Frequency, uint32, error) {
	if f == 0 {
		c.ctl = clockPasswdCtl | clockKill
		for c.ctl&clockBusy != 0 {
		}
		return 0, 0, nil
	}
	ctl, clkDiv, waitCycles, actual, err := calcSource(f, maxWaitCycles)
	if err != nil {
		return 0, 0, err
	}
	return actual, waitCycles, c.setRaw(ctl, clkDiv)
}

// setRaw sets the clock speed with the clock source and the divisor.
func (c *clock) setRaw(ctl clockCtl, clkDiv uint32) error {
	if clkDiv < 1 || clkDiv > clockDiviMax {
		return errors.New("invalid clock divisor")
	}
	if ctl != clockSrc19dot2MHz && ctl != clockSrcPLLD {
		return errors.New("invalid clock control")
	}
	// Stop the clock.
	// TODO(maruel): Do not stop the clock if the current clock rate is the one
	// desired.
	for c.ctl&clockBusy != 0 {
		c.ctl = clockPasswdCtl | clockKill
	}
	d := clockDiv(clkDiv << clockDiviShift)
	c.div = clockPasswdDiv | d
	cpu.Nanospin(10 * time.Nanosecond)
	// Page 107
	c.ctl = clockPasswdCtl | ctl
	cpu.Nanospin(10 * time.Nanosecond)
	c.ctl = clockPasswdCtl | ctl | clockEnable
	if c.div != d {
		return errClockRegister
	}
	return nil
}

// waitForRunning busy waits for the clock generator to report itself
// running. The spin is bounded; the flag is informational and comes up
// within a few cycles of the source on real hardware.
func (c *clock) waitForRunning() {
	for i := 0; i < 100 && c.ctl&clockBusy == 0; i++ {
		cpu.Nanospin(10 * time.Nanosecond)
	}
}

// clockMap is the memory mapped clock registers.
//
// The clock #1 must not be touched since it is being used by the ethernet
// controller.
//
// Page 107 for gp0~gp2.
// https://scribd.com/doc/127599939/BCM2835-Audio-clocks for PCM/PWM.
type clockMap struct {
	reserved0 [0x70 / 4]uint32          //
	gp0       clock                     // CM_GP0CTL+CM_GP0DIV; 0x70-0x74 (125MHz max)
	gp1       clock                     // CM_GP1CTL+CM_GP1DIV; 0x78-0x7C must not use (used by ethernet)
	gp2       clock                     // CM_GP2CTL+CM_GP2DIV; 0x80-0x84 (125MHz max)
	reserved1 [(0x98 - 0x88) / 4]uint32 // 0x88-0x94
	pcm       clock                     // CM_PCMCTL+CM_PCMDIV 0x98-0x9C
	pwm       clock                     // CM_PWMCTL+CM_PWMDIV 0xA0-0xA4
}

func (c *clockMap) GoString() string {
	return fmt.Sprintf(
		"{\n  gp0: %s,\n  gp1: %s,\n  gp2: %s,\n  pcm: %s,\n  pwm: %s,\n}",
		&c.gp0, &c.gp1, &c.gp2, &c.pcm, &c.pwm)
}
