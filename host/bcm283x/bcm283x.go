// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bcm283x

// Physical addresses of the I/O peripherals block.
//
// The defaults are the bcm2836/bcm2837 values; driverGPIO.Init() overrides
// them with the address probed from the virtual file system, which also
// handles the bcm2835 (0x20000000 based) case.
var (
	// baseAddr is the physical base address of all the CPU peripherals.
	baseAddr uint32 = 0x3F000000
	// gpioBaseAddr is the physical base address of the GPIO registers.
	gpioBaseAddr uint32 = 0x3F200000
	// dramBus is the base address of the uncached view of DRAM as seen by
	// the DMA engine.
	dramBus uint32 = 0xC0000000
)

// Offsets of the individual peripherals within the block, and the registers
// the DMA engine writes to. DMA destinations must be expressed as bus
// addresses (0x7E000000 based), not physical addresses.
const (
	timerOffset = 0x3000   // system timer
	dmaOffset   = 0x7000   // DMA channels 0-14
	clockOffset = 0x101000 // clock manager
	gpioOffset  = 0x200000 // GPIO
	pcmOffset   = 0x203000 // PCM / I2S
	pwmOffset   = 0x20C000 // PWM
	dma15Offset = 0xE05000 // DMA channel 15

	// Registers within the GPIO block used as DMA destinations; one
	// register covers 32 pins.
	gpioSetOffset   = 0x1C // GPSET0
	gpioClearOffset = 0x28 // GPCLR0

	// Registers within the PWM block used as DMA destinations.
	pwmFifoOffset = 0x18 // FIF1
	pwmRng1Offset = 0x10 // RNG1
)

// Bus addresses of the registers the DCC control block program writes to.

func gpioSetBusAddr() uint32 {
	return physToBus(gpioBaseAddr + gpioSetOffset)
}

func pwmFifoBusAddr() uint32 {
	return physToBus(baseAddr + pwmOffset + pwmFifoOffset)
}

func pwmRng1BusAddr() uint32 {
	return physToBus(baseAddr + pwmOffset + pwmRng1Offset)
}
