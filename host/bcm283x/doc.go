// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package bcm283x drives the BCM283x CPU found on Raspberry Pis as a DCC
// signal generator.
//
// It implements memory-mapped GPIO pin manipulation and programs the PWM
// serialiser, its clock and a DMA channel to transmit dcc.Bitstreams with
// hardware timing: the DMA engine feeds precompiled words into the PWM
// FIFO while aligned register writes toggle the RailCom gate and debug
// pins, without the CPU in the loop.
//
// Datasheet
//
// https://www.raspberrypi.org/wp-content/uploads/2012/02/BCM2835-ARM-Peripherals.pdf
//
// Its crowd-sourced errata: http://elinux.org/BCM2835_datasheet_errata
//
// Another doc about PCM and PWM:
// https://fr.scribd.com/doc/127599939/BCM2835-Audio-clocks
package bcm283x
