// Copyright 2018 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package dcc builds Digital Command Control bitstreams.
//
// A Bitstream is an append-only sequence of events describing a future
// waveform: words of physical bits to be shifted out by a serialiser, and
// markers for GPIO transitions aligned between words. The host/bcm283x
// package turns a Bitstream into a DMA control block program that drives the
// PWM serialiser; this package is hardware agnostic.
//
// The logical level follows NMRA S-9.1: a 1 bit is a half cycle of ≈58µs
// high then the same low, a 0 bit is ≈100µs per half. Both are rendered as
// runs of fixed duration physical bits, so the physical bit duration decides
// how closely the standard timings are matched.
//
// Datasheet
//
// https://www.nmra.org/sites/default/files/standards/sandrp/pdf/s-9.1_electrical_standards_2020.pdf
//
// https://www.nmra.org/sites/default/files/standards/sandrp/pdf/s-9.3.2_2012_12_10.pdf
package dcc
